package events

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// LogPublisher writes events to a logger. It is used when no broker is
// configured.
type LogPublisher struct {
	logger hclog.Logger
}

// NewLogPublisher returns a publisher that logs events at debug level.
func NewLogPublisher(logger hclog.Logger) *LogPublisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.Debug("document event",
		"type", ev.Type,
		"namespace", ev.Namespace,
		"docid", ev.DocID,
		"content_hash", ev.ContentHash)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() {}

// MemoryPublisher records events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event.
func (p *MemoryPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Types returns the recorded event types in order.
func (p *MemoryPublisher) Types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// Close is a no-op.
func (p *MemoryPublisher) Close() {}
