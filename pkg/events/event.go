// Package events publishes document lifecycle events (load, save, unload)
// to an external broker so other services can follow changes made through
// docserve.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hashicorp-forge/docserve/pkg/docid"
)

// EventType defines the type of a lifecycle event.
type EventType string

const (
	EventTypeDocumentLoaded   EventType = "document.loaded"
	EventTypeDocumentSaved    EventType = "document.saved"
	EventTypeDocumentUnloaded EventType = "document.unloaded"
	EventTypeDocumentAdded    EventType = "document.added"
)

// Event is the envelope for all lifecycle events.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Namespace string `json:"namespace"`
	DocID     string `json:"docid"`

	// ContentHash is set for saves (sha256 of the written file).
	ContentHash string `json:"content_hash,omitempty"`

	// Message is the change-log message of a save.
	Message string `json:"message,omitempty"`
}

// NewEvent builds an event for key with a fresh ID and timestamp.
func NewEvent(typ EventType, key docid.Key) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now(),
		Namespace: key.Namespace,
		DocID:     key.DocID,
	}
}

// Publisher publishes lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// partitionKey keeps all events about one document in order.
func partitionKey(ev Event) string {
	return "doc:" + ev.Namespace + "/" + ev.DocID
}
