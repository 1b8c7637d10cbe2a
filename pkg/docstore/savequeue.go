package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/metrics"
)

// SaveRequest asks the queue to save a document.
type SaveRequest struct {
	Key docid.Key
}

// SaveQueueConfig contains save queue configuration.
type SaveQueueConfig struct {
	Workers int
	Buffer  int

	// MaxElapsed bounds the retries of a single save.
	MaxElapsed time.Duration
}

// saver is the part of Store the queue depends on.
type saver interface {
	Save(ctx context.Context, key docid.Key) error
}

// SaveQueue saves documents in the background. Requests for a key that is
// already waiting are coalesced.
type SaveQueue struct {
	store      saver
	logger     hclog.Logger
	requests   chan SaveRequest
	workers    int
	maxElapsed time.Duration

	mu      sync.Mutex
	pending map[docid.Key]struct{}

	wg sync.WaitGroup
}

// NewSaveQueue creates a save queue for store.
func NewSaveQueue(store saver, logger hclog.Logger, cfg *SaveQueueConfig) *SaveQueue {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg == nil {
		cfg = &SaveQueueConfig{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}

	return &SaveQueue{
		store:      store,
		logger:     logger.Named("save-queue"),
		requests:   make(chan SaveRequest, buffer),
		workers:    workers,
		maxElapsed: maxElapsed,
		pending:    make(map[docid.Key]struct{}),
	}
}

// Enqueue schedules a save of key. It returns ErrQueueFull instead of
// blocking when the buffer is full.
func (q *SaveQueue) Enqueue(key docid.Key) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		return nil
	}
	select {
	case q.requests <- SaveRequest{Key: key}:
		q.pending[key] = struct{}{}
		metrics.SaveQueueDepth.Set(float64(len(q.pending)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued keys.
func (q *SaveQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the workers. They exit when ctx is done.
func (q *SaveQueue) Start(ctx context.Context) {
	q.logger.Info("save queue started", "workers", q.workers, "max_elapsed", q.maxElapsed)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(id int) {
			defer q.wg.Done()
			q.work(ctx, id)
		}(i)
	}
}

// Wait blocks until all workers have exited.
func (q *SaveQueue) Wait() {
	q.wg.Wait()
	q.logger.Info("save queue stopped")
}

func (q *SaveQueue) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-q.requests:
			q.mu.Lock()
			delete(q.pending, req.Key)
			metrics.SaveQueueDepth.Set(float64(len(q.pending)))
			q.mu.Unlock()

			if err := q.save(ctx, req.Key); err != nil {
				q.logger.Error("error saving document",
					"worker", id,
					"key", req.Key.String(),
					"error", err)
			}
		}
	}
}

func (q *SaveQueue) save(ctx context.Context, key docid.Key) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = q.maxElapsed

	op := func() error {
		err := q.store.Save(ctx, key)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		q.logger.Warn("save failed, retrying", "key", key.String(), "wait", wait, "error", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}
