// Package worker provides an asynchronous worker pool for persisting
// conversation turns through a storage.Store.
//
// The pool decouples persistence from the streaming hot path: the chat
// engine enqueues turns fire-and-forget and never waits on the store, so
// user-turn and assistant-turn writes may complete out of order relative
// to the visible transcript. Save failures are logged, never surfaced.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/marketstead/chatstream/pkg/eventstream"
	"github.com/marketstead/chatstream/pkg/llm"
	"github.com/marketstead/chatstream/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a single turn to persist.
type Job struct {
	Ref  llm.ConversationRef
	Turn llm.Turn
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Store is the backend for persisting turns.
	Store storage.Store

	// Publisher optionally receives a TurnPersistedEvent after each
	// successful save.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Pool processes persistence jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("turn queued",
			"user_id", job.Ref.UserID,
			"topic", job.Ref.Topic,
			"role", job.Turn.Role,
		)
		return true
	default:
		p.logger.Error("turn not queued, queue full, job dropped",
			"user_id", job.Ref.UserID,
			"topic", job.Ref.Topic,
			"role", job.Turn.Role,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the chat engine has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker continuously pulls jobs off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob persists one turn and, if a publisher is configured, emits a
// turn-persisted event. Both failure modes are logged and swallowed.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if err := p.config.Store.SaveTurn(ctx, job.Ref, job.Turn); err != nil {
		p.logger.Error("async turn persistence failed",
			"user_id", job.Ref.UserID,
			"topic", job.Ref.Topic,
			"role", job.Turn.Role,
			"error", err,
		)
		return
	}

	p.logger.Info("turn persisted",
		"user_id", job.Ref.UserID,
		"topic", job.Ref.Topic,
		"role", job.Turn.Role,
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewTurnPersistedEvent(job.Ref, job.Turn)
	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			"event_id", event.EventID,
			"error", err,
		)
	}
}
