// Package worker provides an asynchronous worker pool for publishing stream
// completion events through an eventstream.Publisher.
//
// The pool decouples publication from the gateway's streaming hot path: a
// slow or unavailable broker never delays or blocks a client stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/thinkgate/pkg/eventstream"
	"github.com/papercomputeco/thinkgate/pkg/metrics"
)

var (
	defaultNumWorkers     uint = 2
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Event *eventstream.StreamCompletedEvent
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher delivers completion events.
	Publisher eventstream.Publisher

	// Collector records publish outcomes and dropped events. Optional.
	Collector *metrics.Collector

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish call (defaults to 10s).
	PublishTimeout time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool publishes completion events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || job.Event == nil {
		p.drop(job, "pool closed or empty job")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("event_id", job.Event.EventID),
			zap.String("request_id", job.Event.RequestMeta.RequestID),
		)
		return true
	default:
		p.drop(job, "queue full")
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the gateway HTTP server has
// stopped. Close is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) drop(job Job, reason string) {
	fields := []zap.Field{zap.String("reason", reason)}
	if job.Event != nil {
		fields = append(fields, zap.String("request_id", job.Event.RequestMeta.RequestID))
	}
	p.logger.Error("job not queued, job dropped", fields...)

	if p.config.Collector != nil {
		p.config.Collector.RecordDroppedEvent()
	}
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("publish worker stopped", zap.Uint("worker_id", id))
}

// processJob publishes a single completion event.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	err := p.config.Publisher.PublishStream(ctx, job.Event)
	if p.config.Collector != nil {
		p.config.Collector.RecordPublish(err)
	}
	if err != nil {
		p.logger.Error("stream event publish failed",
			zap.String("event_id", job.Event.EventID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("stream event published",
		zap.String("event_id", job.Event.EventID),
		zap.String("outcome", job.Event.Stream.Outcome),
	)
}
