package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var ErrOutboxClosed = errors.New("outbox closed")

const defaultJobTimeout = 5 * time.Second

type outboxJob struct {
	name string
	fn   func(ctx context.Context)
	done chan struct{}
}

// Outbox executes side effects one at a time in enqueue order. Producers
// never block: when the queue is full the job is dropped and counted.
type Outbox struct {
	jobs    chan outboxJob
	stop    chan struct{}
	done    chan struct{}
	log     zerolog.Logger
	pending atomic.Int64
	dropped atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewOutbox(capacity int, logger zerolog.Logger) *Outbox {
	if capacity <= 0 {
		capacity = 256
	}
	o := &Outbox{
		jobs: make(chan outboxJob, capacity),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		log:  logger.With().Str("component", "outbox").Logger(),
	}
	go o.loop()
	return o
}

// Enqueue queues fn and reports whether it was accepted.
func (o *Outbox) Enqueue(name string, fn func(ctx context.Context)) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.dropped.Add(1)
		o.log.Error().Str("job", name).Msg("outbox closed; side effect dropped")
		return false
	}

	select {
	case o.jobs <- outboxJob{name: name, fn: fn}:
		o.pending.Add(1)
		return true
	default:
		o.dropped.Add(1)
		o.log.Error().Str("job", name).Int("capacity", cap(o.jobs)).Msg("outbox full; side effect dropped")
		return false
	}
}

// Flush blocks until every job enqueued before the call has run.
func (o *Outbox) Flush(ctx context.Context) error {
	marker := outboxJob{name: "flush", done: make(chan struct{})}

	o.mu.RLock()
	if o.closed {
		o.mu.RUnlock()
		return ErrOutboxClosed
	}
	select {
	case o.jobs <- marker:
		o.pending.Add(1)
	case <-ctx.Done():
		o.mu.RUnlock()
		return ctx.Err()
	}
	o.mu.RUnlock()

	select {
	case <-marker.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs what is already queued and stops the worker. Safe to call more
// than once.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.jobs)
		o.mu.Unlock()
	})
	<-o.done
}

// Backlog is the number of queued or running jobs.
func (o *Outbox) Backlog() int { return int(o.pending.Load()) }

func (o *Outbox) Capacity() int { return cap(o.jobs) }

func (o *Outbox) Dropped() int64 { return o.dropped.Load() }

func (o *Outbox) loop() {
	defer close(o.done)

	for j := range o.jobs {
		o.run(j)
		o.pending.Add(-1)
	}
}

func (o *Outbox) run(j outboxJob) {
	if j.done != nil {
		close(j.done)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultJobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("job", j.name).Interface("panic", r).Msg("outbox job panicked")
		}
	}()
	j.fn(ctx)
}
