package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
)

// GuardConfig tunes the persistence circuit breaker.
type GuardConfig struct {
	// FailureThreshold is the number of consecutive failed writes that opens
	// the breaker. Default 3.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before letting a probe
	// write through. Default 10s.
	OpenTimeout time.Duration

	// OnStateChange is called after the logger for every breaker transition.
	OnStateChange func(from, to gobreaker.State)
}

// WriteGuard runs durable writes with one local retry on transient errors
// behind a circuit breaker. The breaker state is the persistence health
// signal; while it is open writes fail fast with store.ErrTransient.
type WriteGuard struct {
	cb       *gobreaker.CircuitBreaker[struct{}]
	log      zerolog.Logger
	failures atomic.Int64
}

func NewWriteGuard(cfg GuardConfig, logger zerolog.Logger) *WriteGuard {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}

	g := &WriteGuard{log: logger.With().Str("component", "persistence").Logger()}
	g.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "persistence",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Only transient store failures count against the breaker; NotFound
		// and validation outcomes are normal answers.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, store.ErrTransient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("persistence breaker state changed")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(from, to)
			}
		},
	})
	return g
}

// Do runs fn, retrying once when it fails with store.ErrTransient.
func (g *WriteGuard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		err := fn(ctx)
		if errors.Is(err, store.ErrTransient) && ctx.Err() == nil {
			g.log.Debug().Err(err).Str("op", op).Msg("retrying durable write")
			err = fn(ctx)
		}
		return struct{}{}, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s: %w: %w", op, store.ErrTransient, err)
	}
	if errors.Is(err, store.ErrTransient) {
		g.failures.Add(1)
	}
	return err
}

// Open reports whether writes are currently being short-circuited.
func (g *WriteGuard) Open() bool { return g.cb.State() == gobreaker.StateOpen }

func (g *WriteGuard) State() string { return g.cb.State().String() }

// Failures is the number of writes that failed after their retry.
func (g *WriteGuard) Failures() int64 { return g.failures.Load() }
