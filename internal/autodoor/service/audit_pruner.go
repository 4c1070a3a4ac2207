package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
)

// AuditPruner periodically deletes broadcast audit rows older than a
// configurable retention period. A retention of 0 disables it. Alerts are
// never pruned.
type AuditPruner struct {
	audit     store.AuditStore
	retention time.Duration
	interval  time.Duration
	clock     Clock
	log       zerolog.Logger
}

// PrunerConfig holds the parameters for NewAuditPruner.
type PrunerConfig struct {
	// RetentionHours is how many hours of audit history to keep.
	RetentionHours int

	// IntervalMinutes is how often the pruner runs. Defaults to 60.
	IntervalMinutes int
}

func NewAuditPruner(audit store.AuditStore, cfg PrunerConfig, clock Clock, logger zerolog.Logger) *AuditPruner {
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &AuditPruner{
		audit:     audit,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
		interval:  interval,
		clock:     clock,
		log:       logger.With().Str("component", "pruner").Logger(),
	}
}

// Serve prunes once immediately, then on every interval until ctx is done.
// With retention 0 it only waits for ctx.
func (p *AuditPruner) Serve(ctx context.Context) error {
	if p.retention <= 0 {
		p.log.Info().Msg("audit retention disabled; pruner idle")
		<-ctx.Done()
		return nil
	}

	p.log.Info().
		Dur("retention", p.retention).
		Dur("interval", p.interval).
		Msg("pruner started")

	// Clean up any backlog left from before the restart.
	p.Prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pass and returns how many audit rows it removed.
func (p *AuditPruner) Prune(ctx context.Context) int64 {
	if p.retention <= 0 {
		return 0
	}

	cutoff := p.clock.Now().UTC().Add(-p.retention)
	n, err := p.audit.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error().Err(err).Msg("audit prune failed")
		return 0
	}
	if n > 0 {
		p.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("audit rows pruned")
	}
	return n
}
