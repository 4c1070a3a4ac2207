package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// AuditStore keeps a durable copy of broadcast events.
type AuditStore interface {
	RecordEvent(ctx context.Context, ev types.AuditEvent) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
