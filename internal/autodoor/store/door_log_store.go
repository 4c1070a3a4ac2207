package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// DoorLogCounts aggregates door operations since a cutoff.
type DoorLogCounts struct {
	Total        int
	Opened       int
	Closed       int
	Automatic    int
	LastActivity *time.Time
}

// DoorLogStore persists door transitions as an append-only log.
type DoorLogStore interface {
	AppendDoorLog(ctx context.Context, entry types.DoorLogEntry) (int64, error)
	RecentDoorLogs(ctx context.Context, limit int) ([]types.DoorLogEntry, error)
	CountDoorLogsSince(ctx context.Context, since time.Time) (DoorLogCounts, error)
}
