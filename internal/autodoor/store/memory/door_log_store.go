package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// DoorLogStore is an in-memory append-only door log for tests and dev.
type DoorLogStore struct {
	faults
	mu      sync.Mutex
	entries []types.DoorLogEntry
}

func NewDoorLogStore() *DoorLogStore {
	return &DoorLogStore{}
}

func (s *DoorLogStore) AppendDoorLog(_ context.Context, e types.DoorLogEntry) (int64, error) {
	if err := s.check("AppendDoorLog"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return e.ID, nil
}

func (s *DoorLogStore) RecentDoorLogs(_ context.Context, limit int) ([]types.DoorLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DoorLogEntry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *DoorLogStore) CountDoorLogsSince(_ context.Context, since time.Time) (store.DoorLogCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c store.DoorLogCounts
	for _, e := range s.entries {
		if e.Timestamp.Before(since) {
			continue
		}
		c.Total++
		switch e.Action {
		case types.ActionOpened:
			c.Opened++
		case types.ActionClosed:
			c.Closed++
		}
		if e.TriggerType == types.TriggerAutomatic {
			c.Automatic++
		}
		if c.LastActivity == nil || e.Timestamp.After(*c.LastActivity) {
			t := e.Timestamp
			c.LastActivity = &t
		}
	}
	return c, nil
}

// Entries returns a copy of all entries in insertion order. Test-only helper.
func (s *DoorLogStore) Entries() []types.DoorLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DoorLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
