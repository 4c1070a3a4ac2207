package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// AuditStore is an in-memory append-only log of broadcast events.
type AuditStore struct {
	faults
	mu     sync.Mutex
	events []types.AuditEvent
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) RecordEvent(_ context.Context, ev types.AuditEvent) error {
	if err := s.check("RecordEvent"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *AuditStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.PublishedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all recorded events. Test-only helper.
func (s *AuditStore) Events() []types.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}
