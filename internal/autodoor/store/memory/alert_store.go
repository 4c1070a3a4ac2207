package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

type AlertStore struct {
	faults
	mu       sync.Mutex
	alerts   map[int64]types.Alert
	reserved int64
}

func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[int64]types.Alert)}
}

func (s *AlertStore) InsertAlert(_ context.Context, a types.Alert) error {
	if err := s.check("InsertAlert"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Persisted = true
	s.alerts[a.ID] = a
	s.reserved = max(s.reserved, a.ID)
	return nil
}

func (s *AlertStore) AcknowledgeAlert(_ context.Context, id int64) (bool, error) {
	if err := s.check("AcknowledgeAlert"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if a.Acknowledged {
		return false, nil
	}
	a.Acknowledged = true
	s.alerts[id] = a
	return true, nil
}

func (s *AlertStore) ListAlerts(_ context.Context, f types.AlertFilter) ([]types.Alert, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []types.Alert
	for _, a := range s.alerts {
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return []types.Alert{}, total, nil
	}
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (s *AlertStore) AlertIDHighWater(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hw := s.reserved
	for id := range s.alerts {
		hw = max(hw, id)
	}
	return hw, nil
}

func (s *AlertStore) ReserveAlertIDs(_ context.Context, through int64) error {
	if err := s.check("ReserveAlertIDs"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved = max(s.reserved, through)
	return nil
}

func (s *AlertStore) CountAlertsSince(_ context.Context, since time.Time) (store.AlertCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c store.AlertCounts
	for _, a := range s.alerts {
		if a.Timestamp.Before(since) {
			continue
		}
		c.Total++
		if !a.Acknowledged {
			c.Unacknowledged++
		}
		if a.Priority == types.PriorityHigh {
			c.High++
		}
	}
	return c, nil
}

// Alerts returns every stored alert ordered by id. Test-only helper.
func (s *AlertStore) Alerts() []types.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
