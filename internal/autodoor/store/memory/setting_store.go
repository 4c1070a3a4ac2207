package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

type SettingStore struct {
	faults
	mu   sync.RWMutex
	rows map[string]types.Setting
}

// NewSettingStore returns a store seeded with types.DefaultSettings.
func NewSettingStore() *SettingStore {
	now := time.Now().UTC()
	rows := make(map[string]types.Setting)
	for _, s := range types.DefaultSettings() {
		s.UpdatedAt = now
		rows[s.Key] = s
	}
	return &SettingStore{rows: rows}
}

func (s *SettingStore) GetSetting(_ context.Context, key string) (types.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[key]
	if !ok {
		return types.Setting{}, store.ErrNotFound
	}
	return row, nil
}

func (s *SettingStore) ListSettings(_ context.Context) ([]types.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Setting, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *SettingStore) PutSetting(_ context.Context, in types.Setting) error {
	if err := s.check("PutSetting"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[in.Key]
	if !ok {
		return store.ErrNotFound
	}
	row.Value = in.Value
	row.UpdatedAt = in.UpdatedAt
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	s.rows[in.Key] = row
	return nil
}
