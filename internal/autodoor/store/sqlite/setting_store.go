package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
	dbpkg "github.com/BrandonDHaskell/autodoor/internal/db"
)

type SettingStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSettingStore(db *sql.DB, writer *dbpkg.Worker) *SettingStore {
	return &SettingStore{db: db, writer: writer}
}

func (s *SettingStore) GetSetting(ctx context.Context, key string) (types.Setting, error) {
	key = strings.TrimSpace(key)

	var (
		row       types.Setting
		updatedMs int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT key, value, description, updated_at_ms
FROM settings
WHERE key = ?;
`, key).Scan(&row.Key, &row.Value, &row.Description, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Setting{}, store.ErrNotFound
	}
	if err != nil {
		return types.Setting{}, fmt.Errorf("GetSetting query: %w", err)
	}
	row.UpdatedAt = fromMs(updatedMs)
	return row, nil
}

func (s *SettingStore) ListSettings(ctx context.Context) ([]types.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT key, value, description, updated_at_ms
FROM settings
ORDER BY key;
`)
	if err != nil {
		return nil, fmt.Errorf("ListSettings query: %w", err)
	}
	defer rows.Close()

	var out []types.Setting
	for rows.Next() {
		var (
			row       types.Setting
			updatedMs int64
		)
		if err := rows.Scan(&row.Key, &row.Value, &row.Description, &updatedMs); err != nil {
			return nil, fmt.Errorf("ListSettings scan: %w", err)
		}
		row.UpdatedAt = fromMs(updatedMs)
		out = append(out, row)
	}
	return out, rows.Err()
}

// PutSetting updates the value of an existing row. Rows are only ever
// created by db.SeedDefaults.
func (s *SettingStore) PutSetting(ctx context.Context, in types.Setting) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE settings
SET value = ?,
    updated_at_ms = ?
WHERE key = ?;
`, in.Value, toMs(in.UpdatedAt), in.Key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return store.Transient("PutSetting", err)
}
