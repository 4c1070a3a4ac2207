package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// SeedDefaults makes sure every known setting row exists. Existing values are
// left alone so operator changes survive restarts.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	for _, s := range types.DefaultSettings() {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO settings(key, value, description, updated_at_ms)
VALUES (?, ?, ?, ?);`, s.Key, s.Value, s.Description, now); err != nil {
			return fmt.Errorf("seed setting %s: %w", s.Key, err)
		}
	}

	return nil
}
