package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
	dbpkg "github.com/BrandonDHaskell/autodoor/internal/db"
)

type AlertStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAlertStore(db *sql.DB, writer *dbpkg.Worker) *AlertStore {
	return &AlertStore{db: db, writer: writer}
}

func (s *AlertStore) InsertAlert(ctx context.Context, a types.Alert) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO alerts(id, type, message, priority, acknowledged, created_at_ms, expires_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, a.ID, string(a.Type), a.Message, string(a.Priority), boolInt(a.Acknowledged),
			toMs(a.Timestamp), nullableMs(a.ExpiresAt)); err != nil {
			return err
		}
		return raiseReserved(ctx, tx, a.ID)
	})
	return store.Transient("InsertAlert", err)
}

func (s *AlertStore) AcknowledgeAlert(ctx context.Context, id int64) (bool, error) {
	var changed bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var acked int
		err := tx.QueryRowContext(ctx, `SELECT acknowledged FROM alerts WHERE id = ?;`, id).Scan(&acked)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		if acked == 1 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE alerts SET acknowledged = 1 WHERE id = ?;`, id); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err != nil {
		return false, store.Transient("AcknowledgeAlert", err)
	}
	return changed, nil
}

func (s *AlertStore) ListAlerts(ctx context.Context, f types.AlertFilter) ([]types.Alert, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Acknowledged != nil {
		where = append(where, "acknowledged = ?")
		args = append(args, boolInt(*f.Acknowledged))
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts "+clause+";", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListAlerts count: %w", err)
	}

	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, type, message, priority, acknowledged, created_at_ms, expires_at_ms
FROM alerts `+clause+`
ORDER BY created_at_ms DESC, id DESC
LIMIT ? OFFSET ?;`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListAlerts query: %w", err)
	}
	defer rows.Close()

	out := make([]types.Alert, 0, f.Limit)
	for rows.Next() {
		var (
			a             types.Alert
			typ, priority string
			acked         int
			createdMs     int64
			expiresMs     sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &typ, &a.Message, &priority, &acked, &createdMs, &expiresMs); err != nil {
			return nil, 0, fmt.Errorf("ListAlerts scan: %w", err)
		}
		a.Type = types.AlertType(typ)
		a.Priority = types.Priority(priority)
		a.Acknowledged = acked == 1
		a.Timestamp = fromMs(createdMs)
		a.ExpiresAt = timePtr(expiresMs)
		a.Persisted = true
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (s *AlertStore) AlertIDHighWater(ctx context.Context) (int64, error) {
	var hw int64
	err := s.db.QueryRowContext(ctx, `
SELECT MAX(
  COALESCE((SELECT MAX(id) FROM alerts), 0),
  COALESCE((SELECT reserved FROM alert_sequence WHERE id = 1), 0)
);`).Scan(&hw)
	if err != nil {
		return 0, fmt.Errorf("AlertIDHighWater: %w", err)
	}
	return hw, nil
}

func (s *AlertStore) ReserveAlertIDs(ctx context.Context, through int64) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return raiseReserved(ctx, tx, through)
	})
	return store.Transient("ReserveAlertIDs", err)
}

func raiseReserved(ctx context.Context, tx *sql.Tx, through int64) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO alert_sequence(id, reserved) VALUES (1, ?)
ON CONFLICT(id) DO UPDATE SET reserved = MAX(reserved, excluded.reserved);
`, through)
	return err
}

func (s *AlertStore) CountAlertsSince(ctx context.Context, since time.Time) (store.AlertCounts, error) {
	var c store.AlertCounts
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN acknowledged = 0 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN priority = 'high' THEN 1 ELSE 0 END), 0)
FROM alerts
WHERE created_at_ms >= ?;
`, since.UTC().UnixMilli()).Scan(&c.Total, &c.Unacknowledged, &c.High)
	if err != nil {
		return store.AlertCounts{}, fmt.Errorf("CountAlertsSince: %w", err)
	}
	return c, nil
}
