package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
	dbpkg "github.com/BrandonDHaskell/autodoor/internal/db"
)

type DoorLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewDoorLogStore(db *sql.DB, writer *dbpkg.Worker) *DoorLogStore {
	return &DoorLogStore{db: db, writer: writer}
}

func (s *DoorLogStore) AppendDoorLog(ctx context.Context, e types.DoorLogEntry) (int64, error) {
	var distance any
	if e.SensorDistance != nil {
		distance = *e.SensorDistance
	}
	createdMs := toMs(e.Timestamp)

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO door_logs(action, sensor_distance, trigger_type, created_at_ms)
VALUES (?, ?, ?, ?);
`, string(e.Action), distance, string(e.TriggerType), createdMs)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, store.Transient("AppendDoorLog", err)
	}
	return id, nil
}

func (s *DoorLogStore) RecentDoorLogs(ctx context.Context, limit int) ([]types.DoorLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, action, sensor_distance, trigger_type, created_at_ms
FROM door_logs
ORDER BY created_at_ms DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentDoorLogs query: %w", err)
	}
	defer rows.Close()

	out := make([]types.DoorLogEntry, 0, limit)
	for rows.Next() {
		var (
			e         types.DoorLogEntry
			action    string
			trigger   string
			distance  sql.NullFloat64
			createdMs int64
		)
		if err := rows.Scan(&e.ID, &action, &distance, &trigger, &createdMs); err != nil {
			return nil, fmt.Errorf("RecentDoorLogs scan: %w", err)
		}
		e.Action = types.DoorAction(action)
		e.TriggerType = types.Trigger(trigger)
		e.Timestamp = fromMs(createdMs)
		if distance.Valid {
			d := distance.Float64
			e.SensorDistance = &d
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DoorLogStore) CountDoorLogsSince(ctx context.Context, since time.Time) (store.DoorLogCounts, error) {
	var (
		c    store.DoorLogCounts
		last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN action = 'opened' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN action = 'closed' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN trigger_type = 'automatic' THEN 1 ELSE 0 END), 0),
  MAX(created_at_ms)
FROM door_logs
WHERE created_at_ms >= ?;
`, since.UTC().UnixMilli()).Scan(&c.Total, &c.Opened, &c.Closed, &c.Automatic, &last)
	if err != nil {
		return store.DoorLogCounts{}, fmt.Errorf("CountDoorLogsSince: %w", err)
	}
	c.LastActivity = timePtr(last)
	return c, nil
}
