package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlitestore "github.com/BrandonDHaskell/autodoor/internal/autodoor/store/sqlite"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// AppendDoorLog: column values
// ═══════════════════════════════════════════════════════════════════════════

func TestDoorLogStore_AppendDoorLog_ColumnsCorrect(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDoorLogStore(conn, w)
	ctx := context.Background()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	dist := 87.5

	id, err := ds.AppendDoorLog(ctx, types.DoorLogEntry{
		Action:         types.ActionOpened,
		SensorDistance: &dist,
		TriggerType:    types.TriggerAutomatic,
		Timestamp:      now,
	})
	if err != nil {
		t.Fatalf("AppendDoorLog: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	var (
		action    string
		trigger   string
		distance  sql.NullFloat64
		createdMs int64
	)
	err = conn.QueryRowContext(ctx, `
SELECT action, trigger_type, sensor_distance, created_at_ms
FROM door_logs WHERE id = ?`, id).Scan(&action, &trigger, &distance, &createdMs)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if action != "opened" {
		t.Errorf("expected action=opened, got %q", action)
	}
	if trigger != "automatic" {
		t.Errorf("expected trigger_type=automatic, got %q", trigger)
	}
	if !distance.Valid || distance.Float64 != 87.5 {
		t.Errorf("expected sensor_distance=87.5, got %v", distance)
	}
	if createdMs != now.UnixMilli() {
		t.Errorf("expected created_at_ms=%d, got %d", now.UnixMilli(), createdMs)
	}
}

func TestDoorLogStore_AppendDoorLog_NullDistance(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDoorLogStore(conn, w)
	ctx := context.Background()

	id, err := ds.AppendDoorLog(ctx, types.DoorLogEntry{
		Action:      types.ActionClosed,
		TriggerType: types.TriggerManual,
	})
	if err != nil {
		t.Fatalf("AppendDoorLog: %v", err)
	}

	var distance sql.NullFloat64
	if err := conn.QueryRowContext(ctx,
		`SELECT sensor_distance FROM door_logs WHERE id = ?`, id).Scan(&distance); err != nil {
		t.Fatalf("query: %v", err)
	}
	if distance.Valid {
		t.Error("expected sensor_distance to be NULL for a manual close")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// RecentDoorLogs / CountDoorLogsSince
// ═══════════════════════════════════════════════════════════════════════════

func TestDoorLogStore_RecentDoorLogs_NewestFirstWithLimit(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDoorLogStore(conn, w)
	ctx := context.Background()

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		action := types.ActionOpened
		if i%2 == 1 {
			action = types.ActionClosed
		}
		if _, err := ds.AppendDoorLog(ctx, types.DoorLogEntry{
			Action:      action,
			TriggerType: types.TriggerManual,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("AppendDoorLog %d: %v", i, err)
		}
	}

	logs, err := ds.RecentDoorLogs(ctx, 3)
	if err != nil {
		t.Fatalf("RecentDoorLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(logs))
	}
	if !logs[0].Timestamp.Equal(base.Add(3 * time.Second)) {
		t.Errorf("expected newest entry first, got %v", logs[0].Timestamp)
	}
	if logs[0].Action != types.ActionClosed {
		t.Errorf("expected newest action=closed, got %q", logs[0].Action)
	}
}

func TestDoorLogStore_CountDoorLogsSince(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ds := sqlitestore.NewDoorLogStore(conn, w)
	ctx := context.Background()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	entries := []types.DoorLogEntry{
		{Action: types.ActionOpened, TriggerType: types.TriggerManual, Timestamp: now.Add(-48 * time.Hour)},
		{Action: types.ActionOpened, TriggerType: types.TriggerAutomatic, Timestamp: now.Add(-2 * time.Hour)},
		{Action: types.ActionClosed, TriggerType: types.TriggerTimeout, Timestamp: now.Add(-time.Hour)},
	}
	for _, e := range entries {
		if _, err := ds.AppendDoorLog(ctx, e); err != nil {
			t.Fatalf("AppendDoorLog: %v", err)
		}
	}

	c, err := ds.CountDoorLogsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountDoorLogsSince: %v", err)
	}
	if c.Total != 2 || c.Opened != 1 || c.Closed != 1 || c.Automatic != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
	if c.LastActivity == nil || !c.LastActivity.Equal(now.Add(-time.Hour)) {
		t.Errorf("expected last_activity=%v, got %v", now.Add(-time.Hour), c.LastActivity)
	}
}
