package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	sqlitestore "github.com/BrandonDHaskell/autodoor/internal/autodoor/store/sqlite"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

func insertAlerts(t *testing.T, as *sqlitestore.AlertStore, alerts ...types.Alert) {
	t.Helper()
	for _, a := range alerts {
		if err := as.InsertAlert(context.Background(), a); err != nil {
			t.Fatalf("InsertAlert(%d): %v", a.ID, err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// InsertAlert / AlertIDHighWater / ReserveAlertIDs
// ═══════════════════════════════════════════════════════════════════════════

func TestAlertStore_InsertAlert_KeepsCallerID(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)
	ctx := context.Background()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	insertAlerts(t, as,
		types.Alert{ID: 7, Type: types.AlertDoorOperation, Message: "Door opened manually", Priority: types.PriorityMedium, Timestamp: now},
		types.Alert{ID: 9, Type: types.AlertHumanDetected, Message: "Human detected within range", Priority: types.PriorityMedium, Timestamp: now},
	)

	hw, err := as.AlertIDHighWater(ctx)
	if err != nil {
		t.Fatalf("AlertIDHighWater: %v", err)
	}
	if hw != 9 {
		t.Errorf("expected high-water 9, got %d", hw)
	}
}

func TestAlertStore_AlertIDHighWater_EmptyTable(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)

	hw, err := as.AlertIDHighWater(context.Background())
	if err != nil {
		t.Fatalf("AlertIDHighWater: %v", err)
	}
	if hw != 0 {
		t.Errorf("expected 0 for empty table, got %d", hw)
	}
}

func TestAlertStore_ReserveAlertIDs_OnlyRaises(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)
	ctx := context.Background()

	if err := as.ReserveAlertIDs(ctx, 100); err != nil {
		t.Fatalf("ReserveAlertIDs: %v", err)
	}
	if err := as.ReserveAlertIDs(ctx, 50); err != nil {
		t.Fatalf("ReserveAlertIDs: %v", err)
	}
	hw, err := as.AlertIDHighWater(ctx)
	if err != nil {
		t.Fatalf("AlertIDHighWater: %v", err)
	}
	if hw != 100 {
		t.Errorf("expected reserved mark 100 to survive a lower reservation, got %d", hw)
	}

	// An insert beyond the reservation raises the mark with it.
	insertAlerts(t, as, types.Alert{ID: 150, Type: types.AlertMaintenance, Message: "m", Priority: types.PriorityLow, Timestamp: time.Now()})
	if hw, _ = as.AlertIDHighWater(ctx); hw != 150 {
		t.Errorf("expected 150 after insert, got %d", hw)
	}
}

func TestAlertStore_InsertAlert_DuplicateIDIsTransient(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)

	a := types.Alert{ID: 1, Type: types.AlertMaintenance, Message: "m", Priority: types.PriorityLow}
	insertAlerts(t, as, a)

	err := as.InsertAlert(context.Background(), a)
	if !errors.Is(err, store.ErrTransient) {
		t.Fatalf("expected ErrTransient for duplicate id, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// AcknowledgeAlert
// ═══════════════════════════════════════════════════════════════════════════

func TestAlertStore_AcknowledgeAlert_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)
	ctx := context.Background()

	insertAlerts(t, as, types.Alert{ID: 1, Type: types.AlertDoorOperation, Message: "x", Priority: types.PriorityMedium})

	changed, err := as.AcknowledgeAlert(ctx, 1)
	if err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if !changed {
		t.Error("expected first ack to report changed=true")
	}

	changed, err = as.AcknowledgeAlert(ctx, 1)
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if changed {
		t.Error("expected second ack to report changed=false")
	}
}

func TestAlertStore_AcknowledgeAlert_UnknownID(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)

	_, err := as.AcknowledgeAlert(context.Background(), 404)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ListAlerts: filters and pagination
// ═══════════════════════════════════════════════════════════════════════════

func TestAlertStore_ListAlerts_FiltersAndPages(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)
	ctx := context.Background()

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		typ := types.AlertDoorOperation
		if i%2 == 0 {
			typ = types.AlertHumanDetected
		}
		insertAlerts(t, as, types.Alert{
			ID: i, Type: typ, Message: "m", Priority: types.PriorityMedium,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	if _, err := as.AcknowledgeAlert(ctx, 3); err != nil {
		t.Fatalf("ack: %v", err)
	}

	page, total, err := as.ListAlerts(ctx, types.AlertFilter{Type: types.AlertDoorOperation, Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total=3 door_operation alerts, got %d", total)
	}
	if len(page) != 2 || page[0].ID != 5 || page[1].ID != 3 {
		t.Errorf("expected ids [5 3], got %+v", page)
	}

	unacked := false
	page, total, err = as.ListAlerts(ctx, types.AlertFilter{Acknowledged: &unacked, Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if total != 4 {
		t.Errorf("expected 4 unacknowledged alerts, got %d", total)
	}
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 1 {
		t.Errorf("expected second page ids [2 1], got %+v", page)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// CountAlertsSince
// ═══════════════════════════════════════════════════════════════════════════

func TestAlertStore_CountAlertsSince(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	as := sqlitestore.NewAlertStore(conn, w)
	ctx := context.Background()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	insertAlerts(t, as,
		types.Alert{ID: 1, Type: types.AlertDoorOperation, Message: "old", Priority: types.PriorityLow, Timestamp: now.Add(-2 * time.Hour)},
		types.Alert{ID: 2, Type: types.AlertDoorOperation, Message: "recent", Priority: types.PriorityLow, Timestamp: now},
		types.Alert{ID: 3, Type: types.AlertHumanDetected, Message: "urgent", Priority: types.PriorityHigh, Timestamp: now},
	)

	c, err := as.CountAlertsSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountAlertsSince: %v", err)
	}
	if c.Total != 2 || c.Unacknowledged != 2 || c.High != 1 {
		t.Errorf("unexpected counts: %+v", c)
	}
}
