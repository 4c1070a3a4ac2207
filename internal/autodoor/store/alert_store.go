package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

type AlertCounts struct {
	Total          int
	Unacknowledged int
	High           int
}

// AlertStore persists alerts. Ids are assigned by the caller; InsertAlert
// must store the given id verbatim. Alerts are never deleted.
//
// The store also keeps an id high-water mark so ids handed out but never
// inserted are not reused after a restart.
type AlertStore interface {
	InsertAlert(ctx context.Context, a types.Alert) error
	// AcknowledgeAlert returns changed=false when the alert was already
	// acknowledged and ErrNotFound when the id does not exist.
	AcknowledgeAlert(ctx context.Context, id int64) (changed bool, err error)
	ListAlerts(ctx context.Context, f types.AlertFilter) ([]types.Alert, int, error)
	// AlertIDHighWater is the larger of the highest stored id and the
	// highest reserved id.
	AlertIDHighWater(ctx context.Context) (int64, error)
	// ReserveAlertIDs raises the reserved high-water mark to through. It
	// never lowers it.
	ReserveAlertIDs(ctx context.Context, through int64) error
	CountAlertsSince(ctx context.Context, since time.Time) (AlertCounts, error)
}
