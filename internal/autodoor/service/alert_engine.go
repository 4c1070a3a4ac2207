package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

const (
	DefaultAlertPageLimit = 20
	MaxAlertPageLimit     = 100

	// AlertIDBlock is how many ids are reserved durably at a time.
	AlertIDBlock = 100
)

// AlertRecorder is what the door controller and sensor engine need from the
// alert engine.
type AlertRecorder interface {
	Record(ctx context.Context, typ types.AlertType, message string, priority types.Priority) (types.Alert, error)
}

type AlertDeps struct {
	Store     store.AlertStore
	Publisher Publisher
	Guard     *WriteGuard
	Clock     Clock
	Logger    zerolog.Logger
}

// AlertEngine owns alert creation and the acknowledgement transition.
type AlertEngine struct {
	store store.AlertStore
	pub   Publisher
	guard *WriteGuard
	clock Clock
	log   zerolog.Logger

	idMu     sync.Mutex
	lastID   int64
	reserved int64
}

// NewAlertEngine seeds the id counter from the store's high-water mark and
// reserves the next block of ids, so ids stay unique across restarts even
// for alerts that were published but never stored.
func NewAlertEngine(ctx context.Context, deps AlertDeps) (*AlertEngine, error) {
	hw, err := deps.Store.AlertIDHighWater(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed alert ids: %w", err)
	}

	e := &AlertEngine{
		store: deps.Store,
		pub:   deps.Publisher,
		guard: deps.Guard,
		clock: deps.Clock,
		log:   deps.Logger.With().Str("component", "alert_engine").Logger(),
	}
	if e.pub == nil {
		e.pub = NopPublisher
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	e.lastID = hw
	e.reserved = hw
	e.reserve(ctx, hw+AlertIDBlock)
	return e, nil
}

// Record persists a new alert and publishes alert:new. When the durable write
// fails after its retry the alert is still published with Persisted=false and
// the returned error wraps ErrStoreUnavailable.
func (e *AlertEngine) Record(ctx context.Context, typ types.AlertType, message string, priority types.Priority) (types.Alert, error) {
	a := types.Alert{
		ID:        e.nextID(ctx),
		Type:      typ,
		Message:   message,
		Priority:  priority,
		Timestamp: e.clock.Now().UTC(),
	}

	err := e.guard.Do(ctx, "InsertAlert", func(ctx context.Context) error {
		return e.store.InsertAlert(ctx, a)
	})
	a.Persisted = err == nil
	e.pub.Publish(types.EventAlertNew, a)

	if err != nil {
		e.log.Warn().
			Err(err).
			Int64("alert_id", a.ID).
			Str("type", string(a.Type)).
			Msg("alert not persisted; published in-memory only")
		return a, fmt.Errorf("%w: alert %d: %w", ErrStoreUnavailable, a.ID, err)
	}
	return a, nil
}

// Acknowledge marks the alert acknowledged. It reports changed=false when the
// alert was already acknowledged and store.ErrNotFound for unknown ids.
func (e *AlertEngine) Acknowledge(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, store.ErrNotFound
	}

	var changed bool
	err := e.guard.Do(ctx, "AcknowledgeAlert", func(ctx context.Context) error {
		var err error
		changed, err = e.store.AcknowledgeAlert(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}

	if changed {
		e.pub.Publish(types.EventAlertAcknowledged, types.AlertAcknowledged{AlertID: id})
	}
	return changed, nil
}

// List returns one page of alerts, newest first, plus the total match count.
// Zero Page and Limit take their defaults.
func (e *AlertEngine) List(ctx context.Context, f types.AlertFilter) ([]types.Alert, int, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultAlertPageLimit
	}
	if err := Validate(f); err != nil {
		return nil, 0, err
	}
	return e.store.ListAlerts(ctx, f)
}

// Page wraps List with the pagination block the HTTP API returns.
func (e *AlertEngine) Page(ctx context.Context, f types.AlertFilter) (types.AlertPage, error) {
	alerts, total, err := e.List(ctx, f)
	if err != nil {
		return types.AlertPage{}, err
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultAlertPageLimit
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return types.AlertPage{
		Alerts: alerts,
		Pagination: types.Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: (total + f.Limit - 1) / f.Limit,
		},
	}, nil
}

// LastID is the most recently assigned alert id.
func (e *AlertEngine) LastID() int64 {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	return e.lastID
}

// nextID hands out the next id and extends the durable reservation when the
// current block is used up.
func (e *AlertEngine) nextID(ctx context.Context) int64 {
	e.idMu.Lock()
	e.lastID++
	id := e.lastID
	exhausted := id > e.reserved
	e.idMu.Unlock()

	if exhausted {
		e.reserve(ctx, id+AlertIDBlock-1)
	}
	return id
}

// reserve raises the durable high-water mark. A failed reservation is
// retried when the next id is handed out.
func (e *AlertEngine) reserve(ctx context.Context, through int64) {
	err := e.guard.Do(ctx, "ReserveAlertIDs", func(ctx context.Context) error {
		return e.store.ReserveAlertIDs(ctx, through)
	})
	if err != nil {
		e.log.Warn().Err(err).Int64("through", through).Msg("alert id reservation failed")
		return
	}
	e.idMu.Lock()
	e.reserved = max(e.reserved, through)
	e.idMu.Unlock()
}
