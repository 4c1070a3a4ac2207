package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

type Stores struct {
	DoorLogs store.DoorLogStore
	Alerts   store.AlertStore
	Settings store.SettingStore
	Audit    store.AuditStore
}

type KernelConfig struct {
	OutboxCapacity  int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Pruner          PrunerConfig

	// Source defaults to a RandomWalk seeded from the clock.
	Source DistanceSource
	Clock  Clock

	// PendingWrites reports writes queued below the outbox, if any.
	PendingWrites   func() int64
	OnBreakerChange func(from, to gobreaker.State)
}

// Kernel is one door instance: controller, sensor, alerts and settings wired
// to a shared outbox and persistence guard. Nothing in it is global, so tests
// can run several side by side.
type Kernel struct {
	Door     *DoorController
	Sensor   *SensorEngine
	Alerts   *AlertEngine
	Settings *SettingsService
	Health   *PersistenceHealth
	Pruner   *AuditPruner
	Stats    *StatsService

	logs   store.DoorLogStore
	guard  *WriteGuard
	outbox *Outbox
	log    zerolog.Logger
}

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// NewKernel builds the kernel and applies the persisted settings.
func NewKernel(ctx context.Context, stores Stores, pub Publisher, cfg KernelConfig, logger zerolog.Logger) (*Kernel, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	if pub == nil {
		pub = NopPublisher
	}

	guard := NewWriteGuard(GuardConfig{
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerTimeout,
		OnStateChange:    cfg.OnBreakerChange,
	}, logger)
	outbox := NewOutbox(cfg.OutboxCapacity, logger)

	alerts, err := NewAlertEngine(ctx, AlertDeps{
		Store:     stores.Alerts,
		Publisher: pub,
		Guard:     guard,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		outbox.Close()
		return nil, err
	}

	door := NewDoorController(DoorDeps{
		Logs:      stores.DoorLogs,
		Alerts:    alerts,
		Publisher: pub,
		Outbox:    outbox,
		Guard:     guard,
		Clock:     clock,
		Logger:    logger,
	}, DefaultAutoClose)

	sensor := NewSensorEngine(SensorDeps{
		Source:    cfg.Source,
		Door:      door,
		Alerts:    alerts,
		Publisher: pub,
		Clock:     clock,
		Logger:    logger,
	})

	settings := NewSettingsService(SettingsDeps{
		Store:  stores.Settings,
		Sensor: sensor,
		Door:   door,
		Alerts: alerts,
		Guard:  guard,
		Clock:  clock,
		Logger: logger,
	})
	if err := settings.Apply(ctx); err != nil {
		outbox.Close()
		return nil, fmt.Errorf("apply settings: %w", err)
	}

	health := NewPersistenceHealth(guard, outbox, cfg.PendingWrites)

	return &Kernel{
		Door:     door,
		Sensor:   sensor,
		Alerts:   alerts,
		Settings: settings,
		Health:   health,
		Pruner:   NewAuditPruner(stores.Audit, cfg.Pruner, clock, logger),
		Stats:    NewStatsService(stores.DoorLogs, stores.Alerts, sensor, health, clock),
		logs:     stores.DoorLogs,
		guard:    guard,
		outbox:   outbox,
		log:      logger.With().Str("component", "kernel").Logger(),
	}, nil
}

// DoorControl handles a manual open/close request.
func (k *Kernel) DoorControl(_ context.Context, action string) (types.DoorState, error) {
	if err := Validate(types.DoorControlRequest{Action: action}); err != nil {
		return types.DoorState{}, err
	}
	if action == "open" {
		return k.Door.Open(types.TriggerManual), nil
	}
	return k.Door.Close(types.TriggerManual), nil
}

func (k *Kernel) AcknowledgeAlert(ctx context.Context, id int64) (bool, error) {
	return k.Alerts.Acknowledge(ctx, id)
}

func (k *Kernel) DoorStatus() types.DoorState { return k.Door.Status() }

// RecentLogs returns the newest door log entries. A zero limit means
// DefaultLogLimit.
func (k *Kernel) RecentLogs(ctx context.Context, limit int) ([]types.DoorLogEntry, error) {
	if limit == 0 {
		limit = DefaultLogLimit
	}
	if limit < 0 || limit > MaxLogLimit {
		return nil, validationError("limit must be between 1 and %d", MaxLogLimit)
	}
	return k.logs.RecentDoorLogs(ctx, limit)
}

// Shutdown stops the door's auto-close timer, drains queued side effects
// and stops the outbox.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.Door.Stop()
	err := k.outbox.Flush(ctx)
	k.outbox.Close()
	if err != nil {
		k.log.Warn().Err(err).Int("backlog", k.outbox.Backlog()).Msg("shutdown before side effects drained")
	}
	return err
}
