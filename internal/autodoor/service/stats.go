package service

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

const statsWindow = 24 * time.Hour

// StatsService assembles the GET /api/stats payload.
type StatsService struct {
	logs    store.DoorLogStore
	alerts  store.AlertStore
	sensor  *SensorEngine
	health  *PersistenceHealth
	clock   Clock
	started time.Time
}

func NewStatsService(logs store.DoorLogStore, alerts store.AlertStore, sensor *SensorEngine, health *PersistenceHealth, clock Clock) *StatsService {
	if clock == nil {
		clock = SystemClock()
	}
	return &StatsService{
		logs:    logs,
		alerts:  alerts,
		sensor:  sensor,
		health:  health,
		clock:   clock,
		started: clock.Now(),
	}
}

func (s *StatsService) Snapshot(ctx context.Context) (types.Stats, error) {
	now := s.clock.Now()
	since := now.Add(-statsWindow)

	dc, err := s.logs.CountDoorLogsSince(ctx, since)
	if err != nil {
		return types.Stats{}, err
	}
	ac, err := s.alerts.CountAlertsSince(ctx, since)
	if err != nil {
		return types.Stats{}, err
	}
	report := s.health.Report()

	return types.Stats{
		Door: types.DoorStats{
			TotalOperations: dc.Total,
			OpenCount:       dc.Opened,
			CloseCount:      dc.Closed,
			AutomaticCount:  dc.Automatic,
			LastActivity:    dc.LastActivity,
		},
		Alerts: types.AlertStats{
			TotalAlerts:    ac.Total,
			Unacknowledged: ac.Unacknowledged,
			HighPriority:   ac.High,
		},
		System: types.SystemStats{
			UptimeSeconds:      now.Sub(s.started).Seconds(),
			SensorActive:       s.sensor.Running(),
			CurrentThreshold:   s.sensor.Threshold(),
			PersistenceHealthy: report.Healthy,
			PendingWrites:      report.Backlog + int(report.PendingWrites),
		},
	}, nil
}
