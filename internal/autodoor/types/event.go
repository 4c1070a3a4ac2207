package types

import "time"

// Broadcast event names.
const (
	EventDoorStatusUpdate     = "door:status-update"
	EventSensorDistanceUpdate = "sensor:distance-update"
	EventAlertNew             = "alert:new"
	EventAlertAcknowledged    = "alert:acknowledged"
)

// Inbound socket actions.
const (
	ActionDoorControl      = "door:control"
	ActionAlertAcknowledge = "alert:acknowledge"
)

// AuditEvent is a durable copy of a broadcast event.
type AuditEvent struct {
	Event       string
	Payload     []byte
	PublishedAt time.Time
}

// Stats mirrors GET /api/stats: 24h door and alert aggregates plus a system block.
type Stats struct {
	Door   DoorStats   `json:"door"`
	Alerts AlertStats  `json:"alerts"`
	System SystemStats `json:"system"`
}

type DoorStats struct {
	TotalOperations int        `json:"total_operations"`
	OpenCount       int        `json:"open_count"`
	CloseCount      int        `json:"close_count"`
	AutomaticCount  int        `json:"automatic_count"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
}

type AlertStats struct {
	TotalAlerts    int `json:"total_alerts"`
	Unacknowledged int `json:"unacknowledged"`
	HighPriority   int `json:"high_priority"`
}

type SystemStats struct {
	UptimeSeconds      float64 `json:"uptime"`
	SensorActive       bool    `json:"sensorActive"`
	CurrentThreshold   float64 `json:"currentThreshold"`
	PersistenceHealthy bool    `json:"persistenceHealthy"`
	PendingWrites      int     `json:"pendingWrites"`
}
