package types

import "time"

type DoorStatus string

const (
	DoorOpen   DoorStatus = "open"
	DoorClosed DoorStatus = "closed"
)

// Trigger is the cause recorded for a door transition.
type Trigger string

const (
	TriggerNone      Trigger = ""
	TriggerManual    Trigger = "manual"
	TriggerAutomatic Trigger = "automatic"
	TriggerTimeout   Trigger = "timeout"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerAutomatic, TriggerTimeout:
		return true
	}
	return false
}

// DoorState is a snapshot of the door. AutoCloseDeadline is non-nil iff
// Status is DoorOpen.
type DoorState struct {
	Status            DoorStatus `json:"status"`
	LastUpdated       time.Time  `json:"timestamp"`
	Trigger           Trigger    `json:"trigger,omitempty"`
	AutoCloseDeadline *time.Time `json:"autoCloseDeadline,omitempty"`
	AutoCloseSeconds  int        `json:"autoCloseTimer"`
}

type DoorAction string

const (
	ActionOpened DoorAction = "opened"
	ActionClosed DoorAction = "closed"
)

// DoorLogEntry is one row of the append-only door operation log.
type DoorLogEntry struct {
	ID             int64      `json:"id"`
	Action         DoorAction `json:"action"`
	SensorDistance *float64   `json:"sensor_distance,omitempty"`
	TriggerType    Trigger    `json:"trigger_type"`
	Timestamp      time.Time  `json:"timestamp"`
}

// DoorControlRequest is the body of POST /api/door/control and the payload
// of the door:control socket action.
type DoorControlRequest struct {
	Action string `json:"action" validate:"required,oneof=open close"`
}
