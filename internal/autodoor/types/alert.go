package types

import "time"

type AlertType string

const (
	AlertDoorOperation AlertType = "door_operation"
	AlertHumanDetected AlertType = "human_detected"
	AlertSystemError   AlertType = "system_error"
	AlertMaintenance   AlertType = "maintenance"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertDoorOperation, AlertHumanDetected, AlertSystemError, AlertMaintenance:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Alert is append-only; only Acknowledged ever changes after insert.
// Persisted is false when the durable write failed and the alert exists
// only in the broadcast stream.
type Alert struct {
	ID           int64      `json:"id"`
	Type         AlertType  `json:"type"`
	Message      string     `json:"message"`
	Priority     Priority   `json:"priority"`
	Acknowledged bool       `json:"acknowledged"`
	Timestamp    time.Time  `json:"timestamp"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Persisted    bool       `json:"persisted"`
}

// AlertFilter selects a page of alerts, newest first.
type AlertFilter struct {
	Type         AlertType `validate:"omitempty,oneof=door_operation human_detected system_error maintenance"`
	Acknowledged *bool
	Page         int `validate:"min=1"`
	Limit        int `validate:"min=1,max=100"`
}

// AlertPage is the list response with its pagination block.
type AlertPage struct {
	Alerts     []Alert    `json:"alerts"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type AcknowledgeRequest struct {
	AlertID int64 `json:"alertId" validate:"required,gt=0"`
}

type AlertAcknowledged struct {
	AlertID int64 `json:"alertId"`
}
