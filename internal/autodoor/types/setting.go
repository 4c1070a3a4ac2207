package types

import "time"

const (
	SettingDetectionThreshold   = "detection_threshold"
	SettingAutoCloseTimer       = "auto_close_timer"
	SettingSensorUpdateInterval = "sensor_update_interval"
	SettingAlertSoundEnabled    = "alert_sound_enabled"
	SettingNotificationsEnabled = "notifications_enabled"
)

type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SettingUpdateRequest struct {
	Value string `json:"value" validate:"required"`
}

// DefaultSettings lists the rows that must exist after initialisation.
func DefaultSettings() []Setting {
	return []Setting{
		{Key: SettingDetectionThreshold, Value: "200", Description: "Detection range in cm"},
		{Key: SettingAutoCloseTimer, Value: "30", Description: "Auto-close timer in seconds"},
		{Key: SettingAlertSoundEnabled, Value: "true", Description: "Enable alert sounds"},
		{Key: SettingNotificationsEnabled, Value: "true", Description: "Enable browser notifications"},
		{Key: SettingSensorUpdateInterval, Value: "500", Description: "Sensor update interval in ms"},
	}
}
