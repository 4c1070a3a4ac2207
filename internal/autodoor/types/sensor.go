package types

import "time"

// SensorReading is produced once per tick. Threshold is the value in effect
// when the reading was generated.
type SensorReading struct {
	Distance  float64   `json:"distance"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}
