// Package telemetry reports detection results to an external collector
// without ever blocking the detection path.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Identity tags every reading with who and what produced it.
type Identity struct {
	UserID     string `json:"user_id,omitempty"`
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id,omitempty"`
	SessionID  string `json:"session_id"`
}

// NewIdentity starts a new session for the given user and device.
func NewIdentity(userID, deviceType, deviceID string) Identity {
	return Identity{
		UserID:     userID,
		DeviceType: deviceType,
		DeviceID:   deviceID,
		SessionID:  uuid.NewString(),
	}
}

// Reading is one telemetry record. Activity is the label the user is
// collecting data for, if any. Values holds the per-axis signal of
// accelerometer samples.
type Reading struct {
	Identity

	Kind        string    `json:"kind"`
	Activity    string    `json:"activity,omitempty"`
	TimestampMs int64     `json:"timestamp_ms,omitempty"`
	Value       float64   `json:"value"`
	Values      []float64 `json:"values,omitempty"`
	Count       int       `json:"count,omitempty"`
	WarmingUp   bool      `json:"warming_up,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
