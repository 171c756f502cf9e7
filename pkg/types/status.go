package types

import (
	"time"

	"github.com/charlie0129/battplug/pkg/calibration"
)

// ControlPhase is what the daemon's control task is doing.
type ControlPhase string

const (
	ControlStarting    ControlPhase = "starting"
	ControlCalibrating ControlPhase = "calibrating"
	ControlMonitoring  ControlPhase = "monitoring"
	ControlEmergency   ControlPhase = "emergency"
	ControlStopped     ControlPhase = "stopped"
)

// ModeInfo describes the active mode and its expiry.
type ModeInfo struct {
	Mode             string    `json:"mode"`
	Expires          bool      `json:"expires"`
	RemainingSeconds int       `json:"remaining_seconds,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
}

// ModeRequest is the body of PUT /mode. Duration uses Go syntax ("90m");
// empty means no expiry.
type ModeRequest struct {
	Mode     string `json:"mode"`
	Duration string `json:"duration,omitempty"`
}

// ThresholdsRequest is the body of PUT /thresholds.
type ThresholdsRequest struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// VigilanceInfo reports whether the monitor is watching for an unexpected
// discharge in the low band.
type VigilanceInfo struct {
	Active bool      `json:"active"`
	Since  time.Time `json:"since,omitempty"`
}

// Status is returned by GET /status.
type Status struct {
	Version       string             `json:"version"`
	Phase         ControlPhase       `json:"phase"`
	Mode          ModeInfo           `json:"mode"`
	Battery       BatteryInfo        `json:"battery"`
	Plug          PlugInfo           `json:"plug"`
	Vigilance     VigilanceInfo      `json:"vigilance"`
	LowThreshold  int                `json:"low_threshold"`
	HighThreshold int                `json:"high_threshold"`
	Calibration   calibration.Status `json:"calibration"`
	UpdatedAt     time.Time          `json:"updated_at,omitempty"`
}
