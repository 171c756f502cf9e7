package events

import "encoding/json"

// Event names published by the daemon.
const (
	ModeChanged      = "mode.changed"
	Vigilance        = "vigilance"
	CalibrationPhase = "calibration.phase"
	Notification     = "notification"
	Emergency        = "emergency"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

type ModeChangedEvent struct {
	Mode             string `json:"mode"`
	RemainingSeconds int    `json:"remainingSeconds,omitempty"`
	Ts               int64  `json:"ts"`
}

type VigilanceEvent struct {
	Active  bool  `json:"active"`
	Percent int   `json:"percent"`
	Ts      int64 `json:"ts"`
}

type CalibrationPhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Cycle   int    `json:"cycle"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

type NotificationEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

type EmergencyEvent struct {
	Percent        int   `json:"percent"`
	ElapsedSeconds int   `json:"elapsedSeconds"`
	Ts             int64 `json:"ts"`
}

// DecodeAs unmarshals the event payload into T. Empty payloads yield the
// zero value.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
