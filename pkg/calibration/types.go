package calibration

import "time"

// Phase is the step a calibration run is in.
type Phase string

const (
	PhaseIdle        Phase = "Idle"
	PhaseCharging    Phase = "Charging"
	PhaseResting     Phase = "Resting"
	PhaseDischarging Phase = "Discharging"
	PhasePausing     Phase = "Pausing"
	PhaseDone        Phase = "Done"
	PhaseAborted     Phase = "Aborted"
)

// Active reports whether the phase belongs to a run in progress.
func (p Phase) Active() bool {
	switch p {
	case PhaseCharging, PhaseResting, PhaseDischarging, PhasePausing:
		return true
	}
	return false
}

// Status is the snapshot exposed over HTTP. Cycle is 1-based and zero when
// no run has started.
type Status struct {
	Enabled        bool      `json:"enabled"`
	Phase          Phase     `json:"phase"`
	Cycle          int       `json:"cycle"`
	Cycles         int       `json:"cycles"`
	StartedAt      time.Time `json:"startedAt,omitempty"`
	PhaseStartedAt time.Time `json:"phaseStartedAt,omitempty"`
	ChargePercent  int       `json:"chargePercent,omitempty"`
	TargetPercent  int       `json:"targetPercent,omitempty"`
	Completed      bool      `json:"completed"`
	LastError      string    `json:"lastError,omitempty"`
}
