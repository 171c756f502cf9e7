package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	// LowThreshold is the charge at or below which the plug is turned on.
	LowThreshold() int
	// HighThreshold is the charge at or above which the plug is turned off.
	HighThreshold() int
	Vigilance() Vigilance
	Monitor() Monitor
	Calibration() Calibration
	Plug() Plug
	Notify() Notify
	AllowNonRootAccess() bool
	DryRun() bool
	MCPListen() string

	// SetThresholds validates and replaces both thresholds at once.
	SetThresholds(low, high int) error

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
	LogrusFields() logrus.Fields
}

// Vigilance configures detection of a discharge that should not happen.
// The band is exclusive on both ends.
type Vigilance struct {
	Low   int
	High  int
	Grace time.Duration
}

type Monitor struct {
	// ChangeLogThreshold is the sample-to-sample change worth logging.
	ChangeLogThreshold int
	// PrecipitousDrop is the sample-to-sample drop that forces the plug on.
	PrecipitousDrop int
	PollTimeout     time.Duration
	WakeBackoff     time.Duration
}

type Calibration struct {
	Enabled          bool
	Cycles           int
	ChargeTo         int
	DischargeTo      int
	HardFloor        int
	PollInterval     time.Duration
	MaxCharge        time.Duration
	MaxDischarge     time.Duration
	Hold             time.Duration
	Pause            time.Duration
	NotifyOnComplete bool
	MarkerPath       string
}

// Plug drivers.
const (
	DriverExec   = "exec"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Plug struct {
	Driver         string
	OnCommand      []string
	OffCommand     []string
	StatusCommand  []string
	CommandTimeout time.Duration
	RedisAddr      string
	RedisStateKey  string
	RedisCmdKey    string
}

type Notify struct {
	PushoverToken string
	PushoverUser  string
}
