package sensor

import (
	"context"
	"fmt"
)

// Sample is one reading of the battery. Either half may be missing when
// the platform cannot report it.
type Sample struct {
	Percent        int
	PowerConnected bool

	HasPercent bool
	HasPower   bool
}

// NewSample builds a fully populated sample.
func NewSample(percent int, powerConnected bool) Sample {
	return Sample{
		Percent:        percent,
		PowerConnected: powerConnected,
		HasPercent:     true,
		HasPower:       true,
	}
}

// Charging reports whether external power is known to be connected.
func (s Sample) Charging() bool {
	return s.HasPower && s.PowerConnected
}

// Same reports whether both samples carry identical readings.
func (s Sample) Same(o Sample) bool {
	return s == o
}

func (s Sample) String() string {
	percent := "unknown"
	if s.HasPercent {
		percent = fmt.Sprintf("%d%%", s.Percent)
	}
	power := "unknown"
	if s.HasPower {
		power = "disconnected"
		if s.PowerConnected {
			power = "connected"
		}
	}
	return fmt.Sprintf("charge %s, power %s", percent, power)
}

// Source reads the current battery state. Read never blocks for long and
// never fails: unknown values are reported as absent.
type Source interface {
	Read() Sample
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Sample

func (f SourceFunc) Read() Sample { return f() }

// Watcher delivers a wakeup whenever the battery state may have changed.
// The returned channel is closed when the subscription dies, after which the
// caller should call Watch again.
type Watcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
