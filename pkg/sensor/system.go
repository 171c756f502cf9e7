package sensor

import (
	"math"

	"github.com/distatus/battery"
	"github.com/sirupsen/logrus"
)

// System reads the first battery reported by the operating system.
type System struct {
	getAll func() ([]*battery.Battery, error)
}

var _ Source = &System{}

func NewSystem() *System {
	return &System{getAll: battery.GetAll}
}

func (s *System) Read() Sample {
	bats, err := s.getAll()
	if len(bats) == 0 || bats[0] == nil {
		if err != nil {
			logrus.WithError(err).Debug("failed to read battery")
		}
		return Sample{}
	}

	if err != nil {
		// Partial reads still carry whatever fields the platform managed to fill.
		logrus.WithError(err).Trace("battery read was incomplete")
	}

	return sampleFromBattery(bats[0])
}

func sampleFromBattery(b *battery.Battery) Sample {
	var s Sample

	if b.Full > 0 && b.Current >= 0 {
		p := int(math.Round(b.Current / b.Full * 100))
		if p > 100 {
			p = 100
		}
		s.Percent = p
		s.HasPercent = true
	}

	switch b.State {
	case battery.Charging, battery.Full:
		s.PowerConnected = true
		s.HasPower = true
	case battery.Discharging, battery.Empty:
		s.HasPower = true
	}

	return s
}
