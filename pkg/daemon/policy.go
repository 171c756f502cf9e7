package daemon

import (
	"github.com/charlie0129/battplug/pkg/mode"
)

type action int

const (
	actionNone action = iota
	actionOn
	actionOff
)

func (a action) String() string {
	switch a {
	case actionOn:
		return "on"
	case actionOff:
		return "off"
	}
	return "none"
}

// decide maps the mode and charge to a plug action. Inside the
// (low, high) band nothing changes, which gives the hysteresis.
func decide(m mode.Mode, percent, low, high int) action {
	switch m {
	case mode.ForceOn:
		return actionOn
	case mode.ForceOff:
		return actionOff
	case mode.Paused:
		return actionNone
	}

	switch {
	case percent <= low:
		return actionOn
	case percent >= high:
		return actionOff
	}
	return actionNone
}
