package mode

import (
	"fmt"
	"strings"
)

// Mode selects who is in charge of the smart plug.
type Mode string

const (
	// Normal lets the monitor drive the plug from the charge thresholds.
	Normal Mode = "normal"
	// Paused suspends automation. The plug is left as it is.
	Paused Mode = "paused"
	// ForceOn keeps the plug on regardless of charge.
	ForceOn Mode = "force-on"
	// ForceOff keeps the plug off regardless of charge.
	ForceOff Mode = "force-off"
)

// Modes lists every known mode in display order.
var Modes = []Mode{Normal, Paused, ForceOn, ForceOff}

func (m Mode) String() string {
	return string(m)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Parse accepts the canonical names plus a few common spellings
// (pause, on, off, force_on, forceon).
func Parse(s string) (Mode, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")

	switch norm {
	case "normal", "auto":
		return Normal, nil
	case "paused", "pause":
		return Paused, nil
	case "force-on", "forceon", "on":
		return ForceOn, nil
	case "force-off", "forceoff", "off":
		return ForceOff, nil
	}

	return "", fmt.Errorf("unknown mode %q, expected one of %v", s, Modes)
}
