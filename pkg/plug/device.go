package plug

import (
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// Device is a network-controlled outlet. IsOn reflects the state observed by
// the most recent successful Refresh.
type Device interface {
	Refresh() error
	IsOn() bool
	TurnOn() error
	TurnOff() error
}

// ErrUnknownState is returned when a device reports something other than
// on or off.
var ErrUnknownState = pkgerrors.New("unrecognized plug state")

// ParseState maps common on/off spellings to a boolean.
func ParseState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, pkgerrors.Wrapf(ErrUnknownState, "%q", s)
}

// MemoryDevice is an in-process plug. It backs dry runs and tests.
type MemoryDevice struct {
	mu       sync.Mutex
	on       bool
	observed bool
}

var _ Device = &MemoryDevice{}

func NewMemoryDevice(on bool) *MemoryDevice {
	return &MemoryDevice{on: on, observed: on}
}

func (m *MemoryDevice) Refresh() error {
	m.mu.Lock()
	m.observed = m.on
	m.mu.Unlock()
	return nil
}

func (m *MemoryDevice) IsOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observed
}

func (m *MemoryDevice) TurnOn() error {
	m.mu.Lock()
	m.on = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryDevice) TurnOff() error {
	m.mu.Lock()
	m.on = false
	m.mu.Unlock()
	return nil
}
