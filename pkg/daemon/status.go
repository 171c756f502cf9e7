package daemon

import (
	"sync"
	"time"

	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/events"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
	"github.com/charlie0129/battplug/pkg/version"
)

// Daemon holds the components shared by the control task and the API.
type Daemon struct {
	conf        config.Config
	modes       *mode.Controller
	monitor     *Monitor
	calibration *CalibrationManager
	hub         *events.EventHub
	now         func() time.Time

	mu    sync.RWMutex
	phase types.ControlPhase
}

func newDaemon(conf config.Config, modes *mode.Controller, monitor *Monitor, cal *CalibrationManager, hub *events.EventHub) *Daemon {
	return &Daemon{
		conf:        conf,
		modes:       modes,
		monitor:     monitor,
		calibration: cal,
		hub:         hub,
		now:         time.Now,
		phase:       types.ControlStarting,
	}
}

func (d *Daemon) setPhase(p types.ControlPhase) {
	d.mu.Lock()
	d.phase = p
	d.mu.Unlock()
}

func (d *Daemon) Phase() types.ControlPhase {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.phase
}

func (d *Daemon) ModeInfo() types.ModeInfo {
	m, remaining, expires := d.modes.Mode()
	info := types.ModeInfo{Mode: m.String(), Expires: expires}
	if expires {
		info.RemainingSeconds = int((remaining + time.Second - 1) / time.Second)
		info.ExpiresAt = d.now().Add(remaining).Round(time.Second)
	}
	return info
}

// SetMode switches the mode and announces it. The monitor picks the change
// up through the controller.
func (d *Daemon) SetMode(m mode.Mode, duration time.Duration) types.ModeInfo {
	d.modes.SetMode(m, duration)
	info := d.ModeInfo()
	d.hub.Publish(events.ModeChanged, events.ModeChangedEvent{
		Mode:             info.Mode,
		RemainingSeconds: info.RemainingSeconds,
		Ts:               d.now().Unix(),
	})
	return info
}

func (d *Daemon) Status() types.Status {
	st := types.Status{
		Version:       version.Version,
		Phase:         d.Phase(),
		Mode:          d.ModeInfo(),
		LowThreshold:  d.conf.LowThreshold(),
		HighThreshold: d.conf.HighThreshold(),
	}

	if d.monitor != nil {
		ms := d.monitor.snapshot()
		st.Battery = types.BatteryInfo{
			Available:      ms.sample.HasPercent,
			Percent:        ms.sample.Percent,
			PowerKnown:     ms.sample.HasPower,
			PowerConnected: ms.sample.PowerConnected,
		}
		st.Plug = types.PlugInfo{Known: ms.plugKnown, On: ms.plugOn}
		st.Vigilance = types.VigilanceInfo{Active: ms.vigilant, Since: ms.vigilantSince}
		st.UpdatedAt = ms.updatedAt
	}

	if d.calibration != nil {
		st.Calibration = d.calibration.Status()
	}

	return st
}
