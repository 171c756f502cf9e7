package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/events"
	"github.com/charlie0129/battplug/pkg/notify"
	"github.com/charlie0129/battplug/pkg/sensor"
)

var (
	// ErrHardFloor aborts calibration when the battery discharged below the
	// configured safety floor.
	ErrHardFloor = errors.New("battery reached calibration hard floor")
	// ErrPhaseTimeout aborts calibration when a phase takes longer than its
	// configured maximum.
	ErrPhaseTimeout = errors.New("calibration phase timed out")
)

type completionMarker interface {
	Exists() (bool, error)
	Create() error
}

// CalibrationManager runs full charge/discharge cycles once, then leaves a
// marker so later starts skip straight to monitoring.
type CalibrationManager struct {
	settings config.Calibration
	plug     plugActuator
	source   sensor.Source
	marker   completionMarker
	notifier notify.Notifier
	hub      *events.EventHub

	// OnPhase, if set, is called on every phase transition.
	OnPhase func(cycle int, phase calibration.Phase)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status calibration.Status
}

func NewCalibrationManager(
	settings config.Calibration,
	plug plugActuator,
	source sensor.Source,
	marker completionMarker,
	notifier notify.Notifier,
	hub *events.EventHub,
) *CalibrationManager {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &CalibrationManager{
		settings: settings,
		plug:     plug,
		source:   source,
		marker:   marker,
		notifier: notifier,
		hub:      hub,
		now:      time.Now,
		sleep:    sleepCtx,
		status: calibration.Status{
			Enabled: settings.Enabled,
			Phase:   calibration.PhaseIdle,
			Cycles:  settings.Cycles,
		},
	}
}

// Run performs the configured number of cycles. Every cycle charges to the
// target and rests there. All but the last then discharge to the target and
// pause. The marker is written only after the last cycle, so an aborted run
// starts over on the next start.
func (c *CalibrationManager) Run(ctx context.Context) error {
	done, err := c.marker.Exists()
	if err != nil {
		return c.abort(pkgerrors.Wrap(err, "failed to check calibration marker"))
	}
	if done {
		logrus.Info("battery calibration already completed, skipping")
		c.mu.Lock()
		c.status.Phase = calibration.PhaseDone
		c.status.Completed = true
		c.mu.Unlock()
		return nil
	}

	cycles := c.settings.Cycles
	if cycles < 1 {
		cycles = 1
	}

	logrus.WithFields(logrus.Fields{
		"cycles":      cycles,
		"chargeTo":    c.settings.ChargeTo,
		"dischargeTo": c.settings.DischargeTo,
		"hardFloor":   c.settings.HardFloor,
	}).Warn("starting battery calibration")

	c.mu.Lock()
	c.status.StartedAt = c.now()
	c.status.Cycles = cycles
	c.status.LastError = ""
	c.mu.Unlock()

	for cycle := 1; cycle <= cycles; cycle++ {
		final := cycle == cycles
		if final {
			logrus.WithField("cycle", cycle).Warn("final calibration cycle, ending at full charge")
		} else {
			logrus.WithField("cycle", cycle).Warnf("calibration cycle %d/%d", cycle, cycles)
		}

		if err := c.charge(ctx, cycle); err != nil {
			return c.abort(err)
		}

		c.setPhase(cycle, calibration.PhaseResting, 0)
		logrus.WithField("hold", c.settings.Hold.String()).Info("resting at full charge")
		if err := c.sleep(ctx, c.settings.Hold); err != nil {
			return c.abort(err)
		}

		if final {
			break
		}

		if err := c.discharge(ctx, cycle); err != nil {
			return c.abort(err)
		}

		c.setPhase(cycle, calibration.PhasePausing, 0)
		if err := c.sleep(ctx, c.settings.Pause); err != nil {
			return c.abort(err)
		}
	}

	if c.settings.NotifyOnComplete {
		c.notifier.Notify("Calibration Complete",
			fmt.Sprintf("Battery calibration finished %d cycle(s). Resuming normal charging.", cycles))
	}
	logrus.Warn("battery calibration completed, resuming normal operation")

	if err := c.marker.Create(); err != nil && !errors.Is(err, fs.ErrExist) {
		logrus.WithError(err).Error("failed to write calibration marker")
		c.mu.Lock()
		c.status.LastError = err.Error()
		c.mu.Unlock()
	}

	c.setPhase(cycles, calibration.PhaseDone, 0)
	c.mu.Lock()
	c.status.Completed = true
	c.mu.Unlock()

	return nil
}

func (c *CalibrationManager) charge(ctx context.Context, cycle int) error {
	target := c.settings.ChargeTo
	c.setPhase(cycle, calibration.PhaseCharging, target)
	start := c.now()

	for {
		s := c.source.Read()
		if s.HasPercent {
			c.setCharge(s.Percent)
			if s.Percent >= target {
				if err := c.plug.EnsureOff(); err != nil {
					logrus.WithError(err).Error("failed to stop charging")
				}
				logrus.WithField("percent", s.Percent).Infof("reached %d%%, charge phase complete", target)
				return nil
			}
		} else {
			logrus.Error("battery charge unavailable during charge phase")
		}

		if elapsed := c.now().Sub(start); elapsed > c.settings.MaxCharge {
			logrus.WithFields(logrus.Fields{
				"elapsed":  elapsed.Round(time.Second).String(),
				"severity": "critical",
			}).Error("charge phase did not reach its target in time")
			return pkgerrors.Wrapf(ErrPhaseTimeout, "charging to %d%% took longer than %s", target, c.settings.MaxCharge)
		}

		if s.HasPercent {
			if err := c.plug.EnsureOn(); err != nil {
				logrus.WithError(err).Error("failed to keep charging")
			}
		}

		if err := c.sleep(ctx, c.settings.PollInterval); err != nil {
			return err
		}
	}
}

func (c *CalibrationManager) discharge(ctx context.Context, cycle int) error {
	target := c.settings.DischargeTo
	c.setPhase(cycle, calibration.PhaseDischarging, target)
	start := c.now()

	for {
		s := c.source.Read()
		if s.HasPercent {
			c.setCharge(s.Percent)

			if s.Percent <= c.settings.HardFloor {
				logrus.WithFields(logrus.Fields{
					"percent":  s.Percent,
					"severity": "critical",
				}).Error("battery reached hard floor, forcing plug on")
				c.rescue()
				return pkgerrors.Wrapf(ErrHardFloor, "%d%% <= %d%%", s.Percent, c.settings.HardFloor)
			}

			if s.Percent <= target {
				logrus.WithField("percent", s.Percent).Infof("reached %d%%, discharge phase complete", target)
				return nil
			}
		} else {
			logrus.Error("battery charge unavailable during discharge phase")
		}

		if elapsed := c.now().Sub(start); elapsed > c.settings.MaxDischarge {
			logrus.WithFields(logrus.Fields{
				"elapsed":  elapsed.Round(time.Second).String(),
				"severity": "critical",
			}).Error("discharge phase did not reach its target in time")
			c.rescue()
			return pkgerrors.Wrapf(ErrPhaseTimeout, "discharging to %d%% took longer than %s", target, c.settings.MaxDischarge)
		}

		if s.HasPercent {
			if err := c.plug.EnsureOff(); err != nil {
				logrus.WithError(err).Error("failed to keep discharging")
			}
		}

		if err := c.sleep(ctx, c.settings.PollInterval); err != nil {
			return err
		}
	}
}

// rescue turns the plug back on so an aborted discharge cannot drain the
// battery further.
func (c *CalibrationManager) rescue() {
	if err := c.plug.EnsureOn(); err != nil {
		logrus.WithError(err).WithField("severity", "critical").Error("failed to turn plug on after aborting calibration")
	}
}

func (c *CalibrationManager) abort(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logrus.Info("calibration interrupted by shutdown")
	} else {
		logrus.WithError(err).Error("calibration aborted, it will run again on next start")
	}

	c.mu.Lock()
	cycle := c.status.Cycle
	c.status.LastError = err.Error()
	c.mu.Unlock()

	c.setPhase(cycle, calibration.PhaseAborted, 0)
	return err
}

func (c *CalibrationManager) setPhase(cycle int, phase calibration.Phase, target int) {
	now := c.now()

	c.mu.Lock()
	from := c.status.Phase
	c.status.Phase = phase
	c.status.Cycle = cycle
	c.status.PhaseStartedAt = now
	c.status.TargetPercent = target
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"cycle": cycle,
		"from":  from,
		"to":    phase,
	}).Info("calibration phase changed")

	c.hub.Publish(events.CalibrationPhase, events.CalibrationPhaseEvent{
		From:  string(from),
		To:    string(phase),
		Cycle: cycle,
		Ts:    now.Unix(),
	})

	if c.OnPhase != nil {
		c.OnPhase(cycle, phase)
	}
}

func (c *CalibrationManager) setCharge(percent int) {
	c.mu.Lock()
	c.status.ChargePercent = percent
	c.mu.Unlock()
}

// Status returns a copy of the current calibration status.
func (c *CalibrationManager) Status() calibration.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
