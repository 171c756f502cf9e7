package plug

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/notify"
	"github.com/charlie0129/battplug/pkg/sensor"
)

const (
	maxAttempts = 3

	defaultVerifyTimeout  = 5 * time.Second
	defaultVerifyInterval = 500 * time.Millisecond
	defaultOffSettle      = 500 * time.Millisecond
)

var (
	// ErrChargingNotConfirmed means the plug accepted the on command but the
	// battery never reported external power.
	ErrChargingNotConfirmed = pkgerrors.New("charging not confirmed after turning plug on")
	// ErrStillOn means the plug kept reporting on after repeated off commands.
	ErrStillOn = pkgerrors.New("plug still on after turning it off")
)

type attemptPolicy struct {
	level    logrus.Level
	critical bool
	notify   bool
}

// Escalation per attempt number. Only the last failure pages someone.
var escalation = [maxAttempts]attemptPolicy{
	{level: logrus.WarnLevel},
	{level: logrus.WarnLevel},
	{level: logrus.ErrorLevel, critical: true, notify: true},
}

// Actuator turns the plug on or off and confirms the result.
type Actuator struct {
	device   Device
	source   sensor.Source
	notifier notify.Notifier

	verifyTimeout  time.Duration
	verifyInterval time.Duration
	offSettle      time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewActuator(device Device, source sensor.Source, notifier notify.Notifier) *Actuator {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Actuator{
		device:         device,
		source:         source,
		notifier:       notifier,
		verifyTimeout:  defaultVerifyTimeout,
		verifyInterval: defaultVerifyInterval,
		offSettle:      defaultOffSettle,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// Refresh re-reads the plug state.
func (a *Actuator) Refresh() error {
	return a.device.Refresh()
}

// IsOn is the state seen by the last successful Refresh.
func (a *Actuator) IsOn() bool {
	return a.device.IsOn()
}

// EnsureOn turns the plug on and waits for the battery to report charging.
// A plug that is already on is accepted as is unless a previous attempt
// failed to confirm charging, in which case it is commanded on again.
func (a *Actuator) EnsureOn() error {
	var lastErr error
	unconfirmed := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := a.device.Refresh()
		if err == nil && a.device.IsOn() && !unconfirmed {
			return nil
		}

		if err == nil {
			logrus.WithField("attempt", attempt).Info("turning smart plug on")
			err = a.device.TurnOn()
		}
		if err == nil {
			if a.verifyCharging() {
				return nil
			}
			unconfirmed = true
			err = ErrChargingNotConfirmed
		}

		lastErr = err
		if errors.Is(err, ErrChargingNotConfirmed) {
			a.escalate(attempt, "on", err,
				"Charging Failure",
				"The smart plug was switched on but the laptop is not charging. Check the cable, the adapter and the outlet.")
			continue
		}

		a.escalate(attempt, "on", err,
			"Plug Unreachable",
			"The smart plug did not respond, so it could not be switched on. Check its power and network connection.")
		if attempt < maxAttempts {
			a.sleep(a.verifyInterval)
		}
	}

	return lastErr
}

// EnsureOff turns the plug off, re-checking its state between attempts.
func (a *Actuator) EnsureOff() error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := a.device.Refresh(); err != nil {
			lastErr = err
			logrus.WithError(err).WithField("attempt", attempt).Warn("failed to read plug state")
			a.sleep(a.offSettle)
			continue
		}
		if !a.device.IsOn() {
			return nil
		}
		if attempt > 1 {
			logrus.WithField("attempt", attempt).Warn("smart plug still on, retrying")
		}

		logrus.WithField("attempt", attempt).Info("turning smart plug off")
		if err := a.device.TurnOff(); err != nil {
			lastErr = err
			logrus.WithError(err).WithField("attempt", attempt).Warn("failed to turn smart plug off")
		}
		a.sleep(a.offSettle)
	}

	err := a.device.Refresh()
	if err == nil && !a.device.IsOn() {
		return nil
	}
	if err == nil {
		err = ErrStillOn
	}
	if lastErr == nil {
		lastErr = err
	}

	a.escalate(maxAttempts, "off", lastErr,
		"Plug Failure",
		"The smart plug could not be switched off. The battery may charge past its limit.")

	return lastErr
}

func (a *Actuator) verifyCharging() bool {
	deadline := a.now().Add(a.verifyTimeout)
	for {
		if a.source.Read().Charging() {
			logrus.Info("charging confirmed")
			return true
		}
		if !a.now().Before(deadline) {
			return false
		}
		a.sleep(a.verifyInterval)
	}
}

func (a *Actuator) escalate(attempt int, action string, err error, title, message string) {
	p := escalation[attempt-1]

	entry := logrus.WithFields(logrus.Fields{
		"attempt":     attempt,
		"maxAttempts": maxAttempts,
		"action":      action,
	}).WithError(err)
	if p.critical {
		entry = entry.WithField("severity", "critical")
	}
	entry.Logf(p.level, "failed to turn smart plug %s", action)

	if p.notify {
		a.notifier.Notify(title, message)
	}
}
