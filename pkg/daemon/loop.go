package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/events"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/power"
	"github.com/charlie0129/battplug/pkg/sensor"
)

// ErrBatteryEmergency is returned by Monitor.Run after the machine was sent
// to hibernate because the battery kept draining with the plug off.
var ErrBatteryEmergency = errors.New("battery emergency: unexpected discharge, hibernated")

type plugActuator interface {
	Refresh() error
	IsOn() bool
	EnsureOn() error
	EnsureOff() error
}

// monitorState is what the monitor last saw. It is read by HTTP handlers.
type monitorState struct {
	sample        sensor.Sample
	plugKnown     bool
	plugOn        bool
	vigilant      bool
	vigilantSince time.Time
	updatedAt     time.Time
	armFailures   int
}

// Monitor keeps the battery between the configured thresholds by switching
// the plug, and hibernates the machine if the battery drains while the plug
// is supposed to be charging it.
type Monitor struct {
	conf       config.Config
	modes      *mode.Controller
	plug       plugActuator
	source     sensor.Source
	watcher    sensor.Watcher
	hibernator power.Hibernator
	hub        *events.EventHub

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	wake  chan struct{}

	mu    sync.Mutex
	state monitorState
}

func NewMonitor(
	conf config.Config,
	modes *mode.Controller,
	plug plugActuator,
	source sensor.Source,
	watcher sensor.Watcher,
	hibernator power.Hibernator,
	hub *events.EventHub,
) *Monitor {
	return &Monitor{
		conf:       conf,
		modes:      modes,
		plug:       plug,
		source:     source,
		watcher:    watcher,
		hibernator: hibernator,
		hub:        hub,
		now:        time.Now,
		sleep:      sleepCtx,
		wake:       make(chan struct{}, 1),
	}
}

// Wake makes the monitor re-evaluate the current sample without waiting
// for it to change.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run applies the policy to the current sample and then reacts to every
// change until ctx is cancelled or a battery emergency ends monitoring.
// It returns ctx.Err() on shutdown and ErrBatteryEmergency after
// hibernating.
func (m *Monitor) Run(ctx context.Context) error {
	initial := m.source.Read()
	logrus.WithField("battery", initial.String()).Info("starting normal operation")

	m.refreshPlug()
	if initial.HasPercent {
		m.applyPolicy(initial.Percent)
	}
	m.setSample(initial)

	var changes <-chan struct{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		forced, err := m.wait(ctx, &changes)
		if err != nil {
			return err
		}

		if err := m.iterate(forced); err != nil {
			return err
		}
	}
}

// wait blocks until the battery may have changed, a re-evaluation was
// requested, or the poll timeout elapsed. It reports whether the next
// iteration must run even for an unchanged sample.
func (m *Monitor) wait(ctx context.Context, changes *<-chan struct{}) (bool, error) {
	mc := m.conf.Monitor()

	if *changes == nil && m.watcher != nil {
		ch, err := m.watcher.Watch(ctx)
		if err != nil {
			m.mu.Lock()
			m.state.armFailures++
			failures := m.state.armFailures
			m.mu.Unlock()

			entry := logrus.WithError(err).WithField("failures", failures)
			if failures == 1 {
				entry.Warn("failed to watch battery changes, polling instead")
			} else {
				entry.Debug("failed to watch battery changes")
			}
			return false, m.sleep(ctx, mc.WakeBackoff)
		}
		*changes = ch
	}

	timer := time.NewTimer(mc.PollTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case _, ok := <-*changes:
		if !ok {
			logrus.Debug("battery change subscription ended, re-arming")
			*changes = nil
		}
	case <-m.modes.Changes():
		return true, nil
	case <-m.wake:
		return true, nil
	case <-timer.C:
	}

	return false, nil
}

// iterate handles one sample. Only a battery emergency is returned; every
// other failure is logged and monitoring continues.
func (m *Monitor) iterate(forced bool) error {
	sample := m.source.Read()
	if !sample.HasPercent {
		logrus.Debug("battery charge unavailable, skipping")
		return nil
	}

	prev := m.lastSample()
	if !forced && prev.Same(sample) {
		return nil
	}

	if err := m.plug.Refresh(); err != nil {
		logrus.WithError(err).Error("failed to read plug state, skipping")
		return nil
	}
	plugOn := m.plug.IsOn()
	m.setPlug(plugOn)

	percent := sample.Percent
	vc := m.conf.Vigilance()
	mc := m.conf.Monitor()

	if vc.Low < percent && percent < vc.High && !plugOn && !m.vigilant() {
		m.setVigilant(true, percent)
		logrus.WithField("percent", percent).Info("battery in low band, watching for unexpected discharge")
	}
	if m.vigilant() && (plugOn || percent >= vc.High) {
		m.setVigilant(false, percent)
		logrus.WithField("percent", percent).Info("leaving low band watch")
	}

	if m.vigilant() && prev.HasPercent && percent < prev.Percent && !plugOn {
		elapsed := m.now().Sub(m.vigilantSince())
		fields := logrus.Fields{
			"before":  prev.Percent,
			"after":   percent,
			"elapsed": elapsed.Round(time.Millisecond).String(),
		}
		if elapsed >= vc.Grace {
			logrus.WithFields(fields).WithField("severity", "critical").
				Error("battery draining with plug off, hibernating")
			m.hub.Publish(events.Emergency, events.EmergencyEvent{
				Percent:        percent,
				ElapsedSeconds: int(elapsed / time.Second),
				Ts:             m.now().Unix(),
			})
			m.setSample(sample)
			if err := m.hibernator.Hibernate(); err != nil {
				logrus.WithError(err).WithField("severity", "critical").Error("failed to hibernate")
			}
			return ErrBatteryEmergency
		}
		logrus.WithFields(fields).Warn("battery drop during grace window, tolerated")
	}

	if prev.HasPercent && abs(percent-prev.Percent) > mc.ChangeLogThreshold {
		logrus.WithFields(logrus.Fields{
			"before": prev.Percent,
			"after":  percent,
		}).Info("battery changed")
	}

	m.setSample(sample)

	if prev.HasPercent && prev.Percent-percent > mc.PrecipitousDrop {
		logrus.WithFields(logrus.Fields{
			"before": prev.Percent,
			"after":  percent,
		}).Error("battery dropped sharply, forcing plug on")
		if err := m.plug.EnsureOn(); err != nil {
			logrus.WithError(err).Error("failed to force plug on")
		}
		return nil
	}

	m.applyPolicy(percent)
	return nil
}

func (m *Monitor) applyPolicy(percent int) {
	current, _, _ := m.modes.Mode()
	act := decide(current, percent, m.conf.LowThreshold(), m.conf.HighThreshold())

	var err error
	switch act {
	case actionOn:
		err = m.plug.EnsureOn()
	case actionOff:
		err = m.plug.EnsureOff()
	default:
		return
	}

	fields := logrus.Fields{"mode": current, "percent": percent, "action": act}
	if err != nil {
		logrus.WithFields(fields).WithError(err).Error("failed to apply charging policy")
		return
	}
	logrus.WithFields(fields).Debug("charging policy applied")

	m.mu.Lock()
	m.state.plugKnown = true
	m.state.plugOn = act == actionOn
	m.mu.Unlock()
}

func (m *Monitor) refreshPlug() {
	if err := m.plug.Refresh(); err != nil {
		logrus.WithError(err).Warn("failed to read plug state")
		return
	}
	m.setPlug(m.plug.IsOn())
}

func (m *Monitor) lastSample() sensor.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.sample
}

func (m *Monitor) setSample(s sensor.Sample) {
	m.mu.Lock()
	m.state.sample = s
	m.state.updatedAt = m.now()
	m.mu.Unlock()
}

func (m *Monitor) setPlug(on bool) {
	m.mu.Lock()
	m.state.plugKnown = true
	m.state.plugOn = on
	m.mu.Unlock()
}

func (m *Monitor) vigilant() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.vigilant
}

func (m *Monitor) vigilantSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.vigilantSince
}

func (m *Monitor) setVigilant(active bool, percent int) {
	now := m.now()
	m.mu.Lock()
	m.state.vigilant = active
	if active {
		m.state.vigilantSince = now
	} else {
		m.state.vigilantSince = time.Time{}
	}
	m.mu.Unlock()

	m.hub.Publish(events.Vigilance, events.VigilanceEvent{Active: active, Percent: percent, Ts: now.Unix()})
}

// snapshot returns a copy of the monitor's view.
func (m *Monitor) snapshot() monitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
