package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/sensor"
)

// simBattery charges by step per poll while the plug is on and drains by
// step while it is off.
type simBattery struct {
	percent int
	step    int
	plug    *fakePlug
}

func (b *simBattery) Read() sensor.Sample {
	return sensor.NewSample(b.percent, b.plug.IsOn())
}

func (b *simBattery) tick() {
	if b.plug.IsOn() {
		b.percent += b.step
	} else {
		b.percent -= b.step
	}
	if b.percent > 100 {
		b.percent = 100
	}
	if b.percent < 0 {
		b.percent = 0
	}
}

type phaseStep struct {
	cycle int
	phase calibration.Phase
}

type calibrationFixture struct {
	cm      *CalibrationManager
	plug    *fakePlug
	battery *simBattery
	marker  *countingMarker
	notes   *recordedNotifications
	clock   *testClock
	phases  []phaseStep
}

func testCalibrationSettings() config.Calibration {
	return config.Calibration{
		Enabled:          true,
		Cycles:           3,
		ChargeTo:         100,
		DischargeTo:      10,
		HardFloor:        5,
		PollInterval:     time.Minute,
		MaxCharge:        4 * time.Hour,
		MaxDischarge:     8 * time.Hour,
		Hold:             2 * time.Hour,
		Pause:            time.Minute,
		NotifyOnComplete: true,
	}
}

func newCalibrationFixture(settings config.Calibration, percent, step int) *calibrationFixture {
	f := &calibrationFixture{
		plug:   &fakePlug{},
		marker: &countingMarker{},
		notes:  &recordedNotifications{},
		clock:  newTestClock(),
	}
	f.battery = &simBattery{percent: percent, step: step, plug: f.plug}
	f.cm = NewCalibrationManager(settings, f.plug, f.battery, f.marker, f.notes, nil)
	f.cm.now = f.clock.now
	f.cm.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.clock.advance(d)
		f.battery.tick()
		return nil
	}
	f.cm.OnPhase = func(cycle int, phase calibration.Phase) {
		f.phases = append(f.phases, phaseStep{cycle, phase})
	}
	return f
}

func TestCalibrationCycleOrder(t *testing.T) {
	f := newCalibrationFixture(testCalibrationSettings(), 50, 10)

	require.NoError(t, f.cm.Run(context.Background()))

	assert.Equal(t, []phaseStep{
		{1, calibration.PhaseCharging},
		{1, calibration.PhaseResting},
		{1, calibration.PhaseDischarging},
		{1, calibration.PhasePausing},
		{2, calibration.PhaseCharging},
		{2, calibration.PhaseResting},
		{2, calibration.PhaseDischarging},
		{2, calibration.PhasePausing},
		{3, calibration.PhaseCharging},
		{3, calibration.PhaseResting},
		{3, calibration.PhaseDone},
	}, f.phases)

	assert.Equal(t, 1, f.marker.creates)
	assert.Equal(t, []string{"Calibration Complete"}, f.notes.titles)

	st := f.cm.Status()
	assert.Equal(t, calibration.PhaseDone, st.Phase)
	assert.True(t, st.Completed)
	assert.Equal(t, 3, st.Cycle)
	assert.Empty(t, st.LastError)
}

func TestCalibrationSingleCycleEndsCharged(t *testing.T) {
	settings := testCalibrationSettings()
	settings.Cycles = 1
	settings.NotifyOnComplete = false
	f := newCalibrationFixture(settings, 70, 10)

	require.NoError(t, f.cm.Run(context.Background()))
	assert.Equal(t, []phaseStep{
		{1, calibration.PhaseCharging},
		{1, calibration.PhaseResting},
		{1, calibration.PhaseDone},
	}, f.phases)
	assert.Empty(t, f.notes.titles)
	assert.Equal(t, 1, f.marker.creates)
}

func TestCalibrationRunsOnce(t *testing.T) {
	f := newCalibrationFixture(testCalibrationSettings(), 50, 10)

	require.NoError(t, f.cm.Run(context.Background()))
	f.phases = nil

	require.NoError(t, f.cm.Run(context.Background()))
	assert.Empty(t, f.phases)
	assert.Equal(t, 1, f.marker.creates)
	assert.True(t, f.cm.Status().Completed)
}

func TestCalibrationHardFloor(t *testing.T) {
	settings := testCalibrationSettings()
	settings.Cycles = 2
	f := newCalibrationFixture(settings, 100, 16)

	err := f.cm.Run(context.Background())
	assert.ErrorIs(t, err, ErrHardFloor)
	assert.Zero(t, f.marker.creates)
	assert.True(t, f.plug.IsOn(), "plug must be back on after hitting the floor")

	st := f.cm.Status()
	assert.Equal(t, calibration.PhaseAborted, st.Phase)
	assert.NotEmpty(t, st.LastError)
	assert.False(t, st.Completed)
}

func TestCalibrationChargeTimeout(t *testing.T) {
	settings := testCalibrationSettings()
	settings.MaxCharge = 10 * time.Minute
	f := newCalibrationFixture(settings, 50, 0)

	err := f.cm.Run(context.Background())
	assert.ErrorIs(t, err, ErrPhaseTimeout)
	assert.Zero(t, f.marker.creates)
	assert.Equal(t, calibration.PhaseAborted, f.cm.Status().Phase)
}

func TestCalibrationDischargeTimeout(t *testing.T) {
	settings := testCalibrationSettings()
	settings.MaxDischarge = 30 * time.Minute
	f := newCalibrationFixture(settings, 100, 0)

	err := f.cm.Run(context.Background())
	assert.ErrorIs(t, err, ErrPhaseTimeout)
	assert.True(t, f.plug.IsOn())
	assert.Zero(t, f.marker.creates)
}

func TestCalibrationCancelled(t *testing.T) {
	f := newCalibrationFixture(testCalibrationSettings(), 50, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.cm.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.marker.creates)
}

func TestCalibrationIdleStatus(t *testing.T) {
	f := newCalibrationFixture(testCalibrationSettings(), 50, 10)

	st := f.cm.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, calibration.PhaseIdle, st.Phase)
	assert.Equal(t, 3, st.Cycles)
}
