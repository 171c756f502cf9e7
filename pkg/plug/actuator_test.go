package plug

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battplug/pkg/sensor"
)

// fakeDevice records commands. stuckOn makes TurnOff ineffective and
// refreshErrs fails the first N refreshes.
type fakeDevice struct {
	on          bool
	observed    bool
	stuckOn     bool
	refreshErrs int

	refreshes int
	ons       int
	offs      int
}

func (d *fakeDevice) Refresh() error {
	d.refreshes++
	if d.refreshErrs > 0 {
		d.refreshErrs--
		return errors.New("timeout")
	}
	d.observed = d.on
	return nil
}

func (d *fakeDevice) IsOn() bool { return d.observed }

func (d *fakeDevice) TurnOn() error {
	d.ons++
	d.on = true
	return nil
}

func (d *fakeDevice) TurnOff() error {
	d.offs++
	if !d.stuckOn {
		d.on = false
	}
	return nil
}

type notifications struct {
	titles []string
}

func (n *notifications) Notify(title, _ string) { n.titles = append(n.titles, title) }

type testClock struct {
	t     time.Time
	slept time.Duration
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) sleep(d time.Duration) {
	c.t = c.t.Add(d)
	c.slept += d
}

func newTestActuator(dev *fakeDevice, src sensor.Source) (*Actuator, *notifications, *testClock) {
	n := &notifications{}
	clk := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewActuator(dev, src, n)
	a.now = clk.now
	a.sleep = clk.sleep
	return a, n, clk
}

func chargingWhen(dev *fakeDevice) sensor.Source {
	return sensor.SourceFunc(func() sensor.Sample { return sensor.NewSample(50, dev.on) })
}

func TestEnsureOnAlreadyOn(t *testing.T) {
	dev := &fakeDevice{on: true}
	a, n, _ := newTestActuator(dev, chargingWhen(dev))

	require.NoError(t, a.EnsureOn())
	assert.Zero(t, dev.ons)
	assert.Empty(t, n.titles)
}

func TestEnsureOnConfirmsCharging(t *testing.T) {
	dev := &fakeDevice{}
	a, n, clk := newTestActuator(dev, chargingWhen(dev))

	require.NoError(t, a.EnsureOn())
	assert.Equal(t, 1, dev.ons)
	assert.Zero(t, clk.slept)
	assert.Empty(t, n.titles)
}

func TestEnsureOnChargingDelayed(t *testing.T) {
	dev := &fakeDevice{}
	reads := 0
	src := sensor.SourceFunc(func() sensor.Sample {
		reads++
		return sensor.NewSample(50, reads > 3)
	})
	a, n, clk := newTestActuator(dev, src)

	require.NoError(t, a.EnsureOn())
	assert.Equal(t, 1, dev.ons)
	assert.Equal(t, 1500*time.Millisecond, clk.slept)
	assert.Empty(t, n.titles)
}

func TestEnsureOnNeverCharges(t *testing.T) {
	dev := &fakeDevice{}
	src := sensor.SourceFunc(func() sensor.Sample { return sensor.NewSample(50, false) })
	a, n, _ := newTestActuator(dev, src)

	err := a.EnsureOn()
	assert.ErrorIs(t, err, ErrChargingNotConfirmed)
	// Re-commanded on every attempt even though the plug reports on.
	assert.Equal(t, maxAttempts, dev.ons)
	assert.Equal(t, []string{"Charging Failure"}, n.titles)
}

func TestEnsureOnRecoversOnSecondAttempt(t *testing.T) {
	dev := &fakeDevice{}
	ons := 0
	src := sensor.SourceFunc(func() sensor.Sample { return sensor.NewSample(50, ons >= 2) })
	a, n, _ := newTestActuator(dev, src)
	a.device = &countingDevice{fakeDevice: dev, onTurnOn: func() { ons++ }}

	require.NoError(t, a.EnsureOn())
	assert.Equal(t, 2, dev.ons)
	assert.Empty(t, n.titles)
}

func TestEnsureOnRecoversOnThirdAttempt(t *testing.T) {
	dev := &fakeDevice{}
	ons := 0
	src := sensor.SourceFunc(func() sensor.Sample { return sensor.NewSample(50, ons >= 3) })
	a, n, _ := newTestActuator(dev, src)
	a.device = &countingDevice{fakeDevice: dev, onTurnOn: func() { ons++ }}

	require.NoError(t, a.EnsureOn())
	assert.Equal(t, 3, dev.ons)
	assert.Empty(t, n.titles)
}

func TestEnsureOnRefreshFailures(t *testing.T) {
	dev := &fakeDevice{refreshErrs: maxAttempts}
	a, n, clk := newTestActuator(dev, chargingWhen(dev))

	err := a.EnsureOn()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChargingNotConfirmed)
	assert.Zero(t, dev.ons)
	// Waits between attempts, not after the last one.
	assert.Equal(t, 2*defaultVerifyInterval, clk.slept)
	assert.Equal(t, []string{"Plug Unreachable"}, n.titles)
}

func TestEnsureOnRefreshRecoversAfterWait(t *testing.T) {
	dev := &fakeDevice{refreshErrs: 2}
	a, n, clk := newTestActuator(dev, chargingWhen(dev))

	require.NoError(t, a.EnsureOn())
	assert.Equal(t, 1, dev.ons)
	assert.Equal(t, 2*defaultVerifyInterval, clk.slept)
	assert.Empty(t, n.titles)
}

func TestEnsureOnTransientRefreshFailure(t *testing.T) {
	dev := &fakeDevice{on: true, refreshErrs: 1}
	a, n, _ := newTestActuator(dev, chargingWhen(dev))

	require.NoError(t, a.EnsureOn())
	assert.Zero(t, dev.ons)
	assert.Empty(t, n.titles)
}

func TestEnsureOffAlreadyOff(t *testing.T) {
	dev := &fakeDevice{}
	a, n, _ := newTestActuator(dev, chargingWhen(dev))

	require.NoError(t, a.EnsureOff())
	assert.Zero(t, dev.offs)
	assert.Empty(t, n.titles)
}

func TestEnsureOffIdempotent(t *testing.T) {
	dev := &fakeDevice{on: true}
	a, n, _ := newTestActuator(dev, chargingWhen(dev))

	require.NoError(t, a.EnsureOff())
	require.NoError(t, a.EnsureOff())
	assert.Equal(t, 1, dev.offs)
	assert.False(t, dev.on)
	assert.Empty(t, n.titles)
}

func TestEnsureOffStuck(t *testing.T) {
	dev := &fakeDevice{on: true, stuckOn: true}
	a, n, _ := newTestActuator(dev, chargingWhen(dev))

	assert.ErrorIs(t, a.EnsureOff(), ErrStillOn)
	assert.Equal(t, maxAttempts, dev.offs)
	assert.Equal(t, []string{"Plug Failure"}, n.titles)
}

type countingDevice struct {
	*fakeDevice
	onTurnOn func()
}

func (d *countingDevice) TurnOn() error {
	d.onTurnOn()
	return d.fakeDevice.TurnOn()
}

func TestParseState(t *testing.T) {
	on, err := ParseState(" ON\n")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = ParseState("0")
	require.NoError(t, err)
	assert.False(t, on)

	_, err = ParseState("blinking")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestMemoryDevice(t *testing.T) {
	m := NewMemoryDevice(false)
	require.NoError(t, m.TurnOn())
	assert.False(t, m.IsOn(), "state is only observed after refresh")
	require.NoError(t, m.Refresh())
	assert.True(t, m.IsOn())
}
