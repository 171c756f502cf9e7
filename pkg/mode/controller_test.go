package mode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestController() (*Controller, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewControllerWithClock(clk.now), clk
}

func TestDefaultMode(t *testing.T) {
	c, _ := newTestController()

	m, remaining, expires := c.Mode()
	assert.Equal(t, Normal, m)
	assert.Zero(t, remaining)
	assert.False(t, expires)
	assert.True(t, c.ShouldAutomate())
}

func TestOverrideExpires(t *testing.T) {
	c, clk := newTestController()

	c.SetMode(ForceOn, 10*time.Minute)
	clk.advance(4 * time.Minute)

	m, remaining, expires := c.Mode()
	assert.Equal(t, ForceOn, m)
	assert.True(t, expires)
	assert.Equal(t, 6*time.Minute, remaining)
	assert.False(t, c.ShouldAutomate())

	clk.advance(6 * time.Minute)
	m, remaining, expires = c.Mode()
	assert.Equal(t, Normal, m)
	assert.Zero(t, remaining)
	assert.False(t, expires)
	assert.True(t, c.ShouldAutomate())
}

func TestOverrideWithoutDuration(t *testing.T) {
	c, clk := newTestController()

	c.SetMode(Paused, 0)
	clk.advance(1000 * time.Hour)

	m, _, expires := c.Mode()
	assert.Equal(t, Paused, m)
	assert.False(t, expires)
}

func TestNormalNeverExpires(t *testing.T) {
	c, _ := newTestController()

	c.SetMode(Normal, time.Hour)
	_, _, expires := c.Mode()
	assert.False(t, expires)
}

func TestSetModeReplacesExpiry(t *testing.T) {
	c, clk := newTestController()

	c.SetMode(ForceOff, time.Minute)
	c.SetMode(ForceOn, 0)
	clk.advance(time.Hour)

	m, _, expires := c.Mode()
	assert.Equal(t, ForceOn, m)
	assert.False(t, expires)
}

func TestChangesCoalesce(t *testing.T) {
	c, _ := newTestController()

	c.SetMode(Paused, 0)
	c.SetMode(ForceOn, 0)

	select {
	case <-c.Changes():
	default:
		t.Fatal("expected a pending change notification")
	}

	select {
	case <-c.Changes():
		t.Fatal("expected notifications to be coalesced")
	default:
	}
}

func TestParse(t *testing.T) {
	cases := map[string]Mode{
		"normal":    Normal,
		"pause":     Paused,
		"Paused":    Paused,
		"force-on":  ForceOn,
		"force_off": ForceOff,
		" on ":      ForceOn,
		"off":       ForceOff,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Parse("turbo")
	assert.Error(t, err)
}
