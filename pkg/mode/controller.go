package mode

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Controller holds the current mode and its optional expiry.
//
// An expired override is noticed lazily: the first read after the expiry
// instant resets the mode to Normal. Writes wake whoever is listening on
// Changes so a new mode can take effect before the next battery sample.
type Controller struct {
	mu        sync.Mutex
	mode      Mode
	expiresAt time.Time

	now     func() time.Time
	changes chan struct{}
}

// NewController returns a controller in Normal mode with no expiry.
func NewController() *Controller {
	return NewControllerWithClock(time.Now)
}

// NewControllerWithClock is NewController with an injected clock.
func NewControllerWithClock(now func() time.Time) *Controller {
	return &Controller{
		mode:    Normal,
		now:     now,
		changes: make(chan struct{}, 1),
	}
}

// SetMode switches to m. A positive d makes the override expire after d;
// zero or negative means it stays until changed. Normal never expires.
func (c *Controller) SetMode(m Mode, d time.Duration) {
	c.mu.Lock()
	c.mode = m
	if d > 0 && m != Normal {
		c.expiresAt = c.now().Add(d)
	} else {
		c.expiresAt = time.Time{}
	}
	c.mu.Unlock()

	fields := logrus.Fields{"mode": m}
	if d > 0 && m != Normal {
		fields["duration"] = d.String()
	}
	logrus.WithFields(fields).Info("mode changed")

	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Mode returns the current mode, the time left on it and whether it expires
// at all. An override past its expiry is reset to Normal first.
func (c *Controller) Mode() (Mode, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expiresAt.IsZero() {
		return c.mode, 0, false
	}

	remaining := c.expiresAt.Sub(c.now())
	if remaining <= 0 {
		logrus.WithField("mode", c.mode).Info("mode override expired, returning to normal")
		c.mode = Normal
		c.expiresAt = time.Time{}
		return c.mode, 0, false
	}

	return c.mode, remaining, true
}

// ShouldAutomate reports whether the monitor may run its threshold policy.
func (c *Controller) ShouldAutomate() bool {
	m, _, _ := c.Mode()
	return m == Normal
}

// Changes delivers a wakeup after each SetMode. Bursts are coalesced.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}
