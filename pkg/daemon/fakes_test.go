package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/sensor"
	"github.com/charlie0129/battplug/pkg/utils/ptr"
)

// fakePlug is a plug actuator. A broken plug refuses to turn on.
type fakePlug struct {
	mu         sync.Mutex
	on         bool
	broken     bool
	refreshErr error

	refreshes  int
	ensureOns  int
	ensureOffs int
}

func (p *fakePlug) Refresh() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	return p.refreshErr
}

func (p *fakePlug) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

func (p *fakePlug) EnsureOn() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureOns++
	if p.broken {
		return errors.New("charging not confirmed")
	}
	p.on = true
	return nil
}

func (p *fakePlug) EnsureOff() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureOffs++
	p.on = false
	return nil
}

func (p *fakePlug) counts() (ons, offs, refreshes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureOns, p.ensureOffs, p.refreshes
}

// fakeSource returns whatever sample was set last.
type fakeSource struct {
	mu    sync.Mutex
	cur   sensor.Sample
	reads int
}

func (s *fakeSource) Read() sensor.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.cur
}

func (s *fakeSource) set(percent int, power bool) {
	s.mu.Lock()
	s.cur = sensor.NewSample(percent, power)
	s.mu.Unlock()
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakeHibernator struct {
	mu    sync.Mutex
	calls int
}

func (h *fakeHibernator) Hibernate() error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return nil
}

func (h *fakeHibernator) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type failingWatcher struct{}

func (failingWatcher) Watch(context.Context) (<-chan struct{}, error) {
	return nil, errors.New("no system bus")
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingMarker struct {
	mu      sync.Mutex
	exists  bool
	creates int
}

func (m *countingMarker) Exists() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exists, nil
}

func (m *countingMarker) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.exists = true
	return nil
}

type recordedNotifications struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordedNotifications) Notify(title, _ string) {
	r.mu.Lock()
	r.titles = append(r.titles, title)
	r.mu.Unlock()
}

func testConfig(pollTimeout time.Duration) *config.File {
	return config.NewFileFromConfig(&config.RawFileConfig{
		Monitor: &config.RawMonitor{
			PollTimeout: ptr.To(config.Duration(pollTimeout)),
			WakeBackoff: ptr.To(config.Duration(time.Millisecond)),
		},
		Plug: &config.RawPlug{Driver: ptr.To(config.DriverMemory)},
	}, "")
}
