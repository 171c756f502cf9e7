package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/events"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
	"github.com/charlie0129/battplug/pkg/utils/ptr"
	"github.com/charlie0129/battplug/pkg/version"
)

type handlerFixture struct {
	d      *Daemon
	conf   *config.File
	path   string
	clock  *testClock
	hub    *events.EventHub
	router http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	clock := newTestClock()
	path := filepath.Join(t.TempDir(), "battplug.json")
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		Plug: &config.RawPlug{Driver: ptr.To(config.DriverMemory)},
	}, path)
	hub := events.NewEventHub()
	modes := mode.NewControllerWithClock(clock.now)
	src := &fakeSource{}
	src.set(64, true)

	monitor := NewMonitor(conf, modes, &fakePlug{on: true}, src, nil, &fakeHibernator{}, hub)
	monitor.now = clock.now
	monitor.setSample(src.Read())
	monitor.setPlug(true)

	cal := NewCalibrationManager(conf.Calibration(), &fakePlug{}, src, &countingMarker{}, nil, hub)

	d := newDaemon(conf, modes, monitor, cal, hub)
	d.now = clock.now
	d.setPhase(types.ControlMonitoring)

	return &handlerFixture{d: d, conf: conf, path: path, clock: clock, hub: hub, router: d.setupRoutes()}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetModeDefault(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/mode", "")
	require.Equal(t, http.StatusOK, w.Code)

	var info types.ModeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, types.ModeInfo{Mode: "normal"}, info)
}

func TestSetModeWithDuration(t *testing.T) {
	f := newHandlerFixture(t)
	sub := f.hub.Subscribe()

	w := f.do(http.MethodPut, "/mode", `{"mode":"force-off","duration":"90m"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var info types.ModeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "force-off", info.Mode)
	assert.True(t, info.Expires)
	assert.Equal(t, 5400, info.RemainingSeconds)

	ev := <-sub
	assert.Equal(t, events.ModeChanged, ev.Name)

	f.clock.advance(91 * time.Minute)
	w = f.do(http.MethodGet, "/mode", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "normal", info.Mode)
	assert.False(t, info.Expires)
}

func TestSetModeInvalid(t *testing.T) {
	f := newHandlerFixture(t)

	for _, body := range []string{
		`{"mode":"turbo"}`,
		`{"mode":"pause","duration":"later"}`,
		`{"mode":"pause","duration":"-1h"}`,
		`not json`,
	} {
		w := f.do(http.MethodPut, "/mode", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	m, _, _ := f.d.modes.Mode()
	assert.Equal(t, mode.Normal, m)
}

func TestGetStatus(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st types.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, types.ControlMonitoring, st.Phase)
	assert.Equal(t, "normal", st.Mode.Mode)
	assert.Equal(t, types.BatteryInfo{Available: true, Percent: 64, PowerKnown: true, PowerConnected: true}, st.Battery)
	assert.Equal(t, types.PlugInfo{Known: true, On: true}, st.Plug)
	assert.Equal(t, 30, st.LowThreshold)
	assert.Equal(t, 80, st.HighThreshold)
	assert.Equal(t, calibration.PhaseIdle, st.Calibration.Phase)
}

func TestGetCalibration(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/calibration", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st calibration.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, calibration.PhaseIdle, st.Phase)
	assert.Equal(t, 3, st.Cycles)
}

func TestSetThresholds(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPut, "/thresholds", `{"low":40,"high":75}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 40, f.conf.LowThreshold())
	assert.Equal(t, 75, f.conf.HighThreshold())

	reloaded, err := config.NewFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, 40, reloaded.LowThreshold())

	// The monitor is asked to re-evaluate.
	select {
	case <-f.d.monitor.wake:
	default:
		t.Fatal("expected monitor wake")
	}
}

func TestSetThresholdsInvalid(t *testing.T) {
	f := newHandlerFixture(t)

	for _, body := range []string{`{"low":80,"high":30}`, `{"low":-5,"high":30}`, `{"low":10,"high":120}`} {
		w := f.do(http.MethodPut, "/thresholds", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Equal(t, 30, f.conf.LowThreshold())
}

func TestGetConfigRedacted(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	var raw config.RawFileConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.NotNil(t, raw.LowThreshold)
	assert.Equal(t, 30, *raw.LowThreshold)
	assert.Equal(t, config.DriverMemory, *raw.Plug.Driver)
}

func TestGetVersion(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, w.Code)

	var v string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, version.Version, v)
}

func TestStreamEvents(t *testing.T) {
	f := newHandlerFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	f.d.SetMode(mode.Paused, 0)

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if l != "" {
				got = append(got, l)
			}
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, "event:"+events.ModeChanged, got[0])
	assert.True(t, strings.HasPrefix(got[1], "data:"), got[1])
	assert.Contains(t, got[1], `"mode":"paused"`)
}
