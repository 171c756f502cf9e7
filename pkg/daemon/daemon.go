package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battplug/pkg/calibration"
	"github.com/charlie0129/battplug/pkg/config"
	"github.com/charlie0129/battplug/pkg/events"
	"github.com/charlie0129/battplug/pkg/mcptools"
	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/notify"
	"github.com/charlie0129/battplug/pkg/plug"
	"github.com/charlie0129/battplug/pkg/power"
	"github.com/charlie0129/battplug/pkg/sensor"
	"github.com/charlie0129/battplug/pkg/types"
	"github.com/charlie0129/battplug/pkg/version"
)

const controlShutdownTimeout = 30 * time.Second

type Options struct {
	// AllowNonRoot makes the socket world-writable.
	AllowNonRoot bool
	// DryRun swaps the plug for an in-memory one and never hibernates.
	DryRun bool
}

func Run(configPath string, unixSocketPath string, opts Options) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	dryRun := opts.DryRun || conf.DryRun()
	if err := conf.Validate(); err != nil {
		if !dryRun {
			return pkgerrors.Wrap(err, "invalid config")
		}
		logrus.WithError(err).Warn("ignoring config problem in dry run")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err == nil {
				err = conf.Validate()
			}
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	hub := events.NewEventHub()
	defer hub.Close()

	device, err := openDevice(conf.Plug(), dryRun)
	if err != nil {
		return err
	}
	if closer, ok := device.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logrus.Warnf("failed to close plug device: %v", err)
			}
		}()
	}

	source := sensor.NewSystem()
	var watcher sensor.Watcher
	if runtime.GOOS == "linux" {
		watcher = sensor.NewUPowerWatcher()
	}

	notifier := buildNotifier(conf.Notify(), hub)
	actuator := plug.NewActuator(device, source, notifier)
	modes := mode.NewController()

	monitor := NewMonitor(conf, modes, actuator, source, watcher, power.NewSystem(dryRun), hub)
	cal := NewCalibrationManager(conf.Calibration(), actuator, source,
		calibration.NewMarker(conf.Calibration().MarkerPath), notifier, hub)

	d := newDaemon(conf, modes, monitor, cal, hub)

	srv := &http.Server{
		Handler: d.setupRoutes(),
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		if err := os.Chmod(unixSocketPath, 0777); err != nil {
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server stopped: %v", err)
		}
	}()

	var mcpSrv *http.Server
	if addr := conf.MCPListen(); addr != "" {
		s := mcptools.NewServer(version.Version, mcptools.Tools(d))
		mcpSrv = &http.Server{Addr: addr, Handler: mcptools.Handler(s)}
		go func() {
			logrus.Infof("mcp server listening on %s", addr)
			if err := mcpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("mcp server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controlDone := make(chan struct{})
	var controlErr error
	go func() {
		defer close(controlDone)
		controlErr = d.control(ctx)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case <-controlDone:
		logrus.Warn("control task stopped, shutting down")
	}

	cancel()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	if mcpSrv != nil {
		if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("failed to shutdown mcp server: %v", err)
		}
	}
	shutdownCancel()

	select {
	case <-controlDone:
	case <-time.After(controlShutdownTimeout):
		logrus.Error("control task did not stop in time")
		return pkgerrors.New("control task did not stop in time")
	}

	logrus.Info("exiting")
	// A non-zero exit lets the service manager restart the daemon after
	// resume from hibernation.
	return controlErr
}

// control runs calibration when it is due and then monitors until ctx is
// cancelled or an emergency stops monitoring. It returns
// ErrBatteryEmergency after an emergency and nil on shutdown.
func (d *Daemon) control(ctx context.Context) error {
	sample := d.monitor.source.Read()
	logrus.WithField("battery", sample.String()).Info("initial battery state")

	if d.calibration != nil && d.conf.Calibration().Enabled {
		d.setPhase(types.ControlCalibrating)
		err := d.calibration.Run(ctx)
		if ctx.Err() != nil {
			d.setPhase(types.ControlStopped)
			return nil
		}
		if err != nil {
			logrus.WithError(err).Warn("continuing with normal operation after failed calibration")
		}
	}

	d.setPhase(types.ControlMonitoring)
	err := d.monitor.Run(ctx)
	switch {
	case errors.Is(err, ErrBatteryEmergency):
		d.setPhase(types.ControlEmergency)
		logrus.WithField("severity", "critical").Error("monitoring stopped after battery emergency")
		return err
	case err != nil && ctx.Err() == nil:
		d.setPhase(types.ControlStopped)
		logrus.WithError(err).Error("monitor stopped unexpectedly")
		return pkgerrors.Wrap(err, "monitor stopped")
	default:
		d.setPhase(types.ControlStopped)
		return nil
	}
}

func openDevice(c config.Plug, dryRun bool) (plug.Device, error) {
	if dryRun || c.Driver == config.DriverMemory {
		logrus.Warn("using in-memory smart plug, no outlet will be switched")
		return plug.NewMemoryDevice(false), nil
	}

	switch c.Driver {
	case config.DriverExec:
		return &plug.ExecDevice{
			OnCommand:     c.OnCommand,
			OffCommand:    c.OffCommand,
			StatusCommand: c.StatusCommand,
			Timeout:       c.CommandTimeout,
		}, nil
	case config.DriverRedis:
		return plug.NewRedisDevice(c.RedisAddr, c.RedisStateKey, c.RedisCmdKey), nil
	}

	return nil, pkgerrors.Errorf("unknown plug driver %q", c.Driver)
}

func buildNotifier(c config.Notify, hub *events.EventHub) notify.Notifier {
	publish := notify.Func(func(title, message string) {
		hub.Publish(events.Notification, events.NotificationEvent{
			Title:   title,
			Message: message,
			Ts:      time.Now().Unix(),
		})
	})

	if c.PushoverToken == "" || c.PushoverUser == "" {
		logrus.Info("pushover not configured, notifications go to the log only")
		return notify.Multi{notify.Log{}, publish}
	}

	return notify.Multi{notify.NewPushover(c.PushoverToken, c.PushoverUser), publish}
}
