package sensor

import (
	"context"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DisplayDevicePath is the composite battery UPower exposes for desktops.
	DisplayDevicePath = dbus.ObjectPath("/org/freedesktop/UPower/devices/DisplayDevice")

	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = "PropertiesChanged"
)

// UPowerWatcher wakes the caller on PropertiesChanged signals of a UPower
// device on the system bus.
type UPowerWatcher struct {
	Path dbus.ObjectPath
}

var _ Watcher = &UPowerWatcher{}

func NewUPowerWatcher() *UPowerWatcher {
	return &UPowerWatcher{Path: DisplayDevicePath}
}

func (w *UPowerWatcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(w.Path),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember(propertiesChanged),
	)
	if err != nil {
		_ = conn.Close()
		return nil, pkgerrors.Wrapf(err, "failed to subscribe to %s", w.Path)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok || sig == nil {
					logrus.Debug("upower signal channel closed")
					return
				}
				if sig.Path != w.Path {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	logrus.WithField("path", w.Path).Debug("watching battery changes")

	return out, nil
}
