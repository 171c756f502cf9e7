package power

import (
	"os/exec"
	"runtime"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	logindMethod = "org.freedesktop.login1.Manager.Hibernate"
)

// Hibernator suspends the machine to disk.
type Hibernator interface {
	Hibernate() error
}

// HibernatorFunc adapts a function to Hibernator.
type HibernatorFunc func() error

func (f HibernatorFunc) Hibernate() error { return f() }

// System hibernates the local machine. On Linux it asks logind first and
// falls back to the platform command.
type System struct {
	DryRun bool

	goos   string
	logind func() error
	run    func(name string, args ...string) error
}

var _ Hibernator = &System{}

func NewSystem(dryRun bool) *System {
	return &System{
		DryRun: dryRun,
		goos:   runtime.GOOS,
		logind: logindHibernate,
		run:    runCommand,
	}
}

func (s *System) Hibernate() error {
	if s.DryRun {
		logrus.Warn("dry run: not hibernating")
		return nil
	}

	if s.goos == "linux" {
		err := s.logind()
		if err == nil {
			return nil
		}
		logrus.WithError(err).Warn("logind hibernate failed, falling back to command")
	}

	args := hibernateCommand(s.goos)
	logrus.WithField("command", args).Info("hibernating")
	if err := s.run(args[0], args[1:]...); err != nil {
		return pkgerrors.Wrapf(err, "failed to run %v", args)
	}

	return nil
}

func hibernateCommand(goos string) []string {
	switch goos {
	case "windows":
		return []string{"shutdown", "/h", "/f"}
	case "darwin":
		return []string{"pmset", "sleepnow"}
	default:
		return []string{"systemctl", "hibernate"}
	}
}

func logindHibernate() error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to connect to system bus")
	}
	defer conn.Close()

	// The single argument disables the interactive polkit prompt.
	call := conn.Object(logindDest, logindPath).Call(logindMethod, 0, false)
	if call.Err != nil {
		return pkgerrors.Wrap(call.Err, "logind refused to hibernate")
	}

	return nil
}

func runCommand(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return pkgerrors.Wrapf(err, "output: %s", out)
	}
	return nil
}
