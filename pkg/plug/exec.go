package plug

import (
	"context"
	"os/exec"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultCommandTimeout = 10 * time.Second

// ExecDevice drives a plug through external commands, e.g. a vendor CLI. The
// status command must print "on" or "off".
type ExecDevice struct {
	OnCommand     []string
	OffCommand    []string
	StatusCommand []string
	Timeout       time.Duration

	on bool
}

var _ Device = &ExecDevice{}

func (e *ExecDevice) Refresh() error {
	out, err := e.run(e.StatusCommand)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to query plug state")
	}
	on, err := ParseState(out)
	if err != nil {
		return err
	}
	e.on = on
	return nil
}

func (e *ExecDevice) IsOn() bool {
	return e.on
}

func (e *ExecDevice) TurnOn() error {
	_, err := e.run(e.OnCommand)
	return pkgerrors.Wrap(err, "failed to turn plug on")
}

func (e *ExecDevice) TurnOff() error {
	_, err := e.run(e.OffCommand)
	return pkgerrors.Wrap(err, "failed to turn plug off")
}

func (e *ExecDevice) run(args []string) (string, error) {
	if len(args) == 0 {
		return "", pkgerrors.New("command is not configured")
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logrus.WithField("command", args).Trace("running plug command")

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		return "", pkgerrors.Wrapf(err, "%s: %s", args[0], stderr)
	}

	return strings.TrimSpace(string(out)), nil
}
