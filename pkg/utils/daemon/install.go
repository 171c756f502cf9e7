package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultUnitPath = "/etc/systemd/system/battplug.service"

	unitTemplate = `[Unit]
Description=battplug smart plug battery manager
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{exec}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`
)

// Installer registers the daemon as a systemd service.
type Installer struct {
	UnitPath string
	// Args are appended to "<executable> daemon".
	Args []string

	executable func() (string, error)
	systemctl  func(args ...string) error
}

func NewInstaller(args ...string) *Installer {
	return &Installer{
		UnitPath:   DefaultUnitPath,
		Args:       args,
		executable: os.Executable,
		systemctl: func(args ...string) error {
			out, err := exec.Command("systemctl", args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// Unit renders the service unit for exePath.
func (i *Installer) Unit(exePath string) string {
	cmdline := append([]string{exePath, "daemon"}, i.Args...)
	return strings.ReplaceAll(unitTemplate, "{{exec}}", strings.Join(cmdline, " "))
}

func (i *Installer) Install() error {
	exePath, err := i.executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	if err := os.MkdirAll(filepath.Dir(i.UnitPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(i.UnitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(i.UnitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", i.UnitPath)
	}

	logrus.Infof("writing systemd unit to %s", i.UnitPath)
	if err := os.WriteFile(i.UnitPath, []byte(i.Unit(exePath)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", i.UnitPath, err)
	}

	logrus.Infof("starting battplug")
	if err := i.systemctl("daemon-reload"); err != nil {
		return err
	}
	return i.systemctl("enable", "--now", filepath.Base(i.UnitPath))
}

func (i *Installer) Uninstall() error {
	logrus.Infof("stopping battplug")

	if err := i.systemctl("disable", "--now", filepath.Base(i.UnitPath)); err != nil {
		return fmt.Errorf("%w. Are you root?", err)
	}

	logrus.Infof("removing systemd unit")

	// if the file doesn't exist, we don't need to remove it
	if err := os.Remove(i.UnitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", i.UnitPath, err)
	}

	return i.systemctl("daemon-reload")
}
