package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	daemonutils "github.com/charlie0129/battplug/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install battplug as a systemd service",
		GroupID: gInstallation,
		Long: `Install battplug daemon as a systemd service (system-wide).

This makes battplug run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the daemon. Use --allow-non-root-access so you don't have to use sudo every time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args := []string{"--config", configPath, "--daemon-socket", unixSocketPath}
			if allowNonRootAccess {
				args = append(args, "--always-allow-non-root-access")
				logrus.Info("non-root users are allowed to access the battplug daemon.")
			} else {
				logrus.Info("only root user is allowed to access the battplug daemon.")
			}

			if err := daemonutils.NewInstaller(args...).Install(); err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()
			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``battplug install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access battplug daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the battplug systemd service",
		GroupID: gInstallation,
		Long: `Stop and remove the battplug systemd service.

The config file and the calibration marker are left in place.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutils.NewInstaller().Uninstall(); err != nil {
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}
			logrus.Infof("uninstallation succeeded")
			return nil
		},
	}
}
