package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battplug/pkg/daemon"
	"github.com/charlie0129/battplug/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the daemon.
	alwaysAllowNonRootAccess = false
	dryRun                   = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run battplug daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run battplug daemon in the foreground.

With --dry-run the plug is simulated in memory and the machine is never hibernated.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
				"dryRun":  dryRun,
			}).Info("battplug daemon starting")
			return daemon.Run(configPath, unixSocketPath, daemon.Options{
				AllowNonRoot: alwaysAllowNonRootAccess,
				DryRun:       dryRun,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.BoolVar(&dryRun, "dry-run", false,
		"Simulate the plug and skip hibernation.")

	return cmd
}
