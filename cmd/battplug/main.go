package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/charlie0129/battplug/pkg/client"
	"github.com/charlie0129/battplug/pkg/gui"
	"github.com/charlie0129/battplug/pkg/version"
)

var (
	logLevel       = "info"
	logFile        = ""
	unixSocketPath = "/var/run/battplug.sock"
	configPath     = "/etc/battplug.yaml"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

const logFileMaxSizeMB = 1

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})

	if logFile != "" {
		logrus.SetOutput(newLogFileWriter(logFile))
		return nil
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

// newLogFileWriter rotates the log file once it reaches logFileMaxSizeMB,
// keeping a single backup.
func newLogFileWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: 1,
	}
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: battplug daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Check 'systemctl status battplug'.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or start the daemon with '--allow-non-root-access' to grant permissions to your user")
	}
}

func main() {
	// battplug spends nearly all its time waiting.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "battplug",
		Short: "battplug keeps a laptop battery within a charge band by switching a smart plug",
		Long: `battplug keeps a laptop battery within a charge band by switching a smart plug.

The daemon turns the plug on when the charge drops to the low threshold and off
when it reaches the high threshold. Modes let you pause or override it for a while.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogger(); err != nil {
				return err
			}
			apiClient = client.NewClient(unixSocketPath)

			switch cmd.Name() {
			case "daemon", "version", "install", "uninstall":
				return nil
			}
			if daemonVersion, err := apiClient.GetVersion(); err == nil {
				if daemonVersion != version.Version {
					logrus.WithFields(logrus.Fields{
						"clientVersion": version.Version,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. battplug may not work as expected.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("battplug daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (.json, .yaml or .yml)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "battplug daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewModeCommand(),
		NewThresholdsCommand(),
		NewCalibrationCommand(),
		NewConfigCommand(),
		NewTrayCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}

// NewTrayCommand resolves the socket path after flags are parsed.
func NewTrayCommand() *cobra.Command {
	cmd := gui.NewTrayCommand(unixSocketPath, gAdvanced)
	cmd.Run = func(_ *cobra.Command, _ []string) {
		gui.Run(unixSocketPath)
	}
	return cmd
}
