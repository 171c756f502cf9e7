package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewModeCommand() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:     "mode [normal|pause|force-on|force-off]",
		Short:   "Show or change the control mode",
		GroupID: gBasic,
		Long: `Show or change the control mode.

normal:     keep the battery within the charge band.
pause:      leave the plug alone.
force-on:   keep the plug on.
force-off:  keep the plug off.

Every mode except normal can expire with --for, after which battplug returns to normal.`,
		Example: `battplug mode
battplug mode pause --for 2h
battplug mode force-on --for 30m
battplug mode normal`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				info, err := apiClient.GetMode()
				if err != nil {
					return fmt.Errorf("failed to get mode: %w", err)
				}
				cmd.Println(describeMode(info))
				return nil
			}

			m, err := mode.Parse(args[0])
			if err != nil {
				return err
			}
			if duration < 0 {
				return fmt.Errorf("invalid duration %s", duration)
			}
			if m == mode.Normal && duration > 0 {
				logrus.Warn("normal mode never expires, ignoring --for")
				duration = 0
			}

			info, err := apiClient.SetMode(m, duration)
			if err != nil {
				return fmt.Errorf("failed to set mode: %w", err)
			}
			logrus.Infof("mode set: %s", describeMode(info))
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 0, "how long the mode lasts (e.g. 90m, 2h). Zero means until changed.")

	return cmd
}

func NewThresholdsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "thresholds <low> <high>",
		Short:   "Set the charge band",
		GroupID: gBasic,
		Long: `Set the charge band.

In normal mode the plug is turned on at or below the low threshold and off at or
above the high threshold. Both are percentages with 0 <= low < high <= 100.`,
		Example: `battplug thresholds 30 80`,
		Args:    cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			low, err := parseIntArg(args[:1], "low threshold")
			if err != nil {
				return err
			}
			high, err := parseIntArg(args[1:], "high threshold")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetThresholds(low, high)
			if err != nil {
				return fmt.Errorf("failed to set thresholds: %w", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			logrus.Infof("successfully set thresholds to %d%% - %d%%", low, high)
			return nil
		},
	}
}
