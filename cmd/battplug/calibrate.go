package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/battplug/pkg/calibration"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Short:   "Inspect battery calibration",
		GroupID: gAdvanced,
		Long: `Inspect battery calibration.

Calibration runs once at daemon startup when enabled in the config. It fully
charges and discharges the battery a number of times, then writes a marker file
so it never runs again. Delete the marker to calibrate again.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show current calibration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibration()
			if err != nil {
				return fmt.Errorf("failed to fetch calibration status: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	})

	return cmd
}

func printCalibrationStatus(cmd *cobra.Command, st calibration.Status) {
	cmd.Printf("  Enabled: %s\n", bool2Text(st.Enabled))
	cmd.Printf("  Completed: %s\n", bool2Text(st.Completed))
	cmd.Printf("  Phase: %s\n", bold("%s", st.Phase))
	if st.Phase.Active() {
		cmd.Printf("  Cycle: %s\n", bold("%d/%d", st.Cycle, st.Cycles))
		if st.TargetPercent > 0 {
			cmd.Printf("  Charge: %s\n", bold("%d%% (target %d%%)", st.ChargePercent, st.TargetPercent))
		}
		if !st.PhaseStartedAt.IsZero() {
			cmd.Printf("  In phase for: %s\n", time.Since(st.PhaseStartedAt).Round(time.Second))
		}
	}
	if st.LastError != "" {
		cmd.Printf("  Last error: %s\n", st.LastError)
	}
}
