package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battplug/pkg/mode"
	"github.com/charlie0129/battplug/pkg/types"
)

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of battplug",
		Long:    `Get battery, plug, mode and calibration status from the daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			if asJSON {
				b, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, st types.Status) {
	cmd.Println(bold("Daemon:"))
	phase := string(st.Phase)
	if st.Phase == types.ControlEmergency {
		phase = color.RedString(phase)
	}
	cmd.Printf("  Phase: %s\n", bold("%s", phase))
	cmd.Printf("  Version: %s\n", st.Version)
	cmd.Println()

	cmd.Println(bold("Battery:"))
	if st.Battery.Available {
		cmd.Printf("  Current charge: %s\n", bold("%d%%", st.Battery.Percent))
	} else {
		cmd.Printf("  Current charge: %s\n", bold("unknown"))
	}
	power := "unknown"
	if st.Battery.PowerKnown {
		if st.Battery.PowerConnected {
			power = color.GreenString("connected")
		} else {
			power = color.RedString("disconnected")
		}
	}
	cmd.Printf("  Power: %s\n", bold("%s", power))
	cmd.Println()

	cmd.Println(bold("Smart plug:"))
	plug := "unknown"
	if st.Plug.Known {
		if st.Plug.On {
			plug = color.GreenString("on")
		} else {
			plug = "off"
		}
	}
	cmd.Printf("  State: %s\n", bold("%s", plug))
	cmd.Println()

	cmd.Println(bold("Control:"))
	cmd.Printf("  Mode: %s\n", bold("%s", describeMode(st.Mode)))
	if st.Mode.Mode != string(mode.Normal) {
		cmd.Println("    The charge band is not enforced while this mode is active.")
	}
	cmd.Printf("  Low threshold: %s\n", bold("%d%%", st.LowThreshold))
	cmd.Printf("  High threshold: %s\n", bold("%d%%", st.HighThreshold))
	cmd.Printf("  Vigilant: %s\n", bool2Text(st.Vigilance.Active))
	if st.Vigilance.Active {
		cmd.Printf("    Watching for discharge since %s\n", st.Vigilance.Since.Local().Format("15:04:05"))
	}
	cmd.Println()

	cmd.Println(bold("Calibration:"))
	printCalibrationStatus(cmd, st.Calibration)
}
