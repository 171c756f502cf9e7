package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Print the daemon's effective config",
		GroupID: gAdvanced,
		Long:    `Print the daemon's effective config as YAML. Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}
			b, err := yaml.Marshal(conf)
			if err != nil {
				return err
			}
			cmd.Print(string(b))
			return nil
		},
	}
}
