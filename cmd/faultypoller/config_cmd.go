package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prok20/faulty-server-poller/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().Load(cmd.Flags())
			if err != nil {
				return err
			}
			out, err := renderConfig(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	config.RegisterFlags(show)
	cmd.AddCommand(show)
	return cmd
}

// renderConfig marshals cfg with secrets redacted.
func renderConfig(cfg *config.Config) (string, error) {
	redacted := *cfg
	redacted.Database = cfg.Database.Redacted()
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return string(data), nil
}
