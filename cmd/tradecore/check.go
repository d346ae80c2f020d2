package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

func newCheckCmd(f *flags) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and optionally print the resolved values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd.Context())
			if err != nil {
				return err
			}
			if !show {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
				return nil
			}
			if cfg.Snapshot.Redis.Password != "" {
				cfg.Snapshot.Redis.Password = redacted
			}
			if cfg.TradeLog.ClickHouse.DSN != "" {
				cfg.TradeLog.ClickHouse.DSN = redacted
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&show, "print", false, "print the resolved configuration as YAML")
	return cmd
}
