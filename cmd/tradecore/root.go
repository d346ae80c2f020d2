package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evdnx/tradecore/config"
)

type flags struct {
	configPath string
	symbols    []string
	strategy   string
	logLevel   string
	liquidate  bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "tradecore",
		Short: "Automated trading decision core",
		Long: `tradecore evaluates indicator signals for one strategy over a set of
symbols, gates them through quality, session, structure and risk checks and
submits the approved orders to a paper broker.

Configuration is read from an optional YAML file and TRADECORE_* environment
variables; flags override both.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to the YAML configuration")
	root.AddCommand(newRunCmd(f), newCheckCmd(f))
	return root
}

// load reads the configuration and applies the flag overrides.
func (f *flags) load(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, f.configPath)
	if err != nil {
		return nil, err
	}
	if len(f.symbols) > 0 {
		cfg.Engine.Symbols = nil
		for _, s := range f.symbols {
			cfg.Engine.Symbols = append(cfg.Engine.Symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
	}
	if f.strategy != "" {
		cfg.Engine.Strategy = strings.ToLower(f.strategy)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.liquidate {
		cfg.Engine.LiquidateOnStop = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
