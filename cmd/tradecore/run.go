package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evdnx/tradecore/app"
	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/types"
)

func newRunCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop against the simulated market",
		Example: `  tradecore run
  tradecore run --strategy hft --symbols EURUSD,GBPUSD
  tradecore run -c tradecore.yaml --log-level debug --liquidate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, f)
		},
	}
	cmd.Flags().StringSliceVarP(&f.symbols, "symbols", "s", nil, "symbols to trade, comma separated")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "strategy: scalping, hft, intraday or arbitrage")
	cmd.Flags().StringVarP(&f.logLevel, "log-level", "l", "", "log level: debug, info, warn or error")
	cmd.Flags().BoolVar(&f.liquidate, "liquidate", false, "close every position on shutdown")
	return cmd
}

func run(ctx context.Context, f *flags) error {
	cfg, err := f.load(ctx)
	if err != nil {
		return err
	}
	log, err := logger.NewZapLogger(logger.Options{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	log.Info("tradecore_starting",
		logger.String("strategy", cfg.Engine.Strategy),
		logger.Strings("symbols", cfg.Engine.Symbols),
		logger.String("api", cfg.API.Addr),
	)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("tradecore_build_failed", logger.Err(err))
		return err
	}
	err = a.Run(ctx)
	switch {
	case errors.Is(err, types.ErrSessionFatal):
		log.Error("tradecore_fatal", logger.Err(err))
	case err != nil:
		log.Error("tradecore_failed", logger.Err(err))
	default:
		log.Info("tradecore_stopped")
	}
	return err
}
