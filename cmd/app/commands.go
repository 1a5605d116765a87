package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"CoinOdds/internal/di"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/server"
)

func newRootCmd(ctx context.Context) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "app",
		Short:         "CoinOdds probability scoring service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	withApp := func(fn func(app *server.App) error) error {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		app, cleanup, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("initialize app: %w", err)
		}
		defer cleanup()
		return fn(app)
	}

	root.AddCommand(serveCmd(ctx, withApp))
	root.AddCommand(calculateCmd(ctx, withApp))
	root.AddCommand(snapshotCmd(ctx, withApp))
	return root
}

type appRunner func(fn func(app *server.App) error) error

func serveCmd(ctx context.Context, withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and recalculation consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(app *server.App) error {
				return app.Run(ctx)
			})
		},
	}
}

func calculateCmd(ctx context.Context, withApp appRunner) *cobra.Command {
	var (
		symbols []string
		safe    bool
	)
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Run one batch and print the summary as JSON",
		Long:  "Runs one calculation batch. Exits with status 1 when the batch is rejected or fails.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(app *server.App) error {
				run := app.Calculator.Run
				if safe {
					run = app.Safe.Run
				}
				summary, err := run(ctx, symbols)
				if summary != nil {
					if werr := writeJSON(cmd.OutOrStdout(), summary); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "limit the run to these configured symbols")
	cmd.Flags().BoolVar(&safe, "safe", false, "retry and fall back to the cached summary")
	return cmd
}

func snapshotCmd(ctx context.Context, withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot-mcap",
		Short: "Record today's global crypto market cap",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(app *server.App) error {
				p, err := app.Snapshot.Run(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), p)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
