package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/vanet-simulator/core"
	"github.com/signalsfoundry/vanet-simulator/internal/config"
	"github.com/signalsfoundry/vanet-simulator/internal/observability"
)

const defaultScenario = "configs/highway.yaml"

func newRunCmd(root *rootOptions) *cobra.Command {
	var scenarioPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario to completion as fast as possible",
		Long:  "run loads a scenario, simulates it without wall-clock pacing and prints a per-vehicle summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd)
			sc, err := config.Load(scenarioPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracing := observability.TracingConfigFromEnv()
			tracing.Scenario = sc.Name
			tracing.Output = cmd.ErrOrStderr()
			shutdown, err := observability.InitTracing(ctx, tracing, log)
			if err != nil {
				return err
			}
			defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

			eng, err := core.NewEngine(ctx, sc, core.WithLogger(log))
			if err != nil {
				return err
			}
			summary, err := eng.Run(ctx)
			if summary != nil {
				writeSummary(cmd.OutOrStdout(), sc, summary)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", defaultScenario, "path to the scenario YAML file")
	return cmd
}
