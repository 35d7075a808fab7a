package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/vanet-simulator/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	addSource bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "vanet-simulator",
		Short:         "Vehicular network PHY and travel-time knowledge simulator",
		Long:          "vanet-simulator runs scenarios of vehicles exchanging travel-time reports over a simulated 802.11 PHY.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	env := logging.ConfigFromEnv()
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", env.Level, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", env.Format, "log format (text or json)")
	opts.addSource = env.AddSource

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// logger writes to the command's stderr so stdout carries only results.
func (o *rootOptions) logger(cmd *cobra.Command) logging.Logger {
	return logging.New(logging.Config{
		Level:     o.logLevel,
		Format:    o.logFormat,
		AddSource: o.addSource,
		Output:    cmd.ErrOrStderr(),
	})
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
