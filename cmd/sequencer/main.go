package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"code.straitex.io/sequencer/config"
	"code.straitex.io/sequencer/core/journal"
	"code.straitex.io/sequencer/core/sequencer"
	"code.straitex.io/sequencer/gateway"
	"code.straitex.io/sequencer/logging"
	"code.straitex.io/sequencer/metrics"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "sequencer",
		Short: "Deterministic exchange sequencer",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "sequencer.toml", "path to the configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write a default configuration file",
			RunE: func(_ *cobra.Command, _ []string) error {
				if _, err := os.Stat(configPath); err == nil {
					return fmt.Errorf("configuration already exists at %s", configPath)
				}
				return config.Write(configPath, config.NewDefaultConfig())
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the sequencer",
			RunE: func(_ *cobra.Command, _ []string) error {
				return run(configPath)
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Read(path)
	if err != nil {
		return err
	}

	log := logging.NewLogger(cfg.Logging)
	defer log.AtExit()

	jrnl, err := journal.New(log, cfg.Journal)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	app := sequencer.New(log, cfg.Sequencer)
	gw, err := gateway.New(log, cfg.Gateway, app, jrnl)
	if err != nil {
		return err
	}
	defer gw.Close()

	go func() {
		if err := metrics.Start(cfg.Metrics); err != nil {
			log.Error("metrics endpoint failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("sequencer started")
	return gw.Run(ctx)
}
