package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stenograph/internal/notify"
	"github.com/zulandar/stenograph/internal/queue"
	"github.com/zulandar/stenograph/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start the event queue consumer",
		Long:  "Consumes provider-request and update-session events: correlation, replay, summarization and persistence.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	return cmd
}

func runWorker(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}

	w, err := worker.New(worker.Opts{
		DB:       gormDB,
		Store:    store,
		Queue:    queue.New(gormDB),
		Config:   cfg.Worker,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Worker running with %d slot(s)\n", cfg.Worker.Slots)
	return w.Run(ctx)
}
