package main

import (
	"github.com/spf13/cobra"
	"github.com/zulandar/stenograph/internal/proxy"
	"github.com/zulandar/stenograph/internal/queue"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the forwarding proxy server",
		Long:  "Forwards client traffic to the upstream provider while archiving every exchange for analytics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Proxy.Port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	srv := proxy.NewServer(gormDB, store, queue.New(gormDB))
	return srv.Start(ctx, port, cmd.OutOrStdout())
}
