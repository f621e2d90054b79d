package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rdistcc/internal/config"
	"rdistcc/internal/observability"
	"rdistcc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference compile server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logging.Level)

	srv := server.New(
		cfg.Server.ListenAddr,
		cfg.Server.HTTPAddr,
		cfg.Server.Capacity,
		cfg.Server.Compress,
		cfg.GetTempDir(),
		!cfg.Dispatch.TempDeletion,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.LogInfof("rdistcc: serving on %s (http %s)", cfg.Server.ListenAddr, cfg.Server.HTTPAddr)
	return srv.ListenAndServe(ctx)
}
