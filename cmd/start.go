package cmd

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/gantry-org/gantry/internal/frontend"
	"github.com/gantry-org/gantry/internal/frontend/api"
	"github.com/gantry-org/gantry/internal/logger"
	"github.com/gantry-org/gantry/internal/metrics"
)

func cmdStart() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon: graph driver and HTTP frontend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := NewContext(cmd)
			if err != nil {
				return err
			}
			return runStart(ctx)
		},
	}
}

func runStart(ctx *Context) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	store := ctx.OpenStore()
	driver, _ := ctx.NewAgent(store, collector)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := driver.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error(ctx, "Driver stopped unexpectedly", "err", err)
			cancel()
		}
	}()

	logger.Info(ctx, "Daemon starting",
		"dataDir", ctx.Config.DataDir, "addr", ctx.Config.Addr())

	server := frontend.NewServer(api.New(store, driver), ctx.Config, registry)
	return server.Serve(runCtx)
}
