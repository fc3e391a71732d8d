package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zjrosen/regd/internal/app"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
)

var (
	serveAddr    string
	serveNoWatch bool
	serveNodeID  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the registry context live behind the admin API",
	Long: `Load the descriptor, build the registry context and serve the admin
API. When watching is enabled the descriptor is reloaded on every change; a
descriptor that fails to load leaves the running configuration in place.

Examples:
  regd serve -d registry.xml
  regd serve --addr :9763 --no-watch
  REGD_HTTP_JWT_SECRET=... regd serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides settings)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not reload when the descriptor changes")
	serveCmd.Flags().StringVar(&serveNodeID, "node-id", "", "node identifier (default: generated)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	if serveNoWatch {
		cfg.Watch.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []app.Option{app.WithMetrics(metrics.New(reg))}
	if serveNodeID != "" {
		opts = append(opts, app.WithNodeID(serveNodeID))
	}
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			log.ErrorErr(log.CatApp, "Shutdown incomplete", err)
		}
	}()

	if err := a.Reload(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}
	log.Info(log.CatApp, "regd started", "version", version, "node", a.Current().NodeID(), "addr", cfg.HTTP.Addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "regd serving %s on %s\n", cfg.Descriptor.Path, cfg.HTTP.Addr)

	if err := a.Run(ctx); err != nil {
		return err
	}
	log.Info(log.CatApp, "regd stopped")
	return nil
}
