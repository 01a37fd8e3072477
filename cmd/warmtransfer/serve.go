package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/warmtransfer/internal/presentation/tui"
	httpAdapter "github.com/aretw0/warmtransfer/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the coordinator with its HTTP API, SSE and WebSocket event streams,
and the sweeper that expires stale transfers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			a.cfg.Addr = addr
		}

		opts := []httpAdapter.Option{
			httpAdapter.WithLogger(a.logger.With("component", "http")),
			httpAdapter.WithCORSOrigins(a.cfg.CORSOrigins...),
			httpAdapter.WithRateLimit(a.cfg.RateLimit, a.cfg.RateBurst),
			httpAdapter.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		}
		if a.bridge != nil {
			opts = append(opts, httpAdapter.WithTelephony(a.bridge))
		}

		srv := &http.Server{
			Addr:              a.cfg.Addr,
			Handler:           httpAdapter.NewHandler(a.svc, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tui.PrintBanner(os.Stderr)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a.logger.Info("Starting Warm Transfer Server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			err := a.svc.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			a.logger.Info("Start shutdown...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				return srv.Close()
			}
			a.logger.Info("Warm Transfer Server stopped gracefully")
			return nil
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides WARM_ADDR)")
}
