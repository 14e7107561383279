package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"notebot/pkg/api"
)

var addr string

func init() {
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.address)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()
		if addr != "" {
			cfg.Server.Address = addr
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		a, err := newApp(ctx, cfg, logger, reg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.pool.Start(ctx)
		go a.sessions.Run(ctx, cfg.Session.SweepInterval)

		handlers := api.NewHandlers(api.Options{
			Sessions:      a.sessions,
			Runner:        a.pool,
			Repository:    a.repo,
			Hub:           a.hub,
			Logger:        logger,
			MaxUploadSize: cfg.Server.MaxUploadSize,
			Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		})

		srv := &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      handlers.Router(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		serverErr := make(chan error, 1)
		go func() {
			logger.Info("server starting", zap.String("address", cfg.Server.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
			close(serverErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-serverErr:
			if err != nil {
				return err
			}
		}

		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
		}

		cancel()
		a.pool.Stop()
		logger.Info("server exited")
		return nil
	},
}
