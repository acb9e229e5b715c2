package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prassanna-ravishankar/torale/internal/agent"
	"github.com/prassanna-ravishankar/torale/internal/config"
	"github.com/prassanna-ravishankar/torale/internal/engine"
	"github.com/prassanna-ravishankar/torale/internal/logger"
	"github.com/prassanna-ravishankar/torale/internal/monitoring"
	"github.com/prassanna-ravishankar/torale/internal/notify"
	"github.com/prassanna-ravishankar/torale/internal/storage"
)

func engineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engine",
		Short: "Run the task execution engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

			client, err := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
			if err != nil {
				return err
			}
			store := storage.NewRedisStore(client)
			defer store.Close()

			gateway, err := agent.NewHTTPGateway(agent.Config{
				BaseURL: cfg.Agent.BaseURL,
				Token:   cfg.Agent.Token,
				Timeout: cfg.Agent.Timeout,
			})
			if err != nil {
				return err
			}

			var notifier notify.Notifier
			if cfg.Notifier.WebhookURL != "" {
				notifier, err = notify.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
				if err != nil {
					return err
				}
			}
			dispatcher := notify.NewDispatcher(notifier, logger.WithComponent(log, "dispatcher"))

			metrics := monitoring.New()
			if cfg.Metrics.Enabled {
				go serveMetrics(log, cfg.Metrics.ListenAddr, metrics)
			}

			svc := engine.NewService(store, gateway, dispatcher, metrics,
				logger.WithComponent(log, "engine"), cfg.Engine)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return svc.Run(ctx)
		},
	}
}

func serveMetrics(log zerolog.Logger, addr string, metrics *monitoring.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
