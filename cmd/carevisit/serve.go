package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"carevisit/internal/api"
	"carevisit/internal/config"
	"carevisit/internal/events"
	"carevisit/internal/metrics"
	"carevisit/internal/model"
	"carevisit/internal/store"
)

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, system hold sync, month-end audit and backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, rootOpts *rootOptions) error {
	a, err := newApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	logger := &a.logger

	if cfg.AMQP.URL != "" {
		publisher, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("AMQP unavailable, events stay in-process")
		} else {
			defer publisher.Close()
			publisher.Attach(a.bus)
		}
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, a)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, a)
	}

	go store.NewBackupService(a.db, cfg.Backup, logger).Start(ctx)

	// The watcher applies the file once before returning, so blackout dates
	// and windows are in place before the first sync.
	resync := make(chan struct{}, 1)
	err = config.WatchFacilities(ctx, cfg.FacilitiesPath, 30*time.Second, logger, func(fc *config.FacilitiesConfig) {
		if err := a.applyFacilities(ctx, fc); err != nil {
			logger.Error().Err(err).Msg("Failed to apply facilities")
			return
		}
		select {
		case resync <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("watch facilities: %w", err)
	}
	select {
	case <-resync:
	default:
	}
	go runSystemKeepSync(ctx, a, resync)

	if cfg.Audit.Enabled {
		go a.newAudit(true).Start(ctx)
	}

	if cfg.API.Enabled {
		loc, _ := cfg.Location()
		server := api.NewHTTPServer(a.svc, api.Options{
			Port:      cfg.API.Port,
			RateLimit: cfg.API.RateLimit,
			RateBurst: cfg.API.RateBurst,
			Location:  loc,
			Rules:     func() []model.RecurringRule { return a.Facilities().Rules() },
		}, logger)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP API stopped")
			}
		}()
	}

	logger.Info().Msg("carevisit started")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

// runSystemKeepSync stores rule-generated holds on start, on every interval
// and after each facilities reload.
func runSystemKeepSync(ctx context.Context, a *app, resync <-chan struct{}) {
	ticker := time.NewTicker(a.cfg.SyncInterval())
	defer ticker.Stop()

	for {
		if _, err := a.svc.SyncSystemKeeps(ctx, a.Facilities().Rules(), a.cfg.Horizon.MonthsAhead); err != nil {
			a.logger.Error().Err(err).Msg("System keep sync failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-resync:
		}
	}
}

func startHealthServer(ctx context.Context, port int, a *app) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := a.db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if a.rdb != nil {
			if err := a.rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	serve(ctx, port, mux, a, "health")
}

func startMetricsServer(ctx context.Context, port int, a *app) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serve(ctx, port, mux, a, "metrics")
}

func serve(ctx context.Context, port int, handler http.Handler, a *app, name string) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error().Err(err).Msgf("%s server error", name)
	}
}
