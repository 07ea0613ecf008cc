// Package app wires the ROADM AM's configuration, infrastructure, and
// domain packages together and dispatches to the selected run mode.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/opennaas/roadm-am/internal/config"
	"github.com/opennaas/roadm-am/internal/httpserver"
	"github.com/opennaas/roadm-am/internal/notify"
	"github.com/opennaas/roadm-am/internal/platform"
	"github.com/opennaas/roadm-am/internal/telemetry"
	"github.com/opennaas/roadm-am/pkg/controllerclient"
	"github.com/opennaas/roadm-am/pkg/reconciler"
	"github.com/opennaas/roadm-am/pkg/resourcemanager"
	"github.com/opennaas/roadm-am/pkg/store"
	"github.com/opennaas/roadm-am/pkg/ticker"
)

const reconcilerLockTTL = 30 * time.Second

// Run is the application's entry point: it loads infrastructure, builds the
// domain graph, and runs the mode selected by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := platform.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting roadm-am",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	db, err := platform.OpenSQLite(cfg.DBDir)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
		logger.Info("redis enabled")
	} else {
		logger.Info("redis disabled (REDIS_URL not set): reconciler lock and queue/execute dedup run single-instance")
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	s := store.New(db)
	cc := controllerclient.NewClient(controllerclient.Config{
		ServerAddress:    cfg.OpenNaaSServerAddress,
		ServerPort:       cfg.OpenNaaSServerPort,
		User:             cfg.OpenNaaSUser,
		Password:         cfg.OpenNaaSPassword,
		UseTLS:           cfg.OpenNaaSUseTLS,
		CheckCredentials: cfg.CheckCredentials,
	}, 30*time.Second, logger)

	notifier := notify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack alerting enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack alerting disabled (SLACK_BOT_TOKEN or SLACK_ALERT_CHANNEL not set)")
	}

	rec := reconciler.New(s, cc, logger, rdb, notifier, cfg.UpdateStep, cfg.AuditHorizon, reconcilerLockTTL)
	mgr := resourcemanager.New(s, cc, logger, rdb, cfg.ReservationTimeout()).WithAlerter(notifier)
	tk := ticker.New(s, cc, rec, logger, rdb, cfg.UpdateTimeout(), cfg.CheckExpireTimeout()).WithAlerter(notifier)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, mgr)
	case "reconciler":
		return runReconciler(ctx, logger, tk)
	case "all":
		errCh := make(chan error, 2)
		go func() { errCh <- runAPI(ctx, cfg, logger, db, rdb, metricsReg, mgr) }()
		go func() { errCh <- runReconciler(ctx, logger, tk) }()
		if err := <-errCh; err != nil {
			return err
		}
		return <-errCh
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB, rdb *redis.Client, metricsReg *prometheus.Registry, mgr *resourcemanager.Manager) error {
	srv := httpserver.NewServer(httpserver.Config{}, logger, db, rdb, metricsReg)

	debugHandler := resourcemanager.NewHandler(mgr, logger)
	srv.APIRouter.Mount("/", debugHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runReconciler(ctx context.Context, logger *slog.Logger, tk *ticker.Ticker) error {
	logger.Info("reconciler worker started")
	tk.Run(ctx)
	return nil
}
