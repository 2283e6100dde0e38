package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/procura/api/internal/config"
	"github.com/procura/api/internal/document"
	"github.com/procura/api/internal/events"
	"github.com/procura/api/internal/notify"
	"github.com/procura/api/internal/router"
	"github.com/procura/api/internal/service"
	"github.com/procura/api/internal/ws"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("open document store")
	}
	defer closeStore()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			logger.WithError(err).Fatal("connect to NATS")
		}
		defer nc.Close()
		publisher = nc
		logger.WithField("url", cfg.NATSURL).Info("publishing request events to NATS")
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	svc := service.New(store,
		service.WithLogger(logger),
		service.WithPublisher(publisher),
		service.WithNotifier(notify.Fanout{hub, notify.LogSink{Logger: logger}}),
	)
	go sweepSessions(ctx, svc, cfg.SessionIdleTimeout)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router.New(cfg, svc, hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"backend": cfg.DocumentBackend,
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

// openStore connects the configured document backend.
func openStore(ctx context.Context, cfg *config.Config) (document.Store, func(), error) {
	switch cfg.DocumentBackend {
	case config.BackendFrappe:
		return document.NewFrappeClient(cfg.Frappe.URL, cfg.Frappe.APIKey, cfg.Frappe.APISecret, nil), func() {}, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		store := document.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		if cfg.FixturePath == "" {
			return document.NewMemoryStore(), func() {}, nil
		}
		store, err := document.LoadFixture(cfg.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func sweepSessions(ctx context.Context, svc *service.Service, maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Sweep(maxIdle)
		}
	}
}
