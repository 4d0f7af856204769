// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/eloledger/internal/config"
	"github.com/jason-s-yu/eloledger/internal/database"
	"github.com/jason-s-yu/eloledger/internal/events"
	"github.com/jason-s-yu/eloledger/internal/handlers"
	"github.com/jason-s-yu/eloledger/internal/ledger"
	"github.com/jason-s-yu/eloledger/internal/middleware"
	"github.com/jason-s-yu/eloledger/internal/rating"
	"github.com/jason-s-yu/eloledger/internal/registry"
	"github.com/jason-s-yu/eloledger/internal/store"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	s, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := rating.NewEngine(cfg.Rating)
	if err != nil {
		return err
	}
	reg := registry.New(s, logger, registry.WithSeedRatings(cfg.BotSeedRatings))

	hub := events.NewHub(logger)
	defer hub.Close()
	opts := []ledger.Option{ledger.WithNotifier(hub)}

	if cfg.RedisAddr != "" {
		rdb, err := events.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, ledger.WithNotifier(events.NewQueue(rdb, cfg.RatingQueue)))
		logger.WithFields(logrus.Fields{
			"addr":  cfg.RedisAddr,
			"queue": cfg.RatingQueue,
		}).Info("publishing rating events to redis")
	}

	l := ledger.New(s, reg, engine, cfg.Ledger, logger, opts...)
	api := handlers.NewServer(reg, l, logger,
		handlers.WithRatingFeed(hub),
		handlers.WithMaxBodyBytes(handlers.BodyLimitFor(cfg.Ledger.MaxPayloadBytes)),
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.LogMiddleware(logger)(api.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":   srv.Addr,
			"driver": cfg.StoreDriver,
		}).Info("Running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		s := store.NewMemStore()
		return s, func() { _ = s.Close() }, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return database.NewStore(pool), pool.Close, nil
}
