// cmd/db/main.go bootstraps the Postgres schema and can audit the ledger
// against the stored ratings.
//
//	db migrate   create tables if missing (default)
//	db verify    replay every game and report rating drift
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/eloledger/internal/config"
	"github.com/jason-s-yu/eloledger/internal/database"
	"github.com/jason-s-yu/eloledger/internal/ledger"
	"github.com/jason-s-yu/eloledger/internal/rating"
	"github.com/jason-s-yu/eloledger/internal/registry"
	"github.com/sirupsen/logrus"
)

func main() {
	envFile := flag.String("env", "", "optional env file to load")
	flag.Parse()

	logger := logrus.New()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.StoreDriver != config.DriverPostgres {
		logger.Fatalf("STORE_DRIVER=%s has no schema to manage", cfg.StoreDriver)
	}

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "migrate"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg, logger); err != nil {
		logger.WithError(err).WithField("command", cmd).Fatal("db command failed")
	}
}

func run(ctx context.Context, cmd string, cfg *config.Config, logger *logrus.Logger) error {
	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	switch cmd {
	case "migrate":
		logger.Info("schema is up to date")
		return nil

	case "verify":
		s := database.NewStore(pool)
		engine, err := rating.NewEngine(cfg.Rating)
		if err != nil {
			return err
		}
		reg := registry.New(s, logger, registry.WithSeedRatings(cfg.BotSeedRatings))
		report, err := ledger.New(s, reg, engine, cfg.Ledger, logger).Verify(ctx)
		if err != nil {
			return err
		}
		for _, m := range report.Mismatches {
			logger.WithFields(logrus.Fields{
				"seq":    m.Seq,
				"player": m.Player.Key(),
				"stored": m.Stored,
				"replay": m.Replay,
			}).Warn("rating drift")
		}
		if !report.OK() {
			return fmt.Errorf("%d ratings differ from a ledger replay", len(report.Mismatches))
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (want migrate or verify)", cmd)
	}
}
