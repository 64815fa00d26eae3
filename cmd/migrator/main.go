// migrator применяет SQL-миграции к Postgres-хранилищу пользователей.
// Для драйвера mongo ничего не делает: индексы создаёт сам сервис при старте.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/storage/postgres"
)

func main() {
	var (
		configPath string
		timeout    time.Duration
	)
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.DurationVar(&timeout, "timeout", time.Minute, "migration timeout")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if cfg.DB.Driver != config.DriverPostgres {
		log.Info("migrations_skipped", slog.String("driver", cfg.DB.Driver))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := postgres.Migrate(ctx, cfg.DB.DatabaseURL); err != nil {
		log.Error("migrations_failed", slog.String("err", err.Error()))
		cancel()
		os.Exit(1)
	}

	log.Info("migrations_applied")
}
