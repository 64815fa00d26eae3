package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pribylovaa/tweeter-auth/internal/cache"
	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/mailer"
	"github.com/pribylovaa/tweeter-auth/internal/metrics"
	"github.com/pribylovaa/tweeter-auth/internal/service"
	"github.com/pribylovaa/tweeter-auth/internal/storage"
	"github.com/pribylovaa/tweeter-auth/internal/storage/mongo"
	"github.com/pribylovaa/tweeter-auth/internal/storage/postgres"
	"github.com/pribylovaa/tweeter-auth/internal/token"
	httptransport "github.com/pribylovaa/tweeter-auth/internal/transport/http"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// Подключения к хранилищам c таймаутом.
	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	str, err := openStorage(connCtx, cfg.DB)
	if err != nil {
		connCancel()
		return err
	}
	defer str.Close(context.Background())
	log.Info("storage_connected", slog.String("driver", cfg.DB.Driver))

	rdb, err := cache.NewRedisClient(connCtx, cfg.Redis.RedisURL)
	connCancel()
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info("redis_connected")

	sessions := cache.NewRedis(rdb, cfg.Redis.Prefix)

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	svc := service.New(service.Deps{
		Users:     str,
		Sessions:  sessions,
		Blacklist: sessions,
		Codec:     token.New(cfg.Auth),
		Mailer:    mailer.New(cfg.Mail),
		Metrics:   m,
		Config:    cfg.Auth,
	})
	log.Info("service_initialized")

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: httptransport.NewRouter(svc, httptransport.Options{
			Logger:         log,
			Timeout:        cfg.Timeouts.Service,
			BasePath:       "/api",
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Metrics:        m,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	opsSrv := metrics.NewServer(cfg.Metrics.Addr(), reg, func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		return str.Ping(ctx)
	})

	serveErrCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiSrv, opsSrv} {
		go func(srv *http.Server) {
			log.Info("http_listen_start", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErrCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
	}

	// Graceful stop с таймаутом: сначала API, потом служебный сервер.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = apiSrv.Close()
	}
	_ = opsSrv.Shutdown(shutdownCtx)

	return serveErr
}

// openStorage подключает Credential Store выбранного драйвера.
func openStorage(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return mongo.New(ctx, cfg.DatabaseURL)
	}
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
