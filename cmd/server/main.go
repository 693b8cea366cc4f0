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

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"usercrud/internal/cache"
	"usercrud/internal/config"
	"usercrud/internal/db"
	"usercrud/internal/handler"
	"usercrud/internal/logger"
	"usercrud/internal/model"
	"usercrud/internal/repository"
	"usercrud/internal/router"
	"usercrud/internal/service"
	"usercrud/internal/telemetry"
)

const version = "1.0.0"

// @title User CRUD API
// @version 1.0
// @description Create, read, update and delete users.
// @host localhost:8080
// @BasePath /api
// @schemes http
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
	}, log)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	gormDB, err := db.Open(cfg.DB.Driver, cfg.DB.DSN, db.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.PrepareSchema(gormDB, cfg.DB.SchemaMode, &model.User{}); err != nil {
		return err
	}
	log.Info("schema ready", zap.String("driver", cfg.DB.Driver), zap.String("mode", cfg.DB.SchemaMode))

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = cacheClient.Close() }()
	if err := cacheClient.Ping(context.Background()); err != nil {
		log.Warn("redis unavailable, lookups will hit the database", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(gormDB)
	userService := service.NewUserService(userRepo, cacheClient, log, service.WithCacheTTL(cfg.Redis.CacheTTL))
	userHandler := handler.NewUserHandler(userService)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.Register(e, log, userHandler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.ServerPort
		log.Info("server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
