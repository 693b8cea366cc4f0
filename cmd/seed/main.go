package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"usercrud/internal/config"
	"usercrud/internal/db"
	"usercrud/internal/logger"
	"usercrud/internal/model"
	"usercrud/internal/repository"
	"usercrud/internal/service"
)

// SeedUserData is one entry of the seed document.
type SeedUserData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	source := fs.String("source", "users.json", "path or http(s) URL of a JSON array of users")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	entries, err := loadSeed(*source)
	if err != nil {
		return err
	}
	log.Info("loaded seed data", zap.String("source", *source), zap.Int("users", len(entries)))

	gormDB, err := db.Open(cfg.DB.Driver, cfg.DB.DSN, dbOptions(cfg, log))
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer func() { _ = db.Close(gormDB) }()

	if err := db.PrepareSchema(gormDB, cfg.DB.SchemaMode, &model.User{}); err != nil {
		return err
	}

	svc := service.NewUserService(repository.NewUserRepository(gormDB), nil, log)
	created, failed := seedUsers(context.Background(), svc, entries, log)

	log.Info("seed completed",
		zap.Int("created", created),
		zap.Int("failed", failed),
		zap.Int("total", len(entries)),
	)
	if failed > 0 {
		return fmt.Errorf("%d of %d users could not be created", failed, len(entries))
	}
	return nil
}

// loadSeed reads seed entries from a local file or an http(s) URL.
func dbOptions(cfg *config.Config, log *zap.Logger) db.Options {
	return db.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		Logger:          log,
	}
}

func loadSeed(source string) ([]SeedUserData, error) {
	var r io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: status code %d", source, resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", source, err)
		}
		r = f
	}
	defer r.Close()

	return decodeSeed(r)
}

func decodeSeed(r io.Reader) ([]SeedUserData, error) {
	var entries []SeedUserData
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse seed JSON: %w", err)
	}
	return entries, nil
}

// seedUsers creates every entry through the service and keeps going past
// individual failures.
func seedUsers(ctx context.Context, svc service.UserService, entries []SeedUserData, log *zap.Logger) (created, failed int) {
	for _, entry := range entries {
		user, err := svc.CreateUser(ctx, entry.Name, entry.Email, entry.Age)
		if err != nil {
			log.Warn("skipping user", zap.String("email", entry.Email), zap.Error(err))
			failed++
			continue
		}
		log.Debug("created user", zap.Uint("id", user.ID))
		created++
	}
	return created, failed
}
