package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"relay/internal/server/api"
	"relay/internal/server/config"
	"relay/internal/server/control"
	"relay/internal/server/database"
	"relay/internal/server/lifecycle"
	"relay/internal/server/metadata"
	"relay/internal/server/service"
	"relay/internal/server/storage"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"metadata_backend", cfg.MetadataBackend,
		"max_file_size", cfg.MaxFileSize,
		"default_expiry_hours", cfg.DefaultExpiryHours,
	)

	// An operator can park the relay with `relay shutdown`.
	ctrl := control.NewFile(cfg.ControlFile)
	requested, err := ctrl.IsShutdownRequested()
	if err != nil {
		slog.Error("failed to read control file", "path", ctrl.Path(), "error", err)
		os.Exit(1)
	}
	if requested {
		slog.Info("shutdown requested in control file, not starting", "path", ctrl.Path())
		os.Exit(0)
	}

	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	ctx := context.Background()
	meta, closeMeta, err := openMetadata(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize metadata backend", "backend", cfg.MetadataBackend, "error", err)
		os.Exit(1)
	}

	checks := map[string]metadata.Pinger{"storage": store}
	if p, ok := meta.(metadata.Pinger); ok {
		checks["metadata"] = p
	}

	engine := lifecycle.NewEngine(store, meta, cfg.DefaultRetention)
	svc := service.NewRelay(store, meta, engine, service.Options{
		MaxFileSize:        cfg.MaxFileSize,
		DefaultExpiryHours: cfg.DefaultExpiryHours,
		BaseURL:            cfg.BaseURL,
	})

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	reaper := lifecycle.NewReaper(engine, cfg.CleanupInterval)
	reaper.Start(reaperCtx)

	handler := api.NewHandler(svc, checks)
	e := api.SetupRouter(handler, cfg)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server",
			"addr", addr,
			"base_url", cfg.BaseURL,
			"site_title", ctrl.SiteTitle(cfg.SiteTitle),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return e.Shutdown(ctx)
			},
			"reaper": func(ctx context.Context) error {
				reaperCancel()
				reaper.Wait()
				return nil
			},
		},
	)

	exitCode := <-wait
	closeMeta()
	slog.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}

// openMetadata connects the configured descriptor backend. The returned
// func releases it.
func openMetadata(ctx context.Context, cfg *config.Config) (metadata.Store, func(), error) {
	switch cfg.MetadataBackend {
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("database migrations complete")
		return metadata.NewPostgresStore(db), db.Close, nil

	case config.BackendRedis:
		client, err := metadata.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rs := metadata.NewRedisStore(client)
		return rs, func() {
			if err := rs.Close(); err != nil {
				slog.Error("failed to close redis client", "error", err)
			}
		}, nil

	default:
		return metadata.NewFileStore(cfg.StoragePath), func() {}, nil
	}
}
