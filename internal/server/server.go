// Package server provides the main server initialization and run logic.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/api"
	"github.com/hirewire/portal/internal/api/handlers"
	"github.com/hirewire/portal/internal/config"
	"github.com/hirewire/portal/internal/db"
	"github.com/hirewire/portal/internal/lock"
	"github.com/hirewire/portal/internal/logger"
	"github.com/hirewire/portal/internal/rbac"
	"github.com/hirewire/portal/internal/service"
	"github.com/hirewire/portal/internal/storage"
	"github.com/hirewire/portal/internal/worker"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Config holds the server configuration options.
type Config struct {
	Port    int    // Port to run the server on (0 = use config default)
	Mode    string // Run mode: server, worker, or both
	Version string // Version string to report
}

// Setup loads configuration, initializes logging and opens a migrated
// database with the RBAC enforcer ready.
func Setup() (*config.Config, *gorm.DB, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Init(appCfg.Log.Format, appCfg.Log.Level)

	database, err := db.New(appCfg.Database, appCfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Database initialized", "driver", appCfg.Database.Driver)

	if err := db.Migrate(database); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database migrations completed")

	if err := rbac.InitEnforcer(database, slog.Default()); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize RBAC: %w", err)
	}

	return appCfg, database, nil
}

// Run starts the server with the given configuration and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Version != "" {
		handlers.Version = cfg.Version
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "both"
	}
	runServer := mode == "server" || mode == "both"
	runWorker := mode == "worker" || mode == "both"
	if !runServer && !runWorker {
		return fmt.Errorf("invalid mode %q: valid modes are server, worker, both", mode)
	}

	appCfg, database, err := Setup()
	if err != nil {
		return err
	}

	// Override port from CLI flag if provided
	if cfg.Port != 0 {
		appCfg.Server.Port = cfg.Port
	}
	slog.Info("Starting portal", "version", handlers.Version, "mode", appCfg.Server.Mode)

	if err := db.CreateDefaultAdmin(database); err != nil {
		return fmt.Errorf("failed to create default admin user: %w", err)
	}

	var locker lock.Locker
	var store storage.Store
	if runServer {
		locker, err = NewLocker(appCfg.Lock)
		if err != nil {
			return fmt.Errorf("failed to initialize lock: %w", err)
		}
		defer locker.Close()
		slog.Info("Client-number lock initialized", "type", appCfg.Lock.Type)

		store, err = NewStore(ctx, appCfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize attachment storage: %w", err)
		}
		slog.Info("Attachment storage initialized", "type", appCfg.Storage.Type)
	}

	g, gctx := errgroup.WithContext(ctx)

	if runWorker {
		w := worker.New(service.NewSubscriptionService(database), slog.Default(), appCfg.Worker.ExpiryInterval)
		g.Go(func() error {
			if err := w.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("worker failed: %w", err)
			}
			return nil
		})
	}

	if runServer {
		addr := fmt.Sprintf(":%d", appCfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewRouter(appCfg, database, locker, store),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			slog.Info("Server listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("Shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			slog.Info("Server stopped")
			return nil
		})
	}

	err = g.Wait()
	slog.Info("Portal exited")
	return err
}

// RunWithSignalHandling starts the server and handles OS signals for graceful shutdown.
func RunWithSignalHandling(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()

	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig)
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Repair rebuilds missing or drifted roles index rows and reports what changed.
func Repair(ctx context.Context) (*service.RepairReport, error) {
	appCfg, database, err := Setup()
	if err != nil {
		return nil, err
	}

	locker, err := NewLocker(appCfg.Lock)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock: %w", err)
	}
	defer locker.Close()

	return service.NewRoleService(database, locker, nil, 0).RepairMirrors(ctx, uuid.Nil)
}

// NewLocker creates the client-number locker selected by configuration.
func NewLocker(cfg config.LockConfig) (lock.Locker, error) {
	switch cfg.Type {
	case "", "memory":
		return lock.NewMemoryLocker(), nil
	case "valkey":
		if cfg.ValkeyAddr == "" {
			return nil, fmt.Errorf("valkey address is required when lock type is valkey")
		}
		return lock.NewValkeyLocker(cfg.ValkeyAddr, cfg.TTL)
	default:
		return nil, fmt.Errorf("unsupported lock type: %s (supported: memory, valkey)", cfg.Type)
	}
}

// NewStore creates the attachment store selected by configuration.
func NewStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "local":
		return storage.NewLocalStore(cfg.LocalDir)
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return nil, fmt.Errorf("minio endpoint and bucket are required when storage type is minio")
		}
		return storage.NewMinIOStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: local, minio)", cfg.Type)
	}
}
