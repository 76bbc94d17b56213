package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskflow/internal/auth"
	"taskflow/internal/logging"
	"taskflow/internal/server"
	"taskflow/internal/service"
	db "taskflow/repository/db"
	storage "taskflow/repository/inmemory"
	mongostore "taskflow/repository/mongo"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 30 * time.Second

// API is the part of server.TaskAPI that main drives.
type API interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tasks: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := server.ReadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(os.Stdout, cfg.LogLevel)
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	log.Info(ctx, "starting task service", "version", server.Version, "store", cfg.StoreDriver)

	users, tasks, closeStore, err := InitializeRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		return err
	}

	api := server.NewTaskAPI(
		service.NewAccounts(users, tasks, auth.NewHasher(), codec, log),
		service.NewTasks(tasks, log),
		codec,
		cfg,
		log,
	)
	if api == nil {
		return fmt.Errorf("failed to initialize API")
	}

	sigChan, serverErr := StartServer(api, cfg, log)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		return HandleShutdown(api, sig, log)
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}
}

// RunMigrations brings the PostgreSQL schema up to date.
func RunMigrations(cfg *server.Config) error {
	return db.Migration(cfg.DBStr, cfg.MigratePath)
}

// InitializeRepositories opens the store selected by cfg.StoreDriver. The
// returned func releases it. Any failure is returned as is: there is no
// fallback to another driver.
func InitializeRepositories(ctx context.Context, cfg *server.Config, log logging.Logger) (service.UserStore, service.TaskStore, func(), error) {
	switch cfg.StoreDriver {
	case server.DriverPostgres:
		if err := RunMigrations(cfg); err != nil {
			return nil, nil, nil, err
		}
		log.Info(ctx, "migrations applied", "path", cfg.MigratePath)

		s, err := db.NewStorage(ctx, cfg.DBStr, cfg.StoreTimeout, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s.Close, nil

	case server.DriverMongo:
		s, err := mongostore.NewStorage(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.StoreTimeout, log)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			cctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
			defer cancel()
			if err := s.Close(cctx); err != nil {
				log.Warn(cctx, "mongo disconnect failed", "error", err.Error())
			}
		}
		return s, s, closeFn, nil

	case server.DriverMemory:
		log.Warn(ctx, "using in-memory store, data is lost on restart")
		s := storage.NewStorage()
		return s, s, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// StartServer runs api in the background. The first channel receives
// SIGINT/SIGTERM, the second a fatal serve error.
func StartServer(api API, cfg *server.Config, log logging.Logger) (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info(context.Background(), "listening", "addr", cfg.ListenAddr())
		if err := api.Start(); err != nil {
			serverErr <- err
		}
	}()

	return sigChan, serverErr
}

// HandleShutdown drains in-flight requests, giving up after shutdownTimeout.
func HandleShutdown(api API, sig os.Signal, log logging.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info(ctx, "shutting down", "signal", sig.String())
	if err := api.Shutdown(ctx); err != nil {
		log.Error(ctx, "graceful shutdown failed", "error", err.Error())
		return err
	}
	log.Info(ctx, "shutdown complete")
	return nil
}
