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

	"github.com/AnTengye/contracthub/config"
	"github.com/AnTengye/contracthub/handler"
	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/AnTengye/contracthub/service"
	"github.com/AnTengye/contracthub/store"
	"github.com/gin-gonic/gin"
)

const envConfigPath = "CONTRACTHUB_CONFIG"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()
	if p := os.Getenv(envConfigPath); p != "" && !flagSet("config") {
		*configPath = p
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.Info("configuration loaded successfully", "path", *configPath)

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server exited gracefully")
}

func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := store.Open(startCtx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	locker, closeLocker, err := newLocker(startCtx, &cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	files, err := service.NewMinioStorage(&cfg.Minio)
	if err != nil {
		return fmt.Errorf("failed to initialize MINIO storage: %w", err)
	}
	if err := files.EnsureBucket(startCtx); err != nil {
		return fmt.Errorf("failed to ensure MINIO bucket: %w", err)
	}

	workflow := service.NewWorkflow(st, locker, service.WorkflowOptions{
		RequireRejectionReason: cfg.Workflow.RequireRejectionReason,
		DisableLegacyDecisions: cfg.Workflow.DisableLegacyDecisions,
		Reviewers:              cfg,
	})

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(cfg, workflow, files)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-quit:
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func newLocker(ctx context.Context, cfg *config.LockConfig) (service.Locker, func(), error) {
	switch cfg.Driver {
	case config.LockRedis:
		l, err := service.NewRedisLockerFromConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using redis lock", "addr", cfg.RedisAddr)
		return l, func() { _ = l.Close() }, nil
	default:
		return service.NewKeyedMutex(), func() {}, nil
	}
}
