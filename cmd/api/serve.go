package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radif/imagestore/internal/config"
	"github.com/radif/imagestore/internal/image"
	"github.com/radif/imagestore/internal/logging"
	"github.com/radif/imagestore/internal/server"
	"github.com/radif/imagestore/internal/storage"
)

type serveOptions struct {
	configPath string
	backend    string
	port       string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the image API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel).With("backend", cfg.Backend)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler, err := buildHandler(ctx, cfg, log)
			if err != nil {
				return err
			}
			return run(ctx, cfg, handler, log)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a .toml or .yaml config file (default $IMAGESTORE_CONFIG)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", `storage backend, "disk" or "remote" (default $STORAGE_BACKEND or disk)`)
	cmd.Flags().StringVar(&opts.port, "port", "", "listen port (default $PORT or 5000)")

	return cmd
}

// loadConfig applies flag overrides on top of file and environment values.
func loadConfig(opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildHandler wires storage → service → handler → router for the
// configured backend.
func buildHandler(ctx context.Context, cfg *config.Config, log *slog.Logger) (http.Handler, error) {
	deps := server.RouterDeps{
		CORSOrigins: cfg.CORSOrigins,
		Logger:      log,
	}

	var (
		store   storage.Storage
		variant image.Variant
	)
	switch cfg.Backend {
	case config.BackendDisk:
		local, err := storage.NewLocalStorage(cfg.Disk.Dir, cfg.Disk.URLPrefix)
		if err != nil {
			return nil, fmt.Errorf("local storage init failed: %w", err)
		}
		store, variant = local, image.DiskVariant
		deps.Files = local
		deps.FilesPrefix = local.URLPrefix()
		log.Info("storing images on disk", "dir", local.Dir(), "url_prefix", local.URLPrefix())
	case config.BackendRemote:
		remote, err := storage.NewMinioStorage(ctx, storage.MinioOptions{
			Endpoint:   cfg.Remote.Endpoint,
			AccessKey:  cfg.Remote.AccessKey,
			SecretKey:  cfg.Remote.SecretKey,
			Bucket:     cfg.Remote.Bucket,
			Folder:     cfg.Remote.Folder,
			PublicBase: cfg.Remote.PublicBase,
			UseSSL:     cfg.Remote.UseSSL,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("object storage init failed: %w", err)
		}
		store, variant = remote, image.RemoteVariant
		log.Info("storing images in object storage", "endpoint", cfg.Remote.Endpoint, "bucket", cfg.Remote.Bucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	svc := image.NewService(store, variant, log)
	deps.Images = image.NewHandler(svc, image.Limits{
		MaxBytes:          cfg.Upload.MaxBytes,
		MultipartMemory:   cfg.Upload.MultipartMemory,
		AllowedMediaTypes: cfg.Upload.AllowedMediaTypes,
	}, log)

	return server.NewRouter(deps), nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.AppEnv)
		log.Info("swagger UI available", "url", "http://localhost:"+cfg.Port+"/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
