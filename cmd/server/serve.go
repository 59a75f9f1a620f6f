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

	"mrsh/internal/api"
	"mrsh/internal/auth"
	"mrsh/internal/blob"
	"mrsh/internal/config"
	"mrsh/internal/db"
	"mrsh/internal/email"
	"mrsh/internal/methods"
	"mrsh/internal/rpc"
	"mrsh/internal/service"
	"mrsh/internal/ws"
)

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting server", "name", cfg.Server.Name)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	users := db.NewUserRepository(database)
	pending := db.NewPendingRegistrationRepository(database)
	chats := db.NewChatRepository(database)

	sessions, err := auth.NewSessions(db.NewTokenRepository(database), users, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("configuring sessions: %w", err)
	}

	store, files, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing image storage: %w", err)
	}
	slog.Info("image storage initialized", "backend", cfg.Storage.Backend, "public_url", cfg.Storage.PublicURL)

	mailer := email.NewSMTPService(
		cfg.Email.SMTP.Host,
		cfg.Email.SMTP.Port,
		cfg.Email.SMTP.Username,
		cfg.Email.SMTP.Password,
		cfg.Email.SMTP.From,
		cfg.APIURL(),
	)
	slog.Info("email configured", "host", cfg.Email.SMTP.Host, "port", cfg.Email.SMTP.Port)

	hub := ws.NewHub(chats)

	svc := service.New(service.Deps{
		Users:    users,
		Pending:  pending,
		Chats:    chats,
		Messages: db.NewMessageRepository(database),
		Friends:  db.NewFriendRepository(database),
		Sessions: sessions,
		Blobs:    blob.NewService(store),
		Mailer:   mailer,
		Notifier: hub,
	}, service.Options{
		VerificationTTL: cfg.Auth.VerificationTTL,
		BcryptCost:      cfg.Auth.BcryptCost,
		MediaBaseURL:    cfg.Storage.PublicURL,
	})

	registry, err := methods.NewRegistry(svc)
	if err != nil {
		return fmt.Errorf("building method table: %w", err)
	}
	dispatcher := rpc.NewDispatcher(registry, svc, slog.Default())

	server, err := api.NewServer(cfg, api.Deps{
		DB:         database,
		Dispatcher: dispatcher,
		Auth:       svc,
		Hub:        hub,
		Files:      files,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go db.NewCleanupService(pending, cfg.Auth.VerificationTTL).Start(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", httpServer.Addr, "base_url", cfg.Server.BaseURL, "latest_version", registry.Latest())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// openStore returns the configured image store. files is non-nil only for
// the filesystem backend, whose objects this process serves itself.
func openStore(ctx context.Context, cfg *config.Config) (store blob.Store, files *blob.FileStore, err error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		s3cfg := cfg.Storage.S3
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Prefix:    s3cfg.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		files, err := blob.NewFileStore(cfg.Storage.Root)
		if err != nil {
			return nil, nil, err
		}
		return files, files, nil
	}
}
