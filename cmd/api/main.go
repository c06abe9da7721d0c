package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/app"
	"github.com/Wesp1nzee/crm-deploy/internal/config"
	"github.com/Wesp1nzee/crm-deploy/internal/email"
	"github.com/Wesp1nzee/crm-deploy/internal/export"
	"github.com/Wesp1nzee/crm-deploy/internal/logging"
	"github.com/Wesp1nzee/crm-deploy/internal/metrics"
	"github.com/Wesp1nzee/crm-deploy/internal/search"
	"github.com/Wesp1nzee/crm-deploy/internal/session"
	"github.com/Wesp1nzee/crm-deploy/internal/storage"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Environment, cfg.LogLevel, "crm-api")
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	m := metrics.New("crm", nil)

	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer sessions.Close()
	sessions.SetObserver(m)

	blobs, err := storage.NewBlobStore(storage.Options{
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		UseSSL:     cfg.S3UseSSL,
		PresignTTL: cfg.PresignTTL,
	})
	if err != nil {
		logger.Fatal("object storage", zap.Error(err))
	}
	bucketCtx, cancelBucket := context.WithTimeout(ctx, 10*time.Second)
	if err := blobs.EnsureBucket(bucketCtx); err != nil {
		// Uploads fail until the bucket exists; the rest of the API works.
		logger.Warn("ensure bucket", zap.String("bucket", cfg.S3Bucket), zap.Error(err))
	}
	cancelBucket()

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewPostgres(db), logger)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Info("smtp not configured, invitations are disabled")
	}

	service := app.New(cfg, app.Dependencies{
		Store:    store.NewPostgresStore(db),
		Sessions: sessions,
		Blobs:    blobs,
		Search:   searchService,
		Mailer:   mailer,
		Reports:  export.NewService(),
		Logger:   logger,
	})
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap error (will retry on next restart)", zap.Error(err))
	}

	reindexCtx, cancelReindex := context.WithCancel(ctx)
	defer cancelReindex()
	go searchService.ReindexAllFromPG(reindexCtx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin).WithMetrics(m)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("crm api listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
