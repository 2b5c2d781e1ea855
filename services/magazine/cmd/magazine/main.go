package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sibusisongondo/Tdone/internal/ratelimit"
	"github.com/Sibusisongondo/Tdone/internal/usertoken"
	"github.com/Sibusisongondo/Tdone/internal/util"
	"github.com/Sibusisongondo/Tdone/pkg/storage"
	"github.com/Sibusisongondo/Tdone/pkg/store"
	"github.com/Sibusisongondo/Tdone/services/magazine/internal/app"
	"github.com/Sibusisongondo/Tdone/services/magazine/internal/config"
	"github.com/Sibusisongondo/Tdone/services/magazine/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	presignExpiry, _ := config.ParseDuration("presignExpiry", cfg.PresignExpiry)
	viewerTTL, _ := config.ParseDuration("viewerStateTTL", cfg.ViewerStateTTL)
	jwtLeeway, _ := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)

	metaStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer metaStore.Close()

	var (
		objects storage.ObjectStore
		files   http.Handler
	)
	switch cfg.StorageBackend {
	case config.StorageFS:
		baseURL := cfg.FilesBaseURL
		if baseURL == "" {
			baseURL = cfg.PublicBaseURL
		}
		fileStore, err := storage.NewFileStore(cfg.StoragePath, baseURL)
		if err != nil {
			log.Fatalf("failed to init file storage: %v", err)
		}
		objects = fileStore
		files = fileStore.Handler()
	default:
		minioStore, err := storage.NewMinioStore(context.Background(), storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
		})
		if err != nil {
			log.Fatalf("failed to init minio: %v", err)
		}
		objects = minioStore
	}

	viewerStates := store.NewRedisViewerStateStore(cfg.RedisAddr, cfg.RedisPassword, viewerTTL)
	defer viewerStates.Close()
	revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	defer revoker.Close()

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:     cfg.AuthJWTSecret,
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          metaStore,
		Objects:        objects,
		ViewerStates:   viewerStates,
		Categories:     cfg.Categories,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxCoverBytes:  cfg.MaxCoverBytes,
		PresignExpiry:  presignExpiry,
		PublicBaseURL:  cfg.PublicBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	serverCfg := server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		Revoker:        revoker,
		TrustedProxies: trustedProxies,
		AllowedOrigins: cfg.AllowedOrigins,
		Files:          files,
	}
	// Limiters are only assigned when enabled; a nil *FixedWindowLimiter inside
	// the interface is not a disabled limiter.
	if cfg.UploadRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "magazine:ratelimit:upload", cfg.UploadRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init upload rate limiter: %v", err)
		}
		defer limiter.Close()
		serverCfg.UploadLimiter = limiter
	}
	if cfg.ReadRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "magazine:ratelimit:read", cfg.ReadRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init read rate limiter: %v", err)
		}
		defer limiter.Close()
		serverCfg.ReadLimiter = limiter
	}

	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("magazine server listening", "addr", addr, "storage", cfg.StorageBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}
}
