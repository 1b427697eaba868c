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
	"golang.org/x/sync/errgroup"

	"github.com/JackYouk/esol/internal/metrics"
	"github.com/JackYouk/esol/internal/ratelimit"
	"github.com/JackYouk/esol/internal/usertoken"
	"github.com/JackYouk/esol/internal/util"
	"github.com/JackYouk/esol/pkg/ai"
	"github.com/JackYouk/esol/pkg/extract"
	"github.com/JackYouk/esol/pkg/storage"
	"github.com/JackYouk/esol/pkg/store"
	"github.com/JackYouk/esol/services/workspace/internal/app"
	"github.com/JackYouk/esol/services/workspace/internal/config"
	"github.com/JackYouk/esol/services/workspace/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}
	defer db.Close()

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioPublicURL)
	if err != nil {
		util.Fatal("failed to init object storage", "err", err)
	}

	var completer ai.ChatCompleter
	switch cfg.AIProvider {
	case config.ProviderOllama:
		completer = ai.NewOllamaClient(cfg.AIBaseURL, cfg.AITimeout())
	default:
		completer = ai.NewOpenAICompatClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AITimeout())
	}
	tutor, err := ai.NewTutor(completer, cfg.AIModel)
	if err != nil {
		util.Fatal("failed to init tutor", "err", err)
	}

	verifierCtx, cancelVerifier := context.WithTimeout(ctx, 10*time.Second)
	verifier, err := usertoken.NewVerifier(verifierCtx, usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	cancelVerifier()
	if err != nil {
		util.Fatal("failed to init jwks verifier", "err", err)
	}

	var limiter server.Limiter
	if cfg.RateLimitEnabled() {
		fixed, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "esol:workspace:ratelimit:tutor", cfg.TutorRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init tutor rate limiter", "err", err)
		}
		defer fixed.Close()
		limiter = fixed
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		util.Fatal("invalid trusted proxies", "err", err)
	}
	m := metrics.New()

	extractor := extract.NewPDFExtractor()
	extractor.Pdftotext = cfg.PdftotextPath

	appCore, err := app.New(app.Config{
		Store:          db,
		Objects:        objects,
		Extractor:      extractor,
		Tutor:          tutor,
		Metrics:        m,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PresignExpiry:  cfg.PresignExpiry(),
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		Verifier:           verifier,
		TutorLimiter:       limiter,
		Metrics:            m,
		AdminOrgRole:       cfg.AdminOrgRole,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies:     trusted,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// tutor calls may take up to the AI timeout
		WriteTimeout: cfg.AITimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("workspace server listening", "addr", addr, "ai_provider", cfg.AIProvider, "ai_model", tutor.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("workspace server stopped")
}
