package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"coglex/internal/config"
	"coglex/internal/db"
	"coglex/internal/email"
	apihttp "coglex/internal/http"
	"coglex/internal/llm"
	"coglex/internal/repository"
	"coglex/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	mongoClient, err := db.NewClient(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("db disconnect", zap.Error(err))
		}
	}()
	if err := db.Ping(ctx, mongoClient); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	docs := repository.NewMongoDocumentRepository(db.Database(mongoClient, cfg))

	var files repository.FileRepository
	if cfg.S3Bucket != "" {
		files, err = repository.NewS3FileRepository(ctx, repository.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	} else {
		files, err = repository.NewLocalFileRepository(cfg.UploadDir)
	}
	if err != nil {
		logger.Fatal("file storage init", zap.Error(err))
	}

	otpWindow := time.Duration(cfg.OTPTTLMinutes) * time.Minute
	var (
		sessions   service.SessionStore
		otpLimiter service.OTPRateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory sessions", zap.Error(err))
		} else {
			sessions = service.NewRedisSessionStore(redisClient)
			otpLimiter = service.NewRedisOTPRateLimiter(logger, redisClient, otpWindow, cfg.OTPRequestsPerWindow)
		}
		cancel()
	}
	if sessions == nil {
		sessions = service.NewMemorySessionStore()
		otpLimiter = service.NewOTPRateLimiter(otpWindow, cfg.OTPRequestsPerWindow)
	}

	var emailSender email.Sender = email.NewDisabledSender()
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPUseTLS,
		})
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	tokens := service.NewTokenService(cfg.ServerSecret)
	authSvc := service.NewAuthService(logger, docs, tokens, otpLimiter, service.AuthOptions{
		SessionTTL:     sessionTTL,
		OTPLength:      cfg.OTPLength,
		OTPTTL:         otpWindow,
		OTPMaxAttempts: cfg.OTPMaxAttempts,
	})
	var oauthSvc *service.OAuthService
	if providers := cfg.OAuthProviders(); len(providers) > 0 {
		oauthSvc = service.NewOAuthService(logger, providers, tokens, cfg.OAuthCollections)
	}

	var gateway service.StripeGateway
	if cfg.StripeSecretKey != "" {
		gateway = service.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		logger.Warn("stripe secret key not configured")
	}

	// Sin LLM_API_KEY cada request debe enviar su propia key.
	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)

	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		APIKey:        cfg.APIKey,
		SessionCookie: cfg.SessionCookie,
		SessionTTL:    sessionTTL,
		SecureCookie:  cfg.SecureCookie,
	}, apihttp.RouterDeps{
		Sessions:   sessions,
		Auth:       apihttp.NewAuthHandler(logger, authSvc, oauthSvc, emailSender),
		Storage:    apihttp.NewStorageHandler(logger, service.NewStorageService(logger, docs)),
		Archive:    apihttp.NewArchiveHandler(logger, service.NewArchiveService(logger, docs, files, cfg.ArchiveCollection, cfg.MaxContentLength), cfg.MaxContentLength),
		Payment:    apihttp.NewPaymentHandler(logger, service.NewPaymentService(logger, gateway, cfg.StripeWebhookSecret)),
		Generation: apihttp.NewGenerationHandler(logger, service.NewGenerationService(logger, llmClient)),
		Execution:  apihttp.NewExecutionHandler(logger, service.NewDefaultRegistry()),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
