package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/JokanderTest/CVX/internal/config"
	"github.com/JokanderTest/CVX/internal/db"
	"github.com/JokanderTest/CVX/internal/email"
	apihttp "github.com/JokanderTest/CVX/internal/http"
	"github.com/JokanderTest/CVX/internal/repository"
	"github.com/JokanderTest/CVX/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	// A diferencia de los contadores opcionales, el store efimero es parte
	// del core: sin Redis no hay altas pendientes ni CSRF.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(ctxPing).Err(); err != nil {
		cancel()
		logger.Fatal("redis connect", zap.Error(err))
	}
	cancel()

	userRepo := repository.NewPgUserRepository(pool)
	refreshRepo := repository.NewPgRefreshTokenRepository(pool)
	verificationRepo := repository.NewPgVerificationTokenRepository(pool)

	emailSender := email.Sender(email.NewDisabledSender("email sender not configured"))
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	accessTTL := service.ParseExpiry(cfg.JWTAccessExp, service.DefaultAccessTTL)
	refreshTTL := service.ParseExpiry(cfg.JWTRefreshExp, service.DefaultRefreshTTL)
	tokenSvc := service.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, accessTTL, refreshTTL)

	lockoutWindow := service.ParseExpiry(cfg.LoginLockoutWindow, 15*time.Minute)
	loginLimiter := service.NewRedisLoginRateLimiter(redisClient, lockoutWindow)
	pendingStore := service.NewRedisPendingStore(redisClient)
	csrfStore := service.NewRedisCSRFStore(redisClient)

	credentialSvc := service.NewCredentialService(logger, userRepo, loginLimiter, cfg.LoginMaxAttempts)
	sessionSvc := service.NewSessionService(logger, tokenSvc, userRepo, refreshRepo, csrfStore, credentialSvc)

	signupTTL := service.ParseExpiry(cfg.SignupCodeTTL, 15*time.Minute)
	registrationSvc := service.NewRegistrationService(logger, userRepo, pendingStore, sessionSvc, emailSender, signupTTL, cfg.SignupMaxAttempts, cfg.SignupMaxResends)
	verificationSvc := service.NewVerificationService(logger, userRepo, verificationRepo, emailSender, signupTTL, cfg.SignupMaxAttempts, 15*time.Minute)
	oauthSvc := service.NewOAuthService(logger, userRepo, sessionSvc, nil)

	authHandler := apihttp.NewAuthHandler(logger, sessionSvc, registrationSvc, verificationSvc, oauthSvc, apihttp.CookieOptions{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	})
	router := apihttp.NewRouter(logger, tokenSvc, sessionSvc, authHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
