package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"filevault/internal/app"
	"filevault/internal/config"
	"filevault/internal/mail"
	"filevault/internal/server"
	"filevault/internal/util"
	"filevault/pkg/auth"
	"filevault/pkg/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	purposeTTL, err := config.ParseTTL(cfg.PurposeTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse purpose token TTL: %v", err)
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, sessionTTL, purposeTTL)
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}

	blobs, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom, cfg.AppName)
	} else {
		slog.Warn("no SMTP relay configured, mail is captured in memory")
		mailer = mail.NewMemoryMailer()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	singleUse := auth.NewRedisSingleUse(redisClient, "filevault:token-used")

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		Blobs:               blobs,
		Mailer:              mailer,
		Tokens:              tokens,
		SingleUse:           singleUse,
		BaseURL:             cfg.BaseURL,
		AppName:             cfg.AppName,
		MaxStorageBytes:     cfg.MaxStorageBytes,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		AllowedEmailDomains: cfg.AllowedEmailDomains,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Tokens:                     tokens,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		SignupRateLimitPerMinute:   cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		PasswordRateLimitPerMinute: cfg.PasswordRateLimitPerMinute,
		UploadRateLimitPerMinute:   cfg.UploadRateLimitPerMinute,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		CookieSecure:               cfg.CookieSecure,
		AllowedOrigins:             cfg.AllowedOrigins,
		TrustedProxies:             trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
