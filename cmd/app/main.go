package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bot-sankalp/internal/cache"
	"bot-sankalp/internal/config"
	"bot-sankalp/internal/convo"
	"bot-sankalp/internal/httpserver"
	"bot-sankalp/internal/impact"
	"bot-sankalp/internal/llm"
	"bot-sankalp/internal/logging"
	"bot-sankalp/internal/metrics"
	"bot-sankalp/internal/payments"
	"bot-sankalp/internal/repo"
	"bot-sankalp/internal/wa"
	"bot-sankalp/internal/workers"
	"bot-sankalp/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting sankalp-bot", "env", cfg.AppEnv)

	if cfg.PublicBaseURL != "" {
		base := strings.TrimRight(cfg.PublicBaseURL, "/")
		logger.Info("public base url configured",
			"base_url", cfg.PublicBaseURL,
			"wa_webhook", base+"/webhook/whatsapp",
			"razorpay_webhook", base+"/webhook/razorpay")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := repo.New(ctx, cfg.DatabaseURL, cfg.DBSchema, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	llmClient := llm.New(llm.Config{
		BaseURL: cfg.LLMAPIBase,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}, logger, metricRegistry)

	var sender wa.Sender
	switch cfg.WhatsAppProvider {
	case "gupshup":
		sender = wa.NewGupshupSender(wa.GupshupConfig{
			APIKey: cfg.GupshupAPIKey,
			Source: cfg.GupshupSource,
		}, logger, metricRegistry)
	default:
		sender = wa.NewCloudSender(wa.CloudConfig{
			BaseURL:       cfg.WhatsAppAPIBase,
			AccessToken:   cfg.WhatsAppAccessToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		}, logger, metricRegistry)
	}
	logger.Info("whatsapp sender ready", "provider", cfg.WhatsAppProvider)

	razorpayClient := payments.NewClient(payments.Config{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
	}, logger, metricRegistry)

	engine := convo.New(logger, metricRegistry, repository, redisClient, sender, llmClient, razorpayClient)
	waWebhook := wa.NewWebhookHandler(logger, metricRegistry, cfg.WhatsAppVerifyToken, engine)

	resolver := payments.NewResolver(logger, metricRegistry, repository, redisClient, sender)
	razorpayWebhook := payments.NewWebhookHandler(logger, metricRegistry, cfg.RazorpayWebhookSecret, resolver)

	impactSvc := impact.New(logger, repository, redisClient)

	var workerManager *workers.Manager
	if cfg.WorkersEnabled {
		workerManager = workers.New(logger, metricRegistry, repository, redisClient, sender, llmClient, impactSvc, cfg.DefaultTimezone)
		workerManager.Start(ctx)
	} else {
		logger.Info("workers disabled")
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Handlers{
		WhatsAppWebhook: waWebhook,
		RazorpayWebhook: razorpayWebhook,
	}, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Store:      repository,
		Redis:      redisClient,
		Impact:     impactSvc,
		Workers:    workerManager,
		Migrations: migrations.Files,
		AdminKey:   cfg.AdminAPIKey,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
