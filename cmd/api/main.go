package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ChelochoX/tuvendedor-back-sub000/cmd/mainconfig"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/api/router"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/channels/whatsapp"
	appconfig "github.com/ChelochoX/tuvendedor-back-sub000/internal/config"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/conversation"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/http/handlers"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/observability/metrics"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/webchat"
	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting tuvendedor conversation API",
		"env", cfg.Env,
		"port", cfg.Port,
		"ai_enabled", cfg.AIEnabled,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}

	metricsHandler, conversationMetrics := setupMetrics()

	store := conversation.NewStore(pool)
	history := conversation.NewHistory(pool)

	var templates conversation.TemplateSource = conversation.NewPostgresTemplates(pool)
	if cfg.RedisAddr != "" {
		redisClient := connectRedis(cfg)
		defer redisClient.Close()
		templates = conversation.NewCachedTemplates(templates, redisClient, cfg.TemplateCacheTTL, logger)
	}
	prompts := conversation.NewAssembler(templates, cfg.DefaultPromptCode)

	generator, degrade := buildGenerator(ctx, cfg, logger)

	engine := conversation.NewEngine(
		store,
		history,
		prompts,
		generator,
		degrade,
		conversation.EngineConfig{
			HistoryLimit: cfg.HistoryLimit,
			SafeReply:    cfg.SafeReply,
		},
		conversationMetrics,
		logger,
	)

	var handler conversation.TurnHandler = engine
	if cfg.QueueDispatchEnabled {
		queue := buildQueue(ctx, cfg, logger)
		dispatcher := conversation.NewDispatcher(engine, queue, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = dispatcher.Shutdown(shutdownCtx)
		}()
		handler = dispatcher
	}

	var adapterOpts []whatsapp.AdapterOption
	if cfg.WhatsAppAPIBaseURL != "" {
		adapterOpts = append(adapterOpts, whatsapp.WithGraphAPIBase(cfg.WhatsAppAPIBaseURL))
	}
	whatsappAdapter := whatsapp.NewAdapter(
		handler,
		cfg.WhatsAppAccessToken,
		cfg.WhatsAppPhoneNumberID,
		cfg.WhatsAppAppSecret,
		cfg.WhatsAppVerifyToken,
		logger.Component("whatsapp"),
		conversationMetrics,
		adapterOpts...,
	)
	webchatHandler := webchat.NewHandler(handler, logger.Component("webchat"), conversationMetrics)
	adminHandler := handlers.NewAdminConversationsHandler(pool, logger.Component("admin"))

	r := router.New(&router.Config{
		Logger:             logger,
		WhatsAppAdapter:    whatsappAdapter,
		WebchatHandler:     webchatHandler,
		AdminConversations: adminHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupMetrics registers the conversation metrics on the default registry
// and returns the /metrics handler.
func setupMetrics() (http.Handler, *metrics.ConversationMetrics) {
	m := metrics.NewConversationMetrics(nil)
	return promhttp.Handler(), m
}

func connectRedis(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// buildGenerator selects the configured response generator. With AI disabled
// the canned generator answers every turn and there is no further degrade
// path; with AI enabled the canned generator becomes the fallback.
func buildGenerator(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Generator, *conversation.StaticGenerator) {
	canned := conversation.NewStaticGenerator(cfg.FallbackReply, cfg.FallbackNextStep)

	if !cfg.AIEnabled {
		logger.Info("AI generation disabled, using canned replies")
		return canned, nil
	}

	client, model := buildLLMClient(ctx, cfg, logger)
	if client == nil {
		logger.Warn("no usable LLM client, falling back to canned replies")
		return canned, nil
	}

	generator := conversation.NewLLMGenerator(client, model, logger.Component("llm"),
		conversation.WithGenerationTimeout(cfg.GenerationTimeout),
		conversation.WithDefaultNextStep(cfg.FallbackNextStep),
	)
	return generator, canned
}

// buildLLMClient wires the configured provider, chaining the other provider
// as an automatic fallback when both API keys are present.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, string) {
	var gemini, openAI conversation.LLMClient

	if cfg.GeminiAPIKey != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else {
			gemini = client
		}
	}
	if cfg.OpenAIAPIKey != "" {
		client, err := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Error("failed to create openai client", "error", err)
		} else {
			openAI = client
		}
	}

	switch cfg.LLMProvider {
	case "openai":
		if openAI == nil {
			return gemini, cfg.GeminiModel
		}
		if gemini != nil {
			return conversation.NewFallbackLLMClient(openAI, gemini, logger), cfg.OpenAIModel
		}
		return openAI, cfg.OpenAIModel
	default:
		if gemini == nil {
			return openAI, cfg.OpenAIModel
		}
		if openAI != nil {
			return conversation.NewFallbackLLMClient(gemini, openAI, logger), cfg.GeminiModel
		}
		return gemini, cfg.GeminiModel
	}
}

// buildQueue returns the dispatch queue: in-memory for single-instance
// deployments and development, SQS otherwise.
func buildQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) conversation.Queue {
	if cfg.UseMemoryQueue || cfg.ConversationQueueURL == "" {
		logger.Info("using in-memory dispatch queue")
		return conversation.NewMemoryQueue(0)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config, using in-memory queue", "error", err)
		return conversation.NewMemoryQueue(0)
	}
	logger.Info("using SQS dispatch queue", "queue_url", cfg.ConversationQueueURL)
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
}
