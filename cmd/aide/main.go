package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/seonho-lim/aide/internal/api"
	"github.com/seonho-lim/aide/internal/api/router"
	appconfig "github.com/seonho-lim/aide/internal/config"
	"github.com/seonho-lim/aide/internal/conversation"
	"github.com/seonho-lim/aide/internal/facts"
	"github.com/seonho-lim/aide/internal/llm"
	"github.com/seonho-lim/aide/internal/observability/metrics"
	"github.com/seonho-lim/aide/internal/stats"
	"github.com/seonho-lim/aide/internal/webchat"
	"github.com/seonho-lim/aide/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting aide server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	client, cleanup := buildLLMClient(ctx, cfg, logger)
	defer cleanup()

	var embedder llm.Embedder
	if cfg.OpenAIAPIKey != "" {
		embedder = llm.NewOpenAIEmbedder(openai.NewClient(cfg.OpenAIAPIKey), cfg.EmbeddingModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, similarity retrieval will run on fallback vectors")
		embedder = &fallbackOnlyEmbedder{}
	}

	turnMetrics := metrics.NewTurnMetrics(prometheus.DefaultRegisterer)

	historyStore := conversation.NewHistoryStore(redisClient, cfg.MaxHistoryPairs, cfg.HistoryTTL)
	summaryStore := conversation.NewSummaryStore(redisClient, client, cfg.HistoryTTL, logger.Component("summary"))
	index := conversation.NewMemoryVectorIndex(embedder, logger.Component("similarity"))

	assemblerOpts := []conversation.AssemblerOption{
		conversation.WithMaxContextTokens(cfg.MaxContextTokens),
	}
	if cfg.OpenWeatherAPIKey != "" {
		weather := facts.NewOpenWeatherClient(cfg.OpenWeatherAPIKey,
			facts.WithWeatherLogger(logger.Component("weather")))
		assemblerOpts = append(assemblerOpts, conversation.WithWeather(weather, cfg.WeatherLocation))
	} else {
		logger.Warn("OPENWEATHER_API_KEY not set, weather lookups disabled")
	}
	if cfg.BraveSearchAPIKey != "" {
		searcher := facts.NewBraveSearchClient(cfg.BraveSearchAPIKey,
			facts.WithSearchLogger(logger.Component("search")))
		assemblerOpts = append(assemblerOpts, conversation.WithSearch(searcher, cfg.SearchResultCount))
	} else {
		logger.Warn("BRAVE_SEARCH_API_KEY not set, web search disabled")
	}
	assembler := conversation.NewContextAssembler(client, logger.Component("assembler"), assemblerOpts...)

	controllerOpts := []conversation.ControllerOption{
		conversation.WithGenerationLimits(cfg.MaxOutputTokens, float32(cfg.Temperature)),
		conversation.WithSimilarLimit(cfg.SimilarityLimit),
	}
	var statsHandler *api.StatsHandler
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo := stats.NewPGRepository(pool, logger.Component("stats"))
		controllerOpts = append(controllerOpts, conversation.WithStats(repo))
		statsHandler = api.NewStatsHandler(repo, logger.Component("api"))
	} else {
		logger.Warn("DATABASE_URL not set, turn stats disabled")
	}

	controller := conversation.NewSessionController(
		historyStore,
		summaryStore,
		index,
		assembler,
		conversation.NewTopicShiftDetector(client, turnMetrics, logger.Component("topic")),
		conversation.NewResponseVerifier(client, turnMetrics, logger.Component("verifier")),
		conversation.NewContaminationDetector(client, turnMetrics, logger.Component("contamination")),
		client,
		turnMetrics,
		logger.Component("controller"),
		controllerOpts...,
	)

	r := router.New(&router.Config{
		Logger:         logger,
		ThreadHandler:  api.NewThreadHandler(controller, logger.Component("api")),
		StatsHandler:   statsHandler,
		WebchatHandler: webchat.NewHandler(controller, cfg.ResponseChunkSize, logger.Component("webchat")),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
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
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// buildLLMClient selects the primary provider from configuration and wraps it
// with the Gemini failover when a Gemini key is present. The returned cleanup
// releases provider resources.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, func()) {
	var primary llm.Client
	switch cfg.LLMProvider {
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
			os.Exit(1)
		}
		primary = llm.NewOpenAIClient(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel)
	default:
		logger.Error("unknown LLM provider", "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	cleanup := func() {}
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("failed to initialize Gemini failover, continuing without it", "error", err)
			return primary, cleanup
		}
		cleanup = func() { _ = gemini.Close() }
		return llm.NewFailoverClient(primary, gemini, logger.Component("llm")), cleanup
	}
	return primary, cleanup
}

// fallbackOnlyEmbedder never produces a vector, forcing the similarity index
// onto its deterministic fallback embedding.
type fallbackOnlyEmbedder struct{}

func (fallbackOnlyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}
