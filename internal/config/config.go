package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LLM providers. LLMProvider selects the primary client; when a Gemini key
	// is present it is wired as the failover provider.
	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIModel     string
	EmbeddingModel  string
	GeminiAPIKey    string
	GeminiModel     string
	AWSRegion       string
	BedrockModelID  string
	MaxOutputTokens int
	Temperature     float64

	// Context pipeline tuning
	MaxHistoryPairs   int
	HistoryTTL        time.Duration
	SimilarityLimit   int
	MaxContextTokens  int
	ResponseChunkSize int

	// Stores
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	// Fact providers
	OpenWeatherAPIKey string
	WeatherLocation   string
	BraveSearchAPIKey string
	SearchResultCount int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:  getEnv("BEDROCK_MODEL_ID", ""),
		MaxOutputTokens: getEnvAsInt("MAX_OUTPUT_TOKENS", 1024),
		Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.7),

		MaxHistoryPairs:   getEnvAsInt("MAX_HISTORY_PAIRS", 10),
		HistoryTTL:        getEnvAsDuration("HISTORY_TTL", 24*time.Hour),
		SimilarityLimit:   getEnvAsInt("SIMILARITY_LIMIT", 3),
		MaxContextTokens:  getEnvAsInt("MAX_CONTEXT_TOKENS", 3000),
		ResponseChunkSize: getEnvAsInt("RESPONSE_CHUNK_SIZE", 2000),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		OpenWeatherAPIKey: getEnv("OPENWEATHER_API_KEY", ""),
		WeatherLocation:   getEnv("WEATHER_LOCATION", "Seoul"),
		BraveSearchAPIKey: getEnv("BRAVE_SEARCH_API_KEY", ""),
		SearchResultCount: getEnvAsInt("SEARCH_RESULT_COUNT", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
