package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Ai        AIConfig
	Copilot   CopilotConfig
	Retention RetentionConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LatencyLogFilePath string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	LLMProvider   string // "ollama" | "huggingface"
	LLMModel      string // e.g. "llama3", "qwen2.5"
	OllamaBaseURL string
	HFBaseURL     string
	HFApiKey      string
	LLMTimeoutMs  int
}

type CopilotConfig struct {
	HeartbeatTimeoutMs int
	MonthlyMinutes     int // -1 = unlimited
	DailyMinutes       int
	SessionMinutes     int
	SanitizeMaxLength  int
	MaxSuggestions     int

	StartRateLimit     int
	HeartbeatRateLimit int
	IngestRateLimit    int
	RateWindowMs       int
}

type RetentionConfig struct {
	EventsDays    int
	SummariesDays int
	SessionsDays  int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LatencyLogFilePath: getEnv("LATENCY_LOG_FILE_PATH", "logs/latency.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HFBaseURL:     getEnv("HUGGINGFACE_BASE_URL", ""),
			HFApiKey:      getEnv("HUGGINGFACE_API_KEY", ""),
			LLMTimeoutMs:  getEnvAsInt("LLM_TIMEOUT_MS", 30000),
		},
		Copilot: CopilotConfig{
			HeartbeatTimeoutMs: getEnvAsInt("COPILOT_HEARTBEAT_TIMEOUT_MS", 60000),
			MonthlyMinutes:     getEnvAsInt("COPILOT_MONTHLY_MINUTES", 600),
			DailyMinutes:       getEnvAsInt("COPILOT_DAILY_MINUTES", 120),
			SessionMinutes:     getEnvAsInt("COPILOT_SESSION_MINUTES", 60),
			SanitizeMaxLength:  getEnvAsInt("COPILOT_SANITIZE_MAX_LENGTH", 4000),
			MaxSuggestions:     getEnvAsInt("COPILOT_MAX_SUGGESTIONS", 3),
			StartRateLimit:     getEnvAsInt("COPILOT_START_RATE_LIMIT", 5),
			HeartbeatRateLimit: getEnvAsInt("COPILOT_HEARTBEAT_RATE_LIMIT", 30),
			IngestRateLimit:    getEnvAsInt("COPILOT_INGEST_RATE_LIMIT", 120),
			RateWindowMs:       getEnvAsInt("COPILOT_RATE_WINDOW_MS", 60000),
		},
		Retention: RetentionConfig{
			EventsDays:    getEnvAsInt("RETENTION_EVENTS_DAYS", 30),
			SummariesDays: getEnvAsInt("RETENTION_SUMMARIES_DAYS", 90),
			SessionsDays:  getEnvAsInt("RETENTION_SESSIONS_DAYS", 90),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
