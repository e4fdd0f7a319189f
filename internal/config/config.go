// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/folioworks/portfolio-assistant/internal/model"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// OpenAI settings
	OpenAIAPIKey   string
	AssistantID    string
	EmbeddingModel string

	// Run engine settings
	RunPollInterval time.Duration
	RunMaxWait      time.Duration

	// Memory settings
	MemoryScope       model.Scope
	PersonalThreshold float64
	GlobalThreshold   float64
	PersonalLimit     int
	GlobalLimit       int
	GlobalEnabled     bool

	// Qdrant settings
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	VectorDim        int

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSEnabled  bool

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 180*time.Second),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		AssistantID:    getEnv("OPENAI_ASSISTANT_ID", ""),
		EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),

		// Run engine
		RunPollInterval: getDurationEnv("RUN_POLL_INTERVAL", 500*time.Millisecond),
		RunMaxWait:      getDurationEnv("RUN_MAX_WAIT", 90*time.Second),

		// Memory
		MemoryScope:       getScopeEnv("MEMORY_SCOPE", model.ScopePerUser),
		PersonalThreshold: getFloatEnv("MEMORY_PERSONAL_THRESHOLD", 0.30),
		GlobalThreshold:   getFloatEnv("MEMORY_GLOBAL_THRESHOLD", 0.65),
		PersonalLimit:     getIntEnv("MEMORY_PERSONAL_LIMIT", 8),
		GlobalLimit:       getIntEnv("MEMORY_GLOBAL_LIMIT", 4),
		GlobalEnabled:     getBoolEnv("MEMORY_GLOBAL_ENABLED", true),

		// Qdrant
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "chat_memory"),
		VectorDim:        getIntEnv("QDRANT_VECTOR_DIM", 1536),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getScopeEnv(key string, defaultValue model.Scope) model.Scope {
	if value := os.Getenv(key); value != "" {
		if s := model.Scope(value); s.Valid() {
			return s
		}
	}
	return defaultValue
}
