// Package config provides environment configuration for the chat server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Env                string
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL           string
	NATSCAFile        string
	NATSCertFile      string
	NATSKeyFile       string
	NATSToken         string
	NATSSessionBucket string
	NATSAuditStream   string
	NATSAuditEnabled  bool

	// LLM settings
	LLMProviders    []string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	TogetherAPIKey  string
	TogetherModel   string
	TogetherBaseURL string
	GatewayTimeout  time.Duration
	GatewayRetries  int

	// Game settings
	WinThreshold         int
	TuringWinThreshold   int
	LowScoreCeiling      int
	LowScoreStreak       int
	MaxMessageLength     int
	TypingCharsPerMinute int
	PromptsFile          string

	// Session storage
	StoreBackend string
	SessionTTL   time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// CORS
	CORSOrigins []string

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
		Env:                getEnv("ENV", "production"),
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:        getEnv("NATS_CA_FILE", ""),
		NATSCertFile:      getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:       getEnv("NATS_KEY_FILE", ""),
		NATSToken:         getEnv("NATS_TOKEN", ""),
		NATSSessionBucket: getEnv("NATS_SESSION_BUCKET", "CHAT_SESSIONS"),
		NATSAuditStream:   getEnv("NATS_AUDIT_STREAM", "CHAT_AUDIT"),
		NATSAuditEnabled:  getBoolEnv("NATS_AUDIT_ENABLED", false),

		// LLM
		LLMProviders:    getListEnv("LLM_PROVIDERS", []string{"openai", "anthropic", "together"}),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", ""),
		TogetherAPIKey:  getEnv("TOGETHER_API_KEY", ""),
		TogetherModel:   getEnv("TOGETHER_MODEL", "mistralai/Mixtral-8x7B-Instruct-v0.1"),
		TogetherBaseURL: getEnv("TOGETHER_BASE_URL", ""),
		GatewayTimeout:  getDurationEnv("GATEWAY_TIMEOUT", 60*time.Second),
		GatewayRetries:  getIntEnv("GATEWAY_RETRIES", 3),

		// Game
		WinThreshold:         getIntEnv("WIN_THRESHOLD", 75),
		TuringWinThreshold:   getIntEnv("TURING_WIN_THRESHOLD", 70),
		LowScoreCeiling:      getIntEnv("LOW_SCORE_CEILING", 30),
		LowScoreStreak:       getIntEnv("LOW_SCORE_STREAK", 3),
		MaxMessageLength:     getIntEnv("MAX_MESSAGE_LENGTH", 500),
		TypingCharsPerMinute: getIntEnv("TYPING_CHARS_PER_MINUTE", 400),
		PromptsFile:          getEnv("PROMPTS_FILE", ""),

		// Session storage
		StoreBackend: getEnv("STORE_BACKEND", StoreMemory),
		SessionTTL:   getDurationEnv("SESSION_TTL", 24*time.Hour),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// CORS
		CORSOrigins: getListEnv("CORS_ORIGINS", nil),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerPort, validation.Required),
		validation.Field(&c.LLMProviders, validation.Required,
			validation.Each(validation.In("openai", "anthropic", "together"))),
		validation.Field(&c.GatewayTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.GatewayRetries, validation.Min(0)),
		validation.Field(&c.WinThreshold, validation.Min(0), validation.Max(100)),
		validation.Field(&c.TuringWinThreshold, validation.Min(0), validation.Max(100)),
		validation.Field(&c.LowScoreCeiling, validation.Min(0), validation.Max(100)),
		validation.Field(&c.LowScoreStreak, validation.Min(0)),
		validation.Field(&c.MaxMessageLength, validation.Required, validation.Min(1)),
		validation.Field(&c.TypingCharsPerMinute, validation.Min(0)),
		validation.Field(&c.StoreBackend, validation.In(StoreMemory, StoreNATS)),
		validation.Field(&c.NATSURL, validation.When(c.NATSEnabled(), validation.Required)),
	)
}

// NATSEnabled reports whether any component needs a NATS connection.
func (c *Config) NATSEnabled() bool {
	return c.StoreBackend == StoreNATS || c.NATSAuditEnabled
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

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
