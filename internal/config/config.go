package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

// Config holds the configuration for the application.
type Config struct {
	DatabaseURL string

	// LLM Config
	LLMProvider         string
	GeminiAPIKey        string
	GroqAPIKey          string
	LLMBaseURL          string
	PreciseModel        string
	CreativeModel       string
	VisionModel         string
	CreativeTemperature float32
	LLMTimeout          time.Duration
	ResponseLanguage    string

	// HTTP Config
	Port        string
	JWTSecret   string
	JWTIssuer   string
	JWTTTL      time.Duration
	CORSOrigins []string
	LogLevel    string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64

	MetricsRetentionDays int
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	provider := strings.ToLower(envOr("LLM_PROVIDER", ProviderGemini))

	defaults := map[string][3]string{
		ProviderGemini: {"gemini-1.5-flash", "gemini-1.5-pro", "gemini-1.5-flash"},
		ProviderGroq:   {"llama-3.3-70b-versatile", "llama-3.3-70b-versatile", "llama-3.2-90b-vision-preview"},
	}
	models, ok := defaults[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", provider)
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if provider == ProviderGemini && geminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	groqAPIKey := os.Getenv("GROQ_API_KEY")
	if provider == ProviderGroq && groqAPIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	creativeTemperature, err := strconv.ParseFloat(envOr("LLM_CREATIVE_TEMPERATURE", "0.6"), 32)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_CREATIVE_TEMPERATURE: %w", err)
	}

	allowedIDs, err := parseIDs(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminTelegramID int64
	if raw := os.Getenv("ADMIN_TELEGRAM_ID"); raw != "" {
		fmt.Sscanf(raw, "%d", &adminTelegramID)
	}

	return &Config{
		DatabaseURL:            envOr("DATABASE_URL", "data/smartfit.db"),
		LLMProvider:            provider,
		GeminiAPIKey:           geminiAPIKey,
		GroqAPIKey:             groqAPIKey,
		LLMBaseURL:             os.Getenv("LLM_BASE_URL"),
		PreciseModel:           envOr("LLM_PRECISE_MODEL", models[0]),
		CreativeModel:          envOr("LLM_CREATIVE_MODEL", models[1]),
		VisionModel:            envOr("LLM_VISION_MODEL", models[2]),
		CreativeTemperature:    float32(creativeTemperature),
		LLMTimeout:             time.Duration(envOrInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		ResponseLanguage:       envOr("RESPONSE_LANGUAGE", "Italian"),
		Port:                   envOr("PORT", "8080"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		JWTIssuer:              envOr("JWT_ISSUER", "smartfit-coach"),
		JWTTTL:                 time.Duration(envOrInt("JWT_TTL_HOURS", 720)) * time.Hour,
		CORSOrigins:            parseCSV(os.Getenv("CORS_ORIGINS")),
		LogLevel:               envOr("LOG_LEVEL", "info"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowedIDs,
		AdminTelegramID:        adminTelegramID,
		MetricsRetentionDays:   envOrInt("METRICS_RETENTION_DAYS", 30),
	}, nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return nil
}

// TelegramEnabled reports whether the bot front-end should be started.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramWebhookURL != ""
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIDs(value string) ([]int64, error) {
	var ids []int64
	for _, part := range parseCSV(value) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
