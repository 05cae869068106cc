package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rxline/rxline/internal/adherence"
)

// Adherence retention policies after a medication is deleted.
const (
	RetentionKeep    = "keep"
	RetentionCascade = "cascade"
)

type Config struct {
	DatabaseURI   string
	TelegramToken string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	LogLevel      string

	CheckInterval       time.Duration
	MissedGraceWindow   time.Duration
	EscalationThreshold int
	AdherenceRetention  string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	return &Config{
		DatabaseURI:         os.Getenv("DATABASE_URI"),
		TelegramToken:       os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:            os.Getenv("AI_API_KEY"),
		AIBaseURL:           getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:             getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		CheckInterval:       getDurationOrDefault("CHECK_INTERVAL", time.Minute),
		MissedGraceWindow:   getDurationOrDefault("MISSED_GRACE_WINDOW", adherence.DefaultGraceWindow),
		EscalationThreshold: getIntOrDefault("ESCALATION_THRESHOLD", adherence.DefaultEscalationThreshold),
		AdherenceRetention:  getEnvOrDefault("ADHERENCE_RETENTION", RetentionKeep),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
