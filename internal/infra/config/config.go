package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL   string
	TriggerSecret string
	LogLevel      string
	Environment   string
	HTTPAddr      string

	CronSpecTick          string
	CronSpecRetention     string
	CronSpecCategoryStats string

	TickBudget      time.Duration
	TickConcurrency int

	NotificationRetention     time.Duration
	EscalationVolumeWindow    time.Duration
	EscalationVolumeThreshold int

	// Optional integrations; empty disables them.
	RedisAddr     string
	RedisPassword string
	TelegramToken string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPSender    string
	KafkaBrokers  []string
	KafkaTopic    string

	TriggerRatePerSecond float64
	TriggerBurst         int
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.TriggerSecret = os.Getenv("ENGINE_TRIGGER_SECRET")
	if cfg.TriggerSecret == "" {
		return nil, fmt.Errorf("ENGINE_TRIGGER_SECRET is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.CronSpecTick = getEnv("CRON_SPEC_TICK", "*/5 * * * *")                  // every 5 minutes
	cfg.CronSpecRetention = getEnv("CRON_SPEC_RETENTION", "30 3 * * *")         // 03:30 daily
	cfg.CronSpecCategoryStats = getEnv("CRON_SPEC_CATEGORY_STATS", "0 4 * * *") // 04:00 daily

	if cfg.TickBudget, err = getDuration("TICK_BUDGET", 4*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TickConcurrency, err = getInt("TICK_CONCURRENCY", 8); err != nil {
		return nil, err
	}

	retentionDays, err := getInt("NOTIFICATION_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if retentionDays <= 0 {
		return nil, fmt.Errorf("NOTIFICATION_RETENTION_DAYS must be positive, got %d", retentionDays)
	}
	cfg.NotificationRetention = time.Duration(retentionDays) * 24 * time.Hour

	if cfg.EscalationVolumeWindow, err = getDuration("ESCALATION_VOLUME_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.EscalationVolumeThreshold, err = getInt("ESCALATION_VOLUME_THRESHOLD", 20); err != nil {
		return nil, err
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPSender = os.Getenv("SMTP_SENDER")
	if cfg.SMTPHost != "" && cfg.SMTPSender == "" {
		return nil, fmt.Errorf("SMTP_SENDER is required when SMTP_HOST is set")
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	cfg.KafkaTopic = getEnv("KAFKA_AUDIT_TOPIC", "sla-engine-audit")

	rate := getEnv("TRIGGER_RATE_PER_SECOND", "1")
	if cfg.TriggerRatePerSecond, err = strconv.ParseFloat(rate, 64); err != nil {
		return nil, fmt.Errorf("invalid TRIGGER_RATE_PER_SECOND: %w", err)
	}
	if cfg.TriggerBurst, err = getInt("TRIGGER_BURST", 3); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
