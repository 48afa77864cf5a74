package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"emergency-service/internal/logging"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Kafka struct {
		Broker string
		Topic  string
	}
	API struct {
		Port     string
		BasePath string
	}
	Gate struct {
		MaxAlerts int
		Window    time.Duration
	}
	Dispatch struct {
		SendTimeout    time.Duration
		PushGatewayURL string
	}
	Escalation struct {
		SweepSchedule    string
		OverdueAfter     time.Duration
		EscalationEvery  time.Duration
		AutoResolveAfter time.Duration
	}
	Telegram struct {
		BotToken      string
		RatePerSecond int
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Rewards struct {
		ServiceURL string
	}
	Logging logging.Config
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Gate.MaxAlerts = envInt("GATE_MAX_ALERTS", 3)
	cfg.Gate.Window = envDuration("GATE_WINDOW", 5*time.Minute)

	cfg.Dispatch.SendTimeout = envDuration("DISPATCH_SEND_TIMEOUT", 10*time.Second)
	cfg.Dispatch.PushGatewayURL = os.Getenv("PUSH_GATEWAY_URL")

	cfg.Escalation.SweepSchedule = os.Getenv("ESCALATION_SWEEP_SCHEDULE")
	cfg.Escalation.OverdueAfter = envDuration("ESCALATION_OVERDUE_AFTER", 30*time.Minute)
	cfg.Escalation.EscalationEvery = envDuration("ESCALATION_EVERY", 30*time.Minute)
	cfg.Escalation.AutoResolveAfter = envDuration("ESCALATION_AUTO_RESOLVE_AFTER", 24*time.Hour)

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.RatePerSecond = envInt("TELEGRAM_RATE_PER_SECOND", 20)

	cfg.SMS.AccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("SMS_FROM_NUMBER")

	cfg.Rewards.ServiceURL = os.Getenv("REWARDS_SERVICE_URL")

	cfg.Logging.Level = os.Getenv("LOG_LEVEL")
	cfg.Logging.File = os.Getenv("LOG_FILE")
	cfg.Logging.MaxSizeMB = envInt("LOG_MAX_SIZE_MB", 50)
	cfg.Logging.MaxBackups = envInt("LOG_MAX_BACKUPS", 5)
	cfg.Logging.MaxAgeDays = envInt("LOG_MAX_AGE_DAYS", 30)

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "emergency_alert_events"
	}
	if cfg.Escalation.SweepSchedule == "" {
		cfg.Escalation.SweepSchedule = "@every 1m"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
