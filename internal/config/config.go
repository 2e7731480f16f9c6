// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/outreach-backend/internal/logx"
)

type Config struct {
	Port        string
	DatabaseURL string

	RMQURL         string
	AnalyticsQueue string

	RedisAddr     string
	RedisPassword string

	SendDelay          time.Duration
	DefaultBatchSize   int
	MaintenanceCron    string
	CORSOrigins        []string
	DefaultCountryCode string
	TelegramWebhookURL string
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logx.L().Infow("dotenv_not_found", "msg", "relying on OS environment variables")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        databaseURL(),
		RMQURL:             getEnv("RMQ_URL", ""),
		AnalyticsQueue:     getEnv("ANALYTICS_QUEUE", "outreach_analytics"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		SendDelay:          time.Duration(getEnvInt("SEND_DELAY_MS", 100)) * time.Millisecond,
		DefaultBatchSize:   getEnvInt("DEFAULT_BATCH_SIZE", 50),
		MaintenanceCron:    getEnv("MAINTENANCE_CRON", "0 0 * * *"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "1"),
		TelegramWebhookURL: getEnv("TELEGRAM_WEBHOOK_URL", ""),
	}
}

func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", ""),
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_NAME", "outreach"),
	)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logx.L().Warnw("config_invalid_int", "key", key, "value", v)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
