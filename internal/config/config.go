package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/glebk/skillswap/internal/domain"
)

// Config holds application configuration
type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./skillswap.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"skillswap"`

	// Empty token disables the bot.
	TelegramToken       string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`

	// Empty URL disables AMQP publishing.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"skillswap.events"`

	// Empty address disables Redis pub/sub.
	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" envDefault:"skillswap"`

	ConcurrencyMaxAttempts uint           `env:"CONCURRENCY_MAX_ATTEMPTS" envDefault:"3"`
	SignupGrant            domain.Credits `env:"SIGNUP_GRANT" envDefault:"5"`
	NotifyTimeout          time.Duration  `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout        time.Duration  `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	NotifyHours NotifyHours
}

// NotifyHours defines when the bot may message participants.
// Operator alerts ignore it.
type NotifyHours struct {
	StartHour int    `env:"NOTIFY_START_HOUR" envDefault:"0"`
	EndHour   int    `env:"NOTIFY_END_HOUR" envDefault:"24"`
	Timezone  string `env:"NOTIFY_TIMEZONE" envDefault:"Local"`

	location *time.Location
}

// Load loads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	loc, err := time.LoadLocation(cfg.NotifyHours.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_TIMEZONE: %w", err)
	}
	cfg.NotifyHours.location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DatabasePath) == "" {
		problems = append(problems, "DATABASE_PATH is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.ConcurrencyMaxAttempts == 0 {
		problems = append(problems, "CONCURRENCY_MAX_ATTEMPTS must be positive")
	}
	if c.SignupGrant < 0 {
		problems = append(problems, "SIGNUP_GRANT must not be negative")
	}
	if c.NotifyTimeout <= 0 {
		problems = append(problems, "NOTIFY_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "SHUTDOWN_TIMEOUT must be positive")
	}
	if c.NotifyHours.StartHour < 0 || c.NotifyHours.EndHour > 24 || c.NotifyHours.StartHour >= c.NotifyHours.EndHour {
		problems = append(problems, "NOTIFY_START_HOUR and NOTIFY_END_HOUR must satisfy 0 <= start < end <= 24")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsNotifyHour checks if t falls within the notification hours
func (h NotifyHours) IsNotifyHour(t time.Time) bool {
	loc := h.location
	if loc == nil {
		loc = time.Local
	}
	hour := t.In(loc).Hour()
	return hour >= h.StartHour && hour < h.EndHour
}
