package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
)

type Config struct {
	Env         string `env:"ENV"          envDefault:"local" validate:"required,oneof=local staging production"`
	Port        string `env:"PORT"         envDefault:"5000"  validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"  validate:"oneof=debug info warn error"`

	DBDriver    string `env:"DB_DRIVER"    envDefault:"sqlite"           validate:"oneof=postgres sqlite"`
	DatabaseURL string `env:"DATABASE_URL"                               validate:"required_if=DBDriver postgres"`
	SQLitePath  string `env:"SQLITE_PATH"  envDefault:"data/referrals.db" validate:"required_if=DBDriver sqlite"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	AttachmentBackend string        `env:"ATTACHMENT_BACKEND" envDefault:"filesystem" validate:"oneof=filesystem s3"`
	AttachmentDir     string        `env:"ATTACHMENT_DIR"     envDefault:"data/resumes" validate:"required_if=AttachmentBackend filesystem"`
	AttachmentTimeout time.Duration `env:"ATTACHMENT_TIMEOUT" envDefault:"10s"`

	S3Bucket          string `env:"S3_BUCKET"            validate:"required_if=AttachmentBackend s3"`
	S3Region          string `env:"S3_REGION"            envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3Prefix          string `env:"S3_PREFIX"            envDefault:"resumes"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	TrustedProxies     []string `env:"TRUSTED_PROXIES"      envSeparator:","  validate:"dive,ip|cidr"`

	RedisURL          string        `env:"REDIS_URL"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100" validate:"min=1"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"15m"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"   envDefault:"candidate-events"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_with=ResendAPIKey"`

	JanitorSchedule string        `env:"JANITOR_SCHEDULE" envDefault:"@every 1h"`
	JanitorGrace    time.Duration `env:"JANITOR_GRACE"    envDefault:"1h"`
}

// Load reads an optional .env file, then the environment. Variables that
// are already set win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.AttachmentTimeout <= 0 || cfg.RateLimitWindow <= 0 || cfg.JanitorGrace < 0 {
		return nil, fmt.Errorf("invalid config: durations must be positive")
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
