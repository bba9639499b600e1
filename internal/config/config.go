package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Telegram struct {
		Token string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	} `yaml:"telegram"`

	Groq struct {
		// Comma-separated ordered key pool. Order is the failover order.
		APIKeys string `yaml:"api_keys" env:"GROQ_API_KEYS"`
		BaseURL string `yaml:"base_url" env:"GROQ_BASE_URL" env-default:"https://api.groq.com/openai/v1"`
	} `yaml:"groq"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_URL"`
	} `yaml:"postgres"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	Limits struct {
		MaxFileSizeMB      int64         `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB" env-default:"20"`
		MaxDurationMinutes int           `yaml:"max_duration_minutes" env:"MAX_DURATION_MINUTES" env-default:"30"`
		CacheTTL           time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"168h"`
	} `yaml:"limits"`

	Server struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	} `yaml:"server"`

	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:""`
}

func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(cfg.GroqKeys()) == 0 {
		return nil, fmt.Errorf("GROQ_API_KEYS is required")
	}

	return &cfg, nil
}

// GroqKeys splits the configured key pool, preserving order.
func (c *Config) GroqKeys() []string {
	var keys []string
	for _, k := range strings.Split(c.Groq.APIKeys, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// ArchiveEnabled reports whether the optional S3 audio archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3.Endpoint != "" && c.S3.Bucket != ""
}
