package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// Live-connection handshake tokens are HS256 JWTs signed by the
	// platform with this shared secret.
	JWTSecret string `env:"JWT_SECRET,required=true"`

	SMTPHost     string `env:"SMTP_HOST,required=true"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME,default="`
	SMTPPassword string `env:"SMTP_PASSWORD,default="`
	SMTPFrom     string `env:"SMTP_FROM,required=true"`

	PushGatewayURL string `env:"PUSH_GATEWAY_URL,required=true"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=8"`
	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=100"`

	SweepIntervalSec     int `env:"SWEEP_INTERVAL_SEC,default=60"`
	SweepBatchSize       int `env:"SWEEP_BATCH_SIZE,default=100"`
	RetryScanIntervalSec int `env:"RETRY_SCAN_INTERVAL_SEC,default=5"`

	// 0 preserves daily re-notification of the same user by the same
	// campaign rule; a positive value suppresses repeats in that window.
	CampaignSuppressionHours int `env:"CAMPAIGN_SUPPRESSION_HOURS,default=0"`

	AnalyticsRetentionDays int `env:"ANALYTICS_RETENTION_DAYS,default=365"`
	ActivityRetentionDays  int `env:"ACTIVITY_RETENTION_DAYS,default=180"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
