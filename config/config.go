package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Telegram TelegramConfig `yaml:"telegram"`
	TrackBot TrackBotConfig `yaml:"trackbot"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	TrackingUpdatedTopicName string `yaml:"tracking_updated_topic_name" validate:"required"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TelegramConfig struct {
	Token         string `yaml:"token"`
	APIBaseURL    string `yaml:"api_base_url" validate:"url"`
	WebhookSecret string `yaml:"webhook_secret"`
	// Outgoing messages per second across all chats.
	SendRatePerSecond float64 `yaml:"send_rate_per_second" validate:"gte=0"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

type TrackBotConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	LogLevel           string `yaml:"log_level" validate:"oneof=debug info warn warning error DEBUG INFO WARN ERROR"`

	StorageDriver string `yaml:"storage_driver" validate:"oneof=postgres memory"`
	LockDriver string `yaml:"lock_driver" validate:"oneof=local redis"`

	DisplayTimezone     string `yaml:"display_timezone"`
	InfoCacheTTLSeconds int    `yaml:"info_cache_ttl_seconds" validate:"gte=0"`

	DispatcherWorkers   int `yaml:"dispatcher_workers"`
	DispatcherQueueSize int `yaml:"dispatcher_queue_size"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerConcurrency         int `yaml:"worker_concurrency" validate:"gte=1,lte=256"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerSink string `yaml:"worker_sink" validate:"oneof=kafka direct"`

	ProviderMode           string `yaml:"provider_mode" validate:"oneof=track123 statelist fake"`
	ProviderBaseURL        string `yaml:"provider_base_url" validate:"omitempty,url"`
	ProviderAPIKey         string `yaml:"provider_api_key"`
	ProviderTimeoutSeconds int    `yaml:"provider_timeout_seconds"`
	ProviderPollAttempts   int    `yaml:"provider_poll_attempts"`
	ProviderPollBackoffMS  int    `yaml:"provider_poll_backoff_ms"`
	ProviderWebhookHeader  string `yaml:"provider_webhook_header" validate:"required"`
	ProviderWebhookSecret  string `yaml:"provider_webhook_secret"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	config.applyEnv(loadEnv(envFile))
	config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// envFile is read next to the working directory when present; real
// environment variables win over it.
var envFile = ".env"

func loadEnv(path string) func(key string) string {
	fileEnv, err := godotenv.Read(path)
	if err != nil {
		fileEnv = map[string]string{}
	}
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileEnv[key]
	}
}

// applyEnv lets secrets stay out of the YAML file.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := getenv("TELEGRAM_WEBHOOK_SECRET"); v != "" {
		c.Telegram.WebhookSecret = v
	}
	if v := getenv("TRACK123_API_KEY"); v != "" {
		c.TrackBot.ProviderAPIKey = v
	}
	if v := getenv("PROVIDER_WEBHOOK_SECRET"); v != "" {
		c.TrackBot.ProviderWebhookSecret = v
	}
	if v := getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("PORT"); v != "" {
		c.TrackBot.HTTPAddr = ":" + v
	}
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// WithDefaults fills the zero values both binaries rely on.
func (c *Config) WithDefaults() *Config {
	t := &c.TrackBot
	if t.HTTPAddr == "" {
		t.HTTPAddr = ":8080"
	}
	if t.WorkerHTTPAddr == "" {
		t.WorkerHTTPAddr = ":8082"
	}
	if t.KafkaConsumerGroup == "" {
		t.KafkaConsumerGroup = "track-api"
	}
	if t.LogLevel == "" {
		t.LogLevel = "info"
	}
	if t.StorageDriver == "" {
		t.StorageDriver = "postgres"
	}
	if t.LockDriver == "" {
		t.LockDriver = "local"
	}
	if t.DisplayTimezone == "" {
		t.DisplayTimezone = "Europe/Kyiv"
	}
	if t.InfoCacheTTLSeconds == 0 {
		t.InfoCacheTTLSeconds = 120
	}
	if t.DispatcherWorkers <= 0 {
		t.DispatcherWorkers = 2
	}
	if t.DispatcherQueueSize <= 0 {
		t.DispatcherQueueSize = 1024
	}
	if t.WorkerPollIntervalSeconds <= 0 {
		t.WorkerPollIntervalSeconds = 6 * 60 * 60
	}
	if t.WorkerConcurrency <= 0 {
		t.WorkerConcurrency = 4
	}
	if t.WorkerRateLimitPerMinute <= 0 {
		t.WorkerRateLimitPerMinute = 60
	}
	if t.WorkerSink == "" {
		if c.Kafka.Host != "" {
			t.WorkerSink = "kafka"
		} else {
			t.WorkerSink = "direct"
		}
	}
	if t.ProviderMode == "" {
		t.ProviderMode = "fake"
	}
	if t.ProviderTimeoutSeconds <= 0 {
		t.ProviderTimeoutSeconds = 10
	}
	if t.ProviderPollAttempts <= 0 {
		t.ProviderPollAttempts = 5
	}
	if t.ProviderPollBackoffMS <= 0 {
		t.ProviderPollBackoffMS = 1500
	}
	if t.ProviderWebhookHeader == "" {
		t.ProviderWebhookHeader = "X-Webhook-Secret"
	}
	if c.Kafka.TrackingUpdatedTopicName == "" {
		c.Kafka.TrackingUpdatedTopicName = "tracking.updated"
	}
	if c.Tracing.Enabled && c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Telegram.SendRatePerSecond <= 0 {
		c.Telegram.SendRatePerSecond = 25
	}
	return c
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (t TrackBotConfig) PollInterval() time.Duration {
	return time.Duration(t.WorkerPollIntervalSeconds) * time.Second
}

func (t TrackBotConfig) InfoCacheTTL() time.Duration {
	return time.Duration(t.InfoCacheTTLSeconds) * time.Second
}

func (t TrackBotConfig) ProviderTimeout() time.Duration {
	return time.Duration(t.ProviderTimeoutSeconds) * time.Second
}

func (t TrackBotConfig) ProviderPollBackoff() time.Duration {
	return time.Duration(t.ProviderPollBackoffMS) * time.Millisecond
}

// DisplayLocation resolves the configured zone, falling back to a fixed UTC+2.
func (t TrackBotConfig) DisplayLocation() *time.Location {
	if loc, err := time.LoadLocation(t.DisplayTimezone); err == nil {
		return loc
	}
	return time.FixedZone("UTC+2", 2*60*60)
}

func (t TrackBotConfig) SlogLevel() slog.Level {
	switch strings.ToLower(t.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HasRedis and HasKafka report whether the optional infrastructure is configured.
func (c *Config) HasRedis() bool { return c.Redis.Host != "" }

func (c *Config) HasKafka() bool { return c.Kafka.Host != "" }
