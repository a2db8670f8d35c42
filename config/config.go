package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	ParcelPing ParcelPingConfig `yaml:"parcelping"`
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
	ShipmentUpdatedTopicName string `yaml:"shipment_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CourierConfig — перекрытие настроек опроса для одного курьера.
// Нулевое значение наследует общий default.
type CourierConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	Concurrency         int    `yaml:"concurrency"`
	RateLimitPerMinute  int    `yaml:"rate_limit_per_minute"`
	Disabled            bool   `yaml:"disabled"`
	BaseURL             string `yaml:"base_url"`
}

type ParcelPingConfig struct {
	APIAddr               string `yaml:"api_addr"`
	KafkaConsumerGroup    string `yaml:"kafka_consumer_group"`
	StatusCacheTTLSeconds int    `yaml:"status_cache_ttl_seconds"`

	// Внешний чат-сервис, куда уходят уведомления.
	WebhookBaseURL string `yaml:"webhook_base_url"`
	WebhookToken   string `yaml:"webhook_token"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	// Jitter и бэкофф цикла опроса (optional). Defaults: jitter 10%,
	// backoff 5/15/30/60 minutes.
	WorkerJitterFraction  float64 `yaml:"worker_jitter_fraction"`
	WorkerBackoff1Seconds int     `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds int     `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds int     `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds int     `yaml:"worker_backoff_4_seconds"`

	// IKEA требует настоящий браузер.
	IkeaBrowserURL      string `yaml:"ikea_browser_url"`
	IkeaBrowserPoolSize int    `yaml:"ikea_browser_pool_size"`

	Couriers map[string]CourierConfig `yaml:"couriers"`
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

	return &config, nil
}
