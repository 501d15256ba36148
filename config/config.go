package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Meli     MeliConfig     `yaml:"meli"`
	Storage  StorageConfig  `yaml:"storage"`
	ScanBox  ScanBoxConfig  `yaml:"scanbox"`
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
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	PackageSyncedTopicName string `yaml:"package_synced_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MeliConfig struct {
	BaseURL   string `yaml:"base_url"`
	TokenFile string `yaml:"token_file"`
}

type StorageConfig struct {
	BaseURL    string `yaml:"base_url"`
	Bucket     string `yaml:"bucket"`
	ServiceKey string `yaml:"service_key"`
}

type ScanBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	RecordTTLSeconds   int    `yaml:"record_ttl_seconds"`

	WorkerHTTPAddr            string `yaml:"worker_http_addr"`
	WorkerSyncIntervalSeconds int    `yaml:"worker_sync_interval_seconds"`
	WorkerSyncDays            int    `yaml:"worker_sync_days"`
	WorkerPageSize            int    `yaml:"worker_page_size"`
	WorkerConcurrency         int    `yaml:"worker_concurrency"`
	WorkerRateLimitPerMinute  int    `yaml:"worker_rate_limit_per_minute"`
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
