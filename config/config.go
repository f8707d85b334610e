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
	ShipCore ShipCoreConfig `yaml:"shipcore"`
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
	ShipmentScannedTopicName string `yaml:"shipment_scanned_topic_name"`
	StatusChangedTopicName   string `yaml:"status_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ShipCoreConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`

	// Ingest scan rate limiting, per actor credential.
	IngestRateLimitPerMinute int `yaml:"ingest_rate_limit_per_minute"`

	// Reconciliation tuning. If not set, defaults are 7 days / 100 rows.
	StaleAgeDays  int `yaml:"stale_age_days"`
	BulkChunkSize int `yaml:"bulk_chunk_size"`

	PartnerLookupBaseURL    string `yaml:"partner_lookup_base_url"`
	PartnerLookupAPIKey     string `yaml:"partner_lookup_api_key"`
	PartnerLookupCodePrefix string `yaml:"partner_lookup_code_prefix"`
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
