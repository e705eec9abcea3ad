package config

import (
	"os"
	"time"
)

// ElasticsearchConfig содержит конфигурацию для подключения к Elasticsearch
type ElasticsearchConfig struct {
	URL        string
	Index      string
	Username   string
	Password   string
	MaxRetries int
	Timeout    time.Duration
}

// Enabled - пустой URL отключает поисковый индекс
func (c ElasticsearchConfig) Enabled() bool {
	return c.URL != ""
}

// LoadElasticsearchConfig загружает конфигурацию Elasticsearch из переменных окружения
func LoadElasticsearchConfig() ElasticsearchConfig {
	return ElasticsearchConfig{
		URL:        getEnv("ELASTICSEARCH_URL", ""),
		Index:      getEnv("ELASTICSEARCH_INDEX", "tickets"),
		Username:   os.Getenv("ELASTICSEARCH_USERNAME"),
		Password:   os.Getenv("ELASTICSEARCH_PASSWORD"),
		MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
		Timeout:    getEnvDuration("ELASTICSEARCH_TIMEOUT", 30*time.Second),
	}
}
