package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"truefantix/internal/database"
	"truefantix/internal/external"
	"truefantix/internal/messaging"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// "postgres" или "memory" (локальная разработка и тесты)
	DBDriver string

	Database      database.Config
	NATS          messaging.Config
	Redis         RedisConfig
	Elasticsearch ElasticsearchConfig
	PubNub        PubNubConfig
	Stripe        external.StripeConfig
	Ticketing     external.TicketingConfig
	Auth          AuthConfig
	Marketplace   MarketplaceConfig
}

// RedisConfig - общий счетчик rate limit и кэш сессий
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PubNubConfig - realtime доставка уведомлений пользователям
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// AuthConfig содержит настройки сессий и секретов
type AuthConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	CookieSecure  bool
	BcryptCost    int
	CronSecret    string
}

// MarketplaceConfig содержит бизнес-константы маркетплейса
type MarketplaceConfig struct {
	ReservationWindow  time.Duration
	EscrowTimeout      time.Duration
	AdminFeeBps        int64
	MaxTicketsPerOrder int
	SoldOutCreditCost  int64
	ExpireBatchSize    int
	SweepInterval      time.Duration
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		DBDriver:       getEnv("DB_DRIVER", "postgres"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "truefantix"),
			Password:           getEnv("DB_PASSWORD", "truefantix"),
			DBName:             getEnv("DB_NAME", "truefantix"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", ""),
			ClusterID: getEnv("NATS_CLUSTER_ID", "truefantix"),
			ClientID:  getEnv("NATS_CLIENT_ID", "truefantix-api"),
		},

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		PubNub: PubNubConfig{
			PublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
			SubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
			SecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
			UserID:       getEnv("PUBNUB_USER_ID", "truefantix-server"),
		},

		Stripe: external.StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "cad"),
		},

		Ticketing: external.TicketingConfig{
			BaseURL: getEnv("TICKET_PROVIDER_URL", ""),
			Timeout: time.Duration(getEnvInt("TICKET_PROVIDER_TIMEOUT_SEC", 10)) * time.Second,
		},

		Auth: AuthConfig{
			SessionSecret: getEnv("SESSION_SECRET", ""),
			SessionTTL:    getEnvDuration("SESSION_TTL", 30*24*time.Hour),
			CookieName:    getEnv("SESSION_COOKIE_NAME", "tft_session"),
			CookieSecure:  getEnvBool("SESSION_COOKIE_SECURE", false),
			BcryptCost:    getEnvInt("BCRYPT_COST", 12),
			CronSecret:    getEnv("CRON_SECRET", ""),
		},

		Marketplace: MarketplaceConfig{
			ReservationWindow:  getEnvDuration("RESERVATION_WINDOW", 15*time.Minute),
			EscrowTimeout:      getEnvDuration("ESCROW_TIMEOUT", 60*time.Minute),
			AdminFeeBps:        int64(getEnvInt("ADMIN_FEE_BPS", 875)),
			MaxTicketsPerOrder: getEnvInt("MAX_TICKETS_PER_ORDER", 10),
			SoldOutCreditCost:  int64(getEnvInt("SOLD_OUT_CREDIT_COST", 1)),
			ExpireBatchSize:    getEnvInt("EXPIRE_BATCH_SIZE", 200),
			SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Minute),
		},
	}
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if len(c.Auth.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters")
	}
	switch c.DBDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.Marketplace.AdminFeeBps < 0 || c.Marketplace.MaxTicketsPerOrder < 1 {
		return fmt.Errorf("invalid marketplace settings")
	}
	return nil
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
