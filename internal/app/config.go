package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/florist/internal/service/currency"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL.
	StorageDriverPostgres = "postgres"

	// GatewayDriverStripe подключает настоящий Stripe.
	GatewayDriverStripe = "stripe"
	// GatewayDriverFake включает локальный шлюз, все платежи проходят сразу.
	GatewayDriverFake = "fake"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// GRPCAddr — адрес административного gRPC API; пусто выключает его.
	GRPCAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	CatalogSeedFile     string

	// KafkaBrokers перечисляет брокеры через запятую; пусто означает работу без Kafka.
	KafkaBrokers string

	GatewayDriver       string
	StripeSecretKey     string
	StripeWebhookSecret string
	GatewayTimeout      time.Duration

	Currency string
	// SettlementCurrencies в формате "alipay=USD,wechat_pay=CNY".
	SettlementCurrencies string
	MaxOrderTotalMinor   int64
	Timezone             string
	PayMePhone           string

	NotificationTimeout time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	RatesAPIURL          string
	RatesBase            string
	RatesTarget          string
	// RatesMin и RatesMax задают коридор допустимого курса. Нули означают
	// коридор по умолчанию для пары (см. rates.DefaultRange).
	RatesMin             decimal.Decimal
	RatesMax             decimal.Decimal
	RatesRefreshInterval time.Duration
	RatesRetention       time.Duration

	OTLPEndpoint string
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		GRPCAddr:                    ":50051",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		GatewayDriver:               GatewayDriverFake,
		GatewayTimeout:              10 * time.Second,
		Currency:                    "HKD",
		SettlementCurrencies:        "alipay=USD",
		MaxOrderTotalMinor:          100000_00,
		Timezone:                    "Asia/Hong_Kong",
		NotificationTimeout:         5 * time.Second,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		RatesAPIURL:                 "https://open.er-api.com/v6",
		RatesBase:                   "USD",
		RatesTarget:                 "HKD",
		RatesRefreshInterval:        24 * time.Hour,
		RatesRetention:              90 * 24 * time.Hour,
	}
}

// Validate проверяет согласованность настроек до запуска компонентов.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %s", c.StorageDriver))
	}

	switch c.GatewayDriver {
	case GatewayDriverFake:
	case GatewayDriverStripe:
		if strings.TrimSpace(c.StripeSecretKey) == "" || strings.TrimSpace(c.StripeWebhookSecret) == "" {
			errs = append(errs, errors.New("stripe secret key and webhook secret are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported gateway driver: %s", c.GatewayDriver))
	}

	if strings.TrimSpace(c.Currency) == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	if _, err := currency.ParseSettlement(c.SettlementCurrencies); err != nil {
		errs = append(errs, fmt.Errorf("settlement currencies: %w", err))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if c.MaxOrderTotalMinor <= 0 {
		errs = append(errs, errors.New("max order total must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.RatesMin.IsNegative() || c.RatesMax.IsNegative() {
		errs = append(errs, errors.New("rates sanity range must not be negative"))
	}
	if !c.RatesMin.IsZero() && !c.RatesMax.IsZero() && !c.RatesMin.LessThan(c.RatesMax) {
		errs = append(errs, fmt.Errorf("rates min %s must be less than max %s", c.RatesMin, c.RatesMax))
	}
	if c.RatesRefreshInterval < 0 {
		errs = append(errs, errors.New("rates refresh interval must not be negative"))
	}

	return errors.Join(errs...)
}

// location возвращает часовой пояс магазина; Validate уже проверил имя.
func (c Config) location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
