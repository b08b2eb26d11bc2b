package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/florist/internal/app"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
)

type envLookup func(string) (string, bool)

const (
	envHTTPAddr                    = "FLORIST_HTTP_ADDR"
	envMetricsAddr                 = "FLORIST_METRICS_ADDR"
	envGRPCAddr                    = "FLORIST_GRPC_ADDR"
	envStorageDriver               = "FLORIST_STORAGE_DRIVER"
	envPostgresDSN                 = "FLORIST_POSTGRES_DSN"
	envPostgresAutoMigrate         = "FLORIST_POSTGRES_AUTO_MIGRATE"
	envCatalogSeedFile             = "FLORIST_CATALOG_SEED_FILE"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envGatewayDriver               = "FLORIST_GATEWAY_DRIVER"
	envStripeSecretKey             = "STRIPE_SECRET_KEY"
	envStripeWebhookSecret         = "STRIPE_WEBHOOK_SECRET"
	envGatewayTimeout              = "FLORIST_GATEWAY_TIMEOUT"
	envCurrency                    = "FLORIST_CURRENCY"
	envSettlementCurrencies        = "FLORIST_SETTLEMENT_CURRENCIES"
	envMaxOrderTotal               = "FLORIST_MAX_ORDER_TOTAL"
	envTimezone                    = "FLORIST_TIMEZONE"
	envPayMePhone                  = "FLORIST_PAYME_PHONE"
	envNotificationTimeout         = "FLORIST_NOTIFICATION_TIMEOUT"
	envOutboxPollInterval          = "FLORIST_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "FLORIST_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "FLORIST_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "FLORIST_OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "FLORIST_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "FLORIST_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "FLORIST_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envRatesAPIURL                 = "FLORIST_RATES_API_URL"
	envRatesBase                   = "FLORIST_RATES_BASE"
	envRatesTarget                 = "FLORIST_RATES_TARGET"
	envRatesMin                    = "FLORIST_RATES_MIN"
	envRatesMax                    = "FLORIST_RATES_MAX"
	envRatesRefreshInterval        = "FLORIST_RATES_REFRESH_INTERVAL"
	envRatesRetention              = "FLORIST_RATES_RETENTION"
	envOTLPEndpoint                = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: возвращается предупреждение и остаётся значение по умолчанию.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, raw, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	lower := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.ToLower(strings.TrimSpace(v))
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseBool(v)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envGRPCAddr); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}
	lower(envStorageDriver, &cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envCatalogSeedFile, &cfg.CatalogSeedFile)
	str(envKafkaBrokers, &cfg.KafkaBrokers)

	lower(envGatewayDriver, &cfg.GatewayDriver)
	str(envStripeSecretKey, &cfg.StripeSecretKey)
	str(envStripeWebhookSecret, &cfg.StripeWebhookSecret)
	duration(envGatewayTimeout, &cfg.GatewayTimeout, positive, "must be > 0")

	if v, ok := lookup(envCurrency); ok && strings.TrimSpace(v) != "" {
		cfg.Currency = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := lookup(envSettlementCurrencies); ok {
		if _, err := currency.ParseSettlement(v); err != nil {
			warn(envSettlementCurrencies, v, err)
		} else {
			cfg.SettlementCurrencies = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(envMaxOrderTotal); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed <= 0 {
			warn(envMaxOrderTotal, v, fmt.Errorf("must be a positive amount in minor units"))
		} else {
			cfg.MaxOrderTotalMinor = parsed
		}
	}
	if v, ok := lookup(envTimezone); ok && strings.TrimSpace(v) != "" {
		if _, err := time.LoadLocation(strings.TrimSpace(v)); err != nil {
			warn(envTimezone, v, err)
		} else {
			cfg.Timezone = strings.TrimSpace(v)
		}
	}
	str(envPayMePhone, &cfg.PayMePhone)
	duration(envNotificationTimeout, &cfg.NotificationTimeout, positive, "must be > 0")

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	if v, ok := lookup(envRatesAPIURL); ok {
		cfg.RatesAPIURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(envRatesBase); ok && strings.TrimSpace(v) != "" {
		cfg.RatesBase = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := lookup(envRatesTarget); ok && strings.TrimSpace(v) != "" {
		cfg.RatesTarget = strings.ToUpper(strings.TrimSpace(v))
	}
	rate := func(key string, dst *decimal.Decimal) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil || !parsed.IsPositive() {
				warn(key, v, fmt.Errorf("must be a positive decimal"))
				return
			}
			*dst = parsed
		}
	}
	rate(envRatesMin, &cfg.RatesMin)
	rate(envRatesMax, &cfg.RatesMax)
	duration(envRatesRefreshInterval, &cfg.RatesRefreshInterval, nonNegative, "must be >= 0")
	duration(envRatesRetention, &cfg.RatesRetention, positive, "must be > 0")

	str(envOTLPEndpoint, &cfg.OTLPEndpoint)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean")
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s", rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s", rule)
	}
	return value, nil
}
