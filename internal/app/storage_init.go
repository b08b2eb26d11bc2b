package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/health"
	"github.com/vladislavdragonenkov/florist/internal/storage/memory"
	"github.com/vladislavdragonenkov/florist/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные драйвером.
type runtimeDependencies struct {
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	rateRepo        domain.ExchangeRateRepository
	webhookRepo     domain.WebhookEventRepository
	catalog         domain.ProductCatalog

	storageChecker health.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		return initMemoryDependencies(cfg, logger)
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func initMemoryDependencies(cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	products, err := loadCatalogSeed(cfg.CatalogSeedFile)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		logger.Warn("catalog is empty, checkout will reject every cart")
	}

	outboxRepo := memory.NewOutboxRepository()
	timelineRepo := memory.NewTimelineRepository()

	logger.WithField("products", len(products)).Info("using in-memory storage")
	return &runtimeDependencies{
		repo:            memory.NewOrderRepository(outboxRepo, timelineRepo),
		outboxRepo:      outboxRepo,
		timelineRepo:    timelineRepo,
		idempotencyRepo: memory.NewIdempotencyRepository(),
		rateRepo:        memory.NewExchangeRateRepository(),
		webhookRepo:     memory.NewWebhookEventRepository(),
		catalog:         memory.NewCatalog(products...),
		closeFn:         func() error { return nil },
	}, nil
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required for postgres storage")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	logger.Info("using postgres storage")
	return &runtimeDependencies{
		repo:            postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		rateRepo:        postgres.NewExchangeRateRepository(store),
		webhookRepo:     postgres.NewWebhookEventRepository(store),
		catalog:         postgres.NewProductCatalog(store),
		storageChecker:  health.NewCritical("postgres", store.Ping),
		closeFn:         store.Close,
	}, nil
}

// catalogSeedProduct — запись файла каталога для режима memory.
type catalogSeedProduct struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
	Active     *bool  `json:"active"`
}

func loadCatalogSeed(path string) ([]domain.Product, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}

	var seed []catalogSeedProduct
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}

	products := make([]domain.Product, 0, len(seed))
	for _, p := range seed {
		if p.ID <= 0 || strings.TrimSpace(p.Name) == "" || p.PriceMinor < 0 {
			return nil, fmt.Errorf("catalog seed: invalid product %d", p.ID)
		}
		active := true
		if p.Active != nil {
			active = *p.Active
		}
		products = append(products, domain.Product{
			ID:         p.ID,
			Name:       p.Name,
			PriceMinor: p.PriceMinor,
			Currency:   domain.NormalizeCurrency(p.Currency),
			Active:     active,
		})
	}
	return products, nil
}
