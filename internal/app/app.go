package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/florist/internal/checkout"
	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/health"
	"github.com/vladislavdragonenkov/florist/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
	"github.com/vladislavdragonenkov/florist/internal/observability"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/idempotency"
	"github.com/vladislavdragonenkov/florist/internal/service/notification"
	"github.com/vladislavdragonenkov/florist/internal/service/outbox"
	"github.com/vladislavdragonenkov/florist/internal/service/rates"
	"github.com/vladislavdragonenkov/florist/internal/service/reconcile"
	"github.com/vladislavdragonenkov/florist/internal/transport/grpcapi"
	"github.com/vladislavdragonenkov/florist/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/florist/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Service объединяет HTTP и gRPC API, движок сверки и фоновые задачи.
type Service struct {
	Engine  *reconcile.Engine
	Gateway domain.PaymentGateway
	Rates   *currency.Store
	Handler http.Handler
	Admin   *grpcapi.AdminService
	Health  *health.Handler

	logger        *log.Entry
	deps          *runtimeDependencies
	producer      *kafka.Producer
	outboxWorker  *outbox.Worker
	cleanupWorker *idempotency.CleanupWorker
	refresher     *rates.Refresher
}

// Build проверяет конфигурацию и связывает компоненты. Фоновые задачи не запускаются.
func Build(ctx context.Context, cfg Config, logger *log.Entry) (*Service, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	gateway, err := initGateway(cfg, logger)
	if err != nil {
		_ = deps.closeFn()
		return nil, err
	}
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)

	settlement, _ := currency.ParseSettlement(cfg.SettlementCurrencies)
	loc := cfg.location()

	rateStore := currency.NewStore(deps.rateRepo, logger.WithField("component", "currency"))

	checkoutCfg := checkout.DefaultConfig()
	checkoutCfg.Currency = cfg.Currency
	checkoutCfg.MaxOrderTotalMinor = cfg.MaxOrderTotalMinor
	checkoutCfg.Location = loc
	validator := checkout.New(deps.catalog, checkoutCfg)

	dispatcher := notification.NewDispatcher(
		notificationSender(producer, logger),
		notification.WithTimeout(cfg.NotificationTimeout),
		notification.WithLocation(loc),
		notification.WithLogger(logger.WithField("component", "notification")),
	)

	engine := reconcile.New(reconcile.Dependencies{
		Orders:   deps.repo,
		Webhooks: deps.webhookRepo,
		Gateway:  gateway,
		Quoter:   validator,
		Rates:    rateStore,
		Notifier: dispatcher,
	},
		reconcile.WithLogger(logger.WithField("component", "reconcile")),
		reconcile.WithMetrics(metrics.NewReconcileMetrics()),
		reconcile.WithSettlement(settlement),
		reconcile.WithPayMePhone(cfg.PayMePhone),
	)

	healthHandler := health.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	if len(settlement) > 0 {
		healthHandler.RegisterChecker("exchange_rate", rateFreshnessChecker(rateStore, cfg.RatesBase, cfg.RatesTarget))
	}

	svc := &Service{
		Engine:  engine,
		Gateway: gateway,
		Rates:   rateStore,
		Health:  healthHandler,
		Handler: httpapi.NewRouter(httpapi.Config{
			Engine:         engine,
			Rates:          rateStore,
			Idempotency:    deps.idempotencyRepo,
			IdempotencyTTL: cfg.IdempotencyTTL,
			Logger:         logger.WithField("component", "http"),
			Tracing:        cfg.OTLPEndpoint != "",
		}),
		Admin: grpcapi.NewAdminService(engine, rateStore, deps.idempotencyRepo,
			logger.WithField("component", "grpc"),
			grpcapi.WithIdempotencyTTL(cfg.IdempotencyTTL),
		),
		logger:   logger,
		deps:     deps,
		producer: producer,
		cleanupWorker: idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency_cleanup")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
			idempotency.WithMetrics(metrics.NewCleanupMetrics(nil)),
		),
	}

	if producer != nil {
		svc.outboxWorker = outbox.NewWorker(deps.outboxRepo,
			kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
			outbox.WithLogger(logger.WithField("component", "outbox")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicOrderEventsDLQ)),
			outbox.WithMetrics(metrics.NewOutboxMetrics(nil)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	} else {
		logger.Warn("kafka is not configured, outbox events stay pending")
	}

	if cfg.RatesAPIURL != "" {
		ratesCfg := rates.PairConfig(cfg.RatesBase, cfg.RatesTarget)
		if !cfg.RatesMin.IsZero() {
			ratesCfg.Min = cfg.RatesMin
		}
		if !cfg.RatesMax.IsZero() {
			ratesCfg.Max = cfg.RatesMax
		}
		ratesCfg.Interval = cfg.RatesRefreshInterval
		ratesCfg.Retention = cfg.RatesRetention
		svc.refresher = rates.NewRefresher(
			rates.NewHTTPFetcher(cfg.RatesAPIURL, 0),
			rateStore,
			ratesCfg,
			logger.WithField("component", "rates"),
			rates.WithMetrics(metrics.NewRatesMetrics(nil)),
		)
	}

	return svc, nil
}

// Start запускает фоновые задачи в группе g; они завершаются вместе с ctx.
func (s *Service) Start(ctx context.Context, g *errgroup.Group) {
	if s.outboxWorker != nil {
		g.Go(func() error {
			s.outboxWorker.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		s.cleanupWorker.Run(ctx)
		return nil
	})
	if s.refresher != nil {
		g.Go(func() error {
			return s.refresher.Run(ctx)
		})
	}
}

// Close освобождает Kafka и хранилище.
func (s *Service) Close() {
	closeKafka(s.producer, s.logger)
	if s.deps != nil && s.deps.closeFn != nil {
		if err := s.deps.closeFn(); err != nil {
			s.logger.WithError(err).Warn("failed to close storage")
		}
	}
}

// Run собирает сервис и обслуживает запросы до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: version.Service,
		Version:     version.GetVersion(),
		SampleRatio: 1,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown with error")
		}
	}()

	svc, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listen metrics: %w", err)
	}

	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			_ = metricsLis.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	httpSrv := &http.Server{Handler: svc.Handler, ReadHeaderTimeout: readHeaderTimeout}
	metricsSrv := &http.Server{Handler: newMetricsHandler(svc.Health), ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	if grpcLis != nil {
		grpcSrv, grpcHealth := newGRPCServer(svc.Admin, prometheus.DefaultRegisterer, logger)
		g.Go(func() error {
			logger.Infof("gRPC admin API слушает %s", grpcLis.Addr())
			return serveGRPC(grpcSrv, grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			stopGRPC(grpcSrv, grpcHealth, logger)
			return nil
		})
	}
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		return serveHTTP(httpSrv, httpLis)
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
		return serveHTTP(metricsSrv, metricsLis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем HTTP серверы")
		shutdownHTTP(httpSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return nil
	})
	svc.Start(gctx, g)

	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newMetricsHandler собирает служебные маршруты: /metrics и health checks.
func newMetricsHandler(healthHandler *health.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func rateFreshnessChecker(store *currency.Store, base, target string) health.Checker {
	return health.NewOptional("exchange_rate", func(ctx context.Context) error {
		info, err := store.Info(ctx, base, target)
		if err != nil {
			return err
		}
		if !info.Fresh {
			return fmt.Errorf("rate %s/%s is %.0fh old", info.Base, info.Target, info.AgeHours)
		}
		return nil
	})
}
