// Package httpapi реализует HTTP API магазина поверх gin.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/reconcile"
)

const (
	serviceName           = "florist-api"
	defaultIdempotencyTTL = 24 * time.Hour
)

// Engine — операции сверки платежей, которые вызывают обработчики.
type Engine interface {
	CreatePaymentIntent(ctx context.Context, req domain.CheckoutRequest) (reconcile.IntentResult, error)
	ConfirmOrder(ctx context.Context, reference string, req domain.CheckoutRequest) (reconcile.ConfirmResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	CreateTransferOrder(ctx context.Context, req domain.CheckoutRequest) (reconcile.TransferOrder, error)
	GetOrder(ctx context.Context, orderNumber string) (domain.Order, error)
	PaymentStatus(ctx context.Context, orderNumber string) (reconcile.PaymentStatusView, error)
	ConfirmManual(ctx context.Context, orderNumber string) (reconcile.ManualResult, error)
	ConfirmManualBatch(ctx context.Context, orderNumbers []string) (reconcile.BatchResult, error)
	CancelOrder(ctx context.Context, orderNumber string) (domain.Order, error)
	CompleteOrder(ctx context.Context, orderNumber string) (domain.Order, error)
}

// RateBook — справочник курсов для админских маршрутов.
type RateBook interface {
	Info(ctx context.Context, base, target string) (currency.Info, error)
	Record(ctx context.Context, base, target string, rate decimal.Decimal, source string) (domain.ExchangeRate, error)
}

// Config связывает роутер с сервисами.
type Config struct {
	Engine      Engine
	Rates       RateBook
	Idempotency domain.IdempotencyRepository
	// IdempotencyTTL задаёт срок хранения ответа по Idempotency-Key; по умолчанию 24 часа.
	IdempotencyTTL time.Duration
	Logger         *log.Entry
	// Tracing включает middleware otelgin.
	Tracing bool
}

type handler struct {
	engine Engine
	rates  RateBook
	logger *log.Entry
}

// NewRouter собирает gin.Engine со всеми маршрутами API.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithField("component", "http-api")
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	if cfg.Tracing {
		router.Use(otelgin.Middleware(serviceName))
	}

	h := &handler{engine: cfg.Engine, rates: cfg.Rates, logger: logger}
	idem := newIdempotency(cfg.Idempotency, ttl, logger)

	orders := router.Group("/api/orders")
	{
		orders.POST("/payment-intents", idem.middleware(), h.createPaymentIntent)
		orders.POST("/confirm", h.confirmOrder)
		orders.POST("/webhook", h.webhook)
		orders.POST("/transfer", h.createTransferOrder)
		orders.GET("/:number", h.getOrder)
		orders.GET("/:number/payment-status", h.paymentStatus)
	}

	admin := router.Group("/api/admin")
	{
		admin.POST("/orders/confirm-transfer", h.confirmTransfer)
		admin.POST("/orders/:number/cancel", h.cancelOrder)
		admin.POST("/orders/:number/complete", h.completeOrder)
		admin.GET("/exchange-rates/:base/:target", h.rateInfo)
		admin.POST("/exchange-rates", h.recordRate)
	}

	router.NoRoute(func(c *gin.Context) {
		writeError(c, errRouteNotFound)
	})

	return router
}

// requestLogger пишет одну строку на запрос в logrus.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        path,
			"status":      status,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
