// Package stripe реализует domain.PaymentGateway поверх Stripe PaymentIntents.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Config задаёт ключи и сетевые параметры адаптера.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL переопределяет адрес API (используется в тестах).
	BaseURL string
}

// Gateway — адаптер Stripe. Секрет webhook привязывается при создании.
type Gateway struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
	logger        *log.Entry
}

// New создаёт адаптер. Оба ключа обязательны.
func New(cfg Config, logger *log.Entry) (*Gateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	noRetries := int64(0)
	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: &noRetries,
		LeveledLogger:     &stripeapi.LeveledLogger{Level: stripeapi.LevelWarn},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripeapi.String(cfg.BaseURL)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripeapi.Backends{
		API:     stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
		Connect: stripeapi.GetBackendWithConfig(stripeapi.ConnectBackend, backendCfg),
		Uploads: stripeapi.GetBackendWithConfig(stripeapi.UploadsBackend, backendCfg),
	})

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		timeout:       cfg.Timeout,
		logger:        logger.WithField("component", "stripe-gateway"),
	}, nil
}

// CreateIntent создаёт PaymentIntent на сумму в валюте расчёта.
func (g *Gateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(req.AmountMinor),
		Currency:           stripeapi.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{methodType(req.Method)}),
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return domain.Intent{}, g.wrapError("create payment intent", false, err)
	}
	return toIntent(pi), nil
}

// GetIntent загружает PaymentIntent вместе с последним платежом.
func (g *Gateway) GetIntent(ctx context.Context, reference string) (domain.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := g.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return domain.Intent{}, g.wrapError("get payment intent", true, err)
	}
	return toIntent(pi), nil
}

// VerifyWebhook проверяет подпись Stripe-Signature и разбирает событие.
func (g *Gateway) VerifyWebhook(payload []byte, signatureHeader string) (domain.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.GatewayEvent{}, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}

	result := domain.GatewayEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Kind: domain.ClassifyGatewayEvent(string(event.Type)),
	}
	if event.Data == nil {
		return result, nil
	}

	switch result.Kind {
	case domain.GatewayEventSucceeded, domain.GatewayEventFailed:
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return domain.GatewayEvent{}, fmt.Errorf("decode payment intent event: %w", err)
		}
		result.PaymentReference = pi.ID
		result.Method = methodDetails(pi.LatestCharge)
	case domain.GatewayEventRefunded:
		var charge stripeapi.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return domain.GatewayEvent{}, fmt.Errorf("decode charge event: %w", err)
		}
		if charge.PaymentIntent != nil {
			result.PaymentReference = charge.PaymentIntent.ID
		}
		result.Method = methodDetails(&charge)
	}
	return result, nil
}

// wrapError сводит ошибку Stripe к доменной. Клиентской считается только ссылка
// на несуществующее или некорректное намерение, остальное означает недоступность шлюза.
// Текст Stripe наружу не передаётся.
func (g *Gateway) wrapError(op string, byReference bool, err error) error {
	var stripeErr *stripeapi.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, op, err)
	}

	logger := g.logger.WithFields(log.Fields{
		"op":     op,
		"status": stripeErr.HTTPStatusCode,
		"type":   string(stripeErr.Type),
		"code":   string(stripeErr.Code),
	})
	if byReference && unknownReference(stripeErr) {
		logger.Info("stripe payment intent not found")
		return domain.NewValidationError("payment_intent_id", "unknown payment intent")
	}

	logger.WithError(err).Warn("stripe request failed")
	return fmt.Errorf("%w: %s: stripe status %d", domain.ErrGatewayUnavailable, op, stripeErr.HTTPStatusCode)
}

func unknownReference(err *stripeapi.Error) bool {
	if err.Code == stripeapi.ErrorCodeResourceMissing {
		return true
	}
	return err.HTTPStatusCode == http.StatusBadRequest &&
		err.Type == stripeapi.ErrorTypeInvalidRequest &&
		(err.Param == "" || err.Param == "intent" || err.Param == "id")
}

func toIntent(pi *stripeapi.PaymentIntent) domain.Intent {
	intent := domain.Intent{
		Reference:     pi.ID,
		ClientSecret:  pi.ClientSecret,
		Status:        intentStatus(pi.Status),
		AmountMinor:   pi.Amount,
		CapturedMinor: pi.AmountReceived,
		Currency:      domain.NormalizeCurrency(string(pi.Currency)),
		Method:        methodDetails(pi.LatestCharge),
		Metadata:      pi.Metadata,
	}
	return intent
}

func intentStatus(status stripeapi.PaymentIntentStatus) domain.IntentStatus {
	switch status {
	case stripeapi.PaymentIntentStatusSucceeded:
		return domain.IntentStatusSucceeded
	case stripeapi.PaymentIntentStatusCanceled:
		return domain.IntentStatusFailed
	default:
		return domain.IntentStatusPending
	}
}

func methodDetails(charge *stripeapi.Charge) domain.MethodDetails {
	if charge == nil || charge.PaymentMethodDetails == nil {
		return domain.MethodDetails{}
	}

	details := charge.PaymentMethodDetails
	result := domain.MethodDetails{}
	switch pmType := string(details.Type); pmType {
	case string(domain.PaymentMethodAlipay), string(domain.PaymentMethodWeChatPay):
		result.RedirectType = pmType
	}
	if details.Card != nil && details.Card.Wallet != nil {
		result.WalletType = string(details.Card.Wallet.Type)
	}
	return result
}

func methodType(method domain.PaymentMethod) string {
	if method.Redirect() {
		return string(method)
	}
	return "card"
}

var _ domain.PaymentGateway = (*Gateway)(nil)
