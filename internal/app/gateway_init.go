package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/gateway/stripe"
	"github.com/vladislavdragonenkov/florist/internal/service/payment"
)

// fakeWebhookSecret подписывает webhook локального шлюза.
const fakeWebhookSecret = "whsec_local"

func initGateway(cfg Config, logger *log.Entry) (domain.PaymentGateway, error) {
	switch cfg.GatewayDriver {
	case GatewayDriverStripe:
		gw, err := stripe.New(stripe.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Timeout:       cfg.GatewayTimeout,
		}, logger.WithField("component", "stripe"))
		if err != nil {
			return nil, fmt.Errorf("init stripe gateway: %w", err)
		}
		logger.Info("using stripe payment gateway")
		return gw, nil
	case GatewayDriverFake:
		secret := cfg.StripeWebhookSecret
		if secret == "" {
			secret = fakeWebhookSecret
		}
		gw := payment.NewFakeGateway(secret)
		gw.AutoSucceed = true
		logger.Warn("using fake payment gateway, every intent succeeds immediately")
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported gateway driver: %s", cfg.GatewayDriver)
	}
}
