package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// pendingGatewayOrder сохраняет неоплаченный заказ, привязанный к намерению шлюза.
func (h *harness) pendingGatewayOrder(t *testing.T, reference string) domain.Order {
	t.Helper()

	order := domain.NewOrder(domain.Quote{
		Request:       checkoutRequest(domain.PaymentMethodCard),
		Items:         []domain.OrderItem{domain.NewOrderItem(domain.Product{ID: 1, Name: "Rose bouquet", PriceMinor: 25000}, 1)},
		Currency:      "HKD",
		SubtotalMinor: 25000,
		TotalMinor:    25000,
	}, testNow)
	order.PaymentReference = reference
	require.NoError(t, h.orders.Create(context.Background(), order, nil))
	h.succeededIntent(reference, 25000, domain.MethodDetails{})
	return order
}

func TestWebhookMarksPendingOrderPaid(t *testing.T) {
	h := newHarness(t)
	order := h.pendingGatewayOrder(t, "pi_hook")

	payload, sig := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{WalletType: "google_pay"})
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))

	stored, err := h.orders.Get(context.Background(), order.Number)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatePaid, stored.State)
	require.Equal(t, domain.PaymentMethodGooglePay, stored.PaymentMethod)
	require.Equal(t, testNow, stored.ConfirmedAt)
	require.Equal(t, 1, h.notifier.count())
}

func TestWebhookRedeliveryIsSuppressed(t *testing.T) {
	h := newHarness(t)
	order := h.pendingGatewayOrder(t, "pi_hook")
	payload, sig := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})

	const deliveries = 12
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.engine.HandleWebhook(context.Background(), payload, sig)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := h.orders.Get(context.Background(), order.Number)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatePaid, stored.State)
	require.Equal(t, int64(2), stored.Version)
	require.Equal(t, 1, h.notifier.count())
}

func TestWebhookDistinctEventsForSameOrderNotifyOnce(t *testing.T) {
	h := newHarness(t)
	h.pendingGatewayOrder(t, "pi_hook")

	const events = 8
	var wg sync.WaitGroup
	errs := make(chan error, events)
	for i := 0; i < events; i++ {
		payload, sig := h.gateway.Event(fmt.Sprintf("evt_%d", i), domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.engine.HandleWebhook(context.Background(), payload, sig)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, h.notifier.count())
}

func TestWebhookAfterConfirmDoesNotNotifyAgain(t *testing.T) {
	h := newHarness(t)
	h.succeededIntent("pi_1", 25000, domain.MethodDetails{})
	_, err := h.engine.ConfirmOrder(context.Background(), "pi_1", checkoutRequest(domain.PaymentMethodCard))
	require.NoError(t, err)

	payload, sig := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_1", domain.MethodDetails{})
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))
	require.Equal(t, 1, h.notifier.count())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	order := h.pendingGatewayOrder(t, "pi_hook")
	payload, _ := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})

	err := h.engine.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	stored, err := h.orders.Get(context.Background(), order.Number)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatePending, stored.State)

	// событие не было записано в журнал и может прийти с верной подписью
	payload, sig := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))
	require.Equal(t, 1, h.notifier.count())
}

func TestWebhookFailureAndRefundTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("failed payment", func(t *testing.T) {
		h := newHarness(t)
		order := h.pendingGatewayOrder(t, "pi_hook")
		payload, sig := h.gateway.Event("evt_fail", domain.GatewayEventTypeIntentFailed, "pi_hook", domain.MethodDetails{})
		require.NoError(t, h.engine.HandleWebhook(ctx, payload, sig))

		stored, err := h.orders.Get(ctx, order.Number)
		require.NoError(t, err)
		require.Equal(t, domain.PaymentStatusFailed, stored.PaymentStatus())

		// неуспешный заказ не становится оплаченным
		payload, sig = h.gateway.Event("evt_ok", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})
		require.NoError(t, h.engine.HandleWebhook(ctx, payload, sig))
		stored, err = h.orders.Get(ctx, order.Number)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStateFailed, stored.State)
		require.Zero(t, h.notifier.count())
	})

	t.Run("failure after payment is ignored", func(t *testing.T) {
		h := newHarness(t)
		h.succeededIntent("pi_1", 25000, domain.MethodDetails{})
		res, err := h.engine.ConfirmOrder(ctx, "pi_1", checkoutRequest(domain.PaymentMethodCard))
		require.NoError(t, err)

		payload, sig := h.gateway.Event("evt_fail", domain.GatewayEventTypeIntentFailed, "pi_1", domain.MethodDetails{})
		require.NoError(t, h.engine.HandleWebhook(ctx, payload, sig))
		stored, err := h.orders.Get(ctx, res.Order.Number)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStatePaid, stored.State)
	})

	t.Run("refund then late success", func(t *testing.T) {
		h := newHarness(t)
		h.succeededIntent("pi_1", 25000, domain.MethodDetails{})
		res, err := h.engine.ConfirmOrder(ctx, "pi_1", checkoutRequest(domain.PaymentMethodCard))
		require.NoError(t, err)

		payload, sig := h.gateway.Event("evt_refund", domain.GatewayEventTypeChargeRefunded, "pi_1", domain.MethodDetails{})
		require.NoError(t, h.engine.HandleWebhook(ctx, payload, sig))
		payload, sig = h.gateway.Event("evt_late", domain.GatewayEventTypeIntentSucceeded, "pi_1", domain.MethodDetails{})
		require.NoError(t, h.engine.HandleWebhook(ctx, payload, sig))

		stored, err := h.orders.Get(ctx, res.Order.Number)
		require.NoError(t, err)
		require.Equal(t, domain.OrderStateRefunded, stored.State)
		require.Equal(t, domain.PaymentStatusRefunded, stored.PaymentStatus())
		require.Equal(t, 1, h.notifier.count())
	})
}

func TestWebhookIgnoresUnknownEventsAndMissingOrders(t *testing.T) {
	h := newHarness(t)

	payload, sig := h.gateway.Event("evt_other", "customer.created", "", domain.MethodDetails{})
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))

	payload, sig = h.gateway.Event("evt_orphan", domain.GatewayEventTypeIntentSucceeded, "pi_unknown", domain.MethodDetails{})
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))
	require.Zero(t, h.notifier.count())
}

func TestWebhookStorageFailureReleasesEvent(t *testing.T) {
	h := newHarness(t)
	order := h.pendingGatewayOrder(t, "pi_hook")
	flaky := &flakyOrders{OrderRepository: h.orders, failUpdates: 1}
	h.engine.orders = flaky

	payload, sig := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})
	err := h.engine.HandleWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrSignatureInvalid)

	stored, getErr := h.orders.Get(context.Background(), order.Number)
	require.NoError(t, getErr)
	require.Equal(t, domain.OrderStatePending, stored.State)

	// повторная доставка обрабатывается заново
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))
	stored, getErr = h.orders.Get(context.Background(), order.Number)
	require.NoError(t, getErr)
	require.Equal(t, domain.OrderStatePaid, stored.State)
	require.Equal(t, 1, h.notifier.count())
}

func TestWebhookAmountMismatchLeavesOrderPending(t *testing.T) {
	h := newHarness(t)
	order := h.pendingGatewayOrder(t, "pi_hook")
	require.NoError(t, h.gateway.Succeed("pi_hook", 100, domain.MethodDetails{}))

	payload, sig := h.gateway.Event("evt_1", domain.GatewayEventTypeIntentSucceeded, "pi_hook", domain.MethodDetails{})
	require.NoError(t, h.engine.HandleWebhook(context.Background(), payload, sig))

	stored, err := h.orders.Get(context.Background(), order.Number)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatePending, stored.State)
}

// flakyOrders возвращает ошибку хранилища на первых вызовах Update.
type flakyOrders struct {
	domain.OrderRepository
	mu          sync.Mutex
	failUpdates int
}

func (f *flakyOrders) Update(ctx context.Context, number string, mutate domain.OrderMutation) (domain.Order, error) {
	f.mu.Lock()
	if f.failUpdates > 0 {
		f.failUpdates--
		f.mu.Unlock()
		return domain.Order{}, errors.New("connection refused")
	}
	f.mu.Unlock()
	return f.OrderRepository.Update(ctx, number, mutate)
}
