package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/florist/internal/checkout"
	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/payment"
	"github.com/vladislavdragonenkov/florist/internal/service/reconcile"
	"github.com/vladislavdragonenkov/florist/internal/storage/memory"
)

var testNow = time.Date(2026, 4, 12, 2, 0, 0, 0, time.UTC)

type nopNotifier struct{}

func (nopNotifier) OrderConfirmed(context.Context, domain.Order) error { return nil }

type testServer struct {
	router  *gin.Engine
	gateway *payment.FakeGateway
	rates   *currency.Store
	orders  domain.OrderRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := memory.NewCatalog(
		domain.Product{ID: 1, Name: "Rose bouquet", PriceMinor: 25000, Currency: "HKD", Active: true},
	)
	ts := &testServer{
		gateway: payment.NewFakeGateway("whsec_test"),
		rates:   currency.NewStore(memory.NewExchangeRateRepository(), nil),
		orders:  memory.NewOrderRepository(memory.NewOutboxRepository(), memory.NewTimelineRepository()),
	}
	validator := checkout.New(catalog, checkout.DefaultConfig(), checkout.WithClock(func() time.Time { return testNow }))
	engine := reconcile.New(reconcile.Dependencies{
		Orders:   ts.orders,
		Webhooks: memory.NewWebhookEventRepository(),
		Gateway:  ts.gateway,
		Quoter:   validator,
		Rates:    ts.rates,
		Notifier: nopNotifier{},
	},
		reconcile.WithClock(func() time.Time { return testNow }),
		reconcile.WithMetrics(metrics.NewReconcileMetricsWithRegisterer(prometheus.NewRegistry())),
		reconcile.WithPayMePhone("+852 9123 4567"),
	)

	ts.router = NewRouter(Config{
		Engine:      engine,
		Rates:       ts.rates,
		Idempotency: memory.NewIdempotencyRepository(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func checkoutBody(method string) map[string]any {
	return map[string]any{
		"customer": map[string]any{
			"name":  "Chan Tai Man",
			"email": "chan@example.com",
			"phone": "+852 9123-4567",
		},
		"delivery_address": "1 Queen's Road Central, Hong Kong",
		"delivery_date":    "2026-04-15",
		"language":         "en",
		"payment_method":   method,
		"items":            []map[string]any{{"product_id": 1, "quantity": 1}},
	}
}

func confirmBody(reference string) map[string]any {
	body := checkoutBody("card")
	body["payment_intent_id"] = reference
	return body
}

func TestCreatePaymentIntent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[intentResponse](t, rec)
	require.NotEmpty(t, resp.PaymentIntentID)
	require.NotEmpty(t, resp.ClientSecret)
	require.Equal(t, int64(25000), resp.DisplayAmountMinor)
	require.Equal(t, "HKD", resp.SettlementCurrency)
	require.Equal(t, int64(25000), resp.SettlementAmountMinor)
	require.Empty(t, resp.ExchangeRate)
}

func TestCreatePaymentIntentErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders/payment-intents", []byte("{not json"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", decode[errorBody](t, rec).Error.Code)

	body := checkoutBody("card")
	body["items"] = []map[string]any{}
	rec = ts.do(t, http.MethodPost, "/api/orders/payment-intents", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("alipay"), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "currency_unavailable", decode[errorBody](t, rec).Error.Code)

	ts.gateway.CreateErr = context.DeadlineExceeded
	rec = ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "gateway_unavailable", decode[errorBody](t, rec).Error.Code)
}

func TestCreatePaymentIntentWithSettlementCurrency(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.rates.Record(context.Background(), "USD", "HKD", decimal.RequireFromString("7.8"), "manual")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("alipay"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[intentResponse](t, rec)
	require.Equal(t, "USD", resp.SettlementCurrency)
	require.Equal(t, int64(3205), resp.SettlementAmountMinor)
	require.Equal(t, "7.8", resp.ExchangeRate)
}

func TestPaymentIntentIdempotencyKey(t *testing.T) {
	ts := newTestServer(t)
	headers := map[string]string{idempotencyKeyHeader: "checkout-42"}

	first := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get(idempotentReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, ts.gateway.CreateCalls)

	other := checkoutBody("card")
	other["delivery_notes"] = "leave at the door"
	conflict := ts.do(t, http.MethodPost, "/api/orders/payment-intents", other, headers)
	require.Equal(t, http.StatusConflict, conflict.Code)
	require.Equal(t, "idempotency_conflict", decode[errorBody](t, conflict).Error.Code)
}

func TestPaymentIntentIdempotencyReplaysClientErrors(t *testing.T) {
	ts := newTestServer(t)
	headers := map[string]string{idempotencyKeyHeader: "bad-cart"}
	body := checkoutBody("card")
	body["items"] = []map[string]any{{"product_id": 99, "quantity": 1}}

	first := ts.do(t, http.MethodPost, "/api/orders/payment-intents", body, headers)
	require.Equal(t, http.StatusBadRequest, first.Code)

	second := ts.do(t, http.MethodPost, "/api/orders/payment-intents", body, headers)
	require.Equal(t, http.StatusBadRequest, second.Code)
	require.Equal(t, "true", second.Header().Get(idempotentReplayed))
}

func TestPaymentIntentIdempotencyRetriesAfterServerError(t *testing.T) {
	ts := newTestServer(t)
	headers := map[string]string{idempotencyKeyHeader: "gateway-down"}

	ts.gateway.CreateErr = context.DeadlineExceeded
	first := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), headers)
	require.Equal(t, http.StatusServiceUnavailable, first.Code)

	ts.gateway.CreateErr = nil
	second := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), headers)
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	require.Empty(t, second.Header().Get(idempotentReplayed))
	require.NotEmpty(t, decode[intentResponse](t, second).PaymentIntentID)

	third := ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), headers)
	require.Equal(t, http.StatusCreated, third.Code)
	require.Equal(t, "true", third.Header().Get(idempotentReplayed))
	require.JSONEq(t, second.Body.String(), third.Body.String())
}

func TestConfirmOrderFlow(t *testing.T) {
	ts := newTestServer(t)

	intent := decode[intentResponse](t, ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), nil))

	rec := ts.do(t, http.MethodPost, "/api/orders/confirm", confirmBody(intent.PaymentIntentID), nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, "payment_not_succeeded", decode[errorBody](t, rec).Error.Code)

	require.NoError(t, ts.gateway.Succeed(intent.PaymentIntentID, 25000, domain.MethodDetails{WalletType: "google_pay"}))

	rec = ts.do(t, http.MethodPost, "/api/orders/confirm", confirmBody(intent.PaymentIntentID), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[confirmResponse](t, rec)
	require.True(t, created.Created)
	require.Equal(t, "paid", created.Order.PaymentStatus)
	require.Equal(t, "processing", created.Order.Status)
	require.Equal(t, "google_pay", created.Order.PaymentMethod)
	require.NotNil(t, created.Order.PaidAt)

	rec = ts.do(t, http.MethodPost, "/api/orders/confirm", confirmBody(intent.PaymentIntentID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[confirmResponse](t, rec)
	require.False(t, again.Created)
	require.Equal(t, created.Order.OrderNumber, again.Order.OrderNumber)

	rec = ts.do(t, http.MethodGet, "/api/orders/"+created.Order.OrderNumber, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2026-04-15", decode[orderResponse](t, rec).Delivery.Date)
}

func TestConfirmOrderAmountMismatch(t *testing.T) {
	ts := newTestServer(t)
	intent := decode[intentResponse](t, ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), nil))
	require.NoError(t, ts.gateway.Succeed(intent.PaymentIntentID, 24999, domain.MethodDetails{}))

	rec := ts.do(t, http.MethodPost, "/api/orders/confirm", confirmBody(intent.PaymentIntentID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "amount_mismatch", decode[errorBody](t, rec).Error.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	ts := newTestServer(t)
	intent := decode[intentResponse](t, ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), nil))
	require.NoError(t, ts.gateway.Succeed(intent.PaymentIntentID, 25000, domain.MethodDetails{}))
	order := decode[confirmResponse](t, ts.do(t, http.MethodPost, "/api/orders/confirm", confirmBody(intent.PaymentIntentID), nil)).Order

	payload, _ := ts.gateway.Event("evt_1", domain.GatewayEventTypeChargeRefunded, intent.PaymentIntentID, domain.MethodDetails{})
	rec := ts.do(t, http.MethodPost, "/api/orders/webhook", payload, map[string]string{signatureHeader: "t=1,v1=forged"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "signature_invalid", decode[errorBody](t, rec).Error.Code)

	payload, sig := ts.gateway.Event("evt_1", domain.GatewayEventTypeChargeRefunded, intent.PaymentIntentID, domain.MethodDetails{})
	for i := 0; i < 2; i++ {
		rec = ts.do(t, http.MethodPost, "/api/orders/webhook", payload, map[string]string{signatureHeader: sig})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	status := decode[paymentStatusResponse](t, ts.do(t, http.MethodGet, "/api/orders/"+order.OrderNumber+"/payment-status", nil, nil))
	require.Equal(t, "refunded", status.PaymentStatus)
	require.Equal(t, "refunded", status.Status)
}

func TestTransferOrderAndManualConfirm(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders/transfer", checkoutBody("payme"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	transfer := decode[transferResponse](t, rec)
	require.Equal(t, "https://payme.hsbc/payment?username=85291234567&amount=250.00", transfer.Payment.Link)
	require.Contains(t, transfer.Payment.Memo, transfer.Order.OrderNumber)
	require.Equal(t, "pending", transfer.Order.PaymentStatus)

	number := transfer.Order.OrderNumber
	status := decode[paymentStatusResponse](t, ts.do(t, http.MethodGet, "/api/orders/"+number+"/payment-status", nil, nil))
	require.Equal(t, "pending", status.PaymentStatus)
	require.Nil(t, status.PaidAt)

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/confirm-transfer", map[string]any{"order_number": number}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	manual := decode[manualResponse](t, rec)
	require.True(t, manual.Success)
	require.Equal(t, string(reconcile.OutcomeConfirmed), manual.Outcome)

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/confirm-transfer", map[string]any{"order_number": number}, nil)
	require.Equal(t, string(reconcile.OutcomeAlreadyConfirmed), decode[manualResponse](t, rec).Outcome)

	status = decode[paymentStatusResponse](t, ts.do(t, http.MethodGet, "/api/orders/"+number+"/payment-status", nil, nil))
	require.Equal(t, "paid", status.PaymentStatus)
	require.NotNil(t, status.PaidAt)

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/"+number+"/complete", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "completed", decode[orderResponse](t, rec).Status)
}

func TestManualConfirmBatchAndErrors(t *testing.T) {
	ts := newTestServer(t)
	first := decode[transferResponse](t, ts.do(t, http.MethodPost, "/api/orders/transfer", checkoutBody("payme"), nil))

	rec := ts.do(t, http.MethodPost, "/api/admin/orders/confirm-transfer", map[string]any{
		"order_numbers": []string{first.Order.OrderNumber, "HYF-20260412-MISSING0"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[batchResponse](t, rec)
	require.Equal(t, 1, batch.Confirmed)
	require.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Results, 2)
	require.NotNil(t, batch.Results[1].Error)
	require.Equal(t, "order_not_found", batch.Results[1].Error.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/confirm-transfer", map[string]any{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	intent := decode[intentResponse](t, ts.do(t, http.MethodPost, "/api/orders/payment-intents", checkoutBody("card"), nil))
	require.NoError(t, ts.gateway.Succeed(intent.PaymentIntentID, 25000, domain.MethodDetails{}))
	card := decode[confirmResponse](t, ts.do(t, http.MethodPost, "/api/orders/confirm", confirmBody(intent.PaymentIntentID), nil)).Order

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/confirm-transfer", map[string]any{"order_number": card.OrderNumber}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "manual_confirm_not_allowed", decode[errorBody](t, rec).Error.Code)
}

func TestCancelAndInvalidTransition(t *testing.T) {
	ts := newTestServer(t)
	transfer := decode[transferResponse](t, ts.do(t, http.MethodPost, "/api/orders/transfer", checkoutBody("payme"), nil))
	number := transfer.Order.OrderNumber

	rec := ts.do(t, http.MethodPost, "/api/admin/orders/"+number+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[orderResponse](t, rec)
	require.Equal(t, "cancelled", order.Status)
	require.Equal(t, "pending", order.PaymentStatus)

	rec = ts.do(t, http.MethodPost, "/api/admin/orders/"+number+"/complete", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "invalid_transition", decode[errorBody](t, rec).Error.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/orders/HYF-20260412-00000000", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "order_not_found", decode[errorBody](t, rec).Error.Code)

	rec = ts.do(t, http.MethodGet, "/api/unknown", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExchangeRateAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/admin/exchange-rates/USD/HKD", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "rate_not_found", decode[errorBody](t, rec).Error.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/exchange-rates", []byte(`{"rate":"7.82"}`), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recorded := decode[rateResponse](t, rec)
	require.Equal(t, "USD", recorded.Base)
	require.Equal(t, "HKD", recorded.Target)
	require.Equal(t, manualRateSource, recorded.Source)

	rec = ts.do(t, http.MethodGet, "/api/admin/exchange-rates/usd/hkd", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[rateResponse](t, rec)
	require.Equal(t, "7.82", info.Rate)
	require.NotNil(t, info.Fresh)

	rec = ts.do(t, http.MethodPost, "/api/admin/exchange-rates", []byte(`{"rate":0}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
