package reconcile

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
)

const (
	paymeLinkBase = "https://payme.hsbc/payment"
	qrCodeBase    = "https://api.qrserver.com/v1/create-qr-code/"
	transferMemo  = "HY Florist Order "
)

// IntentResult — данные для клиентской формы оплаты.
type IntentResult struct {
	Reference             string
	ClientSecret          string
	DisplayAmountMinor    int64
	DisplayCurrency       string
	SettlementAmountMinor int64
	SettlementCurrency    string
	// ExchangeRate пустой, если валюты совпадают.
	ExchangeRate decimal.Decimal
}

// TransferInstructions объясняют клиенту, как перевести деньги через PayMe.
type TransferInstructions struct {
	Link        string
	QRCodeURL   string
	Memo        string
	PayeePhone  string
	AmountMinor int64
	Currency    string
}

// TransferOrder — созданный заказ с инструкциями перевода.
type TransferOrder struct {
	Order        domain.Order
	Instructions TransferInstructions
}

// CreatePaymentIntent пересчитывает корзину и создаёт платёжное намерение в валюте расчёта.
// Заказ на этом шаге не создаётся.
func (e *Engine) CreatePaymentIntent(ctx context.Context, req domain.CheckoutRequest) (result IntentResult, err error) {
	ctx, span := e.startSpan(ctx, "CreatePaymentIntent")
	defer func() { finishSpan(span, err) }()

	quote, err := e.quoter.Quote(ctx, req)
	if err != nil {
		return IntentResult{}, err
	}
	method := quote.Request.PaymentMethod
	if method.PeerTransfer() {
		return IntentResult{}, domain.NewValidationError("payment_method", "%s orders are created through the transfer flow", method)
	}

	settlementCurrency := e.settlement.For(method, quote.Currency)
	amount := quote.TotalMinor
	var rate domain.ExchangeRate
	if settlementCurrency != quote.Currency {
		if e.rates == nil {
			return IntentResult{}, fmt.Errorf("%w: %s/%s", domain.ErrCurrencyUnavailable, quote.Currency, settlementCurrency)
		}
		conv, err := e.rates.Convert(ctx, quote.TotalMinor, quote.Currency, settlementCurrency)
		if err != nil {
			e.logger.WithError(err).WithField("settlement_currency", settlementCurrency).Error("no exchange rate for payment intent")
			return IntentResult{}, err
		}
		amount = conv.AmountMinor
		rate = conv.Rate
	}

	metadata := map[string]string{
		domain.IntentMetaCustomerName:    quote.Request.Customer.Name,
		domain.IntentMetaCustomerEmail:   quote.Request.Customer.Email,
		domain.IntentMetaPaymentMethod:   string(method),
		domain.IntentMetaDisplayTotal:    strconv.FormatInt(quote.TotalMinor, 10),
		domain.IntentMetaDisplayCurrency: quote.Currency,
	}
	if rate.Rate.IsPositive() {
		metadata[domain.IntentMetaExchangeRate] = rate.Rate.String()
		metadata[domain.IntentMetaExchangePair] = rate.Pair()
	}

	intent, err := e.gateway.CreateIntent(ctx, domain.IntentRequest{
		AmountMinor: amount,
		Currency:    settlementCurrency,
		Method:      method,
		Metadata:    metadata,
	})
	if err != nil {
		e.logger.WithError(err).Error("create payment intent failed")
		return IntentResult{}, gatewayError("create payment intent", err)
	}

	span.SetAttributes(attribute.String("payment.reference", intent.Reference))
	e.logger.WithFields(log.Fields{
		"payment_reference":   intent.Reference,
		"payment_method":      method,
		"settlement_minor":    amount,
		"settlement_currency": settlementCurrency,
	}).Info("payment intent created")

	return IntentResult{
		Reference:             intent.Reference,
		ClientSecret:          intent.ClientSecret,
		DisplayAmountMinor:    quote.TotalMinor,
		DisplayCurrency:       quote.Currency,
		SettlementAmountMinor: amount,
		SettlementCurrency:    settlementCurrency,
		ExchangeRate:          rate.Rate,
	}, nil
}

// CreateTransferOrder создаёт неоплаченный заказ PayMe и возвращает инструкции перевода.
func (e *Engine) CreateTransferOrder(ctx context.Context, req domain.CheckoutRequest) (result TransferOrder, err error) {
	ctx, span := e.startSpan(ctx, "CreateTransferOrder")
	defer func() { finishSpan(span, err) }()
	defer e.metrics.ObserveDuration(metrics.EntryTransfer, time.Now())

	quote, err := e.quoter.Quote(ctx, req)
	if err != nil {
		return TransferOrder{}, err
	}
	if !quote.Request.PaymentMethod.PeerTransfer() {
		return TransferOrder{}, domain.NewValidationError("payment_method", "transfer orders require %s", domain.PaymentMethodPayMe)
	}

	now := e.now()
	order := domain.NewOrder(quote, now)
	events := []domain.OrderEvent{domain.NewOrderEvent(domain.OrderEventCreated, string(order.PaymentMethod), now)}
	if err := e.createOrder(ctx, &order, events); err != nil {
		e.metrics.RecordSignal(metrics.EntryTransfer, metrics.ResultError)
		e.logger.WithError(err).Error("create transfer order failed")
		return TransferOrder{}, err
	}

	e.metrics.RecordSignal(metrics.EntryTransfer, metrics.ResultApplied)
	e.metrics.RecordOrderCreated(metrics.EntryTransfer)
	span.SetAttributes(attribute.String("order.number", order.Number))
	e.logger.WithFields(log.Fields{
		"order_number": order.Number,
		"total_minor":  order.TotalMinor,
	}).Info("transfer order created")

	return TransferOrder{
		Order:        order,
		Instructions: BuildTransferInstructions(order, e.paymePhone),
	}, nil
}

// BuildTransferInstructions собирает ссылку PayMe, QR-код и текст для поля комментария.
// Без номера получателя ссылка ведёт на общую страницу перевода.
func BuildTransferInstructions(order domain.Order, payeePhone string) TransferInstructions {
	amount := decimal.New(order.TotalMinor, -2).StringFixed(2)

	query := url.Values{}
	if digits := phoneDigits(payeePhone); digits != "" {
		query.Set("username", digits)
	}
	query.Set("amount", amount)
	link := paymeLinkBase + "?" + encodeOrdered(query, "username", "amount")

	qr := url.Values{}
	qr.Set("size", "250x250")
	qr.Set("margin", "10")
	qr.Set("data", link)

	return TransferInstructions{
		Link:        link,
		QRCodeURL:   qrCodeBase + "?" + encodeOrdered(qr, "size", "margin", "data"),
		Memo:        transferMemo + order.Number,
		PayeePhone:  payeePhone,
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
	}
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// encodeOrdered кодирует параметры в заданном порядке; url.Values.Encode сортирует ключи.
func encodeOrdered(values url.Values, keys ...string) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}
