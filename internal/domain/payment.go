package domain

// PaymentMethod — закрытый набор способов оплаты.
type PaymentMethod string

const (
	// Карта, введённая вручную.
	PaymentMethodCard PaymentMethod = "card"
	// Карта через кошелёк Apple Pay.
	PaymentMethodApplePay PaymentMethod = "apple_pay"
	// Карта через кошелёк Google Pay.
	PaymentMethodGooglePay PaymentMethod = "google_pay"
	// Перевод PayMe, подтверждается администратором.
	PaymentMethodPayMe PaymentMethod = "payme"
	// Redirect-метод, расчёт в другой валюте.
	PaymentMethodAlipay PaymentMethod = "alipay"
	// Redirect-метод.
	PaymentMethodWeChatPay PaymentMethod = "wechat_pay"
)

// PaymentMethods перечисляет все поддерживаемые способы оплаты.
var PaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodApplePay,
	PaymentMethodGooglePay,
	PaymentMethodPayMe,
	PaymentMethodAlipay,
	PaymentMethodWeChatPay,
}

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

// PeerTransfer сообщает, что оплата идёт вне шлюза и требует ручного подтверждения.
func (m PaymentMethod) PeerTransfer() bool {
	return m == PaymentMethodPayMe
}

// Redirect сообщает, что клиент уходит на страницу платёжного метода и возвращается обратно.
func (m PaymentMethod) Redirect() bool {
	return m == PaymentMethodAlipay || m == PaymentMethodWeChatPay
}

// MethodDetails содержит поля, которыми шлюз описывает фактический способ оплаты.
type MethodDetails struct {
	// RedirectType заполнен для redirect-методов (alipay, wechat_pay).
	RedirectType string
	// WalletType заполнен, если карта пришла из кошелька (apple_pay, google_pay).
	WalletType string
}

// DetectPaymentMethod определяет способ оплаты по данным шлюза.
// Redirect-тип важнее кошелька; без обоих считаем, что это обычная карта.
func DetectPaymentMethod(details MethodDetails) PaymentMethod {
	switch PaymentMethod(details.RedirectType) {
	case PaymentMethodAlipay, PaymentMethodWeChatPay:
		return PaymentMethod(details.RedirectType)
	}
	switch PaymentMethod(details.WalletType) {
	case PaymentMethodApplePay, PaymentMethodGooglePay:
		return PaymentMethod(details.WalletType)
	}
	return PaymentMethodCard
}

// IntentStatus — нормализованный статус платёжного намерения.
type IntentStatus string

const (
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusFailed    IntentStatus = "failed"
)

// Ключи metadata, которые сервис записывает в платёжное намерение.
const (
	IntentMetaCustomerName    = "customer_name"
	IntentMetaCustomerEmail   = "customer_email"
	IntentMetaPaymentMethod   = "payment_method"
	IntentMetaDisplayTotal    = "display_total_minor"
	IntentMetaDisplayCurrency = "display_currency"
	IntentMetaExchangeRate    = "exchange_rate"
	IntentMetaExchangePair    = "exchange_rate_pair"
)

// IntentRequest описывает создаваемое намерение; сумма уже в валюте расчёта.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	Method      PaymentMethod
	Metadata    map[string]string
}

// Intent описывает состояние платёжного намерения на стороне шлюза.
type Intent struct {
	Reference     string
	ClientSecret  string
	Status        IntentStatus
	AmountMinor   int64
	CapturedMinor int64
	Currency      string
	Method        MethodDetails
	Metadata      map[string]string
}

// GatewayEventKind — нормализованный тип webhook-события.
type GatewayEventKind string

const (
	GatewayEventSucceeded GatewayEventKind = "succeeded"
	GatewayEventFailed    GatewayEventKind = "failed"
	GatewayEventRefunded  GatewayEventKind = "refunded"
	GatewayEventOther     GatewayEventKind = "other"
)

// GatewayEvent — проверенное webhook-событие.
type GatewayEvent struct {
	ID               string
	Type             string
	Kind             GatewayEventKind
	PaymentReference string
	Method           MethodDetails
}

// Типы webhook-событий шлюза, которые влияют на состояние заказа.
const (
	GatewayEventTypeIntentSucceeded = "payment_intent.succeeded"
	GatewayEventTypeIntentFailed    = "payment_intent.payment_failed"
	GatewayEventTypeChargeRefunded  = "charge.refunded"
)

// ClassifyGatewayEvent сводит тип события шлюза к GatewayEventKind.
func ClassifyGatewayEvent(eventType string) GatewayEventKind {
	switch eventType {
	case GatewayEventTypeIntentSucceeded:
		return GatewayEventSucceeded
	case GatewayEventTypeIntentFailed:
		return GatewayEventFailed
	case GatewayEventTypeChargeRefunded:
		return GatewayEventRefunded
	default:
		return GatewayEventOther
	}
}
