package domain

import "time"

// CartLine — позиция корзины от клиента: только товар и количество, без цены.
type CartLine struct {
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int32 `validate:"gte=1"`
}

// CheckoutRequest — данные оформления заказа от гостя.
type CheckoutRequest struct {
	Customer        Customer      `validate:"required"`
	DeliveryAddress string        `validate:"required,max=500"`
	DeliveryDate    string        `validate:"required"`
	DeliveryNotes   string        `validate:"max=1000"`
	Language        Language      `validate:"omitempty,oneof=en zh-HK"`
	PaymentMethod   PaymentMethod `validate:"required"`
	Items           []CartLine    `validate:"required,min=1,dive"`
}

// Quote — проверенный запрос и сумма, рассчитанная по текущим ценам каталога.
type Quote struct {
	Request          CheckoutRequest
	Delivery         Delivery
	Items            []OrderItem
	Currency         string
	SubtotalMinor    int64
	DeliveryFeeMinor int64
	DiscountMinor    int64
	TotalMinor       int64
	QuotedAt         time.Time
}
