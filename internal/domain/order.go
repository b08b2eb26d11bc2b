package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const orderNumberPrefix = "HYF"

var (
	// Ошибки инвариантов заказа; возвращаются списком из Order.Validate.
	ErrOrderNumberRequired = errors.New("order number is required")
	ErrCustomerRequired    = errors.New("customer name and email are required")
	ErrCurrencyRequired    = errors.New("currency is required")
	ErrItemsRequired       = errors.New("order must contain at least one item")
	ErrItemQtyInvalid      = errors.New("item quantity must be greater than zero")
	ErrItemPriceInvalid    = errors.New("item price must be non-negative")
	ErrLineTotalMismatch   = errors.New("line total does not match price times quantity")
	ErrSubtotalMismatch    = errors.New("subtotal does not match items sum")
	ErrTotalMismatch       = errors.New("total does not match subtotal + delivery fee - discount")
	ErrStateInvalid        = errors.New("order state is invalid")
	ErrPaymentMethodBad    = errors.New("payment method is invalid")

	// ErrOrderInvalid возвращается репозиторием, если заказ нарушает инварианты.
	ErrOrderInvalid = errors.New("order violates invariants")
)

// Language определяет язык уведомлений для клиента.
type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageCantonese Language = "zh-HK"
)

// Customer — контактные данные гостя.
type Customer struct {
	Name  string `validate:"required,max=255"`
	Email string `validate:"required,email,max=254"`
	Phone string `validate:"required,max=20,phone"`
}

// Delivery — адрес и дата доставки.
type Delivery struct {
	Address string
	// Date хранит только календарную дату (полночь UTC).
	Date  time.Time
	Notes string
}

// OrderItem — снимок позиции на момент оформления; не пересчитывается при смене цены в каталоге.
type OrderItem struct {
	ProductID      int64
	ProductName    string
	UnitPriceMinor int64
	Quantity       int32
	LineTotalMinor int64
}

// NewOrderItem рассчитывает итог строки один раз.
func NewOrderItem(product Product, qty int32) OrderItem {
	return OrderItem{
		ProductID:      product.ID,
		ProductName:    product.Name,
		UnitPriceMinor: product.PriceMinor,
		Quantity:       qty,
		LineTotalMinor: product.PriceMinor * int64(qty),
	}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID       string
	Number   string
	Customer Customer
	Delivery Delivery
	Language Language

	PaymentMethod    PaymentMethod
	State            OrderState
	PaymentReference string

	Currency         string
	SubtotalMinor    int64
	DeliveryFeeMinor int64
	DiscountMinor    int64
	TotalMinor       int64

	// Валюта расчёта со шлюзом и курс, применённый при создании платежа.
	SettlementCurrency   string
	SettlementTotalMinor int64
	ExchangeRate         decimal.Decimal

	Items []OrderItem

	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            time.Time
	PaymentVerifiedAt time.Time
	ConfirmedAt       time.Time
}

// NewOrder собирает заказ из проверенной котировки в состоянии pending.
func NewOrder(quote Quote, now time.Time) Order {
	now = now.UTC()
	items := make([]OrderItem, len(quote.Items))
	copy(items, quote.Items)
	return Order{
		ID:                   uuid.NewString(),
		Number:               NewOrderNumber(now),
		Customer:             quote.Request.Customer,
		Delivery:             quote.Delivery,
		Language:             quote.Request.Language,
		PaymentMethod:        quote.Request.PaymentMethod,
		State:                OrderStatePending,
		Currency:             quote.Currency,
		SubtotalMinor:        quote.SubtotalMinor,
		DeliveryFeeMinor:     quote.DeliveryFeeMinor,
		DiscountMinor:        quote.DiscountMinor,
		TotalMinor:           quote.TotalMinor,
		SettlementCurrency:   quote.Currency,
		SettlementTotalMinor: quote.TotalMinor,
		Items:                items,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// NewOrderNumber генерирует номер вида HYF-20260412-9F3A1C7B.
// Суффикс берётся из случайного UUID, поэтому номера за один день не идут подряд.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.UTC().Format("20060102"), suffix)
}

// PaymentStatus выводит статус оплаты из состояния.
func (o *Order) PaymentStatus() PaymentStatus {
	return o.State.PaymentStatus()
}

// LifecycleStatus выводит статус жизненного цикла из состояния.
func (o *Order) LifecycleStatus() OrderStatus {
	return o.State.LifecycleStatus()
}

// Confirmed сообщает, что заказ уже подтверждён.
func (o *Order) Confirmed() bool {
	return !o.ConfirmedAt.IsZero()
}

// MarkPaid переводит заказ в paid. Повторный вызов для оплаченного заказа ничего не меняет.
func (o *Order) MarkPaid(reference string, now time.Time) (bool, error) {
	if o.State.IsPaid() {
		return false, nil
	}
	if err := o.transition(OrderStatePaid); err != nil {
		return false, err
	}
	now = now.UTC()
	o.PaidAt = now
	o.PaymentVerifiedAt = now
	if o.PaymentReference == "" && reference != "" {
		o.PaymentReference = reference
	}
	o.UpdatedAt = now
	return true, nil
}

// MarkConfirmed проставляет confirmed_at один раз.
func (o *Order) MarkConfirmed(now time.Time) bool {
	if o.Confirmed() {
		return false
	}
	now = now.UTC()
	o.ConfirmedAt = now
	o.UpdatedAt = now
	return true
}

// MarkFailed фиксирует неуспешный платёж. Оплаченный заказ не понижается.
func (o *Order) MarkFailed(now time.Time) (bool, error) {
	if o.State == OrderStateFailed || o.State.IsPaid() {
		return false, nil
	}
	if err := o.transition(OrderStateFailed); err != nil {
		return false, err
	}
	o.UpdatedAt = now.UTC()
	return true, nil
}

// MarkRefunded фиксирует возврат средств.
func (o *Order) MarkRefunded(now time.Time) (bool, error) {
	if o.State == OrderStateRefunded {
		return false, nil
	}
	if err := o.transition(OrderStateRefunded); err != nil {
		return false, err
	}
	o.UpdatedAt = now.UTC()
	return true, nil
}

// Cancel отменяет неоплаченный заказ.
func (o *Order) Cancel(now time.Time) (bool, error) {
	if o.State == OrderStateCancelled {
		return false, nil
	}
	if err := o.transition(OrderStateCancelled); err != nil {
		return false, err
	}
	o.UpdatedAt = now.UTC()
	return true, nil
}

// Complete отмечает заказ исполненным.
func (o *Order) Complete(now time.Time) (bool, error) {
	if o.State == OrderStateCompleted {
		return false, nil
	}
	if err := o.transition(OrderStateCompleted); err != nil {
		return false, err
	}
	o.UpdatedAt = now.UTC()
	return true, nil
}

func (o *Order) transition(next OrderState) error {
	if !o.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, next)
	}
	o.State = next
	return nil
}

// CheckInvariants объединяет замечания Validate в ошибку ErrOrderInvalid.
func (o *Order) CheckInvariants() error {
	errs := o.Validate()
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrOrderInvalid, errors.Join(errs...))
}

// Validate проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) Validate() []error {
	var errs []error

	if o.Number == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if o.Customer.Name == "" || o.Customer.Email == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if !o.State.Valid() {
		errs = append(errs, ErrStateInvalid)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodBad)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	var subtotal int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.UnitPriceMinor*int64(item.Quantity) != item.LineTotalMinor {
			errs = append(errs, ErrLineTotalMismatch)
		}
		subtotal += item.LineTotalMinor
	}
	if subtotal != o.SubtotalMinor {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if o.SubtotalMinor+o.DeliveryFeeMinor-o.DiscountMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
