package domain

// OrderState — единое состояние заказа. Статус оплаты и статус жизненного цикла
// выводятся из него и не меняются по отдельности.
type OrderState string

const (
	// Заказ создан, оплата ещё не подтверждена.
	OrderStatePending OrderState = "pending"
	// Оплата подтверждена, заказ передан в работу.
	OrderStatePaid OrderState = "paid"
	// Заказ исполнен.
	OrderStateCompleted OrderState = "completed"
	// Платёж не прошёл.
	OrderStateFailed OrderState = "failed"
	// Средства возвращены клиенту.
	OrderStateRefunded OrderState = "refunded"
	// Неоплаченный заказ отменён администратором.
	OrderStateCancelled OrderState = "cancelled"
)

// PaymentStatus — статус оплаты, как его видит клиент и админка.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderStatus — статус жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var allowedTransitions = map[OrderState][]OrderState{
	OrderStatePending:   {OrderStatePaid, OrderStateFailed, OrderStateCancelled},
	OrderStatePaid:      {OrderStateCompleted, OrderStateRefunded},
	OrderStateCompleted: {OrderStateRefunded},
}

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s OrderState) Valid() bool {
	switch s {
	case OrderStatePending, OrderStatePaid, OrderStateCompleted,
		OrderStateFailed, OrderStateRefunded, OrderStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo сообщает, разрешён ли переход в next.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsPaid возвращает true, если оплата уже была подтверждена (в том числе для возвращённых заказов).
func (s OrderState) IsPaid() bool {
	return s == OrderStatePaid || s == OrderStateCompleted || s == OrderStateRefunded
}

// Terminal возвращает true для состояний без исходящих переходов.
func (s OrderState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// PaymentStatus выводит статус оплаты.
func (s OrderState) PaymentStatus() PaymentStatus {
	switch s {
	case OrderStatePaid, OrderStateCompleted:
		return PaymentStatusPaid
	case OrderStateFailed:
		return PaymentStatusFailed
	case OrderStateRefunded:
		return PaymentStatusRefunded
	default:
		return PaymentStatusPending
	}
}

// LifecycleStatus выводит статус жизненного цикла.
func (s OrderState) LifecycleStatus() OrderStatus {
	switch s {
	case OrderStatePaid:
		return OrderStatusProcessing
	case OrderStateCompleted:
		return OrderStatusCompleted
	case OrderStateFailed:
		return OrderStatusFailed
	case OrderStateRefunded:
		return OrderStatusRefunded
	case OrderStateCancelled:
		return OrderStatusCancelled
	default:
		return OrderStatusPending
	}
}

// ParseOrderState восстанавливает состояние из хранилища.
func ParseOrderState(raw string) (OrderState, bool) {
	s := OrderState(raw)
	return s, s.Valid()
}
