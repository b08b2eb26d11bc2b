package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderNumber string
	Type        string
	State       OrderState
	Reason      string
	Occurred    time.Time
}
