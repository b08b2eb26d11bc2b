package domain

import "testing"

func TestOrderStateTransitions(t *testing.T) {
	tests := []struct {
		from OrderState
		to   OrderState
		want bool
	}{
		{OrderStatePending, OrderStatePaid, true},
		{OrderStatePending, OrderStateFailed, true},
		{OrderStatePending, OrderStateCancelled, true},
		{OrderStatePending, OrderStateRefunded, false},
		{OrderStatePaid, OrderStateCompleted, true},
		{OrderStatePaid, OrderStateRefunded, true},
		{OrderStatePaid, OrderStateFailed, false},
		{OrderStatePaid, OrderStatePending, false},
		{OrderStateCompleted, OrderStateRefunded, true},
		{OrderStateFailed, OrderStatePaid, false},
		{OrderStateRefunded, OrderStatePaid, false},
		{OrderStateCancelled, OrderStatePaid, false},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOrderStateDerivedStatuses(t *testing.T) {
	tests := []struct {
		state     OrderState
		payment   PaymentStatus
		lifecycle OrderStatus
	}{
		{OrderStatePending, PaymentStatusPending, OrderStatusPending},
		{OrderStatePaid, PaymentStatusPaid, OrderStatusProcessing},
		{OrderStateCompleted, PaymentStatusPaid, OrderStatusCompleted},
		{OrderStateFailed, PaymentStatusFailed, OrderStatusFailed},
		{OrderStateRefunded, PaymentStatusRefunded, OrderStatusRefunded},
		{OrderStateCancelled, PaymentStatusPending, OrderStatusCancelled},
	}

	for _, tc := range tests {
		if got := tc.state.PaymentStatus(); got != tc.payment {
			t.Errorf("%s payment status = %s, want %s", tc.state, got, tc.payment)
		}
		if got := tc.state.LifecycleStatus(); got != tc.lifecycle {
			t.Errorf("%s lifecycle status = %s, want %s", tc.state, got, tc.lifecycle)
		}
	}
}

func TestOrderStateTerminal(t *testing.T) {
	for _, s := range []OrderState{OrderStateFailed, OrderStateRefunded, OrderStateCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	if OrderStatePaid.Terminal() {
		t.Error("paid must not be terminal")
	}
	if _, ok := ParseOrderState("shipped"); ok {
		t.Error("unknown state must not parse")
	}
}
