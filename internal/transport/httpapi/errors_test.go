package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.NewValidationError("items", "is required"), http.StatusBadRequest, "validation_error"},
		{"product not found", fmt.Errorf("%w: %w", domain.ErrProductNotFound, domain.NewValidationError("items", "product 9 is unavailable")), http.StatusBadRequest, "validation_error"},
		{"signature", domain.ErrSignatureInvalid, http.StatusBadRequest, "signature_invalid"},
		{"not found", fmt.Errorf("load: %w", domain.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
		{"amount", &domain.AmountMismatchError{ExpectedMinor: 100, CapturedMinor: 99, Currency: "HKD"}, http.StatusConflict, "amount_mismatch"},
		{"manual", domain.ErrManualConfirmNotAllowed, http.StatusConflict, "manual_confirm_not_allowed"},
		{"transition", domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"idempotency", domain.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
		{"not succeeded", domain.ErrPaymentNotSucceeded, http.StatusPaymentRequired, "payment_not_succeeded"},
		{"currency", domain.ErrCurrencyUnavailable, http.StatusServiceUnavailable, "currency_unavailable"},
		{"gateway", fmt.Errorf("%w: timeout", domain.ErrGatewayUnavailable), http.StatusServiceUnavailable, "gateway_unavailable"},
		{"other", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := classify(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, detail.Code)
		})
	}
}

func TestClassifyHidesInternalMessages(t *testing.T) {
	_, detail := classify(errors.New("pq: password authentication failed"))
	require.Equal(t, "internal server error", detail.Message)
}
