package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

var (
	errRouteNotFound = errors.New("route not found")
	errMalformedBody = errors.New("request body is not valid JSON")
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// classify сводит ошибку к HTTP-статусу и коду для клиента.
// Сообщения внутренних ошибок наружу не отдаются.
func classify(err error) (int, errorDetail) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorDetail{Code: "validation_error", Message: validation.Message, Field: validation.Field}
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, errorDetail{Code: "validation_error", Message: err.Error()}
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusBadRequest, errorDetail{Code: "signature_invalid", Message: "webhook signature verification failed"}
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, errorDetail{Code: "order_not_found", Message: domain.ErrOrderNotFound.Error()}
	case errors.Is(err, errRouteNotFound):
		return http.StatusNotFound, errorDetail{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrPaymentNotSucceeded):
		return http.StatusPaymentRequired, errorDetail{Code: "payment_not_succeeded", Message: domain.ErrPaymentNotSucceeded.Error()}
	case errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusConflict, errorDetail{Code: "amount_mismatch", Message: domain.ErrAmountMismatch.Error()}
	case errors.Is(err, domain.ErrManualConfirmNotAllowed):
		return http.StatusConflict, errorDetail{Code: "manual_confirm_not_allowed", Message: domain.ErrManualConfirmNotAllowed.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, errorDetail{Code: "invalid_transition", Message: err.Error()}
	case errors.Is(err, domain.ErrOrderVersionConflict):
		return http.StatusConflict, errorDetail{Code: "version_conflict", Message: domain.ErrOrderVersionConflict.Error()}
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict, errorDetail{Code: "idempotency_conflict", Message: domain.ErrIdempotencyHashMismatch.Error()}
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, errorDetail{Code: "idempotency_conflict", Message: "request with the same idempotency key is still processing"}
	case errors.Is(err, domain.ErrCurrencyUnavailable):
		return http.StatusServiceUnavailable, errorDetail{Code: "currency_unavailable", Message: domain.ErrCurrencyUnavailable.Error()}
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorDetail{Code: "gateway_unavailable", Message: domain.ErrGatewayUnavailable.Error()}
	default:
		return http.StatusInternalServerError, errorDetail{Code: "internal_error", Message: "internal server error"}
	}
}

// writeError отвечает ошибкой и прерывает цепочку обработчиков.
func writeError(c *gin.Context, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: detail})
}
