package grpcapi

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// statusError сводит доменную ошибку к gRPC-статусу. Тексты внутренних ошибок наружу не уходят.
func (s *AdminService) statusError(method string, err error) error {
	code, msg := classify(err)
	if code == codes.Internal || code == codes.Unavailable {
		s.logger.WithError(err).WithFields(log.Fields{"method": method, "code": code.String()}).Error("admin call failed")
	}
	return status.Error(code, msg)
}

func classify(err error) (codes.Code, string) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return codes.InvalidArgument, validation.Error()
	case errors.Is(err, domain.ErrOrderNotFound):
		return codes.NotFound, domain.ErrOrderNotFound.Error()
	case errors.Is(err, domain.ErrManualConfirmNotAllowed):
		return codes.FailedPrecondition, domain.ErrManualConfirmNotAllowed.Error()
	case errors.Is(err, domain.ErrInvalidTransition):
		return codes.FailedPrecondition, err.Error()
	case errors.Is(err, domain.ErrOrderVersionConflict):
		return codes.Aborted, domain.ErrOrderVersionConflict.Error()
	case errors.Is(err, domain.ErrCurrencyUnavailable):
		return codes.Unavailable, domain.ErrCurrencyUnavailable.Error()
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return codes.Unavailable, domain.ErrGatewayUnavailable.Error()
	default:
		return codes.Internal, "internal error"
	}
}
