// Package grpcapi реализует административный gRPC API: ручное подтверждение
// переводов, переходы заказа и справку по курсу валют.
package grpcapi

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
	"github.com/vladislavdragonenkov/florist/internal/service/reconcile"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Engine — операции движка сверки, доступные администратору.
type Engine interface {
	ConfirmManual(ctx context.Context, orderNumber string) (reconcile.ManualResult, error)
	ConfirmManualBatch(ctx context.Context, orderNumbers []string) (reconcile.BatchResult, error)
	CancelOrder(ctx context.Context, orderNumber string) (domain.Order, error)
	CompleteOrder(ctx context.Context, orderNumber string) (domain.Order, error)
	GetOrder(ctx context.Context, orderNumber string) (domain.Order, error)
	PaymentStatus(ctx context.Context, orderNumber string) (reconcile.PaymentStatusView, error)
}

// RateLookup отдаёт актуальность курса валютной пары.
type RateLookup interface {
	Info(ctx context.Context, base, target string) (currency.Info, error)
}

// Option настраивает AdminService.
type Option func(*AdminService)

// WithIdempotencyTTL задаёт срок хранения ответов по idempotency-key.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *AdminService) {
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// AdminService реализует AdminServer поверх движка сверки.
type AdminService struct {
	engine         Engine
	rates          RateLookup
	idemRepo       domain.IdempotencyRepository
	idempotencyTTL time.Duration
	logger         *log.Entry
	now            func() time.Time
}

var _ AdminServer = (*AdminService)(nil)

// NewAdminService конструирует сервис с зависимостями.
func NewAdminService(
	engine Engine,
	rates RateLookup,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
	opts ...Option,
) *AdminService {
	if logger == nil {
		logger = log.New().WithField("component", "admin-grpc")
	}
	s := &AdminService{
		engine:         engine,
		rates:          rates,
		idemRepo:       idemRepo,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmManual подтверждает оплату перевода PayMe.
func (s *AdminService) ConfirmManual(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	number, err := requireOrderNumber(req)
	if err != nil {
		return nil, err
	}
	return withIdempotency(s, ctx, MethodConfirmManual, req, newStructResponse,
		func(ctx context.Context) (*structpb.Struct, error) {
			res, err := s.engine.ConfirmManual(ctx, number)
			if err != nil {
				return nil, s.statusError(MethodConfirmManual, err)
			}
			return toStruct(manualFields(res))
		},
	)
}

// ConfirmManualBatch подтверждает список переводов; ошибки отдельных заказов
// возвращаются в элементах ответа.
func (s *AdminService) ConfirmManualBatch(ctx context.Context, req *structpb.ListValue) (*structpb.Struct, error) {
	if req == nil || len(req.GetValues()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "order_numbers: at least one order number is required")
	}
	numbers := make([]string, 0, len(req.GetValues()))
	for idx, value := range req.GetValues() {
		str, ok := value.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "order_numbers[%d] must be a string", idx)
		}
		numbers = append(numbers, str.StringValue)
	}
	return withIdempotency(s, ctx, MethodConfirmManualBatch, req, newStructResponse,
		func(ctx context.Context) (*structpb.Struct, error) {
			res, err := s.engine.ConfirmManualBatch(ctx, numbers)
			if err != nil {
				return nil, s.statusError(MethodConfirmManualBatch, err)
			}
			return toStruct(batchFields(res))
		},
	)
}

// CancelOrder отменяет неоплаченный заказ.
func (s *AdminService) CancelOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.transition(ctx, MethodCancelOrder, req, s.engine.CancelOrder)
}

// CompleteOrder отмечает оплаченный заказ исполненным.
func (s *AdminService) CompleteOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.transition(ctx, MethodCompleteOrder, req, s.engine.CompleteOrder)
}

func (s *AdminService) transition(
	ctx context.Context,
	method string,
	req *wrapperspb.StringValue,
	apply func(context.Context, string) (domain.Order, error),
) (*structpb.Struct, error) {
	number, err := requireOrderNumber(req)
	if err != nil {
		return nil, err
	}
	return withIdempotency(s, ctx, method, req, newStructResponse,
		func(ctx context.Context) (*structpb.Struct, error) {
			order, err := apply(ctx, number)
			if err != nil {
				return nil, s.statusError(method, err)
			}
			return toStruct(orderFields(order))
		},
	)
}

// GetOrder возвращает заказ по номеру.
func (s *AdminService) GetOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	number, err := requireOrderNumber(req)
	if err != nil {
		return nil, err
	}
	order, err := s.engine.GetOrder(ctx, number)
	if err != nil {
		return nil, s.statusError(MethodGetOrder, err)
	}
	return toStruct(orderFields(order))
}

// PaymentStatus возвращает статус оплаты заказа.
func (s *AdminService) PaymentStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	number, err := requireOrderNumber(req)
	if err != nil {
		return nil, err
	}
	view, err := s.engine.PaymentStatus(ctx, number)
	if err != nil {
		return nil, s.statusError(MethodPaymentStatus, err)
	}
	return toStruct(paymentStatusFields(view))
}

// ExchangeRate возвращает последний курс пары и его возраст.
// Запрос: {"base": "USD", "target": "HKD"}.
func (s *AdminService) ExchangeRate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.rates == nil {
		return nil, status.Error(codes.Unavailable, domain.ErrCurrencyUnavailable.Error())
	}
	base := strings.TrimSpace(req.GetFields()["base"].GetStringValue())
	target := strings.TrimSpace(req.GetFields()["target"].GetStringValue())
	if base == "" || target == "" {
		return nil, status.Error(codes.InvalidArgument, "base and target are required")
	}
	info, err := s.rates.Info(ctx, base, target)
	if err != nil {
		if errors.Is(err, domain.ErrCurrencyUnavailable) {
			return nil, status.Error(codes.NotFound, "no exchange rate recorded for this pair")
		}
		return nil, s.statusError(MethodExchangeRate, err)
	}
	return toStruct(rateFields(info))
}

func requireOrderNumber(req *wrapperspb.StringValue) (string, error) {
	number := strings.TrimSpace(req.GetValue())
	if number == "" {
		return "", status.Error(codes.InvalidArgument, "order_number is required")
	}
	return number, nil
}

func newStructResponse() *structpb.Struct {
	return &structpb.Struct{}
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
