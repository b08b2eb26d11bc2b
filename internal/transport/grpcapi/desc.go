package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName — полное имя административного сервиса.
const ServiceName = "florist.admin.v1.AdminService"

const (
	MethodConfirmManual      = "/" + ServiceName + "/ConfirmManual"
	MethodConfirmManualBatch = "/" + ServiceName + "/ConfirmManualBatch"
	MethodCancelOrder        = "/" + ServiceName + "/CancelOrder"
	MethodCompleteOrder      = "/" + ServiceName + "/CompleteOrder"
	MethodGetOrder           = "/" + ServiceName + "/GetOrder"
	MethodPaymentStatus      = "/" + ServiceName + "/PaymentStatus"
	MethodExchangeRate       = "/" + ServiceName + "/ExchangeRate"
)

// AdminServer описывает административные методы. Сообщения построены на
// well-known типах protobuf: номер заказа передаётся в StringValue,
// ответы возвращаются как Struct.
type AdminServer interface {
	ConfirmManual(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ConfirmManualBatch(context.Context, *structpb.ListValue) (*structpb.Struct, error)
	CancelOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	CompleteOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetOrder(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	PaymentStatus(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ExchangeRate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAdminServer регистрирует реализацию на gRPC-сервере.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ConfirmManual", Handler: unaryHandler(MethodConfirmManual, newStringValue, AdminServer.ConfirmManual)},
		{MethodName: "ConfirmManualBatch", Handler: unaryHandler(MethodConfirmManualBatch, newListValue, AdminServer.ConfirmManualBatch)},
		{MethodName: "CancelOrder", Handler: unaryHandler(MethodCancelOrder, newStringValue, AdminServer.CancelOrder)},
		{MethodName: "CompleteOrder", Handler: unaryHandler(MethodCompleteOrder, newStringValue, AdminServer.CompleteOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, newStringValue, AdminServer.GetOrder)},
		{MethodName: "PaymentStatus", Handler: unaryHandler(MethodPaymentStatus, newStringValue, AdminServer.PaymentStatus)},
		{MethodName: "ExchangeRate", Handler: unaryHandler(MethodExchangeRate, newStructResponse, AdminServer.ExchangeRate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "florist/admin/v1/admin.proto",
}

func newStringValue() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newListValue() *structpb.ListValue       { return &structpb.ListValue{} }

// unaryHandler повторяет то, что генерирует protoc-gen-go-grpc для unary-метода.
func unaryHandler[Req, Resp proto.Message](
	fullMethod string,
	newReq func() Req,
	call func(AdminServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AdminClient — клиент административного сервиса.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient создаёт клиента поверх соединения.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) ConfirmManual(ctx context.Context, orderNumber string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeNumber(ctx, MethodConfirmManual, orderNumber, opts...)
}

func (c *AdminClient) ConfirmManualBatch(ctx context.Context, orderNumbers []string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	values := make([]*structpb.Value, 0, len(orderNumbers))
	for _, number := range orderNumbers {
		values = append(values, structpb.NewStringValue(number))
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodConfirmManualBatch, &structpb.ListValue{Values: values}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) CancelOrder(ctx context.Context, orderNumber string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeNumber(ctx, MethodCancelOrder, orderNumber, opts...)
}

func (c *AdminClient) CompleteOrder(ctx context.Context, orderNumber string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeNumber(ctx, MethodCompleteOrder, orderNumber, opts...)
}

func (c *AdminClient) GetOrder(ctx context.Context, orderNumber string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeNumber(ctx, MethodGetOrder, orderNumber, opts...)
}

func (c *AdminClient) PaymentStatus(ctx context.Context, orderNumber string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invokeNumber(ctx, MethodPaymentStatus, orderNumber, opts...)
}

func (c *AdminClient) ExchangeRate(ctx context.Context, base, target string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"base":   structpb.NewStringValue(base),
		"target": structpb.NewStringValue(target),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodExchangeRate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) invokeNumber(ctx context.Context, method, orderNumber string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, wrapperspb.String(orderNumber), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
