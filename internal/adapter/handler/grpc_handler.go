package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
)

// CodecName is the content subtype clients select with grpc.CallContentSubtype.
const CodecName = "json"

// jsonCodec lets the order service speak gRPC without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const orderServiceName = "recordstore.OrderService"

type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error)
	UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unary("CreateOrder", OrderServiceServer.CreateOrder)},
		{MethodName: "UpdateOrderStatus", Handler: unary("UpdateOrderStatus", OrderServiceServer.UpdateOrderStatus)},
		{MethodName: "GetOrder", Handler: unary("GetOrder", OrderServiceServer.GetOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recordstore/order_service",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

// unary builds the method handler that protoc would otherwise generate.
func unary[Req any](method string, call func(OrderServiceServer, context.Context, *Req) (*OrderResponse, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + orderServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	orderService *service.OrderService
}

var _ OrderServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orderService *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	order, err := h.orderService.Create(ctx, req.lines())
	if err != nil {
		return nil, grpcError(err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error) {
	order, err := h.orderService.UpdateStatus(ctx, req.ID, domain.OrderStatus(req.Status))
	if err != nil {
		return nil, grpcError(err)
	}
	return newOrderResponse(order), nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	order, err := h.orderService.Get(ctx, req.ID)
	if err != nil {
		return nil, grpcError(err)
	}
	return newOrderResponse(order), nil
}
