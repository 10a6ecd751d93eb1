package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "karoot.v1.Book"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bookAPI)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddOrder", Handler: addOrderHandler},
		{MethodName: "RemoveOrder", Handler: removeOrderHandler},
		{MethodName: "ClaimExecuted", Handler: claimExecutedHandler},
		{MethodName: "ExecuteRight", Handler: executeRightHandler},
		{MethodName: "PreviewExecuteRight", Handler: previewExecuteRightHandler},
		{MethodName: "GetOrderInfo", Handler: getOrderInfoHandler},
		{MethodName: "AssembleOrderbook", Handler: assembleOrderbookHandler},
		{MethodName: "BestOffer", Handler: bestOfferHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "karoot/v1/book.proto",
}

// bookAPI pins the handler type for the descriptor.
type bookAPI interface {
	AddOrder(context.Context, *AddOrderRequest) (*AddOrderResponse, error)
	RemoveOrder(context.Context, *RemoveOrderRequest) (*RemoveOrderResponse, error)
	ClaimExecuted(context.Context, *ClaimExecutedRequest) (*ClaimExecutedResponse, error)
	ExecuteRight(context.Context, *ExecuteRightRequest) (*ExecuteRightResponse, error)
	PreviewExecuteRight(context.Context, *ExecuteRightRequest) (*PreviewExecuteRightResponse, error)
	GetOrderInfo(context.Context, *GetOrderInfoRequest) (*GetOrderInfoResponse, error)
	AssembleOrderbook(context.Context, *AssembleOrderbookRequest) (*AssembleOrderbookResponse, error)
	BestOffer(context.Context, *BestOfferRequest) (*BestOfferResponse, error)
}

var _ bookAPI = (*Server)(nil)

func addOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AddOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).AddOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AddOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).AddOrder(ctx, req.(*AddOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func removeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RemoveOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).RemoveOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RemoveOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).RemoveOrder(ctx, req.(*RemoveOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func claimExecutedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ClaimExecutedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).ClaimExecuted(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ClaimExecuted"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).ClaimExecuted(ctx, req.(*ClaimExecutedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executeRightHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecuteRightRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).ExecuteRight(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ExecuteRight"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).ExecuteRight(ctx, req.(*ExecuteRightRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func previewExecuteRightHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecuteRightRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).PreviewExecuteRight(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PreviewExecuteRight"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).PreviewExecuteRight(ctx, req.(*ExecuteRightRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).GetOrderInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetOrderInfo"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).GetOrderInfo(ctx, req.(*GetOrderInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func assembleOrderbookHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AssembleOrderbookRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).AssembleOrderbook(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AssembleOrderbook"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).AssembleOrderbook(ctx, req.(*AssembleOrderbookRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func bestOfferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BestOfferRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(bookAPI).BestOffer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/BestOffer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(bookAPI).BestOffer(ctx, req.(*BestOfferRequest))
	}
	return interceptor(ctx, in, info, handler)
}
