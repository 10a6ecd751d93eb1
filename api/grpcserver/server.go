// Package grpcserver adapts BookService to gRPC. The service
// descriptor is assembled by hand to match the hand-encoded wire
// messages; no generated code is involved.
package grpcserver

import (
	"context"
	"errors"
	"log"

	"github.com/holiman/uint256"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ruquant/karoot-singapore/domain/book"
	"github.com/ruquant/karoot-singapore/service"
)

// Server adapts BookService to the wire API.
type Server struct {
	svc *service.BookService
}

func NewServer(svc *service.BookService) *Server {
	return &Server{svc: svc}
}

// Register installs the book service on a grpc.Server. The server
// must be constructed with grpc.ForceServerCodec(Codec{}).
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}

// -------------------- Commands --------------------

func (s *Server) AddOrder(ctx context.Context, req *AddOrderRequest) (*AddOrderResponse, error) {
	amount, err := amountArg(req.Amount)
	if err != nil {
		return nil, err
	}
	owner, err := ownerArg(req.Owner)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.AddOrder(req.Price, amount, owner)
	if err != nil {
		return nil, rpcError(err)
	}
	log.Printf("[gRPC] AddOrder price=%d amount=%s id=%d", req.Price, amount.String(), id)
	return &AddOrderResponse{Id: id}, nil
}

func (s *Server) RemoveOrder(ctx context.Context, req *RemoveOrderRequest) (*RemoveOrderResponse, error) {
	original, owner, err := s.svc.RemoveOrder(req.Id)
	if err != nil {
		return nil, rpcError(err)
	}
	log.Printf("[gRPC] RemoveOrder id=%d original=%s", req.Id, original.String())
	return &RemoveOrderResponse{
		Original: wordBytes(&original),
		Owner:    ownerBytes(owner),
	}, nil
}

func (s *Server) ClaimExecuted(ctx context.Context, req *ClaimExecutedRequest) (*ClaimExecutedResponse, error) {
	executed, remaining, err := s.svc.ClaimExecuted(req.Id)
	if err != nil {
		return nil, rpcError(err)
	}
	return &ClaimExecutedResponse{
		Executed:  wordBytes(&executed),
		Remaining: wordBytes(&remaining),
	}, nil
}

func (s *Server) ExecuteRight(ctx context.Context, req *ExecuteRightRequest) (*ExecuteRightResponse, error) {
	amount, err := amountArg(req.Amount)
	if err != nil {
		return nil, err
	}
	executed, value, owner, err := s.svc.ExecuteRight(req.Limit, amount)
	if err != nil {
		return nil, rpcError(err)
	}
	log.Printf("[gRPC] ExecuteRight limit=%d amount=%s executed=%s", req.Limit, amount.String(), executed.String())
	return &ExecuteRightResponse{
		Executed: wordBytes(&executed),
		Value:    wordBytes(&value),
		Owner:    ownerBytes(owner),
	}, nil
}

// -------------------- Queries --------------------

func (s *Server) PreviewExecuteRight(ctx context.Context, req *ExecuteRightRequest) (*PreviewExecuteRightResponse, error) {
	amount, err := amountArg(req.Amount)
	if err != nil {
		return nil, err
	}
	executed, owner, err := s.svc.PreviewExecuteRight(req.Limit, amount)
	if err != nil {
		return nil, rpcError(err)
	}
	return &PreviewExecuteRightResponse{
		Executed: wordBytes(&executed),
		Owner:    ownerBytes(owner),
	}, nil
}

func (s *Server) GetOrderInfo(ctx context.Context, req *GetOrderInfoRequest) (*GetOrderInfoResponse, error) {
	remaining, owner, err := s.svc.GetOrderInfo(req.Id)
	if err != nil {
		return nil, rpcError(err)
	}
	return &GetOrderInfoResponse{
		Remaining: wordBytes(&remaining),
		Owner:     ownerBytes(owner),
	}, nil
}

func (s *Server) AssembleOrderbook(ctx context.Context, req *AssembleOrderbookRequest) (*AssembleOrderbookResponse, error) {
	count := int(req.Count)
	if count <= 0 || count > 4096 {
		count = 4096
	}
	views, err := s.svc.AssembleOrderbook(count)
	if err != nil {
		return nil, rpcError(err)
	}
	resp := &AssembleOrderbookResponse{Entries: make([]*OrderbookEntry, 0, len(views))}
	for i := range views {
		resp.Entries = append(resp.Entries, &OrderbookEntry{
			Remaining: wordBytes(&views[i].Remaining),
			Owner:     ownerBytes(views[i].Owner),
		})
	}
	return resp, nil
}

func (s *Server) BestOffer(ctx context.Context, req *BestOfferRequest) (*BestOfferResponse, error) {
	id, remaining, owner, err := s.svc.BestOffer()
	if err != nil {
		return nil, rpcError(err)
	}
	return &BestOfferResponse{
		Id:        id,
		Remaining: wordBytes(&remaining),
		Owner:     ownerBytes(owner),
	}, nil
}

// -------------------- Converters --------------------

func amountArg(raw []byte) (*uint256.Int, error) {
	if len(raw) == 0 || len(raw) > 32 {
		return nil, status.Error(codes.InvalidArgument, "amount must be 1..32 big-endian bytes")
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func ownerArg(raw []byte) (book.Address, error) {
	var a book.Address
	if len(raw) != len(a) {
		return a, status.Error(codes.InvalidArgument, "owner must be 20 bytes")
	}
	copy(a[:], raw)
	return a, nil
}

func wordBytes(v *uint256.Int) []byte {
	w := v.Bytes32()
	return w[:]
}

func ownerBytes(a book.Address) []byte {
	return append([]byte(nil), a[:]...)
}

func rpcError(err error) error {
	switch {
	case errors.Is(err, book.ErrPriceOverflow),
		errors.Is(err, book.ErrZeroAmount),
		errors.Is(err, book.ErrMalformedID),
		errors.Is(err, book.ErrValueOverflow),
		errors.Is(err, service.ErrAmountRange):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, book.ErrAllocatorExhausted):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
