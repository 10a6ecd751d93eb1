package grpcserver

import (
	"context"
	"path/filepath"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ruquant/karoot-singapore/infra/sequence"
	"github.com/ruquant/karoot-singapore/infra/state"
	"github.com/ruquant/karoot-singapore/infra/wal"
	"github.com/ruquant/karoot-singapore/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	base := t.TempDir()
	db, err := state.Open(filepath.Join(base, "data"))
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	w, err := wal.Open(wal.Config{Dir: filepath.Join(base, "wal")})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return NewServer(service.New(db, w, sequence.New(0), nil, nil))
}

func be32(v byte) []byte {
	b := make([]byte, 32)
	b[31] = v
	return b
}

func owner20(v byte) []byte {
	b := make([]byte, 20)
	b[19] = v
	return b
}

func TestAddExecuteBestOffer(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	add, err := srv.AddOrder(ctx, &AddOrderRequest{Price: 10, Amount: be32(5), Owner: owner20(1)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if add.Id != 21 {
		t.Fatalf("id = %d", add.Id)
	}

	exec, err := srv.ExecuteRight(ctx, &ExecuteRightRequest{Limit: 10, Amount: be32(2)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.Executed[31] != 2 || exec.Value[31] != 20 {
		t.Fatalf("executed=%x value=%x", exec.Executed, exec.Value)
	}

	best, err := srv.BestOffer(ctx, &BestOfferRequest{})
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best.Id != 21 || best.Remaining[31] != 3 || best.Owner[19] != 1 {
		t.Fatalf("best: %+v", best)
	}

	ob, err := srv.AssembleOrderbook(ctx, &AssembleOrderbookRequest{Count: 10})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(ob.Entries) != 1 || ob.Entries[0].Remaining[31] != 3 {
		t.Fatalf("orderbook: %+v", ob.Entries)
	}
}

func TestArgumentValidation(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.AddOrder(ctx, &AddOrderRequest{Price: 10, Amount: be32(5), Owner: []byte{1, 2}})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("short owner: %v", err)
	}
	_, err = srv.AddOrder(ctx, &AddOrderRequest{Price: 10, Owner: owner20(1)})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing amount: %v", err)
	}
	_, err = srv.AddOrder(ctx, &AddOrderRequest{Price: 10, Amount: be32(0), Owner: owner20(1)})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("zero amount: %v", err)
	}
	_, err = srv.RemoveOrder(ctx, &RemoveOrderRequest{Id: 20})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("even id: %v", err)
	}
}

func TestHandlerDecodesWireForm(t *testing.T) {
	srv := newTestServer(t)

	req := &AddOrderRequest{Price: 10, Amount: be32(5), Owner: owner20(1)}
	raw, err := Codec{}.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out, err := addOrderHandler(srv, context.Background(), func(v any) error {
		return Codec{}.Unmarshal(raw, v)
	}, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	resp, ok := out.(*AddOrderResponse)
	if !ok || resp.Id != 21 {
		t.Fatalf("handler response: %#v", out)
	}
}

func TestRequestPriceIsCarriedButNotConsulted(t *testing.T) {
	in := &RemoveOrderRequest{Id: 21, Price: 10}
	raw, err := Codec{}.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out RemoveOrderRequest
	if err := (Codec{}).Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Id != 21 || out.Price != 10 {
		t.Fatalf("round trip: %+v", out)
	}

	// The identifier alone locates the order; a mismatched price
	// does not change the result.
	srv := newTestServer(t)
	ctx := context.Background()
	if _, err := srv.AddOrder(ctx, &AddOrderRequest{Price: 10, Amount: be32(5), Owner: owner20(1)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	resp, err := srv.RemoveOrder(ctx, &RemoveOrderRequest{Id: 21, Price: 999})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if resp.Original[31] != 5 {
		t.Fatalf("original: %x", resp.Original)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	in := &ExecuteRightResponse{Executed: be32(9), Value: be32(90), Owner: owner20(3)}
	raw, err := Codec{}.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out ExecuteRightResponse
	if err := (Codec{}).Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Executed[31] != 9 || out.Value[31] != 90 || out.Owner[19] != 3 {
		t.Fatalf("round trip: %+v", out)
	}

	book := &AssembleOrderbookResponse{Entries: []*OrderbookEntry{
		{Remaining: be32(1), Owner: owner20(1)},
		{Remaining: be32(2), Owner: owner20(2)},
	}}
	raw, err = Codec{}.Marshal(book)
	if err != nil {
		t.Fatal(err)
	}
	var got AssembleOrderbookResponse
	if err := (Codec{}).Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Entries) != 2 || got.Entries[1].Remaining[31] != 2 {
		t.Fatalf("entries: %+v", got.Entries)
	}
}
