package grpcserver

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The wire messages are hand-encoded: the schema is small and stable,
// and writing the protowire forms directly keeps the build free of a
// codegen step. Field numbers are part of the public API; never reuse
// one.

type wireMessage interface {
	marshal(buf []byte) []byte
	unmarshal(data []byte) error
}

type AddOrderRequest struct {
	Price  uint64 // 1
	Amount []byte // 2, big-endian uint256
	Owner  []byte // 3, 20 bytes
}

type AddOrderResponse struct {
	Id uint64 // 1
}

type RemoveOrderRequest struct {
	Id    uint64 // 1
	Price uint64 // 2, informational; the identifier alone locates the order
}

type RemoveOrderResponse struct {
	Original []byte // 1
	Owner    []byte // 2
}

type ClaimExecutedRequest struct {
	Id    uint64 // 1
	Price uint64 // 2, informational
}

type ClaimExecutedResponse struct {
	Executed  []byte // 1
	Remaining []byte // 2
}

type ExecuteRightRequest struct {
	Limit  uint64 // 1
	Amount []byte // 2
}

type ExecuteRightResponse struct {
	Executed []byte // 1
	Value    []byte // 2
	Owner    []byte // 3
}

type PreviewExecuteRightResponse struct {
	Executed []byte // 1
	Owner    []byte // 2
}

type GetOrderInfoRequest struct {
	Id    uint64 // 1
	Price uint64 // 2, informational
}

type GetOrderInfoResponse struct {
	Remaining []byte // 1
	Owner     []byte // 2
}

type AssembleOrderbookRequest struct {
	Count uint64 // 1
}

type OrderbookEntry struct {
	Remaining []byte // 1
	Owner     []byte // 2
}

type AssembleOrderbookResponse struct {
	Entries []*OrderbookEntry // 1, repeated
}

type BestOfferRequest struct{}

type BestOfferResponse struct {
	Id        uint64 // 1
	Remaining []byte // 2
	Owner     []byte // 3
}

// ---- encoding helpers ----

func appendVarintField(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBytesField(buf []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

// walkFields drives a decode loop: fn receives each recognized field;
// unknown fields are skipped.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			u, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if err := fn(num, typ, nil, u); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func cloneBytes(v []byte) []byte {
	return append([]byte(nil), v...)
}

// ---- per-message codecs ----

func (m *AddOrderRequest) marshal(buf []byte) []byte {
	buf = appendVarintField(buf, 1, m.Price)
	buf = appendBytesField(buf, 2, m.Amount)
	return appendBytesField(buf, 3, m.Owner)
}

func (m *AddOrderRequest) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			m.Price = u
		case 2:
			m.Amount = cloneBytes(v)
		case 3:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

func (m *AddOrderResponse) marshal(buf []byte) []byte {
	return appendVarintField(buf, 1, m.Id)
}

func (m *AddOrderResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, _ []byte, u uint64) error {
		if num == 1 {
			m.Id = u
		}
		return nil
	})
}

func (m *RemoveOrderRequest) marshal(buf []byte) []byte {
	buf = appendVarintField(buf, 1, m.Id)
	return appendVarintField(buf, 2, m.Price)
}

func (m *RemoveOrderRequest) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, _ []byte, u uint64) error {
		switch num {
		case 1:
			m.Id = u
		case 2:
			m.Price = u
		}
		return nil
	})
}

func (m *RemoveOrderResponse) marshal(buf []byte) []byte {
	buf = appendBytesField(buf, 1, m.Original)
	return appendBytesField(buf, 2, m.Owner)
}

func (m *RemoveOrderResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			m.Original = cloneBytes(v)
		case 2:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

func (m *ClaimExecutedRequest) marshal(buf []byte) []byte {
	buf = appendVarintField(buf, 1, m.Id)
	return appendVarintField(buf, 2, m.Price)
}

func (m *ClaimExecutedRequest) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, _ []byte, u uint64) error {
		switch num {
		case 1:
			m.Id = u
		case 2:
			m.Price = u
		}
		return nil
	})
}

func (m *ClaimExecutedResponse) marshal(buf []byte) []byte {
	buf = appendBytesField(buf, 1, m.Executed)
	return appendBytesField(buf, 2, m.Remaining)
}

func (m *ClaimExecutedResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			m.Executed = cloneBytes(v)
		case 2:
			m.Remaining = cloneBytes(v)
		}
		return nil
	})
}

func (m *ExecuteRightRequest) marshal(buf []byte) []byte {
	buf = appendVarintField(buf, 1, m.Limit)
	return appendBytesField(buf, 2, m.Amount)
}

func (m *ExecuteRightRequest) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			m.Limit = u
		case 2:
			m.Amount = cloneBytes(v)
		}
		return nil
	})
}

func (m *ExecuteRightResponse) marshal(buf []byte) []byte {
	buf = appendBytesField(buf, 1, m.Executed)
	buf = appendBytesField(buf, 2, m.Value)
	return appendBytesField(buf, 3, m.Owner)
}

func (m *ExecuteRightResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			m.Executed = cloneBytes(v)
		case 2:
			m.Value = cloneBytes(v)
		case 3:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

func (m *PreviewExecuteRightResponse) marshal(buf []byte) []byte {
	buf = appendBytesField(buf, 1, m.Executed)
	return appendBytesField(buf, 2, m.Owner)
}

func (m *PreviewExecuteRightResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			m.Executed = cloneBytes(v)
		case 2:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

func (m *GetOrderInfoRequest) marshal(buf []byte) []byte {
	buf = appendVarintField(buf, 1, m.Id)
	return appendVarintField(buf, 2, m.Price)
}

func (m *GetOrderInfoRequest) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, _ []byte, u uint64) error {
		switch num {
		case 1:
			m.Id = u
		case 2:
			m.Price = u
		}
		return nil
	})
}

func (m *GetOrderInfoResponse) marshal(buf []byte) []byte {
	buf = appendBytesField(buf, 1, m.Remaining)
	return appendBytesField(buf, 2, m.Owner)
}

func (m *GetOrderInfoResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			m.Remaining = cloneBytes(v)
		case 2:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

func (m *AssembleOrderbookRequest) marshal(buf []byte) []byte {
	return appendVarintField(buf, 1, m.Count)
}

func (m *AssembleOrderbookRequest) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, _ []byte, u uint64) error {
		if num == 1 {
			m.Count = u
		}
		return nil
	})
}

func (m *OrderbookEntry) marshal(buf []byte) []byte {
	buf = appendBytesField(buf, 1, m.Remaining)
	return appendBytesField(buf, 2, m.Owner)
}

func (m *OrderbookEntry) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case 1:
			m.Remaining = cloneBytes(v)
		case 2:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

func (m *AssembleOrderbookResponse) marshal(buf []byte) []byte {
	for _, e := range m.Entries {
		buf = appendBytesField(buf, 1, e.marshal(nil))
	}
	return buf
}

func (m *AssembleOrderbookResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
		if num == 1 {
			var e OrderbookEntry
			if err := e.unmarshal(v); err != nil {
				return err
			}
			m.Entries = append(m.Entries, &e)
		}
		return nil
	})
}

func (m *BestOfferRequest) marshal(buf []byte) []byte { return buf }

func (m *BestOfferRequest) unmarshal(data []byte) error {
	return walkFields(data, func(protowire.Number, protowire.Type, []byte, uint64) error {
		return nil
	})
}

func (m *BestOfferResponse) marshal(buf []byte) []byte {
	buf = appendVarintField(buf, 1, m.Id)
	buf = appendBytesField(buf, 2, m.Remaining)
	return appendBytesField(buf, 3, m.Owner)
}

func (m *BestOfferResponse) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, _ protowire.Type, v []byte, u uint64) error {
		switch num {
		case 1:
			m.Id = u
		case 2:
			m.Remaining = cloneBytes(v)
		case 3:
			m.Owner = cloneBytes(v)
		}
		return nil
	})
}

// Codec is the grpc codec for the hand-encoded messages. Install it
// server-side with grpc.ForceServerCodec(Codec{}).
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("grpcserver: cannot marshal %T", v)
	}
	return m.marshal(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("grpcserver: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

func (Codec) Name() string { return "karoot-raw" }
