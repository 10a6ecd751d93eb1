package wal

import (
	"errors"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ruquant/karoot-singapore/domain/book"
)

// RecordType defines WAL intent.
type RecordType uint8

const (
	RecordAdd RecordType = iota + 1
	RecordRemove
	RecordClaim
	RecordExecute
)

var ErrCorruptRecord = errors.New("wal: corrupt record")

// Record is one logged book operation. Amount carries the uint256
// operand big-endian; Price doubles as the execution limit for
// RecordExecute and is unused for RecordRemove and RecordClaim.
type Record struct {
	Seq    uint64
	Time   int64
	Type   RecordType
	Price  uint64
	ID     uint64
	Amount [32]byte
	Owner  book.Address
}

func NewRecord(t RecordType) *Record {
	return &Record{Type: t, Time: time.Now().UnixNano()}
}

const (
	fieldSeq    = 1
	fieldTime   = 2
	fieldType   = 3
	fieldPrice  = 4
	fieldID     = 5
	fieldAmount = 6
	fieldOwner  = 7
)

// Marshal appends the protowire encoding of r to buf.
func (r *Record) Marshal(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fieldSeq, protowire.VarintType)
	buf = protowire.AppendVarint(buf, r.Seq)
	buf = protowire.AppendTag(buf, fieldTime, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Time))
	buf = protowire.AppendTag(buf, fieldType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Type))
	buf = protowire.AppendTag(buf, fieldPrice, protowire.VarintType)
	buf = protowire.AppendVarint(buf, r.Price)
	buf = protowire.AppendTag(buf, fieldID, protowire.VarintType)
	buf = protowire.AppendVarint(buf, r.ID)
	buf = protowire.AppendTag(buf, fieldAmount, protowire.BytesType)
	buf = protowire.AppendBytes(buf, r.Amount[:])
	buf = protowire.AppendTag(buf, fieldOwner, protowire.BytesType)
	buf = protowire.AppendBytes(buf, r.Owner[:])
	return buf
}

// Unmarshal decodes a record from data. Unknown fields are skipped so
// newer writers stay readable.
func (r *Record) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return ErrCorruptRecord
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return ErrCorruptRecord
			}
			data = data[n:]
			switch num {
			case fieldSeq:
				r.Seq = v
			case fieldTime:
				r.Time = int64(v)
			case fieldType:
				r.Type = RecordType(v)
			case fieldPrice:
				r.Price = v
			case fieldID:
				r.ID = v
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return ErrCorruptRecord
			}
			data = data[n:]
			switch num {
			case fieldAmount:
				if len(v) != len(r.Amount) {
					return ErrCorruptRecord
				}
				copy(r.Amount[:], v)
			case fieldOwner:
				if len(v) != len(r.Owner) {
					return ErrCorruptRecord
				}
				copy(r.Owner[:], v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return ErrCorruptRecord
			}
			data = data[n:]
		}
	}
	return nil
}
