// Package outbox is the durable fill outbox. Every execution writes
// its fills here in the same breath as the state commit; the
// broadcaster drains NEW entries to kafka and acknowledges them, so a
// crash on either side of the publish never loses or duplicates a
// fill downstream.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/ruquant/karoot-singapore/domain/book"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Fill is one executed trade awaiting publication, keyed by the WAL
// sequence of the execution that produced it plus its position within
// that execution.
type Fill struct {
	Seq         uint64
	Sub         uint32
	OrderID     uint64
	Owner       book.Address
	Shares      [32]byte
	Value       [32]byte
	State       State
	Retries     uint32
	LastAttempt int64
}

const recordLen = 8 + 4 + 8 + 20 + 32 + 32 + 1 + 4 + 8

func encodeFill(f Fill) []byte {
	buf := make([]byte, recordLen)
	binary.BigEndian.PutUint64(buf[0:8], f.Seq)
	binary.BigEndian.PutUint32(buf[8:12], f.Sub)
	binary.BigEndian.PutUint64(buf[12:20], f.OrderID)
	copy(buf[20:40], f.Owner[:])
	copy(buf[40:72], f.Shares[:])
	copy(buf[72:104], f.Value[:])
	buf[104] = byte(f.State)
	binary.BigEndian.PutUint32(buf[105:109], f.Retries)
	binary.BigEndian.PutUint64(buf[109:117], uint64(f.LastAttempt))
	return buf
}

func decodeFill(b []byte) (Fill, error) {
	if len(b) != recordLen {
		return Fill{}, errors.New("outbox: invalid fill record length")
	}
	var f Fill
	f.Seq = binary.BigEndian.Uint64(b[0:8])
	f.Sub = binary.BigEndian.Uint32(b[8:12])
	f.OrderID = binary.BigEndian.Uint64(b[12:20])
	copy(f.Owner[:], b[20:40])
	copy(f.Shares[:], b[40:72])
	copy(f.Value[:], b[72:104])
	f.State = State(b[104])
	f.Retries = binary.BigEndian.Uint32(b[105:109])
	f.LastAttempt = int64(binary.BigEndian.Uint64(b[109:117]))
	return f, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew inserts a fill in the NEW state.
func (o *Outbox) PutNew(f Fill) error {
	f.State = StateNew
	f.Retries = 0
	f.LastAttempt = 0
	return o.db.Set(keyFor(f.Seq, f.Sub), encodeFill(f), pebble.Sync)
}

// MarkSent records a publish attempt.
func (o *Outbox) MarkSent(seq uint64, sub uint32) error {
	return o.transition(seq, sub, StateSent)
}

// MarkAcked records broker acknowledgement.
func (o *Outbox) MarkAcked(seq uint64, sub uint32) error {
	return o.transition(seq, sub, StateAcked)
}

// MarkFailed parks a fill after a failed publish, bumping its retry
// count.
func (o *Outbox) MarkFailed(seq uint64, sub uint32) error {
	f, err := o.Get(seq, sub)
	if err != nil {
		return err
	}
	f.State = StateFailed
	f.Retries++
	f.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq, sub), encodeFill(f), pebble.Sync)
}

func (o *Outbox) transition(seq uint64, sub uint32, state State) error {
	f, err := o.Get(seq, sub)
	if err != nil {
		return err
	}
	f.State = state
	f.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq, sub), encodeFill(f), pebble.Sync)
}

// Get returns the stored fill.
func (o *Outbox) Get(seq uint64, sub uint32) (Fill, error) {
	val, closer, err := o.db.Get(keyFor(seq, sub))
	if err != nil {
		return Fill{}, err
	}
	defer closer.Close()
	return decodeFill(val)
}

// Delete removes an acknowledged fill.
func (o *Outbox) Delete(seq uint64, sub uint32) error {
	return o.db.Delete(keyFor(seq, sub), pebble.Sync)
}

// ScanState iterates fills in the given state in key order. The
// broadcaster drains NEW and retries FAILED through this.
func (o *Outbox) ScanState(state State, fn func(Fill) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("fill/"),
		UpperBound: []byte("fill/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		f, err := decodeFill(iter.Value())
		if err != nil {
			return err
		}
		if f.State != state {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAckedUpTo deletes every ACKED fill with sequence at or below
// seq. Called after a snapshot pins the state.
func (o *Outbox) TruncateAckedUpTo(seq uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("fill/"),
		UpperBound: []byte("fill/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	var doomed [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		f, err := decodeFill(iter.Value())
		if err != nil {
			return err
		}
		if f.State == StateAcked && f.Seq <= seq {
			doomed = append(doomed, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	for _, key := range doomed {
		if err := o.db.Delete(key, pebble.Sync); err != nil {
			return err
		}
	}
	return nil
}

func keyFor(seq uint64, sub uint32) []byte {
	return []byte(fmt.Sprintf("fill/%020d/%010d", seq, sub))
}
