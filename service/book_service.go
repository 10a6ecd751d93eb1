package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/ruquant/karoot-singapore/domain/book"
	"github.com/ruquant/karoot-singapore/infra/kafka"
	"github.com/ruquant/karoot-singapore/infra/outbox"
	"github.com/ruquant/karoot-singapore/infra/sequence"
	"github.com/ruquant/karoot-singapore/infra/state"
	"github.com/ruquant/karoot-singapore/infra/wal"
)

// maxAmountBits caps order sizes at the edge. The engine's aggregate
// arithmetic is 256-bit, but bounding operands keeps sums of any
// realistic book away from overflow entirely.
const maxAmountBits = 128

var ErrAmountRange = errors.New("service: amount exceeds 128 bits")

type BookService struct {
	// mu serializes the command path. The engine is single-writer:
	// two interleaved commands would batch against the same cursor
	// and branch records and the later commit would overwrite the
	// earlier one's writes. gRPC handlers arrive on per-connection
	// goroutines, so the service takes the lock itself.
	mu sync.Mutex

	db     *state.DB
	wal    *wal.WAL
	seq    *sequence.Sequencer
	outbox *outbox.Outbox // optional
	ticker *kafka.Producer // optional
}

// New wires all dependencies. No globals. The outbox and tick producer
// may be nil; everything else is required.
func New(db *state.DB, w *wal.WAL, seq *sequence.Sequencer, ob *outbox.Outbox, ticker *kafka.Producer) *BookService {
	return &BookService{db: db, wal: w, seq: seq, outbox: ob, ticker: ticker}
}

// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────

// AddOrder rests a new order and returns its identifier.
func (s *BookService) AddOrder(price uint64, amount *uint256.Int, owner book.Address) (uint64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := wal.NewRecord(wal.RecordAdd)
	rec.Seq = s.seq.Next()
	rec.Price = price
	rec.Amount = amount.Bytes32()
	rec.Owner = owner
	if _, err := s.wal.Append(rec); err != nil {
		return 0, err
	}

	var id uint64
	err := s.db.Apply(rec.Seq, func(st book.Store) error {
		var berr error
		id, berr = book.New(st).AddOrder(price, amount, owner)
		return berr
	})
	if err != nil {
		return 0, err
	}
	s.publishTick(rec.Seq)
	return id, nil
}

// RemoveOrder cancels a resting order, returning its original size
// and, when it was the best offer, its owner.
func (s *BookService) RemoveOrder(id uint64) (uint256.Int, book.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := wal.NewRecord(wal.RecordRemove)
	rec.Seq = s.seq.Next()
	rec.ID = id
	if _, err := s.wal.Append(rec); err != nil {
		return uint256.Int{}, book.Address{}, err
	}

	var (
		original uint256.Int
		owner    book.Address
	)
	err := s.db.Apply(rec.Seq, func(st book.Store) error {
		var berr error
		original, owner, berr = book.New(st).RemoveOrder(id)
		return berr
	})
	if err != nil {
		return uint256.Int{}, book.Address{}, err
	}
	s.publishTick(rec.Seq)
	return original, owner, nil
}

// ClaimExecuted settles the filled portion of an order.
func (s *BookService) ClaimExecuted(id uint64) (uint256.Int, uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := wal.NewRecord(wal.RecordClaim)
	rec.Seq = s.seq.Next()
	rec.ID = id
	if _, err := s.wal.Append(rec); err != nil {
		return uint256.Int{}, uint256.Int{}, err
	}

	var executed, remaining uint256.Int
	err := s.db.Apply(rec.Seq, func(st book.Store) error {
		var berr error
		executed, remaining, berr = book.New(st).ClaimExecuted(id)
		return berr
	})
	if err != nil {
		return uint256.Int{}, uint256.Int{}, err
	}
	return executed, remaining, nil
}

// ExecuteRight fills up to amount shares at or below limit. The
// execution lands in the outbox for the broadcaster to publish.
func (s *BookService) ExecuteRight(limit uint64, amount *uint256.Int) (uint256.Int, uint256.Int, book.Address, error) {
	if err := checkAmount(amount); err != nil {
		return uint256.Int{}, uint256.Int{}, book.Address{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := wal.NewRecord(wal.RecordExecute)
	rec.Seq = s.seq.Next()
	rec.Price = limit
	rec.Amount = amount.Bytes32()
	if _, err := s.wal.Append(rec); err != nil {
		return uint256.Int{}, uint256.Int{}, book.Address{}, err
	}

	var (
		executed, value uint256.Int
		owner           book.Address
		bestAfter       uint64
	)
	err := s.db.Apply(rec.Seq, func(st book.Store) error {
		b := book.New(st)
		var berr error
		executed, value, owner, berr = b.ExecuteRight(limit, amount)
		if berr != nil {
			return berr
		}
		cur, berr := st.Cursor()
		if berr != nil {
			return berr
		}
		bestAfter = cur.Best
		return nil
	})
	if err != nil {
		return uint256.Int{}, uint256.Int{}, book.Address{}, err
	}

	if s.outbox != nil && !executed.IsZero() {
		fill := outbox.Fill{
			Seq:     rec.Seq,
			Sub:     0,
			OrderID: bestAfter,
			Owner:   owner,
			Shares:  executed.Bytes32(),
			Value:   value.Bytes32(),
		}
		if err := s.outbox.PutNew(fill); err != nil {
			log.Printf("service: outbox put seq %d: %v", rec.Seq, err)
		}
	}
	s.publishTick(rec.Seq)
	return executed, value, owner, nil
}

// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────

// PreviewExecuteRight quotes an execution without touching the book.
func (s *BookService) PreviewExecuteRight(limit uint64, amount *uint256.Int) (uint256.Int, book.Address, error) {
	if err := checkAmount(amount); err != nil {
		return uint256.Int{}, book.Address{}, err
	}
	var (
		executed uint256.Int
		owner    book.Address
	)
	err := s.db.View(func(st book.Store) error {
		var berr error
		executed, owner, berr = book.New(st).PreviewExecuteRight(limit, amount)
		return berr
	})
	return executed, owner, err
}

// GetOrderInfo returns a live order's remaining size and owner.
func (s *BookService) GetOrderInfo(id uint64) (uint256.Int, book.Address, error) {
	var (
		remaining uint256.Int
		owner     book.Address
	)
	err := s.db.View(func(st book.Store) error {
		var berr error
		remaining, owner, berr = book.New(st).GetOrderInfo(id)
		return berr
	})
	return remaining, owner, err
}

// AssembleOrderbook returns up to count live orders, best first.
func (s *BookService) AssembleOrderbook(count int) ([]book.OrderView, error) {
	var views []book.OrderView
	err := s.db.View(func(st book.Store) error {
		var berr error
		views, berr = book.New(st).AssembleOrderbook(count)
		return berr
	})
	return views, err
}

// BestOffer reports the current best offer.
func (s *BookService) BestOffer() (uint64, uint256.Int, book.Address, error) {
	var (
		id        uint64
		remaining uint256.Int
		owner     book.Address
	)
	err := s.db.View(func(st book.Store) error {
		var berr error
		id, remaining, owner, berr = book.New(st).BestOffer()
		return berr
	})
	return id, remaining, owner, err
}

// ──────────────────────────────────────────────────────────
// Market data
// ──────────────────────────────────────────────────────────

type tick struct {
	Seq       uint64 `json:"seq"`
	BestID    uint64 `json:"best_id"`
	Price     uint64 `json:"price"`
	Remaining string `json:"remaining"`
	Owner     string `json:"owner"`
}

// publishTick pushes the post-operation best offer to the tick topic.
// Ticks are advisory; failures are logged, never surfaced.
func (s *BookService) publishTick(seq uint64) {
	if s.ticker == nil {
		return
	}
	id, remaining, owner, err := s.BestOffer()
	if err != nil {
		log.Printf("service: tick read: %v", err)
		return
	}
	t := tick{Seq: seq, BestID: id, Remaining: remaining.Dec(), Owner: hex.EncodeToString(owner[:])}
	if id != 0 {
		t.Price = (id - 1) / 2
	}
	payload, err := json.Marshal(t)
	if err != nil {
		log.Printf("service: tick marshal: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.ticker.Send(ctx, nil, payload); err != nil {
		log.Printf("service: tick publish: %v", err)
	}
}

func checkAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return book.ErrZeroAmount
	}
	if amount.BitLen() > maxAmountBits {
		return ErrAmountRange
	}
	return nil
}
