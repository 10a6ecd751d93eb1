package service

import (
	"errors"
	"log"
	"sort"

	"github.com/holiman/uint256"

	"github.com/ruquant/karoot-singapore/domain/book"
	"github.com/ruquant/karoot-singapore/infra/wal"
	"github.com/ruquant/karoot-singapore/snapshot"
)

// RestoreFromSnapshot seeds an empty state store from the newest
// snapshot, if one exists. A store that has already applied anything
// is left alone; the WAL replay brings it forward instead.
func (s *BookService) RestoreFromSnapshot(dir string) error {
	applied, err := s.db.AppliedSeq()
	if err != nil {
		return err
	}
	if applied != 0 {
		return nil
	}
	snap, err := snapshot.Load(dir)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	orders := snap.Orders
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	err = s.db.Apply(snap.Seq, func(st book.Store) error {
		b := book.New(st)
		for _, e := range orders {
			var remaining, original, originalValue uint256.Int
			remaining.SetBytes(e.Remaining[:])
			original.SetBytes(e.Original[:])
			originalValue.SetBytes(e.OriginalValue[:])
			if err := b.RestoreOrder(e.ID, e.Owner, &remaining, &original, &originalValue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.seq.Reset(snap.Seq)
	log.Printf("service: restored %d orders from snapshot (seq %d)", len(orders), snap.Seq)
	return nil
}

// ReplayFromWAL brings the state store up to date with the operation
// log. It MUST run before accepting traffic. Records the store has
// already applied are skipped, so replay after a clean shutdown is a
// no-op; records whose operation failed domain validation originally
// fail identically and are skipped again.
func (s *BookService) ReplayFromWAL(dir string) error {
	applied, err := s.db.AppliedSeq()
	if err != nil {
		return err
	}

	replayed := 0
	last, err := wal.Replay(dir, func(rec *wal.Record) error {
		if rec.Seq <= applied {
			return nil
		}
		aerr := s.db.Apply(rec.Seq, func(st book.Store) error {
			return applyRecord(book.New(st), rec)
		})
		if aerr != nil {
			if domainError(aerr) {
				return nil
			}
			return aerr
		}
		replayed++
		return nil
	})
	if err != nil {
		return err
	}
	if last < s.wal.LastSeq() {
		last = s.wal.LastSeq()
	}
	// Never wind the sequencer backwards: a freshly pruned log can sit
	// below the snapshot sequence the store was restored at.
	if last > s.seq.Current() {
		s.seq.Reset(last)
	}
	log.Printf("service: wal replay complete (%d applied, last seq %d)", replayed, last)
	return nil
}

func applyRecord(b *book.Book, rec *wal.Record) error {
	var amount uint256.Int
	amount.SetBytes(rec.Amount[:])

	switch rec.Type {
	case wal.RecordAdd:
		_, err := b.AddOrder(rec.Price, &amount, rec.Owner)
		return err
	case wal.RecordRemove:
		_, _, err := b.RemoveOrder(rec.ID)
		return err
	case wal.RecordClaim:
		_, _, err := b.ClaimExecuted(rec.ID)
		return err
	case wal.RecordExecute:
		_, _, _, err := b.ExecuteRight(rec.Price, &amount)
		return err
	default:
		return wal.ErrCorruptRecord
	}
}

// domainError reports whether err is a deterministic validation
// failure. Such records were rejected when first submitted and must
// not halt replay.
func domainError(err error) bool {
	for _, e := range []error{
		book.ErrPriceOverflow,
		book.ErrAllocatorExhausted,
		book.ErrZeroAmount,
		book.ErrMalformedID,
		book.ErrValueOverflow,
		book.ErrSlotOccupied,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
