package book

import "github.com/holiman/uint256"

// Address is the opaque owner identifier the settlement collaborator
// hands us. The zero address is never registered.
type Address [20]byte

// Leaf is one resting order, keyed by its identifier. Trader zero
// marks an empty or removed slot; reads of absent keys yield the zero
// Leaf.
type Leaf struct {
	Trader        uint64
	Remaining     uint256.Int
	Original      uint256.Int
	OriginalValue uint256.Int
}

// Live reports whether the slot holds a resting order.
func (l *Leaf) Live() bool { return l.Trader != 0 }

// RemainingValue prorates the fixed original value over the remaining
// shares with truncating division. Dust rounds down, never up.
func (l *Leaf) RemainingValue() (uint256.Int, error) {
	return prorate(&l.Remaining, &l.OriginalValue, &l.Original)
}

// Branch is a node of the aggregate trie, keyed by an identifier that
// gained children or descendants. Left/Right are the comparison-order
// child links; Shares/Value are the running totals of all live leaves
// whose arithmetic ancestor chain passes through this id. A branch may
// coexist with a leaf under the same id. Absent keys read as the zero
// Branch.
type Branch struct {
	Left   uint64
	Right  uint64
	Shares uint256.Int
	Value  uint256.Int
}

// Zero reports whether the branch carries no links and no totals.
func (b *Branch) Zero() bool {
	return b.Left == 0 && b.Right == 0 && b.Shares.IsZero() && b.Value.IsZero()
}

// Cursor is the best-price cursor: the minimum live identifier plus
// the successor bitmap. Bit 0 of Bits is a sentinel and is always set
// while the book is tracking a best offer; every other set bit 2^b
// records a pending right turn, meaning Best+2^b is a candidate for
// the next-best identifier. Mutate it only through its methods.
type Cursor struct {
	Best uint64
	Bits uint64
}

// Counters are reserved for a future identifier free-list. They are
// persisted but no operation reads or writes them.
type Counters struct {
	HighestAllocated uint64
	LastFree         uint64
}

// prorate computes shares*value/total with a 512-bit intermediate and
// truncating division.
func prorate(shares, value, total *uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if total.IsZero() {
		return out, ErrAggregateUnderflow
	}
	if _, overflow := out.MulDivOverflow(shares, value, total); overflow {
		return uint256.Int{}, ErrValueOverflow
	}
	return out, nil
}
