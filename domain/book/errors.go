package book

import "errors"

var (
	// ErrPriceOverflow reports a price outside the identifier range:
	// 2*price+1 must fit in a uint64.
	ErrPriceOverflow = errors.New("book: price exceeds identifier range")

	// ErrAllocatorExhausted reports that the +2 collision probe ran out
	// of budget before finding a free identifier slot.
	ErrAllocatorExhausted = errors.New("book: identifier allocator exhausted")

	// ErrZeroAmount reports an order with no size.
	ErrZeroAmount = errors.New("book: zero order amount")

	// ErrMalformedID reports an identifier argument that cannot name a
	// resting order (zero or even).
	ErrMalformedID = errors.New("book: malformed order identifier")

	// ErrValueOverflow reports arithmetic overflow in order value or
	// aggregate bookkeeping. It is fatal for the whole operation.
	ErrValueOverflow = errors.New("book: value arithmetic overflow")

	// ErrAggregateUnderflow reports an attempt to subtract more shares
	// or value from a subtree aggregate than it holds. The aggregates
	// are expected to be exact at every boundary, so this is fatal.
	ErrAggregateUnderflow = errors.New("book: aggregate underflow")

	// ErrTreeDepth reports a comparison descent that exceeded its
	// budget, which can only happen if the branch links are corrupt.
	ErrTreeDepth = errors.New("book: descent depth exceeded")

	// ErrSlotOccupied reports a restore aimed at an identifier that
	// already holds a live order.
	ErrSlotOccupied = errors.New("book: identifier slot occupied")
)
