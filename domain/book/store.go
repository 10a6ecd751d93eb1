package book

// Store is the flat key-value substrate the index runs on. Leaves and
// branches are two independent maps keyed by the same integer type;
// reads of absent keys return the zero record. Writes must be durable
// when the enclosing operation commits; making the writes of one
// operation all-or-nothing is the implementation's responsibility.
type Store interface {
	Leaf(id uint64) (Leaf, error)
	// PutLeaf stores l under id. A leaf with Trader zero clears the
	// slot.
	PutLeaf(id uint64, l Leaf) error

	Branch(id uint64) (Branch, error)
	PutBranch(id uint64, b Branch) error

	Cursor() (Cursor, error)
	PutCursor(c Cursor) error

	Counters() (Counters, error)
	PutCounters(c Counters) error

	// TraderID returns the compact id for an owner, zero if unknown.
	TraderID(addr Address) (uint64, error)
	// TraderAddress returns the owner for a compact id, the zero
	// address if unknown.
	TraderAddress(id uint64) (Address, error)
	PutTrader(addr Address, id uint64) error
	TraderSeq() (uint64, error)
	PutTraderSeq(v uint64) error
}
