package book

// MemStore is the reference in-memory Store: plain maps with the exact
// zero-value-on-absence semantics the index assumes. It backs tests
// and WAL replay; the durable implementation lives in infra/state.
type MemStore struct {
	leaves    map[uint64]Leaf
	branches  map[uint64]Branch
	cursor    Cursor
	counters  Counters
	byAddr    map[Address]uint64
	byID      map[uint64]Address
	traderSeq uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		leaves:   make(map[uint64]Leaf),
		branches: make(map[uint64]Branch),
		byAddr:   make(map[Address]uint64),
		byID:     make(map[uint64]Address),
	}
}

func (m *MemStore) Leaf(id uint64) (Leaf, error) { return m.leaves[id], nil }

func (m *MemStore) PutLeaf(id uint64, l Leaf) error {
	if l.Trader == 0 {
		delete(m.leaves, id)
		return nil
	}
	m.leaves[id] = l
	return nil
}

func (m *MemStore) Branch(id uint64) (Branch, error) { return m.branches[id], nil }

func (m *MemStore) PutBranch(id uint64, b Branch) error {
	m.branches[id] = b
	return nil
}

func (m *MemStore) Cursor() (Cursor, error)     { return m.cursor, nil }
func (m *MemStore) PutCursor(c Cursor) error    { m.cursor = c; return nil }
func (m *MemStore) Counters() (Counters, error) { return m.counters, nil }
func (m *MemStore) PutCounters(c Counters) error {
	m.counters = c
	return nil
}

func (m *MemStore) TraderID(addr Address) (uint64, error) { return m.byAddr[addr], nil }

func (m *MemStore) TraderAddress(id uint64) (Address, error) { return m.byID[id], nil }

func (m *MemStore) PutTrader(addr Address, id uint64) error {
	m.byAddr[addr] = id
	m.byID[id] = addr
	return nil
}

func (m *MemStore) TraderSeq() (uint64, error)  { return m.traderSeq, nil }
func (m *MemStore) PutTraderSeq(v uint64) error { m.traderSeq = v; return nil }

// Leaves returns a copy of the live leaf map. Test helper.
func (m *MemStore) Leaves() map[uint64]Leaf {
	out := make(map[uint64]Leaf, len(m.leaves))
	for id, l := range m.leaves {
		out[id] = l
	}
	return out
}

// Branches returns a copy of the branch map. Test helper.
func (m *MemStore) Branches() map[uint64]Branch {
	out := make(map[uint64]Branch, len(m.branches))
	for id, b := range m.branches {
		out[id] = b
	}
	return out
}
