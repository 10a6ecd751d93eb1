package book

import "github.com/holiman/uint256"

// Book is one side of a limit-order book bound to a Store. It has no
// state of its own; every operation is a synchronous transition on the
// store and must run inside whatever atomicity boundary the store
// implementation provides.
type Book struct {
	store Store
}

func New(store Store) *Book {
	return &Book{store: store}
}

// OrderView is one entry of an assembled book: a live order's
// remaining size and owner, in ascending price order.
type OrderView struct {
	Remaining uint256.Int
	Owner     Address
}

// OrderDump is the full leaf image used by snapshots.
type OrderDump struct {
	ID            uint64
	Owner         Address
	Remaining     uint256.Int
	Original      uint256.Int
	OriginalValue uint256.Int
}

// AddOrder rests a new order and returns its identifier. The first
// order of an empty book becomes the cursor; otherwise the identifier
// is attached by comparison descent from the current best and the
// aggregates along its arithmetic ancestor chain pick up its size and
// value.
func (b *Book) AddOrder(price uint64, amount *uint256.Int, owner Address) (uint64, error) {
	if amount == nil || amount.IsZero() {
		return 0, ErrZeroAmount
	}
	id, err := b.allocate(price)
	if err != nil {
		return 0, err
	}
	trader, err := b.registerTrader(owner)
	if err != nil {
		return 0, err
	}

	var value uint256.Int
	if _, overflow := value.MulOverflow(amount, uint256.NewInt(price)); overflow {
		return 0, ErrValueOverflow
	}

	leaf := Leaf{Trader: trader}
	leaf.Remaining.Set(amount)
	leaf.Original.Set(amount)
	leaf.OriginalValue.Set(&value)
	if err := b.store.PutLeaf(id, leaf); err != nil {
		return 0, err
	}

	cur, err := b.store.Cursor()
	if err != nil {
		return 0, err
	}
	if cur.Best == 0 {
		cur.reset(id)
	} else {
		attachedRight, err := b.attach(cur.Best, id)
		if err != nil {
			return 0, err
		}
		if attachedRight {
			cur.recordRightTurn(id)
		}
		if id < cur.Best {
			// New best. The bitmap is deliberately not recomputed for
			// the new path; see the advancement caveat in DESIGN.md.
			cur.Best = id
		}
	}
	if err := b.store.PutCursor(cur); err != nil {
		return 0, err
	}
	if err := b.addToAncestors(id, amount, &value); err != nil {
		return 0, err
	}
	return id, nil
}

// RestoreOrder reinstates an order from a snapshot image at its
// original identifier, partially filled state included. Orders must be
// restored in ascending identifier order for the cursor to come back
// the way insertion built it.
func (b *Book) RestoreOrder(id uint64, owner Address, remaining, original, originalValue *uint256.Int) error {
	if err := validID(id); err != nil {
		return err
	}
	if remaining == nil || remaining.IsZero() {
		return ErrZeroAmount
	}
	existing, err := b.store.Leaf(id)
	if err != nil {
		return err
	}
	if existing.Live() {
		return ErrSlotOccupied
	}
	trader, err := b.registerTrader(owner)
	if err != nil {
		return err
	}

	leaf := Leaf{Trader: trader}
	leaf.Remaining.Set(remaining)
	leaf.Original.Set(original)
	leaf.OriginalValue.Set(originalValue)
	value, err := leaf.RemainingValue()
	if err != nil {
		return err
	}
	if err := b.store.PutLeaf(id, leaf); err != nil {
		return err
	}

	cur, err := b.store.Cursor()
	if err != nil {
		return err
	}
	if cur.Best == 0 {
		cur.reset(id)
	} else {
		attachedRight, err := b.attach(cur.Best, id)
		if err != nil {
			return err
		}
		if attachedRight {
			cur.recordRightTurn(id)
		}
		if id < cur.Best {
			cur.Best = id
		}
	}
	if err := b.store.PutCursor(cur); err != nil {
		return err
	}
	return b.addToAncestors(id, &leaf.Remaining, &value)
}

// attach walks the branch links from root by numeric comparison and
// hangs id off the first empty child slot. Reports whether id became a
// right child. Child links outlive the orders that created them, so a
// link may point at a slot that was cleared and later reallocated; any
// link falling outside the open interval the descent has established
// is stale and its slot is reclaimed.
func (b *Book) attach(root, id uint64) (bool, error) {
	cur := root
	lo, hi := uint64(0), ^uint64(0)
	for i := 0; i < maxDescentDepth; i++ {
		br, err := b.store.Branch(cur)
		if err != nil {
			return false, err
		}
		if id < cur {
			if br.Left == id {
				return false, nil
			}
			if br.Left == 0 || br.Left <= lo || br.Left >= cur {
				br.Left = id
				return false, b.store.PutBranch(cur, br)
			}
			hi = cur
			cur = br.Left
			continue
		}
		if br.Right == id {
			return true, nil
		}
		if br.Right == 0 || br.Right >= hi || br.Right <= cur {
			br.Right = id
			return true, b.store.PutBranch(cur, br)
		}
		lo = cur
		cur = br.Right
	}
	return false, ErrTreeDepth
}

// RemoveOrder cancels a resting order. It returns the order's original
// size and, when the cancelled order was the best offer, its resolved
// owner. A missing or already-cleared identifier yields the
// zero-quantity, null-owner sentinel.
func (b *Book) RemoveOrder(id uint64) (uint256.Int, Address, error) {
	var none uint256.Int
	if err := validID(id); err != nil {
		return none, Address{}, err
	}
	leaf, err := b.store.Leaf(id)
	if err != nil {
		return none, Address{}, err
	}
	if !leaf.Live() {
		return none, Address{}, nil
	}
	cur, err := b.store.Cursor()
	if err != nil {
		return none, Address{}, err
	}

	switch {
	case id == cur.Best:
		owner, err := b.ownerOf(leaf.Trader)
		if err != nil {
			return none, Address{}, err
		}
		if err := b.dropLeaf(id, &leaf); err != nil {
			return none, Address{}, err
		}
		cur.advance()
		if err := b.store.PutCursor(cur); err != nil {
			return none, Address{}, err
		}
		return leaf.Original, owner, nil

	case id > cur.Best:
		// Fast path: the order is behind the best and its branch link,
		// if any, stays behind as a dead pointer. The owner is not
		// resolved on this path.
		if err := b.dropLeaf(id, &leaf); err != nil {
			return none, Address{}, err
		}
		return leaf.Original, Address{}, nil

	default:
		// Nothing live can precede the best offer; the walk from the
		// best path cannot reach it.
		return none, Address{}, nil
	}
}

// dropLeaf clears a leaf and takes its remaining size and value out of
// every aggregate on its ancestor chain.
func (b *Book) dropLeaf(id uint64, leaf *Leaf) error {
	value, err := leaf.RemainingValue()
	if err != nil {
		return err
	}
	if err := b.subFromAncestors(id, &leaf.Remaining, &value); err != nil {
		return err
	}
	return b.store.PutLeaf(id, Leaf{})
}

// ClaimExecuted settles the already-executed portion of an order and
// returns (executedShares, remainingShares). An order the cursor has
// advanced past without filling is deemed fully executed: its whole
// remainder is claimed and the leaf cleared.
func (b *Book) ClaimExecuted(id uint64) (uint256.Int, uint256.Int, error) {
	var zero uint256.Int
	if err := validID(id); err != nil {
		return zero, zero, err
	}
	leaf, err := b.store.Leaf(id)
	if err != nil {
		return zero, zero, err
	}
	if !leaf.Live() {
		return zero, zero, nil
	}
	cur, err := b.store.Cursor()
	if err != nil {
		return zero, zero, err
	}

	if _, reachable := cur.onBestPath(id); !reachable {
		// Skipped by advancement. The engine never touched this leaf,
		// so its remainder still sits in the ancestor aggregates; take
		// it out on the way to clearing it.
		executed := leaf.Remaining
		if err := b.dropLeaf(id, &leaf); err != nil {
			return zero, zero, err
		}
		return executed, zero, nil
	}

	var executed uint256.Int
	if leaf.Remaining.Gt(&leaf.Original) {
		return zero, zero, ErrAggregateUnderflow
	}
	executed.Sub(&leaf.Original, &leaf.Remaining)
	if executed.IsZero() {
		return zero, leaf.Remaining, nil
	}

	// Rebase the leaf on its unexecuted remainder so the same fill can
	// never be claimed twice. The executed part already left the
	// aggregates when it was filled.
	newValue, err := leaf.RemainingValue()
	if err != nil {
		return zero, zero, err
	}
	remaining := leaf.Remaining
	leaf.Original.Set(&remaining)
	leaf.OriginalValue.Set(&newValue)
	if err := b.store.PutLeaf(id, leaf); err != nil {
		return zero, zero, err
	}
	return executed, remaining, nil
}

// ExecuteRight fills up to amount shares from the best price outward,
// stopping at leaves priced worse than limit. It returns the executed
// shares, their value, and the owner of the best offer after the walk.
func (b *Book) ExecuteRight(limit uint64, amount *uint256.Int) (uint256.Int, uint256.Int, Address, error) {
	executed, value, pos, moved, err := b.fillWalk(limit, amount, true)
	if err != nil {
		return uint256.Int{}, uint256.Int{}, Address{}, err
	}
	if moved {
		cur, err := b.store.Cursor()
		if err != nil {
			return uint256.Int{}, uint256.Int{}, Address{}, err
		}
		cur.Best = pos
		if pos == 0 {
			cur.Bits = 1
		}
		if err := b.store.PutCursor(cur); err != nil {
			return uint256.Int{}, uint256.Int{}, Address{}, err
		}
	}
	owner, err := b.ownerAt(pos)
	if err != nil {
		return uint256.Int{}, uint256.Int{}, Address{}, err
	}
	return executed, value, owner, nil
}

// PreviewExecuteRight is ExecuteRight without any mutation: the same
// walk, quoting the executable shares and the owner of the current
// best offer.
func (b *Book) PreviewExecuteRight(limit uint64, amount *uint256.Int) (uint256.Int, Address, error) {
	cur, err := b.store.Cursor()
	if err != nil {
		return uint256.Int{}, Address{}, err
	}
	executed, _, _, _, err := b.fillWalk(limit, amount, false)
	if err != nil {
		return uint256.Int{}, Address{}, err
	}
	owner, err := b.ownerAt(cur.Best)
	if err != nil {
		return uint256.Int{}, Address{}, err
	}
	return executed, owner, nil
}

// fillWalk is the shared execution walk. With mutate set it consumes
// leaves and repairs aggregates; otherwise it only accumulates what a
// real walk would fill. It returns the executed shares and value, the
// identifier the cursor should point at, and whether it moved.
func (b *Book) fillWalk(limit uint64, amount *uint256.Int, mutate bool) (uint256.Int, uint256.Int, uint64, bool, error) {
	var executed, value uint256.Int
	cur, err := b.store.Cursor()
	if err != nil {
		return executed, value, 0, false, err
	}
	pos := cur.Best
	if pos == 0 || amount == nil || amount.IsZero() {
		return executed, value, pos, false, nil
	}
	if PriceOfID(pos) > limit {
		return executed, value, pos, false, nil
	}

	left := amount.Clone()
	moved := false
	for i := 0; i < maxFillSteps; i++ {
		if pos == 0 || left.IsZero() || PriceOfID(pos) > limit {
			break
		}
		leaf, err := b.store.Leaf(pos)
		if err != nil {
			return executed, value, pos, moved, err
		}
		if !leaf.Live() {
			// Dead slot under the cursor; probe onward.
			next, found, err := b.nextLeaf(pos)
			if err != nil {
				return executed, value, pos, moved, err
			}
			moved = true
			pos = next
			if !found {
				break
			}
			continue
		}

		if left.Lt(&leaf.Remaining) {
			// Partial fill ends the walk at this leaf.
			fillValue, err := prorate(left, &leaf.OriginalValue, &leaf.Original)
			if err != nil {
				return executed, value, pos, moved, err
			}
			if mutate {
				leaf.Remaining.Sub(&leaf.Remaining, left)
				if err := b.store.PutLeaf(pos, leaf); err != nil {
					return executed, value, pos, moved, err
				}
				if err := b.subFromAncestors(pos, left, &fillValue); err != nil {
					return executed, value, pos, moved, err
				}
			}
			executed.Add(&executed, left)
			value.Add(&value, &fillValue)
			left.Clear()
			break
		}

		// Full fill: consume the leaf and advance.
		fillValue, err := leaf.RemainingValue()
		if err != nil {
			return executed, value, pos, moved, err
		}
		if mutate {
			if err := b.dropLeaf(pos, &leaf); err != nil {
				return executed, value, pos, moved, err
			}
		}
		executed.Add(&executed, &leaf.Remaining)
		value.Add(&value, &fillValue)
		left.Sub(left, &leaf.Remaining)
		next, found, err := b.nextLeaf(pos)
		if err != nil {
			return executed, value, pos, moved, err
		}
		moved = true
		pos = next
		if !found {
			break
		}
	}
	return executed, value, pos, moved, nil
}

// GetOrderInfo returns a live order's remaining size and owner, or the
// zero sentinel pair when the identifier names nothing.
func (b *Book) GetOrderInfo(id uint64) (uint256.Int, Address, error) {
	var none uint256.Int
	if err := validID(id); err != nil {
		return none, Address{}, err
	}
	leaf, err := b.store.Leaf(id)
	if err != nil {
		return none, Address{}, err
	}
	if !leaf.Live() {
		return none, Address{}, nil
	}
	owner, err := b.ownerOf(leaf.Trader)
	if err != nil {
		return none, Address{}, err
	}
	return leaf.Remaining, owner, nil
}

// AssembleOrderbook walks live leaves ascending from the best offer
// and returns up to count entries.
func (b *Book) AssembleOrderbook(count int) ([]OrderView, error) {
	return walkCollect(b, count, func(d *OrderDump) OrderView {
		return OrderView{Remaining: d.Remaining, Owner: d.Owner}
	})
}

// Orders returns full leaf images ascending from the best offer, for
// snapshots.
func (b *Book) Orders(count int) ([]OrderDump, error) {
	return walkCollect(b, count, func(d *OrderDump) OrderDump { return *d })
}

// BestOffer reports the cursor position and, when it rests on a live
// leaf, that leaf's remaining size and owner.
func (b *Book) BestOffer() (uint64, uint256.Int, Address, error) {
	cur, err := b.store.Cursor()
	if err != nil {
		return 0, uint256.Int{}, Address{}, err
	}
	if cur.Best == 0 {
		return 0, uint256.Int{}, Address{}, nil
	}
	leaf, err := b.store.Leaf(cur.Best)
	if err != nil {
		return 0, uint256.Int{}, Address{}, err
	}
	owner, err := b.ownerOf(leaf.Trader)
	if err != nil {
		return 0, uint256.Int{}, Address{}, err
	}
	return cur.Best, leaf.Remaining, owner, nil
}

func walkCollect[T any](b *Book, count int, view func(*OrderDump) T) ([]T, error) {
	if count < 0 {
		count = 0
	}
	out := make([]T, 0, count)
	cur, err := b.store.Cursor()
	if err != nil {
		return nil, err
	}
	pos := cur.Best
	for pos != 0 && len(out) < count {
		leaf, err := b.store.Leaf(pos)
		if err != nil {
			return nil, err
		}
		if leaf.Live() {
			owner, err := b.ownerOf(leaf.Trader)
			if err != nil {
				return nil, err
			}
			d := OrderDump{
				ID:            pos,
				Owner:         owner,
				Remaining:     leaf.Remaining,
				Original:      leaf.Original,
				OriginalValue: leaf.OriginalValue,
			}
			out = append(out, view(&d))
		}
		next, found, err := b.nextLeaf(pos)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		pos = next
	}
	return out, nil
}

// nextLeaf probes ascending identifiers for the next live leaf. When
// the probe budget runs out it distinguishes an empty book (cursor
// should clear) from a long gap (cursor stays put and later walks
// resume probing) via the top-level aggregates.
func (b *Book) nextLeaf(from uint64) (uint64, bool, error) {
	id := from
	for i := 0; i < maxScanProbes; i++ {
		if id > ^uint64(0)-2 {
			break
		}
		id += 2
		leaf, err := b.store.Leaf(id)
		if err != nil {
			return 0, false, err
		}
		if leaf.Live() {
			return id, true, nil
		}
	}
	empty, err := b.emptyByAggregates()
	if err != nil {
		return 0, false, err
	}
	if empty {
		return 0, false, nil
	}
	return from, false, nil
}

// emptyByAggregates reports whether no live leaf remains. Every
// ancestor chain of an identifier above 1 terminates in a power of
// two before reaching the root sentinel, so the book holds shares iff
// one of those roots does, or leaf 1 itself (which has no ancestors).
func (b *Book) emptyByAggregates() (bool, error) {
	one, err := b.store.Leaf(1)
	if err != nil {
		return false, err
	}
	if one.Live() {
		return false, nil
	}
	for shift := uint(1); shift < 64; shift++ {
		br, err := b.store.Branch(1 << shift)
		if err != nil {
			return false, err
		}
		if !br.Shares.IsZero() {
			return false, nil
		}
	}
	return true, nil
}

// addToAncestors credits a leaf's size and value to every aggregate on
// its arithmetic ancestor chain.
func (b *Book) addToAncestors(id uint64, shares, value *uint256.Int) error {
	for a := parentID(id); a != 0; a = parentID(a) {
		br, err := b.store.Branch(a)
		if err != nil {
			return err
		}
		if _, overflow := br.Shares.AddOverflow(&br.Shares, shares); overflow {
			return ErrValueOverflow
		}
		if _, overflow := br.Value.AddOverflow(&br.Value, value); overflow {
			return ErrValueOverflow
		}
		if err := b.store.PutBranch(a, br); err != nil {
			return err
		}
	}
	return nil
}

// subFromAncestors debits a leaf's executed or cancelled size and
// value from every aggregate on its arithmetic ancestor chain.
// Underflow means the aggregates were inconsistent and aborts the
// operation.
func (b *Book) subFromAncestors(id uint64, shares, value *uint256.Int) error {
	for a := parentID(id); a != 0; a = parentID(a) {
		br, err := b.store.Branch(a)
		if err != nil {
			return err
		}
		if br.Shares.Lt(shares) || br.Value.Lt(value) {
			return ErrAggregateUnderflow
		}
		br.Shares.Sub(&br.Shares, shares)
		br.Value.Sub(&br.Value, value)
		if err := b.store.PutBranch(a, br); err != nil {
			return err
		}
	}
	return nil
}

// ownerAt resolves the owner of the leaf at id, the zero address when
// id is zero or the slot is dead.
func (b *Book) ownerAt(id uint64) (Address, error) {
	if id == 0 {
		return Address{}, nil
	}
	leaf, err := b.store.Leaf(id)
	if err != nil {
		return Address{}, err
	}
	return b.ownerOf(leaf.Trader)
}
