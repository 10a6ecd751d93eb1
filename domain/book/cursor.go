package book

// advance consumes the lowest pending right turn and moves Best to the
// recorded candidate. With no pending turns the structural path below
// the current best is exhausted and the cursor clears to the empty
// state.
func (c *Cursor) advance() {
	pending := c.Bits &^ 1
	if pending == 0 {
		c.Best = 0
		c.Bits = 1
		return
	}
	step := pending & -pending
	c.Bits &^= step
	c.Best += step
}

// reset points the cursor at a sole best offer with no recorded turns.
func (c *Cursor) reset(best uint64) {
	c.Best = best
	c.Bits = 1
}

// recordRightTurn notes that id was attached as a right child during
// an insertion descent. Only gaps that are an exact power of two from
// the current best are representable in the bitmap; anything else is
// reached later by the linear next-leaf scan instead.
func (c *Cursor) recordRightTurn(id uint64) {
	if id <= c.Best {
		return
	}
	gap := id - c.Best
	if gap&(gap-1) == 0 {
		c.Bits |= gap
	}
}

// onBestPath walks the recorded successor candidates from Best and
// reports the last identifier whose arithmetic subtree could still
// contain target, plus whether target itself was hit. This is the
// bounded substitute for a recursive descent: the walk consumes a copy
// of the bitmap and never touches the store.
func (c Cursor) onBestPath(target uint64) (uint64, bool) {
	cur, bits := c.Best, c.Bits
	if cur == 0 {
		return 0, false
	}
	for {
		if cur == target {
			return cur, true
		}
		mask := subtreeMask(cur)
		if target&mask != cur&mask {
			return cur, false
		}
		pending := bits &^ 1
		if pending == 0 {
			return cur, false
		}
		step := pending & -pending
		bits &^= step
		cur += step
	}
}
