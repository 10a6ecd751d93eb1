package book

const (
	// maxAllocProbes bounds the +2 collision probe in allocate. Price
	// levels are sparse in practice; a run this long means something is
	// wrong upstream.
	maxAllocProbes = 1 << 16

	// maxScanProbes bounds the +2 probe used to find the next live
	// leaf.
	maxScanProbes = 1 << 16

	// maxDescentDepth bounds the comparison descent through branch
	// links.
	maxDescentDepth = 1 << 12

	// maxFillSteps bounds the number of leaves one execution walk can
	// consume.
	maxFillSteps = 1 << 12
)

// firstIDForPrice returns the identifier of the first order at a
// price, 2*price+1. The result must fit in a uint64.
func firstIDForPrice(price uint64) (uint64, error) {
	if price > (^uint64(0)-1)/2 {
		return 0, ErrPriceOverflow
	}
	return 2*price + 1, nil
}

// PriceOfID recovers the price encoded in an identifier. Collision
// probing shifts the identifier by +2 per same-price predecessor, so
// for probed orders this overstates the true price by the probe count.
func PriceOfID(id uint64) uint64 {
	return (id - 1) / 2
}

// parentID is the ancestor-by-arithmetic rule: the aggregate parent of
// any non-zero identifier is the identifier with its lowest set bit
// cleared. Zero is the root sentinel.
func parentID(x uint64) uint64 {
	return x & (x - 1)
}

// lowBit isolates the lowest set bit of x.
func lowBit(x uint64) uint64 {
	return x & -x
}

// subtreeMask spans every bit of id from its lowest set bit downward.
// An identifier t lies on id's arithmetic path iff t agrees with id on
// the masked bits.
func subtreeMask(id uint64) uint64 {
	return id | (id - 1)
}

// validID reports whether id can name a resting order. Resting-order
// identifiers are always odd and non-zero.
func validID(id uint64) error {
	if id == 0 || id&1 == 0 {
		return ErrMalformedID
	}
	return nil
}

// allocate finds a free identifier slot for an order at the given
// price, probing +2 past occupied slots so that same-price orders get
// strictly increasing identifiers in arrival order.
func (b *Book) allocate(price uint64) (uint64, error) {
	id, err := firstIDForPrice(price)
	if err != nil {
		return 0, err
	}
	for i := 0; i < maxAllocProbes; i++ {
		leaf, err := b.store.Leaf(id)
		if err != nil {
			return 0, err
		}
		if leaf.Trader == 0 {
			return id, nil
		}
		if id > ^uint64(0)-2 {
			return 0, ErrAllocatorExhausted
		}
		id += 2
	}
	return 0, ErrAllocatorExhausted
}
