package book

import (
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook(t *testing.T) (*Book, *MemStore) {
	t.Helper()
	ms := NewMemStore()
	return New(ms), ms
}

func addr(i byte) Address {
	var a Address
	a[19] = i
	return a
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func requireAmt(t *testing.T, want uint64, got uint256.Int) {
	t.Helper()
	require.Equal(t, uint256.NewInt(want).String(), got.String())
}

// checkAggregates verifies that every surviving branch aggregate
// matches the live leaves whose ancestor chain passes through it.
// Share totals must be exact; value totals may exceed the prorated
// remainders by dust left behind by truncating division, but never
// fall short.
func checkAggregates(t *testing.T, ms *MemStore) {
	t.Helper()
	wantShares := make(map[uint64]*uint256.Int)
	wantValue := make(map[uint64]*uint256.Int)
	for id, l := range ms.Leaves() {
		rv, err := l.RemainingValue()
		require.NoError(t, err)
		for a := parentID(id); a != 0; a = parentID(a) {
			if wantShares[a] == nil {
				wantShares[a] = new(uint256.Int)
				wantValue[a] = new(uint256.Int)
			}
			wantShares[a].Add(wantShares[a], &l.Remaining)
			wantValue[a].Add(wantValue[a], &rv)
		}
	}
	branches := ms.Branches()
	for a, want := range wantShares {
		br, ok := branches[a]
		require.True(t, ok, "missing branch aggregate at %d", a)
		require.Equal(t, want.String(), br.Shares.String(), "shares at %d", a)
		require.True(t, br.Value.Cmp(wantValue[a]) >= 0, "value at %d below leaf remainder sum", a)
	}
	for a, br := range branches {
		if wantShares[a] == nil {
			require.True(t, br.Shares.IsZero(), "stray shares at branch %d", a)
		}
	}
}

func bestOf(t *testing.T, ms *MemStore) Cursor {
	t.Helper()
	c, err := ms.Cursor()
	require.NoError(t, err)
	return c
}

func TestFirstOrderBecomesCursor(t *testing.T) {
	b, ms := newTestBook(t)
	id, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	require.Equal(t, uint64(21), id)
	require.Equal(t, Cursor{Best: 21, Bits: 1}, bestOf(t, ms))
	checkAggregates(t, ms)
}

func TestIdentifiersFollowPriceOrder(t *testing.T) {
	b, _ := newTestBook(t)
	prices := []uint64{50, 3, 17, 200, 9}
	ids := make(map[uint64]uint64)
	for _, p := range prices {
		id, err := b.AddOrder(p, amt(1), addr(1))
		require.NoError(t, err)
		ids[p] = id
	}
	for _, pa := range prices {
		for _, pb := range prices {
			if pa < pb {
				assert.Less(t, ids[pa], ids[pb], "price %d vs %d", pa, pb)
			}
		}
	}
}

func TestExecuteRightFillsBestOutward(t *testing.T) {
	b, ms := newTestBook(t)
	id1, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	id2, err := b.AddOrder(10, amt(3), addr(2))
	require.NoError(t, err)
	id3, err := b.AddOrder(20, amt(7), addr(3))
	require.NoError(t, err)
	require.Equal(t, []uint64{21, 23, 41}, []uint64{id1, id2, id3})

	executed, _, owner, err := b.ExecuteRight(20, amt(6))
	require.NoError(t, err)
	requireAmt(t, 6, executed)
	require.Equal(t, addr(2), owner, "best advanced onto the second order")

	cur := bestOf(t, ms)
	require.Equal(t, uint64(23), cur.Best)
	remaining, who, err := b.GetOrderInfo(23)
	require.NoError(t, err)
	requireAmt(t, 2, remaining)
	require.Equal(t, addr(2), who)

	// The first order is gone entirely.
	remaining, who, err = b.GetOrderInfo(21)
	require.NoError(t, err)
	require.True(t, remaining.IsZero())
	require.Equal(t, Address{}, who)

	checkAggregates(t, ms)
}

func TestExecuteRightRespectsLimitMidWalk(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	_, err = b.AddOrder(20, amt(7), addr(2))
	require.NoError(t, err)

	executed, _, owner, err := b.ExecuteRight(10, amt(12))
	require.NoError(t, err)
	requireAmt(t, 5, executed)
	require.Equal(t, addr(2), owner)
	require.Equal(t, uint64(41), bestOf(t, ms).Best)
	checkAggregates(t, ms)
}

func TestExecuteRightBelowBestFillsNothing(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)

	executed, _, owner, err := b.ExecuteRight(9, amt(5))
	require.NoError(t, err)
	require.True(t, executed.IsZero())
	require.Equal(t, addr(1), owner, "the untouched best offer is still reported")
	require.Equal(t, uint64(21), bestOf(t, ms).Best)
}

func TestExecuteRightDrainsBook(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	_, err = b.AddOrder(10, amt(3), addr(2))
	require.NoError(t, err)

	executed, _, owner, err := b.ExecuteRight(10, amt(100))
	require.NoError(t, err)
	requireAmt(t, 8, executed)
	require.Equal(t, Address{}, owner, "no best offer left")
	require.Equal(t, Cursor{Best: 0, Bits: 1}, bestOf(t, ms))
	checkAggregates(t, ms)
}

func TestCancelSoleBestClearsCursor(t *testing.T) {
	b, ms := newTestBook(t)
	id, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)

	original, owner, err := b.RemoveOrder(id)
	require.NoError(t, err)
	requireAmt(t, 5, original)
	require.Equal(t, addr(1), owner)
	require.Equal(t, Cursor{Best: 0, Bits: 1}, bestOf(t, ms))

	remaining, who, err := b.GetOrderInfo(id)
	require.NoError(t, err)
	require.True(t, remaining.IsZero())
	require.Equal(t, Address{}, who)
	checkAggregates(t, ms)
}

func TestCancelBestAdvancesToRecordedSuccessor(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	_, err = b.AddOrder(10, amt(3), addr(2))
	require.NoError(t, err)

	original, owner, err := b.RemoveOrder(21)
	require.NoError(t, err)
	requireAmt(t, 5, original)
	require.Equal(t, addr(1), owner)
	require.Equal(t, uint64(23), bestOf(t, ms).Best)
	checkAggregates(t, ms)
}

func TestCancelBehindBestSkipsOwnerResolution(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	id, err := b.AddOrder(20, amt(7), addr(2))
	require.NoError(t, err)

	original, owner, err := b.RemoveOrder(id)
	require.NoError(t, err)
	requireAmt(t, 7, original)
	require.Equal(t, Address{}, owner, "fast path reports success without the owner")

	remaining, _, err := b.GetOrderInfo(id)
	require.NoError(t, err)
	require.True(t, remaining.IsZero())
	checkAggregates(t, ms)
}

func TestRemoveOrderNotFound(t *testing.T) {
	b, _ := newTestBook(t)
	original, owner, err := b.RemoveOrder(999)
	require.NoError(t, err)
	require.True(t, original.IsZero())
	require.Equal(t, Address{}, owner)

	_, _, err = b.RemoveOrder(40)
	require.ErrorIs(t, err, ErrMalformedID)
}

func TestRoundTrip(t *testing.T) {
	b, _ := newTestBook(t)
	id, err := b.AddOrder(42, amt(9), addr(7))
	require.NoError(t, err)

	remaining, owner, err := b.GetOrderInfo(id)
	require.NoError(t, err)
	requireAmt(t, 9, remaining)
	require.Equal(t, addr(7), owner)

	_, _, err = b.RemoveOrder(id)
	require.NoError(t, err)
	remaining, owner, err = b.GetOrderInfo(id)
	require.NoError(t, err)
	require.True(t, remaining.IsZero())
	require.Equal(t, Address{}, owner)
}

func TestAssembleOrderbookReturnsCheapestFirst(t *testing.T) {
	b, _ := newTestBook(t)
	_, err := b.AddOrder(30, amt(4), addr(3))
	require.NoError(t, err)
	_, err = b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	_, err = b.AddOrder(20, amt(6), addr(2))
	require.NoError(t, err)

	views, err := b.AssembleOrderbook(2)
	require.NoError(t, err)
	require.Len(t, views, 2)
	requireAmt(t, 5, views[0].Remaining)
	require.Equal(t, addr(1), views[0].Owner)
	requireAmt(t, 6, views[1].Remaining)
	require.Equal(t, addr(2), views[1].Owner)
}

func TestClaimExecutedAfterPartialFill(t *testing.T) {
	b, ms := newTestBook(t)
	id, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)

	_, _, _, err = b.ExecuteRight(10, amt(2))
	require.NoError(t, err)

	executed, remaining, err := b.ClaimExecuted(id)
	require.NoError(t, err)
	requireAmt(t, 2, executed)
	requireAmt(t, 3, remaining)

	// The claim rebases the leaf; a second claim finds nothing new.
	executed, remaining, err = b.ClaimExecuted(id)
	require.NoError(t, err)
	require.True(t, executed.IsZero())
	requireAmt(t, 3, remaining)
	checkAggregates(t, ms)
}

func TestClaimExecutedNothingToClaim(t *testing.T) {
	b, _ := newTestBook(t)
	id, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)

	executed, remaining, err := b.ClaimExecuted(id)
	require.NoError(t, err)
	require.True(t, executed.IsZero())
	requireAmt(t, 5, remaining)

	executed, remaining, err = b.ClaimExecuted(9999)
	require.NoError(t, err)
	require.True(t, executed.IsZero())
	require.True(t, remaining.IsZero())
}

// An order the cursor skipped (its gap from the best was not
// representable in the successor bitmap) is unreachable from the best
// path; claiming it settles the whole remainder and clears the leaf.
func TestClaimSkippedOrderDeemedExecuted(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	id, err := b.AddOrder(20, amt(7), addr(2))
	require.NoError(t, err)

	_, _, err = b.RemoveOrder(21)
	require.NoError(t, err)
	// Gap 20 was never recorded, so the cursor cleared even though the
	// second order is live.
	require.Equal(t, Cursor{Best: 0, Bits: 1}, bestOf(t, ms))

	executed, remaining, err := b.ClaimExecuted(id)
	require.NoError(t, err)
	requireAmt(t, 7, executed)
	require.True(t, remaining.IsZero())
	require.Empty(t, ms.Leaves())
	checkAggregates(t, ms)
}

func TestPreviewExecuteRightDoesNotMutate(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(5), addr(1))
	require.NoError(t, err)
	_, err = b.AddOrder(10, amt(3), addr(2))
	require.NoError(t, err)

	before := bestOf(t, ms)
	quoted, owner, err := b.PreviewExecuteRight(20, amt(6))
	require.NoError(t, err)
	requireAmt(t, 6, quoted)
	require.Equal(t, addr(1), owner, "preview reports the current best's owner")
	require.Equal(t, before, bestOf(t, ms))

	executed, _, _, err := b.ExecuteRight(20, amt(6))
	require.NoError(t, err)
	require.Equal(t, quoted.String(), executed.String())
}

func TestAddOrderRejectsBadInput(t *testing.T) {
	b, _ := newTestBook(t)
	_, err := b.AddOrder(1<<63, amt(1), addr(1))
	require.ErrorIs(t, err, ErrPriceOverflow)

	_, err = b.AddOrder(10, amt(0), addr(1))
	require.ErrorIs(t, err, ErrZeroAmount)

	huge := new(uint256.Int).Not(uint256.NewInt(0))
	_, err = b.AddOrder(3, huge, addr(1))
	require.ErrorIs(t, err, ErrValueOverflow)
}

func TestTraderRegistryIsStable(t *testing.T) {
	b, ms := newTestBook(t)
	_, err := b.AddOrder(10, amt(1), addr(9))
	require.NoError(t, err)
	_, err = b.AddOrder(11, amt(1), addr(9))
	require.NoError(t, err)
	_, err = b.AddOrder(12, amt(1), addr(4))
	require.NoError(t, err)

	id9, err := ms.TraderID(addr(9))
	require.NoError(t, err)
	id4, err := ms.TraderID(addr(4))
	require.NoError(t, err)
	require.Equal(t, uint64(1), id9)
	require.Equal(t, uint64(2), id4)

	back, err := ms.TraderAddress(id4)
	require.NoError(t, err)
	require.Equal(t, addr(4), back)
}

func TestAggregatesStayExactUnderRandomOps(t *testing.T) {
	b, ms := newTestBook(t)
	rng := rand.New(rand.NewSource(7))
	var live []uint64
	for i := 0; i < 400; i++ {
		switch rng.Intn(4) {
		case 0, 1:
			price := uint64(rng.Intn(40) + 1)
			size := uint64(rng.Intn(9) + 1)
			id, err := b.AddOrder(price, amt(size), addr(byte(rng.Intn(5)+1)))
			require.NoError(t, err)
			live = append(live, id)
		case 2:
			_, _, _, err := b.ExecuteRight(uint64(rng.Intn(40)+1), amt(uint64(rng.Intn(12)+1)))
			require.NoError(t, err)
		default:
			if len(live) > 0 {
				idx := rng.Intn(len(live))
				_, _, err := b.RemoveOrder(live[idx])
				require.NoError(t, err)
				live = append(live[:idx], live[idx+1:]...)
			}
		}
		checkAggregates(t, ms)
	}
}

// Best-offer minimality over insert/execute sequences: the cursor
// always rests on the minimum live identifier, or zero when the book
// is empty.
func TestBestOfferMinimality(t *testing.T) {
	b, ms := newTestBook(t)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		if rng.Intn(3) > 0 {
			price := uint64(rng.Intn(30) + 1)
			_, err := b.AddOrder(price, amt(uint64(rng.Intn(5)+1)), addr(1))
			require.NoError(t, err)
		} else {
			_, _, _, err := b.ExecuteRight(31, amt(uint64(rng.Intn(8)+1)))
			require.NoError(t, err)
		}

		min := uint64(0)
		for id := range ms.Leaves() {
			if min == 0 || id < min {
				min = id
			}
		}
		require.Equal(t, min, bestOf(t, ms).Best)
	}
}
