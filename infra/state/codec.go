package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ruquant/karoot-singapore/domain/book"
)

// Key prefixes. Leaf and branch keys carry the identifier big-endian so
// pebble iterates them in identifier order.
const (
	prefixLeaf   = 'l'
	prefixBranch = 'b'
	prefixAddr   = 't' // address -> trader id
	prefixTrader = 'T' // trader id -> address
)

var (
	keyCursor    = []byte("m/cursor")
	keyCounters  = []byte("m/counters")
	keyTraderSeq = []byte("m/traderseq")
	keyApplied   = []byte("m/applied")
)

const (
	leafLen     = 8 + 32 + 32 + 32
	branchLen   = 8 + 8 + 32 + 32
	cursorLen   = 16
	countersLen = 16
)

func idKey(prefix byte, id uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefix
	binary.BigEndian.PutUint64(k[1:], id)
	return k
}

func addrKey(a book.Address) []byte {
	k := make([]byte, 1+len(a))
	k[0] = prefixAddr
	copy(k[1:], a[:])
	return k
}

func encodeLeaf(l book.Leaf) []byte {
	buf := make([]byte, leafLen)
	binary.BigEndian.PutUint64(buf[0:8], l.Trader)
	rem := l.Remaining.Bytes32()
	org := l.Original.Bytes32()
	val := l.OriginalValue.Bytes32()
	copy(buf[8:40], rem[:])
	copy(buf[40:72], org[:])
	copy(buf[72:104], val[:])
	return buf
}

func decodeLeaf(b []byte) (book.Leaf, error) {
	if len(b) != leafLen {
		return book.Leaf{}, fmt.Errorf("state: leaf record length %d", len(b))
	}
	var l book.Leaf
	l.Trader = binary.BigEndian.Uint64(b[0:8])
	l.Remaining.SetBytes(b[8:40])
	l.Original.SetBytes(b[40:72])
	l.OriginalValue.SetBytes(b[72:104])
	return l, nil
}

func encodeBranch(br book.Branch) []byte {
	buf := make([]byte, branchLen)
	binary.BigEndian.PutUint64(buf[0:8], br.Left)
	binary.BigEndian.PutUint64(buf[8:16], br.Right)
	sh := br.Shares.Bytes32()
	val := br.Value.Bytes32()
	copy(buf[16:48], sh[:])
	copy(buf[48:80], val[:])
	return buf
}

func decodeBranch(b []byte) (book.Branch, error) {
	if len(b) != branchLen {
		return book.Branch{}, fmt.Errorf("state: branch record length %d", len(b))
	}
	var br book.Branch
	br.Left = binary.BigEndian.Uint64(b[0:8])
	br.Right = binary.BigEndian.Uint64(b[8:16])
	br.Shares.SetBytes(b[16:48])
	br.Value.SetBytes(b[48:80])
	return br, nil
}

func encodeCursor(c book.Cursor) []byte {
	buf := make([]byte, cursorLen)
	binary.BigEndian.PutUint64(buf[0:8], c.Best)
	binary.BigEndian.PutUint64(buf[8:16], c.Bits)
	return buf
}

func decodeCursor(b []byte) (book.Cursor, error) {
	if len(b) != cursorLen {
		return book.Cursor{}, fmt.Errorf("state: cursor record length %d", len(b))
	}
	return book.Cursor{
		Best: binary.BigEndian.Uint64(b[0:8]),
		Bits: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

func encodeCounters(c book.Counters) []byte {
	buf := make([]byte, countersLen)
	binary.BigEndian.PutUint64(buf[0:8], c.HighestAllocated)
	binary.BigEndian.PutUint64(buf[8:16], c.LastFree)
	return buf
}

func decodeCounters(b []byte) (book.Counters, error) {
	if len(b) != countersLen {
		return book.Counters{}, fmt.Errorf("state: counters record length %d", len(b))
	}
	return book.Counters{
		HighestAllocated: binary.BigEndian.Uint64(b[0:8]),
		LastFree:         binary.BigEndian.Uint64(b[8:16]),
	}, nil
}
