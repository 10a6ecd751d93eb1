package state

import (
	"encoding/binary"
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/ruquant/karoot-singapore/domain/book"
)

// kvStore adapts a pebble handle to book.Store. A missing key reads as
// the zero record, which is exactly the absence semantics the index
// arithmetic assumes.
type kvStore struct {
	kv kv
}

var _ book.Store = (*kvStore)(nil)

func (s *kvStore) get(key []byte, decode func([]byte) error) error {
	val, closer, err := s.kv.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return decode(val)
}

func (s *kvStore) Leaf(id uint64) (book.Leaf, error) {
	var l book.Leaf
	err := s.get(idKey(prefixLeaf, id), func(b []byte) error {
		var derr error
		l, derr = decodeLeaf(b)
		return derr
	})
	return l, err
}

func (s *kvStore) PutLeaf(id uint64, l book.Leaf) error {
	if l.Trader == 0 {
		return s.kv.Delete(idKey(prefixLeaf, id), nil)
	}
	return s.kv.Set(idKey(prefixLeaf, id), encodeLeaf(l), nil)
}

func (s *kvStore) Branch(id uint64) (book.Branch, error) {
	var br book.Branch
	err := s.get(idKey(prefixBranch, id), func(b []byte) error {
		var derr error
		br, derr = decodeBranch(b)
		return derr
	})
	return br, err
}

func (s *kvStore) PutBranch(id uint64, br book.Branch) error {
	if br.Zero() {
		return s.kv.Delete(idKey(prefixBranch, id), nil)
	}
	return s.kv.Set(idKey(prefixBranch, id), encodeBranch(br), nil)
}

func (s *kvStore) Cursor() (book.Cursor, error) {
	var c book.Cursor
	err := s.get(keyCursor, func(b []byte) error {
		var derr error
		c, derr = decodeCursor(b)
		return derr
	})
	return c, err
}

func (s *kvStore) PutCursor(c book.Cursor) error {
	return s.kv.Set(keyCursor, encodeCursor(c), nil)
}

func (s *kvStore) Counters() (book.Counters, error) {
	var c book.Counters
	err := s.get(keyCounters, func(b []byte) error {
		var derr error
		c, derr = decodeCounters(b)
		return derr
	})
	return c, err
}

func (s *kvStore) PutCounters(c book.Counters) error {
	return s.kv.Set(keyCounters, encodeCounters(c), nil)
}

func (s *kvStore) TraderID(a book.Address) (uint64, error) {
	var id uint64
	err := s.get(addrKey(a), func(b []byte) error {
		if len(b) != 8 {
			return errors.New("state: trader id record length")
		}
		id = binary.BigEndian.Uint64(b)
		return nil
	})
	return id, err
}

func (s *kvStore) TraderAddress(id uint64) (book.Address, error) {
	var a book.Address
	err := s.get(idKey(prefixTrader, id), func(b []byte) error {
		if len(b) != len(a) {
			return errors.New("state: trader address record length")
		}
		copy(a[:], b)
		return nil
	})
	return a, err
}

func (s *kvStore) PutTrader(a book.Address, id uint64) error {
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, id)
	if err := s.kv.Set(addrKey(a), idBuf, nil); err != nil {
		return err
	}
	return s.kv.Set(idKey(prefixTrader, id), a[:], nil)
}

func (s *kvStore) TraderSeq() (uint64, error) {
	var seq uint64
	err := s.get(keyTraderSeq, func(b []byte) error {
		if len(b) != 8 {
			return errors.New("state: trader seq record length")
		}
		seq = binary.BigEndian.Uint64(b)
		return nil
	})
	return seq, err
}

func (s *kvStore) PutTraderSeq(v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return s.kv.Set(keyTraderSeq, buf, nil)
}

func (s *kvStore) appliedSeq() (uint64, error) {
	var seq uint64
	err := s.get(keyApplied, func(b []byte) error {
		if len(b) != 8 {
			return errors.New("state: applied seq record length")
		}
		seq = binary.BigEndian.Uint64(b)
		return nil
	})
	return seq, err
}

func (s *kvStore) putAppliedSeq(v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return s.kv.Set(keyApplied, buf, nil)
}
