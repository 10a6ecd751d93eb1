// Package state persists the order index in pebble. Every key holds a
// fixed-width big-endian record so that a replayed or restored store is
// byte-identical to the original, and every engine operation runs on an
// indexed batch that commits only if the operation succeeds.
package state

import (
	"errors"
	"io"

	"github.com/cockroachdb/pebble"

	"github.com/ruquant/karoot-singapore/domain/book"
)

type DB struct {
	pdb *pebble.DB
}

func Open(dir string) (*DB, error) {
	pdb, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &DB{pdb: pdb}, nil
}

func (d *DB) Close() error {
	return d.pdb.Close()
}

// kv is the slice of the pebble API the store needs. Both *pebble.DB
// and *pebble.Batch satisfy it, which is what lets one Store
// implementation serve reads and batched writes alike.
type kv interface {
	Get(key []byte) ([]byte, io.Closer, error)
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

// Update runs fn against an indexed batch and commits it with a sync
// write barrier. If fn fails the batch is discarded and the store is
// untouched; a half-applied operation can never become visible.
func (d *DB) Update(fn func(book.Store) error) error {
	batch := d.pdb.NewIndexedBatch()
	if err := fn(&kvStore{kv: batch}); err != nil {
		_ = batch.Close()
		return err
	}
	return batch.Commit(pebble.Sync)
}

// readonlyKV serves a point-in-time pebble snapshot through the kv
// interface. Writes are rejected; a view must never mutate.
type readonlyKV struct {
	*pebble.Snapshot
}

var errReadOnlyView = errors.New("state: write in read-only view")

func (readonlyKV) Set([]byte, []byte, *pebble.WriteOptions) error { return errReadOnlyView }
func (readonlyKV) Delete([]byte, *pebble.WriteOptions) error      { return errReadOnlyView }

// View runs fn read-only against a point-in-time snapshot, isolated
// from commits that land while fn walks multiple keys.
func (d *DB) View(fn func(book.Store) error) error {
	snap := d.pdb.NewSnapshot()
	defer func() { _ = snap.Close() }()
	return fn(&kvStore{kv: readonlyKV{snap}})
}

// ViewAt is View plus the applied watermark captured by the same
// snapshot, so fn knows exactly which log sequence its reads reflect.
func (d *DB) ViewAt(fn func(applied uint64, st book.Store) error) error {
	snap := d.pdb.NewSnapshot()
	defer func() { _ = snap.Close() }()
	st := &kvStore{kv: readonlyKV{snap}}
	applied, err := st.appliedSeq()
	if err != nil {
		return err
	}
	return fn(applied, st)
}

// Apply is Update plus a watermark: the WAL sequence of the operation
// commits in the same batch, so after a crash the store knows exactly
// which log records it already reflects.
func (d *DB) Apply(seq uint64, fn func(book.Store) error) error {
	batch := d.pdb.NewIndexedBatch()
	st := &kvStore{kv: batch}
	if err := fn(st); err != nil {
		_ = batch.Close()
		return err
	}
	if err := st.putAppliedSeq(seq); err != nil {
		_ = batch.Close()
		return err
	}
	return batch.Commit(pebble.Sync)
}

// AppliedSeq reports the WAL sequence of the last committed operation.
func (d *DB) AppliedSeq() (uint64, error) {
	st := &kvStore{kv: d.pdb}
	return st.appliedSeq()
}
