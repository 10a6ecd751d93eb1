package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/ruquant/karoot-singapore/domain/book"
)

// walkLimit bounds how many orders one snapshot can carry.
const walkLimit = 1 << 20

type Writer struct {
	Dir string
}

// Write captures every order reachable from the best offer and
// replaces snapshot.bin atomically via a rename.
func (w *Writer) Write(seq uint64, b *book.Book) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	dumps, err := b.Orders(walkLimit)
	if err != nil {
		return err
	}
	s := Snapshot{
		Seq:     seq,
		Created: time.Now(),
		Orders:  make([]OrderEntry, 0, len(dumps)),
	}
	for _, d := range dumps {
		s.Orders = append(s.Orders, entryOf(d))
	}

	tmp := filepath.Join(w.Dir, "snapshot.tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.Dir, "snapshot.bin"))
}
