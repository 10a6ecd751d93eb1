// Package snapshot persists point-in-time images of the resting-order
// set. A snapshot pins the WAL sequence it was taken at, so startup
// loads the image and replays only the records after it.
package snapshot

import (
	"time"

	"github.com/ruquant/karoot-singapore/domain/book"
)

type Snapshot struct {
	Seq     uint64
	Created time.Time
	Orders  []OrderEntry
}

// OrderEntry is one live resting order. Quantities travel big-endian
// so the gob image is independent of the word layout of uint256.
type OrderEntry struct {
	ID            uint64
	Owner         book.Address
	Remaining     [32]byte
	Original      [32]byte
	OriginalValue [32]byte
}

func entryOf(d book.OrderDump) OrderEntry {
	return OrderEntry{
		ID:            d.ID,
		Owner:         d.Owner,
		Remaining:     d.Remaining.Bytes32(),
		Original:      d.Original.Bytes32(),
		OriginalValue: d.OriginalValue.Bytes32(),
	}
}
