package service

import (
	"context"
	"log"
	"time"

	"github.com/ruquant/karoot-singapore/domain/book"
	"github.com/ruquant/karoot-singapore/infra/wal"
	"github.com/ruquant/karoot-singapore/snapshot"
)

// StartSnapshotJob periodically snapshots the live book and garbage
// collects everything the snapshot supersedes: sealed WAL segments and
// acknowledged outbox fills at or below the snapshot sequence.
func (s *BookService) StartSnapshotJob(ctx context.Context, snapDir, walDir string, interval time.Duration) {
	w := &snapshot.Writer{Dir: snapDir}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.snapshotOnce(w, walDir)
			}
		}
	}()
}

func (s *BookService) snapshotOnce(w *snapshot.Writer, walDir string) {
	// Stamp with the applied watermark of the same point-in-time
	// view, never the sequencer: an in-flight command has already
	// taken its sequence before its state commit lands, and a
	// snapshot claiming that sequence would make replay skip the
	// record it does not contain.
	var seq uint64
	err := s.db.ViewAt(func(applied uint64, st book.Store) error {
		seq = applied
		return w.Write(applied, book.New(st))
	})
	if err != nil {
		log.Printf("service: snapshot at seq %d: %v", seq, err)
		return
	}

	if err := wal.PruneSegments(walDir, seq); err != nil {
		log.Printf("service: wal prune: %v", err)
	}
	if s.outbox != nil {
		if err := s.outbox.TruncateAckedUpTo(seq); err != nil {
			log.Printf("service: outbox truncate: %v", err)
		}
	}
}
