package service

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"github.com/ruquant/karoot-singapore/domain/book"
	"github.com/ruquant/karoot-singapore/infra/outbox"
	"github.com/ruquant/karoot-singapore/infra/sequence"
	"github.com/ruquant/karoot-singapore/infra/state"
	"github.com/ruquant/karoot-singapore/infra/wal"
	"github.com/ruquant/karoot-singapore/snapshot"
)

type testEnv struct {
	dataDir   string
	walDir    string
	outboxDir string
	snapDir   string

	svc *BookService
	db  *state.DB
	wal *wal.WAL
	ob  *outbox.Outbox
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	env := &testEnv{
		dataDir:   filepath.Join(base, "data"),
		walDir:    filepath.Join(base, "wal"),
		outboxDir: filepath.Join(base, "outbox"),
		snapDir:   filepath.Join(base, "snap"),
	}
	env.open(t)
	t.Cleanup(func() { env.close() })
	return env
}

func (e *testEnv) open(t *testing.T) {
	t.Helper()
	db, err := state.Open(e.dataDir)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	w, err := wal.Open(wal.Config{Dir: e.walDir})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	ob, err := outbox.Open(e.outboxDir)
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	e.db, e.wal, e.ob = db, w, ob
	e.svc = New(db, w, sequence.New(w.LastSeq()), ob, nil)
}

func (e *testEnv) close() {
	if e.ob != nil {
		_ = e.ob.Close()
	}
	if e.wal != nil {
		_ = e.wal.Close()
	}
	if e.db != nil {
		_ = e.db.Close()
	}
	e.db, e.wal, e.ob, e.svc = nil, nil, nil, nil
}

// reopen simulates a process restart over the same directories.
func (e *testEnv) reopen(t *testing.T) {
	t.Helper()
	e.close()
	e.open(t)
}

func owner(i byte) book.Address { return book.Address{19: i} }

func TestCommandsFlowThroughWALAndState(t *testing.T) {
	env := newTestEnv(t)
	svc := env.svc

	id1, err := svc.AddOrder(10, uint256.NewInt(5), owner(1))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	id2, err := svc.AddOrder(10, uint256.NewInt(3), owner(2))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id1 != 21 || id2 != 23 {
		t.Fatalf("ids: %d %d", id1, id2)
	}

	executed, value, who, err := svc.ExecuteRight(10, uint256.NewInt(6))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Uint64() != 6 || value.Uint64() != 60 || who != owner(2) {
		t.Fatalf("execute result: %s %s %x", executed.String(), value.String(), who)
	}

	remaining, who, err := svc.GetOrderInfo(id2)
	if err != nil || remaining.Uint64() != 2 || who != owner(2) {
		t.Fatalf("info: %s %x %v", remaining.String(), who, err)
	}

	claimed, left, err := svc.ClaimExecuted(id2)
	if err != nil || claimed.Uint64() != 1 || left.Uint64() != 2 {
		t.Fatalf("claim: %s %s %v", claimed.String(), left.String(), err)
	}

	if env.wal.LastSeq() != 4 {
		t.Fatalf("wal seq = %d, want 4", env.wal.LastSeq())
	}
	applied, err := env.db.AppliedSeq()
	if err != nil || applied != 4 {
		t.Fatalf("applied = %d %v", applied, err)
	}
}

func TestExecutionLandsInOutbox(t *testing.T) {
	env := newTestEnv(t)
	svc := env.svc

	if _, err := svc.AddOrder(10, uint256.NewInt(5), owner(1)); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := svc.ExecuteRight(10, uint256.NewInt(2)); err != nil {
		t.Fatal(err)
	}

	var fills []outbox.Fill
	err := env.ob.ScanState(outbox.StateNew, func(f outbox.Fill) error {
		fills = append(fills, f)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	var shares uint256.Int
	shares.SetBytes(fills[0].Shares[:])
	if fills[0].Seq != 2 || fills[0].OrderID != 21 || shares.Uint64() != 2 {
		t.Fatalf("fill: %+v", fills[0])
	}
}

func TestRestartReplaysNothingWhenClean(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.AddOrder(10, uint256.NewInt(5), owner(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.AddOrder(20, uint256.NewInt(7), owner(2)); err != nil {
		t.Fatal(err)
	}

	env.reopen(t)
	if err := env.svc.ReplayFromWAL(env.walDir); err != nil {
		t.Fatalf("replay: %v", err)
	}

	views, err := env.svc.AssembleOrderbook(10)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(views) != 2 || views[0].Remaining.Uint64() != 5 || views[1].Remaining.Uint64() != 7 {
		t.Fatalf("views: %+v", views)
	}
	id, _, _, err := env.svc.BestOffer()
	if err != nil || id != 21 {
		t.Fatalf("best = %d %v", id, err)
	}
}

func TestReplayAppliesRecordsMissingFromState(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.AddOrder(10, uint256.NewInt(5), owner(1)); err != nil {
		t.Fatal(err)
	}

	// A crash between WAL append and state commit leaves a durable
	// record the store has never seen.
	rec := wal.NewRecord(wal.RecordAdd)
	rec.Price = 20
	amount := uint256.NewInt(7)
	rec.Amount = amount.Bytes32()
	rec.Owner = owner(2)
	if _, err := env.wal.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	env.reopen(t)
	if err := env.svc.ReplayFromWAL(env.walDir); err != nil {
		t.Fatalf("replay: %v", err)
	}

	remaining, who, err := env.svc.GetOrderInfo(41)
	if err != nil || remaining.Uint64() != 7 || who != owner(2) {
		t.Fatalf("replayed order: %s %x %v", remaining.String(), who, err)
	}
	next, err := env.svc.AddOrder(30, uint256.NewInt(1), owner(3))
	if err != nil {
		t.Fatalf("add after replay: %v", err)
	}
	if next != 61 {
		t.Fatalf("id after replay = %d", next)
	}
}

func TestSnapshotRestoreSeedsFreshState(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.AddOrder(10, uint256.NewInt(5), owner(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.AddOrder(20, uint256.NewInt(7), owner(2)); err != nil {
		t.Fatal(err)
	}
	// Partial fill so the snapshot carries Remaining != Original.
	if _, _, _, err := env.svc.ExecuteRight(10, uint256.NewInt(2)); err != nil {
		t.Fatal(err)
	}

	env.svc.snapshotOnce(&snapshot.Writer{Dir: env.snapDir}, env.walDir)

	// Lose the state store, keep snapshot and WAL.
	env.close()
	if err := os.RemoveAll(env.dataDir); err != nil {
		t.Fatal(err)
	}
	env.open(t)

	if err := env.svc.RestoreFromSnapshot(env.snapDir); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := env.svc.ReplayFromWAL(env.walDir); err != nil {
		t.Fatalf("replay: %v", err)
	}

	remaining, who, err := env.svc.GetOrderInfo(21)
	if err != nil || remaining.Uint64() != 3 || who != owner(1) {
		t.Fatalf("order 21: %s %x %v", remaining.String(), who, err)
	}
	remaining, who, err = env.svc.GetOrderInfo(41)
	if err != nil || remaining.Uint64() != 7 || who != owner(2) {
		t.Fatalf("order 41: %s %x %v", remaining.String(), who, err)
	}
	id, best, _, err := env.svc.BestOffer()
	if err != nil || id != 21 || best.Uint64() != 3 {
		t.Fatalf("best: %d %s %v", id, best.String(), err)
	}
}

func TestSnapshotStampsAppliedNotIssuedSequence(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.AddOrder(10, uint256.NewInt(5), owner(1)); err != nil {
		t.Fatal(err)
	}

	// An in-flight command: sequence issued, record durable, state
	// commit not yet landed.
	rec := wal.NewRecord(wal.RecordAdd)
	rec.Seq = env.svc.seq.Next()
	rec.Price = 20
	amount := uint256.NewInt(7)
	rec.Amount = amount.Bytes32()
	rec.Owner = owner(2)
	if _, err := env.wal.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A snapshot tick in that window must stamp the applied
	// watermark, not the issued sequence.
	env.svc.snapshotOnce(&snapshot.Writer{Dir: env.snapDir}, env.walDir)

	snap, err := snapshot.Load(env.snapDir)
	if err != nil || snap == nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Seq != 1 {
		t.Fatalf("snapshot seq = %d, want 1", snap.Seq)
	}

	// Lose the state store; the in-flight record must survive
	// restore plus replay.
	env.close()
	if err := os.RemoveAll(env.dataDir); err != nil {
		t.Fatal(err)
	}
	env.open(t)
	if err := env.svc.RestoreFromSnapshot(env.snapDir); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := env.svc.ReplayFromWAL(env.walDir); err != nil {
		t.Fatalf("replay: %v", err)
	}

	remaining, who, err := env.svc.GetOrderInfo(41)
	if err != nil || remaining.Uint64() != 7 || who != owner(2) {
		t.Fatalf("order 41: %s %x %v", remaining.String(), who, err)
	}
	applied, err := env.db.AppliedSeq()
	if err != nil || applied != 2 {
		t.Fatalf("applied = %d %v", applied, err)
	}
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	env := newTestEnv(t)

	const n = 16
	var (
		wg   sync.WaitGroup
		ids  [n]uint64
		errs [n]error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = env.svc.AddOrder(uint64(10+i), uint256.NewInt(1), owner(byte(i+1)))
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("add %d: %v", i, errs[i])
		}
		if want := uint64(2*(10+i) + 1); ids[i] != want {
			t.Fatalf("id for price %d = %d, want %d", 10+i, ids[i], want)
		}
		if seen[ids[i]] {
			t.Fatalf("duplicate id %d", ids[i])
		}
		seen[ids[i]] = true
	}

	views, err := env.svc.AssembleOrderbook(n + 1)
	if err != nil || len(views) != n {
		t.Fatalf("orderbook: %d %v", len(views), err)
	}
	id, _, _, err := env.svc.BestOffer()
	if err != nil || id != 21 {
		t.Fatalf("best = %d %v", id, err)
	}
	applied, err := env.db.AppliedSeq()
	if err != nil || applied != n {
		t.Fatalf("applied = %d %v", applied, err)
	}
	if env.wal.LastSeq() != n {
		t.Fatalf("wal seq = %d", env.wal.LastSeq())
	}
}

func TestAmountValidationAtTheEdge(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.AddOrder(10, uint256.NewInt(0), owner(1)); !errors.Is(err, book.ErrZeroAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 129)
	if _, err := env.svc.AddOrder(10, big, owner(1)); !errors.Is(err, ErrAmountRange) {
		t.Fatalf("oversized amount: %v", err)
	}
	if _, _, _, err := env.svc.ExecuteRight(10, big); !errors.Is(err, ErrAmountRange) {
		t.Fatalf("oversized execute: %v", err)
	}
	// Nothing reached the log.
	if env.wal.LastSeq() != 0 {
		t.Fatalf("wal seq = %d", env.wal.LastSeq())
	}
}
