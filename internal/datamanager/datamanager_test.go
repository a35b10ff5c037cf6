package datamanager

import (
	"strings"
	"testing"

	"quorumkv/internal/logging"
	"quorumkv/internal/store"
	"quorumkv/internal/txn"
)

func newTestDM() *DataManager {
	return New(10, 20, logging.New("test"))
}

func TestReadWriteRoundTrip(t *testing.T) {
	dm := newTestDM()
	t1 := txn.New(1, 0, false)

	outcome := dm.Write(1, "x2", nil)
	if outcome.Kind != txn.Granted {
		t.Fatalf("expected write to be granted, got %v", outcome.Kind)
	}
	if len(outcome.Sites) != 10 {
		t.Errorf("x2 is replicated, expected 10 touched sites, got %d", len(outcome.Sites))
	}
	t1.RecordWrite("x2", 202, outcome.Sites)
	dm.Commit(t1.PendingWrites)
	dm.ReleaseLocks(1, t1.HeldLocks)

	t2 := txn.New(2, 0, false)
	readOutcome := dm.Read(t2, "x2")
	if readOutcome.Kind != txn.Granted {
		t.Fatalf("expected read to be granted, got %v", readOutcome.Kind)
	}
	if readOutcome.Value != 202 {
		t.Errorf("expected committed value 202, got %d", readOutcome.Value)
	}
}

func TestWriteBlockedByOtherWriter(t *testing.T) {
	dm := newTestDM()
	if outcome := dm.Write(1, "x2", nil); outcome.Kind != txn.Granted {
		t.Fatalf("txn 1 should acquire the write lock, got %v", outcome.Kind)
	}
	outcome := dm.Write(2, "x2", nil)
	if outcome.Kind != txn.BlockedByTxns {
		t.Fatalf("txn 2 should block on txn 1's write lock, got %v", outcome.Kind)
	}
	if len(outcome.Blockers) != 1 || outcome.Blockers[0] != 1 {
		t.Errorf("expected blocker [1], got %v", outcome.Blockers)
	}
}

func TestWritePromotionDeniedWhenTxnIsBlocking(t *testing.T) {
	dm := newTestDM()
	dm.Read(txn.New(1, 0, false), "x2") // txn 1 takes the sole READ lock at site 1, the first running ready host

	blockTable := map[int][]int{1: {2}} // txn 2 is waiting on txn 1 elsewhere
	outcome := dm.Write(1, "x2", blockTable)
	if outcome.Kind != txn.BlockedByTxns {
		t.Fatalf("promotion should be denied when another txn waits on the promoter, got %v", outcome.Kind)
	}
}

func TestWritePromotionAllowedWhenSoleHolder(t *testing.T) {
	dm := newTestDM()
	dm.Read(txn.New(1, 0, false), "x2")
	outcome := dm.Write(1, "x2", nil)
	if outcome.Kind != txn.Granted {
		t.Fatalf("expected promotion to succeed, got %v", outcome.Kind)
	}
}

func TestWriteBlockedBySiteWhenNoHostRunning(t *testing.T) {
	dm := newTestDM()
	host := store.HostSite(1) // x1 is non-replicated; this is its sole host
	dm.Fail(host)
	outcome := dm.Write(1, "x1", nil)
	if outcome.Kind != txn.BlockedBySite {
		t.Fatalf("expected BlockedBySite, got %v", outcome.Kind)
	}
}

func TestReadOnlySnapshotFreezesAtBegin(t *testing.T) {
	dm := newTestDM()
	writer := txn.New(1, 0, false)
	w := dm.Write(1, "x4", nil)
	writer.RecordWrite("x4", 400, w.Sites)

	// Reader begins (snapshot generated) before the write commits.
	reader := txn.New(2, 0, true)
	dm.GenerateSnapshot(reader)

	dm.Commit(writer.PendingWrites)

	first := dm.Read(reader, "x4")
	if first.Kind != txn.Granted || first.Value != 40 {
		t.Fatalf("expected pre-commit snapshot value 40, got kind=%v value=%d", first.Kind, first.Value)
	}

	second := dm.Read(reader, "x4")
	if second.Value != 40 {
		t.Errorf("snapshot must stay frozen at 40 even after a later commit, got %d", second.Value)
	}
}

func TestReadOnlySnapshotMissAbortsUnconditionally(t *testing.T) {
	dm := newTestDM()
	reader := txn.New(2, 0, true)
	host := store.HostSite(1)
	dm.Fail(host)
	dm.GenerateSnapshot(reader) // x1 absent: its only host is down at begin

	outcome := dm.Read(reader, "x1")
	if outcome.Kind != txn.AbortSnapshotMiss {
		t.Fatalf("expected AbortSnapshotMiss, got %v", outcome.Kind)
	}

	dm.Recover(host, 1) // recovering later must not retroactively populate the snapshot
	outcome = dm.Read(reader, "x1")
	if outcome.Kind != txn.AbortSnapshotMiss {
		t.Errorf("a frozen snapshot miss must not be retried after recovery, got %v", outcome.Kind)
	}
}

func TestFailClearsLocksAndReadiness(t *testing.T) {
	dm := newTestDM()
	dm.Read(txn.New(1, 0, false), "x2")
	dm.Fail(1)
	site := dm.Site(1)
	if site.Running() {
		t.Fatalf("site 1 should be down")
	}
	if !site.Lock("x2").Free() {
		t.Errorf("fail should clear locks")
	}
	if site.Ready("x2") {
		t.Errorf("fail should mark hosted variables unready")
	}
}

func TestReleaseLocksReportsNewlyFreeVariables(t *testing.T) {
	dm := newTestDM()
	outcome := dm.Write(1, "x2", nil)
	held := map[string]txn.HeldLockKind{"x2": txn.HeldWrite}
	freed := dm.ReleaseLocks(1, held)
	if len(freed) != 1 || freed[0] != "x2" {
		t.Errorf("expected x2 to be reported newly free, got %v", freed)
	}
	_ = outcome
}

func TestDumpAllListsEverySite(t *testing.T) {
	dm := newTestDM()
	var buf strings.Builder
	dm.Dump(&buf)
	out := buf.String()
	if !strings.Contains(out, "site 1 -") || !strings.Contains(out, "site 10 -") {
		t.Errorf("expected dump to list sites 1 and 10, got: %s", out)
	}
}
