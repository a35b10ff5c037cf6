package coordinator

import (
	"bytes"
	"strings"
	"testing"

	"quorumkv/internal/datamanager"
	"quorumkv/internal/logging"
	"quorumkv/internal/txn"
)

func newTestCoordinator() *Coordinator {
	dm := datamanager.New(10, 20, logging.New("test"))
	return New(dm, logging.New("test"))
}

// TestS1SimpleCommit: begin(T1); W(T1,x1,101); end(T1); dump(x1) -> x1=101 on site 2.
func TestS1SimpleCommit(t *testing.T) {
	c := newTestCoordinator()
	c.Advance()
	c.Begin(1)
	c.Advance()
	c.Write(1, "x1", 101)
	c.Advance()
	c.End(1)

	if got := c.FinalOutcomes()[1]; got != OutcomeCommit {
		t.Fatalf("expected T1 to commit, got %v", got)
	}
	var buf bytes.Buffer
	c.Advance()
	c.Dump(&buf, DumpVariable, "x1", 0)
	if !strings.Contains(buf.String(), "site 2: 101") {
		t.Errorf("expected x1=101 on site 2, got: %s", buf.String())
	}
}

// TestS2ReadWriteBlockingThenCommit exercises T2's read blocking on
// T1's write lock, then retrying after T1 commits.
func TestS2ReadWriteBlockingThenCommit(t *testing.T) {
	c := newTestCoordinator()
	c.Advance()
	c.Begin(1)
	c.Advance()
	c.Begin(2)
	c.Advance()
	c.Write(1, "x2", 202)
	c.Advance()
	c.Read(2, "x2")

	t2, _ := c.Transaction(2)
	if t2.Status != txn.StatusReadBlocked {
		t.Fatalf("expected T2 to be read-blocked on T1, got status %v", t2.Status)
	}

	c.Advance()
	c.End(1)
	if got := c.FinalOutcomes()[1]; got != OutcomeCommit {
		t.Fatalf("expected T1 to commit, got %v", got)
	}

	c.Advance()
	c.End(2)
	if got := c.FinalOutcomes()[2]; got != OutcomeCommit {
		t.Fatalf("expected T2 to commit after retry, got %v", got)
	}
}

// TestS3DeadlockResolution: T1 and T2 form a wait-for cycle; the
// younger transaction (larger startTick) is aborted.
func TestS3DeadlockResolution(t *testing.T) {
	c := newTestCoordinator()
	c.Advance()
	c.Begin(1)
	c.Advance()
	c.Begin(2)
	c.Advance()
	c.Write(1, "x1", 11)
	c.Advance()
	c.Write(2, "x2", 22)
	c.Advance()
	c.Write(1, "x2", 999) // T1 blocks on T2
	c.Advance()
	c.Write(2, "x1", 888) // T2 blocks on T1: cycle

	c.Advance() // next tick's deadlock scan must resolve the cycle

	_, t1Alive := c.Transaction(1)
	_, t2Alive := c.Transaction(2)
	if t1Alive == t2Alive {
		t.Fatalf("expected exactly one of T1/T2 to survive the deadlock scan")
	}
	if !t1Alive {
		t.Fatalf("expected T1 (older, smaller startTick) to survive; T2 is younger and should be the victim")
	}
	if got := c.FinalOutcomes()[2]; got != OutcomeAbort {
		t.Errorf("expected T2 to be recorded as aborted, got %v", got)
	}
}

// TestS4AvailableCopies: a write during a site failure updates only
// the running replicas, and a recovered site stays unready until the
// next write touches it there.
func TestS4AvailableCopies(t *testing.T) {
	c := newTestCoordinator()
	c.Advance()
	c.Begin(1)
	c.Advance()
	c.Fail(2)
	c.Advance()
	c.Write(1, "x2", 99)
	c.Advance()
	c.End(1)
	if got := c.FinalOutcomes()[1]; got != OutcomeCommit {
		t.Fatalf("expected T1 to commit, got %v", got)
	}

	c.Advance()
	c.Recover(2)

	site2 := c.DataManager().Site(2)
	if site2.Ready("x2") {
		t.Errorf("site 2 should not be ready for x2 immediately after recovery")
	}

	c.Advance()
	c.Begin(2)
	c.Advance()
	c.Read(2, "x2")
	t2, _ := c.Transaction(2)
	if t2.Status != txn.StatusNormal {
		t.Fatalf("expected T2's read to succeed from a running replica, got status %v", t2.Status)
	}
}

// TestS5ReadOnlySnapshot: a read-only transaction sees the pre-write
// value frozen at its begin, even after a later committing writer.
func TestS5ReadOnlySnapshot(t *testing.T) {
	c := newTestCoordinator()
	c.Advance()
	c.BeginReadOnly(1)
	c.Advance()
	c.Begin(2)
	c.Advance()
	c.Write(2, "x4", 400)
	c.Advance()
	c.End(2)
	if got := c.FinalOutcomes()[2]; got != OutcomeCommit {
		t.Fatalf("expected T2 to commit, got %v", got)
	}

	c.Advance()
	c.Read(1, "x4")
	t1, alive := c.Transaction(1)
	if !alive {
		t.Fatalf("T1 should still be alive to observe its snapshot read")
	}
	if got := t1.Snapshot["x4"]; got != 40 {
		t.Errorf("expected T1's snapshot to hold the pre-write value 40 for x4, got %d", got)
	}
}

// TestS6TouchedSiteAbortOnFail: a transaction that touched a site
// which later fails before it ends must abort.
func TestS6TouchedSiteAbortOnFail(t *testing.T) {
	c := newTestCoordinator()
	c.Advance()
	c.Begin(1)
	c.Advance()
	c.Write(1, "x1", 1)
	c.Advance()
	c.Fail(2) // x1's host site
	c.Advance()
	c.End(1)

	if got := c.FinalOutcomes()[1]; got != OutcomeAbort {
		t.Fatalf("expected T1 to abort after its touched site failed, got %v", got)
	}
}
