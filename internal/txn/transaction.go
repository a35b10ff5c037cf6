// Package txn holds per-transaction state: the fields a transaction
// accumulates as the coordinator drives it through reads, writes, and
// eventual commit or abort.
package txn

import "fmt"

// Status is the tagged status of a transaction, replacing the dynamic
// status field of the original with an enum (spec.md §9).
type Status int

const (
	StatusNormal Status = iota
	StatusReadBlocked
	StatusWriteBlocked
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusReadBlocked:
		return "READ_BLOCKED"
	case StatusWriteBlocked:
		return "WRITE_BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// HeldLockKind records whether a transaction's recorded interest in a
// variable is a read or a write, independent of which sites actually
// carry the corresponding store.Lock.
type HeldLockKind int

const (
	HeldRead HeldLockKind = iota
	HeldWrite
)

func (k HeldLockKind) String() string {
	if k == HeldWrite {
		return "w"
	}
	return "r"
}

// PendingWrite is a deferred write: the value to install and the sites
// that were running at write time, recorded but not applied until
// commit (spec.md §4.3).
type PendingWrite struct {
	Value         int
	SitesTargeted []int
}

// BlockedQuery buffers the operation a blocked transaction should retry
// once unblocked: a read names only the variable, a write also carries
// the value.
type BlockedQuery struct {
	Variable string
	IsWrite  bool
	Value    int
}

// Transaction is the coordinator's per-transaction record.
type Transaction struct {
	ID            int
	StartTick     int
	ReadOnly      bool
	Status        Status
	TouchedSites  map[int]struct{}
	HeldLocks     map[string]HeldLockKind
	PendingWrites map[string]PendingWrite
	LastBlocked   *BlockedQuery
	Snapshot      map[string]int // read-only transactions only
	AbortPending  bool
}

// New creates a transaction starting at startTick.
func New(id, startTick int, readOnly bool) *Transaction {
	return &Transaction{
		ID:            id,
		StartTick:     startTick,
		ReadOnly:      readOnly,
		Status:        StatusNormal,
		TouchedSites:  make(map[int]struct{}),
		HeldLocks:     make(map[string]HeldLockKind),
		PendingWrites: make(map[string]PendingWrite),
	}
}

// Touch records that the transaction read from or wrote to site.
func (t *Transaction) Touch(site int) {
	t.TouchedSites[site] = struct{}{}
}

// TouchedSiteList returns the touched sites in ascending order, for
// deterministic dumps and tests.
func (t *Transaction) TouchedSiteList() []int {
	out := make([]int, 0, len(t.TouchedSites))
	for s := range t.TouchedSites {
		out = append(out, s)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// RecordLockIfAbsent records kind for variable only if no lock kind has
// been recorded yet for it — a later read after a write (or vice versa)
// does not downgrade the recorded kind.
func (t *Transaction) RecordLockIfAbsent(variable string, kind HeldLockKind) {
	if _, ok := t.HeldLocks[variable]; !ok {
		t.HeldLocks[variable] = kind
	}
}

// RecordWrite records kind write and stashes the pending write — a
// second write to the same variable by this transaction overwrites the
// first, matching the Python dict semantics the original relied on
// (spec.md §9).
func (t *Transaction) RecordWrite(variable string, value int, sites []int) {
	t.HeldLocks[variable] = HeldWrite
	t.PendingWrites[variable] = PendingWrite{Value: value, SitesTargeted: sites}
}

// SetSnapshotValue populates the read-only transaction's frozen view.
func (t *Transaction) SetSnapshotValue(variable string, value int) {
	if t.Snapshot == nil {
		t.Snapshot = make(map[string]int)
	}
	t.Snapshot[variable] = value
}

// ClearSnapshot drops the snapshot back to its unbuilt, nil state.
func (t *Transaction) ClearSnapshot() {
	t.Snapshot = nil
}

// String renders a one-line human-readable status, in the spirit of the
// original's dump_transaction_status (spec.md §4, supplemented feature).
func (t *Transaction) String() string {
	kind := "rw"
	if t.ReadOnly {
		kind = "ro"
	}
	return fmt.Sprintf("T%d\ttype: %s\t|\tstart @ %d\t|\tstatus: %s\t|\ttouched: %v\t|\tlocked: %v",
		t.ID, kind, t.StartTick, t.Status, t.TouchedSiteList(), t.HeldLocks)
}
