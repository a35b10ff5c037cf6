package txn

// OutcomeKind tags the result of a DataManager read or write attempt,
// replacing the original's overloaded sentinel values (-1 site-wait, -2
// snapshot-miss-abort, or a list of blocking transaction ids all
// returned through the same channel) with an explicit sum type, per the
// redesign called for in spec.md §9.
type OutcomeKind int

const (
	// Granted: the operation succeeded at the given sites.
	Granted OutcomeKind = iota
	// BlockedByTxns: the operation is blocked on other live transactions.
	BlockedByTxns
	// BlockedBySite: the operation found no running, ready site to serve it.
	BlockedBySite
	// AbortSnapshotMiss: a read-only transaction read a variable that is
	// absent from the snapshot frozen at its begin; it must abort.
	AbortSnapshotMiss
)

// Outcome is the result of DataManager.Read or DataManager.Write.
type Outcome struct {
	Kind     OutcomeKind
	Sites    []int // populated when Kind == Granted
	Blockers []int // populated when Kind == BlockedByTxns
	Value    int   // populated by Read when Kind == Granted
}

// Grant builds a Granted outcome for the given sites.
func Grant(sites []int) Outcome {
	return Outcome{Kind: Granted, Sites: sites}
}

// GrantRead builds a Granted read outcome carrying the value observed.
func GrantRead(sites []int, value int) Outcome {
	return Outcome{Kind: Granted, Sites: sites, Value: value}
}

// BlockOnTxns builds a BlockedByTxns outcome.
func BlockOnTxns(blockers []int) Outcome {
	return Outcome{Kind: BlockedByTxns, Blockers: blockers}
}

// BlockOnSite builds a BlockedBySite outcome.
func BlockOnSite() Outcome {
	return Outcome{Kind: BlockedBySite}
}

// AbortSnapshot builds an AbortSnapshotMiss outcome.
func AbortSnapshot() Outcome {
	return Outcome{Kind: AbortSnapshotMiss}
}
