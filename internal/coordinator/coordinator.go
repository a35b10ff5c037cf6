// Package coordinator drives the logical-time control loop: one tick
// per scripted operation, deadlock detection ahead of each operation,
// and the wait-for/blocker bookkeeping that makes retries and deadlock
// resolution possible. This is the transaction manager of spec §4.4.
package coordinator

import (
	"io"

	"quorumkv/internal/datamanager"
	"quorumkv/internal/logging"
	"quorumkv/internal/txn"
)

// siteWait is the reverse-index key (and wait-for edge target) meaning
// "blocked on site availability, not on another transaction" — kept as
// a single named sentinel rather than scattering -1 through the code,
// since the coordinator's own indices (unlike DataManager's return
// channel) are specified in spec.md §3 to carry it this way.
const siteWait = -1

// FinalOutcome is the terminal disposition of a transaction.
type FinalOutcome int

const (
	OutcomeCommit FinalOutcome = iota
	OutcomeAbort
)

func (o FinalOutcome) String() string {
	if o == OutcomeCommit {
		return "commit"
	}
	return "abort"
}

// Coordinator owns every piece of mutable simulator state: the current
// tick, every live transaction, the wait-for graph and its reverse
// index, per-variable FIFO waiter queues, site failure history, and the
// final report. It is passed explicitly wherever it's needed rather
// than reached through a package-level singleton (spec.md §9).
type Coordinator struct {
	dm  *datamanager.DataManager
	log *logging.Logger

	tick int

	transactions map[int]*txn.Transaction
	waitFor      map[int]map[int]struct{} // txnId -> set of txnId/siteWait it waits for
	blockers     map[int][]int            // txnId/siteWait -> ordered list of waiting txnId
	dataWaiters  map[string][]int         // variable -> FIFO list of waiting txnId
	failHistory  map[int][]int            // site -> ticks at which it failed

	final         map[int]FinalOutcome
	commitSummary map[string]int
}

// New creates a coordinator over an already-built DataManager.
func New(dm *datamanager.DataManager, log *logging.Logger) *Coordinator {
	return &Coordinator{
		dm:            dm,
		log:           log,
		transactions:  make(map[int]*txn.Transaction),
		waitFor:       make(map[int]map[int]struct{}),
		blockers:      make(map[int][]int),
		dataWaiters:   make(map[string][]int),
		failHistory:   make(map[int][]int),
		final:         make(map[int]FinalOutcome),
		commitSummary: make(map[string]int),
	}
}

// Tick returns the current logical clock value.
func (c *Coordinator) Tick() int { return c.tick }

// Advance runs the per-tick prelude the control loop performs ahead of
// every operation: increment the clock, scan for deadlock, then
// resurrect transactions blocked solely on site availability (the
// bound resolution of spec.md §9's first open question — resurrection
// runs once per tick rather than only on releaseLocks, for liveness).
func (c *Coordinator) Advance() {
	c.tick++
	c.detectDeadlock()
	c.resurrectSiteWaiters()
}

// Transaction exposes a live transaction by id, for tests and dump.
func (c *Coordinator) Transaction(id int) (*txn.Transaction, bool) {
	t, ok := c.transactions[id]
	return t, ok
}

// FinalOutcomes returns the commit/abort verdict recorded for every
// transaction that has ended.
func (c *Coordinator) FinalOutcomes() map[int]FinalOutcome { return c.final }

// CommitSummary returns the final committed value of every variable
// any transaction wrote, for the end-of-run report (spec.md §6).
func (c *Coordinator) CommitSummary() map[string]int { return c.commitSummary }

// DataManager exposes the underlying DataManager, for dump commands.
func (c *Coordinator) DataManager() *datamanager.DataManager { return c.dm }

// Begin starts a read-write transaction.
func (c *Coordinator) Begin(id int) {
	c.transactions[id] = txn.New(id, c.tick, false)
	c.log.Debug("begin", logging.F("txn", id), logging.F("tick", c.tick))
}

// BeginReadOnly starts a read-only transaction and immediately freezes
// its snapshot, so a commit landing before its first read can never
// leak into its view (spec.md glossary; the frozen-at-begin reading of
// the snapshot rule, see internal/datamanager.GenerateSnapshot).
func (c *Coordinator) BeginReadOnly(id int) {
	t := txn.New(id, c.tick, true)
	c.dm.GenerateSnapshot(t)
	c.transactions[id] = t
	c.log.Debug("beginRO", logging.F("txn", id), logging.F("tick", c.tick))
}

// Read services R(Ti, xk).
func (c *Coordinator) Read(id int, variable string) {
	t, ok := c.transactions[id]
	if !ok {
		return
	}
	c.performRead(t, variable)
}

// Write services W(Ti, xk, v).
func (c *Coordinator) Write(id int, variable string, value int) {
	t, ok := c.transactions[id]
	if !ok {
		return
	}
	c.performWrite(t, variable, value)
}

func (c *Coordinator) performRead(t *txn.Transaction, variable string) {
	outcome := c.dm.Read(t, variable)
	switch outcome.Kind {
	case txn.Granted:
		if !t.ReadOnly {
			site := outcome.Sites[0]
			t.Touch(site)
			t.RecordLockIfAbsent(variable, txn.HeldRead)
		}
		c.unblock(t)
		c.log.Debug("read granted", logging.F("txn", t.ID), logging.F("var", variable), logging.F("value", outcome.Value))
	case txn.BlockedBySite:
		c.block(t, variable, false, 0, siteWait)
	case txn.AbortSnapshotMiss:
		c.log.Info("snapshot miss, aborting read-only transaction", logging.F("txn", t.ID), logging.F("var", variable))
		c.finishAbort(t)
	case txn.BlockedByTxns:
		c.block(t, variable, false, 0, outcome.Blockers...)
	}
}

func (c *Coordinator) performWrite(t *txn.Transaction, variable string, value int) {
	outcome := c.dm.Write(t.ID, variable, c.blockers)
	switch outcome.Kind {
	case txn.Granted:
		for _, site := range outcome.Sites {
			t.Touch(site)
		}
		t.RecordWrite(variable, value, outcome.Sites)
		c.unblock(t)
		c.log.Debug("write granted", logging.F("txn", t.ID), logging.F("var", variable), logging.F("sites", outcome.Sites))
	case txn.BlockedBySite:
		c.block(t, variable, true, value, siteWait)
	case txn.BlockedByTxns:
		c.block(t, variable, true, value, outcome.Blockers...)
	}
}

// unblock clears a transaction's wait-for edges and resets it to
// NORMAL after a successful read or write.
func (c *Coordinator) unblock(t *txn.Transaction) {
	delete(c.waitFor, t.ID)
	t.Status = txn.StatusNormal
	t.LastBlocked = nil
}

// block records a transaction as waiting on the given blocker ids (or
// siteWait), enqueues it on the variable's FIFO waiter list, and sets
// its buffered retry query.
func (c *Coordinator) block(t *txn.Transaction, variable string, isWrite bool, value int, blockerIDs ...int) {
	t.LastBlocked = &txn.BlockedQuery{Variable: variable, IsWrite: isWrite, Value: value}
	if isWrite {
		t.Status = txn.StatusWriteBlocked
	} else {
		t.Status = txn.StatusReadBlocked
	}

	if c.waitFor[t.ID] == nil {
		c.waitFor[t.ID] = make(map[int]struct{})
	}
	for _, b := range blockerIDs {
		c.waitFor[t.ID][b] = struct{}{}
		c.blockers[b] = appendOnce(c.blockers[b], t.ID)
	}
	c.dataWaiters[variable] = appendOnce(c.dataWaiters[variable], t.ID)
}

func appendOnce(list []int, id int) []int {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

// retry re-issues a blocked transaction's buffered operation.
func (c *Coordinator) retry(id int) {
	t, ok := c.transactions[id]
	if !ok {
		return
	}
	switch t.Status {
	case txn.StatusReadBlocked:
		c.performRead(t, t.LastBlocked.Variable)
	case txn.StatusWriteBlocked:
		c.performWrite(t, t.LastBlocked.Variable, t.LastBlocked.Value)
	}
}

// resurrectSiteWaiters retries every transaction blocked solely on
// site availability, once per tick ahead of the scripted operation.
func (c *Coordinator) resurrectSiteWaiters() {
	waiters := c.blockers[siteWait]
	if len(waiters) == 0 {
		return
	}
	delete(c.blockers, siteWait)
	for _, id := range waiters {
		c.retry(id)
	}
}

// Fail services fail(j).
func (c *Coordinator) Fail(site int) {
	c.dm.Fail(site)
	c.failHistory[site] = append(c.failHistory[site], c.tick)
	for _, t := range c.transactions {
		if _, touched := t.TouchedSites[site]; touched {
			t.AbortPending = true
		}
	}
}

// Recover services recover(j).
func (c *Coordinator) Recover(site int) {
	c.dm.Recover(site, c.tick)
}

// End services end(Ti): abort if the transaction touched a site that
// failed since it started, otherwise commit.
func (c *Coordinator) End(id int) {
	t, ok := c.transactions[id]
	if !ok {
		return
	}
	if t.AbortPending {
		c.finishAbort(t)
		return
	}
	for site := range t.TouchedSites {
		for _, failedAt := range c.failHistory[site] {
			if failedAt > t.StartTick && failedAt < c.tick {
				c.finishAbort(t)
				return
			}
		}
	}
	c.finishCommit(t)
}

func (c *Coordinator) finishCommit(t *txn.Transaction) {
	c.dm.Commit(t.PendingWrites)
	c.releaseAndRetry(t)
	c.final[t.ID] = OutcomeCommit
	for variable, pw := range t.PendingWrites {
		c.commitSummary[variable] = pw.Value
	}
	c.removeFromIndices(t.ID)
	c.log.Info("commit", logging.F("txn", t.ID), logging.F("tick", c.tick))
}

func (c *Coordinator) finishAbort(t *txn.Transaction) {
	c.releaseAndRetry(t)
	c.final[t.ID] = OutcomeAbort
	c.removeFromIndices(t.ID)
	c.log.Info("abort", logging.F("txn", t.ID), logging.F("tick", c.tick))
}

// releaseAndRetry releases every lock the transaction holds and
// retries, in FIFO order, every waiter on a variable that became FREE.
func (c *Coordinator) releaseAndRetry(t *txn.Transaction) {
	freed := c.dm.ReleaseLocks(t.ID, t.HeldLocks)
	for _, variable := range freed {
		waiters := c.dataWaiters[variable]
		delete(c.dataWaiters, variable)
		for _, waiterID := range waiters {
			if waiterID != t.ID {
				c.retry(waiterID)
			}
		}
	}
}

// removeFromIndices purges a finished transaction from every
// coordinator index: the transaction table itself, the wait-for graph,
// the reverse blocker index, and any straggling waiter list entry.
func (c *Coordinator) removeFromIndices(id int) {
	delete(c.transactions, id)
	delete(c.waitFor, id)
	delete(c.blockers, id)
	for key, waiters := range c.blockers {
		c.blockers[key] = removeValue(waiters, id)
	}
	for variable, waiters := range c.dataWaiters {
		c.dataWaiters[variable] = removeValue(waiters, id)
	}
}

func removeValue(list []int, id int) []int {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// DumpKind selects which of dump()'s three forms to render.
type DumpKind int

const (
	DumpAll DumpKind = iota
	DumpVariable
	DumpSite
)

// Dump services dump(), dump(xk) and dump(j).
func (c *Coordinator) Dump(w io.Writer, kind DumpKind, variable string, site int) {
	switch kind {
	case DumpAll:
		c.dm.Dump(w)
	case DumpVariable:
		c.dm.DumpVariable(w, variable)
	case DumpSite:
		c.dm.DumpSite(w, site)
	}
}
