// Package datamanager routes reads and writes across the ten sites,
// enforces available-copies lock compatibility at each one, and applies
// committed writes and lock releases site by site.
package datamanager

import (
	"fmt"
	"io"
	"sort"

	"quorumkv/internal/logging"
	"quorumkv/internal/store"
	"quorumkv/internal/txn"
)

// DataManager owns every site and the variable-to-site routing table
// derived from the replication rule in spec.md §3.
type DataManager struct {
	sites    map[int]*store.Site
	varSites map[string][]int // site numbers in ascending order
	log      *logging.Logger
}

// New builds a DataManager with siteCount sites, each hosting its share
// of variableCount variables per the replication rule (even index:
// every site; odd index: exactly one site).
func New(siteCount, variableCount int, log *logging.Logger) *DataManager {
	dm := &DataManager{
		sites:    make(map[int]*store.Site, siteCount),
		varSites: make(map[string][]int),
		log:      log,
	}
	for n := 1; n <= siteCount; n++ {
		dm.sites[n] = store.NewSite(n, variableCount)
	}
	for i := 1; i <= variableCount; i++ {
		id := store.VariableID(i)
		var hosts []int
		if store.IsReplicated(i) {
			for n := 1; n <= siteCount; n++ {
				hosts = append(hosts, n)
			}
		} else {
			hosts = []int{store.HostSite(i)}
		}
		dm.varSites[id] = hosts
	}
	return dm
}

// SiteCount reports how many sites the manager owns.
func (dm *DataManager) SiteCount() int { return len(dm.sites) }

// Site exposes a site by number, for dump and test assertions.
func (dm *DataManager) Site(num int) *store.Site { return dm.sites[num] }

// HostsOf returns the sites (ascending) that host variable.
func (dm *DataManager) HostsOf(variable string) []int {
	return dm.varSites[variable]
}

// GenerateSnapshot freezes the values a read-only transaction will see
// for the rest of its life: for each variable, scan hosting sites in
// ascending order and take the value at the first running, ready one.
// Called once, at beginRO — not lazily on first read — so that a
// commit landing between begin and a transaction's first read cannot
// leak into its view (spec.md glossary: "frozen... at its start tick";
// worked scenario S5). Variables with no running ready copy at that
// moment are simply absent from the snapshot forever; reading one
// later is an unconditional abort, not a retry.
func (dm *DataManager) GenerateSnapshot(t *txn.Transaction) {
	t.Snapshot = make(map[string]int)
	for variable, hosts := range dm.varSites {
		for _, num := range hosts {
			site := dm.sites[num]
			if site.Running() && site.Ready(variable) {
				t.SetSnapshotValue(variable, site.Variable(variable).Value)
				break
			}
		}
	}
}

// Read serves a read for txn on variable. Read-only transactions are
// served entirely out of their frozen snapshot; read-write transactions
// are routed to the first running, ready host and acquire a READ lock
// there unless it is already WRITE-locked by someone else.
func (dm *DataManager) Read(t *txn.Transaction, variable string) txn.Outcome {
	if t.ReadOnly {
		if v, ok := t.Snapshot[variable]; ok {
			return txn.GrantRead(nil, v)
		}
		return txn.AbortSnapshot()
	}

	for _, num := range dm.varSites[variable] {
		site := dm.sites[num]
		if !site.Running() || !site.Ready(variable) {
			continue
		}
		lock := site.Lock(variable)
		if lock.Type() == store.LockWrite {
			if lock.HasHolder(t.ID) {
				return txn.GrantRead([]int{num}, site.Variable(variable).Value)
			}
			return txn.BlockOnTxns(lock.Holders())
		}
		site.AddLock(variable, t.ID, store.LockRead)
		return txn.GrantRead([]int{num}, site.Variable(variable).Value)
	}
	return txn.BlockOnSite()
}

// Write attempts to acquire a WRITE lock for txnID on variable at every
// currently running site hosting it. blockTable maps a transaction id
// to the ids of transactions waiting on it, and is consulted to refuse
// a READ-to-WRITE promotion that would starve an already-waiting
// writer (spec.md §4.2, the bound Open Question on promotion fairness).
//
// A site with a WRITE lock held by someone else fails the whole
// request immediately. A site with a READ lock held only by txnID is a
// promotion candidate. A site with a READ lock held by others, or by
// txnID among others, blocks without failing other sites outright —
// every running site is still scanned so the full blocker set is
// reported. If no site hosting variable is currently running, the
// request blocks on site failure rather than on any transaction.
func (dm *DataManager) Write(txnID int, variable string, blockTable map[int][]int) txn.Outcome {
	hosts := dm.varSites[variable]
	var touched []int
	blockers := make(map[int]struct{})
	granted := true

	for _, num := range hosts {
		site := dm.sites[num]
		if !site.Running() {
			continue
		}
		touched = append(touched, num)
		lock := site.Lock(variable)

		switch lock.Type() {
		case store.LockFree:
			// nothing blocking here
		case store.LockWrite:
			if lock.HasHolder(txnID) {
				continue
			}
			return txn.BlockOnTxns(lock.Holders())
		case store.LockRead:
			holders := lock.Holders()
			if len(holders) == 1 && holders[0] == txnID {
				if waiters := blockTable[txnID]; len(waiters) > 0 {
					return txn.BlockOnTxns(append([]int(nil), waiters...))
				}
				continue
			}
			granted = false
			for _, h := range holders {
				if h != txnID {
					blockers[h] = struct{}{}
				}
			}
		}
	}

	if len(touched) == 0 {
		return txn.BlockOnSite()
	}
	if !granted {
		list := make([]int, 0, len(blockers))
		for b := range blockers {
			list = append(list, b)
		}
		sort.Ints(list)
		return txn.BlockOnTxns(list)
	}
	for _, num := range touched {
		dm.sites[num].AddLock(variable, txnID, store.LockWrite)
	}
	return txn.Grant(touched)
}

// Commit applies every pending write to the sites it targeted and marks
// each touched variable ready, per transaction commit (spec.md §4.3).
func (dm *DataManager) Commit(pending map[string]txn.PendingWrite) {
	for variable, pw := range pending {
		for _, num := range pw.SitesTargeted {
			if site, ok := dm.sites[num]; ok && site.Running() {
				site.WriteValue(variable, pw.Value)
			}
		}
	}
}

// ReleaseLocks drops every lock txnID holds, across every site hosting
// each recorded variable — not just the sites it happened to touch —
// mirroring the original's blanket release_locks sweep. It returns the
// variables that became FREE on every running site hosting them, which
// seeds retry of their waiters.
func (dm *DataManager) ReleaseLocks(txnID int, held map[string]txn.HeldLockKind) []string {
	var freed []string
	for variable := range held {
		hosts := dm.varSites[variable]
		for _, num := range hosts {
			dm.sites[num].RemoveLock(variable, txnID)
		}
		allFree := true
		for _, num := range hosts {
			site := dm.sites[num]
			if site.Running() && !site.Lock(variable).Free() {
				allFree = false
				break
			}
		}
		if allFree {
			freed = append(freed, variable)
		}
	}
	return freed
}

// Fail takes a site down.
func (dm *DataManager) Fail(site int) {
	if s, ok := dm.sites[site]; ok {
		s.Fail()
		if dm.log != nil {
			dm.log.Info("site failed", logging.F("site", site))
		}
	}
}

// Recover brings a site back up at logical tick at.
func (dm *DataManager) Recover(site int, at int) {
	if s, ok := dm.sites[site]; ok {
		s.Recover(at)
		if dm.log != nil {
			dm.log.Info("site recovered", logging.F("site", site))
		}
	}
}

// Dump writes every site's committed variable values in site order, the
// supplemental "dump()" report (spec.md §6).
func (dm *DataManager) Dump(w io.Writer) {
	nums := make([]int, 0, len(dm.sites))
	for n := range dm.sites {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		dm.dumpSite(w, dm.sites[n])
	}
}

// DumpSite writes a single site's committed variable values.
func (dm *DataManager) DumpSite(w io.Writer, site int) {
	if s, ok := dm.sites[site]; ok {
		dm.dumpSite(w, s)
	}
}

func (dm *DataManager) dumpSite(w io.Writer, s *store.Site) {
	ids := make([]string, 0, len(s.Variables()))
	for id := range s.Variables() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return store.ParseVariableIndex(ids[i]) < store.ParseVariableIndex(ids[j])
	})
	fmt.Fprintf(w, "site %d -", s.Num)
	for i, id := range ids {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		fmt.Fprintf(w, " %s: %d", id, s.Variable(id).Value)
	}
	fmt.Fprintln(w)
}

// DumpVariable writes every committed copy of variable across the sites
// that host it, in site order.
func (dm *DataManager) DumpVariable(w io.Writer, variable string) {
	fmt.Fprintf(w, "%s -", variable)
	first := true
	for _, num := range dm.varSites[variable] {
		s := dm.sites[num]
		if !first {
			fmt.Fprint(w, ",")
		}
		first = false
		fmt.Fprintf(w, " site %d: %d", num, s.Variable(variable).Value)
	}
	fmt.Fprintln(w)
}
