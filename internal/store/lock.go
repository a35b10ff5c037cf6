package store

import "fmt"

// LockType is the tagged state of a Lock. Replacing the dynamic-dispatch
// lock type of the original with a small enum, per the redesign in
// spec.md §9.
type LockType int

const (
	LockFree LockType = iota
	LockRead
	LockWrite
)

func (t LockType) String() string {
	switch t {
	case LockFree:
		return "FREE"
	case LockRead:
		return "READ"
	case LockWrite:
		return "WRITE"
	default:
		return "UNKNOWN"
	}
}

// Lock is the per-variable, per-site lock state: FREE, or READ held by
// one or more transactions, or WRITE held by exactly one. Holders are
// tracked by transaction id only — never by direct reference to a
// Transaction — to keep Site and Transaction from holding cyclic
// pointers into each other (spec.md §9).
type Lock struct {
	kind    LockType
	holders map[int]LockType
	order   []int // insertion order, for deterministic holder listings
}

// NewLock returns a FREE lock with no holders.
func NewLock() *Lock {
	return &Lock{
		kind:    LockFree,
		holders: make(map[int]LockType),
	}
}

// Free reports whether the lock currently has no holders.
func (l *Lock) Free() bool {
	return l.kind == LockFree
}

// Type returns the lock's current kind.
func (l *Lock) Type() LockType {
	return l.kind
}

// Holders returns the holding transaction ids in the order they were
// added.
func (l *Lock) Holders() []int {
	out := make([]int, len(l.order))
	copy(out, l.order)
	return out
}

// HasHolder reports whether txn currently holds this lock.
func (l *Lock) HasHolder(txn int) bool {
	_, ok := l.holders[txn]
	return ok
}

// AddLock records txn as a holder of kind and updates the lock's type.
// Adding a READ to an already-READ lock is the multi-holder case; adding
// a WRITE is the caller's responsibility to only do when the holder set
// is empty or is exactly {txn} — AddLock does not itself validate that,
// mirroring the original's add_lock which trusts its caller.
func (l *Lock) AddLock(txn int, kind LockType) {
	if kind == LockFree {
		panic("store: AddLock called with LockFree")
	}
	if _, exists := l.holders[txn]; !exists {
		l.order = append(l.order, txn)
	}
	l.holders[txn] = kind
	l.kind = kind
}

// RemoveLock drops txn from the holder set. If no holders remain the
// lock transitions back to FREE.
func (l *Lock) RemoveLock(txn int) {
	if _, exists := l.holders[txn]; !exists {
		return
	}
	delete(l.holders, txn)
	for i, id := range l.order {
		if id == txn {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if len(l.holders) == 0 {
		l.kind = LockFree
	}
}

// HolderKind looks up the lock kind held by a specific transaction; it
// panics if txn is not a holder, since callers are expected to check
// HasHolder first — a lookup on an absent holder is a programming error
// in this simulator, not a data error (spec.md §7).
func (l *Lock) HolderKind(txn int) LockType {
	kind, ok := l.holders[txn]
	if !ok {
		panic(fmt.Sprintf("store: transaction %d does not hold this lock", txn))
	}
	return kind
}
