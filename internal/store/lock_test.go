package store

import "testing"

func TestLockFreeByDefault(t *testing.T) {
	l := NewLock()
	if !l.Free() {
		t.Fatalf("new lock should be free")
	}
	if l.Type() != LockFree {
		t.Errorf("expected LockFree, got %v", l.Type())
	}
}

func TestLockReadMultiHolder(t *testing.T) {
	l := NewLock()
	l.AddLock(1, LockRead)
	l.AddLock(2, LockRead)
	if l.Type() != LockRead {
		t.Fatalf("expected LockRead, got %v", l.Type())
	}
	holders := l.Holders()
	if len(holders) != 2 || holders[0] != 1 || holders[1] != 2 {
		t.Errorf("expected holders [1 2] in insertion order, got %v", holders)
	}
}

func TestLockRemoveReturnsFree(t *testing.T) {
	l := NewLock()
	l.AddLock(1, LockWrite)
	l.RemoveLock(1)
	if !l.Free() {
		t.Fatalf("lock should be free after removing its only holder")
	}
}

func TestLockAddFreePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic adding LockFree")
		}
	}()
	NewLock().AddLock(1, LockFree)
}

func TestLockHolderKindPanicsForNonHolder(t *testing.T) {
	l := NewLock()
	l.AddLock(1, LockRead)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic looking up a non-holder")
		}
	}()
	l.HolderKind(2)
}
