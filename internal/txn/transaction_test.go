package txn

import "testing"

func TestNewTransactionDefaults(t *testing.T) {
	tr := New(1, 5, false)
	if tr.Status != StatusNormal {
		t.Errorf("expected StatusNormal, got %v", tr.Status)
	}
	if tr.Snapshot != nil {
		t.Errorf("read-write transaction should not allocate a snapshot")
	}
}

func TestRecordLockIfAbsentDoesNotDowngrade(t *testing.T) {
	tr := New(1, 0, false)
	tr.RecordLockIfAbsent("x1", HeldWrite)
	tr.RecordLockIfAbsent("x1", HeldRead)
	if tr.HeldLocks["x1"] != HeldWrite {
		t.Errorf("a later read must not downgrade a recorded write, got %v", tr.HeldLocks["x1"])
	}
}

func TestRecordWriteOverwritesPending(t *testing.T) {
	tr := New(1, 0, false)
	tr.RecordWrite("x1", 10, []int{1})
	tr.RecordWrite("x1", 20, []int{1, 2})
	pw := tr.PendingWrites["x1"]
	if pw.Value != 20 {
		t.Errorf("second write to the same variable should overwrite the first, got value %d", pw.Value)
	}
	if len(pw.SitesTargeted) != 2 {
		t.Errorf("expected the latest write's site list, got %v", pw.SitesTargeted)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	tr := New(1, 0, true)
	if tr.Snapshot != nil {
		t.Fatalf("snapshot should start nil so callers can distinguish unbuilt from empty")
	}
	tr.SetSnapshotValue("x2", 20)
	if v, ok := tr.Snapshot["x2"]; !ok || v != 20 {
		t.Errorf("expected snapshot value 20 for x2")
	}
	tr.ClearSnapshot()
	if tr.Snapshot != nil {
		t.Errorf("ClearSnapshot should reset to nil")
	}
}

func TestTouchedSiteListIsSorted(t *testing.T) {
	tr := New(1, 0, false)
	tr.Touch(5)
	tr.Touch(1)
	tr.Touch(3)
	got := tr.TouchedSiteList()
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}
