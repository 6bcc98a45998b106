package resource

import (
	"testing"

	"github.com/domforge/domhost/abi"
)

const (
	typeBlob uint32 = iota + 1
	typeConn
)

type dropTracker struct {
	dropped bool
}

func (d *dropTracker) Drop() { d.dropped = true }

func TestInsertGetRemove(t *testing.T) {
	tbl := NewTable()

	h := tbl.Insert(typeBlob, "payload")
	if h == 0 {
		t.Fatal("insert returned the invalid handle")
	}

	v, ok := tbl.Get(h)
	if !ok || v != "payload" {
		t.Fatalf("Get = %v, %v", v, ok)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}

	v, ok = tbl.Remove(h)
	if !ok || v != "payload" {
		t.Fatalf("Remove = %v, %v", v, ok)
	}
	if _, ok := tbl.Get(h); ok {
		t.Error("handle still live after Remove")
	}
	if _, ok := tbl.Remove(h); ok {
		t.Error("second Remove must fail")
	}
}

func TestHandlesAreUnique(t *testing.T) {
	tbl := NewTable()
	seen := make(map[abi.Handle]bool)
	for i := 0; i < 100; i++ {
		h := tbl.Insert(typeBlob, i)
		if seen[h] {
			t.Fatalf("handle %d issued twice", h)
		}
		seen[h] = true
	}
	// removal must not recycle live handles
	for h := range seen {
		tbl.Remove(h)
		break
	}
	h := tbl.Insert(typeBlob, "fresh")
	if seen[h] {
		t.Errorf("handle %d reissued after removal", h)
	}
}

func TestGetTyped(t *testing.T) {
	tbl := NewTable()
	h := tbl.Insert(typeBlob, "payload")

	if _, ok := tbl.GetTyped(h, typeConn); ok {
		t.Error("GetTyped must reject a type mismatch")
	}
	v, ok := tbl.GetTyped(h, typeBlob)
	if !ok || v != "payload" {
		t.Fatalf("GetTyped = %v, %v", v, ok)
	}
	if _, ok := tbl.GetTyped(abi.Handle(9999), typeBlob); ok {
		t.Error("GetTyped must reject an unknown handle")
	}
}

func TestRemoveCallsDropper(t *testing.T) {
	tbl := NewTable()
	d := &dropTracker{}
	h := tbl.Insert(typeConn, d)

	tbl.Remove(h)
	if !d.dropped {
		t.Error("Remove did not call Drop")
	}
}

func TestCloseDropsAllAndRejectsInserts(t *testing.T) {
	tbl := NewTable()
	d1, d2 := &dropTracker{}, &dropTracker{}
	tbl.Insert(typeConn, d1)
	tbl.Insert(typeConn, d2)

	if err := tbl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !d1.dropped || !d2.dropped {
		t.Error("Close did not drop live values")
	}
	if tbl.Len() != 0 {
		t.Errorf("Len after Close = %d", tbl.Len())
	}
	if h := tbl.Insert(typeBlob, "late"); h != 0 {
		t.Errorf("Insert after Close = %d, want 0", h)
	}
	if err := tbl.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
