package heap

import "testing"

func TestAllocAndRelease(t *testing.T) {
	h := New()
	id := h.AllocBytes(8)
	if h.Live() != 1 {
		t.Fatalf("Live() = %d, want 1", h.Live())
	}
	if err := h.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if h.Live() != 0 {
		t.Fatalf("Live() = %d after release, want 0", h.Live())
	}
}

func TestRetainDelaysFree(t *testing.T) {
	h := New()
	id := h.AllocBytes(4)
	if err := h.Retain(id); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if err := h.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if h.Live() != 1 {
		t.Fatalf("cell should still be live after one of two releases, Live() = %d", h.Live())
	}
	if err := h.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if h.Live() != 0 {
		t.Fatalf("cell should be freed after matching releases, Live() = %d", h.Live())
	}
}

func TestDoubleFreeErrors(t *testing.T) {
	h := New()
	id := h.AllocBytes(1)
	if err := h.Release(id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.Release(id); err == nil {
		t.Fatal("Release of an already-freed cell should error")
	}
}

func TestFreeIsReleaseAlias(t *testing.T) {
	h := New()
	id := h.AllocArray()
	if err := h.Free(id); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if h.Live() != 0 {
		t.Fatalf("Free should decrement and collect like Release, Live() = %d", h.Live())
	}
}

func TestReleaseRecursesIntoArray(t *testing.T) {
	h := New()
	inner := h.AllocBytes(2)
	outer := h.AllocArray()
	cell, err := h.Get(outer)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cell.Elems = append(cell.Elems, Value{Variant: "HeapRef", CellID: inner})

	if err := h.Release(outer); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if h.Live() != 0 {
		t.Fatalf("releasing the array should transitively release its HeapRef element, Live() = %d", h.Live())
	}
}

func TestReleaseRecursesIntoMap(t *testing.T) {
	h := New()
	inner := h.AllocArray()
	outer := h.AllocMap()
	cell, err := h.Get(outer)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cell.Entries["k"] = Value{Variant: "Array", CellID: inner}

	if err := h.Release(outer); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if h.Live() != 0 {
		t.Fatalf("releasing the map should transitively release its Array entry, Live() = %d", h.Live())
	}
}

func TestLiveIDsSorted(t *testing.T) {
	h := New()
	h.AllocBytes(1)
	h.AllocBytes(1)
	h.AllocBytes(1)
	ids := h.LiveIDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("LiveIDs() not sorted ascending: %v", ids)
		}
	}
}
