// Package heap implements the executor's reference-counted heap: an arena
// of cells addressed by a monotonically assigned cell-id.
//
// Nodes never reference each other directly; the arena owns every cell and
// hands out ids, the same "arena + id map" shape the rest of this module
// uses for nodes (bytecode.Node, indexed by result_id) and async tokens —
// it avoids native Go reference cycles at the type level.
package heap

import (
	"fmt"
)

// Kind distinguishes the three heap cell variants.
type Kind uint8

const (
	Bytes Kind = iota
	Array
	Map
)

// Value is the tagged union used throughout the executor and
// stored inside Array/Map cells. It lives in this package, rather than
// exec, specifically so heap cells can hold it without an import cycle;
// package exec uses heap.Value directly as its runtime value type.
type Value struct {
	Variant string // "Nil","Int","Float","Bool","String","HeapRef","Array","Map","AsyncToken"
	Int     int64
	Float   float64
	Str     string
	Bool    bool
	CellID  uint32
}

var Nil = Value{Variant: "Nil"}

// Cell is a single heap-resident record. Only one of Boxed/Elems/Entries is
// meaningful, selected by Kind. Bytes cells model Load/Store's addressable
// slot as a single boxed Value rather than a raw byte buffer — Load/Store
// never define byte-level addressing, so Alloc(size) gives
// a cell whose size is record-keeping only; the slot itself holds one Value.
type Cell struct {
	ID       uint32
	Kind     Kind
	Refcount int
	Size     int
	Boxed    Value
	Elems    []Value
	Entries  map[string]Value
}

// Heap is the per-executor cell arena. It is never shared across
// executors: a cloned program gets a fresh Heap.
type Heap struct {
	cells  map[uint32]*Cell
	nextID uint32
}

// New creates an empty heap.
func New() *Heap {
	return &Heap{cells: make(map[uint32]*Cell)}
}

// AllocBytes creates a fresh zeroed Bytes cell of the given size with
// refcount 1 and returns its cell-id.
func (h *Heap) AllocBytes(size int) uint32 {
	h.nextID++
	id := h.nextID
	h.cells[id] = &Cell{ID: id, Kind: Bytes, Refcount: 1, Size: size, Boxed: Nil}
	return id
}

// AllocArray creates a fresh empty Array cell with refcount 1.
func (h *Heap) AllocArray() uint32 {
	h.nextID++
	id := h.nextID
	h.cells[id] = &Cell{ID: id, Kind: Array, Refcount: 1, Elems: []Value{}}
	return id
}

// AllocMap creates a fresh empty Map cell with refcount 1.
func (h *Heap) AllocMap() uint32 {
	h.nextID++
	id := h.nextID
	h.cells[id] = &Cell{ID: id, Kind: Map, Refcount: 1, Entries: make(map[string]Value)}
	return id
}

// Get returns the live cell for id, or an error if it does not exist.
func (h *Heap) Get(id uint32) (*Cell, error) {
	c, ok := h.cells[id]
	if !ok {
		return nil, fmt.Errorf("heap: use of freed or unknown cell #%d", id)
	}
	return c, nil
}

// Retain increments a cell's refcount. Called whenever a value holding a
// cell-id is stored into another cell; caching a value does not retain it.
func (h *Heap) Retain(id uint32) error {
	c, err := h.Get(id)
	if err != nil {
		return err
	}
	c.Refcount++
	return nil
}

// Release decrements a cell's refcount and, if it drops to zero, frees the
// cell and recursively releases every value it contains, depth-first.
// Releasing an already-zero-refcount cell is a double-free.
func (h *Heap) Release(id uint32) error {
	c, ok := h.cells[id]
	if !ok {
		return fmt.Errorf("heap: double-free or unknown cell #%d", id)
	}
	c.Refcount--
	if c.Refcount > 0 {
		return nil
	}
	if c.Refcount < 0 {
		return fmt.Errorf("heap: double-free of cell #%d", id)
	}

	delete(h.cells, id)
	switch c.Kind {
	case Bytes:
		if c.Boxed.Variant == "HeapRef" || c.Boxed.Variant == "Array" || c.Boxed.Variant == "Map" {
			_ = h.Release(c.Boxed.CellID)
		}
	case Array:
		for _, v := range c.Elems {
			if v.Variant == "HeapRef" || v.Variant == "Array" || v.Variant == "Map" {
				_ = h.Release(v.CellID)
			}
		}
	case Map:
		for _, v := range c.Entries {
			if v.Variant == "HeapRef" || v.Variant == "Array" || v.Variant == "Map" {
				_ = h.Release(v.CellID)
			}
		}
	}
	return nil
}

// Free is the explicit Free(cell) opcode: a hard decrement identical to
// Release. It is not a no-op and not a distinct operation from refcount
// bookkeeping — it is simply the caller-visible name for "drop the
// reference I'm holding."
func (h *Heap) Free(id uint32) error {
	return h.Release(id)
}

// Live reports how many cells are currently allocated, for leak checks.
func (h *Heap) Live() int {
	return len(h.cells)
}

// LiveIDs returns the ids of all currently-live cells, sorted ascending.
func (h *Heap) LiveIDs() []uint32 {
	ids := make([]uint32, 0, len(h.cells))
	for id := range h.cells {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
