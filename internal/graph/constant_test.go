package graph

import "testing"

func TestConstantPoolAddGet(t *testing.T) {
	p := NewConstantPool()
	idx := p.Add(Constant{Kind: KindString, Str: "héllo wörld 你好"})
	if idx != 0 {
		t.Fatalf("first Add should return index 0, got %d", idx)
	}
	c, ok := p.Get(idx)
	if !ok {
		t.Fatal("Get should find the constant just added")
	}
	if c.Str != "héllo wörld 你好" {
		t.Fatalf("Str = %q, want UTF-8 round-trip", c.Str)
	}
}

func TestConstantPoolGetOutOfRange(t *testing.T) {
	p := NewConstantPool()
	if _, ok := p.Get(0); ok {
		t.Fatal("Get on an empty pool should report ok=false")
	}
	if _, ok := p.Get(-1); ok {
		t.Fatal("Get(-1) should report ok=false")
	}
}

func TestConstantPoolEqual(t *testing.T) {
	a := NewConstantPool()
	a.Add(Constant{Kind: KindInt, Int: 1})
	a.Add(Constant{Kind: KindBool, Bool: true})

	b := NewConstantPool()
	b.Add(Constant{Kind: KindInt, Int: 1})
	b.Add(Constant{Kind: KindBool, Bool: true})

	if !a.Equal(b) {
		t.Fatal("pools with identical entries in the same order should be Equal")
	}

	b.Add(Constant{Kind: KindFloat, Float: 1.5})
	if a.Equal(b) {
		t.Fatal("pools of different lengths should not be Equal")
	}
}
