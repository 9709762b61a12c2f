package exec

import (
	"fmt"
	"strconv"

	"der/internal/heap"
)

// Value is the executor's runtime tagged union. It is a type
// alias for heap.Value so the same representation can live inside an
// Array/Map heap cell without forcing callers to convert at the boundary.
type Value = heap.Value

// AsyncToken is modeled as a distinct variant name even though it is
// structurally identical to an Int — kept separate so type-checking never
// accidentally lets a token flow where a plain Int is expected.
const variantAsyncToken = "AsyncToken"

func vNil() Value                { return heap.Nil }
func vInt(i int64) Value         { return Value{Variant: "Int", Int: i} }
func vFloat(f float64) Value     { return Value{Variant: "Float", Float: f} }
func vBool(b bool) Value         { return Value{Variant: "Bool", Bool: b} }
func vString(s string) Value     { return Value{Variant: "String", Str: s} }
func vHeapRef(id uint32) Value   { return Value{Variant: "HeapRef", CellID: id} }
func vArray(id uint32) Value     { return Value{Variant: "Array", CellID: id} }
func vMap(id uint32) Value       { return Value{Variant: "Map", CellID: id} }
func vAsyncToken(id uint32) Value {
	return Value{Variant: variantAsyncToken, CellID: id}
}

func isHeapKind(v Value) bool {
	switch v.Variant {
	case "HeapRef", "Array", "Map":
		return true
	default:
		return false
	}
}

// ToString implements the canonical to_string used by Print:
// integers in base 10, floats in shortest round-trip decimal, strings
// unquoted, booleans as true/false, Nil as empty, heap refs as "<cell #n>".
func ToString(v Value) string {
	switch v.Variant {
	case "Nil":
		return ""
	case "Int":
		return strconv.FormatInt(v.Int, 10)
	case "Float":
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case "Bool":
		if v.Bool {
			return "true"
		}
		return "false"
	case "String":
		return v.Str
	case "HeapRef", "Array", "Map":
		return fmt.Sprintf("<cell #%d>", v.CellID)
	case variantAsyncToken:
		return fmt.Sprintf("<token #%d>", v.CellID)
	default:
		return fmt.Sprintf("<?%s>", v.Variant)
	}
}
