package wasm

import (
	"fmt"
	"strings"
)

// ValType represents a WebAssembly value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64, etc.
type ValType byte

// String returns the text format name of the value type.
func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExternRef:
		return "externref"
	case ValVoid:
		return "void"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// Size returns the number of bytes a value of this type occupies in a
// locals or globals layout. References are 4-byte handles.
func (v ValType) Size() uint32 {
	switch v {
	case ValI32, ValF32, ValFuncRef, ValExternRef:
		return 4
	case ValI64, ValF64:
		return 8
	case ValV128:
		return 16
	default:
		return 0
	}
}

// IsValue reports whether v can be the type of a local, global or operand.
func (v ValType) IsValue() bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExternRef:
		return true
	}
	return false
}

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool {
	return v == ValFuncRef || v == ValExternRef
}

// FuncType represents a WebAssembly function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Result returns the first result type, or ValVoid for functions without one.
func (f FuncType) Result() ValType {
	if len(f.Results) == 0 {
		return ValVoid
	}
	return f.Results[0]
}

// Equal reports whether two signatures have identical params and results.
func (f FuncType) Equal(o FuncType) bool {
	return equalTypes(f.Params, o.Params) && equalTypes(f.Results, o.Results)
}

func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> ")
	switch len(f.Results) {
	case 0:
		b.WriteString("()")
	case 1:
		b.WriteString(f.Results[0].String())
	default:
		b.WriteByte('(')
		for i, r := range f.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
		b.WriteByte(')')
	}
	return b.String()
}

func equalTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Limits bounds the size of a table or memory.
type Limits struct {
	Max *uint32
	Min uint32
}

func (l Limits) String() string {
	if l.Max == nil {
		return fmt.Sprintf("{min %d}", l.Min)
	}
	return fmt.Sprintf("{min %d, max %d}", l.Min, *l.Max)
}

// TableType describes a table's element type and limits.
type TableType struct {
	Limits   Limits
	ElemType ValType
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

// Import is an import section entry. Index is the position the import
// occupies in its own index space.
type Import struct {
	Table     *TableType
	Memory    *Limits
	Global    *GlobalType
	Module    string
	Name      string
	Index     uint32
	TypeIndex uint32
	Kind      ExternKind
}

// Export is an export section entry.
type Export struct {
	Name  string
	Index uint32
	Kind  ExternKind
}

// CustomSection holds the raw payload of a custom section.
type CustomSection struct {
	Name string
	Data []byte
}
