package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-decoder/errors"
)

// Module is a decoded WebAssembly module. It is read-only once ParseModule
// returns and may be shared between goroutines.
//
// Functions, Globals, Tables and Memories are index spaces: each starts with
// the imported entries in import order followed by the locally defined ones.
type Module struct {
	Start     *uint32
	DataCount *uint32

	Types          []FuncType
	Imports        []Import
	Functions      []*Function
	Tables         []TableType
	Memories       []Limits
	Globals        []*Global
	Exports        []Export
	Elements       []Element
	Data           []DataSegment
	CustomSections []CustomSection

	imported [4]uint32
}

// Function is one entry of the function index space. Imported functions
// have Import set and no Code; local functions receive Code when the code
// section is decoded.
type Function struct {
	Import    *Import
	Code      *Code
	Exports   []string
	Type      FuncType
	Index     uint32
	TypeIndex uint32
}

// IsImported reports whether the function is provided by the host.
func (f *Function) IsImported() bool {
	return f.Import != nil
}

// Name returns the import name, the first export name, or f<index>.
func (f *Function) Name() string {
	if f.Import != nil {
		return f.Import.Name
	}
	if len(f.Exports) > 0 {
		return f.Exports[0]
	}
	return fmt.Sprintf("f%d", f.Index)
}

// Locals returns the parameter types followed by the declared local types.
func (f *Function) Locals() []ValType {
	out := make([]ValType, 0, len(f.Type.Params))
	out = append(out, f.Type.Params...)
	if f.Code != nil {
		out = append(out, f.Code.FlatLocals()...)
	}
	return out
}

// Global is one entry of the global index space.
type Global struct {
	Import *Import
	Init   Expr
	Type   GlobalType
	Index  uint32
}

// LocalEntry is a run of Count locals of the same type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// Code is a function body.
type Code struct {
	Locals []LocalEntry
	Body   Expr
	// Offset is the absolute position of the body size prefix.
	Offset int
}

// FlatLocals expands the run-length local declarations.
func (c *Code) FlatLocals() []ValType {
	var n uint32
	for _, e := range c.Locals {
		n += e.Count
	}
	out := make([]ValType, 0, n)
	for _, e := range c.Locals {
		for i := uint32(0); i < e.Count; i++ {
			out = append(out, e.Type)
		}
	}
	return out
}

// Element is an element segment holding function indices.
type Element struct {
	Offset      Expr
	FuncIndices []uint32
	Flags       uint32
	TableIndex  uint32
	Passive     bool
}

// Functions resolves the segment's function indices against m.
func (e *Element) Functions(m *Module) ([]*Function, error) {
	out := make([]*Function, len(e.FuncIndices))
	for i, idx := range e.FuncIndices {
		fn, err := m.Function(idx)
		if err != nil {
			return nil, err
		}
		out[i] = fn
	}
	return out, nil
}

// DataSegment is a data segment.
type DataSegment struct {
	Offset      Expr
	Init        []byte
	Flags       uint32
	MemoryIndex uint32
	Passive     bool
}

// ImportedCount returns the number of imported entries at the front of the
// kind's index space.
func (m *Module) ImportedCount(kind ExternKind) uint32 {
	if int(kind) >= len(m.imported) {
		return 0
	}
	return m.imported[kind]
}

// LocalFunctions returns the functions defined in this module.
func (m *Module) LocalFunctions() []*Function {
	return m.Functions[m.imported[KindFunc]:]
}

// Function returns the function at idx in the function index space.
func (m *Module) Function(idx uint32) (*Function, error) {
	if int(idx) >= len(m.Functions) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, "function", int(idx), len(m.Functions))
	}
	return m.Functions[idx], nil
}

// Global returns the global at idx in the global index space.
func (m *Module) Global(idx uint32) (*Global, error) {
	if int(idx) >= len(m.Globals) {
		return nil, errors.OutOfBounds(errors.PhaseDecode, "global", int(idx), len(m.Globals))
	}
	return m.Globals[idx], nil
}

// Type returns the function type at idx in the type section.
func (m *Module) Type(idx uint32) (FuncType, error) {
	if int(idx) >= len(m.Types) {
		return FuncType{}, errors.OutOfBounds(errors.PhaseDecode, "type", int(idx), len(m.Types))
	}
	return m.Types[idx], nil
}

// TypeName returns the display name of a type section entry.
func (m *Module) TypeName(idx uint32) string {
	return fmt.Sprintf("type%d", idx)
}

// ResolveExport looks up an export by name.
func (m *Module) ResolveExport(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// ExportedFunction returns the function exported under name.
func (m *Module) ExportedFunction(name string) (*Function, error) {
	e, ok := m.ResolveExport(name)
	if !ok || e.Kind != KindFunc {
		return nil, errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Section("export").
			Detail("no exported function %q", name).
			Build()
	}
	return m.Function(e.Index)
}

// GlobalOffsets lays globals out back to back in index order, each taking
// ValType.Size bytes, and returns every global's offset and the total size.
func (m *Module) GlobalOffsets() ([]uint32, uint32) {
	offsets := make([]uint32, len(m.Globals))
	var size uint32
	for i, g := range m.Globals {
		offsets[i] = size
		size += g.Type.Type.Size()
	}
	return offsets, size
}
