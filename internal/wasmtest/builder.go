package wasmtest

import (
	"github.com/wippyai/wasm-decoder/wasm"
)

// Builder assembles a module section by section. Imports must be declared
// before local functions and globals so that returned indices are final.
type Builder struct {
	types    []wasm.FuncType
	imports  Writer
	nImports uint32
	funcs    []uint32
	codes    []Writer
	tables   Writer
	nTables  uint32
	memories Writer
	nMems    uint32
	globals  Writer
	nGlobals uint32
	exports  Writer
	nExports uint32
	start    *uint32
	elems    Writer
	nElems   uint32
	data     Writer
	nData    uint32
	custom   []Writer
	extra    []section

	importedFuncs   uint32
	importedGlobals uint32
}

type section struct {
	payload []byte
	id      byte
}

// New returns an empty module builder.
func New() *Builder {
	return &Builder{}
}

// Type adds a function type and returns its index. Identical signatures
// share an index.
func (b *Builder) Type(params, results []wasm.ValType) uint32 {
	ft := wasm.FuncType{Params: params, Results: results}
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	b.imports.Name(module).Name(name).Byte(byte(wasm.KindFunc)).U32(typeIdx)
	b.nImports++
	b.importedFuncs++
	return b.importedFuncs - 1
}

// ImportGlobal adds a global import and returns its global index.
func (b *Builder) ImportGlobal(module, name string, t wasm.ValType, mutable bool) uint32 {
	b.imports.Name(module).Name(name).Byte(byte(wasm.KindGlobal), byte(t), boolByte(mutable))
	b.nImports++
	b.importedGlobals++
	return b.importedGlobals - 1
}

// ImportMemory adds a memory import without a maximum.
func (b *Builder) ImportMemory(module, name string, initial uint32) {
	b.imports.Name(module).Name(name).Byte(byte(wasm.KindMemory), 0x00).U32(initial)
	b.nImports++
}

// ImportTable adds a funcref table import without a maximum.
func (b *Builder) ImportTable(module, name string, initial uint32) {
	b.imports.Name(module).Name(name).Byte(byte(wasm.KindTable), byte(wasm.ValFuncRef), 0x00).U32(initial)
	b.nImports++
}

// Func adds a local function and returns its function index. body is the
// raw instruction encoding including the final end opcode.
func (b *Builder) Func(typeIdx uint32, locals []wasm.LocalEntry, body ...byte) uint32 {
	var w Writer
	w.U32(uint32(len(locals)))
	for _, l := range locals {
		w.U32(l.Count).Byte(byte(l.Type))
	}
	w.Byte(body...)
	b.funcs = append(b.funcs, typeIdx)
	b.codes = append(b.codes, w)
	return b.importedFuncs + uint32(len(b.funcs)-1)
}

// Table adds a funcref table.
func (b *Builder) Table(initial uint32) {
	b.tables.Byte(byte(wasm.ValFuncRef), 0x00).U32(initial)
	b.nTables++
}

// Memory adds a memory. A nil maximum leaves the memory unbounded.
func (b *Builder) Memory(initial uint32, maximum *uint32) {
	if maximum == nil {
		b.memories.Byte(0x00).U32(initial)
	} else {
		b.memories.Byte(0x01).U32(initial).U32(*maximum)
	}
	b.nMems++
}

// Global adds a local global with an init expression (including end) and
// returns its global index.
func (b *Builder) Global(t wasm.ValType, mutable bool, init ...byte) uint32 {
	b.globals.Byte(byte(t), boolByte(mutable)).Byte(init...)
	b.nGlobals++
	return b.importedGlobals + b.nGlobals - 1
}

// Export adds an export.
func (b *Builder) Export(name string, kind wasm.ExternKind, idx uint32) {
	b.exports.Name(name).Byte(byte(kind)).U32(idx)
	b.nExports++
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) {
	b.start = &idx
}

// Elem adds an active element segment for table 0 at a constant offset.
func (b *Builder) Elem(offset int32, funcs ...uint32) {
	b.elems.U32(0).Byte(byte(wasm.OpI32Const)).S32(offset).Byte(byte(wasm.OpEnd))
	b.elems.U32(uint32(len(funcs)))
	for _, f := range funcs {
		b.elems.U32(f)
	}
	b.nElems++
}

// Data adds an active data segment for memory 0 at a constant offset.
func (b *Builder) Data(offset int32, init []byte) {
	b.data.U32(0).Byte(byte(wasm.OpI32Const)).S32(offset).Byte(byte(wasm.OpEnd)).Vec(init)
	b.nData++
}

// Custom adds a custom section. Custom sections are written first.
func (b *Builder) Custom(name string, payload []byte) {
	var w Writer
	w.Name(name).Byte(payload...)
	b.custom = append(b.custom, w)
}

// Section appends a raw section after all others.
func (b *Builder) Section(id byte, payload []byte) {
	b.extra = append(b.extra, section{id: id, payload: payload})
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	var w Writer
	w.U32LE(wasm.Magic).U32LE(wasm.Version)

	for _, c := range b.custom {
		writeSection(&w, wasm.SectionCustom, c.Bytes())
	}

	if len(b.types) > 0 {
		var sec Writer
		sec.U32(uint32(len(b.types)))
		for _, ft := range b.types {
			sec.Byte(wasm.FuncTypeByte)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, wasm.SectionType, sec.Bytes())
	}
	writeVec(&w, wasm.SectionImport, b.nImports, &b.imports)

	if len(b.funcs) > 0 {
		var sec Writer
		sec.U32(uint32(len(b.funcs)))
		for _, t := range b.funcs {
			sec.U32(t)
		}
		writeSection(&w, wasm.SectionFunction, sec.Bytes())
	}
	writeVec(&w, wasm.SectionTable, b.nTables, &b.tables)
	writeVec(&w, wasm.SectionMemory, b.nMems, &b.memories)
	writeVec(&w, wasm.SectionGlobal, b.nGlobals, &b.globals)
	writeVec(&w, wasm.SectionExport, b.nExports, &b.exports)
	if b.start != nil {
		var sec Writer
		sec.U32(*b.start)
		writeSection(&w, wasm.SectionStart, sec.Bytes())
	}
	writeVec(&w, wasm.SectionElement, b.nElems, &b.elems)

	if len(b.codes) > 0 {
		var sec Writer
		sec.U32(uint32(len(b.codes)))
		for _, c := range b.codes {
			sec.Vec(c.Bytes())
		}
		writeSection(&w, wasm.SectionCode, sec.Bytes())
	}
	writeVec(&w, wasm.SectionData, b.nData, &b.data)

	for _, s := range b.extra {
		writeSection(&w, s.id, s.payload)
	}
	return w.Bytes()
}

func writeVec(w *Writer, id byte, n uint32, items *Writer) {
	if n == 0 {
		return
	}
	var sec Writer
	sec.U32(n).Byte(items.Bytes()...)
	writeSection(w, id, sec.Bytes())
}

func writeSection(w *Writer, id byte, payload []byte) {
	w.Byte(id).Vec(payload)
}

func writeValTypes(w *Writer, types []wasm.ValType) {
	w.U32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Header returns just the magic number and version.
func Header() []byte {
	var w Writer
	return w.U32LE(wasm.Magic).U32LE(wasm.Version).Bytes()
}

// Module wraps raw sections in a module header. Each section is given as
// its id followed by its payload.
func Module(sections ...[]byte) []byte {
	w := Writer{buf: Header()}
	for _, s := range sections {
		writeSection(&w, s[0], s[1:])
	}
	return w.Bytes()
}
