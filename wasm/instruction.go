package wasm

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction is a decoded WebAssembly instruction. The set of
// implementations is closed: every instruction is one of the types in this
// file, selected by its structural shape.
type Instruction interface {
	Opcode() Opcode
	instruction()
}

// Expr is an instruction sequence. Structured control instructions own
// their nested bodies, so an Expr is a tree rather than a flat list.
type Expr struct {
	Instrs []Instruction
}

// Len returns the number of top-level instructions.
func (e Expr) Len() int {
	return len(e.Instrs)
}

// Last returns the final top-level instruction, or nil.
func (e Expr) Last() Instruction {
	if len(e.Instrs) == 0 {
		return nil
	}
	return e.Instrs[len(e.Instrs)-1]
}

// Plain is an instruction without immediates.
type Plain struct {
	Op Opcode
}

// Block is a block or loop.
type Block struct {
	Body Expr
	Op   Opcode
	Type ValType
}

// If is a conditional with an optional else branch.
type If struct {
	Else *Expr
	Then Expr
	Type ValType
}

// Br is a br or br_if.
type Br struct {
	Op    Opcode
	Depth uint32
}

// BrTable is an indexed branch. Depths are relative label depths with 0
// naming the innermost enclosing label.
type BrTable struct {
	Depths  []uint32
	Default uint32
}

// Call is a direct call.
type Call struct {
	Func uint32
}

// CallIndirect is a call through a table.
type CallIndirect struct {
	Type  uint32
	Table uint32
}

// Index is an instruction whose immediates are index-space references:
// local.*, global.*, table.get/set, memory.size/grow, ref.func and the
// indexed bulk memory and table operations. Extra holds the second index of
// two-index forms such as memory.init or table.copy.
type Index struct {
	Extra []uint32
	Index uint32
	Op    Opcode
}

// MemArg is a load or store.
type MemArg struct {
	Op     Opcode
	Align  uint32
	Offset uint32
}

// RefNull is ref.null with its reference type.
type RefNull struct {
	Type ValType
}

// SelectT is select with an explicit result type.
type SelectT struct {
	Types []ValType
}

type I32Const struct{ Value int32 }
type I64Const struct{ Value int64 }
type F32Const struct{ Value float32 }
type F64Const struct{ Value float64 }

func (in *Plain) Opcode() Opcode        { return in.Op }
func (in *Block) Opcode() Opcode        { return in.Op }
func (in *If) Opcode() Opcode           { return OpIf }
func (in *Br) Opcode() Opcode           { return in.Op }
func (in *BrTable) Opcode() Opcode      { return OpBrTable }
func (in *Call) Opcode() Opcode         { return OpCall }
func (in *CallIndirect) Opcode() Opcode { return OpCallIndirect }
func (in *Index) Opcode() Opcode        { return in.Op }
func (in *MemArg) Opcode() Opcode       { return in.Op }
func (in *RefNull) Opcode() Opcode      { return OpRefNull }
func (in *SelectT) Opcode() Opcode      { return OpSelectT }
func (in *I32Const) Opcode() Opcode     { return OpI32Const }
func (in *I64Const) Opcode() Opcode     { return OpI64Const }
func (in *F32Const) Opcode() Opcode     { return OpF32Const }
func (in *F64Const) Opcode() Opcode     { return OpF64Const }

func (*Plain) instruction()        {}
func (*Block) instruction()        {}
func (*If) instruction()           {}
func (*Br) instruction()           {}
func (*BrTable) instruction()      {}
func (*Call) instruction()         {}
func (*CallIndirect) instruction() {}
func (*Index) instruction()        {}
func (*MemArg) instruction()       {}
func (*RefNull) instruction()      {}
func (*SelectT) instruction()      {}
func (*I32Const) instruction()     {}
func (*I64Const) instruction()     {}
func (*F32Const) instruction()     {}
func (*F64Const) instruction()     {}

// Format renders a single instruction with its immediates in text-format
// style. Nested bodies of block, loop and if are not included.
func Format(in Instruction) string {
	name := in.Opcode().String()
	switch in := in.(type) {
	case *Block:
		return blockHeader(name, in.Type)
	case *If:
		return blockHeader(name, in.Type)
	case *Br:
		return name + " " + strconv.FormatUint(uint64(in.Depth), 10)
	case *BrTable:
		var b strings.Builder
		b.WriteString(name)
		for _, d := range in.Depths {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatUint(uint64(d), 10))
		}
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(uint64(in.Default), 10))
		return b.String()
	case *Call:
		return fmt.Sprintf("%s %d", name, in.Func)
	case *CallIndirect:
		return fmt.Sprintf("%s %d (type %d)", name, in.Table, in.Type)
	case *Index:
		s := fmt.Sprintf("%s %d", name, in.Index)
		for _, x := range in.Extra {
			s += " " + strconv.FormatUint(uint64(x), 10)
		}
		return s
	case *MemArg:
		return fmt.Sprintf("%s offset=%d align=%d", name, in.Offset, uint32(1)<<in.Align)
	case *RefNull:
		return name + " " + in.Type.String()
	case *SelectT:
		parts := make([]string, len(in.Types))
		for i, t := range in.Types {
			parts[i] = t.String()
		}
		return fmt.Sprintf("%s (result %s)", name, strings.Join(parts, " "))
	case *I32Const:
		return fmt.Sprintf("%s %d", name, in.Value)
	case *I64Const:
		return fmt.Sprintf("%s %d", name, in.Value)
	case *F32Const:
		return name + " " + strconv.FormatFloat(float64(in.Value), 'g', -1, 32)
	case *F64Const:
		return name + " " + strconv.FormatFloat(in.Value, 'g', -1, 64)
	default:
		return name
	}
}

func blockHeader(name string, t ValType) string {
	if t == ValVoid {
		return name
	}
	return name + " (result " + t.String() + ")"
}
