package wasm

import (
	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/wasm/internal/binary"
)

// DecodeExpr decodes a standalone end-terminated instruction sequence.
// Offsets in errors are relative to the start of code.
func DecodeExpr(code []byte) (Expr, error) {
	r := binary.NewReader(code, 0)
	e, err := readBody(r, "code")
	if err != nil {
		return Expr{}, err
	}
	if r.Len() != 0 {
		return Expr{}, errors.Framing("code", r.Offset(), "trailing bytes after end")
	}
	return e, nil
}

// readBody decodes an expression that must be terminated by end.
func readBody(r *binary.Reader, section string) (Expr, error) {
	e, term, at, err := readExpr(r, section)
	if err != nil {
		return Expr{}, err
	}
	if term == OpElse {
		return Expr{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Section(section).At(at).Opcode(uint32(OpElse)).
			Detail("else outside of if").
			Build()
	}
	return e, nil
}

// readExpr decodes instructions until an end or else marker and returns
// the marker with its offset. The caller decides whether else is legal.
func readExpr(r *binary.Reader, section string) (Expr, Opcode, int, error) {
	var e Expr
	for {
		start := r.Offset()
		b, err := r.ReadByte()
		if err != nil {
			return Expr{}, 0, start, wrapErr(section, start, err)
		}
		op := Opcode(b)
		if op == OpEnd || op == OpElse {
			return e, op, start, nil
		}
		in, err := readInstruction(r, section, b, start)
		if err != nil {
			return Expr{}, 0, start, err
		}
		e.Instrs = append(e.Instrs, in)
	}
}

func readInstruction(r *binary.Reader, section string, b byte, start int) (Instruction, error) {
	op := Opcode(b)
	fail := func(err error) (Instruction, error) {
		return nil, wrapErr(section, start, err)
	}

	switch {
	case op == OpUnreachable, op == OpNop, op == OpReturn, op == OpDrop, op == OpSelect:
		return &Plain{Op: op}, nil

	case op == OpBlock, op == OpLoop:
		bt, err := readBlockType(r, section)
		if err != nil {
			return nil, err
		}
		body, err := readBody(r, section)
		if err != nil {
			return nil, err
		}
		return &Block{Op: op, Type: bt, Body: body}, nil

	case op == OpIf:
		bt, err := readBlockType(r, section)
		if err != nil {
			return nil, err
		}
		then, term, _, err := readExpr(r, section)
		if err != nil {
			return nil, err
		}
		in := &If{Type: bt, Then: then}
		if term == OpElse {
			els, err := readBody(r, section)
			if err != nil {
				return nil, err
			}
			in.Else = &els
		}
		return in, nil

	case op == OpBr, op == OpBrIf:
		depth, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		return &Br{Op: op, Depth: depth}, nil

	case op == OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		if int(n) > r.Len() {
			return fail(errors.InvalidData(errors.PhaseDecode, "br_table label count exceeds body"))
		}
		in := &BrTable{Depths: make([]uint32, n)}
		for i := range in.Depths {
			if in.Depths[i], err = r.ReadU32(); err != nil {
				return fail(err)
			}
		}
		if in.Default, err = r.ReadU32(); err != nil {
			return fail(err)
		}
		return in, nil

	case op == OpCall:
		idx, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		return &Call{Func: idx}, nil

	case op == OpCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		table, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		return &CallIndirect{Type: typeIdx, Table: table}, nil

	case op == OpSelectT:
		n, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		if n != 1 {
			return fail(errors.InvalidData(errors.PhaseDecode, "typed select must have exactly one result type"))
		}
		t, err := readValType(r, section)
		if err != nil {
			return nil, err
		}
		return &SelectT{Types: []ValType{t}}, nil

	case op >= OpLocalGet && op <= OpTableSet, op == OpMemorySize, op == OpMemoryGrow, op == OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		return &Index{Op: op, Index: idx}, nil

	case op >= OpI32Load && op <= OpI64Store32:
		align, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		offset, err := r.ReadU32()
		if err != nil {
			return fail(err)
		}
		return &MemArg{Op: op, Align: align, Offset: offset}, nil

	case op == OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return fail(err)
		}
		return &I32Const{Value: v}, nil

	case op == OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return fail(err)
		}
		return &I64Const{Value: v}, nil

	case op == OpF32Const:
		v, err := r.ReadF32()
		if err != nil {
			return fail(err)
		}
		return &F32Const{Value: v}, nil

	case op == OpF64Const:
		v, err := r.ReadF64()
		if err != nil {
			return fail(err)
		}
		return &F64Const{Value: v}, nil

	case op >= OpI32Eqz && op <= OpI64Extend32S, op == OpRefIsNull:
		return &Plain{Op: op}, nil

	case op == OpRefNull:
		t, err := readValType(r, section)
		if err != nil {
			return nil, err
		}
		if !t.IsRef() {
			return fail(errors.InvalidData(errors.PhaseDecode, "ref.null requires a reference type"))
		}
		return &RefNull{Type: t}, nil

	case b == PrefixMisc:
		return readMisc(r, section, start)

	case b == PrefixGC, b == PrefixSIMD, b == PrefixThreads:
		sub, _ := r.ReadU32()
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Section(section).At(start).Opcode(uint32(b)<<8|sub&0xff).
			Detail("%s instructions are not supported", prefixFeature(b)).
			Build()
	}

	return nil, errors.New(errors.PhaseDecode, errors.KindInvalidOpcode).
		Section(section).At(start).Opcode(uint32(b)).
		Detail("unknown opcode").
		Build()
}

// readMisc decodes a 0xFC prefixed instruction.
func readMisc(r *binary.Reader, section string, start int) (Instruction, error) {
	sub, err := r.ReadU32()
	if err != nil {
		return nil, wrapErr(section, start, err)
	}
	if sub > 0xff || !(Opcode(PrefixMisc)<<8 | Opcode(sub)).Known() {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidOpcode).
			Section(section).At(start).Opcode(uint32(PrefixMisc)<<8|sub).
			Detail("unknown misc sub-opcode %d", sub).
			Build()
	}
	op := Opcode(PrefixMisc)<<8 | Opcode(sub)

	var n int
	switch op {
	case OpMemoryInit, OpMemoryCopy, OpTableInit, OpTableCopy:
		n = 2
	case OpDataDrop, OpMemoryFill, OpElemDrop, OpTableGrow, OpTableSize, OpTableFill:
		n = 1
	default:
		return &Plain{Op: op}, nil
	}

	idx := make([]uint32, n)
	for i := range idx {
		if idx[i], err = r.ReadU32(); err != nil {
			return nil, wrapErr(section, start, err)
		}
	}
	in := &Index{Op: op, Index: idx[0]}
	if n > 1 {
		in.Extra = idx[1:]
	}
	return in, nil
}

func prefixFeature(b byte) string {
	switch b {
	case PrefixGC:
		return "GC"
	case PrefixSIMD:
		return "SIMD"
	default:
		return "threads"
	}
}

// readBlockType reads the result type of a block, loop or if.
func readBlockType(r *binary.Reader, section string) (ValType, error) {
	at := r.Offset()
	b, err := r.ReadByte()
	if err != nil {
		return 0, wrapErr(section, at, err)
	}
	t := ValType(b)
	if t == ValVoid || t.IsValue() {
		return t, nil
	}
	if b&0x40 == 0 {
		return 0, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Section(section).At(at).
			Detail("type-indexed block types are not supported").
			Build()
	}
	return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Section(section).At(at).
		Detail("invalid block type 0x%02x", b).
		Build()
}

// readValType reads a single value type byte.
func readValType(r *binary.Reader, section string) (ValType, error) {
	at := r.Offset()
	b, err := r.ReadByte()
	if err != nil {
		return 0, wrapErr(section, at, err)
	}
	t := ValType(b)
	if !t.IsValue() {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Section(section).At(at).
			Detail("invalid value type 0x%02x", b).
			Build()
	}
	return t, nil
}
