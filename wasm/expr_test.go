package wasm_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/internal/wasmtest"
	"github.com/wippyai/wasm-decoder/wasm"
)

func decode(t *testing.T, code ...byte) wasm.Expr {
	t.Helper()
	e, err := wasm.DecodeExpr(code)
	if err != nil {
		t.Fatalf("DecodeExpr(% x): %v", code, err)
	}
	return e
}

func TestDecodeIfElseFolding(t *testing.T) {
	e := decode(t,
		0x04, 0x7f, // if (result i32)
		0x41, 0x01,
		0x05, // else
		0x41, 0x02,
		0x0b, // end if
		0x0b,
	)
	if e.Len() != 1 {
		t.Fatalf("expected 1 instruction, got %d", e.Len())
	}
	in, ok := e.Instrs[0].(*wasm.If)
	if !ok {
		t.Fatalf("expected *wasm.If, got %T", e.Instrs[0])
	}
	if in.Type != wasm.ValI32 {
		t.Errorf("block type = %s", in.Type)
	}
	if in.Then.Len() != 1 || in.Then.Instrs[0].(*wasm.I32Const).Value != 1 {
		t.Errorf("then = %+v", in.Then)
	}
	if in.Else == nil || in.Else.Len() != 1 || in.Else.Instrs[0].(*wasm.I32Const).Value != 2 {
		t.Errorf("else = %+v", in.Else)
	}
}

func TestDecodeIfWithoutElse(t *testing.T) {
	e := decode(t, 0x41, 0x00, 0x04, 0x40, 0x01, 0x0b, 0x0b)
	in := e.Instrs[1].(*wasm.If)
	if in.Else != nil {
		t.Error("Else should be nil when no else marker is present")
	}
	if in.Type != wasm.ValVoid || in.Then.Len() != 1 {
		t.Errorf("if = %+v", in)
	}
}

func TestDecodeNestedBlocks(t *testing.T) {
	e := decode(t,
		0x02, 0x40, // block
		0x03, 0x40, // loop
		0x0c, 0x01, // br 1
		0x0b,
		0x0b,
		0x0b,
	)
	block := e.Instrs[0].(*wasm.Block)
	if block.Op != wasm.OpBlock || block.Body.Len() != 1 {
		t.Fatalf("block = %+v", block)
	}
	loop := block.Body.Instrs[0].(*wasm.Block)
	if loop.Op != wasm.OpLoop {
		t.Errorf("inner op = %s", loop.Op)
	}
	br := loop.Body.Instrs[0].(*wasm.Br)
	if br.Op != wasm.OpBr || br.Depth != 1 {
		t.Errorf("br = %+v", br)
	}
}

func TestDecodeElseOutsideIf(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		offset int
	}{
		{"top level", []byte{0x05, 0x0b}, 0},
		{"inside block", []byte{0x02, 0x40, 0x05, 0x0b, 0x0b}, 2},
		{"second else", []byte{0x41, 0x00, 0x04, 0x40, 0x05, 0x05, 0x0b, 0x0b}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.DecodeExpr(tt.code)
			e := expectKind(t, err, errors.KindInvalidData)
			if e.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", e.Offset, tt.offset)
			}
		})
	}
}

func TestDecodeBrTable(t *testing.T) {
	e := decode(t, 0x0e, 0x02, 0x00, 0x01, 0x02, 0x0b)
	bt := e.Instrs[0].(*wasm.BrTable)
	if len(bt.Depths) != 2 || bt.Depths[0] != 0 || bt.Depths[1] != 1 || bt.Default != 2 {
		t.Errorf("br_table = %+v", bt)
	}
}

func TestDecodeConstants(t *testing.T) {
	e := decode(t,
		0x41, 0x7f, // i32.const -1
		0x42, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f, // i64.const min
		0x43, 0x00, 0x00, 0xc0, 0x3f, // f32.const 1.5
		0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x7f, // f64.const +inf
		0x0b,
	)
	if v := e.Instrs[0].(*wasm.I32Const).Value; v != -1 {
		t.Errorf("i32.const = %d", v)
	}
	if v := e.Instrs[1].(*wasm.I64Const).Value; v != math.MinInt64 {
		t.Errorf("i64.const = %d", v)
	}
	if v := e.Instrs[2].(*wasm.F32Const).Value; v != 1.5 {
		t.Errorf("f32.const = %v", v)
	}
	if v := e.Instrs[3].(*wasm.F64Const).Value; !math.IsInf(v, 1) {
		t.Errorf("f64.const = %v", v)
	}
}

func TestDecodeMemArg(t *testing.T) {
	e := decode(t, 0x41, 0x00, 0x28, 0x02, 0x10, 0x1a, 0x0b)
	in := e.Instrs[1].(*wasm.MemArg)
	if in.Op != wasm.OpI32Load || in.Align != 2 || in.Offset != 16 {
		t.Errorf("memarg = %+v", in)
	}
}

func TestDecodeMiscImmediates(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		op    wasm.Opcode
		index uint32
		extra []uint32
		plain bool
	}{
		{"trunc_sat", []byte{0xfc, 0x00}, wasm.OpI32TruncSatF32S, 0, nil, true},
		{"trunc_sat last", []byte{0xfc, 0x07}, wasm.OpI64TruncSatF64U, 0, nil, true},
		{"memory.init", []byte{0xfc, 0x08, 0x03, 0x00}, wasm.OpMemoryInit, 3, []uint32{0}, false},
		{"data.drop", []byte{0xfc, 0x09, 0x02}, wasm.OpDataDrop, 2, nil, false},
		{"memory.copy", []byte{0xfc, 0x0a, 0x00, 0x00}, wasm.OpMemoryCopy, 0, []uint32{0}, false},
		{"memory.fill", []byte{0xfc, 0x0b, 0x00}, wasm.OpMemoryFill, 0, nil, false},
		{"table.init", []byte{0xfc, 0x0c, 0x01, 0x02}, wasm.OpTableInit, 1, []uint32{2}, false},
		{"elem.drop", []byte{0xfc, 0x0d, 0x04}, wasm.OpElemDrop, 4, nil, false},
		{"table.copy", []byte{0xfc, 0x0e, 0x01, 0x00}, wasm.OpTableCopy, 1, []uint32{0}, false},
		{"table.grow", []byte{0xfc, 0x0f, 0x00}, wasm.OpTableGrow, 0, nil, false},
		{"table.size", []byte{0xfc, 0x10, 0x05}, wasm.OpTableSize, 5, nil, false},
		{"table.fill", []byte{0xfc, 0x11, 0x00}, wasm.OpTableFill, 0, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decode(t, append(tt.code, 0x0b)...)
			if e.Len() != 1 {
				t.Fatalf("expected 1 instruction, got %d", e.Len())
			}
			if got := e.Instrs[0].Opcode(); got != tt.op {
				t.Fatalf("opcode = %s, want %s", got, tt.op)
			}
			if tt.plain {
				if _, ok := e.Instrs[0].(*wasm.Plain); !ok {
					t.Errorf("expected *wasm.Plain, got %T", e.Instrs[0])
				}
				return
			}
			in, ok := e.Instrs[0].(*wasm.Index)
			if !ok {
				t.Fatalf("expected *wasm.Index, got %T", e.Instrs[0])
			}
			if in.Index != tt.index {
				t.Errorf("index = %d, want %d", in.Index, tt.index)
			}
			if len(in.Extra) != len(tt.extra) {
				t.Fatalf("extra = %v, want %v", in.Extra, tt.extra)
			}
			for i := range tt.extra {
				if in.Extra[i] != tt.extra[i] {
					t.Errorf("extra[%d] = %d, want %d", i, in.Extra[i], tt.extra[i])
				}
			}
		})
	}
}

func TestDecodeUnknownMiscOpcode(t *testing.T) {
	_, err := wasm.DecodeExpr([]byte{0x01, 0xfc, 0x12, 0x0b})
	e := expectKind(t, err, errors.KindInvalidOpcode)
	if e.Opcode != 0xfc12 || e.Offset != 1 {
		t.Errorf("opcode=%#x offset=%d", e.Opcode, e.Offset)
	}
}

func TestDecodeUnsupportedPrefixes(t *testing.T) {
	for _, prefix := range []byte{wasm.PrefixGC, wasm.PrefixSIMD, wasm.PrefixThreads} {
		_, err := wasm.DecodeExpr([]byte{0x41, 0x00, prefix, 0x0c, 0x0b})
		e := expectKind(t, err, errors.KindUnsupported)
		if e.Offset != 2 {
			t.Errorf("prefix %#x: offset = %d, want 2", prefix, e.Offset)
		}
		if e.Opcode>>8 != uint32(prefix) {
			t.Errorf("prefix %#x: opcode = %#x", prefix, e.Opcode)
		}
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := wasm.DecodeExpr([]byte{0x41, 0x00, 0xd7, 0x0b})
	e := expectKind(t, err, errors.KindInvalidOpcode)
	if e.Opcode != 0xd7 || e.Offset != 2 {
		t.Errorf("opcode=%#x offset=%d", e.Opcode, e.Offset)
	}
}

func TestUnknownOpcodeOffsetInModule(t *testing.T) {
	b := wasmtest.New()
	v := b.Type(nil, nil)
	b.Func(v, nil, 0x01, 0x01, 0xd7, 0x0b)
	data := b.Bytes()

	_, err := wasm.ParseModule(data)
	e := expectKind(t, err, errors.KindInvalidOpcode)
	want := bytes.LastIndex(data, []byte{0x01, 0x01, 0xd7}) + 2
	if e.Offset != want {
		t.Errorf("offset = %d, want %d", e.Offset, want)
	}
	if e.Section != "code" {
		t.Errorf("section = %q, want code", e.Section)
	}
}

func TestDecodeBlockTypes(t *testing.T) {
	_, err := wasm.DecodeExpr([]byte{0x02, 0x00, 0x0b, 0x0b})
	expectKind(t, err, errors.KindUnsupported)

	_, err = wasm.DecodeExpr([]byte{0x02, 0x55, 0x0b, 0x0b})
	expectKind(t, err, errors.KindInvalidData)

	e := decode(t, 0x02, 0x7e, 0x42, 0x00, 0x0b, 0x0b)
	if bt := e.Instrs[0].(*wasm.Block).Type; bt != wasm.ValI64 {
		t.Errorf("block type = %s", bt)
	}
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		offset int
	}{
		{"missing end", []byte{0x01}, 1},
		{"open block", []byte{0x02, 0x40}, 2},
		{"immediate", []byte{0x41}, 0},
		{"memarg", []byte{0x28, 0x02}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.DecodeExpr(tt.code)
			e := expectKind(t, err, errors.KindTruncated)
			if e.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", e.Offset, tt.offset)
			}
		})
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	_, err := wasm.DecodeExpr([]byte{0x0b, 0x01})
	expectKind(t, err, errors.KindFraming)
}

func TestDecodeReferenceOps(t *testing.T) {
	e := decode(t, 0xd0, 0x70, 0xd1, 0xd2, 0x03, 0x1a, 0x0b)
	if rn := e.Instrs[0].(*wasm.RefNull); rn.Type != wasm.ValFuncRef {
		t.Errorf("ref.null type = %s", rn.Type)
	}
	if e.Instrs[1].Opcode() != wasm.OpRefIsNull {
		t.Errorf("instr 1 = %s", e.Instrs[1].Opcode())
	}
	if rf := e.Instrs[2].(*wasm.Index); rf.Op != wasm.OpRefFunc || rf.Index != 3 {
		t.Errorf("ref.func = %+v", rf)
	}

	_, err := wasm.DecodeExpr([]byte{0xd0, 0x7f, 0x0b})
	expectKind(t, err, errors.KindInvalidData)
}

func TestDecodeTypedSelect(t *testing.T) {
	e := decode(t, 0x1c, 0x01, 0x7c, 0x0b)
	st := e.Instrs[0].(*wasm.SelectT)
	if len(st.Types) != 1 || st.Types[0] != wasm.ValF64 {
		t.Errorf("select types = %v", st.Types)
	}

	_, err := wasm.DecodeExpr([]byte{0x1c, 0x02, 0x7f, 0x7f, 0x0b})
	expectKind(t, err, errors.KindInvalidData)
}

func TestExprLast(t *testing.T) {
	var empty wasm.Expr
	if empty.Last() != nil {
		t.Error("Last of empty expr should be nil")
	}
	e := decode(t, 0x01, 0x0f, 0x0b)
	if e.Last().Opcode() != wasm.OpReturn {
		t.Errorf("Last = %s", e.Last().Opcode())
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   wasm.Instruction
		want string
	}{
		{&wasm.Plain{Op: wasm.OpI32Add}, "i32.add"},
		{&wasm.Block{Op: wasm.OpLoop, Type: wasm.ValVoid}, "loop"},
		{&wasm.If{Type: wasm.ValI32}, "if (result i32)"},
		{&wasm.Br{Op: wasm.OpBrIf, Depth: 2}, "br_if 2"},
		{&wasm.BrTable{Depths: []uint32{0, 1}, Default: 3}, "br_table 0 1 3"},
		{&wasm.Call{Func: 7}, "call 7"},
		{&wasm.CallIndirect{Type: 2, Table: 0}, "call_indirect 0 (type 2)"},
		{&wasm.Index{Op: wasm.OpLocalGet, Index: 1}, "local.get 1"},
		{&wasm.Index{Op: wasm.OpMemoryCopy, Index: 0, Extra: []uint32{0}}, "memory.copy 0 0"},
		{&wasm.MemArg{Op: wasm.OpI64Store, Align: 3, Offset: 8}, "i64.store offset=8 align=8"},
		{&wasm.RefNull{Type: wasm.ValFuncRef}, "ref.null funcref"},
		{&wasm.SelectT{Types: []wasm.ValType{wasm.ValI64}}, "select (result i64)"},
		{&wasm.I32Const{Value: -5}, "i32.const -5"},
		{&wasm.F32Const{Value: 0.5}, "f32.const 0.5"},
		{&wasm.F64Const{Value: 2}, "f64.const 2"},
	}
	for _, tt := range tests {
		if got := wasm.Format(tt.in); got != tt.want {
			t.Errorf("Format = %q, want %q", got, tt.want)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   wasm.Opcode
		want string
	}{
		{wasm.OpI32Add, "i32.add"},
		{wasm.OpMemoryFill, "memory.fill"},
		{wasm.OpI32TruncSatF32S, "i32.trunc_sat_f32_s"},
		{wasm.OpCallIndirect, "call_indirect"},
		{wasm.Opcode(0xd7), "unknown(0xd7)"},
		{wasm.Opcode(0xfc20), "unknown(0xfc 32)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%#x).String() = %q, want %q", uint16(tt.op), got, tt.want)
		}
	}
	if !wasm.OpTableFill.IsPrefixed() || wasm.OpTableFill.Prefix() != wasm.PrefixMisc {
		t.Error("table.fill should carry the misc prefix")
	}
	if wasm.Opcode(0xd7).Known() {
		t.Error("0xd7 should not be known")
	}
}
