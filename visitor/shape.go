package visitor

import "github.com/wippyai/wasm-decoder/wasm"

// Shape is the static stack effect of an instruction: how many operands it
// consumes, the type it produces (ValVoid for none) and the value type it
// operates on.
type Shape struct {
	Pops    int
	Push    wasm.ValType
	Operand wasm.ValType
}

const (
	i32  = wasm.ValI32
	i64  = wasm.ValI64
	f32  = wasm.ValF32
	f64  = wasm.ValF64
	void = wasm.ValVoid
)

func unary(t wasm.ValType) Shape { return Shape{Pops: 1, Push: t, Operand: t} }
func binary(t wasm.ValType) Shape { return Shape{Pops: 2, Push: t, Operand: t} }
func eqz(t wasm.ValType) Shape { return Shape{Pops: 1, Push: i32, Operand: t} }
func compare(t wasm.ValType) Shape { return Shape{Pops: 2, Push: i32, Operand: t} }
func convert(from, to wasm.ValType) Shape { return Shape{Pops: 1, Push: to, Operand: from} }
func load(t wasm.ValType) Shape { return Shape{Pops: 1, Push: t, Operand: t} }
func store(t wasm.ValType) Shape { return Shape{Pops: 2, Push: void, Operand: t} }
func produce(t wasm.ValType) Shape { return Shape{Push: t, Operand: t} }
func consume(n int, t wasm.ValType) Shape { return Shape{Pops: n, Push: void, Operand: t} }

// ShapeOf looks op up in the static shape table. Opcodes whose shape
// depends on the module or the current stack (calls, return, select, drop,
// local and global access, ref.null) are not in the table.
func ShapeOf(op wasm.Opcode) (Shape, bool) {
	switch {
	case op == wasm.OpNop, op == wasm.OpUnreachable:
		return Shape{Push: void}, true

	case op == wasm.OpI32Const:
		return produce(i32), true
	case op == wasm.OpI64Const:
		return produce(i64), true
	case op == wasm.OpF32Const:
		return produce(f32), true
	case op == wasm.OpF64Const:
		return produce(f64), true

	// Memory
	case op == wasm.OpI32Load, op >= wasm.OpI32Load8S && op <= wasm.OpI32Load16U:
		return load(i32), true
	case op == wasm.OpI64Load, op >= wasm.OpI64Load8S && op <= wasm.OpI64Load32U:
		return load(i64), true
	case op == wasm.OpF32Load:
		return load(f32), true
	case op == wasm.OpF64Load:
		return load(f64), true
	case op == wasm.OpI32Store, op == wasm.OpI32Store8, op == wasm.OpI32Store16:
		return store(i32), true
	case op == wasm.OpI64Store, op >= wasm.OpI64Store8 && op <= wasm.OpI64Store32:
		return store(i64), true
	case op == wasm.OpF32Store:
		return store(f32), true
	case op == wasm.OpF64Store:
		return store(f64), true
	case op == wasm.OpMemorySize:
		return produce(i32), true
	case op == wasm.OpMemoryGrow:
		return unary(i32), true

	// Comparisons
	case op == wasm.OpI32Eqz:
		return eqz(i32), true
	case op >= wasm.OpI32Eq && op <= wasm.OpI32GeU:
		return compare(i32), true
	case op == wasm.OpI64Eqz:
		return eqz(i64), true
	case op >= wasm.OpI64Eq && op <= wasm.OpI64GeU:
		return compare(i64), true
	case op >= wasm.OpF32Eq && op <= wasm.OpF32Ge:
		return compare(f32), true
	case op >= wasm.OpF64Eq && op <= wasm.OpF64Ge:
		return compare(f64), true

	// Arithmetic
	case op >= wasm.OpI32Clz && op <= wasm.OpI32Popcnt:
		return unary(i32), true
	case op >= wasm.OpI32Add && op <= wasm.OpI32Rotr:
		return binary(i32), true
	case op >= wasm.OpI64Clz && op <= wasm.OpI64Popcnt:
		return unary(i64), true
	case op >= wasm.OpI64Add && op <= wasm.OpI64Rotr:
		return binary(i64), true
	case op >= wasm.OpF32Abs && op <= wasm.OpF32Sqrt:
		return unary(f32), true
	case op >= wasm.OpF32Add && op <= wasm.OpF32Copysign:
		return binary(f32), true
	case op >= wasm.OpF64Abs && op <= wasm.OpF64Sqrt:
		return unary(f64), true
	case op >= wasm.OpF64Add && op <= wasm.OpF64Copysign:
		return binary(f64), true

	// Conversions
	case op == wasm.OpI32WrapI64:
		return convert(i64, i32), true
	case op == wasm.OpI32TruncF32S, op == wasm.OpI32TruncF32U,
		op == wasm.OpI32TruncSatF32S, op == wasm.OpI32TruncSatF32U:
		return convert(f32, i32), true
	case op == wasm.OpI32TruncF64S, op == wasm.OpI32TruncF64U,
		op == wasm.OpI32TruncSatF64S, op == wasm.OpI32TruncSatF64U:
		return convert(f64, i32), true
	case op == wasm.OpI64ExtendI32S, op == wasm.OpI64ExtendI32U:
		return convert(i32, i64), true
	case op == wasm.OpI64TruncF32S, op == wasm.OpI64TruncF32U,
		op == wasm.OpI64TruncSatF32S, op == wasm.OpI64TruncSatF32U:
		return convert(f32, i64), true
	case op == wasm.OpI64TruncF64S, op == wasm.OpI64TruncF64U,
		op == wasm.OpI64TruncSatF64S, op == wasm.OpI64TruncSatF64U:
		return convert(f64, i64), true
	case op == wasm.OpF32ConvertI32S, op == wasm.OpF32ConvertI32U:
		return convert(i32, f32), true
	case op == wasm.OpF32ConvertI64S, op == wasm.OpF32ConvertI64U:
		return convert(i64, f32), true
	case op == wasm.OpF32DemoteF64:
		return convert(f64, f32), true
	case op == wasm.OpF64ConvertI32S, op == wasm.OpF64ConvertI32U:
		return convert(i32, f64), true
	case op == wasm.OpF64ConvertI64S, op == wasm.OpF64ConvertI64U:
		return convert(i64, f64), true
	case op == wasm.OpF64PromoteF32:
		return convert(f32, f64), true
	case op == wasm.OpI32ReinterpretF32:
		return convert(f32, i32), true
	case op == wasm.OpI64ReinterpretF64:
		return convert(f64, i64), true
	case op == wasm.OpF32ReinterpretI32:
		return convert(i32, f32), true
	case op == wasm.OpF64ReinterpretI64:
		return convert(i64, f64), true
	case op == wasm.OpI32Extend8S, op == wasm.OpI32Extend16S:
		return unary(i32), true
	case op >= wasm.OpI64Extend8S && op <= wasm.OpI64Extend32S:
		return unary(i64), true

	// Reference types and tables. Tables are funcref only.
	case op == wasm.OpRefIsNull:
		return eqz(wasm.ValFuncRef), true
	case op == wasm.OpRefFunc:
		return produce(wasm.ValFuncRef), true
	case op == wasm.OpTableGet:
		return convert(i32, wasm.ValFuncRef), true
	case op == wasm.OpTableSet:
		return consume(2, wasm.ValFuncRef), true

	// Bulk memory and table operations
	case op == wasm.OpMemoryInit, op == wasm.OpMemoryCopy, op == wasm.OpMemoryFill,
		op == wasm.OpTableInit, op == wasm.OpTableCopy:
		return consume(3, i32), true
	case op == wasm.OpTableFill:
		return consume(3, wasm.ValFuncRef), true
	case op == wasm.OpDataDrop, op == wasm.OpElemDrop:
		return Shape{Push: void}, true
	case op == wasm.OpTableGrow:
		return Shape{Pops: 2, Push: i32, Operand: wasm.ValFuncRef}, true
	case op == wasm.OpTableSize:
		return produce(i32), true
	}
	return Shape{}, false
}
