package visitor

import (
	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/wasm"
)

type walker struct {
	ctx     *Context
	v       Visitor
	opts    options
	funcEnd *Label
	exited  bool // a branch targeted funcEnd
}

func (w *walker) function() error {
	ctx := w.ctx
	if err := w.v.FuncStart(ctx); err != nil {
		return err
	}

	w.funcEnd = ctx.newLabel(LabelFuncEnd)
	ctx.enter(w.funcEnd)
	term, err := w.expr(ctx.Func.Code.Body)
	if err != nil {
		return err
	}
	ctx.leave()

	if err := w.settle(0, term, ctx.Func.Type.Results); err != nil {
		return err
	}
	if err := w.v.Label(w.funcEnd, ctx); err != nil {
		return err
	}

	explicit := term != nil && term.Opcode() == wasm.OpReturn
	if w.opts.implicitReturn && (!explicit || w.exited) {
		if _, err := w.plain(&wasm.Plain{Op: wasm.OpReturn}); err != nil {
			return err
		}
	}
	return w.v.FuncEnd(ctx)
}

// expr visits a sequence and returns the instruction that ended it early,
// if any. Nothing after br, br_table, return or unreachable is visited.
func (w *walker) expr(e wasm.Expr) (wasm.Instruction, error) {
	for _, in := range e.Instrs {
		terminal, err := w.instruction(in)
		if err != nil {
			return nil, err
		}
		if terminal {
			return in, nil
		}
	}
	return nil, nil
}

func (w *walker) instruction(in wasm.Instruction) (bool, error) {
	switch in := in.(type) {
	case *wasm.Block:
		if in.Op == wasm.OpLoop {
			return false, w.loop(in)
		}
		return false, w.block(in)
	case *wasm.If:
		return false, w.ifElse(in)
	case *wasm.Br:
		return in.Op == wasm.OpBr, w.br(in)
	case *wasm.BrTable:
		return true, w.brTable(in)
	case *wasm.Plain:
		return w.plain(in)
	default:
		s, res, err := w.shape(in)
		if err != nil {
			return false, err
		}
		return false, w.emit(in, s, res)
	}
}

func (w *walker) block(in *wasm.Block) error {
	ctx := w.ctx
	end := ctx.newLabel(LabelBlockEnd)
	mark := ctx.Mark()

	ctx.enter(end)
	term, err := w.expr(in.Body)
	if err != nil {
		return err
	}
	ctx.leave()

	if err := w.settle(mark, term, results(in.Type)); err != nil {
		return err
	}
	return w.v.Label(end, ctx)
}

func (w *walker) loop(in *wasm.Block) error {
	ctx := w.ctx
	start := ctx.newLabel(LabelLoopStart)
	mark := ctx.Mark()
	if err := w.v.Label(start, ctx); err != nil {
		return err
	}

	ctx.enter(start)
	term, err := w.expr(in.Body)
	if err != nil {
		return err
	}
	ctx.leave()

	return w.settle(mark, term, results(in.Type))
}

func (w *walker) ifElse(in *wasm.If) error {
	ctx := w.ctx
	if err := w.condition(); err != nil {
		return err
	}

	end := ctx.newLabel(LabelIfEnd)
	target := end
	var els *Label
	if in.Else != nil {
		els = ctx.newLabel(LabelIfElse)
		target = els
	}
	if err := w.v.GotoIf(target, false, ctx); err != nil {
		return err
	}

	want := results(in.Type)
	mark := ctx.Mark()
	ctx.enter(end)
	term, err := w.expr(in.Then)
	if err != nil {
		return err
	}
	if err := w.settle(mark, term, want); err != nil {
		return err
	}

	if in.Else != nil {
		if term == nil {
			ctx.setShape(Shape{Push: wasm.ValVoid})
			if err := w.v.Goto(end, ctx); err != nil {
				return err
			}
		}
		if err := ctx.Restore(mark); err != nil {
			return err
		}
		if err := w.v.Label(els, ctx); err != nil {
			return err
		}
		term, err := w.expr(*in.Else)
		if err != nil {
			return err
		}
		if err := w.settle(mark, term, want); err != nil {
			return err
		}
	}
	ctx.leave()

	return w.v.Label(end, ctx)
}

func (w *walker) br(in *wasm.Br) error {
	ctx := w.ctx
	if in.Op == wasm.OpBrIf {
		if err := w.condition(); err != nil {
			return err
		}
		l, err := w.resolve(in.Depth)
		if err != nil {
			return err
		}
		return w.v.GotoIf(l, true, ctx)
	}

	l, err := w.resolve(in.Depth)
	if err != nil {
		return err
	}
	ctx.setShape(Shape{Push: wasm.ValVoid})
	return w.v.Goto(l, ctx)
}

func (w *walker) brTable(in *wasm.BrTable) error {
	ctx := w.ctx
	if err := w.condition(); err != nil {
		return err
	}
	ls := make([]*Label, len(in.Depths))
	for i, d := range in.Depths {
		l, err := w.resolve(d)
		if err != nil {
			return err
		}
		ls[i] = l
	}
	def, err := w.resolve(in.Default)
	if err != nil {
		return err
	}
	return w.v.GotoTable(ls, def, ctx)
}

// condition pops the i32 operand of if, br_if and br_table.
func (w *walker) condition() error {
	w.ctx.setShape(Shape{Pops: 1, Push: wasm.ValVoid, Operand: wasm.ValI32})
	_, err := w.ctx.Pop()
	return err
}

func (w *walker) resolve(depth uint32) (*Label, error) {
	l, err := w.ctx.Resolve(depth)
	if err != nil {
		return nil, err
	}
	if l == w.funcEnd {
		w.exited = true
	}
	return l, nil
}

func (w *walker) plain(in *wasm.Plain) (bool, error) {
	ctx := w.ctx
	switch in.Op {
	case wasm.OpReturn:
		ft := ctx.Func.Type
		s := Shape{Pops: len(ft.Results), Push: wasm.ValVoid, Operand: ft.Result()}
		return true, w.emit(in, s, nil)

	case wasm.OpDrop:
		t, err := ctx.Peek(0)
		if err != nil {
			return false, err
		}
		return false, w.emit(in, Shape{Pops: 1, Push: wasm.ValVoid, Operand: t}, nil)

	case wasm.OpSelect:
		t, err := ctx.Peek(1)
		if err != nil {
			return false, err
		}
		return false, w.emit(in, Shape{Pops: 3, Push: t, Operand: t}, nil)
	}

	s, ok := ShapeOf(in.Op)
	if !ok {
		return false, errors.NotImplemented(uint32(in.Op), in.Op.String())
	}
	return in.Op == wasm.OpUnreachable, w.emit(in, s, nil)
}

// shape resolves the stack effect of a non-control instruction that is not
// a Plain. Calls also return the callee's full result list.
func (w *walker) shape(in wasm.Instruction) (Shape, []wasm.ValType, error) {
	ctx := w.ctx
	switch in := in.(type) {
	case *wasm.Call:
		fn, err := w.callee(in.Func)
		if err != nil {
			return Shape{}, nil, err
		}
		return callShape(fn.Type, 0), fn.Type.Results, nil

	case *wasm.CallIndirect:
		if int(in.Type) >= len(ctx.Module.Types) {
			return Shape{}, nil, errors.OutOfBounds(errors.PhaseVisit, "type", int(in.Type), len(ctx.Module.Types))
		}
		ft := ctx.Module.Types[in.Type]
		return callShape(ft, 1), ft.Results, nil

	case *wasm.SelectT:
		t := in.Types[0]
		return Shape{Pops: 3, Push: t, Operand: t}, nil, nil

	case *wasm.RefNull:
		return produce(in.Type), nil, nil

	case *wasm.Index:
		switch in.Op {
		case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
			if int(in.Index) >= len(ctx.Locals) {
				return Shape{}, nil, errors.OutOfBounds(errors.PhaseVisit, "local", int(in.Index), len(ctx.Locals))
			}
			t := ctx.Locals[in.Index]
			return accessShape(in.Op, t), nil, nil
		case wasm.OpGlobalGet, wasm.OpGlobalSet:
			if int(in.Index) >= len(ctx.Module.Globals) {
				return Shape{}, nil, errors.OutOfBounds(errors.PhaseVisit, "global", int(in.Index), len(ctx.Module.Globals))
			}
			t := ctx.Module.Globals[in.Index].Type.Type
			return accessShape(in.Op, t), nil, nil
		}
	}

	op := in.Opcode()
	s, ok := ShapeOf(op)
	if !ok {
		return Shape{}, nil, errors.NotImplemented(uint32(op), op.String())
	}
	return s, nil, nil
}

func (w *walker) callee(idx uint32) (*wasm.Function, error) {
	fns := w.ctx.Module.Functions
	if int(idx) >= len(fns) {
		return nil, errors.OutOfBounds(errors.PhaseVisit, "function", int(idx), len(fns))
	}
	return fns[idx], nil
}

func callShape(ft wasm.FuncType, extra int) Shape {
	return Shape{Pops: len(ft.Params) + extra, Push: ft.Result(), Operand: ft.Result()}
}

func accessShape(op wasm.Opcode, t wasm.ValType) Shape {
	switch op {
	case wasm.OpLocalGet, wasm.OpGlobalGet:
		return produce(t)
	case wasm.OpLocalTee:
		return unary(t)
	default:
		return consume(1, t)
	}
}

// emit pops the shape's operands, visits in and pushes its result.
// Calls pass their full result list so multi-value signatures keep the
// stack exact.
func (w *walker) emit(in wasm.Instruction, s Shape, results []wasm.ValType) error {
	ctx := w.ctx
	if err := ctx.PopN(s.Pops); err != nil {
		return err
	}
	ctx.setShape(s)
	if results != nil {
		ctx.Pushes = len(results)
	}
	if err := w.v.Visit(in, ctx); err != nil {
		return err
	}
	if results != nil {
		ctx.Stack = append(ctx.Stack, results...)
		return nil
	}
	ctx.PushType(s.Push)
	return nil
}

// settle closes a scope. A scope left by falling through must hold exactly
// want above mark; one left by a branch or return is unreachable at its end
// and only gets reset. Either way the stack ends as mark plus want.
func (w *walker) settle(mark StackMark, term wasm.Instruction, want []wasm.ValType) error {
	ctx := w.ctx
	if term == nil {
		if int(mark) > len(ctx.Stack) || !sameTypes(ctx.Stack[mark:], want) {
			var got []wasm.ValType
			if int(mark) <= len(ctx.Stack) {
				got = ctx.Stack[mark:]
			}
			return errors.New(errors.PhaseVisit, errors.KindInvalidData).
				Detail("function %d: scope ends with %v on the stack, want %v", ctx.Func.Index, got, want).
				Build()
		}
	}
	if err := ctx.Restore(mark); err != nil {
		return err
	}
	ctx.Stack = append(ctx.Stack, want...)
	return nil
}

func results(t wasm.ValType) []wasm.ValType {
	if t == wasm.ValVoid {
		return nil
	}
	return []wasm.ValType{t}
}

func sameTypes(a, b []wasm.ValType) bool {
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
