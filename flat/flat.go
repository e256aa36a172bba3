// Package flat compiles function bodies into a linear op list with
// absolute jump targets, the form a program-counter interpreter runs.
package flat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/visitor"
	"github.com/wippyai/wasm-decoder/wasm"
)

// OpKind discriminates the entries of a Program.
type OpKind uint8

const (
	OpInstr     OpKind = iota // execute Instr
	OpGoto                    // jump to Target
	OpGotoIf                  // pop i32, jump to Target if non-zero
	OpGotoIfNot               // pop i32, jump to Target if zero
	OpGotoTable               // pop i32, jump to Targets[i] or Target
)

func (k OpKind) String() string {
	switch k {
	case OpInstr:
		return "instr"
	case OpGoto:
		return "goto"
	case OpGotoIf:
		return "goto_if"
	case OpGotoIfNot:
		return "goto_if_not"
	case OpGotoTable:
		return "goto_table"
	default:
		return fmt.Sprintf("op_kind(%d)", uint8(k))
	}
}

// Op is one entry of a Program. Height is the type stack depth after the
// op has run.
type Op struct {
	Instr   wasm.Instruction
	Targets []int
	Kind    OpKind
	Type    wasm.ValType
	Push    wasm.ValType
	Pushes  int
	Pops    int
	Target  int
	Height  int
}

// Program is a compiled function body.
type Program struct {
	Func         *wasm.Function
	Ops          []Op
	Locals       []wasm.ValType
	LocalOffsets []uint32
	LocalsSize   uint32
	MaxHeight    int
}

type patch struct {
	label  *visitor.Label
	op     int
	target int // index into Targets, -1 for Target
}

type compiler struct {
	visitor.Base
	prog    *Program
	patches []patch
}

// Compile lowers fn, a locally defined function of m.
func Compile(m *wasm.Module, fn *wasm.Function, opts ...visitor.Option) (*Program, error) {
	c := &compiler{prog: &Program{Func: fn}}
	if err := visitor.Accept(m, fn, c, opts...); err != nil {
		return nil, err
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c.prog, nil
}

// CompileModule compiles every locally defined function of m in index order.
func CompileModule(m *wasm.Module, opts ...visitor.Option) ([]*Program, error) {
	local := m.LocalFunctions()
	progs := make([]*Program, 0, len(local))
	for _, fn := range local {
		p, err := Compile(m, fn, opts...)
		if err != nil {
			return nil, fmt.Errorf("function %d (%s): %w", fn.Index, fn.Name(), err)
		}
		progs = append(progs, p)
	}
	return progs, nil
}

func (c *compiler) FuncStart(ctx *visitor.Context) error {
	c.prog.Locals = ctx.Locals
	c.prog.LocalOffsets = ctx.LocalOffsets
	c.prog.LocalsSize = ctx.LocalsSize
	return nil
}

func (c *compiler) Visit(in wasm.Instruction, ctx *visitor.Context) error {
	c.emit(Op{
		Kind:   OpInstr,
		Instr:  in,
		Type:   ctx.Operand,
		Push:   ctx.Push,
		Pushes: ctx.Pushes,
		Pops:   ctx.Pops,
		Height: ctx.Depth() + ctx.Pushes,
	})
	return nil
}

func (c *compiler) Goto(l *visitor.Label, ctx *visitor.Context) error {
	c.branch(Op{Kind: OpGoto, Height: ctx.Depth()}, l)
	return nil
}

func (c *compiler) GotoIf(l *visitor.Label, when bool, ctx *visitor.Context) error {
	kind := OpGotoIfNot
	if when {
		kind = OpGotoIf
	}
	c.branch(Op{Kind: kind, Type: wasm.ValI32, Pops: 1, Height: ctx.Depth()}, l)
	return nil
}

func (c *compiler) GotoTable(ls []*visitor.Label, def *visitor.Label, ctx *visitor.Context) error {
	at := c.branch(Op{
		Kind:    OpGotoTable,
		Type:    wasm.ValI32,
		Pops:    1,
		Height:  ctx.Depth(),
		Targets: make([]int, len(ls)),
	}, def)
	for i, l := range ls {
		c.patches = append(c.patches, patch{label: l, op: at, target: i})
	}
	return nil
}

func (c *compiler) Label(l *visitor.Label, _ *visitor.Context) error {
	l.Target = len(c.prog.Ops)
	return nil
}

func (c *compiler) emit(op Op) int {
	c.prog.Ops = append(c.prog.Ops, op)
	if op.Height > c.prog.MaxHeight {
		c.prog.MaxHeight = op.Height
	}
	return len(c.prog.Ops) - 1
}

func (c *compiler) branch(op Op, l *visitor.Label) int {
	op.Target = -1
	at := c.emit(op)
	c.patches = append(c.patches, patch{label: l, op: at, target: -1})
	return at
}

// resolve rewrites jump targets once every label has been placed.
func (c *compiler) resolve() error {
	for _, p := range c.patches {
		if p.label.Target < 0 {
			return errors.New(errors.PhaseVisit, errors.KindInvalidData).
				Detail("label %s (%s) was never placed", p.label, p.label.Kind).
				Build()
		}
		op := &c.prog.Ops[p.op]
		if p.target < 0 {
			op.Target = p.label.Target
		} else {
			op.Targets[p.target] = p.label.Target
		}
	}
	c.patches = nil
	return nil
}

// String renders a numbered listing.
func (p *Program) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "func %s %s locals=%d size=%d\n", p.Func.Name(), p.Func.Type, len(p.Locals), p.LocalsSize)
	width := len(strconv.Itoa(len(p.Ops)))
	for i, op := range p.Ops {
		fmt.Fprintf(&b, "%*d  %s\n", width, i, op)
	}
	return b.String()
}

func (op Op) String() string {
	switch op.Kind {
	case OpInstr:
		return wasm.Format(op.Instr)
	case OpGotoTable:
		parts := make([]string, len(op.Targets))
		for i, t := range op.Targets {
			parts[i] = strconv.Itoa(t)
		}
		return fmt.Sprintf("%s [%s] %d", op.Kind, strings.Join(parts, " "), op.Target)
	default:
		return fmt.Sprintf("%s %d", op.Kind, op.Target)
	}
}
