package visitor

import (
	"fmt"

	"github.com/wippyai/wasm-decoder/errors"
	"github.com/wippyai/wasm-decoder/wasm"
)

// LabelKind says where a label is placed relative to its structure.
type LabelKind uint8

const (
	LabelBlockEnd  LabelKind = iota // after a block body
	LabelLoopStart                  // before a loop body
	LabelIfElse                     // before an else branch
	LabelIfEnd                      // after an if
	LabelFuncEnd                    // after the function body
)

func (k LabelKind) String() string {
	switch k {
	case LabelBlockEnd:
		return "block_end"
	case LabelLoopStart:
		return "loop_start"
	case LabelIfElse:
		return "if_else"
	case LabelIfEnd:
		return "if_end"
	case LabelFuncEnd:
		return "func_end"
	default:
		return fmt.Sprintf("label_kind(%d)", uint8(k))
	}
}

// Label is a jump target produced by lowering structured control flow.
// IDs are unique within one traversal. Target is free for backends to
// record the position the label was placed at; it starts at -1.
type Label struct {
	ID     int
	Kind   LabelKind
	Target int
}

func (l *Label) String() string {
	return fmt.Sprintf("L%d", l.ID)
}

// StackMark is a saved type stack depth.
type StackMark int

// Context is the state of one function traversal. It is owned by a single
// Accept call and handed to every hook.
type Context struct {
	Module *wasm.Module
	Func   *wasm.Function

	// Stack is the operand type stack, top last.
	Stack []wasm.ValType

	// Locals holds parameter types followed by declared locals. Each local
	// is laid out at LocalOffsets[i], LocalsSize bytes in total.
	Locals       []wasm.ValType
	LocalOffsets []uint32
	LocalsSize   uint32

	// Shape of the instruction being visited. Pushes is the number of
	// values it leaves on the stack; it exceeds one only for calls to
	// multi-value functions, where Push is the first result.
	Pops    int
	Pushes  int
	Push    wasm.ValType
	Operand wasm.ValType

	labels    []*Label
	nextLabel int
}

// NewContext prepares a traversal context for a locally defined function.
func NewContext(m *wasm.Module, fn *wasm.Function) (*Context, error) {
	if fn.Code == nil {
		return nil, errors.New(errors.PhaseVisit, errors.KindInvalidData).
			Value(fn.Index).
			Detail("function %d (%s) has no body", fn.Index, fn.Name()).
			Build()
	}
	ctx := &Context{
		Module: m,
		Func:   fn,
		Locals: fn.Locals(),
	}
	ctx.LocalOffsets = make([]uint32, len(ctx.Locals))
	for i, t := range ctx.Locals {
		ctx.LocalOffsets[i] = ctx.LocalsSize
		ctx.LocalsSize += t.Size()
	}
	return ctx, nil
}

// Depth returns the number of values on the type stack.
func (c *Context) Depth() int {
	return len(c.Stack)
}

// PushType pushes t unless it is ValVoid.
func (c *Context) PushType(t wasm.ValType) {
	if t != wasm.ValVoid {
		c.Stack = append(c.Stack, t)
	}
}

// Pop removes and returns the top of the type stack.
func (c *Context) Pop() (wasm.ValType, error) {
	if len(c.Stack) == 0 {
		return 0, c.underflow(1)
	}
	t := c.Stack[len(c.Stack)-1]
	c.Stack = c.Stack[:len(c.Stack)-1]
	return t, nil
}

// PopN removes n values from the type stack.
func (c *Context) PopN(n int) error {
	if n > len(c.Stack) {
		return c.underflow(n)
	}
	c.Stack = c.Stack[:len(c.Stack)-n]
	return nil
}

// Peek returns the value n slots below the top; Peek(0) is the top.
func (c *Context) Peek(n int) (wasm.ValType, error) {
	if n >= len(c.Stack) {
		return 0, c.underflow(n + 1)
	}
	return c.Stack[len(c.Stack)-1-n], nil
}

// Mark saves the current stack depth.
func (c *Context) Mark() StackMark {
	return StackMark(len(c.Stack))
}

// Restore truncates the stack back to a saved depth.
func (c *Context) Restore(m StackMark) error {
	if int(m) > len(c.Stack) {
		return c.underflow(int(m) - len(c.Stack))
	}
	c.Stack = c.Stack[:m]
	return nil
}

// Labels returns the active labels, innermost last.
func (c *Context) Labels() []*Label {
	return c.labels
}

// Resolve maps a relative branch depth to an active label. Depth 0 is the
// innermost enclosing structure.
func (c *Context) Resolve(depth uint32) (*Label, error) {
	if int(depth) >= len(c.labels) {
		return nil, errors.New(errors.PhaseVisit, errors.KindOutOfBounds).
			Value(depth).
			Detail("branch depth %d exceeds %d enclosing labels", depth, len(c.labels)).
			Build()
	}
	return c.labels[len(c.labels)-1-int(depth)], nil
}

func (c *Context) newLabel(kind LabelKind) *Label {
	l := &Label{ID: c.nextLabel, Kind: kind, Target: -1}
	c.nextLabel++
	return l
}

func (c *Context) enter(l *Label) {
	c.labels = append(c.labels, l)
}

func (c *Context) leave() {
	c.labels = c.labels[:len(c.labels)-1]
}

func (c *Context) setShape(s Shape) {
	c.Pops, c.Push, c.Operand = s.Pops, s.Push, s.Operand
	c.Pushes = 0
	if s.Push != wasm.ValVoid {
		c.Pushes = 1
	}
}

func (c *Context) underflow(need int) error {
	return errors.New(errors.PhaseVisit, errors.KindInvalidData).
		Detail("type stack underflow in function %d: need %d, have %d", c.Func.Index, need, len(c.Stack)).
		Build()
}
