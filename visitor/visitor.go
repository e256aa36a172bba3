package visitor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-decoder/wasm"
)

// Visitor receives a flattened traversal of one function body. Structured
// control flow arrives as Label placements and gotos; every other
// instruction arrives through Visit with the Context shape fields set.
// A non-nil error from any hook aborts the traversal.
type Visitor interface {
	FuncStart(ctx *Context) error
	FuncEnd(ctx *Context) error
	Visit(in wasm.Instruction, ctx *Context) error
	Goto(l *Label, ctx *Context) error
	// GotoIf jumps to l when the popped condition is non-zero == when.
	GotoIf(l *Label, when bool, ctx *Context) error
	GotoTable(ls []*Label, def *Label, ctx *Context) error
	Label(l *Label, ctx *Context) error
}

// Base implements every hook as a no-op. Embed it to override only the
// hooks a backend needs.
type Base struct{}

func (Base) FuncStart(*Context) error { return nil }
func (Base) FuncEnd(*Context) error { return nil }
func (Base) Visit(wasm.Instruction, *Context) error { return nil }
func (Base) Goto(*Label, *Context) error { return nil }
func (Base) GotoIf(*Label, bool, *Context) error { return nil }
func (Base) GotoTable([]*Label, *Label, *Context) error { return nil }
func (Base) Label(*Label, *Context) error { return nil }

type options struct {
	logger         *zap.Logger
	implicitReturn bool
}

// Option configures a traversal.
type Option func(*options)

// WithLogger sets the logger used for traversal diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithoutImplicitReturn disables the synthesized return at the end of a
// body that does not end in one.
func WithoutImplicitReturn() Option {
	return func(o *options) {
		o.implicitReturn = false
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), implicitReturn: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Accept walks the body of fn, a locally defined function of m, and drives
// v with the lowered control flow.
func Accept(m *wasm.Module, fn *wasm.Function, v Visitor, opts ...Option) error {
	ctx, err := NewContext(m, fn)
	if err != nil {
		return err
	}
	o := newOptions(opts)
	w := &walker{ctx: ctx, v: v, opts: o}

	o.logger.Debug("visiting function",
		zap.Uint32("index", fn.Index),
		zap.String("name", fn.Name()),
		zap.Int("locals", len(ctx.Locals)),
		zap.Uint32("locals_size", ctx.LocalsSize))

	return w.function()
}

// AcceptModule visits every locally defined function of m in index order.
// newVisitor is called once per function; each traversal gets its own
// Context.
func AcceptModule(m *wasm.Module, newVisitor func(fn *wasm.Function) Visitor, opts ...Option) error {
	for _, fn := range m.LocalFunctions() {
		if err := Accept(m, fn, newVisitor(fn), opts...); err != nil {
			return fmt.Errorf("function %d (%s): %w", fn.Index, fn.Name(), err)
		}
	}
	return nil
}
