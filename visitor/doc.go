// Package visitor lowers the structured control flow of a decoded function
// body into labels and gotos while tracking the operand type stack.
//
// A backend implements Visitor (usually by embedding Base) and calls
// Accept. Blocks, loops and ifs never reach Visit. They arrive as Label
// placements and Goto, GotoIf and GotoTable calls, with branch depths
// already resolved to concrete labels:
//
//	block  ... end   body, then Label(blockEnd)
//	loop   ... end   Label(loopStart), then body
//	if ... else ... end
//	                 GotoIf(else or end, false), then-body, Goto(end),
//	                 Label(else), else-body, Label(end)
//
// The body itself is the outermost scope, closed by a LabelFuncEnd label,
// so a branch to it behaves like return. Unless disabled with
// WithoutImplicitReturn, a body that does not end in return gets a
// synthesized return after that label, so every traversal ends in one.
//
// Every other instruction is passed to Visit after its operands have been
// popped from Context.Stack; Context.Pops, Push and Operand describe its
// shape. Shapes come from a static table (ShapeOf) except for calls,
// return, select, drop, ref.null and local and global access, whose shapes
// depend on the module or the stack. Nothing after br, br_table, return or
// unreachable in the same sequence is visited.
//
// Each Accept call owns its Context, so different functions of one module
// may be visited concurrently.
package visitor
