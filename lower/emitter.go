package lower

import "github.com/gogpu/wgsl-ir/ir"

// Emitter tracks the currently-open window of not-yet-emitted
// expression handles and turns it into an ir.StmtEmit statement once the
// window closes -- either because the statement being lowered needs one
// (an assignment, a call, a control-flow statement) or because an
// expression kind that cannot be emitted at all (a Constant/Override
// expression, which has no runtime side effect to sequence) interrupts
// the window.
//
// This mirrors the teacher's ad hoc StmtEmit usage: naga's lowerer keeps
// exactly this kind of start-pointer-plus-flush bookkeeping so that
// every runtime expression ends up inside some Emit range before any
// statement that reads it.
type Emitter struct {
	start  ir.ExpressionHandle
	active bool
}

// NewEmitter creates an Emitter with no open window.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Start opens an emit window at the function's current expression-arena
// length, if one is not already open. Calling Start while a window is
// already open is a no-op, matching naga's emitter: nested expression
// lowering shares the same outer window rather than opening a new one.
func (e *Emitter) Start(fn *ir.Function) {
	if e.active {
		return
	}
	e.start = ir.ExpressionHandle(len(fn.Expressions))
	e.active = true
}

// Finish closes the current window and returns the StmtEmit statement
// covering it, or (Statement{}, false) if the window was empty or was
// never opened -- an empty range emits nothing, since every expression
// in it was already covered by an earlier Emit.
func (e *Emitter) Finish(fn *ir.Function) (ir.Statement, bool) {
	if !e.active {
		return ir.Statement{}, false
	}
	end := ir.ExpressionHandle(len(fn.Expressions))
	e.active = false
	if end == e.start {
		return ir.Statement{}, false
	}
	return ir.Statement{Kind: ir.StmtEmit{Range: ir.Range{Start: e.start, End: end}}}, true
}

// Interrupt closes the current window (if any) appending its Emit
// statement to block, then immediately reopens a fresh window starting
// after the interrupting expression. Call this after appending a
// Constant/Override expression, which -- having no runtime side effect
// -- must never itself appear inside an Emit range.
func (e *Emitter) Interrupt(fn *ir.Function, block *ir.Block) {
	if stmt, ok := e.Finish(fn); ok {
		*block = append(*block, stmt)
	}
	e.start = ir.ExpressionHandle(len(fn.Expressions))
	e.active = true
}

// FlushInto closes the current window (if any) and appends its Emit
// statement to block.
func (e *Emitter) FlushInto(fn *ir.Function, block *ir.Block) {
	if stmt, ok := e.Finish(fn); ok {
		*block = append(*block, stmt)
	}
}
