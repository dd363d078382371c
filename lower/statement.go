package lower

import (
	"fmt"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// lowerBlock lowers every statement of block in source order into
// target, sharing ec's emit window across all of them.
func lowerBlock(ec *ExpressionContext, block *wgsl.BlockStmt, target *ir.Block) error {
	ec.PushScope()
	defer ec.PopScope()
	for _, stmt := range block.Statements {
		if err := lowerStatement(ec, stmt, target); err != nil {
			return err
		}
	}
	return nil
}

func lowerStatement(ec *ExpressionContext, stmt wgsl.Stmt, target *ir.Block) error {
	switch s := stmt.(type) {
	case *wgsl.ReturnStmt:
		return lowerReturn(ec, s, target)
	case *wgsl.VarDecl:
		if s.IsLet {
			return lowerLocalLet(ec, s, target)
		}
		return lowerLocalVar(ec, s, target)
	case *wgsl.ConstDecl:
		return lowerLocalConst(ec, s, target)
	case *wgsl.AssignStmt:
		return lowerAssign(ec, s, target)
	case *wgsl.IncrStmt:
		return lowerIncrDecr(ec, s.Target, ir.BinaryAdd, target)
	case *wgsl.DecrStmt:
		return lowerIncrDecr(ec, s.Target, ir.BinarySubtract, target)
	case *wgsl.IfStmt:
		return lowerIf(ec, s, target)
	case *wgsl.ForStmt:
		return lowerFor(ec, s, target)
	case *wgsl.WhileStmt:
		return lowerWhile(ec, s, target)
	case *wgsl.LoopStmt:
		return lowerLoop(ec, s, target)
	case *wgsl.SwitchStmt:
		return lowerSwitch(ec, s, target)
	case *wgsl.BreakStmt:
		ec.EmitStatement(target, ir.Statement{Kind: ir.StmtBreak{}})
		return nil
	case *wgsl.ContinueStmt:
		ec.EmitStatement(target, ir.Statement{Kind: ir.StmtContinue{}})
		return nil
	case *wgsl.DiscardStmt:
		ec.EmitStatement(target, ir.Statement{Kind: ir.StmtKill{}})
		return nil
	case *wgsl.ExprStmt:
		_, err := lowerExpression(ec, s.Expr, target)
		return err
	case *wgsl.BlockStmt:
		var body ir.Block
		if err := lowerBlock(ec, s, &body); err != nil {
			return err
		}
		ec.EmitStatement(target, ir.Statement{Kind: ir.StmtBlock{Block: body}})
		return nil
	default:
		return wrapErr(stmt.Pos(), unsupportedStatement(stmt), "statement")
	}
}

// lowerReturn lowers `return expr;`, converting expr towards the
// function's declared result type (§4.4's Return rule) when one is
// declared -- a bare integer literal returned from an f32-returning
// function, for instance, must convert rather than be rejected.
func lowerReturn(ec *ExpressionContext, ret *wgsl.ReturnStmt, target *ir.Block) error {
	var valueHandle *ir.ExpressionHandle
	if ret.Value != nil {
		h, err := lowerExpression(ec, ret.Value, target)
		if err != nil {
			return err
		}
		if ec.Function.Result != nil {
			converted, err := ec.convertToType(h, ec.Function.Result.Type, ret.Value.Pos())
			if err != nil {
				return wrapErr(ret.Value.Pos(), err, "return value")
			}
			h = converted
		}
		valueHandle = &h
	}
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtReturn{Value: valueHandle}})
	return nil
}

// isConstOrOverride reports whether h's recorded kind is foldable at
// lower time (Const or Override) rather than a genuine Runtime value --
// the predicate lowerLocalVar's hoisting rule (§4.4/§8) keys off.
func isConstOrOverride(ec *ExpressionContext, h ir.ExpressionHandle) bool {
	return ec.Kinds.Get(h) != ir.KindRuntime
}

// lowerLocalVar lowers `var name: T = init;` at function scope. The
// initializer (when present) is lowered first so a missing explicit
// type can be inferred from it and type_and_init can cross-check a
// declared one, then either:
//
//   - the initializer is const/override-foldable and the declaration
//     does not sit inside a loop: it is hoisted into LocalVariable.Init,
//     evaluated once at function entry, or
//   - the initializer is a runtime value, or the declaration is inside
//     a loop (where re-evaluating a "foldable" initializer every
//     iteration is still observably different from initializing the
//     slot once before the loop): LocalVariable.Init stays nil and an
//     explicit StmtStore assigns it at the declaration site instead.
func lowerLocalVar(ec *ExpressionContext, v *wgsl.VarDecl, target *ir.Block) error {
	var initHandle *ir.ExpressionHandle
	if v.Init != nil {
		h, err := lowerExpression(ec, v.Init, target)
		if err != nil {
			return err
		}
		initHandle = &h
	}

	var declaredType *ir.TypeHandle
	if v.Type != nil {
		h, err := ec.resolveType(v.Type)
		if err != nil {
			return wrapErr(v.Span, err, "local var %s", v.Name)
		}
		declaredType = &h
	}

	typeHandle, convertedInit, err := ec.typeAndInit(fmt.Sprintf("local var %s", v.Name), declaredType, initHandle, v.Span, AbstractConcretize)
	if err != nil {
		return err
	}

	hoist := convertedInit != nil && !ec.InsideLoop() && isConstOrOverride(ec, *convertedInit)

	localIdx := uint32(len(ec.Function.LocalVars))
	lv := ir.LocalVariable{Name: v.Name, Type: typeHandle}
	if hoist {
		lv.Init = convertedInit
	}
	ec.Function.LocalVars = append(ec.Function.LocalVars, lv)

	exprHandle := ec.AppendExpression(ir.Expression{Kind: ir.ExprLocalVariable{Variable: localIdx}}, ir.KindRuntime)
	ec.DeclareLocal(v.Name, localBinding{kind: localVar, varIndex: localIdx, expr: exprHandle})

	if convertedInit != nil && !hoist {
		ec.EmitStatement(target, ir.Statement{Kind: ir.StmtStore{Pointer: exprHandle, Value: *convertedInit}})
	}
	return nil
}

// lowerLocalLet lowers `let name: T = init;` at function scope: unlike
// `var`, a `let` never addresses storage (§4.4's Let rule), so it binds
// a named Plain expression rather than a LocalVariable slot, and its
// initializer is always force-demoted to Runtime in the kind tracker --
// a `let` is never itself a const-expression, even when its initializer
// folds, because nothing downstream may treat the binding as one (§8).
func lowerLocalLet(ec *ExpressionContext, v *wgsl.VarDecl, target *ir.Block) error {
	if v.Init == nil {
		return newErr(v.Span, "local let %q must have an initializer", v.Name)
	}
	h, err := lowerExpression(ec, v.Init, target)
	if err != nil {
		return wrapErr(v.Span, err, "let %s initializer", v.Name)
	}

	var declaredType *ir.TypeHandle
	if v.Type != nil {
		t, err := ec.resolveType(v.Type)
		if err != nil {
			return wrapErr(v.Span, err, "local let %s", v.Name)
		}
		declaredType = &t
	}

	_, convertedInit, err := ec.typeAndInit(fmt.Sprintf("local let %s", v.Name), declaredType, &h, v.Span, AbstractConcretize)
	if err != nil {
		return err
	}
	h = *convertedInit

	ec.ForceNonConst(h)
	ec.DeclareLocal(v.Name, localBinding{kind: localLet, expr: h})
	ec.Emitter.FlushInto(ec.Function, target)
	ec.Emitter.Start(ec.Function)
	return nil
}

// lowerLocalConst lowers a function-scope `const`: unlike `var`, it
// never addresses storage, so it is bound as a named expression (like
// `let`) rather than a LocalVariable slot. Unlike `let`, its kind is
// left exactly as the initializer folded to -- a local const really is
// a const-expression, usable anywhere one is required.
func lowerLocalConst(ec *ExpressionContext, c *wgsl.ConstDecl, target *ir.Block) error {
	if c.Init == nil {
		return newErr(c.Span, "local const %q must have an initializer", c.Name)
	}
	h, err := lowerExpression(ec, c.Init, target)
	if err != nil {
		return wrapErr(c.Span, err, "const %s initializer", c.Name)
	}
	ec.DeclareLocal(c.Name, localBinding{kind: localConst, expr: h})
	ec.Emitter.FlushInto(ec.Function, target)
	ec.Emitter.Start(ec.Function)
	return nil
}

// referentInner resolves the type a Reference-kind expression refers
// to: ExprLocalVariable/ExprGlobalVariable/ExprFunctionArgument already
// resolve directly to their pointee's type (the "Reference" status is
// only the Typed[T] side-tag, not a real PointerType in these cases),
// while a dereferenced explicit `ptr<...>` value genuinely resolves to
// a PointerType that needs one more unwrap to reach the referent.
func (ec *ExpressionContext) referentInner(pointer ir.ExpressionHandle) (ir.TypeInner, error) {
	inner, err := ec.Typifier.InnerOf(pointer)
	if err != nil {
		return nil, err
	}
	if ptr, ok := inner.(ir.PointerType); ok {
		t, ok := ec.Registry.Lookup(ptr.Base)
		if !ok {
			return nil, fmt.Errorf("type handle %d not found", ptr.Base)
		}
		return t.Inner, nil
	}
	return inner, nil
}

// referentLeaf resolves the scalar leaf (and vector size, 0 for a bare
// scalar) of what pointer refers to -- the automatic-conversion target
// an assignment's right-hand side converts towards.
func (ec *ExpressionContext) referentLeaf(pointer ir.ExpressionHandle) (ir.ScalarType, ir.VectorSize, bool) {
	inner, err := ec.referentInner(pointer)
	if err != nil {
		return ir.ScalarType{}, 0, false
	}
	return leafOf(inner)
}

// classifyInvalidAssignment walks expr to find why it is not a valid
// assignment (or increment/decrement) target, recursing through
// member/index access down to the identifier (or swizzle) actually
// responsible.
func (ec *ExpressionContext) classifyInvalidAssignment(expr wgsl.Expr) AssignmentInvalidReason {
	switch e := expr.(type) {
	case *wgsl.MemberExpr:
		if _, size, ok := swizzlePattern(e.Member); ok && size > 0 {
			return AssignmentSwizzle
		}
		return ec.classifyInvalidAssignment(e.Expr)
	case *wgsl.IndexExpr:
		return ec.classifyInvalidAssignment(e.Expr)
	case *wgsl.Ident:
		if local, ok := ec.LookupLocal(e.Name); ok {
			if local.kind == localLet || local.kind == localConst {
				return AssignmentImmutableBinding
			}
			return AssignmentNotReference
		}
		for _, arg := range ec.Function.Arguments {
			if arg.Name == e.Name {
				return AssignmentFunctionArgument
			}
		}
		if _, ok := ec.constsByName[e.Name]; ok {
			return AssignmentImmutableBinding
		}
		if _, ok := ec.overridesByName[e.Name]; ok {
			return AssignmentImmutableBinding
		}
		return AssignmentNotReference
	default:
		return AssignmentNotReference
	}
}

// lowerAssign lowers `lhs = rhs` and its compound forms (+=, -=, ...).
// The right-hand side converts towards the pointer's referent scalar
// type (or towards u32, for a shift operator, regardless of the
// referent's own kind); a compound assignment then loads the pointer's
// current value, splatting a scalar right-hand side to match a vector
// referent, folds the operator in, and stores the result -- WGSL has no
// separate IR shape for "read-modify-write", so this always expands to
// Load+Binary+Store.
func lowerAssign(ec *ExpressionContext, assign *wgsl.AssignStmt, target *ir.Block) error {
	pointerT, err := lowerExpressionTyped(ec, assign.Left, target)
	if err != nil {
		return err
	}
	if !pointerT.IsReference() {
		return &InvalidAssignment{Reason: ec.classifyInvalidAssignment(assign.Left), Span: assign.Span}
	}

	value, err := lowerExpression(ec, assign.Right, target)
	if err != nil {
		return err
	}

	compound := assign.Op != wgsl.TokenEqual
	var op ir.BinaryOperator
	if compound {
		op, err = assignOpToBinary(assign.Op)
		if err != nil {
			return wrapErr(assign.Span, err, "compound assignment")
		}
	}

	switch {
	case op == ir.BinaryShiftLeft || op == ir.BinaryShiftRight:
		if u32, ok := ec.LookupNamedType("u32"); ok {
			converted, cerr := ec.convertToType(value, u32, assign.Right.Pos())
			if cerr != nil {
				return wrapErr(assign.Right.Pos(), cerr, "shift amount")
			}
			value = converted
		}
	default:
		targetScalar, targetSize, ok := ec.referentLeaf(pointerT.Value)
		if ok {
			converted, cerr := ec.convertTowardScalar(value, targetScalar, assign.Right.Pos())
			if cerr != nil {
				return wrapErr(assign.Right.Pos(), cerr, "assignment")
			}
			value = converted
			if compound && targetSize != 0 {
				if inner, ierr := ec.Typifier.InnerOf(value); ierr == nil {
					if _, size, leafOk := leafOf(inner); leafOk && size == 0 {
						value = ec.splatTo(value, targetSize)
					}
				}
			}
		}
	}

	if compound {
		loadHandle := ec.AppendExpression(ir.Expression{Kind: ir.ExprLoad{Pointer: pointerT.Value}}, ir.KindRuntime)
		value = ec.AppendExpression(ir.Expression{Kind: ir.ExprBinary{Op: op, Left: loadHandle, Right: value}}, ir.KindRuntime)
	}

	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtStore{Pointer: pointerT.Value, Value: value}})
	return nil
}

// lowerIncrDecr lowers `expr++`/`expr--`, WGSL sugar for `expr = expr + 1`/`expr = expr - 1`.
func lowerIncrDecr(ec *ExpressionContext, target_ wgsl.Expr, op ir.BinaryOperator, target *ir.Block) error {
	pointerT, err := lowerExpressionTyped(ec, target_, target)
	if err != nil {
		return err
	}
	if !pointerT.IsReference() {
		return &InvalidAssignment{Reason: ec.classifyInvalidAssignment(target_), Span: target_.Pos()}
	}
	loadHandle := ec.AppendExpression(ir.Expression{Kind: ir.ExprLoad{Pointer: pointerT.Value}}, ir.KindRuntime)
	one := ec.AppendExpression(ir.Expression{Kind: ir.Literal{Value: ir.LiteralAbstractInt(1)}}, ir.KindConst)
	value := ec.AppendExpression(ir.Expression{Kind: ir.ExprBinary{Op: op, Left: loadHandle, Right: one}}, ir.KindRuntime)
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtStore{Pointer: pointerT.Value, Value: value}})
	return nil
}

func lowerIf(ec *ExpressionContext, s *wgsl.IfStmt, target *ir.Block) error {
	condition, err := lowerExpression(ec, s.Condition, target)
	if err != nil {
		return err
	}

	var accept, reject ir.Block
	if err := lowerBlock(ec, s.Body, &accept); err != nil {
		return err
	}
	if s.Else != nil {
		if err := lowerStatement(ec, s.Else, &reject); err != nil {
			return err
		}
	}

	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtIf{Condition: condition, Accept: accept, Reject: reject}})
	return nil
}

// lowerFor desugars `for (init; cond; update) body` into init followed
// by a StmtLoop whose body starts with a negated-condition break and
// whose continuing block runs update, the same shape every structured
// IR without a native for-loop construct uses.
func lowerFor(ec *ExpressionContext, s *wgsl.ForStmt, target *ir.Block) error {
	ec.PushScope()
	defer ec.PopScope()

	if s.Init != nil {
		if err := lowerStatement(ec, s.Init, target); err != nil {
			return err
		}
	}

	ec.EnterLoop()
	defer ec.ExitLoop()

	var body, continuing ir.Block
	if s.Condition != nil {
		if err := emitLoopBreakIfFalse(ec, s.Condition, &body); err != nil {
			return err
		}
	}
	if err := lowerBlock(ec, s.Body, &body); err != nil {
		return err
	}
	if s.Update != nil {
		if err := lowerStatement(ec, s.Update, &continuing); err != nil {
			return err
		}
	}

	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtLoop{Body: body, Continuing: continuing}})
	return nil
}

func lowerWhile(ec *ExpressionContext, s *wgsl.WhileStmt, target *ir.Block) error {
	ec.EnterLoop()
	defer ec.ExitLoop()

	var body ir.Block
	if err := emitLoopBreakIfFalse(ec, s.Condition, &body); err != nil {
		return err
	}
	if err := lowerBlock(ec, s.Body, &body); err != nil {
		return err
	}
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtLoop{Body: body}})
	return nil
}

func lowerLoop(ec *ExpressionContext, s *wgsl.LoopStmt, target *ir.Block) error {
	ec.EnterLoop()
	defer ec.ExitLoop()

	var body, continuing ir.Block
	if err := lowerBlock(ec, s.Body, &body); err != nil {
		return err
	}
	if s.Continuing != nil {
		if err := lowerBlock(ec, s.Continuing, &continuing); err != nil {
			return err
		}
	}
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtLoop{Body: body, Continuing: continuing}})
	return nil
}

// emitLoopBreakIfFalse lowers condition and appends `if (!condition) { break; }`
// to body, the common prefix every desugared for/while loop body opens with.
func emitLoopBreakIfFalse(ec *ExpressionContext, condition wgsl.Expr, body *ir.Block) error {
	h, err := lowerExpression(ec, condition, body)
	if err != nil {
		return err
	}
	notCond := ec.AppendExpression(ir.Expression{Kind: ir.ExprUnary{Op: ir.UnaryLogicalNot, Expr: h}}, ir.KindRuntime)
	ec.EmitStatement(body, ir.Statement{Kind: ir.StmtIf{
		Condition: notCond,
		Accept:    ir.Block{{Kind: ir.StmtBreak{}}},
	}})
	return nil
}

func lowerSwitch(ec *ExpressionContext, s *wgsl.SwitchStmt, target *ir.Block) error {
	selector, err := lowerExpression(ec, s.Selector, target)
	if err != nil {
		return wrapErr(s.Span, err, "switch selector")
	}
	if inner, terr := ec.Typifier.InnerOf(selector); terr == nil {
		scalar, size, ok := leafOf(inner)
		if !ok || size != 0 || (scalar.Kind != ir.ScalarSint && scalar.Kind != ir.ScalarUint) {
			return &InvalidSwitchSelector{Got: inner, Span: s.Selector.Pos()}
		}
	}

	var cases []ir.SwitchCase
	for i, clause := range s.Cases {
		var body ir.Block
		if err := lowerBlock(ec, clause.Body, &body); err != nil {
			return wrapErr(clause.Span, err, "switch case %d body", i)
		}
		if clause.IsDefault {
			cases = append(cases, ir.SwitchCase{Value: ir.SwitchValueDefault{}, Body: body})
			continue
		}
		for _, sel := range clause.Selectors {
			value, err := lowerSwitchCaseValue(ec, sel)
			if err != nil {
				return wrapErr(clause.Span, err, "switch case %d selector", i)
			}
			cases = append(cases, ir.SwitchCase{Value: value, Body: body})
		}
	}

	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtSwitch{Selector: selector, Cases: cases}})
	return nil
}

// lowerSwitchCaseValue resolves a case selector to its compile-time
// value, either a literal or a reference to a module-scope scalar
// constant -- WGSL forbids anything else as a switch selector.
func lowerSwitchCaseValue(ec *ExpressionContext, expr wgsl.Expr) (ir.SwitchValue, error) {
	switch e := expr.(type) {
	case *wgsl.Literal:
		value, _, err := literalValue(e)
		if err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case ir.LiteralU32:
			return ir.SwitchValueU32(v), nil
		case ir.LiteralI32:
			return ir.SwitchValueI32(v), nil
		case ir.LiteralAbstractInt:
			return ir.SwitchValueI32(int32(v)), nil
		default:
			return nil, newErr(e.Span, "switch case selector must be an integer literal")
		}
	case *wgsl.Ident:
		ch, ok := ec.constsByName[e.Name]
		if !ok {
			return nil, newErr(e.Span, "switch case selector %q is not a known constant", e.Name)
		}
		sv, ok := ec.Module.Constants[ch].Value.(ir.ScalarValue)
		if !ok {
			return nil, newErr(e.Span, "switch case selector %q is not a scalar constant", e.Name)
		}
		switch sv.Kind {
		case ir.ScalarUint:
			return ir.SwitchValueU32(uint32(sv.Bits)), nil
		case ir.ScalarSint:
			return ir.SwitchValueI32(int32(sv.Bits)), nil
		default:
			return nil, newErr(e.Span, "switch case selector %q must be an integer", e.Name)
		}
	default:
		return nil, newErr(expr.Pos(), "switch case selector must be a literal or constant, got %T", expr)
	}
}
