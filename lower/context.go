// Package lower implements the WGSL-to-IR lowering pass: it walks a
// resolved translation unit and produces an ir.Module, threading three
// nested context shapes (global, statement, expression) the way the
// original naga lowerer does, so that every expression knows both its
// lexical scope (which locals are in view) and its evaluation mode
// (runtime, module-constant, or pipeline-override).
package lower

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gogpu/wgsl-ir/config"
	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/resolve"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// ExprType marks whether a Typed[T] handle is a Reference (a pointer
// produced by evaluating a place expression, still subject to the Load
// Rule) or Plain (an ordinary value, already loaded or never addressable
// in the first place).
type ExprType interface{ exprType() }

// Reference marks a handle as a pointer the Load Rule has not yet fired
// on -- e.g. the direct result of resolving a local/global variable or a
// pointer-composite access chain.
type Reference struct{}

func (Reference) exprType() {}

// Plain marks a handle as an ordinary value: a literal, an arithmetic
// result, or a Reference the Load Rule has already resolved.
type Plain struct{}

func (Plain) exprType() {}

// Typed pairs a handle with its ExprType, mirroring how every expression
// lowered from a WGSL place/value expression carries its own answer to
// "is this still a pointer awaiting a load".
type Typed[T any] struct {
	Value T
	Kind  ExprType
}

// IsReference reports whether t still needs the Load Rule applied.
func (t Typed[T]) IsReference() bool {
	_, ok := t.Kind.(Reference)
	return ok
}

// TypedPlain wraps a value as Plain.
func TypedPlain[T any](v T) Typed[T] { return Typed[T]{Value: v, Kind: Plain{}} }

// TypedReference wraps a value as Reference.
func TypedReference[T any](v T) Typed[T] { return Typed[T]{Value: v, Kind: Reference{}} }

// DeclKind marks whether a Declared[T] value came from a const-expression
// or is inherently a runtime value, independent of ir.ExpressionKindClass
// (which additionally distinguishes Override) -- Declared[T] is used at
// sites (like a local `let` binding) where only the const/runtime
// distinction, not the override one, determines downstream behavior.
type DeclKind interface{ declKind() }

// DeclaredConst marks a Declared[T] as backed entirely by a
// const-expression.
type DeclaredConst struct{}

func (DeclaredConst) declKind() {}

// DeclaredRuntime marks a Declared[T] as a runtime value.
type DeclaredRuntime struct{}

func (DeclaredRuntime) declKind() {}

// Declared pairs a value with whether it is Const or Runtime.
type Declared[T any] struct {
	Value T
	Kind  DeclKind
}

// IsConst reports whether d is backed by a const-expression.
func (d Declared[T]) IsConst() bool {
	_, ok := d.Kind.(DeclaredConst)
	return ok
}

// ExpressionMode is the mode an ExpressionContext evaluates in --
// Runtime, Constant, or Override -- matching the WGSL contexts that may
// only ever demote towards Runtime, never promote back.
type ExpressionMode uint8

const (
	ModeRuntime ExpressionMode = iota
	ModeConstant
	ModeOverride
)

func (m ExpressionMode) String() string {
	switch m {
	case ModeRuntime:
		return "runtime"
	case ModeConstant:
		return "constant"
	case ModeOverride:
		return "override"
	default:
		return "unknown"
	}
}

// GlobalContext holds everything that is visible across the whole
// translation unit: the module under construction, the resolved
// declaration order, name lookup tables for every module-scope
// declaration kind, and the shared Layouter.
type GlobalContext struct {
	Module *ir.Module
	TU     *resolve.TranslationUnit
	Config config.LowerConfig
	Log    *logrus.Entry

	Layouter *ir.Layouter
	Registry *ir.TypeRegistry

	typesByName     map[string]ir.TypeHandle
	constsByName    map[string]ir.ConstantHandle
	overridesByName map[string]ir.OverrideHandle
	globalsByName   map[string]ir.GlobalVariableHandle
	funcsByName     map[string]ir.FunctionHandle
	aliasesByName   map[string]wgsl.Type
}

// NewGlobalContext creates an empty GlobalContext bound to tu.
func NewGlobalContext(tu *resolve.TranslationUnit, cfg config.LowerConfig, log *logrus.Entry) *GlobalContext {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &GlobalContext{
		Module:          &ir.Module{},
		TU:              tu,
		Config:          cfg,
		Log:             log,
		Layouter:        ir.NewLayouter(),
		Registry:        ir.NewTypeRegistry(),
		typesByName:     map[string]ir.TypeHandle{},
		constsByName:    map[string]ir.ConstantHandle{},
		overridesByName: map[string]ir.OverrideHandle{},
		globalsByName:   map[string]ir.GlobalVariableHandle{},
		funcsByName:     map[string]ir.FunctionHandle{},
		aliasesByName:   map[string]wgsl.Type{},
	}
}

// RegisterType interns inner through the deduplicating TypeRegistry,
// keeps Module.Types in sync with the registry's backing slice (the
// registry, not Module.Types, is the source of truth during lowering),
// and extends the Layouter to cover it. If name is non-empty the type
// also becomes resolvable by that name (used for struct declarations
// and builtin scalars).
func (g *GlobalContext) RegisterType(name string, inner ir.TypeInner) (ir.TypeHandle, error) {
	h := g.Registry.GetOrCreate(name, inner)
	g.Module.Types = g.Registry.GetTypes()
	if name != "" {
		g.typesByName[name] = h
	}
	if err := g.Layouter.Update(g.Module); err != nil {
		return 0, fmt.Errorf("lower: %w", err)
	}
	return h, nil
}

// LookupNamedType returns the handle a prior RegisterType call bound to
// name, if any.
func (g *GlobalContext) LookupNamedType(name string) (ir.TypeHandle, bool) {
	h, ok := g.typesByName[name]
	return h, ok
}

// StatementContext narrows a GlobalContext to the function currently
// being lowered: its expression/kind-tracking state and local scope.
type StatementContext struct {
	*GlobalContext

	Function   *ir.Function
	Typifier   *ir.Typifier
	Kinds      *ir.KindTracker
	Emitter    *Emitter
	NamedExprs map[ir.ExpressionHandle]string

	// locals is a stack of lexical scopes (one per enclosing block),
	// each mapping a WGSL identifier to the local variable/let/const it
	// names, innermost scope last so shadowing resolves by scanning from
	// the end.
	locals []map[string]localBinding

	// loopDepth counts the structured loops (for/while/loop) currently
	// enclosing the statement being lowered -- lowerLocalVar consults it
	// to decide whether a const-foldable initializer may be hoisted into
	// LocalVariable.Init or must instead become an explicit per-iteration
	// Store (§4.4's Var rule, §8's hoisting boundary example).
	loopDepth int
}

// EnterLoop marks entry into a structured loop body, incrementing
// loopDepth for the duration of lowering it.
func (s *StatementContext) EnterLoop() { s.loopDepth++ }

// ExitLoop reverses EnterLoop on the way back out of a loop body.
func (s *StatementContext) ExitLoop() { s.loopDepth-- }

// InsideLoop reports whether the statement currently being lowered sits
// inside at least one enclosing for/while/loop body.
func (s *StatementContext) InsideLoop() bool { return s.loopDepth > 0 }

type localKind uint8

const (
	localVar localKind = iota
	localLet
	localConst
)

type localBinding struct {
	kind localKind
	// For localVar, handle indexes Function.LocalVars and evaluates to a
	// pointer (Reference). For localLet/localConst, expr is the value
	// expression directly (Plain).
	varIndex uint32
	expr     ir.ExpressionHandle
}

// NewStatementContext starts lowering a fresh function body.
func (g *GlobalContext) NewStatementContext(fn *ir.Function) *StatementContext {
	return &StatementContext{
		GlobalContext: g,
		Function:      fn,
		Typifier:      ir.NewTypifier(g.Module, fn),
		Kinds:         ir.NewKindTracker(),
		Emitter:       NewEmitter(),
		NamedExprs:    map[ir.ExpressionHandle]string{},
		locals:        []map[string]localBinding{{}},
	}
}

// PushScope enters a new lexical block.
func (s *StatementContext) PushScope() {
	s.locals = append(s.locals, map[string]localBinding{})
}

// PopScope leaves the innermost lexical block.
func (s *StatementContext) PopScope() {
	s.locals = s.locals[:len(s.locals)-1]
}

// DeclareLocal binds name to binding in the innermost scope.
func (s *StatementContext) DeclareLocal(name string, binding localBinding) {
	s.locals[len(s.locals)-1][name] = binding
}

// LookupLocal searches scopes from innermost to outermost.
func (s *StatementContext) LookupLocal(name string) (localBinding, bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if b, ok := s.locals[i][name]; ok {
			return b, true
		}
	}
	return localBinding{}, false
}

// AppendExpression appends expr to the function's expression arena,
// records its kind in the tracker, and grows the typifier to match --
// the one path every expression-producing helper must go through so the
// three parallel arrays (Expressions, kind tracker, typifier cache)
// never drift out of sync.
func (s *StatementContext) AppendExpression(expr ir.Expression, kind ir.ExpressionKindClass) ir.ExpressionHandle {
	h := ir.ExpressionHandle(len(s.Function.Expressions))
	s.Function.Expressions = append(s.Function.Expressions, expr)
	s.Kinds.Insert(kind)
	s.Typifier.Grow()
	return h
}

// ExpressionContext narrows a StatementContext to the mode (Runtime/
// Constant/Override) expressions are currently being lowered in. Mode
// demotion is one-way: a nested ExpressionContext may only move towards
// ModeRuntime relative to its parent, never back towards ModeConstant.
type ExpressionContext struct {
	*StatementContext
	Mode ExpressionMode
}

// NewExpressionContext starts lowering expressions in the given mode:
// ModeRuntime for ordinary statement expressions, ModeConstant/
// ModeOverride for the initializer of a const/override declaration.
func (s *StatementContext) NewExpressionContext(mode ExpressionMode) *ExpressionContext {
	return &ExpressionContext{StatementContext: s, Mode: mode}
}

// Demoted returns a copy of ec with mode narrowed towards mode, refusing
// to move back towards ModeConstant from a context that is already more
// permissive (ModeRuntime stays ModeRuntime regardless of what is asked
// for, matching the one-way demotion rule).
func (ec *ExpressionContext) Demoted(mode ExpressionMode) *ExpressionContext {
	if ec.Mode == ModeRuntime {
		return ec
	}
	if mode > ec.Mode {
		return &ExpressionContext{StatementContext: ec.StatementContext, Mode: mode}
	}
	return ec
}

// ForceNonConst demotes an expression (and records it in the shared
// kind tracker as Runtime) when a construct that looked foldable turns
// out to sit somewhere that can never be constant-evaluated.
func (ec *ExpressionContext) ForceNonConst(handle ir.ExpressionHandle) {
	ec.Kinds.ForceNonConst(handle)
}

// EmitStatement flushes any pending expression-emit window into target,
// appends stmt, and reopens the window for whatever comes after -- the
// one path every side-effecting statement (store, call, atomic, image
// write, barrier) must go through so every expression it reads sits
// inside a StmtEmit range before the statement that consumes it.
func (ec *ExpressionContext) EmitStatement(target *ir.Block, stmt ir.Statement) {
	if target == nil {
		return
	}
	ec.Emitter.FlushInto(ec.Function, target)
	*target = append(*target, stmt)
	ec.Emitter.Start(ec.Function)
}
