// Package evaluator walks a parsed program tree and executes it against an
// environment chain. Control flow (return, break, goto, raised errors) is
// propagated as explicit signal values returned from statement execution,
// never as host panics.
package evaluator

import (
	"io"
	"log/slog"
	"math"
	"os"
	"sync/atomic"

	"lua/ast"
	"lua/object"
	"lua/util"
)

var (
	NIL   = object.NIL
	TRUE  = object.TRUE
	FALSE = object.FALSE
)

type signalKind int

const (
	sigNone signalKind = iota
	sigReturn
	sigBreak
	sigGoto
	sigError
)

// signal is the result of executing a statement. Non-none signals
// propagate to the enclosing block immediately.
type signal struct {
	kind   signalKind
	values []object.Object
	label  string
	err    *object.RuntimeError
}

var signalNone = signal{}

func errSignal(err *object.RuntimeError) signal {
	return signal{kind: sigError, err: err}
}

// Interp is one independent execution of the runtime. The root environment
// and its global table are owned by the Interp, not process-wide, so
// multiple programs can run without interference.
type Interp struct {
	cfg    util.Configuration
	root   *object.Environment
	stdout io.Writer

	steps   int64
	depth   int
	current *object.Coroutine // nil while the main line is running
	nextID  atomic.Int64
}

func New() *Interp {
	return NewWithConfig(util.DefaultConfiguration())
}

func NewWithConfig(cfg util.Configuration) *Interp {
	return &Interp{
		cfg:    cfg,
		root:   object.NewRootEnvironment(),
		stdout: os.Stdout,
	}
}

// Root returns the root environment frame.
func (i *Interp) Root() *object.Environment { return i.root }

// Globals returns the global table.
func (i *Interp) Globals() *object.Table { return i.root.Globals() }

// Stdout is where print writes.
func (i *Interp) Stdout() io.Writer { return i.stdout }

func (i *Interp) SetStdout(w io.Writer) { i.stdout = w }

// NextHandleID issues process-unique handles for natives that hold host
// resources.
func (i *Interp) NextHandleID() int64 { return i.nextID.Add(1) }

// Register installs a native function in the global table.
func (i *Interp) Register(name string, fn object.BuiltinFunction) {
	i.Globals().Set(&object.String{Value: name}, &object.Builtin{Name: name, Fn: fn})
}

// RegisterValue installs any value in the global table.
func (i *Interp) RegisterValue(name string, val object.Object) {
	i.Globals().Set(&object.String{Value: name}, val)
}

// NewError builds a runtime error with a formatted string payload.
func (i *Interp) NewError(kind object.ErrorKind, format string, a ...interface{}) *object.RuntimeError {
	return object.NewError(kind, format, a...)
}

// Execute runs a whole program in a fresh scope under the root environment
// and returns the values of a top-level return, if any. Uncaught script
// errors surface as the error result.
func (i *Interp) Execute(program *ast.Program) ([]object.Object, error) {
	i.steps = 0
	sig := i.execBlock(&ast.Block{Statements: program.Statements}, i.root)
	switch sig.kind {
	case sigError:
		return nil, sig.err
	case sigReturn:
		return sig.values, nil
	case sigBreak:
		return nil, i.NewError(object.TypeError, "break outside a loop")
	case sigGoto:
		return nil, i.NewError(object.TypeError, "no visible label '%s'", sig.label)
	}
	return []object.Object{}, nil
}

// EvalExpression evaluates a single expression against env (the root
// environment when env is nil) and returns its value list.
func (i *Interp) EvalExpression(expr ast.Expression, env *object.Environment) ([]object.Object, error) {
	if env == nil {
		env = i.root
	}
	vals, err := i.evalExprMulti(expr, env)
	if err != nil {
		return nil, err
	}
	return vals, nil
}

// tick is the cooperative check between statements.
func (i *Interp) tick() *object.RuntimeError {
	i.steps++
	if i.cfg.MaxSteps > 0 && i.steps > i.cfg.MaxSteps {
		return i.NewError(object.StepBudget, "step budget of %d exhausted", i.cfg.MaxSteps)
	}
	return nil
}

// execBlock runs block in a fresh child scope of outer.
func (i *Interp) execBlock(block *ast.Block, outer *object.Environment) signal {
	env := object.NewEnclosedEnvironment(outer)
	sig := i.execStatements(block, env)
	return i.closeScope(env, sig)
}

// execStatements runs statements in an existing scope, resolving goto
// signals against this block's labels.
func (i *Interp) execStatements(block *ast.Block, env *object.Environment) signal {
	idx := 0
	for idx < len(block.Statements) {
		if err := i.tick(); err != nil {
			return errSignal(err)
		}
		sig := i.execStatement(block.Statements[idx], env)
		switch sig.kind {
		case sigNone:
			idx++
		case sigGoto:
			target, ok := findLabel(block, sig.label)
			if !ok {
				return sig
			}
			idx = target + 1
		default:
			return sig
		}
	}
	return signalNone
}

func findLabel(block *ast.Block, label string) (int, bool) {
	for idx, stmt := range block.Statements {
		if ls, ok := stmt.(*ast.LabelStatement); ok && ls.Name == label {
			return idx, true
		}
	}
	return 0, false
}

// closeScope drains the scope's to-be-closed values, invoking __close in
// reverse declaration order. A handler error supersedes the incoming
// signal.
func (i *Interp) closeScope(env *object.Environment, sig signal) signal {
	pending := env.DrainToClose()
	if len(pending) == 0 {
		return sig
	}
	errArg := object.Object(NIL)
	if sig.kind == sigError {
		errArg = sig.err.Payload
	}
	for _, val := range pending {
		if object.IsNil(val) {
			continue
		}
		handler := i.metamethod(val, "__close")
		if handler == nil {
			continue
		}
		if _, err := i.callValue(handler, []object.Object{val, errArg}); err != nil {
			sig = errSignal(err)
			errArg = err.Payload
		}
	}
	return sig
}

func (i *Interp) execStatement(stmt ast.Statement, env *object.Environment) signal {
	switch st := stmt.(type) {

	case *ast.LocalStatement:
		return i.execLocalStatement(st, env)

	case *ast.AssignStatement:
		return i.execAssignStatement(st, env)

	case *ast.ExpressionStatement:
		if _, err := i.evalExprMulti(st.Expression, env); err != nil {
			return errSignal(err)
		}
		return signalNone

	case *ast.IfStatement:
		cond, err := i.evalExpr(st.Condition, env)
		if err != nil {
			return errSignal(err)
		}
		if object.Truthy(cond) {
			return i.execBlock(st.Then, env)
		}
		if st.Else != nil {
			return i.execBlock(st.Else, env)
		}
		return signalNone

	case *ast.WhileStatement:
		return i.execWhileStatement(st, env)

	case *ast.RepeatStatement:
		return i.execRepeatStatement(st, env)

	case *ast.NumericForStatement:
		return i.execNumericFor(st, env)

	case *ast.GenericForStatement:
		return i.execGenericFor(st, env)

	case *ast.DoStatement:
		return i.execBlock(st.Body, env)

	case *ast.ReturnStatement:
		vals, err := i.evalExprList(st.Values, env)
		if err != nil {
			return errSignal(err)
		}
		return signal{kind: sigReturn, values: vals}

	case *ast.BreakStatement:
		return signal{kind: sigBreak}

	case *ast.GotoStatement:
		return signal{kind: sigGoto, label: st.Label}

	case *ast.LabelStatement:
		return signalNone

	case *ast.Block:
		return i.execBlock(st, env)
	}

	return errSignal(i.NewError(object.TypeError, "unknown statement %T", stmt))
}

func (i *Interp) execLocalStatement(st *ast.LocalStatement, env *object.Environment) signal {
	vals, err := i.evalExprList(st.Values, env)
	if err != nil {
		return errSignal(err)
	}
	for idx, name := range st.Names {
		val := object.Object(NIL)
		if idx < len(vals) {
			val = vals[idx]
		}
		attrib := ast.AttribNone
		if idx < len(st.Attribs) {
			attrib = st.Attribs[idx]
		}
		if attrib == ast.AttribClose {
			if !object.IsNil(val) && i.metamethod(val, "__close") == nil {
				return errSignal(i.NewError(object.TypeError,
					"variable '%s' got a non-closable value", name.Name))
			}
			env.RegisterToClose(val)
		}
		env.Declare(name.Name, val, attrib == ast.AttribConst || attrib == ast.AttribClose)
	}
	return signalNone
}

func (i *Interp) execAssignStatement(st *ast.AssignStatement, env *object.Environment) signal {
	vals, err := i.evalExprList(st.Values, env)
	if err != nil {
		return errSignal(err)
	}
	for idx, target := range st.Targets {
		val := object.Object(NIL)
		if idx < len(vals) {
			val = vals[idx]
		}
		switch tgt := target.(type) {
		case *ast.Ident:
			if err := env.Assign(tgt.Name, val); err != nil {
				return errSignal(err)
			}
		case *ast.IndexExpression:
			obj, err := i.evalExpr(tgt.Object, env)
			if err != nil {
				return errSignal(err)
			}
			key, err := i.evalExpr(tgt.Key, env)
			if err != nil {
				return errSignal(err)
			}
			if err := i.setIndex(obj, key, val); err != nil {
				return errSignal(err)
			}
		default:
			return errSignal(i.NewError(object.TypeError,
				"cannot assign to %s", target.String()))
		}
	}
	return signalNone
}

func (i *Interp) execWhileStatement(st *ast.WhileStatement, env *object.Environment) signal {
	for {
		if err := i.tick(); err != nil {
			return errSignal(err)
		}
		cond, err := i.evalExpr(st.Condition, env)
		if err != nil {
			return errSignal(err)
		}
		if !object.Truthy(cond) {
			return signalNone
		}
		sig := i.execBlock(st.Body, env)
		switch sig.kind {
		case sigNone:
		case sigBreak:
			return signalNone
		default:
			return sig
		}
	}
}

func (i *Interp) execRepeatStatement(st *ast.RepeatStatement, env *object.Environment) signal {
	for {
		if err := i.tick(); err != nil {
			return errSignal(err)
		}
		// the until condition sees the body's scope
		bodyEnv := object.NewEnclosedEnvironment(env)
		sig := i.execStatements(st.Body, bodyEnv)
		switch sig.kind {
		case sigNone:
			cond, err := i.evalExpr(st.Condition, bodyEnv)
			sig = i.closeScope(bodyEnv, signalNone)
			if err != nil {
				return errSignal(err)
			}
			if sig.kind != sigNone {
				return sig
			}
			if object.Truthy(cond) {
				return signalNone
			}
		case sigBreak:
			return i.closeScope(bodyEnv, signalNone)
		default:
			return i.closeScope(bodyEnv, sig)
		}
	}
}

func (i *Interp) execNumericFor(st *ast.NumericForStatement, env *object.Environment) signal {
	start, err := i.evalForNumber(st.Start, env, "initial")
	if err != nil {
		return errSignal(err)
	}
	stop, err := i.evalForNumber(st.Stop, env, "limit")
	if err != nil {
		return errSignal(err)
	}
	step := object.Object(&object.Integer{Value: 1})
	if st.Step != nil {
		step, err = i.evalForNumber(st.Step, env, "step")
		if err != nil {
			return errSignal(err)
		}
	}

	si, stepIsInt := step.(*object.Integer)
	if stepIsInt && si.Value == 0 {
		return errSignal(i.NewError(object.ZeroStep, "'for' step is zero"))
	}
	if sf, ok := step.(*object.Float); ok && sf.Value == 0 {
		return errSignal(i.NewError(object.ZeroStep, "'for' step is zero"))
	}

	_, startIsInt := start.(*object.Integer)
	_, stopIsInt := stop.(*object.Integer)
	if startIsInt && stopIsInt && stepIsInt {
		return i.runIntFor(st, env,
			start.(*object.Integer).Value, stop.(*object.Integer).Value, si.Value)
	}
	return i.runFloatFor(st, env, asFloat(start), asFloat(stop), asFloat(step))
}

func (i *Interp) runIntFor(st *ast.NumericForStatement, env *object.Environment, start, stop, step int64) signal {
	for v := start; (step > 0 && v <= stop) || (step < 0 && v >= stop); v += step {
		sig := i.runForBody(st.Body, env, st.Name.Name, &object.Integer{Value: v})
		switch sig.kind {
		case sigNone:
		case sigBreak:
			return signalNone
		default:
			return sig
		}
		// stop before the counter wraps
		if step > 0 && v > math.MaxInt64-step {
			return signalNone
		}
		if step < 0 && v < math.MinInt64-step {
			return signalNone
		}
	}
	return signalNone
}

func (i *Interp) runFloatFor(st *ast.NumericForStatement, env *object.Environment, start, stop, step float64) signal {
	for v := start; (step > 0 && v <= stop) || (step < 0 && v >= stop); v += step {
		sig := i.runForBody(st.Body, env, st.Name.Name, &object.Float{Value: v})
		switch sig.kind {
		case sigNone:
		case sigBreak:
			return signalNone
		default:
			return sig
		}
	}
	return signalNone
}

// runForBody executes one loop iteration with a fresh cell for the control
// variable, so closures formed in the body capture that iteration's value.
func (i *Interp) runForBody(body *ast.Block, env *object.Environment, name string, val object.Object) signal {
	if err := i.tick(); err != nil {
		return errSignal(err)
	}
	iterEnv := object.NewEnclosedEnvironment(env)
	iterEnv.Declare(name, val, false)
	sig := i.execStatements(body, iterEnv)
	return i.closeScope(iterEnv, sig)
}

func (i *Interp) execGenericFor(st *ast.GenericForStatement, env *object.Environment) signal {
	vals, err := i.evalExprList(st.Exprs, env)
	if err != nil {
		return errSignal(err)
	}
	iter := pick(vals, 0)
	state := pick(vals, 1)
	control := pick(vals, 2)

	for {
		if terr := i.tick(); terr != nil {
			return errSignal(terr)
		}
		rets, err := i.callValue(iter, []object.Object{state, control})
		if err != nil {
			return errSignal(err)
		}
		first := pick(rets, 0)
		if object.IsNil(first) {
			return signalNone
		}
		control = first

		iterEnv := object.NewEnclosedEnvironment(env)
		for idx, name := range st.Names {
			iterEnv.Declare(name.Name, pick(rets, idx), false)
		}
		sig := i.execStatements(st.Body, iterEnv)
		sig = i.closeScope(iterEnv, sig)
		switch sig.kind {
		case sigNone:
		case sigBreak:
			return signalNone
		default:
			return sig
		}
	}
}

func (i *Interp) evalForNumber(expr ast.Expression, env *object.Environment, what string) (object.Object, *object.RuntimeError) {
	v, err := i.evalExpr(expr, env)
	if err != nil {
		return nil, err
	}
	n, ok := object.ToNumber(v)
	if !ok {
		return nil, i.NewError(object.TypeError,
			"'for' %s value must be a number, got %s", what, object.TypeName(v))
	}
	return n, nil
}

func asFloat(n object.Object) float64 {
	switch v := n.(type) {
	case *object.Integer:
		return float64(v.Value)
	case *object.Float:
		return v.Value
	}
	return math.NaN()
}

func pick(vals []object.Object, idx int) object.Object {
	if idx < len(vals) {
		return vals[idx]
	}
	return NIL
}

// Call invokes a callable with args, implementing object.EvaluatorContext
// for natives.
func (i *Interp) Call(fn object.Object, args []object.Object) ([]object.Object, *object.RuntimeError) {
	return i.callValue(fn, args)
}

func (i *Interp) callValue(fn object.Object, args []object.Object) ([]object.Object, *object.RuntimeError) {
	i.depth++
	defer func() { i.depth-- }()
	if i.cfg.MaxCallDepth > 0 && i.depth > i.cfg.MaxCallDepth {
		return nil, i.NewError(object.StackOverflow, "stack overflow")
	}

	switch fn := fn.(type) {
	case *object.Function:
		env := i.extendFunctionEnv(fn, args)
		sig := i.execStatements(fn.Body, env)
		sig = i.closeScope(env, sig)
		switch sig.kind {
		case sigReturn:
			return sig.values, nil
		case sigError:
			return nil, sig.err
		case sigBreak:
			return nil, i.NewError(object.TypeError, "break outside a loop")
		case sigGoto:
			return nil, i.NewError(object.TypeError, "no visible label '%s'", sig.label)
		}
		return []object.Object{}, nil

	case *object.Builtin:
		return fn.Fn(i, args)

	case *object.Table:
		handler := i.metamethod(fn, "__call")
		if handler == nil {
			return nil, i.NewError(object.NotCallable,
				"attempt to call a table value")
		}
		return i.callValue(handler, append([]object.Object{fn}, args...))
	}

	return nil, i.NewError(object.NotCallable,
		"attempt to call a %s value", object.TypeName(fn))
}

// extendFunctionEnv binds arguments positionally in a fresh child of the
// closure's captured environment: missing parameters become nil, excess
// arguments feed the varargs of a variadic function and are dropped
// otherwise.
func (i *Interp) extendFunctionEnv(fn *object.Function, args []object.Object) *object.Environment {
	env := object.NewEnclosedEnvironment(fn.Env)
	for idx, param := range fn.Parameters {
		env.Declare(param, pick(args, idx), false)
	}
	// every call frame is a vararg boundary; non-variadic frames hold none
	env.HasVarargs = true
	if fn.IsVariadic && len(args) > len(fn.Parameters) {
		rest := args[len(fn.Parameters):]
		env.Varargs = append([]object.Object{}, rest...)
	}
	slog.Debug("call frame",
		slog.String("fn", fn.Name),
		slog.Int("args", len(args)),
		slog.Bool("variadic", fn.IsVariadic))
	return env
}
