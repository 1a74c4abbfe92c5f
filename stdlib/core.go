// Package stdlib provides the pre-registered native functions the runtime
// ships with. Everything is installed through the registration surface, so
// hosts can pick the libraries they want before execution.
package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"lua/object"
)

// Runtime is the registration surface natives are installed through.
type Runtime interface {
	Register(name string, fn object.BuiltinFunction)
	RegisterValue(name string, val object.Object)
}

// OpenCore installs the base primitives and the coroutine table.
func OpenCore(rt Runtime) {
	rt.Register("print", fnPrint)
	rt.Register("type", fnType)
	rt.Register("tostring", fnToString)
	rt.Register("tonumber", fnToNumber)
	rt.Register("pairs", fnPairs)
	rt.Register("ipairs", fnIPairs)
	rt.Register("next", fnNext)
	rt.Register("select", fnSelect)
	rt.Register("rawget", fnRawGet)
	rt.Register("rawset", fnRawSet)
	rt.Register("rawequal", fnRawEqual)
	rt.Register("rawlen", fnRawLen)
	rt.Register("setmetatable", fnSetMetatable)
	rt.Register("getmetatable", fnGetMetatable)
	rt.Register("pcall", fnPCall)
	rt.Register("xpcall", fnXPCall)
	rt.Register("error", fnError)
	rt.Register("assert", fnAssert)

	co := object.NewTable()
	co.Set(&object.String{Value: "create"}, &object.Builtin{Name: "coroutine.create", Fn: fnCoCreate})
	co.Set(&object.String{Value: "resume"}, &object.Builtin{Name: "coroutine.resume", Fn: fnCoResume})
	co.Set(&object.String{Value: "yield"}, &object.Builtin{Name: "coroutine.yield", Fn: fnCoYield})
	co.Set(&object.String{Value: "status"}, &object.Builtin{Name: "coroutine.status", Fn: fnCoStatus})
	co.Set(&object.String{Value: "wrap"}, &object.Builtin{Name: "coroutine.wrap", Fn: fnCoWrap})
	co.Set(&object.String{Value: "isyieldable"}, &object.Builtin{Name: "coroutine.isyieldable", Fn: fnCoIsYieldable})
	co.Set(&object.String{Value: "running"}, &object.Builtin{Name: "coroutine.running", Fn: fnCoRunning})
	co.Set(&object.String{Value: "close"}, &object.Builtin{Name: "coroutine.close", Fn: fnCoClose})
	rt.RegisterValue("coroutine", co)
}

func argAt(args []object.Object, idx int) object.Object {
	if idx < len(args) {
		return args[idx]
	}
	return object.NIL
}

func wantArgs(ctx object.EvaluatorContext, name string, args []object.Object, n int) *object.RuntimeError {
	if len(args) < n {
		return ctx.NewError(object.TypeError,
			"bad argument to '%s' (got %d arguments, expected at least %d)", name, len(args), n)
	}
	return nil
}

func fnPrint(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		s, err := ctx.ToString(arg)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	fmt.Fprintln(ctx.Stdout(), strings.Join(parts, "\t"))
	return []object.Object{}, nil
}

func fnType(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "type", args, 1); err != nil {
		return nil, err
	}
	return []object.Object{&object.String{Value: object.TypeName(args[0])}}, nil
}

func fnToString(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "tostring", args, 1); err != nil {
		return nil, err
	}
	s, err := ctx.ToString(args[0])
	if err != nil {
		return nil, err
	}
	return []object.Object{&object.String{Value: s}}, nil
}

func fnToNumber(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "tonumber", args, 1); err != nil {
		return nil, err
	}
	if len(args) >= 2 && !object.IsNil(args[1]) {
		base, ok := object.ToInteger(args[1])
		if !ok || base < 2 || base > 36 {
			return nil, ctx.NewError(object.TypeError, "bad argument #2 to 'tonumber' (base out of range)")
		}
		s, ok := args[0].(*object.String)
		if !ok {
			return nil, ctx.NewError(object.TypeError,
				"bad argument #1 to 'tonumber' (string expected, got %s)", object.TypeName(args[0]))
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s.Value), int(base), 64)
		if err != nil {
			return []object.Object{object.NIL}, nil
		}
		return []object.Object{&object.Integer{Value: v}}, nil
	}
	if n, ok := object.ToNumber(args[0]); ok {
		return []object.Object{n}, nil
	}
	return []object.Object{object.NIL}, nil
}

func fnNext(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "next", args, 1); err != nil {
		return nil, err
	}
	t, ok := args[0].(*object.Table)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'next' (table expected, got %s)", object.TypeName(args[0]))
	}
	k, v, err := t.Next(argAt(args, 1))
	if err != nil {
		return nil, err
	}
	if object.IsNil(k) {
		return []object.Object{object.NIL}, nil
	}
	return []object.Object{k, v}, nil
}

func fnPairs(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "pairs", args, 1); err != nil {
		return nil, err
	}
	if _, ok := args[0].(*object.Table); !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'pairs' (table expected, got %s)", object.TypeName(args[0]))
	}
	iter := &object.Builtin{Name: "next", Fn: fnNext}
	return []object.Object{iter, args[0], object.NIL}, nil
}

func fnIPairs(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "ipairs", args, 1); err != nil {
		return nil, err
	}
	iter := &object.Builtin{
		Name: "ipairs.iterator",
		Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
			t, ok := argAt(args, 0).(*object.Table)
			if !ok {
				return nil, ctx.NewError(object.TypeError, "'ipairs' iterator lost its table")
			}
			n, _ := object.ToInteger(argAt(args, 1))
			v := t.GetInt(n + 1)
			if object.IsNil(v) {
				return []object.Object{object.NIL}, nil
			}
			return []object.Object{&object.Integer{Value: n + 1}, v}, nil
		},
	}
	return []object.Object{iter, args[0], &object.Integer{Value: 0}}, nil
}

func fnSelect(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "select", args, 1); err != nil {
		return nil, err
	}
	rest := args[1:]
	if s, ok := args[0].(*object.String); ok && s.Value == "#" {
		return []object.Object{&object.Integer{Value: int64(len(rest))}}, nil
	}
	n, ok := object.ToInteger(args[0])
	if !ok || n == 0 {
		return nil, ctx.NewError(object.TypeError, "bad argument #1 to 'select' (number out of range)")
	}
	if n < 0 {
		n = int64(len(rest)) + n + 1
		if n < 1 {
			return nil, ctx.NewError(object.TypeError, "bad argument #1 to 'select' (number out of range)")
		}
	}
	if n > int64(len(rest)) {
		return []object.Object{}, nil
	}
	return rest[n-1:], nil
}

func fnRawGet(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "rawget", args, 2); err != nil {
		return nil, err
	}
	t, ok := args[0].(*object.Table)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'rawget' (table expected, got %s)", object.TypeName(args[0]))
	}
	return []object.Object{t.Get(args[1])}, nil
}

func fnRawSet(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "rawset", args, 3); err != nil {
		return nil, err
	}
	t, ok := args[0].(*object.Table)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'rawset' (table expected, got %s)", object.TypeName(args[0]))
	}
	if err := t.Set(args[1], args[2]); err != nil {
		return nil, err
	}
	return []object.Object{t}, nil
}

func fnRawEqual(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "rawequal", args, 2); err != nil {
		return nil, err
	}
	return []object.Object{object.NativeBoolToBooleanObject(object.Equals(args[0], args[1]))}, nil
}

func fnRawLen(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "rawlen", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *object.Table:
		return []object.Object{&object.Integer{Value: v.Len()}}, nil
	case *object.String:
		return []object.Object{&object.Integer{Value: int64(len(v.Value))}}, nil
	}
	return nil, ctx.NewError(object.TypeError, "table or string expected")
}

func fnSetMetatable(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "setmetatable", args, 2); err != nil {
		return nil, err
	}
	t, ok := args[0].(*object.Table)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'setmetatable' (table expected, got %s)", object.TypeName(args[0]))
	}
	if t.Meta != nil && !object.IsNil(t.Meta.Get(&object.String{Value: "__metatable"})) {
		return nil, ctx.NewError(object.TypeError, "cannot change a protected metatable")
	}
	switch mt := args[1].(type) {
	case *object.Nil:
		t.Meta = nil
	case *object.Table:
		t.Meta = mt
	default:
		return nil, ctx.NewError(object.TypeError,
			"bad argument #2 to 'setmetatable' (nil or table expected)")
	}
	return []object.Object{t}, nil
}

func fnGetMetatable(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "getmetatable", args, 1); err != nil {
		return nil, err
	}
	t, ok := args[0].(*object.Table)
	if !ok || t.Meta == nil {
		return []object.Object{object.NIL}, nil
	}
	if protected := t.Meta.Get(&object.String{Value: "__metatable"}); !object.IsNil(protected) {
		return []object.Object{protected}, nil
	}
	return []object.Object{t.Meta}, nil
}

// fnPCall is the protected-call boundary: a raised error is caught here and
// converted to a (false, error value) pair instead of unwinding further.
func fnPCall(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "pcall", args, 1); err != nil {
		return nil, err
	}
	rets, err := ctx.Call(args[0], args[1:])
	if err != nil {
		payload := object.Object(object.NIL)
		if err.Payload != nil {
			payload = err.Payload
		}
		return []object.Object{object.FALSE, payload}, nil
	}
	return append([]object.Object{object.TRUE}, rets...), nil
}

func fnXPCall(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "xpcall", args, 2); err != nil {
		return nil, err
	}
	rets, err := ctx.Call(args[0], args[2:])
	if err != nil {
		payload := object.Object(object.NIL)
		if err.Payload != nil {
			payload = err.Payload
		}
		handled, herr := ctx.Call(args[1], []object.Object{payload})
		if herr != nil {
			return nil, herr
		}
		return append([]object.Object{object.FALSE}, handled...), nil
	}
	return append([]object.Object{object.TRUE}, rets...), nil
}

// fnError raises with an arbitrary value payload, not only strings.
func fnError(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	return nil, &object.RuntimeError{Kind: object.RaisedError, Payload: argAt(args, 0)}
}

func fnAssert(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "assert", args, 1); err != nil {
		return nil, err
	}
	if object.Truthy(args[0]) {
		return args, nil
	}
	if len(args) >= 2 {
		return nil, &object.RuntimeError{Kind: object.RaisedError, Payload: args[1]}
	}
	return nil, ctx.NewError(object.RaisedError, "assertion failed!")
}

func fnCoCreate(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "coroutine.create", args, 1); err != nil {
		return nil, err
	}
	co, err := ctx.NewCoroutine(args[0])
	if err != nil {
		return nil, err
	}
	return []object.Object{co}, nil
}

func fnCoResume(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "coroutine.resume", args, 1); err != nil {
		return nil, err
	}
	co, ok := args[0].(*object.Coroutine)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'resume' (coroutine expected, got %s)", object.TypeName(args[0]))
	}
	return ctx.Resume(co, args[1:]), nil
}

func fnCoYield(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	return ctx.Yield(args)
}

func fnCoStatus(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "coroutine.status", args, 1); err != nil {
		return nil, err
	}
	co, ok := args[0].(*object.Coroutine)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'status' (coroutine expected, got %s)", object.TypeName(args[0]))
	}
	return []object.Object{&object.String{Value: string(co.State)}}, nil
}

// fnCoWrap returns a function that resumes the wrapped coroutine and
// re-raises its failures instead of returning a tuple.
func fnCoWrap(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "coroutine.wrap", args, 1); err != nil {
		return nil, err
	}
	co, err := ctx.NewCoroutine(args[0])
	if err != nil {
		return nil, err
	}
	wrapper := &object.Builtin{
		Name: "coroutine.wrap.resumer",
		Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
			rets := ctx.Resume(co, args)
			if len(rets) > 0 && rets[0] == object.FALSE {
				return nil, &object.RuntimeError{Kind: object.CoroutineError, Payload: argAt(rets, 1)}
			}
			return rets[1:], nil
		},
	}
	return []object.Object{wrapper}, nil
}

func fnCoIsYieldable(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	return []object.Object{object.NativeBoolToBooleanObject(ctx.CurrentCoroutine() != nil)}, nil
}

func fnCoRunning(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	co := ctx.CurrentCoroutine()
	if co == nil {
		return []object.Object{object.NIL, object.TRUE}, nil
	}
	return []object.Object{co, object.FALSE}, nil
}

func fnCoClose(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "coroutine.close", args, 1); err != nil {
		return nil, err
	}
	co, ok := args[0].(*object.Coroutine)
	if !ok {
		return nil, ctx.NewError(object.TypeError,
			"bad argument #1 to 'close' (coroutine expected, got %s)", object.TypeName(args[0]))
	}
	if err := ctx.CloseCoroutine(co); err != nil {
		return []object.Object{object.FALSE, err.Payload}, nil
	}
	return []object.Object{object.TRUE}, nil
}
