package stdlib

import (
	"bytes"
	"testing"

	"lua/evaluator"
	"lua/object"
)

func newRuntime(t *testing.T) *evaluator.Interp {
	t.Helper()
	i := evaluator.New()
	OpenCore(i)
	return i
}

func global(t *testing.T, i *evaluator.Interp, name string) object.Object {
	t.Helper()
	v := i.Globals().Get(&object.String{Value: name})
	if object.IsNil(v) {
		t.Fatalf("global %q is not installed", name)
	}
	return v
}

func callGlobal(t *testing.T, i *evaluator.Interp, name string, args ...object.Object) []object.Object {
	t.Helper()
	vals, err := i.Call(global(t, i, name), args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return vals
}

func coroFn(t *testing.T, i *evaluator.Interp, field string) object.Object {
	t.Helper()
	co, ok := global(t, i, "coroutine").(*object.Table)
	if !ok {
		t.Fatalf("coroutine global is not a table")
	}
	fn := co.Get(&object.String{Value: field})
	if object.IsNil(fn) {
		t.Fatalf("coroutine.%s is not installed", field)
	}
	return fn
}

func TestPrintJoinsWithTabs(t *testing.T) {
	i := newRuntime(t)
	var buf bytes.Buffer
	i.SetStdout(&buf)

	callGlobal(t, i, "print",
		&object.String{Value: "a"},
		&object.Integer{Value: 1},
		&object.Float{Value: 2.5},
		object.NIL)
	if got := buf.String(); got != "a\t1\t2.5\tnil\n" {
		t.Errorf("print output = %q", got)
	}
}

func TestTypeAndToString(t *testing.T) {
	i := newRuntime(t)
	vals := callGlobal(t, i, "type", object.NewTable())
	if s := vals[0].(*object.String); s.Value != "table" {
		t.Errorf("type(table) = %q", s.Value)
	}
	vals = callGlobal(t, i, "tostring", &object.Float{Value: 1.0})
	if s := vals[0].(*object.String); s.Value != "1.0" {
		t.Errorf("tostring(1.0) = %q, want \"1.0\"", s.Value)
	}
}

func TestToNumber(t *testing.T) {
	i := newRuntime(t)
	vals := callGlobal(t, i, "tonumber", &object.String{Value: "42"})
	if n := vals[0].(*object.Integer); n.Value != 42 {
		t.Errorf("tonumber(\"42\") = %s", vals[0].Inspect())
	}

	vals = callGlobal(t, i, "tonumber", &object.String{Value: "ff"}, &object.Integer{Value: 16})
	if n := vals[0].(*object.Integer); n.Value != 255 {
		t.Errorf("tonumber(\"ff\", 16) = %s", vals[0].Inspect())
	}

	vals = callGlobal(t, i, "tonumber", &object.String{Value: "pear"})
	if !object.IsNil(vals[0]) {
		t.Errorf("tonumber(\"pear\") = %s, want nil", vals[0].Inspect())
	}
}

func TestSelect(t *testing.T) {
	i := newRuntime(t)
	args := []object.Object{
		&object.String{Value: "#"},
		&object.Integer{Value: 10},
		&object.Integer{Value: 20},
		&object.Integer{Value: 30},
	}
	vals := callGlobal(t, i, "select", args...)
	if n := vals[0].(*object.Integer); n.Value != 3 {
		t.Errorf("select('#', ...) = %s, want 3", vals[0].Inspect())
	}

	args[0] = &object.Integer{Value: 2}
	vals = callGlobal(t, i, "select", args...)
	if len(vals) != 2 {
		t.Fatalf("select(2, ...) returned %d values, want 2", len(vals))
	}
	if n := vals[0].(*object.Integer); n.Value != 20 {
		t.Errorf("select(2, ...) first value = %s, want 20", vals[0].Inspect())
	}

	args[0] = &object.Integer{Value: -1}
	vals = callGlobal(t, i, "select", args...)
	if len(vals) != 1 || vals[0].(*object.Integer).Value != 30 {
		t.Errorf("select(-1, ...) should yield the last argument")
	}
}

func TestRawAccessors(t *testing.T) {
	i := newRuntime(t)
	tbl := object.NewTable()
	meta := object.NewTable()
	meta.Set(&object.String{Value: "__index"},
		&object.Builtin{Name: "never", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
			t.Errorf("rawget must not consult __index")
			return []object.Object{object.NIL}, nil
		}})
	tbl.Meta = meta

	vals := callGlobal(t, i, "rawget", tbl, &object.String{Value: "missing"})
	if !object.IsNil(vals[0]) {
		t.Errorf("rawget of an absent key = %s, want nil", vals[0].Inspect())
	}

	callGlobal(t, i, "rawset", tbl, &object.String{Value: "k"}, &object.Integer{Value: 7})
	vals = callGlobal(t, i, "rawget", tbl, &object.String{Value: "k"})
	if n := vals[0].(*object.Integer); n.Value != 7 {
		t.Errorf("rawset/rawget round trip = %s", vals[0].Inspect())
	}

	vals = callGlobal(t, i, "rawequal", tbl, tbl)
	if vals[0] != object.TRUE {
		t.Errorf("rawequal(t, t) should be true")
	}

	tbl.Append(&object.Integer{Value: 1})
	vals = callGlobal(t, i, "rawlen", &object.String{Value: "abc"})
	if n := vals[0].(*object.Integer); n.Value != 3 {
		t.Errorf("rawlen(\"abc\") = %s", vals[0].Inspect())
	}
}

func TestMetatableAccessors(t *testing.T) {
	i := newRuntime(t)
	tbl := object.NewTable()
	meta := object.NewTable()

	callGlobal(t, i, "setmetatable", tbl, meta)
	vals := callGlobal(t, i, "getmetatable", tbl)
	if vals[0] != object.Object(meta) {
		t.Errorf("getmetatable should return the metatable")
	}

	callGlobal(t, i, "setmetatable", tbl, object.NIL)
	vals = callGlobal(t, i, "getmetatable", tbl)
	if !object.IsNil(vals[0]) {
		t.Errorf("metatable should be cleared by setmetatable(t, nil)")
	}
}

func TestProtectedMetatable(t *testing.T) {
	i := newRuntime(t)
	tbl := object.NewTable()
	meta := object.NewTable()
	meta.Set(&object.String{Value: "__metatable"}, &object.String{Value: "locked"})
	callGlobal(t, i, "setmetatable", tbl, meta)

	vals := callGlobal(t, i, "getmetatable", tbl)
	if s, ok := vals[0].(*object.String); !ok || s.Value != "locked" {
		t.Errorf("getmetatable of a protected table = %s, want the guard value", vals[0].Inspect())
	}

	_, err := i.Call(global(t, i, "setmetatable"), []object.Object{tbl, object.NewTable()})
	if err == nil {
		t.Errorf("replacing a protected metatable should fail")
	}
}

func TestPCallCatchesRaisedValues(t *testing.T) {
	i := newRuntime(t)
	payload := object.NewTable()
	raiser := &object.Builtin{Name: "raiser", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		return nil, &object.RuntimeError{Kind: object.RaisedError, Payload: payload}
	}}

	vals := callGlobal(t, i, "pcall", raiser)
	if len(vals) != 2 || vals[0] != object.FALSE {
		t.Fatalf("pcall of a failing function = %v", vals)
	}
	if vals[1] != object.Object(payload) {
		t.Errorf("pcall should forward the raised value unchanged")
	}

	fine := &object.Builtin{Name: "fine", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		return []object.Object{&object.Integer{Value: 1}, &object.Integer{Value: 2}}, nil
	}}
	vals = callGlobal(t, i, "pcall", fine)
	if len(vals) != 3 || vals[0] != object.TRUE {
		t.Fatalf("pcall of a succeeding function = %v", vals)
	}
}

func TestXPCallRunsHandler(t *testing.T) {
	i := newRuntime(t)
	raiser := &object.Builtin{Name: "raiser", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		return nil, ctx.NewError(object.RaisedError, "oops")
	}}
	handler := &object.Builtin{Name: "handler", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		s := args[0].(*object.String)
		return []object.Object{&object.String{Value: "handled: " + s.Value}}, nil
	}}

	vals := callGlobal(t, i, "xpcall", raiser, handler)
	if len(vals) != 2 || vals[0] != object.FALSE {
		t.Fatalf("xpcall of a failing function = %v", vals)
	}
	if s := vals[1].(*object.String); s.Value != "handled: oops" {
		t.Errorf("handler result = %q", s.Value)
	}
}

func TestErrorAndAssert(t *testing.T) {
	i := newRuntime(t)
	_, err := i.Call(global(t, i, "error"), []object.Object{&object.String{Value: "bang"}})
	if err == nil || err.Kind != object.RaisedError {
		t.Fatalf("error() should raise, got %v", err)
	}

	vals := callGlobal(t, i, "assert", &object.Integer{Value: 1}, &object.String{Value: "msg"})
	if len(vals) != 2 {
		t.Errorf("assert should pass its arguments through, got %d values", len(vals))
	}

	_, err = i.Call(global(t, i, "assert"), []object.Object{object.FALSE})
	if err == nil {
		t.Fatalf("assert(false) should raise")
	}
	if s, ok := err.Payload.(*object.String); !ok || s.Value != "assertion failed!" {
		t.Errorf("assert(false) payload = %v", err.Payload)
	}
}

func TestPairsVisitsEverything(t *testing.T) {
	i := newRuntime(t)
	tbl := object.NewTable()
	tbl.Append(&object.Integer{Value: 10})
	tbl.Append(&object.Integer{Value: 20})
	tbl.Set(&object.String{Value: "k"}, &object.Integer{Value: 30})

	trio := callGlobal(t, i, "pairs", tbl)
	if len(trio) != 3 {
		t.Fatalf("pairs returned %d values, want iterator, table, nil", len(trio))
	}
	iter, state, control := trio[0], trio[1], trio[2]

	count := 0
	for {
		rets, err := i.Call(iter, []object.Object{state, control})
		if err != nil {
			t.Fatalf("iterator failed: %v", err)
		}
		if object.IsNil(rets[0]) {
			break
		}
		control = rets[0]
		count++
		if count > 10 {
			t.Fatalf("iteration did not terminate")
		}
	}
	if count != 3 {
		t.Errorf("pairs visited %d entries, want 3", count)
	}
}

func TestIPairsStopsAtFirstHole(t *testing.T) {
	i := newRuntime(t)
	tbl := object.NewTable()
	tbl.Append(&object.Integer{Value: 10})
	tbl.Append(&object.Integer{Value: 20})
	tbl.Set(&object.Integer{Value: 4}, &object.Integer{Value: 40})

	trio := callGlobal(t, i, "ipairs", tbl)
	iter, state, control := trio[0], trio[1], trio[2]

	count := 0
	for {
		rets, err := i.Call(iter, []object.Object{state, control})
		if err != nil {
			t.Fatalf("iterator failed: %v", err)
		}
		if object.IsNil(rets[0]) {
			break
		}
		control = rets[0]
		count++
	}
	if count != 2 {
		t.Errorf("ipairs visited %d entries, want 2 (stops at the hole)", count)
	}
}

func TestCoroutineTable(t *testing.T) {
	i := newRuntime(t)
	body := &object.Builtin{Name: "gen", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		if _, err := ctx.Yield([]object.Object{&object.Integer{Value: 1}}); err != nil {
			return nil, err
		}
		return []object.Object{&object.Integer{Value: 2}}, nil
	}}

	created, err := i.Call(coroFn(t, i, "create"), []object.Object{body})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	co := created[0].(*object.Coroutine)

	status, _ := i.Call(coroFn(t, i, "status"), []object.Object{co})
	if s := status[0].(*object.String); s.Value != "suspended" {
		t.Errorf("status before start = %q", s.Value)
	}

	vals, err := i.Call(coroFn(t, i, "resume"), []object.Object{co})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if vals[0] != object.TRUE || vals[1].(*object.Integer).Value != 1 {
		t.Fatalf("first resume = %v", vals)
	}

	vals, _ = i.Call(coroFn(t, i, "resume"), []object.Object{co})
	if vals[0] != object.TRUE || vals[1].(*object.Integer).Value != 2 {
		t.Fatalf("second resume = %v", vals)
	}

	status, _ = i.Call(coroFn(t, i, "status"), []object.Object{co})
	if s := status[0].(*object.String); s.Value != "dead" {
		t.Errorf("status after return = %q", s.Value)
	}

	vals, _ = i.Call(coroFn(t, i, "resume"), []object.Object{co})
	if vals[0] != object.FALSE {
		t.Errorf("resuming a dead coroutine should yield a failure tuple")
	}
}

func TestCoroutineWrap(t *testing.T) {
	i := newRuntime(t)
	body := &object.Builtin{Name: "gen", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		if _, err := ctx.Yield([]object.Object{&object.Integer{Value: 7}}); err != nil {
			return nil, err
		}
		return nil, ctx.NewError(object.RaisedError, "late failure")
	}}

	wrapped, err := i.Call(coroFn(t, i, "wrap"), []object.Object{body})
	if err != nil {
		t.Fatalf("wrap failed: %v", err)
	}
	wrapper := wrapped[0]

	vals, err := i.Call(wrapper, nil)
	if err != nil {
		t.Fatalf("wrapper call failed: %v", err)
	}
	if vals[0].(*object.Integer).Value != 7 {
		t.Errorf("wrapper call = %v, want 7", vals)
	}

	// a failing body re-raises through the wrapper
	if _, err := i.Call(wrapper, nil); err == nil {
		t.Errorf("wrapper should raise the coroutine's failure")
	}
}

func TestCoroutineRunningAndIsYieldable(t *testing.T) {
	i := newRuntime(t)

	main, err := i.Call(coroFn(t, i, "running"), nil)
	if err != nil {
		t.Fatalf("running failed: %v", err)
	}
	if !object.IsNil(main[0]) || main[1] != object.TRUE {
		t.Errorf("running on the main line = %v, want (nil, true)", main)
	}

	yieldable, _ := i.Call(coroFn(t, i, "isyieldable"), nil)
	if yieldable[0] != object.FALSE {
		t.Errorf("the main line must not be yieldable")
	}

	isYieldable := coroFn(t, i, "isyieldable")
	var inside []object.Object
	body := &object.Builtin{Name: "probe", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		vals, err := ctx.Call(isYieldable, nil)
		if err != nil {
			return nil, err
		}
		inside = vals
		return nil, nil
	}}
	created, _ := i.Call(coroFn(t, i, "create"), []object.Object{body})
	i.Resume(created[0].(*object.Coroutine), nil)
	if len(inside) == 0 || inside[0] != object.TRUE {
		t.Errorf("a running coroutine should be yieldable")
	}
}

func TestCoroutineClose(t *testing.T) {
	i := newRuntime(t)
	body := &object.Builtin{Name: "gen", Fn: func(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
		return ctx.Yield(nil)
	}}
	created, _ := i.Call(coroFn(t, i, "create"), []object.Object{body})
	co := created[0].(*object.Coroutine)
	i.Resume(co, nil)

	vals, err := i.Call(coroFn(t, i, "close"), []object.Object{co})
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if vals[0] != object.TRUE {
		t.Errorf("close = %v, want true", vals)
	}
	if co.State != object.CoDead {
		t.Errorf("state after close = %s, want dead", co.State)
	}
}
