package evaluator

import (
	"lua/object"
)

// maxIndexChain bounds __index/__newindex table chains so metatable loops
// cannot hang the evaluator.
const maxIndexChain = 100

var arithEvents = map[string]string{
	"+":  "__add",
	"-":  "__sub",
	"*":  "__mul",
	"/":  "__div",
	"//": "__idiv",
	"%":  "__mod",
	"^":  "__pow",
}

var bitwiseEvents = map[string]string{
	"&":  "__band",
	"|":  "__bor",
	"~":  "__bxor",
	"<<": "__shl",
	">>": "__shr",
}

func arithEvent(operator string) string   { return arithEvents[operator] }
func bitwiseEvent(operator string) string { return bitwiseEvents[operator] }

func getMetatable(v object.Object) *object.Table {
	if t, ok := v.(*object.Table); ok {
		return t.Meta
	}
	return nil
}

// metamethod resolves the handler for event on v's metatable, nil when
// absent.
func (i *Interp) metamethod(v object.Object, event string) object.Object {
	mt := getMetatable(v)
	if mt == nil {
		return nil
	}
	handler := mt.Get(&object.String{Value: event})
	if object.IsNil(handler) {
		return nil
	}
	return handler
}

// binMetamethod resolves a binary operator handler: the left operand's
// metatable is consulted first, then the right's.
func (i *Interp) binMetamethod(left, right object.Object, event string) object.Object {
	if handler := i.metamethod(left, event); handler != nil {
		return handler
	}
	return i.metamethod(right, event)
}

// callMetamethod invokes handler with (left, right) and takes the first
// result.
func (i *Interp) callMetamethod(handler object.Object, left, right object.Object) (object.Object, *object.RuntimeError) {
	vals, err := i.callValue(handler, []object.Object{left, right})
	if err != nil {
		return nil, err
	}
	return pick(vals, 0), nil
}

func isCallable(v object.Object) bool {
	t := v.Type()
	return t == object.FUNCTION_OBJ || t == object.BUILTIN_OBJ
}

// index implements `obj[key]` reads: a present raw key wins, an absent one
// consults __index, which may be a function (invoked with (table, key)) or
// a table (chained lookup).
func (i *Interp) index(obj, key object.Object) (object.Object, *object.RuntimeError) {
	target := obj
	for step := 0; step < maxIndexChain; step++ {
		if t, ok := target.(*object.Table); ok {
			raw := t.Get(key)
			if !object.IsNil(raw) {
				return raw, nil
			}
			handler := i.metamethod(t, "__index")
			if handler == nil {
				return NIL, nil
			}
			if isCallable(handler) {
				return i.callMetamethod(handler, target, key)
			}
			target = handler
			continue
		}
		handler := i.metamethod(target, "__index")
		if handler == nil {
			return nil, i.NewError(object.TypeError,
				"attempt to index a %s value", object.TypeName(target))
		}
		if isCallable(handler) {
			return i.callMetamethod(handler, target, key)
		}
		target = handler
	}
	return nil, i.NewError(object.NoSuchMetamethod, "'__index' chain too long; possible loop")
}

// setIndex implements `obj[key] = val` stores: __newindex only applies
// when the key is absent from the table itself.
func (i *Interp) setIndex(obj, key, val object.Object) *object.RuntimeError {
	target := obj
	for step := 0; step < maxIndexChain; step++ {
		if t, ok := target.(*object.Table); ok {
			raw := t.Get(key)
			if !object.IsNil(raw) {
				return t.Set(key, val)
			}
			handler := i.metamethod(t, "__newindex")
			if handler == nil {
				return t.Set(key, val)
			}
			if isCallable(handler) {
				_, err := i.callValue(handler, []object.Object{target, key, val})
				return err
			}
			target = handler
			continue
		}
		handler := i.metamethod(target, "__newindex")
		if handler == nil {
			return i.NewError(object.TypeError,
				"attempt to index a %s value", object.TypeName(target))
		}
		if isCallable(handler) {
			_, err := i.callValue(handler, []object.Object{target, key, val})
			return err
		}
		target = handler
	}
	return i.NewError(object.NoSuchMetamethod, "'__newindex' chain too long; possible loop")
}

// ToString renders a value for print and concatenation with .. respecting
// __tostring.
func (i *Interp) ToString(v object.Object) (string, *object.RuntimeError) {
	if handler := i.metamethod(v, "__tostring"); handler != nil {
		res, err := i.callMetamethod(handler, v, v)
		if err != nil {
			return "", err
		}
		if s, ok := res.(*object.String); ok {
			return s.Value, nil
		}
		return "", i.NewError(object.TypeError, "'__tostring' must return a string")
	}
	return v.Inspect(), nil
}
