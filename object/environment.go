package object

import (
	"log/slog"
)

// Binding is the boxed value cell a name resolves to. Closures capture the
// cell, not the value, so later mutations stay visible.
type Binding struct {
	Value   Object
	IsConst bool
}

// Environment is one frame of the lexical scope chain. The root frame owns
// the global table; undeclared names fall through to it.
//
// No locking: execution is single-threaded cooperative, and coroutine
// handoff over channels already orders all access.
type Environment struct {
	Bindings map[string]*Binding
	Outer    *Environment
	globals  *Table

	// to-be-closed values declared in this frame, drained in reverse
	// order on every scope exit
	ToClose []Object

	// varargs of the enclosing function call, present only on call frames
	// of variadic functions
	Varargs    []Object
	HasVarargs bool
}

// NewRootEnvironment creates the base frame with a fresh global table.
func NewRootEnvironment() *Environment {
	return &Environment{
		Bindings: make(map[string]*Binding),
		globals:  NewTable(),
	}
}

// NewEnclosedEnvironment creates a child scope of outer.
func NewEnclosedEnvironment(outer *Environment) *Environment {
	return &Environment{
		Bindings: make(map[string]*Binding),
		Outer:    outer,
	}
}

// Globals returns the global table owned by the root frame.
func (e *Environment) Globals() *Table {
	env := e
	for env.Outer != nil {
		env = env.Outer
	}
	return env.globals
}

// Declare creates a fresh cell in this frame, shadowing any outer binding
// of the same name.
func (e *Environment) Declare(name string, val Object, isConst bool) *Binding {
	binding := &Binding{Value: val, IsConst: isConst}
	e.Bindings[name] = binding
	slog.Debug("declare local",
		slog.String("name", name),
		slog.Bool("const", isConst))
	return binding
}

// GetBinding walks the chain to the frame declaring name.
func (e *Environment) GetBinding(name string) (*Binding, bool) {
	if binding, ok := e.Bindings[name]; ok {
		return binding, true
	}
	if e.Outer != nil {
		return e.Outer.GetBinding(name)
	}
	return nil, false
}

// Lookup resolves a name against locals then the global table. The second
// result reports whether any declaration was found; an undeclared read
// still yields nil.
func (e *Environment) Lookup(name string) (Object, bool) {
	if binding, ok := e.GetBinding(name); ok {
		return binding.Value, true
	}
	v := e.Globals().Get(&String{Value: name})
	if IsNil(v) {
		return NIL, false
	}
	return v, true
}

// Get resolves a name, yielding nil when undeclared.
func (e *Environment) Get(name string) Object {
	v, _ := e.Lookup(name)
	return v
}

// Assign walks the chain to the declaring frame and mutates that cell, or
// stores into the global table when no frame declares name.
func (e *Environment) Assign(name string, val Object) *RuntimeError {
	if binding, ok := e.GetBinding(name); ok {
		if binding.IsConst {
			return NewError(ImmutableAssignment,
				"attempt to assign to const variable '%s'", name)
		}
		binding.Value = val
		return nil
	}
	return e.Globals().Set(&String{Value: name}, val)
}

// RegisterToClose records a to-be-closed value owned by this frame.
func (e *Environment) RegisterToClose(val Object) {
	e.ToClose = append(e.ToClose, val)
}

// DrainToClose returns the pending to-be-closed values in reverse
// declaration order and clears the stack.
func (e *Environment) DrainToClose() []Object {
	if len(e.ToClose) == 0 {
		return nil
	}
	drained := make([]Object, 0, len(e.ToClose))
	for i := len(e.ToClose) - 1; i >= 0; i-- {
		drained = append(drained, e.ToClose[i])
	}
	e.ToClose = nil
	return drained
}

// VarargValues finds the varargs of the nearest enclosing variadic call
// frame.
func (e *Environment) VarargValues() []Object {
	env := e
	for env != nil {
		if env.HasVarargs {
			return env.Varargs
		}
		env = env.Outer
	}
	return nil
}
