package object

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"lua/ast"
)

const (
	NIL_OBJ     = "NIL"
	BOOLEAN_OBJ = "BOOLEAN"
	INTEGER_OBJ = "INTEGER"
	FLOAT_OBJ   = "FLOAT"
	STRING_OBJ  = "STRING"

	TABLE_OBJ     = "TABLE"
	FUNCTION_OBJ  = "FUNCTION"
	BUILTIN_OBJ   = "BUILTIN"
	COROUTINE_OBJ = "COROUTINE"
)

var (
	NIL   = &Nil{}
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
)

type ObjectType string

type Object interface {
	Type() ObjectType
	Inspect() string
}

// EvaluatorContext is the bridge between native Go code and the interpreter.
// Builtin implementations receive it to call back into script code, reach
// the global table and raise script-level errors.
type EvaluatorContext interface {
	Call(fn Object, args []Object) ([]Object, *RuntimeError)
	Globals() *Table
	NewError(kind ErrorKind, format string, a ...interface{}) *RuntimeError
	ToString(v Object) (string, *RuntimeError)
	Stdout() io.Writer
	NextHandleID() int64

	NewCoroutine(fn Object) (*Coroutine, *RuntimeError)
	Resume(co *Coroutine, args []Object) []Object
	Yield(args []Object) ([]Object, *RuntimeError)
	CloseCoroutine(co *Coroutine) *RuntimeError
	CurrentCoroutine() *Coroutine
}

type BuiltinFunction func(ctx EvaluatorContext, args []Object) ([]Object, *RuntimeError)

type Nil struct{}

func (n *Nil) Type() ObjectType { return NIL_OBJ }
func (n *Nil) Inspect() string  { return "nil" }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }

type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }

type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType { return FLOAT_OBJ }
func (f *Float) Inspect() string  { return FormatFloat(f.Value) }

// FormatFloat renders a float the way Lua does: %.14g, with a trailing
// ".0" when the result would read as an integer.
func FormatFloat(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if math.IsNaN(v) {
		return "nan"
	}
	s := strconv.FormatFloat(v, 'g', 14, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return s.Value }

// Function is a closure: the environment chain in effect when the literal
// was evaluated, fixed at creation time.
type Function struct {
	Name       string
	Parameters []string
	IsVariadic bool
	Body       *ast.Block
	Env        *Environment
}

func (f *Function) Type() ObjectType { return FUNCTION_OBJ }
func (f *Function) Inspect() string  { return fmt.Sprintf("function: %p", f) }

type Builtin struct {
	Name string
	Fn   BuiltinFunction
}

func (b *Builtin) Type() ObjectType { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string  { return fmt.Sprintf("function: builtin: %s", b.Name) }

// TypeName returns the language-level name of a value's type.
func TypeName(o Object) string {
	switch o.Type() {
	case NIL_OBJ:
		return "nil"
	case BOOLEAN_OBJ:
		return "boolean"
	case INTEGER_OBJ, FLOAT_OBJ:
		return "number"
	case STRING_OBJ:
		return "string"
	case TABLE_OBJ:
		return "table"
	case FUNCTION_OBJ, BUILTIN_OBJ:
		return "function"
	case COROUTINE_OBJ:
		return "thread"
	}
	return "unknown"
}

// Truthy: only nil and false are false.
func Truthy(o Object) bool {
	switch v := o.(type) {
	case *Nil:
		return false
	case *Boolean:
		return v.Value
	default:
		return true
	}
}

func IsNil(o Object) bool {
	return o == nil || o.Type() == NIL_OBJ
}

func NativeBoolToBooleanObject(input bool) *Boolean {
	if input {
		return TRUE
	}
	return FALSE
}

// ToNumber coerces a value to a number. Strings parse with numeral syntax
// (decimal, hex, floats, exponents); anything else never coerces.
func ToNumber(o Object) (Object, bool) {
	switch v := o.(type) {
	case *Integer:
		return v, true
	case *Float:
		return v, true
	case *String:
		return parseNumeral(v.Value)
	}
	return nil, false
}

// ToInteger coerces to an integer, requiring an exact, finite value.
func ToInteger(o Object) (int64, bool) {
	n, ok := ToNumber(o)
	if !ok {
		return 0, false
	}
	switch v := n.(type) {
	case *Integer:
		return v.Value, true
	case *Float:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return 0, false
		}
		i := int64(v.Value)
		if float64(i) == v.Value {
			return i, true
		}
	}
	return 0, false
}

func parseNumeral(s string) (Object, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	body := s
	neg := false
	switch body[0] {
	case '-':
		neg = true
		body = body[1:]
	case '+':
		body = body[1:]
	}
	if len(body) > 2 && (body[:2] == "0x" || body[:2] == "0X") {
		digits := body[2:]
		if strings.ContainsRune(digits, '_') {
			return nil, false
		}
		if u, err := strconv.ParseUint(digits, 16, 64); err == nil {
			v := int64(u)
			if neg {
				v = -v
			}
			return &Integer{Value: v}, true
		}
		// hex float, 0x1p4 style
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &Float{Value: f}, true
		}
		return nil, false
	}
	// decimal only: no binary or octal prefixes, digit separators,
	// inf or nan words
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c >= '0' && c <= '9':
		case c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-':
		default:
			return nil, false
		}
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &Integer{Value: i}, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &Float{Value: f}, true
	}
	return nil, false
}

// Equals implements raw (non-metamethod) equality: scalars by value with
// Integer and Float of equal numeric value equal, reference types by
// identity.
func Equals(a, b Object) bool {
	switch av := a.(type) {
	case *Nil:
		return IsNil(b)
	case *Boolean:
		bv, ok := b.(*Boolean)
		return ok && av.Value == bv.Value
	case *Integer:
		switch bv := b.(type) {
		case *Integer:
			return av.Value == bv.Value
		case *Float:
			return float64(av.Value) == bv.Value
		}
		return false
	case *Float:
		switch bv := b.(type) {
		case *Integer:
			return av.Value == float64(bv.Value)
		case *Float:
			return av.Value == bv.Value
		}
		return false
	case *String:
		bv, ok := b.(*String)
		return ok && av.Value == bv.Value
	}
	return a == b
}
