package evaluator

import (
	"math"

	"lua/ast"
	"lua/object"
)

// evalExpr evaluates an expression in a single-value context, truncating
// any multi-value result to its first value.
func (i *Interp) evalExpr(expr ast.Expression, env *object.Environment) (object.Object, *object.RuntimeError) {
	switch e := expr.(type) {

	case *ast.NilLiteral:
		return NIL, nil

	case *ast.BooleanLiteral:
		return object.NativeBoolToBooleanObject(e.Value), nil

	case *ast.IntegerLiteral:
		return &object.Integer{Value: e.Value}, nil

	case *ast.FloatLiteral:
		return &object.Float{Value: e.Value}, nil

	case *ast.StringLiteral:
		return &object.String{Value: e.Value}, nil

	case *ast.Ident:
		if e.Checked {
			val, ok := env.Lookup(e.Name)
			if !ok {
				return nil, i.NewError(object.UnknownVariable,
					"unknown variable '%s' (line %d)", e.Name, e.Line)
			}
			return val, nil
		}
		return env.Get(e.Name), nil

	case *ast.VarargLiteral:
		vals := env.VarargValues()
		return pick(vals, 0), nil

	case *ast.ParenExpression:
		// parentheses truncate a multi-value result to one value
		return i.evalExpr(e.Inner, env)

	case *ast.PrefixExpression:
		right, err := i.evalExpr(e.Right, env)
		if err != nil {
			return nil, err
		}
		return i.evalPrefixExpression(e.Operator, right)

	case *ast.InfixExpression:
		if e.Operator == "and" || e.Operator == "or" {
			return i.evalShortCircuit(e, env)
		}
		left, err := i.evalExpr(e.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := i.evalExpr(e.Right, env)
		if err != nil {
			return nil, err
		}
		return i.evalInfixExpression(e.Operator, left, right)

	case *ast.IndexExpression:
		obj, err := i.evalExpr(e.Object, env)
		if err != nil {
			return nil, err
		}
		key, err := i.evalExpr(e.Key, env)
		if err != nil {
			return nil, err
		}
		return i.index(obj, key)

	case *ast.FunctionLiteral:
		return &object.Function{
			Name:       e.Name,
			Parameters: e.Parameters,
			IsVariadic: e.IsVariadic,
			Body:       e.Body,
			Env:        env,
		}, nil

	case *ast.TableLiteral:
		return i.evalTableLiteral(e, env)

	case *ast.CallExpression, *ast.MethodCallExpression:
		vals, err := i.evalExprMulti(expr, env)
		if err != nil {
			return nil, err
		}
		return pick(vals, 0), nil
	}

	return nil, i.NewError(object.TypeError, "unknown expression %T", expr)
}

// evalExprMulti evaluates an expression in a multi-value context. Only
// calls and `...` produce more (or fewer) than one value.
func (i *Interp) evalExprMulti(expr ast.Expression, env *object.Environment) ([]object.Object, *object.RuntimeError) {
	switch e := expr.(type) {

	case *ast.CallExpression:
		fn, err := i.evalExpr(e.Function, env)
		if err != nil {
			return nil, err
		}
		args, err := i.evalExprList(e.Arguments, env)
		if err != nil {
			return nil, err
		}
		return i.callValue(fn, args)

	case *ast.MethodCallExpression:
		recv, err := i.evalExpr(e.Receiver, env)
		if err != nil {
			return nil, err
		}
		method, err := i.index(recv, &object.String{Value: e.Method})
		if err != nil {
			return nil, err
		}
		args, err := i.evalExprList(e.Arguments, env)
		if err != nil {
			return nil, err
		}
		return i.callValue(method, append([]object.Object{recv}, args...))

	case *ast.VarargLiteral:
		vals := env.VarargValues()
		return append([]object.Object{}, vals...), nil
	}

	val, err := i.evalExpr(expr, env)
	if err != nil {
		return nil, err
	}
	return []object.Object{val}, nil
}

// evalExprList evaluates an expression list: every expression contributes
// one value except the last, which expands a multi-value result.
func (i *Interp) evalExprList(exprs []ast.Expression, env *object.Environment) ([]object.Object, *object.RuntimeError) {
	var result []object.Object
	for idx, expr := range exprs {
		if idx == len(exprs)-1 {
			vals, err := i.evalExprMulti(expr, env)
			if err != nil {
				return nil, err
			}
			result = append(result, vals...)
		} else {
			val, err := i.evalExpr(expr, env)
			if err != nil {
				return nil, err
			}
			result = append(result, val)
		}
	}
	return result, nil
}

// evalShortCircuit evaluates and/or lazily: the right operand only runs
// when the left's truthiness demands it.
func (i *Interp) evalShortCircuit(e *ast.InfixExpression, env *object.Environment) (object.Object, *object.RuntimeError) {
	left, err := i.evalExpr(e.Left, env)
	if err != nil {
		return nil, err
	}
	if e.Operator == "and" {
		if !object.Truthy(left) {
			return left, nil
		}
	} else {
		if object.Truthy(left) {
			return left, nil
		}
	}
	return i.evalExpr(e.Right, env)
}

func (i *Interp) evalTableLiteral(e *ast.TableLiteral, env *object.Environment) (object.Object, *object.RuntimeError) {
	table := object.NewTable()
	for idx, entry := range e.Entries {
		if entry.Key != nil {
			key, err := i.evalExpr(entry.Key, env)
			if err != nil {
				return nil, err
			}
			val, err := i.evalExpr(entry.Value, env)
			if err != nil {
				return nil, err
			}
			if err := table.Set(key, val); err != nil {
				return nil, err
			}
			continue
		}
		if idx == len(e.Entries)-1 {
			// trailing positional entry spreads a multi-value result
			vals, err := i.evalExprMulti(entry.Value, env)
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				table.Append(v)
			}
			continue
		}
		val, err := i.evalExpr(entry.Value, env)
		if err != nil {
			return nil, err
		}
		table.Append(val)
	}
	return table, nil
}

func (i *Interp) evalPrefixExpression(operator string, right object.Object) (object.Object, *object.RuntimeError) {
	switch operator {
	case "not":
		return object.NativeBoolToBooleanObject(!object.Truthy(right)), nil
	case "-":
		return i.evalUnaryMinus(right)
	case "#":
		return i.evalLength(right)
	case "~":
		if v, ok := bitwiseOperand(right); ok {
			return &object.Integer{Value: ^v}, nil
		}
		if handler := i.metamethod(right, "__bnot"); handler != nil {
			return i.callMetamethod(handler, right, right)
		}
		return nil, i.operandError("perform bitwise operation on", right)
	}
	return nil, i.NewError(object.TypeError, "unknown operator %s", operator)
}

func (i *Interp) evalUnaryMinus(right object.Object) (object.Object, *object.RuntimeError) {
	switch n := right.(type) {
	case *object.Integer:
		return &object.Integer{Value: -n.Value}, nil
	case *object.Float:
		return &object.Float{Value: -n.Value}, nil
	case *object.String:
		if num, ok := object.ToNumber(n); ok {
			return i.evalUnaryMinus(num)
		}
	}
	if handler := i.metamethod(right, "__unm"); handler != nil {
		return i.callMetamethod(handler, right, right)
	}
	return nil, i.operandError("perform arithmetic on", right)
}

func (i *Interp) evalLength(val object.Object) (object.Object, *object.RuntimeError) {
	switch v := val.(type) {
	case *object.String:
		return &object.Integer{Value: int64(len(v.Value))}, nil
	case *object.Table:
		if handler := i.metamethod(v, "__len"); handler != nil {
			return i.callMetamethod(handler, v, v)
		}
		return &object.Integer{Value: v.Len()}, nil
	}
	return nil, i.operandError("get length of", val)
}

func (i *Interp) evalInfixExpression(operator string, left, right object.Object) (object.Object, *object.RuntimeError) {
	switch operator {
	case "+", "-", "*", "/", "//", "%", "^":
		return i.evalArith(operator, left, right)
	case "..":
		return i.evalConcat(left, right)
	case "==":
		return i.valuesEqual(left, right)
	case "~=":
		eq, err := i.valuesEqual(left, right)
		if err != nil {
			return nil, err
		}
		return object.NativeBoolToBooleanObject(eq == FALSE), nil
	case "<", "<=", ">", ">=":
		return i.evalCompare(operator, left, right)
	case "&", "|", "~", "<<", ">>":
		return i.evalBitwise(operator, left, right)
	}
	return nil, i.NewError(object.TypeError, "unknown operator %s", operator)
}

// evalArith applies built-in numeric semantics first: Integer op Integer
// stays Integer except for `/` and `^`, any Float operand poisons to
// Float, strings coerce through numeral parsing. Otherwise metamethods.
func (i *Interp) evalArith(operator string, left, right object.Object) (object.Object, *object.RuntimeError) {
	ln, lok := object.ToNumber(left)
	rn, rok := object.ToNumber(right)
	if lok && rok {
		li, lInt := ln.(*object.Integer)
		ri, rInt := rn.(*object.Integer)
		if lInt && rInt && operator != "/" && operator != "^" {
			return i.intArith(operator, li.Value, ri.Value)
		}
		return i.floatArith(operator, asFloat(ln), asFloat(rn)), nil
	}
	if handler := i.binMetamethod(left, right, arithEvent(operator)); handler != nil {
		return i.callMetamethod(handler, left, right)
	}
	bad := left
	if lok {
		bad = right
	}
	return nil, i.operandError("perform arithmetic on", bad)
}

func (i *Interp) intArith(operator string, l, r int64) (object.Object, *object.RuntimeError) {
	switch operator {
	case "+":
		return &object.Integer{Value: l + r}, nil
	case "-":
		return &object.Integer{Value: l - r}, nil
	case "*":
		return &object.Integer{Value: l * r}, nil
	case "//":
		if r == 0 {
			return nil, i.NewError(object.DivideByZero, "attempt to perform 'n//0'")
		}
		q := l / r
		if (l%r != 0) && ((l < 0) != (r < 0)) {
			q--
		}
		return &object.Integer{Value: q}, nil
	case "%":
		if r == 0 {
			return nil, i.NewError(object.ModuloByZero, "attempt to perform 'n%%0'")
		}
		m := l % r
		if m != 0 && (m < 0) != (r < 0) {
			m += r
		}
		return &object.Integer{Value: m}, nil
	}
	return nil, i.NewError(object.TypeError, "unknown operator %s", operator)
}

// floatArith never errors: float division by zero follows IEEE semantics.
func (i *Interp) floatArith(operator string, l, r float64) object.Object {
	switch operator {
	case "+":
		return &object.Float{Value: l + r}
	case "-":
		return &object.Float{Value: l - r}
	case "*":
		return &object.Float{Value: l * r}
	case "/":
		return &object.Float{Value: l / r}
	case "//":
		return &object.Float{Value: math.Floor(l / r)}
	case "%":
		m := math.Mod(l, r)
		if m != 0 && (m < 0) != (r < 0) {
			m += r
		}
		return &object.Float{Value: m}
	case "^":
		return &object.Float{Value: math.Pow(l, r)}
	}
	return NIL
}

func (i *Interp) evalConcat(left, right object.Object) (object.Object, *object.RuntimeError) {
	ls, lok := concatString(left)
	rs, rok := concatString(right)
	if lok && rok {
		return &object.String{Value: ls + rs}, nil
	}
	if handler := i.binMetamethod(left, right, "__concat"); handler != nil {
		return i.callMetamethod(handler, left, right)
	}
	bad := left
	if lok {
		bad = right
	}
	return nil, i.operandError("concatenate", bad)
}

func concatString(v object.Object) (string, bool) {
	switch v.(type) {
	case *object.String, *object.Integer, *object.Float:
		return v.Inspect(), true
	}
	return "", false
}

// valuesEqual implements `==`: raw equality first, then __eq for
// table/table (or function/function) pairs, defaulting to false across
// incompatible types. Equality never raises a type error.
func (i *Interp) valuesEqual(left, right object.Object) (object.Object, *object.RuntimeError) {
	if object.Equals(left, right) {
		return TRUE, nil
	}
	bothTables := left.Type() == object.TABLE_OBJ && right.Type() == object.TABLE_OBJ
	bothFunctions := left.Type() == object.FUNCTION_OBJ && right.Type() == object.FUNCTION_OBJ
	if bothTables || bothFunctions {
		if handler := i.binMetamethod(left, right, "__eq"); handler != nil {
			res, err := i.callMetamethod(handler, left, right)
			if err != nil {
				return nil, err
			}
			return object.NativeBoolToBooleanObject(object.Truthy(res)), nil
		}
	}
	return FALSE, nil
}

// evalCompare implements the ordering operators: both operands must be
// numbers or both strings, else a metamethod, else a type error.
func (i *Interp) evalCompare(operator string, left, right object.Object) (object.Object, *object.RuntimeError) {
	// reduce > and >= to swapped < and <=
	switch operator {
	case ">":
		return i.evalCompare("<", right, left)
	case ">=":
		return i.evalCompare("<=", right, left)
	}

	if isNumber(left) && isNumber(right) {
		lf, rf := asFloat(left), asFloat(right)
		li, lInt := left.(*object.Integer)
		ri, rInt := right.(*object.Integer)
		if lInt && rInt {
			if operator == "<" {
				return object.NativeBoolToBooleanObject(li.Value < ri.Value), nil
			}
			return object.NativeBoolToBooleanObject(li.Value <= ri.Value), nil
		}
		if operator == "<" {
			return object.NativeBoolToBooleanObject(lf < rf), nil
		}
		return object.NativeBoolToBooleanObject(lf <= rf), nil
	}

	ls, lok := left.(*object.String)
	rs, rok := right.(*object.String)
	if lok && rok {
		if operator == "<" {
			return object.NativeBoolToBooleanObject(ls.Value < rs.Value), nil
		}
		return object.NativeBoolToBooleanObject(ls.Value <= rs.Value), nil
	}

	event := "__lt"
	if operator == "<=" {
		event = "__le"
	}
	if handler := i.binMetamethod(left, right, event); handler != nil {
		res, err := i.callMetamethod(handler, left, right)
		if err != nil {
			return nil, err
		}
		return object.NativeBoolToBooleanObject(object.Truthy(res)), nil
	}
	return nil, i.NewError(object.TypeError,
		"attempt to compare %s with %s", object.TypeName(left), object.TypeName(right))
}

// bitwiseOperand admits only numbers with an exact integer value; unlike
// the arithmetic operators, bitwise operators never coerce strings.
func bitwiseOperand(o object.Object) (int64, bool) {
	switch o.(type) {
	case *object.Integer, *object.Float:
		return object.ToInteger(o)
	}
	return 0, false
}

func (i *Interp) evalBitwise(operator string, left, right object.Object) (object.Object, *object.RuntimeError) {
	lv, lok := bitwiseOperand(left)
	rv, rok := bitwiseOperand(right)
	if lok && rok {
		switch operator {
		case "&":
			return &object.Integer{Value: lv & rv}, nil
		case "|":
			return &object.Integer{Value: lv | rv}, nil
		case "~":
			return &object.Integer{Value: lv ^ rv}, nil
		case "<<":
			return &object.Integer{Value: shiftLeft(lv, rv)}, nil
		case ">>":
			return &object.Integer{Value: shiftLeft(lv, -rv)}, nil
		}
	}
	if handler := i.binMetamethod(left, right, bitwiseEvent(operator)); handler != nil {
		return i.callMetamethod(handler, left, right)
	}
	bad := left
	if lok {
		bad = right
	}
	if isNumber(bad) {
		return nil, i.NewError(object.TypeError, "number has no integer representation")
	}
	return nil, i.operandError("perform bitwise operation on", bad)
}

// shiftLeft implements the logical 64-bit shifts: negative counts shift
// the other way, counts past the width produce zero.
func shiftLeft(v, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(v) << uint(n))
	}
	return int64(uint64(v) >> uint(-n))
}

func isNumber(v object.Object) bool {
	t := v.Type()
	return t == object.INTEGER_OBJ || t == object.FLOAT_OBJ
}

// operandError builds the canonical "attempt to <verb> a <type> value"
// error; table operands report the missing metamethod instead.
func (i *Interp) operandError(verb string, operand object.Object) *object.RuntimeError {
	kind := object.TypeError
	if operand.Type() == object.TABLE_OBJ {
		kind = object.NoSuchMetamethod
	}
	return i.NewError(kind, "attempt to %s a %s value", verb, object.TypeName(operand))
}
