// Package ast defines the program tree the runtime evaluates. The tree is
// produced by an external parser front end; everything here is plain data
// that can also be assembled by hand.
package ast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// The base Node interface
type Node interface {
	String() string
}

type Statement interface {
	Node
	statementNode()
}

type Expression interface {
	Node
	expressionNode()
}

// Attrib is a local-declaration attribute.
type Attrib string

const (
	AttribNone  Attrib = ""
	AttribConst Attrib = "const"
	AttribClose Attrib = "close"
)

type Program struct {
	Statements []Statement
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
		out.WriteString("\n")
	}
	return out.String()
}

type Block struct {
	Statements []Statement
}

func (b *Block) statementNode() {}
func (b *Block) String() string {
	var out bytes.Buffer
	for _, s := range b.Statements {
		out.WriteString(s.String())
		out.WriteString("; ")
	}
	return out.String()
}

// LocalStatement declares fresh bindings in the current scope:
// local a <const>, b = 1, 2
type LocalStatement struct {
	Names   []*Ident
	Attribs []Attrib // parallel to Names; may be shorter
	Values  []Expression
}

func (ls *LocalStatement) statementNode() {}
func (ls *LocalStatement) String() string {
	var out bytes.Buffer
	out.WriteString("local ")
	for i, n := range ls.Names {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(n.String())
		if i < len(ls.Attribs) && ls.Attribs[i] != AttribNone {
			out.WriteString(" <" + string(ls.Attribs[i]) + ">")
		}
	}
	if len(ls.Values) > 0 {
		out.WriteString(" = ")
		out.WriteString(exprList(ls.Values))
	}
	return out.String()
}

// AssignStatement assigns to identifiers and/or index targets:
// a, t[k] = 1, 2
type AssignStatement struct {
	Targets []Expression
	Values  []Expression
}

func (as *AssignStatement) statementNode() {}
func (as *AssignStatement) String() string {
	return exprList(as.Targets) + " = " + exprList(as.Values)
}

type ExpressionStatement struct {
	Expression Expression
}

func (es *ExpressionStatement) statementNode() {}
func (es *ExpressionStatement) String() string { return es.Expression.String() }

type IfStatement struct {
	Condition Expression
	Then      *Block
	Else      *Block // nil when absent; elseif chains nest here
}

func (is *IfStatement) statementNode() {}
func (is *IfStatement) String() string {
	var out bytes.Buffer
	out.WriteString("if " + is.Condition.String() + " then " + is.Then.String())
	if is.Else != nil {
		out.WriteString("else " + is.Else.String())
	}
	out.WriteString("end")
	return out.String()
}

type WhileStatement struct {
	Condition Expression
	Body      *Block
}

func (ws *WhileStatement) statementNode() {}
func (ws *WhileStatement) String() string {
	return "while " + ws.Condition.String() + " do " + ws.Body.String() + "end"
}

// RepeatStatement: the until condition is evaluated in the body's scope.
type RepeatStatement struct {
	Body      *Block
	Condition Expression
}

func (rs *RepeatStatement) statementNode() {}
func (rs *RepeatStatement) String() string {
	return "repeat " + rs.Body.String() + "until " + rs.Condition.String()
}

type NumericForStatement struct {
	Name  *Ident
	Start Expression
	Stop  Expression
	Step  Expression // nil defaults to 1
	Body  *Block
}

func (nf *NumericForStatement) statementNode() {}
func (nf *NumericForStatement) String() string {
	var out bytes.Buffer
	out.WriteString("for " + nf.Name.String() + " = " + nf.Start.String() + ", " + nf.Stop.String())
	if nf.Step != nil {
		out.WriteString(", " + nf.Step.String())
	}
	out.WriteString(" do " + nf.Body.String() + "end")
	return out.String()
}

type GenericForStatement struct {
	Names []*Ident
	Exprs []Expression
	Body  *Block
}

func (gf *GenericForStatement) statementNode() {}
func (gf *GenericForStatement) String() string {
	names := []string{}
	for _, n := range gf.Names {
		names = append(names, n.String())
	}
	return "for " + strings.Join(names, ", ") + " in " + exprList(gf.Exprs) +
		" do " + gf.Body.String() + "end"
}

type DoStatement struct {
	Body *Block
}

func (ds *DoStatement) statementNode() {}
func (ds *DoStatement) String() string { return "do " + ds.Body.String() + "end" }

type ReturnStatement struct {
	Values []Expression
}

func (rs *ReturnStatement) statementNode() {}
func (rs *ReturnStatement) String() string {
	if len(rs.Values) == 0 {
		return "return"
	}
	return "return " + exprList(rs.Values)
}

type BreakStatement struct{}

func (bs *BreakStatement) statementNode() {}
func (bs *BreakStatement) String() string { return "break" }

type GotoStatement struct {
	Label string
}

func (gs *GotoStatement) statementNode() {}
func (gs *GotoStatement) String() string { return "goto " + gs.Label }

type LabelStatement struct {
	Name string
}

func (ls *LabelStatement) statementNode() {}
func (ls *LabelStatement) String() string { return "::" + ls.Name + "::" }

// Expressions

type NilLiteral struct{}

func (nl *NilLiteral) expressionNode() {}
func (nl *NilLiteral) String() string  { return "nil" }

type BooleanLiteral struct {
	Value bool
}

func (bl *BooleanLiteral) expressionNode() {}
func (bl *BooleanLiteral) String() string  { return strconv.FormatBool(bl.Value) }

type IntegerLiteral struct {
	Value int64
}

func (il *IntegerLiteral) expressionNode() {}
func (il *IntegerLiteral) String() string  { return strconv.FormatInt(il.Value, 10) }

type FloatLiteral struct {
	Value float64
}

func (fl *FloatLiteral) expressionNode() {}
func (fl *FloatLiteral) String() string  { return strconv.FormatFloat(fl.Value, 'g', -1, 64) }

type StringLiteral struct {
	Value string
}

func (sl *StringLiteral) expressionNode() {}
func (sl *StringLiteral) String() string  { return fmt.Sprintf("%q", sl.Value) }

// VarargLiteral is the `...` expression inside a variadic function.
type VarargLiteral struct{}

func (vl *VarargLiteral) expressionNode() {}
func (vl *VarargLiteral) String() string  { return "..." }

// Ident references a variable. Checked marks position-tracked reads that
// raise instead of resolving an undeclared name to nil.
type Ident struct {
	Name    string
	Checked bool
	Line    int
}

func (id *Ident) expressionNode() {}
func (id *Ident) String() string  { return id.Name }

type PrefixExpression struct {
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode() {}
func (pe *PrefixExpression) String() string {
	return "(" + pe.Operator + pe.Right.String() + ")"
}

type InfixExpression struct {
	Operator string
	Left     Expression
	Right    Expression
}

func (ie *InfixExpression) expressionNode() {}
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

type IndexExpression struct {
	Object Expression
	Key    Expression
}

func (ix *IndexExpression) expressionNode() {}
func (ix *IndexExpression) String() string {
	return ix.Object.String() + "[" + ix.Key.String() + "]"
}

type CallExpression struct {
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode() {}
func (ce *CallExpression) String() string {
	return ce.Function.String() + "(" + exprList(ce.Arguments) + ")"
}

// MethodCallExpression is `recv:name(args)` sugar: recv is evaluated once
// and prepended to the arguments.
type MethodCallExpression struct {
	Receiver  Expression
	Method    string
	Arguments []Expression
}

func (mc *MethodCallExpression) expressionNode() {}
func (mc *MethodCallExpression) String() string {
	return mc.Receiver.String() + ":" + mc.Method + "(" + exprList(mc.Arguments) + ")"
}

type FunctionLiteral struct {
	Name       string // informational only
	Parameters []string
	IsVariadic bool
	Body       *Block
}

func (fl *FunctionLiteral) expressionNode() {}
func (fl *FunctionLiteral) String() string {
	params := strings.Join(fl.Parameters, ", ")
	if fl.IsVariadic {
		if params != "" {
			params += ", "
		}
		params += "..."
	}
	return "function(" + params + ") " + fl.Body.String() + "end"
}

// TableEntry with a nil Key is positional (appended to the array part).
type TableEntry struct {
	Key   Expression
	Value Expression
}

type TableLiteral struct {
	Entries []TableEntry
}

func (tl *TableLiteral) expressionNode() {}
func (tl *TableLiteral) String() string {
	var out bytes.Buffer
	out.WriteString("{")
	for i, e := range tl.Entries {
		if i > 0 {
			out.WriteString(", ")
		}
		if e.Key != nil {
			out.WriteString("[" + e.Key.String() + "] = ")
		}
		out.WriteString(e.Value.String())
	}
	out.WriteString("}")
	return out.String()
}

// ParenExpression truncates a multi-value result to exactly one value.
type ParenExpression struct {
	Inner Expression
}

func (pe *ParenExpression) expressionNode() {}
func (pe *ParenExpression) String() string  { return "(" + pe.Inner.String() + ")" }

func exprList(exprs []Expression) string {
	parts := []string{}
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}
