package hammer

import (
	"fmt"
	"strings"
)

// NodeID is the stable identity of an AST node.  IDs are assigned
// sequentially once a parse finishes; the zero id is invalid.
type NodeID uint32

func (id NodeID) Valid() bool { return id != 0 }

// AstNode is the interface implemented by every node of the syntax
// tree produced by the parser.
type AstNode interface {
	ID() NodeID
	Span() Span

	// HasError reports whether the parser recovered from a syntax
	// error inside this node.  Later passes skip over such nodes
	// instead of reporting follow-up errors.
	HasError() bool

	// String returns a compact source-like rendering of the node.
	String() string

	setID(NodeID)
	markError()
}

type astBase struct {
	id       NodeID
	span     Span
	hasError bool
}

func (b *astBase) ID() NodeID      { return b.id }
func (b *astBase) Span() Span      { return b.span }
func (b *astBase) HasError() bool  { return b.hasError }
func (b *astBase) setID(id NodeID) { b.id = id }
func (b *astBase) markError()      { b.hasError = true }

// Expr is the family of expression nodes.
type Expr interface {
	AstNode
	exprNode()
}

// Stmt is the family of statement nodes.
type Stmt interface {
	AstNode
	stmtNode()
}

// Decl is the family of declaration nodes.
type Decl interface {
	AstNode
	declNode()
}

// Binding is the family of variable binding forms.
type Binding interface {
	AstNode
	bindingNode()

	// BoundNames returns the names introduced by the binding in
	// declaration order.
	BoundNames() []string

	// InitExpr returns the initializer, possibly nil.
	InitExpr() Expr

	// Const reports whether the binding declares constants.
	Const() bool
}

// ---- File ----

// File is the root node of one parsed source file.
type File struct {
	astBase
	Items []AstNode
}

func NewFile(items []AstNode, span Span) *File {
	n := &File{Items: items}
	n.span = span
	return n
}

func (n *File) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.String()
	}
	return strings.Join(parts, " ")
}

// ---- Declarations ----

type ImportDecl struct {
	astBase
	Path []string // dotted module path; the last segment is the bound name
}

func NewImportDecl(path []string, span Span) *ImportDecl {
	n := &ImportDecl{Path: path}
	n.span = span
	return n
}

func (n *ImportDecl) declNode() {}
func (n *ImportDecl) String() string {
	return "import " + strings.Join(n.Path, ".") + ";"
}

// LocalName returns the name the import binds in file scope.
func (n *ImportDecl) LocalName() string { return n.Path[len(n.Path)-1] }

// ModuleName returns the full dotted name of the imported module.
func (n *ImportDecl) ModuleName() string { return strings.Join(n.Path, ".") }

type FuncDecl struct {
	astBase
	Name     string // empty for function literals
	Exported bool
	Params   []*ParamDecl

	// Body is either a BlockExpr (`func f() { ... }`) or, when
	// IsExprBody is set, an arbitrary expression (`func f() = e`).
	Body       Expr
	IsExprBody bool
}

func NewFuncDecl(name string, params []*ParamDecl, body Expr, isExprBody bool, span Span) *FuncDecl {
	n := &FuncDecl{Name: name, Params: params, Body: body, IsExprBody: isExprBody}
	n.span = span
	return n
}

func (n *FuncDecl) declNode() {}
func (n *FuncDecl) String() string {
	params := make([]string, len(n.Params))
	for i, p := range n.Params {
		params[i] = p.Name
	}
	name := n.Name
	if name != "" {
		name = " " + name
	}
	if n.IsExprBody {
		return fmt.Sprintf("func%s(%s) = %s", name, strings.Join(params, ", "), n.Body)
	}
	return fmt.Sprintf("func%s(%s) %s", name, strings.Join(params, ", "), n.Body)
}

type ParamDecl struct {
	astBase
	Name string
}

func NewParamDecl(name string, span Span) *ParamDecl {
	n := &ParamDecl{Name: name}
	n.span = span
	return n
}

func (n *ParamDecl) declNode()      {}
func (n *ParamDecl) String() string { return n.Name }

// VarDecl declares one binding at file scope or inside a DeclStmt.
type VarDecl struct {
	astBase
	Exported bool
	Binding  Binding
}

func NewVarDecl(binding Binding, span Span) *VarDecl {
	n := &VarDecl{Binding: binding}
	n.span = span
	return n
}

func (n *VarDecl) declNode()      {}
func (n *VarDecl) String() string { return n.Binding.String() + ";" }

// ---- Bindings ----

type VarBinding struct {
	astBase
	Name    string
	IsConst bool
	Init    Expr // may be nil for plain `var x;`
}

func NewVarBinding(name string, isConst bool, init Expr, span Span) *VarBinding {
	n := &VarBinding{Name: name, IsConst: isConst, Init: init}
	n.span = span
	return n
}

func (n *VarBinding) bindingNode()        {}
func (n *VarBinding) BoundNames() []string { return []string{n.Name} }
func (n *VarBinding) InitExpr() Expr       { return n.Init }
func (n *VarBinding) Const() bool          { return n.IsConst }
func (n *VarBinding) String() string {
	kw := "var"
	if n.IsConst {
		kw = "const"
	}
	if n.Init == nil {
		return fmt.Sprintf("%s %s", kw, n.Name)
	}
	return fmt.Sprintf("%s %s = %s", kw, n.Name, n.Init)
}

type TupleBinding struct {
	astBase
	Names   []string
	IsConst bool
	Init    Expr
}

func NewTupleBinding(names []string, isConst bool, init Expr, span Span) *TupleBinding {
	n := &TupleBinding{Names: names, IsConst: isConst, Init: init}
	n.span = span
	return n
}

func (n *TupleBinding) bindingNode()        {}
func (n *TupleBinding) BoundNames() []string { return n.Names }
func (n *TupleBinding) InitExpr() Expr       { return n.Init }
func (n *TupleBinding) Const() bool          { return n.IsConst }
func (n *TupleBinding) String() string {
	kw := "var"
	if n.IsConst {
		kw = "const"
	}
	return fmt.Sprintf("%s (%s) = %s", kw, strings.Join(n.Names, ", "), n.Init)
}

// ---- Literal expressions ----

type NullLit struct{ astBase }

func NewNullLit(span Span) *NullLit {
	n := &NullLit{}
	n.span = span
	return n
}

func (n *NullLit) exprNode()      {}
func (n *NullLit) String() string { return "null" }

type BoolLit struct {
	astBase
	Value bool
}

func NewBoolLit(value bool, span Span) *BoolLit {
	n := &BoolLit{Value: value}
	n.span = span
	return n
}

func (n *BoolLit) exprNode() {}
func (n *BoolLit) String() string {
	if n.Value {
		return "true"
	}
	return "false"
}

type IntLit struct {
	astBase
	Value int64
}

func NewIntLit(value int64, span Span) *IntLit {
	n := &IntLit{Value: value}
	n.span = span
	return n
}

func (n *IntLit) exprNode()      {}
func (n *IntLit) String() string { return fmt.Sprintf("%d", n.Value) }

type FloatLit struct {
	astBase
	Value float64
}

func NewFloatLit(value float64, span Span) *FloatLit {
	n := &FloatLit{Value: value}
	n.span = span
	return n
}

func (n *FloatLit) exprNode()      {}
func (n *FloatLit) String() string { return fmt.Sprintf("%g", n.Value) }

type SymbolLit struct {
	astBase
	Name string
}

func NewSymbolLit(name string, span Span) *SymbolLit {
	n := &SymbolLit{Name: name}
	n.span = span
	return n
}

func (n *SymbolLit) exprNode()      {}
func (n *SymbolLit) String() string { return "#" + n.Name }

type StringLit struct {
	astBase
	Value string
}

func NewStringLit(value string, span Span) *StringLit {
	n := &StringLit{Value: value}
	n.span = span
	return n
}

func (n *StringLit) exprNode()      {}
func (n *StringLit) String() string { return fmt.Sprintf("%q", n.Value) }

// StringExpr is an interpolated string literal.  Items alternate
// between StringLit segments and interpolated expressions.
type StringExpr struct {
	astBase
	Items []Expr
}

func NewStringExpr(items []Expr, span Span) *StringExpr {
	n := &StringExpr{Items: items}
	n.span = span
	return n
}

func (n *StringExpr) exprNode() {}
func (n *StringExpr) String() string {
	var s strings.Builder
	s.WriteString(`"`)
	for _, item := range n.Items {
		if lit, ok := item.(*StringLit); ok {
			s.WriteString(lit.Value)
			continue
		}
		s.WriteString("${")
		s.WriteString(item.String())
		s.WriteString("}")
	}
	s.WriteString(`"`)
	return s.String()
}

// ---- Operator expressions ----

type BinaryOpKind int

const (
	BinaryOp_Add BinaryOpKind = iota
	BinaryOp_Sub
	BinaryOp_Mul
	BinaryOp_Div
	BinaryOp_Mod
	BinaryOp_Pow
	BinaryOp_Eq
	BinaryOp_NotEq
	BinaryOp_Lt
	BinaryOp_LtEq
	BinaryOp_Gt
	BinaryOp_GtEq
	BinaryOp_LogicAnd
	BinaryOp_LogicOr
)

var binaryOpNames = map[BinaryOpKind]string{
	BinaryOp_Add:      "+",
	BinaryOp_Sub:      "-",
	BinaryOp_Mul:      "*",
	BinaryOp_Div:      "/",
	BinaryOp_Mod:      "%",
	BinaryOp_Pow:      "**",
	BinaryOp_Eq:       "==",
	BinaryOp_NotEq:    "!=",
	BinaryOp_Lt:       "<",
	BinaryOp_LtEq:     "<=",
	BinaryOp_Gt:       ">",
	BinaryOp_GtEq:     ">=",
	BinaryOp_LogicAnd: "&&",
	BinaryOp_LogicOr:  "||",
}

func (k BinaryOpKind) String() string { return binaryOpNames[k] }

type BinaryExpr struct {
	astBase
	Op    BinaryOpKind
	Left  Expr
	Right Expr
}

func NewBinaryExpr(op BinaryOpKind, left, right Expr, span Span) *BinaryExpr {
	n := &BinaryExpr{Op: op, Left: left, Right: right}
	n.span = span
	return n
}

func (n *BinaryExpr) exprNode() {}
func (n *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

type UnaryOpKind int

const (
	UnaryOp_Plus UnaryOpKind = iota
	UnaryOp_Minus
	UnaryOp_Not
)

var unaryOpNames = map[UnaryOpKind]string{
	UnaryOp_Plus:  "+",
	UnaryOp_Minus: "-",
	UnaryOp_Not:   "!",
}

func (k UnaryOpKind) String() string { return unaryOpNames[k] }

type UnaryExpr struct {
	astBase
	Op      UnaryOpKind
	Operand Expr
}

func NewUnaryExpr(op UnaryOpKind, operand Expr, span Span) *UnaryExpr {
	n := &UnaryExpr{Op: op, Operand: operand}
	n.span = span
	return n
}

func (n *UnaryExpr) exprNode()      {}
func (n *UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", n.Op, n.Operand) }

type AssignOpKind int

const (
	AssignOp_Assign AssignOpKind = iota
	AssignOp_Add
	AssignOp_Sub
	AssignOp_Mul
	AssignOp_Div
	AssignOp_Mod
)

var assignOpNames = map[AssignOpKind]string{
	AssignOp_Assign: "=",
	AssignOp_Add:    "+=",
	AssignOp_Sub:    "-=",
	AssignOp_Mul:    "*=",
	AssignOp_Div:    "/=",
	AssignOp_Mod:    "%=",
}

func (k AssignOpKind) String() string { return assignOpNames[k] }

// BinaryOp returns the arithmetic operation applied by a compound
// assignment.  Must not be called for the plain `=` form.
func (k AssignOpKind) BinaryOp() BinaryOpKind {
	switch k {
	case AssignOp_Add:
		return BinaryOp_Add
	case AssignOp_Sub:
		return BinaryOp_Sub
	case AssignOp_Mul:
		return BinaryOp_Mul
	case AssignOp_Div:
		return BinaryOp_Div
	case AssignOp_Mod:
		return BinaryOp_Mod
	}
	panic("plain assignment has no binary operation")
}

type AssignExpr struct {
	astBase
	Op     AssignOpKind
	Target Expr
	Value  Expr
}

func NewAssignExpr(op AssignOpKind, target, value Expr, span Span) *AssignExpr {
	n := &AssignExpr{Op: op, Target: target, Value: value}
	n.span = span
	return n
}

func (n *AssignExpr) exprNode() {}
func (n *AssignExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Target, n.Op, n.Value)
}

// ---- Access and call expressions ----

type VarExpr struct {
	astBase
	Name string
}

func NewVarExpr(name string, span Span) *VarExpr {
	n := &VarExpr{Name: name}
	n.span = span
	return n
}

func (n *VarExpr) exprNode()      {}
func (n *VarExpr) String() string { return n.Name }

type FieldExpr struct {
	astBase
	Object Expr
	Name   string
}

func NewFieldExpr(object Expr, name string, span Span) *FieldExpr {
	n := &FieldExpr{Object: object, Name: name}
	n.span = span
	return n
}

func (n *FieldExpr) exprNode()      {}
func (n *FieldExpr) String() string { return fmt.Sprintf("%s.%s", n.Object, n.Name) }

type TupleFieldExpr struct {
	astBase
	Object Expr
	Index  int
}

func NewTupleFieldExpr(object Expr, index int, span Span) *TupleFieldExpr {
	n := &TupleFieldExpr{Object: object, Index: index}
	n.span = span
	return n
}

func (n *TupleFieldExpr) exprNode()      {}
func (n *TupleFieldExpr) String() string { return fmt.Sprintf("%s.%d", n.Object, n.Index) }

type IndexExpr struct {
	astBase
	Object Expr
	Index  Expr
}

func NewIndexExpr(object, index Expr, span Span) *IndexExpr {
	n := &IndexExpr{Object: object, Index: index}
	n.span = span
	return n
}

func (n *IndexExpr) exprNode()      {}
func (n *IndexExpr) String() string { return fmt.Sprintf("%s[%s]", n.Object, n.Index) }

type CallExpr struct {
	astBase
	Func Expr
	Args []Expr
}

func NewCallExpr(fn Expr, args []Expr, span Span) *CallExpr {
	n := &CallExpr{Func: fn, Args: args}
	n.span = span
	return n
}

func (n *CallExpr) exprNode() {}
func (n *CallExpr) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Func, strings.Join(args, ", "))
}

// ---- Control flow expressions ----

type BlockExpr struct {
	astBase
	Stmts []Stmt
}

func NewBlockExpr(stmts []Stmt, span Span) *BlockExpr {
	n := &BlockExpr{Stmts: stmts}
	n.span = span
	return n
}

func (n *BlockExpr) exprNode() {}
func (n *BlockExpr) String() string {
	parts := make([]string, len(n.Stmts))
	for i, s := range n.Stmts {
		parts[i] = s.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

type IfExpr struct {
	astBase
	Cond Expr
	Then *BlockExpr
	Else Expr // nil, *BlockExpr, or *IfExpr for `else if`
}

func NewIfExpr(cond Expr, then *BlockExpr, els Expr, span Span) *IfExpr {
	n := &IfExpr{Cond: cond, Then: then, Else: els}
	n.span = span
	return n
}

func (n *IfExpr) exprNode() {}
func (n *IfExpr) String() string {
	if n.Else == nil {
		return fmt.Sprintf("if (%s) %s", n.Cond, n.Then)
	}
	return fmt.Sprintf("if (%s) %s else %s", n.Cond, n.Then, n.Else)
}

type ReturnExpr struct {
	astBase
	Value Expr // may be nil
}

func NewReturnExpr(value Expr, span Span) *ReturnExpr {
	n := &ReturnExpr{Value: value}
	n.span = span
	return n
}

func (n *ReturnExpr) exprNode() {}
func (n *ReturnExpr) String() string {
	if n.Value == nil {
		return "return"
	}
	return fmt.Sprintf("return %s", n.Value)
}

type BreakExpr struct{ astBase }

func NewBreakExpr(span Span) *BreakExpr {
	n := &BreakExpr{}
	n.span = span
	return n
}

func (n *BreakExpr) exprNode()      {}
func (n *BreakExpr) String() string { return "break" }

type ContinueExpr struct{ astBase }

func NewContinueExpr(span Span) *ContinueExpr {
	n := &ContinueExpr{}
	n.span = span
	return n
}

func (n *ContinueExpr) exprNode()      {}
func (n *ContinueExpr) String() string { return "continue" }

type FuncLiteralExpr struct {
	astBase
	Decl *FuncDecl
}

func NewFuncLiteralExpr(decl *FuncDecl, span Span) *FuncLiteralExpr {
	n := &FuncLiteralExpr{Decl: decl}
	n.span = span
	return n
}

func (n *FuncLiteralExpr) exprNode()      {}
func (n *FuncLiteralExpr) String() string { return n.Decl.String() }

// ---- Container literals ----

type TupleLit struct {
	astBase
	Items []Expr
}

func NewTupleLit(items []Expr, span Span) *TupleLit {
	n := &TupleLit{Items: items}
	n.span = span
	return n
}

func (n *TupleLit) exprNode() {}
func (n *TupleLit) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.String()
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

type ArrayLit struct {
	astBase
	Items []Expr
}

func NewArrayLit(items []Expr, span Span) *ArrayLit {
	n := &ArrayLit{Items: items}
	n.span = span
	return n
}

func (n *ArrayLit) exprNode() {}
func (n *ArrayLit) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type MapLit struct {
	astBase
	Keys   []Expr
	Values []Expr
}

func NewMapLit(keys, values []Expr, span Span) *MapLit {
	n := &MapLit{Keys: keys, Values: values}
	n.span = span
	return n
}

func (n *MapLit) exprNode() {}
func (n *MapLit) String() string {
	parts := make([]string, len(n.Keys))
	for i := range n.Keys {
		parts[i] = fmt.Sprintf("%s: %s", n.Keys[i], n.Values[i])
	}
	return "map{" + strings.Join(parts, ", ") + "}"
}

type SetLit struct {
	astBase
	Items []Expr
}

func NewSetLit(items []Expr, span Span) *SetLit {
	n := &SetLit{Items: items}
	n.span = span
	return n
}

func (n *SetLit) exprNode() {}
func (n *SetLit) String() string {
	parts := make([]string, len(n.Items))
	for i, item := range n.Items {
		parts[i] = item.String()
	}
	return "set{" + strings.Join(parts, ", ") + "}"
}

type RecordLit struct {
	astBase
	Names  []string
	Values []Expr
}

func NewRecordLit(names []string, values []Expr, span Span) *RecordLit {
	n := &RecordLit{Names: names, Values: values}
	n.span = span
	return n
}

func (n *RecordLit) exprNode() {}
func (n *RecordLit) String() string {
	parts := make([]string, len(n.Names))
	for i := range n.Names {
		parts[i] = fmt.Sprintf("%s: %s", n.Names[i], n.Values[i])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ---- Statements ----

type AssertStmt struct {
	astBase
	Cond    Expr
	Message Expr // may be nil

	// CondText preserves the source text of the condition for the
	// runtime assertion error.
	CondText string
}

func NewAssertStmt(cond, message Expr, condText string, span Span) *AssertStmt {
	n := &AssertStmt{Cond: cond, Message: message, CondText: condText}
	n.span = span
	return n
}

func (n *AssertStmt) stmtNode() {}
func (n *AssertStmt) String() string {
	if n.Message == nil {
		return fmt.Sprintf("assert(%s);", n.Cond)
	}
	return fmt.Sprintf("assert(%s, %s);", n.Cond, n.Message)
}

type DeclStmt struct {
	astBase
	Decl *VarDecl
}

func NewDeclStmt(decl *VarDecl, span Span) *DeclStmt {
	n := &DeclStmt{Decl: decl}
	n.span = span
	return n
}

func (n *DeclStmt) stmtNode()      {}
func (n *DeclStmt) String() string { return n.Decl.String() }

type ExprStmt struct {
	astBase
	Expr Expr
}

func NewExprStmt(expr Expr, span Span) *ExprStmt {
	n := &ExprStmt{Expr: expr}
	n.span = span
	return n
}

func (n *ExprStmt) stmtNode()      {}
func (n *ExprStmt) String() string { return n.Expr.String() + ";" }

type WhileStmt struct {
	astBase
	Cond Expr
	Body *BlockExpr
}

func NewWhileStmt(cond Expr, body *BlockExpr, span Span) *WhileStmt {
	n := &WhileStmt{Cond: cond, Body: body}
	n.span = span
	return n
}

func (n *WhileStmt) stmtNode()      {}
func (n *WhileStmt) String() string { return fmt.Sprintf("while (%s) %s", n.Cond, n.Body) }

type ForStmt struct {
	astBase
	Init Stmt // nil or *DeclStmt
	Cond Expr // may be nil
	Step Expr // may be nil
	Body *BlockExpr
}

func NewForStmt(init Stmt, cond, step Expr, body *BlockExpr, span Span) *ForStmt {
	n := &ForStmt{Init: init, Cond: cond, Step: step, Body: body}
	n.span = span
	return n
}

func (n *ForStmt) stmtNode() {}
func (n *ForStmt) String() string {
	init, cond, step := "", "", ""
	if n.Init != nil {
		init = strings.TrimSuffix(n.Init.String(), ";")
	}
	if n.Cond != nil {
		cond = n.Cond.String()
	}
	if n.Step != nil {
		step = n.Step.String()
	}
	return fmt.Sprintf("for (%s; %s; %s) %s", init, cond, step, n.Body)
}

type ForEachStmt struct {
	astBase
	Binding  Binding // initializer-less binding for the loop variable(s)
	Iterable Expr
	Body     *BlockExpr
}

func NewForEachStmt(binding Binding, iterable Expr, body *BlockExpr, span Span) *ForEachStmt {
	n := &ForEachStmt{Binding: binding, Iterable: iterable, Body: body}
	n.span = span
	return n
}

func (n *ForEachStmt) stmtNode() {}
func (n *ForEachStmt) String() string {
	names := n.Binding.BoundNames()
	return fmt.Sprintf("for %s in %s %s", strings.Join(names, ", "), n.Iterable, n.Body)
}

type EmptyStmt struct{ astBase }

func NewEmptyStmt(span Span) *EmptyStmt {
	n := &EmptyStmt{}
	n.span = span
	return n
}

func (n *EmptyStmt) stmtNode()      {}
func (n *EmptyStmt) String() string { return ";" }
