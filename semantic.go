package hammer

// ValueCategory classifies what an expression produces: None (no
// value), Value (one value), or Never (control flow diverts and the
// expression never completes normally).
type ValueCategory int

const (
	Category_None ValueCategory = iota
	Category_Value
	Category_Never
)

func (c ValueCategory) String() string {
	switch c {
	case Category_None:
		return "none"
	case Category_Value:
		return "value"
	case Category_Never:
		return "never"
	}
	return "unknown"
}

// SemanticInfo is the result of semantic analysis, consumed by the IR
// generator.
type SemanticInfo struct {
	Symbols *SymbolTable

	// Categories holds the value category of every expression.
	Categories map[NodeID]ValueCategory
}

func (si *SemanticInfo) CategoryOf(expr Expr) ValueCategory {
	return si.Categories[expr.ID()]
}

// semanticChecker verifies structural rules the parser cannot: const
// initialization, loop-only break/continue, function-only return,
// assignability of assignment targets, and the value categories of
// expressions.
type semanticChecker struct {
	table *SymbolTable
	diags *Diagnostics
	info  *SemanticInfo

	loopDepth int
	funcDepth int
}

// CheckSemantics runs the semantic checks over a file.
func CheckSemantics(file *File, table *SymbolTable, diags *Diagnostics) *SemanticInfo {
	c := &semanticChecker{
		table: table,
		diags: diags,
		info: &SemanticInfo{
			Symbols:    table,
			Categories: make(map[NodeID]ValueCategory),
		},
	}
	for _, item := range file.Items {
		c.checkItem(item)
	}
	return c.info
}

func (c *semanticChecker) checkItem(item AstNode) {
	switch n := item.(type) {
	case *ImportDecl:
	case *FuncDecl:
		c.checkFunc(n)
	case *VarDecl:
		c.checkVarDecl(n)
	default:
		c.diags.Error(item.Span(), "only declarations and imports are allowed at file scope")
	}
}

func (c *semanticChecker) checkFunc(decl *FuncDecl) {
	outerLoop := c.loopDepth
	c.loopDepth = 0
	c.funcDepth++

	kind := c.checkExpr(decl.Body, decl.IsExprBody)
	if decl.IsExprBody && kind == Category_None {
		c.diags.Error(decl.Body.Span(), "function body expression produces no value")
	}

	c.funcDepth--
	c.loopDepth = outerLoop
}

func (c *semanticChecker) checkVarDecl(decl *VarDecl) {
	binding := decl.Binding
	init := binding.InitExpr()
	if init == nil {
		if binding.Const() {
			c.diags.Error(binding.Span(), "constants must be initialized at their binding")
		}
		if _, isTuple := binding.(*TupleBinding); isTuple {
			c.diags.Error(binding.Span(), "tuple bindings must be initialized")
		}
		return
	}
	c.requireValue(init)
}

func (c *semanticChecker) checkStmt(stmt Stmt) ValueCategory {
	switch n := stmt.(type) {
	case *EmptyStmt:
		return Category_None

	case *DeclStmt:
		c.checkVarDecl(n.Decl)
		return Category_None

	case *AssertStmt:
		c.requireValue(n.Cond)
		if n.Message != nil {
			c.requireValue(n.Message)
		}
		return Category_None

	case *ExprStmt:
		return c.checkExpr(n.Expr, false)

	case *WhileStmt:
		c.requireValue(n.Cond)
		c.loopDepth++
		c.checkExpr(n.Body, false)
		c.loopDepth--
		return Category_None

	case *ForStmt:
		if n.Init != nil {
			c.checkStmt(n.Init)
		}
		if n.Cond != nil {
			c.requireValue(n.Cond)
		}
		if n.Step != nil {
			c.checkExpr(n.Step, false)
		}
		c.loopDepth++
		c.checkExpr(n.Body, false)
		c.loopDepth--
		return Category_None

	case *ForEachStmt:
		c.requireValue(n.Iterable)
		c.loopDepth++
		c.checkExpr(n.Body, false)
		c.loopDepth--
		return Category_None
	}
	return Category_None
}

// requireValue checks an expression in a position that needs a value.
// Never is accepted: the surrounding code simply never runs.
func (c *semanticChecker) requireValue(expr Expr) {
	if c.checkExpr(expr, true) == Category_None {
		c.diags.Error(expr.Span(), "expression produces no value")
	}
}

func (c *semanticChecker) checkExpr(expr Expr, valueRequired bool) ValueCategory {
	kind := c.exprCategory(expr, valueRequired)
	c.info.Categories[expr.ID()] = kind
	return kind
}

func (c *semanticChecker) exprCategory(expr Expr, valueRequired bool) ValueCategory {
	switch n := expr.(type) {
	case *NullLit, *BoolLit, *IntLit, *FloatLit, *SymbolLit, *StringLit:
		return Category_Value

	case *VarExpr:
		return Category_Value

	case *StringExpr:
		for _, item := range n.Items {
			c.requireValue(item)
		}
		return Category_Value

	case *BinaryExpr:
		c.requireValue(n.Left)
		c.requireValue(n.Right)
		return Category_Value

	case *UnaryExpr:
		c.requireValue(n.Operand)
		return Category_Value

	case *AssignExpr:
		c.checkAssignTarget(n)
		c.requireValue(n.Value)
		return Category_Value

	case *FieldExpr:
		c.requireValue(n.Object)
		return Category_Value

	case *TupleFieldExpr:
		c.requireValue(n.Object)
		return Category_Value

	case *IndexExpr:
		c.requireValue(n.Object)
		c.requireValue(n.Index)
		return Category_Value

	case *CallExpr:
		c.requireValue(n.Func)
		for _, a := range n.Args {
			c.requireValue(a)
		}
		return Category_Value

	case *FuncLiteralExpr:
		c.checkFunc(n.Decl)
		return Category_Value

	case *BlockExpr:
		return c.blockCategory(n, valueRequired)

	case *IfExpr:
		c.requireValue(n.Cond)
		thenKind := c.checkExpr(n.Then, valueRequired && n.Else != nil)
		if n.Else == nil {
			return Category_None
		}
		elseKind := c.checkExpr(n.Else, valueRequired)
		return mergeCategories(thenKind, elseKind)

	case *ReturnExpr:
		if c.funcDepth == 0 {
			c.diags.Error(n.Span(), "'return' outside of a function")
		}
		if n.Value != nil {
			c.requireValue(n.Value)
		}
		return Category_Never

	case *BreakExpr:
		if c.loopDepth == 0 {
			c.diags.Error(n.Span(), "'break' outside of a loop")
		}
		return Category_Never

	case *ContinueExpr:
		if c.loopDepth == 0 {
			c.diags.Error(n.Span(), "'continue' outside of a loop")
		}
		return Category_Never

	case *TupleLit:
		for _, item := range n.Items {
			c.requireValue(item)
		}
		return Category_Value

	case *ArrayLit:
		for _, item := range n.Items {
			c.requireValue(item)
		}
		return Category_Value

	case *MapLit:
		for i := range n.Keys {
			c.requireValue(n.Keys[i])
			c.requireValue(n.Values[i])
		}
		return Category_Value

	case *SetLit:
		for _, item := range n.Items {
			c.requireValue(item)
		}
		return Category_Value

	case *RecordLit:
		for _, v := range n.Values {
			c.requireValue(v)
		}
		return Category_Value
	}
	return Category_Value
}

func (c *semanticChecker) blockCategory(block *BlockExpr, valueRequired bool) ValueCategory {
	kind := Category_None
	for i, stmt := range block.Stmts {
		last := i == len(block.Stmts)-1
		var stmtKind ValueCategory
		if es, ok := stmt.(*ExprStmt); ok {
			stmtKind = c.checkExpr(es.Expr, valueRequired && last)
			c.info.Categories[es.ID()] = stmtKind
		} else {
			stmtKind = c.checkStmt(stmt)
		}
		if last {
			kind = stmtKind
		}
	}
	return kind
}

// checkAssignTarget validates the left-hand side of an assignment: a
// place expression (variable, field, tuple field, index) or, for plain
// `=`, a tuple literal of places.
func (c *semanticChecker) checkAssignTarget(assign *AssignExpr) {
	target := assign.Target

	if tuple, ok := target.(*TupleLit); ok {
		if assign.Op != AssignOp_Assign {
			c.diags.Error(target.Span(), "compound assignment cannot target a tuple")
			return
		}
		for _, item := range tuple.Items {
			c.checkPlace(item)
		}
		c.info.Categories[target.ID()] = Category_Value
		return
	}
	c.checkPlace(target)
}

func (c *semanticChecker) checkPlace(expr Expr) {
	switch n := expr.(type) {
	case *VarExpr:
		c.info.Categories[n.ID()] = Category_Value
		sym := c.table.SymbolOfRef(n)
		if sym == nil {
			return
		}
		switch {
		case sym.Kind == Symbol_Function:
			c.diags.Error(n.Span(), "cannot assign to function '%s'", n.Name)
		case sym.Kind == Symbol_Import:
			c.diags.Error(n.Span(), "cannot assign to import '%s'", n.Name)
		case sym.IsConst:
			c.diags.Error(n.Span(), "cannot assign to constant '%s'", n.Name)
		}

	case *FieldExpr:
		c.requireValue(n.Object)
		c.info.Categories[n.ID()] = Category_Value

	case *TupleFieldExpr:
		c.requireValue(n.Object)
		c.info.Categories[n.ID()] = Category_Value

	case *IndexExpr:
		c.requireValue(n.Object)
		c.requireValue(n.Index)
		c.info.Categories[n.ID()] = Category_Value

	default:
		c.diags.Error(expr.Span(), "this expression cannot be assigned to")
	}
}

func mergeCategories(a, b ValueCategory) ValueCategory {
	if a == Category_Never {
		return b
	}
	if b == Category_Never {
		return a
	}
	if a == Category_Value && b == Category_Value {
		return Category_Value
	}
	return Category_None
}
