package hammer

import "fmt"

// WalkChildren calls fn on every direct child of node, in source
// order.  The switch below is the single place that encodes the child
// layout of every node variant; a node kind missing here is a bug.
func WalkChildren(node AstNode, fn func(AstNode) error) error {
	visit := func(n AstNode) error {
		if n == nil {
			return nil
		}
		return fn(n)
	}
	visitExpr := func(e Expr) error {
		if e == nil {
			return nil
		}
		return fn(e)
	}

	switch n := node.(type) {
	case *File:
		for _, item := range n.Items {
			if err := visit(item); err != nil {
				return err
			}
		}
	case *ImportDecl:
	case *FuncDecl:
		for _, p := range n.Params {
			if err := visit(p); err != nil {
				return err
			}
		}
		return visitExpr(n.Body)
	case *ParamDecl:
	case *VarDecl:
		return visit(n.Binding)
	case *VarBinding:
		return visitExpr(n.Init)
	case *TupleBinding:
		return visitExpr(n.Init)
	case *NullLit, *BoolLit, *IntLit, *FloatLit, *SymbolLit, *StringLit, *VarExpr:
	case *StringExpr:
		for _, item := range n.Items {
			if err := visitExpr(item); err != nil {
				return err
			}
		}
	case *BinaryExpr:
		if err := visitExpr(n.Left); err != nil {
			return err
		}
		return visitExpr(n.Right)
	case *UnaryExpr:
		return visitExpr(n.Operand)
	case *AssignExpr:
		if err := visitExpr(n.Target); err != nil {
			return err
		}
		return visitExpr(n.Value)
	case *FieldExpr:
		return visitExpr(n.Object)
	case *TupleFieldExpr:
		return visitExpr(n.Object)
	case *IndexExpr:
		if err := visitExpr(n.Object); err != nil {
			return err
		}
		return visitExpr(n.Index)
	case *CallExpr:
		if err := visitExpr(n.Func); err != nil {
			return err
		}
		for _, a := range n.Args {
			if err := visitExpr(a); err != nil {
				return err
			}
		}
	case *BlockExpr:
		for _, s := range n.Stmts {
			if err := visit(s); err != nil {
				return err
			}
		}
	case *IfExpr:
		if err := visitExpr(n.Cond); err != nil {
			return err
		}
		if err := visit(n.Then); err != nil {
			return err
		}
		return visitExpr(n.Else)
	case *ReturnExpr:
		return visitExpr(n.Value)
	case *BreakExpr, *ContinueExpr:
	case *FuncLiteralExpr:
		return visit(n.Decl)
	case *TupleLit:
		for _, item := range n.Items {
			if err := visitExpr(item); err != nil {
				return err
			}
		}
	case *ArrayLit:
		for _, item := range n.Items {
			if err := visitExpr(item); err != nil {
				return err
			}
		}
	case *MapLit:
		for i := range n.Keys {
			if err := visitExpr(n.Keys[i]); err != nil {
				return err
			}
			if err := visitExpr(n.Values[i]); err != nil {
				return err
			}
		}
	case *SetLit:
		for _, item := range n.Items {
			if err := visitExpr(item); err != nil {
				return err
			}
		}
	case *RecordLit:
		for _, v := range n.Values {
			if err := visitExpr(v); err != nil {
				return err
			}
		}
	case *AssertStmt:
		if err := visitExpr(n.Cond); err != nil {
			return err
		}
		return visitExpr(n.Message)
	case *DeclStmt:
		return visit(n.Decl)
	case *ExprStmt:
		return visitExpr(n.Expr)
	case *WhileStmt:
		if err := visitExpr(n.Cond); err != nil {
			return err
		}
		return visit(n.Body)
	case *ForStmt:
		if err := visit(n.Init); err != nil {
			return err
		}
		if err := visitExpr(n.Cond); err != nil {
			return err
		}
		if err := visitExpr(n.Step); err != nil {
			return err
		}
		return visit(n.Body)
	case *ForEachStmt:
		if err := visit(n.Binding); err != nil {
			return err
		}
		if err := visitExpr(n.Iterable); err != nil {
			return err
		}
		return visit(n.Body)
	case *EmptyStmt:
	default:
		panic(fmt.Sprintf("WalkChildren: unhandled node type %T", node))
	}
	return nil
}

// Walk visits node and all of its descendants, pre-order.
func Walk(node AstNode, fn func(AstNode) error) error {
	if err := fn(node); err != nil {
		return err
	}
	return WalkChildren(node, func(child AstNode) error {
		return Walk(child, fn)
	})
}

// TransformChildren replaces each direct expression child of node with
// fn(child).  Statement and declaration children are left untouched
// (neither visited nor replaced); rewrites happen at the expression
// granularity.
func TransformChildren(node AstNode, fn func(Expr) Expr) {
	tx := func(e Expr) Expr {
		if e == nil {
			return nil
		}
		return fn(e)
	}

	switch n := node.(type) {
	case *File, *ImportDecl, *ParamDecl, *VarDecl, *DeclStmt, *EmptyStmt,
		*NullLit, *BoolLit, *IntLit, *FloatLit, *SymbolLit, *StringLit,
		*VarExpr, *BreakExpr, *ContinueExpr:
	case *FuncDecl:
		n.Body = tx(n.Body)
	case *VarBinding:
		n.Init = tx(n.Init)
	case *TupleBinding:
		n.Init = tx(n.Init)
	case *StringExpr:
		for i := range n.Items {
			n.Items[i] = tx(n.Items[i])
		}
	case *BinaryExpr:
		n.Left = tx(n.Left)
		n.Right = tx(n.Right)
	case *UnaryExpr:
		n.Operand = tx(n.Operand)
	case *AssignExpr:
		n.Target = tx(n.Target)
		n.Value = tx(n.Value)
	case *FieldExpr:
		n.Object = tx(n.Object)
	case *TupleFieldExpr:
		n.Object = tx(n.Object)
	case *IndexExpr:
		n.Object = tx(n.Object)
		n.Index = tx(n.Index)
	case *CallExpr:
		n.Func = tx(n.Func)
		for i := range n.Args {
			n.Args[i] = tx(n.Args[i])
		}
	case *BlockExpr:
	case *IfExpr:
		n.Cond = tx(n.Cond)
		n.Else = tx(n.Else)
	case *ReturnExpr:
		n.Value = tx(n.Value)
	case *FuncLiteralExpr:
	case *TupleLit:
		for i := range n.Items {
			n.Items[i] = tx(n.Items[i])
		}
	case *ArrayLit:
		for i := range n.Items {
			n.Items[i] = tx(n.Items[i])
		}
	case *MapLit:
		for i := range n.Keys {
			n.Keys[i] = tx(n.Keys[i])
			n.Values[i] = tx(n.Values[i])
		}
	case *SetLit:
		for i := range n.Items {
			n.Items[i] = tx(n.Items[i])
		}
	case *RecordLit:
		for i := range n.Values {
			n.Values[i] = tx(n.Values[i])
		}
	case *AssertStmt:
		n.Cond = tx(n.Cond)
		n.Message = tx(n.Message)
	case *ExprStmt:
		n.Expr = tx(n.Expr)
	case *WhileStmt:
		n.Cond = tx(n.Cond)
	case *ForStmt:
		n.Cond = tx(n.Cond)
		n.Step = tx(n.Step)
	case *ForEachStmt:
		n.Iterable = tx(n.Iterable)
	default:
		panic(fmt.Sprintf("TransformChildren: unhandled node type %T", node))
	}
}

// NumberAst assigns sequential ids to every node in the tree.  The
// parser leaves ids unset; numbering once after the parse keeps ids
// stable for the symbol table and the semantic maps.
func NumberAst(root AstNode) uint32 {
	var next uint32
	_ = Walk(root, func(n AstNode) error {
		next++
		n.setID(NodeID(next))
		return nil
	})
	return next
}
