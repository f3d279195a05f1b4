package hammer

// scopeBuilder walks the AST, creates the scope tree, registers
// declared symbols and records every node's surrounding scope.  Name
// resolution happens in a second pass (resolver below) so that
// file-scope declarations are visible before their definition site.
type scopeBuilder struct {
	table *SymbolTable
	diags *Diagnostics

	scope    *Scope
	function NodeID
}

// BuildScopes runs scope construction and name resolution over a file.
func BuildScopes(file *File, strings *StringTable, diags *Diagnostics) *SymbolTable {
	table := NewSymbolTable(strings)
	b := &scopeBuilder{table: table, diags: diags, scope: table.Root}

	fileScope := newScope(Scope_File, table.Root, NodeID(0))
	table.File = fileScope
	b.scope = fileScope
	b.buildNode(file)

	r := &resolver{table: table, diags: diags}
	r.resolveNode(file, fileScope, NodeID(0))
	return table
}

func (b *scopeBuilder) buildNode(node AstNode) {
	if node == nil {
		return
	}
	b.table.scopeOf[node.ID()] = b.scope

	switch n := node.(type) {
	case *ImportDecl:
		b.declare(n, Symbol_Import, n.LocalName(), true)

	case *FuncDecl:
		if n.Name != "" && b.scope.IsModuleLevel() {
			sym := b.declare(n, Symbol_Function, n.Name, true)
			if sym != nil {
				sym.Exported = n.Exported
				// File-scope functions are hoisted.
				sym.Active = true
			}
		}
		b.buildFunc(n)
		return

	case *VarDecl:
		b.table.scopeOf[n.Binding.ID()] = b.scope
		for _, name := range n.Binding.BoundNames() {
			sym := b.declare(n.Binding, Symbol_Variable, name, n.Binding.Const())
			if sym != nil {
				sym.Exported = n.Exported
				if b.scope.IsModuleLevel() {
					sym.Active = true
				}
			}
		}
		b.buildNode(n.Binding.InitExpr())
		return

	case *FuncLiteralExpr:
		b.buildFunc(n.Decl)
		return

	case *BlockExpr:
		b.inScope(Scope_Block, func() {
			b.table.scopeOf[n.ID()] = b.scope
			for _, s := range n.Stmts {
				b.buildNode(s)
			}
		})
		return

	case *ForStmt:
		b.inScope(Scope_ForStatement, func() {
			b.table.scopeOf[n.ID()] = b.scope
			b.buildNode(n.Init)
			b.buildNode(n.Cond)
			b.buildNode(n.Step)
			b.buildNode(n.Body)
		})
		return

	case *ForEachStmt:
		b.inScope(Scope_ForStatement, func() {
			b.table.scopeOf[n.ID()] = b.scope
			b.table.scopeOf[n.Binding.ID()] = b.scope
			for _, name := range n.Binding.BoundNames() {
				b.declare(n.Binding, Symbol_Variable, name, n.Binding.Const())
			}
			b.buildNode(n.Iterable)
			b.buildNode(n.Body)
		})
		return
	}

	_ = WalkChildren(node, func(child AstNode) error {
		b.buildNode(child)
		return nil
	})
}

// buildFunc creates the Parameters and Function scopes of a function
// declaration and descends into the body.
func (b *scopeBuilder) buildFunc(decl *FuncDecl) {
	outerScope, outerFunc := b.scope, b.function
	defer func() { b.scope, b.function = outerScope, outerFunc }()

	b.function = decl.ID()
	params := newScope(Scope_Parameters, outerScope, decl.ID())
	b.scope = params
	b.table.funcScopeOf[decl.ID()] = params

	// A named function literal binds its own name for recursion.
	if decl.Name != "" && !outerScope.IsModuleLevel() {
		sym := b.declare(decl, Symbol_Function, decl.Name, true)
		if sym != nil {
			sym.Active = true
		}
	}

	for _, p := range decl.Params {
		b.table.scopeOf[p.ID()] = params
		sym := b.declare(p, Symbol_Parameter, p.Name, false)
		if sym != nil {
			sym.Active = true
		}
	}

	body := newScope(Scope_Function, params, decl.ID())
	b.scope = body
	if block, ok := decl.Body.(*BlockExpr); ok {
		// The body block shares the Function scope instead of
		// opening a nested Block scope.
		b.table.scopeOf[block.ID()] = body
		for _, s := range block.Stmts {
			b.buildNode(s)
		}
	} else {
		b.buildNode(decl.Body)
	}
}

func (b *scopeBuilder) inScope(kind ScopeKind, fn func()) {
	outer := b.scope
	b.scope = newScope(kind, outer, b.function)
	fn()
	b.scope = outer
}

func (b *scopeBuilder) declare(node AstNode, kind SymbolKind, name string, isConst bool) *Symbol {
	sym := &Symbol{
		Node:    node.ID(),
		Kind:    kind,
		Name:    b.table.name(name),
		IsConst: isConst,
	}
	if err := b.scope.Register(sym); err != nil {
		b.diags.Error(node.Span(), "the name '%s' is already declared in this scope", name)
		return nil
	}
	// A declaring node can introduce several symbols (tuple
	// bindings); declOf keeps the first, bindings are looked up by
	// name afterwards.
	if _, ok := b.table.declOf[node.ID()]; !ok {
		b.table.declOf[node.ID()] = sym
	}
	return sym
}

// resolver binds every VarExpr to a symbol, maintains the active flag
// to diagnose use-before-init, and detects captures.
type resolver struct {
	table *SymbolTable
	diags *Diagnostics
}

func (r *resolver) resolveNode(node AstNode, scope *Scope, function NodeID) {
	if node == nil {
		return
	}

	switch n := node.(type) {
	case *VarExpr:
		r.resolveVar(n, scope, function)
		return

	case *VarDecl:
		// Initializer first: `var x = x;` must refer to an
		// outer x (or fail), not the one being defined.
		r.resolveNode(n.Binding.InitExpr(), scope, function)
		r.activate(n.Binding, scope)
		return

	case *FuncDecl:
		r.resolveFunc(n)
		return

	case *FuncLiteralExpr:
		r.resolveFunc(n.Decl)
		return

	case *BlockExpr:
		inner := r.table.ScopeOf(n)
		for _, s := range n.Stmts {
			r.resolveNode(s, inner, function)
		}
		return

	case *ForStmt:
		inner := r.table.ScopeOf(n)
		r.resolveNode(n.Init, inner, function)
		r.resolveNode(n.Cond, inner, function)
		r.resolveNode(n.Step, inner, function)
		r.resolveNode(n.Body, inner, function)
		return

	case *ForEachStmt:
		inner := r.table.ScopeOf(n)
		r.resolveNode(n.Iterable, inner, function)
		r.activate(n.Binding, inner)
		r.resolveNode(n.Body, inner, function)
		return
	}

	_ = WalkChildren(node, func(child AstNode) error {
		r.resolveNode(child, scope, function)
		return nil
	})
}

func (r *resolver) resolveFunc(decl *FuncDecl) {
	params := r.table.ParamScopeOf(decl)
	if params == nil {
		return
	}
	body := params.children[len(params.children)-1]
	if block, ok := decl.Body.(*BlockExpr); ok {
		for _, s := range block.Stmts {
			r.resolveNode(s, body, decl.ID())
		}
	} else {
		r.resolveNode(decl.Body, body, decl.ID())
	}
}

func (r *resolver) resolveVar(n *VarExpr, scope *Scope, function NodeID) {
	name, ok := r.table.Strings.Lookup(n.Name)
	if !ok {
		r.diags.Error(n.Span(), "undefined name '%s'", n.Name)
		return
	}
	sym, ok := scope.Resolve(name)
	if !ok {
		r.diags.Error(n.Span(), "undefined name '%s'", n.Name)
		return
	}

	if !sym.Active && sym.Scope.Function == function {
		r.diags.Error(n.Span(), "'%s' is used before its definition", n.Name)
	}

	// A reference from inside a more deeply nested function
	// captures the symbol, unless the symbol lives in module
	// storage (module members are addressed directly).
	if sym.Scope.Function != function && !sym.Scope.IsModuleLevel() {
		sym.Captured = true
	}

	r.table.refOf[n.ID()] = sym
}

func (r *resolver) activate(binding Binding, scope *Scope) {
	for _, name := range binding.BoundNames() {
		id, ok := r.table.Strings.Lookup(name)
		if !ok {
			continue
		}
		if sym, ok := scope.Lookup(id); ok {
			sym.Active = true
		}
	}
}
