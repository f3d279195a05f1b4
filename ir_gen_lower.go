package hammer

import "fmt"

// ---- Statement lowering ----

// lowerBlockStmts lowers the statements of a block.  When asValue is
// set and the last statement is an expression statement, its value is
// the block's value.
func (f *funcGenerator) lowerBlockStmts(block *BlockExpr, asValue bool) exprValue {
	result := omitted
	for i, stmt := range block.Stmts {
		last := i == len(block.Stmts)-1
		if es, ok := stmt.(*ExprStmt); ok && last && asValue {
			return f.lowerExprValue(es.Expr)
		}
		r := f.lowerStmt(stmt)
		if r.unreachable {
			return unreachable
		}
		if last {
			result = r
		}
	}
	return result
}

// lowerStmt lowers one statement.  The result is omitted unless the
// statement diverts control flow.
func (f *funcGenerator) lowerStmt(stmt Stmt) exprValue {
	switch n := stmt.(type) {
	case *EmptyStmt:
		return omitted

	case *DeclStmt:
		return f.lowerVarBinding(n.Decl.Binding)

	case *ExprStmt:
		r := f.lowerExpr(n.Expr)
		if r.unreachable {
			return unreachable
		}
		return omitted

	case *AssertStmt:
		return f.lowerAssert(n)

	case *WhileStmt:
		return f.lowerWhile(n)

	case *ForStmt:
		return f.lowerFor(n)

	case *ForEachStmt:
		return f.lowerForEach(n)
	}
	panic(fmt.Sprintf("lowerStmt: unhandled statement %T", stmt))
}

func (f *funcGenerator) lowerVarBinding(binding Binding) exprValue {
	init := binding.InitExpr()

	switch b := binding.(type) {
	case *VarBinding:
		sym := f.bindingSymbol(b, b.Name)
		var local LocalID
		if init == nil {
			local = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
		} else {
			v := f.lowerExprValue(init)
			if v.unreachable {
				return unreachable
			}
			local = v.local
		}
		f.bindLocal(sym, local)
		return omitted

	case *TupleBinding:
		v := f.lowerExprValue(init)
		if v.unreachable {
			return unreachable
		}
		for i, name := range b.Names {
			sym := f.bindingSymbol(b, name)
			item := f.define(RVUseLValue{LValue: LVTupleField{Object: v.local, Index: i}})
			f.bindLocal(sym, item)
		}
		return omitted
	}
	panic(fmt.Sprintf("lowerVarBinding: unhandled binding %T", binding))
}

// bindingSymbol finds the symbol a binding declared for a given name.
func (f *funcGenerator) bindingSymbol(binding Binding, name string) *Symbol {
	scope := f.gen.table.ScopeOf(binding)
	if scope == nil {
		return nil
	}
	id, ok := f.gen.table.Strings.Lookup(name)
	if !ok {
		return nil
	}
	sym, _ := scope.Lookup(id)
	return sym
}

// bindLocal routes a definition to its storage: a closure slot for
// captured symbols, an SSA definition otherwise.
func (f *funcGenerator) bindLocal(sym *Symbol, local LocalID) {
	if sym == nil {
		return
	}
	if sym.Captured {
		if lv, ok := f.closureLValue(sym); ok {
			f.emit(SAssign{Target: lv, Value: local})
		}
		return
	}
	f.writeVariable(sym, f.current, local)
}

func (f *funcGenerator) lowerAssert(n *AssertStmt) exprValue {
	cond := f.lowerExprValue(n.Cond)
	if cond.unreachable {
		return unreachable
	}

	okBlock := f.fn.NewBlock("assert-ok")
	failBlock := f.fn.NewBlock("assert-fail")
	f.fn.SetTerminator(f.current, TermBranch{
		Kind: Branch_IfTrue, Cond: cond.local, True: okBlock, False: failBlock,
	})
	f.seal(okBlock)
	f.seal(failBlock)

	f.current = failBlock
	exprText := f.define(RVConstant{Value: Constant{Kind: Constant_String, Str: n.CondText}})
	var message LocalID
	if n.Message != nil {
		m := f.lowerExprValue(n.Message)
		if m.unreachable {
			f.current = okBlock
			return omitted
		}
		message = m.local
	} else {
		message = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	f.fn.SetTerminator(f.current, TermAssertFail{Expr: exprText, Message: message, Exit: f.fn.Exit})

	f.current = okBlock
	return omitted
}

func (f *funcGenerator) lowerWhile(n *WhileStmt) exprValue {
	head := f.fn.NewBlock("while-head")
	body := f.fn.NewBlock("while-body")
	end := f.fn.NewBlock("while-end")

	f.fn.SetTerminator(f.current, TermJump{Target: head})
	f.current = head

	cond := f.lowerExprValue(n.Cond)
	if cond.unreachable {
		f.seal(head)
		return unreachable
	}
	f.fn.SetTerminator(f.current, TermBranch{
		Kind: Branch_IfTrue, Cond: cond.local, True: body, False: end,
	})

	f.seal(body)
	f.current = body
	f.loops = append(f.loops, loopContext{continueTarget: head, breakTarget: end})
	r := f.lowerBlockStmts(n.Body, false)
	f.loops = f.loops[:len(f.loops)-1]
	if !r.unreachable {
		f.fn.SetTerminator(f.current, TermJump{Target: head})
	}

	f.seal(head)
	f.seal(end)
	f.current = end
	return omitted
}

func (f *funcGenerator) lowerFor(n *ForStmt) exprValue {
	if n.Init != nil {
		if r := f.lowerStmt(n.Init); r.unreachable {
			return unreachable
		}
	}

	cond := f.fn.NewBlock("for-cond")
	body := f.fn.NewBlock("for-body")
	step := f.fn.NewBlock("for-step")
	end := f.fn.NewBlock("for-end")

	f.fn.SetTerminator(f.current, TermJump{Target: cond})
	f.current = cond

	var condLocal LocalID
	if n.Cond != nil {
		c := f.lowerExprValue(n.Cond)
		if c.unreachable {
			f.seal(cond)
			return unreachable
		}
		condLocal = c.local
	} else {
		condLocal = f.define(RVConstant{Value: Constant{Kind: Constant_True}})
	}
	f.fn.SetTerminator(f.current, TermBranch{
		Kind: Branch_IfTrue, Cond: condLocal, True: body, False: end,
	})

	f.seal(body)
	f.current = body
	f.loops = append(f.loops, loopContext{continueTarget: step, breakTarget: end})
	r := f.lowerBlockStmts(n.Body, false)
	f.loops = f.loops[:len(f.loops)-1]
	if !r.unreachable {
		f.fn.SetTerminator(f.current, TermJump{Target: step})
	}

	f.seal(step)
	f.current = step
	if n.Step != nil {
		s := f.lowerExpr(n.Step)
		if s.unreachable {
			f.seal(cond)
			f.seal(end)
			f.current = end
			return omitted
		}
	}
	f.fn.SetTerminator(f.current, TermJump{Target: cond})

	f.seal(cond)
	f.seal(end)
	f.current = end
	return omitted
}

func (f *funcGenerator) lowerForEach(n *ForEachStmt) exprValue {
	iterable := f.lowerExprValue(n.Iterable)
	if iterable.unreachable {
		return unreachable
	}
	iter := f.define(RVMakeIterator{Container: iterable.local})

	head := f.fn.NewBlock("foreach-head")
	body := f.fn.NewBlock("foreach-body")
	end := f.fn.NewBlock("foreach-end")

	f.fn.SetTerminator(f.current, TermJump{Target: head})
	f.current = head

	next := f.define(RVIteratorNext{Iterator: iter})
	valid := f.define(RVGetAggregateMember{Aggregate: next, Member: Aggregate_IteratorNextValid})
	f.fn.SetTerminator(f.current, TermBranch{
		Kind: Branch_IfTrue, Cond: valid, True: body, False: end,
	})

	f.seal(body)
	f.current = body
	item := f.define(RVGetAggregateMember{Aggregate: next, Member: Aggregate_IteratorNextValue})

	switch b := n.Binding.(type) {
	case *VarBinding:
		f.bindLocal(f.bindingSymbol(b, b.Name), item)
	case *TupleBinding:
		for i, name := range b.Names {
			field := f.define(RVUseLValue{LValue: LVTupleField{Object: item, Index: i}})
			f.bindLocal(f.bindingSymbol(b, name), field)
		}
	}

	f.loops = append(f.loops, loopContext{continueTarget: head, breakTarget: end})
	r := f.lowerBlockStmts(n.Body, false)
	f.loops = f.loops[:len(f.loops)-1]
	if !r.unreachable {
		f.fn.SetTerminator(f.current, TermJump{Target: head})
	}

	f.seal(head)
	f.seal(end)
	f.current = end
	return omitted
}

// ---- Expression lowering ----

// lowerExprValue lowers an expression in a position that needs a
// value.  Omitted results materialize as null.
func (f *funcGenerator) lowerExprValue(e Expr) exprValue {
	r := f.lowerExpr(e)
	if r.omitted {
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Null}}))
	}
	return r
}

func (f *funcGenerator) lowerExpr(e Expr) exprValue {
	switch n := e.(type) {
	case *NullLit:
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Null}}))

	case *BoolLit:
		kind := Constant_False
		if n.Value {
			kind = Constant_True
		}
		return value(f.define(RVConstant{Value: Constant{Kind: kind}}))

	case *IntLit:
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Integer, Int: n.Value}}))

	case *FloatLit:
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Float, Float: n.Value}}))

	case *StringLit:
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_String, Str: n.Value}}))

	case *SymbolLit:
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Symbol, Str: n.Name}}))

	case *StringExpr:
		return f.lowerFormat(n)

	case *VarExpr:
		return f.lowerVarRead(n)

	case *UnaryExpr:
		operand := f.lowerExprValue(n.Operand)
		if operand.unreachable {
			return unreachable
		}
		op := map[UnaryOpKind]UnaryOpType{
			UnaryOp_Plus:  IROp_Plus,
			UnaryOp_Minus: IROp_Minus,
			UnaryOp_Not:   IROp_Not,
		}[n.Op]
		return value(f.define(RVUnaryOp{Op: op, Operand: operand.local}))

	case *BinaryExpr:
		if n.Op == BinaryOp_LogicAnd || n.Op == BinaryOp_LogicOr {
			return f.lowerLogic(n)
		}
		left := f.lowerExprValue(n.Left)
		if left.unreachable {
			return unreachable
		}
		right := f.lowerExprValue(n.Right)
		if right.unreachable {
			return unreachable
		}
		return value(f.define(RVBinaryOp{Op: irBinaryOp(n.Op), Left: left.local, Right: right.local}))

	case *AssignExpr:
		return f.lowerAssign(n)

	case *FieldExpr:
		obj := f.lowerExprValue(n.Object)
		if obj.unreachable {
			return unreachable
		}
		name := f.gen.table.Strings.Insert(n.Name)
		return value(f.define(RVUseLValue{LValue: LVField{Object: obj.local, Name: name}}))

	case *TupleFieldExpr:
		obj := f.lowerExprValue(n.Object)
		if obj.unreachable {
			return unreachable
		}
		return value(f.define(RVUseLValue{LValue: LVTupleField{Object: obj.local, Index: n.Index}}))

	case *IndexExpr:
		obj := f.lowerExprValue(n.Object)
		if obj.unreachable {
			return unreachable
		}
		idx := f.lowerExprValue(n.Index)
		if idx.unreachable {
			return unreachable
		}
		return value(f.define(RVUseLValue{LValue: LVIndex{Object: obj.local, Index: idx.local}}))

	case *CallExpr:
		return f.lowerCall(n)

	case *BlockExpr:
		produceValue := f.gen.info.CategoryOf(n) == Category_Value
		return f.lowerBlockStmts(n, produceValue)

	case *IfExpr:
		return f.lowerIf(n)

	case *ReturnExpr:
		var local LocalID
		if n.Value != nil {
			v := f.lowerExprValue(n.Value)
			if v.unreachable {
				return unreachable
			}
			local = v.local
		} else {
			local = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
		}
		f.fn.SetTerminator(f.current, TermReturn{Value: local, Exit: f.fn.Exit})
		f.startDeadBlock("after-return")
		return unreachable

	case *BreakExpr:
		if len(f.loops) == 0 {
			return unreachable
		}
		f.fn.SetTerminator(f.current, TermJump{Target: f.loops[len(f.loops)-1].breakTarget})
		f.startDeadBlock("after-break")
		return unreachable

	case *ContinueExpr:
		if len(f.loops) == 0 {
			return unreachable
		}
		f.fn.SetTerminator(f.current, TermJump{Target: f.loops[len(f.loops)-1].continueTarget})
		f.startDeadBlock("after-continue")
		return unreachable

	case *FuncLiteralExpr:
		return f.lowerFuncLiteral(n)

	case *TupleLit:
		return f.lowerContainer(Container_Tuple, n.Items)

	case *ArrayLit:
		return f.lowerContainer(Container_Array, n.Items)

	case *SetLit:
		return f.lowerContainer(Container_Set, n.Items)

	case *MapLit:
		locals := make([]LocalID, 0, 2*len(n.Keys))
		for i := range n.Keys {
			k := f.lowerExprValue(n.Keys[i])
			if k.unreachable {
				return unreachable
			}
			v := f.lowerExprValue(n.Values[i])
			if v.unreachable {
				return unreachable
			}
			locals = append(locals, k.local, v.local)
		}
		return value(f.define(RVContainer{Kind: Container_Map, Args: f.fn.NewList(locals)}))

	case *RecordLit:
		schema := f.fn.NewSchema(append([]string(nil), n.Names...))
		locals := make([]LocalID, 0, len(n.Values))
		for _, item := range n.Values {
			v := f.lowerExprValue(item)
			if v.unreachable {
				return unreachable
			}
			locals = append(locals, v.local)
		}
		return value(f.define(RVRecord{Schema: schema, Args: f.fn.NewList(locals)}))
	}
	panic(fmt.Sprintf("lowerExpr: unhandled expression %T", e))
}

func irBinaryOp(op BinaryOpKind) BinaryOpType {
	switch op {
	case BinaryOp_Add:
		return IROp_Add
	case BinaryOp_Sub:
		return IROp_Sub
	case BinaryOp_Mul:
		return IROp_Mul
	case BinaryOp_Div:
		return IROp_Div
	case BinaryOp_Mod:
		return IROp_Mod
	case BinaryOp_Pow:
		return IROp_Pow
	case BinaryOp_Eq:
		return IROp_Eq
	case BinaryOp_NotEq:
		return IROp_NotEq
	case BinaryOp_Lt:
		return IROp_Lt
	case BinaryOp_LtEq:
		return IROp_LtEq
	case BinaryOp_Gt:
		return IROp_Gt
	case BinaryOp_GtEq:
		return IROp_GtEq
	}
	panic("irBinaryOp: not an arithmetic or comparison operator")
}

func (f *funcGenerator) lowerContainer(kind ContainerKind, items []Expr) exprValue {
	locals := make([]LocalID, 0, len(items))
	for _, item := range items {
		v := f.lowerExprValue(item)
		if v.unreachable {
			return unreachable
		}
		locals = append(locals, v.local)
	}
	return value(f.define(RVContainer{Kind: kind, Args: f.fn.NewList(locals)}))
}

// startDeadBlock opens an unreachable block so that statements after a
// diverting expression have somewhere to go; the block is never a
// successor of anything, so it never appears in the reverse postorder
// that code generation emits.
func (f *funcGenerator) startDeadBlock(label string) {
	dead := f.fn.NewBlock(label)
	f.seal(dead)
	f.current = dead
	f.fn.SetTerminator(dead, TermNever{Exit: f.fn.Exit})
}

func (f *funcGenerator) lowerFormat(n *StringExpr) exprValue {
	locals := make([]LocalID, 0, len(n.Items))
	for _, item := range n.Items {
		v := f.lowerExprValue(item)
		if v.unreachable {
			return unreachable
		}
		locals = append(locals, v.local)
	}
	return value(f.define(RVFormat{Args: f.fn.NewList(locals)}))
}

func (f *funcGenerator) lowerVarRead(n *VarExpr) exprValue {
	sym := f.gen.table.SymbolOfRef(n)
	if sym == nil {
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Null}}))
	}
	if sym.Scope.IsModuleLevel() {
		member, ok := f.gen.memberOf[sym]
		if !ok {
			return value(f.define(RVConstant{Value: Constant{Kind: Constant_Null}}))
		}
		return value(f.define(RVUseLValue{LValue: LVModule{Member: member}}))
	}
	if sym.Captured {
		lv, ok := f.closureLValue(sym)
		if !ok {
			return value(f.define(RVConstant{Value: Constant{Kind: Constant_Null}}))
		}
		return value(f.define(RVUseLValue{LValue: lv}))
	}
	return value(f.readVariable(sym, f.current))
}

// lowerLogic lowers short-circuit && and ||.
func (f *funcGenerator) lowerLogic(n *BinaryExpr) exprValue {
	left := f.lowerExprValue(n.Left)
	if left.unreachable {
		return unreachable
	}

	rhs := f.fn.NewBlock("logic-rhs")
	end := f.fn.NewBlock("logic-end")
	tmp := &Symbol{Kind: Symbol_Variable}

	f.writeVariable(tmp, f.current, left.local)
	kind := Branch_IfTrue
	if n.Op == BinaryOp_LogicOr {
		kind = Branch_IfFalse
	}
	f.fn.SetTerminator(f.current, TermBranch{
		Kind: kind, Cond: left.local, True: rhs, False: end,
	})

	f.seal(rhs)
	f.current = rhs
	right := f.lowerExprValue(n.Right)
	if !right.unreachable {
		f.writeVariable(tmp, f.current, right.local)
		f.fn.SetTerminator(f.current, TermJump{Target: end})
	}

	f.seal(end)
	f.current = end
	return value(f.readVariable(tmp, end))
}

func (f *funcGenerator) lowerIf(n *IfExpr) exprValue {
	produceValue := f.gen.info.CategoryOf(n) == Category_Value

	cond := f.lowerExprValue(n.Cond)
	if cond.unreachable {
		return unreachable
	}

	then := f.fn.NewBlock("if-then")
	end := f.fn.NewBlock("if-end")
	elseTarget := end
	var elseBlock BlockID = InvalidBlock
	if n.Else != nil {
		elseBlock = f.fn.NewBlock("if-else")
		elseTarget = elseBlock
	}

	f.fn.SetTerminator(f.current, TermBranch{
		Kind: Branch_IfTrue, Cond: cond.local, True: then, False: elseTarget,
	})

	tmp := &Symbol{Kind: Symbol_Variable}

	f.seal(then)
	f.current = then
	tv := f.lowerExpr(n.Then)
	if !tv.unreachable {
		if produceValue {
			f.writeVariable(tmp, f.current, f.materialize(tv))
		}
		f.fn.SetTerminator(f.current, TermJump{Target: end})
	}

	if elseBlock != InvalidBlock {
		f.seal(elseBlock)
		f.current = elseBlock
		ev := f.lowerExpr(n.Else)
		if !ev.unreachable {
			if produceValue {
				f.writeVariable(tmp, f.current, f.materialize(ev))
			}
			f.fn.SetTerminator(f.current, TermJump{Target: end})
		}
	}

	f.seal(end)
	f.current = end
	if len(f.fn.Block(end).Predecessors()) == 0 {
		f.fn.SetTerminator(end, TermNever{Exit: f.fn.Exit})
		dead := f.fn.NewBlock("after-if")
		f.seal(dead)
		f.fn.SetTerminator(dead, TermNever{Exit: f.fn.Exit})
		f.current = dead
		return unreachable
	}
	if produceValue {
		return value(f.readVariable(tmp, end))
	}
	return omitted
}

// materialize turns an expression result into a local, producing null
// for omitted results.
func (f *funcGenerator) materialize(v exprValue) LocalID {
	if v.omitted || v.local == InvalidLocal {
		return f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	return v.local
}

func (f *funcGenerator) lowerCall(n *CallExpr) exprValue {
	// `obj.name(args)` is a method call: the callee resolves to the
	// two-register method aggregate consumed by CallMethod.
	if field, ok := n.Func.(*FieldExpr); ok {
		obj := f.lowerExprValue(field.Object)
		if obj.unreachable {
			return unreachable
		}
		name := f.gen.table.Strings.Insert(field.Name)
		method := f.define(RVMethodHandle{Instance: obj.local, Name: name})

		locals, diverted := f.lowerArgs(n.Args)
		if diverted {
			return unreachable
		}
		return value(f.define(RVMethodCall{Method: method, Args: f.fn.NewList(locals)}))
	}

	callee := f.lowerExprValue(n.Func)
	if callee.unreachable {
		return unreachable
	}
	locals, diverted := f.lowerArgs(n.Args)
	if diverted {
		return unreachable
	}
	return value(f.define(RVCall{Func: callee.local, Args: f.fn.NewList(locals)}))
}

func (f *funcGenerator) lowerArgs(args []Expr) ([]LocalID, bool) {
	locals := make([]LocalID, 0, len(args))
	for _, a := range args {
		v := f.lowerExprValue(a)
		if v.unreachable {
			return nil, true
		}
		locals = append(locals, v.local)
	}
	return locals, false
}

func (f *funcGenerator) lowerFuncLiteral(n *FuncLiteralExpr) exprValue {
	decl := n.Decl
	name := decl.Name
	if name == "" {
		f.gen.lambdas++
		name = fmt.Sprintf("%s$%d", f.fn.Name, f.gen.lambdas)
	}

	fn := NewIRFunc(name, Function_Closure, len(decl.Params))
	member := f.gen.module.AddFunction(fn)

	outer := f.ownEnv
	if outer == nil {
		outer = f.outerEnv
	}
	if err := f.gen.generateFuncLiteral(decl, fn, outer, member); err != nil {
		// Surface as a diagnostic; the literal degrades to null.
		f.gen.diags.Error(n.Span(), "internal error: %s", err)
		return value(f.define(RVConstant{Value: Constant{Kind: Constant_Null}}))
	}

	env := f.envHead
	if env == InvalidLocal {
		env = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	return value(f.define(RVMakeClosure{Env: env, Func: member}))
}

// ---- Assignment lowering ----

func (f *funcGenerator) lowerAssign(n *AssignExpr) exprValue {
	// Tuple targets destructure the right-hand side.
	if tuple, ok := n.Target.(*TupleLit); ok {
		v := f.lowerExprValue(n.Value)
		if v.unreachable {
			return unreachable
		}
		for i, place := range tuple.Items {
			item := f.define(RVUseLValue{LValue: LVTupleField{Object: v.local, Index: i}})
			if f.storePlace(place, item) {
				return unreachable
			}
		}
		return value(v.local)
	}

	if n.Op == AssignOp_Assign {
		v := f.lowerExprValue(n.Value)
		if v.unreachable {
			return unreachable
		}
		if f.storePlace(n.Target, v.local) {
			return unreachable
		}
		return value(v.local)
	}

	// Compound assignment: read, combine, write back.
	read, write, diverted := f.lowerPlace(n.Target)
	if diverted {
		return unreachable
	}
	current := read()
	v := f.lowerExprValue(n.Value)
	if v.unreachable {
		return unreachable
	}
	result := f.define(RVBinaryOp{Op: irBinaryOp(n.Op.BinaryOp()), Left: current, Right: v.local})
	write(result)
	return value(result)
}

// storePlace writes a value into a place expression.  Reports true
// when lowering the place diverted control flow.
func (f *funcGenerator) storePlace(place Expr, local LocalID) bool {
	_, write, diverted := f.lowerPlace(place)
	if diverted {
		return true
	}
	write(local)
	return false
}

// lowerPlace lowers a place expression into a read thunk and a write
// thunk sharing the same object/index computations.
func (f *funcGenerator) lowerPlace(place Expr) (read func() LocalID, write func(LocalID), diverted bool) {
	switch n := place.(type) {
	case *VarExpr:
		sym := f.gen.table.SymbolOfRef(n)
		if sym == nil {
			return f.discardPlace()
		}
		if sym.Scope.IsModuleLevel() {
			member, ok := f.gen.memberOf[sym]
			if !ok {
				return f.discardPlace()
			}
			lv := LVModule{Member: member}
			return func() LocalID { return f.define(RVUseLValue{LValue: lv}) },
				func(v LocalID) { f.emit(SAssign{Target: lv, Value: v}) },
				false
		}
		if sym.Captured {
			lv, ok := f.closureLValue(sym)
			if !ok {
				return f.discardPlace()
			}
			return func() LocalID { return f.define(RVUseLValue{LValue: lv}) },
				func(v LocalID) { f.emit(SAssign{Target: lv, Value: v}) },
				false
		}
		return func() LocalID { return f.readVariable(sym, f.current) },
			func(v LocalID) { f.writeVariable(sym, f.current, v) },
			false

	case *FieldExpr:
		obj := f.lowerExprValue(n.Object)
		if obj.unreachable {
			return nil, nil, true
		}
		name := f.gen.table.Strings.Insert(n.Name)
		lv := LVField{Object: obj.local, Name: name}
		return func() LocalID { return f.define(RVUseLValue{LValue: lv}) },
			func(v LocalID) { f.emit(SAssign{Target: lv, Value: v}) },
			false

	case *TupleFieldExpr:
		obj := f.lowerExprValue(n.Object)
		if obj.unreachable {
			return nil, nil, true
		}
		lv := LVTupleField{Object: obj.local, Index: n.Index}
		return func() LocalID { return f.define(RVUseLValue{LValue: lv}) },
			func(v LocalID) { f.emit(SAssign{Target: lv, Value: v}) },
			false

	case *IndexExpr:
		obj := f.lowerExprValue(n.Object)
		if obj.unreachable {
			return nil, nil, true
		}
		idx := f.lowerExprValue(n.Index)
		if idx.unreachable {
			return nil, nil, true
		}
		lv := LVIndex{Object: obj.local, Index: idx.local}
		return func() LocalID { return f.define(RVUseLValue{LValue: lv}) },
			func(v LocalID) { f.emit(SAssign{Target: lv, Value: v}) },
			false
	}

	// The semantic checker already rejected this target.
	return f.discardPlace()
}

// discardPlace is the recovery path for unresolvable places: reads
// yield null, writes vanish.
func (f *funcGenerator) discardPlace() (func() LocalID, func(LocalID), bool) {
	return func() LocalID { return f.define(RVConstant{Value: Constant{Kind: Constant_Null}}) },
		func(LocalID) {},
		false
}
