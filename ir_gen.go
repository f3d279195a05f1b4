package hammer

import (
	"fmt"

	"github.com/pkg/errors"
)

// GenerateIR lowers a checked file into an IR module.
func GenerateIR(file *File, moduleName string, info *SemanticInfo, diags *Diagnostics) (*IRModule, error) {
	gen := &irGenerator{
		module:   NewIRModule(moduleName),
		info:     info,
		table:    info.Symbols,
		diags:    diags,
		memberOf: make(map[*Symbol]int),
	}
	if err := gen.run(file); err != nil {
		return nil, err
	}
	return gen.module, nil
}

type irGenerator struct {
	module *IRModule
	info   *SemanticInfo
	table  *SymbolTable
	diags  *Diagnostics

	memberOf map[*Symbol]int
	lambdas  int
}

func (g *irGenerator) run(file *File) error {
	// Pass 1: allocate module members so that forward references
	// resolve to stable indices.
	type pendingFunc struct {
		decl  *FuncDecl
		fn    *IRFunc
		index int
	}
	var funcs []pendingFunc
	var moduleVars []*VarDecl

	for _, item := range file.Items {
		switch n := item.(type) {
		case *ImportDecl:
			sym := g.table.SymbolOfDecl(n)
			if sym == nil {
				continue
			}
			member := g.module.AddMember(IRModuleMember{Kind: IRMember_Import, Name: n.ModuleName()})
			g.memberOf[sym] = member

		case *FuncDecl:
			sym := g.table.SymbolOfDecl(n)
			if sym == nil {
				continue
			}
			fn := NewIRFunc(n.Name, Function_Normal, len(n.Params))
			member := g.module.AddFunction(fn)
			g.memberOf[sym] = member
			funcs = append(funcs, pendingFunc{decl: n, fn: fn, index: member})

		case *VarDecl:
			for _, name := range n.Binding.BoundNames() {
				sym := g.lookupFileSymbol(name)
				if sym == nil {
					continue
				}
				member := g.module.AddMember(IRModuleMember{Kind: IRMember_Variable, Name: name})
				g.memberOf[sym] = member
			}
			moduleVars = append(moduleVars, n)
		}
	}

	// Pass 2: function bodies.
	for _, pf := range funcs {
		if err := g.generateFunc(pf.decl, pf.fn, nil); err != nil {
			return err
		}
	}

	// Pass 3: the module initializer runs the file-scope variable
	// initializers in declaration order.
	if len(moduleVars) > 0 {
		init := NewIRFunc("<init>", Function_Normal, 0)
		member := g.module.AddFunction(init)
		g.module.InitMember = member
		if err := g.generateInit(init, moduleVars); err != nil {
			return err
		}
	}

	// Exports, in declaration order.
	for _, scopeSym := range g.table.File.Symbols() {
		if !scopeSym.Exported {
			continue
		}
		member, ok := g.memberOf[scopeSym]
		if !ok {
			continue
		}
		g.module.Exports = append(g.module.Exports, IRExport{
			Name:   g.table.Strings.Value(scopeSym.Name),
			Member: member,
		})
	}
	return nil
}

func (g *irGenerator) lookupFileSymbol(name string) *Symbol {
	id, ok := g.table.Strings.Lookup(name)
	if !ok {
		return nil
	}
	sym, _ := g.table.File.Lookup(id)
	return sym
}

// closureEnv describes one closure environment: the captured symbols
// that live in it and the chain to the enclosing environment.
type closureEnv struct {
	parent *closureEnv
	slots  []*Symbol
	index  map[*Symbol]int
}

func newClosureEnv(parent *closureEnv) *closureEnv {
	return &closureEnv{parent: parent, index: make(map[*Symbol]int)}
}

func (e *closureEnv) addSlot(sym *Symbol) int {
	if idx, ok := e.index[sym]; ok {
		return idx
	}
	idx := len(e.slots)
	e.slots = append(e.slots, sym)
	e.index[sym] = idx
	return idx
}

// lookup finds the level and slot of a captured symbol relative to
// this environment.
func (e *closureEnv) lookup(sym *Symbol) (level, index int, ok bool) {
	for env, lvl := e, 0; env != nil; env, lvl = env.parent, lvl+1 {
		if idx, found := env.index[sym]; found {
			return lvl, idx, true
		}
	}
	return 0, 0, false
}

// generateFunc lowers one function body.  outerEnv is the environment
// chain available at the closure's creation site, nil for top-level
// functions.
func (g *irGenerator) generateFunc(decl *FuncDecl, fn *IRFunc, outerEnv *closureEnv) error {
	f := &funcGenerator{
		gen:        g,
		fn:         fn,
		decl:       decl,
		outerEnv:   outerEnv,
		selfMember: -1,
		defs:       make(map[*Symbol]map[BlockID]LocalID),
		sealed:     make(map[BlockID]bool),
		incomplete: make(map[BlockID][]incompletePhi),
		cse:        make(map[BlockID]map[RValue]LocalID),
	}
	return f.run()
}

// generateFuncLiteral lowers a function literal.  member is the
// module member index of its template, used to rebind a named literal
// inside its own body for recursion.
func (g *irGenerator) generateFuncLiteral(decl *FuncDecl, fn *IRFunc, outerEnv *closureEnv, member int) error {
	f := &funcGenerator{
		gen:        g,
		fn:         fn,
		decl:       decl,
		outerEnv:   outerEnv,
		selfMember: member,
		defs:       make(map[*Symbol]map[BlockID]LocalID),
		sealed:     make(map[BlockID]bool),
		incomplete: make(map[BlockID][]incompletePhi),
		cse:        make(map[BlockID]map[RValue]LocalID),
	}
	return f.run()
}

// generateInit lowers the module initializer.
func (g *irGenerator) generateInit(fn *IRFunc, vars []*VarDecl) error {
	decl := NewFuncDecl("<init>", nil, nil, false, Span{})
	f := &funcGenerator{
		gen:        g,
		fn:         fn,
		decl:       decl,
		moduleInit: vars,
		selfMember: -1,
		defs:       make(map[*Symbol]map[BlockID]LocalID),
		sealed:     make(map[BlockID]bool),
		incomplete: make(map[BlockID][]incompletePhi),
		cse:        make(map[BlockID]map[RValue]LocalID),
	}
	return f.run()
}

type incompletePhi struct {
	sym   *Symbol
	local LocalID
	phi   PhiID
}

type loopContext struct {
	continueTarget BlockID
	breakTarget    BlockID
}

// exprValue is the result of lowering an expression: a local id, or a
// marker that control flow diverted (unreachable), or that nothing was
// generated (omitted).
type exprValue struct {
	local       LocalID
	unreachable bool
	omitted     bool
}

func value(local LocalID) exprValue { return exprValue{local: local} }

var (
	unreachable = exprValue{local: InvalidLocal, unreachable: true}
	omitted     = exprValue{local: InvalidLocal, omitted: true}
)

type funcGenerator struct {
	gen  *irGenerator
	fn   *IRFunc
	decl *FuncDecl

	// moduleInit is set for the synthesized module initializer.
	moduleInit []*VarDecl

	// selfMember is the module member of this function's own
	// template when it is a named function literal, -1 otherwise.
	selfMember int

	// ownEnv is the environment created by this function for its
	// captured locals, nil when it captures nothing.
	ownEnv   *closureEnv
	outerEnv *closureEnv

	envHead   LocalID // local holding the innermost environment
	outerHead LocalID // local holding the outer environment

	current BlockID

	defs       map[*Symbol]map[BlockID]LocalID
	sealed     map[BlockID]bool
	incomplete map[BlockID][]incompletePhi
	cse        map[BlockID]map[RValue]LocalID

	loops []loopContext
}

func (f *funcGenerator) run() error {
	body := f.fn.NewBlock("body")
	f.fn.SetTerminator(f.fn.Entry, TermEntry{Target: body})
	f.seal(f.fn.Entry)
	f.current = body
	f.seal(body)
	f.envHead = InvalidLocal
	f.outerHead = InvalidLocal

	// A closure function materializes its outer environment first.
	if f.outerEnv != nil {
		f.outerHead = f.define(RVOuterEnvironment{})
		f.envHead = f.outerHead
	}

	f.collectCaptured()
	f.bindSelf()

	if f.moduleInit != nil {
		f.lowerModuleInit()
	} else {
		f.bindParams()
		f.lowerBody()
	}

	f.sealRemaining()
	f.rewriteAliases()
	return f.verify()
}

// bindSelf rebinds a named function literal inside its own body so it
// can recurse.  The closure is reconstructed from the outer
// environment and the same template member.
func (f *funcGenerator) bindSelf() {
	if f.selfMember < 0 || f.decl.Name == "" {
		return
	}
	scope := f.gen.table.ParamScopeOf(f.decl)
	if scope == nil {
		return
	}
	id, ok := f.gen.table.Strings.Lookup(f.decl.Name)
	if !ok {
		return
	}
	sym, ok := scope.Lookup(id)
	if !ok || sym.Kind != Symbol_Function {
		return
	}
	env := f.outerHead
	if env == InvalidLocal {
		env = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	local := f.define(RVMakeClosure{Env: env, Func: f.selfMember})
	f.bindLocal(sym, local)
}

// collectCaptured builds this function's own environment from the
// captured symbols declared inside it, and emits the MakeEnvironment
// instruction when needed.
func (f *funcGenerator) collectCaptured() {
	var captured []*Symbol
	scope := f.gen.table.ParamScopeOf(f.decl)
	if scope == nil {
		return
	}
	var walk func(s *Scope)
	walk = func(s *Scope) {
		for _, sym := range s.Symbols() {
			if sym.Captured {
				captured = append(captured, sym)
			}
		}
		for _, child := range s.children {
			// Do not descend into nested functions; their
			// captured locals live in their own environments.
			if child.Function != s.Function {
				continue
			}
			walk(child)
		}
	}
	walk(scope)

	if len(captured) == 0 {
		return
	}
	f.ownEnv = newClosureEnv(f.outerEnv)
	for _, sym := range captured {
		f.ownEnv.addSlot(sym)
	}

	parent := f.outerHead
	if parent == InvalidLocal {
		parent = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	f.envHead = f.define(RVMakeEnvironment{Parent: parent, Size: len(f.ownEnv.slots)})
}

// bindParams seeds parameter symbols, copying captured parameters into
// the environment.
func (f *funcGenerator) bindParams() {
	for i, p := range f.decl.Params {
		sym := f.gen.table.SymbolOfDecl(p)
		if sym == nil {
			continue
		}
		local := f.define(RVUseLValue{LValue: LVParam{Index: i}})
		if sym.Captured {
			lv, ok := f.closureLValue(sym)
			if !ok {
				continue
			}
			f.emit(SAssign{Target: lv, Value: local})
			continue
		}
		f.writeVariable(sym, f.current, local)
	}
}

func (f *funcGenerator) lowerBody() {
	var result exprValue
	if f.decl.IsExprBody {
		result = f.lowerExpr(f.decl.Body)
	} else {
		block := f.decl.Body.(*BlockExpr)
		result = f.lowerBlockStmts(block, false)
	}
	if result.unreachable {
		return
	}

	retVal := result.local
	if result.omitted || retVal == InvalidLocal || !f.decl.IsExprBody {
		retVal = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	f.fn.SetTerminator(f.current, TermReturn{Value: retVal, Exit: f.fn.Exit})
}

func (f *funcGenerator) lowerModuleInit() {
	for _, decl := range f.moduleInit {
		binding := decl.Binding
		init := binding.InitExpr()
		var local LocalID
		if init == nil {
			local = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
		} else {
			v := f.lowerExprValue(init)
			if v.unreachable {
				return
			}
			local = v.local
		}

		switch b := binding.(type) {
		case *VarBinding:
			sym := f.gen.lookupFileSymbol(b.Name)
			if member, ok := f.gen.memberOf[sym]; ok {
				f.emit(SAssign{Target: LVModule{Member: member}, Value: local})
			}
		case *TupleBinding:
			for i, name := range b.Names {
				sym := f.gen.lookupFileSymbol(name)
				member, ok := f.gen.memberOf[sym]
				if !ok {
					continue
				}
				item := f.define(RVUseLValue{LValue: LVTupleField{Object: local, Index: i}})
				f.emit(SAssign{Target: LVModule{Member: member}, Value: item})
			}
		}
	}
	null := f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	f.fn.SetTerminator(f.current, TermReturn{Value: null, Exit: f.fn.Exit})
}

// ---- SSA plumbing (Braun et al. on-the-fly construction) ----

func (f *funcGenerator) writeVariable(sym *Symbol, block BlockID, local LocalID) {
	m, ok := f.defs[sym]
	if !ok {
		m = make(map[BlockID]LocalID)
		f.defs[sym] = m
	}
	m[block] = local
}

func (f *funcGenerator) readVariable(sym *Symbol, block BlockID) LocalID {
	if m, ok := f.defs[sym]; ok {
		if local, ok := m[block]; ok {
			return local
		}
	}
	return f.readVariableRecursive(sym, block)
}

func (f *funcGenerator) readVariableRecursive(sym *Symbol, block BlockID) LocalID {
	var local LocalID
	switch {
	case !f.sealed[block]:
		// The block may still gain predecessors; park an
		// incomplete phi to be filled at seal time.
		phi := f.fn.NewPhi(nil)
		local = f.newPhiLocal(block, phi)
		f.incomplete[block] = append(f.incomplete[block], incompletePhi{sym: sym, local: local, phi: phi})
		f.writeVariable(sym, block, local)

	case len(f.fn.Block(block).Predecessors()) == 1:
		local = f.readVariable(sym, f.fn.Block(block).Predecessors()[0])
		f.writeVariable(sym, block, local)

	default:
		phi := f.fn.NewPhi(nil)
		local = f.newPhiLocal(block, phi)
		f.writeVariable(sym, block, local)
		local = f.addPhiOperands(sym, block, local, phi)
		f.writeVariable(sym, block, local)
	}
	return local
}

// newPhiLocal creates a phi instruction at the head of a block.
func (f *funcGenerator) newPhiLocal(block BlockID, phi PhiID) LocalID {
	local := f.fn.NewInst(RVPhi{Phi: phi}, IRType_Value)
	b := f.fn.Block(block)
	stmts := append([]IRStmt{SDefine{Local: local}}, b.Stmts()...)
	b.ReplaceStmts(stmts)
	return local
}

func (f *funcGenerator) addPhiOperands(sym *Symbol, block BlockID, local LocalID, phi PhiID) LocalID {
	var operands []LocalID
	for _, pred := range f.fn.Block(block).Predecessors() {
		operands = append(operands, f.readVariable(sym, pred))
	}
	f.fn.SetPhi(phi, operands)
	return f.tryRemoveTrivialPhi(local, phi)
}

// tryRemoveTrivialPhi replaces a phi whose operands are all the same
// value (or the phi itself) with that value.
func (f *funcGenerator) tryRemoveTrivialPhi(local LocalID, phi PhiID) LocalID {
	same := InvalidLocal
	for _, op := range f.fn.Phi(phi) {
		if op == local || op == same {
			continue
		}
		if same != InvalidLocal {
			return local // not trivial
		}
		same = op
	}
	if same == InvalidLocal {
		// Unreachable or self-referencing only.
		same = f.define(RVConstant{Value: Constant{Kind: Constant_Null}})
	}
	// Rewrite the phi into an alias; rewriteAliases collapses the
	// chains once the function is complete, which also re-checks
	// phis that became trivial transitively.
	f.fn.Inst(local).Value = RVUseLocal{Local: same}
	return same
}

func (f *funcGenerator) seal(block BlockID) {
	if f.sealed[block] {
		return
	}
	for _, ip := range f.incomplete[block] {
		f.addPhiOperands(ip.sym, block, ip.local, ip.phi)
	}
	delete(f.incomplete, block)
	f.sealed[block] = true
}

func (f *funcGenerator) sealRemaining() {
	for id := BlockID(0); int(id) < f.fn.BlockCount(); id++ {
		f.seal(id)
	}
}

// rewriteAliases collapses RVUseLocal chains produced by trivial phi
// removal, then folds phis that became trivial transitively.
func (f *funcGenerator) rewriteAliases() {
	resolve := func(local LocalID) LocalID {
		for {
			if local == InvalidLocal {
				return local
			}
			alias, ok := f.fn.Inst(local).Value.(RVUseLocal)
			if !ok {
				return local
			}
			local = alias.Local
		}
	}

	changed := true
	for changed {
		changed = false

		// Collapse operands everywhere.
		for i := 0; i < f.fn.InstCount(); i++ {
			inst := f.fn.Inst(LocalID(i))
			inst.Value = rewriteRValueOperands(inst.Value, resolve)
		}
		for li := 0; li < len(f.fn.lists); li++ {
			list := f.fn.lists[li]
			for i := range list {
				list[i] = resolve(list[i])
			}
		}
		for pi := 0; pi < len(f.fn.phis); pi++ {
			ops := f.fn.phis[pi]
			for i := range ops {
				ops[i] = resolve(ops[i])
			}
		}
		for bi := 0; bi < f.fn.BlockCount(); bi++ {
			b := f.fn.Block(BlockID(bi))
			for si, stmt := range b.stmts {
				if assign, ok := stmt.(SAssign); ok {
					assign.Target = rewriteLValueOperands(assign.Target, resolve)
					assign.Value = resolve(assign.Value)
					b.stmts[si] = assign
				}
			}
			b.term = rewriteTerminatorOperands(b.term, resolve)
		}

		// Phis may have become trivial after collapsing.
		for i := 0; i < f.fn.InstCount(); i++ {
			local := LocalID(i)
			phi, ok := f.fn.Inst(local).Value.(RVPhi)
			if !ok {
				continue
			}
			same := InvalidLocal
			trivial := true
			for _, op := range f.fn.Phi(phi.Phi) {
				if op == local || op == same {
					continue
				}
				if same != InvalidLocal {
					trivial = false
					break
				}
				same = op
			}
			if trivial && same != InvalidLocal {
				f.fn.Inst(local).Value = RVUseLocal{Local: same}
				changed = true
			}
		}
	}
}

func rewriteRValueOperands(rv RValue, resolve func(LocalID) LocalID) RValue {
	switch r := rv.(type) {
	case RVUseLValue:
		r.LValue = rewriteLValueOperands(r.LValue, resolve)
		return r
	case RVUseLocal:
		return r // alias chains are resolved by the caller's walk
	case RVPhi, RVPhi0, RVConstant, RVOuterEnvironment:
		return rv
	case RVBinaryOp:
		r.Left = resolve(r.Left)
		r.Right = resolve(r.Right)
		return r
	case RVUnaryOp:
		r.Operand = resolve(r.Operand)
		return r
	case RVCall:
		r.Func = resolve(r.Func)
		return r
	case RVMethodHandle:
		r.Instance = resolve(r.Instance)
		return r
	case RVMakeIterator:
		r.Container = resolve(r.Container)
		return r
	case RVIteratorNext:
		r.Iterator = resolve(r.Iterator)
		return r
	case RVGetAggregateMember:
		r.Aggregate = resolve(r.Aggregate)
		return r
	case RVMethodCall:
		r.Method = resolve(r.Method)
		return r
	case RVMakeEnvironment:
		r.Parent = resolve(r.Parent)
		return r
	case RVMakeClosure:
		r.Env = resolve(r.Env)
		return r
	case RVContainer, RVFormat, RVRecord:
		return rv
	default:
		panic(fmt.Sprintf("rewriteRValueOperands: unhandled rvalue %T", rv))
	}
}

func rewriteLValueOperands(lv LValue, resolve func(LocalID) LocalID) LValue {
	switch l := lv.(type) {
	case LVParam, LVModule:
		return lv
	case LVClosure:
		l.Env = resolve(l.Env)
		return l
	case LVField:
		l.Object = resolve(l.Object)
		return l
	case LVTupleField:
		l.Object = resolve(l.Object)
		return l
	case LVIndex:
		l.Object = resolve(l.Object)
		l.Index = resolve(l.Index)
		return l
	default:
		panic(fmt.Sprintf("rewriteLValueOperands: unhandled lvalue %T", lv))
	}
}

func rewriteTerminatorOperands(term Terminator, resolve func(LocalID) LocalID) Terminator {
	switch t := term.(type) {
	case TermBranch:
		t.Cond = resolve(t.Cond)
		return t
	case TermReturn:
		t.Value = resolve(t.Value)
		return t
	case TermAssertFail:
		t.Expr = resolve(t.Expr)
		t.Message = resolve(t.Message)
		return t
	default:
		return term
	}
}

// verify checks the function's structural invariants: every block is
// terminated and every phi has one operand per predecessor.
func (f *funcGenerator) verify() error {
	for id := BlockID(0); int(id) < f.fn.BlockCount(); id++ {
		b := f.fn.Block(id)
		if _, unset := b.Terminator().(TermNone); unset {
			return errors.Errorf("ir: block b%d of %s has no terminator", id, f.fn.Name)
		}
		for _, stmt := range b.Stmts() {
			def, ok := stmt.(SDefine)
			if !ok {
				continue
			}
			phi, ok := f.fn.Inst(def.Local).Value.(RVPhi)
			if !ok {
				continue
			}
			if got, want := len(f.fn.Phi(phi.Phi)), len(b.Predecessors()); got != want {
				return errors.Errorf(
					"ir: phi %%%d in b%d of %s has %d operands for %d predecessors",
					def.Local, id, f.fn.Name, got, want)
			}
		}
	}
	return nil
}

// ---- Emission helpers ----

func (f *funcGenerator) emit(stmt IRStmt) {
	f.fn.AppendStmt(f.current, stmt)
}

// define creates an instruction, reusing an earlier pure computation
// from the block's common-subexpression cache where possible.
func (f *funcGenerator) define(rv RValue) LocalID {
	if pureRValue(rv) {
		cache, ok := f.cse[f.current]
		if !ok {
			cache = make(map[RValue]LocalID)
			f.cse[f.current] = cache
		}
		if local, hit := cache[rv]; hit {
			return local
		}
		local := f.fn.NewInst(rv, IRType_Value)
		f.emit(SDefine{Local: local})
		cache[rv] = local
		return local
	}
	local := f.fn.NewInst(rv, IRType_Value)
	f.emit(SDefine{Local: local})
	return local
}

// pureRValue reports whether an rvalue may be deduplicated: constants
// and operators over already-computed operands.
func pureRValue(rv RValue) bool {
	switch rv.(type) {
	case RVConstant, RVUnaryOp, RVBinaryOp:
		return true
	}
	return false
}

// closureLValue builds the lvalue addressing a captured symbol.
func (f *funcGenerator) closureLValue(sym *Symbol) (LValue, bool) {
	start := f.ownEnv
	if start == nil {
		start = f.outerEnv
	}
	if start == nil || f.envHead == InvalidLocal {
		return nil, false
	}
	level, index, ok := start.lookup(sym)
	if !ok {
		return nil, false
	}
	return LVClosure{Env: f.envHead, Level: level, Index: index}, true
}
