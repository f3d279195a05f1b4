package hammer

import (
	"fmt"
	"strings"
)

// Ids into the per-function IR tables.  Back-edges and cross-edges in
// the IR graph are always ids, never pointers.
type (
	BlockID  int32
	LocalID  int32
	PhiID    int32
	ListID   int32
	SchemaID int32
)

const (
	InvalidBlock  BlockID  = -1
	InvalidLocal  LocalID  = -1
	InvalidPhi    PhiID    = -1
	InvalidList   ListID   = -1
	InvalidSchema SchemaID = -1
)

// IRValueType is the cached value category of an instruction.
type IRValueType int

const (
	IRType_None IRValueType = iota
	IRType_Value
	IRType_Never
)

// ---- RValues ----

type ConstantKind int

const (
	Constant_Integer ConstantKind = iota
	Constant_Float
	Constant_String
	Constant_Symbol
	Constant_True
	Constant_False
	Constant_Null
)

// Constant is a comparable value literal.  Comparability matters: the
// common-subexpression cache uses constants (and operations over
// their locals) as map keys.
type Constant struct {
	Kind  ConstantKind
	Int   int64
	Float float64
	Str   string
}

func (c Constant) String() string {
	switch c.Kind {
	case Constant_Integer:
		return fmt.Sprintf("%d", c.Int)
	case Constant_Float:
		return fmt.Sprintf("%g", c.Float)
	case Constant_String:
		return fmt.Sprintf("%q", c.Str)
	case Constant_Symbol:
		return "#" + c.Str
	case Constant_True:
		return "true"
	case Constant_False:
		return "false"
	case Constant_Null:
		return "null"
	}
	return "?"
}

type BinaryOpType int

const (
	IROp_Add BinaryOpType = iota
	IROp_Sub
	IROp_Mul
	IROp_Div
	IROp_Mod
	IROp_Pow
	IROp_Eq
	IROp_NotEq
	IROp_Lt
	IROp_LtEq
	IROp_Gt
	IROp_GtEq
)

var irBinaryOpNames = map[BinaryOpType]string{
	IROp_Add: "add", IROp_Sub: "sub", IROp_Mul: "mul", IROp_Div: "div",
	IROp_Mod: "mod", IROp_Pow: "pow", IROp_Eq: "eq", IROp_NotEq: "neq",
	IROp_Lt: "lt", IROp_LtEq: "lte", IROp_Gt: "gt", IROp_GtEq: "gte",
}

func (op BinaryOpType) String() string { return irBinaryOpNames[op] }

type UnaryOpType int

const (
	IROp_Plus UnaryOpType = iota
	IROp_Minus
	IROp_Not
)

var irUnaryOpNames = map[UnaryOpType]string{
	IROp_Plus: "plus", IROp_Minus: "minus", IROp_Not: "not",
}

func (op UnaryOpType) String() string { return irUnaryOpNames[op] }

type ContainerKind int

const (
	Container_Array ContainerKind = iota
	Container_Tuple
	Container_Set
	Container_Map
)

var containerKindNames = map[ContainerKind]string{
	Container_Array: "array", Container_Tuple: "tuple",
	Container_Set: "set", Container_Map: "map",
}

func (k ContainerKind) String() string { return containerKindNames[k] }

// AggregateMember names one sub-slot of a multi-register aggregate.
type AggregateMember int

const (
	Aggregate_MethodInstance AggregateMember = iota
	Aggregate_MethodFunction
	Aggregate_IteratorNextValid
	Aggregate_IteratorNextValue
)

// MemberIndex returns the register offset of the member inside its
// aggregate's storage.
func (m AggregateMember) MemberIndex() int {
	switch m {
	case Aggregate_MethodInstance, Aggregate_IteratorNextValid:
		return 0
	case Aggregate_MethodFunction, Aggregate_IteratorNextValue:
		return 1
	}
	panic("invalid aggregate member")
}

// RValue is a computation producing (at most) one SSA value.  The set
// of variants is closed; visitRValueUses is the exhaustive visitor.
type RValue interface {
	rvalue()
	String() string
}

type RVUseLValue struct{ LValue LValue }
type RVUseLocal struct{ Local LocalID }
type RVPhi struct{ Phi PhiID }
type RVPhi0 struct{}
type RVConstant struct{ Value Constant }
type RVOuterEnvironment struct{}
type RVBinaryOp struct {
	Op    BinaryOpType
	Left  LocalID
	Right LocalID
}
type RVUnaryOp struct {
	Op      UnaryOpType
	Operand LocalID
}
type RVCall struct {
	Func LocalID
	Args ListID
}

// RVMethodHandle resolves `object.name` into the two-register method
// aggregate (instance, function).
type RVMethodHandle struct {
	Instance LocalID
	Name     InternedString
}

// RVMakeIterator produces an iterator over a container value.
type RVMakeIterator struct{ Container LocalID }

// RVIteratorNext advances an iterator, producing the two-register
// (valid, value) aggregate.
type RVIteratorNext struct{ Iterator LocalID }

// RVGetAggregateMember reads one sub-slot of an aggregate.  It is a
// storage alias, not a copy: register allocation maps it onto the
// aggregate's slots.
type RVGetAggregateMember struct {
	Aggregate LocalID
	Member    AggregateMember
}

type RVMethodCall struct {
	Method LocalID // the method aggregate
	Args   ListID
}

type RVMakeEnvironment struct {
	Parent LocalID
	Size   int
}

type RVMakeClosure struct {
	Env  LocalID
	Func int // module member index of the function template
}

type RVContainer struct {
	Kind ContainerKind
	Args ListID
}

type RVFormat struct{ Args ListID }

type RVRecord struct {
	Schema SchemaID
	Args   ListID
}

func (RVUseLValue) rvalue()         {}
func (RVUseLocal) rvalue()          {}
func (RVPhi) rvalue()               {}
func (RVPhi0) rvalue()              {}
func (RVConstant) rvalue()          {}
func (RVOuterEnvironment) rvalue()  {}
func (RVBinaryOp) rvalue()          {}
func (RVUnaryOp) rvalue()           {}
func (RVCall) rvalue()              {}
func (RVMethodHandle) rvalue()      {}
func (RVMakeIterator) rvalue()      {}
func (RVIteratorNext) rvalue()      {}
func (RVGetAggregateMember) rvalue() {}
func (RVMethodCall) rvalue()        {}
func (RVMakeEnvironment) rvalue()   {}
func (RVMakeClosure) rvalue()       {}
func (RVContainer) rvalue()         {}
func (RVFormat) rvalue()            {}
func (RVRecord) rvalue()            {}

func (r RVUseLValue) String() string { return fmt.Sprintf("use %s", r.LValue) }
func (r RVUseLocal) String() string  { return fmt.Sprintf("use %%%d", r.Local) }
func (r RVPhi) String() string { return fmt.Sprintf("phi@%d", r.Phi) }
func (RVPhi0) String() string              { return "phi0" }
func (r RVConstant) String() string        { return r.Value.String() }
func (RVOuterEnvironment) String() string  { return "outer-env" }
func (r RVBinaryOp) String() string {
	return fmt.Sprintf("%s %%%d %%%d", r.Op, r.Left, r.Right)
}
func (r RVUnaryOp) String() string { return fmt.Sprintf("%s %%%d", r.Op, r.Operand) }
func (r RVCall) String() string    { return fmt.Sprintf("call %%%d list@%d", r.Func, r.Args) }
func (r RVMethodHandle) String() string {
	return fmt.Sprintf("method %%%d .%d", r.Instance, r.Name)
}
func (r RVMakeIterator) String() string { return fmt.Sprintf("iterator %%%d", r.Container) }
func (r RVIteratorNext) String() string { return fmt.Sprintf("iterator-next %%%d", r.Iterator) }
func (r RVGetAggregateMember) String() string {
	return fmt.Sprintf("aggregate-member %%%d [%d]", r.Aggregate, r.Member.MemberIndex())
}
func (r RVMethodCall) String() string {
	return fmt.Sprintf("method-call %%%d list@%d", r.Method, r.Args)
}
func (r RVMakeEnvironment) String() string {
	return fmt.Sprintf("make-env %%%d size=%d", r.Parent, r.Size)
}
func (r RVMakeClosure) String() string {
	return fmt.Sprintf("make-closure %%%d member@%d", r.Env, r.Func)
}
func (r RVContainer) String() string { return fmt.Sprintf("%s list@%d", r.Kind, r.Args) }
func (r RVFormat) String() string    { return fmt.Sprintf("format list@%d", r.Args) }
func (r RVRecord) String() string {
	return fmt.Sprintf("record schema@%d list@%d", r.Schema, r.Args)
}

// ---- LValues ----

// LValue is a place that can be read and written.  All variants are
// comparable value types.
type LValue interface {
	lvalue()
	String() string
}

type LVParam struct{ Index int }
type LVClosure struct {
	Env   LocalID
	Level int
	Index int
}
type LVModule struct{ Member int }
type LVField struct {
	Object LocalID
	Name   InternedString
}
type LVTupleField struct {
	Object LocalID
	Index  int
}
type LVIndex struct {
	Object LocalID
	Index  LocalID
}

func (LVParam) lvalue()      {}
func (LVClosure) lvalue()    {}
func (LVModule) lvalue()     {}
func (LVField) lvalue()      {}
func (LVTupleField) lvalue() {}
func (LVIndex) lvalue()      {}

func (l LVParam) String() string { return fmt.Sprintf("param[%d]", l.Index) }
func (l LVClosure) String() string {
	return fmt.Sprintf("closure %%%d [%d][%d]", l.Env, l.Level, l.Index)
}
func (l LVModule) String() string { return fmt.Sprintf("module[%d]", l.Member) }
func (l LVField) String() string  { return fmt.Sprintf("%%%d .name@%d", l.Object, l.Name) }
func (l LVTupleField) String() string {
	return fmt.Sprintf("%%%d .%d", l.Object, l.Index)
}
func (l LVIndex) String() string { return fmt.Sprintf("%%%d [%%%d]", l.Object, l.Index) }

// ---- Statements ----

type IRStmt interface {
	irStmt()
	String() string
}

// SDefine introduces a new SSA local.
type SDefine struct{ Local LocalID }

// SAssign writes a value to a place.
type SAssign struct {
	Target LValue
	Value  LocalID
}

func (SDefine) irStmt() {}
func (SAssign) irStmt() {}

func (s SDefine) String() string { return fmt.Sprintf("define %%%d", s.Local) }
func (s SAssign) String() string { return fmt.Sprintf("assign %s <- %%%d", s.Target, s.Value) }

// ---- Terminators ----

type BranchKind int

const (
	Branch_IfTrue BranchKind = iota
	Branch_IfFalse
)

func (k BranchKind) String() string {
	if k == Branch_IfTrue {
		return "if-true"
	}
	return "if-false"
}

type Terminator interface {
	terminator()
	String() string
}

type TermNone struct{}
type TermEntry struct{ Target BlockID }
type TermExit struct{}
type TermJump struct{ Target BlockID }
type TermBranch struct {
	Kind  BranchKind
	Cond  LocalID
	True  BlockID
	False BlockID
}
type TermReturn struct {
	Value LocalID
	Exit  BlockID
}
type TermRethrow struct{ Exit BlockID }
type TermAssertFail struct {
	Expr    LocalID
	Message LocalID
	Exit    BlockID
}
type TermNever struct{ Exit BlockID }

func (TermNone) terminator()       {}
func (TermEntry) terminator()      {}
func (TermExit) terminator()       {}
func (TermJump) terminator()       {}
func (TermBranch) terminator()     {}
func (TermReturn) terminator()     {}
func (TermRethrow) terminator()    {}
func (TermAssertFail) terminator() {}
func (TermNever) terminator()      {}

func (TermNone) String() string    { return "none" }
func (t TermEntry) String() string { return fmt.Sprintf("entry -> b%d", t.Target) }
func (TermExit) String() string    { return "exit" }
func (t TermJump) String() string  { return fmt.Sprintf("jump -> b%d", t.Target) }
func (t TermBranch) String() string {
	return fmt.Sprintf("branch %s %%%d -> b%d, b%d", t.Kind, t.Cond, t.True, t.False)
}
func (t TermReturn) String() string { return fmt.Sprintf("return %%%d", t.Value) }
func (TermRethrow) String() string  { return "rethrow" }
func (t TermAssertFail) String() string {
	return fmt.Sprintf("assert-fail %%%d, %%%d", t.Expr, t.Message)
}
func (TermNever) String() string { return "never" }

// terminatorTargets enumerates the successor blocks of a terminator.
func terminatorTargets(t Terminator, fn func(BlockID)) {
	switch term := t.(type) {
	case TermNone, TermExit:
	case TermEntry:
		fn(term.Target)
	case TermJump:
		fn(term.Target)
	case TermBranch:
		fn(term.True)
		fn(term.False)
	case TermReturn:
		fn(term.Exit)
	case TermRethrow:
		fn(term.Exit)
	case TermAssertFail:
		fn(term.Exit)
	case TermNever:
		fn(term.Exit)
	default:
		panic(fmt.Sprintf("terminatorTargets: unhandled terminator %T", t))
	}
}

// ---- Blocks ----

type IRBlock struct {
	Label string

	preds []BlockID
	stmts []IRStmt
	term  Terminator
}

func (b *IRBlock) Predecessors() []BlockID { return b.preds }
func (b *IRBlock) Stmts() []IRStmt         { return b.stmts }
func (b *IRBlock) Terminator() Terminator  { return b.term }

func (b *IRBlock) appendPred(p BlockID) {
	b.preds = append(b.preds, p)
}

// ReplaceStmts swaps the statement list; used by the DCE pass.
func (b *IRBlock) ReplaceStmts(stmts []IRStmt) { b.stmts = stmts }

// ---- Instructions ----

// IRInst is one entry of the instruction table: an rvalue plus its
// cached value type.
type IRInst struct {
	Value RValue
	Type  IRValueType
}

// ---- Functions ----

type FunctionKind int

const (
	Function_Normal FunctionKind = iota
	Function_Closure
)

// IRFunc is one function in SSA form.  Blocks, instructions, phi
// operand lists, local lists and record schemas are id-indexed
// tables; all cross-references go through ids.
type IRFunc struct {
	Name   string
	Kind   FunctionKind
	Params int

	blocks  []*IRBlock
	insts   []IRInst
	phis    [][]LocalID
	lists   [][]LocalID
	schemas [][]string

	Entry BlockID
	Exit  BlockID
}

func NewIRFunc(name string, kind FunctionKind, params int) *IRFunc {
	f := &IRFunc{Name: name, Kind: kind, Params: params}
	f.Entry = f.NewBlock("entry")
	f.Exit = f.NewBlock("exit")
	f.SetTerminator(f.Exit, TermExit{})
	return f
}

func (f *IRFunc) NewBlock(label string) BlockID {
	id := BlockID(len(f.blocks))
	f.blocks = append(f.blocks, &IRBlock{Label: label, term: TermNone{}})
	return id
}

func (f *IRFunc) Block(id BlockID) *IRBlock { return f.blocks[id] }

func (f *IRFunc) BlockCount() int { return len(f.blocks) }

// NewInst appends an instruction and returns its local id.
func (f *IRFunc) NewInst(value RValue, typ IRValueType) LocalID {
	id := LocalID(len(f.insts))
	f.insts = append(f.insts, IRInst{Value: value, Type: typ})
	return id
}

func (f *IRFunc) Inst(id LocalID) *IRInst { return &f.insts[id] }

func (f *IRFunc) InstCount() int { return len(f.insts) }

// NewPhi appends a phi operand list and returns its id.  Incomplete
// phis are created empty and filled when their block is sealed.
func (f *IRFunc) NewPhi(operands []LocalID) PhiID {
	id := PhiID(len(f.phis))
	f.phis = append(f.phis, operands)
	return id
}

func (f *IRFunc) Phi(id PhiID) []LocalID { return f.phis[id] }

func (f *IRFunc) SetPhi(id PhiID, operands []LocalID) { f.phis[id] = operands }

// NewList appends a local list (used for call arguments and container
// elements) and returns its id.
func (f *IRFunc) NewList(locals []LocalID) ListID {
	id := ListID(len(f.lists))
	f.lists = append(f.lists, locals)
	return id
}

func (f *IRFunc) List(id ListID) []LocalID { return f.lists[id] }

// NewSchema appends a record schema (ordered key list).
func (f *IRFunc) NewSchema(keys []string) SchemaID {
	id := SchemaID(len(f.schemas))
	f.schemas = append(f.schemas, keys)
	return id
}

func (f *IRFunc) Schema(id SchemaID) []string { return f.schemas[id] }

func (f *IRFunc) AppendStmt(block BlockID, stmt IRStmt) {
	b := f.blocks[block]
	b.stmts = append(b.stmts, stmt)
}

// SetTerminator installs a block's terminator and registers the block
// as a predecessor of every target.  A block gets exactly one real
// terminator; re-terminating is allowed only over TermNone.
func (f *IRFunc) SetTerminator(block BlockID, term Terminator) {
	b := f.blocks[block]
	if _, unset := b.term.(TermNone); !unset {
		if _, isExit := term.(TermExit); !isExit || block != f.Exit {
			panic("block already has a terminator")
		}
	}
	b.term = term
	terminatorTargets(term, func(target BlockID) {
		f.blocks[target].appendPred(block)
	})
}

// Terminated reports whether a block has a real terminator.
func (f *IRFunc) Terminated(block BlockID) bool {
	_, unset := f.blocks[block].term.(TermNone)
	return !unset
}

// visitRValueUses enumerates the locals an rvalue reads.  The
// exhaustiveness of this switch is the correctness contract for the
// passes built on it.
func (f *IRFunc) visitRValueUses(rv RValue, fn func(LocalID)) {
	switch r := rv.(type) {
	case RVUseLValue:
		visitLValueUses(r.LValue, fn)
	case RVUseLocal:
		fn(r.Local)
	case RVPhi:
		for _, op := range f.phis[r.Phi] {
			fn(op)
		}
	case RVPhi0, RVConstant, RVOuterEnvironment:
	case RVBinaryOp:
		fn(r.Left)
		fn(r.Right)
	case RVUnaryOp:
		fn(r.Operand)
	case RVCall:
		fn(r.Func)
		f.visitList(r.Args, fn)
	case RVMethodHandle:
		fn(r.Instance)
	case RVMakeIterator:
		fn(r.Container)
	case RVIteratorNext:
		fn(r.Iterator)
	case RVGetAggregateMember:
		fn(r.Aggregate)
	case RVMethodCall:
		fn(r.Method)
		f.visitList(r.Args, fn)
	case RVMakeEnvironment:
		fn(r.Parent)
	case RVMakeClosure:
		fn(r.Env)
	case RVContainer:
		f.visitList(r.Args, fn)
	case RVFormat:
		f.visitList(r.Args, fn)
	case RVRecord:
		f.visitList(r.Args, fn)
	default:
		panic(fmt.Sprintf("visitRValueUses: unhandled rvalue %T", rv))
	}
}

func (f *IRFunc) visitList(list ListID, fn func(LocalID)) {
	if list == InvalidList {
		return
	}
	for _, local := range f.lists[list] {
		fn(local)
	}
}

func visitLValueUses(lv LValue, fn func(LocalID)) {
	switch l := lv.(type) {
	case LVParam, LVModule:
	case LVClosure:
		fn(l.Env)
	case LVField:
		fn(l.Object)
	case LVTupleField:
		fn(l.Object)
	case LVIndex:
		fn(l.Object)
		fn(l.Index)
	default:
		panic(fmt.Sprintf("visitLValueUses: unhandled lvalue %T", lv))
	}
}

// visitStmtUses enumerates the locals a statement reads.  For a
// Define, these are the uses of its rvalue.
func (f *IRFunc) visitStmtUses(stmt IRStmt, fn func(LocalID)) {
	switch s := stmt.(type) {
	case SDefine:
		f.visitRValueUses(f.insts[s.Local].Value, fn)
	case SAssign:
		visitLValueUses(s.Target, fn)
		fn(s.Value)
	default:
		panic(fmt.Sprintf("visitStmtUses: unhandled statement %T", stmt))
	}
}

// visitTerminatorUses enumerates the locals a terminator reads.
func visitTerminatorUses(term Terminator, fn func(LocalID)) {
	switch t := term.(type) {
	case TermNone, TermEntry, TermExit, TermJump, TermRethrow, TermNever:
	case TermBranch:
		fn(t.Cond)
	case TermReturn:
		fn(t.Value)
	case TermAssertFail:
		fn(t.Expr)
		fn(t.Message)
	default:
		panic(fmt.Sprintf("visitTerminatorUses: unhandled terminator %T", term))
	}
}

// ReversePostorder returns the block ids reachable from entry, in
// reverse postorder.  Codegen emits blocks in this order.
func (f *IRFunc) ReversePostorder() []BlockID {
	visited := make([]bool, len(f.blocks))
	var order []BlockID
	var visit func(BlockID)
	visit = func(id BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		terminatorTargets(f.blocks[id].term, visit)
		order = append(order, id)
	}
	visit(f.Entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// String renders the function in a compact textual form, one block
// per paragraph.
func (f *IRFunc) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "func %s (params=%d)\n", f.Name, f.Params)
	for id, b := range f.blocks {
		fmt.Fprintf(&s, "b%d: %s", id, b.Label)
		if len(b.preds) > 0 {
			parts := make([]string, len(b.preds))
			for i, p := range b.preds {
				parts[i] = fmt.Sprintf("b%d", p)
			}
			fmt.Fprintf(&s, " <- %s", strings.Join(parts, ", "))
		}
		s.WriteString("\n")
		for _, stmt := range b.stmts {
			if def, ok := stmt.(SDefine); ok {
				value := f.insts[def.Local].Value
				if phi, isPhi := value.(RVPhi); isPhi {
					parts := make([]string, len(f.phis[phi.Phi]))
					for i, op := range f.phis[phi.Phi] {
						parts[i] = fmt.Sprintf("%%%d", op)
					}
					fmt.Fprintf(&s, "  %%%d = phi(%s)\n", def.Local, strings.Join(parts, ", "))
					continue
				}
				fmt.Fprintf(&s, "  %%%d = %s\n", def.Local, value)
				continue
			}
			fmt.Fprintf(&s, "  %s\n", stmt)
		}
		fmt.Fprintf(&s, "  %s\n", b.term)
	}
	return s.String()
}

// ---- Module ----

type IRMemberKind int

const (
	IRMember_Import IRMemberKind = iota
	IRMember_Variable
	IRMember_Function
)

// IRModuleMember is one entry of the module's member table.
type IRModuleMember struct {
	Kind IRMemberKind
	Name string

	// Func indexes the module's function table for
	// IRMember_Function entries.
	Func int
}

// IRModule is the IR-level result of compiling one file.
type IRModule struct {
	Name      string
	Members   []IRModuleMember
	Functions []*IRFunc

	// InitMember is the member index of the module initializer
	// function, or -1.
	InitMember int

	// Exports maps exported names to member indices, in
	// declaration order.
	Exports []IRExport
}

type IRExport struct {
	Name   string
	Member int
}

func NewIRModule(name string) *IRModule {
	return &IRModule{Name: name, InitMember: -1}
}

func (m *IRModule) AddMember(member IRModuleMember) int {
	m.Members = append(m.Members, member)
	return len(m.Members) - 1
}

func (m *IRModule) AddFunction(f *IRFunc) int {
	m.Functions = append(m.Functions, f)
	index := len(m.Functions) - 1
	return m.AddMember(IRModuleMember{Kind: IRMember_Function, Name: f.Name, Func: index})
}
