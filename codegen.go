package hammer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// GenerateBytecode compiles an IR module into a link object.  Every
// IR function becomes one LinkFunction (same order as the IR function
// table); module-level references become Use members, constants and
// record schemas become deduplicated Definitions.
func GenerateBytecode(module *IRModule, strings *StringTable, config *Config) (*LinkObject, error) {
	if config == nil {
		config = NewConfig()
	}
	lo := NewLinkObject(module.Name)

	// Function table first so Use members resolve by position.
	for _, fn := range module.Functions {
		lo.AddFunction(&LinkFunction{Name: fn.Name, Params: fn.Params})
	}

	for i, fn := range module.Functions {
		cg := &codegenFunc{
			irModule: module,
			fn:       fn,
			lo:       lo,
			strings:  strings,
			config:   config,
			out:      lo.Functions[i],
		}
		if err := cg.run(); err != nil {
			return nil, errors.Wrapf(err, "codegen of %s", fn.Name)
		}
	}

	if module.InitMember >= 0 {
		lo.InitMember = lo.UseMember(module.InitMember)
	}
	for _, exp := range module.Exports {
		symbol := lo.DefineMember(BytecodeMember{Kind: Member_Symbol, Str: exp.Name})
		member := lo.UseMember(exp.Member)
		lo.Exports = append(lo.Exports, LinkExport{Symbol: symbol, Member: member})
	}
	return lo, nil
}

type regCopy struct {
	src uint32
	dst uint32
}

type codegenFunc struct {
	irModule *IRModule
	fn       *IRFunc
	lo       *LinkObject
	strings  *StringTable
	config   *Config
	out      *LinkFunction

	liveness *Liveness
	order    []BlockID

	regOf     map[LocalID]uint32
	regRanges [][]*LiveRange
	scratch   uint32
	hasScratch bool

	code   []byte
	labels map[BlockID]int
	fixups []LabelFixup
}

func (c *codegenFunc) run() error {
	if c.config == nil || c.config.Optimize {
		DeadCodeElimination(c.fn)
	}
	c.liveness = ComputeLiveness(c.fn)
	c.order = c.fn.ReversePostorder()

	c.allocateRegisters()

	c.labels = make(map[BlockID]int)
	for _, id := range c.order {
		if id == c.fn.Exit {
			continue
		}
		if err := c.emitBlock(id); err != nil {
			return err
		}
	}
	c.patchFixups()
	if c.config != nil && len(c.regRanges) > c.config.MaxRegisters {
		return errors.Errorf("%s needs %d registers, limit is %d",
			c.fn.Name, len(c.regRanges), c.config.MaxRegisters)
	}

	c.out.Code = c.code
	c.out.Locals = len(c.regRanges)
	c.out.Fixups = c.fixups
	c.out.Labels = c.labels
	return nil
}

// ---- Register allocation ----

func (c *codegenFunc) allocateRegisters() {
	c.regOf = make(map[LocalID]uint32)

	for _, id := range c.order {
		for _, stmt := range c.fn.Block(id).Stmts() {
			def, ok := stmt.(SDefine)
			if !ok {
				continue
			}
			local := def.Local
			rng := c.liveness.Range(local)
			if rng == nil {
				continue
			}

			switch rv := c.fn.Inst(local).Value.(type) {
			case RVGetAggregateMember:
				// Storage alias: the matching sub-register of
				// the aggregate, no new slot.
				base, ok := c.regOf[rv.Aggregate]
				if !ok {
					panic(fmt.Sprintf("aggregate %%%d allocated after its member", rv.Aggregate))
				}
				reg := base + uint32(rv.Member.MemberIndex())
				c.regOf[local] = reg
				c.regRanges[reg] = append(c.regRanges[reg], rng)

			case RVMethodHandle, RVIteratorNext:
				// Two-register aggregate: adjacent slots.
				reg := c.findPair(rng)
				c.regOf[local] = reg
				c.regRanges[reg] = append(c.regRanges[reg], rng)
				c.regRanges[reg+1] = append(c.regRanges[reg+1], rng)

			default:
				reg := c.findSingle(rng)
				c.regOf[local] = reg
				c.regRanges[reg] = append(c.regRanges[reg], rng)
			}
		}
	}
}

func (c *codegenFunc) fits(reg uint32, rng *LiveRange) bool {
	for _, assigned := range c.regRanges[reg] {
		if assigned.Overlaps(rng) {
			return false
		}
	}
	return true
}

// findSingle reuses the first register whose assigned ranges do not
// overlap the new one, appending a fresh register otherwise.
func (c *codegenFunc) findSingle(rng *LiveRange) uint32 {
	for reg := range c.regRanges {
		if c.fits(uint32(reg), rng) {
			return uint32(reg)
		}
	}
	c.regRanges = append(c.regRanges, nil)
	return uint32(len(c.regRanges) - 1)
}

// findPair finds two adjacent compatible registers for an aggregate.
func (c *codegenFunc) findPair(rng *LiveRange) uint32 {
	for reg := 0; reg+1 < len(c.regRanges); reg++ {
		if c.fits(uint32(reg), rng) && c.fits(uint32(reg+1), rng) {
			return uint32(reg)
		}
	}
	c.regRanges = append(c.regRanges, nil, nil)
	return uint32(len(c.regRanges) - 2)
}

// scratchReg reserves the dedicated register used to break copy
// cycles.
func (c *codegenFunc) scratchReg() uint32 {
	if !c.hasScratch {
		c.regRanges = append(c.regRanges, nil)
		c.scratch = uint32(len(c.regRanges) - 1)
		c.hasScratch = true
	}
	return c.scratch
}

// ---- Emission ----

func (c *codegenFunc) emitBlock(id BlockID) error {
	c.labels[id] = len(c.code)
	b := c.fn.Block(id)

	for _, stmt := range b.Stmts() {
		switch s := stmt.(type) {
		case SDefine:
			if err := c.emitDefine(s.Local); err != nil {
				return err
			}
		case SAssign:
			c.emitAssign(s)
		}
	}
	return c.emitTerminator(id, b.Terminator())
}

func (c *codegenFunc) op(op Opcode) { c.code = append(c.code, byte(op)) }

func (c *codegenFunc) opU32(op Opcode, v uint32) {
	c.code = append(c.code, byte(op))
	c.code = encodeU32(c.code, v)
}

func (c *codegenFunc) opU32x2(op Opcode, a, b uint32) {
	c.code = append(c.code, byte(op))
	c.code = encodeU32(c.code, a)
	c.code = encodeU32(c.code, b)
}

func (c *codegenFunc) pushLocal(local LocalID) {
	c.opU32(OpLoadLocal, c.reg(local))
}

func (c *codegenFunc) popToLocal(local LocalID) {
	c.opU32(OpStoreLocal, c.reg(local))
}

func (c *codegenFunc) reg(local LocalID) uint32 {
	reg, ok := c.regOf[local]
	if !ok {
		panic(fmt.Sprintf("local %%%d has no register", local))
	}
	return reg
}

func (c *codegenFunc) emitJump(op Opcode, target BlockID) {
	c.code = append(c.code, byte(op))
	c.fixups = append(c.fixups, LabelFixup{Label: target, Offset: len(c.code)})
	c.code = encodeU32(c.code, math.MaxUint32)
}

func (c *codegenFunc) patchFixups() {
	for _, f := range c.fixups {
		target, ok := c.labels[f.Label]
		if !ok {
			panic(fmt.Sprintf("fixup references unemitted block b%d", f.Label))
		}
		writeU32(c.code[f.Offset:], uint32(target))
	}
}

func (c *codegenFunc) nameMember(name InternedString) int {
	return c.lo.DefineMember(BytecodeMember{Kind: Member_Symbol, Str: c.strings.Value(name)})
}

func (c *codegenFunc) emitDefine(local LocalID) error {
	rv := c.fn.Inst(local).Value

	switch r := rv.(type) {
	case RVPhi:
		// Materialized as register copies in the predecessors.
		return nil

	case RVPhi0:
		c.op(OpLoadNull)
		c.popToLocal(local)

	case RVConstant:
		c.emitConstant(r.Value)
		c.popToLocal(local)

	case RVUseLocal:
		c.pushLocal(r.Local)
		c.popToLocal(local)

	case RVUseLValue:
		c.emitLoadLValue(r.LValue)
		c.popToLocal(local)

	case RVOuterEnvironment:
		c.op(OpLoadClosure)
		c.popToLocal(local)

	case RVBinaryOp:
		c.pushLocal(r.Left)
		c.pushLocal(r.Right)
		c.op(map[BinaryOpType]Opcode{
			IROp_Add: OpAdd, IROp_Sub: OpSub, IROp_Mul: OpMul,
			IROp_Div: OpDiv, IROp_Mod: OpMod, IROp_Pow: OpPow,
			IROp_Eq: OpEq, IROp_NotEq: OpNEq, IROp_Lt: OpLt,
			IROp_LtEq: OpLte, IROp_Gt: OpGt, IROp_GtEq: OpGte,
		}[r.Op])
		c.popToLocal(local)

	case RVUnaryOp:
		c.pushLocal(r.Operand)
		c.op(map[UnaryOpType]Opcode{
			IROp_Plus: OpUPos, IROp_Minus: OpUNeg, IROp_Not: OpLNot,
		}[r.Op])
		c.popToLocal(local)

	case RVCall:
		c.pushLocal(r.Func)
		args := c.fn.List(r.Args)
		for _, a := range args {
			c.pushLocal(a)
		}
		c.opU32(OpCall, uint32(len(args)))
		c.popToLocal(local)

	case RVMethodHandle:
		// Pushes the resolved function, then the instance (or
		// null); the stores land them in the aggregate's two
		// adjacent registers.
		c.pushLocal(r.Instance)
		c.opU32(OpLoadMethod, uint32(c.nameMember(r.Name)))
		c.opU32(OpStoreLocal, c.reg(local)+uint32(Aggregate_MethodInstance.MemberIndex()))
		c.opU32(OpStoreLocal, c.reg(local)+uint32(Aggregate_MethodFunction.MemberIndex()))

	case RVMethodCall:
		fnReg := c.reg(r.Method) + uint32(Aggregate_MethodFunction.MemberIndex())
		instReg := c.reg(r.Method) + uint32(Aggregate_MethodInstance.MemberIndex())
		c.opU32(OpLoadLocal, fnReg)
		c.opU32(OpLoadLocal, instReg)
		args := c.fn.List(r.Args)
		for _, a := range args {
			c.pushLocal(a)
		}
		c.opU32(OpCallMethod, uint32(len(args)))
		c.popToLocal(local)

	case RVMakeIterator:
		c.pushLocal(r.Container)
		c.op(OpIterator)
		c.popToLocal(local)

	case RVIteratorNext:
		c.pushLocal(r.Iterator)
		c.op(OpIteratorNext)
		c.opU32(OpStoreLocal, c.reg(local)+uint32(Aggregate_IteratorNextValid.MemberIndex()))
		c.opU32(OpStoreLocal, c.reg(local)+uint32(Aggregate_IteratorNextValue.MemberIndex()))

	case RVGetAggregateMember:
		// Pure storage alias, no code.
		return nil

	case RVMakeEnvironment:
		c.pushLocal(r.Parent)
		c.opU32(OpEnv, uint32(r.Size))
		c.popToLocal(local)

	case RVMakeClosure:
		c.pushLocal(r.Env)
		c.opU32(OpLoadModule, uint32(c.lo.UseMember(r.Func)))
		c.op(OpClosure)
		c.popToLocal(local)

	case RVContainer:
		args := c.fn.List(r.Args)
		for _, a := range args {
			c.pushLocal(a)
		}
		count := uint32(len(args))
		switch r.Kind {
		case Container_Array:
			c.opU32(OpArray, count)
		case Container_Tuple:
			c.opU32(OpTuple, count)
		case Container_Set:
			c.opU32(OpSet, count)
		case Container_Map:
			c.opU32(OpMap, count/2)
		}
		c.popToLocal(local)

	case RVFormat:
		c.op(OpFormatter)
		for _, a := range c.fn.List(r.Args) {
			c.pushLocal(a)
			c.op(OpAppendFormat)
		}
		c.op(OpFormatResult)
		c.popToLocal(local)

	case RVRecord:
		keys := c.fn.Schema(r.Schema)
		schemaIdx := c.lo.AddSchema(append([]string(nil), keys...))
		member := c.lo.DefineMember(BytecodeMember{Kind: Member_RecordSchema, Index: schemaIdx})
		for _, a := range c.fn.List(r.Args) {
			c.pushLocal(a)
		}
		c.opU32(OpRecord, uint32(member))
		c.popToLocal(local)

	default:
		return errors.Errorf("cannot emit rvalue %T", rv)
	}
	return nil
}

func (c *codegenFunc) emitConstant(k Constant) {
	switch k.Kind {
	case Constant_Null:
		c.op(OpLoadNull)
	case Constant_True:
		c.op(OpLoadTrue)
	case Constant_False:
		c.op(OpLoadFalse)
	case Constant_Integer:
		c.code = append(c.code, byte(OpLoadInt))
		c.code = encodeU64(c.code, uint64(k.Int))
	case Constant_Float:
		c.code = append(c.code, byte(OpLoadFloat))
		c.code = encodeU64(c.code, math.Float64bits(k.Float))
	case Constant_String:
		member := c.lo.DefineMember(BytecodeMember{Kind: Member_String, Str: k.Str})
		c.opU32(OpLoadModule, uint32(member))
	case Constant_Symbol:
		member := c.lo.DefineMember(BytecodeMember{Kind: Member_Symbol, Str: k.Str})
		c.opU32(OpLoadModule, uint32(member))
	}
}

func (c *codegenFunc) emitLoadLValue(lv LValue) {
	switch l := lv.(type) {
	case LVParam:
		c.opU32(OpLoadParam, uint32(l.Index))
	case LVClosure:
		c.pushLocal(l.Env)
		c.opU32x2(OpLoadEnv, uint32(l.Level), uint32(l.Index))
	case LVModule:
		c.opU32(OpLoadModule, uint32(c.lo.UseMember(l.Member)))
	case LVField:
		c.pushLocal(l.Object)
		c.opU32(OpLoadMember, uint32(c.nameMember(l.Name)))
	case LVTupleField:
		c.pushLocal(l.Object)
		c.opU32(OpLoadTupleMember, uint32(l.Index))
	case LVIndex:
		c.pushLocal(l.Object)
		c.pushLocal(l.Index)
		c.op(OpLoadIndex)
	}
}

func (c *codegenFunc) emitAssign(s SAssign) {
	switch l := s.Target.(type) {
	case LVParam:
		c.pushLocal(s.Value)
		c.opU32(OpStoreParam, uint32(l.Index))
	case LVClosure:
		c.pushLocal(s.Value)
		c.pushLocal(l.Env)
		c.opU32x2(OpStoreEnv, uint32(l.Level), uint32(l.Index))
	case LVModule:
		c.pushLocal(s.Value)
		c.opU32(OpStoreModule, uint32(c.lo.UseMember(l.Member)))
	case LVField:
		c.pushLocal(l.Object)
		c.pushLocal(s.Value)
		c.opU32(OpStoreMember, uint32(c.nameMember(l.Name)))
	case LVTupleField:
		c.pushLocal(l.Object)
		c.pushLocal(s.Value)
		c.opU32(OpStoreTupleMember, uint32(l.Index))
	case LVIndex:
		c.pushLocal(l.Object)
		c.pushLocal(l.Index)
		c.pushLocal(s.Value)
		c.op(OpStoreIndex)
	}
}

// phiCopies collects the register copies required on the edge from
// pred to succ, one per phi at succ's head.
func (c *codegenFunc) phiCopies(pred, succ BlockID) []regCopy {
	b := c.fn.Block(succ)
	predIndex := -1
	for i, p := range b.Predecessors() {
		if p == pred {
			predIndex = i
			break
		}
	}
	if predIndex < 0 {
		return nil
	}

	var copies []regCopy
	for _, stmt := range b.Stmts() {
		def, ok := stmt.(SDefine)
		if !ok {
			continue
		}
		phi, ok := c.fn.Inst(def.Local).Value.(RVPhi)
		if !ok {
			continue
		}
		src := c.reg(c.fn.Phi(phi.Phi)[predIndex])
		dst := c.reg(def.Local)
		if src != dst {
			copies = append(copies, regCopy{src: src, dst: dst})
		}
	}
	return copies
}

// emitCopies sequences parallel copies into serial ones, breaking
// swap cycles through the scratch register.
func (c *codegenFunc) emitCopies(copies []regCopy) {
	pending := append([]regCopy(nil), copies...)
	for len(pending) > 0 {
		emitted := false
		for i, cp := range pending {
			blocked := false
			for j, other := range pending {
				if i != j && other.src == cp.dst {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			c.opU32(OpLoadLocal, cp.src)
			c.opU32(OpStoreLocal, cp.dst)
			pending = append(pending[:i], pending[i+1:]...)
			emitted = true
			break
		}
		if emitted {
			continue
		}
		// Every pending destination is also a pending source: a
		// cycle.  Park one source in the scratch register.
		scratch := c.scratchReg()
		first := pending[0]
		c.opU32(OpLoadLocal, first.src)
		c.opU32(OpStoreLocal, scratch)
		for i := range pending {
			if pending[i].src == first.src {
				pending[i].src = scratch
			}
		}
		pending[0] = regCopy{src: scratch, dst: first.dst}
	}
}

func (c *codegenFunc) emitTerminator(block BlockID, term Terminator) error {
	switch t := term.(type) {
	case TermEntry:
		c.emitCopies(c.phiCopies(block, t.Target))
		c.emitJump(OpJmp, t.Target)

	case TermJump:
		c.emitCopies(c.phiCopies(block, t.Target))
		c.emitJump(OpJmp, t.Target)

	case TermBranch:
		// Structured lowering guarantees at most one successor
		// of a branch carries phis, so the copies cannot clash.
		c.emitCopies(c.phiCopies(block, t.True))
		c.emitCopies(c.phiCopies(block, t.False))
		c.pushLocal(t.Cond)
		if t.Kind == Branch_IfTrue {
			c.emitJump(OpJmpTrue, t.True)
		} else {
			c.emitJump(OpJmpFalse, t.True)
		}
		c.emitJump(OpJmp, t.False)

	case TermReturn:
		c.pushLocal(t.Value)
		c.op(OpReturn)

	case TermAssertFail:
		c.pushLocal(t.Expr)
		c.pushLocal(t.Message)
		c.op(OpAssertFail)

	case TermNever:
		// Unreachable; nothing to execute.

	case TermExit:

	default:
		return errors.Errorf("cannot emit terminator %T", term)
	}
	return nil
}
