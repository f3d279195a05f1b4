package hammer

import "encoding/binary"

// Opcode is one VM instruction byte.  Register operands are 32-bit
// little-endian, jump offsets are 32-bit byte offsets into the
// function's code, immediates are little-endian two's complement
// (integers) or IEEE 754 binary64 (floats).
type Opcode byte

// NOTE: changing the order of these variants will break bytecode ABI
const (
	OpLoadNull Opcode = iota
	OpLoadFalse
	OpLoadTrue
	OpLoadInt         // i64 immediate
	OpLoadFloat       // f64 immediate
	OpLoadParam       // u32 parameter index
	OpLoadLocal       // u32 register
	OpLoadModule      // u32 member index
	OpLoadMember      // u32 member index of the name symbol
	OpLoadTupleMember // u32 tuple index
	OpLoadIndex
	OpLoadClosure
	OpLoadEnv    // u32 level, u32 slot
	OpLoadMethod // u32 member index of the name symbol

	OpStoreParam       // u32 parameter index
	OpStoreLocal       // u32 register
	OpStoreModule      // u32 member index
	OpStoreMember      // u32 member index of the name symbol
	OpStoreTupleMember // u32 tuple index
	OpStoreIndex
	OpStoreEnv // u32 level, u32 slot

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUPos
	OpUNeg
	OpLNot

	OpGt
	OpGte
	OpLt
	OpLte
	OpEq
	OpNEq

	OpCopy
	OpSwap
	OpPop
	OpPopTo // u32 register

	OpArray     // u32 element count
	OpTuple     // u32 element count
	OpSet       // u32 element count
	OpMap       // u32 pair count
	OpEnv       // u32 slot count
	OpClosure
	OpRecord // u32 member index of the schema
	OpIterator
	OpIteratorNext

	OpFormatter
	OpAppendFormat
	OpFormatResult

	OpJmp      // u32 byte offset
	OpJmpTrue  // u32 byte offset
	OpJmpFalse // u32 byte offset
	OpCall     // u32 argument count
	OpCallMethod // u32 argument count
	OpReturn
	OpAssertFail
)

var opcodeNames = map[Opcode]string{
	OpLoadNull:         "load_null",
	OpLoadFalse:        "load_false",
	OpLoadTrue:         "load_true",
	OpLoadInt:          "load_int",
	OpLoadFloat:        "load_float",
	OpLoadParam:        "load_param",
	OpLoadLocal:        "load_local",
	OpLoadModule:       "load_module",
	OpLoadMember:       "load_member",
	OpLoadTupleMember:  "load_tuple_member",
	OpLoadIndex:        "load_index",
	OpLoadClosure:      "load_closure",
	OpLoadEnv:          "load_env",
	OpLoadMethod:       "load_method",
	OpStoreParam:       "store_param",
	OpStoreLocal:       "store_local",
	OpStoreModule:      "store_module",
	OpStoreMember:      "store_member",
	OpStoreTupleMember: "store_tuple_member",
	OpStoreIndex:       "store_index",
	OpStoreEnv:         "store_env",
	OpAdd:              "add",
	OpSub:              "sub",
	OpMul:              "mul",
	OpDiv:              "div",
	OpMod:              "mod",
	OpPow:              "pow",
	OpUPos:             "upos",
	OpUNeg:             "uneg",
	OpLNot:             "lnot",
	OpGt:               "gt",
	OpGte:              "gte",
	OpLt:               "lt",
	OpLte:              "lte",
	OpEq:               "eq",
	OpNEq:              "neq",
	OpCopy:             "copy",
	OpSwap:             "swap",
	OpPop:              "pop",
	OpPopTo:            "pop_to",
	OpArray:            "array",
	OpTuple:            "tuple",
	OpSet:              "set",
	OpMap:              "map",
	OpEnv:              "env",
	OpClosure:          "closure",
	OpRecord:           "record",
	OpIterator:         "iterator",
	OpIteratorNext:     "iterator_next",
	OpFormatter:        "formatter",
	OpAppendFormat:     "append_format",
	OpFormatResult:     "format_result",
	OpJmp:              "jmp",
	OpJmpTrue:          "jmp_true",
	OpJmpFalse:         "jmp_false",
	OpCall:             "call",
	OpCallMethod:       "call_method",
	OpReturn:           "return",
	OpAssertFail:       "assert_fail",
}

func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "invalid"
}

// opcodeOperands maps each opcode to the widths of its operands, in
// order.  The disassembler and the program counter both derive
// instruction sizes from this table.
var opcodeOperands = map[Opcode][]int{
	OpLoadInt:          {8},
	OpLoadFloat:        {8},
	OpLoadParam:        {4},
	OpLoadLocal:        {4},
	OpLoadModule:       {4},
	OpLoadMember:       {4},
	OpLoadTupleMember:  {4},
	OpLoadEnv:          {4, 4},
	OpLoadMethod:       {4},
	OpStoreParam:       {4},
	OpStoreLocal:       {4},
	OpStoreModule:      {4},
	OpStoreMember:      {4},
	OpStoreTupleMember: {4},
	OpStoreEnv:         {4, 4},
	OpPopTo:            {4},
	OpArray:            {4},
	OpTuple:            {4},
	OpSet:              {4},
	OpMap:              {4},
	OpEnv:              {4},
	OpRecord:           {4},
	OpJmp:              {4},
	OpJmpTrue:          {4},
	OpJmpFalse:         {4},
	OpCall:             {4},
	OpCallMethod:       {4},
}

// SizeInBytes returns the encoded size of the instruction starting
// with this opcode.
func (op Opcode) SizeInBytes() int {
	size := 1
	for _, w := range opcodeOperands[op] {
		size += w
	}
	return size
}

var (
	decodeU32 = binary.LittleEndian.Uint32
	decodeU64 = binary.LittleEndian.Uint64
	encodeU32 = binary.LittleEndian.AppendUint32
	encodeU64 = binary.LittleEndian.AppendUint64
	writeU32  = binary.LittleEndian.PutUint32
)
