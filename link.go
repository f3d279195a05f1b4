package hammer

import "fmt"

// BytecodeMemberKind enumerates the concrete member definitions a
// compiled module can hold.
type BytecodeMemberKind int

const (
	Member_Integer BytecodeMemberKind = iota
	Member_Float
	Member_String
	Member_Symbol
	Member_Import
	Member_Variable
	Member_Function
	Member_RecordSchema
)

var bytecodeMemberNames = map[BytecodeMemberKind]string{
	Member_Integer:      "integer",
	Member_Float:        "float",
	Member_String:       "string",
	Member_Symbol:       "symbol",
	Member_Import:       "import",
	Member_Variable:     "variable",
	Member_Function:     "function",
	Member_RecordSchema: "record_schema",
}

func (k BytecodeMemberKind) String() string { return bytecodeMemberNames[k] }

// BytecodeMember is one concrete member definition.  It is a
// comparable value so the link object can deduplicate members.
type BytecodeMember struct {
	Kind BytecodeMemberKind

	Int   int64
	Float float64
	Str   string // string/symbol content, import or variable name

	// Index points into the link object's function table
	// (Member_Function) or schema table (Member_RecordSchema).
	Index int
}

func (m BytecodeMember) String() string {
	switch m.Kind {
	case Member_Integer:
		return fmt.Sprintf("integer %d", m.Int)
	case Member_Float:
		return fmt.Sprintf("float %g", m.Float)
	case Member_String:
		return fmt.Sprintf("string %q", m.Str)
	case Member_Symbol:
		return fmt.Sprintf("symbol #%s", m.Str)
	case Member_Import:
		return fmt.Sprintf("import %s", m.Str)
	case Member_Variable:
		return fmt.Sprintf("variable %s", m.Str)
	case Member_Function:
		return fmt.Sprintf("function @%d", m.Index)
	case Member_RecordSchema:
		return fmt.Sprintf("record_schema @%d", m.Index)
	}
	return "?"
}

// LinkMember is one entry of the link object's member vector: either
// a symbolic Use of an ir-module-member (resolved at link time) or a
// concrete Definition.
type LinkMember struct {
	// IRMember is >= 0 for a Use, referring to the IR module's
	// member table.
	IRMember int

	// Def holds the definition when IRMember < 0.
	Def BytecodeMember
}

func (m LinkMember) IsUse() bool { return m.IRMember >= 0 }

func (m LinkMember) String() string {
	if m.IsUse() {
		return fmt.Sprintf("use ir-member@%d", m.IRMember)
	}
	return m.Def.String()
}

// LabelFixup maps a block label to the byte offset of the 32-bit
// placeholder that must be patched with the label's final position.
type LabelFixup struct {
	Label  BlockID
	Offset int
}

// LinkFunction is one compiled function before linking.
type LinkFunction struct {
	Name     string
	Params   int
	Locals   int
	Variadic bool
	Code     []byte

	// Fixups records every placeholder that was patched and the
	// label it refers to; kept after patching for diagnostics and
	// tests.
	Fixups []LabelFixup

	// Labels maps each emitted block to its byte offset.
	Labels map[BlockID]int
}

// LinkExport is one (symbol, member) export pair.
type LinkExport struct {
	// Symbol is the member index of the exported name's symbol.
	Symbol int

	// Member is the member index of the exported definition.
	Member int
}

// LinkObject is the pre-link container produced by the bytecode
// generator: deduplicated members, compiled functions, record schema
// key lists and the export table.
type LinkObject struct {
	ModuleName string

	Members   []LinkMember
	Functions []*LinkFunction
	Schemas   [][]string
	Exports   []LinkExport

	// InitMember is the member index of the module initializer
	// function, or -1.
	InitMember int

	defIndex map[BytecodeMember]int
	useIndex map[int]int
}

func NewLinkObject(moduleName string) *LinkObject {
	return &LinkObject{
		ModuleName: moduleName,
		InitMember: -1,
		defIndex:   make(map[BytecodeMember]int),
		useIndex:   make(map[int]int),
	}
}

// UseMember interns a symbolic reference to an IR module member.
func (lo *LinkObject) UseMember(irMember int) int {
	if idx, ok := lo.useIndex[irMember]; ok {
		return idx
	}
	idx := len(lo.Members)
	lo.Members = append(lo.Members, LinkMember{IRMember: irMember})
	lo.useIndex[irMember] = idx
	return idx
}

// DefineMember interns a concrete member definition.
func (lo *LinkObject) DefineMember(def BytecodeMember) int {
	if idx, ok := lo.defIndex[def]; ok {
		return idx
	}
	idx := len(lo.Members)
	lo.Members = append(lo.Members, LinkMember{IRMember: -1, Def: def})
	lo.defIndex[def] = idx
	return idx
}

// AddFunction appends a compiled function and returns its index in
// the function table.
func (lo *LinkObject) AddFunction(fn *LinkFunction) int {
	lo.Functions = append(lo.Functions, fn)
	return len(lo.Functions) - 1
}

// AddSchema appends a record schema key list and returns its index.
func (lo *LinkObject) AddSchema(keys []string) int {
	lo.Schemas = append(lo.Schemas, keys)
	return len(lo.Schemas) - 1
}
