package hammer

import "fmt"

type SymbolKind int

const (
	Symbol_Import SymbolKind = iota
	Symbol_Function
	Symbol_Parameter
	Symbol_Variable
	Symbol_Type
)

var symbolKindNames = map[SymbolKind]string{
	Symbol_Import:    "import",
	Symbol_Function:  "function",
	Symbol_Parameter: "parameter",
	Symbol_Variable:  "variable",
	Symbol_Type:      "type",
}

func (k SymbolKind) String() string { return symbolKindNames[k] }

// Symbol is one declared name.
type Symbol struct {
	// Node is the id of the declaring AST node.
	Node NodeID
	Kind SymbolKind
	Name InternedString

	// IsConst marks symbols that may not be assigned after their
	// binding.
	IsConst bool

	// Captured is set when a nested function references the
	// symbol; captured symbols live in a closure environment
	// instead of a stack slot.
	Captured bool

	// Active is set once resolution passes the symbol's
	// definition site.  References to inactive symbols within the
	// same function are use-before-init errors.
	Active bool

	// Exported marks file-scope symbols listed in the module's
	// export table.
	Exported bool

	Scope *Scope
}

type ScopeKind int

const (
	Scope_Global ScopeKind = iota
	Scope_File
	Scope_Parameters
	Scope_Function
	Scope_ForStatement
	Scope_Block
)

var scopeKindNames = map[ScopeKind]string{
	Scope_Global:       "global",
	Scope_File:         "file",
	Scope_Parameters:   "parameters",
	Scope_Function:     "function",
	Scope_ForStatement: "for",
	Scope_Block:        "block",
}

func (k ScopeKind) String() string { return scopeKindNames[k] }

// Scope is one node in the scope tree.  Symbols are kept in insertion
// order; duplicate names in the same scope are rejected at
// registration time.
type Scope struct {
	Kind   ScopeKind
	Parent *Scope

	// Function is the id of the innermost enclosing FuncDecl, or
	// the invalid id outside of functions.  Two scopes with
	// different Function ids are separated by a closure boundary.
	Function NodeID

	symbols []*Symbol
	index   map[InternedString]*Symbol

	children []*Scope
}

func newScope(kind ScopeKind, parent *Scope, function NodeID) *Scope {
	s := &Scope{
		Kind:     kind,
		Parent:   parent,
		Function: function,
		index:    make(map[InternedString]*Symbol),
	}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

// Register adds a symbol to the scope.  Returns an error when the name
// is already taken in this scope.
func (s *Scope) Register(sym *Symbol) error {
	if _, exists := s.index[sym.Name]; exists {
		return fmt.Errorf("duplicate name in %s scope", s.Kind)
	}
	sym.Scope = s
	s.symbols = append(s.symbols, sym)
	s.index[sym.Name] = sym
	return nil
}

// Lookup finds a name in this scope only.
func (s *Scope) Lookup(name InternedString) (*Symbol, bool) {
	sym, ok := s.index[name]
	return sym, ok
}

// Resolve walks the scope chain from here to the root looking for a
// name.
func (s *Scope) Resolve(name InternedString) (*Symbol, bool) {
	for scope := s; scope != nil; scope = scope.Parent {
		if sym, ok := scope.index[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Symbols returns the scope's symbols in insertion order.
func (s *Scope) Symbols() []*Symbol { return s.symbols }

// IsModuleLevel reports whether symbols in this scope live in module
// storage rather than function frames.
func (s *Scope) IsModuleLevel() bool {
	return s.Kind == Scope_Global || s.Kind == Scope_File
}

// SymbolTable holds the scope tree and the node-to-scope and
// node-to-symbol maps produced by the scope builder and the resolver.
type SymbolTable struct {
	Strings *StringTable

	Root *Scope
	File *Scope

	// scopeOf records the surrounding scope of every node.
	scopeOf map[NodeID]*Scope

	// declOf maps a declaring node (binding, param, func, import)
	// to its symbol.
	declOf map[NodeID]*Symbol

	// refOf maps a VarExpr to the symbol it resolved to.
	refOf map[NodeID]*Symbol

	// funcScopeOf maps a FuncDecl id to its Parameters scope.
	funcScopeOf map[NodeID]*Scope
}

func NewSymbolTable(strings *StringTable) *SymbolTable {
	root := newScope(Scope_Global, nil, NodeID(0))
	return &SymbolTable{
		Strings:     strings,
		Root:        root,
		scopeOf:     make(map[NodeID]*Scope),
		declOf:      make(map[NodeID]*Symbol),
		refOf:       make(map[NodeID]*Symbol),
		funcScopeOf: make(map[NodeID]*Scope),
	}
}

func (t *SymbolTable) ScopeOf(node AstNode) *Scope { return t.scopeOf[node.ID()] }

func (t *SymbolTable) SymbolOfDecl(node AstNode) *Symbol { return t.declOf[node.ID()] }

// SymbolOfRef returns the symbol a VarExpr resolved to, or nil for
// unresolved references (which already carry a diagnostic).
func (t *SymbolTable) SymbolOfRef(node AstNode) *Symbol { return t.refOf[node.ID()] }

func (t *SymbolTable) ParamScopeOf(decl *FuncDecl) *Scope { return t.funcScopeOf[decl.ID()] }

func (t *SymbolTable) name(s string) InternedString { return t.Strings.Insert(s) }
