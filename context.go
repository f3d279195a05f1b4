package hammer

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Context bundles all process-wide runtime state: the heap, the
// singletons, the interned string and symbol pools, the type table,
// the module registry and the coroutine scheduler.  Every VM
// operation takes the context explicitly; tearing down the context
// releases everything at once.
type Context struct {
	config *Config
	logger *zap.Logger

	heap *Heap

	// Singletons.
	Null      Value
	True      Value
	False     Value
	Undefined Value

	internedStrings map[string]Value
	symbols         map[string]Value
	typeTable       map[TypeTag]Value

	// methodTables holds the builtin methods per value type.
	methodTables map[TypeTag]map[string]Value

	// modules maps dotted module names to Module values.
	modules map[string]Value

	scheduler *Scheduler
	running   Value

	// Rooting state.
	roots   *Root
	globals map[*Global]struct{}
	rooted  rootedStack

	initialStackSlots int

	// errorSink receives runtime error reports; the embedding API
	// installs the user's callback here.
	errorSink func(message string)

	// stdout receives print output.
	stdout io.Writer
}

func NewContext(config *Config) *Context {
	if config == nil {
		config = NewConfig()
	}
	ctx := &Context{
		config:            config,
		logger:            zap.NewNop(),
		heap:              NewHeap(),
		internedStrings:   make(map[string]Value),
		symbols:           make(map[string]Value),
		typeTable:         make(map[TypeTag]Value),
		methodTables:      make(map[TypeTag]map[string]Value),
		modules:           make(map[string]Value),
		scheduler:         NewScheduler(),
		running:           InvalidValue,
		globals:           make(map[*Global]struct{}),
		initialStackSlots: config.InitialStackSlots,
		stdout:            os.Stdout,
	}

	ctx.Null = ctx.heap.Alloc(Tag_Null, &nullData{})
	ctx.Undefined = ctx.heap.Alloc(Tag_Undefined, &undefinedData{})
	ctx.True = ctx.heap.Alloc(Tag_Boolean, &booleanData{value: true})
	ctx.False = ctx.heap.Alloc(Tag_Boolean, &booleanData{value: false})

	for tag := Tag_Null; tag <= Tag_DynamicObject; tag++ {
		ctx.typeTable[tag] = ctx.heap.Alloc(Tag_Type, &typeData{name: ctx.InternString(tag.String())})
	}

	ctx.registerBuiltinMethods()
	ctx.registerStdModule()
	return ctx
}

// SetLogger installs a structured logger; the default is a no-op.
func (ctx *Context) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx.logger = logger
}

// SetStdout redirects print output; the default is standard out.
func (ctx *Context) SetStdout(w io.Writer) { ctx.stdout = w }

func (ctx *Context) printLine(line string) {
	fmt.Fprintln(ctx.stdout, line)
}

// SetErrorSink installs the callback receiving runtime error
// messages.
func (ctx *Context) SetErrorSink(sink func(message string)) {
	ctx.errorSink = sink
}

func (ctx *Context) reportError(err *RuntimeError) {
	ctx.logger.Sugar().Errorw("runtime error", "error", err.Error())
	if ctx.errorSink != nil {
		ctx.errorSink(err.Error())
	}
}

func (ctx *Context) Bool(b bool) Value {
	if b {
		return ctx.True
	}
	return ctx.False
}

// Heap exposes the heap for tests and embedders.
func (ctx *Context) Heap() *Heap { return ctx.heap }

// TypeOf returns the type tag of any value.
func (ctx *Context) TypeOf(v Value) TypeTag { return ctx.heap.TypeOf(v) }

// CollectGarbage runs a stop-the-world mark-and-sweep cycle.  Callers
// must only invoke it at safe points: between interpreter
// instructions or from embedding code with all live values rooted.
func (ctx *Context) CollectGarbage() {
	ctx.heap.Collect(ctx.visitRoots, ctx.scheduler.purgeDead)
}

// visitRoots enumerates every GC root: singletons, interned pools,
// the type table, builtin method tables, the module registry, the
// scheduler's ready queue, the running coroutine, and the three
// rooting shapes.
func (ctx *Context) visitRoots(fn func(Value)) {
	fn(ctx.Null)
	fn(ctx.True)
	fn(ctx.False)
	fn(ctx.Undefined)

	for _, v := range ctx.internedStrings {
		fn(v)
	}
	for _, v := range ctx.symbols {
		fn(v)
	}
	for _, v := range ctx.typeTable {
		fn(v)
	}
	for _, table := range ctx.methodTables {
		for _, v := range table {
			fn(v)
		}
	}
	for _, v := range ctx.modules {
		fn(v)
	}

	ctx.scheduler.visit(fn)
	fn(ctx.running)

	for r := ctx.roots; r != nil; r = r.prev {
		fn(r.value)
	}
	for g := range ctx.globals {
		fn(g.value)
	}
	ctx.rooted.visit(fn)
}

// ---- Compilation pipeline ----

// CompileResult carries everything the front half of the pipeline
// produced for one module.
type CompileResult struct {
	File   *File
	IR     *IRModule
	Link   *LinkObject
	Shared *StringTable
}

// CompileSource runs source text through the full compiler: parse,
// scope building, semantic checks, IR generation, optimization and
// bytecode generation.  On compile errors the diagnostics hold the
// messages and a CompileError is returned; no partial module escapes.
func CompileSource(moduleName string, source []byte, config *Config, diags *Diagnostics) (*CompileResult, error) {
	if config == nil {
		config = NewConfig()
	}

	file := ParseFile(source, diags)
	if diags.HasErrors() {
		return nil, &CompileError{Diagnostics: diags}
	}

	strings := NewStringTable()
	table := BuildScopes(file, strings, diags)
	if diags.HasErrors() {
		return nil, &CompileError{Diagnostics: diags}
	}

	info := CheckSemantics(file, table, diags)
	if diags.HasErrors() {
		return nil, &CompileError{Diagnostics: diags}
	}

	ir, err := GenerateIR(file, moduleName, info, diags)
	if err != nil {
		return nil, errors.Wrap(err, "ir generation")
	}
	if diags.HasErrors() {
		return nil, &CompileError{Diagnostics: diags}
	}

	link, err := GenerateBytecode(ir, strings, config)
	if err != nil {
		return nil, errors.Wrap(err, "bytecode generation")
	}

	return &CompileResult{File: file, IR: ir, Link: link, Shared: strings}, nil
}

// ---- Linking and loading ----

// LoadSource compiles and links a module from source and runs its
// initializer.  The module becomes visible to imports under its name.
func (ctx *Context) LoadSource(moduleName string, source []byte, diags *Diagnostics) (Value, error) {
	if diags == nil {
		diags = NewDiagnostics()
	}
	if _, exists := ctx.modules[moduleName]; exists {
		return InvalidValue, errors.Errorf("module %q already exists", moduleName)
	}

	result, err := CompileSource(moduleName, source, ctx.config, diags)
	if err != nil {
		return InvalidValue, err
	}
	return ctx.InstantiateModule(result.Link, result.IR)
}

// InstantiateModule converts a link object into a runtime module,
// resolving Use members against the IR module's member table, and
// runs the module initializer.  Imports stay symbolic until first
// use.
func (ctx *Context) InstantiateModule(lo *LinkObject, ir *IRModule) (Value, error) {
	scope := NewHandleScope(ctx)
	defer scope.Close()

	md := &moduleData{
		name:        ctx.NewString(lo.ModuleName),
		members:     make([]Value, len(lo.Members)),
		importNames: make(map[int]string),
		exports:     make(map[string]int),
		initFunc:    InvalidValue,
	}
	module := ctx.heap.Alloc(Tag_Module, md)
	moduleHandle := scope.Local(module)

	// Function templates, one per link function.
	templates := make([]Value, len(lo.Functions))
	for i, lf := range lo.Functions {
		code := ctx.heap.Alloc(Tag_Code, &codeData{bytes: lf.Code})
		templates[i] = ctx.heap.Alloc(Tag_FunctionTemplate, &functionTemplateData{
			name:     ctx.InternString(lf.Name),
			module:   *moduleHandle,
			params:   lf.Params,
			locals:   lf.Locals,
			variadic: lf.Variadic,
			code:     code,
		})
	}

	makeFunction := func(funcIndex int) Value {
		return ctx.NewFunction(templates[funcIndex], ctx.Null)
	}

	for i, m := range lo.Members {
		if m.IsUse() {
			irm := ir.Members[m.IRMember]
			switch irm.Kind {
			case IRMember_Import:
				md.importNames[i] = irm.Name
				md.members[i] = ctx.Null
			case IRMember_Variable:
				md.members[i] = ctx.Null
			case IRMember_Function:
				md.members[i] = makeFunction(irm.Func)
			}
			continue
		}

		def := m.Def
		switch def.Kind {
		case Member_Integer:
			md.members[i] = ctx.NewInteger(def.Int)
		case Member_Float:
			md.members[i] = ctx.NewFloat(def.Float)
		case Member_String:
			md.members[i] = ctx.InternString(def.Str)
		case Member_Symbol:
			md.members[i] = ctx.NewSymbol(def.Str)
		case Member_Import:
			md.importNames[i] = def.Str
			md.members[i] = ctx.Null
		case Member_Variable:
			md.members[i] = ctx.Null
		case Member_Function:
			md.members[i] = makeFunction(def.Index)
		case Member_RecordSchema:
			keys := lo.Schemas[def.Index]
			symbols := make([]Value, len(keys))
			for k, key := range keys {
				symbols[k] = ctx.NewSymbol(key)
			}
			md.members[i] = ctx.NewTuple(symbols)
		}
	}

	for _, exp := range lo.Exports {
		symbol := md.members[exp.Symbol]
		md.exports[ctx.SymbolName(symbol)] = exp.Member
	}

	if lo.InitMember >= 0 {
		md.initFunc = md.members[lo.InitMember]
	}

	ctx.modules[lo.ModuleName] = *moduleHandle

	if md.initFunc != InvalidValue && ctx.heap.TypeOf(md.initFunc) != Tag_Null {
		if _, rerr := ctx.CallFunction(md.initFunc, nil); rerr != nil {
			delete(ctx.modules, lo.ModuleName)
			return InvalidValue, errors.Errorf("module initializer failed: %s", rerr.Error())
		}
		md.initialized = true
	}

	return *moduleHandle, nil
}

// moduleMember reads one member of a module, resolving imports
// lazily by name through the module registry.
func (ctx *Context) moduleMember(module Value, index int) (Value, *RuntimeError) {
	md := ctx.moduleDataOf(module)
	if index < 0 || index >= len(md.members) {
		return InvalidValue, newRuntimeError(RuntimeError_Generic, "module member %d out of range", index)
	}
	if name, unresolved := md.importNames[index]; unresolved {
		imported, ok := ctx.modules[name]
		if !ok {
			return InvalidValue, newRuntimeError(RuntimeError_Generic, "module %q is not loaded", name)
		}
		md.members[index] = imported
		delete(md.importNames, index)
	}
	return md.members[index], nil
}

// LookupExport resolves an exported name of a module.
func (ctx *Context) LookupExport(module Value, name string) (Value, bool) {
	md := ctx.moduleDataOf(module)
	member, ok := md.exports[name]
	if !ok {
		return InvalidValue, false
	}
	v, err := ctx.moduleMember(module, member)
	if err != nil {
		return InvalidValue, false
	}
	return v, true
}

// Module returns a loaded module by name.
func (ctx *Context) Module(name string) (Value, bool) {
	m, ok := ctx.modules[name]
	return m, ok
}

// ---- Invocation ----

// CallFunction runs a callable to completion on a fresh coroutine,
// draining the scheduler.  It returns the coroutine's result.
func (ctx *Context) CallFunction(function Value, args []Value) (Value, *RuntimeError) {
	coro := ctx.Launch("call", function, args)
	root := NewRoot(ctx, coro)
	defer root.Release()

	ctx.RunReady()

	d := ctx.coroutineDataOf(coro)
	if d.state != Coroutine_Done {
		return InvalidValue, newRuntimeError(RuntimeError_Generic,
			"function did not run to completion (state %s)", d.state)
	}
	return d.result, d.err
}

// Invoke calls an exported function of a loaded module.
func (ctx *Context) Invoke(moduleName, funcName string, args ...Value) (Value, *RuntimeError) {
	module, ok := ctx.modules[moduleName]
	if !ok {
		return InvalidValue, newRuntimeError(RuntimeError_Generic, "module %q is not loaded", moduleName)
	}
	function, ok := ctx.LookupExport(module, funcName)
	if !ok {
		return InvalidValue, newRuntimeError(RuntimeError_UnknownMember,
			"module %q does not export %q", moduleName, funcName)
	}
	return ctx.CallFunction(function, args)
}
