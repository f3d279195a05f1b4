package hammer

import (
	"fmt"
	"strconv"
	"strings"
)

// ---- Payload layouts ----

type nullData struct{ _ byte }
type undefinedData struct{ _ byte }
type booleanData struct{ value bool }
type integerData struct{ value int64 }
type floatData struct{ value float64 }

type stringData struct {
	bytes    string
	hash     uint64
	hashed   bool
	interned bool
}

type stringBuilderData struct{ buf []byte }

type stringSliceData struct {
	backing Value
	offset  int
	length  int
}

type symbolData struct{ name Value }

type tupleData struct{ items []Value }

type arrayData struct{ storage Value }

type arrayStorageData struct{ items []Value }

type hashTableData struct{ storage Value }

type hashEntry struct {
	key     Value
	value   Value
	deleted bool
}

type hashTableStorageData struct {
	entries []hashEntry
	index   map[interface{}]int
	size    int
}

type hashTableIteratorData struct {
	table Value
	pos   int
}

type bufferData struct{ bytes []byte }

type recordData struct {
	keys   []Value // symbols, fixed at construction
	values []Value
}

type setData struct{ table Value }

type moduleData struct {
	name    Value
	members []Value

	// importNames maps unresolved member slots to the dotted name
	// of the module they refer to; resolution is lazy.
	importNames map[int]string

	exports     map[string]int
	initFunc    Value
	initialized bool
}

type codeData struct{ bytes []byte }

type functionTemplateData struct {
	name     Value
	module   Value
	params   int
	locals   int
	variadic bool
	code     Value
}

type functionData struct {
	template Value
	env      Value
}

type boundMethodData struct {
	function Value
	instance Value
}

type environmentData struct {
	parent Value
	slots  []Value
}

type coroutineTokenData struct {
	coroutine Value
	used      bool
}

type typeData struct{ name Value }

type internalTypeData struct{ tag TypeTag }

type methodData struct{ function Value }

// NativeFunc is the Go signature of a synchronous native function.
type NativeFunc func(ctx *Context, args []Value) (Value, *RuntimeError)

// NativeAsyncFunc parks the calling coroutine; the implementation
// receives the single-use token that resumes it.
type NativeAsyncFunc func(ctx *Context, token Value, args []Value)

// NativeResumableFunc is one step of a native function implemented as
// a state machine.  The interpreter drives it: the function runs in a
// real call frame and is stepped once per dispatch iteration until it
// calls Return, so the collector's safe points fall between steps.
type NativeResumableFunc func(ctx *Context, frame *ResumableFrame) *RuntimeError

type nativeFunctionData struct {
	name  Value
	arity int
	sync  NativeFunc
	async NativeAsyncFunc

	resumable NativeResumableFunc

	// frameLocals is the number of frame slots a resumable
	// function keeps its intermediate values in.
	frameLocals int
}

type nativeObjectData struct{ value interface{} }

type nativePointerData struct{ ptr interface{} }

type dynamicObjectData struct{ props map[string]Value }

// ---- Constructors ----

func (ctx *Context) NewBoxedInteger(n int64) Value {
	return ctx.heap.Alloc(Tag_Integer, &integerData{value: n})
}

// NewInteger produces the canonical representation: inline when the
// value fits, boxed otherwise.
func (ctx *Context) NewInteger(n int64) Value {
	if FitsSmallInt(n) {
		return MakeSmallInt(n)
	}
	return ctx.NewBoxedInteger(n)
}

func (ctx *Context) NewFloat(f float64) Value {
	return ctx.heap.Alloc(Tag_Float, &floatData{value: f})
}

func (ctx *Context) NewString(s string) Value {
	return ctx.heap.Alloc(Tag_String, &stringData{bytes: s})
}

// InternString returns the canonical instance for the given content;
// interned strings compare by reference.
func (ctx *Context) InternString(s string) Value {
	if v, ok := ctx.internedStrings[s]; ok {
		return v
	}
	v := ctx.heap.Alloc(Tag_String, &stringData{bytes: s, interned: true})
	ctx.internedStrings[s] = v
	return v
}

func (ctx *Context) NewStringBuilder() Value {
	return ctx.heap.Alloc(Tag_StringBuilder, &stringBuilderData{})
}

func (ctx *Context) NewStringSlice(backing Value, offset, length int) Value {
	return ctx.heap.Alloc(Tag_StringSlice, &stringSliceData{backing: backing, offset: offset, length: length})
}

// NewSymbol returns the canonical symbol for a name.
func (ctx *Context) NewSymbol(name string) Value {
	if v, ok := ctx.symbols[name]; ok {
		return v
	}
	v := ctx.heap.Alloc(Tag_Symbol, &symbolData{name: ctx.InternString(name)})
	ctx.symbols[name] = v
	return v
}

func (ctx *Context) NewTuple(items []Value) Value {
	return ctx.heap.Alloc(Tag_Tuple, &tupleData{items: items})
}

func (ctx *Context) NewArray(items []Value) Value {
	storage := ctx.heap.Alloc(Tag_ArrayStorage, &arrayStorageData{items: items})
	return ctx.heap.Alloc(Tag_Array, &arrayData{storage: storage})
}

func (ctx *Context) NewMap() Value {
	storage := ctx.heap.Alloc(Tag_HashTableStorage, &hashTableStorageData{index: make(map[interface{}]int)})
	return ctx.heap.Alloc(Tag_HashTable, &hashTableData{storage: storage})
}

func (ctx *Context) NewSet() Value {
	return ctx.heap.Alloc(Tag_Set, &setData{table: ctx.NewMap()})
}

func (ctx *Context) NewBuffer(size int) Value {
	return ctx.heap.Alloc(Tag_Buffer, &bufferData{bytes: make([]byte, size)})
}

func (ctx *Context) NewRecord(keys []Value, values []Value) Value {
	return ctx.heap.Alloc(Tag_Record, &recordData{keys: keys, values: values})
}

func (ctx *Context) NewEnvironment(parent Value, size int) Value {
	slots := make([]Value, size)
	for i := range slots {
		slots[i] = ctx.Undefined
	}
	return ctx.heap.Alloc(Tag_Environment, &environmentData{parent: parent, slots: slots})
}

func (ctx *Context) NewFunction(template, env Value) Value {
	return ctx.heap.Alloc(Tag_Function, &functionData{template: template, env: env})
}

func (ctx *Context) NewBoundMethod(function, instance Value) Value {
	return ctx.heap.Alloc(Tag_BoundMethod, &boundMethodData{function: function, instance: instance})
}

func (ctx *Context) NewNativeFunction(name string, arity int, fn NativeFunc) Value {
	return ctx.heap.Alloc(Tag_NativeFunction, &nativeFunctionData{
		name: ctx.InternString(name), arity: arity, sync: fn,
	})
}

func (ctx *Context) NewNativeAsyncFunction(name string, arity int, fn NativeAsyncFunc) Value {
	return ctx.heap.Alloc(Tag_NativeFunction, &nativeFunctionData{
		name: ctx.InternString(name), arity: arity, async: fn,
	})
}

// NewNativeResumableFunction registers an interpreter-driven native
// state machine with the given number of scratch frame slots.
func (ctx *Context) NewNativeResumableFunction(name string, arity, locals int, fn NativeResumableFunc) Value {
	return ctx.heap.Alloc(Tag_NativeFunction, &nativeFunctionData{
		name: ctx.InternString(name), arity: arity, resumable: fn, frameLocals: locals,
	})
}

// ---- Accessors ----

func (ctx *Context) stringDataOf(v Value) *stringData {
	return ctx.heap.data(v).(*stringData)
}

// StringValue returns the byte content of a String, StringSlice or
// StringBuilder value.
func (ctx *Context) StringValue(v Value) string {
	switch ctx.heap.Tag(v) {
	case Tag_String:
		return ctx.stringDataOf(v).bytes
	case Tag_StringSlice:
		d := ctx.heap.data(v).(*stringSliceData)
		backing := ctx.stringDataOf(d.backing).bytes
		return backing[d.offset : d.offset+d.length]
	case Tag_StringBuilder:
		return string(ctx.heap.data(v).(*stringBuilderData).buf)
	}
	panic("StringValue: not a string-like value")
}

// IntValue returns the integer payload of an inline or boxed integer.
func (ctx *Context) IntValue(v Value) int64 {
	if v.IsSmallInt() {
		return v.SmallInt()
	}
	return ctx.heap.data(v).(*integerData).value
}

func (ctx *Context) FloatValue(v Value) float64 {
	return ctx.heap.data(v).(*floatData).value
}

func (ctx *Context) BoolValue(v Value) bool {
	return ctx.heap.data(v).(*booleanData).value
}

func (ctx *Context) SymbolName(v Value) string {
	return ctx.StringValue(ctx.heap.data(v).(*symbolData).name)
}

func (ctx *Context) tupleItems(v Value) []Value {
	return ctx.heap.data(v).(*tupleData).items
}

func (ctx *Context) arrayItems(v Value) []Value {
	d := ctx.heap.data(v).(*arrayData)
	return ctx.heap.data(d.storage).(*arrayStorageData).items
}

func (ctx *Context) arrayAppend(v Value, item Value) {
	d := ctx.heap.data(v).(*arrayData)
	storage := ctx.heap.data(d.storage).(*arrayStorageData)
	storage.items = append(storage.items, item)
}

func (ctx *Context) envData(v Value) *environmentData {
	return ctx.heap.data(v).(*environmentData)
}

func (ctx *Context) moduleDataOf(v Value) *moduleData {
	return ctx.heap.data(v).(*moduleData)
}

// ---- Hash table operations ----

// tableKey normalizes a value into a Go map key implementing the
// language's equality: integers by payload, strings by content,
// floats by payload, booleans and null by identity of kind, symbols
// and everything else by reference.
func (ctx *Context) tableKey(v Value) interface{} {
	switch ctx.heap.TypeOf(v) {
	case Tag_Integer:
		return ctx.IntValue(v)
	case Tag_Float:
		return ctx.FloatValue(v)
	case Tag_String, Tag_StringSlice:
		return ctx.StringValue(v)
	case Tag_Boolean:
		return ctx.BoolValue(v)
	case Tag_Null:
		return nullKey{}
	default:
		return v
	}
}

type nullKey struct{}

func (ctx *Context) tableStorage(table Value) *hashTableStorageData {
	d := ctx.heap.data(table).(*hashTableData)
	return ctx.heap.data(d.storage).(*hashTableStorageData)
}

func (ctx *Context) tableSet(table, key, value Value) {
	s := ctx.tableStorage(table)
	k := ctx.tableKey(key)
	if idx, ok := s.index[k]; ok {
		s.entries[idx].value = value
		return
	}
	s.index[k] = len(s.entries)
	s.entries = append(s.entries, hashEntry{key: key, value: value})
	s.size++
}

func (ctx *Context) tableGet(table, key Value) (Value, bool) {
	s := ctx.tableStorage(table)
	if idx, ok := s.index[ctx.tableKey(key)]; ok {
		return s.entries[idx].value, true
	}
	return InvalidValue, false
}

func (ctx *Context) tableRemove(table, key Value) bool {
	s := ctx.tableStorage(table)
	k := ctx.tableKey(key)
	idx, ok := s.index[k]
	if !ok {
		return false
	}
	delete(s.index, k)
	s.entries[idx].deleted = true
	s.size--
	return true
}

func (ctx *Context) tableSize(table Value) int {
	return ctx.tableStorage(table).size
}

// ---- Equality and truthiness ----

// Truthy implements the condition test: false, null and undefined are falsy,
// everything else (including zero) is truthy.
func (ctx *Context) Truthy(v Value) bool {
	switch ctx.heap.TypeOf(v) {
	case Tag_Null, Tag_Undefined:
		return false
	case Tag_Boolean:
		return ctx.BoolValue(v)
	default:
		return true
	}
}

// Equal implements `==`: numbers by value, strings by content,
// everything else by reference identity.
func (ctx *Context) Equal(a, b Value) bool {
	ta, tb := ctx.heap.TypeOf(a), ctx.heap.TypeOf(b)
	switch {
	case ta == Tag_Integer && tb == Tag_Integer:
		return ctx.IntValue(a) == ctx.IntValue(b)
	case ta == Tag_Integer && tb == Tag_Float:
		return float64(ctx.IntValue(a)) == ctx.FloatValue(b)
	case ta == Tag_Float && tb == Tag_Integer:
		return ctx.FloatValue(a) == float64(ctx.IntValue(b))
	case ta == Tag_Float && tb == Tag_Float:
		return ctx.FloatValue(a) == ctx.FloatValue(b)
	case isStringLike(ta) && isStringLike(tb):
		return ctx.StringValue(a) == ctx.StringValue(b)
	case ta == Tag_Null && tb == Tag_Null:
		return true
	case ta == Tag_Boolean && tb == Tag_Boolean:
		return ctx.BoolValue(a) == ctx.BoolValue(b)
	default:
		return a == b
	}
}

func isStringLike(t TypeTag) bool {
	return t == Tag_String || t == Tag_StringSlice
}

// ---- Formatting ----

// FormatValue renders a value the way `to_string` and string
// interpolation do.
func (ctx *Context) FormatValue(v Value) string {
	switch ctx.heap.TypeOf(v) {
	case Tag_Null:
		return "null"
	case Tag_Undefined:
		return "undefined"
	case Tag_Boolean:
		if ctx.BoolValue(v) {
			return "true"
		}
		return "false"
	case Tag_Integer:
		return strconv.FormatInt(ctx.IntValue(v), 10)
	case Tag_Float:
		return strconv.FormatFloat(ctx.FloatValue(v), 'g', -1, 64)
	case Tag_String, Tag_StringSlice, Tag_StringBuilder:
		return ctx.StringValue(v)
	case Tag_Symbol:
		return "#" + ctx.SymbolName(v)
	case Tag_Tuple:
		return ctx.formatList("(", ")", ctx.tupleItems(v))
	case Tag_Array:
		return ctx.formatList("[", "]", ctx.arrayItems(v))
	case Tag_HashTable:
		var s strings.Builder
		s.WriteString("map{")
		first := true
		for _, e := range ctx.tableStorage(v).entries {
			if e.deleted {
				continue
			}
			if !first {
				s.WriteString(", ")
			}
			first = false
			s.WriteString(ctx.FormatValue(e.key))
			s.WriteString(": ")
			s.WriteString(ctx.FormatValue(e.value))
		}
		s.WriteString("}")
		return s.String()
	case Tag_Set:
		var s strings.Builder
		s.WriteString("set{")
		first := true
		table := ctx.heap.data(v).(*setData).table
		for _, e := range ctx.tableStorage(table).entries {
			if e.deleted {
				continue
			}
			if !first {
				s.WriteString(", ")
			}
			first = false
			s.WriteString(ctx.FormatValue(e.key))
		}
		s.WriteString("}")
		return s.String()
	case Tag_Record:
		d := ctx.heap.data(v).(*recordData)
		var s strings.Builder
		s.WriteString("(")
		for i := range d.keys {
			if i > 0 {
				s.WriteString(", ")
			}
			s.WriteString(ctx.SymbolName(d.keys[i]))
			s.WriteString(": ")
			s.WriteString(ctx.FormatValue(d.values[i]))
		}
		s.WriteString(")")
		return s.String()
	case Tag_Function, Tag_FunctionTemplate:
		return "<function>"
	case Tag_NativeFunction:
		d := ctx.heap.data(v).(*nativeFunctionData)
		return fmt.Sprintf("<native %s>", ctx.StringValue(d.name))
	case Tag_Module:
		return fmt.Sprintf("<module %s>", ctx.StringValue(ctx.moduleDataOf(v).name))
	case Tag_Coroutine:
		return "<coroutine>"
	case Tag_CoroutineToken:
		return "<coroutine token>"
	default:
		return fmt.Sprintf("<%s>", ctx.heap.TypeOf(v))
	}
}

func (ctx *Context) formatList(open, close string, items []Value) string {
	var s strings.Builder
	s.WriteString(open)
	for i, item := range items {
		if i > 0 {
			s.WriteString(", ")
		}
		s.WriteString(ctx.FormatValue(item))
	}
	s.WriteString(close)
	return s.String()
}

// TypeName returns the user-facing type name of a value.
func (ctx *Context) TypeName(v Value) string {
	return ctx.heap.TypeOf(v).String()
}
