package hammer

import "fmt"

// Value is a machine-word-sized tagged cell.  The low bit
// distinguishes small integers (payload in the upper 63 bits, two's
// complement) from heap references (slot index into the heap's object
// table, biased by one so the zero word stays invalid).
//
// Pointers into the Go heap cannot carry tag bits, so heap references
// are slot indices rather than raw pointers; the heap pins objects in
// their slots, which also gives the collector its intrusive
// all-objects list for free.
type Value uint64

const (
	smallIntMax = int64(1)<<62 - 1
	smallIntMin = -(int64(1) << 62)
)

// InvalidValue is the zero word; no live value ever equals it.
const InvalidValue Value = 0

func (v Value) IsSmallInt() bool { return v&1 == 1 }

func (v Value) IsHeapRef() bool { return v != InvalidValue && v&1 == 0 }

// SmallInt returns the inline integer payload.
func (v Value) SmallInt() int64 {
	return int64(v) >> 1
}

func (v Value) slot() int { return int(v>>1) - 1 }

// FitsSmallInt reports whether an integer can be represented inline.
func FitsSmallInt(n int64) bool { return n >= smallIntMin && n <= smallIntMax }

// MakeSmallInt encodes an inline integer.  The caller must check
// FitsSmallInt; arithmetic that overflows the inline range boxes into
// a heap Integer instead.
func MakeSmallInt(n int64) Value {
	return Value(uint64(n)<<1 | 1)
}

func makeHeapRef(slot int) Value {
	return Value(uint64(slot+1) << 1)
}

// TypeTag is the concrete type of a heap object.  The set is closed;
// every tag maps to exactly one payload layout.
type TypeTag uint8

const (
	Tag_Invalid TypeTag = iota
	Tag_Null
	Tag_Undefined
	Tag_Boolean
	Tag_Integer
	Tag_Float
	Tag_String
	Tag_StringBuilder
	Tag_StringSlice
	Tag_Symbol
	Tag_Tuple
	Tag_Array
	Tag_ArrayStorage
	Tag_HashTable
	Tag_HashTableStorage
	Tag_HashTableIterator
	Tag_Buffer
	Tag_Record
	Tag_Set
	Tag_Module
	Tag_Code
	Tag_FunctionTemplate
	Tag_Function
	Tag_BoundMethod
	Tag_Environment
	Tag_Coroutine
	Tag_CoroutineStack
	Tag_CoroutineToken
	Tag_Type
	Tag_InternalType
	Tag_Method
	Tag_NativeFunction
	Tag_NativeObject
	Tag_NativePointer
	Tag_DynamicObject
)

var typeTagNames = map[TypeTag]string{
	Tag_Invalid:           "invalid",
	Tag_Null:              "Null",
	Tag_Undefined:         "Undefined",
	Tag_Boolean:           "Boolean",
	Tag_Integer:           "Integer",
	Tag_Float:             "Float",
	Tag_String:            "String",
	Tag_StringBuilder:     "StringBuilder",
	Tag_StringSlice:       "StringSlice",
	Tag_Symbol:            "Symbol",
	Tag_Tuple:             "Tuple",
	Tag_Array:             "Array",
	Tag_ArrayStorage:      "ArrayStorage",
	Tag_HashTable:         "Map",
	Tag_HashTableStorage:  "MapStorage",
	Tag_HashTableIterator: "MapIterator",
	Tag_Buffer:            "Buffer",
	Tag_Record:            "Record",
	Tag_Set:               "Set",
	Tag_Module:            "Module",
	Tag_Code:              "Code",
	Tag_FunctionTemplate:  "FunctionTemplate",
	Tag_Function:          "Function",
	Tag_BoundMethod:       "BoundMethod",
	Tag_Environment:       "Environment",
	Tag_Coroutine:         "Coroutine",
	Tag_CoroutineStack:    "CoroutineStack",
	Tag_CoroutineToken:    "CoroutineToken",
	Tag_Type:              "Type",
	Tag_InternalType:      "InternalType",
	Tag_Method:            "Method",
	Tag_NativeFunction:    "NativeFunction",
	Tag_NativeObject:      "NativeObject",
	Tag_NativePointer:     "NativePointer",
	Tag_DynamicObject:     "DynamicObject",
}

func (t TypeTag) String() string {
	if n, ok := typeTagNames[t]; ok {
		return n
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}
