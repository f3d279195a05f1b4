package hammer

import "strings"

// ---- Member protocol ----

// loadMember reads `obj.name`.  name is a Symbol value.
func (ctx *Context) loadMember(obj, name Value) (Value, *RuntimeError) {
	fieldName := ctx.SymbolName(name)

	switch ctx.heap.TypeOf(obj) {
	case Tag_Module:
		if v, ok := ctx.LookupExport(obj, fieldName); ok {
			return v, nil
		}
		return InvalidValue, newRuntimeError(RuntimeError_UnknownMember,
			"module %s has no export %q", ctx.StringValue(ctx.moduleDataOf(obj).name), fieldName)

	case Tag_Record:
		d := ctx.heap.data(obj).(*recordData)
		for i, key := range d.keys {
			if ctx.SymbolName(key) == fieldName {
				return d.values[i], nil
			}
		}
		return InvalidValue, newRuntimeError(RuntimeError_UnknownMember,
			"record has no field %q", fieldName)

	case Tag_DynamicObject:
		d := ctx.heap.data(obj).(*dynamicObjectData)
		if v, ok := d.props[fieldName]; ok {
			return v, nil
		}
		return InvalidValue, newRuntimeError(RuntimeError_UnknownMember,
			"object has no property %q", fieldName)
	}

	return InvalidValue, newRuntimeError(RuntimeError_UnknownMember,
		"%s has no member %q", ctx.TypeName(obj), fieldName)
}

// storeMember writes `obj.name = value`.  Records only accept their
// fixed key set; modules are read-only from the outside.
func (ctx *Context) storeMember(obj, name, value Value) *RuntimeError {
	fieldName := ctx.SymbolName(name)

	switch ctx.heap.TypeOf(obj) {
	case Tag_Record:
		d := ctx.heap.data(obj).(*recordData)
		for i, key := range d.keys {
			if ctx.SymbolName(key) == fieldName {
				d.values[i] = value
				return nil
			}
		}
		return newRuntimeError(RuntimeError_UnknownMember, "record has no field %q", fieldName)

	case Tag_DynamicObject:
		d := ctx.heap.data(obj).(*dynamicObjectData)
		d.props[fieldName] = value
		return nil
	}

	return newRuntimeError(RuntimeError_TypeMismatch,
		"cannot assign members of %s", ctx.TypeName(obj))
}

// loadMethod resolves `obj.name` for a call.  It returns the function
// and the instance to prepend — or null when the member is a plain
// function accessed through method syntax (module exports, record
// fields).
func (ctx *Context) loadMethod(obj, name Value) (function, instance Value, err *RuntimeError) {
	fieldName := ctx.SymbolName(name)

	switch ctx.heap.TypeOf(obj) {
	case Tag_Module, Tag_Record, Tag_DynamicObject:
		v, merr := ctx.loadMember(obj, name)
		if merr != nil {
			if ctx.heap.TypeOf(obj) == Tag_Module {
				if method, ok := ctx.methodTables[Tag_Module][fieldName]; ok {
					return method, obj, nil
				}
			}
			return InvalidValue, InvalidValue, merr
		}
		if ctx.heap.TypeOf(v) == Tag_BoundMethod {
			bm := ctx.heap.data(v).(*boundMethodData)
			return bm.function, bm.instance, nil
		}
		return v, ctx.Null, nil
	}

	if table, ok := ctx.methodTables[ctx.heap.TypeOf(obj)]; ok {
		if method, ok := table[fieldName]; ok {
			return method, obj, nil
		}
	}
	return InvalidValue, InvalidValue, newRuntimeError(RuntimeError_NoSuchMethod,
		"%s has no method %q", ctx.TypeName(obj), fieldName)
}

// ---- Index protocol ----

func (ctx *Context) loadIndex(obj, key Value) (Value, *RuntimeError) {
	switch ctx.heap.TypeOf(obj) {
	case Tag_Array:
		items := ctx.arrayItems(obj)
		idx, err := ctx.indexIn(key, len(items))
		if err != nil {
			return InvalidValue, err
		}
		return items[idx], nil

	case Tag_Tuple:
		items := ctx.tupleItems(obj)
		idx, err := ctx.indexIn(key, len(items))
		if err != nil {
			return InvalidValue, err
		}
		return items[idx], nil

	case Tag_HashTable:
		if v, ok := ctx.tableGet(obj, key); ok {
			return v, nil
		}
		return ctx.Null, nil

	case Tag_Buffer:
		d := ctx.heap.data(obj).(*bufferData)
		idx, err := ctx.indexIn(key, len(d.bytes))
		if err != nil {
			return InvalidValue, err
		}
		return MakeSmallInt(int64(d.bytes[idx])), nil
	}

	return InvalidValue, newRuntimeError(RuntimeError_TypeMismatch,
		"%s is not indexable", ctx.TypeName(obj))
}

func (ctx *Context) storeIndex(obj, key, value Value) *RuntimeError {
	switch ctx.heap.TypeOf(obj) {
	case Tag_Array:
		items := ctx.arrayItems(obj)
		idx, err := ctx.indexIn(key, len(items))
		if err != nil {
			return err
		}
		items[idx] = value
		return nil

	case Tag_Tuple:
		items := ctx.tupleItems(obj)
		idx, err := ctx.indexIn(key, len(items))
		if err != nil {
			return err
		}
		items[idx] = value
		return nil

	case Tag_HashTable:
		ctx.tableSet(obj, key, value)
		return nil

	case Tag_Buffer:
		d := ctx.heap.data(obj).(*bufferData)
		idx, err := ctx.indexIn(key, len(d.bytes))
		if err != nil {
			return err
		}
		if ctx.heap.TypeOf(value) != Tag_Integer {
			return newRuntimeError(RuntimeError_TypeMismatch, "buffer elements must be integers")
		}
		d.bytes[idx] = byte(ctx.IntValue(value))
		return nil
	}

	return newRuntimeError(RuntimeError_TypeMismatch,
		"%s is not indexable", ctx.TypeName(obj))
}

func (ctx *Context) indexIn(key Value, length int) (int, *RuntimeError) {
	if ctx.heap.TypeOf(key) != Tag_Integer {
		return 0, newRuntimeError(RuntimeError_BadArgument,
			"index must be an integer, got %s", ctx.TypeName(key))
	}
	idx := ctx.IntValue(key)
	if idx < 0 || idx >= int64(length) {
		return 0, newRuntimeError(RuntimeError_OutOfRange,
			"index %d out of range for length %d", idx, length)
	}
	return int(idx), nil
}

// ---- Iteration protocol ----

func (ctx *Context) makeIterator(container Value) (Value, *RuntimeError) {
	switch ctx.heap.TypeOf(container) {
	case Tag_Array, Tag_Tuple, Tag_HashTable, Tag_Set:
		return ctx.heap.Alloc(Tag_HashTableIterator, &hashTableIteratorData{table: container}), nil
	}
	return InvalidValue, newRuntimeError(RuntimeError_TypeMismatch,
		"%s is not iterable", ctx.TypeName(container))
}

// iteratorNext advances an iterator.  Arrays, tuples and sets yield
// their elements; maps yield (key, value) tuples.
func (ctx *Context) iteratorNext(iter Value) (Value, bool) {
	d := ctx.heap.data(iter).(*hashTableIteratorData)

	switch ctx.heap.TypeOf(d.table) {
	case Tag_Array:
		items := ctx.arrayItems(d.table)
		if d.pos >= len(items) {
			return ctx.Null, false
		}
		v := items[d.pos]
		d.pos++
		return v, true

	case Tag_Tuple:
		items := ctx.tupleItems(d.table)
		if d.pos >= len(items) {
			return ctx.Null, false
		}
		v := items[d.pos]
		d.pos++
		return v, true

	case Tag_HashTable:
		s := ctx.tableStorage(d.table)
		for d.pos < len(s.entries) {
			e := s.entries[d.pos]
			d.pos++
			if e.deleted {
				continue
			}
			return ctx.NewTuple([]Value{e.key, e.value}), true
		}
		return ctx.Null, false

	case Tag_Set:
		table := ctx.heap.data(d.table).(*setData).table
		s := ctx.tableStorage(table)
		for d.pos < len(s.entries) {
			e := s.entries[d.pos]
			d.pos++
			if e.deleted {
				continue
			}
			return e.key, true
		}
		return ctx.Null, false
	}
	return ctx.Null, false
}

// ---- Builtin methods ----

func (ctx *Context) addMethod(tag TypeTag, name string, arity int, fn NativeFunc) {
	table, ok := ctx.methodTables[tag]
	if !ok {
		table = make(map[string]Value)
		ctx.methodTables[tag] = table
	}
	// The instance arrives as the first argument.
	table[name] = ctx.NewNativeFunction(name, arity+1, fn)
}

func (ctx *Context) registerBuiltinMethods() {
	// String
	ctx.addMethod(Tag_String, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(len(ctx.StringValue(args[0])))), nil
	})
	ctx.addMethod(Tag_String, "contains", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		if !isStringLike(ctx.heap.TypeOf(args[1])) {
			return InvalidValue, newRuntimeError(RuntimeError_BadArgument, "contains expects a string")
		}
		hay, needle := ctx.StringValue(args[0]), ctx.StringValue(args[1])
		return ctx.Bool(strings.Contains(hay, needle)), nil
	})
	ctx.addMethod(Tag_String, "slice", 2, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		content := ctx.StringValue(args[0])
		start, err := ctx.indexIn(args[1], len(content)+1)
		if err != nil {
			return InvalidValue, err
		}
		end, err := ctx.indexIn(args[2], len(content)+1)
		if err != nil {
			return InvalidValue, err
		}
		if end < start {
			return InvalidValue, newRuntimeError(RuntimeError_BadArgument, "slice end before start")
		}
		return ctx.NewStringSlice(args[0], start, end-start), nil
	})

	// StringBuilder
	ctx.addMethod(Tag_StringBuilder, "append", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		d := ctx.heap.data(args[0]).(*stringBuilderData)
		d.buf = append(d.buf, ctx.FormatValue(args[1])...)
		return args[0], nil
	})
	ctx.addMethod(Tag_StringBuilder, "to_str", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewString(ctx.StringValue(args[0])), nil
	})
	ctx.addMethod(Tag_StringBuilder, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(len(ctx.heap.data(args[0]).(*stringBuilderData).buf))), nil
	})
	ctx.addMethod(Tag_StringBuilder, "clear", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		ctx.heap.data(args[0]).(*stringBuilderData).buf = nil
		return args[0], nil
	})

	// Array
	ctx.addMethod(Tag_Array, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(len(ctx.arrayItems(args[0])))), nil
	})
	ctx.addMethod(Tag_Array, "append", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		ctx.arrayAppend(args[0], args[1])
		return ctx.Null, nil
	})
	ctx.addMethod(Tag_Array, "remove_last", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		d := ctx.heap.data(args[0]).(*arrayData)
		storage := ctx.heap.data(d.storage).(*arrayStorageData)
		if len(storage.items) == 0 {
			return InvalidValue, newRuntimeError(RuntimeError_OutOfRange, "remove_last on an empty array")
		}
		last := storage.items[len(storage.items)-1]
		storage.items = storage.items[:len(storage.items)-1]
		return last, nil
	})
	ctx.addMethod(Tag_Array, "clear", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		d := ctx.heap.data(args[0]).(*arrayData)
		ctx.heap.data(d.storage).(*arrayStorageData).items = nil
		return ctx.Null, nil
	})

	// Tuple
	ctx.addMethod(Tag_Tuple, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(len(ctx.tupleItems(args[0])))), nil
	})

	// Map
	ctx.addMethod(Tag_HashTable, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(ctx.tableSize(args[0]))), nil
	})
	ctx.addMethod(Tag_HashTable, "contains", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		_, ok := ctx.tableGet(args[0], args[1])
		return ctx.Bool(ok), nil
	})
	ctx.addMethod(Tag_HashTable, "remove", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.Bool(ctx.tableRemove(args[0], args[1])), nil
	})
	ctx.addMethod(Tag_HashTable, "keys", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		var keys []Value
		for _, e := range ctx.tableStorage(args[0]).entries {
			if !e.deleted {
				keys = append(keys, e.key)
			}
		}
		return ctx.NewArray(keys), nil
	})
	ctx.addMethod(Tag_HashTable, "values", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		var values []Value
		for _, e := range ctx.tableStorage(args[0]).entries {
			if !e.deleted {
				values = append(values, e.value)
			}
		}
		return ctx.NewArray(values), nil
	})

	// Set
	ctx.addMethod(Tag_Set, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(ctx.tableSize(ctx.heap.data(args[0]).(*setData).table))), nil
	})
	ctx.addMethod(Tag_Set, "contains", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		_, ok := ctx.tableGet(ctx.heap.data(args[0]).(*setData).table, args[1])
		return ctx.Bool(ok), nil
	})
	ctx.addMethod(Tag_Set, "insert", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		table := ctx.heap.data(args[0]).(*setData).table
		_, had := ctx.tableGet(table, args[1])
		ctx.tableSet(table, args[1], ctx.Null)
		return ctx.Bool(!had), nil
	})
	ctx.addMethod(Tag_Set, "remove", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.Bool(ctx.tableRemove(ctx.heap.data(args[0]).(*setData).table, args[1])), nil
	})

	// Buffer
	ctx.addMethod(Tag_Buffer, "size", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewInteger(int64(len(ctx.heap.data(args[0]).(*bufferData).bytes))), nil
	})

	// Coroutine
	ctx.addMethod(Tag_Coroutine, "name", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.coroutineDataOf(args[0]).name, nil
	})
	ctx.addMethod(Tag_Coroutine, "done", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.Bool(ctx.coroutineDataOf(args[0]).state == Coroutine_Done), nil
	})
	ctx.addMethod(Tag_Coroutine, "result", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		d := ctx.coroutineDataOf(args[0])
		if d.state != Coroutine_Done {
			return InvalidValue, newRuntimeError(RuntimeError_BadResultAccess, "coroutine is still running")
		}
		if d.err != nil {
			return InvalidValue, newRuntimeError(RuntimeError_BadResultAccess,
				"coroutine failed: %s", d.err.Error())
		}
		return d.result, nil
	})
	ctx.addMethod(Tag_Coroutine, "error", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		d := ctx.coroutineDataOf(args[0])
		if d.state != Coroutine_Done {
			return InvalidValue, newRuntimeError(RuntimeError_BadResultAccess, "coroutine is still running")
		}
		if d.err == nil {
			return InvalidValue, newRuntimeError(RuntimeError_BadResultAccess, "coroutine did not fail")
		}
		return ctx.NewString(d.err.Error()), nil
	})

	// Coroutine token
	ctx.addMethod(Tag_CoroutineToken, "valid", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.Bool(ctx.TokenValid(args[0])), nil
	})
	ctx.addMethod(Tag_CoroutineToken, "resume", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.Bool(ctx.ResumeToken(args[0])), nil
	})

	// Module values respond to method syntax through their exports;
	// the only true method is name().
	ctx.addMethod(Tag_Module, "name", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.moduleDataOf(args[0]).name, nil
	})

	// String slices answer the string methods.
	ctx.methodTables[Tag_StringSlice] = ctx.methodTables[Tag_String]
}

// ---- The std module ----

// registerStdModule builds the builtin `std` module: native
// functions for printing, coroutine control and object construction.
func (ctx *Context) registerStdModule() {
	md := &moduleData{
		name:        ctx.NewString("std"),
		importNames: make(map[int]string),
		exports:     make(map[string]int),
		initFunc:    InvalidValue,
		initialized: true,
	}
	module := ctx.heap.Alloc(Tag_Module, md)

	export := func(name string, fn Value) {
		md.exports[name] = len(md.members)
		md.members = append(md.members, fn)
	}

	export("print", ctx.NewNativeFunction("print", -1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = ctx.FormatValue(a)
		}
		ctx.printLine(strings.Join(parts, " "))
		return ctx.Null, nil
	}))

	export("to_string", ctx.NewNativeFunction("to_string", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewString(ctx.FormatValue(args[0])), nil
	}))

	export("type_of", ctx.NewNativeFunction("type_of", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.typeTable[ctx.heap.TypeOf(args[0])], nil
	}))

	export("new_string_builder", ctx.NewNativeFunction("new_string_builder", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		return ctx.NewStringBuilder(), nil
	}))

	export("new_buffer", ctx.NewNativeFunction("new_buffer", 1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		if ctx.heap.TypeOf(args[0]) != Tag_Integer {
			return InvalidValue, newRuntimeError(RuntimeError_BadArgument, "new_buffer expects a size")
		}
		size := ctx.IntValue(args[0])
		if size < 0 {
			return InvalidValue, newRuntimeError(RuntimeError_BadArgument, "buffer size must not be negative")
		}
		return ctx.NewBuffer(int(size)), nil
	}))

	// join is implemented as a resumable state machine: the
	// interpreter drives one element per step, with GC safe points
	// between steps.  Frame slots: 0 = builder, 1 = element index.
	export("join", ctx.NewNativeResumableFunction("join", 2, 2, func(ctx *Context, frame *ResumableFrame) *RuntimeError {
		const (
			stateInit = iota
			stateAppend
		)
		switch frame.State() {
		case stateInit:
			if ctx.heap.TypeOf(frame.Arg(0)) != Tag_Array {
				return newRuntimeError(RuntimeError_BadArgument, "join expects an array")
			}
			if !isStringLike(ctx.heap.TypeOf(frame.Arg(1))) {
				return newRuntimeError(RuntimeError_BadArgument, "join expects a string separator")
			}
			frame.SetLocal(0, ctx.NewStringBuilder())
			frame.SetLocal(1, MakeSmallInt(0))
			frame.SetState(stateAppend)

		case stateAppend:
			items := ctx.arrayItems(frame.Arg(0))
			i := int(ctx.IntValue(frame.Local(1)))
			if i >= len(items) {
				frame.Return(ctx.NewString(ctx.StringValue(frame.Local(0))))
				return nil
			}
			builder := ctx.heap.data(frame.Local(0)).(*stringBuilderData)
			if i > 0 {
				builder.buf = append(builder.buf, ctx.StringValue(frame.Arg(1))...)
			}
			builder.buf = append(builder.buf, ctx.FormatValue(items[i])...)
			frame.SetLocal(1, MakeSmallInt(int64(i+1)))
		}
		return nil
	}))

	export("launch", ctx.NewNativeFunction("launch", -1, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		if len(args) == 0 {
			return InvalidValue, newRuntimeError(RuntimeError_BadArgument, "launch expects a function")
		}
		return ctx.Launch("coroutine", args[0], args[1:]), nil
	}))

	export("current_coroutine", ctx.NewNativeFunction("current_coroutine", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		if ctx.running == InvalidValue {
			return InvalidValue, newRuntimeError(RuntimeError_Generic, "no coroutine is running")
		}
		return ctx.running, nil
	}))

	export("coroutine_token", ctx.NewNativeFunction("coroutine_token", 0, func(ctx *Context, args []Value) (Value, *RuntimeError) {
		if ctx.running == InvalidValue {
			return InvalidValue, newRuntimeError(RuntimeError_Generic, "no coroutine is running")
		}
		d := ctx.coroutineDataOf(ctx.running)
		if d.token != InvalidValue && !ctx.heap.data(d.token).(*coroutineTokenData).used {
			return d.token, nil
		}
		return ctx.NewCoroutineToken(ctx.running), nil
	}))

	export("yield_coroutine", ctx.NewNativeAsyncFunction("yield_coroutine", 0, func(ctx *Context, token Value, args []Value) {
		// Parking already happened; the coroutine resumes when
		// someone resumes the token.
	}))

	ctx.modules["std"] = module
}
