package hammer

import (
	"math"
)

// execute runs one coroutine until it finishes, parks, or traps.
// Dispatch reads one opcode and switches into its handler; the frame
// pointer is re-resolved at the top of every iteration because frame
// and value storage may have been reallocated by the previous
// instruction.  The top of the loop is also the collector's safe
// point: no instruction is mid-execution there.
func (ctx *Context) execute(coro Value) {
	d := ctx.coroutineDataOf(coro)
	d.state = Coroutine_Running
	ctx.running = coro

	s := ctx.coroutineStack(coro)

	// A fresh coroutine begins by calling its entry function.
	if !s.hasFrames() && !d.started {
		d.started = true
		s.push(d.function)
		for _, a := range d.args {
			s.push(a)
		}
		if !ctx.startCall(coro, s, len(d.args), 0) {
			ctx.running = InvalidValue
			return
		}
		if d.state != Coroutine_Running {
			ctx.running = InvalidValue
			return
		}
	}

	fail := func(kind RuntimeErrorKind, format string, args ...interface{}) {
		ctx.failCoroutine(coro, newRuntimeError(kind, format, args...))
	}

	for {
		if !s.hasFrames() {
			// The entry frame returned; its result is the
			// coroutine's result.
			result := ctx.Null
			if len(s.values) > 0 {
				result = s.pop()
			}
			d.state = Coroutine_Done
			d.result = result
			ctx.running = InvalidValue
			return
		}

		if ctx.heap.ShouldCollect() {
			ctx.CollectGarbage()
		}

		// Deliver the value a parked native call produced.
		if d.pending != InvalidValue {
			s.push(d.pending)
			d.pending = InvalidValue
		}

		f := s.currentFrame()

		// Resumable native frames are stepped, not decoded; each
		// step is one dispatch iteration, so collections can run
		// between steps like between ordinary instructions.
		if f.flags&frameResumable != 0 {
			nf := ctx.heap.data(f.template).(*nativeFunctionData)
			rf := &ResumableFrame{
				stack:      s,
				frameIndex: len(s.frames) - 1,
				state:      f.pc,
				result:     ctx.Null,
			}
			if err := nf.resumable(ctx, rf); err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			if rf.done {
				s.popFrame(rf.result)
			} else {
				s.currentFrame().pc = rf.state
			}
			continue
		}

		t := ctx.heap.data(f.template).(*functionTemplateData)
		code := ctx.heap.data(t.code).(*codeData).bytes

		if f.pc >= len(code) {
			fail(RuntimeError_Generic, "program counter out of range in %s", ctx.StringValue(t.name))
			return
		}

		op := Opcode(code[f.pc])
		operands := code[f.pc+1:]
		f.pc += op.SizeInBytes()

		switch op {
		case OpLoadNull:
			s.push(ctx.Null)
		case OpLoadFalse:
			s.push(ctx.False)
		case OpLoadTrue:
			s.push(ctx.True)

		case OpLoadInt:
			s.push(ctx.NewInteger(int64(decodeU64(operands))))

		case OpLoadFloat:
			s.push(ctx.NewFloat(math.Float64frombits(decodeU64(operands))))

		case OpLoadParam:
			s.push(*s.paramSlot(f, int(decodeU32(operands))))

		case OpStoreParam:
			v := s.pop()
			*s.paramSlot(f, int(decodeU32(operands))) = v

		case OpLoadLocal:
			s.push(*s.localSlot(f, int(decodeU32(operands))))

		case OpStoreLocal:
			v := s.pop()
			*s.localSlot(f, int(decodeU32(operands))) = v

		case OpLoadModule:
			v, err := ctx.moduleMember(t.module, int(decodeU32(operands)))
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			s.push(v)

		case OpStoreModule:
			v := s.pop()
			m := ctx.moduleDataOf(t.module)
			m.members[int(decodeU32(operands))] = v

		case OpLoadMember:
			name, err := ctx.moduleMember(t.module, int(decodeU32(operands)))
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			obj := s.pop()
			v, rerr := ctx.loadMember(obj, name)
			if rerr != nil {
				ctx.failCoroutine(coro, rerr)
				return
			}
			s.push(v)

		case OpStoreMember:
			name, err := ctx.moduleMember(t.module, int(decodeU32(operands)))
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			v := s.pop()
			obj := s.pop()
			if rerr := ctx.storeMember(obj, name, v); rerr != nil {
				ctx.failCoroutine(coro, rerr)
				return
			}

		case OpLoadTupleMember:
			index := int(decodeU32(operands))
			obj := s.pop()
			if ctx.heap.TypeOf(obj) != Tag_Tuple {
				fail(RuntimeError_TypeMismatch, "expected a tuple, got %s", ctx.TypeName(obj))
				return
			}
			items := ctx.tupleItems(obj)
			if index < 0 || index >= len(items) {
				fail(RuntimeError_OutOfRange, "tuple index %d out of range", index)
				return
			}
			s.push(items[index])

		case OpStoreTupleMember:
			index := int(decodeU32(operands))
			v := s.pop()
			obj := s.pop()
			if ctx.heap.TypeOf(obj) != Tag_Tuple {
				fail(RuntimeError_TypeMismatch, "expected a tuple, got %s", ctx.TypeName(obj))
				return
			}
			items := ctx.tupleItems(obj)
			if index < 0 || index >= len(items) {
				fail(RuntimeError_OutOfRange, "tuple index %d out of range", index)
				return
			}
			items[index] = v

		case OpLoadIndex:
			key := s.pop()
			obj := s.pop()
			v, err := ctx.loadIndex(obj, key)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			s.push(v)

		case OpStoreIndex:
			v := s.pop()
			key := s.pop()
			obj := s.pop()
			if err := ctx.storeIndex(obj, key, v); err != nil {
				ctx.failCoroutine(coro, err)
				return
			}

		case OpLoadClosure:
			s.push(f.env)

		case OpLoadEnv:
			level := int(decodeU32(operands))
			index := int(decodeU32(operands[4:]))
			env := s.pop()
			slot, err := ctx.envSlot(env, level, index)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			s.push(*slot)

		case OpStoreEnv:
			level := int(decodeU32(operands))
			index := int(decodeU32(operands[4:]))
			env := s.pop()
			v := s.pop()
			slot, err := ctx.envSlot(env, level, index)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			*slot = v

		case OpLoadMethod:
			name, err := ctx.moduleMember(t.module, int(decodeU32(operands)))
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			obj := s.pop()
			function, instance, rerr := ctx.loadMethod(obj, name)
			if rerr != nil {
				ctx.failCoroutine(coro, rerr)
				return
			}
			s.push(function)
			s.push(instance)

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
			right := s.pop()
			left := s.pop()
			v, err := ctx.arith(op, left, right)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			s.push(v)

		case OpUPos, OpUNeg, OpLNot:
			operand := s.pop()
			v, err := ctx.unary(op, operand)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			s.push(v)

		case OpGt, OpGte, OpLt, OpLte:
			right := s.pop()
			left := s.pop()
			cmp, err := ctx.compare(left, right)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			var result bool
			switch op {
			case OpGt:
				result = cmp > 0
			case OpGte:
				result = cmp >= 0
			case OpLt:
				result = cmp < 0
			case OpLte:
				result = cmp <= 0
			}
			s.push(ctx.Bool(result))

		case OpEq:
			right := s.pop()
			left := s.pop()
			s.push(ctx.Bool(ctx.Equal(left, right)))

		case OpNEq:
			right := s.pop()
			left := s.pop()
			s.push(ctx.Bool(!ctx.Equal(left, right)))

		case OpCopy:
			s.push(s.top())

		case OpSwap:
			n := len(s.values)
			s.values[n-1], s.values[n-2] = s.values[n-2], s.values[n-1]

		case OpPop:
			s.pop()

		case OpPopTo:
			v := s.pop()
			*s.localSlot(f, int(decodeU32(operands))) = v

		case OpArray:
			n := int(decodeU32(operands))
			items := make([]Value, n)
			copy(items, s.values[len(s.values)-n:])
			s.values = s.values[:len(s.values)-n]
			s.push(ctx.NewArray(items))

		case OpTuple:
			n := int(decodeU32(operands))
			items := make([]Value, n)
			copy(items, s.values[len(s.values)-n:])
			s.values = s.values[:len(s.values)-n]
			s.push(ctx.NewTuple(items))

		case OpSet:
			n := int(decodeU32(operands))
			set := ctx.NewSet()
			table := ctx.heap.data(set).(*setData).table
			for _, item := range s.values[len(s.values)-n:] {
				ctx.tableSet(table, item, ctx.Null)
			}
			s.values = s.values[:len(s.values)-n]
			s.push(set)

		case OpMap:
			pairs := int(decodeU32(operands))
			m := ctx.NewMap()
			base := len(s.values) - 2*pairs
			for i := 0; i < pairs; i++ {
				ctx.tableSet(m, s.values[base+2*i], s.values[base+2*i+1])
			}
			s.values = s.values[:base]
			s.push(m)

		case OpEnv:
			size := int(decodeU32(operands))
			parent := s.pop()
			s.push(ctx.NewEnvironment(parent, size))

		case OpClosure:
			template := s.pop()
			env := s.pop()
			if ctx.heap.TypeOf(template) == Tag_Function {
				template = ctx.heap.data(template).(*functionData).template
			}
			if ctx.heap.TypeOf(template) != Tag_FunctionTemplate {
				fail(RuntimeError_TypeMismatch, "closure over a non-function")
				return
			}
			s.push(ctx.NewFunction(template, env))

		case OpRecord:
			member, err := ctx.moduleMember(t.module, int(decodeU32(operands)))
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			keys := ctx.tupleItems(member)
			n := len(keys)
			values := make([]Value, n)
			copy(values, s.values[len(s.values)-n:])
			s.values = s.values[:len(s.values)-n]
			s.push(ctx.NewRecord(keys, values))

		case OpIterator:
			container := s.pop()
			iter, err := ctx.makeIterator(container)
			if err != nil {
				ctx.failCoroutine(coro, err)
				return
			}
			s.push(iter)

		case OpIteratorNext:
			iter := s.pop()
			item, valid := ctx.iteratorNext(iter)
			s.push(item)
			s.push(ctx.Bool(valid))

		case OpFormatter:
			s.push(ctx.NewStringBuilder())

		case OpAppendFormat:
			v := s.pop()
			builder := ctx.heap.data(s.top()).(*stringBuilderData)
			builder.buf = append(builder.buf, ctx.FormatValue(v)...)

		case OpFormatResult:
			builder := s.pop()
			s.push(ctx.NewString(ctx.StringValue(builder)))

		case OpJmp:
			f.pc = int(decodeU32(operands))

		case OpJmpTrue:
			v := s.pop()
			if ctx.Truthy(v) {
				f.pc = int(decodeU32(operands))
			}

		case OpJmpFalse:
			v := s.pop()
			if !ctx.Truthy(v) {
				f.pc = int(decodeU32(operands))
			}

		case OpCall:
			n := int(decodeU32(operands))
			if !ctx.startCall(coro, s, n, 0) {
				return
			}
			if d.state != Coroutine_Running {
				ctx.running = InvalidValue
				return
			}

		case OpCallMethod:
			n := int(decodeU32(operands))
			instance := s.values[len(s.values)-n-1]
			if ctx.heap.TypeOf(instance) != Tag_Null {
				// Instance-bound: the instance becomes the
				// first argument; only the function slot is
				// dropped on return.
				if !ctx.startCall(coro, s, n+1, 0) {
					return
				}
			} else {
				// Static member through method syntax: the
				// null marker stays below the arguments and
				// is dropped together with the function.
				if !ctx.startCallFlags(coro, s, n, framePopOneMore) {
					return
				}
			}
			if d.state != Coroutine_Running {
				ctx.running = InvalidValue
				return
			}

		case OpReturn:
			result := s.pop()
			s.popFrame(result)

		case OpAssertFail:
			message := s.pop()
			expr := s.pop()
			var err *RuntimeError
			if ctx.heap.TypeOf(message) == Tag_Null {
				err = newRuntimeError(RuntimeError_AssertionFailed,
					"assertion `%s` failed", ctx.StringValue(expr))
			} else {
				err = newRuntimeError(RuntimeError_AssertionFailed,
					"%s", ctx.FormatValue(message))
			}
			ctx.failCoroutine(coro, err)
			return

		default:
			fail(RuntimeError_Generic, "invalid opcode %d", byte(op))
			return
		}
	}
}

// failCoroutine terminates the running coroutine with a runtime
// error.  Errors never unwind across the scheduler boundary.
func (ctx *Context) failCoroutine(coro Value, err *RuntimeError) {
	d := ctx.coroutineDataOf(coro)
	d.state = Coroutine_Done
	d.err = err
	d.result = ctx.Null
	ctx.running = InvalidValue
	ctx.logger.Sugar().Debugw("coroutine failed",
		"coroutine", ctx.StringValue(d.name), "error", err.Error())
}

// startCall begins a call with the stack laid out as
// [callee, a1..an].  Returns false when the coroutine trapped.
func (ctx *Context) startCall(coro Value, s *coroutineStackData, argCount int, flags frameFlags) bool {
	return ctx.startCallFlags(coro, s, argCount, flags)
}

func (ctx *Context) startCallFlags(coro Value, s *coroutineStackData, argCount int, flags frameFlags) bool {
	extra := 1
	if flags&framePopOneMore != 0 {
		extra = 2
	}
	calleeIndex := len(s.values) - argCount - extra
	callee := s.values[calleeIndex]

	switch ctx.heap.TypeOf(callee) {
	case Tag_Function:
		fd := ctx.heap.data(callee).(*functionData)
		t := ctx.heap.data(fd.template).(*functionTemplateData)
		if t.params != argCount {
			ctx.failCoroutine(coro, newRuntimeError(RuntimeError_WrongArity,
				"%s expects %d argument(s), got %d", ctx.StringValue(t.name), t.params, argCount))
			return false
		}
		s.pushFrame(ctx, fd.template, fd.env, argCount, flags)
		return true

	case Tag_FunctionTemplate:
		t := ctx.heap.data(callee).(*functionTemplateData)
		if t.params != argCount {
			ctx.failCoroutine(coro, newRuntimeError(RuntimeError_WrongArity,
				"%s expects %d argument(s), got %d", ctx.StringValue(t.name), t.params, argCount))
			return false
		}
		s.pushFrame(ctx, callee, ctx.Null, argCount, flags)
		return true

	case Tag_BoundMethod:
		// Reconstruct the instance and unwrap to the underlying
		// function: the instance is inserted directly below the
		// arguments, the bound method slot becomes the function.
		bm := ctx.heap.data(callee).(*boundMethodData)
		s.values[calleeIndex] = bm.function
		s.values = append(s.values, InvalidValue)
		argStart := len(s.values) - 1 - argCount
		copy(s.values[argStart+1:], s.values[argStart:len(s.values)-1])
		s.values[argStart] = bm.instance
		return ctx.startCallFlags(coro, s, argCount+1, flags)

	case Tag_NativeFunction:
		nf := ctx.heap.data(callee).(*nativeFunctionData)
		if nf.arity >= 0 && nf.arity != argCount {
			ctx.failCoroutine(coro, newRuntimeError(RuntimeError_WrongArity,
				"%s expects %d argument(s), got %d", ctx.StringValue(nf.name), nf.arity, argCount))
			return false
		}

		if nf.resumable != nil {
			// The state machine runs in a real frame; its
			// arguments stay on the stack and the dispatch
			// loop drives it step by step.
			s.pushResumableFrame(ctx, callee, argCount, nf.frameLocals, flags)
			return true
		}

		args := make([]Value, argCount)
		copy(args, s.values[len(s.values)-argCount:])
		s.values = s.values[:calleeIndex]

		if nf.async != nil {
			// Park the coroutine; the native call receives
			// the resume token and schedules the
			// continuation.
			d := ctx.coroutineDataOf(coro)
			token := d.token
			if token == InvalidValue || ctx.heap.data(token).(*coroutineTokenData).used {
				token = ctx.NewCoroutineToken(coro)
			}
			d.state = Coroutine_Waiting
			// The call's result arrives when the coroutine is
			// resumed; null unless the resumer supplies one.
			d.pending = ctx.Null
			ctx.scheduler.waiting[token] = coro
			nf.async(ctx, token, args)
			return true
		}

		result, err := nf.sync(ctx, args)
		if err != nil {
			ctx.failCoroutine(coro, err)
			return false
		}
		s.push(result)
		return true
	}

	ctx.failCoroutine(coro, newRuntimeError(RuntimeError_TypeMismatch,
		"%s is not callable", ctx.TypeName(callee)))
	return false
}

// envSlot resolves an environment chain walk.
func (ctx *Context) envSlot(env Value, level, index int) (*Value, *RuntimeError) {
	for i := 0; i < level; i++ {
		if ctx.heap.TypeOf(env) != Tag_Environment {
			return nil, newRuntimeError(RuntimeError_Generic, "broken environment chain")
		}
		env = ctx.envData(env).parent
	}
	if ctx.heap.TypeOf(env) != Tag_Environment {
		return nil, newRuntimeError(RuntimeError_Generic, "broken environment chain")
	}
	d := ctx.envData(env)
	if index < 0 || index >= len(d.slots) {
		return nil, newRuntimeError(RuntimeError_OutOfRange, "environment slot %d out of range", index)
	}
	return &d.slots[index], nil
}
