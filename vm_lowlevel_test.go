package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asm assembles a code stream from opcodes and operands.
type asm struct{ code []byte }

func (a *asm) op(op Opcode)      { a.code = append(a.code, byte(op)) }
func (a *asm) u32(v uint32)      { a.code = encodeU32(a.code, v) }
func (a *asm) i64(v int64)       { a.code = encodeU64(a.code, uint64(v)) }

// makeTemplate builds a function template around a raw code stream.
func makeTemplate(ctx *Context, params, locals int, code []byte) Value {
	codeObj := ctx.Heap().Alloc(Tag_Code, &codeData{bytes: code})
	md := &moduleData{
		name:        ctx.NewString("asm"),
		importNames: make(map[int]string),
		exports:     make(map[string]int),
		initFunc:    InvalidValue,
	}
	module := ctx.Heap().Alloc(Tag_Module, md)
	template := ctx.Heap().Alloc(Tag_FunctionTemplate, &functionTemplateData{
		name:   ctx.InternString("asm_fn"),
		module: module,
		params: params,
		locals: locals,
		code:   codeObj,
	})
	return template
}

func TestLowLevelOpcodes(t *testing.T) {
	t.Run("copy swap pop and pop_to", func(t *testing.T) {
		ctx := NewContext(nil)
		var a asm
		// Compute (10, 32): swap, drop the 10, keep a copy of 32
		// in local 0 and return local0 + 32.
		a.op(OpLoadInt)
		a.i64(32)
		a.op(OpLoadInt)
		a.i64(10)
		a.op(OpSwap) // [10, 32]
		a.op(OpCopy) // [10, 32, 32]
		a.op(OpPopTo)
		a.u32(0) // local0 = 32; [10, 32]
		a.op(OpSwap)
		a.op(OpPop) // [32]
		a.op(OpLoadLocal)
		a.u32(0)
		a.op(OpAdd)
		a.op(OpReturn)

		template := makeTemplate(ctx, 0, 1, a.code)
		fn := ctx.NewFunction(template, ctx.Null)
		result, rerr := ctx.CallFunction(fn, nil)
		require.Nil(t, rerr)
		assert.Equal(t, int64(64), ctx.IntValue(result))
	})

	t.Run("store_param writes the argument slot", func(t *testing.T) {
		ctx := NewContext(nil)
		var a asm
		a.op(OpLoadInt)
		a.i64(5)
		a.op(OpStoreParam)
		a.u32(0)
		a.op(OpLoadParam)
		a.u32(0)
		a.op(OpReturn)

		template := makeTemplate(ctx, 1, 0, a.code)
		fn := ctx.NewFunction(template, ctx.Null)
		result, rerr := ctx.CallFunction(fn, []Value{MakeSmallInt(1)})
		require.Nil(t, rerr)
		assert.Equal(t, int64(5), ctx.IntValue(result))
	})

	t.Run("invalid opcode traps instead of panicking", func(t *testing.T) {
		ctx := NewContext(nil)
		template := makeTemplate(ctx, 0, 0, []byte{0xff})
		fn := ctx.NewFunction(template, ctx.Null)
		_, rerr := ctx.CallFunction(fn, nil)
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_Generic, rerr.Kind)
	})
}

func TestResumableNatives(t *testing.T) {
	t.Run("the interpreter drives the state machine", func(t *testing.T) {
		ctx := NewContext(nil)

		steps := 0
		countUp := ctx.NewNativeResumableFunction("count_up", 1, 1,
			func(ctx *Context, frame *ResumableFrame) *RuntimeError {
				steps++
				switch frame.State() {
				case 0:
					frame.SetLocal(0, MakeSmallInt(0))
					frame.SetState(1)
				case 1:
					n := ctx.IntValue(frame.Local(0))
					if n >= ctx.IntValue(frame.Arg(0)) {
						frame.Return(MakeSmallInt(n))
						return nil
					}
					frame.SetLocal(0, MakeSmallInt(n+1))
				}
				return nil
			})

		result, rerr := ctx.CallFunction(countUp, []Value{MakeSmallInt(5)})
		require.Nil(t, rerr)
		assert.Equal(t, int64(5), ctx.IntValue(result))
		assert.Greater(t, steps, 2, "the machine must be stepped repeatedly")
	})

	t.Run("frame slots survive collections between steps", func(t *testing.T) {
		ctx := NewContext(nil)

		collect := ctx.NewNativeResumableFunction("collecting", 0, 1,
			func(ctx *Context, frame *ResumableFrame) *RuntimeError {
				switch frame.State() {
				case 0:
					frame.SetLocal(0, ctx.NewString("survivor"))
					frame.SetState(1)
				case 1:
					// The slot value was only reachable
					// through the frame across the last
					// safe point.
					ctx.CollectGarbage()
					frame.Return(frame.Local(0))
				}
				return nil
			})

		result, rerr := ctx.CallFunction(collect, nil)
		require.Nil(t, rerr)
		assert.Equal(t, "survivor", ctx.StringValue(result))
	})

	t.Run("step errors fail the coroutine", func(t *testing.T) {
		ctx := NewContext(nil)
		boom := ctx.NewNativeResumableFunction("boom", 0, 0,
			func(ctx *Context, frame *ResumableFrame) *RuntimeError {
				return newRuntimeError(RuntimeError_BadArgument, "step failed")
			})
		_, rerr := ctx.CallFunction(boom, nil)
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_BadArgument, rerr.Kind)
	})

	t.Run("arity applies to resumable natives", func(t *testing.T) {
		ctx := NewContext(nil)
		fn := ctx.NewNativeResumableFunction("needs_one", 1, 0,
			func(ctx *Context, frame *ResumableFrame) *RuntimeError {
				frame.Return(ctx.Null)
				return nil
			})
		_, rerr := ctx.CallFunction(fn, nil)
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_WrongArity, rerr.Kind)
	})
}

func TestBoundMethods(t *testing.T) {
	t.Run("bound methods reconstruct their instance", func(t *testing.T) {
		ctx := NewContext(nil)

		firstArg := ctx.NewNativeFunction("first_arg", 2, func(ctx *Context, args []Value) (Value, *RuntimeError) {
			return args[0], nil
		})
		instance := ctx.NewString("the instance")
		bm := ctx.NewBoundMethod(firstArg, instance)

		result, rerr := ctx.CallFunction(bm, []Value{MakeSmallInt(7)})
		require.Nil(t, rerr)
		assert.Equal(t, "the instance", ctx.StringValue(result))
	})

	t.Run("wrong arity through a bound method", func(t *testing.T) {
		ctx := NewContext(nil)
		fn := ctx.NewNativeFunction("two_args", 2, func(ctx *Context, args []Value) (Value, *RuntimeError) {
			return ctx.Null, nil
		})
		bm := ctx.NewBoundMethod(fn, ctx.Null)
		_, rerr := ctx.CallFunction(bm, []Value{MakeSmallInt(1), MakeSmallInt(2)})
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_WrongArity, rerr.Kind)
	})
}
