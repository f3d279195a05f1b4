package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coroutineSource = `
import std;

var status = "initial";
var tok = null;
var coro = null;

export func status_of() = status;
export func token_of() = tok;
export func coro_of() = coro;

export func start() {
	coro = std.launch(run);
}

func run() {
	tok = std.coroutine_token();
	status = "before";
	std.yield_coroutine();
	status = "after";
}
`

func TestCoroutines(t *testing.T) {
	t.Run("yield and resume", func(t *testing.T) {
		ctx := loadModule(t, coroutineSource)

		// Launch and drain: the coroutine runs up to its yield.
		run(t, ctx, "start")
		assert.Equal(t, "before", ctx.StringValue(run(t, ctx, "status_of")))

		coro := run(t, ctx, "coro_of")
		require.Equal(t, Tag_Coroutine, ctx.TypeOf(coro))
		assert.Equal(t, Coroutine_Waiting, ctx.CoroutineState(coro))

		token := run(t, ctx, "token_of")
		require.Equal(t, Tag_CoroutineToken, ctx.TypeOf(token))
		assert.True(t, ctx.TokenValid(token))

		// Resume and drain again: the coroutine finishes.
		require.True(t, ctx.ResumeToken(token))
		ctx.RunReady()

		assert.Equal(t, "after", ctx.StringValue(run(t, ctx, "status_of")))
		assert.Equal(t, Coroutine_Done, ctx.CoroutineState(coro))
	})

	t.Run("tokens are single use", func(t *testing.T) {
		ctx := loadModule(t, coroutineSource)
		run(t, ctx, "start")

		token := run(t, ctx, "token_of")
		require.True(t, ctx.ResumeToken(token))
		assert.False(t, ctx.TokenValid(token), "a consumed token is invalid")
		assert.False(t, ctx.ResumeToken(token), "repeated resume is a no-op")
		ctx.RunReady()
		assert.Equal(t, "after", ctx.StringValue(run(t, ctx, "status_of")))
	})

	t.Run("token before waiting is not yet valid", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
var tok = null;
export func grab() { tok = std.coroutine_token(); }
export func token_of() = tok;
`)
		run(t, ctx, "grab")
		token := run(t, ctx, "token_of")
		require.Equal(t, Tag_CoroutineToken, ctx.TypeOf(token))
		// The issuing coroutine already finished without waiting.
		assert.False(t, ctx.TokenValid(token))
		assert.False(t, ctx.ResumeToken(token))
	})

	t.Run("state machine transitions", func(t *testing.T) {
		ctx := loadModule(t, coroutineSource)

		coro := ctx.Launch("probe", mustExport(t, ctx, "status_of"), nil)
		assert.Equal(t, Coroutine_Ready, ctx.CoroutineState(coro))
		ctx.RunReady()
		assert.Equal(t, Coroutine_Done, ctx.CoroutineState(coro))

		result, rerr := ctx.CoroutineResult(coro)
		require.Nil(t, rerr)
		assert.Equal(t, "initial", ctx.StringValue(result))
	})

	t.Run("ready queue is fifo", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
var order = "";
export func order_of() = order;
export func go() {
	std.launch(func() { order += "a"; });
	std.launch(func() { order += "b"; });
	std.launch(func() { order += "c"; });
}`)
		run(t, ctx, "go")
		assert.Equal(t, "abc", ctx.StringValue(run(t, ctx, "order_of")))
	})

	t.Run("runtime error marks the coroutine done with a failure", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
var coro = null;
export func coro_of() = coro;
export func go() { coro = std.launch(func() { assert(false, "boom"); }); }`)
		run(t, ctx, "go")

		coro := run(t, ctx, "coro_of")
		assert.Equal(t, Coroutine_Done, ctx.CoroutineState(coro))
		_, rerr := ctx.CoroutineResult(coro)
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_AssertionFailed, rerr.Kind)
	})

	t.Run("coroutine result methods guard the variants", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
var ok = null;
var bad = null;
export func go() {
	ok = std.launch(func() = 7);
	bad = std.launch(func() { assert(false, "no"); });
}
export func ok_result() = ok.result();
export func bad_value() = bad.result();
export func bad_error() = bad.error();
export func ok_error() = ok.error();
`)
		run(t, ctx, "go")

		assert.Equal(t, int64(7), ctx.IntValue(run(t, ctx, "ok_result")))

		_, rerr := ctx.Invoke("test", "bad_value")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_BadResultAccess, rerr.Kind)

		msg := run(t, ctx, "bad_error")
		assert.Contains(t, ctx.StringValue(msg), "no")

		_, rerr = ctx.Invoke("test", "ok_error")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_BadResultAccess, rerr.Kind)
	})

	t.Run("launch passes arguments", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
var got = 0;
export func got_of() = got;
export func go() { std.launch(func(a, b) { got = a + b; }, 4, 5); }`)
		run(t, ctx, "go")
		assert.Equal(t, int64(9), ctx.IntValue(run(t, ctx, "got_of")))
	})

	t.Run("unreferenced waiting coroutines are collected", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
export func go() {
	std.launch(func() { std.yield_coroutine(); });
}`)
		run(t, ctx, "go")
		ctx.CollectGarbage()
		ctx.CollectGarbage()
		before := ctx.Heap().LiveCount()
		ctx.CollectGarbage()
		assert.Equal(t, before, ctx.Heap().LiveCount(),
			"an unreachable parked coroutine must not keep surviving")
	})
}

// mustExport resolves an export or fails the test.
func mustExport(t *testing.T, ctx *Context, name string) Value {
	t.Helper()
	module, ok := ctx.Module("test")
	require.True(t, ok)
	fn, ok := ctx.LookupExport(module, name)
	require.True(t, ok)
	return fn
}
