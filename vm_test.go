package hammer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadModule compiles and loads one module into a fresh context.
func loadModule(t *testing.T, source string) *Context {
	t.Helper()
	ctx := NewContext(nil)
	_, err := ctx.LoadSource("test", []byte(source), nil)
	require.NoError(t, err)
	return ctx
}

// run invokes an exported function and requires success.
func run(t *testing.T, ctx *Context, name string, args ...Value) Value {
	t.Helper()
	v, rerr := ctx.Invoke("test", name, args...)
	require.Nil(t, rerr, "runtime error: %v", rerr)
	return v
}

func TestInterpreter(t *testing.T) {
	t.Run("arithmetic", func(t *testing.T) {
		ctx := loadModule(t, "export func f() = 1 + 2 * 3;")
		v := run(t, ctx, "f")
		assert.Equal(t, int64(7), ctx.IntValue(v))
	})

	t.Run("string building loop", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var s = "";
	for (var i = 0; i < 3; i = i + 1) {
		s = s + i;
	}
	return s;
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, "012", ctx.StringValue(v))
	})

	t.Run("for each over an array", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	const a = [10, 20, 30];
	var t = 0;
	for (const x in a) {
		t = t + x;
	}
	return t;
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(60), ctx.IntValue(v))
	})

	t.Run("closure captures locals", func(t *testing.T) {
		ctx := loadModule(t, `
export func outer() {
	var b = 2;
	while (1) {
		var a = 1;
		return (func() = a + b)();
	}
}`)
		v := run(t, ctx, "outer")
		assert.Equal(t, int64(3), ctx.IntValue(v))
	})

	t.Run("assertion failure", func(t *testing.T) {
		ctx := loadModule(t, `export func g() { assert(1 == 2, "nope"); }`)
		_, rerr := ctx.Invoke("test", "g")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_AssertionFailed, rerr.Kind)
		assert.Equal(t, "nope", rerr.Message)
	})

	t.Run("assertion without message carries the expression", func(t *testing.T) {
		ctx := loadModule(t, `export func g() { assert(1 > 2); }`)
		_, rerr := ctx.Invoke("test", "g")
		require.NotNil(t, rerr)
		assert.Contains(t, rerr.Message, "1 > 2")
	})

	t.Run("passing assertion is silent", func(t *testing.T) {
		ctx := loadModule(t, `export func g() { assert(1 < 2, "never"); return 1; }`)
		v := run(t, ctx, "g")
		assert.Equal(t, int64(1), ctx.IntValue(v))
	})

	t.Run("parameters and recursion", func(t *testing.T) {
		ctx := loadModule(t, `
export func fib(n) {
	if (n < 2) { return n; }
	return fib(n - 1) + fib(n - 2);
}`)
		v := run(t, ctx, "fib", MakeSmallInt(10))
		assert.Equal(t, int64(55), ctx.IntValue(v))
	})

	t.Run("counter closure keeps state", func(t *testing.T) {
		ctx := loadModule(t, `
func make_counter() {
	var n = 0;
	return func() {
		n += 1;
		return n;
	};
}
export func f() {
	const c = make_counter();
	c();
	c();
	return c();
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(3), ctx.IntValue(v))
	})

	t.Run("string interpolation", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var name = "tiro";
	var n = 2;
	return "hello ${name}, ${n + 1}!";
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, "hello tiro, 3!", ctx.StringValue(v))
	})

	t.Run("tuples and destructuring", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var (a, b) = (1, 2);
	(a, b) = (b, a);
	return a * 10 + b;
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(21), ctx.IntValue(v))
	})

	t.Run("tuple member access", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var pair = (7, 8);
	pair.1 = 9;
	return pair.0 + pair.1;
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(16), ctx.IntValue(v))
	})

	t.Run("arrays index and mutate", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var a = [1, 2, 3];
	a[1] = 20;
	a.append(4);
	return a[0] + a[1] + a[2] + a[3] + a.size();
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(32), ctx.IntValue(v))
	})

	t.Run("maps", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var m = map{"a": 1, "b": 2};
	m["c"] = 3;
	var total = 0;
	for (const (k, v) in m) {
		total += v;
	}
	return total + m.size();
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(9), ctx.IntValue(v))
	})

	t.Run("sets", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var s = set{1, 2, 2, 3};
	s.insert(4);
	s.remove(1);
	return s.size();
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(3), ctx.IntValue(v))
	})

	t.Run("records", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var p = (x: 3, y: 4);
	p.x = 30;
	return p.x + p.y;
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(34), ctx.IntValue(v))
	})

	t.Run("module variables and initializer", func(t *testing.T) {
		ctx := loadModule(t, `
var counter = 10;
export func bump() {
	counter += 1;
	return counter;
}`)
		assert.Equal(t, int64(11), ctx.IntValue(run(t, ctx, "bump")))
		assert.Equal(t, int64(12), ctx.IntValue(run(t, ctx, "bump")))
	})

	t.Run("logical operators short circuit", func(t *testing.T) {
		ctx := loadModule(t, `
var hits = 0;
func bump() { hits += 1; return true; }
export func f() {
	false && bump();
	true || bump();
	return hits;
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(0), ctx.IntValue(v))
	})

	t.Run("floats promote", func(t *testing.T) {
		ctx := loadModule(t, "export func f() = 1 + 0.5;")
		v := run(t, ctx, "f")
		assert.Equal(t, 1.5, ctx.FloatValue(v))
	})

	t.Run("division by zero traps", func(t *testing.T) {
		ctx := loadModule(t, "export func f() = 1 / 0;")
		_, rerr := ctx.Invoke("test", "f")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_DivideByZero, rerr.Kind)
	})

	t.Run("wrong arity traps", func(t *testing.T) {
		ctx := loadModule(t, "export func f(a, b) = a + b;")
		_, rerr := ctx.Invoke("test", "f", MakeSmallInt(1))
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_WrongArity, rerr.Kind)
	})

	t.Run("out of range index traps", func(t *testing.T) {
		ctx := loadModule(t, "export func f() { var a = [1]; return a[5]; }")
		_, rerr := ctx.Invoke("test", "f")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_OutOfRange, rerr.Kind)
	})

	t.Run("unknown method traps", func(t *testing.T) {
		ctx := loadModule(t, "export func f() = (1).frobnicate();")
		_, rerr := ctx.Invoke("test", "f")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_NoSuchMethod, rerr.Kind)
	})

	t.Run("std print goes to stdout", func(t *testing.T) {
		ctx := NewContext(nil)
		var out bytes.Buffer
		ctx.SetStdout(&out)
		_, err := ctx.LoadSource("test", []byte(`
import std;
export func f() { std.print("hello", 42); }`), nil)
		require.NoError(t, err)
		run(t, ctx, "f")
		assert.Equal(t, "hello 42\n", out.String())
	})

	t.Run("std to_string and string builder", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
export func f() {
	const b = std.new_string_builder();
	b.append("n=");
	b.append(std.to_string(5));
	return b.to_str();
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, "n=5", ctx.StringValue(v))
	})

	t.Run("std join runs resumably", func(t *testing.T) {
		ctx := loadModule(t, `
import std;
export func f() = std.join([1, 2, 3], "-");
export func g() = std.join([], "-");
export func bad() = std.join(1, "-");`)
		assert.Equal(t, "1-2-3", ctx.StringValue(run(t, ctx, "f")))
		assert.Equal(t, "", ctx.StringValue(run(t, ctx, "g")))

		_, rerr := ctx.Invoke("test", "bad")
		require.NotNil(t, rerr)
		assert.Equal(t, RuntimeError_BadArgument, rerr.Kind)
	})

	t.Run("symbols compare by identity", func(t *testing.T) {
		ctx := loadModule(t, "export func f() = #red == #red && #red != #blue;")
		v := run(t, ctx, "f")
		assert.True(t, ctx.Truthy(v))
	})

	t.Run("if else chains", func(t *testing.T) {
		ctx := loadModule(t, `
export func grade(n) {
	if (n >= 90) { return "a"; }
	else if (n >= 80) { return "b"; }
	else { return "c"; }
}`)
		assert.Equal(t, "a", ctx.StringValue(run(t, ctx, "grade", MakeSmallInt(95))))
		assert.Equal(t, "b", ctx.StringValue(run(t, ctx, "grade", MakeSmallInt(85))))
		assert.Equal(t, "c", ctx.StringValue(run(t, ctx, "grade", MakeSmallInt(70))))
	})

	t.Run("dead code elimination preserves effects", func(t *testing.T) {
		source := `
var log = "";
export func f() {
	var waste = 1 + 2;
	for (var i = 0; i < 3; i += 1) {
		log += i;
	}
	return log;
}`
		ctx := loadModule(t, source)
		v := run(t, ctx, "f")
		assert.Equal(t, "012", ctx.StringValue(v))
	})

	t.Run("gc during execution preserves results", func(t *testing.T) {
		ctx := loadModule(t, `
export func f() {
	var parts = [];
	for (var i = 0; i < 8000; i += 1) {
		parts.append("x" + i);
	}
	return parts.size();
}`)
		v := run(t, ctx, "f")
		assert.Equal(t, int64(8000), ctx.IntValue(v))
		assert.Greater(t, ctx.Heap().Collections(), 0, "the loop must trigger collections")
	})
}
