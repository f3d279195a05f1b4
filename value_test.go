package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRepresentation(t *testing.T) {
	t.Run("small integers are inline", func(t *testing.T) {
		for _, n := range []int64{0, 1, -1, 42, -42, smallIntMin, smallIntMax} {
			v := MakeSmallInt(n)
			require.True(t, v.IsSmallInt(), "n=%d", n)
			assert.Equal(t, n, v.SmallInt(), "n=%d", n)
		}
	})

	t.Run("inline range bounds", func(t *testing.T) {
		assert.True(t, FitsSmallInt(smallIntMax))
		assert.True(t, FitsSmallInt(smallIntMin))
		assert.False(t, FitsSmallInt(smallIntMax+1))
		assert.False(t, FitsSmallInt(smallIntMin-1))
	})

	t.Run("overflowing integers box transparently", func(t *testing.T) {
		ctx := NewContext(nil)
		v := ctx.NewInteger(smallIntMax + 1)
		require.False(t, v.IsSmallInt())
		assert.Equal(t, Tag_Integer, ctx.TypeOf(v))
		assert.Equal(t, smallIntMax+1, ctx.IntValue(v))
	})

	t.Run("type derives in O(1) from tag or header", func(t *testing.T) {
		ctx := NewContext(nil)
		assert.Equal(t, Tag_Integer, ctx.TypeOf(MakeSmallInt(7)))
		assert.Equal(t, Tag_Null, ctx.TypeOf(ctx.Null))
		assert.Equal(t, Tag_Boolean, ctx.TypeOf(ctx.True))
		assert.Equal(t, Tag_String, ctx.TypeOf(ctx.NewString("x")))
		assert.Equal(t, Tag_Float, ctx.TypeOf(ctx.NewFloat(1.5)))
	})

	t.Run("null equals itself", func(t *testing.T) {
		ctx := NewContext(nil)
		assert.True(t, ctx.Equal(ctx.Null, ctx.Null))
		assert.False(t, ctx.Equal(ctx.Null, ctx.False))
	})

	t.Run("interned strings compare by identity", func(t *testing.T) {
		ctx := NewContext(nil)
		a := ctx.InternString("canonical")
		b := ctx.InternString("canonical")
		assert.Equal(t, a, b)
		c := ctx.NewString("canonical")
		assert.NotEqual(t, a, c)
		assert.True(t, ctx.Equal(a, c), "content equality still holds")
	})

	t.Run("symbols are canonical", func(t *testing.T) {
		ctx := NewContext(nil)
		assert.Equal(t, ctx.NewSymbol("ok"), ctx.NewSymbol("ok"))
		assert.NotEqual(t, ctx.NewSymbol("ok"), ctx.NewSymbol("other"))
	})

	t.Run("string slices pin their backing string", func(t *testing.T) {
		ctx := NewContext(nil)
		backing := ctx.NewString("hello world")
		slice := ctx.NewStringSlice(backing, 6, 5)
		assert.Equal(t, "world", ctx.StringValue(slice))
		assert.Equal(t, Tag_StringSlice, ctx.TypeOf(slice))
	})

	t.Run("formatting", func(t *testing.T) {
		ctx := NewContext(nil)
		assert.Equal(t, "null", ctx.FormatValue(ctx.Null))
		assert.Equal(t, "42", ctx.FormatValue(MakeSmallInt(42)))
		assert.Equal(t, "1.5", ctx.FormatValue(ctx.NewFloat(1.5)))
		assert.Equal(t, "#sym", ctx.FormatValue(ctx.NewSymbol("sym")))
		tuple := ctx.NewTuple([]Value{MakeSmallInt(1), MakeSmallInt(2)})
		assert.Equal(t, "(1, 2)", ctx.FormatValue(tuple))
	})
}
