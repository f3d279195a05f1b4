package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringTable(t *testing.T) {
	t.Run("interning is idempotent", func(t *testing.T) {
		table := NewStringTable()
		a := table.Insert("hello")
		b := table.Insert("hello")
		assert.Equal(t, a, b)
		assert.Equal(t, "hello", table.Value(a))
	})

	t.Run("distinct content distinct ids", func(t *testing.T) {
		table := NewStringTable()
		a := table.Insert("a")
		b := table.Insert("b")
		assert.NotEqual(t, a, b)
		assert.Equal(t, "a", table.Value(a))
		assert.Equal(t, "b", table.Value(b))
	})

	t.Run("zero id is invalid", func(t *testing.T) {
		table := NewStringTable()
		assert.False(t, InternedString(0).Valid())
		assert.True(t, table.Insert("x").Valid())
		assert.Panics(t, func() { table.Value(InternedString(0)) })
	})

	t.Run("lookup without insert", func(t *testing.T) {
		table := NewStringTable()
		_, ok := table.Lookup("missing")
		assert.False(t, ok)
		id := table.Insert("present")
		got, ok := table.Lookup("present")
		require.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("size ignores the invalid id", func(t *testing.T) {
		table := NewStringTable()
		assert.Equal(t, 0, table.Size())
		table.Insert("one")
		table.Insert("one")
		table.Insert("two")
		assert.Equal(t, 2, table.Size())
	})

	t.Run("content survives growth", func(t *testing.T) {
		table := NewStringTable()
		ids := make([]InternedString, 100)
		for i := range ids {
			ids[i] = table.Insert(string(rune('a'+i%26)) + "suffix")
		}
		for i, id := range ids {
			assert.Equal(t, string(rune('a'+i%26))+"suffix", table.Value(id))
		}
	})
}
