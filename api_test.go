package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingAPI(t *testing.T) {
	t.Run("load and invoke", func(t *testing.T) {
		c := ContextNew(nil)
		defer ContextFree(c)

		status := ContextLoad(c, "m", []byte("export func f() = 41 + 1;"), nil)
		require.Equal(t, StatusOK, status)

		ctx := c.Context()
		v, rerr := ctx.Invoke("m", "f")
		require.Nil(t, rerr)
		assert.Equal(t, int64(42), ctx.IntValue(v))
	})

	t.Run("bad source reports diagnostics", func(t *testing.T) {
		c := ContextNew(nil)
		defer ContextFree(c)

		diags := DiagnosticsNew(c)
		defer DiagnosticsFree(diags)

		status := ContextLoad(c, "m", []byte("func broken( = ;"), diags)
		assert.Equal(t, StatusBadSource, status)
		assert.True(t, DiagnosticsHasMessages(diags))

		DiagnosticsClear(diags)
		assert.False(t, DiagnosticsHasMessages(diags))
	})

	t.Run("duplicate module name", func(t *testing.T) {
		c := ContextNew(nil)
		defer ContextFree(c)

		require.Equal(t, StatusOK, ContextLoad(c, "m", []byte("export func f() = 1;"), nil))
		assert.Equal(t, StatusModuleExists, ContextLoad(c, "m", []byte("export func g() = 2;"), nil))
	})

	t.Run("empty module name is a bad argument", func(t *testing.T) {
		c := ContextNew(nil)
		defer ContextFree(c)
		assert.Equal(t, StatusBadArg, ContextLoad(c, "", []byte("export func f() = 1;"), nil))
	})

	t.Run("freed context rejects calls", func(t *testing.T) {
		c := ContextNew(nil)
		ContextFree(c)
		assert.Equal(t, StatusBadArg, ContextLoad(c, "m", []byte(""), nil))
	})

	t.Run("error log receives messages", func(t *testing.T) {
		var messages []string
		var data interface{}
		c := ContextNew(&Settings{
			ErrorLog: func(message string, userdata interface{}) {
				messages = append(messages, message)
				data = userdata
			},
			ErrorLogData: "user-data",
		})
		defer ContextFree(c)

		status := ContextLoad(c, "m", []byte("func broken( = ;"), nil)
		assert.Equal(t, StatusBadSource, status)
		require.NotEmpty(t, messages)
		assert.Equal(t, "user-data", data)
	})

	t.Run("status strings", func(t *testing.T) {
		assert.Equal(t, "ok", ErrorStr(StatusOK))
		assert.Equal(t, "invalid source code", ErrorStr(StatusBadSource))
		assert.Equal(t, "module already exists", ErrorStr(StatusModuleExists))
		assert.Equal(t, "internal error", ErrorStr(StatusInternal))
		assert.Equal(t, "unknown status", ErrorStr(Status(99)))
	})

	t.Run("cross module imports resolve lazily", func(t *testing.T) {
		c := ContextNew(nil)
		defer ContextFree(c)

		require.Equal(t, StatusOK, ContextLoad(c, "lib", []byte("export func double(n) = n * 2;"), nil))
		require.Equal(t, StatusOK, ContextLoad(c, "app", []byte(`
import lib;
export func f() = lib.double(21);`), nil))

		ctx := c.Context()
		v, rerr := ctx.Invoke("app", "f")
		require.Nil(t, rerr)
		assert.Equal(t, int64(42), ctx.IntValue(v))
	})

	t.Run("missing import surfaces at first use", func(t *testing.T) {
		c := ContextNew(nil)
		defer ContextFree(c)

		require.Equal(t, StatusOK, ContextLoad(c, "app", []byte(`
import missing;
export func f() = missing.g();`), nil))

		ctx := c.Context()
		_, rerr := ctx.Invoke("app", "f")
		require.NotNil(t, rerr)
		assert.Contains(t, rerr.Message, "missing")
	})
}
