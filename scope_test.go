package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSource(t *testing.T, source string) (*File, *SymbolTable, *Diagnostics) {
	t.Helper()
	diags := NewDiagnostics()
	file := ParseFile([]byte(source), diags)
	require.False(t, diags.HasErrors(), "parse failed:\n%s", diags)
	table := BuildScopes(file, NewStringTable(), diags)
	return file, table, diags
}

// findVarExpr returns the first VarExpr with the given name.
func findVarExpr(file *File, name string) *VarExpr {
	var found *VarExpr
	_ = Walk(file, func(n AstNode) error {
		if v, ok := n.(*VarExpr); ok && v.Name == name && found == nil {
			found = v
		}
		return nil
	})
	return found
}

func TestScopeBuilder(t *testing.T) {
	t.Run("file scope symbols", func(t *testing.T) {
		_, table, diags := buildSource(t, "import std; export func f() = 1; var x = 2;")
		require.False(t, diags.HasErrors())

		syms := table.File.Symbols()
		require.Len(t, syms, 3)
		assert.Equal(t, Symbol_Import, syms[0].Kind)
		assert.Equal(t, Symbol_Function, syms[1].Kind)
		assert.True(t, syms[1].Exported)
		assert.Equal(t, Symbol_Variable, syms[2].Kind)
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		_, _, diags := buildSource(t, "func f() { var a = 1; var a = 2; }")
		assert.True(t, diags.HasErrors())
	})

	t.Run("shadowing in a nested block is fine", func(t *testing.T) {
		_, _, diags := buildSource(t, "func f() { var a = 1; { var a = 2; } }")
		assert.False(t, diags.HasErrors(), "%s", diags)
	})

	t.Run("references resolve to symbols", func(t *testing.T) {
		file, table, diags := buildSource(t, "func f(p) { var a = 1; return a + p; }")
		require.False(t, diags.HasErrors())

		a := findVarExpr(file, "a")
		require.NotNil(t, a)
		sym := table.SymbolOfRef(a)
		require.NotNil(t, sym)
		assert.Equal(t, Symbol_Variable, sym.Kind)

		p := findVarExpr(file, "p")
		require.NotNil(t, p)
		assert.Equal(t, Symbol_Parameter, table.SymbolOfRef(p).Kind)
	})

	t.Run("undefined names are diagnosed", func(t *testing.T) {
		_, _, diags := buildSource(t, "func f() = ghost;")
		assert.True(t, diags.HasErrors())
	})

	t.Run("use before definition is diagnosed", func(t *testing.T) {
		_, _, diags := buildSource(t, "func f() { var a = a; }")
		assert.True(t, diags.HasErrors())
	})

	t.Run("forward reference to a file function is fine", func(t *testing.T) {
		_, _, diags := buildSource(t, "func f() = g(); func g() = 1;")
		assert.False(t, diags.HasErrors(), "%s", diags)
	})

	t.Run("captures are detected", func(t *testing.T) {
		file, table, diags := buildSource(t,
			"func outer() { var a = 1; return func() = a; }")
		require.False(t, diags.HasErrors())

		a := findVarExpr(file, "a")
		sym := table.SymbolOfRef(a)
		require.NotNil(t, sym)
		assert.True(t, sym.Captured)
	})

	t.Run("local use does not capture", func(t *testing.T) {
		file, table, diags := buildSource(t, "func f() { var a = 1; return a; }")
		require.False(t, diags.HasErrors())
		sym := table.SymbolOfRef(findVarExpr(file, "a"))
		assert.False(t, sym.Captured)
	})

	t.Run("module level reads are not captures", func(t *testing.T) {
		file, table, diags := buildSource(t, "var g = 1; func f() = func() = g;")
		require.False(t, diags.HasErrors())
		sym := table.SymbolOfRef(findVarExpr(file, "g"))
		require.NotNil(t, sym)
		assert.False(t, sym.Captured)
		assert.True(t, sym.Scope.IsModuleLevel())
	})

	t.Run("loop variable lives in the for scope", func(t *testing.T) {
		file, table, diags := buildSource(t, "func f() { for (var i = 0; i < 3; i += 1) { } }")
		require.False(t, diags.HasErrors())
		sym := table.SymbolOfRef(findVarExpr(file, "i"))
		require.NotNil(t, sym)
		assert.Equal(t, Scope_ForStatement, sym.Scope.Kind)
	})
}

func TestSemanticChecker(t *testing.T) {
	check := func(t *testing.T, source string) *Diagnostics {
		t.Helper()
		file, table, diags := buildSource(t, source)
		if diags.HasErrors() {
			return diags
		}
		CheckSemantics(file, table, diags)
		return diags
	}

	t.Run("const must be initialized", func(t *testing.T) {
		assert.True(t, check(t, "func f() { const c; }").HasErrors())
	})

	t.Run("break outside a loop", func(t *testing.T) {
		assert.True(t, check(t, "func f() { break; }").HasErrors())
	})

	t.Run("continue outside a loop", func(t *testing.T) {
		assert.True(t, check(t, "func f() { continue; }").HasErrors())
	})

	t.Run("break inside a loop is fine", func(t *testing.T) {
		assert.False(t, check(t, "func f() { while (1) { break; } }").HasErrors())
	})

	t.Run("assigning a constant", func(t *testing.T) {
		assert.True(t, check(t, "func f() { const c = 1; c = 2; }").HasErrors())
	})

	t.Run("assigning a function", func(t *testing.T) {
		assert.True(t, check(t, "func g() = 1; func f() { g = 2; }").HasErrors())
	})

	t.Run("assigning an import", func(t *testing.T) {
		assert.True(t, check(t, "import std; func f() { std = 2; }").HasErrors())
	})

	t.Run("assignment needs a place", func(t *testing.T) {
		assert.True(t, check(t, "func f() { 1 = 2; }").HasErrors())
	})

	t.Run("tuple assignment of places is fine", func(t *testing.T) {
		assert.False(t, check(t, "func f() { var a = 1; var b = 2; (a, b) = (b, a); }").HasErrors())
	})

	t.Run("compound assignment cannot target a tuple", func(t *testing.T) {
		assert.True(t, check(t, "func f() { var a = 1; var b = 2; (a, b) += 1; }").HasErrors())
	})

	t.Run("if without else produces no value", func(t *testing.T) {
		assert.True(t, check(t, "func f() { var x = if (1) { 2 }; }").HasErrors())
	})

	t.Run("if with else can produce a value", func(t *testing.T) {
		assert.False(t, check(t, "func f() { var x = if (1) { 2 } else { 3 }; }").HasErrors())
	})

	t.Run("value categories reach never", func(t *testing.T) {
		file, table, diags := buildSource(t, "func f() { var x = if (1) { return 1; } else { return 2; }; }")
		require.False(t, diags.HasErrors())
		info := CheckSemantics(file, table, diags)
		assert.False(t, diags.HasErrors(), "%s", diags)

		var ifExpr *IfExpr
		_ = Walk(file, func(n AstNode) error {
			if v, ok := n.(*IfExpr); ok {
				ifExpr = v
			}
			return nil
		})
		require.NotNil(t, ifExpr)
		assert.Equal(t, Category_Never, info.CategoryOf(ifExpr))
	})
}
