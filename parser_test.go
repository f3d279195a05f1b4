package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, source string) (*File, *Diagnostics) {
	t.Helper()
	diags := NewDiagnostics()
	file := ParseFile([]byte(source), diags)
	return file, diags
}

func parseOK(t *testing.T, source string) *File {
	t.Helper()
	file, diags := parseSource(t, source)
	require.False(t, diags.HasErrors(), "unexpected diagnostics:\n%s", diags)
	return file
}

// firstFuncBody digs out the body expression of the first function.
func firstFuncBody(t *testing.T, file *File) Expr {
	t.Helper()
	for _, item := range file.Items {
		if fn, ok := item.(*FuncDecl); ok {
			return fn.Body
		}
	}
	t.Fatal("no function in file")
	return nil
}

func TestParser(t *testing.T) {
	t.Run("operator precedence", func(t *testing.T) {
		file := parseOK(t, "func f() = 1 + 2 * 3;")
		assert.Equal(t, "(1 + (2 * 3))", firstFuncBody(t, file).String())
	})

	t.Run("power is right associative", func(t *testing.T) {
		file := parseOK(t, "func f() = 2 ** 3 ** 2;")
		assert.Equal(t, "(2 ** (3 ** 2))", firstFuncBody(t, file).String())
	})

	t.Run("assignment is right associative", func(t *testing.T) {
		file := parseOK(t, "func f() { a = b = 1; }")
		block := firstFuncBody(t, file).(*BlockExpr)
		assert.Equal(t, "(a = (b = 1));", block.Stmts[0].String())
	})

	t.Run("comparison binds looser than addition", func(t *testing.T) {
		file := parseOK(t, "func f() = a + 1 < b;")
		assert.Equal(t, "((a + 1) < b)", firstFuncBody(t, file).String())
	})

	t.Run("postfix chains", func(t *testing.T) {
		file := parseOK(t, "func f() = a.b[0].c(1, 2);")
		assert.Equal(t, "a.b[0].c(1, 2)", firstFuncBody(t, file).String())
	})

	t.Run("tuple member access", func(t *testing.T) {
		file := parseOK(t, "func f() = pair.0;")
		body := firstFuncBody(t, file)
		tf, ok := body.(*TupleFieldExpr)
		require.True(t, ok)
		assert.Equal(t, 0, tf.Index)
	})

	t.Run("record vs tuple vs grouping", func(t *testing.T) {
		file := parseOK(t, "func f() { var r = (a: 1, b: 2); var u = (1, 2); var g = (1); }")
		block := firstFuncBody(t, file).(*BlockExpr)

		r := block.Stmts[0].(*DeclStmt).Decl.Binding.(*VarBinding).Init
		require.IsType(t, &RecordLit{}, r)

		u := block.Stmts[1].(*DeclStmt).Decl.Binding.(*VarBinding).Init
		require.IsType(t, &TupleLit{}, u)

		g := block.Stmts[2].(*DeclStmt).Decl.Binding.(*VarBinding).Init
		require.IsType(t, &IntLit{}, g)
	})

	t.Run("container literals", func(t *testing.T) {
		file := parseOK(t, "func f() { var a = [1, 2]; var m = map{1: 2}; var s = set{1, 2}; }")
		block := firstFuncBody(t, file).(*BlockExpr)
		require.IsType(t, &ArrayLit{}, block.Stmts[0].(*DeclStmt).Decl.Binding.(*VarBinding).Init)
		require.IsType(t, &MapLit{}, block.Stmts[1].(*DeclStmt).Decl.Binding.(*VarBinding).Init)
		require.IsType(t, &SetLit{}, block.Stmts[2].(*DeclStmt).Decl.Binding.(*VarBinding).Init)
	})

	t.Run("for loop", func(t *testing.T) {
		file := parseOK(t, "func f() { for (var i = 0; i < 3; i += 1) { } }")
		block := firstFuncBody(t, file).(*BlockExpr)
		require.IsType(t, &ForStmt{}, block.Stmts[0])
	})

	t.Run("for each", func(t *testing.T) {
		file := parseOK(t, "func f() { for (const x in xs) { } }")
		block := firstFuncBody(t, file).(*BlockExpr)
		each, ok := block.Stmts[0].(*ForEachStmt)
		require.True(t, ok)
		assert.Equal(t, []string{"x"}, each.Binding.BoundNames())
		assert.True(t, each.Binding.Const())
	})

	t.Run("for each with tuple binding", func(t *testing.T) {
		file := parseOK(t, "func f() { for (const (k, v) in m) { } }")
		block := firstFuncBody(t, file).(*BlockExpr)
		each, ok := block.Stmts[0].(*ForEachStmt)
		require.True(t, ok)
		assert.Equal(t, []string{"k", "v"}, each.Binding.BoundNames())
	})

	t.Run("expression bodied function", func(t *testing.T) {
		file := parseOK(t, "export func f() = 1;")
		fn := file.Items[0].(*FuncDecl)
		assert.True(t, fn.Exported)
		assert.True(t, fn.IsExprBody)
	})

	t.Run("function literal call", func(t *testing.T) {
		file := parseOK(t, "func f() = (func() = 1)();")
		call, ok := firstFuncBody(t, file).(*CallExpr)
		require.True(t, ok)
		require.IsType(t, &FuncLiteralExpr{}, call.Func)
	})

	t.Run("string interpolation", func(t *testing.T) {
		file := parseOK(t, `func f() = "a${x}b";`)
		str, ok := firstFuncBody(t, file).(*StringExpr)
		require.True(t, ok)
		require.Len(t, str.Items, 3)
		require.IsType(t, &StringLit{}, str.Items[0])
		require.IsType(t, &VarExpr{}, str.Items[1])
	})

	t.Run("plain string collapses to a literal", func(t *testing.T) {
		file := parseOK(t, `func f() = "ab";`)
		require.IsType(t, &StringLit{}, firstFuncBody(t, file))
	})

	t.Run("assert with message", func(t *testing.T) {
		file := parseOK(t, `func f() { assert(1 == 2, "boom"); }`)
		block := firstFuncBody(t, file).(*BlockExpr)
		stmt, ok := block.Stmts[0].(*AssertStmt)
		require.True(t, ok)
		assert.Equal(t, "1 == 2", stmt.CondText)
		require.NotNil(t, stmt.Message)
	})

	t.Run("imports", func(t *testing.T) {
		file := parseOK(t, "import std.io;")
		imp := file.Items[0].(*ImportDecl)
		assert.Equal(t, "std.io", imp.ModuleName())
		assert.Equal(t, "io", imp.LocalName())
	})

	t.Run("statements at file scope are rejected", func(t *testing.T) {
		_, diags := parseSource(t, "1 + 2;")
		assert.True(t, diags.HasErrors())
	})

	t.Run("recovers after a bad item", func(t *testing.T) {
		file, diags := parseSource(t, "??; func ok() = 1;")
		assert.True(t, diags.HasErrors())
		found := false
		for _, item := range file.Items {
			if fn, ok := item.(*FuncDecl); ok && fn.Name == "ok" {
				found = true
			}
		}
		assert.True(t, found, "parser should recover and parse the function")
	})

	t.Run("node ids are assigned", func(t *testing.T) {
		file := parseOK(t, "func f() = 1;")
		seen := map[NodeID]bool{}
		err := Walk(file, func(n AstNode) error {
			require.True(t, n.ID().Valid())
			require.False(t, seen[n.ID()], "duplicate node id")
			seen[n.ID()] = true
			return nil
		})
		require.NoError(t, err)
	})
}
