package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileLink(t *testing.T, source string) *LinkObject {
	t.Helper()
	result, err := CompileSource("test", []byte(source), NewConfig(), NewDiagnostics())
	require.NoError(t, err)
	return result.Link
}

func TestCodegen(t *testing.T) {
	t.Run("label fixups round trip", func(t *testing.T) {
		lo := compileLink(t, `
export func f(n) {
	var s = 0;
	for (var i = 0; i < n; i += 1) {
		if (i == 2) { continue; }
		s += i;
	}
	return s;
}`)
		for _, fn := range lo.Functions {
			require.NotEmpty(t, fn.Fixups, "%s: control flow must produce fixups", fn.Name)
			for _, fix := range fn.Fixups {
				target, ok := fn.Labels[fix.Label]
				require.True(t, ok, "fixup references an unemitted label")
				patched := decodeU32(fn.Code[fix.Offset:])
				assert.Equal(t, uint32(target), patched,
					"%s: offset at %d must point at block b%d", fn.Name, fix.Offset, fix.Label)
				// The target must lie inside the code stream.
				assert.Less(t, target, len(fn.Code))
			}
		}
	})

	t.Run("jump targets are instruction boundaries", func(t *testing.T) {
		lo := compileLink(t, `
export func f(n) {
	var s = 0;
	while (s < n) { s += 1; }
	return s;
}`)
		for _, fn := range lo.Functions {
			boundaries := map[int]bool{}
			pc := 0
			for pc < len(fn.Code) {
				boundaries[pc] = true
				pc += Opcode(fn.Code[pc]).SizeInBytes()
			}
			for _, fix := range fn.Fixups {
				target := int(decodeU32(fn.Code[fix.Offset:]))
				assert.True(t, boundaries[target],
					"%s: fixup target %d is not an instruction boundary", fn.Name, target)
			}
		}
	})

	t.Run("members deduplicate", func(t *testing.T) {
		lo := compileLink(t, `export func f() = "abc"; export func g() = "abc";`)
		strings := 0
		for _, m := range lo.Members {
			if !m.IsUse() && m.Def.Kind == Member_String && m.Def.Str == "abc" {
				strings++
			}
		}
		assert.Equal(t, 1, strings, "identical constants share one member")
	})

	t.Run("exports reference symbol members", func(t *testing.T) {
		lo := compileLink(t, "export func f() = 1;")
		require.Len(t, lo.Exports, 1)
		symbol := lo.Members[lo.Exports[0].Symbol]
		require.False(t, symbol.IsUse())
		assert.Equal(t, Member_Symbol, symbol.Def.Kind)
		assert.Equal(t, "f", symbol.Def.Str)
		member := lo.Members[lo.Exports[0].Member]
		assert.True(t, member.IsUse())
	})

	t.Run("disassembler round trips the stream", func(t *testing.T) {
		lo := compileLink(t, `export func f(a, b) = a * b + 1;`)
		text := Disassemble(lo)
		assert.Contains(t, text, "func f")
		assert.Contains(t, text, "mul")
		assert.Contains(t, text, "add")
		assert.Contains(t, text, "return")
	})
}

// allocateFor runs the allocation half of codegen for one function
// and returns register assignments plus liveness.
func allocateFor(t *testing.T, source, name string) (*IRFunc, map[LocalID]uint32, *Liveness) {
	t.Helper()
	ir := compileIR(t, source)
	fn := irFunc(t, ir, name)

	lo := NewLinkObject("test")
	for _, f := range ir.Functions {
		lo.AddFunction(&LinkFunction{Name: f.Name, Params: f.Params})
	}
	cg := &codegenFunc{irModule: ir, fn: fn, lo: lo, strings: NewStringTable(), config: NewConfig(), out: lo.Functions[0]}
	require.NoError(t, cg.run())
	return fn, cg.regOf, cg.liveness
}

func TestRegisterAllocation(t *testing.T) {
	t.Run("overlapping ranges never share a register", func(t *testing.T) {
		fn, regs, lv := allocateFor(t, `
export func f(n) {
	var a = n + 1;
	var b = n + 2;
	var c = a + b;
	for (var i = 0; i < c; i += 1) { a += i; }
	return a + b + c;
}`, "f")

		aliases := map[LocalID]bool{}
		for id := BlockID(0); int(id) < fn.BlockCount(); id++ {
			for _, stmt := range fn.Block(id).Stmts() {
				if def, ok := stmt.(SDefine); ok {
					if _, isAlias := fn.Inst(def.Local).Value.(RVGetAggregateMember); isAlias {
						aliases[def.Local] = true
					}
				}
			}
		}

		locals := make([]LocalID, 0, len(regs))
		for local := range regs {
			locals = append(locals, local)
		}
		for i := 0; i < len(locals); i++ {
			for j := i + 1; j < len(locals); j++ {
				a, b := locals[i], locals[j]
				if regs[a] != regs[b] || aliases[a] || aliases[b] {
					continue
				}
				ra, rb := lv.Range(a), lv.Range(b)
				if ra == nil || rb == nil {
					continue
				}
				assert.False(t, ra.Overlaps(rb),
					"locals %%%d and %%%d share register %d but overlap", a, b, regs[a])
			}
		}
	})

	t.Run("aggregate members alias adjacent registers", func(t *testing.T) {
		fn, regs, _ := allocateFor(t, `
export func f() {
	var t = 0;
	for (const x in [1, 2, 3]) { t += x; }
	return t;
}`, "f")

		checked := 0
		for id := BlockID(0); int(id) < fn.BlockCount(); id++ {
			for _, stmt := range fn.Block(id).Stmts() {
				def, ok := stmt.(SDefine)
				if !ok {
					continue
				}
				member, ok := fn.Inst(def.Local).Value.(RVGetAggregateMember)
				if !ok {
					continue
				}
				base, ok := regs[member.Aggregate]
				require.True(t, ok)
				assert.Equal(t, base+uint32(member.Member.MemberIndex()), regs[def.Local])
				checked++
			}
		}
		assert.Greater(t, checked, 0)
	})
}
