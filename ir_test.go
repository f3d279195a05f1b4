package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileIR runs the front end up to (unoptimized) IR.
func compileIR(t *testing.T, source string) *IRModule {
	t.Helper()
	diags := NewDiagnostics()
	file := ParseFile([]byte(source), diags)
	require.False(t, diags.HasErrors(), "parse:\n%s", diags)
	table := BuildScopes(file, NewStringTable(), diags)
	info := CheckSemantics(file, table, diags)
	require.False(t, diags.HasErrors(), "semantic:\n%s", diags)
	ir, err := GenerateIR(file, "test", info, diags)
	require.NoError(t, err)
	require.False(t, diags.HasErrors(), "irgen:\n%s", diags)
	return ir
}

func irFunc(t *testing.T, module *IRModule, name string) *IRFunc {
	t.Helper()
	for _, fn := range module.Functions {
		if fn.Name == name {
			return fn
		}
	}
	t.Fatalf("no function %q in module", name)
	return nil
}

// dominators computes the dominator sets of every reachable block by
// iterating to a fixed point; small graphs only.
func dominators(fn *IRFunc) map[BlockID]map[BlockID]bool {
	order := fn.ReversePostorder()
	all := make(map[BlockID]bool, len(order))
	for _, id := range order {
		all[id] = true
	}

	dom := make(map[BlockID]map[BlockID]bool)
	for _, id := range order {
		dom[id] = make(map[BlockID]bool)
		if id == fn.Entry {
			dom[id][id] = true
			continue
		}
		for other := range all {
			dom[id][other] = true
		}
	}

	changed := true
	for changed {
		changed = false
		for _, id := range order {
			if id == fn.Entry {
				continue
			}
			next := make(map[BlockID]bool)
			first := true
			for _, pred := range fn.Block(id).Predecessors() {
				if !all[pred] {
					continue
				}
				if first {
					for b := range dom[pred] {
						next[b] = true
					}
					first = false
					continue
				}
				for b := range next {
					if !dom[pred][b] {
						delete(next, b)
					}
				}
			}
			next[id] = true
			if len(next) != len(dom[id]) {
				dom[id] = next
				changed = true
			}
		}
	}
	return dom
}

// checkSSA verifies the structural SSA invariants of a function:
// every phi has one operand per predecessor, every block has exactly
// one terminator, and every non-phi use is dominated by its
// definition.
func checkSSA(t *testing.T, fn *IRFunc) {
	t.Helper()

	defBlock := make(map[LocalID]BlockID)
	defIndex := make(map[LocalID]int)
	order := fn.ReversePostorder()
	reachable := make(map[BlockID]bool)
	for _, id := range order {
		reachable[id] = true
		for i, stmt := range fn.Block(id).Stmts() {
			if def, ok := stmt.(SDefine); ok {
				defBlock[def.Local] = id
				defIndex[def.Local] = i
			}
		}
	}

	dom := dominators(fn)

	checkUse := func(block BlockID, index int, local LocalID) {
		db, ok := defBlock[local]
		require.True(t, ok, "use of undefined local %%%d in b%d", local, block)
		if db == block {
			assert.Less(t, defIndex[local], index,
				"local %%%d used at b%d[%d] before its definition", local, block, index)
			return
		}
		assert.True(t, dom[block][db],
			"definition of %%%d (b%d) does not dominate its use in b%d", local, db, block)
	}

	for _, id := range order {
		b := fn.Block(id)

		for i, stmt := range b.Stmts() {
			def, isDef := stmt.(SDefine)
			if isDef {
				if phi, isPhi := fn.Inst(def.Local).Value.(RVPhi); isPhi {
					preds := b.Predecessors()
					require.Len(t, fn.Phi(phi.Phi), len(preds),
						"phi %%%d in b%d", def.Local, id)
					// Each operand must be defined in (or
					// flow out of) its predecessor.
					for k, op := range fn.Phi(phi.Phi) {
						db, ok := defBlock[op]
						require.True(t, ok, "phi operand %%%d undefined", op)
						pred := preds[k]
						assert.True(t, db == pred || dom[pred][db],
							"phi operand %%%d (b%d) not available in pred b%d", op, db, pred)
					}
					continue
				}
			}
			fn.visitStmtUses(stmt, func(local LocalID) {
				checkUse(id, i, local)
			})
		}

		visitTerminatorUses(b.Terminator(), func(local LocalID) {
			checkUse(id, len(b.Stmts()), local)
		})
		_, unset := b.Terminator().(TermNone)
		assert.False(t, unset, "b%d has no terminator", id)
	}
}

func TestIRGeneration(t *testing.T) {
	t.Run("straight line code", func(t *testing.T) {
		ir := compileIR(t, "export func f() = 1 + 2 * 3;")
		fn := irFunc(t, ir, "f")
		checkSSA(t, fn)
	})

	t.Run("if merges through a phi", func(t *testing.T) {
		ir := compileIR(t, "export func f(c) { var x = if (c) { 1 } else { 2 }; return x; }")
		fn := irFunc(t, ir, "f")
		checkSSA(t, fn)

		phis := 0
		for _, id := range fn.ReversePostorder() {
			for _, stmt := range fn.Block(id).Stmts() {
				if def, ok := stmt.(SDefine); ok {
					if _, isPhi := fn.Inst(def.Local).Value.(RVPhi); isPhi {
						phis++
					}
				}
			}
		}
		assert.Equal(t, 1, phis, "exactly one join phi expected")
	})

	t.Run("loops seal phis at the header", func(t *testing.T) {
		ir := compileIR(t, `
export func f() {
	var s = 0;
	for (var i = 0; i < 10; i += 1) {
		s += i;
	}
	return s;
}`)
		checkSSA(t, irFunc(t, ir, "f"))
	})

	t.Run("while with break and continue", func(t *testing.T) {
		ir := compileIR(t, `
export func f() {
	var n = 0;
	while (1) {
		n += 1;
		if (n > 5) { break; }
		if (n == 2) { continue; }
		n += 1;
	}
	return n;
}`)
		checkSSA(t, irFunc(t, ir, "f"))
	})

	t.Run("redundant reads share one instruction", func(t *testing.T) {
		ir := compileIR(t, "export func f(a) = (a + 1) * (a + 1);")
		fn := irFunc(t, ir, "f")
		checkSSA(t, fn)

		adds := 0
		for i := 0; i < fn.InstCount(); i++ {
			if bin, ok := fn.Inst(LocalID(i)).Value.(RVBinaryOp); ok && bin.Op == IROp_Add {
				adds++
			}
		}
		assert.Equal(t, 1, adds, "common subexpression should be reused")
	})

	t.Run("closure creates environment instructions", func(t *testing.T) {
		ir := compileIR(t, "export func outer() { var a = 1; return func() = a; }")
		outer := irFunc(t, ir, "outer")
		checkSSA(t, outer)

		var madeEnv, madeClosure bool
		for i := 0; i < outer.InstCount(); i++ {
			switch outer.Inst(LocalID(i)).Value.(type) {
			case RVMakeEnvironment:
				madeEnv = true
			case RVMakeClosure:
				madeClosure = true
			}
		}
		assert.True(t, madeEnv, "outer should build a closure environment")
		assert.True(t, madeClosure, "outer should build the closure")

		// The closure function reads the capture through the
		// environment and starts from its outer environment.
		require.Len(t, ir.Functions, 2)
		inner := ir.Functions[1]
		checkSSA(t, inner)
		var outerEnv, closureRead bool
		for i := 0; i < inner.InstCount(); i++ {
			switch rv := inner.Inst(LocalID(i)).Value.(type) {
			case RVOuterEnvironment:
				outerEnv = true
			case RVUseLValue:
				if _, ok := rv.LValue.(LVClosure); ok {
					closureRead = true
				}
			}
		}
		assert.True(t, outerEnv)
		assert.True(t, closureRead)
	})

	t.Run("for each lowers through the iterator aggregate", func(t *testing.T) {
		ir := compileIR(t, `
export func f() {
	const a = [10, 20, 30];
	var t = 0;
	for (const x in a) { t += x; }
	return t;
}`)
		fn := irFunc(t, ir, "f")
		checkSSA(t, fn)

		var iter, next, member bool
		for i := 0; i < fn.InstCount(); i++ {
			switch fn.Inst(LocalID(i)).Value.(type) {
			case RVMakeIterator:
				iter = true
			case RVIteratorNext:
				next = true
			case RVGetAggregateMember:
				member = true
			}
		}
		assert.True(t, iter && next && member)
	})

	t.Run("module structure", func(t *testing.T) {
		ir := compileIR(t, "import std; export func f() = 1; var x = 2; export var y = 3;")
		require.GreaterOrEqual(t, len(ir.Members), 4)
		assert.Equal(t, IRMember_Import, ir.Members[0].Kind)
		assert.GreaterOrEqual(t, ir.InitMember, 0, "module vars need an initializer")

		names := map[string]bool{}
		for _, e := range ir.Exports {
			names[e.Name] = true
		}
		assert.True(t, names["f"])
		assert.True(t, names["y"])
		assert.False(t, names["x"])
	})

	t.Run("method calls use the two register aggregate", func(t *testing.T) {
		ir := compileIR(t, "export func f(a) = a.size();")
		fn := irFunc(t, ir, "f")
		checkSSA(t, fn)

		var handle, call bool
		for i := 0; i < fn.InstCount(); i++ {
			switch fn.Inst(LocalID(i)).Value.(type) {
			case RVMethodHandle:
				handle = true
			case RVMethodCall:
				call = true
			}
		}
		assert.True(t, handle && call)
	})
}
