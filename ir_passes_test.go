package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countDefines(fn *IRFunc) map[LocalID]bool {
	defined := make(map[LocalID]bool)
	for id := BlockID(0); int(id) < fn.BlockCount(); id++ {
		for _, stmt := range fn.Block(id).Stmts() {
			if def, ok := stmt.(SDefine); ok {
				defined[def.Local] = true
			}
		}
	}
	return defined
}

func TestDeadCodeElimination(t *testing.T) {
	t.Run("unused pure values are removed", func(t *testing.T) {
		ir := compileIR(t, "export func f() { var unused = 1 + 2; return 3; }")
		fn := irFunc(t, ir, "f")

		before := len(countDefines(fn))
		DeadCodeElimination(fn)
		after := countDefines(fn)
		assert.Less(t, len(after), before, "dead arithmetic should disappear")

		// The returned constant survives.
		ret := fn.Block(findReturnBlock(t, fn)).Terminator().(TermReturn)
		assert.True(t, after[ret.Value])
	})

	t.Run("calls survive even when unused", func(t *testing.T) {
		ir := compileIR(t, "export func g() = 1; export func f() { g(); return 2; }")
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)

		calls := 0
		for local := range countDefines(fn) {
			if _, ok := fn.Inst(local).Value.(RVCall); ok {
				calls++
			}
		}
		assert.Equal(t, 1, calls, "the call has observable effects")
	})

	t.Run("assign statements always stay", func(t *testing.T) {
		ir := compileIR(t, "var g = 0; export func f() { g = 42; }")
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)

		assigns := 0
		for id := BlockID(0); int(id) < fn.BlockCount(); id++ {
			for _, stmt := range fn.Block(id).Stmts() {
				if _, ok := stmt.(SAssign); ok {
					assigns++
				}
			}
		}
		assert.Equal(t, 1, assigns)
	})

	t.Run("field reads may trap and stay", func(t *testing.T) {
		ir := compileIR(t, "export func f(r) { r.missing; return 1; }")
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)

		fieldReads := 0
		for local := range countDefines(fn) {
			if use, ok := fn.Inst(local).Value.(RVUseLValue); ok {
				if _, isField := use.LValue.(LVField); isField {
					fieldReads++
				}
			}
		}
		assert.Equal(t, 1, fieldReads)
	})
}

func findReturnBlock(t *testing.T, fn *IRFunc) BlockID {
	t.Helper()
	for _, id := range fn.ReversePostorder() {
		if _, ok := fn.Block(id).Terminator().(TermReturn); ok {
			return id
		}
	}
	t.Fatal("no return block")
	return InvalidBlock
}

func TestLiveness(t *testing.T) {
	t.Run("definition intervals cover the last use", func(t *testing.T) {
		ir := compileIR(t, "export func f(a) { var x = a + 1; var y = x + 2; return y; }")
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)
		lv := ComputeLiveness(fn)

		for id := BlockID(0); int(id) < fn.BlockCount(); id++ {
			for i, stmt := range fn.Block(id).Stmts() {
				if def, ok := stmt.(SDefine); ok {
					// Phi operands are live in the
					// predecessors, not at the phi itself.
					if _, isPhi := fn.Inst(def.Local).Value.(RVPhi); isPhi {
						continue
					}
				}
				fn.visitStmtUses(stmt, func(local LocalID) {
					r := lv.Range(local)
					require.NotNil(t, r)
					iv, ok := r.IntervalIn(id)
					require.True(t, ok, "local %%%d should be live in b%d", local, id)
					assert.GreaterOrEqual(t, iv.End, i)
				})
			}
		}
	})

	t.Run("phi operands live to the end of their predecessor", func(t *testing.T) {
		ir := compileIR(t, `
export func f() {
	var s = 0;
	for (var i = 0; i < 3; i += 1) { s += i; }
	return s;
}`)
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)
		lv := ComputeLiveness(fn)

		checked := 0
		for _, id := range fn.ReversePostorder() {
			b := fn.Block(id)
			for _, stmt := range b.Stmts() {
				def, ok := stmt.(SDefine)
				if !ok {
					continue
				}
				phi, ok := fn.Inst(def.Local).Value.(RVPhi)
				if !ok {
					continue
				}
				for k, op := range fn.Phi(phi.Phi) {
					pred := b.Predecessors()[k]
					r := lv.Range(op)
					require.NotNil(t, r)
					iv, ok := r.IntervalIn(pred)
					require.True(t, ok, "phi operand %%%d must be live in pred b%d", op, pred)
					assert.GreaterOrEqual(t, iv.End, len(fn.Block(pred).Stmts()),
						"operand must survive to the end of the predecessor")
					checked++
				}
			}
		}
		assert.Greater(t, checked, 0, "the loop must produce phis")
	})

	t.Run("unused locals are dead with zero length intervals", func(t *testing.T) {
		ir := compileIR(t, "export func g() = 1; export func f() { g(); return 2; }")
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)
		lv := ComputeLiveness(fn)

		foundDead := false
		for local := range countDefines(fn) {
			if _, ok := fn.Inst(local).Value.(RVCall); !ok {
				continue
			}
			r := lv.Range(local)
			require.NotNil(t, r)
			if r.Dead() {
				foundDead = true
				assert.Equal(t, r.Def.Start, r.Def.End)
			}
		}
		assert.True(t, foundDead, "the unused call result should be dead")
	})

	t.Run("aggregates stay live while a member lives", func(t *testing.T) {
		ir := compileIR(t, `
export func f() {
	var t = 0;
	for (const x in [1, 2, 3]) { t += x; }
	return t;
}`)
		fn := irFunc(t, ir, "f")
		DeadCodeElimination(fn)
		lv := ComputeLiveness(fn)

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
				memberRange := lv.Range(def.Local)
				aggRange := lv.Range(member.Aggregate)
				require.NotNil(t, memberRange)
				require.NotNil(t, aggRange)

				iv, ok := memberRange.IntervalIn(memberRange.Def.Block)
				require.True(t, ok)
				aggIv, ok := aggRange.IntervalIn(memberRange.Def.Block)
				require.True(t, ok, "aggregate must be live where its member is defined")
				assert.GreaterOrEqual(t, aggIv.End, iv.End)
			}
		}
	})
}
