package hammer

// hasSideEffects reports whether an rvalue must be kept even when its
// result is unused.  Calls may trap or do anything; lvalue reads that
// touch fields, tuple fields or indices may raise; method resolution
// may raise; iterators mutate state.  Phis are pinned so that the
// shape of join points survives into register allocation.
func hasSideEffects(rv RValue) bool {
	switch r := rv.(type) {
	case RVCall, RVMethodCall, RVMethodHandle, RVMakeIterator, RVIteratorNext, RVPhi, RVPhi0:
		return true
	case RVUseLValue:
		switch r.LValue.(type) {
		case LVField, LVTupleField, LVIndex:
			return true
		}
		return false
	default:
		return false
	}
}

// DeadCodeElimination removes Define statements whose locals are
// neither observable themselves nor reachable from an observable
// local.  Assign statements always stay.
func DeadCodeElimination(fn *IRFunc) {
	marked := make([]bool, fn.InstCount())
	var work []LocalID

	mark := func(local LocalID) {
		if local == InvalidLocal || marked[local] {
			return
		}
		marked[local] = true
		work = append(work, local)
	}

	for _, id := range fn.ReversePostorder() {
		b := fn.Block(id)
		for _, stmt := range b.Stmts() {
			switch s := stmt.(type) {
			case SAssign:
				fn.visitStmtUses(s, mark)
			case SDefine:
				if hasSideEffects(fn.Inst(s.Local).Value) {
					mark(s.Local)
				}
			}
		}
		visitTerminatorUses(b.Terminator(), mark)
	}

	// Transitive closure over uses.
	for len(work) > 0 {
		local := work[len(work)-1]
		work = work[:len(work)-1]
		fn.visitRValueUses(fn.Inst(local).Value, mark)
	}

	for id := BlockID(0); int(id) < fn.BlockCount(); id++ {
		b := fn.Block(id)
		stmts := b.Stmts()
		kept := stmts[:0]
		for _, stmt := range stmts {
			if def, ok := stmt.(SDefine); ok && !marked[def.Local] {
				continue
			}
			kept = append(kept, stmt)
		}
		b.ReplaceStmts(kept)
	}
}
