package hammer

// LiveInterval is a statement range inside one block during which a
// value is live.  End is inclusive: it is the index of the last
// statement that uses the value; the terminator counts as the index
// after the last statement, and a value live out of the block ends one
// past the terminator.
type LiveInterval struct {
	Block BlockID
	Start int
	End   int
}

// LiveRange is the liveness of one local: the interval in its
// defining block plus an insertion-ordered list of live-in intervals
// for the blocks the value flows through.
type LiveRange struct {
	Def LiveInterval

	liveIn      []LiveInterval
	liveInIndex map[BlockID]int
}

func (r *LiveRange) LiveIn() []LiveInterval { return r.liveIn }

func (r *LiveRange) liveInAt(block BlockID) (int, bool) {
	idx, ok := r.liveInIndex[block]
	return idx, ok
}

// Dead reports whether the local is never used after its definition.
func (r *LiveRange) Dead() bool {
	return len(r.liveIn) == 0 && r.Def.End == r.Def.Start
}

// IntervalIn returns the live interval covering the given block, if
// any.
func (r *LiveRange) IntervalIn(block BlockID) (LiveInterval, bool) {
	if r.Def.Block == block {
		return r.Def, true
	}
	if idx, ok := r.liveInIndex[block]; ok {
		return r.liveIn[idx], true
	}
	return LiveInterval{}, false
}

// Overlaps reports whether two live ranges intersect anywhere.
func (r *LiveRange) Overlaps(other *LiveRange) bool {
	// Endpoints are inclusive: a value written at index i occupies
	// its register during statement i, so a zero-length interval
	// still conflicts with anything live across it.
	check := func(a LiveInterval) bool {
		b, ok := other.IntervalIn(a.Block)
		if !ok {
			return false
		}
		return a.Start <= b.End && b.Start <= a.End
	}
	if check(r.Def) {
		return true
	}
	for _, iv := range r.liveIn {
		if check(iv) {
			return true
		}
	}
	return false
}

// Liveness holds the live ranges of every local of a function and the
// per-block live-in sets.
type Liveness struct {
	fn     *IRFunc
	ranges map[LocalID]*LiveRange
	liveIn map[BlockID][]LocalID
}

func (lv *Liveness) Range(local LocalID) *LiveRange { return lv.ranges[local] }

// LiveInSet returns the locals live on entry to a block, in the order
// their live-in intervals were first recorded.
func (lv *Liveness) LiveInSet(block BlockID) []LocalID { return lv.liveIn[block] }

// ComputeLiveness runs the two-pass liveness analysis.  The first
// pass records definition intervals; the second walks every use and
// extends ranges backwards, propagating live-in intervals into
// predecessors.  Phi operands are extended to the end of the
// corresponding predecessor, not to the head of the phi's block.
func ComputeLiveness(fn *IRFunc) *Liveness {
	lv := &Liveness{
		fn:     fn,
		ranges: make(map[LocalID]*LiveRange),
		liveIn: make(map[BlockID][]LocalID),
	}

	order := fn.ReversePostorder()

	// Pass 1: definition intervals.
	for _, id := range order {
		for i, stmt := range fn.Block(id).Stmts() {
			if def, ok := stmt.(SDefine); ok {
				lv.ranges[def.Local] = &LiveRange{
					Def:         LiveInterval{Block: id, Start: i, End: i},
					liveInIndex: make(map[BlockID]int),
				}
			}
		}
	}

	// Pass 2: uses.
	for _, id := range order {
		b := fn.Block(id)
		for i, stmt := range b.Stmts() {
			if def, ok := stmt.(SDefine); ok {
				if phi, isPhi := fn.Inst(def.Local).Value.(RVPhi); isPhi {
					preds := b.Predecessors()
					for k, op := range fn.Phi(phi.Phi) {
						lv.extendToBlockEnd(op, preds[k])
						// The phi's own register is written
						// by the copy at the end of the
						// predecessor; it must interfere
						// with everything still live there.
						lv.addCopyPoint(def.Local, preds[k])
					}
					continue
				}
			}
			fn.visitStmtUses(stmt, func(local LocalID) {
				lv.extend(local, id, i)
			})
		}
		visitTerminatorUses(b.Terminator(), func(local LocalID) {
			lv.extend(local, id, len(b.Stmts()))
		})
	}

	// Aggregates stay live as long as any of their members: the
	// member is an alias into the aggregate's storage.
	for _, id := range order {
		for _, stmt := range fn.Block(id).Stmts() {
			def, ok := stmt.(SDefine)
			if !ok {
				continue
			}
			member, ok := fn.Inst(def.Local).Value.(RVGetAggregateMember)
			if !ok {
				continue
			}
			memberRange := lv.ranges[def.Local]
			if memberRange == nil {
				continue
			}
			lv.extend(member.Aggregate, memberRange.Def.Block, memberRange.Def.End)
			for _, iv := range memberRange.liveIn {
				lv.extend(member.Aggregate, iv.Block, iv.End)
			}
		}
	}

	return lv
}

// extend makes a local live up to statement index pos in a block,
// propagating into predecessors when the value is live-in.
func (lv *Liveness) extend(local LocalID, block BlockID, pos int) {
	r := lv.ranges[local]
	if r == nil {
		return
	}

	if r.Def.Block == block {
		if pos > r.Def.End {
			r.Def.End = pos
		}
		return
	}

	if idx, ok := r.liveInAt(block); ok {
		iv := &r.liveIn[idx]
		if pos > iv.End {
			iv.End = pos
		}
		// A copy-point-only interval starts mid-block; a real use
		// here means the value flows in from the predecessors
		// after all, so widen to the entry and propagate.
		if iv.Start > 0 {
			iv.Start = 0
			for _, pred := range lv.fn.Block(block).Predecessors() {
				lv.extendToBlockEnd(local, pred)
			}
		}
		return
	}

	// New live-in interval: the value is live from the block's
	// entry; keep propagating into every predecessor.
	r.liveInIndex[block] = len(r.liveIn)
	r.liveIn = append(r.liveIn, LiveInterval{Block: block, Start: 0, End: pos})
	lv.liveIn[block] = append(lv.liveIn[block], local)

	for _, pred := range lv.fn.Block(block).Predecessors() {
		lv.extendToBlockEnd(local, pred)
	}
}

func (lv *Liveness) extendToBlockEnd(local LocalID, block BlockID) {
	lv.extend(local, block, len(lv.fn.Block(block).Stmts())+1)
}

// addCopyPoint records that a value is written at a block's
// terminator position without being live-in before it.  Unlike
// extend, it does not propagate into predecessors.
func (lv *Liveness) addCopyPoint(local LocalID, block BlockID) {
	r := lv.ranges[local]
	if r == nil {
		return
	}
	pos := len(lv.fn.Block(block).Stmts())
	if r.Def.Block == block {
		if pos > r.Def.End {
			r.Def.End = pos
		}
		return
	}
	if idx, ok := r.liveInAt(block); ok {
		if pos > r.liveIn[idx].End {
			r.liveIn[idx].End = pos
		}
		return
	}
	r.liveInIndex[block] = len(r.liveIn)
	r.liveIn = append(r.liveIn, LiveInterval{Block: block, Start: pos, End: pos})
	lv.liveIn[block] = append(lv.liveIn[block], local)
}
