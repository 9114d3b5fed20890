// Package ssa lowers a control flow graph into static single
// assignment form: every variable is split into versions with exactly
// one definition, and blocks reachable from more than one definition
// of the same variable get a phi that names the version flowing in
// from each predecessor. The lowering is a separate graph; the input
// is left untouched.
package ssa

import "aster/internal/cfg"

// def identifies one definition site.
type def struct {
	blockNo int
	instrNo int
}

// defSet maps a variable to the definitions of it that reach a point.
type defSet map[int]map[def]struct{}

func (s defSet) clone() defSet {
	out := make(defSet, len(s))
	for varNo, defs := range s {
		c := make(map[def]struct{}, len(defs))
		for d := range defs {
			c[d] = struct{}{}
		}
		out[varNo] = c
	}
	return out
}

// merge folds other into s and reports whether s grew.
func (s defSet) merge(other defSet) bool {
	grew := false
	for varNo, defs := range other {
		mine, ok := s[varNo]
		if !ok {
			mine = map[def]struct{}{}
			s[varNo] = mine
		}
		for d := range defs {
			if _, ok := mine[d]; !ok {
				mine[d] = struct{}{}
				grew = true
			}
		}
	}
	return grew
}

// undefined is the synthetic definition seeded at function entry for
// every variable: a path along which it survives is a path where the
// variable was never assigned.
var undefined = def{blockNo: -1, instrNo: -1}

// reachingDefs computes, per block, the definitions reaching its
// entry. Within a block a later definition of a variable kills
// earlier ones; at joins the sets union. The worklist runs to a fixed
// point, which it reaches because sets only grow.
func reachingDefs(graph *cfg.ControlFlowGraph) []defSet {
	entry := make([]defSet, len(graph.Blocks))
	for i := range entry {
		entry[i] = defSet{}
	}
	for varNo := range graph.Vars {
		entry[0][varNo] = map[def]struct{}{undefined: {}}
	}

	worklist := []int{0}
	queued := make([]bool, len(graph.Blocks))
	queued[0] = true

	for len(worklist) > 0 {
		blockNo := worklist[0]
		worklist = worklist[1:]
		queued[blockNo] = false

		out := entry[blockNo].clone()
		for instrNo, instr := range graph.Blocks[blockNo].Instr {
			for _, varNo := range cfg.Defs(instr) {
				out[varNo] = map[def]struct{}{
					{blockNo: blockNo, instrNo: instrNo}: {},
				}
			}
		}

		for _, succ := range graph.Successors(blockNo) {
			if succ < 0 || succ >= len(graph.Blocks) {
				continue
			}
			if entry[succ].merge(out) && !queued[succ] {
				queued[succ] = true
				worklist = append(worklist, succ)
			}
		}
	}
	return entry
}
