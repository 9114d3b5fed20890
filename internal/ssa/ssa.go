package ssa

import (
	"fmt"
	"sort"

	"aster/internal/cfg"
	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/types"
)

// Lower rewrites graph into SSA form: a fresh graph with the same
// blocks where every variable version has exactly one definition and
// joins reached by divergent definitions start with phi instructions.
// Reads of variables that no definition reaches are reported as
// diagnostics on ns; the lowering still completes so the printed form
// shows where the bad read sits.
func Lower(ns *sema.Namespace, graph *cfg.ControlFlowGraph) *cfg.ControlFlowGraph {
	l := &lowerer{
		ns:       ns,
		graph:    graph,
		vt:       cfg.NewVartable(ns),
		out:      make([]map[int]int, len(graph.Blocks)),
		counters: map[int]int{},
		reported: map[int]struct{}{},
	}
	return l.lower()
}

type phiSlot struct {
	blockNo int
	origVar int
	res     int
	ty      types.Type
}

type lowerer struct {
	ns    *sema.Namespace
	graph *cfg.ControlFlowGraph
	vt    *cfg.Vartable

	// out maps, per processed block, each original variable to the
	// SSA version live at the block's exit.
	out      []map[int]int
	phis     []phiSlot
	counters map[int]int
	reported map[int]struct{}
}

func (l *lowerer) lower() *cfg.ControlFlowGraph {
	lowered := &cfg.ControlFlowGraph{
		Name:       l.graph.Name,
		FunctionNo: l.graph.FunctionNo,
		Kind:       l.graph.Kind,
		Params:     l.graph.Params,
		Returns:    l.graph.Returns,
		Nonpayable: l.graph.Nonpayable,
		Public:     l.graph.Public,
		Selector:   l.graph.Selector,
	}
	lowered.Blocks = make([]*cfg.BasicBlock, len(l.graph.Blocks))
	for i, block := range l.graph.Blocks {
		lowered.Blocks[i] = &cfg.BasicBlock{Name: block.Name}
	}

	preds := l.graph.Predecessors()
	reaching := reachingDefs(l.graph)

	for _, blockNo := range l.graph.ReversePostorder() {
		versions := l.blockEntryVersions(blockNo, preds[blockNo], reaching[blockNo])
		l.rewriteBlock(blockNo, versions, lowered)
		l.out[blockNo] = versions
	}

	l.fillPhiEdges(preds, lowered)
	l.vt.Finalize(l.ns, lowered)
	return lowered
}

// blockEntryVersions computes the version map at a block's entry,
// inserting phis where predecessors disagree.
func (l *lowerer) blockEntryVersions(blockNo int, preds []int, reaching defSet) map[int]int {
	versions := map[int]int{}
	if len(preds) == 1 {
		for varNo, version := range l.out[preds[0]] {
			versions[varNo] = version
		}
		return versions
	}
	if len(preds) == 0 {
		return versions
	}

	// A variable whose entry is reached by more than one definition
	// needs a phi; everything else flows through unchanged.
	var phiVars []int
	for varNo, defs := range reaching {
		if len(defs) > 1 {
			phiVars = append(phiVars, varNo)
		}
	}
	sort.Ints(phiVars)

	isPhi := map[int]struct{}{}
	for _, varNo := range phiVars {
		res := l.fresh(varNo)
		versions[varNo] = res
		isPhi[varNo] = struct{}{}
		l.phis = append(l.phis, phiSlot{
			blockNo: blockNo,
			origVar: varNo,
			res:     res,
			ty:      l.varType(varNo),
		})
	}

	for _, pred := range preds {
		for varNo, version := range l.out[pred] {
			if _, ok := isPhi[varNo]; ok {
				continue
			}
			versions[varNo] = version
		}
	}
	return versions
}

func (l *lowerer) rewriteBlock(blockNo int, versions map[int]int, lowered *cfg.ControlFlowGraph) {
	missing := func(varNo int) {
		if _, done := l.reported[varNo]; done {
			return
		}
		l.reported[varNo] = struct{}{}
		l.ns.Diag(errors.New(errors.ErrorUndefinedRead, l.graph.Name,
			fmt.Sprintf("variable %s is read before any assignment reaches it", l.varName(varNo))).
			InBlock(blockNo))
	}
	fresh := func(varNo int) int {
		version := l.fresh(varNo)
		versions[varNo] = version
		return version
	}

	block := lowered.Blocks[blockNo]
	for _, instr := range l.graph.Blocks[blockNo].Instr {
		block.Instr = append(block.Instr, renameInstr(instr, versions, fresh, missing))
	}
}

// fillPhiEdges resolves each placed phi against the final exit maps of
// its block's predecessors and prepends the live ones to their blocks.
// A phi nothing reads is dropped, so a variable left unassigned on
// some path only becomes a diagnostic when something actually reads
// it past the join.
func (l *lowerer) fillPhiEdges(preds [][]int, lowered *cfg.ControlFlowGraph) {
	live := l.livePhis(lowered, preds)

	perBlock := map[int][]*cfg.Phi{}
	for _, slot := range l.phis {
		if _, ok := live[slot.res]; !ok {
			continue
		}
		phi := &cfg.Phi{Res: slot.res, Type: slot.ty}
		for _, pred := range preds[slot.blockNo] {
			version, ok := l.out[pred][slot.origVar]
			if !ok {
				if _, done := l.reported[slot.origVar]; !done {
					l.reported[slot.origVar] = struct{}{}
					l.ns.Diag(errors.New(errors.ErrorUndefinedRead, l.graph.Name,
						fmt.Sprintf("variable %s is read before any assignment reaches it", l.varName(slot.origVar))).
						InBlock(slot.blockNo).
						WithNote(fmt.Sprintf("no definition flows in from block %d", pred)))
				}
				continue
			}
			phi.Edges = append(phi.Edges, cfg.PhiEdge{Block: pred, VarNo: version})
		}
		perBlock[slot.blockNo] = append(perBlock[slot.blockNo], phi)
	}

	for blockNo, phis := range perBlock {
		block := lowered.Blocks[blockNo]
		instrs := make([]cfg.Instr, 0, len(phis)+len(block.Instr))
		for _, phi := range phis {
			instrs = append(instrs, phi)
		}
		block.Instr = append(instrs, block.Instr...)
	}
}

// livePhis finds the phis whose results are read, directly by an
// instruction or transitively through another live phi.
func (l *lowerer) livePhis(lowered *cfg.ControlFlowGraph, preds [][]int) map[int]struct{} {
	used := map[int]struct{}{}
	for _, block := range lowered.Blocks {
		for _, instr := range block.Instr {
			for _, op := range cfg.Operands(instr) {
				cfg.UsedVars(op, used)
			}
			for _, id := range cfg.VarReads(instr) {
				used[id] = struct{}{}
			}
		}
	}

	live := map[int]struct{}{}
	for changed := true; changed; {
		changed = false
		for _, slot := range l.phis {
			if _, ok := live[slot.res]; ok {
				continue
			}
			if _, ok := used[slot.res]; !ok {
				continue
			}
			live[slot.res] = struct{}{}
			changed = true
			// The phi's incoming versions count as reads too.
			for _, pred := range preds[slot.blockNo] {
				if version, ok := l.out[pred][slot.origVar]; ok {
					used[version] = struct{}{}
				}
			}
		}
	}
	return live
}

// fresh mints the next version of an original variable, named
// "name.N" so the printed form reads as the version history.
func (l *lowerer) fresh(varNo int) int {
	l.counters[varNo]++
	name := fmt.Sprintf("%s.%d", l.varName(varNo), l.counters[varNo])
	return l.vt.TempExact(name, l.varType(varNo))
}

func (l *lowerer) varName(varNo int) string {
	if decl, ok := l.graph.Vars[varNo]; ok {
		return decl.Name
	}
	return fmt.Sprintf("%%%d", varNo)
}

func (l *lowerer) varType(varNo int) types.Type {
	if decl, ok := l.graph.Vars[varNo]; ok {
		return decl.Type
	}
	return types.Void{}
}

// Contract lowers every CFG of a namespace's contract in declaration
// order.
func Contract(ns *sema.Namespace, graphs []*cfg.ControlFlowGraph) []*cfg.ControlFlowGraph {
	lowered := make([]*cfg.ControlFlowGraph, len(graphs))
	for i, graph := range graphs {
		lowered[i] = Lower(ns, graph)
	}
	return lowered
}
