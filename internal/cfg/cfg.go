// Package cfg defines the control flow graph the code generation
// backend lowers functions into, along with the variable table that
// owns the graph's variable ids. A graph is a list of basic blocks;
// each block is a straight-line run of instructions whose last
// instruction transfers control. Everything downstream of lowering,
// the argument codecs, the dispatchers and the SSA pass, works on this
// representation.
package cfg

import (
	"sort"

	"aster/internal/sema"
	"aster/internal/types"
)

// BasicBlock is one node of the graph. PhiCandidates, when set, lists
// the variables assigned on some path into the block; the SSA pass
// only considers those for phi placement.
type BasicBlock struct {
	Name          string
	Instr         []Instr
	PhiCandidates []int
}

// ControlFlowGraph is the lowered form of a single function. Block
// zero is the entry block. Selector and Public only mean something
// for functions the dispatcher can reach.
type ControlFlowGraph struct {
	Name       string
	FunctionNo int
	Kind       sema.FunctionKind
	Params     []sema.Parameter
	Returns    []sema.Parameter
	Vars       map[int]*VarDecl
	Blocks     []*BasicBlock
	Nonpayable bool
	Public     bool
	Selector   []byte

	current int
}

// NewControlFlowGraph starts a graph with an empty entry block
// selected for building.
func NewControlFlowGraph(name string, kind sema.FunctionKind) *ControlFlowGraph {
	graph := &ControlFlowGraph{
		Name: name,
		Kind: kind,
		Vars: map[int]*VarDecl{},
	}
	graph.NewBasicBlock("entry")
	return graph
}

// FromDecl starts a graph describing decl, carrying over its
// signature, selector and payability.
func FromDecl(decl *sema.FunctionDecl, functionNo int) *ControlFlowGraph {
	graph := NewControlFlowGraph(decl.Name, decl.Kind)
	graph.FunctionNo = functionNo
	graph.Params = decl.Params
	graph.Returns = decl.Returns
	graph.Public = decl.Public
	graph.Nonpayable = !decl.Payable
	graph.Selector = decl.Selector
	return graph
}

// NewBasicBlock appends an empty block and returns its number. The
// build position does not move.
func (graph *ControlFlowGraph) NewBasicBlock(name string) int {
	graph.Blocks = append(graph.Blocks, &BasicBlock{Name: name})
	return len(graph.Blocks) - 1
}

// SetBasicBlock moves the build position.
func (graph *ControlFlowGraph) SetBasicBlock(block int) {
	graph.current = block
}

// CurrentBlock returns the build position.
func (graph *ControlFlowGraph) CurrentBlock() int {
	return graph.current
}

// Add appends an instruction to the current block and records any
// assignment in the variable table's dirty trackers.
func (graph *ControlFlowGraph) Add(vt *Vartable, instr Instr) {
	for _, def := range Defs(instr) {
		vt.SetDirty(def)
	}
	graph.Blocks[graph.current].Instr = append(graph.Blocks[graph.current].Instr, instr)
}

// SetPhis installs a block's phi candidate set, sorted for stable
// output.
func (graph *ControlFlowGraph) SetPhis(block int, vars map[int]struct{}) {
	ids := make([]int, 0, len(vars))
	for id := range vars {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	graph.Blocks[block].PhiCandidates = ids
}

// Terminated reports whether the current block already ends in a
// terminator, which makes further Add calls invalid.
func (graph *ControlFlowGraph) Terminated() bool {
	instr := graph.Blocks[graph.current].Instr
	return len(instr) > 0 && instr[len(instr)-1].Terminator()
}

// ParamType returns the declared type of parameter no.
func (graph *ControlFlowGraph) ParamType(no int) types.Type {
	return graph.Params[no].Ty
}

// Successors lists the blocks control can reach from block no.
func (graph *ControlFlowGraph) Successors(no int) []int {
	instr := graph.Blocks[no].Instr
	if len(instr) == 0 {
		return nil
	}
	return Successors(instr[len(instr)-1])
}

// ReversePostorder numbers the blocks reachable from entry in reverse
// postorder, the order the SSA renaming pass visits them in.
func (graph *ControlFlowGraph) ReversePostorder() []int {
	visited := make([]bool, len(graph.Blocks))
	var order []int
	var visit func(int)
	visit = func(no int) {
		if no < 0 || no >= len(graph.Blocks) || visited[no] {
			return
		}
		visited[no] = true
		for _, succ := range graph.Successors(no) {
			visit(succ)
		}
		order = append(order, no)
	}
	visit(0)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Predecessors maps each block to the blocks that branch to it, in
// block order.
func (graph *ControlFlowGraph) Predecessors() [][]int {
	preds := make([][]int, len(graph.Blocks))
	for no := range graph.Blocks {
		for _, succ := range graph.Successors(no) {
			if succ >= 0 && succ < len(graph.Blocks) {
				preds[succ] = append(preds[succ], no)
			}
		}
	}
	return preds
}
