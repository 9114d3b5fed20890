package cfg

import (
	"fmt"

	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/types"
)

// StorageClass says where a variable lives while the function runs.
type StorageClass int

const (
	// ClassStack variables came from the source program.
	ClassStack StorageClass = iota
	// ClassTemp variables were introduced during lowering.
	ClassTemp
)

func (c StorageClass) String() string {
	if c == ClassTemp {
		return "temp"
	}
	return "stack"
}

// VarDecl is one slot of the variable table.
type VarDecl struct {
	ID    int
	Name  string
	Type  types.Type
	Class StorageClass
}

// dirtyTracker records which variables were assigned after a point in
// the build, capped at a block's incoming variable count so only
// pre-existing slots become phi candidates.
type dirtyTracker struct {
	lim int
	set map[int]struct{}
}

// Vartable allocates the variable ids a single CFG uses. Ids are
// drawn from the namespace counter so they stay unique per contract,
// and handed back when the table is finalized.
type Vartable struct {
	base  int
	vars  []*VarDecl
	dirty []dirtyTracker
}

// NewVartable starts a table whose first id is the namespace's next
// free one.
func NewVartable(ns *sema.Namespace) *Vartable {
	return &Vartable{base: ns.NextID}
}

// NextID previews the id the next declaration will get.
func (vt *Vartable) NextID() int {
	return vt.base + len(vt.vars)
}

func (vt *Vartable) declare(name string, ty types.Type, class StorageClass) int {
	id := vt.NextID()
	vt.vars = append(vt.vars, &VarDecl{ID: id, Name: name, Type: ty, Class: class})
	return id
}

// Declare introduces a named source-level variable.
func (vt *Vartable) Declare(name string, ty types.Type) int {
	return vt.declare(name, ty, ClassStack)
}

// Temp introduces a named temporary; the printer shows the name but it
// has no source-level identity.
func (vt *Vartable) Temp(name string, ty types.Type) int {
	id := vt.NextID()
	return vt.declare(fmt.Sprintf("%s.temp.%d", name, id), ty, ClassTemp)
}

// TempAnonymous introduces an unnamed temporary.
func (vt *Vartable) TempAnonymous(ty types.Type) int {
	id := vt.NextID()
	return vt.declare(fmt.Sprintf("temp.%d", id), ty, ClassTemp)
}

// TempExact introduces a temporary whose printed name is taken as-is,
// for passes that mint their own naming scheme.
func (vt *Vartable) TempExact(name string, ty types.Type) int {
	return vt.declare(name, ty, ClassTemp)
}

// Get looks up a declaration by id; nil when the id was never issued
// by this table.
func (vt *Vartable) Get(id int) *VarDecl {
	if id < vt.base || id >= vt.NextID() {
		return nil
	}
	return vt.vars[id-vt.base]
}

// NewDirtyTracker starts recording assignments. Slots declared later
// than the current high-water mark are ignored: a loop body's own
// temporaries never need phi nodes at the loop head.
func (vt *Vartable) NewDirtyTracker() {
	vt.dirty = append(vt.dirty, dirtyTracker{lim: vt.NextID(), set: map[int]struct{}{}})
}

// SetDirty marks an assignment in every open tracker.
func (vt *Vartable) SetDirty(id int) {
	for i := range vt.dirty {
		if id < vt.dirty[i].lim {
			vt.dirty[i].set[id] = struct{}{}
		}
	}
}

// PopDirtyTracker stops the innermost tracker and returns the set of
// pre-existing variables assigned while it was open.
func (vt *Vartable) PopDirtyTracker() map[int]struct{} {
	last := len(vt.dirty) - 1
	set := vt.dirty[last].set
	vt.dirty = vt.dirty[:last]
	return set
}

// Finalize validates every variable reference and block termination in
// cfg, prunes slots nothing references, installs the surviving table
// on the CFG and advances the namespace id counter past this table.
// Problems are reported as diagnostics on ns and the finalized CFG is
// still produced, so one bad function does not hide errors in others.
func (vt *Vartable) Finalize(ns *sema.Namespace, graph *ControlFlowGraph) {
	if len(graph.Blocks) == 0 {
		ns.Diag(errors.New(errors.ErrorEmptyGraph, graph.Name, "function has no basic blocks"))
	}

	used := map[int]struct{}{}
	for blockNo, block := range graph.Blocks {
		if len(block.Instr) == 0 || !block.Instr[len(block.Instr)-1].Terminator() {
			ns.Diag(errors.New(errors.ErrorUnterminatedBlock, graph.Name,
				fmt.Sprintf("block %q does not end in a terminator", block.Name)).
				InBlock(blockNo))
		}
		for instrNo, instr := range block.Instr {
			if instr.Terminator() && instrNo != len(block.Instr)-1 {
				ns.Diag(errors.New(errors.ErrorInstrAfterTerminator, graph.Name,
					fmt.Sprintf("unreachable instruction after terminator in block %q", block.Name)).
					InBlock(blockNo))
			}
			for _, target := range Successors(instr) {
				if target < 0 || target >= len(graph.Blocks) {
					ns.Diag(errors.New(errors.ErrorBadBlockTarget, graph.Name,
						fmt.Sprintf("branch to block #%d which does not exist", target)).
						InBlock(blockNo))
				}
			}
			for _, def := range Defs(instr) {
				used[def] = struct{}{}
				if vt.Get(def) == nil {
					ns.Diag(errors.New(errors.ErrorUndeclaredVariable, graph.Name,
						fmt.Sprintf("assignment to undeclared variable %%%d", def)).
						InBlock(blockNo))
				}
			}
			for _, op := range Operands(instr) {
				UsedVars(op, used)
			}
			for _, id := range VarReads(instr) {
				used[id] = struct{}{}
			}
			if phi, ok := instr.(*Phi); ok {
				for _, edge := range phi.Edges {
					used[edge.VarNo] = struct{}{}
				}
			}
		}
		for _, id := range block.PhiCandidates {
			used[id] = struct{}{}
		}
	}
	for id := range used {
		if vt.Get(id) == nil {
			ns.Diag(errors.New(errors.ErrorUndeclaredVariable, graph.Name,
				fmt.Sprintf("use of undeclared variable %%%d", id)))
		}
	}

	graph.Vars = map[int]*VarDecl{}
	for _, decl := range vt.vars {
		if _, ok := used[decl.ID]; ok {
			graph.Vars[decl.ID] = decl
		}
	}
	ns.NextID = vt.NextID()
}
