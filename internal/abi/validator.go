package abi

import (
	"math/big"

	"aster/internal/cfg"
	"aster/internal/sema"
	"aster/internal/types"
)

// BufferValidator guards buffer reads while decoding. Arguments whose
// size is known at build time are folded into a single up-front check;
// reads past the verified watermark emit their own runtime check that
// branches to the failure block when out of bounds.
type BufferValidator struct {
	// bufferLen is the total byte length of the buffer being decoded.
	bufferLen cfg.Expression
	// tys are the argument types being decoded, in order.
	tys []types.Type
	// verifiedUntil is the argument index up to which reads are
	// already covered by a check, -1 when nothing is verified.
	verifiedUntil int
	currentArg    int
	// failBlock is built lazily; every failed check branches here.
	failBlock int
	// onFail emits the failure terminator, a trap or a return code
	// depending on who is decoding.
	onFail func(graph *cfg.ControlFlowGraph, vt *cfg.Vartable)
}

// NewBufferValidator prepares validation for decoding tys out of a
// buffer of bufferLen bytes. Decode failure traps.
func NewBufferValidator(bufferLen cfg.Expression, tys []types.Type) *BufferValidator {
	return &BufferValidator{
		bufferLen:     bufferLen,
		tys:           tys,
		verifiedUntil: -1,
		failBlock:     -1,
		onFail: func(graph *cfg.ControlFlowGraph, vt *cfg.Vartable) {
			graph.Add(vt, &cfg.AssertFailure{})
		},
	}
}

// FailWithCode makes decode failure return a status code instead of
// trapping; dispatchers that answer the host directly use this.
func (v *BufferValidator) FailWithCode(code cfg.ReturnCode) {
	v.onFail = func(graph *cfg.ControlFlowGraph, vt *cfg.Vartable) {
		graph.Add(vt, &cfg.ReturnCodeInstr{Code: code})
	}
}

// SetArgumentNumber points the validator at the argument about to be
// decoded.
func (v *BufferValidator) SetArgumentNumber(arg int) {
	v.currentArg = arg
}

// InitializeValidation emits the up-front check covering every
// fixed-size argument from the start of the buffer, so their
// individual reads need no runtime checks.
func (v *BufferValidator) InitializeValidation(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, offset cfg.Expression) {
	span, last := v.fixedPrefix(ns.Target.Layout)
	if last < 0 {
		return
	}
	v.verifiedUntil = last
	v.validate(vt, graph, cfg.AddU32(offset, cfg.Uint32(span)))
}

// ValidateOffsetPlusSize checks that size bytes starting at offset fit
// in the buffer, unless the current argument is already covered.
func (v *BufferValidator) ValidateOffsetPlusSize(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, offset, size cfg.Expression) {
	if v.ValidationNecessary() {
		v.validate(vt, graph, cfg.AddU32(offset, size))
	}
}

// ValidateOffset checks that offset itself is within the buffer.
func (v *BufferValidator) ValidateOffset(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, offset cfg.Expression) {
	if v.ValidationNecessary() {
		v.validate(vt, graph, offset)
	}
}

// ValidationNecessary reports whether the current argument still needs
// runtime checks.
func (v *BufferValidator) ValidationNecessary() bool {
	return v.currentArg > v.verifiedUntil
}

// ValidateAll emits a final check that the decode consumed exactly the
// buffer, catching trailing garbage.
func (v *BufferValidator) ValidateAll(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, offset cfg.Expression) {
	invalid := vt.TempAnonymous(types.Bool{})
	graph.Add(vt, &cfg.Set{Res: invalid, Expr: &cfg.Binary{
		Op:    cfg.OpNotEqual,
		Left:  offset,
		Right: v.bufferLen,
	}})
	v.branchOnFailure(vt, graph, invalid)
}

// fixedPrefix sums the compile-time sizes of the leading fixed-size
// arguments and returns the span plus the index of the last one.
func (v *BufferValidator) fixedPrefix(lay types.Layout) (int64, int) {
	span := big.NewInt(0)
	last := -1
	for i, ty := range v.tys {
		size := types.MemorySize(types.Deref(ty), lay)
		if size == nil {
			break
		}
		span.Add(span, size)
		last = i
	}
	return span.Int64(), last
}

func (v *BufferValidator) validate(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, end cfg.Expression) {
	outOfBounds := vt.TempAnonymous(types.Bool{})
	graph.Add(vt, &cfg.Set{Res: outOfBounds, Expr: &cfg.Binary{
		Op:    cfg.OpMore,
		Left:  end,
		Right: v.bufferLen,
	}})
	v.branchOnFailure(vt, graph, outOfBounds)
}

func (v *BufferValidator) branchOnFailure(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, condVar int) {
	if v.failBlock < 0 {
		v.failBlock = graph.NewBasicBlock("out_of_bounds")
		inBounds := graph.CurrentBlock()
		graph.SetBasicBlock(v.failBlock)
		v.onFail(graph, vt)
		graph.SetBasicBlock(inBounds)
	}
	next := graph.NewBasicBlock("buffer_read")
	graph.Add(vt, &cfg.BranchCond{
		Cond:       &cfg.Variable{Type: types.Bool{}, VarNo: condVar},
		TrueBlock:  v.failBlock,
		FalseBlock: next,
	})
	graph.SetBasicBlock(next)
}
