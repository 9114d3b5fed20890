// Package abi lowers argument encoding and decoding into CFG
// instructions. Each target picks one codec: the word codec writes
// 32-byte big-endian head/tail frames, the scale codec writes packed
// little-endian values with compact length prefixes, and the borsh
// codec writes packed little-endian values with fixed u32 prefixes.
// Round-tripping is the contract: for any supported value, decoding
// what encode produced yields the value back, and decoding a buffer
// that is too short reaches the failure path instead of reading past
// the end.
package abi

import (
	"aster/internal/cfg"
	"aster/internal/sema"
	"aster/internal/types"
)

// Codec builds the instruction sequences that move values in and out
// of byte buffers.
type Codec interface {
	// Encode allocates a buffer, writes args into it and returns the
	// buffer expression together with its byte length. Packed encoding
	// drops all padding and length framing, writing dynamic contents
	// straight into the stream; a packed buffer feeds hashing and
	// concatenation and carries too little structure to decode.
	Encode(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, args []cfg.Expression, packed bool) (buffer, size cfg.Expression)

	// Decode reads one value per type out of buffer, emitting bounds
	// checks against bufferLen. Reads that would pass the end of the
	// buffer branch to the validator's failure path.
	Decode(ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, bufferLen cfg.Expression, tys []types.Type, validator *BufferValidator) []cfg.Expression
}

// New returns the codec for a target's encoding.
func New(target sema.Target) Codec {
	switch target.Encoding {
	case sema.EncodingWord:
		return &wordCodec{layout: target.Layout}
	case sema.EncodingScale:
		return &sequentialCodec{layout: target.Layout, prefix: scalePrefix{}}
	default:
		return &sequentialCodec{layout: target.Layout, prefix: borshPrefix{}, strict: true}
	}
}

// forLoop emits `for index = 0; index < count; index++` scaffolding.
// body is called with the build position inside the loop body and the
// index expression; afterwards the build position is past the loop.
// Variables assigned inside the loop become phi candidates of the
// condition block.
func forLoop(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, count cfg.Expression, body func(index cfg.Expression)) {
	indexTy := types.Uint{Bits: 32}
	indexVar := vt.Temp("for_i", indexTy)
	index := &cfg.Variable{Type: indexTy, VarNo: indexVar}

	cond := graph.NewBasicBlock("cond")
	loopBody := graph.NewBasicBlock("body")
	next := graph.NewBasicBlock("next")
	end := graph.NewBasicBlock("end_for")

	graph.Add(vt, &cfg.Set{Res: indexVar, Expr: cfg.Uint32(0)})
	graph.Add(vt, &cfg.Branch{Block: cond})

	vt.NewDirtyTracker()

	graph.SetBasicBlock(cond)
	graph.Add(vt, &cfg.BranchCond{
		Cond:       &cfg.Binary{Op: cfg.OpLess, Left: index, Right: count},
		TrueBlock:  loopBody,
		FalseBlock: end,
	})

	graph.SetBasicBlock(loopBody)
	body(index)
	graph.Add(vt, &cfg.Branch{Block: next})

	graph.SetBasicBlock(next)
	graph.Add(vt, &cfg.Set{Res: indexVar, Expr: cfg.AddU32(index, cfg.Uint32(1))})
	graph.Add(vt, &cfg.Branch{Block: cond})

	graph.SetPhis(cond, vt.PopDirtyTracker())
	graph.SetBasicBlock(end)
}

// cacheOffset spills a growing offset expression into a temporary so
// the expression tree does not rebuild the whole sum at every use.
func cacheOffset(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, offset cfg.Expression) cfg.Expression {
	if v, ok := offset.(*cfg.Variable); ok {
		return v
	}
	tmp := vt.Temp("offset", types.Uint{Bits: 32})
	graph.Add(vt, &cfg.Set{Res: tmp, Expr: offset})
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: tmp}
}

// arrayLength reads the runtime element count of a vector value.
func arrayLength(array cfg.Expression) cfg.Expression {
	return &cfg.Builtin{
		Type: types.Uint{Bits: 32},
		Kind: cfg.BuiltinArrayLength,
		Args: []cfg.Expression{array},
	}
}

// scalarSize is the packed byte width of a fixed-size scalar.
func scalarSize(ty types.Type, lay types.Layout) int64 {
	switch t := ty.(type) {
	case types.Bool:
		return 1
	case types.Uint:
		return int64(t.Bits) / 8
	case types.Int:
		return int64(t.Bits) / 8
	case types.Bytes:
		return int64(t.Length)
	case types.Address:
		return int64(lay.AddressLength)
	case types.Value:
		return int64(lay.ValueLength)
	case types.FunctionSelector:
		return int64(lay.SelectorLength)
	}
	return 0
}
