package abi_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aster/internal/abi"
	"aster/internal/cfg"
	"aster/internal/sema"
	"aster/internal/types"
)

func newCodec(t *testing.T, targetName string) (*sema.Namespace, *cfg.Vartable, *cfg.ControlFlowGraph, abi.Codec) {
	t.Helper()
	target, ok := sema.LookupTarget(targetName)
	require.True(t, ok, "target %s must exist", targetName)
	ns := sema.NewNamespace("Test", target)
	graph := cfg.NewControlFlowGraph("codec_test", sema.KindFunction)
	vt := cfg.NewVartable(ns)
	return ns, vt, graph, abi.New(target)
}

// finishGraph terminates the build position and returns the canonical
// text, failing the test on any builder diagnostic.
func finishGraph(t *testing.T, ns *sema.Namespace, vt *cfg.Vartable, graph *cfg.ControlFlowGraph) string {
	t.Helper()
	graph.Add(vt, &cfg.Return{})
	vt.Finalize(ns, graph)
	require.False(t, ns.HasErrors(), "diagnostics: %v", ns.Diagnostics)
	return graph.ToString()
}

func arg(ty types.Type, no int) cfg.Expression {
	return &cfg.FunctionArg{Type: ty, ArgNo: no}
}

func TestBorshEncodeScalarsWritesSequentially(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "borsh")

	buffer, _ := codec.Encode(ns, vt, graph, []cfg.Expression{
		arg(types.Uint{Bits: 64}, 0),
		arg(types.Bool{}, 1),
	}, false)
	text := finishGraph(t, ns, vt, graph)

	assert.IsType(t, &cfg.Variable{}, buffer)
	assert.Contains(t, text, "(alloc bytes len ")
	assert.Contains(t, text, "offset:uint32 0 value:(arg #0)")
	assert.Contains(t, text, "value:(arg #1)")
}

func TestBorshStringUsesFixedPrefix(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "borsh")

	codec.Encode(ns, vt, graph, []cfg.Expression{arg(types.String{}, 0)}, false)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, "(builtin array_length ((arg #0)))")
	assert.Contains(t, text, "memcpy src:(arg #0)")
	// Fixed u32 prefixes never branch on the length.
	assert.NotContains(t, text, "# small")
	assert.NotContains(t, text, "# medium")
}

func TestScaleStringPrefixBranchesOnLength(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "scale")

	codec.Encode(ns, vt, graph, []cfg.Expression{arg(types.String{}, 0)}, false)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, "# small")
	assert.Contains(t, text, "# medium_check")
	assert.Contains(t, text, "# medium")
	assert.Contains(t, text, "# large")
	assert.Contains(t, text, "# done")
	// Joining paths that assign the prefix size leaves phi candidates
	// on the done block.
	assert.Contains(t, text, "# phis:")
}

func TestScaleCompactReadRejectsWideMode(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "scale")

	values := codec.Decode(ns, vt, graph,
		arg(types.BufferPointer{}, 0), arg(types.Uint{Bits: 32}, 1),
		[]types.Type{types.String{}}, nil)
	text := finishGraph(t, ns, vt, graph)

	require.Len(t, values, 1)
	assert.Contains(t, text, "case uint8 0: block#")
	assert.Contains(t, text, "case uint8 1: block#")
	assert.Contains(t, text, "case uint8 2: block#")
	assert.Contains(t, text, "# invalid_compact")
	assert.Contains(t, text, "assert failure")
}

func TestWordScalarRightAligned(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "word")

	codec.Encode(ns, vt, graph, []cfg.Expression{arg(types.Uint{Bits: 64}, 0)}, false)
	text := finishGraph(t, ns, vt, graph)

	// An 8-byte number sits in the last 8 bytes of its 32-byte slot.
	assert.Contains(t, text, "offset:(uint32 0 + uint32 24) value:(arg #0)")
}

func TestWordStringHeadStoresTailOffset(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "word")

	codec.Encode(ns, vt, graph, []cfg.Expression{arg(types.String{}, 0)}, false)
	text := finishGraph(t, ns, vt, graph)

	// The head slot carries the tail offset in its low 4 bytes.
	assert.Contains(t, text, "offset:(uint32 0 + uint32 28)")
	assert.Contains(t, text, "(builtin array_length ((arg #0)))")
	assert.Contains(t, text, "memcpy src:(arg #0)")
}

func TestWordPackedEncodingDropsHeadTail(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "word")
	codec.Encode(ns, vt, graph, []cfg.Expression{arg(types.String{}, 0)}, true)
	packed := finishGraph(t, ns, vt, graph)

	ns2, vt2, graph2, codec2 := newCodec(t, "word")
	codec2.Encode(ns2, vt2, graph2, []cfg.Expression{arg(types.String{}, 0)}, false)
	standard := finishGraph(t, ns2, vt2, graph2)

	// Standard framing stores an offset slot and a length word; packed
	// splices the bytes straight into the stream.
	assert.Contains(t, standard, "writebuffer")
	assert.NotContains(t, packed, "writebuffer")
	assert.Contains(t, packed, "memcpy src:(arg #0)")
}

func TestWordPackedScalarUsesNaturalWidth(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "word")

	codec.Encode(ns, vt, graph, []cfg.Expression{
		arg(types.Uint{Bits: 64}, 0),
		arg(types.Uint{Bits: 32}, 1),
	}, true)
	text := finishGraph(t, ns, vt, graph)

	// The second write lands eight bytes in, not at the next 32-byte
	// slot.
	assert.Contains(t, text, "offset:uint32 0 value:(arg #0)")
	assert.Contains(t, text, "(uint32 0 + uint32 8)")
	assert.NotContains(t, text, "uint32 32")
}

func TestScalePackedStringSkipsCompactPrefix(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "scale")

	codec.Encode(ns, vt, graph, []cfg.Expression{arg(types.String{}, 0)}, true)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, "memcpy src:(arg #0)")
	assert.NotContains(t, text, "# small")
	assert.NotContains(t, text, "# large")
}

func TestWordDecodeReadsOffsetWord(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "word")

	values := codec.Decode(ns, vt, graph,
		arg(types.BufferPointer{}, 0), arg(types.Uint{Bits: 32}, 1),
		[]types.Type{types.String{}}, nil)
	text := finishGraph(t, ns, vt, graph)

	require.Len(t, values, 1)
	assert.Contains(t, text, "(builtin read_from_buffer ((arg #0), (uint32 0 + uint32 28)))")
}

func TestDecodeChecksBounds(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "borsh")

	codec.Decode(ns, vt, graph,
		arg(types.BufferPointer{}, 0), arg(types.Uint{Bits: 32}, 1),
		[]types.Type{types.Uint{Bits: 64}}, nil)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, "# out_of_bounds")
	assert.Contains(t, text, "assert failure")
}

func TestDecodeFailureCode(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "borsh")

	tys := []types.Type{types.Uint{Bits: 64}}
	bufferLen := arg(types.Uint{Bits: 32}, 1)
	validator := abi.NewBufferValidator(bufferLen, tys)
	validator.FailWithCode(cfg.CodeAbiEncodingInvalid)

	codec.Decode(ns, vt, graph, arg(types.BufferPointer{}, 0), bufferLen, tys, validator)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, `return code "abi encoding invalid"`)
	assert.NotContains(t, text, "assert failure")
}

func TestFixedPrefixFoldsIntoOneCheck(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "scale")

	codec.Decode(ns, vt, graph,
		arg(types.BufferPointer{}, 0), arg(types.Uint{Bits: 32}, 1),
		[]types.Type{types.Uint{Bits: 64}, types.Uint{Bits: 32}, types.Bool{}}, nil)
	text := finishGraph(t, ns, vt, graph)

	// Three fixed-size arguments share one up-front bounds check.
	assert.Equal(t, 1, strings.Count(text, "branchcond"))
}

func TestStrictDecodeRejectsTrailingBytes(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "borsh")

	codec.Decode(ns, vt, graph,
		arg(types.BufferPointer{}, 0), arg(types.Uint{Bits: 32}, 1),
		[]types.Type{types.Uint{Bits: 64}}, nil)
	text := finishGraph(t, ns, vt, graph)

	// One bounds check for the fixed argument, one exact-length check
	// at the end.
	assert.Equal(t, 2, strings.Count(text, "branchcond"))
	assert.Contains(t, text, "!= (arg #1)")
}

func TestEncodeFixedArrayIsOneCopy(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "scale")

	pair := types.Array{
		Elem: types.Uint{Bits: 8},
		Dims: []types.ArrayLength{types.FixedLength{N: big.NewInt(4)}},
	}
	codec.Encode(ns, vt, graph, []cfg.Expression{arg(pair, 0)}, false)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, "memcpy src:(arg #0)")
	assert.NotContains(t, text, "# cond")
}

func TestEncodeVectorOfStringsLoops(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "scale")

	vec := types.Array{
		Elem: types.String{},
		Dims: []types.ArrayLength{types.DynamicLength{}},
	}
	codec.Encode(ns, vt, graph, []cfg.Expression{arg(vec, 0)}, false)
	text := finishGraph(t, ns, vt, graph)

	assert.Contains(t, text, "# cond")
	assert.Contains(t, text, "# body")
	assert.Contains(t, text, "# end_for")
}

func TestDecodeStructBuildsLiteral(t *testing.T) {
	ns, vt, graph, codec := newCodec(t, "borsh")

	decl := &types.StructDecl{
		Name: "Point",
		Fields: []types.Field{
			{Name: "x", Ty: types.Uint{Bits: 64}},
			{Name: "y", Ty: types.Uint{Bits: 64}},
		},
	}
	values := codec.Decode(ns, vt, graph,
		arg(types.BufferPointer{}, 0), arg(types.Uint{Bits: 32}, 1),
		[]types.Type{types.Struct{Decl: decl}}, nil)
	text := finishGraph(t, ns, vt, graph)

	require.Len(t, values, 1)
	assert.Contains(t, text, "struct struct Point {")
}
