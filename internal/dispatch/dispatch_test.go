package dispatch_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aster/internal/cfg"
	"aster/internal/dispatch"
	"aster/internal/sema"
	"aster/internal/types"
)

func testNamespace(t *testing.T, targetName string) *sema.Namespace {
	t.Helper()
	target, ok := sema.LookupTarget(targetName)
	require.True(t, ok, "target %s must exist", targetName)
	return sema.NewNamespace("Test", target)
}

// fn builds the metadata shell of an already-lowered function; the
// dispatcher only reads metadata, never the target's blocks.
func fn(name string, kind sema.FunctionKind, no int, selector []byte) *cfg.ControlFlowGraph {
	graph := cfg.NewControlFlowGraph(name, kind)
	graph.FunctionNo = no
	graph.Public = true
	graph.Selector = selector
	return graph
}

func findGraph(t *testing.T, graphs []*cfg.ControlFlowGraph, name string) *cfg.ControlFlowGraph {
	t.Helper()
	for _, g := range graphs {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("no graph named %s", name)
	return nil
}

func TestSplitTargetExportsTwoEntryPoints(t *testing.T) {
	ns := testNamespace(t, "word")
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("init", sema.KindConstructor, 0, []byte{1, 2, 3, 4}),
		fn("get", sema.KindFunction, 1, []byte{5, 6, 7, 8}),
	})
	require.False(t, ns.HasErrors(), "diagnostics: %v", ns.Diagnostics)

	require.Len(t, graphs, 2)
	deploy := findGraph(t, graphs, "deploy_dispatch")
	call := findGraph(t, graphs, "call_dispatch")

	for _, g := range []*cfg.ControlFlowGraph{deploy, call} {
		assert.True(t, g.Public)
		require.Len(t, g.Params, 3)
		assert.Equal(t, types.BufferPointer{}, g.Params[0].Ty)
		assert.Equal(t, types.Uint{Bits: 32}, g.Params[1].Ty)
		assert.Equal(t, types.Value{}, g.Params[2].Ty)
	}
}

func TestCombinedTargetExportsOneEntryPoint(t *testing.T) {
	ns := testNamespace(t, "borsh")
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("init", sema.KindConstructor, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		fn("get", sema.KindFunction, 1, []byte{8, 7, 6, 5, 4, 3, 2, 1}),
	})
	require.False(t, ns.HasErrors())

	require.Len(t, graphs, 1)
	combined := graphs[0]
	assert.Equal(t, "dispatch", combined.Name)

	text := combined.ToString()
	assert.Contains(t, text, "# func_init")
	assert.Contains(t, text, "# func_get")
}

func TestDispatchersFilterByKind(t *testing.T) {
	ns := testNamespace(t, "word")
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("init", sema.KindConstructor, 0, []byte{1, 2, 3, 4}),
		fn("transfer", sema.KindFunction, 1, []byte{5, 6, 7, 8}),
	})
	require.False(t, ns.HasErrors())

	deploy := findGraph(t, graphs, "deploy_dispatch").ToString()
	call := findGraph(t, graphs, "call_dispatch").ToString()

	assert.Contains(t, deploy, "# func_init")
	assert.NotContains(t, deploy, "# func_transfer")
	assert.Contains(t, call, "# func_transfer")
	assert.NotContains(t, call, "# func_init")
}

func TestPrivateFunctionsAreNotDispatchable(t *testing.T) {
	ns := testNamespace(t, "word")
	private := fn("helper", sema.KindFunction, 0, []byte{1, 2, 3, 4})
	private.Public = false

	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{private})
	call := findGraph(t, graphs, "call_dispatch").ToString()
	assert.NotContains(t, call, "# func_helper")
}

func TestNonpayableValueCheckPrecedesDecode(t *testing.T) {
	ns := testNamespace(t, "word")
	transfer := fn("transfer", sema.KindFunction, 0, []byte{0xa9, 0x05, 0x9c, 0xbb})
	transfer.Nonpayable = true
	transfer.Params = []sema.Parameter{{Name: "to", Ty: types.Address{}}}

	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{transfer})
	text := findGraph(t, graphs, "call_dispatch").ToString()

	msg := hex.EncodeToString([]byte("runtime_error: non payable function transfer received value"))
	assert.Contains(t, text, msg)

	// The value check traps before any argument byte is touched.
	abortAt := strings.Index(text, "# abort_value_transfer")
	decodeAt := strings.Index(text, "# out_of_bounds")
	require.GreaterOrEqual(t, abortAt, 0)
	require.GreaterOrEqual(t, decodeAt, 0)
	assert.Less(t, abortAt, decodeAt)
}

func TestRuntimeErrorLoggingCanBeDisabled(t *testing.T) {
	ns := testNamespace(t, "word")
	ns.LogRuntimeErrors = false
	transfer := fn("transfer", sema.KindFunction, 0, []byte{0xa9, 0x05, 0x9c, 0xbb})
	transfer.Nonpayable = true

	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{transfer})
	text := findGraph(t, graphs, "call_dispatch").ToString()

	assert.Contains(t, text, "# abort_value_transfer")
	assert.NotContains(t, text, "print")
}

func TestPayableFunctionSkipsValueCheck(t *testing.T) {
	ns := testNamespace(t, "word")
	deposit := fn("deposit", sema.KindFunction, 0, []byte{1, 2, 3, 4})

	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{deposit})
	text := findGraph(t, graphs, "call_dispatch").ToString()
	assert.NotContains(t, text, "abort_value_transfer")
}

func TestDecodeFailureReturnsEncodingInvalid(t *testing.T) {
	ns := testNamespace(t, "scale")
	get := fn("get", sema.KindFunction, 0, []byte{1, 2, 3, 4})
	get.Params = []sema.Parameter{{Name: "key", Ty: types.Uint{Bits: 64}}}

	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{get})
	text := findGraph(t, graphs, "call_dispatch").ToString()

	assert.Contains(t, text, `return code "abi encoding invalid"`)
	assert.NotContains(t, text, "assert failure data:")
}

func TestDeployRejectsUnknownSelector(t *testing.T) {
	ns := testNamespace(t, "word")
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("init", sema.KindConstructor, 0, []byte{1, 2, 3, 4}),
	})
	deploy := findGraph(t, graphs, "deploy_dispatch").ToString()

	assert.Contains(t, deploy, "# short_input")
	assert.Contains(t, deploy, "# no_match")
	assert.Contains(t, deploy, `return code "function selector invalid"`)
	assert.NotContains(t, deploy, "# fallback")
}

func TestCallRoutesUnmatchedToFallbackAndReceive(t *testing.T) {
	ns := testNamespace(t, "word")
	fallback := fn("on_call", sema.KindFallback, 1, nil)
	receive := fn("on_transfer", sema.KindReceive, 2, nil)
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("get", sema.KindFunction, 0, []byte{1, 2, 3, 4}),
		fallback,
		receive,
	})
	call := findGraph(t, graphs, "call_dispatch").ToString()

	assert.Contains(t, call, "# fallback")
	assert.Contains(t, call, "# receive")
	assert.Contains(t, call, "call function#1")
	assert.Contains(t, call, "call function#2")
}

func TestCallWithoutHandlersRejectsUnmatched(t *testing.T) {
	ns := testNamespace(t, "word")
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("get", sema.KindFunction, 0, []byte{1, 2, 3, 4}),
	})
	call := findGraph(t, graphs, "call_dispatch").ToString()
	assert.Contains(t, call, `return code "function selector invalid"`)
}

func TestSelectorByteOrderPerTarget(t *testing.T) {
	selector := []byte{0xde, 0xad, 0xbe, 0xef}

	wordNS := testNamespace(t, "word")
	wordGraphs := dispatch.Build(wordNS, []*cfg.ControlFlowGraph{
		fn("get", sema.KindFunction, 0, selector),
	})
	wordText := findGraph(t, wordGraphs, "call_dispatch").ToString()
	// Big-endian read: the constant is the selector as written.
	assert.Contains(t, wordText, "case uint32 3735928559")

	scaleNS := testNamespace(t, "scale")
	scaleGraphs := dispatch.Build(scaleNS, []*cfg.ControlFlowGraph{
		fn("get", sema.KindFunction, 0, selector),
	})
	scaleText := findGraph(t, scaleGraphs, "call_dispatch").ToString()
	// Little-endian read: the constant is the selector byte-reversed.
	assert.Contains(t, scaleText, "case uint32 4022250974")
}

func TestVoidFunctionReturnsEmptyBuffer(t *testing.T) {
	ns := testNamespace(t, "word")
	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
		fn("ping", sema.KindFunction, 0, []byte{1, 2, 3, 4}),
	})
	call := findGraph(t, graphs, "call_dispatch").ToString()
	assert.Contains(t, call, "len uint32 0")
	assert.Contains(t, call, "(alloc bytes len uint32 0)")
}

func TestFunctionReturnsAreEncoded(t *testing.T) {
	ns := testNamespace(t, "word")
	get := fn("get", sema.KindFunction, 0, []byte{1, 2, 3, 4})
	get.Returns = []sema.Parameter{{Name: "ret0", Ty: types.Uint{Bits: 64}}}

	graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{get})
	call := findGraph(t, graphs, "call_dispatch").ToString()

	assert.Contains(t, call, "= call function#0")
	assert.Contains(t, call, "writebuffer")
	assert.Contains(t, call, "return data")
}

func TestBuildIsDeterministic(t *testing.T) {
	build := func() string {
		ns := testNamespace(t, "word")
		graphs := dispatch.Build(ns, []*cfg.ControlFlowGraph{
			fn("a", sema.KindFunction, 0, []byte{1, 0, 0, 0}),
			fn("b", sema.KindFunction, 1, []byte{2, 0, 0, 0}),
			fn("c", sema.KindFunction, 2, []byte{3, 0, 0, 0}),
		})
		var b strings.Builder
		for _, g := range graphs {
			b.WriteString(g.ToString())
		}
		return b.String()
	}

	first := build()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build())
	}
}
