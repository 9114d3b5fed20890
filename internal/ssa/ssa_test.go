package ssa

import (
	"math/big"
	"strings"
	"testing"

	"aster/internal/cfg"
	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/types"
)

func testNamespace() *sema.Namespace {
	target, _ := sema.LookupTarget("scale")
	return sema.NewNamespace("test", target)
}

func u32(v int64) *cfg.NumberLiteral {
	return &cfg.NumberLiteral{Type: types.Uint{Bits: 32}, Value: big.NewInt(v)}
}

// diamond builds:
//
//	entry: branchcond -> then | else
//	then:  x = 1; branch join
//	else:  x = 2; branch join
//	join:  return x
func diamond(ns *sema.Namespace) *cfg.ControlFlowGraph {
	graph := cfg.NewControlFlowGraph("diamond", sema.KindFunction)
	vt := cfg.NewVartable(ns)

	x := vt.Declare("x", types.Uint{Bits: 32})
	then := graph.NewBasicBlock("then")
	els := graph.NewBasicBlock("else")
	join := graph.NewBasicBlock("join")

	graph.Add(vt, &cfg.BranchCond{Cond: &cfg.BoolLiteral{Value: true}, TrueBlock: then, FalseBlock: els})

	graph.SetBasicBlock(then)
	graph.Add(vt, &cfg.Set{Res: x, Expr: u32(1)})
	graph.Add(vt, &cfg.Branch{Block: join})

	graph.SetBasicBlock(els)
	graph.Add(vt, &cfg.Set{Res: x, Expr: u32(2)})
	graph.Add(vt, &cfg.Branch{Block: join})

	graph.SetBasicBlock(join)
	graph.Add(vt, &cfg.Return{Values: []cfg.Expression{
		&cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: x},
	}})

	vt.Finalize(ns, graph)
	return graph
}

func TestLowerInsertsPhiAtJoin(t *testing.T) {
	ns := testNamespace()
	lowered := Lower(ns, diamond(ns))

	if ns.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", ns.Diagnostics)
	}

	join := lowered.Blocks[3]
	phi, ok := join.Instr[0].(*cfg.Phi)
	if !ok {
		t.Fatalf("join block must start with a phi, got %T", join.Instr[0])
	}
	if len(phi.Edges) != 2 {
		t.Fatalf("phi needs one edge per predecessor, got %d", len(phi.Edges))
	}
	if phi.Edges[0].VarNo == phi.Edges[1].VarNo {
		t.Error("phi edges must name distinct versions")
	}

	// The return must read the phi result, not either branch version.
	ret := join.Instr[len(join.Instr)-1].(*cfg.Return)
	v, ok := ret.Values[0].(*cfg.Variable)
	if !ok || v.VarNo != phi.Res {
		t.Errorf("return should read the phi result %%%d, got %s", phi.Res, cfg.ExprString(ret.Values[0]))
	}
}

func TestLowerSingleDefinitionNeedsNoPhi(t *testing.T) {
	ns := testNamespace()
	graph := cfg.NewControlFlowGraph("straight", sema.KindFunction)
	vt := cfg.NewVartable(ns)

	x := vt.Declare("x", types.Uint{Bits: 32})
	next := graph.NewBasicBlock("next")
	graph.Add(vt, &cfg.Set{Res: x, Expr: u32(5)})
	graph.Add(vt, &cfg.Branch{Block: next})
	graph.SetBasicBlock(next)
	graph.Add(vt, &cfg.Return{Values: []cfg.Expression{
		&cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: x},
	}})
	vt.Finalize(ns, graph)

	lowered := Lower(ns, graph)
	for _, block := range lowered.Blocks {
		for _, instr := range block.Instr {
			if _, ok := instr.(*cfg.Phi); ok {
				t.Fatal("straight-line code must not grow phis")
			}
		}
	}
}

func TestLowerEveryVersionAssignedOnce(t *testing.T) {
	ns := testNamespace()
	lowered := Lower(ns, diamond(ns))

	defs := map[int]int{}
	for _, block := range lowered.Blocks {
		for _, instr := range block.Instr {
			for _, d := range cfg.Defs(instr) {
				defs[d]++
			}
		}
	}
	for varNo, n := range defs {
		if n != 1 {
			t.Errorf("ssa version %%%d assigned %d times", varNo, n)
		}
	}
}

func TestLowerReportsUndefinedRead(t *testing.T) {
	ns := testNamespace()
	graph := cfg.NewControlFlowGraph("bad", sema.KindFunction)
	vt := cfg.NewVartable(ns)

	x := vt.Declare("x", types.Uint{Bits: 32})
	y := vt.Declare("y", types.Uint{Bits: 32})
	// y is read before anything assigns it.
	graph.Add(vt, &cfg.Set{Res: x, Expr: &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: y}})
	graph.Add(vt, &cfg.Return{})
	vt.Finalize(ns, graph)

	Lower(ns, graph)

	found := false
	for _, diag := range ns.Diagnostics {
		if diag.Code == errors.ErrorUndefinedRead {
			found = true
			if !strings.Contains(diag.Message, "y") {
				t.Errorf("diagnostic should name the variable: %s", diag.Message)
			}
		}
	}
	if !found {
		t.Fatalf("expected %s, got %v", errors.ErrorUndefinedRead, ns.Diagnostics)
	}
}

func TestLowerPartialDefinitionAtJoin(t *testing.T) {
	ns := testNamespace()
	graph := cfg.NewControlFlowGraph("partial", sema.KindFunction)
	vt := cfg.NewVartable(ns)

	x := vt.Declare("x", types.Uint{Bits: 32})
	then := graph.NewBasicBlock("then")
	join := graph.NewBasicBlock("join")

	// x is assigned on one path only, then read at the join.
	graph.Add(vt, &cfg.BranchCond{Cond: &cfg.BoolLiteral{Value: true}, TrueBlock: then, FalseBlock: join})
	graph.SetBasicBlock(then)
	graph.Add(vt, &cfg.Set{Res: x, Expr: u32(1)})
	graph.Add(vt, &cfg.Branch{Block: join})
	graph.SetBasicBlock(join)
	graph.Add(vt, &cfg.Return{Values: []cfg.Expression{
		&cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: x},
	}})
	vt.Finalize(ns, graph)

	Lower(ns, graph)

	found := false
	for _, diag := range ns.Diagnostics {
		if diag.Code == errors.ErrorUndefinedRead {
			found = true
		}
	}
	if !found {
		t.Fatal("read of a variable defined on only one path must be diagnosed")
	}
}

func TestLowerLoopPhi(t *testing.T) {
	ns := testNamespace()
	graph := cfg.NewControlFlowGraph("loop", sema.KindFunction)
	vt := cfg.NewVartable(ns)

	i := vt.Declare("i", types.Uint{Bits: 32})
	cond := graph.NewBasicBlock("cond")
	body := graph.NewBasicBlock("body")
	end := graph.NewBasicBlock("end")

	graph.Add(vt, &cfg.Set{Res: i, Expr: u32(0)})
	graph.Add(vt, &cfg.Branch{Block: cond})

	graph.SetBasicBlock(cond)
	graph.Add(vt, &cfg.BranchCond{
		Cond: &cfg.Binary{
			Op:    cfg.OpLess,
			Left:  &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: i},
			Right: u32(10),
		},
		TrueBlock:  body,
		FalseBlock: end,
	})

	graph.SetBasicBlock(body)
	graph.Add(vt, &cfg.Set{Res: i, Expr: cfg.AddU32(
		&cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: i}, u32(1))})
	graph.Add(vt, &cfg.Branch{Block: cond})

	graph.SetBasicBlock(end)
	graph.Add(vt, &cfg.Return{})
	vt.Finalize(ns, graph)

	lowered := Lower(ns, graph)
	if ns.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", ns.Diagnostics)
	}

	phi, ok := lowered.Blocks[cond].Instr[0].(*cfg.Phi)
	if !ok {
		t.Fatalf("loop header must start with a phi, got %T", lowered.Blocks[cond].Instr[0])
	}
	if len(phi.Edges) != 2 {
		t.Errorf("loop phi merges entry and back edge, got %d edges", len(phi.Edges))
	}
}

func TestLowerStorageAndExternalInstructions(t *testing.T) {
	ns := testNamespace()
	graph := cfg.NewControlFlowGraph("stateful", sema.KindFunction)
	vt := cfg.NewVartable(ns)

	x := vt.Declare("x", types.Uint{Bits: 32})
	ok := vt.Declare("ok", types.Bool{})
	then := graph.NewBasicBlock("then")
	els := graph.NewBasicBlock("else")
	join := graph.NewBasicBlock("join")

	graph.Add(vt, &cfg.BranchCond{Cond: &cfg.BoolLiteral{Value: true}, TrueBlock: then, FalseBlock: els})

	graph.SetBasicBlock(then)
	graph.Add(vt, &cfg.LoadStorage{Res: x, Type: types.Uint{Bits: 32}, Storage: u32(1)})
	graph.Add(vt, &cfg.ExternalCall{
		Success: ok,
		Address: &cfg.FunctionArg{Type: types.Address{}, ArgNo: 0},
		Payload: &cfg.FunctionArg{Type: types.DynamicBytes{}, ArgNo: 1},
	})
	graph.Add(vt, &cfg.Branch{Block: join})

	graph.SetBasicBlock(els)
	graph.Add(vt, &cfg.Set{Res: x, Expr: u32(2)})
	graph.Add(vt, &cfg.Set{Res: ok, Expr: &cfg.BoolLiteral{Value: false}})
	graph.Add(vt, &cfg.Branch{Block: join})

	graph.SetBasicBlock(join)
	graph.Add(vt, &cfg.SetStorage{
		Type:    types.Uint{Bits: 32},
		Storage: u32(1),
		Value:   &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: x},
	})
	graph.Add(vt, &cfg.Return{Values: []cfg.Expression{
		&cfg.Variable{Type: types.Bool{}, VarNo: ok},
	}})
	vt.Finalize(ns, graph)

	lowered := Lower(ns, graph)
	if ns.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", ns.Diagnostics)
	}

	phis := 0
	for _, instr := range lowered.Blocks[join].Instr {
		if _, isPhi := instr.(*cfg.Phi); isPhi {
			phis++
		}
	}
	if phis != 2 {
		t.Fatalf("join needs a phi per merged variable, got %d", phis)
	}

	defs := map[int]int{}
	for _, block := range lowered.Blocks {
		for _, instr := range block.Instr {
			for _, d := range cfg.Defs(instr) {
				defs[d]++
			}
		}
	}
	for varNo, n := range defs {
		if n != 1 {
			t.Errorf("ssa version %%%d assigned %d times", varNo, n)
		}
	}

	text := lowered.ToString()
	for _, want := range []string{"load storage", "external call", "store storage"} {
		if !strings.Contains(text, want) {
			t.Errorf("lowered form should keep %q:\n%s", want, text)
		}
	}
}

func TestLowerVersionNames(t *testing.T) {
	ns := testNamespace()
	lowered := Lower(ns, diamond(ns))

	names := map[string]bool{}
	for _, decl := range lowered.Vars {
		names[decl.Name] = true
	}
	for _, want := range []string{"x.1", "x.2", "x.3"} {
		if !names[want] {
			t.Errorf("lowered table should hold version %q, got %v", want, names)
		}
	}
}

func TestLowerDeterministicOutput(t *testing.T) {
	build := func() string {
		ns := testNamespace()
		lowered := Lower(ns, diamond(ns))
		return lowered.ToString()
	}
	first := build()
	for i := 0; i < 10; i++ {
		if got := build(); got != first {
			t.Fatalf("ssa output must be deterministic:\n%s\nvs\n%s", first, got)
		}
	}
	if !strings.Contains(first, "phi") {
		t.Errorf("printed ssa form should show the phi:\n%s", first)
	}
}

func TestLowerLeavesInputUntouched(t *testing.T) {
	ns := testNamespace()
	graph := diamond(ns)
	before := graph.ToString()
	Lower(ns, graph)
	if graph.ToString() != before {
		t.Error("lowering must not mutate the input graph")
	}
}
