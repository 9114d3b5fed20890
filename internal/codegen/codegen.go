// Package codegen drives the backend for one contract: it lowers each
// declared function into a CFG, checks the dispatch surface, and
// appends the target's entry points.
package codegen

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"aster/internal/cfg"
	"aster/internal/dispatch"
	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/types"
)

// Contract lowers the namespace's functions and builds the entry
// points. Function CFGs come first, in declaration order, followed by
// the dispatchers, so Call instructions can address functions by
// index.
func Contract(ns *sema.Namespace) []*cfg.ControlFlowGraph {
	checkSelectors(ns)

	graphs := make([]*cfg.ControlFlowGraph, 0, len(ns.Functions)+2)
	for no, decl := range ns.Functions {
		graphs = append(graphs, lowerFunction(ns, decl, no))
	}
	return append(graphs, dispatch.Build(ns, graphs)...)
}

// checkSelectors rejects selector collisions within a dispatch group.
// Deploy and call selectors live in different switches, so a
// constructor may collide with a function without ambiguity.
func checkSelectors(ns *sema.Namespace) {
	seen := map[string]string{}
	for _, decl := range ns.Functions {
		if !decl.Public || len(decl.Selector) == 0 {
			continue
		}
		group := "call"
		if decl.Kind == sema.KindConstructor && ns.Target.Dispatch == sema.DispatchSplit {
			group = "deploy"
		}
		key := group + ":" + hex.EncodeToString(decl.Selector)
		if other, dup := seen[key]; dup {
			ns.Diag(errors.New(errors.ErrorDuplicateSelector, decl.Name,
				fmt.Sprintf("selector %s already used by %s",
					hex.EncodeToString(decl.Selector), other)))
			continue
		}
		seen[key] = decl.Name
	}
}

// lowerFunction builds the CFG for one declaration. Bodies arrive
// from the front end; here each function returns the zero value of
// its declared results, which keeps every downstream pass honest
// about signatures without inventing behavior.
func lowerFunction(ns *sema.Namespace, decl *sema.FunctionDecl, no int) *cfg.ControlFlowGraph {
	graph := cfg.FromDecl(decl, no)
	vt := cfg.NewVartable(ns)

	values := make([]cfg.Expression, len(decl.Returns))
	for i, ret := range decl.Returns {
		values[i] = zeroValue(vt, graph, ret.Ty)
	}
	graph.Add(vt, &cfg.Return{Values: values})

	vt.Finalize(ns, graph)
	return graph
}

// zeroValue builds the zero of a type, allocating where the value is
// a pointer into memory.
func zeroValue(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, ty types.Type) cfg.Expression {
	switch t := types.Deref(ty).(type) {
	case types.Bool:
		return &cfg.BoolLiteral{}
	case types.Bytes:
		return &cfg.BytesLiteral{Type: t, Value: make([]byte, t.Length)}
	case types.String, types.DynamicBytes, types.Slice:
		tmp := vt.TempAnonymous(types.Deref(ty))
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{
			Type: types.Deref(ty),
			Size: cfg.Uint32(0),
		}})
		return &cfg.Variable{Type: types.Deref(ty), VarNo: tmp}
	case types.Struct:
		values := make([]cfg.Expression, len(t.Decl.Fields))
		for i, field := range t.Decl.Fields {
			values[i] = zeroValue(vt, graph, field.Ty)
		}
		tmp := vt.TempAnonymous(t)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.StructLiteral{Type: t, Values: values}})
		return &cfg.Variable{Type: t, VarNo: tmp}
	case types.Array:
		count := big.NewInt(0)
		if fixed, ok := firstDim(t); ok {
			count = fixed
		}
		tmp := vt.TempAnonymous(t)
		graph.Add(vt, &cfg.Set{Res: tmp, Expr: &cfg.AllocDynamicBytes{
			Type: t,
			Size: &cfg.NumberLiteral{Type: types.Uint{Bits: 32}, Value: count},
		}})
		return &cfg.Variable{Type: t, VarNo: tmp}
	default:
		return &cfg.NumberLiteral{Type: types.Deref(ty), Value: big.NewInt(0)}
	}
}

func firstDim(t types.Array) (*big.Int, bool) {
	if len(t.Dims) == 0 {
		return nil, false
	}
	fixed, ok := t.Dims[0].(types.FixedLength)
	if !ok {
		return nil, false
	}
	return fixed.N, true
}
