// Package dispatch builds the entry-point functions a contract
// exposes to its host. A dispatcher receives the raw input buffer,
// reads the selector, checks payability, decodes the arguments,
// invokes the matching function and encodes its returns. Targets with
// separate deploy and call entry points get two dispatchers;
// targets with a single entry point get one that also routes
// constructors.
package dispatch

import (
	"math/big"

	"aster/internal/abi"
	"aster/internal/cfg"
	"aster/internal/sema"
	"aster/internal/types"
)

// Parameter order of every dispatcher.
const (
	argInput    = 0
	argInputLen = 1
	argValue    = 2
)

// Build returns the entry-point CFGs for a contract whose functions
// were already lowered into cfgs. The result is appended after the
// function CFGs by the caller.
func Build(ns *sema.Namespace, cfgs []*cfg.ControlFlowGraph) []*cfg.ControlFlowGraph {
	if ns.Target.Dispatch == sema.DispatchCombined {
		return []*cfg.ControlFlowGraph{
			buildDispatcher(ns, cfgs, "dispatch", bothKinds),
		}
	}
	return []*cfg.ControlFlowGraph{
		buildDispatcher(ns, cfgs, "deploy_dispatch", deployKind),
		buildDispatcher(ns, cfgs, "call_dispatch", callKind),
	}
}

type kindFilter int

const (
	deployKind kindFilter = iota
	callKind
	bothKinds
)

func (f kindFilter) admits(kind sema.FunctionKind) bool {
	switch f {
	case deployKind:
		return kind == sema.KindConstructor
	case callKind:
		return kind == sema.KindFunction
	default:
		return kind == sema.KindConstructor || kind == sema.KindFunction
	}
}

type builder struct {
	ns     *sema.Namespace
	vt     *cfg.Vartable
	graph  *cfg.ControlFlowGraph
	codec  abi.Codec
	cfgs   []*cfg.ControlFlowGraph
	filter kindFilter
}

func buildDispatcher(ns *sema.Namespace, cfgs []*cfg.ControlFlowGraph, name string, filter kindFilter) *cfg.ControlFlowGraph {
	graph := cfg.NewControlFlowGraph(name, sema.KindFunction)
	graph.Params = []sema.Parameter{
		{Name: "input_ptr", Ty: types.BufferPointer{}},
		{Name: "input_len", Ty: types.Uint{Bits: 32}},
		{Name: "value", Ty: types.Value{}},
	}
	graph.Public = true

	b := &builder{
		ns:     ns,
		vt:     cfg.NewVartable(ns),
		graph:  graph,
		codec:  abi.New(ns.Target),
		cfgs:   cfgs,
		filter: filter,
	}
	b.emit()
	b.vt.Finalize(ns, graph)
	return graph
}

func (b *builder) emit() {
	selectorLen := int64(b.ns.Target.Layout.SelectorLength)
	inputLen := b.arg(argInputLen)

	// Inputs shorter than a selector cannot name a function.
	startDispatch := b.graph.NewBasicBlock("start_dispatch")
	b.graph.Add(b.vt, &cfg.BranchCond{
		Cond: &cfg.Binary{
			Op:    cfg.OpLess,
			Left:  inputLen,
			Right: cfg.Uint32(selectorLen),
		},
		TrueBlock:  b.shortInputBlock(),
		FalseBlock: startDispatch,
	})
	b.graph.SetBasicBlock(startDispatch)

	selectorTy := b.ns.Target.SelectorType()
	selectorVar := b.vt.Temp("selector", selectorTy)
	b.graph.Add(b.vt, &cfg.Set{Res: selectorVar, Expr: &cfg.Builtin{
		Type: selectorTy,
		Kind: cfg.BuiltinReadFromBuffer,
		Args: []cfg.Expression{b.arg(argInput), cfg.Uint32(0)},
	}})

	type dispatchCase struct {
		block  int
		target *cfg.ControlFlowGraph
	}
	var cases []cfg.SwitchCase
	var caseBlocks []dispatchCase
	for _, target := range b.cfgs {
		if !target.Public || !b.filter.admits(target.Kind) || len(target.Selector) == 0 {
			continue
		}
		block := b.graph.NewBasicBlock("func_" + target.Name)
		caseBlocks = append(caseBlocks, dispatchCase{block, target})
		cases = append(cases, cfg.SwitchCase{
			Value: b.selectorLiteral(selectorTy, target.Selector),
			Block: block,
		})
	}

	b.graph.Add(b.vt, &cfg.Switch{
		Cond:    &cfg.Variable{Type: selectorTy, VarNo: selectorVar},
		Cases:   cases,
		Default: b.noMatchBlock(),
	})

	for _, c := range caseBlocks {
		b.graph.SetBasicBlock(c.block)
		b.dispatchTo(c.target, selectorLen)
	}
}

// dispatchTo checks payability, decodes arguments, calls the function
// and returns its encoded results.
func (b *builder) dispatchTo(target *cfg.ControlFlowGraph, selectorLen int64) {
	if target.Nonpayable {
		b.abortIfValueTransfer(target.Name)
	}

	argsLen := cfg.SubU32(b.arg(argInputLen), cfg.Uint32(selectorLen))
	argsBuf := &cfg.AdvancePointer{
		Pointer:     b.arg(argInput),
		BytesOffset: cfg.Uint32(selectorLen),
	}

	tys := make([]types.Type, len(target.Params))
	for i, p := range target.Params {
		tys[i] = p.Ty
	}
	validator := abi.NewBufferValidator(argsLen, tys)
	validator.FailWithCode(cfg.CodeAbiEncodingInvalid)
	args := b.codec.Decode(b.ns, b.vt, b.graph, argsBuf, argsLen, tys, validator)

	results := make([]int, len(target.Returns))
	returns := make([]cfg.Expression, len(target.Returns))
	for i, ret := range target.Returns {
		results[i] = b.vt.Temp("ret", ret.Ty)
		returns[i] = &cfg.Variable{Type: ret.Ty, VarNo: results[i]}
	}
	b.graph.Add(b.vt, &cfg.Call{
		Res:   results,
		Kind:  cfg.CallStatic,
		CFGNo: target.FunctionNo,
		Args:  args,
	})

	if len(returns) == 0 {
		b.returnEmpty()
		return
	}
	data, dataLen := b.codec.Encode(b.ns, b.vt, b.graph, returns, false)
	b.graph.Add(b.vt, &cfg.ReturnData{Data: data, DataLen: dataLen})
}

// abortIfValueTransfer traps calls that carry value into a nonpayable
// function, before any argument is decoded.
func (b *builder) abortIfValueTransfer(name string) {
	abort := b.graph.NewBasicBlock("abort_value_transfer")
	next := b.graph.NewBasicBlock("no_value")
	b.graph.Add(b.vt, &cfg.BranchCond{
		Cond: &cfg.Binary{
			Op:    cfg.OpMore,
			Left:  b.arg(argValue),
			Right: cfg.Number(types.Value{}, big.NewInt(0)),
		},
		TrueBlock:  abort,
		FalseBlock: next,
	})

	b.graph.SetBasicBlock(abort)
	if b.ns.LogRuntimeErrors {
		msg := []byte("runtime_error: non payable function " + name + " received value")
		b.graph.Add(b.vt, &cfg.Print{Expr: &cfg.BytesLiteral{
			Type:  types.String{},
			Value: msg,
		}})
	}
	b.graph.Add(b.vt, &cfg.AssertFailure{})

	b.graph.SetBasicBlock(next)
}

// shortInputBlock handles inputs too short to carry a selector: the
// call dispatcher falls back, everything else rejects.
func (b *builder) shortInputBlock() int {
	block := b.graph.NewBasicBlock("short_input")
	entry := b.graph.CurrentBlock()
	b.graph.SetBasicBlock(block)
	if b.filter == deployKind {
		b.graph.Add(b.vt, &cfg.ReturnCodeInstr{Code: cfg.CodeFunctionSelectorInvalid})
	} else {
		b.fallbackOrReceive()
	}
	b.graph.SetBasicBlock(entry)
	return block
}

// noMatchBlock handles selectors that match no function.
func (b *builder) noMatchBlock() int {
	block := b.graph.NewBasicBlock("no_match")
	entry := b.graph.CurrentBlock()
	b.graph.SetBasicBlock(block)
	if b.filter == deployKind {
		b.graph.Add(b.vt, &cfg.ReturnCodeInstr{Code: cfg.CodeFunctionSelectorInvalid})
	} else {
		b.fallbackOrReceive()
	}
	b.graph.SetBasicBlock(entry)
	return block
}

// fallbackOrReceive routes unmatched calls: value transfers go to the
// receive function, plain calls to the fallback. A contract without
// the relevant handler rejects the call.
func (b *builder) fallbackOrReceive() {
	fallback := b.find(sema.KindFallback)
	receive := b.find(sema.KindReceive)

	fbBlock := b.graph.NewBasicBlock("fallback")
	recvBlock := b.graph.NewBasicBlock("receive")
	b.graph.Add(b.vt, &cfg.BranchCond{
		Cond: &cfg.Binary{
			Op:    cfg.OpMore,
			Left:  b.arg(argValue),
			Right: cfg.Number(types.Value{}, big.NewInt(0)),
		},
		TrueBlock:  recvBlock,
		FalseBlock: fbBlock,
	})

	b.graph.SetBasicBlock(fbBlock)
	if fallback != nil {
		b.graph.Add(b.vt, &cfg.Call{Kind: cfg.CallStatic, CFGNo: fallback.FunctionNo})
		b.returnEmpty()
	} else {
		b.graph.Add(b.vt, &cfg.ReturnCodeInstr{Code: cfg.CodeFunctionSelectorInvalid})
	}

	b.graph.SetBasicBlock(recvBlock)
	if receive != nil {
		b.graph.Add(b.vt, &cfg.Call{Kind: cfg.CallStatic, CFGNo: receive.FunctionNo})
		b.returnEmpty()
	} else {
		b.graph.Add(b.vt, &cfg.ReturnCodeInstr{Code: cfg.CodeFunctionSelectorInvalid})
	}
}

// returnEmpty hands the host a zero-length buffer.
func (b *builder) returnEmpty() {
	buf := b.vt.Temp("ret_buf", types.DynamicBytes{})
	b.graph.Add(b.vt, &cfg.Set{Res: buf, Expr: &cfg.AllocDynamicBytes{
		Type: types.DynamicBytes{},
		Size: cfg.Uint32(0),
	}})
	b.graph.Add(b.vt, &cfg.ReturnData{
		Data:    &cfg.Variable{Type: types.DynamicBytes{}, VarNo: buf},
		DataLen: cfg.Uint32(0),
	})
}

func (b *builder) find(kind sema.FunctionKind) *cfg.ControlFlowGraph {
	for _, graph := range b.cfgs {
		if graph.Kind == kind {
			return graph
		}
	}
	return nil
}

func (b *builder) arg(no int) cfg.Expression {
	return &cfg.FunctionArg{Type: b.graph.ParamType(no), ArgNo: no}
}

// selectorLiteral turns selector bytes into the constant the switch
// compares against, honoring the byte order ReadFromBuffer uses on
// this target.
func (b *builder) selectorLiteral(ty types.Type, selector []byte) cfg.Expression {
	buf := make([]byte, len(selector))
	copy(buf, selector)
	if b.ns.Target.Encoding != sema.EncodingWord {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	return &cfg.NumberLiteral{Type: ty, Value: new(big.Int).SetBytes(buf)}
}
