package abi

import (
	"aster/internal/cfg"
	"aster/internal/types"
)

// borshPrefix frames every length as a fixed little-endian u32.
type borshPrefix struct{}

func (borshPrefix) write(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, length cfg.Expression) cfg.Expression {
	graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: length})
	return cfg.Uint32(4)
}

func (borshPrefix) read(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, validator *BufferValidator) (cfg.Expression, cfg.Expression) {
	validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(4))
	lengthVar := vt.Temp("len", types.Uint{Bits: 32})
	graph.Add(vt, &cfg.Set{Res: lengthVar, Expr: &cfg.Builtin{
		Type: types.Uint{Bits: 32},
		Kind: cfg.BuiltinReadFromBuffer,
		Args: []cfg.Expression{buffer, offset},
	}})
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: lengthVar}, cfg.Uint32(4)
}

func (borshPrefix) sizeOf(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, length cfg.Expression) cfg.Expression {
	return cfg.Uint32(4)
}
