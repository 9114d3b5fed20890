package abi

import (
	"math/big"

	"aster/internal/cfg"
	"aster/internal/types"
)

// scalePrefix frames lengths as compact integers: the low two bits of
// the first byte select the width, the remaining bits carry the value.
// Mode 0 is one byte, mode 1 two bytes, mode 2 four bytes; lengths are
// capped at 2^30-1 so mode 3 never appears and is rejected on decode.
type scalePrefix struct{}

const (
	compactOneByteMax = 1 << 6
	compactTwoByteMax = 1 << 14
)

func (scalePrefix) write(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset, length cfg.Expression) cfg.Expression {
	sizeVar := vt.Temp("prefix_size", types.Uint{Bits: 32})

	small := graph.NewBasicBlock("small")
	mediumCheck := graph.NewBasicBlock("medium_check")
	medium := graph.NewBasicBlock("medium")
	large := graph.NewBasicBlock("large")
	done := graph.NewBasicBlock("done")

	vt.NewDirtyTracker()

	graph.Add(vt, &cfg.BranchCond{
		Cond:       &cfg.Binary{Op: cfg.OpLess, Left: length, Right: cfg.Uint32(compactOneByteMax)},
		TrueBlock:  small,
		FalseBlock: mediumCheck,
	})

	shifted := &cfg.Binary{
		Type:  types.Uint{Bits: 32},
		Op:    cfg.OpShiftLeft,
		Left:  length,
		Right: cfg.Uint32(2),
	}

	graph.SetBasicBlock(small)
	graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: &cfg.Trunc{
		Type: types.Uint{Bits: 8},
		Expr: shifted,
	}})
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(1)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(mediumCheck)
	graph.Add(vt, &cfg.BranchCond{
		Cond:       &cfg.Binary{Op: cfg.OpLess, Left: length, Right: cfg.Uint32(compactTwoByteMax)},
		TrueBlock:  medium,
		FalseBlock: large,
	})

	graph.SetBasicBlock(medium)
	graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: &cfg.Trunc{
		Type: types.Uint{Bits: 16},
		Expr: &cfg.Binary{Type: types.Uint{Bits: 32}, Op: cfg.OpBitOr, Left: shifted, Right: cfg.Uint32(1)},
	}})
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(2)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(large)
	graph.Add(vt, &cfg.WriteBuffer{Buf: buffer, Offset: offset, Value: &cfg.Binary{
		Type:  types.Uint{Bits: 32},
		Op:    cfg.OpBitOr,
		Left:  shifted,
		Right: cfg.Uint32(2),
	}})
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(4)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetPhis(done, vt.PopDirtyTracker())
	graph.SetBasicBlock(done)
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: sizeVar}
}

func (scalePrefix) read(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, buffer, offset cfg.Expression, validator *BufferValidator) (cfg.Expression, cfg.Expression) {
	validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(1))

	tagVar := vt.Temp("compact_tag", types.Uint{Bits: 8})
	graph.Add(vt, &cfg.Set{Res: tagVar, Expr: &cfg.Builtin{
		Type: types.Uint{Bits: 8},
		Kind: cfg.BuiltinReadFromBuffer,
		Args: []cfg.Expression{buffer, offset},
	}})
	tag := &cfg.Variable{Type: types.Uint{Bits: 8}, VarNo: tagVar}

	lengthVar := vt.Temp("len", types.Uint{Bits: 32})
	sizeVar := vt.Temp("prefix_size", types.Uint{Bits: 32})

	oneByte := graph.NewBasicBlock("one_byte")
	twoByte := graph.NewBasicBlock("two_byte")
	fourByte := graph.NewBasicBlock("four_byte")
	invalid := graph.NewBasicBlock("invalid_compact")
	done := graph.NewBasicBlock("done")

	vt.NewDirtyTracker()

	mode := &cfg.Binary{
		Type:  types.Uint{Bits: 8},
		Op:    cfg.OpBitAnd,
		Left:  tag,
		Right: &cfg.NumberLiteral{Type: types.Uint{Bits: 8}, Value: big.NewInt(3)},
	}
	graph.Add(vt, &cfg.Switch{
		Cond: mode,
		Cases: []cfg.SwitchCase{
			{Value: &cfg.NumberLiteral{Type: types.Uint{Bits: 8}, Value: big.NewInt(0)}, Block: oneByte},
			{Value: &cfg.NumberLiteral{Type: types.Uint{Bits: 8}, Value: big.NewInt(1)}, Block: twoByte},
			{Value: &cfg.NumberLiteral{Type: types.Uint{Bits: 8}, Value: big.NewInt(2)}, Block: fourByte},
		},
		Default: invalid,
	})

	graph.SetBasicBlock(oneByte)
	graph.Add(vt, &cfg.Set{Res: lengthVar, Expr: &cfg.ZeroExt{
		Type: types.Uint{Bits: 32},
		Expr: &cfg.Binary{
			Type:  types.Uint{Bits: 8},
			Op:    cfg.OpShiftRight,
			Left:  tag,
			Right: &cfg.NumberLiteral{Type: types.Uint{Bits: 8}, Value: big.NewInt(2)},
		},
	}})
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(1)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(twoByte)
	validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(2))
	graph.Add(vt, &cfg.Set{Res: lengthVar, Expr: &cfg.Binary{
		Type: types.Uint{Bits: 32},
		Op:   cfg.OpShiftRight,
		Left: &cfg.ZeroExt{
			Type: types.Uint{Bits: 32},
			Expr: &cfg.Builtin{
				Type: types.Uint{Bits: 16},
				Kind: cfg.BuiltinReadFromBuffer,
				Args: []cfg.Expression{buffer, offset},
			},
		},
		Right: cfg.Uint32(2),
	}})
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(2)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(fourByte)
	validator.ValidateOffsetPlusSize(vt, graph, offset, cfg.Uint32(4))
	graph.Add(vt, &cfg.Set{Res: lengthVar, Expr: &cfg.Binary{
		Type: types.Uint{Bits: 32},
		Op:   cfg.OpShiftRight,
		Left: &cfg.Builtin{
			Type: types.Uint{Bits: 32},
			Kind: cfg.BuiltinReadFromBuffer,
			Args: []cfg.Expression{buffer, offset},
		},
		Right: cfg.Uint32(2),
	}})
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(4)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(invalid)
	graph.Add(vt, &cfg.AssertFailure{})

	graph.SetPhis(done, vt.PopDirtyTracker())
	graph.SetBasicBlock(done)
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: lengthVar},
		&cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: sizeVar}
}

func (scalePrefix) sizeOf(vt *cfg.Vartable, graph *cfg.ControlFlowGraph, length cfg.Expression) cfg.Expression {
	sizeVar := vt.Temp("prefix_size", types.Uint{Bits: 32})

	small := graph.NewBasicBlock("small")
	mediumCheck := graph.NewBasicBlock("medium_check")
	medium := graph.NewBasicBlock("medium")
	large := graph.NewBasicBlock("large")
	done := graph.NewBasicBlock("done")

	vt.NewDirtyTracker()

	graph.Add(vt, &cfg.BranchCond{
		Cond:       &cfg.Binary{Op: cfg.OpLess, Left: length, Right: cfg.Uint32(compactOneByteMax)},
		TrueBlock:  small,
		FalseBlock: mediumCheck,
	})

	graph.SetBasicBlock(small)
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(1)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(mediumCheck)
	graph.Add(vt, &cfg.BranchCond{
		Cond:       &cfg.Binary{Op: cfg.OpLess, Left: length, Right: cfg.Uint32(compactTwoByteMax)},
		TrueBlock:  medium,
		FalseBlock: large,
	})

	graph.SetBasicBlock(medium)
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(2)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetBasicBlock(large)
	graph.Add(vt, &cfg.Set{Res: sizeVar, Expr: cfg.Uint32(4)})
	graph.Add(vt, &cfg.Branch{Block: done})

	graph.SetPhis(done, vt.PopDirtyTracker())
	graph.SetBasicBlock(done)
	return &cfg.Variable{Type: types.Uint{Bits: 32}, VarNo: sizeVar}
}
