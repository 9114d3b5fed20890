package ssa

import "aster/internal/cfg"

// renameExpr rebuilds an expression tree with every variable read
// replaced by its current SSA version. Reads of variables with no
// version are reported through missing and left in place.
func renameExpr(expr cfg.Expression, versions map[int]int, missing func(varNo int)) cfg.Expression {
	switch e := expr.(type) {
	case *cfg.Variable:
		version, ok := versions[e.VarNo]
		if !ok {
			missing(e.VarNo)
			return e
		}
		return &cfg.Variable{Type: e.Type, VarNo: version}
	case *cfg.Binary:
		c := *e
		c.Left = renameExpr(e.Left, versions, missing)
		c.Right = renameExpr(e.Right, versions, missing)
		return &c
	case *cfg.Not:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.Complement:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.Negate:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.Cast:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.ZeroExt:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.SignExt:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.Trunc:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.AllocDynamicBytes:
		c := *e
		c.Size = renameExpr(e.Size, versions, missing)
		return &c
	case *cfg.AdvancePointer:
		c := *e
		c.Pointer = renameExpr(e.Pointer, versions, missing)
		c.BytesOffset = renameExpr(e.BytesOffset, versions, missing)
		return &c
	case *cfg.Load:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.StructMember:
		c := *e
		c.Expr = renameExpr(e.Expr, versions, missing)
		return &c
	case *cfg.Subscript:
		c := *e
		c.Array = renameExpr(e.Array, versions, missing)
		c.Index = renameExpr(e.Index, versions, missing)
		return &c
	case *cfg.Builtin:
		c := *e
		c.Args = renameExprs(e.Args, versions, missing)
		return &c
	case *cfg.StructLiteral:
		c := *e
		c.Values = renameExprs(e.Values, versions, missing)
		return &c
	case *cfg.ArrayLiteral:
		c := *e
		c.Values = renameExprs(e.Values, versions, missing)
		return &c
	default:
		// Literals and function arguments carry no variable reads.
		return expr
	}
}

func renameExprs(exprs []cfg.Expression, versions map[int]int, missing func(varNo int)) []cfg.Expression {
	out := make([]cfg.Expression, len(exprs))
	for i, e := range exprs {
		out[i] = renameExpr(e, versions, missing)
	}
	return out
}

// reVar maps a bare variable-id read to its current version.
func reVar(varNo int, versions map[int]int, missing func(varNo int)) int {
	version, ok := versions[varNo]
	if !ok {
		missing(varNo)
		return varNo
	}
	return version
}

// renameInstr rebuilds an instruction with reads renamed through
// versions and writes renamed through fresh, which mints a new version
// for a definition.
func renameInstr(instr cfg.Instr, versions map[int]int, fresh func(varNo int) int, missing func(varNo int)) cfg.Instr {
	re := func(e cfg.Expression) cfg.Expression { return renameExpr(e, versions, missing) }

	switch in := instr.(type) {
	case *cfg.Set:
		c := *in
		c.Expr = re(in.Expr)
		c.Res = fresh(in.Res)
		return &c
	case *cfg.Store:
		c := *in
		c.Dest = re(in.Dest)
		c.Data = re(in.Data)
		return &c
	case *cfg.LoadStorage:
		c := *in
		c.Storage = re(in.Storage)
		c.Res = fresh(in.Res)
		return &c
	case *cfg.SetStorage:
		c := *in
		c.Value = re(in.Value)
		c.Storage = re(in.Storage)
		return &c
	case *cfg.ClearStorage:
		c := *in
		c.Storage = re(in.Storage)
		return &c
	case *cfg.SetStorageBytes:
		c := *in
		c.Value = re(in.Value)
		c.Storage = re(in.Storage)
		c.Offset = re(in.Offset)
		return &c
	case *cfg.PushStorage:
		c := *in
		if in.Value != nil {
			c.Value = re(in.Value)
		}
		c.Storage = re(in.Storage)
		if in.Res >= 0 {
			c.Res = fresh(in.Res)
		}
		return &c
	case *cfg.PopStorage:
		c := *in
		c.Storage = re(in.Storage)
		if in.Res >= 0 {
			c.Res = fresh(in.Res)
		}
		return &c
	case *cfg.PushMemory:
		c := *in
		c.Value = re(in.Value)
		c.Array = reVar(in.Array, versions, missing)
		c.Res = fresh(in.Res)
		return &c
	case *cfg.PopMemory:
		c := *in
		c.Array = reVar(in.Array, versions, missing)
		c.Res = fresh(in.Res)
		return &c
	case *cfg.MemCopy:
		c := *in
		c.Source = re(in.Source)
		c.Destination = re(in.Destination)
		c.Bytes = re(in.Bytes)
		return &c
	case *cfg.WriteBuffer:
		c := *in
		c.Buf = re(in.Buf)
		c.Offset = re(in.Offset)
		c.Value = re(in.Value)
		return &c
	case *cfg.Call:
		c := *in
		if in.Expr != nil {
			c.Expr = re(in.Expr)
		}
		c.Args = renameExprs(in.Args, versions, missing)
		c.Res = make([]int, len(in.Res))
		for i, res := range in.Res {
			c.Res[i] = fresh(res)
		}
		return &c
	case *cfg.ExternalCall:
		c := *in
		c.Address = re(in.Address)
		c.Payload = re(in.Payload)
		if in.Value != nil {
			c.Value = re(in.Value)
		}
		if in.Gas != nil {
			c.Gas = re(in.Gas)
		}
		if in.Success >= 0 {
			c.Success = fresh(in.Success)
		}
		return &c
	case *cfg.ValueTransfer:
		c := *in
		c.Address = re(in.Address)
		c.Value = re(in.Value)
		if in.Success >= 0 {
			c.Success = fresh(in.Success)
		}
		return &c
	case *cfg.SelfDestruct:
		c := *in
		c.Recipient = re(in.Recipient)
		return &c
	case *cfg.EmitEvent:
		c := *in
		c.Data = re(in.Data)
		c.Topics = renameExprs(in.Topics, versions, missing)
		return &c
	case *cfg.Print:
		c := *in
		c.Expr = re(in.Expr)
		return &c
	case *cfg.BranchCond:
		c := *in
		c.Cond = re(in.Cond)
		return &c
	case *cfg.Switch:
		c := *in
		c.Cond = re(in.Cond)
		c.Cases = make([]cfg.SwitchCase, len(in.Cases))
		for i, sc := range in.Cases {
			c.Cases[i] = cfg.SwitchCase{Value: re(sc.Value), Block: sc.Block}
		}
		return &c
	case *cfg.Return:
		c := *in
		c.Values = renameExprs(in.Values, versions, missing)
		return &c
	case *cfg.ReturnData:
		c := *in
		c.Data = re(in.Data)
		c.DataLen = re(in.DataLen)
		return &c
	case *cfg.AssertFailure:
		c := *in
		if in.Data != nil {
			c.Data = re(in.Data)
		}
		return &c
	default:
		// Branch, ReturnCodeInstr, Unimplemented, Nop carry nothing
		// to rename.
		return instr
	}
}
