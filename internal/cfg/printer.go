package cfg

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ToString renders the graph in its canonical text form. Output is
// byte-for-byte deterministic for a given graph: variables print in
// ascending id order and instructions render their operands in a
// fixed order, so the text can back golden tests and diffs.
func (graph *ControlFlowGraph) ToString() string {
	var b strings.Builder

	if graph.Public {
		b.WriteString("public ")
	}
	b.WriteString(graph.Kind.String())
	b.WriteString(" ")
	b.WriteString(graph.Name)
	b.WriteString(" (")
	for i, p := range graph.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Ty.String())
		if p.Name != "" {
			b.WriteString(" ")
			b.WriteString(p.Name)
		}
	}
	b.WriteString(")")
	if len(graph.Returns) > 0 {
		b.WriteString(" returns (")
		for i, r := range graph.Returns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.Ty.String())
		}
		b.WriteString(")")
	}
	if len(graph.Selector) > 0 {
		fmt.Fprintf(&b, " selector=%s", hex.EncodeToString(graph.Selector))
	}
	b.WriteString("\n")

	if len(graph.Vars) > 0 {
		ids := make([]int, 0, len(graph.Vars))
		for id := range graph.Vars {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		b.WriteString("vars:\n")
		for _, id := range ids {
			decl := graph.Vars[id]
			fmt.Fprintf(&b, "    %%%d: %s %s %s\n", id, decl.Class, decl.Type, decl.Name)
		}
	}

	for no, block := range graph.Blocks {
		fmt.Fprintf(&b, "block%d: # %s\n", no, block.Name)
		if len(block.PhiCandidates) > 0 {
			b.WriteString("    # phis: ")
			for i, id := range block.PhiCandidates {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%%%d", id)
			}
			b.WriteString("\n")
		}
		for _, instr := range block.Instr {
			b.WriteString("    ")
			b.WriteString(InstrString(instr))
			b.WriteString("\n")
		}
	}

	return b.String()
}

// ExprString renders an expression operand in canonical form.
func ExprString(expr Expression) string {
	switch e := expr.(type) {
	case *NumberLiteral:
		return fmt.Sprintf("%s %s", e.Type, e.Value)
	case *BoolLiteral:
		return fmt.Sprintf("bool %t", e.Value)
	case *BytesLiteral:
		return fmt.Sprintf("%s hex\"%s\"", e.Type, hex.EncodeToString(e.Value))
	case *Variable:
		return fmt.Sprintf("%%%d", e.VarNo)
	case *FunctionArg:
		return fmt.Sprintf("(arg #%d)", e.ArgNo)
	case *Binary:
		op := e.Op.String()
		if e.Overflowing {
			op = "(of)" + op
		}
		if e.Signed && e.Op.IsCompare() {
			op = op + "(s)"
		}
		return fmt.Sprintf("(%s %s %s)", ExprString(e.Left), op, ExprString(e.Right))
	case *Not:
		return fmt.Sprintf("!%s", ExprString(e.Expr))
	case *Complement:
		return fmt.Sprintf("~%s", ExprString(e.Expr))
	case *Negate:
		return fmt.Sprintf("-%s", ExprString(e.Expr))
	case *Cast:
		return fmt.Sprintf("(cast %s to %s)", ExprString(e.Expr), e.Type)
	case *ZeroExt:
		return fmt.Sprintf("(zext %s to %s)", ExprString(e.Expr), e.Type)
	case *SignExt:
		return fmt.Sprintf("(sext %s to %s)", ExprString(e.Expr), e.Type)
	case *Trunc:
		return fmt.Sprintf("(trunc %s to %s)", ExprString(e.Expr), e.Type)
	case *AllocDynamicBytes:
		if len(e.Initializer) > 0 {
			return fmt.Sprintf("(alloc %s len %s init hex\"%s\")",
				e.Type, ExprString(e.Size), hex.EncodeToString(e.Initializer))
		}
		return fmt.Sprintf("(alloc %s len %s)", e.Type, ExprString(e.Size))
	case *AdvancePointer:
		return fmt.Sprintf("(advance ptr %s by %s)", ExprString(e.Pointer), ExprString(e.BytesOffset))
	case *Load:
		return fmt.Sprintf("(load %s %s)", e.Type, ExprString(e.Expr))
	case *StructMember:
		return fmt.Sprintf("(member %d of %s)", e.Member, ExprString(e.Expr))
	case *Subscript:
		return fmt.Sprintf("(subscript %s[%s])", ExprString(e.Array), ExprString(e.Index))
	case *Builtin:
		args := make([]string, len(e.Args))
		for i, arg := range e.Args {
			args[i] = ExprString(arg)
		}
		return fmt.Sprintf("(builtin %s (%s))", e.Kind, strings.Join(args, ", "))
	case *StructLiteral:
		vals := make([]string, len(e.Values))
		for i, v := range e.Values {
			vals[i] = ExprString(v)
		}
		return fmt.Sprintf("struct %s { %s }", e.Type, strings.Join(vals, ", "))
	case *ArrayLiteral:
		vals := make([]string, len(e.Values))
		for i, v := range e.Values {
			vals[i] = ExprString(v)
		}
		return fmt.Sprintf("%s [%s]", e.Type, strings.Join(vals, ", "))
	}
	return "expr?"
}

// InstrString renders an instruction in canonical form.
func InstrString(instr Instr) string {
	switch in := instr.(type) {
	case *Set:
		return fmt.Sprintf("%%%d = %s", in.Res, ExprString(in.Expr))
	case *Store:
		return fmt.Sprintf("store %s to %s", ExprString(in.Data), ExprString(in.Dest))
	case *LoadStorage:
		return fmt.Sprintf("%%%d = load storage slot(%s) ty:%s", in.Res, ExprString(in.Storage), in.Type)
	case *SetStorage:
		return fmt.Sprintf("store storage slot(%s) ty:%s = %s", ExprString(in.Storage), in.Type, ExprString(in.Value))
	case *ClearStorage:
		return fmt.Sprintf("clear storage slot(%s) ty:%s", ExprString(in.Storage), in.Type)
	case *SetStorageBytes:
		return fmt.Sprintf("set storage slot(%s) offset:%s = %s",
			ExprString(in.Storage), ExprString(in.Offset), ExprString(in.Value))
	case *PushStorage:
		val := "empty"
		if in.Value != nil {
			val = ExprString(in.Value)
		}
		if in.Res >= 0 {
			return fmt.Sprintf("%%%d = push storage ty:%s slot:%s = %s", in.Res, in.Type, ExprString(in.Storage), val)
		}
		return fmt.Sprintf("push storage ty:%s slot:%s = %s", in.Type, ExprString(in.Storage), val)
	case *PopStorage:
		if in.Res >= 0 {
			return fmt.Sprintf("%%%d = pop storage ty:%s slot(%s)", in.Res, in.Type, ExprString(in.Storage))
		}
		return fmt.Sprintf("pop storage ty:%s slot(%s)", in.Type, ExprString(in.Storage))
	case *PushMemory:
		return fmt.Sprintf("%%%d = push array %%%d value:%s", in.Res, in.Array, ExprString(in.Value))
	case *PopMemory:
		return fmt.Sprintf("%%%d = pop array %%%d", in.Res, in.Array)
	case *MemCopy:
		return fmt.Sprintf("memcpy src:%s dest:%s bytes:%s",
			ExprString(in.Source), ExprString(in.Destination), ExprString(in.Bytes))
	case *WriteBuffer:
		return fmt.Sprintf("writebuffer buffer:%s offset:%s value:%s",
			ExprString(in.Buf), ExprString(in.Offset), ExprString(in.Value))
	case *Call:
		var b strings.Builder
		if len(in.Res) > 0 {
			for i, res := range in.Res {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%%%d", res)
			}
			b.WriteString(" = ")
		}
		switch in.Kind {
		case CallStatic:
			fmt.Fprintf(&b, "call function#%d", in.CFGNo)
		case CallDynamic:
			fmt.Fprintf(&b, "call %s", ExprString(in.Expr))
		case CallVirtual:
			fmt.Fprintf(&b, "call virtual %s", in.Name)
		}
		for _, arg := range in.Args {
			b.WriteString(" ")
			b.WriteString(ExprString(arg))
		}
		return b.String()
	case *ExternalCall:
		var b strings.Builder
		if in.Success >= 0 {
			fmt.Fprintf(&b, "%%%d = ", in.Success)
		}
		fmt.Fprintf(&b, "external call %s address:%s payload:%s",
			in.CallTy, ExprString(in.Address), ExprString(in.Payload))
		if in.Value != nil {
			fmt.Fprintf(&b, " value:%s", ExprString(in.Value))
		}
		if in.Gas != nil {
			fmt.Fprintf(&b, " gas:%s", ExprString(in.Gas))
		}
		return b.String()
	case *ValueTransfer:
		if in.Success >= 0 {
			return fmt.Sprintf("%%%d = value transfer address:%s value:%s",
				in.Success, ExprString(in.Address), ExprString(in.Value))
		}
		return fmt.Sprintf("value transfer address:%s value:%s",
			ExprString(in.Address), ExprString(in.Value))
	case *SelfDestruct:
		return fmt.Sprintf("selfdestruct %s", ExprString(in.Recipient))
	case *EmitEvent:
		var b strings.Builder
		fmt.Fprintf(&b, "emit event#%d data:%s topics:[", in.EventNo, ExprString(in.Data))
		for i, topic := range in.Topics {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ExprString(topic))
		}
		b.WriteString("]")
		return b.String()
	case *Print:
		return fmt.Sprintf("print %s", ExprString(in.Expr))
	case *Branch:
		return fmt.Sprintf("branch block#%d", in.Block)
	case *BranchCond:
		return fmt.Sprintf("branchcond %s, block#%d, block#%d",
			ExprString(in.Cond), in.TrueBlock, in.FalseBlock)
	case *Switch:
		var b strings.Builder
		fmt.Fprintf(&b, "switch %s:", ExprString(in.Cond))
		for _, c := range in.Cases {
			fmt.Fprintf(&b, " case %s: block#%d,", ExprString(c.Value), c.Block)
		}
		fmt.Fprintf(&b, " default: block#%d", in.Default)
		return b.String()
	case *Return:
		if len(in.Values) == 0 {
			return "return"
		}
		vals := make([]string, len(in.Values))
		for i, v := range in.Values {
			vals[i] = ExprString(v)
		}
		return "return " + strings.Join(vals, ", ")
	case *ReturnData:
		return fmt.Sprintf("return data %s len %s", ExprString(in.Data), ExprString(in.DataLen))
	case *ReturnCodeInstr:
		return fmt.Sprintf("return code %q", in.Code)
	case *AssertFailure:
		if in.Data != nil {
			return fmt.Sprintf("assert failure data:%s", ExprString(in.Data))
		}
		return "assert failure"
	case *Unimplemented:
		return fmt.Sprintf("unimplemented reachable:%t", in.Reachable)
	case *Nop:
		return "nop"
	case *Phi:
		var b strings.Builder
		fmt.Fprintf(&b, "%%%d = phi", in.Res)
		for i, edge := range in.Edges {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " [block#%d, %%%d]", edge.Block, edge.VarNo)
		}
		return b.String()
	}
	return "instr?"
}
