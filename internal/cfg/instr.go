package cfg

import "aster/internal/types"

// Instr is one step of a basic block. Control transfer is expressed by
// the terminator instructions; a well-formed block carries exactly one
// terminator and it is the last instruction.
type Instr interface {
	// Terminator reports whether the instruction ends a block.
	Terminator() bool
	isInstr()
}

// ReturnCode is the status a CFG hands back to the host environment.
type ReturnCode int

const (
	CodeSuccess ReturnCode = iota
	CodeFunctionSelectorInvalid
	CodeAbiEncodingInvalid
	CodeInvalidDataError
	CodeAccountDataTooSmall
	CodeInvalidProgramID
)

func (c ReturnCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeFunctionSelectorInvalid:
		return "function selector invalid"
	case CodeAbiEncodingInvalid:
		return "abi encoding invalid"
	case CodeInvalidDataError:
		return "invalid data error"
	case CodeAccountDataTooSmall:
		return "account data too small"
	case CodeInvalidProgramID:
		return "invalid program id"
	}
	return "code?"
}

// CallKind distinguishes how a call resolves its callee.
type CallKind int

const (
	// CallStatic targets a CFG in the same contract by number.
	CallStatic CallKind = iota
	// CallDynamic targets a function pointer computed at runtime.
	CallDynamic
	// CallVirtual targets a function by name, resolved at link time.
	CallVirtual
)

// Set assigns an expression result to a variable slot.
type Set struct {
	Res  int
	Expr Expression
}

// Store writes Data through the memory pointer Dest.
type Store struct {
	Dest Expression
	Data Expression
}

// LoadStorage reads a value from contract storage into Res.
type LoadStorage struct {
	Res     int
	Type    types.Type
	Storage Expression
}

// SetStorage writes Value into contract storage at the slot Storage.
type SetStorage struct {
	Type    types.Type
	Value   Expression
	Storage Expression
}

// ClearStorage zeroes the storage occupied by a value of Type.
type ClearStorage struct {
	Type    types.Type
	Storage Expression
}

// SetStorageBytes writes a single byte into a storage byte array.
type SetStorageBytes struct {
	Value   Expression
	Storage Expression
	Offset  Expression
}

// PushStorage appends to a storage array; Value nil pushes a zero
// element. Res receives the pushed element's storage reference.
type PushStorage struct {
	Res     int
	Type    types.Type
	Value   Expression
	Storage Expression
}

// PopStorage removes the last element of a storage array. Res is -1
// when the popped value is discarded.
type PopStorage struct {
	Res     int
	Type    types.Type
	Storage Expression
}

// PushMemory appends Value to the memory array held in variable Array
// and stores the new length in Res.
type PushMemory struct {
	Res   int
	Type  types.Type
	Array int
	Value Expression
}

// PopMemory removes the last element of the memory array held in
// variable Array into Res.
type PopMemory struct {
	Res   int
	Type  types.Type
	Array int
}

// MemCopy copies Bytes bytes from Source to Destination.
type MemCopy struct {
	Source      Expression
	Destination Expression
	Bytes       Expression
}

// WriteBuffer writes Value into Buf at byte Offset using the target's
// endianness.
type WriteBuffer struct {
	Buf    Expression
	Offset Expression
	Value  Expression
}

// Call invokes another function in the same contract. Res names one
// variable per return value.
type Call struct {
	Res    []int
	Kind   CallKind
	CFGNo  int        // CallStatic
	Expr   Expression // CallDynamic
	Name   string     // CallVirtual
	Args   []Expression
}

// ExternalCall invokes a function on another contract. Success, when
// not -1, receives whether the callee completed; otherwise failure
// traps. Payload is an encoded argument buffer.
type ExternalCall struct {
	Success   int
	Address   Expression
	Payload   Expression
	Value     Expression
	Gas       Expression
	CallTy    ExternalCallTy
}

// ExternalCallTy distinguishes regular calls from delegate and static
// variants.
type ExternalCallTy int

const (
	ExternalRegular ExternalCallTy = iota
	ExternalDelegate
	ExternalStatic
)

func (t ExternalCallTy) String() string {
	switch t {
	case ExternalDelegate:
		return "delegate"
	case ExternalStatic:
		return "static"
	}
	return "regular"
}

// ValueTransfer sends Value to Address without calling code. Success,
// when not -1, receives the outcome.
type ValueTransfer struct {
	Success int
	Address Expression
	Value   Expression
}

// SelfDestruct removes the contract, sending its balance to Recipient.
type SelfDestruct struct {
	Recipient Expression
}

// EmitEvent writes an encoded event with its indexed topics to the log.
type EmitEvent struct {
	EventNo int
	Data    Expression
	Topics  []Expression
}

// Print writes a diagnostic message to the host's debug log.
type Print struct {
	Expr Expression
}

// Branch transfers control unconditionally.
type Branch struct {
	Block int
}

// BranchCond transfers control on a boolean condition.
type BranchCond struct {
	Cond       Expression
	TrueBlock  int
	FalseBlock int
}

// SwitchCase pairs a constant with its target block.
type SwitchCase struct {
	Value Expression
	Block int
}

// Switch compares Cond against each case constant in order and jumps
// to the first match, or to Default.
type Switch struct {
	Cond    Expression
	Cases   []SwitchCase
	Default int
}

// Return leaves the function with plain values; only internal calls
// use it.
type Return struct {
	Values []Expression
}

// ReturnData leaves the entry point handing an encoded buffer back to
// the host.
type ReturnData struct {
	Data    Expression
	DataLen Expression
}

// ReturnCodeInstr leaves the entry point with a bare status code.
type ReturnCodeInstr struct {
	Code ReturnCode
}

// AssertFailure aborts execution; Data, when non-nil, is an encoded
// error message for the host.
type AssertFailure struct {
	Data Expression
}

// Unimplemented marks lowering gaps. Reachable distinguishes paths the
// front end proved dead from genuine holes.
type Unimplemented struct {
	Reachable bool
}

// Nop does nothing; optimization passes leave it behind.
type Nop struct{}

// PhiEdge names the variable flowing in from one predecessor block.
type PhiEdge struct {
	Block int
	VarNo int
}

// Phi merges per-predecessor definitions into Res. It only appears in
// lowered form, at the head of a block.
type Phi struct {
	Res   int
	Type  types.Type
	Edges []PhiEdge
}

func (*Set) Terminator() bool             { return false }
func (*Store) Terminator() bool           { return false }
func (*LoadStorage) Terminator() bool     { return false }
func (*SetStorage) Terminator() bool      { return false }
func (*ClearStorage) Terminator() bool    { return false }
func (*SetStorageBytes) Terminator() bool { return false }
func (*PushStorage) Terminator() bool     { return false }
func (*PopStorage) Terminator() bool      { return false }
func (*PushMemory) Terminator() bool      { return false }
func (*PopMemory) Terminator() bool       { return false }
func (*MemCopy) Terminator() bool         { return false }
func (*WriteBuffer) Terminator() bool     { return false }
func (*Call) Terminator() bool            { return false }
func (*ExternalCall) Terminator() bool    { return false }
func (*ValueTransfer) Terminator() bool   { return false }
func (*SelfDestruct) Terminator() bool    { return true }
func (*EmitEvent) Terminator() bool       { return false }
func (*Print) Terminator() bool           { return false }
func (*Branch) Terminator() bool          { return true }
func (*BranchCond) Terminator() bool      { return true }
func (*Switch) Terminator() bool          { return true }
func (*Return) Terminator() bool          { return true }
func (*ReturnData) Terminator() bool      { return true }
func (*ReturnCodeInstr) Terminator() bool { return true }
func (*AssertFailure) Terminator() bool   { return true }
func (*Unimplemented) Terminator() bool   { return true }
func (*Nop) Terminator() bool             { return false }
func (*Phi) Terminator() bool             { return false }

func (*Set) isInstr()             {}
func (*Store) isInstr()           {}
func (*LoadStorage) isInstr()     {}
func (*SetStorage) isInstr()      {}
func (*ClearStorage) isInstr()    {}
func (*SetStorageBytes) isInstr() {}
func (*PushStorage) isInstr()     {}
func (*PopStorage) isInstr()      {}
func (*PushMemory) isInstr()      {}
func (*PopMemory) isInstr()       {}
func (*MemCopy) isInstr()         {}
func (*WriteBuffer) isInstr()     {}
func (*Call) isInstr()            {}
func (*ExternalCall) isInstr()    {}
func (*ValueTransfer) isInstr()   {}
func (*SelfDestruct) isInstr()    {}
func (*EmitEvent) isInstr()       {}
func (*Print) isInstr()           {}
func (*Branch) isInstr()          {}
func (*BranchCond) isInstr()      {}
func (*Switch) isInstr()          {}
func (*Return) isInstr()          {}
func (*ReturnData) isInstr()      {}
func (*ReturnCodeInstr) isInstr() {}
func (*AssertFailure) isInstr()   {}
func (*Unimplemented) isInstr()   {}
func (*Nop) isInstr()             {}
func (*Phi) isInstr()             {}

// Defs lists the variable slots an instruction writes.
func Defs(instr Instr) []int {
	switch in := instr.(type) {
	case *Set:
		return []int{in.Res}
	case *LoadStorage:
		return []int{in.Res}
	case *PushStorage:
		if in.Res >= 0 {
			return []int{in.Res}
		}
	case *PopStorage:
		if in.Res >= 0 {
			return []int{in.Res}
		}
	case *PushMemory:
		return []int{in.Res}
	case *PopMemory:
		return []int{in.Res}
	case *Call:
		return in.Res
	case *ExternalCall:
		if in.Success >= 0 {
			return []int{in.Success}
		}
	case *ValueTransfer:
		if in.Success >= 0 {
			return []int{in.Success}
		}
	case *Phi:
		return []int{in.Res}
	}
	return nil
}

// VarReads lists variable slots an instruction reads directly,
// outside of any expression operand.
func VarReads(instr Instr) []int {
	switch in := instr.(type) {
	case *PushMemory:
		return []int{in.Array}
	case *PopMemory:
		return []int{in.Array}
	}
	return nil
}

// Operands lists the expression trees an instruction reads.
func Operands(instr Instr) []Expression {
	switch in := instr.(type) {
	case *Set:
		return []Expression{in.Expr}
	case *Store:
		return []Expression{in.Dest, in.Data}
	case *LoadStorage:
		return []Expression{in.Storage}
	case *SetStorage:
		return []Expression{in.Value, in.Storage}
	case *ClearStorage:
		return []Expression{in.Storage}
	case *SetStorageBytes:
		return []Expression{in.Value, in.Storage, in.Offset}
	case *PushStorage:
		if in.Value != nil {
			return []Expression{in.Value, in.Storage}
		}
		return []Expression{in.Storage}
	case *PopStorage:
		return []Expression{in.Storage}
	case *PushMemory:
		return []Expression{in.Value}
	case *MemCopy:
		return []Expression{in.Source, in.Destination, in.Bytes}
	case *WriteBuffer:
		return []Expression{in.Buf, in.Offset, in.Value}
	case *Call:
		ops := make([]Expression, 0, len(in.Args)+1)
		if in.Expr != nil {
			ops = append(ops, in.Expr)
		}
		return append(ops, in.Args...)
	case *ExternalCall:
		ops := []Expression{in.Address, in.Payload}
		if in.Value != nil {
			ops = append(ops, in.Value)
		}
		if in.Gas != nil {
			ops = append(ops, in.Gas)
		}
		return ops
	case *ValueTransfer:
		return []Expression{in.Address, in.Value}
	case *SelfDestruct:
		return []Expression{in.Recipient}
	case *EmitEvent:
		return append([]Expression{in.Data}, in.Topics...)
	case *Print:
		return []Expression{in.Expr}
	case *BranchCond:
		return []Expression{in.Cond}
	case *Switch:
		ops := []Expression{in.Cond}
		for _, c := range in.Cases {
			ops = append(ops, c.Value)
		}
		return ops
	case *Return:
		return in.Values
	case *ReturnData:
		return []Expression{in.Data, in.DataLen}
	case *AssertFailure:
		if in.Data != nil {
			return []Expression{in.Data}
		}
	}
	return nil
}

// Successors lists the blocks an instruction can transfer control to.
// Non-terminators and aborting terminators have none.
func Successors(instr Instr) []int {
	switch in := instr.(type) {
	case *Branch:
		return []int{in.Block}
	case *BranchCond:
		return []int{in.TrueBlock, in.FalseBlock}
	case *Switch:
		succ := make([]int, 0, len(in.Cases)+1)
		for _, c := range in.Cases {
			succ = append(succ, c.Block)
		}
		return append(succ, in.Default)
	}
	return nil
}
