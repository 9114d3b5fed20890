package cfg

import (
	"math/big"

	"aster/internal/types"
)

// Expression is a typed value tree. Expressions are pure: anything
// with a side effect is an instruction. Every expression declares its
// result type; arithmetic never implicitly widens or narrows, the
// explicit cast/extend/truncate nodes do that.
type Expression interface {
	Ty() types.Type
	isExpression()
}

// BinOp enumerates binary operators. Comparisons yield bool, the rest
// yield the operand type.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpLess
	OpLessEqual
	OpMore
	OpMoreEqual
	OpEqual
	OpNotEqual
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpPow:
		return "**"
	case OpBitAnd:
		return "&"
	case OpBitOr:
		return "|"
	case OpBitXor:
		return "^"
	case OpShiftLeft:
		return "<<"
	case OpShiftRight:
		return ">>"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpMore:
		return ">"
	case OpMoreEqual:
		return ">="
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	}
	return "?"
}

// IsCompare reports whether the operator yields a boolean.
func (op BinOp) IsCompare() bool {
	return op >= OpLess
}

// NumberLiteral is an integer constant of any value type.
type NumberLiteral struct {
	Type  types.Type
	Value *big.Int
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	Value bool
}

// BytesLiteral is a byte string constant; Type distinguishes strings,
// fixed byte arrays and dynamic byte vectors.
type BytesLiteral struct {
	Type  types.Type
	Value []byte
}

// Variable reads a variable-table slot.
type Variable struct {
	Type  types.Type
	VarNo int
}

// FunctionArg reads one of the enclosing CFG's parameters.
type FunctionArg struct {
	Type  types.Type
	ArgNo int
}

// Binary applies op to two operands of identical width. Overflowing
// marks arithmetic that wraps rather than traps.
type Binary struct {
	Type        types.Type
	Op          BinOp
	Signed      bool
	Overflowing bool
	Left        Expression
	Right       Expression
}

// Not is logical negation of a bool.
type Not struct {
	Expr Expression
}

// Complement is bitwise negation.
type Complement struct {
	Type types.Type
	Expr Expression
}

// Negate is arithmetic negation of a signed integer.
type Negate struct {
	Type types.Type
	Expr Expression
}

// Cast reinterprets a value as another type of the same width.
type Cast struct {
	Type types.Type
	Expr Expression
}

// ZeroExt widens an unsigned integer.
type ZeroExt struct {
	Type types.Type
	Expr Expression
}

// SignExt widens a signed integer.
type SignExt struct {
	Type types.Type
	Expr Expression
}

// Trunc narrows an integer.
type Trunc struct {
	Type types.Type
	Expr Expression
}

// AllocDynamicBytes allocates a fresh byte vector of Size bytes,
// optionally filled from Initializer.
type AllocDynamicBytes struct {
	Type        types.Type
	Size        Expression
	Initializer []byte
}

// AdvancePointer offsets a buffer pointer by a byte count.
type AdvancePointer struct {
	Pointer     Expression
	BytesOffset Expression
}

// Load dereferences a memory pointer.
type Load struct {
	Type types.Type
	Expr Expression
}

// StructMember addresses field Member of a struct value.
type StructMember struct {
	Type   types.Type
	Expr   Expression
	Member int
}

// Subscript indexes an array, slice or byte vector.
type Subscript struct {
	Type  types.Type // element reference type
	Array Expression
	Index Expression
}

// BuiltinKind enumerates the intrinsic operations the emitter realizes
// directly.
type BuiltinKind int

const (
	// BuiltinReadFromBuffer reads a scalar of the result type from a
	// buffer pointer at a byte offset, using the target's endianness.
	BuiltinReadFromBuffer BuiltinKind = iota
	// BuiltinArrayLength reads the element count of a dynamic array.
	BuiltinArrayLength
	// BuiltinExternalFunctionSelector projects the selector out of an
	// external function reference.
	BuiltinExternalFunctionSelector
	// BuiltinExternalFunctionAddress projects the address out of an
	// external function reference.
	BuiltinExternalFunctionAddress
)

func (k BuiltinKind) String() string {
	switch k {
	case BuiltinReadFromBuffer:
		return "read_from_buffer"
	case BuiltinArrayLength:
		return "array_length"
	case BuiltinExternalFunctionSelector:
		return "external_function_selector"
	case BuiltinExternalFunctionAddress:
		return "external_function_address"
	}
	return "builtin?"
}

// Builtin invokes an intrinsic.
type Builtin struct {
	Type types.Type
	Kind BuiltinKind
	Args []Expression
}

// StructLiteral builds a struct value field by field.
type StructLiteral struct {
	Type   types.Type
	Values []Expression
}

// ArrayLiteral builds a fixed array value element by element.
type ArrayLiteral struct {
	Type   types.Type
	Values []Expression
}

func (e *NumberLiteral) Ty() types.Type { return e.Type }
func (e *BoolLiteral) Ty() types.Type   { return types.Bool{} }
func (e *BytesLiteral) Ty() types.Type  { return e.Type }
func (e *Variable) Ty() types.Type      { return e.Type }
func (e *FunctionArg) Ty() types.Type   { return e.Type }
func (e *Binary) Ty() types.Type {
	if e.Op.IsCompare() {
		return types.Bool{}
	}
	return e.Type
}
func (e *Not) Ty() types.Type               { return types.Bool{} }
func (e *Complement) Ty() types.Type        { return e.Type }
func (e *Negate) Ty() types.Type            { return e.Type }
func (e *Cast) Ty() types.Type              { return e.Type }
func (e *ZeroExt) Ty() types.Type           { return e.Type }
func (e *SignExt) Ty() types.Type           { return e.Type }
func (e *Trunc) Ty() types.Type             { return e.Type }
func (e *AllocDynamicBytes) Ty() types.Type { return e.Type }
func (e *AdvancePointer) Ty() types.Type    { return types.BufferPointer{} }
func (e *Load) Ty() types.Type              { return e.Type }
func (e *StructMember) Ty() types.Type      { return e.Type }
func (e *Subscript) Ty() types.Type         { return e.Type }
func (e *Builtin) Ty() types.Type           { return e.Type }
func (e *StructLiteral) Ty() types.Type     { return e.Type }
func (e *ArrayLiteral) Ty() types.Type      { return e.Type }

func (*NumberLiteral) isExpression()     {}
func (*BoolLiteral) isExpression()       {}
func (*BytesLiteral) isExpression()      {}
func (*Variable) isExpression()          {}
func (*FunctionArg) isExpression()       {}
func (*Binary) isExpression()            {}
func (*Not) isExpression()               {}
func (*Complement) isExpression()        {}
func (*Negate) isExpression()            {}
func (*Cast) isExpression()              {}
func (*ZeroExt) isExpression()           {}
func (*SignExt) isExpression()           {}
func (*Trunc) isExpression()             {}
func (*AllocDynamicBytes) isExpression() {}
func (*AdvancePointer) isExpression()    {}
func (*Load) isExpression()              {}
func (*StructMember) isExpression()      {}
func (*Subscript) isExpression()         {}
func (*Builtin) isExpression()           {}
func (*StructLiteral) isExpression()     {}
func (*ArrayLiteral) isExpression()      {}

// Walk visits expr and its operands depth-first, stopping a subtree
// early when fn returns false for its root.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *Binary:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *Not:
		Walk(e.Expr, fn)
	case *Complement:
		Walk(e.Expr, fn)
	case *Negate:
		Walk(e.Expr, fn)
	case *Cast:
		Walk(e.Expr, fn)
	case *ZeroExt:
		Walk(e.Expr, fn)
	case *SignExt:
		Walk(e.Expr, fn)
	case *Trunc:
		Walk(e.Expr, fn)
	case *AllocDynamicBytes:
		Walk(e.Size, fn)
	case *AdvancePointer:
		Walk(e.Pointer, fn)
		Walk(e.BytesOffset, fn)
	case *Load:
		Walk(e.Expr, fn)
	case *StructMember:
		Walk(e.Expr, fn)
	case *Subscript:
		Walk(e.Array, fn)
		Walk(e.Index, fn)
	case *Builtin:
		for _, arg := range e.Args {
			Walk(arg, fn)
		}
	case *StructLiteral:
		for _, v := range e.Values {
			Walk(v, fn)
		}
	case *ArrayLiteral:
		for _, v := range e.Values {
			Walk(v, fn)
		}
	}
}

// UsedVars collects every variable id read by expr.
func UsedVars(expr Expression, into map[int]struct{}) {
	Walk(expr, func(e Expression) bool {
		if v, ok := e.(*Variable); ok {
			into[v.VarNo] = struct{}{}
		}
		return true
	})
}

// Uint32 builds a 32-bit unsigned literal; offsets and lengths use it
// throughout the codec and dispatcher.
func Uint32(v int64) *NumberLiteral {
	return &NumberLiteral{Type: types.Uint{Bits: 32}, Value: big.NewInt(v)}
}

// Number builds an integer literal of the given type.
func Number(ty types.Type, v *big.Int) *NumberLiteral {
	return &NumberLiteral{Type: ty, Value: v}
}

// AddU32 sums two uint32 expressions without overflow trapping; both
// operands are offset/length math that the bounds checks already cover.
func AddU32(left, right Expression) Expression {
	return &Binary{Type: types.Uint{Bits: 32}, Op: OpAdd, Left: left, Right: right}
}

// SubU32 subtracts two uint32 expressions.
func SubU32(left, right Expression) Expression {
	return &Binary{Type: types.Uint{Bits: 32}, Op: OpSub, Left: left, Right: right}
}

// MulU32 multiplies two uint32 expressions.
func MulU32(left, right Expression) Expression {
	return &Binary{Type: types.Uint{Bits: 32}, Op: OpMul, Left: left, Right: right}
}
