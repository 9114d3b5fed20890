package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Type is the closed set of value types the backend understands.
// Every value-carrying IR node declares its Type; arithmetic never
// implicitly widens or narrows.
type Type interface {
	String() string
	isType()
}

// Layout carries the target-dependent widths that type sizing needs.
type Layout struct {
	AddressLength  int // bytes
	ValueLength    int // bytes
	SelectorLength int // bytes
}

type Bool struct{}

// Uint is an unsigned integer parameterized by bit width.
type Uint struct {
	Bits uint16
}

// Int is a signed integer parameterized by bit width.
type Int struct {
	Bits uint16
}

// Bytes is a fixed-width byte array (bytes1..bytes32).
type Bytes struct {
	Length uint8
}

// DynamicBytes is a dynamically sized byte vector.
type DynamicBytes struct{}

// String is a dynamically sized UTF-8 byte vector.
type String struct{}

// Address is the target's account identifier.
type Address struct{}

// Value is the target's balance/endowment amount type.
type Value struct{}

// FunctionSelector is the fixed-width dispatch selector type.
type FunctionSelector struct{}

// Field is a named struct member.
type Field struct {
	Name string
	Ty   Type
}

// StructDecl is the definition a Struct type points at. Encoding and
// sizing recurse over Fields in declaration order.
type StructDecl struct {
	Name   string
	Fields []Field
}

type Struct struct {
	Decl *StructDecl
}

// ArrayLength is one array dimension: fixed or dynamic.
type ArrayLength interface {
	isLength()
}

type FixedLength struct {
	N *big.Int
}

type DynamicLength struct{}

func (FixedLength) isLength()   {}
func (DynamicLength) isLength() {}

// Array is a possibly multidimensional array. Dims are ordered from
// the innermost dimension to the outermost, matching subscript order.
type Array struct {
	Elem Type
	Dims []ArrayLength
}

// Slice is a view over contiguous elements; encoded like a dynamic array.
type Slice struct {
	Elem Type
}

// Mapping lives in contract storage only and is never ABI-encodable.
type Mapping struct {
	Key   Type
	Value Type
}

// ExternalFunction is a cross-contract function reference: a selector
// plus the address it lives at.
type ExternalFunction struct {
	Params  []Type
	Returns []Type
}

// Ref is a plain memory pointer to To.
type Ref struct {
	To Type
}

// StorageRef is a pointer into contract storage (a slot expression).
type StorageRef struct {
	To Type
}

// BufferPointer is an untyped pointer into a raw call-data region.
type BufferPointer struct{}

// Void marks instructions that produce no value.
type Void struct{}

func (Bool) isType()             {}
func (Uint) isType()             {}
func (Int) isType()              {}
func (Bytes) isType()            {}
func (DynamicBytes) isType()     {}
func (String) isType()           {}
func (Address) isType()          {}
func (Value) isType()            {}
func (FunctionSelector) isType() {}
func (Struct) isType()           {}
func (Array) isType()            {}
func (Slice) isType()            {}
func (Mapping) isType()          {}
func (ExternalFunction) isType() {}
func (Ref) isType()              {}
func (StorageRef) isType()       {}
func (BufferPointer) isType()    {}
func (Void) isType()             {}

func (Bool) String() string             { return "bool" }
func (t Uint) String() string           { return fmt.Sprintf("uint%d", t.Bits) }
func (t Int) String() string            { return fmt.Sprintf("int%d", t.Bits) }
func (t Bytes) String() string          { return fmt.Sprintf("bytes%d", t.Length) }
func (DynamicBytes) String() string     { return "bytes" }
func (String) String() string           { return "string" }
func (Address) String() string          { return "address" }
func (Value) String() string            { return "value" }
func (FunctionSelector) String() string { return "selector" }

func (t Struct) String() string {
	if t.Decl == nil {
		return "struct <nil>"
	}
	return "struct " + t.Decl.Name
}

func (t Array) String() string {
	var dims strings.Builder
	for _, d := range t.Dims {
		switch l := d.(type) {
		case FixedLength:
			fmt.Fprintf(&dims, "[%v]", l.N)
		case DynamicLength:
			dims.WriteString("[]")
		}
	}
	return t.Elem.String() + dims.String()
}

func (t Slice) String() string   { return t.Elem.String() + "[:]" }
func (t Mapping) String() string { return fmt.Sprintf("mapping(%s => %s)", t.Key, t.Value) }

func (t ExternalFunction) String() string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = p.String()
	}
	s := "function(" + strings.Join(params, ",") + ") external"
	if len(t.Returns) > 0 {
		rets := make([]string, len(t.Returns))
		for i, r := range t.Returns {
			rets[i] = r.String()
		}
		s += " returns (" + strings.Join(rets, ",") + ")"
	}
	return s
}

func (t Ref) String() string        { return "ref " + t.To.String() }
func (t StorageRef) String() string { return "storage ref " + t.To.String() }
func (BufferPointer) String() string {
	return "buffer_ptr"
}
func (Void) String() string { return "void" }

// IsDynamic reports whether the encoded size of a value of this type
// depends on the value itself.
func IsDynamic(ty Type) bool {
	switch t := ty.(type) {
	case DynamicBytes, String, Slice:
		return true
	case Array:
		for _, d := range t.Dims {
			if _, ok := d.(DynamicLength); ok {
				return true
			}
		}
		return IsDynamic(t.Elem)
	case Struct:
		for _, f := range t.Decl.Fields {
			if IsDynamic(f.Ty) {
				return true
			}
		}
		return false
	case Ref:
		return IsDynamic(t.To)
	case StorageRef:
		return IsDynamic(t.To)
	default:
		return false
	}
}

// IsPrimitive reports whether a type is a fixed-width scalar that can
// be block-copied without per-element handling.
func IsPrimitive(ty Type) bool {
	switch ty.(type) {
	case Bool, Uint, Int, Bytes, Address, Value, FunctionSelector:
		return true
	default:
		return false
	}
}

// Deref strips one level of Ref/StorageRef.
func Deref(ty Type) Type {
	switch t := ty.(type) {
	case Ref:
		return t.To
	case StorageRef:
		return t.To
	default:
		return ty
	}
}

// MemorySize returns the in-memory byte size of a value of this type
// if it is statically known, or nil for dynamically-sized types.
func MemorySize(ty Type, lay Layout) *big.Int {
	switch t := ty.(type) {
	case Bool:
		return big.NewInt(1)
	case Uint:
		return big.NewInt(int64(t.Bits) / 8)
	case Int:
		return big.NewInt(int64(t.Bits) / 8)
	case Bytes:
		return big.NewInt(int64(t.Length))
	case Address:
		return big.NewInt(int64(lay.AddressLength))
	case Value:
		return big.NewInt(int64(lay.ValueLength))
	case FunctionSelector:
		return big.NewInt(int64(lay.SelectorLength))
	case ExternalFunction:
		return big.NewInt(int64(lay.SelectorLength + lay.AddressLength))
	case Struct:
		total := new(big.Int)
		for _, f := range t.Decl.Fields {
			fs := MemorySize(f.Ty, lay)
			if fs == nil {
				return nil
			}
			total.Add(total, fs)
		}
		return total
	case Array:
		elems := big.NewInt(1)
		for _, d := range t.Dims {
			fixed, ok := d.(FixedLength)
			if !ok {
				return nil
			}
			elems.Mul(elems, fixed.N)
		}
		es := MemorySize(t.Elem, lay)
		if es == nil {
			return nil
		}
		return elems.Mul(elems, es)
	case Ref:
		return MemorySize(t.To, lay)
	case StorageRef:
		return MemorySize(t.To, lay)
	default:
		return nil
	}
}

// Bits returns the width of an integer-like type, or 0.
func Bits(ty Type) uint16 {
	switch t := ty.(type) {
	case Uint:
		return t.Bits
	case Int:
		return t.Bits
	default:
		return 0
	}
}

// IsSigned reports whether ty is a signed integer.
func IsSigned(ty Type) bool {
	_, ok := ty.(Int)
	return ok
}
