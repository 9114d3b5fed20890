package sema

import (
	"fmt"

	"aster/internal/types"
)

// Encoding selects the ABI wire format a target uses. The encoding is
// fixed per target and never mixed within one compiled contract.
type Encoding int

const (
	// EncodingWord is the word-aligned big-endian head/tail scheme.
	EncodingWord Encoding = iota
	// EncodingScale is the compact little-endian scheme with 1/2/4
	// byte compact length prefixes.
	EncodingScale
	// EncodingBorsh is the little-endian scheme with plain u32 length
	// prefixes.
	EncodingBorsh
)

func (e Encoding) String() string {
	switch e {
	case EncodingWord:
		return "word"
	case EncodingScale:
		return "scale"
	case EncodingBorsh:
		return "borsh"
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// SelectorHash selects how a function signature is reduced to its
// dispatch selector.
type SelectorHash int

const (
	SelectorKeccak SelectorHash = iota
	SelectorBlake2
	// SelectorSha256 hashes the bare function name in a fixed
	// namespace rather than the full signature.
	SelectorSha256
)

// DispatchScheme selects how many entry-point CFGs a contract exports.
type DispatchScheme int

const (
	// DispatchSplit exports separate deploy and call entry points;
	// constructors are only reachable from deploy.
	DispatchSplit DispatchScheme = iota
	// DispatchCombined exports a single entry point covering both
	// groups.
	DispatchCombined
)

// Target describes one execution environment: its word and address
// widths, wire format, selector derivation, and dispatch grouping.
type Target struct {
	Name     string
	Layout   types.Layout
	Encoding Encoding
	Hash     SelectorHash
	Dispatch DispatchScheme
}

// ValueType is the integer type wide enough to hold a transferred
// value amount on this target.
func (t Target) ValueType() types.Type {
	return types.Uint{Bits: uint16(t.Layout.ValueLength * 8)}
}

// SelectorType is the unsigned integer type the dispatcher switches on.
func (t Target) SelectorType() types.Type {
	return types.Uint{Bits: uint16(t.Layout.SelectorLength * 8)}
}

var targets = map[string]Target{
	"word": {
		Name:     "word",
		Layout:   types.Layout{AddressLength: 20, ValueLength: 16, SelectorLength: 4},
		Encoding: EncodingWord,
		Hash:     SelectorKeccak,
		Dispatch: DispatchSplit,
	},
	"scale": {
		Name:     "scale",
		Layout:   types.Layout{AddressLength: 32, ValueLength: 16, SelectorLength: 4},
		Encoding: EncodingScale,
		Hash:     SelectorBlake2,
		Dispatch: DispatchSplit,
	},
	"borsh": {
		Name:     "borsh",
		Layout:   types.Layout{AddressLength: 32, ValueLength: 8, SelectorLength: 8},
		Encoding: EncodingBorsh,
		Hash:     SelectorSha256,
		Dispatch: DispatchCombined,
	},
}

// LookupTarget resolves a target by name.
func LookupTarget(name string) (Target, bool) {
	t, ok := targets[name]
	return t, ok
}

// TargetNames lists the supported targets in a fixed order.
func TargetNames() []string {
	return []string{"word", "scale", "borsh"}
}
