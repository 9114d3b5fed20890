// Package sig parses external function signatures and derives their
// dispatch selectors. A signature is the canonical `name(type,...)`
// string; the selector is a prefix of the target's hash of it.
package sig

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/types"
)

var sigLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "Integer", Pattern: `[0-9]+`},
		{Name: "Punctuation", Pattern: `[(),\[\]]`},
		{Name: "Whitespace", Pattern: `[ \t]+`},
	},
})

type signatureAST struct {
	Name   string    `parser:"@Ident"`
	Params []typeAST `parser:"\"(\" ( @@ ( \",\" @@ )* )? \")\""`
}

type typeAST struct {
	Base string   `parser:"@Ident"`
	Dims []dimAST `parser:"@@*"`
}

type dimAST struct {
	Size string `parser:"\"[\" @Integer? \"]\""`
}

var sigParser = participle.MustBuild[signatureAST](
	participle.Lexer(sigLexer),
	participle.Elide("Whitespace"),
)

var typeParser = participle.MustBuild[typeAST](
	participle.Lexer(sigLexer),
	participle.Elide("Whitespace"),
)

// Signature is a parsed external signature.
type Signature struct {
	Name      string
	Params    []types.Type
	Canonical string
}

// Parse reads a `name(type,...)` signature string.
func Parse(input string) (*Signature, error) {
	ast, err := sigParser.ParseString("", input)
	if err != nil {
		return nil, errors.New(errors.ErrorBadSignature, "", err.Error())
	}

	sig := &Signature{Name: ast.Name}
	canonical := make([]string, 0, len(ast.Params))
	for _, param := range ast.Params {
		ty, err := resolveType(param)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, ty)
		canonical = append(canonical, canonicalName(ty))
	}
	sig.Canonical = fmt.Sprintf("%s(%s)", ast.Name, strings.Join(canonical, ","))
	return sig, nil
}

// ParseType reads a single type as it is spelled inside a signature.
func ParseType(input string) (types.Type, error) {
	ast, err := typeParser.ParseString("", input)
	if err != nil {
		return nil, errors.New(errors.ErrorBadSignature, "", err.Error())
	}
	return resolveType(*ast)
}

// Selector derives the dispatch selector for a parsed signature on a
// target.
func Selector(target sema.Target, s *Signature) []byte {
	switch target.Hash {
	case sema.SelectorBlake2:
		sum := blake2b.Sum256([]byte(s.Canonical))
		return sum[:target.Layout.SelectorLength]
	case sema.SelectorSha256:
		// Discriminator style: the hash covers the bare name in a
		// fixed namespace, not the full signature.
		sum := sha256.Sum256([]byte("global:" + s.Name))
		return sum[:target.Layout.SelectorLength]
	default:
		h := sha3.NewLegacyKeccak256()
		h.Write([]byte(s.Canonical))
		return h.Sum(nil)[:target.Layout.SelectorLength]
	}
}

func resolveType(ast typeAST) (types.Type, error) {
	base, err := resolveBase(ast.Base)
	if err != nil {
		return nil, err
	}
	// Suffixes apply outside-in: uint8[2][] is a vector of pairs.
	ty := base
	for _, dim := range ast.Dims {
		if dim.Size == "" {
			ty = types.Array{Elem: ty, Dims: []types.ArrayLength{types.DynamicLength{}}}
			continue
		}
		n, err := strconv.ParseInt(dim.Size, 10, 32)
		if err != nil || n <= 0 {
			return nil, errors.New(errors.ErrorBadSignature, "",
				fmt.Sprintf("invalid array dimension %q", dim.Size))
		}
		ty = types.Array{Elem: ty, Dims: []types.ArrayLength{types.FixedLength{N: big.NewInt(n)}}}
	}
	return ty, nil
}

func resolveBase(name string) (types.Type, error) {
	switch name {
	case "bool":
		return types.Bool{}, nil
	case "address":
		return types.Address{}, nil
	case "string":
		return types.String{}, nil
	case "bytes":
		return types.DynamicBytes{}, nil
	case "uint":
		return types.Uint{Bits: 256}, nil
	case "int":
		return types.Int{Bits: 256}, nil
	}
	if bits, ok := intWidth(name, "uint"); ok {
		return types.Uint{Bits: bits}, nil
	}
	if bits, ok := intWidth(name, "int"); ok {
		return types.Int{Bits: bits}, nil
	}
	if rest, ok := strings.CutPrefix(name, "bytes"); ok {
		n, err := strconv.ParseUint(rest, 10, 8)
		if err == nil && n >= 1 && n <= 32 {
			return types.Bytes{Length: uint8(n)}, nil
		}
	}
	return nil, errors.New(errors.ErrorBadSignature, "",
		fmt.Sprintf("unknown type %q in signature", name))
}

func intWidth(name, prefix string) (uint16, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	bits, err := strconv.ParseUint(rest, 10, 16)
	if err != nil || bits == 0 || bits > 256 || bits%8 != 0 {
		return 0, false
	}
	return uint16(bits), true
}

// canonicalName renders a type the way signatures spell it.
func canonicalName(ty types.Type) string {
	switch t := ty.(type) {
	case types.Array:
		suffix := ""
		for _, dim := range t.Dims {
			if fixed, ok := dim.(types.FixedLength); ok {
				suffix += fmt.Sprintf("[%s]", fixed.N)
			} else {
				suffix += "[]"
			}
		}
		return canonicalName(t.Elem) + suffix
	default:
		return ty.String()
	}
}
