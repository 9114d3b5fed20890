// Package manifest loads the contract description the backend tools
// operate on: contract name, target, and the function surface with
// signatures, payability and visibility.
package manifest

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/sig"
	"aster/internal/types"
)

// File is the on-disk layout.
type File struct {
	Contract  Contract   `toml:"contract"`
	Functions []Function `toml:"functions"`
}

type Contract struct {
	Name   string `toml:"name"`
	Target string `toml:"target"`
}

type Function struct {
	Signature string   `toml:"signature"`
	Kind      string   `toml:"kind"`
	Payable   bool     `toml:"payable"`
	Private   bool     `toml:"private"`
	Returns   []string `toml:"returns"`
	// Selector overrides the derived selector, in hex.
	Selector string `toml:"selector"`
}

// Load reads a manifest and resolves it into a namespace with one
// declaration per function, selectors included.
func Load(path string) (*sema.Namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errors.New(errors.ErrorBadManifest, "", err.Error())
	}
	return Resolve(&file)
}

// Resolve turns a parsed manifest into a namespace.
func Resolve(file *File) (*sema.Namespace, error) {
	if file.Contract.Name == "" {
		return nil, errors.New(errors.ErrorBadManifest, "", "contract name is missing")
	}
	target, ok := sema.LookupTarget(file.Contract.Target)
	if !ok {
		return nil, errors.New(errors.ErrorBadManifest, "",
			fmt.Sprintf("unknown target %q, expected one of %v", file.Contract.Target, sema.TargetNames()))
	}

	ns := sema.NewNamespace(file.Contract.Name, target)
	for _, fn := range file.Functions {
		decl, err := resolveFunction(target, fn)
		if err != nil {
			return nil, err
		}
		ns.Functions = append(ns.Functions, decl)
	}
	return ns, nil
}

func resolveFunction(target sema.Target, fn Function) (*sema.FunctionDecl, error) {
	parsed, err := sig.Parse(fn.Signature)
	if err != nil {
		return nil, err
	}

	decl := &sema.FunctionDecl{
		Name:      parsed.Name,
		Kind:      sema.KindFunction,
		Payable:   fn.Payable,
		Public:    !fn.Private,
		Signature: parsed.Canonical,
	}
	switch fn.Kind {
	case "", "function":
	case "constructor":
		decl.Kind = sema.KindConstructor
	case "fallback":
		decl.Kind = sema.KindFallback
	case "receive":
		decl.Kind = sema.KindReceive
	default:
		return nil, errors.New(errors.ErrorBadManifest, parsed.Name,
			fmt.Sprintf("unknown function kind %q", fn.Kind))
	}

	for i, ty := range parsed.Params {
		decl.Params = append(decl.Params, sema.Parameter{
			Name: fmt.Sprintf("arg%d", i),
			Ty:   ty,
		})
	}
	for i, retTy := range fn.Returns {
		ty, err := sig.ParseType(retTy)
		if err != nil {
			return nil, err
		}
		decl.Returns = append(decl.Returns, sema.Parameter{
			Name: fmt.Sprintf("ret%d", i),
			Ty:   ty,
		})
	}

	// Fallback and receive are reached without a selector.
	if decl.Kind == sema.KindFunction || decl.Kind == sema.KindConstructor {
		decl.Selector, err = selectorFor(target, parsed, fn.Selector)
		if err != nil {
			return nil, err
		}
	}
	return decl, nil
}

func selectorFor(target sema.Target, parsed *sig.Signature, override string) ([]byte, error) {
	if override == "" {
		return sig.Selector(target, parsed), nil
	}
	selector, err := hex.DecodeString(override)
	if err != nil {
		return nil, errors.New(errors.ErrorBadManifest, parsed.Name,
			fmt.Sprintf("selector override %q is not hex", override))
	}
	if len(selector) != target.Layout.SelectorLength {
		return nil, errors.New(errors.ErrorBadManifest, parsed.Name,
			fmt.Sprintf("selector override must be %d bytes on this target, got %d",
				target.Layout.SelectorLength, len(selector)))
	}
	return selector, nil
}

// ParamTypes lists a declaration's parameter types.
func ParamTypes(decl *sema.FunctionDecl) []types.Type {
	tys := make([]types.Type, len(decl.Params))
	for i, p := range decl.Params {
		tys[i] = p.Ty
	}
	return tys
}
