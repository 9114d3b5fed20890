package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aster/internal/manifest"
	"aster/internal/sema"
	"aster/internal/types"
)

func TestLoadResolvesFunctions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.toml")
	content := `
[contract]
name = "Token"
target = "word"

[[functions]]
signature = "transfer(address, uint256)"
returns = ["bool"]

[[functions]]
signature = "init(uint256)"
kind = "constructor"

[[functions]]
signature = "fallback()"
kind = "fallback"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ns, err := manifest.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Token", ns.Contract)
	assert.Equal(t, "word", ns.Target.Name)
	require.Len(t, ns.Functions, 3)

	transfer := ns.Functions[0]
	assert.Equal(t, "transfer", transfer.Name)
	assert.Equal(t, sema.KindFunction, transfer.Kind)
	assert.True(t, transfer.Public)
	assert.Equal(t, "transfer(address,uint256)", transfer.Signature)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, transfer.Selector)
	require.Len(t, transfer.Params, 2)
	assert.Equal(t, "arg0", transfer.Params[0].Name)
	assert.Equal(t, types.Address{}, transfer.Params[0].Ty)
	require.Len(t, transfer.Returns, 1)
	assert.Equal(t, "ret0", transfer.Returns[0].Name)
	assert.Equal(t, types.Bool{}, transfer.Returns[0].Ty)

	init := ns.Functions[1]
	assert.Equal(t, sema.KindConstructor, init.Kind)
	assert.Len(t, init.Selector, 4)

	fallback := ns.Functions[2]
	assert.Equal(t, sema.KindFallback, fallback.Kind)
	assert.Nil(t, fallback.Selector)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := manifest.Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestResolveRejectsMissingName(t *testing.T) {
	_, err := manifest.Resolve(&manifest.File{
		Contract: manifest.Contract{Target: "word"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E1001")
}

func TestResolveRejectsUnknownTarget(t *testing.T) {
	_, err := manifest.Resolve(&manifest.File{
		Contract: manifest.Contract{Name: "Token", Target: "evm2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E1001")
	assert.Contains(t, err.Error(), "evm2")
}

func TestResolveRejectsUnknownKind(t *testing.T) {
	_, err := manifest.Resolve(&manifest.File{
		Contract:  manifest.Contract{Name: "Token", Target: "word"},
		Functions: []manifest.Function{{Signature: "f()", Kind: "modifier"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modifier")
}

func TestResolveRejectsBadSignature(t *testing.T) {
	_, err := manifest.Resolve(&manifest.File{
		Contract:  manifest.Contract{Name: "Token", Target: "word"},
		Functions: []manifest.Function{{Signature: "f(uint7)"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E1002")
}

func TestResolvePrivateFunction(t *testing.T) {
	ns, err := manifest.Resolve(&manifest.File{
		Contract:  manifest.Contract{Name: "Token", Target: "word"},
		Functions: []manifest.Function{{Signature: "helper(uint64)", Private: true}},
	})
	require.NoError(t, err)
	assert.False(t, ns.Functions[0].Public)
}

func TestResolveSelectorOverride(t *testing.T) {
	ns, err := manifest.Resolve(&manifest.File{
		Contract: manifest.Contract{Name: "Token", Target: "word"},
		Functions: []manifest.Function{
			{Signature: "f()", Selector: "deadbeef"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, ns.Functions[0].Selector)
}

func TestResolveSelectorOverrideWrongLength(t *testing.T) {
	_, err := manifest.Resolve(&manifest.File{
		Contract: manifest.Contract{Name: "Token", Target: "word"},
		Functions: []manifest.Function{
			{Signature: "f()", Selector: "deadbeefcafe"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 bytes")
}

func TestResolveSelectorOverrideNotHex(t *testing.T) {
	_, err := manifest.Resolve(&manifest.File{
		Contract: manifest.Contract{Name: "Token", Target: "word"},
		Functions: []manifest.Function{
			{Signature: "f()", Selector: "xyz"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not hex")
}

func TestParamTypes(t *testing.T) {
	ns, err := manifest.Resolve(&manifest.File{
		Contract:  manifest.Contract{Name: "Token", Target: "scale"},
		Functions: []manifest.Function{{Signature: "f(uint64, bool)"}},
	})
	require.NoError(t, err)

	tys := manifest.ParamTypes(ns.Functions[0])
	assert.Equal(t, []types.Type{types.Uint{Bits: 64}, types.Bool{}}, tys)
}
