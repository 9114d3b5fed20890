package codegen_test

import (
	"strings"
	"testing"

	"aster/internal/codegen"
	"aster/internal/errors"
	"aster/internal/sema"
	"aster/internal/types"
)

func namespace(t *testing.T, targetName string, decls ...*sema.FunctionDecl) *sema.Namespace {
	t.Helper()
	target, ok := sema.LookupTarget(targetName)
	if !ok {
		t.Fatalf("target %s must exist", targetName)
	}
	ns := sema.NewNamespace("Test", target)
	ns.Functions = decls
	return ns
}

func decl(name string, kind sema.FunctionKind, selector []byte) *sema.FunctionDecl {
	return &sema.FunctionDecl{
		Name:     name,
		Kind:     kind,
		Public:   true,
		Selector: selector,
	}
}

func hasCode(ns *sema.Namespace, code string) bool {
	for _, d := range ns.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestContractOrdersFunctionsBeforeDispatchers(t *testing.T) {
	ns := namespace(t, "word",
		decl("init", sema.KindConstructor, []byte{1, 2, 3, 4}),
		decl("get", sema.KindFunction, []byte{5, 6, 7, 8}),
	)

	graphs := codegen.Contract(ns)
	if ns.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", ns.Diagnostics)
	}
	if len(graphs) != 4 {
		t.Fatalf("expected 2 functions + 2 dispatchers, got %d graphs", len(graphs))
	}
	for no, name := range []string{"init", "get", "deploy_dispatch", "call_dispatch"} {
		if graphs[no].Name != name {
			t.Errorf("graph %d is %s, want %s", no, graphs[no].Name, name)
		}
	}
	if graphs[1].FunctionNo != 1 {
		t.Errorf("function number %d, want 1", graphs[1].FunctionNo)
	}
}

func TestDuplicateSelectorDiagnosed(t *testing.T) {
	ns := namespace(t, "word",
		decl("a", sema.KindFunction, []byte{1, 2, 3, 4}),
		decl("b", sema.KindFunction, []byte{1, 2, 3, 4}),
	)

	codegen.Contract(ns)
	if !hasCode(ns, errors.ErrorDuplicateSelector) {
		t.Errorf("expected E1003, got %v", ns.Diagnostics)
	}
}

func TestConstructorMayShareFunctionSelectorOnSplitTargets(t *testing.T) {
	// Deploy and call selectors live in different switches.
	ns := namespace(t, "word",
		decl("init", sema.KindConstructor, []byte{1, 2, 3, 4}),
		decl("get", sema.KindFunction, []byte{1, 2, 3, 4}),
	)

	codegen.Contract(ns)
	if hasCode(ns, errors.ErrorDuplicateSelector) {
		t.Errorf("split dispatch groups must not collide: %v", ns.Diagnostics)
	}
}

func TestCombinedTargetCollidesAcrossKinds(t *testing.T) {
	ns := namespace(t, "borsh",
		decl("init", sema.KindConstructor, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
		decl("get", sema.KindFunction, []byte{1, 2, 3, 4, 5, 6, 7, 8}),
	)

	codegen.Contract(ns)
	if !hasCode(ns, errors.ErrorDuplicateSelector) {
		t.Errorf("combined dispatch shares one switch, expected E1003: %v", ns.Diagnostics)
	}
}

func TestPrivateFunctionsSkipSelectorCheck(t *testing.T) {
	a := decl("a", sema.KindFunction, []byte{1, 2, 3, 4})
	b := decl("b", sema.KindFunction, []byte{1, 2, 3, 4})
	b.Public = false
	ns := namespace(t, "word", a, b)

	codegen.Contract(ns)
	if hasCode(ns, errors.ErrorDuplicateSelector) {
		t.Errorf("private functions have no dispatch entry: %v", ns.Diagnostics)
	}
}

func TestLoweredBodyReturnsZeroValues(t *testing.T) {
	get := decl("get", sema.KindFunction, []byte{1, 2, 3, 4})
	get.Returns = []sema.Parameter{
		{Name: "ok", Ty: types.Bool{}},
		{Name: "amount", Ty: types.Uint{Bits: 64}},
	}
	ns := namespace(t, "word", get)

	graphs := codegen.Contract(ns)
	if ns.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", ns.Diagnostics)
	}

	text := graphs[0].ToString()
	if !strings.Contains(text, "return bool false, uint64 0") {
		t.Errorf("expected zero-value return, got:\n%s", text)
	}
}

func TestLoweredBodyAllocatesEmptyCollections(t *testing.T) {
	get := decl("get", sema.KindFunction, []byte{1, 2, 3, 4})
	get.Returns = []sema.Parameter{{Name: "data", Ty: types.DynamicBytes{}}}
	ns := namespace(t, "word", get)

	graphs := codegen.Contract(ns)
	text := graphs[0].ToString()
	if !strings.Contains(text, "(alloc bytes len uint32 0)") {
		t.Errorf("expected empty allocation, got:\n%s", text)
	}
}
