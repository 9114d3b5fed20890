package sema

import (
	"aster/internal/errors"
	"aster/internal/types"
)

// FunctionKind distinguishes the dispatch roles a function can have.
type FunctionKind int

const (
	KindFunction FunctionKind = iota
	KindConstructor
	KindFallback
	KindReceive
)

func (k FunctionKind) String() string {
	switch k {
	case KindConstructor:
		return "constructor"
	case KindFallback:
		return "fallback"
	case KindReceive:
		return "receive"
	default:
		return "function"
	}
}

// Parameter is one fully-resolved function parameter or return value.
type Parameter struct {
	Name string
	Ty   types.Type
}

// FunctionDecl is what semantic analysis hands the backend per
// function: resolved types, payability, visibility, and a pre-computed
// selector. The backend reads these facts and writes no new ones.
type FunctionDecl struct {
	Name      string
	Kind      FunctionKind
	Params    []Parameter
	Returns   []Parameter
	Payable   bool
	Public    bool
	Selector  []byte
	Signature string
}

// Namespace holds everything resolved upstream that the backend needs,
// plus the diagnostic sink it appends to. One Namespace serves one
// compilation; CFG construction is synchronous within it.
type Namespace struct {
	Contract    string
	Target      Target
	Functions   []*FunctionDecl
	Diagnostics []errors.BackendError

	// LogRuntimeErrors makes generated abort paths print a trace
	// message before failing.
	LogRuntimeErrors bool

	// NextID continues the variable id space across vartables so ids
	// stay unique within a compilation unit.
	NextID int
}

// NewNamespace creates a namespace for one contract on one target.
func NewNamespace(contract string, target Target) *Namespace {
	return &Namespace{
		Contract:         contract,
		Target:           target,
		LogRuntimeErrors: true,
	}
}

// Diag appends a diagnostic. The sink is append-only.
func (ns *Namespace) Diag(err errors.BackendError) {
	ns.Diagnostics = append(ns.Diagnostics, err)
}

// HasErrors reports whether any error-level diagnostic was recorded.
func (ns *Namespace) HasErrors() bool {
	for _, d := range ns.Diagnostics {
		if d.Level == errors.Error {
			return true
		}
	}
	return false
}
