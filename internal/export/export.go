// Package export serializes lowered contracts into a compact artifact
// for downstream emitters and tooling. The artifact carries the
// dispatch surface (selectors, signatures) and the canonical text of
// every graph, keyed so a consumer can diff two builds cheaply.
package export

import (
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"aster/internal/cfg"
	"aster/internal/sema"
)

// Schema version, bumped when the artifact layout changes.
const schemaVersion uint16 = 1

// Artifact is the serialized form of one compiled contract.
type Artifact struct {
	Schema    uint16     `msgpack:"schema"`
	Contract  string     `msgpack:"contract"`
	Target    string     `msgpack:"target"`
	Functions []Function `msgpack:"functions"`
}

// Function is one CFG in the artifact.
type Function struct {
	Name      string   `msgpack:"name"`
	Kind      string   `msgpack:"kind"`
	Public    bool     `msgpack:"public"`
	Payable   bool     `msgpack:"payable"`
	Selector  []byte   `msgpack:"selector,omitempty"`
	Params    []string `msgpack:"params,omitempty"`
	Returns   []string `msgpack:"returns,omitempty"`
	BlockCnt  uint32   `msgpack:"blocks"`
	Canonical string   `msgpack:"text"`
}

// Build collects a contract's graphs into an artifact.
func Build(ns *sema.Namespace, graphs []*cfg.ControlFlowGraph) (*Artifact, error) {
	artifact := &Artifact{
		Schema:   schemaVersion,
		Contract: ns.Contract,
		Target:   ns.Target.Name,
	}
	for _, graph := range graphs {
		blocks, err := safecast.Conv[uint32](len(graph.Blocks))
		if err != nil {
			return nil, err
		}
		fn := Function{
			Name:      graph.Name,
			Kind:      graph.Kind.String(),
			Public:    graph.Public,
			Payable:   !graph.Nonpayable,
			Selector:  graph.Selector,
			BlockCnt:  blocks,
			Canonical: graph.ToString(),
		}
		for _, p := range graph.Params {
			fn.Params = append(fn.Params, p.Ty.String())
		}
		for _, r := range graph.Returns {
			fn.Returns = append(fn.Returns, r.Ty.String())
		}
		artifact.Functions = append(artifact.Functions, fn)
	}
	return artifact, nil
}

// Write serializes the artifact.
func (a *Artifact) Write(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(a)
}

// Read deserializes an artifact.
func Read(r io.Reader) (*Artifact, error) {
	var artifact Artifact
	if err := msgpack.NewDecoder(r).Decode(&artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}
