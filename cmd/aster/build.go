// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"aster/internal/cfg"
	"aster/internal/codegen"
	"aster/internal/errors"
	"aster/internal/manifest"
	"aster/internal/sema"
)

var log = commonlog.GetLogger("aster")

// loadContract reads a manifest and lowers the contract it describes.
// Diagnostics go to stderr; an error return means the graphs are not
// usable.
func loadContract(path string) (*sema.Namespace, []*cfg.ControlFlowGraph, error) {
	ns, err := manifest.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("lowering contract %s for target %s", ns.Contract, ns.Target.Name)
	ns.LogRuntimeErrors = !noRuntimeLog

	graphs := codegen.Contract(ns)

	if len(ns.Diagnostics) > 0 {
		reporter := errors.NewReporter(ns.Contract)
		for _, diag := range ns.Diagnostics {
			fmt.Fprint(os.Stderr, reporter.Format(diag))
		}
	}
	if ns.HasErrors() {
		return nil, nil, fmt.Errorf("lowering %s failed", ns.Contract)
	}
	return ns, graphs, nil
}
