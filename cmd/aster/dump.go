// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aster/internal/ssa"
)

var dumpCfgCmd = &cobra.Command{
	Use:   "dump-cfg <manifest.toml>",
	Short: "Print the lowered control flow graphs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, graphs, err := loadContract(args[0])
		if err != nil {
			return err
		}
		header := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s target=%s\n\n", header("contract "+ns.Contract), ns.Target.Name)
		for _, graph := range graphs {
			fmt.Println(graph.ToString())
		}
		return nil
	},
}

var dumpSsaCmd = &cobra.Command{
	Use:   "dump-ssa <manifest.toml>",
	Short: "Print the graphs lowered to SSA form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, graphs, err := loadContract(args[0])
		if err != nil {
			return err
		}
		lowered := ssa.Contract(ns, graphs)
		if ns.HasErrors() {
			return fmt.Errorf("ssa lowering of %s failed", ns.Contract)
		}
		header := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s target=%s ssa\n\n", header("contract "+ns.Contract), ns.Target.Name)
		for _, graph := range lowered {
			fmt.Println(graph.ToString())
		}
		return nil
	},
}
