// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aster/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <manifest.toml>",
	Short: "Write the lowered contract as an emitter artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, graphs, err := loadContract(args[0])
		if err != nil {
			return err
		}
		artifact, err := export.Build(ns, graphs)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = ns.Contract + ".aster"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := artifact.Write(f); err != nil {
			return err
		}
		log.Infof("wrote %s (%d functions)", out, len(artifact.Functions))
		fmt.Printf("exported %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default <contract>.aster)")
}
