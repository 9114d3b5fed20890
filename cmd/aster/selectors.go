// SPDX-License-Identifier: Apache-2.0
package main

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var selectorsCmd = &cobra.Command{
	Use:   "selectors <manifest.toml>",
	Short: "Print the dispatch selector of every public function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns, _, err := loadContract(args[0])
		if err != nil {
			return err
		}
		sel := color.New(color.FgCyan).SprintFunc()
		for _, decl := range ns.Functions {
			if !decl.Public || len(decl.Selector) == 0 {
				continue
			}
			fmt.Printf("%s  %-11s %s\n",
				sel(hex.EncodeToString(decl.Selector)), decl.Kind, decl.Signature)
		}
		return nil
	},
}
