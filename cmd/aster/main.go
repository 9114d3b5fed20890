// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var (
	verbosity    int
	noRuntimeLog bool
)

var rootCmd = &cobra.Command{
	Use:   "aster",
	Short: "Contract code generation backend tools",
	Long:  `Aster lowers contract interfaces into control flow graphs: dispatchers, argument codecs and SSA form, per target.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commonlog.Configure(verbosity, nil)
	},
}

func main() {
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "log verbosity")
	rootCmd.PersistentFlags().BoolVar(&noRuntimeLog, "no-log-runtime-errors", false,
		"omit trace prints on generated abort paths")

	rootCmd.AddCommand(dumpCfgCmd)
	rootCmd.AddCommand(dumpSsaCmd)
	rootCmd.AddCommand(selectorsCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
