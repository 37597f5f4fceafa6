// Command regalloc allocates physical registers for small textual programs.
// It exists to exercise and debug the allocator: parse a program, run a
// strategy against a register file, and inspect the outcome.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/carbide-cc/regalloc/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "regalloc:", err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "regalloc",
		Short: "regalloc assigns physical registers to the virtual registers of a program",
		Long: `regalloc parses a small textual program form, computes liveness, and runs
register allocation against a built-in or YAML-described register file.`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.AddCommand(newRunCmd(out))
	root.AddCommand(newDumpCmd(out))
	return root
}
