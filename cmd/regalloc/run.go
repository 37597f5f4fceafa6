package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carbide-cc/regalloc"
	"github.com/carbide-cc/regalloc/ir"
	"github.com/carbide-cc/regalloc/target"
	"github.com/carbide-cc/regalloc/target/amd64"
	"github.com/carbide-cc/regalloc/target/arm64"
	"github.com/carbide-cc/regalloc/viz"
)

type runOptions struct {
	target     string
	strategy   string
	htmlPath   string
	dumpLive   bool
	dumpMatrix bool
}

func newRunCmd(out io.Writer) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Allocate registers for a program and print the rewritten form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doRun(args[0], opts, out)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "amd64",
		`register file: "amd64", "arm64" or the path of a YAML description`)
	cmd.Flags().StringVar(&opts.strategy, "strategy", "basic",
		"allocation strategy: "+strings.Join(regalloc.Strategies(), ", "))
	cmd.Flags().StringVar(&opts.htmlPath, "html", "",
		"write an interference graph to this HTML file")
	cmd.Flags().BoolVar(&opts.dumpLive, "dump-live", false,
		"print live ranges and weights before allocating")
	cmd.Flags().BoolVar(&opts.dumpMatrix, "dump-matrix", false,
		"print interference edges among assigned registers")
	return cmd
}

func doRun(path string, opts *runOptions, out io.Writer) error {
	f, err := parseProgram(path)
	if err != nil {
		return err
	}
	info, err := registerInfoFor(opts.target)
	if err != nil {
		return err
	}
	live := ir.NewLiveness(f)
	if opts.dumpLive {
		fmt.Fprint(out, livenessTree(live))
	}

	var snap *regalloc.Snapshot
	cfg := regalloc.NewRunConfig().
		WithStrategy(opts.strategy).
		WithSnapshotHook(func(s *regalloc.Snapshot) { snap = s })
	a := regalloc.NewAllocator(info)
	res, err := a.Allocate(f, live, cfg)
	if err != nil {
		return err
	}

	printOutcome(out, snap, opts.dumpMatrix)
	fmt.Fprintln(out)
	fmt.Fprint(out, f.String())
	fmt.Fprintln(out)
	printStats(out, f, res, info)

	if opts.htmlPath != "" {
		if err := writeHTML(opts.htmlPath, snap); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", opts.htmlPath)
	}
	return nil
}

func parseProgram(path string) (*ir.Function, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := ir.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func registerInfoFor(name string) (*regalloc.RegisterInfo, error) {
	switch name {
	case "amd64":
		return amd64.RegisterInfo(), nil
	case "arm64":
		return arm64.RegisterInfo(), nil
	}
	rf, err := target.Load(name)
	if err != nil {
		return nil, err
	}
	return rf.RegisterInfo()
}

func printOutcome(out io.Writer, snap *regalloc.Snapshot, edges bool) {
	fmt.Fprintln(out, "values:")
	for _, n := range snap.Nodes {
		place := n.RegName
		if n.Assigned == regalloc.RealRegInvalid {
			place = n.Slot.String()
		}
		fmt.Fprintf(out, "  %-6s %-7s %8.4g  %s\n", n.VReg, n.Stage, n.Weight, place)
	}
	if edges {
		fmt.Fprintln(out, "interference:")
		for _, e := range snap.Edges {
			fmt.Fprintf(out, "  %s -- %s\n", snap.Nodes[e.A].VReg, snap.Nodes[e.B].VReg)
		}
	}
}

func printStats(out io.Writer, f *ir.Function, res *regalloc.Assignment, info *regalloc.RegisterInfo) {
	st := res.Stats
	fmt.Fprintf(out, "%d steps, %d assigned, %d spilled, %d evictions\n",
		st.Steps, st.Assigned, st.Spilled, st.Evictions)
	if cl := res.Clobbered(); len(cl) > 0 {
		names := make([]string, len(cl))
		for i, r := range cl {
			names[i] = info.RealRegName(r)
		}
		fmt.Fprintf(out, "clobbered callee-saved: %s\n", strings.Join(names, ", "))
	}
	if n := f.SpillAreaSize(); n > 0 {
		fmt.Fprintf(out, "spill area: %d bytes\n", n)
	}
}

func writeHTML(path string, snap *regalloc.Snapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return viz.RenderHTML(file, snap)
}
