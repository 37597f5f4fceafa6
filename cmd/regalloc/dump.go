package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/carbide-cc/regalloc"
	"github.com/carbide-cc/regalloc/ir"
)

func newDumpCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <program>",
		Short: "Print a program with its liveness and interference as a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doDump(args[0], out)
		},
	}
}

func doDump(path string, out io.Writer) error {
	f, err := parseProgram(path)
	if err != nil {
		return err
	}
	live := ir.NewLiveness(f)

	tree := treeprint.New()
	if f.Name != "" {
		tree.SetValue("fn @" + f.Name)
	} else {
		tree.SetValue("fn")
	}

	blocks := tree.AddBranch("blocks")
	for _, b := range f.Blocks() {
		label := fmt.Sprintf("b%d", b.ID())
		if d := b.LoopDepth(); d > 0 {
			label = fmt.Sprintf("%s loop=%d", label, d)
		}
		bb := blocks.AddBranch(label)
		for _, instr := range b.Instrs() {
			bb.AddNode(fmt.Sprintf("%3d  %s", live.PointOf(instr), instr))
		}
	}

	vs := live.VRegs(nil)
	ranges := tree.AddBranch("live ranges")
	for _, v := range vs {
		ranges.AddNode(vregLine(live, v))
	}

	inter := tree.AddBranch("interference")
	for i, v := range vs {
		for _, w := range vs[i+1:] {
			if v.RegType() == w.RegType() && live.RangeOf(v).Overlaps(live.RangeOf(w)) {
				inter.AddNode(fmt.Sprintf("%s -- %s", v, w))
			}
		}
	}

	fmt.Fprint(out, tree.String())
	return nil
}

func livenessTree(live *ir.Liveness) string {
	tree := treeprint.New()
	tree.SetValue("live ranges")
	for _, v := range live.VRegs(nil) {
		tree.AddNode(vregLine(live, v))
	}
	return tree.String()
}

func vregLine(live *ir.Liveness, v regalloc.VReg) string {
	return fmt.Sprintf("%s %s weight=%.4g %s", v, v.RegType(), live.WeightOf(v), live.RangeOf(v))
}
