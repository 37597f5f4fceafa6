package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carbide-cc/regalloc"
)

func TestFunction_newVReg(t *testing.T) {
	f, err := Parse("b0:\n  v1 = const 1\n  ret v1\n")
	require.NoError(t, err)

	// Fresh ids start above the RealReg-reserved range.
	v := f.NewVReg(regalloc.RegTypeInt)
	require.Equal(t, regalloc.VRegIDNonReservedBegin, v.ID())
	require.Equal(t, regalloc.RegTypeInt, v.RegType())
	require.False(t, v.IsRealReg())

	w := f.NewVReg(regalloc.RegTypeFloat)
	require.Equal(t, v.ID()+1, w.ID())
	require.Equal(t, regalloc.RegTypeFloat, w.RegType())

	// Ids already claimed by the text push the counter further up.
	f2, err := Parse("b0:\n  v300 = const 1\n  ret v300\n")
	require.NoError(t, err)
	require.Equal(t, regalloc.VRegID(301), f2.NewVReg(regalloc.RegTypeInt).ID())
}

func TestFunction_spillSlots(t *testing.T) {
	f, err := Parse("b0:\n  v1 = const 1\n  ret v1\n")
	require.NoError(t, err)
	require.Equal(t, regalloc.SpillSlot(0), f.AllocateSpillSlot(regalloc.RegTypeInt))
	require.Equal(t, regalloc.SpillSlot(1), f.AllocateSpillSlot(regalloc.RegTypeFloat))
	f.Done()
	require.Equal(t, 16, f.SpillAreaSize())

	// Slots named in the text are pre-claimed.
	f2, err := Parse("b0:\n  v1 = spill.reload s3\n  ret v1\n")
	require.NoError(t, err)
	require.Equal(t, regalloc.SpillSlot(4), f2.AllocateSpillSlot(regalloc.RegTypeInt))
	f2.Done()
	require.Equal(t, 40, f2.SpillAreaSize())
}

func TestFunction_insertSpillCode(t *testing.T) {
	f, err := Parse(`b0:
  v1 = const 1
  v2 = add v1, v1
  ret v2
`)
	require.NoError(t, err)
	blk := f.blocks[0]
	v1 := blk.instrs[0].defs[0]
	slot := f.AllocateSpillSlot(regalloc.RegTypeInt)

	// Walk the block the way the spiller does, inserting around the add.
	var visited []string
	for instr := blk.InstrIteratorBegin(); instr != nil; instr = blk.InstrIteratorNext() {
		visited = append(visited, instr.String())
		if instr.(*Instr).op != OpAdd {
			continue
		}
		reload := f.NewVReg(regalloc.RegTypeInt)
		f.ReloadRegisterBefore(reload, slot, instr)
		f.StoreRegisterAfter(v1, slot, instr)
	}

	// The iteration neither revisits the add nor sees the spill code.
	require.Equal(t, []string{"v1 = const 1", "v2 = add v1, v1", "ret v2"}, visited)

	require.Equal(t, `b0:
  v1 = const 1
  v128 = spill.reload s0
  v2 = add v1, v1
  spill.store v1, s0
  ret v2
`, f.String())

	for _, i := range []int{1, 3} {
		require.True(t, blk.instrs[i].inserted)
	}
}

func TestFunction_clobberedIsCopied(t *testing.T) {
	f, err := Parse("b0:\n  ret\n")
	require.NoError(t, err)
	regs := []regalloc.RealReg{3, 5}
	f.ClobberedRegisters(regs)
	regs[0] = 9
	require.Equal(t, []regalloc.RealReg{3, 5}, f.clobbered)
}

func TestBlock_iteratorExhaustion(t *testing.T) {
	f, err := Parse("b0:\n  nop\n  ret\n")
	require.NoError(t, err)
	blk := f.blocks[0]

	require.Equal(t, "nop", blk.InstrIteratorBegin().String())
	require.Equal(t, "ret", blk.InstrIteratorNext().String())
	require.Nil(t, blk.InstrIteratorNext())

	// Begin restarts.
	require.Equal(t, "nop", blk.InstrIteratorBegin().String())
}
