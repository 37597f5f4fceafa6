package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carbide-cc/regalloc"
)

// Parse builds a Function from its textual form. The format is line based:
//
//	fn @euclid:          # optional function header
//	b0:                  # block label; layout follows appearance order
//	  v1 = const 10
//	  f2 = copy f0       # fN names a float register, vN an integer one
//	  brz v1, b2         # branch when zero, fall through otherwise
//	b1:
//	  jmp b0
//	b2:
//	  ret v1
//
// '#' starts a comment running to the end of the line. Branches may reference
// blocks defined later. Parse errors carry the 1-based line number.
func Parse(src string) (*Function, error) {
	p := &parser{
		f:       newFunction(""),
		labels:  make(map[int]*Block),
		classes: make(map[regalloc.VRegID]regalloc.RegType),
	}
	for n, line := range strings.Split(src, "\n") {
		p.line = n + 1
		if err := p.parseLine(line); err != nil {
			return nil, err
		}
	}
	for _, fx := range p.fixups {
		b, ok := p.labels[fx.label]
		if !ok {
			return nil, fmt.Errorf("line %d: undefined block b%d", fx.line, fx.label)
		}
		fx.instr.target = b
	}
	if err := p.f.finalize(); err != nil {
		return nil, err
	}
	return p.f, nil
}

// operandSplitter reduces instruction punctuation to whitespace so operands
// can be split with strings.Fields.
var operandSplitter = strings.NewReplacer(",", " ", "(", " ", ")", " ")

type parser struct {
	f       *Function
	cur     *Block
	labels  map[int]*Block
	classes map[regalloc.VRegID]regalloc.RegType
	fixups  []fixup
	line    int
}

// fixup is a branch whose target block may not be parsed yet.
type fixup struct {
	instr *Instr
	label int
	line  int
}

func (p *parser) parseLine(raw string) error {
	line := raw
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if rest, ok := strings.CutPrefix(line, "fn "); ok {
		return p.parseHeader(rest)
	}
	if label, ok := strings.CutSuffix(line, ":"); ok {
		return p.parseLabel(label)
	}
	return p.parseInstr(line)
}

func (p *parser) parseHeader(rest string) error {
	name, ok := strings.CutSuffix(strings.TrimSpace(rest), ":")
	if !ok || !strings.HasPrefix(name, "@") || len(name) < 2 {
		return p.errf("malformed function header, want 'fn @name:'")
	}
	if p.f.Name != "" {
		return p.errf("duplicate function header")
	}
	if len(p.f.blocks) > 0 {
		return p.errf("function header must precede the first block")
	}
	p.f.Name = name[1:]
	return nil
}

func (p *parser) parseLabel(label string) error {
	rest, ok := strings.CutPrefix(label, "b")
	id, err := strconv.Atoi(rest)
	if !ok || err != nil || id < 0 {
		return p.errf("bad block label %q", label)
	}
	if _, dup := p.labels[id]; dup {
		return p.errf("duplicate block b%d", id)
	}
	b := &Block{id: id}
	p.labels[id] = b
	p.f.blocks = append(p.f.blocks, b)
	p.cur = b
	return nil
}

func (p *parser) parseInstr(line string) error {
	if p.cur == nil {
		return p.errf("instruction outside of a block")
	}
	fields := strings.Fields(operandSplitter.Replace(line))
	var def string
	if len(fields) >= 2 && fields[1] == "=" {
		def = fields[0]
		fields = fields[2:]
	}
	if len(fields) == 0 {
		return p.errf("missing instruction")
	}
	op, args := fields[0], fields[1:]

	switch op {
	case "nop":
		if def != "" || len(args) != 0 {
			return p.errf("nop takes no operands")
		}
		p.append(newInstr(OpNop))

	case "const":
		d, err := p.defReg(def, op)
		if err != nil {
			return err
		}
		if len(args) != 1 {
			return p.errf("const takes one immediate")
		}
		imm, err := strconv.ParseInt(args[0], 0, 64)
		if err != nil {
			return p.errf("bad immediate %q", args[0])
		}
		i := newInstr(OpConst)
		i.defs = append(i.defs, d)
		i.imm = imm
		p.append(i)

	case "add", "mul":
		o := OpAdd
		if op == "mul" {
			o = OpMul
		}
		return p.emit(o, def, args, 2)

	case "copy":
		return p.emit(OpCopy, def, args, 1)

	case "load":
		return p.emit(OpLoad, def, args, 1)

	case "store":
		if err := p.noDef(def, op); err != nil {
			return err
		}
		if len(args) != 2 {
			return p.errf("store takes a value and an address")
		}
		uses, err := p.regs(args)
		if err != nil {
			return err
		}
		i := newInstr(OpStore)
		i.uses = uses
		p.append(i)

	case "spill.store":
		if err := p.noDef(def, op); err != nil {
			return err
		}
		if len(args) != 2 {
			return p.errf("spill.store takes a register and a slot")
		}
		u, err := p.reg(args[0])
		if err != nil {
			return err
		}
		slot, err := p.slot(args[1])
		if err != nil {
			return err
		}
		i := newInstr(OpSpillStore)
		i.uses = append(i.uses, u)
		i.slot = slot
		p.append(i)

	case "spill.reload":
		d, err := p.defReg(def, op)
		if err != nil {
			return err
		}
		if len(args) != 1 {
			return p.errf("spill.reload takes a slot")
		}
		slot, err := p.slot(args[0])
		if err != nil {
			return err
		}
		i := newInstr(OpSpillReload)
		i.defs = append(i.defs, d)
		i.slot = slot
		p.append(i)

	case "call":
		if len(args) == 0 || !strings.HasPrefix(args[0], "@") || len(args[0]) < 2 {
			return p.errf("call needs a @callee")
		}
		i := newInstr(OpCall)
		i.callee = args[0][1:]
		if def != "" {
			d, err := p.reg(def)
			if err != nil {
				return err
			}
			i.defs = append(i.defs, d)
		}
		uses, err := p.regs(args[1:])
		if err != nil {
			return err
		}
		i.uses = uses
		p.append(i)

	case "jmp":
		if err := p.noDef(def, op); err != nil {
			return err
		}
		if len(args) != 1 {
			return p.errf("jmp takes a block")
		}
		i := newInstr(OpJmp)
		if err := p.branchTo(i, args[0]); err != nil {
			return err
		}
		p.append(i)

	case "brz":
		if err := p.noDef(def, op); err != nil {
			return err
		}
		if len(args) != 2 {
			return p.errf("brz takes a register and a block")
		}
		u, err := p.reg(args[0])
		if err != nil {
			return err
		}
		i := newInstr(OpBrz)
		i.uses = append(i.uses, u)
		if err := p.branchTo(i, args[1]); err != nil {
			return err
		}
		p.append(i)

	case "ret":
		if err := p.noDef(def, op); err != nil {
			return err
		}
		if len(args) > 1 {
			return p.errf("ret takes at most one register")
		}
		uses, err := p.regs(args)
		if err != nil {
			return err
		}
		i := newInstr(OpRet)
		i.uses = uses
		p.append(i)

	case "debug":
		if err := p.noDef(def, op); err != nil {
			return err
		}
		if len(args) == 0 {
			return p.errf("debug takes at least one register")
		}
		uses, err := p.regs(args)
		if err != nil {
			return err
		}
		i := newInstr(OpDebug)
		i.uses = uses
		p.append(i)

	default:
		return p.errf("unknown instruction %q", op)
	}
	return nil
}

// emit handles the common def-plus-uses shape.
func (p *parser) emit(op Opcode, def string, args []string, nuses int) error {
	d, err := p.defReg(def, op.String())
	if err != nil {
		return err
	}
	if len(args) != nuses {
		return p.errf("%s takes %d register(s)", op, nuses)
	}
	uses, err := p.regs(args)
	if err != nil {
		return err
	}
	i := newInstr(op)
	i.defs = append(i.defs, d)
	i.uses = uses
	p.append(i)
	return nil
}

func (p *parser) append(i *Instr) {
	i.blk = p.cur
	p.cur.instrs = append(p.cur.instrs, i)
}

func (p *parser) defReg(def, op string) (regalloc.VReg, error) {
	if def == "" {
		return regalloc.VRegInvalid, p.errf("%s needs a result register", op)
	}
	return p.reg(def)
}

func (p *parser) noDef(def, op string) error {
	if def != "" {
		return p.errf("%s does not define a register", op)
	}
	return nil
}

func (p *parser) reg(tok string) (regalloc.VReg, error) {
	var typ regalloc.RegType
	switch {
	case len(tok) < 2:
		return regalloc.VRegInvalid, p.errf("bad register %q", tok)
	case tok[0] == 'v':
		typ = regalloc.RegTypeInt
	case tok[0] == 'f':
		typ = regalloc.RegTypeFloat
	default:
		return regalloc.VRegInvalid, p.errf("bad register %q", tok)
	}
	n, err := strconv.ParseUint(tok[1:], 10, 32)
	if err != nil {
		return regalloc.VRegInvalid, p.errf("bad register %q", tok)
	}
	id := regalloc.VRegID(n)
	if prev, ok := p.classes[id]; ok && prev != typ {
		return regalloc.VRegInvalid, p.errf("%s was previously used as %s", tok, prev)
	}
	p.classes[id] = typ
	if id >= p.f.nextID {
		p.f.nextID = id + 1
	}
	return regalloc.VReg(id).SetRegType(typ), nil
}

func (p *parser) regs(args []string) ([]regalloc.VReg, error) {
	vs := make([]regalloc.VReg, 0, len(args))
	for _, a := range args {
		v, err := p.reg(a)
		if err != nil {
			return nil, err
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func (p *parser) slot(tok string) (regalloc.SpillSlot, error) {
	rest, ok := strings.CutPrefix(tok, "s")
	n, err := strconv.ParseInt(rest, 10, 32)
	if !ok || err != nil || n < 0 {
		return regalloc.SpillSlotInvalid, p.errf("bad spill slot %q", tok)
	}
	// Slots named in the text are pre-claimed, so slots the allocator mints
	// later never collide with them.
	for int64(len(p.f.slots)) <= n {
		p.f.slots = append(p.f.slots, regalloc.RegTypeInvalid)
	}
	return regalloc.SpillSlot(n), nil
}

func (p *parser) branchTo(i *Instr, tok string) error {
	rest, ok := strings.CutPrefix(tok, "b")
	id, err := strconv.Atoi(rest)
	if !ok || err != nil || id < 0 {
		return p.errf("bad block reference %q", tok)
	}
	p.fixups = append(p.fixups, fixup{instr: i, label: id, line: p.line})
	return nil
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: "+format, append([]any{p.line}, args...)...)
}
