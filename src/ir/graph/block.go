package graph

import (
	"mjc/src/backend/regfile"
	"mjc/src/ir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Block defines a basic block of the graph IR. A block is open until Seal attaches its terminator, after which it
// is immutable.
type Block struct {
	g       *Graph    // Graph owning the block.
	id      BlockID   // Index in the graph's block table.
	label   string    // Label, e.g. BB3.
	inputs  []NodeID  // Input nodes by position.
	outputs []NodeID  // Output nodes by position.
	mem     NodeID    // Memory input starting the side effect chain.
	term    NodeID    // Terminator, NoNode while open.
	nodes   []NodeID  // Every node of the block in creation order.
	preds   []BlockID // Sealed blocks whose terminator targets this block.
	sealed  bool      // Set to true once the terminator is attached.
}

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- globals -----
// -------------------

// ---------------------
// ----- functions -----
// ---------------------

// ID returns the index of Block b in its graph.
func (b *Block) ID() BlockID {
	return b.id
}

// Label returns the label of Block b.
func (b *Block) Label() string {
	return b.label
}

// String returns the label of Block b.
func (b *Block) String() string {
	return b.label
}

// Sealed returns true if Block b has been sealed.
func (b *Block) Sealed() bool {
	return b.sealed
}

// Inputs returns the input nodes of Block b by position.
func (b *Block) Inputs() []NodeID {
	return b.inputs
}

// Memory returns the memory input of Block b, the first side effect of its chain.
func (b *Block) Memory() NodeID {
	return b.mem
}

// Nodes returns every node of Block b in creation order.
func (b *Block) Nodes() []NodeID {
	return b.nodes
}

// Predecessors returns the sealed blocks whose terminator targets Block b.
func (b *Block) Predecessors() []BlockID {
	return b.preds
}

// Terminator returns the terminator of Block b. It fails if the block is still open.
func (b *Block) Terminator() (Terminator, error) {
	if !b.sealed {
		return nil, newError(ErrConstructionIncomplete, b, NoNode, "terminator requested before sealing")
	}
	return b.g.nodes[b.term].(Terminator), nil
}

// Outputs returns the output nodes of Block b by position. It fails if the block is still open.
func (b *Block) Outputs() ([]NodeID, error) {
	if !b.sealed {
		return nil, newError(ErrConstructionIncomplete, b, NoNode, "outputs requested before sealing")
	}
	return b.outputs, nil
}

// Successors returns the targets of the terminator of Block b, or <nil> if the block is open.
func (b *Block) Successors() []BlockID {
	if !b.sealed {
		return nil
	}
	return b.g.nodes[b.term].(Terminator).Successors()
}

// AddInput appends an input bound to register r. Inputs must be declared before any predecessor of Block b is
// sealed, since sealing checks the predecessor's outputs against them.
func (b *Block) AddInput(r regfile.Register) (NodeID, error) {
	if b.sealed {
		return NoNode, newError(ErrBlockSealed, b, NoNode, "cannot add input")
	}
	if r == nil {
		return NoNode, newError(ErrBadOperand, b, NoNode, "input bound to <nil> register")
	}
	if len(b.preds) > 0 {
		return NoNode, newError(ErrArityMismatch, b, NoNode, "input %d added after predecessor %s was sealed",
			len(b.inputs), b.g.blocks[b.preds[0]].label)
	}
	for _, e1 := range b.inputs {
		if have := b.g.nodes[e1].(*Input).target; regfile.Overlaps(have, r) {
			return NoNode, newError(ErrBadOperand, b, e1, "register %s bound to two inputs, overlaps %s", r, have)
		}
	}
	id := b.g.add(b, &Input{target: r})
	b.inputs = append(b.inputs, id)
	return id, nil
}

// AddOutput appends node n to the outputs of Block b. Output position i supplies input position i of the block
// that b jumps to.
func (b *Block) AddOutput(n NodeID) error {
	if b.sealed {
		return newError(ErrBlockSealed, b, n, "cannot add output")
	}
	node := b.g.Node(n)
	if node == nil {
		return newError(ErrBadOperand, b, n, "output does not exist")
	}
	if node.Block() != b.id {
		return newError(ErrBadOperand, b, n, "output belongs to block %s", b.g.blocks[node.Block()].label)
	}
	if _, ok := node.(Producer); !ok {
		return newError(ErrBadOperand, b, n, "%s does not produce a register", node.Mnemonic())
	}
	b.outputs = append(b.outputs, n)
	return nil
}

// Seal attaches terminator term to Block b, making it immutable. The outputs of b must match the inputs of every
// successor in number and register width. A failed Seal leaves the block open.
func (b *Block) Seal(term NodeID) error {
	if b.sealed {
		return newError(ErrAlreadySealed, b, term, "cannot seal twice")
	}
	t, ok := b.g.Node(term).(Terminator)
	if !ok {
		return newError(ErrBadOperand, b, term, "not a terminator")
	}
	if t.Block() != b.id {
		return newError(ErrBadOperand, b, term, "terminator belongs to another block")
	}
	if _, ok := t.(*Return); ok && len(b.outputs) > 0 {
		return newError(ErrArityMismatch, b, term, "returning block has %d outputs", len(b.outputs))
	}
	for _, e1 := range t.Successors() {
		s := b.g.Block(e1)
		if s == nil {
			// Reported by the verifier.
			continue
		}
		if err := b.checkPositions(s); err != nil {
			return err
		}
	}
	b.term = term
	b.sealed = true
	for i1, e1 := range t.Successors() {
		if s := b.g.Block(e1); s != nil && (i1 == 0 || e1 != t.Successors()[0]) {
			s.preds = append(s.preds, b.id)
		}
	}
	return nil
}

// checkPositions checks that the outputs of b match the inputs of s by position.
func (b *Block) checkPositions(s *Block) error {
	if len(b.outputs) != len(s.inputs) {
		return newError(ErrArityMismatch, b, NoNode, "%d outputs, successor %s expects %d inputs",
			len(b.outputs), s.label, len(s.inputs))
	}
	for i1, e1 := range b.outputs {
		out := b.g.Register(e1)
		in := b.g.Register(s.inputs[i1])
		if out.Width() != in.Width() {
			return newError(ErrWidthMismatch, b, e1, "output %d is %s bit, input %d of %s is %s bit",
				i1, out.Width(), i1, s.label, in.Width())
		}
	}
	return nil
}

// AddScheduleDependency orders node n after node dep without a data dependency between them.
func (b *Block) AddScheduleDependency(n, dep NodeID) {
	b.open("schedule dependency")
	for _, e1 := range []NodeID{n, dep} {
		node := b.g.Node(e1)
		if node == nil || node.Block() != b.id {
			panic(newError(ErrBadOperand, b, e1, "schedule dependency outside block"))
		}
	}
	switch b.g.nodes[n].(type) {
	case *Input, *MemoryInput:
		panic(newError(ErrBadOperand, b, n, "block inputs have no predecessors"))
	}
	f := b.g.nodes[n].fields()
	f.deps = append(f.deps, dep)
}

// NewBinary creates an arithmetic operation on lhs and rhs. The result has the width of the operands.
func (b *Block) NewBinary(op types.ArithmeticOperation, lhs, rhs NodeID) NodeID {
	b.open(op.String())
	w := b.sameWidth(lhs, rhs)
	return b.g.add(b, &Binary{op: op, lhs: lhs, rhs: rhs, target: b.g.regs.Next(w)})
}

// NewCompare creates a comparison of lhs and rhs.
func (b *Block) NewCompare(lhs, rhs NodeID) NodeID {
	b.open("cmp")
	b.sameWidth(lhs, rhs)
	return b.g.add(b, &Compare{lhs: lhs, rhs: rhs})
}

// NewMovImmediate creates a constant of width w in a fresh register.
func (b *Block) NewMovImmediate(v int64, w regfile.Width) NodeID {
	b.open("mov-imm")
	return b.g.add(b, &MovImmediate{value: v, target: b.g.regs.Next(w)})
}

// NewMovImmediateTo creates a constant in register r.
func (b *Block) NewMovImmediateTo(v int64, r regfile.Register) NodeID {
	b.open("mov-imm")
	if r == nil {
		panic(newError(ErrBadOperand, b, NoNode, "mov-imm to <nil> register"))
	}
	return b.g.add(b, &MovImmediate{value: v, target: r})
}

// NewMovRegister copies src into register r. If r is <nil> a fresh register of the same width is used.
func (b *Block) NewMovRegister(src NodeID, r regfile.Register) NodeID {
	b.open("mov-reg")
	sr := b.operand(src)
	if r == nil {
		r = b.g.regs.Next(sr.Width())
	} else if r.Width() != sr.Width() {
		panic(newError(ErrWidthMismatch, b, src, "mov-reg from %s bit to %s bit register %s",
			sr.Width(), r.Width(), r))
	}
	return b.g.add(b, &MovRegister{source: src, target: r})
}

// NewMovSignExtend sign extends src into a fresh register of width w, which must be wider than src.
func (b *Block) NewMovSignExtend(src NodeID, w regfile.Width) NodeID {
	b.open("mov-sx")
	if sr := b.operand(src); sr.Width() >= w {
		panic(newError(ErrWidthMismatch, b, src, "mov-sx from %s bit to %s bit", sr.Width(), w))
	}
	return b.g.add(b, &MovSignExtend{input: src, target: b.g.regs.Next(w)})
}

// NewLoad creates a load of width w from the address in addr, ordered after side effect mem.
func (b *Block) NewLoad(addr, mem NodeID, w regfile.Width) NodeID {
	b.open("mov-load")
	b.address(addr)
	b.effect(mem)
	return b.g.add(b, &Load{addr: addr, effect: mem, target: b.g.regs.Next(w)})
}

// NewStore creates a store of value to the address in addr, ordered after side effect mem.
func (b *Block) NewStore(addr, value, mem NodeID) NodeID {
	b.open("mov-store")
	b.address(addr)
	b.operand(value)
	b.effect(mem)
	return b.g.add(b, &Store{addr: addr, value: value, effect: mem})
}

// NewMethodCall creates a call of m with args, ordered after side effect mem. Arguments must match the
// parameters of m in number and width.
func (b *Block) NewMethodCall(m *Method, args []NodeID, mem NodeID) NodeID {
	b.open("call")
	if m == nil {
		panic(newError(ErrBadOperand, b, NoNode, "call of <nil> method"))
	}
	if len(args) != len(m.Params) {
		panic(newError(ErrArityMismatch, b, NoNode, "call of %s with %d arguments", m, len(args)))
	}
	for i1, e1 := range args {
		if r := b.operand(e1); r.Width() != m.Params[i1] {
			panic(newError(ErrWidthMismatch, b, e1, "argument %d of %s is %s bit, want %s bit",
				i1, m.Name, r.Width(), m.Params[i1]))
		}
	}
	b.effect(mem)
	w := m.Result
	if m.Void {
		w = regfile.Bit32
	}
	a := make([]NodeID, len(args))
	copy(a, args)
	return b.g.add(b, &MethodCall{callee: m, args: a, effect: mem, target: b.g.regs.Next(w)})
}

// NewAllocCall creates a call of the runtime allocation function for count elements of size bytes, ordered after
// side effect mem. The result is a 64-bit address.
func (b *Block) NewAllocCall(count, size, mem NodeID) NodeID {
	b.open("call <alloc>")
	b.operand(count)
	b.operand(size)
	b.effect(mem)
	return b.g.add(b, &AllocCall{count: count, size: size, effect: mem, target: b.g.regs.Next(regfile.Bit64)})
}

// NewDiv creates a signed division of dividend by divisor, ordered after side effect mem.
func (b *Block) NewDiv(kind types.DivKind, dividend, divisor, mem NodeID) NodeID {
	b.open(kind.String())
	w := b.sameWidth(dividend, divisor)
	b.effect(mem)
	return b.g.add(b, &Div{kind: kind, dividend: dividend, divisor: divisor, effect: mem, target: b.g.regs.Next(w)})
}

// NewJump creates an unconditional jump to dst, ordered after side effect mem. A <nil> dst creates a jump without
// target, which Verify rejects.
func (b *Block) NewJump(dst *Block, mem NodeID) NodeID {
	b.open("jmp")
	b.effect(mem)
	return b.g.add(b, &Jump{dst: b.target(dst), effect: mem})
}

// NewBranch creates a conditional branch on the comparison cmp, ordered after side effect mem.
func (b *Block) NewBranch(p types.Predicate, cmp, mem NodeID, ifTrue, ifFalse *Block) NodeID {
	b.open("branch")
	if _, ok := b.g.Node(cmp).(*Compare); !ok {
		panic(newError(ErrBadOperand, b, cmp, "branch on non-compare node"))
	}
	b.effect(mem)
	return b.g.add(b, &Branch{
		pred:    p,
		cmp:     cmp,
		effect:  mem,
		ifTrue:  b.target(ifTrue),
		ifFalse: b.target(ifFalse),
	})
}

// NewReturn creates a return of value, ordered after side effect mem. Pass NoNode as value for void returns.
func (b *Block) NewReturn(value, mem NodeID) NodeID {
	b.open("ret")
	if value != NoNode {
		b.operand(value)
	}
	b.effect(mem)
	return b.g.add(b, &Return{value: value, effect: mem})
}

// open panics if Block b is sealed.
func (b *Block) open(what string) {
	if b.sealed {
		panic(newError(ErrBlockSealed, b, NoNode, "cannot add %s", what))
	}
}

// operand returns the register written by node n, panicking if n does not exist or produces no register.
func (b *Block) operand(n NodeID) regfile.Register {
	r := b.g.Register(n)
	if r == nil {
		panic(newError(ErrBadOperand, b, n, "operand does not produce a register"))
	}
	return r
}

// address panics unless n produces a 64-bit register.
func (b *Block) address(n NodeID) {
	if r := b.operand(n); r.Width() != regfile.Bit64 {
		panic(newError(ErrWidthMismatch, b, n, "address in %s bit register %s", r.Width(), r))
	}
}

// sameWidth returns the width shared by the registers of lhs and rhs, panicking if they differ.
func (b *Block) sameWidth(lhs, rhs NodeID) regfile.Width {
	l, r := b.operand(lhs), b.operand(rhs)
	if l.Width() != r.Width() {
		panic(newError(ErrWidthMismatch, b, rhs, "operands %s and %s have widths %s and %s",
			l, r, l.Width(), r.Width()))
	}
	return l.Width()
}

// effect panics unless n can act as a side effect.
func (b *Block) effect(n NodeID) {
	if _, ok := b.g.Node(n).(SideEffect); !ok {
		panic(newError(ErrBadOperand, b, n, "not a side effect"))
	}
}

// target returns the id of control flow target t, NoBlock if t is <nil>.
func (b *Block) target(t *Block) BlockID {
	if t == nil {
		return NoBlock
	}
	if t.g != b.g {
		panic(newError(ErrBadOperand, b, NoNode, "target %s belongs to another graph", t.label))
	}
	return t.id
}
