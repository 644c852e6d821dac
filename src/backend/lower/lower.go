// Package lower translates a sealed graph IR method into the linear IR: it schedules the nodes of every block,
// selects one linear instruction per scheduled node and inserts the register copies that pass block outputs to the
// inputs of the successor.
package lower

import (
	"mjc/src/backend/regfile"
	"mjc/src/ir/graph"
	"mjc/src/ir/lir"
	"mjc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// lowering holds the state of one Lower invocation.
type lowering struct {
	opt     util.Options
	g       *graph.Graph
	lg      *lir.Graph
	s       *Schedule
	blocks  map[graph.BlockID]*lir.Block // Linear block created for every graph block.
	scratch *regfile.Generator           // Registers breaking copy cycles.
}

// move is a pending register copy dst <- src.
type move struct {
	dst regfile.Register
	src regfile.Register
}

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- Globals -----
// -------------------

// ---------------------
// ----- Functions -----
// ---------------------

// Lower verifies g, unless opt.SkipVerify is set, and lowers every block reachable from its start block into one
// linear block. The schedule chosen for every block is returned along with the linear graph. Either the complete
// method is lowered or an error is returned: a *graph.Error from verification or construction, or an *Error from
// scheduling.
func Lower(opt util.Options, g *graph.Graph) (lg *lir.Graph, s *Schedule, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *graph.Error:
				lg, s, err = nil, nil, e
			case *Error:
				lg, s, err = nil, nil, e
			default:
				panic(r)
			}
		}
	}()

	if !opt.SkipVerify {
		if err := graph.Verify(g); err != nil {
			return nil, nil, err
		}
	}
	l := lowering{
		opt:     opt,
		g:       g,
		lg:      lir.NewGraph(),
		s:       newSchedule(),
		blocks:  make(map[graph.BlockID]*lir.Block),
		scratch: g.Registers().Fork(),
	}
	l.linear(g.Start().ID())
	for _, e1 := range g.Blocks() {
		if err := l.block(e1); err != nil {
			return nil, nil, err
		}
	}
	return l.lg, l.s, nil
}

// linear returns the linear block of graph block id, creating it on first use.
func (l *lowering) linear(id graph.BlockID) *lir.Block {
	if lb, ok := l.blocks[id]; ok {
		return lb
	}
	lb := l.lg.NewBlock(l.g.Block(id).Label())
	l.blocks[id] = lb
	return lb
}

// block schedules b and appends its instructions to the linear block of b. Copies into the inputs of the
// successors go right before the terminator, or before the compare of a branch, so the compare stays adjacent to
// the branch.
func (l *lowering) block(b *graph.Block) error {
	order, err := ScheduleBlock(l.opt, l.g, b)
	if err != nil {
		return err
	}
	l.s.add(b.ID(), order)

	t, _ := b.Terminator()
	moves, err := l.moves(b, t)
	if err != nil {
		return err
	}
	tail := 1
	if _, ok := t.(*graph.Branch); ok {
		tail = 2
	}

	lb := l.linear(b.ID())
	body, end := order[:len(order)-tail], order[len(order)-tail:]
	for _, e1 := range body {
		lb.Append(l.selectNode(b, l.g.Node(e1)))
	}
	held := make([]lir.Instruction, len(end))
	for i1, e1 := range end {
		held[i1] = l.selectNode(b, l.g.Node(e1))
	}
	if cmp, ok := held[0].(*lir.Compare); ok {
		l.preserve(lb, moves, cmp)
	}
	for _, e1 := range l.sequentialise(moves) {
		lb.Append(e1)
	}
	for _, e1 := range held {
		lb.Append(e1)
	}
	return nil
}

// preserve saves operands of cmp that are overwritten by moves, or share a hardware register with a destination, to
// scratch registers, since the copies are emitted between the operands' definitions and cmp.
func (l *lowering) preserve(lb *lir.Block, moves []move, cmp *lir.Compare) {
	saved := make(map[regfile.Register]regfile.Register)
	save := func(r regfile.Register) regfile.Register {
		if tmp, ok := saved[r]; ok {
			return tmp
		}
		for _, e1 := range moves {
			if regfile.Overlaps(e1.dst, r) {
				tmp := l.scratch.Next(r.Width())
				lb.Append(&lir.MovRegister{Target: tmp, Source: r})
				saved[r] = tmp
				return tmp
			}
		}
		return r
	}
	cmp.Lhs = save(cmp.Lhs)
	cmp.Rhs = save(cmp.Rhs)
}

// selectNode returns the linear instruction implementing node n of block b.
func (l *lowering) selectNode(b *graph.Block, n graph.Node) lir.Instruction {
	switch n := n.(type) {
	case *graph.Binary:
		return &lir.Binary{Op: n.Op(), Target: n.Target(), Lhs: l.reg(b, n.Lhs()), Rhs: l.reg(b, n.Rhs())}
	case *graph.Compare:
		return &lir.Compare{Lhs: l.reg(b, n.Lhs()), Rhs: l.reg(b, n.Rhs())}
	case *graph.MovImmediate:
		return &lir.MovImmediate{Target: n.Target(), Value: n.Value()}
	case *graph.MovRegister:
		return &lir.MovRegister{Target: n.Target(), Source: l.reg(b, n.Source())}
	case *graph.MovSignExtend:
		return &lir.MovSignExtend{Target: n.Target(), Source: l.reg(b, n.Input())}
	case *graph.Load:
		return &lir.Load{Target: n.Target(), Addr: l.reg(b, n.Addr())}
	case *graph.Store:
		return &lir.Store{Addr: l.reg(b, n.Addr()), Value: l.reg(b, n.Value())}
	case *graph.MethodCall:
		ins := &lir.MethodCall{Callee: n.Callee().Name}
		if !n.Callee().Void {
			ins.Target = n.Target()
		}
		for _, e1 := range n.Args() {
			ins.Args = append(ins.Args, l.reg(b, e1))
		}
		return ins
	case *graph.AllocCall:
		return &lir.AllocCall{Target: n.Target(), Count: l.reg(b, n.Count()), Size: l.reg(b, n.Size())}
	case *graph.Div:
		return &lir.Div{Kind: n.Kind(), Target: n.Target(), Dividend: l.reg(b, n.Dividend()), Divisor: l.reg(b, n.Divisor())}
	case *graph.Jump:
		return &lir.Jump{Dst: l.linear(l.target(b, n, n.Destination()))}
	case *graph.Branch:
		return &lir.Branch{
			Predicate: n.Predicate(),
			True:      l.linear(l.target(b, n, n.True())),
			False:     l.linear(l.target(b, n, n.False())),
		}
	case *graph.Return:
		ins := &lir.Return{}
		if n.Value() != graph.NoNode {
			ins.Value = l.reg(b, n.Value())
		}
		return ins
	default:
		panic(errorf(ErrMalformed, b, n.ID(), "%s cannot be selected", n.Mnemonic()))
	}
}

// reg returns the register holding the value of node n.
func (l *lowering) reg(b *graph.Block, n graph.NodeID) regfile.Register {
	r := l.g.Register(n)
	if r == nil {
		panic(errorf(ErrMalformed, b, n, "node does not produce a register"))
	}
	return r
}

// target returns id if it names a block of the graph.
func (l *lowering) target(b *graph.Block, t graph.Node, id graph.BlockID) graph.BlockID {
	if l.g.Block(id) == nil {
		panic(errorf(ErrMalformed, b, t.ID(), "missing control flow target"))
	}
	return id
}

// moves returns the copies passing the outputs of b to the inputs of the successors of terminator t. Outputs
// already held in the register of the corresponding input need no copy. Two copies into the same hardware register
// at different widths conflict like two copies of different values.
func (l *lowering) moves(b *graph.Block, t graph.Terminator) ([]move, error) {
	outs, _ := b.Outputs()
	var res, all []move
	for _, e1 := range t.Successors() {
		s := l.g.Block(l.target(b, t, e1))
		ins := s.Inputs()
		if len(ins) != len(outs) {
			return nil, errorf(ErrMalformed, b, t.ID(), "%d output(s) passed to %d input(s) of block %s",
				len(outs), len(ins), s.Label())
		}
		for i1, e2 := range outs {
			m := move{dst: l.reg(s, ins[i1]), src: l.reg(b, e2)}
			dup := false
			for _, e3 := range all {
				if !regfile.Overlaps(e3.dst, m.dst) {
					continue
				}
				if e3.dst != m.dst || e3.src != m.src {
					return nil, errorf(ErrMalformed, b, t.ID(), "successors expect different values in %s", m.dst)
				}
				dup = true
			}
			if dup {
				continue
			}
			all = append(all, m)
			if m.dst != m.src {
				res = append(res, m)
			}
		}
	}
	return res, nil
}

// sequentialise orders the parallel copies of moves such that no register is overwritten before every copy
// reading it, or reading another width of the same hardware register, was emitted. Cycles are broken through
// scratch registers.
func (l *lowering) sequentialise(moves []move) []lir.Instruction {
	pending := append([]move{}, moves...)
	var res []lir.Instruction
	for len(pending) > 0 {
		free := -1
		for i1, e1 := range pending {
			if !readBy(pending, e1.dst, i1) {
				free = i1
				break
			}
		}
		if free >= 0 {
			m := pending[free]
			res = append(res, &lir.MovRegister{Target: m.dst, Source: m.src})
			pending = append(pending[:free], pending[free+1:]...)
			continue
		}

		// Every destination is still read by another copy.
		src := pending[0].src
		tmp := l.scratch.Next(src.Width())
		res = append(res, &lir.MovRegister{Target: tmp, Source: src})
		for i1 := range pending {
			if pending[i1].src == src {
				pending[i1].src = tmp
			}
		}
	}
	return res
}

// readBy returns true if a move other than moves[skip] reads a register overlapping r.
func readBy(moves []move, r regfile.Register, skip int) bool {
	for i1, e1 := range moves {
		if i1 != skip && regfile.Overlaps(r, e1.src) {
			return true
		}
	}
	return false
}
