package graph

import (
	"github.com/oleiade/lane"

	"mjc/src/backend/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// verifier holds the state of one Verify invocation.
type verifier struct {
	g       *Graph
	visited []bool      // Nodes already checked, indexed by NodeID.
	queued  []bool      // Blocks already pushed to the work stack, indexed by BlockID.
	work    *lane.Stack // Blocks left to check.
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

// Verify checks the structural invariants of every block reachable from the start block of g. The walk starts at
// each block's terminator and outputs and follows predecessor edges, visiting every node at most once. The first
// violation found is returned as an *Error.
func Verify(g *Graph) error {
	v := verifier{
		g:       g,
		visited: make([]bool, len(g.nodes)),
		queued:  make([]bool, len(g.blocks)),
		work:    lane.NewStack(),
	}
	v.push(g.start)
	for !v.work.Empty() {
		if err := v.block(v.work.Pop().(*Block)); err != nil {
			return err
		}
	}
	return nil
}

// push queues block id for verification unless it was queued before.
func (v *verifier) push(id BlockID) {
	if !v.queued[id] {
		v.queued[id] = true
		v.work.Push(v.g.blocks[id])
	}
}

// block verifies b and queues its control flow targets.
func (v *verifier) block(b *Block) error {
	if !b.sealed {
		return newError(ErrNotSealed, b, NoNode, "reachable block is not sealed")
	}
	for _, e1 := range b.outputs {
		if err := v.output(b, e1); err != nil {
			return err
		}
	}
	if err := v.node(b, b.term); err != nil {
		return err
	}
	t := v.g.nodes[b.term].(Terminator)
	for _, e1 := range t.Successors() {
		s := v.g.Block(e1)
		if s == nil {
			return newError(ErrMissingTarget, b, b.term, "%s without target", t.Mnemonic())
		}
		if len(b.outputs) != len(s.inputs) {
			return newError(ErrArityMismatch, b, b.term, "%d outputs, successor %s expects %d inputs",
				len(b.outputs), s.label, len(s.inputs))
		}
		for i1, e2 := range b.outputs {
			if v.g.Register(e2).Width() != v.g.Register(s.inputs[i1]).Width() {
				return newError(ErrWidthMismatch, b, e2, "output %d does not match input %d of %s", i1, i1, s.label)
			}
		}
		v.push(e1)
	}
	return nil
}

// output verifies that output n of b exists, belongs to b and produces a register.
func (v *verifier) output(b *Block, n NodeID) error {
	node := v.g.Node(n)
	if node == nil {
		return newError(ErrDanglingPredecessor, b, n, "output does not exist")
	}
	if node.Block() != b.id {
		return newError(ErrCrossBlock, b, n, "output belongs to block %s", v.label(node.Block()))
	}
	if _, ok := node.(Producer); !ok {
		return newError(ErrMalformed, b, n, "output %s produces no register", node.Mnemonic())
	}
	return v.node(b, n)
}

// node verifies node n of block b and, recursively, its predecessors.
func (v *verifier) node(b *Block, n NodeID) error {
	if v.visited[n] {
		return nil
	}
	v.visited[n] = true
	node := v.g.nodes[n]
	for _, e1 := range node.Preds() {
		p := v.g.Node(e1)
		if p == nil {
			return newError(ErrDanglingPredecessor, b, n, "%s has absent predecessor %d", node.Mnemonic(), e1)
		}
		if p.Block() != node.Block() {
			return newError(ErrCrossBlock, b, n, "%s depends on node %d of block %s",
				node.Mnemonic(), e1, v.label(p.Block()))
		}
		if _, ok := p.(*Compare); ok {
			if _, ok := node.(*Branch); !ok {
				return newError(ErrMalformed, b, n, "%s uses compare %d", node.Mnemonic(), e1)
			}
		}
	}
	if err := v.shape(b, node); err != nil {
		return err
	}
	for _, e1 := range node.Preds() {
		if err := v.node(b, e1); err != nil {
			return err
		}
	}
	return nil
}

// shape verifies node specific invariants of node.
func (v *verifier) shape(b *Block, node Node) error {
	if s, ok := node.(Sequenced); ok {
		if _, ok := v.g.Node(s.Effect()).(SideEffect); !ok {
			return newError(ErrMalformed, b, node.ID(), "%s is sequenced after non side effect %d",
				node.Mnemonic(), s.Effect())
		}
	}
	if _, ok := node.(Terminator); ok && node.ID() != b.term {
		return newError(ErrMalformed, b, node.ID(), "%s is not the terminator of its block", node.Mnemonic())
	}
	switch n := node.(type) {
	case *Branch:
		if _, ok := v.g.Node(n.cmp).(*Compare); !ok {
			return newError(ErrMalformed, b, n.id, "branch on non-compare node %d", n.cmp)
		}
	case *AllocCall:
		if n.target.Width() != regfile.Bit64 {
			return newError(ErrWidthMismatch, b, n.id, "alloc call result is %s bit", n.target.Width())
		}
	case *MethodCall:
		if !n.callee.Void && n.target.Width() != n.callee.Result {
			return newError(ErrWidthMismatch, b, n.id, "call of %s: result register is %s bit",
				n.callee, n.target.Width())
		}
	}
	return nil
}

// label returns the label of block id, or ? if it does not exist.
func (v *verifier) label(id BlockID) string {
	if b := v.g.Block(id); b != nil {
		return b.label
	}
	return "?"
}
