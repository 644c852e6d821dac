// Package graph implements the graph IR: per method dependency graphs of nodes grouped into basic blocks. Values
// cross block boundaries only through the positional output/input convention, side effects are ordered by an
// explicit chain of predecessor edges.
package graph

import (
	"github.com/oleiade/lane"

	"mjc/src/backend/regfile"
	"mjc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Graph owns every node and basic block of one method. Nodes and blocks are stored in tables and referenced by
// index.
type Graph struct {
	nodes  []Node             // Node table indexed by NodeID.
	blocks []*Block           // Block table indexed by BlockID.
	start  BlockID            // Entry block.
	regs   *regfile.Generator // Virtual register generator of this graph.
	labels *util.LabelGen     // Block label generator of this graph.
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

// NewGraph returns an empty graph with an open start block.
func NewGraph() *Graph {
	g := &Graph{
		regs:   regfile.NewGenerator(),
		labels: util.NewLabelGen(util.LabelBlock),
	}
	g.start = g.NewBlock().id
	return g
}

// NewBlock creates a new open basic block.
func (g *Graph) NewBlock() *Block {
	b := &Block{
		g:     g,
		id:    BlockID(len(g.blocks)),
		label: g.labels.Next(),
		term:  NoNode,
	}
	g.blocks = append(g.blocks, b)
	b.mem = g.add(b, &MemoryInput{})
	return b
}

// Start returns the entry block of the graph.
func (g *Graph) Start() *Block {
	return g.blocks[g.start]
}

// Block returns the block with id id, or <nil> if no such block exists.
func (g *Graph) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(g.blocks) {
		return nil
	}
	return g.blocks[id]
}

// Node returns the node with id id, or <nil> if no such node exists.
func (g *Graph) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Registers returns the virtual register generator of the graph.
func (g *Graph) Registers() *regfile.Generator {
	return g.regs
}

// Register returns the register written by node id, or <nil> if id does not produce a register.
func (g *Graph) Register(id NodeID) regfile.Register {
	if p, ok := g.Node(id).(Producer); ok {
		return p.Target()
	}
	return nil
}

// Blocks returns the blocks reachable from the start block in breadth first order. Successors are visited in
// terminator order; the true target of a branch precedes the false target. Missing targets are skipped.
func (g *Graph) Blocks() []*Block {
	res := make([]*Block, 0, len(g.blocks))
	seen := make([]bool, len(g.blocks))
	q := lane.NewQueue()
	q.Enqueue(g.Start())
	seen[g.start] = true
	for !q.Empty() {
		b := q.Dequeue().(*Block)
		res = append(res, b)
		for _, e1 := range b.Successors() {
			if s := g.Block(e1); s != nil && !seen[e1] {
				seen[e1] = true
				q.Enqueue(s)
			}
		}
	}
	return res
}

// add registers node n, owned by block b, in the node table and returns its id.
func (g *Graph) add(b *Block, n Node) NodeID {
	id := NodeID(len(g.nodes))
	*n.fields() = base{id: id, block: b.id}
	g.nodes = append(g.nodes, n)
	b.nodes = append(b.nodes, id)
	return id
}
