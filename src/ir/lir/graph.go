package lir

import (
	"strings"

	"github.com/oleiade/lane"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Graph holds the linear IR of one method: its start block and every block created for it.
type Graph struct {
	start  *Block   // Entry block.
	blocks []*Block // Blocks in creation order.
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

// NewGraph returns an empty linear graph.
func NewGraph() *Graph {
	return &Graph{}
}

// NewBlock creates a new empty block with the given label. The first block created is the start block.
func (g *Graph) NewBlock(label string) *Block {
	b := &Block{label: label}
	g.blocks = append(g.blocks, b)
	if g.start == nil {
		g.start = b
	}
	return b
}

// Start returns the entry block of Graph g.
func (g *Graph) Start() *Block {
	return g.start
}

// Blocks returns every block of Graph g in creation order.
func (g *Graph) Blocks() []*Block {
	return g.blocks
}

// ReversePostorder returns the blocks reachable from the start block in reverse postorder of a depth first walk
// that visits the false target of a branch before its true target. Every block precedes its successors, except
// along loop back edges.
func (g *Graph) ReversePostorder() []*Block {
	if g.start == nil {
		return nil
	}
	post := make([]*Block, 0, len(g.blocks))
	visited := map[*Block]bool{g.start: true}
	stack := lane.NewStack()
	stack.Push(g.start)
	for !stack.Empty() {
		tail := true
		b := stack.Head().(*Block)
		succ := b.Successors()
		for i1 := len(succ) - 1; i1 >= 0; i1-- {
			if s := succ[i1]; s != nil && !visited[s] {
				tail = false
				visited[s] = true
				stack.Push(s)
				break
			}
		}
		if tail {
			post = append(post, stack.Pop().(*Block))
		}
	}
	for i1, i2 := 0, len(post)-1; i1 < i2; i1, i2 = i1+1, i2-1 {
		post[i1], post[i2] = post[i2], post[i1]
	}
	return post
}

// StartIndices returns the index of the first instruction of every block when the blocks of order are laid out
// one after another.
func StartIndices(order []*Block) map[*Block]int {
	res := make(map[*Block]int, len(order))
	i := 0
	for _, e1 := range order {
		res[e1] = i
		i += len(e1.instructions)
	}
	return res
}

// String returns the textual linear IR of every reachable block of Graph g in reverse postorder.
func (g *Graph) String() string {
	sb := strings.Builder{}
	for i1, e1 := range g.ReversePostorder() {
		if i1 > 0 {
			sb.WriteRune('\n')
		}
		sb.WriteString(e1.String())
	}
	return sb.String()
}
