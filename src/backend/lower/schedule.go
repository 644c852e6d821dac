package lower

import (
	"sort"

	"github.com/oleiade/lane"

	"mjc/src/ir/graph"
	"mjc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Schedule records the order chosen for the nodes of every lowered block. Input and memory input nodes are never
// part of a schedule.
type Schedule struct {
	blocks map[graph.BlockID][]graph.NodeID // Scheduled nodes per block.
	next   map[graph.NodeID]graph.NodeID    // Node scheduled right after a node of the same block.
}

// blockDAG is the dependency graph of the materialised nodes of one block.
type blockDAG struct {
	g     *graph.Graph
	b     *graph.Block
	roots []graph.NodeID                  // Outputs followed by the terminator.
	nodes []graph.NodeID                  // Materialised nodes in depth first postorder.
	preds map[graph.NodeID][]graph.NodeID // Distinct materialised predecessors of every node.
	users map[graph.NodeID][]graph.NodeID // Inverse of preds.
	term  graph.NodeID                    // Terminator, always scheduled last.
	cmp   graph.NodeID                    // Compare read by a branch terminator, or graph.NoNode.
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

func newSchedule() *Schedule {
	return &Schedule{
		blocks: make(map[graph.BlockID][]graph.NodeID),
		next:   make(map[graph.NodeID]graph.NodeID),
	}
}

// Order returns the scheduled nodes of block b, or <nil> if b was not lowered.
func (s *Schedule) Order(b graph.BlockID) []graph.NodeID {
	return s.blocks[b]
}

// Next returns the node scheduled right after n. It returns false for the last node of a block and for nodes that
// were not scheduled.
func (s *Schedule) Next(n graph.NodeID) (graph.NodeID, bool) {
	m, ok := s.next[n]
	return m, ok
}

func (s *Schedule) add(b graph.BlockID, order []graph.NodeID) {
	s.blocks[b] = order
	for i1 := 1; i1 < len(order); i1++ {
		s.next[order[i1-1]] = order[i1]
	}
}

// ScheduleBlock returns a total order of the nodes reachable from the outputs and the terminator of the sealed
// block b. Every node follows its predecessors, so the side effect chain keeps its order. Input and memory input
// nodes are left out. Among ready nodes the one created first is picked, or the one that was ranked first by
// Ershov numbers if opt.Scheduler is util.SchedulerErshov. The terminator always comes last, immediately
// preceded by the compare of a branch.
func ScheduleBlock(opt util.Options, g *graph.Graph, b *graph.Block) ([]graph.NodeID, error) {
	d, err := newBlockDAG(g, b)
	if err != nil {
		return nil, err
	}
	var prio map[graph.NodeID]int
	if opt.Scheduler == util.SchedulerErshov {
		prio = d.ershovPriorities()
	} else {
		prio = d.creationPriorities()
	}
	return d.listSchedule(prio)
}

func newBlockDAG(g *graph.Graph, b *graph.Block) (*blockDAG, error) {
	t, err := b.Terminator()
	if err != nil {
		return nil, errorf(ErrMalformed, b, graph.NoNode, "%v", err)
	}
	outs, _ := b.Outputs()
	d := &blockDAG{
		g:     g,
		b:     b,
		roots: append(append([]graph.NodeID{}, outs...), t.ID()),
		preds: make(map[graph.NodeID][]graph.NodeID),
		users: make(map[graph.NodeID][]graph.NodeID),
		term:  t.ID(),
		cmp:   graph.NoNode,
	}
	if br, ok := t.(*graph.Branch); ok {
		d.cmp = br.Compare()
	}
	for _, e1 := range d.roots {
		if err := d.collect(e1); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// collect adds n and its transitive predecessors to the DAG.
func (d *blockDAG) collect(n graph.NodeID) error {
	if _, ok := d.preds[n]; ok {
		return nil
	}
	node := d.g.Node(n)
	if node == nil {
		return errorf(ErrMalformed, d.b, n, "dangling node reference")
	}
	if node.Block() != d.b.ID() {
		return errorf(ErrMalformed, d.b, n, "node belongs to block %s", d.g.Block(node.Block()).Label())
	}
	switch node.(type) {
	case *graph.Input, *graph.MemoryInput:
		return nil
	}

	// Mark n before descending so that cycles terminate; they are reported by listSchedule.
	d.preds[n] = nil
	var preds []graph.NodeID
	for _, e1 := range node.Preds() {
		if err := d.collect(e1); err != nil {
			return err
		}
		if _, ok := d.preds[e1]; !ok || contains(preds, e1) {
			continue
		}
		preds = append(preds, e1)
		d.users[e1] = append(d.users[e1], n)
	}
	d.preds[n] = preds
	d.nodes = append(d.nodes, n)
	return nil
}

func contains(s []graph.NodeID, n graph.NodeID) bool {
	for _, e1 := range s {
		if e1 == n {
			return true
		}
	}
	return false
}

// held returns true if n is placed at the end of the block rather than when it becomes ready.
func (d *blockDAG) held(n graph.NodeID) bool {
	return n == d.term || n == d.cmp
}

// listSchedule orders the nodes of d topologically, always picking the ready node of lowest priority.
func (d *blockDAG) listSchedule(prio map[graph.NodeID]int) ([]graph.NodeID, error) {
	indeg := make(map[graph.NodeID]int, len(d.nodes))
	ready := lane.NewPQueue(lane.MINPQ)
	for _, e1 := range d.nodes {
		indeg[e1] = len(d.preds[e1])
		if indeg[e1] == 0 && !d.held(e1) {
			ready.Push(e1, prio[e1])
		}
	}

	order := make([]graph.NodeID, 0, len(d.nodes))
	emit := func(n graph.NodeID) {
		order = append(order, n)
		for _, e1 := range d.users[n] {
			indeg[e1]--
			if indeg[e1] == 0 && !d.held(e1) {
				ready.Push(e1, prio[e1])
			}
		}
	}
	for !ready.Empty() {
		n, _ := ready.Pop()
		emit(n.(graph.NodeID))
	}
	for _, e1 := range []graph.NodeID{d.cmp, d.term} {
		if e1 == graph.NoNode {
			continue
		}
		if indeg[e1] != 0 {
			return nil, d.cycle(order)
		}
		emit(e1)
	}
	if len(order) != len(d.nodes) {
		return nil, d.cycle(order)
	}
	return order, nil
}

// cycle reports the unscheduled node with the lowest id.
func (d *blockDAG) cycle(order []graph.NodeID) error {
	done := make(map[graph.NodeID]bool, len(order))
	for _, e1 := range order {
		done[e1] = true
	}
	n := graph.NoNode
	for _, e1 := range d.nodes {
		if !done[e1] && (n == graph.NoNode || e1 < n) {
			n = e1
		}
	}
	return errorf(ErrCycle, d.b, n, "%s cannot be scheduled after all of its dependencies",
		d.g.Node(n).Mnemonic())
}

// creationPriorities prioritises nodes by creation order.
func (d *blockDAG) creationPriorities() map[graph.NodeID]int {
	prio := make(map[graph.NodeID]int, len(d.nodes))
	for _, e1 := range d.nodes {
		prio[e1] = int(e1)
	}
	return prio
}

// ershovPriorities ranks nodes by a depth first walk from the roots that descends into the predecessor with the
// highest Ershov number first, breaking ties by creation order.
func (d *blockDAG) ershovPriorities() map[graph.NodeID]int {
	num := make(map[graph.NodeID]int, len(d.nodes))
	for _, e1 := range d.nodes {
		num[e1] = ershov(num, d.preds[e1])
	}

	prio := make(map[graph.NodeID]int, len(d.nodes))
	visited := make(map[graph.NodeID]bool, len(d.nodes))
	var visit func(n graph.NodeID)
	visit = func(n graph.NodeID) {
		if _, ok := d.preds[n]; !ok || visited[n] {
			return
		}
		visited[n] = true
		preds := append([]graph.NodeID{}, d.preds[n]...)
		sort.SliceStable(preds, func(i, j int) bool {
			if num[preds[i]] != num[preds[j]] {
				return num[preds[i]] > num[preds[j]]
			}
			return preds[i] < preds[j]
		})
		for _, e1 := range preds {
			visit(e1)
		}
		prio[n] = len(prio)
	}
	for _, e1 := range d.roots {
		visit(e1)
	}
	return prio
}

// ershov returns the Ershov number of a node given its predecessors: the number of registers needed to evaluate
// it without spilling.
func ershov(num map[graph.NodeID]int, preds []graph.NodeID) int {
	if len(preds) == 0 {
		return 1
	}
	ns := make([]int, len(preds))
	for i1, e1 := range preds {
		ns[i1] = num[e1]
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ns)))
	res := 0
	for i1, e1 := range ns {
		if e1+i1 > res {
			res = e1 + i1
		}
	}
	return res
}
