package graph

import (
	"fmt"
	"io"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Order gives the next node of a schedule. It is implemented by schedules produced by the lowering pass.
type Order interface {
	Next(n NodeID) (NodeID, bool)
}

// labeledPred is a predecessor edge annotated for display.
type labeledPred struct {
	n     NodeID
	label string
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

// WriteDot writes the blocks of g reachable from its start block as a graphviz digraph to w. Every block is drawn
// as a cluster. Data edges point from a node to its predecessors; control flow edges are red. If order is not
// <nil> the schedule is drawn as dashed purple edges.
func WriteDot(w io.Writer, g *Graph, order Order) error {
	sb := strings.Builder{}
	var edges []string
	sb.WriteString("digraph {\n\trankdir=\"BT\"\n\tcompound=true\n")
	for _, e1 := range g.Blocks() {
		fmt.Fprintf(&sb, "\tsubgraph cluster%s {\n\t\tlabel=\"%s\"\n", e1.label, e1.label)
		outputs := make(map[NodeID]bool, len(e1.outputs))
		for _, e2 := range e1.outputs {
			outputs[e2] = true
		}
		for _, e2 := range e1.nodes {
			n := g.nodes[e2]
			fmt.Fprintf(&sb, "\t\t%d[label=\"%s\t#%d\", shape=%s, color=%s]\n",
				e2, dotLabel(n), e2, dotShape(n, outputs[e2]), dotColor(n))
			for _, e3 := range dotPreds(n) {
				edges = append(edges, fmt.Sprintf("\t%d -> %d [label=\"%s\"]", e2, e3.n, e3.label))
			}
			for _, e3 := range n.ScheduleDependencies() {
				edges = append(edges, fmt.Sprintf("\t%d -> %d [style=dotted]", e2, e3))
			}
			if order != nil {
				if next, ok := order.Next(e2); ok {
					edges = append(edges, fmt.Sprintf("\t%d -> %d [color=purple, style=dashed, constraint=false]",
						e2, next))
				}
			}
		}
		sb.WriteString("\t}\n")
		if !e1.sealed {
			continue
		}
		t := g.nodes[e1.term].(Terminator)
		for _, e2 := range t.Successors() {
			s := g.Block(e2)
			if s == nil {
				continue
			}
			label := ""
			if br, ok := t.(*Branch); ok {
				label = "false"
				if br.ifTrue == e2 {
					label = "true"
				}
			}
			edges = append(edges, fmt.Sprintf("\t%d -> %d [ltail=cluster%s, color=red, dir=back, headlabel=\"%s\"]",
				s.mem, e1.term, s.label, label))
		}
	}
	for _, e1 := range edges {
		sb.WriteString(e1)
		sb.WriteRune('\n')
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// dotLabel returns the display label of node n.
func dotLabel(n Node) string {
	var s string
	switch v := n.(type) {
	case *MovImmediate:
		s = fmt.Sprintf("%s %#x", v.Mnemonic(), v.value)
	case *MethodCall:
		s = fmt.Sprintf("%s %s", v.Mnemonic(), v.callee.Name)
	case *Input:
		return v.target.Name()
	default:
		s = n.Mnemonic()
	}
	if p, ok := n.(Producer); ok {
		return fmt.Sprintf("%s <- %s", p.Target().Name(), s)
	}
	return s
}

// dotShape returns the node shape: hexagons for block inputs, ellipses for outputs and boxes otherwise.
func dotShape(n Node, output bool) string {
	switch n.(type) {
	case *Input, *MemoryInput:
		return "hexagon"
	}
	if output {
		return "ellipse"
	}
	return "box"
}

// dotColor returns the node color.
func dotColor(n Node) string {
	switch n.(type) {
	case Terminator:
		return "red"
	case SideEffect:
		return "cyan"
	case *MovImmediate:
		return "orange"
	default:
		return "black"
	}
}

// dotPreds returns the predecessors of n labeled by their role.
func dotPreds(n Node) []labeledPred {
	switch v := n.(type) {
	case *Binary:
		return []labeledPred{{v.lhs, "lhs"}, {v.rhs, "rhs"}}
	case *Compare:
		return []labeledPred{{v.lhs, "lhs"}, {v.rhs, "rhs"}}
	case *MovRegister:
		return []labeledPred{{v.source, ""}}
	case *MovSignExtend:
		return []labeledPred{{v.input, ""}}
	case *Load:
		return []labeledPred{{v.effect, "mem"}, {v.addr, ""}}
	case *Store:
		return []labeledPred{{v.effect, "mem"}, {v.value, "val"}, {v.addr, ""}}
	case *MethodCall:
		res := []labeledPred{{v.effect, "mem"}}
		for i1, e1 := range v.args {
			res = append(res, labeledPred{e1, fmt.Sprintf("a%d", i1)})
		}
		return res
	case *AllocCall:
		return []labeledPred{{v.effect, "mem"}, {v.count, "count"}, {v.size, "size"}}
	case *Div:
		return []labeledPred{{v.effect, "mem"}, {v.dividend, "lhs"}, {v.divisor, "rhs"}}
	case *Jump:
		return []labeledPred{{v.effect, "mem"}}
	case *Branch:
		return []labeledPred{{v.effect, "mem"}, {v.cmp, ""}}
	case *Return:
		if v.value == NoNode {
			return []labeledPred{{v.effect, "mem"}}
		}
		return []labeledPred{{v.effect, "mem"}, {v.value, ""}}
	default:
		return nil
	}
}
