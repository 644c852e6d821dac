package graph

import (
	"strings"
	"testing"

	"rsc.io/diff"
)

// mapOrder is a schedule given as a next-node map.
type mapOrder map[NodeID]NodeID

func (m mapOrder) Next(n NodeID) (NodeID, bool) {
	next, ok := m[n]
	return next, ok
}

func TestWriteDot(t *testing.T) {
	g, _ := straightGraph()
	sb := strings.Builder{}
	if err := WriteDot(&sb, g, nil); err != nil {
		t.Fatalf("WriteDot: %v", err)
	}
	want := strings.Join([]string{
		"digraph {",
		"\trankdir=\"BT\"",
		"\tcompound=true",
		"\tsubgraph clusterBB0 {",
		"\t\tlabel=\"BB0\"",
		"\t\t0[label=\"memory-input\t#0\", shape=hexagon, color=cyan]",
		"\t\t1[label=\"v1 <- mov-imm 0xa\t#1\", shape=box, color=orange]",
		"\t\t2[label=\"v2 <- mov-imm 0x14\t#2\", shape=box, color=orange]",
		"\t\t3[label=\"v3 <- add\t#3\", shape=box, color=black]",
		"\t\t4[label=\"ret\t#4\", shape=box, color=red]",
		"\t}",
		"\t3 -> 1 [label=\"lhs\"]",
		"\t3 -> 2 [label=\"rhs\"]",
		"\t4 -> 0 [label=\"mem\"]",
		"\t4 -> 3 [label=\"\"]",
		"}",
		"",
	}, "\n")
	if got := sb.String(); got != want {
		t.Fatalf("WriteDot:\n%s", diff.Format(got, want))
	}
}

func TestWriteDotSchedule(t *testing.T) {
	g := loopGraph(t)
	order := mapOrder{1: 2}
	sb := strings.Builder{}
	if err := WriteDot(&sb, g, order); err != nil {
		t.Fatalf("WriteDot: %v", err)
	}
	got := sb.String()
	for _, e1 := range []string{
		"\t1 -> 2 [color=purple, style=dashed, constraint=false]",
		"headlabel=\"true\"",
		"headlabel=\"false\"",
		"subgraph clusterBB3 {",
		"[label=\"mem\"]",
	} {
		if !strings.Contains(got, e1) {
			t.Errorf("expected dump to contain %q, got:\n%s", e1, got)
		}
	}
}
