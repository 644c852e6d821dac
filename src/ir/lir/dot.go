package lir

import (
	"fmt"
	"io"
	"strings"
)

// WriteDot writes the reachable blocks of g as a graphviz digraph to w. Every block is one box listing its
// instructions; control flow edges are labeled true and false for branches. The layout order of the blocks is drawn
// as dashed purple edges.
func WriteDot(w io.Writer, g *Graph) error {
	sb := strings.Builder{}
	sb.WriteString("digraph {\n\tnode [shape=box, fontname=\"monospace\"]\n")
	order := g.ReversePostorder()
	for _, e1 := range order {
		lines := make([]string, 0, len(e1.instructions)+1)
		lines = append(lines, e1.label+":")
		for _, e2 := range e1.instructions {
			lines = append(lines, "  "+dotEscape(e2.String()))
		}
		color := "black"
		if e1 == g.start {
			color = "blue"
		}
		fmt.Fprintf(&sb, "\t%s [label=\"%s\\l\", color=%s]\n", e1.label, strings.Join(lines, "\\l"), color)
	}
	for _, e1 := range order {
		t := e1.Terminator()
		if t == nil {
			continue
		}
		br, isBranch := t.(*Branch)
		for _, e2 := range t.Targets() {
			if e2 == nil {
				continue
			}
			label := ""
			if isBranch {
				label = "false"
				if e2 == br.True {
					label = "true"
				}
			}
			fmt.Fprintf(&sb, "\t%s -> %s [label=\"%s\", color=red]\n", e1.label, e2.label, label)
		}
	}
	for i1 := 1; i1 < len(order); i1++ {
		fmt.Fprintf(&sb, "\t%s -> %s [color=purple, style=dashed, constraint=false]\n",
			order[i1-1].label, order[i1].label)
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// dotEscape escapes s for use in a quoted graphviz label.
func dotEscape(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
