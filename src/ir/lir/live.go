package lir

import (
	"fmt"
	"sort"
	"strings"

	"mjc/src/backend/regfile"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Liveness holds the registers live at block boundaries and after every instruction of a linear graph.
type Liveness struct {
	in    map[*Block]regSet   // Registers live on entry of a block.
	out   map[*Block]regSet   // Registers live on exit of a block.
	after map[*Block][]regSet // Registers live after each instruction of a block.
}

// regSet is a set of registers.
type regSet map[regfile.Register]bool

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- Globals -----
// -------------------

// ---------------------
// ----- Functions -----
// ---------------------

// CalcLiveness calculates register liveness of the blocks of g reachable from its start block. Registers read by
// an instruction are live before it, registers fully overwritten by it are dead before it unless also read. A write
// of a narrow hardware register keeps the wider registers of its group live.
func CalcLiveness(g *Graph) *Liveness {
	order := g.ReversePostorder()
	l := &Liveness{
		in:    make(map[*Block]regSet, len(order)),
		out:   make(map[*Block]regSet, len(order)),
		after: make(map[*Block][]regSet, len(order)),
	}
	for _, e1 := range order {
		l.in[e1] = regSet{}
		l.out[e1] = regSet{}
	}

	// Iterate to a fixed point, visiting blocks in postorder so most successors are up to date.
	for changed := true; changed; {
		changed = false
		for i1 := len(order) - 1; i1 >= 0; i1-- {
			b := order[i1]
			out := regSet{}
			for _, e2 := range b.Successors() {
				for r := range l.in[e2] {
					out[r] = true
				}
			}
			in := transfer(b, out, nil)
			if len(in) != len(l.in[b]) || len(out) != len(l.out[b]) {
				changed = true
			}
			l.in[b] = in
			l.out[b] = out
		}
	}

	for _, e1 := range order {
		after := make([]regSet, len(e1.instructions))
		transfer(e1, l.out[e1], after)
		l.after[e1] = after
	}
	return l
}

// transfer walks the instructions of b backwards starting from the live set out and returns the live set on entry.
// If after is not <nil>, after[i] receives the registers live after instruction i.
func transfer(b *Block, out regSet, after []regSet) regSet {
	live := make(regSet, len(out))
	for r := range out {
		live[r] = true
	}
	for i1 := len(b.instructions) - 1; i1 >= 0; i1-- {
		ins := b.instructions[i1]
		if after != nil {
			after[i1] = make(regSet, len(live))
			for r := range live {
				after[i1][r] = true
			}
		}
		if def, ok := ins.WrittenRegister(); ok {
			for r := range live {
				if regfile.Clobbers(def, r) {
					delete(live, r)
				}
			}
		}
		for _, e2 := range ins.ReadRegisters() {
			live[e2] = true
		}
	}
	return live
}

// LiveIn returns the registers live on entry of Block b, sorted.
func (l *Liveness) LiveIn(b *Block) []regfile.Register {
	return l.in[b].sorted()
}

// LiveOut returns the registers live on exit of Block b, sorted.
func (l *Liveness) LiveOut(b *Block) []regfile.Register {
	return l.out[b].sorted()
}

// LiveAfter returns the registers live after instruction i of Block b, sorted.
func (l *Liveness) LiveAfter(b *Block, i int) []regfile.Register {
	a := l.after[b]
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i].sorted()
}

// String returns every instruction of g annotated with the registers live after it.
func (l *Liveness) String(g *Graph) string {
	sb := strings.Builder{}
	for _, e1 := range g.ReversePostorder() {
		sb.WriteString(fmt.Sprintf("%s:\tLive: {%s}\n", e1.label, names(l.LiveIn(e1))))
		for i1, e2 := range e1.instructions {
			sb.WriteString(fmt.Sprintf("\t%s\tLive: {%s}\n", e2, names(l.LiveAfter(e1, i1))))
		}
	}
	return sb.String()
}

// sorted returns the registers of s, virtual registers by id first, then hardware registers by name.
func (s regSet) sorted() []regfile.Register {
	res := make([]regfile.Register, 0, len(s))
	for r := range s {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		vi, iv := res[i].(*regfile.Virtual)
		vj, jv := res[j].(*regfile.Virtual)
		switch {
		case iv && jv:
			return vi.Id() < vj.Id()
		case iv != jv:
			return iv
		default:
			return res[i].Name() < res[j].Name()
		}
	})
	return res
}

// names joins the names of rs.
func names(rs []regfile.Register) string {
	s := make([]string, len(rs))
	for i1, e1 := range rs {
		s[i1] = e1.String()
	}
	return strings.Join(s, ", ")
}
