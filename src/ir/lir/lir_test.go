package lir

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"rsc.io/diff"

	"mjc/src/backend/regfile"
	"mjc/src/ir/types"
)

// diamond builds
//
//	BB0: v1 <- 1; v2 <- 2; cmp v1, v2; bg BB1, BB2
//	BB1: %ebx <- v1; jmp BB3
//	BB2: %ebx <- v2; jmp BB3
//	BB3: ret %ebx
func diamond() (*Graph, []regfile.Register) {
	gen := regfile.NewGenerator()
	v1, v2 := gen.Next(regfile.Bit32), gen.Next(regfile.Bit32)
	ebx := regfile.NewHardware(regfile.B, regfile.Bit32)
	g := NewGraph()
	b0, b1, b2, b3 := g.NewBlock("BB0"), g.NewBlock("BB1"), g.NewBlock("BB2"), g.NewBlock("BB3")
	b0.Append(&MovImmediate{Target: v1, Value: 1})
	b0.Append(&MovImmediate{Target: v2, Value: 2})
	b0.Append(&Compare{Lhs: v1, Rhs: v2})
	b0.Append(&Branch{Predicate: types.Greater, True: b1, False: b2})
	b1.Append(&MovRegister{Target: ebx, Source: v1})
	b1.Append(&Jump{Dst: b3})
	b2.Append(&MovRegister{Target: ebx, Source: v2})
	b2.Append(&Jump{Dst: b3})
	b3.Append(&Return{Value: ebx})
	return g, []regfile.Register{v1, v2, ebx}
}

func TestRegisters(t *testing.T) {
	gen := regfile.NewGenerator()
	a, b, c := gen.Next(regfile.Bit64), gen.Next(regfile.Bit64), gen.Next(regfile.Bit64)
	blk := &Block{label: "BB9"}
	tests := []struct {
		ins      Instruction
		mnemonic string
		reads    []regfile.Register
		write    regfile.Register
	}{
		{&Binary{Op: types.Sub, Target: c, Lhs: a, Rhs: b}, "sub", []regfile.Register{a, b}, c},
		{&Compare{Lhs: a, Rhs: b}, "cmp", []regfile.Register{a, b}, nil},
		{&MovImmediate{Target: a, Value: -1}, "mov-imm", nil, a},
		{&MovRegister{Target: b, Source: a}, "mov-reg", []regfile.Register{a}, b},
		{&MovSignExtend{Target: b, Source: a}, "mov-sx", []regfile.Register{a}, b},
		{&Load{Target: b, Addr: a}, "mov-load", []regfile.Register{a}, b},
		{&Store{Addr: a, Value: b}, "mov-store", []regfile.Register{a, b}, nil},
		{&MethodCall{Callee: "f", Target: c, Args: []regfile.Register{a, b}}, "call", []regfile.Register{a, b}, c},
		{&MethodCall{Callee: "g", Args: []regfile.Register{a}}, "call", []regfile.Register{a}, nil},
		{&AllocCall{Target: c, Count: a, Size: b}, "call <alloc>", []regfile.Register{a, b}, c},
		{&Div{Kind: types.Remainder, Target: c, Dividend: a, Divisor: b}, "div (mod)", []regfile.Register{a, b}, c},
		{&Jump{Dst: blk}, "jmp", nil, nil},
		{&Branch{Predicate: types.LessEqual, True: blk, False: blk}, "ble", nil, nil},
		{&Return{Value: a}, "ret", []regfile.Register{a}, nil},
		{&Return{}, "ret", nil, nil},
	}
	for _, test := range tests {
		if got := test.ins.Mnemonic(); got != test.mnemonic {
			t.Errorf("%s: mnemonic %s, want %s", test.ins, got, test.mnemonic)
		}
		if diff := cmp.Diff(test.reads, test.ins.ReadRegisters(), cmp.Comparer(sameRegister), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s: ReadRegisters (-want, +got)\n%s", test.ins, diff)
		}
		w, ok := test.ins.WrittenRegister()
		if ok != (test.write != nil) || w != test.write {
			t.Errorf("%s: WrittenRegister %v, %t, want %v", test.ins, w, ok, test.write)
		}
	}
}

// sameRegister compares registers by identity.
func sameRegister(a, b regfile.Register) bool {
	return a == b
}

func TestString(t *testing.T) {
	g, _ := diamond()
	want := strings.Join([]string{
		"BB0:",
		"\tv1 <- mov-imm 0x1",
		"\tv2 <- mov-imm 0x2",
		"\tcmp v1, v2",
		"\tbg BB1, BB2",
		"",
		"BB1:",
		"\t%ebx <- mov-reg v1",
		"\tjmp BB3",
		"",
		"BB2:",
		"\t%ebx <- mov-reg v2",
		"\tjmp BB3",
		"",
		"BB3:",
		"\tret %ebx",
		"",
	}, "\n")
	if got := g.String(); got != want {
		t.Fatalf("String:\n%s", diff.Format(got, want))
	}
}

func TestAppendAfterTerminator(t *testing.T) {
	g, _ := diamond()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	g.Start().Append(&Return{})
}

func TestReversePostorder(t *testing.T) {
	g := NewGraph()
	b0, head, body, exit := g.NewBlock("BB0"), g.NewBlock("BB1"), g.NewBlock("BB2"), g.NewBlock("BB3")
	unreachable := g.NewBlock("BB4")
	gen := regfile.NewGenerator()
	v := gen.Next(regfile.Bit32)
	b0.Append(&Jump{Dst: head})
	head.Append(&Compare{Lhs: v, Rhs: v})
	head.Append(&Branch{Predicate: types.Less, True: body, False: exit})
	body.Append(&Jump{Dst: head})
	exit.Append(&Return{})
	unreachable.Append(&Return{})

	var got []string
	for _, e1 := range g.ReversePostorder() {
		got = append(got, e1.Label())
	}
	if diff := cmp.Diff([]string{"BB0", "BB1", "BB2", "BB3"}, got); diff != "" {
		t.Fatalf("ReversePostorder: (-want, +got)\n%s", diff)
	}

	idx := StartIndices(g.ReversePostorder())
	want := map[string]int{"BB0": 0, "BB1": 1, "BB2": 3, "BB3": 4}
	for b, i := range idx {
		if want[b.Label()] != i {
			t.Errorf("StartIndices: %s starts at %d, want %d", b.Label(), i, want[b.Label()])
		}
	}
}

func TestLiveness(t *testing.T) {
	g, r := diamond()
	v1, v2, ebx := r[0], r[1], r[2]
	l := CalcLiveness(g)
	blocks := g.Blocks()
	opt := cmp.Options{cmp.Comparer(sameRegister), cmpopts.EquateEmpty()}

	tests := []struct {
		name string
		got  []regfile.Register
		want []regfile.Register
	}{
		{"in BB0", l.LiveIn(blocks[0]), []regfile.Register{}},
		{"out BB0", l.LiveOut(blocks[0]), []regfile.Register{v1, v2}},
		{"after BB0[0]", l.LiveAfter(blocks[0], 0), []regfile.Register{v1}},
		{"after BB0[1]", l.LiveAfter(blocks[0], 1), []regfile.Register{v1, v2}},
		{"in BB1", l.LiveIn(blocks[1]), []regfile.Register{v1}},
		{"in BB2", l.LiveIn(blocks[2]), []regfile.Register{v2}},
		{"after BB1[0]", l.LiveAfter(blocks[1], 0), []regfile.Register{ebx}},
		{"in BB3", l.LiveIn(blocks[3]), []regfile.Register{ebx}},
		{"after BB3[0]", l.LiveAfter(blocks[3], 0), []regfile.Register{}},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, test.got, opt); diff != "" {
			t.Errorf("%s: (-want, +got)\n%s", test.name, diff)
		}
	}
}

func TestLivenessLoop(t *testing.T) {
	gen := regfile.NewGenerator()
	v1, v2, v3 := gen.Next(regfile.Bit32), gen.Next(regfile.Bit32), gen.Next(regfile.Bit32)
	ebx := regfile.NewHardware(regfile.B, regfile.Bit32)
	g := NewGraph()
	b0, head, body, exit := g.NewBlock("BB0"), g.NewBlock("BB1"), g.NewBlock("BB2"), g.NewBlock("BB3")
	b0.Append(&MovImmediate{Target: v1})
	b0.Append(&MovRegister{Target: ebx, Source: v1})
	b0.Append(&Jump{Dst: head})
	head.Append(&MovImmediate{Target: v2, Value: 10})
	head.Append(&Compare{Lhs: ebx, Rhs: v2})
	head.Append(&Branch{Predicate: types.Less, True: body, False: exit})
	body.Append(&MovImmediate{Target: v3, Value: 1})
	body.Append(&Binary{Op: types.Add, Target: ebx, Lhs: ebx, Rhs: v3})
	body.Append(&Jump{Dst: head})
	exit.Append(&Return{Value: ebx})

	l := CalcLiveness(g)
	opt := cmp.Options{cmp.Comparer(sameRegister), cmpopts.EquateEmpty()}
	for _, e1 := range []*Block{head, body, exit} {
		if diff := cmp.Diff([]regfile.Register{ebx}, l.LiveIn(e1), opt); diff != "" {
			t.Errorf("in %s: (-want, +got)\n%s", e1.Label(), diff)
		}
	}
	if diff := cmp.Diff([]regfile.Register{ebx}, l.LiveOut(body), opt); diff != "" {
		t.Errorf("out %s: (-want, +got)\n%s", body.Label(), diff)
	}
	if diff := cmp.Diff([]regfile.Register{}, l.LiveIn(b0), opt); diff != "" {
		t.Errorf("in %s: (-want, +got)\n%s", b0.Label(), diff)
	}
	if s := l.String(g); !strings.Contains(s, "\tv3 <- mov-imm 0x1\tLive: {v3, %ebx}\n") {
		t.Errorf("unexpected liveness dump:\n%s", s)
	}
}

func TestLivenessAliases(t *testing.T) {
	rax := regfile.NewHardware(regfile.A, regfile.Bit64)
	eax, al := rax.ForWidth(regfile.Bit32), rax.ForWidth(regfile.Bit8)
	opt := cmp.Options{cmp.Comparer(sameRegister), cmpopts.EquateEmpty()}

	// A write of %al keeps the rest of %rax.
	g := NewGraph()
	b := g.NewBlock("BB0")
	b.Append(&MovImmediate{Target: rax, Value: 1})
	b.Append(&MovImmediate{Target: al, Value: 2})
	b.Append(&Return{Value: rax})
	l := CalcLiveness(g)
	if diff := cmp.Diff([]regfile.Register{rax}, l.LiveAfter(b, 0), opt); diff != "" {
		t.Errorf("after %%rax <- 1: (-want, +got)\n%s", diff)
	}
	if diff := cmp.Diff([]regfile.Register{}, l.LiveIn(b), opt); diff != "" {
		t.Errorf("in %s: (-want, +got)\n%s", b.Label(), diff)
	}

	// A write of %eax zeroes the upper half of %rax.
	g = NewGraph()
	b = g.NewBlock("BB0")
	b.Append(&MovImmediate{Target: eax, Value: 3})
	b.Append(&Return{Value: rax})
	l = CalcLiveness(g)
	if diff := cmp.Diff([]regfile.Register{}, l.LiveIn(b), opt); diff != "" {
		t.Errorf("in %s: (-want, +got)\n%s", b.Label(), diff)
	}
}

func TestWriteDot(t *testing.T) {
	g, _ := diamond()
	sb := strings.Builder{}
	if err := WriteDot(&sb, g); err != nil {
		t.Fatalf("WriteDot: %v", err)
	}
	got := sb.String()
	for _, e1 := range []string{
		"\tBB0 [label=\"BB0:\\l  v1 <- mov-imm 0x1\\l  v2 <- mov-imm 0x2\\l  cmp v1, v2\\l  bg BB1, BB2\\l\", color=blue]\n",
		"\tBB0 -> BB1 [label=\"true\", color=red]\n",
		"\tBB0 -> BB2 [label=\"false\", color=red]\n",
		"\tBB1 -> BB3 [label=\"\", color=red]\n",
		"\tBB2 -> BB3 [color=purple, style=dashed, constraint=false]\n",
	} {
		if !strings.Contains(got, e1) {
			t.Errorf("expected dump to contain %q, got:\n%s", e1, got)
		}
	}
}
