package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mjc/src/backend/regfile"
	"mjc/src/ir/types"
)

// expectPanic runs f and returns the *Error it panicked with.
func expectPanic(t *testing.T, f func()) *Error {
	t.Helper()
	var got *Error
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected panic, got none")
			}
			e, ok := r.(*Error)
			if !ok {
				t.Fatalf("expected panic with *Error, got %T: %v", r, r)
			}
			got = e
		}()
		f()
	}()
	return got
}

func TestNewGraph(t *testing.T) {
	g := NewGraph()
	s := g.Start()
	if s.Label() != "BB0" {
		t.Fatalf("expected start block BB0, got %s", s.Label())
	}
	if _, ok := g.Node(s.Memory()).(*MemoryInput); !ok {
		t.Fatalf("expected memory input, got %T", g.Node(s.Memory()))
	}
	if b := g.NewBlock(); b.Label() != "BB1" || b.ID() != 1 {
		t.Fatalf("expected BB1 with id 1, got %s with id %d", b.Label(), b.ID())
	}

	// Register ids are scoped to one graph.
	h := NewGraph()
	n1 := s.NewMovImmediate(1, regfile.Bit32)
	n2 := h.Start().NewMovImmediate(1, regfile.Bit32)
	if g.Register(n1).Name() != "v1" || h.Register(n2).Name() != "v1" {
		t.Fatalf("expected v1 in both graphs, got %s and %s", g.Register(n1), h.Register(n2))
	}
}

func TestInputAliases(t *testing.T) {
	g := NewGraph()
	b := g.NewBlock()
	if _, err := b.AddInput(regfile.NewHardware(regfile.A, regfile.Bit32)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddInput(regfile.NewHardware(regfile.A, regfile.Bit64)); !errors.Is(err, ErrBadOperand) {
		t.Fatalf("AddInput %%rax after %%eax: got %v, want %v", err, ErrBadOperand)
	}
	if _, err := b.AddInput(regfile.NewHardware(regfile.B, regfile.Bit64)); err != nil {
		t.Fatalf("AddInput %%rbx: %v", err)
	}
	if n := len(b.Inputs()); n != 2 {
		t.Fatalf("expected 2 inputs, got %d", n)
	}
}

func TestPhaseErrors(t *testing.T) {
	g := NewGraph()
	b := g.Start()
	if _, err := b.Terminator(); !errors.Is(err, ErrConstructionIncomplete) {
		t.Fatalf("Terminator on open block: got %v", err)
	}
	if _, err := b.Outputs(); !errors.Is(err, ErrConstructionIncomplete) {
		t.Fatalf("Outputs on open block: got %v", err)
	}
	ret := b.NewReturn(NoNode, b.Memory())
	if err := b.Seal(ret); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := b.Seal(ret); !errors.Is(err, ErrAlreadySealed) {
		t.Fatalf("second Seal: got %v", err)
	}
	if term, err := b.Terminator(); err != nil || term.ID() != ret {
		t.Fatalf("Terminator: got %v, %v", term, err)
	}
	e := expectPanic(t, func() { b.NewMovImmediate(1, regfile.Bit32) })
	if !errors.Is(e, ErrBlockSealed) || e.Block != "BB0" {
		t.Fatalf("expected sealed block error for BB0, got %v", e)
	}
	if _, err := b.AddInput(regfile.NewHardware(regfile.A, regfile.Bit32)); !errors.Is(err, ErrBlockSealed) {
		t.Fatalf("AddInput on sealed block: got %v", err)
	}
}

func TestSealNonTerminator(t *testing.T) {
	g := NewGraph()
	b := g.Start()
	c := b.NewMovImmediate(1, regfile.Bit32)
	if err := b.Seal(c); !errors.Is(err, ErrBadOperand) {
		t.Fatalf("expected bad operand, got %v", err)
	}
	if b.Sealed() {
		t.Fatal("failed Seal sealed the block")
	}
}

func TestPositionalContract(t *testing.T) {
	x := regfile.NewHardware(regfile.B, regfile.Bit32)

	t.Run("match", func(t *testing.T) {
		g := NewGraph()
		b1, b2 := g.Start(), g.NewBlock()
		in, err := b2.AddInput(x)
		if err != nil {
			t.Fatalf("AddInput: %v", err)
		}
		c := b1.NewMovImmediate(7, regfile.Bit32)
		if err := b1.AddOutput(c); err != nil {
			t.Fatalf("AddOutput: %v", err)
		}
		if err := b1.Seal(b1.NewJump(b2, b1.Memory())); err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if diff := cmp.Diff([]BlockID{b1.ID()}, b2.Predecessors()); diff != "" {
			t.Fatalf("Predecessors: (-want, +got)\n%s", diff)
		}
		if g.Register(in) != regfile.Register(x) {
			t.Fatalf("input bound to %s, want %s", g.Register(in), x)
		}
		if _, err := b2.AddInput(regfile.NewHardware(regfile.C, regfile.Bit32)); !errors.Is(err, ErrArityMismatch) {
			t.Fatalf("AddInput after sealed predecessor: got %v", err)
		}
	})

	t.Run("arity", func(t *testing.T) {
		g := NewGraph()
		b1, b2 := g.Start(), g.NewBlock()
		if _, err := b2.AddInput(x); err != nil {
			t.Fatalf("AddInput: %v", err)
		}
		err := b1.Seal(b1.NewJump(b2, b1.Memory()))
		if !errors.Is(err, ErrArityMismatch) {
			t.Fatalf("expected arity mismatch, got %v", err)
		}
	})

	t.Run("width", func(t *testing.T) {
		g := NewGraph()
		b1, b2 := g.Start(), g.NewBlock()
		if _, err := b2.AddInput(x); err != nil {
			t.Fatalf("AddInput: %v", err)
		}
		if err := b1.AddOutput(b1.NewMovImmediate(7, regfile.Bit64)); err != nil {
			t.Fatalf("AddOutput: %v", err)
		}
		err := b1.Seal(b1.NewJump(b2, b1.Memory()))
		var e *Error
		if !errors.As(err, &e) || e.Kind != ErrWidthMismatch || e.Block != "BB0" {
			t.Fatalf("expected width mismatch in BB0, got %v", err)
		}
	})

	t.Run("return with outputs", func(t *testing.T) {
		g := NewGraph()
		b := g.Start()
		if err := b.AddOutput(b.NewMovImmediate(7, regfile.Bit32)); err != nil {
			t.Fatalf("AddOutput: %v", err)
		}
		if err := b.Seal(b.NewReturn(NoNode, b.Memory())); !errors.Is(err, ErrArityMismatch) {
			t.Fatalf("expected arity mismatch, got %v", err)
		}
	})

	t.Run("output of another block", func(t *testing.T) {
		g := NewGraph()
		b1, b2 := g.Start(), g.NewBlock()
		c := b1.NewMovImmediate(7, regfile.Bit32)
		if err := b2.AddOutput(c); !errors.Is(err, ErrBadOperand) {
			t.Fatalf("expected bad operand, got %v", err)
		}
		if err := b1.AddOutput(b1.NewCompare(c, c)); !errors.Is(err, ErrBadOperand) {
			t.Fatalf("expected bad operand for compare output, got %v", err)
		}
	})
}

func TestWidthInference(t *testing.T) {
	g := NewGraph()
	b := g.Start()
	a := b.NewMovImmediate(1, regfile.Bit64)
	c := b.NewMovImmediate(2, regfile.Bit64)
	sum := b.NewBinary(types.Add, a, c)
	if w := g.Register(sum).Width(); w != regfile.Bit64 {
		t.Fatalf("expected 64 bit sum, got %s", w)
	}
	d := b.NewMovImmediate(3, regfile.Bit32)
	e := expectPanic(t, func() { b.NewBinary(types.Mul, a, d) })
	if !errors.Is(e, ErrWidthMismatch) {
		t.Fatalf("expected width mismatch, got %v", e)
	}
	e = expectPanic(t, func() { b.NewLoad(d, b.Memory(), regfile.Bit32) })
	if !errors.Is(e, ErrWidthMismatch) {
		t.Fatalf("expected width mismatch for 32 bit address, got %v", e)
	}
	sx := b.NewMovSignExtend(d, regfile.Bit64)
	if w := g.Register(sx).Width(); w != regfile.Bit64 {
		t.Fatalf("expected 64 bit sign extension, got %s", w)
	}
	e = expectPanic(t, func() { b.NewMovSignExtend(a, regfile.Bit32) })
	if !errors.Is(e, ErrWidthMismatch) {
		t.Fatalf("expected width mismatch for narrowing mov-sx, got %v", e)
	}
	alloc := b.NewAllocCall(d, d, b.Memory())
	if w := g.Register(alloc).Width(); w != regfile.Bit64 {
		t.Fatalf("expected 64 bit alloc result, got %s", w)
	}
}

func TestMethodCall(t *testing.T) {
	g := NewGraph()
	b := g.Start()
	m := &Method{Name: "_Foo_bar", Params: []regfile.Width{regfile.Bit32, regfile.Bit64}, Result: regfile.Bit32}
	a := b.NewMovImmediate(1, regfile.Bit32)
	c := b.NewMovImmediate(2, regfile.Bit64)
	call := b.NewMethodCall(m, []NodeID{a, c}, b.Memory())
	n := g.Node(call).(*MethodCall)
	if diff := cmp.Diff([]NodeID{a, c, b.Memory()}, n.Preds()); diff != "" {
		t.Fatalf("Preds: (-want, +got)\n%s", diff)
	}
	e := expectPanic(t, func() { b.NewMethodCall(m, []NodeID{a}, call) })
	if !errors.Is(e, ErrArityMismatch) {
		t.Fatalf("expected arity mismatch, got %v", e)
	}
	e = expectPanic(t, func() { b.NewMethodCall(m, []NodeID{c, a}, call) })
	if !errors.Is(e, ErrWidthMismatch) {
		t.Fatalf("expected width mismatch, got %v", e)
	}
	e = expectPanic(t, func() { b.NewMethodCall(m, []NodeID{a, c}, a) })
	if !errors.Is(e, ErrBadOperand) {
		t.Fatalf("expected bad operand for non side effect, got %v", e)
	}
}

func TestScheduleDependency(t *testing.T) {
	g := NewGraph()
	b := g.Start()
	a := b.NewMovImmediate(1, regfile.Bit32)
	c := b.NewMovImmediate(2, regfile.Bit32)
	b.AddScheduleDependency(a, c)
	if diff := cmp.Diff([]NodeID{c}, g.Node(a).Preds()); diff != "" {
		t.Fatalf("Preds: (-want, +got)\n%s", diff)
	}
	e := expectPanic(t, func() { b.AddScheduleDependency(b.Memory(), a) })
	if !errors.Is(e, ErrBadOperand) {
		t.Fatalf("expected bad operand, got %v", e)
	}
}

func TestBlocksOrder(t *testing.T) {
	g := NewGraph()
	b0 := g.Start()
	thn, els, join := g.NewBlock(), g.NewBlock(), g.NewBlock()
	unreachable := g.NewBlock()
	a := b0.NewMovImmediate(1, regfile.Bit32)
	cmpNode := b0.NewCompare(a, a)
	if err := b0.Seal(b0.NewBranch(types.Greater, cmpNode, b0.Memory(), thn, els)); err != nil {
		t.Fatal(err)
	}
	for _, e1 := range []*Block{els, thn} {
		if err := e1.Seal(e1.NewJump(join, e1.Memory())); err != nil {
			t.Fatal(err)
		}
	}
	if err := join.Seal(join.NewReturn(NoNode, join.Memory())); err != nil {
		t.Fatal(err)
	}
	if err := unreachable.Seal(unreachable.NewReturn(NoNode, unreachable.Memory())); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e1 := range g.Blocks() {
		got = append(got, e1.Label())
	}
	want := []string{"BB0", "BB1", "BB2", "BB3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Blocks: (-want, +got)\n%s", diff)
	}
	if diff := cmp.Diff([]BlockID{els.ID(), thn.ID()}, join.Predecessors()); diff != "" {
		t.Fatalf("Predecessors: (-want, +got)\n%s", diff)
	}
}
