package llvm

import (
	"strings"
	"testing"

	"mjc/src/backend/lower"
	"mjc/src/backend/regfile"
	"mjc/src/ir/graph"
	"mjc/src/ir/lir"
	"mjc/src/ir/types"
	"mjc/src/util"
)

var (
	ebx  = regfile.NewHardware(regfile.B, regfile.Bit32)
	r12d = regfile.NewHardware(regfile.R12, regfile.Bit32)
	edi  = regfile.NewHardware(regfile.DI, regfile.Bit32)
)

func mustLower(t *testing.T, g *graph.Graph) *lir.Graph {
	t.Helper()
	lg, _, err := lower.Lower(util.DefaultOptions(), g)
	if err != nil {
		t.Fatal(err)
	}
	return lg
}

func mustInput(t *testing.T, b *graph.Block, r regfile.Register) graph.NodeID {
	t.Helper()
	n, err := b.AddInput(r)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// countdown builds a method taking n in edi that calls print(n / 2 % 3) for n, n - 1, ..., 1, storing each
// quotient to freshly allocated memory, and returns the last value loaded back.
func countdown(t *testing.T, printDef *graph.Method) *graph.Graph {
	t.Helper()
	g := graph.NewGraph()
	entry, head, body, exit := g.Start(), g.NewBlock(), g.NewBlock(), g.NewBlock()
	n := mustInput(t, entry, edi)
	hn, hl := mustInput(t, head, ebx), mustInput(t, head, r12d)
	bn := mustInput(t, body, ebx)
	mustInput(t, body, r12d)
	mustInput(t, exit, ebx)
	el := mustInput(t, exit, r12d)

	must(t, entry.AddOutput(n))
	must(t, entry.AddOutput(entry.NewMovImmediate(0, regfile.Bit32)))
	must(t, entry.Seal(entry.NewJump(head, entry.Memory())))

	c := head.NewCompare(hn, head.NewMovImmediate(0, regfile.Bit32))
	must(t, head.AddOutput(hn))
	must(t, head.AddOutput(hl))
	must(t, head.Seal(head.NewBranch(types.Greater, c, head.Memory(), body, exit)))

	q := body.NewDiv(types.Quotient, bn, body.NewMovImmediate(2, regfile.Bit32), body.Memory())
	r := body.NewDiv(types.Remainder, q, body.NewMovImmediate(3, regfile.Bit32), q)
	call := body.NewMethodCall(printDef, []graph.NodeID{r}, r)
	p := body.NewAllocCall(body.NewMovImmediate(1, regfile.Bit64), body.NewMovImmediate(4, regfile.Bit64), call)
	st := body.NewStore(p, q, p)
	ld := body.NewLoad(p, st, regfile.Bit32)
	dec := body.NewBinary(types.Sub, bn, body.NewMovImmediate(1, regfile.Bit32))
	must(t, body.AddOutput(dec))
	must(t, body.AddOutput(ld))
	must(t, body.Seal(body.NewJump(head, ld)))

	must(t, exit.Seal(exit.NewReturn(el, exit.Memory())))
	return g
}

func TestGenLLVM(t *testing.T) {
	printDef := &graph.Method{Name: "print", Params: []regfile.Width{regfile.Bit32}, Void: true}
	def := &graph.Method{Name: "countdown", Params: []regfile.Width{regfile.Bit32}, Result: regfile.Bit32}
	lg := mustLower(t, countdown(t, printDef))

	ir, err := GenLLVM(util.DefaultOptions(), "test", []Function{{Def: def, Linear: lg, Params: []regfile.Register{edi}}})
	if err != nil {
		t.Fatal(err)
	}
	for _, e1 := range []string{
		"define i32 @countdown(i32",
		"declare void @print(i32)",
		"declare i64 @" + lir.AllocFunction + "(i64, i64)",
		"icmp sgt",
		"sdiv",
		"srem",
		"inttoptr",
		"br i1",
	} {
		if !strings.Contains(ir, e1) {
			t.Errorf("LLVM IR lacks %q:\n%s", e1, ir)
		}
	}
}

func TestGenLLVMCalls(t *testing.T) {
	// f returns g(), g returns 7.
	gdef := &graph.Method{Name: "g", Result: regfile.Bit32}
	fdef := &graph.Method{Name: "f", Result: regfile.Bit32}

	gg := graph.NewGraph()
	b := gg.Start()
	must(t, b.Seal(b.NewReturn(b.NewMovImmediate(7, regfile.Bit32), b.Memory())))

	fg := graph.NewGraph()
	b = fg.Start()
	call := b.NewMethodCall(gdef, nil, b.Memory())
	must(t, b.Seal(b.NewReturn(call, call)))

	ir, err := GenLLVM(util.DefaultOptions(), "calls", []Function{
		{Def: fdef, Linear: mustLower(t, fg)},
		{Def: gdef, Linear: mustLower(t, gg)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(ir, "declare i32 @g") || !strings.Contains(ir, "define i32 @g()") {
		t.Fatalf("g must be defined, not declared:\n%s", ir)
	}
}

func TestGenLLVMArgumentRegisters(t *testing.T) {
	params := []regfile.Width{
		regfile.Bit32, regfile.Bit32, regfile.Bit32, regfile.Bit32, regfile.Bit32, regfile.Bit32, regfile.Bit64,
	}
	def := &graph.Method{Name: "sum", Params: params, Result: regfile.Bit32}

	var names []string
	for _, e1 := range (Function{Def: def}).argumentRegisters() {
		names = append(names, e1.Name())
	}
	if got, want := strings.Join(names, " "), "edi esi edx ecx r8d r9d"; got != want {
		t.Fatalf("argument registers: got %s, want %s", got, want)
	}

	// sum returns its first two parameters added.
	g := graph.NewGraph()
	b := g.Start()
	a1 := mustInput(t, b, edi)
	a2 := mustInput(t, b, regfile.NewHardware(regfile.SI, regfile.Bit32))
	must(t, b.Seal(b.NewReturn(b.NewBinary(types.Add, a1, a2), b.Memory())))

	ir, err := GenLLVM(util.DefaultOptions(), "args", []Function{{Def: def, Linear: mustLower(t, g)}})
	if err != nil {
		t.Fatal(err)
	}
	for _, e1 := range []string{"%edi = alloca i32", "%esi = alloca i32", "%r9d = alloca i32"} {
		if !strings.Contains(ir, e1) {
			t.Errorf("LLVM IR lacks %q:\n%s", e1, ir)
		}
	}
	if strings.Contains(ir, "alloca i64") {
		t.Errorf("parameter beyond the argument registers was bound:\n%s", ir)
	}
}

func TestGenLLVMLogic(t *testing.T) {
	// mask returns ((n << 3) >> 1) & 0xff for n in edi.
	def := &graph.Method{Name: "mask", Params: []regfile.Width{regfile.Bit32}, Result: regfile.Bit32}
	g := graph.NewGraph()
	b := g.Start()
	n := mustInput(t, b, edi)
	shl := b.NewBinary(types.Shl, n, b.NewMovImmediate(3, regfile.Bit32))
	sar := b.NewBinary(types.Sar, shl, b.NewMovImmediate(1, regfile.Bit32))
	and := b.NewBinary(types.And, sar, b.NewMovImmediate(0xff, regfile.Bit32))
	must(t, b.Seal(b.NewReturn(and, b.Memory())))

	ir, err := GenLLVM(util.DefaultOptions(), "logic", []Function{{Def: def, Linear: mustLower(t, g)}})
	if err != nil {
		t.Fatal(err)
	}
	for _, e1 := range []string{"shl i32", "ashr i32", "and i32", ", 31"} {
		if !strings.Contains(ir, e1) {
			t.Errorf("LLVM IR lacks %q:\n%s", e1, ir)
		}
	}
}

func TestGenLLVMErrors(t *testing.T) {
	def := &graph.Method{Name: "f", Result: regfile.Bit32}
	ret := func() *lir.Graph {
		lg := lir.NewGraph()
		b := lg.NewBlock("BB0")
		v := regfile.NewGenerator().Next(regfile.Bit32)
		b.Append(&lir.MovImmediate{Target: v, Value: 1})
		b.Append(&lir.Return{Value: v})
		return lg
	}

	// Callee used with two different signatures.
	mixed := lir.NewGraph()
	b := mixed.NewBlock("BB0")
	gen := regfile.NewGenerator()
	v32, v64 := gen.Next(regfile.Bit32), gen.Next(regfile.Bit64)
	b.Append(&lir.MovImmediate{Target: v32, Value: 1})
	b.Append(&lir.MovImmediate{Target: v64, Value: 1})
	b.Append(&lir.MethodCall{Callee: "h", Args: []regfile.Register{v32}})
	b.Append(&lir.MethodCall{Callee: "h", Args: []regfile.Register{v64}})
	b.Append(&lir.Return{Value: v32})

	// Branch with no compare before it.
	nocmp := lir.NewGraph()
	b = nocmp.NewBlock("BB0")
	b1, b2 := nocmp.NewBlock("BB1"), nocmp.NewBlock("BB2")
	b.Append(&lir.Branch{Predicate: types.Equal, True: b1, False: b2})
	for _, e1 := range []*lir.Block{b1, b2} {
		e1.Append(&lir.Return{Value: nil})
	}

	// Value returning method ending in a void return.
	novalue := lir.NewGraph()
	novalue.NewBlock("BB0").Append(&lir.Return{Value: nil})

	tests := []struct {
		name  string
		funcs []Function
		want  string
	}{
		{"duplicate", []Function{{Def: def, Linear: ret()}, {Def: def, Linear: ret()}}, "defined twice"},
		{"no body", []Function{{Def: def}}, "without definition or body"},
		{"signature", []Function{{Def: def, Linear: mixed}}, "call of h"},
		{"no compare", []Function{{Def: &graph.Method{Name: "f", Void: true}, Linear: nocmp}}, "without preceding compare"},
		{"no value", []Function{{Def: def, Linear: novalue}}, "missing return value"},
		{"params", []Function{{Def: def, Linear: ret(), Params: []regfile.Register{edi}}}, "parameter register"},
	}
	for _, test := range tests {
		_, err := GenLLVM(util.DefaultOptions(), test.name, test.funcs)
		if err == nil {
			t.Errorf("%s: expected error", test.name)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: got %v, want %q", test.name, err, test.want)
		}
	}
}
