// Package llvm provides means to translate lowered linear IR into LLVM IR for the system installed LLVM runtime.
// Every register becomes a stack slot, so the module is valid LLVM IR without SSA construction, and LLVM's module
// verifier serves as an independent check of the lowered methods.
package llvm

import (
	"errors"
	"fmt"

	"tinygo.org/x/go-llvm"

	"mjc/src/backend/regfile"
	"mjc/src/ir/graph"
	"mjc/src/ir/lir"
	"mjc/src/ir/types"
	"mjc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Function is one lowered method to translate.
type Function struct {
	Def    *graph.Method      // Signature of the method.
	Linear *lir.Graph         // Lowered body.
	Params []regfile.Register // Register receiving each parameter on entry, may be shorter than Def.Params.
}

// argumentRegisters returns the registers receiving the parameters of f on entry. Unless f lists them, parameters
// are passed in the argument register groups in order, and parameters beyond those are not bound to a register.
func (f Function) argumentRegisters() []regfile.Register {
	if f.Params != nil {
		return f.Params
	}
	var res []regfile.Register
	for i1, e1 := range f.Def.Params {
		if i1 >= len(regfile.ArgumentGroups) {
			break
		}
		res = append(res, regfile.NewHardware(regfile.ArgumentGroups[i1], e1))
	}
	return res
}

// translator holds the state of translating one function body.
type translator struct {
	ctx    llvm.Context
	b      llvm.Builder
	m      llvm.Module
	fn     Function
	fun    llvm.Value                      // LLVM function being generated.
	slots  map[regfile.Register]llvm.Value // Stack slot of every register.
	blocks map[*lir.Block]llvm.BasicBlock  // LLVM basic block of every linear block.
	cmp    [2]llvm.Value                   // Operands of the last compare, consumed by the following branch.
	hasCmp bool                            // Set true between a compare and its branch.
}

// ---------------------
// ----- Constants -----
// ---------------------

// addrBits is the width of addresses and of the allocation function's operands.
const addrBits = 64

// -------------------
// ----- globals -----
// -------------------

// predicates maps branch predicates to signed integer comparisons.
var predicates = [...]llvm.IntPredicate{
	types.Greater:      llvm.IntSGT,
	types.GreaterEqual: llvm.IntSGE,
	types.Less:         llvm.IntSLT,
	types.LessEqual:    llvm.IntSLE,
	types.Equal:        llvm.IntEQ,
	types.NotEqual:     llvm.IntNE,
}

// ---------------------
// ----- functions -----
// ---------------------

// GenLLVM translates funcs into an LLVM module called name, verifies it and returns its textual LLVM IR. Methods
// called but not defined by funcs are declared external, with the signature taken from their first call.
func GenLLVM(opt util.Options, name string, funcs []Function) (string, error) {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	// Builder constructs LLVM IR instructions on basic block level.
	b := ctx.NewBuilder()
	defer b.Dispose()

	m := ctx.NewModule(name)
	defer m.Dispose()

	// Declare every function first, so calls between them resolve.
	for _, e1 := range funcs {
		if e1.Def == nil || e1.Linear == nil {
			return "", errors.New("function without definition or body")
		}
		if !m.NamedFunction(e1.Def.Name).IsNil() {
			return "", fmt.Errorf("function %s defined twice", e1.Def.Name)
		}
		params := make([]llvm.Type, len(e1.Def.Params))
		for i1, e2 := range e1.Def.Params {
			params[i1] = ctx.IntType(e2.Bits())
		}
		ret := ctx.VoidType()
		if !e1.Def.Void {
			ret = ctx.IntType(e1.Def.Result.Bits())
		}
		llvm.AddFunction(m, e1.Def.Name, llvm.FunctionType(ret, params, false))
	}

	for _, e1 := range funcs {
		t := translator{
			ctx:    ctx,
			b:      b,
			m:      m,
			fn:     e1,
			fun:    m.NamedFunction(e1.Def.Name),
			slots:  make(map[regfile.Register]llvm.Value),
			blocks: make(map[*lir.Block]llvm.BasicBlock),
		}
		if err := t.genFunction(); err != nil {
			return "", fmt.Errorf("function %s: %w", e1.Def.Name, err)
		}
	}

	if opt.Verbose {
		fmt.Println("LLVM IR:")
		m.Dump()
	}
	if err := llvm.VerifyModule(m, llvm.ReturnStatusAction); err != nil {
		return "", err
	}
	return m.String(), nil
}

// genFunction generates the body of t.fn. The entry block allocates one stack slot per register and stores the
// parameters before jumping to the start block.
func (t *translator) genFunction() error {
	params := t.fn.argumentRegisters()
	if len(params) > len(t.fn.Def.Params) {
		return fmt.Errorf("%d parameter register(s) for %d parameter(s)", len(params), len(t.fn.Def.Params))
	}
	order := t.fn.Linear.ReversePostorder()
	if len(order) == 0 {
		return errors.New("empty body")
	}

	entry := t.ctx.AddBasicBlock(t.fun, "entry")
	for _, e1 := range order {
		t.blocks[e1] = t.ctx.AddBasicBlock(t.fun, e1.Label())
	}

	t.b.SetInsertPointAtEnd(entry)
	for i1, e1 := range params {
		if e1.Width() != t.fn.Def.Params[i1] {
			return fmt.Errorf("parameter %d of width %s passed in %s", i1, t.fn.Def.Params[i1], e1)
		}
		t.b.CreateStore(t.fun.Param(i1), t.slot(e1))
	}
	for _, e1 := range order {
		for _, e2 := range e1.Instructions() {
			if r, ok := e2.WrittenRegister(); ok {
				t.slot(r)
			}
			for _, e3 := range e2.ReadRegisters() {
				t.slot(e3)
			}
		}
	}
	t.b.CreateBr(t.blocks[order[0]])

	for _, e1 := range order {
		t.b.SetInsertPointAtEnd(t.blocks[e1])
		t.hasCmp = false
		if !e1.Terminated() {
			return fmt.Errorf("block %s is not terminated", e1.Label())
		}
		for _, e2 := range e1.Instructions() {
			if err := t.genInstruction(e2); err != nil {
				return fmt.Errorf("block %s: %s: %w", e1.Label(), e2, err)
			}
		}
	}
	return nil
}

// slot returns the stack slot of r, allocating it at the current insert point on first use.
func (t *translator) slot(r regfile.Register) llvm.Value {
	if s, ok := t.slots[r]; ok {
		return s
	}
	s := t.b.CreateAlloca(t.ctx.IntType(r.Width().Bits()), r.Name())
	t.slots[r] = s
	return s
}

func (t *translator) load(r regfile.Register) llvm.Value {
	return t.b.CreateLoad(t.slots[r], "")
}

func (t *translator) store(r regfile.Register, v llvm.Value) {
	t.b.CreateStore(v, t.slots[r])
}

// resize sign extends or truncates v to bits.
func (t *translator) resize(v llvm.Value, bits int) llvm.Value {
	typ := t.ctx.IntType(bits)
	switch w := v.Type().IntTypeWidth(); {
	case w < bits:
		return t.b.CreateSExt(v, typ, "")
	case w > bits:
		return t.b.CreateTrunc(v, typ, "")
	default:
		return v
	}
}

// pointer converts the address held in r to a pointer to an integer of the given width.
func (t *translator) pointer(r regfile.Register, w regfile.Width) llvm.Value {
	addr := t.resize(t.load(r), addrBits)
	return t.b.CreateIntToPtr(addr, llvm.PointerType(t.ctx.IntType(w.Bits()), 0), "")
}

// shiftCount masks a shift count to below the width of its operand. LLVM shifts by the operand width or more are
// undefined.
func (t *translator) shiftCount(v llvm.Value) llvm.Value {
	bits := v.Type().IntTypeWidth()
	return t.b.CreateAnd(v, llvm.ConstInt(v.Type(), uint64(bits-1), false), "")
}

// genInstruction generates LLVM IR for one linear instruction.
func (t *translator) genInstruction(ins lir.Instruction) error {
	switch ins := ins.(type) {
	case *lir.Binary:
		lhs, rhs := t.load(ins.Lhs), t.load(ins.Rhs)
		var v llvm.Value
		switch ins.Op {
		case types.Add:
			v = t.b.CreateAdd(lhs, rhs, "")
		case types.Sub:
			v = t.b.CreateSub(lhs, rhs, "")
		case types.Mul:
			v = t.b.CreateMul(lhs, rhs, "")
		case types.Xor:
			v = t.b.CreateXor(lhs, rhs, "")
		case types.And:
			v = t.b.CreateAnd(lhs, rhs, "")
		case types.Shl:
			v = t.b.CreateShl(lhs, t.shiftCount(rhs), "")
		case types.Sar:
			v = t.b.CreateAShr(lhs, t.shiftCount(rhs), "")
		default:
			return fmt.Errorf("unexpected arithmetic operation %d", ins.Op)
		}
		t.store(ins.Target, t.resize(v, ins.Target.Width().Bits()))
	case *lir.Compare:
		t.cmp = [2]llvm.Value{t.load(ins.Lhs), t.load(ins.Rhs)}
		t.hasCmp = true
	case *lir.MovImmediate:
		t.store(ins.Target, llvm.ConstInt(t.ctx.IntType(ins.Target.Width().Bits()), uint64(ins.Value), true))
	case *lir.MovRegister:
		t.store(ins.Target, t.resize(t.load(ins.Source), ins.Target.Width().Bits()))
	case *lir.MovSignExtend:
		if ins.Source.Width() > ins.Target.Width() {
			return errors.New("sign extension narrows its operand")
		}
		t.store(ins.Target, t.resize(t.load(ins.Source), ins.Target.Width().Bits()))
	case *lir.Load:
		t.store(ins.Target, t.b.CreateLoad(t.pointer(ins.Addr, ins.Target.Width()), ""))
	case *lir.Store:
		t.b.CreateStore(t.load(ins.Value), t.pointer(ins.Addr, ins.Value.Width()))
	case *lir.MethodCall:
		args := make([]llvm.Value, len(ins.Args))
		params := make([]llvm.Type, len(ins.Args))
		for i1, e1 := range ins.Args {
			args[i1] = t.load(e1)
			params[i1] = args[i1].Type()
		}
		ret := t.ctx.VoidType()
		if ins.Target != nil {
			ret = t.ctx.IntType(ins.Target.Width().Bits())
		}
		fn, err := t.declare(ins.Callee, llvm.FunctionType(ret, params, false))
		if err != nil {
			return err
		}
		v := t.b.CreateCall(fn, args, "")
		if ins.Target != nil {
			t.store(ins.Target, v)
		}
	case *lir.AllocCall:
		i := t.ctx.IntType(addrBits)
		fn, err := t.declare(lir.AllocFunction, llvm.FunctionType(i, []llvm.Type{i, i}, false))
		if err != nil {
			return err
		}
		count := t.resize(t.load(ins.Count), addrBits)
		size := t.resize(t.load(ins.Size), addrBits)
		v := t.b.CreateCall(fn, []llvm.Value{count, size}, "")
		t.store(ins.Target, t.resize(v, ins.Target.Width().Bits()))
	case *lir.Div:
		dividend, divisor := t.load(ins.Dividend), t.load(ins.Divisor)
		var v llvm.Value
		if ins.Kind == types.Remainder {
			v = t.b.CreateSRem(dividend, divisor, "")
		} else {
			v = t.b.CreateSDiv(dividend, divisor, "")
		}
		t.store(ins.Target, t.resize(v, ins.Target.Width().Bits()))
	case *lir.Jump:
		t.b.CreateBr(t.blocks[ins.Dst])
	case *lir.Branch:
		if !t.hasCmp {
			return errors.New("branch without preceding compare")
		}
		c := t.b.CreateICmp(predicates[ins.Predicate], t.cmp[0], t.cmp[1], "")
		t.b.CreateCondBr(c, t.blocks[ins.True], t.blocks[ins.False])
	case *lir.Return:
		switch {
		case t.fn.Def.Void:
			t.b.CreateRetVoid()
		case ins.Value == nil:
			return errors.New("missing return value")
		default:
			t.b.CreateRet(t.resize(t.load(ins.Value), t.fn.Def.Result.Bits()))
		}
	default:
		return fmt.Errorf("unexpected instruction %s", ins.Mnemonic())
	}
	return nil
}

// declare returns the function called name, declaring it with type ftyp if it does not exist yet. Every call of a
// function must agree with its type.
func (t *translator) declare(name string, ftyp llvm.Type) (llvm.Value, error) {
	fn := t.m.NamedFunction(name)
	if fn.IsNil() {
		return llvm.AddFunction(t.m, name, ftyp), nil
	}
	if have := fn.Type().ElementType(); have.String() != ftyp.String() {
		return llvm.Value{}, fmt.Errorf("call of %s as %s, declared as %s", name, ftyp, have)
	}
	return fn, nil
}
