// Package lir provides the linear intermediate representation: basic blocks holding totally ordered instruction
// lists over registers, linked to their successor blocks. The linear IR is the output of the lowering pass and the
// input of register allocation and emission.
package lir

import (
	"fmt"
	"strings"

	"mjc/src/backend/regfile"
	"mjc/src/ir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Instruction defines a linear IR instruction. The set of instructions is closed.
type Instruction interface {
	Mnemonic() string                          // Mnemonic returns the opcode name emission relies on.
	ReadRegisters() []regfile.Register         // ReadRegisters returns the registers read by the instruction.
	WrittenRegister() (regfile.Register, bool) // WrittenRegister returns the register written, if any.
	String() string                            // String returns the textual linear IR of the instruction.
	instruction()
}

// ControlFlow defines an instruction ending a basic block.
type ControlFlow interface {
	Instruction
	Targets() []*Block // Targets returns the successor blocks.
}

// Binary is a two operand arithmetic instruction: Target = Lhs op Rhs.
type Binary struct {
	Op     types.ArithmeticOperation
	Target regfile.Register
	Lhs    regfile.Register
	Rhs    regfile.Register
}

// Compare sets the condition flags from Lhs - Rhs.
type Compare struct {
	Lhs regfile.Register
	Rhs regfile.Register
}

// MovImmediate loads a constant into Target.
type MovImmediate struct {
	Target regfile.Register
	Value  int64
}

// MovRegister copies Source into Target.
type MovRegister struct {
	Target regfile.Register
	Source regfile.Register
}

// MovSignExtend copies Source into the wider Target, extending the sign bit.
type MovSignExtend struct {
	Target regfile.Register
	Source regfile.Register
}

// Load reads memory at the address in Addr into Target.
type Load struct {
	Target regfile.Register
	Addr   regfile.Register
}

// Store writes Value to memory at the address in Addr.
type Store struct {
	Addr  regfile.Register
	Value regfile.Register
}

// MethodCall calls the method with linkage name Callee. Target is <nil> for void methods.
type MethodCall struct {
	Callee string
	Target regfile.Register
	Args   []regfile.Register
}

// AllocCall calls the runtime allocation function for Count elements of Size bytes.
type AllocCall struct {
	Target regfile.Register
	Count  regfile.Register
	Size   regfile.Register
}

// Div is a signed division keeping the quotient or the remainder in Target.
type Div struct {
	Kind     types.DivKind
	Target   regfile.Register
	Dividend regfile.Register
	Divisor  regfile.Register
}

// Jump transfers control to Dst.
type Jump struct {
	Dst *Block
}

// Branch transfers control to True if the flags set by the preceding Compare satisfy Predicate, else to False.
type Branch struct {
	Predicate types.Predicate
	True      *Block
	False     *Block
}

// Return returns Value, or nothing if Value is <nil>.
type Return struct {
	Value regfile.Register
}

// ---------------------
// ----- Constants -----
// ---------------------

// AllocFunction is the linkage name of the runtime allocation function called by AllocCall.
const AllocFunction = "__builtin_alloc_function__"

// -------------------
// ----- Globals -----
// -------------------

// ---------------------
// ----- Functions -----
// ---------------------

// regs collects the non-<nil> registers of rs.
func regs(rs ...regfile.Register) []regfile.Register {
	res := make([]regfile.Register, 0, len(rs))
	for _, e1 := range rs {
		if e1 != nil {
			res = append(res, e1)
		}
	}
	return res
}

// written returns r and whether it is not <nil>.
func written(r regfile.Register) (regfile.Register, bool) {
	return r, r != nil
}

// label returns the label of b, or <nil> for missing blocks.
func label(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	return b.label
}

func (ins *Binary) Mnemonic() string                          { return ins.Op.String() }
func (ins *Binary) ReadRegisters() []regfile.Register         { return regs(ins.Lhs, ins.Rhs) }
func (ins *Binary) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *Binary) instruction()                              {}

// String returns e.g. v3 <- add v1, v2.
func (ins *Binary) String() string {
	return fmt.Sprintf("%s <- %s %s, %s", ins.Target, ins.Mnemonic(), ins.Lhs, ins.Rhs)
}

func (ins *Compare) Mnemonic() string                          { return "cmp" }
func (ins *Compare) ReadRegisters() []regfile.Register         { return regs(ins.Lhs, ins.Rhs) }
func (ins *Compare) WrittenRegister() (regfile.Register, bool) { return nil, false }
func (ins *Compare) instruction()                              {}

// String returns e.g. cmp v1, v2.
func (ins *Compare) String() string {
	return fmt.Sprintf("cmp %s, %s", ins.Lhs, ins.Rhs)
}

func (ins *MovImmediate) Mnemonic() string                          { return "mov-imm" }
func (ins *MovImmediate) ReadRegisters() []regfile.Register         { return nil }
func (ins *MovImmediate) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *MovImmediate) instruction()                              {}

// String returns e.g. v1 <- mov-imm 0xa.
func (ins *MovImmediate) String() string {
	return fmt.Sprintf("%s <- mov-imm %#x", ins.Target, ins.Value)
}

func (ins *MovRegister) Mnemonic() string                          { return "mov-reg" }
func (ins *MovRegister) ReadRegisters() []regfile.Register         { return regs(ins.Source) }
func (ins *MovRegister) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *MovRegister) instruction()                              {}

// String returns e.g. %ebx <- mov-reg v1.
func (ins *MovRegister) String() string {
	return fmt.Sprintf("%s <- mov-reg %s", ins.Target, ins.Source)
}

func (ins *MovSignExtend) Mnemonic() string                          { return "mov-sx" }
func (ins *MovSignExtend) ReadRegisters() []regfile.Register         { return regs(ins.Source) }
func (ins *MovSignExtend) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *MovSignExtend) instruction()                              {}

// String returns e.g. v2 <- mov-sx v1.
func (ins *MovSignExtend) String() string {
	return fmt.Sprintf("%s <- mov-sx %s", ins.Target, ins.Source)
}

func (ins *Load) Mnemonic() string                          { return "mov-load" }
func (ins *Load) ReadRegisters() []regfile.Register         { return regs(ins.Addr) }
func (ins *Load) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *Load) instruction()                              {}

// String returns e.g. v2 <- mov-load [v1].
func (ins *Load) String() string {
	return fmt.Sprintf("%s <- mov-load [%s]", ins.Target, ins.Addr)
}

func (ins *Store) Mnemonic() string                          { return "mov-store" }
func (ins *Store) ReadRegisters() []regfile.Register         { return regs(ins.Addr, ins.Value) }
func (ins *Store) WrittenRegister() (regfile.Register, bool) { return nil, false }
func (ins *Store) instruction()                              {}

// String returns e.g. mov-store [v1], v2.
func (ins *Store) String() string {
	return fmt.Sprintf("mov-store [%s], %s", ins.Addr, ins.Value)
}

func (ins *MethodCall) Mnemonic() string                          { return "call" }
func (ins *MethodCall) ReadRegisters() []regfile.Register         { return regs(ins.Args...) }
func (ins *MethodCall) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *MethodCall) instruction()                              {}

// String returns e.g. v3 <- call f(v1, v2), or call f(v1) for void methods.
func (ins *MethodCall) String() string {
	args := make([]string, len(ins.Args))
	for i1, e1 := range ins.Args {
		args[i1] = e1.String()
	}
	s := fmt.Sprintf("call %s(%s)", ins.Callee, strings.Join(args, ", "))
	if ins.Target == nil {
		return s
	}
	return fmt.Sprintf("%s <- %s", ins.Target, s)
}

func (ins *AllocCall) Mnemonic() string                          { return "call <alloc>" }
func (ins *AllocCall) ReadRegisters() []regfile.Register         { return regs(ins.Count, ins.Size) }
func (ins *AllocCall) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *AllocCall) instruction()                              {}

// String returns e.g. v3 <- call <alloc>(v1, v2).
func (ins *AllocCall) String() string {
	return fmt.Sprintf("%s <- call <alloc>(%s, %s)", ins.Target, ins.Count, ins.Size)
}

func (ins *Div) Mnemonic() string                          { return ins.Kind.String() }
func (ins *Div) ReadRegisters() []regfile.Register         { return regs(ins.Dividend, ins.Divisor) }
func (ins *Div) WrittenRegister() (regfile.Register, bool) { return written(ins.Target) }
func (ins *Div) instruction()                              {}

// String returns e.g. v3 <- div (mod) v1, v2.
func (ins *Div) String() string {
	return fmt.Sprintf("%s <- %s %s, %s", ins.Target, ins.Mnemonic(), ins.Dividend, ins.Divisor)
}

func (ins *Jump) Mnemonic() string                          { return "jmp" }
func (ins *Jump) ReadRegisters() []regfile.Register         { return nil }
func (ins *Jump) WrittenRegister() (regfile.Register, bool) { return nil, false }
func (ins *Jump) Targets() []*Block                         { return []*Block{ins.Dst} }
func (ins *Jump) instruction()                              {}

// String returns e.g. jmp BB1.
func (ins *Jump) String() string {
	return fmt.Sprintf("jmp %s", label(ins.Dst))
}

func (ins *Branch) Mnemonic() string                          { return "b" + ins.Predicate.Suffix() }
func (ins *Branch) ReadRegisters() []regfile.Register         { return nil }
func (ins *Branch) WrittenRegister() (regfile.Register, bool) { return nil, false }
func (ins *Branch) Targets() []*Block                         { return []*Block{ins.True, ins.False} }
func (ins *Branch) instruction()                              {}

// String returns e.g. bg BB1, BB2.
func (ins *Branch) String() string {
	return fmt.Sprintf("%s %s, %s", ins.Mnemonic(), label(ins.True), label(ins.False))
}

func (ins *Return) Mnemonic() string                          { return "ret" }
func (ins *Return) ReadRegisters() []regfile.Register         { return regs(ins.Value) }
func (ins *Return) WrittenRegister() (regfile.Register, bool) { return nil, false }
func (ins *Return) Targets() []*Block                         { return nil }
func (ins *Return) instruction()                              {}

// String returns e.g. ret v3.
func (ins *Return) String() string {
	if ins.Value == nil {
		return "ret"
	}
	return fmt.Sprintf("ret %s", ins.Value)
}
