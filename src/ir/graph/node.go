package graph

import (
	"fmt"

	"mjc/src/backend/regfile"
	"mjc/src/ir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// NodeID is the index of a node in its Graph. Ids are assigned in creation order.
type NodeID int

// BlockID is the index of a basic block in its Graph.
type BlockID int

// Node is a node of the graph IR. The set of nodes is closed: every implementation is declared in this package.
type Node interface {
	ID() NodeID                     // ID returns the creation id of the node.
	Block() BlockID                 // Block returns the basic block owning the node.
	Preds() []NodeID                // Preds returns operands, side effect and schedule dependencies in that order.
	ScheduleDependencies() []NodeID // ScheduleDependencies returns ordering-only predecessors.
	Mnemonic() string               // Mnemonic returns the instruction name of the node.
	fields() *base
}

// Producer is a node that writes a register.
type Producer interface {
	Node
	Target() regfile.Register
}

// SideEffect is a node that can be used as the current side effect of a block.
type SideEffect interface {
	Node
	sideEffect()
}

// Sequenced is a node that is ordered after the previous side effect of its block.
type Sequenced interface {
	Node
	Effect() NodeID
}

// Terminator is a control flow node ending a basic block.
type Terminator interface {
	Sequenced
	Successors() []BlockID
}

// base holds the fields shared by every node.
type base struct {
	id    NodeID   // Creation id.
	block BlockID  // Owning basic block.
	deps  []NodeID // Schedule dependencies.
}

// Binary is an arithmetic or logic operation on two registers.
type Binary struct {
	base
	op       types.ArithmeticOperation
	lhs, rhs NodeID
	target   regfile.Register
}

// Compare compares two registers. It feeds exactly one Branch.
type Compare struct {
	base
	lhs, rhs NodeID
}

// MovImmediate loads a constant into a register.
type MovImmediate struct {
	base
	value  int64
	target regfile.Register
}

// MovRegister copies a register into a target register.
type MovRegister struct {
	base
	source NodeID
	target regfile.Register
}

// MovSignExtend copies a register into a wider target register, extending the sign bit.
type MovSignExtend struct {
	base
	input  NodeID
	target regfile.Register
}

// Load reads memory at an address held in a register.
type Load struct {
	base
	addr   NodeID
	effect NodeID
	target regfile.Register
}

// Store writes a register to memory at an address held in a register.
type Store struct {
	base
	addr   NodeID
	value  NodeID
	effect NodeID
}

// MethodCall calls a method. Void methods still get a target register which is never read.
type MethodCall struct {
	base
	callee *Method
	args   []NodeID
	effect NodeID
	target regfile.Register
}

// AllocCall calls the runtime allocation function for count elements of size bytes each.
type AllocCall struct {
	base
	count  NodeID
	size   NodeID
	effect NodeID
	target regfile.Register
}

// Div is a signed hardware division keeping either the quotient or the remainder.
type Div struct {
	base
	kind     types.DivKind
	dividend NodeID
	divisor  NodeID
	effect   NodeID
	target   regfile.Register
}

// Input is the value received at one input position of a block, bound to a fixed register.
type Input struct {
	base
	target regfile.Register
}

// MemoryInput starts the side effect chain of a block.
type MemoryInput struct {
	base
}

// Jump transfers control unconditionally to a block.
type Jump struct {
	base
	dst    BlockID
	effect NodeID
}

// Branch transfers control to one of two blocks depending on a comparison.
type Branch struct {
	base
	pred    types.Predicate
	cmp     NodeID
	effect  NodeID
	ifTrue  BlockID
	ifFalse BlockID
}

// Return returns from the method, optionally with a value.
type Return struct {
	base
	value  NodeID // NoNode for void returns.
	effect NodeID
}

// Method describes a callee: its linkage name and signature.
type Method struct {
	Name   string          // Linkage name.
	Params []regfile.Width // Parameter widths, in order.
	Result regfile.Width   // Width of the returned value.
	Void   bool            // Set to true if the method returns no value.
}

// ---------------------
// ----- Constants -----
// ---------------------

// NoNode is the null node reference.
const NoNode NodeID = -1

// NoBlock is the null block reference.
const NoBlock BlockID = -1

// -------------------
// ----- Globals -----
// -------------------

// ---------------------
// ----- Functions -----
// ---------------------

// ID returns the creation id of the node.
func (n *base) ID() NodeID {
	return n.id
}

// Block returns the id of the basic block that owns the node.
func (n *base) Block() BlockID {
	return n.block
}

// ScheduleDependencies returns the ordering-only predecessors of the node.
func (n *base) ScheduleDependencies() []NodeID {
	return n.deps
}

// fields returns the shared fields of the node.
func (n *base) fields() *base {
	return n
}

// preds appends the schedule dependencies of n to ops.
func (n *base) preds(ops ...NodeID) []NodeID {
	return append(ops, n.deps...)
}

// Op returns the arithmetic operation of the Binary node.
func (n *Binary) Op() types.ArithmeticOperation { return n.op }

// Lhs returns the left operand.
func (n *Binary) Lhs() NodeID { return n.lhs }

// Rhs returns the right operand.
func (n *Binary) Rhs() NodeID { return n.rhs }

// Target returns the register written by the node.
func (n *Binary) Target() regfile.Register { return n.target }

// Preds returns the operands of the node.
func (n *Binary) Preds() []NodeID { return n.preds(n.lhs, n.rhs) }

// Mnemonic returns the arithmetic mnemonic, e.g. add.
func (n *Binary) Mnemonic() string { return n.op.String() }

// Lhs returns the left operand.
func (n *Compare) Lhs() NodeID { return n.lhs }

// Rhs returns the right operand.
func (n *Compare) Rhs() NodeID { return n.rhs }

// Preds returns the operands of the node.
func (n *Compare) Preds() []NodeID { return n.preds(n.lhs, n.rhs) }

// Mnemonic returns cmp.
func (n *Compare) Mnemonic() string { return "cmp" }

// Value returns the constant loaded by the node.
func (n *MovImmediate) Value() int64 { return n.value }

// Target returns the register written by the node.
func (n *MovImmediate) Target() regfile.Register { return n.target }

// Preds returns the schedule dependencies of the node only.
func (n *MovImmediate) Preds() []NodeID { return n.preds() }

// Mnemonic returns mov-imm.
func (n *MovImmediate) Mnemonic() string { return "mov-imm" }

// Source returns the copied node.
func (n *MovRegister) Source() NodeID { return n.source }

// Target returns the register written by the node.
func (n *MovRegister) Target() regfile.Register { return n.target }

// Preds returns the copied node.
func (n *MovRegister) Preds() []NodeID { return n.preds(n.source) }

// Mnemonic returns mov-reg.
func (n *MovRegister) Mnemonic() string { return "mov-reg" }

// Input returns the extended node.
func (n *MovSignExtend) Input() NodeID { return n.input }

// Target returns the register written by the node.
func (n *MovSignExtend) Target() regfile.Register { return n.target }

// Preds returns the extended node.
func (n *MovSignExtend) Preds() []NodeID { return n.preds(n.input) }

// Mnemonic returns mov-sx.
func (n *MovSignExtend) Mnemonic() string { return "mov-sx" }

// Addr returns the node holding the address.
func (n *Load) Addr() NodeID { return n.addr }

// Effect returns the previous side effect.
func (n *Load) Effect() NodeID { return n.effect }

// Target returns the register written by the node.
func (n *Load) Target() regfile.Register { return n.target }

// Preds returns the address and the previous side effect.
func (n *Load) Preds() []NodeID { return n.preds(n.addr, n.effect) }

// Mnemonic returns mov-load.
func (n *Load) Mnemonic() string { return "mov-load" }

func (n *Load) sideEffect() {}

// Addr returns the node holding the address.
func (n *Store) Addr() NodeID { return n.addr }

// Value returns the node holding the stored value.
func (n *Store) Value() NodeID { return n.value }

// Effect returns the previous side effect.
func (n *Store) Effect() NodeID { return n.effect }

// Preds returns the address, the value and the previous side effect.
func (n *Store) Preds() []NodeID { return n.preds(n.addr, n.value, n.effect) }

// Mnemonic returns mov-store.
func (n *Store) Mnemonic() string { return "mov-store" }

func (n *Store) sideEffect() {}

// Callee returns the called method.
func (n *MethodCall) Callee() *Method { return n.callee }

// Args returns the argument nodes.
func (n *MethodCall) Args() []NodeID { return n.args }

// Effect returns the previous side effect.
func (n *MethodCall) Effect() NodeID { return n.effect }

// Target returns the register receiving the result.
func (n *MethodCall) Target() regfile.Register { return n.target }

// Preds returns the arguments and the previous side effect.
func (n *MethodCall) Preds() []NodeID {
	ops := make([]NodeID, 0, len(n.args)+1+len(n.deps))
	ops = append(ops, n.args...)
	return n.preds(append(ops, n.effect)...)
}

// Mnemonic returns call.
func (n *MethodCall) Mnemonic() string { return "call" }

func (n *MethodCall) sideEffect() {}

// Count returns the node holding the number of elements.
func (n *AllocCall) Count() NodeID { return n.count }

// Size returns the node holding the element size.
func (n *AllocCall) Size() NodeID { return n.size }

// Effect returns the previous side effect.
func (n *AllocCall) Effect() NodeID { return n.effect }

// Target returns the register receiving the allocated address.
func (n *AllocCall) Target() regfile.Register { return n.target }

// Preds returns the element count, the element size and the previous side effect.
func (n *AllocCall) Preds() []NodeID { return n.preds(n.count, n.size, n.effect) }

// Mnemonic returns call <alloc>.
func (n *AllocCall) Mnemonic() string { return "call <alloc>" }

func (n *AllocCall) sideEffect() {}

// Kind returns which result of the division is kept.
func (n *Div) Kind() types.DivKind { return n.kind }

// Dividend returns the dividend node.
func (n *Div) Dividend() NodeID { return n.dividend }

// Divisor returns the divisor node.
func (n *Div) Divisor() NodeID { return n.divisor }

// Effect returns the previous side effect.
func (n *Div) Effect() NodeID { return n.effect }

// Target returns the register written by the node.
func (n *Div) Target() regfile.Register { return n.target }

// Preds returns the dividend, the divisor and the previous side effect.
func (n *Div) Preds() []NodeID { return n.preds(n.dividend, n.divisor, n.effect) }

// Mnemonic returns div or div (mod).
func (n *Div) Mnemonic() string { return n.kind.String() }

func (n *Div) sideEffect() {}

// Target returns the register the input is bound to.
func (n *Input) Target() regfile.Register { return n.target }

// Preds returns <nil>, inputs have no predecessors.
func (n *Input) Preds() []NodeID { return nil }

// Mnemonic returns input.
func (n *Input) Mnemonic() string { return "input" }

// Preds returns <nil>, memory inputs have no predecessors.
func (n *MemoryInput) Preds() []NodeID { return nil }

// Mnemonic returns memory-input.
func (n *MemoryInput) Mnemonic() string { return "memory-input" }

func (n *MemoryInput) sideEffect() {}

// Destination returns the jump target.
func (n *Jump) Destination() BlockID { return n.dst }

// Effect returns the final side effect of the block.
func (n *Jump) Effect() NodeID { return n.effect }

// Successors returns the jump target.
func (n *Jump) Successors() []BlockID { return []BlockID{n.dst} }

// Preds returns the final side effect of the block.
func (n *Jump) Preds() []NodeID { return n.preds(n.effect) }

// Mnemonic returns jmp.
func (n *Jump) Mnemonic() string { return "jmp" }

// Predicate returns the tested relation.
func (n *Branch) Predicate() types.Predicate { return n.pred }

// Compare returns the Compare node tested by the branch.
func (n *Branch) Compare() NodeID { return n.cmp }

// Effect returns the final side effect of the block.
func (n *Branch) Effect() NodeID { return n.effect }

// True returns the block taken when the predicate holds.
func (n *Branch) True() BlockID { return n.ifTrue }

// False returns the block taken when the predicate does not hold.
func (n *Branch) False() BlockID { return n.ifFalse }

// Successors returns the true and false targets, in that order.
func (n *Branch) Successors() []BlockID { return []BlockID{n.ifTrue, n.ifFalse} }

// Preds returns the compare and the final side effect of the block.
func (n *Branch) Preds() []NodeID { return n.preds(n.cmp, n.effect) }

// Mnemonic returns b followed by the condition suffix, e.g. bge.
func (n *Branch) Mnemonic() string { return "b" + n.pred.Suffix() }

// Value returns the returned node, NoNode for void returns.
func (n *Return) Value() NodeID { return n.value }

// Effect returns the final side effect of the block.
func (n *Return) Effect() NodeID { return n.effect }

// Successors returns <nil>.
func (n *Return) Successors() []BlockID { return nil }

// Preds returns the returned value, if any, and the final side effect of the block.
func (n *Return) Preds() []NodeID {
	if n.value == NoNode {
		return n.preds(n.effect)
	}
	return n.preds(n.value, n.effect)
}

// Mnemonic returns ret.
func (n *Return) Mnemonic() string { return "ret" }

// String returns the linkage name and signature of the method.
func (m *Method) String() string {
	if m.Void {
		return fmt.Sprintf("%s%v", m.Name, m.Params)
	}
	return fmt.Sprintf("%s%v %s", m.Name, m.Params, m.Result)
}
