package lir

import (
	"fmt"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Block defines a linear IR basic block: a label and an instruction list whose last element is a ControlFlow
// instruction.
type Block struct {
	label        string        // Label copied from the graph IR block.
	instructions []Instruction // Instructions in order of execution.
}

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- globals -----
// -------------------

// ---------------------
// ----- functions -----
// ---------------------

// Label returns the label of Block b.
func (b *Block) Label() string {
	return b.label
}

// Instructions returns the instructions of Block b.
func (b *Block) Instructions() []Instruction {
	return b.instructions
}

// Len returns the number of instructions of Block b.
func (b *Block) Len() int {
	return len(b.instructions)
}

// Append appends ins to Block b. It panics if b is already terminated.
func (b *Block) Append(ins Instruction) {
	if b.Terminated() {
		panic(fmt.Sprintf("block %s: cannot append %s after terminator", b.label, ins.Mnemonic()))
	}
	b.instructions = append(b.instructions, ins)
}

// Terminated returns true if the last instruction of Block b is a control flow instruction.
func (b *Block) Terminated() bool {
	return b.Terminator() != nil
}

// Terminator returns the control flow instruction ending Block b, or <nil> if b is not terminated.
func (b *Block) Terminator() ControlFlow {
	if len(b.instructions) == 0 {
		return nil
	}
	cf, _ := b.instructions[len(b.instructions)-1].(ControlFlow)
	return cf
}

// Successors returns the successor blocks of Block b.
func (b *Block) Successors() []*Block {
	if t := b.Terminator(); t != nil {
		return t.Targets()
	}
	return nil
}

// String returns the textual linear IR representation of all instructions in Block b.
func (b *Block) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s:\n", b.label))
	for _, e1 := range b.instructions {
		sb.WriteRune('\t')
		sb.WriteString(e1.String())
		sb.WriteRune('\n')
	}
	if !b.Terminated() {
		sb.WriteString(fmt.Sprintf("// Error: basic block %s is not terminated.\n", b.label))
	}
	return sb.String()
}
