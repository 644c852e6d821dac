// Package regfile provides type definitions for virtual and hardware registers.
package regfile

import "fmt"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Width defines the bit width of a register.
type Width uint8

// Group identifies a family of hardware registers that alias the same physical register at different widths.
type Group uint8

// Register defines a register interface.
// A register has a name and a width. Registers are compared by identity: two virtual registers are equal only if
// they are the same register, hardware registers are equal if they share group and width.
type Register interface {
	Name() string   // Name returns the assembler name of the register.
	Width() Width   // Width returns the bit width of the register.
	String() string // String returns the print friendly name of the register.
	register()
}

// Virtual defines a virtual register. Virtual registers carry no hardware meaning and are unique within the graph
// whose Generator created them.
type Virtual struct {
	id    int   // Unique id of the virtual register.
	width Width // Bit width.
}

// Hardware defines a fixed, architecture defined, general purpose register.
type Hardware struct {
	group Group // Physical register family.
	width Width // Bit width of this view of the register.
}

// Generator hands out fresh virtual registers. Each graph owns exactly one Generator.
type Generator struct {
	next int // Id of the next virtual register.
}

// ---------------------
// ----- Constants -----
// ---------------------

const (
	Bit8 Width = iota
	Bit16
	Bit32
	Bit64
)

// x86-64 general purpose register groups.
const (
	A Group = iota
	B
	C
	D
	SI
	DI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	BP
	SP
)

// firstVirtual is the id of the first register returned by a new Generator.
const firstVirtual = 1

// -------------------
// ----- Globals -----
// -------------------

// wTyp provides string literals for Width constants.
var wTyp = [...]string{
	"8",
	"16",
	"32",
	"64",
}

// hwNames holds the assembler names of every register group, indexed by width.
var hwNames = [...][4]string{
	A:   {"al", "ax", "eax", "rax"},
	B:   {"bl", "bx", "ebx", "rbx"},
	C:   {"cl", "cx", "ecx", "rcx"},
	D:   {"dl", "dx", "edx", "rdx"},
	SI:  {"sil", "si", "esi", "rsi"},
	DI:  {"dil", "di", "edi", "rdi"},
	R8:  {"r8b", "r8w", "r8d", "r8"},
	R9:  {"r9b", "r9w", "r9d", "r9"},
	R10: {"r10b", "r10w", "r10d", "r10"},
	R11: {"r11b", "r11w", "r11d", "r11"},
	R12: {"r12b", "r12w", "r12d", "r12"},
	R13: {"r13b", "r13w", "r13d", "r13"},
	R14: {"r14b", "r14w", "r14d", "r14"},
	R15: {"r15b", "r15w", "r15d", "r15"},
	BP:  {"bpl", "bp", "ebp", "rbp"},
	SP:  {"spl", "sp", "esp", "rsp"},
}

// ArgumentGroups lists the register groups used for passing integer arguments, in order.
var ArgumentGroups = []Group{DI, SI, D, C, R8, R9}

// ---------------------
// ----- Functions -----
// ---------------------

// String provides a print friendly string representation of the Width.
func (w Width) String() string {
	return wTyp[w]
}

// Bits returns the number of bits of the Width.
func (w Width) Bits() int {
	return 8 << w
}

// ByteSize returns the number of bytes of the Width.
func (w Width) ByteSize() int {
	return 1 << w
}

// Valid returns true if w is one of the defined widths.
func (w Width) Valid() bool {
	return w <= Bit64
}

// WidthOfBytes returns the Width that holds exactly n bytes.
func WidthOfBytes(n int) (Width, error) {
	switch n {
	case 1:
		return Bit8, nil
	case 2:
		return Bit16, nil
	case 4:
		return Bit32, nil
	case 8:
		return Bit64, nil
	default:
		return 0, fmt.Errorf("no register width of %d bytes", n)
	}
}

// Id returns the unique id of the virtual register.
func (r *Virtual) Id() int {
	return r.id
}

// Name returns the textual representation of the virtual register.
func (r *Virtual) Name() string {
	return fmt.Sprintf("v%d", r.id)
}

// Width returns the bit width of the virtual register.
func (r *Virtual) Width() Width {
	return r.width
}

// String returns the name of the virtual register.
func (r *Virtual) String() string {
	return r.Name()
}

func (r *Virtual) register() {}

// NewHardware returns the hardware register of group g viewed at width w.
func NewHardware(g Group, w Width) Hardware {
	if int(g) >= len(hwNames) || !w.Valid() {
		panic(fmt.Sprintf("no hardware register for group %d width %d", g, w))
	}
	return Hardware{group: g, width: w}
}

// Name returns the assembler name of hardware register r, e.g. eax.
func (r Hardware) Name() string {
	return hwNames[r.group][r.width]
}

// Width returns the bit width of hardware register r.
func (r Hardware) Width() Width {
	return r.width
}

// String returns the assembler name of hardware register r prefixed with %.
func (r Hardware) String() string {
	return "%" + r.Name()
}

// Overlaps returns true if writing a may change the value held in b: a and b are the same virtual register, or
// hardware registers of the same group at any width.
func Overlaps(a, b Register) bool {
	if a == nil || b == nil {
		return false
	}
	ha, aok := a.(Hardware)
	hb, bok := b.(Hardware)
	if aok && bok {
		return ha.group == hb.group
	}
	return a == b
}

// Clobbers returns true if writing a leaves no part of the previous value of b intact. Writes of 32-bit registers
// zero the upper half of their group, narrower writes keep the bits they do not cover.
func Clobbers(a, b Register) bool {
	if !Overlaps(a, b) {
		return false
	}
	return a.Width() == Bit32 || b.Width() <= a.Width()
}

// ForWidth returns the register of the same group as r with width w.
func (r Hardware) ForWidth(w Width) Hardware {
	return NewHardware(r.group, w)
}

func (r Hardware) register() {}

// NewGenerator returns a Generator whose first register has id 1.
func NewGenerator() *Generator {
	return &Generator{next: firstVirtual}
}

// Fork returns a Generator continuing where g stands. Registers drawn from the fork do not advance g, so passes
// needing scratch registers leave the graph untouched.
func (g *Generator) Fork() *Generator {
	return &Generator{next: g.next}
}

// Next returns a fresh virtual register of width w.
func (g *Generator) Next(w Width) *Virtual {
	if !w.Valid() {
		panic(fmt.Sprintf("invalid register width %d", w))
	}
	r := &Virtual{id: g.next, width: w}
	g.next++
	return r
}

// Count returns the number of virtual registers handed out by g.
func (g *Generator) Count() int {
	return g.next - firstVirtual
}
