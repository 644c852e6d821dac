// Package types defines operation kinds shared by the graph IR and the linear IR.
package types

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ArithmeticOperation defines a type of binary arithmetic operation.
type ArithmeticOperation uint

// Predicate defines the relation tested by a conditional branch.
type Predicate uint

// DivKind defines which result of a hardware division is kept.
type DivKind uint

// ---------------------
// ----- Constants -----
// ---------------------

const (
	Add ArithmeticOperation = iota // Add identifies the arithmetic operation a = b + c.
	Sub                            // Sub identifies the arithmetic operation a = b - c.
	Mul                            // Mul identifies the arithmetic operation a = b * c.
	Xor                            // Xor identifies the arithmetic operation a = b ^ c.
	And                            // And identifies the arithmetic operation a = b & c.
	Shl                            // Shl identifies the arithmetic operation a = b << c.
	Sar                            // Sar identifies the arithmetic operation a = b >> c, shifting in the sign bit.
)

const (
	Greater      Predicate = iota // Greater defines >.
	GreaterEqual                  // GreaterEqual defines >=.
	Less                          // Less defines <.
	LessEqual                     // LessEqual defines <=.
	Equal                         // Equal defines ==.
	NotEqual                      // NotEqual defines !=.
)

const (
	Quotient  DivKind = iota // Quotient keeps a / b.
	Remainder                // Remainder keeps a % b.
)

// -------------------
// ----- Globals -----
// -------------------

// aTyp provides string literals for ArithmeticOperation constants.
var aTyp = [...]string{
	"add",
	"sub",
	"mul",
	"xor",
	"and",
	"shl",
	"sar",
}

// pTyp provides the condition suffixes for Predicate constants.
var pTyp = [...]string{
	"g",
	"ge",
	"l",
	"le",
	"e",
	"ne",
}

// pSym provides the relational operator of Predicate constants.
var pSym = [...]string{
	">",
	">=",
	"<",
	"<=",
	"==",
	"!=",
}

// pInv maps every Predicate to its negation.
var pInv = [...]Predicate{
	LessEqual,
	Less,
	GreaterEqual,
	Greater,
	NotEqual,
	Equal,
}

// dTyp provides mnemonics for DivKind constants.
var dTyp = [...]string{
	"div",
	"div (mod)",
}

// ---------------------
// ----- Functions -----
// ---------------------

// String provides a print friendly string representation of the ArithmeticOperation.
func (op ArithmeticOperation) String() string {
	return aTyp[op]
}

// Apply evaluates the operation on two 64-bit operands. Shift counts are taken modulo 64.
func (op ArithmeticOperation) Apply(a, b int64) int64 {
	switch op {
	case Add:
		return a + b
	case Sub:
		return a - b
	case Mul:
		return a * b
	case And:
		return a & b
	case Shl:
		return a << uint(b&63)
	case Sar:
		return a >> uint(b&63)
	default:
		return a ^ b
	}
}

// String provides the relational operator of the Predicate.
func (p Predicate) String() string {
	return pSym[p]
}

// Suffix returns the condition code suffix of the Predicate, as used in branch mnemonics.
func (p Predicate) Suffix() string {
	return pTyp[p]
}

// Invert returns the Predicate that holds exactly when p does not.
func (p Predicate) Invert() Predicate {
	return pInv[p]
}

// Holds returns true if a p b.
func (p Predicate) Holds(a, b int64) bool {
	switch p {
	case Greater:
		return a > b
	case GreaterEqual:
		return a >= b
	case Less:
		return a < b
	case LessEqual:
		return a <= b
	case Equal:
		return a == b
	default:
		return a != b
	}
}

// String returns the mnemonic of the DivKind.
func (k DivKind) String() string {
	return dTyp[k]
}
