package graph

import (
	"errors"
	"fmt"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Error is a construction or structural error of a Graph. Kind is one of the sentinel errors below and can be
// matched using errors.Is.
type Error struct {
	Kind  error  // Sentinel error classifying the failure.
	Block string // Label of the offending block, empty if unknown.
	Node  NodeID // Offending node, NoNode if the error concerns the block as a whole.
	Msg   string // Detail message.
}

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- Globals -----
// -------------------

// Construction errors.
var (
	ErrConstructionIncomplete = errors.New("construction incomplete")
	ErrAlreadySealed          = errors.New("block already sealed")
	ErrBlockSealed            = errors.New("block is sealed")
	ErrArityMismatch          = errors.New("output/input arity mismatch")
	ErrWidthMismatch          = errors.New("register width mismatch")
	ErrBadOperand             = errors.New("bad operand")
)

// Structural errors reported by Verify.
var (
	ErrDanglingPredecessor = errors.New("dangling predecessor")
	ErrCrossBlock          = errors.New("cross-block predecessor")
	ErrMissingTarget       = errors.New("missing control flow target")
	ErrNotSealed           = errors.New("missing terminator")
	ErrMalformed           = errors.New("malformed node")
)

// ---------------------
// ----- Functions -----
// ---------------------

// Error returns the error message of e.
func (e *Error) Error() string {
	switch {
	case e.Block != "" && e.Node != NoNode:
		return fmt.Sprintf("block %s, node %d: %s: %s", e.Block, e.Node, e.Kind, e.Msg)
	case e.Block != "":
		return fmt.Sprintf("block %s: %s: %s", e.Block, e.Kind, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

// Unwrap returns the sentinel kind of e.
func (e *Error) Unwrap() error {
	return e.Kind
}

// newError returns an Error of the given kind for block b and node n.
func newError(kind error, b *Block, n NodeID, format string, args ...interface{}) *Error {
	e := &Error{
		Kind: kind,
		Node: n,
		Msg:  fmt.Sprintf(format, args...),
	}
	if b != nil {
		e.Block = b.label
	}
	return e
}
