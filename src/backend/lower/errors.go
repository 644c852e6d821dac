package lower

import (
	"errors"
	"fmt"

	"mjc/src/ir/graph"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Error is a structural error found while scheduling or lowering a block.
type Error struct {
	Kind  error        // ErrCycle or ErrMalformed.
	Block string       // Label of the offending block.
	Node  graph.NodeID // Offending node, graph.NoNode if unknown.
	Msg   string       // Detail message.
}

// ---------------------
// ----- Constants -----
// ---------------------

// -------------------
// ----- Globals -----
// -------------------

var (
	ErrCycle     = errors.New("dependency cycle")
	ErrMalformed = errors.New("malformed graph")
)

// ---------------------
// ----- Functions -----
// ---------------------

// Error returns the error message of e.
func (e *Error) Error() string {
	if e.Node == graph.NoNode {
		return fmt.Sprintf("block %s: %s: %s", e.Block, e.Kind, e.Msg)
	}
	return fmt.Sprintf("block %s, node %d: %s: %s", e.Block, e.Node, e.Kind, e.Msg)
}

// Unwrap returns the kind of e.
func (e *Error) Unwrap() error {
	return e.Kind
}

func errorf(kind error, b *graph.Block, n graph.NodeID, format string, args ...interface{}) *Error {
	return &Error{
		Kind:  kind,
		Block: b.Label(),
		Node:  n,
		Msg:   fmt.Sprintf(format, args...),
	}
}
