// label.go provides a thread safe way of generating labels for basic blocks.

package util

import (
	"fmt"
	"sync"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// LabelGen generates consecutive labels sharing one prefix. Every graph owns its own LabelGen, so labels restart at
// zero for each method.
type LabelGen struct {
	prefix string     // Prefix of every generated label.
	next   int        // Numerical suffix of the next label.
	mx     sync.Mutex // For synchronising worker threads.
}

// ---------------------
// ----- Constants -----
// ---------------------

// Label prefixes.
const (
	LabelBlock = "BB"
)

// -------------------
// ----- globals -----
// -------------------

// ---------------------
// ----- functions -----
// ---------------------

// NewLabelGen returns a LabelGen for labels with the given prefix.
func NewLabelGen(prefix string) *LabelGen {
	return &LabelGen{prefix: prefix}
}

// Next returns a new label.
func (l *LabelGen) Next() string {
	l.mx.Lock()
	defer l.mx.Unlock()
	s := fmt.Sprintf("%s%d", l.prefix, l.next)
	l.next++
	return s
}

// Count returns the number of labels generated so far.
func (l *LabelGen) Count() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.next
}
