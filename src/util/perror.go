package util

import (
	"errors"
	"sync"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Perror listens for errors reported from parallel worker threads and provides means for retrieving them when the
// parallel job has been completed.
type Perror struct {
	listen chan error    // Channel for receiving error messages from worker threads.
	done   chan struct{} // Closed by the listener once it has drained listen.
	errors []error       // Buffer of error messages.
	mx     sync.Mutex    // For synchronising writes and reads.
}

// ----------------------
// ----- Constants ------
// ----------------------

// defaultBufferSize defines the fallback buffer size of the error array.
const defaultBufferSize = 16

// -------------------
// ----- globals -----
// -------------------

// ---------------------
// ----- functions -----
// ---------------------

// NewPerror returns a listening Perror with n pre-allocated slots in its error buffer.
func NewPerror(n int) *Perror {
	if n < 1 {
		n = defaultBufferSize
	}
	pe := &Perror{
		listen: make(chan error),
		done:   make(chan struct{}),
		errors: make([]error, 0, n),
	}
	go pe.run()
	return pe
}

// run buffers errors received on the listen channel until it is closed by Stop.
func (pe *Perror) run() {
	defer close(pe.done)
	for err := range pe.listen {
		pe.mx.Lock()
		pe.errors = append(pe.errors, err)
		pe.mx.Unlock()
	}
}

// Append sends the error message err to the error listener. <nil> errors are ignored. Append must not be called
// after Stop.
func (pe *Perror) Append(err error) {
	if err != nil {
		pe.listen <- err
	}
}

// Stop stops the error listener once every error sent by Append has been buffered.
func (pe *Perror) Stop() {
	close(pe.listen)
	<-pe.done
}

// Len returns the number of buffered errors.
func (pe *Perror) Len() int {
	pe.mx.Lock()
	defer pe.mx.Unlock()
	return len(pe.errors)
}

// Errors returns a copy of the buffered errors in the order they were received.
func (pe *Perror) Errors() []error {
	pe.mx.Lock()
	defer pe.mx.Unlock()
	res := make([]error, len(pe.errors))
	copy(res, pe.errors)
	return res
}

// Err joins every buffered error into one, or returns <nil> if none were reported.
func (pe *Perror) Err() error {
	return errors.Join(pe.Errors()...)
}
