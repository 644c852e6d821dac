package util

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Output serialises text produced by worker threads onto one io.Writer. Every worker writes through its own Writer,
// whose buffer is handed over to the Output in one piece when flushed, so listings of different methods never
// interleave.
type Output struct {
	c    chan string   // Write channel used for receiving data from worker threads.
	done chan struct{} // Closed by the listener after the last write.
	w    *bufio.Writer // Destination of all output.
	err  error         // First error reported by w.
}

// Writer buffers output from one thread in a strings.Builder. When the Flush or Close method is called the buffer
// is emptied and sent to the Output it was created from.
type Writer struct {
	sb strings.Builder
	c  chan string
}

// ---------------------
// ----- Constants -----
// ---------------------

// ---------------------
// ----- Functions -----
// ---------------------

// NewOutput starts listening for worker thread output destined for w. Up to t flushed buffers are queued before
// workers block.
func NewOutput(t int, w io.Writer) *Output {
	o := &Output{
		c:    make(chan string, t),
		done: make(chan struct{}),
		w:    bufio.NewWriter(w),
	}
	go o.listen()
	return o
}

// listen writes received buffers until the write channel is closed.
func (o *Output) listen() {
	defer close(o.done)
	for s := range o.c {
		if o.err != nil {
			continue
		}
		if _, err := o.w.WriteString(s); err != nil {
			o.err = err
		}
	}
	if o.err == nil {
		o.err = o.w.Flush()
	}
}

// NewWriter returns a new Writer to be used by one worker thread.
func (o *Output) NewWriter() *Writer {
	return &Writer{c: o.c}
}

// Close waits for every flushed buffer to be written and returns the first write error. No Writer of o may be
// flushed after Close.
func (o *Output) Close() error {
	close(o.c)
	<-o.done
	return o.err
}

// Write writes a format string to the Writer's buffer.
func (w *Writer) Write(format string, args ...interface{}) {
	w.sb.WriteString(fmt.Sprintf(format, args...))
}

// Label writes a one-line label with the given name.
func (w *Writer) Label(name string) {
	w.sb.WriteString(fmt.Sprintf("\n%s:\n", name))
}

// Ins writes a one-line instruction.
func (w *Writer) Ins(ins string) {
	w.sb.WriteString(fmt.Sprintf("\t%s\n", ins))
}

// Flush empties the Writer's buffer and sends the buffer data to the Output over the Writer's channel.
func (w *Writer) Flush() {
	if w.sb.Len() == 0 {
		return
	}
	w.c <- w.sb.String()
	w.sb = strings.Builder{}
}

// Close flushes the Writer's buffer and detaches it from its Output.
func (w *Writer) Close() {
	w.Flush()
	w.c = nil
}
