package rtp

import (
	"fmt"
	"io"
)

// AcceptResult is the outcome of offering a DATA segment to a ReceiveWindow.
type AcceptResult int

const (
	// Advanced means the segment closed a gap and data was delivered.
	Advanced AcceptResult = iota
	// Buffered means the segment was stored out of order.
	Buffered
	// Duplicate means the segment was already acknowledged.
	Duplicate
	// WindowOverflow means the segment is too far ahead of the base.
	WindowOverflow
)

func (r AcceptResult) String() string {
	switch r {
	case Advanced:
		return "advanced"
	case Buffered:
		return "buffered"
	case Duplicate:
		return "duplicate"
	case WindowOverflow:
		return "window-overflow"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ReceiveWindow buffers out-of-order DATA and delivers contiguous payloads
// in sequence order to its output. It is not safe for concurrent use.
type ReceiveWindow struct {
	size   uint32
	base   uint32
	slots  [][]byte
	acked  ackSet
	output io.Writer

	delivered uint64
	buffered  int
}

// NewReceiveWindow creates a window of size slots with base 0, writing
// delivered payloads to output.
func NewReceiveWindow(size int, output io.Writer) *ReceiveWindow {
	if size < 1 {
		panic("receive window size must be positive")
	}
	return &ReceiveWindow{
		size:   uint32(size),
		slots:  make([][]byte, size),
		acked:  ackSet{0: {}},
		output: output,
	}
}

// Base returns the last sequence number delivered contiguously.
func (w *ReceiveWindow) Base() uint32 {
	return w.base
}

// Ack returns the cumulative ACK number: the next expected sequence.
func (w *ReceiveWindow) Ack() uint32 {
	return w.base + 1
}

// Buffered returns the number of out-of-order payloads held.
func (w *ReceiveWindow) Buffered() int {
	return w.buffered
}

// Delivered returns the number of payload bytes written to the output.
func (w *ReceiveWindow) Delivered() uint64 {
	return w.delivered
}

// Accept offers DATA seq to the window and returns the outcome together
// with the ACK number to send back. The ACK is valid for every outcome.
// A non-nil error is an *OutputError; the window state is still consistent.
func (w *ReceiveWindow) Accept(seq uint32, payload []byte) (AcceptResult, uint32, error) {
	if seq <= w.base || w.acked.has(seq) {
		return Duplicate, w.Ack(), nil
	}
	if seq-w.base > w.size {
		return WindowOverflow, w.Ack(), nil
	}

	w.acked.add(seq)
	w.slots[seq-w.base-1] = payload
	w.buffered++

	cur := w.acked.cumulative(w.base)
	if cur == w.base {
		return Buffered, w.Ack(), nil
	}

	err := w.forward(cur - w.base)
	w.acked.prune(w.base, cur)
	w.base = cur
	return Advanced, w.Ack(), err
}

// forward writes the first n slots to the output and shifts the rest down.
func (w *ReceiveWindow) forward(n uint32) error {
	var err error
	for i := uint32(0); i < n; i++ {
		if err == nil && len(w.slots[i]) > 0 {
			var written int
			written, err = w.output.Write(w.slots[i])
			w.delivered += uint64(written)
		}
	}
	copy(w.slots, w.slots[n:])
	for i := w.size - n; i < w.size; i++ {
		w.slots[i] = nil
	}
	w.buffered -= int(n)
	if err != nil {
		return &OutputError{Err: err}
	}
	return nil
}

// Reset empties the window and moves the base back to 0.
func (w *ReceiveWindow) Reset() {
	clear(w.slots)
	w.acked = ackSet{0: {}}
	w.base = 0
	w.buffered = 0
	w.delivered = 0
}
