package rtp

import (
	"errors"
	"fmt"
	"io"
)

// SendWindow holds the in-flight DATA segments of a sender and refills
// itself from the application input. It is not safe for concurrent use.
type SendWindow struct {
	size     int
	chunk    int
	input    io.Reader
	inflight []*Packet

	// last sequence number assigned to a DATA segment
	next uint32
	// last sequence number acknowledged by the peer
	acked uint32

	eof       bool
	bytesRead uint64
}

// NewSendWindow creates a window of size segments, each carrying at most
// chunk bytes read from input.
func NewSendWindow(size, chunk int, input io.Reader) *SendWindow {
	if size < 1 {
		panic("send window size must be positive")
	}
	if chunk < 1 || chunk > MaxDataSize {
		panic(fmt.Sprintf("chunk size must be in [1, %d]", MaxDataSize))
	}
	return &SendWindow{
		size:     size,
		chunk:    chunk,
		input:    input,
		inflight: make([]*Packet, 0, size),
	}
}

// Fill reads up to n more chunks from the input and frames them as DATA.
// It returns the packets appended, which may be fewer than n when the
// input runs out or the window is full.
func (w *SendWindow) Fill(n int) ([]*Packet, error) {
	start := len(w.inflight)
	for i := 0; i < n && !w.eof && len(w.inflight) < w.size; i++ {
		buf := make([]byte, w.chunk)
		read, err := io.ReadFull(w.input, buf)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			w.eof = true
		case err != nil:
			return w.inflight[start:], &InputError{Err: err}
		}
		if read == 0 {
			break
		}
		w.bytesRead += uint64(read)
		w.next++
		w.inflight = append(w.inflight, NewPacket(TypeData, w.next, buf[:read]))
	}
	return w.inflight[start:], nil
}

// Advance drops the oldest n in-flight segments, now acknowledged, and
// refills the window. It returns only the newly framed packets.
func (w *SendWindow) Advance(n int) ([]*Packet, error) {
	if n > len(w.inflight) {
		n = len(w.inflight)
	}
	if n <= 0 {
		return nil, nil
	}
	clear(w.inflight[:n])
	w.inflight = append(w.inflight[:0], w.inflight[n:]...)
	w.acked += uint32(n)
	return w.Fill(n)
}

// InFlight returns a copy of the unacknowledged segments, oldest first.
func (w *SendWindow) InFlight() []*Packet {
	ret := make([]*Packet, len(w.inflight))
	copy(ret, w.inflight)
	return ret
}

// Len returns the number of in-flight segments.
func (w *SendWindow) Len() int {
	return len(w.inflight)
}

// Base returns the oldest unacknowledged sequence number.
func (w *SendWindow) Base() uint32 {
	return w.acked + 1
}

// LastAcked returns the highest acknowledged DATA sequence number.
func (w *SendWindow) LastAcked() uint32 {
	return w.acked
}

// LastSent returns the highest sequence number framed so far.
func (w *SendWindow) LastSent() uint32 {
	return w.next
}

// EOF reports whether the input has been exhausted.
func (w *SendWindow) EOF() bool {
	return w.eof
}

// Done reports whether the input is exhausted and everything was acknowledged.
func (w *SendWindow) Done() bool {
	return w.eof && len(w.inflight) == 0
}

// BytesRead returns the number of input bytes framed so far.
func (w *SendWindow) BytesRead() uint64 {
	return w.bytesRead
}
