package link

import (
	"net"
	"os"
	"sync"
	"time"
)

// pipeQueueSize bounds each direction. Datagrams beyond it are dropped,
// like a full socket buffer.
const pipeQueueSize = 1024

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

type datagram struct {
	from net.Addr
	data []byte
}

// PipeConn is one end of an in-memory datagram link.
type PipeConn struct {
	local net.Addr
	peer  *PipeConn
	inbox chan datagram

	closeOnce sync.Once
	closed    chan struct{}

	lock     sync.Mutex
	deadline time.Time
}

// Pipe returns two connected in-memory datagram endpoints. Writes go to
// the other end regardless of the destination address given.
func Pipe() (*PipeConn, *PipeConn) {
	a := newPipeConn("pipe-a")
	b := newPipeConn("pipe-b")
	a.peer, b.peer = b, a
	return a, b
}

func newPipeConn(name string) *PipeConn {
	return &PipeConn{
		local:  pipeAddr(name),
		inbox:  make(chan datagram, pipeQueueSize),
		closed: make(chan struct{}),
	}
}

func (c *PipeConn) String() string {
	return "pipe (" + c.local.String() + ")"
}

// PeerAddr returns the address of the other end.
func (c *PipeConn) PeerAddr() net.Addr {
	return c.peer.local
}

func (c *PipeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.lock.Lock()
	deadline := c.deadline
	c.lock.Unlock()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return 0, nil, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(d)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}

	select {
	case dg := <-c.inbox:
		return copy(p, dg.data), dg.from, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case <-expired:
		return 0, nil, os.ErrDeadlineExceeded
	}
}

func (c *PipeConn) WriteTo(p []byte, _ net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}

	dg := datagram{from: c.local, data: append([]byte(nil), p...)}
	select {
	case <-c.peer.closed:
		// nobody listening, the datagram is lost
	case c.peer.inbox <- dg:
	default:
	}
	return len(p), nil
}

func (c *PipeConn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = nil
	})
	return err
}

func (c *PipeConn) LocalAddr() net.Addr {
	return c.local
}

func (c *PipeConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *PipeConn) SetReadDeadline(t time.Time) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.deadline = t
	return nil
}

func (c *PipeConn) SetWriteDeadline(time.Time) error {
	return nil
}
