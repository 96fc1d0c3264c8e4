package receiver

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/rtp-go/rtp/core"
	"github.com/rtp-go/rtp/std/link"
	"github.com/rtp-go/rtp/std/rtp"
)

// Options configures a Receiver.
type Options struct {
	// Number of out-of-order segments buffered.
	WindowSize int
	// A session with no traffic for this long is dropped.
	IdleTimeout time.Duration
	// Return from Run after the first session closed with END.
	Once bool
}

// Counters are cumulative over the lifetime of a Receiver.
type Counters struct {
	NSessions    uint64
	NInData      uint64
	NDuplicates  uint64
	NOverflows   uint64
	NDropped     uint64
	NOutAcks     uint64
	NIdleResets  uint64
	NDelivered   uint64
	LastDigest   uint64
	LastSessionN uint64
}

// Receiver accepts one RTP session at a time on a datagram socket and
// writes the reassembled stream to its output.
type Receiver struct {
	conn   net.PacketConn
	output io.Writer
	opts   Options

	connected bool
	peer      net.Addr
	window    *rtp.ReceiveWindow
	digest    hash.Hash64
	since     time.Time

	// last session closed with END, to answer retransmitted ENDs
	closedPeer net.Addr
	closedSeq  uint32
	lingering  bool

	lock     sync.Mutex
	counters Counters
}

// New creates a Receiver on a bound socket. The socket is closed when Run returns.
func New(conn net.PacketConn, output io.Writer, opts Options) *Receiver {
	digest := xxhash.New()
	return &Receiver{
		conn:   conn,
		output: output,
		opts:   opts,
		window: rtp.NewReceiveWindow(opts.WindowSize, io.MultiWriter(output, digest)),
		digest: digest,
	}
}

func (r *Receiver) String() string {
	return fmt.Sprintf("receiver (%s)", r.conn.LocalAddr())
}

// Counters returns a snapshot of the counters.
func (r *Receiver) Counters() Counters {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counters
}

func (r *Receiver) count(f func(c *Counters)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	f(&r.counters)
}

// Run serves sessions until ctx is cancelled or, with Once, the first
// session has been closed. Only local faults are returned.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.conn.Close()
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	core.Log.Info(r, "Listening", "window", r.opts.WindowSize, "idle", r.opts.IdleTimeout)

	buf := make([]byte, rtp.MaxPacketSize)
	for {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.opts.IdleTimeout)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return core.Fatal("set read deadline", err)
		}

		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if link.IsTimeout(err) {
				if !r.lingering {
					r.onIdle()
				}
				if r.lingering {
					core.Log.Info(r, "Done")
					return nil
				}
				continue
			}
			return core.Fatal("receive", err)
		}

		if err := r.handle(buf[:n], from); err != nil {
			return err
		}
	}
}

func (r *Receiver) handle(b []byte, from net.Addr) error {
	pkt, err := rtp.DecodeVerified(b)
	if err != nil {
		r.count(func(c *Counters) { c.NDropped++ })
		core.Log.Trace(r, "Drop datagram", "from", from, "err", err)
		return nil
	}
	core.Log.Trace(r, "Received", "pkt", pkt, "from", from)

	switch pkt.Type {
	case rtp.TypeStart:
		r.onStart(pkt, from)
	case rtp.TypeEnd:
		r.onEnd(pkt, from)
	case rtp.TypeData:
		return r.onData(pkt, from)
	default:
		core.Log.Warn(r, "Unexpected packet", "pkt", pkt, "from", from)
	}
	return nil
}

func (r *Receiver) onStart(pkt *rtp.Packet, from net.Addr) {
	if r.connected {
		if link.SameAddr(from, r.peer) {
			// our START ACK was lost
			core.Log.Debug(r, "Repeated START from session peer", "peer", from)
			r.sendAck(pkt.SeqNum, from)
		} else {
			core.Log.Info(r, "Ignore another connection", "peer", from, "session", r.peer)
		}
		return
	}

	r.connected = true
	r.lingering = false
	r.closedPeer = nil
	r.peer = from
	r.since = time.Now()
	r.digest.Reset()
	r.window.Reset()
	r.count(func(c *Counters) { c.NSessions++ })
	core.Log.Info(r, "Session established", "peer", from)

	r.sendAck(pkt.SeqNum, from)
}

func (r *Receiver) onEnd(pkt *rtp.Packet, from net.Addr) {
	if !r.connected {
		if r.closedPeer != nil && link.SameAddr(from, r.closedPeer) && pkt.SeqNum == r.closedSeq {
			// our END ACK was lost
			core.Log.Debug(r, "Repeated END from closed session", "peer", from)
			r.sendAck(pkt.SeqNum, from)
			return
		}
		core.Log.Warn(r, "Not connected but received END", "peer", from, "seq", pkt.SeqNum)
		return
	}
	if !link.SameAddr(from, r.peer) {
		core.Log.Warn(r, "END from foreign peer", "peer", from, "session", r.peer)
		return
	}

	r.sendAck(pkt.SeqNum, from)
	r.closeSession("end")
	r.closedPeer = from
	r.closedSeq = pkt.SeqNum
	r.lingering = r.opts.Once
}

func (r *Receiver) onData(pkt *rtp.Packet, from net.Addr) error {
	if !r.connected {
		core.Log.Warn(r, "Not connected but received DATA", "peer", from, "seq", pkt.SeqNum)
		return nil
	}
	if !link.SameAddr(from, r.peer) {
		core.Log.Warn(r, "DATA from foreign peer", "peer", from, "session", r.peer)
		return nil
	}

	res, ack, err := r.window.Accept(pkt.SeqNum, pkt.Payload)
	r.count(func(c *Counters) {
		c.NInData++
		switch res {
		case rtp.Duplicate:
			c.NDuplicates++
		case rtp.WindowOverflow:
			c.NOverflows++
		}
	})
	switch res {
	case rtp.Duplicate:
		core.Log.Debug(r, "Duplicated data", "seq", pkt.SeqNum, "ack", ack)
	case rtp.WindowOverflow:
		core.Log.Debug(r, "Datagram overflows receiving window, drop", "seq", pkt.SeqNum, "base", r.window.Base())
	}
	if err != nil {
		return core.Fatal("deliver", err)
	}

	// Always acknowledge, so the sender learns the cumulative point even
	// when the previous ACK was lost.
	r.sendAck(ack, from)
	return nil
}

func (r *Receiver) onIdle() {
	r.closedPeer = nil
	if !r.connected {
		return
	}
	core.Log.Warn(r, "Session idle, dropping", "peer", r.peer, "timeout", r.opts.IdleTimeout)
	r.count(func(c *Counters) { c.NIdleResets++ })
	r.closeSession("idle")
	r.lingering = r.opts.Once
}

func (r *Receiver) closeSession(reason string) {
	delivered := r.window.Delivered()
	sum := r.digest.Sum64()
	r.count(func(c *Counters) {
		c.NDelivered += delivered
		c.LastDigest = sum
		c.LastSessionN = delivered
	})
	core.Log.Info(r, "Session closed",
		"peer", r.peer,
		"reason", reason,
		"bytes", delivered,
		"buffered", r.window.Buffered(),
		"digest", fmt.Sprintf("%016x", sum),
		"duration", time.Since(r.since).Round(time.Millisecond))

	r.connected = false
	r.peer = nil
}

func (r *Receiver) sendAck(seq uint32, to net.Addr) {
	_, err := r.conn.WriteTo(rtp.NewAck(seq).Encode(), to)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return
		}
		core.Log.Warn(r, "Unable to send ACK", "seq", seq, "peer", to, "err", err)
		return
	}
	r.count(func(c *Counters) { c.NOutAcks++ })
}
