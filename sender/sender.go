package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/rtp-go/rtp/core"
	"github.com/rtp-go/rtp/std/link"
	"github.com/rtp-go/rtp/std/rtp"
	"github.com/rtp-go/rtp/std/timer"
	"github.com/rtp-go/rtp/std/types/optional"
)

// ErrPeerUnresponsive is returned when START or END went unanswered
// for MaxRetries attempts.
var ErrPeerUnresponsive = errors.New("peer unresponsive")

// Phase is the lifecycle stage of a Sender.
type Phase int32

const (
	Disconnected Phase = iota
	Connecting
	Established
	Disconnecting
	Closed
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Established:
		return "ESTABLISHED"
	case Disconnecting:
		return "DISCONNECTING"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Options configures a Sender.
type Options struct {
	// Maximum number of unacknowledged DATA segments.
	WindowSize int
	// Bytes per DATA segment, at most rtp.MaxDataSize.
	PayloadSize int
	// Fixed retransmission interval.
	Timeout time.Duration
	// The transfer is abandoned after this long without any ACK.
	SilencePeriod time.Duration
	// Attempts for START and END. Zero retries forever.
	MaxRetries int
	// Clock for the retransmission timer and Stats.Elapsed. Defaults to
	// the system clock. START/END waits and the silence period are socket
	// read deadlines and always follow the wall clock.
	Timer timer.Timer
}

// Stats summarizes a finished transfer.
type Stats struct {
	SegmentsSent    uint64
	Retransmissions uint64
	AcksReceived    uint64
	StartAttempts   uint64
	EndAttempts     uint64
	BytesRead       uint64
	// Time from Run to teardown, on the sender's Timer
	Elapsed time.Duration
	// xxhash-64 of the input stream
	Digest uint64
}

// Sender transfers one input stream to a receiver over a datagram socket.
type Sender struct {
	conn   net.PacketConn
	remote net.Addr
	opts   Options
	timer  timer.Timer
	phase  atomic.Int32

	// mutex serializes ACK handling with retransmission callbacks
	mutex  sync.Mutex
	window *rtp.SendWindow
	rto    optional.Optional[func() error]
	rtoGen uint64
	stats  Stats
}

// New creates a Sender that talks to remote through conn.
// The socket is closed when Run returns.
func New(conn net.PacketConn, remote net.Addr, opts Options) *Sender {
	if opts.Timer == nil {
		opts.Timer = timer.NewTimer()
	}
	if opts.PayloadSize == 0 {
		opts.PayloadSize = rtp.MaxDataSize
	}
	if opts.SilencePeriod == 0 {
		opts.SilencePeriod = core.DefaultIdleFactor * opts.Timeout
	}
	return &Sender{
		conn:   conn,
		remote: remote,
		opts:   opts,
		timer:  opts.Timer,
	}
}

func (s *Sender) String() string {
	return fmt.Sprintf("sender (%s)", s.remote)
}

// Phase returns the current lifecycle stage.
func (s *Sender) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Sender) setPhase(p Phase) {
	prev := Phase(s.phase.Swap(int32(p)))
	if prev != p {
		core.Log.Debug(s, "Phase change", "from", prev, "to", p)
	}
}

// Run connects, sends everything read from input and disconnects.
// It returns when the receiver acknowledged END, on a local fault, or
// when ctx is cancelled.
func (s *Sender) Run(ctx context.Context, input io.Reader) (stats Stats, err error) {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	start := s.timer.Now()
	digest := xxhash.New()
	defer func() {
		s.close()
		s.mutex.Lock()
		stats = s.stats
		if s.window != nil {
			stats.BytesRead = s.window.BytesRead()
		}
		s.mutex.Unlock()
		stats.Elapsed = s.timer.Now().Sub(start)
		stats.Digest = digest.Sum64()
		if ctx.Err() != nil && err != nil && !errors.Is(err, ErrPeerUnresponsive) {
			err = ctx.Err()
		}
	}()

	if err = s.connect(); err != nil {
		return
	}
	if err = s.transfer(io.TeeReader(input, digest)); err != nil {
		return
	}
	err = s.disconnect()
	return
}

// connect performs the START exchange.
func (s *Sender) connect() error {
	s.setPhase(Connecting)
	err := s.exchange(rtp.TypeStart, 0, &s.stats.StartAttempts)
	if err != nil {
		return err
	}
	core.Log.Info(s, "Connected")
	return nil
}

// disconnect performs the END exchange.
func (s *Sender) disconnect() error {
	s.mutex.Lock()
	s.disarm()
	seq := s.window.LastAcked() + 1
	s.mutex.Unlock()

	s.setPhase(Disconnecting)
	err := s.exchange(rtp.TypeEnd, seq, &s.stats.EndAttempts)
	if err != nil {
		return err
	}
	core.Log.Info(s, "Disconnected", "seq", seq)
	return nil
}

func (s *Sender) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.disarm()
	s.setPhase(Closed)
}

// exchange sends a control packet every Timeout until it is acknowledged
// with the same sequence number.
func (s *Sender) exchange(typ rtp.PacketType, seq uint32, attempts *uint64) error {
	wire := rtp.NewPacket(typ, seq, nil).Encode()
	buf := make([]byte, rtp.MaxPacketSize)

	for attempt := 1; ; attempt++ {
		if s.opts.MaxRetries > 0 && attempt > s.opts.MaxRetries {
			core.Log.Error(s, "No answer from receiver", "type", typ, "attempts", attempt-1)
			return ErrPeerUnresponsive
		}

		s.mutex.Lock()
		*attempts++
		s.mutex.Unlock()
		if attempt > 1 {
			core.Log.Debug(s, "Retrying", "type", typ, "seq", seq, "attempt", attempt)
		}
		if _, err := s.conn.WriteTo(wire, s.remote); err != nil {
			return core.Fatal("send "+typ.String(), err)
		}

		deadline := time.Now().Add(s.opts.Timeout)
		for {
			pkt, err := s.recv(buf, deadline)
			if err != nil {
				if link.IsTimeout(err) {
					break
				}
				return err
			}
			if pkt == nil {
				continue
			}
			if pkt.Type == rtp.TypeAck && pkt.SeqNum == seq {
				s.mutex.Lock()
				s.stats.AcksReceived++
				s.mutex.Unlock()
				return nil
			}
			core.Log.Trace(s, "Ignore while waiting", "want", typ, "pkt", pkt)
		}
	}
}

// recv reads one datagram from the receiver. It returns a nil packet
// for anything that should be ignored.
func (s *Sender) recv(buf []byte, deadline time.Time) (*rtp.Packet, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, core.Fatal("set read deadline", err)
	}
	n, from, err := s.conn.ReadFrom(buf)
	if err != nil {
		if link.IsTimeout(err) {
			return nil, err
		}
		return nil, core.Fatal("receive", err)
	}
	if !link.SameAddr(from, s.remote) {
		core.Log.Debug(s, "Datagram from unknown peer", "from", from)
		return nil, nil
	}
	pkt, err := rtp.DecodeVerified(buf[:n])
	if err != nil {
		core.Log.Trace(s, "Drop datagram", "err", err)
		return nil, nil
	}
	return pkt, nil
}

// transfer runs the sliding window until the input is acknowledged or
// the receiver falls silent.
func (s *Sender) transfer(input io.Reader) error {
	s.mutex.Lock()
	s.window = rtp.NewSendWindow(s.opts.WindowSize, s.opts.PayloadSize, input)
	s.setPhase(Established)
	pkts, err := s.window.Fill(s.opts.WindowSize)
	if err == nil {
		err = s.sendNew(pkts)
	}
	s.mutex.Unlock()
	if err != nil {
		return core.Fatal("transfer", err)
	}

	buf := make([]byte, rtp.MaxPacketSize)
	lastAck := time.Now()
	for {
		s.mutex.Lock()
		done := s.window.Done()
		s.mutex.Unlock()
		if done {
			return nil
		}

		pkt, err := s.recv(buf, lastAck.Add(s.opts.SilencePeriod))
		if err != nil {
			if link.IsTimeout(err) {
				core.Log.Warn(s, "No ACK within silence period, closing", "period", s.opts.SilencePeriod)
				return nil
			}
			return err
		}
		if pkt == nil {
			continue
		}
		if pkt.Type != rtp.TypeAck {
			core.Log.Warn(s, "Unexpected packet", "pkt", pkt)
			continue
		}

		lastAck = time.Now()
		if err := s.onAck(pkt.SeqNum); err != nil {
			return core.Fatal("transfer", err)
		}
	}
}

func (s *Sender) onAck(ack uint32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stats.AcksReceived++

	acked, ok := rtp.AckedThrough(ack)
	if !ok || acked <= s.window.LastAcked() {
		core.Log.Trace(s, "Stale ACK", "ack", ack, "base", s.window.Base())
		return nil
	}
	if acked > s.window.LastSent() {
		core.Log.Warn(s, "ACK beyond sent data", "ack", ack, "sent", s.window.LastSent())
		return nil
	}

	s.disarm()
	pkts, err := s.window.Advance(int(acked - s.window.LastAcked()))
	core.Log.Trace(s, "Window advanced", "ack", ack, "inflight", s.window.Len())
	if err != nil {
		return err
	}
	return s.sendNew(pkts)
}

// sendNew arms the timer and transmits freshly framed segments.
// Must be called with the mutex held.
func (s *Sender) sendNew(pkts []*rtp.Packet) error {
	if s.window.Len() > 0 {
		s.arm()
	}
	for _, pkt := range pkts {
		if err := s.send(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) send(pkt *rtp.Packet) error {
	core.Log.Trace(s, "Send", "pkt", pkt)
	if _, err := s.conn.WriteTo(pkt.Encode(), s.remote); err != nil {
		return err
	}
	s.stats.SegmentsSent++
	return nil
}

// arm replaces the retransmission timer. Must be called with the mutex held.
func (s *Sender) arm() {
	s.disarm()
	s.rtoGen++
	gen := s.rtoGen
	s.rto.Set(s.timer.Schedule(s.opts.Timeout, func() { s.onTimeout(gen) }))
}

// disarm cancels the retransmission timer. Must be called with the mutex held.
func (s *Sender) disarm() {
	if cancel, ok := s.rto.Take(); ok {
		cancel()
	}
}

func (s *Sender) onTimeout(gen uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if gen != s.rtoGen || s.Phase() != Established {
		return
	}
	s.rto.Unset()

	inflight := s.window.InFlight()
	if len(inflight) == 0 {
		return
	}
	core.Log.Debug(s, "Retransmission timeout", "base", s.window.Base(), "count", len(inflight))

	s.arm()
	for _, pkt := range inflight {
		if err := s.send(pkt); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				core.Log.Warn(s, "Unable to retransmit", "seq", pkt.SeqNum, "err", err)
			}
			return
		}
		s.stats.Retransmissions++
	}
}
