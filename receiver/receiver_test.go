package receiver_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash"
	"github.com/rtp-go/rtp/receiver"
	"github.com/rtp-go/rtp/std/link"
	"github.com/rtp-go/rtp/std/rtp"
	tu "github.com/rtp-go/rtp/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the receiver goroutine and read by the test.
type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

type peer struct {
	t    *testing.T
	conn net.PacketConn
	to   net.Addr
}

func newPeer(t *testing.T, to net.Addr) *peer {
	conn := tu.NoErr(net.ListenPacket("udp", "127.0.0.1:0"))
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn, to: to}
}

func (p *peer) send(typ rtp.PacketType, seq uint32, payload string) {
	_, err := p.conn.WriteTo(rtp.NewPacket(typ, seq, []byte(payload)).Encode(), p.to)
	require.NoError(p.t, err)
}

func (p *peer) expectAck(seq uint32) {
	buf := make([]byte, rtp.MaxPacketSize)
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := p.conn.ReadFrom(buf)
	require.NoError(p.t, err)
	pkt, err := rtp.DecodeVerified(buf[:n])
	require.NoError(p.t, err)
	require.Equal(p.t, rtp.TypeAck, pkt.Type)
	require.Equal(p.t, seq, pkt.SeqNum)
}

func (p *peer) expectSilence(d time.Duration) {
	buf := make([]byte, rtp.MaxPacketSize)
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(d)))
	_, _, err := p.conn.ReadFrom(buf)
	require.True(p.t, link.IsTimeout(err), "unexpected reply: %v", err)
}

func startReceiver(t *testing.T, opts receiver.Options) (*receiver.Receiver, net.Addr, *syncBuffer, func() error) {
	conn := tu.NoErr(link.Listen(context.Background(), "udp", "127.0.0.1:0"))
	out := &syncBuffer{}
	r := receiver.New(conn, out, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	stop := func() error {
		cancel()
		return tu.Recv(done, time.Second)
	}
	t.Cleanup(func() { cancel() })
	return r, conn.LocalAddr(), out, stop
}

func TestSession(t *testing.T) {
	tu.SetT(t)

	r, addr, out, stop := startReceiver(t, receiver.Options{WindowSize: 4, IdleTimeout: 5 * time.Second})
	a := newPeer(t, addr)
	b := newPeer(t, addr)

	a.send(rtp.TypeStart, 0, "")
	a.expectAck(0)

	// a second connection is ignored
	b.send(rtp.TypeStart, 0, "")
	b.expectSilence(100 * time.Millisecond)

	// lost START ACK
	a.send(rtp.TypeStart, 0, "")
	a.expectAck(0)

	a.send(rtp.TypeData, 2, "B")
	a.expectAck(1)
	a.send(rtp.TypeData, 3, "C")
	a.expectAck(1)
	a.send(rtp.TypeData, 1, "A")
	a.expectAck(4)
	require.Equal(t, "ABC", out.String())

	// duplicates and overflow are still acknowledged
	a.send(rtp.TypeData, 2, "B")
	a.expectAck(4)
	a.send(rtp.TypeData, 9, "I")
	a.expectAck(4)

	// DATA from a foreign peer is dropped
	b.send(rtp.TypeData, 4, "X")
	b.expectSilence(100 * time.Millisecond)

	a.send(rtp.TypeData, 4, "D")
	a.expectAck(5)

	a.send(rtp.TypeEnd, 5, "")
	a.expectAck(5)
	// lost END ACK
	a.send(rtp.TypeEnd, 5, "")
	a.expectAck(5)

	require.NoError(t, stop())
	require.Equal(t, "ABCD", out.String())

	cnt := r.Counters()
	require.Equal(t, uint64(1), cnt.NSessions)
	require.Equal(t, uint64(6), cnt.NInData)
	require.Equal(t, uint64(1), cnt.NDuplicates)
	require.Equal(t, uint64(1), cnt.NOverflows)
	require.Equal(t, uint64(4), cnt.NDelivered)
	require.Equal(t, xxhash.Sum64([]byte("ABCD")), cnt.LastDigest)
}

func TestNotConnected(t *testing.T) {
	tu.SetT(t)

	r, addr, out, stop := startReceiver(t, receiver.Options{WindowSize: 2, IdleTimeout: 5 * time.Second})
	a := newPeer(t, addr)

	a.send(rtp.TypeEnd, 1, "")
	a.expectSilence(100 * time.Millisecond)
	a.send(rtp.TypeData, 1, "A")
	a.expectSilence(100 * time.Millisecond)
	a.send(rtp.TypeAck, 1, "")
	a.expectSilence(100 * time.Millisecond)

	// corrupted START
	wire := rtp.NewPacket(rtp.TypeStart, 0, nil).Encode()
	wire[5] ^= 0x10
	_, err := a.conn.WriteTo(wire, addr)
	require.NoError(t, err)
	_, err = a.conn.WriteTo([]byte{1, 2, 3}, addr)
	require.NoError(t, err)
	a.expectSilence(100 * time.Millisecond)

	require.NoError(t, stop())
	require.Empty(t, out.String())
	require.Equal(t, uint64(0), r.Counters().NSessions)
	require.Equal(t, uint64(2), r.Counters().NDropped)
}

func TestIdleTimeout(t *testing.T) {
	tu.SetT(t)

	r, addr, out, stop := startReceiver(t, receiver.Options{WindowSize: 2, IdleTimeout: 200 * time.Millisecond})
	a := newPeer(t, addr)
	b := newPeer(t, addr)

	a.send(rtp.TypeStart, 0, "")
	a.expectAck(0)
	a.send(rtp.TypeData, 1, "A")
	a.expectAck(2)

	time.Sleep(500 * time.Millisecond)

	// the session is gone
	a.send(rtp.TypeData, 2, "B")
	a.expectSilence(100 * time.Millisecond)

	b.send(rtp.TypeStart, 0, "")
	b.expectAck(0)
	b.send(rtp.TypeData, 1, "Z")
	b.expectAck(2)

	require.NoError(t, stop())
	require.Equal(t, "AZ", out.String())
	require.Equal(t, uint64(2), r.Counters().NSessions)
	require.Equal(t, uint64(1), r.Counters().NIdleResets)
}

func TestOnce(t *testing.T) {
	tu.SetT(t)

	conn := tu.NoErr(link.Listen(context.Background(), "udp", "127.0.0.1:0"))
	out := &syncBuffer{}
	r := receiver.New(conn, out, receiver.Options{WindowSize: 2, IdleTimeout: 200 * time.Millisecond, Once: true})
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	a := newPeer(t, conn.LocalAddr())
	a.send(rtp.TypeStart, 0, "")
	a.expectAck(0)
	a.send(rtp.TypeData, 1, "hello")
	a.expectAck(2)
	a.send(rtp.TypeEnd, 2, "")
	a.expectAck(2)

	require.NoError(t, tu.Recv(done, 2*time.Second))
	require.Equal(t, "hello", out.String())
}

func TestOnceIdle(t *testing.T) {
	tu.SetT(t)

	conn := tu.NoErr(link.Listen(context.Background(), "udp", "127.0.0.1:0"))
	out := &syncBuffer{}
	r := receiver.New(conn, out, receiver.Options{WindowSize: 2, IdleTimeout: 100 * time.Millisecond, Once: true})
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	// the sender vanishes without END
	a := newPeer(t, conn.LocalAddr())
	a.send(rtp.TypeStart, 0, "")
	a.expectAck(0)
	a.send(rtp.TypeData, 1, "hello")
	a.expectAck(2)

	require.NoError(t, tu.Recv(done, time.Second))
	require.Equal(t, "hello", out.String())
	require.Equal(t, uint64(1), r.Counters().NIdleResets)
	require.Equal(t, uint64(5), r.Counters().NDelivered)
}
