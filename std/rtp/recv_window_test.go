package rtp_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/rtp-go/rtp/std/rtp"
	"github.com/stretchr/testify/require"
)

type accept struct {
	res rtp.AcceptResult
	ack uint32
}

func offer(t *testing.T, w *rtp.ReceiveWindow, seq uint32, payload string) accept {
	res, ack, err := w.Accept(seq, []byte(payload))
	require.NoError(t, err)
	return accept{res, ack}
}

func TestCumulativeAckAcrossGap(t *testing.T) {
	var out bytes.Buffer
	w := rtp.NewReceiveWindow(3, &out)

	require.Equal(t, accept{rtp.Buffered, 1}, offer(t, w, 2, "B"))
	require.Equal(t, accept{rtp.Buffered, 1}, offer(t, w, 3, "C"))
	require.Empty(t, out.String())
	require.Equal(t, 2, w.Buffered())

	require.Equal(t, accept{rtp.Advanced, 4}, offer(t, w, 1, "A"))
	require.Equal(t, "ABC", out.String())
	require.Equal(t, uint32(3), w.Base())
	require.Equal(t, 0, w.Buffered())
	require.Equal(t, uint64(3), w.Delivered())
}

func TestWindowOverflowBoundary(t *testing.T) {
	const W = 4
	var out bytes.Buffer
	w := rtp.NewReceiveWindow(W, &out)

	// move the base to B = 2
	offer(t, w, 1, "a")
	offer(t, w, 2, "b")
	B := w.Base()
	require.Equal(t, uint32(2), B)

	require.Equal(t, accept{rtp.WindowOverflow, B + 1}, offer(t, w, B+W+1, "x"))
	require.Equal(t, accept{rtp.Buffered, B + 1}, offer(t, w, B+W, "f"))
	offer(t, w, B+1, "c")
	offer(t, w, B+2, "d")
	require.Equal(t, accept{rtp.Advanced, B + W + 1}, offer(t, w, B+3, "e"))
	require.Equal(t, "abcdef", out.String())
}

func TestDuplicates(t *testing.T) {
	var out bytes.Buffer
	w := rtp.NewReceiveWindow(4, &out)

	offer(t, w, 1, "A")
	require.Equal(t, accept{rtp.Duplicate, 2}, offer(t, w, 1, "A"))
	require.Equal(t, accept{rtp.Buffered, 2}, offer(t, w, 3, "C"))
	require.Equal(t, accept{rtp.Duplicate, 2}, offer(t, w, 3, "C"))
	// START's sequence number is never data
	require.Equal(t, accept{rtp.Duplicate, 2}, offer(t, w, 0, "?"))
	require.Equal(t, "A", out.String())
}

func TestInOrderUnderPermutation(t *testing.T) {
	const n = 200
	const window = 16
	input := make([][]byte, n+1)
	var want bytes.Buffer
	for seq := 1; seq <= n; seq++ {
		input[seq] = []byte{byte(seq), byte(seq >> 8)}
		want.Write(input[seq])
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 20; trial++ {
		var out bytes.Buffer
		w := rtp.NewReceiveWindow(window, &out)

		// deliver in shuffled bursts with duplicates until everything is in
		for w.Base() < n {
			burst := make([]uint32, 0, 2*window)
			for seq := w.Base() + 1; seq <= min(w.Base()+window+2, n); seq++ {
				burst = append(burst, seq)
				if rng.IntN(3) == 0 {
					burst = append(burst, seq)
				}
			}
			rng.Shuffle(len(burst), func(i, j int) { burst[i], burst[j] = burst[j], burst[i] })
			for _, seq := range burst {
				if rng.IntN(4) == 0 {
					continue
				}
				_, _, err := w.Accept(seq, input[seq])
				require.NoError(t, err)
			}
		}
		require.Equal(t, want.Bytes(), out.Bytes())
		require.Equal(t, uint64(want.Len()), w.Delivered())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("pipe closed")
}

func TestOutputError(t *testing.T) {
	w := rtp.NewReceiveWindow(2, failingWriter{})
	res, ack, err := w.Accept(1, []byte("A"))
	require.Equal(t, rtp.Advanced, res)
	require.Equal(t, uint32(2), ack)
	var oe *rtp.OutputError
	require.ErrorAs(t, err, &oe)
}

func TestReset(t *testing.T) {
	var out bytes.Buffer
	w := rtp.NewReceiveWindow(4, &out)
	offer(t, w, 1, "A")
	offer(t, w, 3, "C")
	w.Reset()
	require.Equal(t, uint32(0), w.Base())
	require.Equal(t, 0, w.Buffered())
	require.Equal(t, accept{rtp.Advanced, 2}, offer(t, w, 1, "Z"))
	require.Equal(t, "AZ", out.String())
}
