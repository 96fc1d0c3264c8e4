package rtp_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rtp-go/rtp/std/rtp"
	tu "github.com/rtp-go/rtp/std/utils/testutils"
	"github.com/stretchr/testify/require"
)

func seqs(pkts []*rtp.Packet) []uint32 {
	ret := make([]uint32, len(pkts))
	for i, p := range pkts {
		ret[i] = p.SeqNum
	}
	return ret
}

func payloads(pkts []*rtp.Packet) string {
	var sb strings.Builder
	for _, p := range pkts {
		sb.Write(p.Payload)
	}
	return sb.String()
}

func TestFillAndAdvance(t *testing.T) {
	tu.SetT(t)

	w := rtp.NewSendWindow(4, 1, strings.NewReader("ABCDEFGH"))
	added := tu.NoErr(w.Fill(4))
	require.Equal(t, []uint32{1, 2, 3, 4}, seqs(added))
	require.Equal(t, "ABCD", payloads(added))
	require.Equal(t, uint32(1), w.Base())
	require.False(t, w.EOF())

	// window is full
	require.Empty(t, tu.NoErr(w.Fill(1)))

	added = tu.NoErr(w.Advance(2))
	require.Equal(t, []uint32{5, 6}, seqs(added))
	require.Equal(t, []uint32{3, 4, 5, 6}, seqs(w.InFlight()))
	require.Equal(t, uint32(2), w.LastAcked())
	require.Equal(t, uint32(3), w.Base())

	added = tu.NoErr(w.Advance(4))
	require.Equal(t, "GH", payloads(added))
	require.True(t, w.EOF())
	require.False(t, w.Done())
	require.Equal(t, uint32(8), w.LastSent())

	require.Empty(t, tu.NoErr(w.Advance(2)))
	require.True(t, w.Done())
	require.Equal(t, uint32(8), w.LastAcked())
	require.Equal(t, uint64(8), w.BytesRead())
}

func TestPartialLastChunk(t *testing.T) {
	tu.SetT(t)

	w := rtp.NewSendWindow(8, 3, strings.NewReader("abcdefg"))
	added := tu.NoErr(w.Fill(8))
	require.Equal(t, []string{"abc", "def", "g"}, []string{
		string(added[0].Payload), string(added[1].Payload), string(added[2].Payload),
	})
	require.Len(t, added, 3)
	require.True(t, w.EOF())
	for _, p := range added {
		require.True(t, p.Verify())
		require.Equal(t, rtp.TypeData, p.Type)
	}
}

func TestEmptyInput(t *testing.T) {
	tu.SetT(t)

	w := rtp.NewSendWindow(4, rtp.MaxDataSize, strings.NewReader(""))
	require.Empty(t, tu.NoErr(w.Fill(4)))
	require.True(t, w.Done())
	require.Equal(t, uint32(1), w.Base())
}

func TestAdvanceIsIdempotentForZero(t *testing.T) {
	tu.SetT(t)

	w := rtp.NewSendWindow(2, 1, strings.NewReader("xyz"))
	tu.NoErr(w.Fill(2))
	require.Empty(t, tu.NoErr(w.Advance(0)))
	require.Equal(t, []uint32{1, 2}, seqs(w.InFlight()))
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("device unplugged")
}

func TestInputError(t *testing.T) {
	tu.SetT(t)

	w := rtp.NewSendWindow(2, 4, io.MultiReader(strings.NewReader("abcd"), brokenReader{}))
	added, err := w.Fill(2)
	require.Len(t, added, 1)
	var ie *rtp.InputError
	require.ErrorAs(t, err, &ie)
}

func TestAckedThrough(t *testing.T) {
	_, ok := rtp.AckedThrough(0)
	require.False(t, ok)
	last, ok := rtp.AckedThrough(5)
	require.True(t, ok)
	require.Equal(t, uint32(4), last)
}
