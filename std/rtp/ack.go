package rtp

// ackSet records which sequence numbers have been received above a base.
// Entries at or below the base are pruned as the base moves.
type ackSet map[uint32]struct{}

func (s ackSet) add(seq uint32) {
	s[seq] = struct{}{}
}

func (s ackSet) has(seq uint32) bool {
	_, ok := s[seq]
	return ok
}

// cumulative scans forward from base through consecutively received numbers
// and returns the last one of the run.
func (s ackSet) cumulative(base uint32) uint32 {
	cur := base
	for s.has(cur + 1) {
		cur++
	}
	return cur
}

// prune removes the run (from, to].
func (s ackSet) prune(from, to uint32) {
	for seq := from + 1; seq <= to; seq++ {
		delete(s, seq)
	}
}

// AckedThrough converts a cumulative ACK number (next expected sequence)
// into the last sequence number it covers. ok is false for ACK 0, which
// covers nothing.
func AckedThrough(ack uint32) (last uint32, ok bool) {
	if ack == 0 {
		return 0, false
	}
	return ack - 1, true
}
