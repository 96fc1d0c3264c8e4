// Package rtp implements the wire format and the window bookkeeping of the
// reliable transport protocol. It does not own sockets or timers; see the
// sender and receiver packages for the engines built on top of it.
package rtp

import (
	"encoding/binary"
	"fmt"
)

// PacketType discriminates control and data segments.
type PacketType uint32

const (
	TypeStart PacketType = iota
	TypeEnd
	TypeData
	TypeAck
)

const (
	// HeaderSize is the fixed size of the RTP header.
	HeaderSize = 16
	// MaxDataSize is the largest payload that fits an unfragmented
	// Ethernet datagram: 1500 - 20 (IP) - 8 (UDP) - 16 (RTP).
	MaxDataSize = 1456
	// MaxPacketSize is the receive buffer size for one datagram.
	MaxPacketSize = 2048
)

const (
	offType     = 0
	offSeqNum   = 4
	offLength   = 8
	offChecksum = 12
)

func (t PacketType) String() string {
	switch t {
	case TypeStart:
		return "START"
	case TypeEnd:
		return "END"
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	default:
		return fmt.Sprintf("TYPE(%d)", uint32(t))
	}
}

// Packet is one RTP segment.
type Packet struct {
	Type     PacketType
	SeqNum   uint32
	Length   uint32
	Checksum uint32
	Payload  []byte
}

// NewPacket creates a sealed packet. The payload is referenced, not copied.
func NewPacket(typ PacketType, seq uint32, payload []byte) *Packet {
	if len(payload) == 0 {
		payload = nil
	}
	p := &Packet{
		Type:    typ,
		SeqNum:  seq,
		Length:  uint32(len(payload)),
		Payload: payload,
	}
	p.Seal()
	return p
}

// NewAck creates a sealed ACK carrying the given sequence number.
func NewAck(seq uint32) *Packet {
	return NewPacket(TypeAck, seq, nil)
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s(seq=%d len=%d)", p.Type, p.SeqNum, p.Length)
}

func (p *Packet) putHeader(buf []byte, checksum uint32) {
	binary.BigEndian.PutUint32(buf[offType:], uint32(p.Type))
	binary.BigEndian.PutUint32(buf[offSeqNum:], p.SeqNum)
	binary.BigEndian.PutUint32(buf[offLength:], p.Length)
	binary.BigEndian.PutUint32(buf[offChecksum:], checksum)
}

// Encode serializes the packet, header first. The stored checksum is written as is.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	p.putHeader(buf, p.Checksum)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

func (p *Packet) computeChecksum() uint32 {
	wire := make([]byte, HeaderSize+len(p.Payload))
	p.putHeader(wire, 0)
	copy(wire[HeaderSize:], p.Payload)
	return Checksum(wire)
}

// Seal computes and stores the checksum.
func (p *Packet) Seal() {
	p.Checksum = p.computeChecksum()
}

// Verify reports whether the stored checksum matches the content.
func (p *Packet) Verify() bool {
	return p.Checksum == p.computeChecksum()
}

// Decode parses a datagram. Bytes beyond the declared payload length are ignored.
// The returned packet does not alias buf.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, &MalformedHeaderError{Size: len(buf)}
	}

	p := &Packet{
		Type:     PacketType(binary.BigEndian.Uint32(buf[offType:])),
		SeqNum:   binary.BigEndian.Uint32(buf[offSeqNum:]),
		Length:   binary.BigEndian.Uint32(buf[offLength:]),
		Checksum: binary.BigEndian.Uint32(buf[offChecksum:]),
	}
	if p.Type > TypeAck {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint32(p.Type))
	}
	if p.Length > MaxDataSize {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, p.Length)
	}
	if int(p.Length) > len(buf)-HeaderSize {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrTruncated, p.Length, len(buf)-HeaderSize)
	}
	if p.Length > 0 {
		p.Payload = make([]byte, p.Length)
		copy(p.Payload, buf[HeaderSize:])
	}
	return p, nil
}

// DecodeVerified decodes and checks the checksum in one step.
func DecodeVerified(buf []byte) (*Packet, error) {
	p, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if !p.Verify() {
		return nil, ErrChecksum
	}
	return p, nil
}
