package rtp

import (
	"errors"
	"fmt"
)

// Decode failures. The datagram carrying them is dropped.
var (
	// ErrTruncated means the datagram is shorter than its header declares.
	ErrTruncated = errors.New("datagram shorter than declared payload")
	// ErrPayloadTooLarge means the declared length exceeds MaxDataSize.
	ErrPayloadTooLarge = errors.New("payload length exceeds maximum data size")
	// ErrUnknownType means the type field is not one of the four segment types.
	ErrUnknownType = errors.New("unknown packet type")
	// ErrChecksum means the content does not match the stored checksum.
	ErrChecksum = errors.New("checksum mismatch")
)

// MalformedHeaderError is returned when a datagram cannot hold a header.
type MalformedHeaderError struct {
	Size int
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header: %d bytes, need %d", e.Size, HeaderSize)
}

// InputError wraps a failure to read the application input stream.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return "read input: " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// OutputError wraps a failure to write the delivered stream.
type OutputError struct {
	Err error
}

func (e *OutputError) Error() string {
	return "write output: " + e.Err.Error()
}

func (e *OutputError) Unwrap() error {
	return e.Err
}
