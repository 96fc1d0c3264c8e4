package rtp

import "hash/crc32"

// Checksum computes the integrity code of a serialized segment whose
// checksum field has already been zeroed.
func Checksum(wire []byte) uint32 {
	return crc32.ChecksumIEEE(wire)
}
