// Package hash derives the stable identifiers stored in BP4 metadata.
package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// MemberID returns the 32-bit member id recorded for a variable or attribute name.
func MemberID(name string) uint32 {
	return uint32(ID(name))
}

// ContextID derives the id of a communicator created from parent by its seq-th split,
// for the ranks that passed color. Every member computes the same value independently.
func ContextID(parent uint64, seq uint64, color int) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], parent)
	binary.LittleEndian.PutUint64(buf[8:], seq)
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(color)))

	return xxhash.Sum64(buf[:])
}
