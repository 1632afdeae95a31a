package util

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// keyScheme is bumped whenever the field encoding below changes.
const keyScheme = "k1"

// DeriveKey returns a deterministic cache key for an operation kind.
// Every field is length-prefixed before hashing, so a separator inside a
// field can never make two different tuples collide.
//
//	<scheme>:<kind>:<hex(sha256(version, fields...))[:32]>
func DeriveKey(kind, version string, fields []string) string {
	h := sha256.New()
	var u4 [4]byte

	write := func(s string) {
		binary.BigEndian.PutUint32(u4[:], uint32(len(s)))
		h.Write(u4[:])
		h.Write([]byte(s))
	}

	write(version)
	binary.BigEndian.PutUint32(u4[:], uint32(len(fields)))
	h.Write(u4[:])
	for _, f := range fields {
		write(f)
	}

	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return keyScheme + ":" + kind + ":" + hex.EncodeToString(sum[:16])
}
