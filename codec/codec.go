// Package codec serializes cached results for byte-oriented storage
// backends. Snapshots are framed separately; a codec only ever sees the
// operation's result value.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Decode must accept anything Encode produced by the same codec version.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
