package snapshot

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Strategy selects what a fingerprint captures about a path.
// The zero value means "unset" and is replaced by the configured default.
type Strategy uint8

const (
	// Existence only records whether the path exists.
	Existence Strategy = iota + 1
	// Timestamp records modification time and size.
	Timestamp
	// Hash records an xxhash64 digest of the content. A touch that leaves
	// the content unchanged does not invalidate.
	Hash
	// TimestampHash compares timestamps first and falls back to the content
	// hash when the timestamp moved.
	TimestampHash
)

func (s Strategy) Valid() bool { return s >= Existence && s <= TimestampHash }

func (s Strategy) String() string {
	switch s {
	case Existence:
		return "existence"
	case Timestamp:
		return "timestamp"
	case Hash:
		return "hash"
	case TimestampHash:
		return "timestamp+hash"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("snapshot: invalid strategy %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "existence":
		*s = Existence
	case "timestamp", "mtime":
		*s = Timestamp
	case "hash", "content":
		*s = Hash
	case "timestamp+hash", "both":
		*s = TimestampHash
	default:
		return fmt.Errorf("snapshot: unknown strategy %q", b)
	}
	return nil
}

func (s *Strategy) UnmarshalYAML(n *yaml.Node) error {
	return s.UnmarshalText([]byte(n.Value))
}

// usesTimestamp reports whether mtime/size are part of the fingerprint.
func (s Strategy) usesTimestamp() bool { return s == Timestamp || s == TimestampHash }

// usesHash reports whether the content digest is part of the fingerprint.
func (s Strategy) usesHash() bool { return s == Hash || s == TimestampHash }
