package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version      byte = 1
	kindEntry    byte = 1
	kindSnapshot byte = 2

	// path(u16 len) | strategy(1) | exists(1) | mtime(8) | size(8) | hash(8)
	recordFixed = 2 + 1 + 1 + 8 + 8 + 8
)

var (
	ErrCorrupt = errors.New("snapcache: corrupt entry")
	magic4     = [...]byte{'S', 'N', 'P', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | klen(u16 be) | key(klen)
//
//	| slen(u32 be) | snapshot(slen) | vlen(u32 be) | payload(vlen)
func EncodeEntry(key string, snapshot, payload []byte) ([]byte, error) {
	if l := len(key); l == 0 || l > 0xFFFF {
		return nil, fmt.Errorf("snapcache: invalid key length %d", l)
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(key) + 4 + len(snapshot) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(key)))
	buf.Write(u2[:])
	buf.WriteString(key)

	binary.BigEndian.PutUint32(u4[:], uint32(len(snapshot)))
	buf.Write(u4[:])
	buf.Write(snapshot)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeEntry returns subslices of b for snapshot and payload (zero-copy).
func DecodeEntry(b []byte) (key string, snapshot, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return "", nil, nil, ErrCorrupt
	}
	off := 6

	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen == 0 || klen > len(b)-off {
		return "", nil, nil, ErrCorrupt
	}
	key = string(b[off : off+klen])
	off += klen

	snapshot, off, err = lenPrefixed(b, off)
	if err != nil {
		return "", nil, nil, err
	}
	payload, off, err = lenPrefixed(b, off)
	if err != nil {
		return "", nil, nil, err
	}
	if off != len(b) {
		return "", nil, nil, ErrCorrupt
	}
	return key, snapshot, payload, nil
}

func lenPrefixed(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, 0, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n < 0 || n > len(b)-off { // overflow-safe bound check
		return nil, 0, ErrCorrupt
	}
	return b[off : off+n], off + n, nil
}

// Record is one fingerprinted dependency of a snapshot.
type Record struct {
	Path     string
	Strategy byte
	Exists   bool
	ModTime  int64
	Size     int64
	Hash     uint64
}

// Snapshot:
//
//	magic(4) | ver(1) | kind(2=snapshot) | n(u32 be)
//	plen(u16 be) | path(plen) | strategy(1) | exists(1) | mtime(i64 be) | size(i64 be) | hash(u64 be) * n
func EncodeSnapshot(records []Record) ([]byte, error) {
	total := 4 + 1 + 1 + 4
	for _, r := range records {
		total += recordFixed + len(r.Path)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSnapshot)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(records)))
	buf.Write(u4[:])

	for _, r := range records {
		if l := len(r.Path); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("snapcache: invalid path length %d", l)
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(r.Path)))
		buf.Write(u2[:])
		buf.WriteString(r.Path)

		buf.WriteByte(r.Strategy)
		if r.Exists {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

		binary.BigEndian.PutUint64(u8[:], uint64(r.ModTime))
		buf.Write(u8[:])
		binary.BigEndian.PutUint64(u8[:], uint64(r.Size))
		buf.Write(u8[:])
		binary.BigEndian.PutUint64(u8[:], r.Hash)
		buf.Write(u8[:])
	}
	return buf.Bytes(), nil
}

func DecodeSnapshot(b []byte) ([]Record, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSnapshot {
		return nil, ErrCorrupt
	}
	off := 6

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if n < 0 {
		return nil, ErrCorrupt
	}
	// never trust n for preallocation; every record needs at least recordFixed+1 bytes
	if limit := (len(b) - off) / (recordFixed + 1); n > limit {
		return nil, ErrCorrupt
	}

	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		plen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if plen <= 0 || plen > len(b)-off {
			return nil, ErrCorrupt
		}
		path := string(b[off : off+plen])
		off += plen

		if off+recordFixed-2 > len(b) {
			return nil, ErrCorrupt
		}
		strategy := b[off]
		exists := b[off+1]
		off += 2
		if exists > 1 {
			return nil, ErrCorrupt
		}
		mtime := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		size := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		hash := binary.BigEndian.Uint64(b[off : off+8])
		off += 8

		records = append(records, Record{
			Path:     path,
			Strategy: strategy,
			Exists:   exists == 1,
			ModTime:  mtime,
			Size:     size,
			Hash:     hash,
		})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return records, nil
}
