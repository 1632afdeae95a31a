// Package disk is a persistent snapcache provider on an afero filesystem.
// It is the provider to use when cached results must survive compiler
// restarts on a single machine.
//
// Layout: <root>/<h[:2]>/<h> where h = hex(sha256(key)). Each file holds an
// 8-byte big-endian expiry (unix nanos, 0 = none) followed by the value.
// Writes go to a temp file in the same directory and are renamed into
// place, so readers never observe a partial value.
package disk

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	pr "github.com/unkn0wn-root/snapcache/provider"
)

const headerSize = 8

type Disk struct {
	root string
	fs   afero.Fs
	clk  clockwork.Clock
}

var _ pr.Provider = (*Disk)(nil)

type Config struct {
	Root  string          // required
	Fs    afero.Fs        // nil => OS filesystem
	Clock clockwork.Clock // nil => real clock; used for TTLs
}

func New(cfg Config) (*Disk, error) {
	if cfg.Root == "" {
		return nil, errors.New("disk provider: root is required")
	}
	d := &Disk{root: filepath.Clean(cfg.Root), fs: cfg.Fs, clk: cfg.Clock}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.clk == nil {
		d.clk = clockwork.NewRealClock()
	}
	if err := d.fs.MkdirAll(d.root, 0o755); err != nil {
		return nil, fmt.Errorf("disk provider: create root: %w", err)
	}
	return d, nil
}

func (d *Disk) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(d.root, h[:2], h)
}

func (d *Disk) Get(_ context.Context, key string) ([]byte, bool, error) {
	p := d.path(key)
	b, err := afero.ReadFile(d.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("disk provider: read %s: %w", p, err)
	}
	if len(b) < headerSize {
		_ = d.fs.Remove(p) // truncated file
		return nil, false, nil
	}
	if exp := int64(binary.BigEndian.Uint64(b[:headerSize])); exp != 0 && d.clk.Now().UnixNano() >= exp {
		_ = d.fs.Remove(p)
		return nil, false, nil
	}
	return b[headerSize:], true, nil
}

func (d *Disk) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p := d.path(key)
	dir := filepath.Dir(p)
	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("disk provider: mkdir %s: %w", dir, err)
	}

	var exp int64
	if ttl > 0 {
		exp = d.clk.Now().Add(ttl).UnixNano()
	}
	var hdr [headerSize]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(exp))

	tmp, err := afero.TempFile(d.fs, dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("disk provider: temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(hdr[:])
	if werr == nil {
		_, werr = tmp.Write(value)
	}
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = d.fs.Remove(tmpName)
		return false, fmt.Errorf("disk provider: write %s: %w", tmpName, err)
	}
	if err := d.fs.Rename(tmpName, p); err != nil {
		_ = d.fs.Remove(tmpName)
		return false, fmt.Errorf("disk provider: rename into %s: %w", p, err)
	}
	return true, nil
}

func (d *Disk) Del(_ context.Context, key string) error {
	if err := d.fs.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Disk) Close(context.Context) error { return nil }
