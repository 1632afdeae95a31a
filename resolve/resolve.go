// Package resolve caches import resolution: (context, importer, specifier,
// dependency type) -> resource. A resolved resource is watched through the
// snapshot of its own path, so editing or deleting the file invalidates the
// entry while touching it does not (under the hash strategy).
package resolve

import (
	"errors"
	"path/filepath"
)

// DependencyType tags how a specifier was referenced.
type DependencyType string

const (
	EsmImport     DependencyType = "esm import"
	DynamicImport DependencyType = "dynamic import"
	CjsRequire    DependencyType = "cjs require"
	URL           DependencyType = "url"
	Entry         DependencyType = "entry"
)

// Args identify one resolution request. Everything that can change the
// outcome is in here; Args is the cache key.
type Args struct {
	Context        string // containing directory
	Importer       string // "" for entries
	Specifier      string
	DependencyType DependencyType
}

func (a Args) keyFields() []string {
	ctx := a.Context
	if ctx != "" {
		ctx = filepath.Clean(ctx)
	}
	return []string{ctx, a.Importer, a.Specifier, string(a.DependencyType)}
}

type Kind uint8

const (
	KindResource Kind = iota + 1
	KindIgnored
)

func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Resource is a concrete file a specifier resolved to.
type Resource struct {
	Path            string `cbor:"1,keyasint" json:"path"`
	Query           string `cbor:"2,keyasint,omitempty" json:"query,omitempty"`
	Fragment        string `cbor:"3,keyasint,omitempty" json:"fragment,omitempty"`
	DescriptionPath string `cbor:"4,keyasint,omitempty" json:"descriptionPath,omitempty"` // nearest package.json
}

// Result is either a Resource or Ignored (e.g. a specifier aliased to false).
type Result struct {
	Kind     Kind     `cbor:"1,keyasint" json:"kind"`
	Resource Resource `cbor:"2,keyasint,omitempty" json:"resource,omitempty"`
}

func Resolved(r Resource) Result { return Result{Kind: KindResource, Resource: r} }
func Ignored() Result            { return Result{Kind: KindIgnored} }

// Path returns the resolved file, if any.
func (r Result) Path() (string, bool) {
	if r.Kind != KindResource {
		return "", false
	}
	return r.Resource.Path, true
}

// Error is a failed resolution. Message is shown to the user; Err keeps the
// cause for errors.Is/As.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotFound is the cause a resolver should use when nothing matched.
var ErrNotFound = errors.New("resolve: module not found")
