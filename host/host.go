// Package host defines the protocol spoken with a passive blob host and
// the typed store layered on top of it.
//
// A host is nothing but a namespace of opaque byte strings addressed by
// slash-separated paths.  Everything that gives those bytes meaning
// (codec, wire format, path layout) lives in Store.
package host

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrNotFound is returned, possibly wrapped, by Download for a path the
// host does not have.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Host is the storage protocol.  Implementations must make Upload
// atomic: a concurrent Download sees either the old bytes or the new
// ones, never a mix.
type Host interface {
	Upload(ctx context.Context, path string, rd io.Reader) error
	Download(ctx context.Context, path string, w io.Writer) error
	Exists(ctx context.Context, path string) (bool, error)
	// List returns the paths matching a doublestar glob, sorted.
	List(ctx context.Context, pattern string) ([]string, error)
	// Remove deletes every path matching a doublestar glob.
	Remove(ctx context.Context, pattern string) error
}
