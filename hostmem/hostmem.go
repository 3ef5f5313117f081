// Package hostmem is an in-memory Host for tests and dry runs.
package hostmem

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/t7a/pitdelta/host"
)

// Host keeps every blob in a map.
type Host struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	uploads map[string]int

	// Fail, if set, is consulted before every operation; a non-nil
	// return is the operation's result.
	Fail func(op, path string) error
}

var _ host.Host = (*Host)(nil)

// New returns an empty host.
func New() *Host {
	return &Host{blobs: map[string][]byte{}, uploads: map[string]int{}}
}

func (h *Host) fail(op, path string) error {
	h.mu.Lock()
	fail := h.Fail
	h.mu.Unlock()
	if fail == nil {
		return nil
	}
	return fail(op, path)
}

// SetFail installs a failure hook.
func (h *Host) SetFail(fn func(op, path string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Fail = fn
}

func (h *Host) Upload(ctx context.Context, path string, rd io.Reader) (err error) {
	err = h.fail("upload", path)
	if err != nil {
		return
	}
	buf, err := ioutil.ReadAll(rd)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blobs[path] = buf
	h.uploads[path]++
	return
}

func (h *Host) Download(ctx context.Context, path string, w io.Writer) (err error) {
	err = h.fail("download", path)
	if err != nil {
		return
	}
	h.mu.Lock()
	buf, ok := h.blobs[path]
	h.mu.Unlock()
	if !ok {
		return errors.Wrap(host.ErrNotFound, path)
	}
	_, err = io.Copy(w, bytes.NewReader(buf))
	return
}

func (h *Host) Exists(ctx context.Context, path string) (ok bool, err error) {
	err = h.fail("exists", path)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok = h.blobs[path]
	return
}

func (h *Host) List(ctx context.Context, pattern string) (paths []string, err error) {
	err = h.fail("list", pattern)
	if err != nil {
		return
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Wrap(doublestar.ErrBadPattern, pattern)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.blobs {
		if ok, _ := doublestar.Match(pattern, p); ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return
}

func (h *Host) Remove(ctx context.Context, pattern string) (err error) {
	paths, err := h.List(ctx, pattern)
	if err != nil {
		return
	}
	err = h.fail("remove", pattern)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range paths {
		delete(h.blobs, p)
	}
	return
}

// Uploads counts the uploads of path, including overwrites.
func (h *Host) Uploads(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploads[path]
}

// Paths lists every stored path.
func (h *Host) Paths() (paths []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return
}
