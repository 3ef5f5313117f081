// Package hostfs is a Host backed by a local or shared directory.
package hostfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitdelta/host"
	"go.uber.org/multierr"
)

// NotHostError is returned by Open for a directory that is not a host.
type NotHostError struct {
	Dir string
}

func (e *NotHostError) Error() string {
	return fmt.Sprintf("not a host directory: %s", e.Dir)
}

// Host stores every path as a file below Dir.
type Host struct {
	Dir string
}

var _ host.Host = (*Host)(nil)

// marker tells Open that a directory was created by Create.
const marker = ".pdhost"

// Create makes dir a host directory.  An existing host is reused.
func Create(dir string) (h *Host, err error) {
	defer Return(&err)
	err = os.MkdirAll(dir, 0755)
	Ck(err)
	err = renameio.WriteFile(filepath.Join(dir, marker), nil, 0644)
	Ck(err)
	return &Host{Dir: dir}, nil
}

// Open opens an existing host directory.
func Open(dir string) (h *Host, err error) {
	_, err = os.Stat(filepath.Join(dir, marker))
	if err != nil {
		return nil, &NotHostError{Dir: dir}
	}
	return &Host{Dir: dir}, nil
}

// abs maps a host path to a file below Dir.
func (h *Host) abs(p string) (string, error) {
	if !fs.ValidPath(p) || p == "." || p == marker {
		return "", fmt.Errorf("invalid host path: %q", p)
	}
	return filepath.Join(h.Dir, filepath.FromSlash(p)), nil
}

// Upload writes to a temp file and renames it into place.
func (h *Host) Upload(ctx context.Context, p string, rd io.Reader) (err error) {
	defer Return(&err)
	fn, err := h.abs(p)
	Ck(err)
	err = os.MkdirAll(filepath.Dir(fn), 0755)
	Ck(err)
	t, err := renameio.TempFile(filepath.Dir(fn), fn)
	Ck(err)
	defer t.Cleanup()
	_, err = io.Copy(t, rd)
	Ck(err)
	err = t.CloseAtomicallyReplace()
	Ck(err)
	return
}

func (h *Host) Download(ctx context.Context, p string, w io.Writer) (err error) {
	fn, err := h.abs(p)
	if err != nil {
		return
	}
	fh, err := os.Open(fn)
	if os.IsNotExist(err) {
		return errors.Wrap(host.ErrNotFound, p)
	}
	if err != nil {
		return
	}
	defer fh.Close()
	_, err = io.Copy(w, fh)
	return
}

func (h *Host) Exists(ctx context.Context, p string) (ok bool, err error) {
	fn, err := h.abs(p)
	if err != nil {
		return
	}
	_, err = os.Stat(fn)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// List skips directories, the host marker and the dot-prefixed temp
// files of uploads in flight.
func (h *Host) List(ctx context.Context, pattern string) (paths []string, err error) {
	err = doublestar.GlobWalk(os.DirFS(h.Dir), pattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() || isTemp(p) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", pattern)
	}
	sort.Strings(paths)
	return
}

func isTemp(p string) bool {
	base := path.Base(p)
	return strings.HasPrefix(base, ".") && !host.IsManifestPath(base)
}

func (h *Host) Remove(ctx context.Context, pattern string) (err error) {
	paths, err := h.List(ctx, pattern)
	if err != nil {
		return
	}
	for _, p := range paths {
		log.WithField("path", p).Debug("removing")
		err = multierr.Append(err, os.Remove(filepath.Join(h.Dir, filepath.FromSlash(p))))
	}
	return
}
