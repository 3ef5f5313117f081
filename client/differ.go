// Package client computes what an installed tree lacks and fetches the
// hosted files that supply it.
package client

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/fileversion"
	"github.com/t7a/pitdelta/model"
)

// Differ snapshots installed files.  With a memo, each absolute path is
// hashed at most once per Differ, which pays off when several packages
// share an install root.
type Differ struct {
	workers  int
	versions fileversion.Reader

	mu   sync.Mutex
	memo map[string]model.ActualFileState
}

// DifferOption configures a Differ.
type DifferOption func(*Differ)

// WithMemo remembers file states by case-folded absolute path.
func WithMemo() DifferOption {
	return func(d *Differ) { d.memo = map[string]model.ActualFileState{} }
}

// WithHashWorkers bounds the number of files hashed at once.
func WithHashWorkers(n int) DifferOption {
	return func(d *Differ) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithVersions replaces the reader of embedded file versions.
func WithVersions(r fileversion.Reader) DifferOption {
	return func(d *Differ) { d.versions = r }
}

// NewDiffer returns a Differ.
func NewDiffer(opts ...DifferOption) *Differ {
	d := &Differ{workers: runtime.NumCPU(), versions: fileversion.Default}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Forget drops the memo, so the next difference sees fresh state.
func (d *Differ) Forget() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memo != nil {
		d.memo = map[string]model.ActualFileState{}
	}
}

func memoKey(abs string) string {
	return strings.ToLower(filepath.Clean(abs))
}

// State snapshots the file at abs.
func (d *Differ) State(abs string) (st model.ActualFileState, err error) {
	key := memoKey(abs)
	d.mu.Lock()
	if d.memo != nil {
		if st, ok := d.memo[key]; ok {
			d.mu.Unlock()
			return st, nil
		}
	}
	d.mu.Unlock()

	st = model.ActualFileState{Path: abs}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		err = nil
	} else if err != nil {
		return
	} else {
		st.Exists = true
		if info.Mode().IsRegular() {
			st.Hash, st.Size, err = cas.HashFile(cas.DefaultAlgo, abs)
			if err != nil {
				return
			}
			st.Version, err = d.versions.ReadVersion(abs)
			if err != nil {
				log.WithField("path", abs).Debugf("unreadable version: %v", err)
				st.Version, err = nil, nil
			}
		}
	}

	d.mu.Lock()
	if d.memo != nil {
		d.memo[key] = st
	}
	d.mu.Unlock()
	return
}

// GetDifference compares every file of pkg with its counterpart below
// root.
func (d *Differ) GetDifference(ctx context.Context, pkg *model.Package, root string) (diff *model.PackageDifference, err error) {
	files := pkg.Files()
	diff = &model.PackageDifference{
		Package:         pkg,
		FileDifferences: make([]model.PackageFileDifference, len(files)),
	}
	p := pool.New().WithMaxGoroutines(d.workers).WithErrors().WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := d.State(filepath.Join(root, filepath.FromSlash(f.Path)))
			if err != nil {
				return err
			}
			st.Path = f.Path
			diff.FileDifferences[i] = model.PackageFileDifference{ActualState: st, PackageFile: f}
			return nil
		})
	}
	err = p.Wait()
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"package": pkg.Name(), "different": len(diff.DifferentFiles())}).Debug("difference computed")
	return
}

// IsInstalled reports whether the version provider of pkg below root
// already carries the package version and content.
func (d *Differ) IsInstalled(pkg *model.Package, root string) (bool, error) {
	vp := pkg.VersionProvider()
	st, err := d.State(filepath.Join(root, filepath.FromSlash(vp.Path)))
	if err != nil {
		return false, err
	}
	return st.Exists && st.Hash == vp.ContentHash && st.Version != nil && st.Version.Equal(pkg.Version()), nil
}
