// Package builder turns a source tree into a package, and a package
// into a projection of hosted files.
package builder

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/spec"
)

// resolve applies the include and exclude globs of ps to srcDir.  Every
// include glob must match at least one file on its own, before
// exclusion.
func resolve(srcDir string, ps *spec.PackageSpec) (relpaths []string, err error) {
	fsys := os.DirFS(srcDir)
	seen := map[string]bool{}
	for _, g := range ps.Include {
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, errors.Wrapf(err, "include %q", g)
		}
		if len(matches) == 0 {
			return nil, model.BuildSpecErrorf("include %q matches no files in %s", g, srcDir)
		}
		for _, m := range matches {
			if seen[m] || spec.Match(ps.Exclude, m) {
				continue
			}
			seen[m] = true
			relpaths = append(relpaths, m)
		}
	}
	sort.Strings(relpaths)
	return
}

// BuildPackage selects files from srcDir according to ps, copies them
// into stagingDir, and describes them in a new package.  The package
// version is the embedded version of the version provider file.
func BuildPackage(ctx context.Context, srcDir, stagingDir string, ps *spec.PackageSpec, opts ...Option) (pkg *model.Package, err error) {
	o := newOptions(opts)
	err = ps.Validate()
	if err != nil {
		return
	}
	relpaths, err := resolve(srcDir, ps)
	if err != nil {
		return
	}
	log.WithField("package", ps.Name).Debugf("%d files selected", len(relpaths))

	files := make([]model.PackageFile, len(relpaths))
	p := pool.New().WithMaxGoroutines(o.workers).WithErrors().WithContext(ctx)
	for i, rel := range relpaths {
		i, rel := i, rel
		p.Go(func(ctx context.Context) (err error) {
			if err = ctx.Err(); err != nil {
				return
			}
			files[i], err = stageFile(o, srcDir, stagingDir, rel)
			return
		})
	}
	err = p.Wait()
	if err != nil {
		return
	}

	header := model.PackageHeader{
		ID:                  o.newID(),
		Name:                ps.Name,
		DatePublished:       o.now().UTC(),
		VersionProviderFile: ps.VersionProvider,
		CustomProperties:    ps.Properties,
	}
	for _, f := range files {
		if f.Path == ps.VersionProvider {
			header.Version = f.FileVersion
		}
	}
	pkg, err = model.NewPackage(header, files)
	if err != nil {
		return
	}
	log.WithFields(log.Fields{"package": pkg.Name(), "version": pkg.Version().String()}).Info("package built")
	return
}

func stageFile(o *options, srcDir, stagingDir, rel string) (f model.PackageFile, err error) {
	defer Return(&err)
	src := filepath.Join(srcDir, filepath.FromSlash(rel))
	dst := filepath.Join(stagingDir, filepath.FromSlash(rel))
	err = os.MkdirAll(filepath.Dir(dst), 0755)
	Ck(err)
	err = fileutils.CopyFile(dst, src)
	Ck(err)
	hash, size, err := cas.HashFile(cas.DefaultAlgo, dst)
	Ck(err)
	version, err := o.versions.ReadVersion(src)
	Ck(err)
	f = model.PackageFile{
		ID:          o.newID(),
		Path:        rel,
		Size:        size,
		ContentHash: hash,
		FileVersion: version,
	}
	log.WithFields(log.Fields{"path": rel, "hash": hash}).Debug("staged")
	return
}
