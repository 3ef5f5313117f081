// Package publish implements the operator side: pushing, removing and
// annotating releases on a host.  Every operation reads the manifest
// once and writes it back at most once.
package publish

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/t7a/pitdelta/builder"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/spec"
	"go.uber.org/multierr"
)

// Init writes an empty manifest unless the host already has one.
func Init(ctx context.Context, store *host.Store) (created bool, err error) {
	_, err = store.LoadManifest(ctx)
	if err == nil {
		return false, nil
	}
	if !host.IsNotFound(err) {
		return
	}
	err = store.SaveManifest(ctx, model.NewManifest())
	return err == nil, err
}

// Publish builds a package from srcDir, projects it against the
// releases already on the host and pushes both.
func Publish(ctx context.Context, store *host.Store, srcDir string, ps *spec.PackageSpec, js *spec.ProjectionSpec, opts ...builder.Option) (pkg *model.Package, proj *model.PackageProjection, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	staging, err := os.MkdirTemp("", "pd-staging-")
	if err != nil {
		return
	}
	defer os.RemoveAll(staging)

	pkg, err = builder.BuildPackage(ctx, srcDir, staging, ps, opts...)
	if err != nil {
		return
	}
	others := m.SameName(pkg.Name())
	for _, h := range others {
		if h.Same(pkg.Header()) {
			return nil, nil, model.BuildSpecErrorf("%s %s is already published as %s", h.Name, h.Version, h.ID)
		}
	}
	proj, err = builder.BuildProjection(ctx, pkg, staging, js, store, append([]model.PackageHeader{}, others...), opts...)
	if err != nil {
		return
	}
	err = push(ctx, store, m, pkg, proj)
	return
}

// Push stores pkg and proj and lists pkg in the manifest.  proj must
// be a projection of pkg whose hosted files are already on the host.
func Push(ctx context.Context, store *host.Store, pkg *model.Package, proj *model.PackageProjection) (err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	return push(ctx, store, m, pkg, proj)
}

func push(ctx context.Context, store *host.Store, m model.Manifest, pkg *model.Package, proj *model.PackageProjection) (err error) {
	if proj.PackageID != pkg.ID() {
		return fmt.Errorf("projection %s belongs to package %s, not %s", proj.ID, proj.PackageID, pkg.ID())
	}
	err = proj.CheckCoverage(pkg)
	if err != nil {
		return
	}
	err = store.SavePackage(ctx, pkg)
	if err != nil {
		return
	}
	err = store.SaveProjection(ctx, proj)
	if err != nil {
		return
	}
	// the manifest goes last, so a listed package always has its data
	err = store.SaveManifest(ctx, m.Add(pkg.Header()))
	if err != nil {
		return
	}
	log.WithFields(log.Fields{"package": pkg.Name(), "version": pkg.Version().String(), "id": pkg.ID()}).Info("pushed")
	return
}

// Latest returns the newest release of name.
func Latest(ctx context.Context, store *host.Store, name string) (h model.PackageHeader, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	h, ok := m.Latest(name)
	if !ok {
		return h, &model.RemoteDataError{Path: host.ManifestPath(store.Codec), Reason: fmt.Sprintf("no release of %s", name)}
	}
	return
}

// List returns every published header, newest first.
func List(ctx context.Context, store *host.Store) (headers []model.PackageHeader, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	headers = m.Headers()
	sort.SliceStable(headers, func(i, j int) bool {
		return headers[i].DatePublished.After(headers[j].DatePublished)
	})
	return
}

func find(m model.Manifest, store *host.Store, id string) (h model.PackageHeader, err error) {
	h, ok := m.Find(id)
	if !ok {
		return h, &model.RemoteDataError{Path: host.ManifestPath(store.Codec), Reason: fmt.Sprintf("no package %s", id)}
	}
	return
}

// Remove unlists package id, then deletes its package, its projection
// and every hosted file no remaining projection refers to.  It returns
// the sub urls of the deleted hosted files.  At most workers remaining
// projections are read at once.
func Remove(ctx context.Context, store *host.Store, id string, workers int) (removed []string, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	_, err = find(m, store, id)
	if err != nil {
		return
	}
	rest := m.Remove(id)

	proj, err := store.LoadProjection(ctx, id)
	if host.IsNotFound(err) {
		log.WithField("package", id).Warn("projection already gone")
		proj, err = &model.PackageProjection{PackageID: id}, nil
	}
	if err != nil {
		return
	}
	keep, err := referenced(ctx, store, rest, workers)
	if err != nil {
		return
	}

	err = store.SaveManifest(ctx, rest)
	if err != nil {
		return
	}
	seen := map[string]bool{}
	for _, u := range proj.SubURLs() {
		if keep[u] || seen[u] {
			continue
		}
		seen[u] = true
		err = multierr.Append(err, store.Host.Remove(ctx, u))
		removed = append(removed, u)
	}
	err = multierr.Append(err, store.Host.Remove(ctx, host.ProjectionPath(id, store.Codec)))
	err = multierr.Append(err, store.Host.Remove(ctx, host.PackagePath(id, store.Codec)))
	sort.Strings(removed)
	log.WithFields(log.Fields{"package": id, "hostedFiles": len(removed)}).Info("removed")
	return
}

// referenced collects the sub urls of every projection listed in m.
func referenced(ctx context.Context, store *host.Store, m model.Manifest, workers int) (keep map[string]bool, err error) {
	if workers < 1 {
		workers = 1
	}
	headers := m.Headers()
	urls := make([][]string, len(headers))
	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithContext(ctx)
	for i, h := range headers {
		i, h := i, h
		p.Go(func(ctx context.Context) error {
			proj, err := store.LoadProjection(ctx, h.ID)
			if err != nil {
				return errors.Wrapf(err, "projection of %s %s", h.Name, h.Version)
			}
			urls[i] = proj.SubURLs()
			return nil
		})
	}
	err = p.Wait()
	if err != nil {
		return
	}
	keep = map[string]bool{}
	for _, us := range urls {
		for _, u := range us {
			keep[u] = true
		}
	}
	return
}
