package builder

import (
	"context"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/delta"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/spec"
)

// CompleteSpec returns ps extended, if needed, with one entry without
// deltas that names every file no other entry matches.  A projection
// built from the result has every package file in an items bundle.
func CompleteSpec(pkg *model.Package, ps *spec.ProjectionSpec) *spec.ProjectionSpec {
	out := &spec.ProjectionSpec{}
	if ps != nil {
		out.Entries = append(out.Entries, ps.Entries...)
	}
	var rest []string
	for _, f := range pkg.Files() {
		matched := false
		for _, e := range out.Entries {
			if spec.Match(e.Content, f.Path) {
				matched = true
				break
			}
		}
		if !matched {
			rest = append(rest, spec.Literal(f.Path))
		}
	}
	if len(rest) > 0 {
		out.Entries = append(out.Entries, spec.ProjectionEntry{Content: rest})
	}
	return out
}

func matching(pkg *model.Package, globs []string) (files []model.PackageFile) {
	for _, f := range pkg.Files() {
		if spec.Match(globs, f.Path) {
			files = append(files, f)
		}
	}
	return
}

// blob is a hosted file built locally and not yet uploaded.
type blob struct {
	hf    model.HostedFile
	local string
}

type projectionBuilder struct {
	o          *options
	pkg        *model.Package
	stagingDir string
	store      *host.Store
	workDir    string
	blobDir    string
}

// BuildProjection cuts pkg into hosted files according to ps, uploads
// every hosted file the host does not have yet, and stores the
// projection.  Entries with MaxHostDeltas > 0 also get one delta bundle
// per older release of the same name, newest first.  others lists the
// candidate older releases; if nil it is read from the manifest.
func BuildProjection(ctx context.Context, pkg *model.Package, stagingDir string, ps *spec.ProjectionSpec, store *host.Store, others []model.PackageHeader, opts ...Option) (proj *model.PackageProjection, err error) {
	o := newOptions(opts)
	if ps != nil {
		err = ps.Validate()
		if err != nil {
			return
		}
	}
	full := CompleteSpec(pkg, ps)

	workDir, err := os.MkdirTemp("", "pd-projection-")
	if err != nil {
		return
	}
	defer os.RemoveAll(workDir)
	b := &projectionBuilder{
		o:          o,
		pkg:        pkg,
		stagingDir: stagingDir,
		store:      store,
		workDir:    workDir,
		blobDir:    filepath.Join(workDir, "blobs"),
	}

	depth := 0
	for _, e := range full.Entries {
		depth = max(depth, e.MaxHostDeltas)
	}
	var priors []*prior
	if depth > 0 {
		if others == nil {
			m, err := store.LoadManifest(ctx)
			if err != nil {
				return nil, err
			}
			others = m.SameName(pkg.Name())
		}
		priors, err = b.loadPriors(ctx, pickPriors(pkg, others, depth))
		if err != nil {
			return
		}
	}

	var blobs []blob
	for i, e := range full.Entries {
		files := matching(pkg, e.Content)
		if len(files) == 0 {
			log.WithField("entry", i).Debug("entry matches no files, skipped")
			continue
		}
		items, err := b.items(files)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, items)
		deltas, err := b.deltas(ctx, files, priors[:min(e.MaxHostDeltas, len(priors))])
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, deltas...)
	}

	err = b.upload(ctx, blobs)
	if err != nil {
		return
	}

	proj = &model.PackageProjection{
		ID:        o.newID(),
		PackageID: pkg.ID(),
		RootURL:   o.rootURL,
	}
	for _, bl := range blobs {
		proj.HostedFiles = append(proj.HostedFiles, bl.hf)
	}
	err = proj.CheckCoverage(pkg)
	if err != nil {
		return nil, err
	}
	err = store.SaveProjection(ctx, proj)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"package": pkg.Name(), "hostedFiles": len(proj.HostedFiles)}).Info("projection built")
	return
}

func (b *projectionBuilder) items(files []model.PackageFile) (bl blob, err error) {
	defer Return(&err)
	ids := make([]string, len(files))
	paths := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
		paths[i] = f.Path
	}
	worm, err := cas.Bundle(b.blobDir, b.store.Codec, b.stagingDir, paths)
	Ck(err)
	bl = blob{
		hf: model.HostedFile{
			ID:          b.o.newID(),
			SubURL:      host.DataPath(worm.Hash()),
			ContentHash: worm.Hash(),
			Size:        worm.Size(),
			Content:     model.Items(ids),
		},
		local: worm.Path(),
	}
	return
}

// deltas builds one delta bundle per prior release, in parallel.
// Priors with nothing to diff produce no bundle.
func (b *projectionBuilder) deltas(ctx context.Context, files []model.PackageFile, priors []*prior) (blobs []blob, err error) {
	results := make([]*blob, len(priors))
	p := pool.New().WithMaxGoroutines(b.o.workers).WithErrors().WithContext(ctx)
	for i, pr := range priors {
		i, pr := i, pr
		p.Go(func(ctx context.Context) (err error) {
			results[i], err = b.deltaBundle(ctx, files, pr)
			return
		})
	}
	err = p.Wait()
	if err != nil {
		return
	}
	for _, r := range results {
		if r != nil {
			blobs = append(blobs, *r)
		}
	}
	return
}

// deltaBundle diffs every file that exists by path in pr and changed
// since.  Files added since pr are left to the items bundle.
func (b *projectionBuilder) deltaBundle(ctx context.Context, files []model.PackageFile, pr *prior) (bl *blob, err error) {
	defer Return(&err)
	stage := filepath.Join(b.workDir, "deltas", b.o.newID())
	err = os.MkdirAll(stage, 0755)
	Ck(err)
	var ds []model.PackageFileDelta
	var names []string
	written := map[string]bool{}
	for _, f := range files {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		old, ok := pr.pkg.File(f.Path)
		if !ok || old.ContentHash == f.ContentHash {
			continue
		}
		d := model.PackageFileDelta{OldHash: old.ContentHash, NewHash: f.ContentHash, PackageFileID: f.ID}
		ds = append(ds, d)
		if written[d.FileName()] {
			continue
		}
		oldPath, err := pr.file(ctx, b, old)
		if err != nil {
			return nil, err
		}
		newPath := filepath.Join(b.stagingDir, filepath.FromSlash(f.Path))
		err = delta.DiffFiles(oldPath, newPath, filepath.Join(stage, d.FileName()))
		Ck(err)
		written[d.FileName()] = true
		names = append(names, d.FileName())
		log.WithFields(log.Fields{"path": f.Path, "from": pr.header.Version.String()}).Debug("delta built")
	}
	if len(ds) == 0 {
		return nil, nil
	}
	worm, err := cas.Bundle(b.blobDir, b.store.Codec, stage, names)
	Ck(err)
	bl = &blob{
		hf: model.HostedFile{
			ID:          b.o.newID(),
			SubURL:      host.DeltaDataPath(worm.Hash()),
			ContentHash: worm.Hash(),
			Size:        worm.Size(),
			Content:     model.Deltas(ds),
		},
		local: worm.Path(),
	}
	return
}

// upload sends each distinct blob once, skipping those the host has.
func (b *projectionBuilder) upload(ctx context.Context, blobs []blob) error {
	seen := map[string]bool{}
	p := pool.New().WithMaxGoroutines(b.o.workers).WithErrors().WithContext(ctx)
	for _, bl := range blobs {
		if seen[bl.hf.SubURL] {
			continue
		}
		seen[bl.hf.SubURL] = true
		bl := bl
		p.Go(func(ctx context.Context) error {
			uploaded, err := b.store.UploadBlob(ctx, bl.hf.SubURL, bl.local)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"hostedFile": bl.hf.SubURL, "uploaded": uploaded}).Debug("blob")
			return nil
		})
	}
	return p.Wait()
}
