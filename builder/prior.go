package builder

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/model"
)

// prior is an older release used as a delta source.  Its items bundles
// are fetched on first use and shared by every entry that needs them.
type prior struct {
	header model.PackageHeader
	pkg    *model.Package
	proj   *model.PackageProjection

	mu      sync.Mutex
	bundles map[string]*fetched
}

type fetched struct {
	once sync.Once
	dir  string
	err  error
}

// pickPriors returns up to n other releases named like pkg, newest
// version first.
func pickPriors(pkg *model.Package, others []model.PackageHeader, n int) (out []model.PackageHeader) {
	self := pkg.Header()
	for _, h := range others {
		if h.Name != self.Name || h.ID == self.ID || h.Same(self) {
			continue
		}
		out = append(out, h)
	}
	model.SortNewestFirst(out)
	if len(out) > n {
		out = out[:n]
	}
	return
}

func (b *projectionBuilder) loadPriors(ctx context.Context, headers []model.PackageHeader) (priors []*prior, err error) {
	priors = make([]*prior, len(headers))
	p := pool.New().WithMaxGoroutines(b.o.workers).WithErrors().WithContext(ctx)
	for i, h := range headers {
		i, h := i, h
		p.Go(func(ctx context.Context) (err error) {
			pr := &prior{header: h, bundles: map[string]*fetched{}}
			pr.pkg, err = b.store.LoadPackage(ctx, h.ID)
			if err != nil {
				return
			}
			pr.proj, err = b.store.LoadProjection(ctx, h.ID)
			if err != nil {
				return
			}
			priors[i] = pr
			return
		})
	}
	err = p.Wait()
	if err != nil {
		return nil, err
	}
	return
}

// itemsFor finds the smallest items bundle of pr holding file id.
func (pr *prior) itemsFor(id string) (hf model.HostedFile, ok bool) {
	for _, c := range pr.proj.HostedFiles {
		if c.Content.Kind != model.ContentItems {
			continue
		}
		for _, cid := range c.Content.PackageFileIDs {
			if cid == id && (!ok || c.Size < hf.Size) {
				hf, ok = c, true
			}
		}
	}
	return
}

// file returns the local path of the prior version of f, fetching and
// unpacking its items bundle if needed.
func (pr *prior) file(ctx context.Context, b *projectionBuilder, f model.PackageFile) (path string, err error) {
	hf, ok := pr.itemsFor(f.ID)
	if !ok {
		return "", &model.RemoteDataError{
			Path:   host.ProjectionPath(pr.header.ID, b.store.Codec),
			Reason: fmt.Sprintf("no items bundle holds %s of %s %s", f.Path, pr.header.Name, pr.header.Version),
		}
	}
	pr.mu.Lock()
	fe := pr.bundles[hf.SubURL]
	if fe == nil {
		fe = &fetched{}
		pr.bundles[hf.SubURL] = fe
	}
	pr.mu.Unlock()

	fe.once.Do(func() {
		fe.dir = filepath.Join(b.workDir, "prior", pr.header.ID, hf.ContentHash)
		fe.err = fetchBundle(ctx, b.store, hf, fe.dir)
	})
	if fe.err != nil {
		return "", fe.err
	}
	return filepath.Join(fe.dir, filepath.FromSlash(f.Path)), nil
}

// fetchBundle downloads an items bundle, checks it against its
// content hash and unpacks it below dir.
func fetchBundle(ctx context.Context, store *host.Store, hf model.HostedFile, dir string) (err error) {
	var buf bytes.Buffer
	err = store.DownloadBlob(ctx, hf.SubURL, &buf)
	if err != nil {
		return
	}
	sum, _, err := cas.HashReader(cas.DefaultAlgo, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return
	}
	if sum != hf.ContentHash {
		return &model.RemoteDataError{Path: hf.SubURL, Reason: fmt.Sprintf("content hash %s, expected %s", sum, hf.ContentHash)}
	}
	_, err = cas.Unbundle(&buf, store.Codec, dir)
	return
}
