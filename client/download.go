package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/model"
)

// Update directory layout.  Items bundles unpack below FilesDir at
// their package paths; delta bundles unpack below DeltasDir as
// "{old}.{new}.delta".
const (
	FilesDir  = "files"
	DeltasDir = "deltas"
	blobsDir  = ".blobs"
)

// Download fetches the hosted files of plan into updateDir, with at
// most workers transfers at once.  Each blob is checked against its
// content hash before it is unpacked.  Cancellation is checked between
// blobs; a blob being unpacked is finished.
func Download(ctx context.Context, store *host.Store, plan *Plan, updateDir string, workers int) (err error) {
	if workers < 1 {
		workers = 1
	}
	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithContext(ctx)
	seen := map[string]bool{}
	for _, hf := range plan.HostedFiles {
		if seen[hf.SubURL] {
			continue
		}
		seen[hf.SubURL] = true
		hf := hf
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fetch(ctx, store, hf, updateDir)
		})
	}
	err = p.Wait()
	if err != nil {
		return
	}
	return os.RemoveAll(filepath.Join(updateDir, blobsDir))
}

func fetch(ctx context.Context, store *host.Store, hf model.HostedFile, updateDir string) (err error) {
	var dest string
	switch hf.Content.Kind {
	case model.ContentItems:
		dest = filepath.Join(updateDir, FilesDir)
	case model.ContentDeltas:
		dest = filepath.Join(updateDir, DeltasDir)
	default:
		panic(fmt.Sprintf("unhandled content kind %v", hf.Content.Kind))
	}

	worm, err := cas.CreateWorm(filepath.Join(updateDir, blobsDir), cas.DefaultAlgo)
	if err != nil {
		return
	}
	err = store.DownloadBlob(ctx, hf.SubURL, worm)
	if err != nil {
		worm.Abort()
		return
	}
	err = worm.Close()
	if err != nil {
		return
	}
	defer os.Remove(worm.Path())
	if worm.Hash() != hf.ContentHash {
		return &model.RemoteDataError{
			Path:   hf.SubURL,
			Reason: fmt.Sprintf("content hash %s, expected %s", worm.Hash(), hf.ContentHash),
		}
	}
	names, err := cas.UnbundleFile(worm.Path(), store.Codec, dest)
	if err != nil {
		return
	}
	log.WithFields(log.Fields{"hostedFile": hf.SubURL, "kind": hf.Content.Kind.String(), "files": len(names)}).Debug("downloaded")
	return
}
