package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/progress"
)

// Store reads and writes typed objects on a Host.  Manifests, packages
// and projections are msgpack encoded, then compressed with Codec.
// Blobs are stored as they are; they are already compressed bundles or
// deltas.
type Store struct {
	Host  Host
	Codec cas.Codec
	// Sink receives the byte counts of blob transfers.  May be nil.
	Sink progress.Sink
}

// NewStore returns a store on h using codec.
func NewStore(h Host, codec cas.Codec) *Store {
	return &Store{Host: h, Codec: codec}
}

func (s *Store) sink() progress.Sink {
	if s.Sink == nil {
		return progress.Nop
	}
	return s.Sink
}

// get downloads and decompresses path.  A missing path is a
// RemoteDataError wrapping ErrNotFound.
func (s *Store) get(ctx context.Context, path string) (buf []byte, err error) {
	var raw bytes.Buffer
	err = s.Host.Download(ctx, path, &raw)
	if IsNotFound(err) {
		return nil, &model.RemoteDataError{Path: path, Reason: "not on host", Err: err}
	}
	if err != nil {
		return
	}
	cr, err := s.Codec.NewReader(&raw)
	if err != nil {
		return nil, &model.RemoteDataError{Path: path, Reason: "cannot decompress", Err: err}
	}
	defer cr.Close()
	buf, err = ioutil.ReadAll(cr)
	if err != nil {
		return nil, &model.RemoteDataError{Path: path, Reason: "cannot decompress", Err: err}
	}
	return
}

func (s *Store) put(ctx context.Context, path string, buf []byte) (err error) {
	defer Return(&err)
	var out bytes.Buffer
	cw, err := s.Codec.NewWriter(&out)
	Ck(err)
	_, err = cw.Write(buf)
	Ck(err)
	err = cw.Close()
	Ck(err)
	log.Debugf("storing %s", path)
	return s.Host.Upload(ctx, path, &out)
}

// DetectCodec finds the codec of the manifest on h.  A host without a
// manifest gives ErrNotFound.
func DetectCodec(ctx context.Context, h Host) (c cas.Codec, err error) {
	paths, err := h.List(ctx, manifestBase+"."+SchemaExt+".*")
	if err != nil {
		return
	}
	var found []cas.Codec
	for _, p := range paths {
		if c, ok := ManifestCodec(p); ok {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	}
	return nil, &model.RemoteDataError{Path: ".", Reason: fmt.Sprintf("%d manifests in different codecs", len(found))}
}

// at names the host path of a RemoteDataError that has none.
func at(path string, err error) error {
	var rde *model.RemoteDataError
	if errors.As(err, &rde) && rde.Path == "" {
		rde.Path = path
	}
	return err
}

// LoadManifest fetches the manifest.
func (s *Store) LoadManifest(ctx context.Context) (m model.Manifest, err error) {
	p := ManifestPath(s.Codec)
	buf, err := s.get(ctx, p)
	if err != nil {
		return
	}
	m, err = model.DecodeManifest(buf)
	return m, at(p, err)
}

// SaveManifest replaces the manifest.  It is the only place the
// manifest on the host changes.
func (s *Store) SaveManifest(ctx context.Context, m model.Manifest) error {
	buf, err := model.EncodeManifest(m)
	if err != nil {
		return err
	}
	return s.put(ctx, ManifestPath(s.Codec), buf)
}

// LoadPackage fetches the package with id.
func (s *Store) LoadPackage(ctx context.Context, id string) (pkg *model.Package, err error) {
	p := PackagePath(id, s.Codec)
	buf, err := s.get(ctx, p)
	if err != nil {
		return
	}
	pkg, err = model.DecodePackage(buf)
	return pkg, at(p, err)
}

// SavePackage uploads pkg.
func (s *Store) SavePackage(ctx context.Context, pkg *model.Package) error {
	buf, err := model.EncodePackage(pkg)
	if err != nil {
		return err
	}
	return s.put(ctx, PackagePath(pkg.ID(), s.Codec), buf)
}

// LoadProjection fetches the projection of package id.
func (s *Store) LoadProjection(ctx context.Context, packageID string) (proj *model.PackageProjection, err error) {
	p := ProjectionPath(packageID, s.Codec)
	buf, err := s.get(ctx, p)
	if err != nil {
		return
	}
	proj, err = model.DecodeProjection(buf)
	return proj, at(p, err)
}

// SaveProjection uploads proj.
func (s *Store) SaveProjection(ctx context.Context, proj *model.PackageProjection) error {
	buf, err := model.EncodeProjection(proj)
	if err != nil {
		return err
	}
	return s.put(ctx, ProjectionPath(proj.PackageID, s.Codec), buf)
}

// UploadBlob uploads the local file src to subURL unless the host
// already has it.  Blob names are content hashes, so an existing blob
// is always the same bytes.
func (s *Store) UploadBlob(ctx context.Context, subURL, src string) (uploaded bool, err error) {
	ok, err := s.Host.Exists(ctx, subURL)
	if err != nil {
		return
	}
	if ok {
		log.WithField("hostedFile", subURL).Debug("blob already on host")
		return false, nil
	}
	fh, err := os.Open(src)
	if err != nil {
		return
	}
	defer fh.Close()
	err = s.Host.Upload(ctx, subURL, progress.NewReader(fh, s.sink()))
	return err == nil, err
}

// DownloadBlob copies the blob at subURL to w.
func (s *Store) DownloadBlob(ctx context.Context, subURL string, w io.Writer) error {
	err := s.Host.Download(ctx, subURL, progress.NewWriter(w, s.sink()))
	if IsNotFound(err) {
		return &model.RemoteDataError{Path: subURL, Reason: "hosted file missing", Err: err}
	}
	return err
}
