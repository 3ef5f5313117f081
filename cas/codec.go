package cas

import (
	"compress/gzip"
	"fmt"
	"io"
	"syscall"

	"github.com/dsnet/compress/bzip2"
)

// Codec is the compression applied to everything stored on a host.
type Codec interface {
	Name() string
	// Ext is the file name extension used in host paths.
	Ext() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

var (
	Gzip  Codec = gzipCodec{}
	Bzip2 Codec = bzip2Codec{}
)

// CodecByName maps "gzip" or "bzip2" to a Codec.  The empty name
// selects gzip.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "gzip", "gz":
		return Gzip, nil
	case "bzip2", "bz2":
		return Bzip2, nil
	}
	return nil, fmt.Errorf("%w: codec %s", syscall.ENOSYS, name)
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }
func (gzipCodec) Ext() string  { return "gz" }

// The gzip header carries no name or mtime, so equal input gives equal
// output.
func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, gzip.BestCompression)
}

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type bzip2Codec struct{}

func (bzip2Codec) Name() string { return "bzip2" }
func (bzip2Codec) Ext() string  { return "bz2" }

func (bzip2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
}

func (bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}
