package cas

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// fixedTime keeps archives byte-for-byte reproducible (1980-01-01 UTC).
var fixedTime = time.Unix(315532800, 0).UTC()

// Pack writes the files named by relpaths, read from below root, to w as
// a tar stream.  Entries are sorted and carry no owner or timestamp
// information, so packing the same files twice gives the same bytes.
func Pack(w io.Writer, root string, relpaths []string) (err error) {
	names := append([]string(nil), relpaths...)
	sort.Strings(names)

	tw := tar.NewWriter(w)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = path.Clean(filepath.ToSlash(name))
		if seen[name] {
			continue
		}
		seen[name] = true
		err = packOne(tw, root, name)
		if err != nil {
			return
		}
	}
	return tw.Close()
}

func packOne(tw *tar.Writer, root, name string) (err error) {
	fh, err := os.Open(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", name)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     int64(info.Mode().Perm()),
		ModTime:  fixedTime,
	}
	err = tw.WriteHeader(hdr)
	if err != nil {
		return errors.Wrapf(err, "pack %s", name)
	}
	_, err = io.Copy(tw, fh)
	return errors.Wrapf(err, "pack %s", name)
}

// Unpack extracts the tar stream rd below dest and returns the relpaths
// it wrote.  Every entry is written to a temp file and renamed into
// place, so concurrent unpacks of overlapping archives never expose a
// partial file.
func Unpack(rd io.Reader, dest string) (relpaths []string, err error) {
	tr := tar.NewReader(rd)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "unpack")
		}
		if hdr.Typeflag != tar.TypeReg {
			log.Debugf("unpack: skipping %s type %c", hdr.Name, hdr.Typeflag)
			continue
		}
		name := path.Clean(hdr.Name)
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return nil, fmt.Errorf("unpack: entry escapes destination: %s", hdr.Name)
		}
		abs := filepath.Join(dest, filepath.FromSlash(name))
		err = writeEntry(abs, tr, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return nil, errors.Wrapf(err, "unpack %s", name)
		}
		relpaths = append(relpaths, name)
	}
	return
}

func writeEntry(abs string, rd io.Reader, mode os.FileMode) (err error) {
	err = os.MkdirAll(filepath.Dir(abs), 0755)
	if err != nil {
		return
	}
	pf, err := renameio.TempFile(filepath.Dir(abs), abs)
	if err != nil {
		return
	}
	defer pf.Cleanup()
	_, err = io.Copy(pf, rd)
	if err != nil {
		return
	}
	if mode == 0 {
		mode = 0644
	}
	err = pf.Chmod(mode)
	if err != nil {
		return
	}
	return pf.CloseAtomicallyReplace()
}
