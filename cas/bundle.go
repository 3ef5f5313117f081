package cas

import (
	"io"
	"os"

	. "github.com/stevegt/goadapt"
)

// Bundle packs relpaths from below root into a compressed archive in
// dir.  The archive is a worm, so its name is its own content hash and
// the same file set always lands at the same name.
func Bundle(dir string, codec Codec, root string, relpaths []string) (worm *Worm, err error) {
	defer func() {
		if err != nil && worm != nil {
			worm.Abort()
			worm = nil
		}
	}()
	defer Return(&err)
	worm, err = CreateWorm(dir, DefaultAlgo)
	Ck(err)
	cw, err := codec.NewWriter(worm)
	Ck(err)
	err = Pack(cw, root, relpaths)
	Ck(err)
	err = cw.Close()
	Ck(err)
	err = worm.Close()
	Ck(err)
	return
}

// Unbundle decompresses and unpacks rd below dest.
func Unbundle(rd io.Reader, codec Codec, dest string) (relpaths []string, err error) {
	cr, err := codec.NewReader(rd)
	if err != nil {
		return
	}
	defer cr.Close()
	return Unpack(cr, dest)
}

// UnbundleFile is Unbundle for a bundle stored at path.
func UnbundleFile(path string, codec Codec, dest string) (relpaths []string, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return
	}
	defer fh.Close()
	return Unbundle(fh, codec, dest)
}
