package cas

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"syscall"
)

// DefaultAlgo yields the 128-bit digests used as package file content
// hashes and hosted file names.
const DefaultAlgo = "md5"

func newHash(algo string) (h hash.Hash, err error) {
	switch algo {
	case "md5":
		h = md5.New()
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		err = fmt.Errorf("%w: %s", syscall.ENOSYS, algo)
	}
	return
}

// Hash returns the binary digest of buf.
func Hash(algo string, buf []byte) (binhash []byte, err error) {
	h, err := newHash(algo)
	if err != nil {
		return
	}
	_, err = h.Write(buf)
	if err != nil {
		return
	}
	return h.Sum(nil), nil
}

// HashReader consumes rd and returns its hex digest and length.
func HashReader(algo string, rd io.Reader) (hexhash string, n int64, err error) {
	h, err := newHash(algo)
	if err != nil {
		return
	}
	n, err = io.Copy(h, rd)
	if err != nil {
		return
	}
	return bin2hex(h.Sum(nil)), n, nil
}

// HashFile returns the hex digest and size of the file at path.
func HashFile(algo, path string) (hexhash string, size int64, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return
	}
	defer fh.Close()
	return HashReader(algo, fh)
}

func bin2hex(buf []byte) string {
	return hex.EncodeToString(buf)
}
