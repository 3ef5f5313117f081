package install

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/renameio"
	"github.com/pkg/fileutils"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/delta"
)

// FileOps are the operations that change files.  Each one either
// completes or leaves dst untouched.
type FileOps interface {
	// Replace copies src over dst.
	Replace(src, dst string) error
	// ApplyDelta patches base with the delta at deltaPath and writes
	// the result to dst if it hashes to want.  base and dst may be the
	// same file.
	ApplyDelta(base, deltaPath, dst, want string) error
	// Backup copies src to dst.
	Backup(src, dst string) error
}

// OS implements FileOps with temp files renamed into place.
type OS struct{}

var _ FileOps = OS{}

func mode(path string, fallback os.FileMode) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return fallback
	}
	return info.Mode().Perm()
}

func (OS) Replace(src, dst string) (err error) {
	defer Return(&err)
	in, err := os.Open(src)
	Ck(err)
	defer in.Close()
	err = os.MkdirAll(filepath.Dir(dst), 0755)
	Ck(err)
	t, err := renameio.TempFile(filepath.Dir(dst), dst)
	Ck(err)
	defer t.Cleanup()
	_, err = io.Copy(t, in)
	Ck(err)
	err = t.Chmod(mode(src, 0644))
	Ck(err)
	err = t.CloseAtomicallyReplace()
	Ck(err)
	return
}

func (OS) ApplyDelta(base, deltaPath, dst, want string) (err error) {
	defer Return(&err)
	buf, err := delta.PatchFile(base, deltaPath)
	Ck(err)
	got, _, err := cas.HashReader(cas.DefaultAlgo, bytes.NewReader(buf))
	Ck(err)
	if got != want {
		return &VerificationError{Path: dst, Expected: want, Actual: got}
	}
	err = os.MkdirAll(filepath.Dir(dst), 0755)
	Ck(err)
	err = renameio.WriteFile(dst, buf, mode(base, 0644))
	Ck(err)
	return
}

func (OS) Backup(src, dst string) (err error) {
	defer Return(&err)
	err = os.MkdirAll(filepath.Dir(dst), 0755)
	Ck(err)
	err = fileutils.CopyFile(dst, src)
	Ck(err)
	return
}

// IsLocked reports whether err means the file is held by a running
// process: access denied, busy, or a running executable.
func IsLocked(err error) bool {
	return errors.Is(err, os.ErrPermission) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY)
}
