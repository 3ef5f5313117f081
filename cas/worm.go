package cas

import (
	"hash"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Worm is a write-once file.  Data written to it goes to a temp file in
// Dir and into a running hash; Close renames the temp file to the hex
// digest of everything written, so the file name always equals the
// content hash.
type Worm struct {
	Dir  string
	Algo string
	fh   *os.File
	hash hash.Hash
	size int64
	path string
	hex  string
}

// CreateWorm opens a new write-once file in dir.
func CreateWorm(dir, algo string) (file *Worm, err error) {
	defer Return(&err)
	file = &Worm{Dir: dir, Algo: algo}
	file.hash, err = newHash(algo)
	Ck(err)
	err = os.MkdirAll(dir, 0755)
	Ck(err)
	file.fh, err = os.CreateTemp(dir, ".worm-*")
	Ck(err)
	return
}

// Write supports the io.Writer interface.
func (file *Worm) Write(data []byte) (n int, err error) {
	if file.fh == nil {
		return 0, os.ErrClosed
	}
	n, err = file.fh.Write(data)
	if err != nil {
		return
	}
	file.hash.Write(data[:n])
	file.size += int64(n)
	return
}

// Close finishes the hash and renames the temp file to its permanent
// name.  If a file with that name already exists the content is
// identical by construction, and the temp file is dropped instead.
func (file *Worm) Close() (err error) {
	defer Return(&err)
	Assert(file.fh != nil, "worm already closed: %s", file.path)

	tmpname := file.fh.Name()
	err = file.fh.Close()
	Ck(err)
	file.fh = nil

	file.hex = bin2hex(file.hash.Sum(nil))
	file.path = filepath.Join(file.Dir, file.hex)

	if _, serr := os.Stat(file.path); serr == nil {
		log.Debugf("worm %s already present", file.path)
		return os.Remove(tmpname)
	}
	err = os.Rename(tmpname, file.path)
	Ck(err)
	return
}

// Abort discards an unfinished worm.
func (file *Worm) Abort() error {
	if file.fh == nil {
		return nil
	}
	tmpname := file.fh.Name()
	file.fh.Close()
	file.fh = nil
	return os.Remove(tmpname)
}

// Path is the final location of a closed worm.
func (file *Worm) Path() string { return file.path }

// Hash is the hex digest of a closed worm.
func (file *Worm) Hash() string { return file.hex }

// Size is the number of bytes written.
func (file *Worm) Size() int64 { return file.size }
