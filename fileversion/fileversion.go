// Package fileversion reads the version embedded in a file.
//
// Go binaries carry their main module version in build info; other files
// may carry a "<name>.version" sidecar next to them.  A file with neither
// has no version.
package fileversion

import (
	"debug/buildinfo"
	"io/ioutil"
	"os"
	"strings"

	"github.com/blang/semver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitdelta/model"
)

// SidecarExt is appended to a file's path to find its sidecar version.
const SidecarExt = ".version"

// Reader returns the embedded version of the file at path, or nil if
// it has none.
type Reader interface {
	ReadVersion(path string) (model.Version, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(path string) (model.Version, error)

// ReadVersion calls f.
func (f ReaderFunc) ReadVersion(path string) (model.Version, error) { return f(path) }

// Default reads build info first, then the sidecar.
var Default Reader = ReaderFunc(Read)

// Read is the default Reader.
func Read(path string) (v model.Version, err error) {
	v, err = FromBuildInfo(path)
	if err != nil || v != nil {
		return
	}
	return FromSidecar(path)
}

// FromBuildInfo parses the main module version of a Go executable.  Files
// that are not Go executables, or that were built without a module
// version, return nil.
func FromBuildInfo(path string) (v model.Version, err error) {
	info, err := buildinfo.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		// not an executable, or no build info
		return nil, nil
	}
	raw := info.Main.Version
	if raw == "" || raw == "(devel)" {
		return nil, nil
	}
	v, err = parseSemver(raw)
	if err != nil {
		log.WithField("path", path).Debugf("ignoring build info version %q: %v", raw, err)
		return nil, nil
	}
	return
}

// FromSidecar reads "<path>.version".  A missing sidecar is not an error.
func FromSidecar(path string) (v model.Version, err error) {
	buf, err := ioutil.ReadFile(path + SidecarExt)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return
	}
	txt := strings.TrimSpace(string(buf))
	v, err = model.ParseVersion(txt)
	if err == nil {
		return
	}
	// sidecars written by Go tooling may use semver with pre-release tags
	v, err = parseSemver(txt)
	if err != nil {
		return nil, errors.Wrapf(err, "%s%s", path, SidecarExt)
	}
	return
}

// parseSemver maps Major.Minor.Patch onto the first three version
// components.  Pre-release and build metadata are dropped.
func parseSemver(s string) (model.Version, error) {
	sv, err := semver.ParseTolerant(s)
	if err != nil {
		return nil, err
	}
	return model.Version{int(sv.Major), int(sv.Minor), int(sv.Patch)}, nil
}
