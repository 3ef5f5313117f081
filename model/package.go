package model

import (
	"sort"
	"strings"
	"time"
)

// PackageFile describes one file of a release.  ID is unique within a
// build; Path is slash-separated and relative to the install root.
type PackageFile struct {
	ID          string  `msgpack:"1"`
	Path        string  `msgpack:"2"`
	Size        int64   `msgpack:"3"`
	ContentHash string  `msgpack:"4"`
	FileVersion Version `msgpack:"5,omitempty"`
}

// PackageHeader identifies a release.
type PackageHeader struct {
	ID                  string            `msgpack:"1"`
	Name                string            `msgpack:"2"`
	Version             Version           `msgpack:"3"`
	DatePublished       time.Time         `msgpack:"4"`
	VersionProviderFile string            `msgpack:"5"`
	CustomProperties    map[string]string `msgpack:"6,omitempty"`
}

// Same reports whether h and o denote the same package: equal name and
// zero-padded equal version.
func (h PackageHeader) Same(o PackageHeader) bool {
	return h.Name == o.Name && h.Version.Equal(o.Version)
}

func (h PackageHeader) clone() PackageHeader {
	out := h
	out.Version = append(Version(nil), h.Version...)
	if h.CustomProperties != nil {
		out.CustomProperties = make(map[string]string, len(h.CustomProperties))
		for k, v := range h.CustomProperties {
			out.CustomProperties[k] = v
		}
	}
	return out
}

const notesPrefix = "notes."

// Notes returns the release notes for locale.
func (h PackageHeader) Notes(locale string) string {
	return h.CustomProperties[notesPrefix+locale]
}

// WithNotes returns a copy of h carrying text as the release notes for
// locale.  Empty text removes the notes.
func (h PackageHeader) WithNotes(locale, text string) PackageHeader {
	out := h.clone()
	if out.CustomProperties == nil {
		out.CustomProperties = map[string]string{}
	}
	if text == "" {
		delete(out.CustomProperties, notesPrefix+locale)
	} else {
		out.CustomProperties[notesPrefix+locale] = text
	}
	return out
}

// NotesLocales lists the locales that have release notes.
func (h PackageHeader) NotesLocales() (locales []string) {
	for k := range h.CustomProperties {
		if strings.HasPrefix(k, notesPrefix) {
			locales = append(locales, strings.TrimPrefix(k, notesPrefix))
		}
	}
	sort.Strings(locales)
	return
}

// Package is an immutable release description.  Both indexes are built
// once by NewPackage.
type Package struct {
	header PackageHeader
	byPath map[string]PackageFile
	byID   map[string]PackageFile
}

// NewPackage validates and indexes a release.  The header's version
// provider must name one of files, and that file must carry a version.
func NewPackage(header PackageHeader, files []PackageFile) (pkg *Package, err error) {
	pkg = &Package{
		header: header.clone(),
		byPath: make(map[string]PackageFile, len(files)),
		byID:   make(map[string]PackageFile, len(files)),
	}
	for _, f := range files {
		if f.ID == "" || f.Path == "" {
			return nil, BuildSpecErrorf("file without id or path: %#v", f)
		}
		if _, ok := pkg.byPath[f.Path]; ok {
			return nil, BuildSpecErrorf("duplicate path %s", f.Path)
		}
		if _, ok := pkg.byID[f.ID]; ok {
			return nil, BuildSpecErrorf("duplicate file id %s", f.ID)
		}
		f.FileVersion = append(Version(nil), f.FileVersion...)
		if len(f.FileVersion) == 0 {
			f.FileVersion = nil
		}
		pkg.byPath[f.Path] = f
		pkg.byID[f.ID] = f
	}
	vp, ok := pkg.byPath[header.VersionProviderFile]
	if !ok {
		return nil, BuildSpecErrorf("version provider %q is not part of package %s", header.VersionProviderFile, header.Name)
	}
	if vp.FileVersion == nil {
		return nil, BuildSpecErrorf("version provider %q has no version", header.VersionProviderFile)
	}
	return pkg, nil
}

// Header returns a copy of the package header.
func (pkg *Package) Header() PackageHeader { return pkg.header.clone() }

// ID is the package id.
func (pkg *Package) ID() string { return pkg.header.ID }

// Name is the package name.
func (pkg *Package) Name() string { return pkg.header.Name }

// Version is the package version.
func (pkg *Package) Version() Version { return pkg.header.Version }

// File looks a file up by path.
func (pkg *Package) File(path string) (f PackageFile, ok bool) {
	f, ok = pkg.byPath[path]
	return
}

// FileByID looks a file up by id.
func (pkg *Package) FileByID(id string) (f PackageFile, ok bool) {
	f, ok = pkg.byID[id]
	return
}

// VersionProvider is the file whose version is the package version.
func (pkg *Package) VersionProvider() PackageFile {
	return pkg.byPath[pkg.header.VersionProviderFile]
}

// Files returns all files sorted by path.
func (pkg *Package) Files() []PackageFile {
	out := make([]PackageFile, 0, len(pkg.byPath))
	for _, f := range pkg.byPath {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len is the number of files.
func (pkg *Package) Len() int { return len(pkg.byPath) }

// WithHeader returns a package with the same files and a new header.
func (pkg *Package) WithHeader(h PackageHeader) (*Package, error) {
	return NewPackage(h, pkg.Files())
}
