package model

import (
	"sort"
)

// Manifest lists every published package header, oldest first.  It is a
// value: Add, Remove and Replace return a new Manifest and leave the
// receiver untouched.
type Manifest struct {
	headers []PackageHeader
}

// NewManifest orders headers by publish date.
func NewManifest(headers ...PackageHeader) Manifest {
	hs := make([]PackageHeader, 0, len(headers))
	for _, h := range headers {
		hs = append(hs, h.clone())
	}
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].DatePublished.Equal(hs[j].DatePublished) {
			return hs[i].ID < hs[j].ID
		}
		return hs[i].DatePublished.Before(hs[j].DatePublished)
	})
	return Manifest{headers: hs}
}

// Headers returns a copy of the headers, oldest first.
func (m Manifest) Headers() []PackageHeader {
	out := make([]PackageHeader, len(m.headers))
	for i, h := range m.headers {
		out[i] = h.clone()
	}
	return out
}

// Len is the number of published packages.
func (m Manifest) Len() int { return len(m.headers) }

// Find looks a header up by package id.
func (m Manifest) Find(id string) (h PackageHeader, ok bool) {
	for _, h := range m.headers {
		if h.ID == id {
			return h.clone(), true
		}
	}
	return
}

// Add returns a manifest that also lists h.  A header with the same id
// is replaced.
func (m Manifest) Add(h PackageHeader) Manifest {
	return NewManifest(append(m.without(h.ID), h)...)
}

// Remove returns a manifest without package id.
func (m Manifest) Remove(id string) Manifest {
	return NewManifest(m.without(id)...)
}

// Replace swaps in h for the header with the same id.  It returns false
// if there is no such header.
func (m Manifest) Replace(h PackageHeader) (Manifest, bool) {
	if _, ok := m.Find(h.ID); !ok {
		return m, false
	}
	return m.Add(h), true
}

func (m Manifest) without(id string) (out []PackageHeader) {
	for _, h := range m.headers {
		if h.ID != id {
			out = append(out, h)
		}
	}
	return
}

// SameName lists the headers named name, newest version first.
func (m Manifest) SameName(name string) (out []PackageHeader) {
	for _, h := range m.headers {
		if h.Name == name {
			out = append(out, h.clone())
		}
	}
	SortNewestFirst(out)
	return
}

// Latest is the newest version of name.
func (m Manifest) Latest(name string) (h PackageHeader, ok bool) {
	same := m.SameName(name)
	if len(same) == 0 {
		return
	}
	return same[0], true
}

// SortNewestFirst orders headers by descending version, then by
// descending publish date.
func SortNewestFirst(hs []PackageHeader) {
	sort.SliceStable(hs, func(i, j int) bool {
		c := hs[i].Version.Compare(hs[j].Version)
		if c != 0 {
			return c > 0
		}
		return hs[i].DatePublished.After(hs[j].DatePublished)
	})
}
