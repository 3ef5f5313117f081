package model

import (
	"fmt"
	"path"
	"sort"
)

// ContentKind tags the variant held by a HostedFileContent.
type ContentKind int

const (
	// ContentItems is a full bundle of package files.
	ContentItems ContentKind = iota + 1
	// ContentDeltas is a bundle of binary deltas against an older release.
	ContentDeltas
)

func (k ContentKind) String() string {
	switch k {
	case ContentItems:
		return "items"
	case ContentDeltas:
		return "deltas"
	}
	return fmt.Sprintf("ContentKind(%d)", int(k))
}

// PackageFileDelta turns the file with OldHash into the package file
// PackageFileID, whose content hash is NewHash.
type PackageFileDelta struct {
	OldHash       string `msgpack:"1"`
	NewHash       string `msgpack:"2"`
	PackageFileID string `msgpack:"3"`
}

// FileName is the name a delta has inside a Deltas bundle and in the
// client's update directory.
func (d PackageFileDelta) FileName() string {
	return DeltaFileName(d.OldHash, d.NewHash)
}

// DeltaFileName is "{oldHash}.{newHash}.delta".
func DeltaFileName(oldHash, newHash string) string {
	return oldHash + "." + newHash + ".delta"
}

// HostedFileContent is a sum type: exactly one of PackageFileIDs (Kind
// ContentItems) or Deltas (Kind ContentDeltas) is meaningful.
type HostedFileContent struct {
	Kind           ContentKind        `msgpack:"1"`
	PackageFileIDs []string           `msgpack:"2,omitempty"`
	Deltas         []PackageFileDelta `msgpack:"3,omitempty"`
}

// Items builds a full-bundle content.
func Items(ids []string) HostedFileContent {
	ids = append([]string(nil), ids...)
	sort.Strings(ids)
	return HostedFileContent{Kind: ContentItems, PackageFileIDs: ids}
}

// Deltas builds a delta-bundle content.
func Deltas(deltas []PackageFileDelta) HostedFileContent {
	deltas = append([]PackageFileDelta(nil), deltas...)
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].PackageFileID < deltas[j].PackageFileID })
	return HostedFileContent{Kind: ContentDeltas, Deltas: deltas}
}

// RelevantItemIDs lists the package file ids this content can satisfy.
func (c HostedFileContent) RelevantItemIDs() (ids []string) {
	switch c.Kind {
	case ContentItems:
		return append(ids, c.PackageFileIDs...)
	case ContentDeltas:
		for _, d := range c.Deltas {
			ids = append(ids, d.PackageFileID)
		}
		return
	}
	panic(fmt.Sprintf("unhandled content kind %v", c.Kind))
}

// HostedFile is one content-addressed blob on the host.  The last
// element of SubURL is always ContentHash, which is what lets equal
// blobs from different releases share one upload.
type HostedFile struct {
	ID          string            `msgpack:"1"`
	SubURL      string            `msgpack:"2"`
	ContentHash string            `msgpack:"3"`
	Size        int64             `msgpack:"4"`
	Content     HostedFileContent `msgpack:"5"`
}

// Validate checks the naming invariant and the content tag.
func (hf HostedFile) Validate() error {
	if path.Base(hf.SubURL) != hf.ContentHash {
		return fmt.Errorf("hosted file %s: sub url %q does not end in content hash %s", hf.ID, hf.SubURL, hf.ContentHash)
	}
	switch hf.Content.Kind {
	case ContentItems, ContentDeltas:
		return nil
	}
	return fmt.Errorf("hosted file %s: unknown content kind %d", hf.ID, hf.Content.Kind)
}

// PackageProjection is the set of hosted files a Package can be
// downloaded from.
type PackageProjection struct {
	Schema      int          `msgpack:"0"`
	ID          string       `msgpack:"1"`
	PackageID   string       `msgpack:"2"`
	RootURL     string       `msgpack:"3,omitempty"`
	HostedFiles []HostedFile `msgpack:"4"`
}

// CheckCoverage verifies that every file of pkg is contained in at
// least one Items hosted file, so any file can always be fetched whole.
func (proj *PackageProjection) CheckCoverage(pkg *Package) error {
	covered := make(map[string]bool, pkg.Len())
	for _, hf := range proj.HostedFiles {
		if hf.Content.Kind != ContentItems {
			continue
		}
		for _, id := range hf.Content.PackageFileIDs {
			covered[id] = true
		}
	}
	for _, f := range pkg.Files() {
		if !covered[f.ID] {
			return fmt.Errorf("projection %s: file %s is not in any items bundle", proj.ID, f.Path)
		}
	}
	return nil
}

// SubURLs lists the host paths of all hosted files.
func (proj *PackageProjection) SubURLs() (urls []string) {
	for _, hf := range proj.HostedFiles {
		urls = append(urls, hf.SubURL)
	}
	return
}
