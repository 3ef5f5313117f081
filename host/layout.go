package host

import (
	"path"
	"strings"

	"github.com/t7a/pitdelta/cas"
)

// Wire format extension of manifests, packages and projections.
const SchemaExt = "mp"

const (
	PackagesDir    = "packages"
	ProjectionsDir = "projections"
	DataDir        = "data"
	DeltasDir      = "data/deltas"
	manifestBase   = ".updates"
)

// PackagePath is where the package with id lives.
func PackagePath(id string, codec cas.Codec) string {
	return path.Join(PackagesDir, id+".package."+SchemaExt+"."+codec.Ext())
}

// ProjectionPath is where the projection of package id lives.
func ProjectionPath(id string, codec cas.Codec) string {
	return path.Join(ProjectionsDir, id+".projection."+SchemaExt+"."+codec.Ext())
}

// ManifestPath is the single manifest listing every published package.
func ManifestPath(codec cas.Codec) string {
	return manifestBase + "." + SchemaExt + "." + codec.Ext()
}

// IsManifestPath reports whether p names a manifest in any codec.
func IsManifestPath(p string) bool {
	return strings.HasPrefix(path.Base(p), manifestBase+"."+SchemaExt+".")
}

// ManifestCodec maps a manifest path to the codec it is written in.
func ManifestCodec(p string) (c cas.Codec, ok bool) {
	if !IsManifestPath(p) {
		return
	}
	ext := strings.TrimPrefix(path.Base(p), manifestBase+"."+SchemaExt+".")
	if ext == "" {
		return
	}
	c, err := cas.CodecByName(ext)
	return c, err == nil
}

// DataPath is the sub url of an items bundle.
func DataPath(hash string) string {
	return path.Join(DataDir, hash)
}

// DeltaDataPath is the sub url of a delta bundle.
func DeltaDataPath(hash string) string {
	return path.Join(DeltasDir, hash)
}
