package model

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// Schema is the version of the wire format written by this code.
// Fields are keyed by number, so readers skip fields they do not know
// and leave fields missing from older writers at their zero value.
const Schema = 1

type packageWire struct {
	Schema int           `msgpack:"0"`
	Header PackageHeader `msgpack:"1"`
	Files  []PackageFile `msgpack:"2"`
}

type manifestWire struct {
	Schema   int             `msgpack:"0"`
	Packages []PackageHeader `msgpack:"1"`
}

func checkSchema(what string, n int) error {
	if n > Schema {
		return &RemoteDataError{Reason: fmt.Sprintf("%s schema %d is newer than supported schema %d", what, n, Schema)}
	}
	return nil
}

// corrupt reports data read from a host that cannot be used. The cause
// is flattened so a host-side fault never reads as a local spec error.
func corrupt(what string, err error) error {
	return &RemoteDataError{Reason: fmt.Sprintf("corrupt %s: %v", what, err)}
}

// EncodePackage serializes pkg.
func EncodePackage(pkg *Package) ([]byte, error) {
	return msgpack.Marshal(&packageWire{Schema: Schema, Header: pkg.header, Files: pkg.Files()})
}

// DecodePackage deserializes and re-indexes a package.
func DecodePackage(buf []byte) (pkg *Package, err error) {
	var w packageWire
	err = msgpack.Unmarshal(buf, &w)
	if err != nil {
		return nil, corrupt("package", err)
	}
	err = checkSchema("package", w.Schema)
	if err != nil {
		return
	}
	pkg, err = NewPackage(w.Header, w.Files)
	if err != nil {
		return nil, corrupt("package", err)
	}
	return
}

// EncodeProjection serializes proj.
func EncodeProjection(proj *PackageProjection) ([]byte, error) {
	out := *proj
	out.Schema = Schema
	return msgpack.Marshal(&out)
}

// DecodeProjection deserializes a projection and validates its hosted
// files.
func DecodeProjection(buf []byte) (proj *PackageProjection, err error) {
	proj = &PackageProjection{}
	err = msgpack.Unmarshal(buf, proj)
	if err != nil {
		return nil, corrupt("projection", err)
	}
	err = checkSchema("projection", proj.Schema)
	if err != nil {
		return nil, err
	}
	for _, hf := range proj.HostedFiles {
		err = hf.Validate()
		if err != nil {
			return nil, corrupt("projection", err)
		}
	}
	return
}

// EncodeManifest serializes m.
func EncodeManifest(m Manifest) ([]byte, error) {
	return msgpack.Marshal(&manifestWire{Schema: Schema, Packages: m.headers})
}

// DecodeManifest deserializes a manifest.
func DecodeManifest(buf []byte) (m Manifest, err error) {
	var w manifestWire
	err = msgpack.Unmarshal(buf, &w)
	if err != nil {
		return m, corrupt("manifest", err)
	}
	err = checkSchema("manifest", w.Schema)
	if err != nil {
		return
	}
	return NewManifest(w.Packages...), nil
}
