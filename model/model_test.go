package model

import (
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func mkpkg(t *testing.T, name, version string, files ...PackageFile) *Package {
	t.Helper()
	files[0].FileVersion = MustVersion(version)
	h := PackageHeader{
		ID:                  name + "-" + version,
		Name:                name,
		Version:             MustVersion(version),
		DatePublished:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		VersionProviderFile: files[0].Path,
	}
	pkg, err := NewPackage(h, files)
	tassert(t, err == nil, "%v", err)
	return pkg
}

func TestVersion(t *testing.T) {
	tassert(t, MustVersion("1.2").Equal(MustVersion("1.2.0.0")), "zero padding")
	tassert(t, MustVersion("1.10").Compare(MustVersion("1.9")) > 0, "numeric compare")
	tassert(t, MustVersion("v2").Compare(MustVersion("2.0.0.1")) < 0, "compare")
	tassert(t, MustVersion("1.2.3.4").String() == "1.2.3.4", "string")
	for _, bad := range []string{"", "1.2.3.4.5", "1.x", "-1"} {
		_, err := ParseVersion(bad)
		tassert(t, err != nil, "expected error for %q", bad)
	}
	var none Version
	tassert(t, none.String() == "", "nil version string")
}

func TestHeaderSame(t *testing.T) {
	a := PackageHeader{Name: "app", Version: MustVersion("1.0")}
	b := PackageHeader{Name: "app", Version: MustVersion("1.0.0.0")}
	c := PackageHeader{Name: "app", Version: MustVersion("1.0.1")}
	tassert(t, a.Same(b), "same")
	tassert(t, !a.Same(c), "not same")
}

func TestNewPackage(t *testing.T) {
	pkg := mkpkg(t, "app", "1.0",
		PackageFile{ID: "1", Path: "app.exe", ContentHash: "h1"},
		PackageFile{ID: "2", Path: "lib.dll", ContentHash: "h2"},
	)
	f, ok := pkg.FileByID("2")
	tassert(t, ok && f.Path == "lib.dll", "by id %v", f)
	f, ok = pkg.File("app.exe")
	tassert(t, ok && f.ID == "1", "by path %v", f)
	tassert(t, pkg.VersionProvider().ID == "1", "version provider")
	tassert(t, pkg.Len() == 2, "len")

	h := pkg.Header()
	_, err := NewPackage(h, []PackageFile{{ID: "1", Path: "app.exe"}})
	tassert(t, IsBuildSpec(err), "expected build spec error for unversioned provider, got %v", err)

	h.VersionProviderFile = "missing.exe"
	_, err = NewPackage(h, pkg.Files())
	tassert(t, IsBuildSpec(err), "expected build spec error for missing provider, got %v", err)

	h = pkg.Header()
	files := append(pkg.Files(), PackageFile{ID: "3", Path: "lib.dll"})
	_, err = NewPackage(h, files)
	tassert(t, IsBuildSpec(err), "expected duplicate path error, got %v", err)
}

func TestHeaderNotes(t *testing.T) {
	h := PackageHeader{Name: "app"}
	h2 := h.WithNotes("en", "fixed things")
	tassert(t, h.Notes("en") == "", "original mutated")
	tassert(t, h2.Notes("en") == "fixed things", "notes %q", h2.Notes("en"))
	h3 := h2.WithNotes("de", "Dinge repariert")
	tassert(t, strings.Join(h3.NotesLocales(), ",") == "de,en", "locales %v", h3.NotesLocales())
	h4 := h3.WithNotes("en", "")
	tassert(t, strings.Join(h4.NotesLocales(), ",") == "de", "locales %v", h4.NotesLocales())
}

func TestRelevantItemIDs(t *testing.T) {
	items := Items([]string{"b", "a"})
	tassert(t, strings.Join(items.RelevantItemIDs(), ",") == "a,b", "items %v", items.RelevantItemIDs())
	deltas := Deltas([]PackageFileDelta{{OldHash: "o", NewHash: "n", PackageFileID: "x"}})
	tassert(t, strings.Join(deltas.RelevantItemIDs(), ",") == "x", "deltas %v", deltas.RelevantItemIDs())
	tassert(t, deltas.Deltas[0].FileName() == "o.n.delta", "name %s", deltas.Deltas[0].FileName())
}

func TestHostedFileValidate(t *testing.T) {
	hf := HostedFile{ID: "x", SubURL: "data/abc", ContentHash: "abc", Content: Items(nil)}
	tassert(t, hf.Validate() == nil, "valid")
	hf.SubURL = "data/abd"
	tassert(t, hf.Validate() != nil, "name mismatch accepted")
	hf.SubURL = "data/abc"
	hf.Content.Kind = 7
	tassert(t, hf.Validate() != nil, "bad kind accepted")
}

func TestCheckCoverage(t *testing.T) {
	pkg := mkpkg(t, "app", "1.0",
		PackageFile{ID: "1", Path: "app.exe"},
		PackageFile{ID: "2", Path: "lib.dll"},
	)
	proj := &PackageProjection{ID: "p", HostedFiles: []HostedFile{
		{ID: "a", SubURL: "data/a", ContentHash: "a", Content: Items([]string{"1"})},
		{ID: "b", SubURL: "data/deltas/b", ContentHash: "b", Content: Deltas([]PackageFileDelta{{PackageFileID: "2"}})},
	}}
	tassert(t, proj.CheckCoverage(pkg) != nil, "deltas must not count as coverage")
	proj.HostedFiles = append(proj.HostedFiles, HostedFile{ID: "c", SubURL: "data/c", ContentHash: "c", Content: Items([]string{"2"})})
	tassert(t, proj.CheckCoverage(pkg) == nil, "%v", proj.CheckCoverage(pkg))
}

func TestManifestIsAValue(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h1 := PackageHeader{ID: "1", Name: "app", Version: MustVersion("1.0"), DatePublished: t0}
	h2 := PackageHeader{ID: "2", Name: "app", Version: MustVersion("2.0"), DatePublished: t0.Add(time.Hour)}
	h3 := PackageHeader{ID: "3", Name: "other", Version: MustVersion("9.0"), DatePublished: t0.Add(-time.Hour)}

	m0 := NewManifest()
	m1 := m0.Add(h2).Add(h1).Add(h3)
	tassert(t, m0.Len() == 0, "m0 mutated")
	tassert(t, m1.Len() == 3, "len %d", m1.Len())
	hs := m1.Headers()
	tassert(t, hs[0].ID == "3" && hs[1].ID == "1" && hs[2].ID == "2", "order %v", hs)

	latest, ok := m1.Latest("app")
	tassert(t, ok && latest.ID == "2", "latest %v", latest)

	m2 := m1.Remove("2")
	tassert(t, m1.Len() == 3 && m2.Len() == 2, "remove mutated receiver")

	changed := h1.WithNotes("en", "hi")
	m3, ok := m2.Replace(changed)
	tassert(t, ok, "replace")
	got, _ := m3.Find("1")
	tassert(t, got.Notes("en") == "hi", "replaced header %v", got)
	got, _ = m2.Find("1")
	tassert(t, got.Notes("en") == "", "replace mutated receiver")
	_, ok = m2.Replace(PackageHeader{ID: "nope"})
	tassert(t, !ok, "replace of unknown id")
}

func TestIsDifferent(t *testing.T) {
	pf := PackageFile{ID: "1", Path: "a", ContentHash: "h", FileVersion: MustVersion("1.0")}
	cases := []struct {
		state  ActualFileState
		expect bool
	}{
		{ActualFileState{Exists: false}, true},
		{ActualFileState{Exists: true, Hash: "h"}, false},
		{ActualFileState{Exists: true, Hash: "x"}, true},
		{ActualFileState{Exists: true, Hash: "h", Version: MustVersion("1.0.0")}, false},
		{ActualFileState{Exists: true, Hash: "h", Version: MustVersion("2.0")}, true},
	}
	for i, c := range cases {
		d := PackageFileDifference{ActualState: c.state, PackageFile: pf}
		tassert(t, d.IsDifferent() == c.expect, "case %d: expected %v", i, c.expect)
	}
}

func TestDecodeToleratesUnknownFields(t *testing.T) {
	pkg := mkpkg(t, "app", "1.2.3",
		PackageFile{ID: "1", Path: "app.exe", Size: 3, ContentHash: "h1"},
	)
	buf, err := EncodePackage(pkg)
	tassert(t, err == nil, "%v", err)
	got, err := DecodePackage(buf)
	tassert(t, err == nil, "%v", err)
	tassert(t, got.Header().Same(pkg.Header()), "header %v", got.Header())
	tassert(t, got.Header().DatePublished.Equal(pkg.Header().DatePublished), "date %v", got.Header().DatePublished)

	// a writer from the future adds a field and drops another
	future := map[string]interface{}{
		"0": Schema,
		"1": map[string]interface{}{"1": "id", "2": "app", "3": []int{1, 2}, "5": "app.exe", "42": "new"},
		"2": []interface{}{map[string]interface{}{"1": "f", "2": "app.exe", "4": "h", "5": []int{1, 2}, "9": true}},
	}
	buf, err = msgpack.Marshal(future)
	tassert(t, err == nil, "%v", err)
	got, err = DecodePackage(buf)
	tassert(t, err == nil, "%v", err)
	tassert(t, got.Version().Equal(MustVersion("1.2")), "version %v", got.Version())

	future["0"] = Schema + 1
	buf, err = msgpack.Marshal(future)
	tassert(t, err == nil, "%v", err)
	_, err = DecodePackage(buf)
	tassert(t, IsRemoteData(err), "newer schema: %v", err)
}

func TestDecodeCorruptHostData(t *testing.T) {
	_, err := DecodePackage([]byte("not msgpack at all"))
	tassert(t, IsRemoteData(err), "package: %v", err)
	_, err = DecodeManifest([]byte{0xc1})
	tassert(t, IsRemoteData(err), "manifest: %v", err)

	// well formed but the version provider is not among the files
	bad := map[string]interface{}{
		"0": Schema,
		"1": map[string]interface{}{"1": "id", "2": "app", "3": []int{1}, "5": "gone.exe"},
		"2": []interface{}{map[string]interface{}{"1": "f", "2": "app.exe", "4": "h"}},
	}
	buf, err := msgpack.Marshal(bad)
	tassert(t, err == nil, "%v", err)
	_, err = DecodePackage(buf)
	tassert(t, IsRemoteData(err), "package: %v", err)
	tassert(t, !IsBuildSpec(err), "host data reported as spec error: %v", err)

	proj := &PackageProjection{PackageID: "id", HostedFiles: []HostedFile{
		{ID: "x", SubURL: "data/elsewhere", ContentHash: "h", Content: Items([]string{"f"})},
	}}
	buf, err = EncodeProjection(proj)
	tassert(t, err == nil, "%v", err)
	_, err = DecodeProjection(buf)
	tassert(t, IsRemoteData(err), "projection: %v", err)
	tassert(t, strings.Contains(err.Error(), "does not end in content hash"), err.Error())
}
