package publish

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/hostfs"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/spec"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func setup(t *testing.T) (dir string, store *host.Store) {
	dir, err := os.MkdirTemp("", "publish")
	tassert(t, err == nil, "%v", err)
	if os.Getenv("DEBUG") == "1" {
		t.Logf("keeping %s", dir)
	} else {
		t.Cleanup(func() { os.RemoveAll(dir) })
	}
	h, err := hostfs.Create(filepath.Join(dir, "host"))
	tassert(t, err == nil, "%v", err)
	store = host.NewStore(h, cas.Gzip)
	created, err := Init(context.Background(), store)
	tassert(t, err == nil && created, "init %v %v", created, err)
	return
}

func release(t *testing.T, dir, version, app string) string {
	src := filepath.Join(dir, "src-"+version)
	for rel, txt := range map[string]string{
		"app.exe":         app,
		"app.exe.version": version,
		"lib.dll":         "shared library",
	} {
		fn := filepath.Join(src, rel)
		err := os.MkdirAll(filepath.Dir(fn), 0755)
		tassert(t, err == nil, "%v", err)
		err = ioutil.WriteFile(fn, []byte(txt), 0644)
		tassert(t, err == nil, "%v", err)
	}
	return src
}

var pkgSpec = &spec.PackageSpec{Name: "app", Include: []string{"*.exe", "*.dll"}, VersionProvider: "app.exe"}

var projSpec = &spec.ProjectionSpec{Entries: []spec.ProjectionEntry{
	{Content: []string{"app.exe"}, MaxHostDeltas: 1},
}}

func publish(t *testing.T, store *host.Store, src string) *model.Package {
	pkg, proj, err := Publish(context.Background(), store, src, pkgSpec, projSpec)
	tassert(t, err == nil, "%v", err)
	tassert(t, proj.PackageID == pkg.ID(), "projection of %s", proj.PackageID)
	return pkg
}

func TestInitTwice(t *testing.T) {
	_, store := setup(t)
	created, err := Init(context.Background(), store)
	tassert(t, err == nil && !created, "second init %v %v", created, err)
}

func TestPublishAndLatest(t *testing.T) {
	ctx := context.Background()
	dir, store := setup(t)
	p1 := publish(t, store, release(t, dir, "1.0", "app one"))
	p2 := publish(t, store, release(t, dir, "1.1", "app two"))

	h, err := Latest(ctx, store, "app")
	tassert(t, err == nil && h.ID == p2.ID(), "latest %v %v", h, err)
	_, err = Latest(ctx, store, "nope")
	tassert(t, model.IsRemoteData(err), "expected remote data error, got %v", err)

	hs, err := List(ctx, store)
	tassert(t, err == nil && len(hs) == 2, "list %v %v", hs, err)
	ids := map[string]bool{hs[0].ID: true, hs[1].ID: true}
	tassert(t, ids[p1.ID()] && ids[p2.ID()], "list %v", hs)

	// same version again
	_, _, err = Publish(ctx, store, release(t, dir, "1.1", "app two again"), pkgSpec, projSpec)
	tassert(t, model.IsBuildSpec(err), "expected build spec error, got %v", err)
}

func TestPushChecksProjection(t *testing.T) {
	ctx := context.Background()
	dir, store := setup(t)
	pkg := publish(t, store, release(t, dir, "1.0", "app"))
	err := Push(ctx, store, pkg, &model.PackageProjection{ID: "x", PackageID: "other"})
	tassert(t, err != nil, "foreign projection accepted")
	err = Push(ctx, store, pkg, &model.PackageProjection{ID: "x", PackageID: pkg.ID()})
	tassert(t, err != nil, "uncovering projection accepted")
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	dir, store := setup(t)
	pkg := publish(t, store, release(t, dir, "1.0", "app"))

	txt, err := GetNotes(ctx, store, pkg.ID(), "en")
	tassert(t, err == nil && txt == "", "notes %q %v", txt, err)

	diff, err := SetNotes(ctx, store, pkg.ID(), "en", "first line\nsecond line\n")
	tassert(t, err == nil, "%v", err)
	tassert(t, strings.Contains(diff, "+first line"), "diff %q", diff)
	diff, err = SetNotes(ctx, store, pkg.ID(), "en", "first line\nsecond line, fixed\n")
	tassert(t, err == nil, "%v", err)
	tassert(t, strings.Contains(diff, "-second line\n") && strings.Contains(diff, "+second line, fixed"), "diff %q", diff)

	txt, err = GetNotes(ctx, store, pkg.ID(), "en")
	tassert(t, err == nil && txt == "first line\nsecond line, fixed\n", "notes %q %v", txt, err)
	txt, err = GetNotes(ctx, store, pkg.ID(), "de")
	tassert(t, err == nil && txt == "", "notes %q %v", txt, err)

	// the package file carries the notes too
	stored, err := store.LoadPackage(ctx, pkg.ID())
	tassert(t, err == nil && stored.Header().Notes("en") != "", "stored header %v %v", stored.Header(), err)

	_, err = SetNotes(ctx, store, "nope", "en", "x")
	tassert(t, model.IsRemoteData(err), "expected remote data error, got %v", err)
}

func TestRemoveCollectsGarbage(t *testing.T) {
	ctx := context.Background()
	dir, store := setup(t)
	p1 := publish(t, store, release(t, dir, "1.0", "app one"))
	p2 := publish(t, store, release(t, dir, "1.1", "app two"))

	proj1, err := store.LoadProjection(ctx, p1.ID())
	tassert(t, err == nil, "%v", err)
	proj2, err := store.LoadProjection(ctx, p2.ID())
	tassert(t, err == nil, "%v", err)
	shared := map[string]bool{}
	for _, u := range proj2.SubURLs() {
		shared[u] = true
	}

	removed, err := Remove(ctx, store, p1.ID(), 2)
	tassert(t, err == nil, "%v", err)
	tassert(t, len(removed) > 0, "nothing removed")
	for _, u := range removed {
		tassert(t, !shared[u], "removed %s still used by %s", u, p2.ID())
	}
	// lib.dll is bundled identically in both releases
	kept := 0
	for _, u := range proj1.SubURLs() {
		ok, err := store.Host.Exists(ctx, u)
		tassert(t, err == nil, "%v", err)
		if ok {
			kept++
			tassert(t, shared[u], "orphan %s left behind", u)
		}
	}
	tassert(t, kept == 1, "expected the shared bundle to survive, kept %d", kept)

	_, err = store.LoadPackage(ctx, p1.ID())
	tassert(t, host.IsNotFound(err), "package not removed: %v", err)
	for _, u := range proj2.SubURLs() {
		ok, err := store.Host.Exists(ctx, u)
		tassert(t, err == nil && ok, "%s of the remaining release is gone", u)
	}
	_, err = Remove(ctx, store, p1.ID(), 2)
	tassert(t, model.IsRemoteData(err), "expected remote data error, got %v", err)
}

func TestRemoveWithOneWorker(t *testing.T) {
	ctx := context.Background()
	dir, store := setup(t)
	p1 := publish(t, store, release(t, dir, "1.0", "app one"))
	publish(t, store, release(t, dir, "1.1", "app two"))
	publish(t, store, release(t, dir, "1.2", "app three"))

	// a zero worker count still reads every remaining projection
	removed, err := Remove(ctx, store, p1.ID(), 0)
	tassert(t, err == nil && len(removed) > 0, "removed %v %v", removed, err)
	headers, err := List(ctx, store)
	tassert(t, err == nil && len(headers) == 2, "headers %v %v", headers, err)
}
