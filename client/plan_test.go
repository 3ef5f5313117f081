package client

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/t7a/pitdelta/model"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

// scenario: v1 has app.exe=H1 lib.dll=H2, v2 has app.exe=H3 lib.dll=H2
// new.dll=H4.
func scenario(t *testing.T) (*model.Package, *model.PackageProjection) {
	h := model.PackageHeader{ID: "v2", Name: "A", Version: model.MustVersion("2"), VersionProviderFile: "app.exe"}
	pkg, err := model.NewPackage(h, []model.PackageFile{
		{ID: "app", Path: "app.exe", ContentHash: "H3", FileVersion: model.MustVersion("2")},
		{ID: "lib", Path: "lib.dll", ContentHash: "H2"},
		{ID: "new", Path: "new.dll", ContentHash: "H4"},
	})
	tassert(t, err == nil, "%v", err)
	proj := &model.PackageProjection{ID: "p2", PackageID: "v2", HostedFiles: []model.HostedFile{
		{ID: "items", SubURL: "data/i", ContentHash: "i", Size: 1000, Content: model.Items([]string{"app", "lib", "new"})},
		{ID: "deltas", SubURL: "data/deltas/d", ContentHash: "d", Size: 10, Content: model.Deltas([]model.PackageFileDelta{
			{OldHash: "H1", NewHash: "H3", PackageFileID: "app"},
		})},
	}}
	return pkg, proj
}

func difference(pkg *model.Package, states map[string]model.ActualFileState) *model.PackageDifference {
	diff := &model.PackageDifference{Package: pkg}
	for _, f := range pkg.Files() {
		st := states[f.Path]
		st.Path = f.Path
		diff.FileDifferences = append(diff.FileDifferences, model.PackageFileDifference{ActualState: st, PackageFile: f})
	}
	return diff
}

func ids(plan *Plan) (out []string) {
	for _, hf := range plan.HostedFiles {
		out = append(out, hf.ID)
	}
	return
}

func TestPlanScenario(t *testing.T) {
	pkg, proj := scenario(t)
	diff := difference(pkg, map[string]model.ActualFileState{
		"app.exe": {Exists: true, Hash: "H1"},
		"lib.dll": {Exists: true, Hash: "H2"},
	})
	different := diff.DifferentFiles()
	tassert(t, len(different) == 2, "different %v", different)
	plan, err := NewPlan(diff, proj)
	tassert(t, err == nil, "%v", err)
	got := fmt.Sprint(ids(plan))
	tassert(t, got == "[items deltas]", "plan %s", got)
}

func TestPlanPrefersDelta(t *testing.T) {
	pkg, proj := scenario(t)
	diff := difference(pkg, map[string]model.ActualFileState{
		"app.exe": {Exists: true, Hash: "H1"},
		"lib.dll": {Exists: true, Hash: "H2"},
		"new.dll": {Exists: true, Hash: "H4"},
	})
	plan, err := NewPlan(diff, proj)
	tassert(t, err == nil, "%v", err)
	tassert(t, fmt.Sprint(ids(plan)) == "[deltas]", "plan %v", ids(plan))
	tassert(t, plan.Size() == 10, "size %d", plan.Size())
}

func TestPlanIgnoresForeignDelta(t *testing.T) {
	pkg, proj := scenario(t)
	diff := difference(pkg, map[string]model.ActualFileState{
		"app.exe": {Exists: true, Hash: "H0"},
		"lib.dll": {Exists: true, Hash: "H2"},
		"new.dll": {Exists: true, Hash: "H4"},
	})
	plan, err := NewPlan(diff, proj)
	tassert(t, err == nil, "%v", err)
	tassert(t, fmt.Sprint(ids(plan)) == "[items]", "plan %v", ids(plan))
}

func TestPlanNothingToDo(t *testing.T) {
	pkg, proj := scenario(t)
	diff := difference(pkg, map[string]model.ActualFileState{
		"app.exe": {Exists: true, Hash: "H3"},
		"lib.dll": {Exists: true, Hash: "H2"},
		"new.dll": {Exists: true, Hash: "H4"},
	})
	tassert(t, !diff.IsDifferent(), "difference %v", diff.DifferentFiles())
	plan, err := NewPlan(diff, proj)
	tassert(t, err == nil && len(plan.HostedFiles) == 0, "plan %v %v", ids(plan), err)
}

func TestPlanMissingData(t *testing.T) {
	pkg, proj := scenario(t)
	proj.HostedFiles = proj.HostedFiles[1:]
	diff := difference(pkg, map[string]model.ActualFileState{
		"app.exe": {Exists: true, Hash: "H1"},
	})
	_, err := NewPlan(diff, proj)
	tassert(t, model.IsRemoteData(err), "expected remote data error, got %v", err)
}

// covered reports whether plan can produce every different file.
func covered(plan *Plan) error {
	for _, fd := range plan.Difference.DifferentFiles() {
		ok := false
		for _, hf := range plan.HostedFiles {
			items, deltas := candidates(&model.PackageProjection{HostedFiles: []model.HostedFile{hf}}, fd)
			if len(items)+len(deltas) > 0 {
				ok = true
			}
		}
		if !ok {
			return fmt.Errorf("%s not covered", fd.PackageFile.Path)
		}
	}
	return nil
}

func TestPlanSound(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		nfiles := 1 + rnd.Intn(8)
		var files []model.PackageFile
		for i := 0; i < nfiles; i++ {
			files = append(files, model.PackageFile{ID: fmt.Sprint("f", i), Path: fmt.Sprint("f", i), ContentHash: fmt.Sprint("new", i)})
		}
		files[0].FileVersion = model.MustVersion("1")
		pkg, err := model.NewPackage(model.PackageHeader{ID: "p", VersionProviderFile: "f0"}, files)
		tassert(t, err == nil, "%v", err)

		proj := &model.PackageProjection{ID: "j"}
		// random items bundles, then a catch-all so every file is covered
		for b := 0; b < rnd.Intn(4); b++ {
			var ids []string
			for _, f := range files {
				if rnd.Intn(2) == 0 {
					ids = append(ids, f.ID)
				}
			}
			proj.HostedFiles = append(proj.HostedFiles, model.HostedFile{ID: fmt.Sprint("i", b), Size: int64(rnd.Intn(100)), Content: model.Items(ids)})
		}
		var all []string
		for _, f := range files {
			all = append(all, f.ID)
		}
		proj.HostedFiles = append(proj.HostedFiles, model.HostedFile{ID: "all", Size: 1000, Content: model.Items(all)})
		for b := 0; b < rnd.Intn(3); b++ {
			var ds []model.PackageFileDelta
			for i, f := range files {
				if rnd.Intn(2) == 0 {
					ds = append(ds, model.PackageFileDelta{OldHash: fmt.Sprint("old", i), NewHash: f.ContentHash, PackageFileID: f.ID})
				}
			}
			proj.HostedFiles = append(proj.HostedFiles, model.HostedFile{ID: fmt.Sprint("d", b), Size: int64(rnd.Intn(50)), Content: model.Deltas(ds)})
		}

		states := map[string]model.ActualFileState{}
		for i, f := range files {
			switch rnd.Intn(3) {
			case 0:
			case 1:
				states[f.Path] = model.ActualFileState{Exists: true, Hash: fmt.Sprint("old", i)}
			case 2:
				states[f.Path] = model.ActualFileState{Exists: true, Hash: f.ContentHash}
			}
		}
		diff := difference(pkg, states)
		plan, err := NewPlan(diff, proj)
		tassert(t, err == nil, "round %d: %v", round, err)
		err = covered(plan)
		tassert(t, err == nil, "round %d: %v", round, err)

		// a file patched from an old hash with a matching delta gets one
		for _, fd := range diff.DifferentFiles() {
			_, deltas := candidates(proj, fd)
			if len(deltas) == 0 {
				continue
			}
			ok := false
			for _, hf := range plan.HostedFiles {
				for _, d := range deltas {
					if proj.HostedFiles[d].ID == hf.ID {
						ok = true
					}
				}
			}
			tassert(t, ok, "round %d: %s has a delta but plan %v uses none", round, fd.PackageFile.Path, ids(plan))
		}
	}
}
