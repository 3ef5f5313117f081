package client

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitdelta/model"
)

// Plan is the set of hosted files to fetch for a difference.
type Plan struct {
	Difference  *model.PackageDifference
	Projection  *model.PackageProjection
	HostedFiles []model.HostedFile
}

// Size is the number of bytes the plan downloads.
func (p *Plan) Size() (n int64) {
	for _, hf := range p.HostedFiles {
		n += hf.Size
	}
	return
}

// candidates lists the hosted files able to produce fd.  A missing
// file needs an items bundle; an existing one may also be patched by a
// delta whose old hash is its current hash.
func candidates(proj *model.PackageProjection, fd model.PackageFileDifference) (items, deltas []int) {
	id := fd.PackageFile.ID
	for i, hf := range proj.HostedFiles {
		switch hf.Content.Kind {
		case model.ContentItems:
			for _, cid := range hf.Content.PackageFileIDs {
				if cid == id {
					items = append(items, i)
					break
				}
			}
		case model.ContentDeltas:
			if !fd.ActualState.Exists {
				continue
			}
			for _, d := range hf.Content.Deltas {
				if d.PackageFileID == id && d.OldHash == fd.ActualState.Hash && d.NewHash == fd.PackageFile.ContentHash {
					deltas = append(deltas, i)
					break
				}
			}
		default:
			panic(fmt.Sprintf("unhandled content kind %v", hf.Content.Kind))
		}
	}
	return
}

// NewPlan picks hosted files covering every different file.  Files
// with a single candidate force it in.  The rest prefer a delta: the
// smallest delta candidate is added unless a chosen delta already
// covers the file.  Files with only items candidates are skipped when a
// chosen hosted file covers them, else the smallest is added.  This is
// a greedy cover, sound but not always minimal.
func NewPlan(diff *model.PackageDifference, proj *model.PackageProjection) (plan *Plan, err error) {
	plan = &Plan{Difference: diff, Projection: proj}
	type cands struct {
		fd     model.PackageFileDifference
		items  []int
		deltas []int
	}
	var todo []cands
	for _, fd := range diff.DifferentFiles() {
		items, deltas := candidates(proj, fd)
		if len(items)+len(deltas) == 0 {
			return nil, &model.RemoteDataError{
				Path:   fd.PackageFile.Path,
				Reason: fmt.Sprintf("no hosted file of projection %s covers it", proj.ID),
			}
		}
		todo = append(todo, cands{fd, items, deltas})
	}

	chosen := map[int]bool{}
	anyChosen := func(idx []int) bool {
		for _, i := range idx {
			if chosen[i] {
				return true
			}
		}
		return false
	}
	smallest := func(idx []int) int {
		best := idx[0]
		for _, i := range idx[1:] {
			if proj.HostedFiles[i].Size < proj.HostedFiles[best].Size {
				best = i
			}
		}
		return best
	}

	for _, c := range todo {
		switch {
		case len(c.items) == 1 && len(c.deltas) == 0:
			chosen[c.items[0]] = true
		case len(c.deltas) == 1 && len(c.items) == 0:
			chosen[c.deltas[0]] = true
		}
	}
	for _, c := range todo {
		all := append(append([]int{}, c.deltas...), c.items...)
		if len(all) == 1 {
			continue
		}
		switch {
		case len(c.deltas) > 0:
			if !anyChosen(c.deltas) {
				chosen[smallest(c.deltas)] = true
			}
		case !anyChosen(all):
			chosen[smallest(all)] = true
		}
	}

	for i, hf := range proj.HostedFiles {
		if chosen[i] {
			plan.HostedFiles = append(plan.HostedFiles, hf)
		}
	}
	log.WithFields(log.Fields{"hostedFiles": len(plan.HostedFiles), "bytes": plan.Size()}).Debug("planned")
	return
}
