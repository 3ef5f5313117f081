// Package install applies a downloaded update to an installed tree.
//
// Files are replaced one at a time, each through a temp file renamed
// over its target, so an interrupted install leaves every file either
// old or new.  Files held open by a running process are finished later
// by the runner.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/client"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/runner"
)

// State is the progress of one install attempt.
type State int

const (
	Planned State = iota
	Downloading
	Installing
	Completed
	RunnerHandoffRequired
	Failed
)

func (s State) String() string {
	switch s {
	case Planned:
		return "planned"
	case Downloading:
		return "downloading"
	case Installing:
		return "installing"
	case Completed:
		return "completed"
	case RunnerHandoffRequired:
		return "runner handoff required"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// VerificationError reports an installed file that does not match its
// package entry after an install that otherwise completed.
type VerificationError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: expected %s, found %s", e.Path, e.Expected, e.Actual)
}

// Engine installs into Root from an update directory laid out by
// client.Download.
type Engine struct {
	Root      string
	UpdateDir string
	// BackupDir, if set, receives each file before it is replaced.
	BackupDir string
	// RunnerDir receives the finished versions of locked files.
	RunnerDir string
	// Verify re-hashes every package file after a completed install.
	Verify bool
	// Restart is handed to the runner to relaunch the program.
	Restart []string
	FS      FileOps
}

// Result is the outcome of an install attempt.  Handoff is set when
// State is RunnerHandoffRequired.
type Result struct {
	State     State
	Applied   []model.PackageFileDifference
	Remaining []model.PackageFileDifference
	Handoff   *runner.Handoff
}

func (e *Engine) fs() FileOps {
	if e.FS == nil {
		return OS{}
	}
	return e.FS
}

func (e *Engine) local(dir, relpath string) string {
	return filepath.Join(dir, filepath.FromSlash(relpath))
}

// staged indexes the full files of the update directory by content
// hash.  Files left over from an older attempt that no longer match
// their package entry are ignored.
func (e *Engine) staged(pkg *model.Package) map[string]string {
	full := map[string]string{}
	for _, f := range pkg.Files() {
		if _, ok := full[f.ContentHash]; ok {
			continue
		}
		p := e.local(filepath.Join(e.UpdateDir, client.FilesDir), f.Path)
		hash, _, err := cas.HashFile(cas.DefaultAlgo, p)
		if err != nil {
			continue
		}
		if hash != f.ContentHash {
			log.WithFields(log.Fields{"path": f.Path, "hash": hash}).Warn("ignoring stale staged file")
			continue
		}
		full[f.ContentHash] = p
	}
	return full
}

// source finds what turns fd's current file into its target: a full
// file, else a delta against the installed bytes.
func (e *Engine) source(full map[string]string, fd model.PackageFileDifference) (path string, isDelta bool, err error) {
	target := fd.PackageFile
	if p, ok := full[target.ContentHash]; ok {
		return p, false, nil
	}
	if fd.ActualState.Exists {
		p := filepath.Join(e.UpdateDir, client.DeltasDir, model.DeltaFileName(fd.ActualState.Hash, target.ContentHash))
		if _, err := os.Stat(p); err == nil {
			return p, true, nil
		}
	}
	return "", false, &model.RemoteDataError{Path: target.Path, Reason: "no staged source for " + target.ContentHash}
}

// Install applies every different file of diff.  Cancellation is
// checked between files.
func (e *Engine) Install(ctx context.Context, diff *model.PackageDifference) (res *Result, err error) {
	res = &Result{State: Installing}
	defer func() {
		if err != nil {
			res.State = Failed
		}
	}()
	if e.RunnerDir == "" {
		e.RunnerDir = filepath.Join(e.UpdateDir, "runner")
	}
	full := e.staged(diff.Package)
	for _, fd := range diff.DifferentFiles() {
		if err = ctx.Err(); err != nil {
			return
		}
		var locked bool
		locked, err = e.installOne(full, fd)
		if err != nil {
			return
		}
		if locked {
			res.Remaining = append(res.Remaining, fd)
		} else {
			res.Applied = append(res.Applied, fd)
		}
	}

	if len(res.Remaining) > 0 {
		res.State = RunnerHandoffRequired
		res.Handoff = &runner.Handoff{
			StagedDir:      e.RunnerDir,
			ProgramDir:     e.Root,
			BackupDir:      e.BackupDir,
			PIDs:           []int{os.Getpid()},
			RestartCommand: e.Restart,
		}
		log.WithField("files", len(res.Remaining)).Info("locked files left for the runner")
		return
	}
	if e.Verify {
		err = e.verify(diff.Package)
		if err != nil {
			return
		}
	}
	res.State = Completed
	return
}

func (e *Engine) installOne(full map[string]string, fd model.PackageFileDifference) (locked bool, err error) {
	relpath := fd.PackageFile.Path
	dst := e.local(e.Root, relpath)
	src, isDelta, err := e.source(full, fd)
	if err != nil {
		return
	}
	if e.BackupDir != "" && fd.ActualState.Exists {
		err = e.fs().Backup(dst, e.local(e.BackupDir, relpath))
		if err != nil {
			return false, errors.Wrapf(err, "backup %s", relpath)
		}
	}

	err = e.put(src, isDelta, dst, dst, fd.PackageFile.ContentHash)
	if err == nil {
		log.WithFields(log.Fields{"path": relpath, "delta": isDelta}).Debug("installed")
		return
	}
	if !IsLocked(err) {
		return false, errors.Wrapf(err, "install %s", relpath)
	}

	log.WithField("path", relpath).Info("file locked, staging for runner")
	err = e.put(src, isDelta, dst, e.local(e.RunnerDir, relpath), fd.PackageFile.ContentHash)
	if err != nil {
		return false, errors.Wrapf(err, "stage %s for runner", relpath)
	}
	return true, nil
}

func (e *Engine) put(src string, isDelta bool, base, dst, want string) error {
	if isDelta {
		return e.fs().ApplyDelta(base, src, dst, want)
	}
	return e.fs().Replace(src, dst)
}

func (e *Engine) verify(pkg *model.Package) error {
	for _, f := range pkg.Files() {
		hash, _, err := cas.HashFile(cas.DefaultAlgo, e.local(e.Root, f.Path))
		if errors.Is(err, os.ErrNotExist) {
			hash, err = "", nil
		}
		if err != nil {
			return errors.Wrapf(err, "verify %s", f.Path)
		}
		if hash != f.ContentHash {
			return &VerificationError{Path: f.Path, Expected: f.ContentHash, Actual: hash}
		}
	}
	return nil
}

// Run downloads plan into the update directory and then installs it.
// The download completes before any installed file is touched.
func (e *Engine) Run(ctx context.Context, store *host.Store, plan *client.Plan, workers int) (res *Result, err error) {
	state := Planned
	step := func(s State) {
		log.WithFields(log.Fields{"from": state, "to": s}).Debug("install state")
		state = s
	}

	step(Downloading)
	err = client.Download(ctx, store, plan, e.UpdateDir, workers)
	if err != nil {
		step(Failed)
		return &Result{State: state}, err
	}

	step(Installing)
	res, err = e.Install(ctx, plan.Difference)
	step(res.State)
	return
}
