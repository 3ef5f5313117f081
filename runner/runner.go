// Package runner finishes an install out of process.  Files the
// running program could not replace are staged in a directory; the
// runner waits for the program to exit, copies them into place and
// restarts the program.
package runner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/alessio/shellescape"
	"github.com/google/renameio"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/pkg/fileutils"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// Handoff is everything the runner needs to finish an install.
type Handoff struct {
	// StagedDir mirrors ProgramDir and holds the finished files.
	StagedDir  string
	ProgramDir string
	// BackupDir, if set, receives the replaced files.
	BackupDir string
	// PIDs must all exit before any file is touched.
	PIDs []int
	// RestartCommand is run, if set, once the files are in place.
	RestartCommand []string
}

// Args renders h as runner command line arguments.  The restart
// command travels as a single shell-quoted argument.
func (h *Handoff) Args() (args []string) {
	args = []string{"--staged", h.StagedDir, "--program", h.ProgramDir}
	if h.BackupDir != "" {
		args = append(args, "--backup", h.BackupDir)
	}
	for _, pid := range h.PIDs {
		args = append(args, "--pid", strconv.Itoa(pid))
	}
	if len(h.RestartCommand) > 0 {
		args = append(args, "--restart", shellescape.QuoteCommand(h.RestartCommand))
	}
	return
}

// ParseArgs is the inverse of Args.
func ParseArgs(args []string) (h *Handoff, err error) {
	h = &Handoff{}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return nil, fmt.Errorf("runner: %s needs a value", args[i])
		}
		val := args[i+1]
		switch args[i] {
		case "--staged":
			h.StagedDir = val
		case "--program":
			h.ProgramDir = val
		case "--backup":
			h.BackupDir = val
		case "--pid":
			pid, err := strconv.Atoi(val)
			if err != nil {
				return nil, errors.Wrapf(err, "runner: bad pid %q", val)
			}
			h.PIDs = append(h.PIDs, pid)
		case "--restart":
			h.RestartCommand, err = shlex.Split(val)
			if err != nil {
				return nil, errors.Wrapf(err, "runner: bad restart command %q", val)
			}
		default:
			return nil, fmt.Errorf("runner: unknown argument %s", args[i])
		}
	}
	if h.StagedDir == "" || h.ProgramDir == "" {
		return nil, fmt.Errorf("runner: --staged and --program are required")
	}
	return
}

// Launch starts exe with args followed by the arguments of h, and
// does not wait for it.  It returns the runner's pid.
func Launch(exe string, args []string, h *Handoff) (pid int, err error) {
	cmd := exec.Command(exe, append(append([]string{}, args...), h.Args()...)...)
	err = cmd.Start()
	if err != nil {
		return
	}
	pid = cmd.Process.Pid
	log.WithFields(log.Fields{"runner": exe, "pid": pid}).Info("runner launched")
	return pid, cmd.Process.Release()
}

// alive reports whether pid still runs.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Wait blocks until none of pids runs, polling every poll.
func Wait(ctx context.Context, pids []int, poll time.Duration) error {
	for _, pid := range pids {
		for alive(pid) {
			log.WithField("pid", pid).Debug("waiting for exit")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(poll):
			}
		}
	}
	return nil
}

// Apply waits for the listed processes, copies every staged file over
// its program counterpart, and runs the restart command.
func Apply(ctx context.Context, h *Handoff, poll time.Duration) (err error) {
	defer Return(&err)
	err = Wait(ctx, h.PIDs, poll)
	Ck(err)
	err = filepath.WalkDir(h.StagedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(h.StagedDir, path)
		if err != nil {
			return err
		}
		return place(h, rel)
	})
	Ck(err)
	if len(h.RestartCommand) > 0 {
		cmd := exec.Command(h.RestartCommand[0], h.RestartCommand[1:]...)
		cmd.Dir = h.ProgramDir
		err = cmd.Start()
		Ck(err)
		log.WithField("pid", cmd.Process.Pid).Info("restarted")
		err = cmd.Process.Release()
		Ck(err)
	}
	return
}

// place moves one staged file into the program directory.
func place(h *Handoff, rel string) (err error) {
	defer Return(&err)
	src := filepath.Join(h.StagedDir, rel)
	dst := filepath.Join(h.ProgramDir, rel)
	if h.BackupDir != "" {
		if _, serr := os.Stat(dst); serr == nil {
			bak := filepath.Join(h.BackupDir, rel)
			err = os.MkdirAll(filepath.Dir(bak), 0755)
			Ck(err)
			err = fileutils.CopyFile(bak, dst)
			Ck(err)
		}
	}
	info, err := os.Stat(src)
	Ck(err)
	err = os.MkdirAll(filepath.Dir(dst), 0755)
	Ck(err)
	buf, err := os.ReadFile(src)
	Ck(err)
	err = renameio.WriteFile(dst, buf, info.Mode().Perm())
	Ck(err)
	log.WithField("path", rel).Info("placed")
	return
}
