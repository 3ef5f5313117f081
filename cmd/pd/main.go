package main

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitdelta/builder"
	"github.com/t7a/pitdelta/cas"
	"github.com/t7a/pitdelta/client"
	"github.com/t7a/pitdelta/host"
	"github.com/t7a/pitdelta/hostfs"
	"github.com/t7a/pitdelta/install"
	"github.com/t7a/pitdelta/model"
	"github.com/t7a/pitdelta/progress"
	"github.com/t7a/pitdelta/publish"
	"github.com/t7a/pitdelta/runner"
	"github.com/t7a/pitdelta/spec"
)

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	logrus.SetReportCaller(true)
	formatter := &logrus.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	logrus.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number`. e.g. `/internal/app/api.go:25`
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, p), f.Line, GetGID())
	}
}

// GetGID returns the id of the calling goroutine.
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

const usage = `pd

Usage:
  pd init [-c <codec>] <hostdir>
  pd push [-c <codec>] <hostdir> <srcdir> <packagespec> <projectionspec>
  pd rm <hostdir> <package>
  pd ls [-l] <hostdir>
  pd notes get <hostdir> <package> <locale>
  pd notes set <hostdir> <package> <locale> <file>
  pd install [-b <backupdir>] [-r <restart>] [--verify] <hostdir> <name> <installdir>
  pd watch <hostdir>
  pd runner <handoff>...

A <package> is a package id or name@version.

Options:
  -h --help     Show this screen.
  --version     Show version.
  -c <codec>    Compression codec, gzip or bzip2.  Defaults to the
                codec of the host's manifest.
  -l            Long listing with ids and dates.
  -b <backupdir>  Back up replaced files.
  -r <restart>  Command that restarts the program after a runner handoff.
  --verify      Re-hash every file after installing.

Environment:
  DEBUG=1       Debug logging.
  PD_CODEC      Default codec.
  PD_WORKERS    Number of parallel transfers and hashes.
`

type Opts struct {
	Init           bool
	Push           bool
	Rm             bool
	Ls             bool
	Notes          bool
	Get            bool
	Set            bool
	Install        bool
	Watch          bool
	Runner         bool
	Handoff        []string
	Hostdir        string
	Srcdir         string
	Packagespec    string
	Projectionspec string
	Package        string
	Locale         string
	File           string
	Name           string
	Installdir     string
	Codec          string `docopt:"-c"`
	Long           bool   `docopt:"-l"`
	Backupdir      string `docopt:"-b"`
	Restart        string `docopt:"-r"`
	Verify         bool   `docopt:"--verify"`
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {
	rc, msg := Run()
	if len(msg) > 0 {
		log.Error(msg)
		if rc == 0 {
			rc = 1
		}
	}
	return
}

// Run executes one command line.  Errors come back as msg.
func Run() (rc int, msg string) {
	defer Halt(&rc, &msg)
	ctx := context.Background()

	// the runner's arguments look like options, so they bypass docopt
	if len(os.Args) > 1 && os.Args[1] == "runner" {
		err := runRunner(ctx, os.Args[2:])
		Ck(err)
		return
	}

	parser := &docopt.Parser{OptionsFirst: false, HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.0")
	Ck(err)
	if len(o) == 0 {
		// help was shown
		return
	}
	var opts Opts
	err = o.Bind(&opts)
	Ck(err)
	log.Debug(opts)

	switch true {
	case opts.Init:
		created, err := create(ctx, opts.Hostdir, opts.Codec)
		Ck(err)
		if created {
			fmt.Printf("Initialized empty host in %s\n", opts.Hostdir)
		} else {
			fmt.Printf("Host %s already initialized\n", opts.Hostdir)
		}
	case opts.Push:
		pkg, err := push(ctx, opts)
		Ck(err)
		fmt.Printf("pushed %s %s\n", pkg.Name(), pkg.Version())
	case opts.Rm:
		h, removed, err := remove(ctx, opts.Hostdir, opts.Package)
		Ck(err)
		fmt.Printf("removed %s %s and %d hosted files\n", h.Name, h.Version, len(removed))
	case opts.Ls:
		headers, err := list(ctx, opts.Hostdir)
		Ck(err)
		for _, h := range headers {
			if opts.Long {
				fmt.Printf("%s %s %s %s\n", h.Name, h.Version, h.ID, h.DatePublished.Format(time.RFC3339))
			} else {
				fmt.Printf("%s %s\n", h.Name, h.Version)
			}
		}
	case opts.Notes && opts.Get:
		text, err := getNotes(ctx, opts.Hostdir, opts.Package, opts.Locale)
		Ck(err)
		fmt.Print(text)
	case opts.Notes && opts.Set:
		diff, err := setNotes(ctx, opts.Hostdir, opts.Package, opts.Locale, opts.File)
		Ck(err)
		fmt.Print(diff)
	case opts.Install:
		out, err := installLatest(ctx, opts)
		Ck(err)
		fmt.Println(out)
	case opts.Watch:
		err := watch(ctx, opts.Hostdir)
		Ck(err)
	}
	return
}

func workers() int {
	n, err := strconv.Atoi(os.Getenv("PD_WORKERS"))
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// openStore opens the host in dir.  An initialized host keeps the codec
// of its manifest and an explicit codec must agree with it.  A host
// without a manifest uses codec, PD_CODEC or gzip, in that order.
func openStore(ctx context.Context, dir, codec string) (store *host.Store, err error) {
	defer Return(&err)
	name := codec
	if name == "" {
		name = os.Getenv("PD_CODEC")
	}
	want, err := cas.CodecByName(name)
	Ck(err)
	fh, err := hostfs.Open(dir)
	Ck(err)
	h := host.Retry(fh, host.DefaultAttempts, host.DefaultBackoff)
	c, err := host.DetectCodec(ctx, h)
	if host.IsNotFound(err) {
		c, err = want, nil
	}
	Ck(err)
	if codec != "" && c != want {
		return nil, fmt.Errorf("host %s uses %s, not %s", dir, c.Name(), want.Name())
	}
	return host.NewStore(h, c), nil
}

func create(ctx context.Context, dir, codecName string) (created bool, err error) {
	defer Return(&err)
	_, err = hostfs.Open(dir)
	if err != nil {
		_, err = hostfs.Create(dir)
		Ck(err)
	}
	store, err := openStore(ctx, dir, codecName)
	Ck(err)
	created, err = publish.Init(ctx, store)
	Ck(err)
	return
}

// resolve finds a package by id or name@version.
func resolve(ctx context.Context, store *host.Store, ref string) (h model.PackageHeader, err error) {
	m, err := store.LoadManifest(ctx)
	if err != nil {
		return
	}
	if h, ok := m.Find(ref); ok {
		return h, nil
	}
	if i := strings.LastIndex(ref, "@"); i > 0 {
		v, verr := model.ParseVersion(ref[i+1:])
		if verr == nil {
			want := model.PackageHeader{Name: ref[:i], Version: v}
			for _, h := range m.SameName(want.Name) {
				if h.Same(want) {
					return h, nil
				}
			}
		}
	}
	return h, &model.RemoteDataError{Path: ref, Reason: "no such package"}
}

func push(ctx context.Context, opts Opts) (pkg *model.Package, err error) {
	defer Return(&err)
	store, err := openStore(ctx, opts.Hostdir, opts.Codec)
	Ck(err)
	ps, err := spec.LoadPackageSpec(opts.Packagespec)
	Ck(err)
	js, err := spec.LoadProjectionSpec(opts.Projectionspec)
	Ck(err)
	pkg, _, err = publish.Publish(ctx, store, opts.Srcdir, ps, js, builder.WithWorkers(workers()))
	Ck(err)
	return
}

func remove(ctx context.Context, dir, ref string) (h model.PackageHeader, removed []string, err error) {
	defer Return(&err)
	store, err := openStore(ctx, dir, "")
	Ck(err)
	h, err = resolve(ctx, store, ref)
	Ck(err)
	removed, err = publish.Remove(ctx, store, h.ID, workers())
	Ck(err)
	return
}

func list(ctx context.Context, dir string) (headers []model.PackageHeader, err error) {
	defer Return(&err)
	store, err := openStore(ctx, dir, "")
	Ck(err)
	headers, err = publish.List(ctx, store)
	Ck(err)
	return
}

func getNotes(ctx context.Context, dir, ref, locale string) (text string, err error) {
	defer Return(&err)
	store, err := openStore(ctx, dir, "")
	Ck(err)
	h, err := resolve(ctx, store, ref)
	Ck(err)
	text, err = publish.GetNotes(ctx, store, h.ID, locale)
	Ck(err)
	return
}

func setNotes(ctx context.Context, dir, ref, locale, fn string) (diff string, err error) {
	defer Return(&err)
	store, err := openStore(ctx, dir, "")
	Ck(err)
	h, err := resolve(ctx, store, ref)
	Ck(err)
	buf, err := ioutil.ReadFile(fn)
	Ck(err)
	diff, err = publish.SetNotes(ctx, store, h.ID, locale, string(buf))
	Ck(err)
	return
}

func installLatest(ctx context.Context, opts Opts) (out string, err error) {
	defer Return(&err)
	store, err := openStore(ctx, opts.Hostdir, "")
	Ck(err)
	h, err := publish.Latest(ctx, store, opts.Name)
	Ck(err)
	pkg, err := store.LoadPackage(ctx, h.ID)
	Ck(err)

	n := workers()
	d := client.NewDiffer(client.WithHashWorkers(n))
	ok, err := d.IsInstalled(pkg, opts.Installdir)
	Ck(err)
	if ok {
		return fmt.Sprintf("%s %s already installed", h.Name, h.Version), nil
	}
	diff, err := d.GetDifference(ctx, pkg, opts.Installdir)
	Ck(err)
	proj, err := store.LoadProjection(ctx, pkg.ID())
	Ck(err)
	plan, err := client.NewPlan(diff, proj)
	Ck(err)

	var restart []string
	if opts.Restart != "" {
		restart, err = shlex.Split(opts.Restart)
		Ck(err)
	}
	update, err := ioutil.TempDir("", "pd-update-")
	Ck(err)
	tracker := progress.NewTracker(plan.Size(), 5*time.Second)
	store.Sink = tracker
	e := &install.Engine{
		Root:      opts.Installdir,
		UpdateDir: update,
		BackupDir: opts.Backupdir,
		Verify:    opts.Verify,
		Restart:   restart,
	}
	res, err := e.Run(ctx, store, plan, n)
	log.WithFields(log.Fields{"bytes": tracker.Done(), "percent": tracker.Percent(), "rate": tracker.Speed()}).Info("transfer")
	Ck(err)

	if res.State == install.RunnerHandoffRequired {
		exe, err := os.Executable()
		Ck(err)
		pid, err := runner.Launch(exe, []string{"runner"}, res.Handoff)
		Ck(err)
		return fmt.Sprintf("%s %s: %d files left to runner %d", h.Name, h.Version, len(res.Remaining), pid), nil
	}
	err = os.RemoveAll(update)
	Ck(err)
	return fmt.Sprintf("installed %s %s into %s: %d files", h.Name, h.Version, opts.Installdir, len(res.Applied)), nil
}

func runRunner(ctx context.Context, args []string) (err error) {
	defer Return(&err)
	h, err := runner.ParseArgs(args)
	Ck(err)
	err = runner.Apply(ctx, h, 250*time.Millisecond)
	Ck(err)
	return
}

// watch prints the releases each time the host's manifest changes,
// until SIGINT or SIGTERM.
func watch(ctx context.Context, dir string) (err error) {
	defer Return(&err)
	store, err := openStore(ctx, dir, "")
	Ck(err)
	h, err := hostfs.Open(dir)
	Ck(err)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = h.Watch(ctx, func() {
		headers, err := publish.List(ctx, store)
		if err != nil {
			log.Warn(err)
			return
		}
		for _, h := range headers {
			fmt.Printf("%s %s %s\n", h.Name, h.Version, h.ID)
		}
	})
	Ck(err)
	return
}
