package reconcile_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/launcher"
	"github.com/omuapps/obssync/internal/lifecycle"
	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/internal/python"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/internal/scene"
	"github.com/omuapps/obssync/internal/storage"
	"github.com/omuapps/obssync/pkg/types"
)

func TestReconcile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reconcile Suite")
}

type fixedResolver struct {
	res *python.Resolution
	err error
}

func (f fixedResolver) Resolve(context.Context) (*python.Resolution, error) {
	return f.res, f.err
}

// obsProcess stands in for a running OBS.
type obsProcess struct {
	running atomic.Bool
}

func (p *obsProcess) PID() int32   { return 1234 }
func (p *obsProcess) Name() string { return "obs64.exe" }
func (p *obsProcess) Cmdline(context.Context) ([]string, error) {
	return []string{"C:/obs/bin/64bit/obs64.exe", "--portable"}, nil
}
func (p *obsProcess) Cwd(context.Context) (string, error) { return "C:/obs/bin/64bit", nil }
func (p *obsProcess) IsRunning(context.Context) (bool, error) {
	return p.running.Load(), nil
}
func (p *obsProcess) Signal(context.Context, syscall.Signal) error { return nil }

type locator struct {
	proc *obsProcess
}

func (l *locator) FindByNames(context.Context, []string) (process.Handle, error) {
	if l.proc == nil || !l.proc.running.Load() {
		return nil, process.ErrNotFound
	}
	return l.proc, nil
}

// stopper stops the fake process; onExit runs before it is marked stopped,
// the way OBS saves its config on the way out.
type stopper struct {
	calls  atomic.Int32
	onExit func()
}

func (s *stopper) Stop(_ context.Context, h process.Handle) error {
	s.calls.Add(1)
	if s.onExit != nil {
		s.onExit()
	}
	h.(*obsProcess).running.Store(false)
	return nil
}

type dialog struct {
	mu     sync.Mutex
	answer lifecycle.Choice
	asked  int
}

func (d *dialog) Confirm(context.Context, string) (lifecycle.Choice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asked++
	return d.answer, nil
}

func (d *dialog) ConfirmRetry(context.Context, string) (lifecycle.RetryChoice, error) {
	return lifecycle.Cancel, nil
}

func (d *dialog) Asked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asked
}

type fixture struct {
	root      string
	obsDir    string
	scenesDir string
	scriptDir string
	stateDir  string

	proc     *obsProcess
	stopper  *stopper
	dialog   *dialog
	launches []*types.LaunchSpec
	reports  *reconcile.Reports
	events   []event.Event
	mu       sync.Mutex
}

func newFixture() *fixture {
	root := GinkgoT().TempDir()
	f := &fixture{
		root:      root,
		obsDir:    filepath.Join(root, "obs-studio"),
		scenesDir: filepath.Join(root, "obs-studio", "basic", "scenes"),
		scriptDir: filepath.Join(root, "plugin", "script"),
		stateDir:  filepath.Join(root, "state"),
		proc:      &obsProcess{},
		stopper:   &stopper{},
		dialog:    &dialog{answer: lifecycle.Proceed},
	}
	Expect(os.MkdirAll(f.scenesDir, 0755)).To(Succeed())
	f.reports = reconcile.NewReports(storage.New(filepath.Join(root, "data")), 5)
	return f
}

func (f *fixture) launcherPath() string {
	return filepath.Join(f.scriptDir, "omuapps_plugin.py")
}

func (f *fixture) publish(e event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fixture) eventTypes() []event.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.EventType
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func (f *fixture) reconciler(desired string, mutate ...func(*reconcile.Options)) *reconcile.Reconciler {
	coord := lifecycle.New(lifecycle.Config{
		Locator:      &locator{proc: f.proc},
		Stopper:      f.stopper,
		Dialog:       f.dialog,
		PollInterval: 5 * time.Millisecond,
		ExitWindow:   20 * time.Millisecond,
		Publish:      f.publish,
		Launch: func(spec *types.LaunchSpec) (int, error) {
			f.launches = append(f.launches, spec)
			return 4321, nil
		},
	})

	opts := reconcile.Options{
		OBSDir:       f.obsDir,
		ProcessNames: []string{"obs64.exe", "obs32.exe"},
		Companion: launcher.Companion{
			ScriptDir:        f.scriptDir,
			Script:           "omuapps_plugin.py",
			Module:           "omuserver",
			WorkingDirectory: "/srv/omu",
		},
		Scenes:   scene.Options{Matcher: scene.RawPaths{}},
		Relaunch: true,
		StateDir: f.stateDir,
		Reports:  f.reports,
		Publish:  f.publish,
	}
	for _, m := range mutate {
		m(&opts)
	}

	resolver := fixedResolver{res: &python.Resolution{
		Interpreter: &python.Interpreter{Executable: desired + "/python.exe", Version: "3.12.1"},
		Directory:   desired,
	}}
	return reconcile.New(opts, resolver, coord)
}

func (f *fixture) write(rel, content string) string {
	path := filepath.Join(f.obsDir, rel)
	Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	return path
}

func (f *fixture) read(rel string) string {
	data, err := os.ReadFile(filepath.Join(f.obsDir, rel))
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

func stat(path string) os.FileInfo {
	info, err := os.Stat(path)
	Expect(err).NotTo(HaveOccurred())
	return info
}
