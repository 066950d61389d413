package reconcile_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/inifile"
	"github.com/omuapps/obssync/internal/launcher"
	"github.com/omuapps/obssync/internal/lifecycle"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/internal/storage"
)

const oldIni = "[Python]\nPath32bit=C:/old\nPath64bit=C:/old"

var _ = Describe("Reconciler", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
	})

	Describe("interpreter setting", func() {
		It("rewrites both paths without a dialog when OBS is not running", func() {
			f.write("global.ini", oldIni)

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.read("global.ini")).To(Equal("[Python]\nPath32bit=C:/new\nPath64bit=C:/new"))
			Expect(report.InterpreterChanged).To(BeTrue())
			Expect(report.Previous).To(Equal("C:/old"))
			Expect(f.dialog.Asked()).To(BeZero())
			Expect(f.stopper.calls.Load()).To(BeZero())
			Expect(f.launches).To(BeEmpty(), "nothing was captured, so relaunch is a no-op")
			Expect(report.Lifecycle.WasRunning).To(BeFalse())
		})

		It("stops OBS first and applies the setting to the file OBS saved on exit", func() {
			path := f.write("global.ini", oldIni)
			f.proc.running.Store(true)
			f.stopper.onExit = func() {
				Expect(os.WriteFile(path, []byte("[General]\nLastVersion=503316480\n\n"+oldIni+"\n"), 0644)).To(Succeed())
			}

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.read("global.ini")).To(Equal("[General]\nLastVersion=503316480\n\n[Python]\nPath32bit=C:/new\nPath64bit=C:/new\n"))
			Expect(f.dialog.Asked()).To(Equal(1))
			Expect(f.stopper.calls.Load()).To(Equal(int32(1)))

			Expect(f.launches).To(HaveLen(1))
			Expect(f.launches[0].Command).To(Equal([]string{"C:/obs/bin/64bit/obs64.exe", "--portable"}))
			Expect(f.launches[0].WorkingDirectory).To(Equal("C:/obs/bin/64bit"))
			Expect(report.Lifecycle.Relaunched).To(BeTrue())
			Expect(report.Lifecycle.FinalState).To(Equal("done"))
		})

		It("leaves global.ini alone but still registers scenes when the user declines", func() {
			f.write("global.ini", oldIni)
			f.write("basic/scenes/Untitled.json", `{"name":"Untitled"}`)
			f.proc.running.Store(true)
			f.dialog.answer = lifecycle.Decline

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(errors.Is(err, lifecycle.ErrUserAborted)).To(BeTrue())

			Expect(f.read("global.ini")).To(Equal(oldIni))
			Expect(report.InterpreterChanged).To(BeFalse())
			Expect(report.ScenesChanged).To(Equal([]string{"Untitled.json"}))
			Expect(f.stopper.calls.Load()).To(BeZero())
			Expect(f.launches).To(BeEmpty())
			Expect(f.proc.running.Load()).To(BeTrue())
			Expect(report.Lifecycle.FinalState).To(Equal("aborted"))
		})

		It("relaunches OBS it stopped even when global.ini cannot be updated", func() {
			path := f.write("global.ini", oldIni)
			f.proc.running.Store(true)
			f.stopper.onExit = func() {
				Expect(os.WriteFile(path, []byte("[Python\n"), 0644)).To(Succeed())
			}

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(errors.Is(err, inifile.ErrMalformedConfig)).To(BeTrue())

			Expect(report.InterpreterChanged).To(BeFalse())
			Expect(f.stopper.calls.Load()).To(Equal(int32(1)))
			Expect(f.launches).To(HaveLen(1))
			Expect(report.Lifecycle.Relaunched).To(BeTrue())
			Expect(report.Lifecycle.FinalState).To(Equal("done"))
		})

		It("treats separator differences as equal", func() {
			f.write("global.ini", "[Python]\nPath32bit=C:\\new\nPath64bit=C:/new\n")
			f.proc.running.Store(true)

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.InterpreterChanged).To(BeFalse())
			Expect(f.dialog.Asked()).To(BeZero())
		})

		It("preserves the byte order mark and CRLF line endings", func() {
			f.write("global.ini", "\xEF\xBB\xBF[General]\r\nName=x\r\n\r\n[Python]\r\nPath32bit=C:/old\r\nPath64bit=C:/old\r\n")

			_, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.read("global.ini")).To(Equal("\xEF\xBB\xBF[General]\r\nName=x\r\n\r\n[Python]\r\nPath32bit=C:/new\r\nPath64bit=C:/new\r\n"))
		})

		It("creates the setting when global.ini does not exist", func() {
			_, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			doc, err := inifile.Load(filepath.Join(f.obsDir, "global.ini"))
			Expect(err).NotTo(HaveOccurred())
			for _, key := range reconcile.InterpreterKeys {
				value, ok := doc.Get("Python", key)
				Expect(ok).To(BeTrue())
				Expect(value).To(Equal("C:/new"))
			}
		})

		It("reports a malformed global.ini and does not overwrite it", func() {
			broken := "[Python\nPath32bit=C:/old\n"
			f.write("global.ini", broken)
			f.write("basic/scenes/a.json", `{}`)

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(errors.Is(err, inifile.ErrMalformedConfig)).To(BeTrue())
			Expect(f.read("global.ini")).To(Equal(broken))
			Expect(report.ScenesChanged).To(Equal([]string{"a.json"}))
		})
	})

	Describe("scene registration", func() {
		It("adds exactly one record where it is missing and leaves registered collections untouched", func() {
			registered := `{"name":"A","modules":{"scripts-tool":[{"path":` + quote(f.launcherPath()) + `,"settings":{}}]}}`
			f.write("basic/scenes/a.json", registered)
			f.write("basic/scenes/b.json", `{"name":"B","modules":{}}`)

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(f.read("basic/scenes/a.json")).To(Equal(registered))
			tools := gjson.Get(f.read("basic/scenes/b.json"), "modules.scripts-tool").Array()
			Expect(tools).To(HaveLen(1))
			Expect(tools[0].Get("path").String()).To(Equal(f.launcherPath()))
			Expect(tools[0].Get("settings").Raw).To(Equal("{}"))
			Expect(report.ScenesChanged).To(Equal([]string{"b.json"}))
		})

		It("isolates a collection with a conflicting schema", func() {
			f.write("basic/scenes/bad.json", `{"modules":{"scripts-tool":{"path":"x"}}}`)
			f.write("basic/scenes/good.json", `{}`)

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).To(HaveOccurred())
			Expect(report.ScenesFailed).To(Equal([]string{"bad.json"}))
			Expect(report.ScenesChanged).To(Equal([]string{"good.json"}))
			Expect(f.eventTypes()).To(ContainElement(event.SceneFailed))
		})
	})

	Describe("launcher registration file", func() {
		It("records the interpreter, module and working directory", func() {
			_, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			reg, err := launcher.Read(f.scriptDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(reg.WorkingDirectory).To(Equal("/srv/omu"))
			Expect(reg.Args).To(Equal([]string{"C:/new/python.exe", "-m", "omuserver"}))
		})
	})

	Describe("idempotence", func() {
		It("writes nothing and stops nothing on the second run", func() {
			f.write("global.ini", oldIni)
			f.write("basic/scenes/a.json", `{}`)
			f.write("basic/scenes/b.json", `{"modules":{"scripts-tool":[]}}`)

			first, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Changed()).To(BeTrue())

			files := []string{
				filepath.Join(f.obsDir, "global.ini"),
				filepath.Join(f.scenesDir, "a.json"),
				filepath.Join(f.scenesDir, "b.json"),
				filepath.Join(f.scriptDir, launcher.FileName),
			}
			before := make([]os.FileInfo, len(files))
			for i, p := range files {
				before[i] = stat(p)
			}

			f.proc.running.Store(true)
			second, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Changed()).To(BeFalse())
			Expect(f.dialog.Asked()).To(BeZero())
			Expect(f.stopper.calls.Load()).To(BeZero())
			Expect(f.launches).To(BeEmpty())
			for i, p := range files {
				Expect(os.SameFile(before[i], stat(p))).To(BeTrue(), p+" was rewritten")
			}
		})
	})

	Describe("dry run", func() {
		It("prints a diff and touches neither files nor OBS", func() {
			f.write("global.ini", oldIni+"\n")
			f.write("basic/scenes/a.json", `{}`)
			f.proc.running.Store(true)

			var diff bytes.Buffer
			report, err := f.reconciler("C:/new", func(o *reconcile.Options) {
				o.DryRun = true
				o.DiffOut = &diff
			}).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(report.DryRun).To(BeTrue())
			Expect(report.InterpreterChanged).To(BeTrue())
			Expect(report.LauncherChanged).To(BeTrue())
			Expect(report.ScenesChanged).To(Equal([]string{"a.json"}))

			Expect(diff.String()).To(ContainSubstring("-Path32bit=C:/old"))
			Expect(diff.String()).To(ContainSubstring("+Path32bit=C:/new"))
			Expect(f.read("global.ini")).To(Equal(oldIni + "\n"))
			Expect(f.read("basic/scenes/a.json")).To(Equal(`{}`))
			Expect(filepath.Join(f.scriptDir, launcher.FileName)).NotTo(BeAnExistingFile())
			Expect(f.dialog.Asked()).To(BeZero())

			_, err = f.reports.Last(ctx)
			Expect(err).To(MatchError(reconcile.ErrNoReport))
		})
	})

	Describe("run lock", func() {
		It("refuses to start while another pass holds the lock", func() {
			Expect(os.MkdirAll(f.stateDir, 0755)).To(Succeed())
			lock := storage.NewFileLock(filepath.Join(f.stateDir, reconcile.LockFile))
			ok, err := lock.TryLock()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			defer lock.Unlock()

			_, err = f.reconciler("C:/new").Run(ctx)
			Expect(err).To(MatchError(reconcile.ErrBusy))
		})
	})

	Describe("scene sync", func() {
		It("waits for the run lock before touching scene collections", func() {
			f.write("basic/scenes/a.json", `{}`)
			Expect(os.MkdirAll(f.stateDir, 0755)).To(Succeed())
			lock := storage.NewFileLock(filepath.Join(f.stateDir, reconcile.LockFile))
			ok, err := lock.TryLock()
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			r := f.reconciler("C:/new")
			short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
			defer cancel()
			_, err = r.SyncScenes(short)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			Expect(f.read("basic/scenes/a.json")).To(Equal(`{}`))

			Expect(lock.Unlock()).To(Succeed())
			changed, err := r.SyncScenes(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(gjson.Get(f.read("basic/scenes/a.json"), "modules.scripts-tool.#").Int()).To(Equal(int64(1)))
		})
	})

	Describe("reports", func() {
		It("persists the last report and publishes progress", func() {
			f.write("global.ini", oldIni)

			report, err := f.reconciler("C:/new").Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			last, err := f.reports.Last(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(last.ID).To(Equal(report.ID))
			Expect(last.Desired).To(Equal("C:/new"))

			ids, err := f.reports.IDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{report.ID}))

			Expect(f.eventTypes()).To(ContainElements(
				event.ReconcileStarted,
				event.SettingUpdated,
				event.LauncherWritten,
				event.ReconcileFinished,
			))
		})

		It("reports resolver failures but still registers scenes", func() {
			f.write("basic/scenes/a.json", `{}`)
			r := reconcile.New(reconcile.Options{
				OBSDir:    f.obsDir,
				Companion: launcher.Companion{ScriptDir: f.scriptDir, Script: "omuapps_plugin.py", Module: "omuserver"},
				Publish:   f.publish,
			}, fixedResolver{err: errors.New("no python")}, nil)

			report, err := r.Run(ctx)
			Expect(err).To(MatchError(ContainSubstring("no python")))
			Expect(report.ScenesChanged).To(Equal([]string{"a.json"}))
			Expect(report.Errors).NotTo(BeEmpty())
		})
	})
})

var _ = Describe("ReconcileInterpreterSetting", func() {
	It("only reports a change when a value differs", func() {
		r := reconcile.New(reconcile.Options{Publish: func(event.Event) {}}, nil, nil)

		doc, err := inifile.Parse([]byte(oldIni))
		Expect(err).NotTo(HaveOccurred())
		Expect(r.ReconcileInterpreterSetting(doc, `C:\new`)).To(BeTrue())
		Expect(string(doc.Serialize())).To(Equal("[Python]\nPath32bit=C:/new\nPath64bit=C:/new"))
		Expect(r.ReconcileInterpreterSetting(doc, "C:/new")).To(BeFalse())
	})
})

var _ = Describe("UnifiedDiff", func() {
	It("is empty for equal texts", func() {
		Expect(reconcile.UnifiedDiff("global.ini", "a\n", "a\n")).To(BeEmpty())
	})

	It("marks removed and added lines", func() {
		diff := reconcile.UnifiedDiff("global.ini", "[Python]\nPath32bit=a\n", "[Python]\nPath32bit=b\n")
		Expect(diff).To(Equal("--- global.ini\n+++ global.ini\n [Python]\n-Path32bit=a\n+Path32bit=b\n"))
	})
})

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
