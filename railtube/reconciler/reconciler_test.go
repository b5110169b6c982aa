package reconciler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/fetch"
	"github.com/steelcutops/railtube/railtube/manifest"
	pm "github.com/steelcutops/railtube/railtube/packagemanager"
	"github.com/steelcutops/railtube/railtube/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const dpkgQueryLine = "dpkg-query -W -f=${Package}\\t${Version}\\t${db:Status-Status}\\n"

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) Confirm(question string) (bool, error) {
	args := m.Called(question)
	return args.Bool(0), args.Error(1)
}

// recordingDownloader writes a stub archive and remembers where it put it.
type recordingDownloader struct {
	mu   sync.Mutex
	dsts []string
	err  error
}

func (d *recordingDownloader) Download(ctx context.Context, url, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dsts = append(d.dsts, dst)
	if d.err != nil {
		return d.err
	}
	return os.WriteFile(dst, []byte("deb"), 0644)
}

// hookedCommands runs a hook before delegating a matching command line to the
// recording mock.
type hookedCommands struct {
	*cm.MockCommandManager
	hooks map[string]func(ctx context.Context) error
}

func (h *hookedCommands) Run(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	if hook, ok := h.hooks[config.String()]; ok {
		if err := hook(ctx); err != nil {
			return cm.CommandResult{Command: config.String()}, err
		}
	}
	return h.MockCommandManager.Run(ctx, config)
}

func newTestReconciler(commands *cm.MockCommandManager, p prompt.Prompter, dl pm.Downloader) (*Reconciler, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Reconciler{
		System: &pm.SystemUpdater{CommandManager: commands},
		Packages: []pm.PackageManager{
			&pm.AptPackageManager{CommandManager: commands},
			&pm.SnapPackageManager{CommandManager: commands},
			&pm.FlatpakPackageManager{CommandManager: commands},
			&pm.CargoPackageManager{CommandManager: commands},
		},
		Deb:      &pm.DebPackageManager{CommandManager: commands, Downloader: dl},
		Prompter: p,
		Out:      out,
	}, out
}

func fullManifest() *manifest.Manifest {
	return &manifest.Manifest{
		System:  &manifest.SystemSection{Update: true},
		Apt:     &manifest.PackageSection{List: manifest.Specs("curl", "git=2.0")},
		Snap:    &manifest.PackageSection{List: manifest.Specs("code --classic", "spotify")},
		Flatpak: &manifest.PackageSection{List: manifest.Specs("org.gimp.GIMP")},
		Cargo:   &manifest.PackageSection{List: manifest.Specs("ripgrep=14.1.0", "bat")},
		Deb:     &manifest.DebSection{URLs: []string{"https://example.com/tool.deb"}},
	}
}

// queryOnly reports whether line is one of the read-only listing or probe
// commands.
func queryOnly(line string) bool {
	for _, prefix := range []string{"dpkg-query ", "snap list", "flatpak info ", "flatpak list ", "cargo install --list"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name string
		spec string
		st   Status
		want Action
	}{
		{"unpinned, absent", "git", Status{Versioned: true}, Install},
		{"unpinned, present", "git", Status{Installed: true, Version: "1.0", Versioned: true}, Skip},
		{"pinned, absent", "git=2.0", Status{Versioned: true}, Install},
		{"pinned, matching", "git=2.0", Status{Installed: true, Version: "2.0", Versioned: true}, Skip},
		{"pinned, differing", "git=2.0", Status{Installed: true, Version: "1.0", Versioned: true}, Reinstall},
		{"pinned, presence-only backend", "code=2.0", Status{Installed: true}, Skip},
		{"presence-only, absent", "code --classic", Status{}, Install},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(manifest.ParseSpec(tt.spec), tt.st))
		})
	}
}

func TestDescribe(t *testing.T) {
	spec := manifest.ParseSpec("git=2.0")
	assert.Equal(t, "APT package 'git' installed with version '1.0', but '2.0' is requested. Reinstalling.",
		describe("APT", spec, Status{Installed: true, Version: "1.0", Versioned: true}, Reinstall))
	assert.Equal(t, "APT package 'git' version '2.0' not installed. Installing.",
		describe("APT", spec, Status{Versioned: true}, Install))
	assert.Equal(t, "Snap package 'code' already installed, skipping.",
		describe("Snap", manifest.ParseSpec("code --classic"), Status{Installed: true}, Skip))
}

func TestModeFromFlags(t *testing.T) {
	assert.Equal(t, Interactive, ModeFromFlags(false, false))
	assert.Equal(t, Unattended, ModeFromFlags(false, true))
	assert.Equal(t, DryRun, ModeFromFlags(true, true))
	assert.Equal(t, "dry-run", DryRun.String())
}

func TestStrategy(t *testing.T) {
	assert.Equal(t, Sequential, StrategyFor(manifest.SectionApt))
	assert.Equal(t, Sequential, StrategyFor(manifest.SectionDeb))
	assert.Equal(t, ParallelWhenUnattended, StrategyFor(manifest.SectionCargo))

	assert.True(t, ParallelWhenUnattended.Parallel(Unattended))
	assert.False(t, ParallelWhenUnattended.Parallel(Interactive))
	assert.False(t, ParallelWhenUnattended.Parallel(DryRun))
	assert.False(t, Sequential.Parallel(Unattended))

	assert.True(t, Sequential.FailFast(Interactive))
	assert.False(t, ParallelWhenUnattended.FailFast(Interactive))
	assert.True(t, ParallelWhenUnattended.FailFast(Unattended))
}

func TestParseSelector(t *testing.T) {
	all, err := ParseSelector(nil)
	require.NoError(t, err)
	assert.True(t, all.Selected(manifest.SectionDeb))

	only, err := ParseSelector([]string{"APT", " snap "})
	require.NoError(t, err)
	assert.True(t, only.Selected(manifest.SectionApt))
	assert.True(t, only.Selected(manifest.SectionSnap))
	assert.False(t, only.Selected(manifest.SectionCargo))

	_, err = ParseSelector([]string{"pip"})
	assert.Error(t, err)
}

func TestApplyDryRunIsPure(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Outputs[dpkgQueryLine] = "git\t1.0\tinstalled\n"
	commands.Outputs["cargo install --list"] = "ripgrep v13.0.0:\n    rg\n"
	commands.Failures["snap list spotify"] = 1
	commands.Failures["flatpak info org.gimp.GIMP"] = 1
	dl := &recordingDownloader{}
	r, out := newTestReconciler(commands, &mockPrompter{}, dl)

	summary, err := r.Apply(context.Background(), fullManifest(), Options{Mode: DryRun})
	require.NoError(t, err)
	assert.True(t, summary.OK())

	for _, line := range commands.Lines() {
		assert.True(t, queryOnly(line), "mutating command issued in dry run: %s", line)
	}
	assert.Empty(t, dl.dsts)

	text := out.String()
	assert.Contains(t, text, "Would run: sudo apt-get update")
	assert.Contains(t, text, "Would run: sudo apt-get install -y curl")
	assert.Contains(t, text, "Would run: sudo apt-get install -y git=2.0")
	assert.Contains(t, text, "Would run: sudo snap install spotify")
	assert.Contains(t, text, "Would run: cargo install --locked --force ripgrep --version 14.1.0")
	assert.Contains(t, text, "Would run: sudo apt-get --fix-broken install -y")
	assert.NotContains(t, text, "sudo snap install code")

	apt := summary.Section(manifest.SectionApt)
	assert.Equal(t, 2, apt.Planned)
	assert.Zero(t, apt.Installed)
	assert.Zero(t, apt.Reinstalled)
	assert.Equal(t, 1, summary.Section(manifest.SectionSnap).Skipped)
	assert.Equal(t, 1, summary.Section(manifest.SectionSnap).Planned)
	assert.Equal(t, 1, summary.Section(manifest.SectionDeb).Planned)
	assert.Equal(t, 1, summary.Section(manifest.SectionSystem).Planned)

	var printed bytes.Buffer
	summary.Print(&printed)
	assert.Contains(t, printed.String(), "Summary (dry-run):")
	assert.Contains(t, printed.String(), "would-change=2")
	assert.NotContains(t, printed.String(), "installed=")
}

func TestApplyDeclineIsNotFailure(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["snap list spotify"] = 1
	commands.Failures["snap list code"] = 1
	r, out := newTestReconciler(commands, prompt.Always(false), &recordingDownloader{})

	summary, err := r.Apply(context.Background(), fullManifest(), Options{Mode: Interactive})
	require.NoError(t, err)
	assert.True(t, summary.OK())

	for _, line := range commands.Lines() {
		assert.True(t, queryOnly(line), "mutating command issued after decline: %s", line)
	}
	assert.Equal(t, 2, summary.Section(manifest.SectionSnap).Declined)
	assert.Contains(t, out.String(), "Installation aborted by user.")
	assert.Contains(t, out.String(), "System update aborted by user.")
}

func TestApplyInteractiveAsksPerItem(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["flatpak info org.gimp.GIMP"] = 1
	p := &mockPrompter{}
	p.On("Confirm", "Do you want to install Flatpak package 'org.gimp.GIMP'?").Return(true, nil).Once()
	r, _ := newTestReconciler(commands, p, &recordingDownloader{})

	m := &manifest.Manifest{Flatpak: &manifest.PackageSection{List: manifest.Specs("org.gimp.GIMP", "org.videolan.VLC")}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Interactive})
	require.NoError(t, err)
	p.AssertExpectations(t)

	report := summary.Section(manifest.SectionFlatpak)
	assert.Equal(t, 1, report.Installed)
	assert.Equal(t, 1, report.Skipped)
	assert.Contains(t, commands.Lines(), "flatpak install -y org.gimp.GIMP")
}

func TestApplySelectorIsolation(t *testing.T) {
	commands := cm.NewMockCommandManager()
	r, _ := newTestReconciler(commands, prompt.Always(true), &recordingDownloader{})
	only, err := ParseSelector([]string{"cargo"})
	require.NoError(t, err)

	m := &manifest.Manifest{
		Apt:   &manifest.PackageSection{List: manifest.Specs("curl")},
		Cargo: &manifest.PackageSection{List: manifest.Specs("bat")},
	}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended, Only: only})
	require.NoError(t, err)

	assert.Nil(t, summary.Section(manifest.SectionApt))
	for _, line := range commands.Lines() {
		assert.False(t, strings.Contains(line, "apt") || strings.HasPrefix(line, "dpkg"), "unselected section touched: %s", line)
	}
	assert.Equal(t, []string{"cargo install --list", "cargo install --locked --force bat"}, commands.Lines())
}

func TestApplySequentialSectionFailsFast(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["sudo apt-get install -y b"] = 100
	r, _ := newTestReconciler(commands, prompt.Always(true), &recordingDownloader{})

	m := &manifest.Manifest{
		Apt:   &manifest.PackageSection{List: manifest.Specs("a", "b", "c")},
		Cargo: &manifest.PackageSection{List: manifest.Specs("bat")},
	}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.Error(t, err)
	var cmdErr *cm.CommandError
	assert.True(t, errors.As(err, &cmdErr))
	assert.False(t, summary.OK())

	lines := commands.Lines()
	assert.Contains(t, lines, "sudo apt-get install -y a")
	assert.NotContains(t, lines, "sudo apt-get install -y c")
	assert.Contains(t, lines, "cargo install --locked --force bat")

	report := summary.Section(manifest.SectionApt)
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Installed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Withheld)
}

func TestApplySystemFailureStillRunsPackages(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["sudo apt-get update"] = 1
	r, _ := newTestReconciler(commands, prompt.Always(true), &recordingDownloader{})

	m := &manifest.Manifest{
		System: &manifest.SystemSection{Update: true},
		Apt:    &manifest.PackageSection{List: manifest.Specs("curl")},
	}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.Error(t, err)
	assert.True(t, summary.Section(manifest.SectionSystem).Aborted)
	assert.Contains(t, commands.Lines(), "sudo apt-get install -y curl")
}

func TestApplyParallelBatchFailure(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["cargo install --locked --force broken"] = 101
	r, _ := newTestReconciler(commands, &mockPrompter{}, &recordingDownloader{})

	m := &manifest.Manifest{Cargo: &manifest.PackageSection{List: manifest.Specs("bat", "broken", "fd-find", "ripgrep")}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	report := summary.Section(manifest.SectionCargo)
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, report.Installed+report.Failed+report.Withheld)
}

func TestApplyParallelBatchWithholdsAfterFailure(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["cargo install --locked --force broken"] = 101
	r, _ := newTestReconciler(commands, &mockPrompter{}, &recordingDownloader{})
	r.workers = 1

	m := &manifest.Manifest{Cargo: &manifest.PackageSection{List: manifest.Specs("bat", "broken", "fd-find", "ripgrep")}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.Error(t, err)

	lines := commands.Lines()
	assert.Contains(t, lines, "cargo install --locked --force bat")
	assert.Contains(t, lines, "cargo install --locked --force broken")
	assert.NotContains(t, lines, "cargo install --locked --force fd-find")
	assert.NotContains(t, lines, "cargo install --locked --force ripgrep")

	report := summary.Section(manifest.SectionCargo)
	assert.True(t, report.Aborted)
	assert.Equal(t, 1, report.Installed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Withheld)
}

func TestApplyParallelRunningInstallFinishesAfterSiblingFails(t *testing.T) {
	recorder := cm.NewMockCommandManager()
	recorder.Failures["cargo install --locked --force broken"] = 101
	slowStarted := make(chan struct{})
	brokenCalled := make(chan struct{})
	commands := &hookedCommands{MockCommandManager: recorder, hooks: map[string]func(ctx context.Context) error{
		"cargo install --locked --force slow": func(ctx context.Context) error {
			close(slowStarted)
			<-brokenCalled
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
				return nil
			}
		},
		"cargo install --locked --force broken": func(ctx context.Context) error {
			<-slowStarted
			close(brokenCalled)
			return nil
		},
	}}

	out := &bytes.Buffer{}
	r := &Reconciler{
		Packages: []pm.PackageManager{&pm.CargoPackageManager{CommandManager: commands}},
		Prompter: &mockPrompter{},
		Out:      out,
		workers:  2,
	}

	m := &manifest.Manifest{Cargo: &manifest.PackageSection{List: manifest.Specs("slow", "broken")}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "context canceled")

	report := summary.Section(manifest.SectionCargo)
	assert.Equal(t, 1, report.Installed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Withheld)
	assert.Contains(t, recorder.Lines(), "cargo install --locked --force slow")
}

func TestApplyParallelInstallsEverything(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["snap list a"] = 1
	commands.Failures["snap list b"] = 1
	commands.Failures["snap list c"] = 1
	r, _ := newTestReconciler(commands, &mockPrompter{}, &recordingDownloader{})

	m := &manifest.Manifest{Snap: &manifest.PackageSection{List: manifest.Specs("a", "b --classic", "c")}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Section(manifest.SectionSnap).Installed)
	assert.ElementsMatch(t, []string{
		"snap list a", "snap list b", "snap list c",
		"sudo snap install a", "sudo snap install b --classic", "sudo snap install c",
	}, commands.Lines())
}

func TestApplyInteractiveParallelSectionContinuesAfterFailure(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures["snap list a"] = 1
	commands.Failures["snap list b"] = 1
	commands.Failures["snap list c"] = 1
	commands.Failures["sudo snap install b"] = 1
	r, _ := newTestReconciler(commands, prompt.Always(true), &recordingDownloader{})

	m := &manifest.Manifest{Snap: &manifest.PackageSection{List: manifest.Specs("a", "b", "c")}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Interactive})
	require.Error(t, err)

	report := summary.Section(manifest.SectionSnap)
	assert.False(t, report.Aborted)
	assert.Equal(t, 2, report.Installed)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, commands.Lines(), "sudo snap install c")
}

func TestApplyQueryFailureDegradesToInstall(t *testing.T) {
	commands := cm.NewMockCommandManager()
	commands.Failures[dpkgQueryLine] = 2
	commands.Failures["snap list code"] = -1
	r, out := newTestReconciler(commands, prompt.Always(true), &recordingDownloader{})

	m := &manifest.Manifest{
		Apt:  &manifest.PackageSection{List: manifest.Specs("curl")},
		Snap: &manifest.PackageSection{List: manifest.Specs("code")},
	}
	_, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.NoError(t, err)
	assert.Contains(t, commands.Lines(), "sudo apt-get install -y curl")
	assert.Contains(t, commands.Lines(), "sudo snap install code")
	assert.Contains(t, out.String(), "Warning: Error fetching APT packages")
}

func TestApplyDebRemovesScratchDir(t *testing.T) {
	commands := cm.NewMockCommandManager()
	dl := &recordingDownloader{}
	r, _ := newTestReconciler(commands, prompt.Always(true), dl)

	m := &manifest.Manifest{Deb: &manifest.DebSection{URLs: []string{
		"https://example.com/one.deb",
		"https://example.com/two.deb",
	}}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.NoError(t, err)
	require.Len(t, dl.dsts, 2)
	assert.Equal(t, 2, summary.Section(manifest.SectionDeb).Installed)

	_, statErr := os.Stat(filepath.Dir(dl.dsts[0]))
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyDebFailureStopsAndCleansUp(t *testing.T) {
	commands := cm.NewMockCommandManager()
	dl := &recordingDownloader{err: &fetch.FetchError{URL: "https://example.com/one.deb", Status: 404}}
	r, _ := newTestReconciler(commands, prompt.Always(true), dl)

	m := &manifest.Manifest{Deb: &manifest.DebSection{URLs: []string{
		"https://example.com/one.deb",
		"https://example.com/two.deb",
	}}}
	summary, err := r.Apply(context.Background(), m, Options{Mode: Unattended})
	require.Error(t, err)
	var fetchErr *fetch.FetchError
	assert.True(t, errors.As(err, &fetchErr))
	require.Len(t, dl.dsts, 1)
	assert.Empty(t, commands.Calls)

	report := summary.Section(manifest.SectionDeb)
	assert.Equal(t, 1, report.Withheld)
	_, statErr := os.Stat(filepath.Dir(dl.dsts[0]))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSummaryPrint(t *testing.T) {
	s := &Summary{Mode: Unattended}
	r := s.section(manifest.SectionApt)
	r.record(Install, nil, false)
	r.record(Skip, nil, false)
	r.Aborted = true

	var buf bytes.Buffer
	s.Print(&buf)
	assert.Contains(t, buf.String(), "Summary (unattended):")
	assert.Contains(t, buf.String(), "skipped=1 installed=1")
	assert.Contains(t, buf.String(), "(aborted)")
	assert.False(t, s.OK())
}
