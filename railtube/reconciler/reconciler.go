// Package reconciler applies a manifest to the local host: it works out what
// each backend already has, decides per entry whether to skip, install or
// reinstall, and carries that out under the active interaction mode.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/steelcutops/railtube/logger"
	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/fetch"
	"github.com/steelcutops/railtube/railtube/filemanager"
	"github.com/steelcutops/railtube/railtube/manifest"
	pm "github.com/steelcutops/railtube/railtube/packagemanager"
	"github.com/steelcutops/railtube/railtube/prompt"
)

const scratchPrefix = "railtube-deb-"

// Options select how a run behaves.
type Options struct {
	Mode Mode
	Only Selector
}

type Reconciler struct {
	System   *pm.SystemUpdater
	Packages []pm.PackageManager
	Deb      *pm.DebPackageManager
	Prompter prompt.Prompter
	Out      io.Writer
	Log      logger.Logger

	// workers caps a parallel batch; zero means runtime.NumCPU().
	workers int
	outMu   sync.Mutex
}

// item is one planned mutating action.
type item struct {
	spec   manifest.PackageSpec
	action Action
}

// Apply reconciles every present, selected section of m. The summary is
// returned even when err is non-nil. Fetch and filesystem failures stop the
// run at once; a failed section otherwise only ends that section.
func (r *Reconciler) Apply(ctx context.Context, m *manifest.Manifest, opts Options) (*Summary, error) {
	summary := &Summary{Mode: opts.Mode}
	var result *multierror.Error

	fail := func(err error) bool {
		result = multierror.Append(result, err)
		return isFatal(err)
	}

	if m.System != nil && opts.Only.Selected(manifest.SectionSystem) {
		if err := r.applySystem(ctx, m.System, opts.Mode, summary); err != nil && fail(err) {
			return summary, result.ErrorOrNil()
		}
	}

	for _, name := range manifest.PackageSections {
		section := m.Packages(name)
		if section == nil || !opts.Only.Selected(name) {
			continue
		}
		backend := r.backend(name)
		if backend == nil {
			r.warn("Warning: no backend configured for section [%s], skipping.", name)
			continue
		}
		if err := r.applyPackages(ctx, backend, section, opts.Mode, summary.section(name)); err != nil && fail(err) {
			return summary, result.ErrorOrNil()
		}
	}

	if m.Deb != nil && opts.Only.Selected(manifest.SectionDeb) {
		if err := r.applyDeb(ctx, m.Deb, opts.Mode, summary.section(manifest.SectionDeb)); err != nil {
			fail(err)
		}
	}

	return summary, result.ErrorOrNil()
}

func (r *Reconciler) backend(name string) pm.PackageManager {
	for _, b := range r.Packages {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

func (r *Reconciler) applySystem(ctx context.Context, sys *manifest.SystemSection, mode Mode, summary *Summary) error {
	if !sys.Update || r.System == nil {
		return nil
	}
	report := summary.section(manifest.SectionSystem)
	preview, _ := r.System.Update(ctx, true)

	r.say("Updating system package index")
	switch mode {
	case DryRun:
		r.say("Would run: %s", preview.Command)
		report.plan()
		return nil
	case Interactive:
		ok, err := r.Prompter.Confirm(fmt.Sprintf("Do you want to run '%s'?", preview.Command))
		if err != nil {
			report.Aborted = true
			return err
		}
		if !ok {
			r.say("System update aborted by user.")
			report.record(Install, nil, true)
			return nil
		}
	}

	_, err := r.System.Update(ctx, false)
	report.record(Install, err, false)
	if err != nil {
		report.Aborted = true
		return fmt.Errorf("system update: %w", err)
	}
	return nil
}

// plan decides every entry of section. Query failures are not fatal: the
// entries are treated as not installed so the run still converges.
func (r *Reconciler) plan(ctx context.Context, backend pm.PackageManager, section *manifest.PackageSection, report *SectionReport) []item {
	label := Label(backend.Name())

	var state pm.InstalledState
	if backend.Versioned() {
		var err error
		state, err = backend.ListPackages(ctx)
		if err != nil {
			r.warn("Warning: Error fetching %s packages: %v. Proceeding with installation for all %s packages.", label, err, label)
			state = pm.NewVersionedState(nil)
		}
	}

	var items []item
	for _, spec := range section.List {
		var st Status
		if backend.Versioned() {
			version, ok, _ := state.Version(spec.Name())
			st = Status{Installed: ok, Version: version, Versioned: true}
		} else {
			installed, err := backend.IsInstalled(ctx, spec.Name())
			if err != nil {
				r.warn("Warning: Error checking %s package '%s': %v. Assuming it is not installed.", label, spec.Name(), err)
			}
			st = Status{Installed: installed}
		}

		action := Decide(spec, st)
		r.say("%s", describe(label, spec, st, action))
		if !action.Mutating() {
			report.record(Skip, nil, false)
			continue
		}
		items = append(items, item{spec: spec, action: action})
	}
	return items
}

func (r *Reconciler) applyPackages(ctx context.Context, backend pm.PackageManager, section *manifest.PackageSection, mode Mode, report *SectionReport) error {
	items := r.plan(ctx, backend, section, report)
	if len(items) == 0 {
		return nil
	}

	strategy := StrategyFor(backend.Name())
	if strategy.Parallel(mode) {
		return r.installParallel(ctx, backend, items, report)
	}
	return r.installSequential(ctx, backend, items, mode, strategy, report)
}

func (r *Reconciler) installSequential(ctx context.Context, backend pm.PackageManager, items []item, mode Mode, strategy Strategy, report *SectionReport) error {
	label := Label(backend.Name())
	var result *multierror.Error

	for i, it := range items {
		r.say("Installing %s package '%s'", label, it.spec)

		if mode == DryRun {
			preview, _ := backend.AddPackage(ctx, it.spec, true)
			r.say("Would run: %s", preview.Command)
			report.plan()
			continue
		}

		if mode == Interactive {
			ok, err := r.Prompter.Confirm(fmt.Sprintf("Do you want to install %s package '%s'?", label, it.spec))
			if err != nil {
				report.Aborted = true
				report.withhold(len(items) - i)
				return multierror.Append(result, err).ErrorOrNil()
			}
			if !ok {
				r.say("Installation aborted by user.")
				report.record(it.action, nil, true)
				continue
			}
		}

		_, err := backend.AddPackage(ctx, it.spec, false)
		report.record(it.action, err, false)
		if err == nil {
			continue
		}
		err = fmt.Errorf("%s package '%s': %w", label, it.spec, err)
		if strategy.FailFast(mode) {
			r.warn("Failed to install %s package '%s'; skipping the remaining %s packages.", label, it.spec, label)
			report.Aborted = true
			report.withhold(len(items) - i - 1)
			return multierror.Append(result, err).ErrorOrNil()
		}
		r.warn("Failed to install %s package '%s': %v", label, it.spec, err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// installParallel fans items out to a pool sized to the host. After the
// first failure nothing new is started; installs already running are left
// to finish.
func (r *Reconciler) installParallel(ctx context.Context, backend pm.PackageManager, items []item, report *SectionReport) error {
	label := Label(backend.Name())
	r.say("Will attempt to install the following %s packages: %v", label, specs(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.poolSize())

	var withheld int
	for i, it := range items {
		if gctx.Err() != nil {
			withheld = len(items) - i
			break
		}
		it := it
		g.Go(func() error {
			if gctx.Err() != nil {
				report.withhold(1)
				return nil
			}
			r.say("Installing %s package '%s'", label, it.spec)
			// ctx rather than gctx: a sibling's failure must not kill this install.
			_, err := backend.AddPackage(ctx, it.spec, false)
			report.record(it.action, err, false)
			if err != nil {
				r.warn("Failed to install %s package '%s': %v", label, it.spec, err)
				return fmt.Errorf("%s package '%s': %w", label, it.spec, err)
			}
			return nil
		})
	}
	err := g.Wait()
	report.withhold(withheld)
	if err != nil {
		report.Aborted = true
	}
	return err
}

// applyDeb downloads and installs every URL in order. The scratch
// directory lives exactly as long as this call.
func (r *Reconciler) applyDeb(ctx context.Context, deb *manifest.DebSection, mode Mode, report *SectionReport) (err error) {
	if r.Deb == nil {
		r.warn("Warning: no backend configured for section [deb], skipping.")
		return nil
	}
	dir, err := filemanager.NewScratchDir(scratchPrefix)
	if err != nil {
		report.Aborted = true
		return err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			r.warn("Warning: failed to remove %s: %v", dir.Path(), cerr)
			if err == nil {
				err = cerr
			}
		}
	}()

	for i, url := range deb.URLs {
		if mode == Interactive {
			ok, perr := r.Prompter.Confirm(fmt.Sprintf("Do you want to install deb package '%s'?", url))
			if perr != nil {
				report.Aborted = true
				report.withhold(len(deb.URLs) - i)
				return perr
			}
			if !ok {
				r.say("Installation aborted by user.")
				report.record(Install, nil, true)
				continue
			}
		}

		dst := dir.Join(pm.FileName(url))
		if mode == DryRun {
			r.say("Would download %s to %s", url, dst)
		} else {
			r.say("Downloading %s to %s", url, dst)
		}
		r.say("Installing %s...", dst)

		results, ierr := r.Deb.Install(ctx, url, dir, mode == DryRun)
		if mode == DryRun && ierr == nil {
			for _, res := range results {
				r.say("Would run: %s", res.Command)
			}
			report.plan()
			continue
		}
		report.record(Install, ierr, false)
		if ierr != nil {
			r.warn("Failed to install deb package '%s'; skipping the remaining deb packages.", url)
			report.Aborted = true
			report.withhold(len(deb.URLs) - i - 1)
			return fmt.Errorf("deb package '%s': %w", url, ierr)
		}
	}
	return nil
}

func (r *Reconciler) poolSize() int {
	if r.workers > 0 {
		return r.workers
	}
	return runtime.NumCPU()
}

func (r *Reconciler) say(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.outMu.Lock()
	fmt.Fprintln(r.Out, msg)
	r.outMu.Unlock()
	r.log().Info(msg)
}

func (r *Reconciler) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.outMu.Lock()
	fmt.Fprintln(r.Out, msg)
	r.outMu.Unlock()
	r.log().Warn(msg)
}

func (r *Reconciler) log() logger.Logger {
	if r.Log == nil {
		return logger.Discard()
	}
	return r.Log
}

func specs(items []item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.spec.String())
	}
	return out
}

// isFatal reports errors that end the whole run rather than one section.
func isFatal(err error) bool {
	var fetchErr *fetch.FetchError
	var ioErr *filemanager.IOError
	var cmdErr *cm.CommandError
	if errors.As(err, &cmdErr) {
		return false
	}
	return errors.As(err, &fetchErr) || errors.As(err, &ioErr)
}
