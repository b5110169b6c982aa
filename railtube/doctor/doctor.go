// Package doctor reports drift between a manifest and the host without
// changing anything.
package doctor

import (
	"context"
	"fmt"
	"io"
	"sort"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/steelcutops/railtube/railtube/manifest"
	pm "github.com/steelcutops/railtube/railtube/packagemanager"
	"github.com/steelcutops/railtube/railtube/reconciler"
)

// BackendReport is the drift of one section. Comparison is by name only;
// version pins in the manifest are ignored here.
type BackendReport struct {
	Section string
	// Missing are declared but not installed.
	Missing []string
	// Extra are installed but not declared.
	Extra []string
	// Err is set when the backend could not be listed.
	Err error
}

func (b BackendReport) Clean() bool {
	return b.Err == nil && len(b.Missing) == 0 && len(b.Extra) == 0
}

type Report struct {
	Backends []BackendReport
}

// Clean reports whether no backend shows drift or failed to list.
func (r Report) Clean() bool {
	for _, b := range r.Backends {
		if !b.Clean() {
			return false
		}
	}
	return true
}

// Err aggregates the listing failures of every backend, or returns nil.
func (r Report) Err() error {
	var result *multierror.Error
	for _, b := range r.Backends {
		if b.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", b.Section, b.Err))
		}
	}
	return result.ErrorOrNil()
}

func (r Report) Backend(section string) (BackendReport, bool) {
	for _, b := range r.Backends {
		if b.Section == section {
			return b, true
		}
	}
	return BackendReport{}, false
}

// Check compares every package section present in m against its backend.
// A listing failure is recorded on that backend and the others are still
// checked.
func Check(ctx context.Context, m *manifest.Manifest, backends []pm.PackageManager) Report {
	var report Report
	for _, name := range manifest.PackageSections {
		section := m.Packages(name)
		if section == nil {
			continue
		}
		backend := find(backends, name)
		if backend == nil {
			report.Backends = append(report.Backends, BackendReport{Section: name, Err: fmt.Errorf("no backend for section [%s]", name)})
			continue
		}

		state, err := backend.ListPackages(ctx)
		if err != nil {
			report.Backends = append(report.Backends, BackendReport{Section: name, Err: err})
			continue
		}

		declared := make(map[string]struct{}, len(section.List))
		for _, spec := range section.List {
			declared[spec.Name()] = struct{}{}
		}
		installed := make(map[string]struct{}, state.Len())
		for _, n := range state.Names() {
			installed[n] = struct{}{}
		}
		report.Backends = append(report.Backends, BackendReport{
			Section: name,
			Missing: difference(declared, installed),
			Extra:   difference(installed, declared),
		})
	}
	return report
}

func find(backends []pm.PackageManager, name string) pm.PackageManager {
	for _, b := range backends {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// difference returns a \ b, sorted.
func difference(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (r Report) Print(w io.Writer, source string) {
	fmt.Fprintf(w, "Running railtube doctor for: %s\n", source)
	for _, b := range r.Backends {
		label := reconciler.Label(b.Section)
		if b.Err != nil {
			fmt.Fprintf(w, "\nWarning: Failed to list installed %s packages: %v\n", label, b.Err)
			continue
		}
		if len(b.Missing) > 0 {
			fmt.Fprintf(w, "\n%s packages listed in TOML but not installed:\n", label)
			for _, name := range b.Missing {
				fmt.Fprintf(w, "- %s\n", name)
			}
		}
		if len(b.Extra) > 0 {
			fmt.Fprintf(w, "\n%s packages installed but not listed in TOML:\n", label)
			for _, name := range b.Extra {
				fmt.Fprintf(w, "- %s\n", name)
			}
		}
	}
	if r.Clean() {
		fmt.Fprintln(w, "\nNo drift detected.")
	}
}
