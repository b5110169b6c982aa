// Package export captures what is installed on the host as a manifest.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/steelcutops/railtube/logger"
	"github.com/steelcutops/railtube/railtube/manifest"
	pm "github.com/steelcutops/railtube/railtube/packagemanager"
	"github.com/steelcutops/railtube/railtube/reconciler"
)

// Note is written at the top of every exported document.
const Note = "NOTE: system, deb and scripts sections are not exported: they describe actions and definitions, not installed state."

type Exporter struct {
	Backends []pm.PackageManager
	// Out receives warnings for backends that could not be listed.
	Out io.Writer
	Log logger.Logger
}

// Capture lists every backend and returns a manifest declaring exactly what
// was found. A backend that fails to list is left out with a warning.
func (e *Exporter) Capture(ctx context.Context) *manifest.Manifest {
	m := &manifest.Manifest{}
	for _, name := range manifest.PackageSections {
		backend := e.backend(name)
		if backend == nil {
			continue
		}
		state, err := backend.ListPackages(ctx)
		if err != nil {
			msg := fmt.Sprintf("Warning: Failed to list installed %s packages: %v. Section omitted.", reconciler.Label(name), err)
			if e.Out != nil {
				fmt.Fprintln(e.Out, msg)
			}
			if e.Log != nil {
				e.Log.Warn(msg, "section", name)
			}
			continue
		}
		m.SetPackages(name, &manifest.PackageSection{List: manifest.Specs(state.Names()...)})
	}
	return m
}

func (e *Exporter) backend(name string) pm.PackageManager {
	for _, b := range e.Backends {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// Write captures the host and encodes it to w with the explanatory note.
func (e *Exporter) Write(ctx context.Context, w io.Writer) (*manifest.Manifest, error) {
	m := e.Capture(ctx)
	if err := manifest.Encode(w, m, Note); err != nil {
		return m, err
	}
	return m, nil
}
