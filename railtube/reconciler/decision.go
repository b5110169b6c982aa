package reconciler

import (
	"fmt"

	"github.com/steelcutops/railtube/railtube/manifest"
)

// Action is what a run does with one manifest entry. It is recomputed on
// every run and never stored.
type Action int

const (
	Skip Action = iota
	Install
	Reinstall
)

func (a Action) String() string {
	switch a {
	case Skip:
		return "skip"
	case Install:
		return "install"
	case Reinstall:
		return "reinstall"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Mutating reports whether the action changes the host.
func (a Action) Mutating() bool {
	return a == Install || a == Reinstall
}

// Status is the installed state of one package as far as its backend can
// tell. Version is meaningful only when Versioned is set.
type Status struct {
	Installed bool
	Version   string
	Versioned bool
}

// Decide applies the decision table. Versions are compared verbatim.
func Decide(spec manifest.PackageSpec, st Status) Action {
	if !st.Installed {
		return Install
	}
	desired, pinned := spec.Version()
	if !pinned || !st.Versioned {
		return Skip
	}
	if desired == st.Version {
		return Skip
	}
	return Reinstall
}

// describe renders the decision the way it is shown before anything runs.
func describe(label string, spec manifest.PackageSpec, st Status, action Action) string {
	name := spec.Name()
	desired, pinned := spec.Version()
	switch {
	case action == Reinstall:
		return fmt.Sprintf("%s package '%s' installed with version '%s', but '%s' is requested. Reinstalling.", label, name, st.Version, desired)
	case action == Skip && pinned && st.Versioned:
		return fmt.Sprintf("%s package '%s' version '%s' already installed, skipping.", label, name, st.Version)
	case action == Skip:
		return fmt.Sprintf("%s package '%s' already installed, skipping.", label, name)
	case pinned:
		return fmt.Sprintf("%s package '%s' version '%s' not installed. Installing.", label, name, desired)
	default:
		return fmt.Sprintf("%s package '%s' not installed. Installing.", label, name)
	}
}
