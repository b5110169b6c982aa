package packagemanager

import (
	"context"
	"errors"
	"sort"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

// ErrVersionUnsupported is returned by InstalledVersion on backends that can
// only report presence. It is distinct from "not installed".
var ErrVersionUnsupported = errors.New("backend does not report installed versions")

// PackageManager is a list-style backend: it can report what is installed
// and install one manifest entry at a time.
type PackageManager interface {
	// Name is the manifest section this backend serves.
	Name() string
	// Versioned reports whether InstalledVersion is supported.
	Versioned() bool
	ListPackages(ctx context.Context) (InstalledState, error)
	IsInstalled(ctx context.Context, name string) (bool, error)
	InstalledVersion(ctx context.Context, name string) (string, bool, error)
	// AddPackage installs spec. With dryRun the command is described in the
	// result but not executed.
	AddPackage(ctx context.Context, spec manifest.PackageSpec, dryRun bool) (cm.CommandResult, error)
}

// InstalledState is a backend's view of what is present. Presence-only
// backends carry names without versions.
type InstalledState struct {
	versioned bool
	packages  map[string]string
}

func NewVersionedState(versions map[string]string) InstalledState {
	packages := make(map[string]string, len(versions))
	for name, version := range versions {
		packages[name] = version
	}
	return InstalledState{versioned: true, packages: packages}
}

func NewPresenceState(names []string) InstalledState {
	packages := make(map[string]string, len(names))
	for _, name := range names {
		packages[name] = ""
	}
	return InstalledState{packages: packages}
}

func (s InstalledState) Versioned() bool {
	return s.versioned
}

func (s InstalledState) Has(name string) bool {
	_, ok := s.packages[name]
	return ok
}

// Version returns the installed version of name. ok is false when name is
// not installed.
func (s InstalledState) Version(name string) (version string, ok bool, err error) {
	if !s.versioned {
		return "", false, ErrVersionUnsupported
	}
	version, ok = s.packages[name]
	return version, ok, nil
}

// Names returns the installed names, sorted.
func (s InstalledState) Names() []string {
	names := make([]string, 0, len(s.packages))
	for name := range s.packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s InstalledState) Len() int {
	return len(s.packages)
}

// run executes config unless dryRun, in which case only the command line is
// reported.
func run(ctx context.Context, commands cm.CommandManager, config cm.CommandConfig, dryRun bool) (cm.CommandResult, error) {
	if dryRun {
		return cm.CommandResult{Command: config.String()}, nil
	}
	return commands.Run(ctx, config)
}

// probe runs a presence check. A nonzero exit means "absent"; only a tool
// that could not be started is an error.
func probe(ctx context.Context, commands cm.CommandManager, config cm.CommandConfig) (bool, error) {
	_, err := commands.Run(ctx, config)
	if err == nil {
		return true, nil
	}
	var cmdErr *cm.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return false, nil
	}
	return false, err
}
