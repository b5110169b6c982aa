package packagemanager

import (
	"context"
	"fmt"
	"strings"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

type CargoPackageManager struct {
	CommandManager cm.CommandManager
}

func (cpm *CargoPackageManager) Name() string {
	return manifest.SectionCargo
}

func (cpm *CargoPackageManager) Versioned() bool {
	return true
}

// ListPackages parses `cargo install --list`, whose crate lines look like
// "ripgrep v14.1.0:" followed by indented binary names.
func (cpm *CargoPackageManager) ListPackages(ctx context.Context) (InstalledState, error) {
	output, err := cpm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "cargo",
		Args:    []string{"install", "--list"},
	})
	if err != nil {
		return InstalledState{}, fmt.Errorf("failed to list installed Cargo packages: %w", err)
	}
	return NewVersionedState(parseCargoList(output.STDOUT)), nil
}

func parseCargoList(out string) map[string]string {
	versions := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSuffix(parts[0], ":")
		version := strings.TrimSuffix(strings.TrimPrefix(parts[1], "v"), ":")
		versions[name] = version
	}
	return versions
}

func (cpm *CargoPackageManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	state, err := cpm.ListPackages(ctx)
	if err != nil {
		return false, err
	}
	return state.Has(name), nil
}

func (cpm *CargoPackageManager) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	state, err := cpm.ListPackages(ctx)
	if err != nil {
		return "", false, err
	}
	return state.Version(name)
}

// AddPackage always forces so that a version change replaces the old build.
func (cpm *CargoPackageManager) AddPackage(ctx context.Context, spec manifest.PackageSpec, dryRun bool) (cm.CommandResult, error) {
	args := []string{"install", "--locked", "--force", spec.Name()}
	if version, ok := spec.Version(); ok {
		args = append(args, "--version", version)
	}
	return run(ctx, cpm.CommandManager, cm.CommandConfig{
		Command: "cargo",
		Args:    append(args, spec.Flags()...),
	}, dryRun)
}
