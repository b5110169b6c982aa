package packagemanager

import (
	"context"
	"fmt"
	"strings"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

const dpkgQueryFormat = "-f=${Package}\\t${Version}\\t${db:Status-Status}\\n"

type AptPackageManager struct {
	CommandManager cm.CommandManager
}

func (apm *AptPackageManager) Name() string {
	return manifest.SectionApt
}

func (apm *AptPackageManager) Versioned() bool {
	return true
}

// ListPackages asks dpkg for every package and version in one call.
// Packages left only as config files are not reported.
func (apm *AptPackageManager) ListPackages(ctx context.Context) (InstalledState, error) {
	output, err := apm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "dpkg-query",
		Args:    []string{"-W", dpkgQueryFormat},
	})
	if err != nil {
		return InstalledState{}, fmt.Errorf("failed to list installed APT packages: %w", err)
	}
	return NewVersionedState(parseDpkgQuery(output.STDOUT)), nil
}

func parseDpkgQuery(out string) map[string]string {
	versions := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		if len(parts) >= 3 && parts[2] != "" && parts[2] != "installed" {
			continue
		}
		versions[parts[0]] = parts[1]
	}
	return versions
}

func (apm *AptPackageManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	state, err := apm.ListPackages(ctx)
	if err != nil {
		return false, err
	}
	return state.Has(name), nil
}

func (apm *AptPackageManager) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	state, err := apm.ListPackages(ctx)
	if err != nil {
		return "", false, err
	}
	return state.Version(name)
}

// AddPackage installs the entry as written, so `name=version` pins are
// passed to apt untouched.
func (apm *AptPackageManager) AddPackage(ctx context.Context, spec manifest.PackageSpec, dryRun bool) (cm.CommandResult, error) {
	return run(ctx, apm.CommandManager, cm.CommandConfig{
		Command: "apt-get",
		Sudo:    true,
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Args:    []string{"install", "-y", spec.Ident()},
	}, dryRun)
}
