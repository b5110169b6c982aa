package packagemanager

import (
	"context"
	"fmt"
	"strings"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

// SnapPackageManager only knows presence: snapd revisions and channels do not
// map onto the manifest's version pins.
type SnapPackageManager struct {
	CommandManager cm.CommandManager
}

func (spm *SnapPackageManager) Name() string {
	return manifest.SectionSnap
}

func (spm *SnapPackageManager) Versioned() bool {
	return false
}

func (spm *SnapPackageManager) ListPackages(ctx context.Context) (InstalledState, error) {
	output, err := spm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "snap",
		Args:    []string{"list"},
	})
	if err != nil {
		return InstalledState{}, fmt.Errorf("failed to list installed Snap packages: %w", err)
	}

	lines := strings.Split(output.STDOUT, "\n")
	var names []string
	for _, line := range lines[1:] { // Skipping the header line
		parts := strings.Fields(line)
		if len(parts) > 0 {
			names = append(names, parts[0])
		}
	}
	return NewPresenceState(names), nil
}

func (spm *SnapPackageManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	return probe(ctx, spm.CommandManager, cm.CommandConfig{
		Command: "snap",
		Args:    []string{"list", name},
	})
}

func (spm *SnapPackageManager) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	return "", false, ErrVersionUnsupported
}

// AddPackage passes trailing flags such as --classic as separate arguments.
func (spm *SnapPackageManager) AddPackage(ctx context.Context, spec manifest.PackageSpec, dryRun bool) (cm.CommandResult, error) {
	return run(ctx, spm.CommandManager, cm.CommandConfig{
		Command: "snap",
		Sudo:    true,
		Args:    append([]string{"install", spec.Ident()}, spec.Flags()...),
	}, dryRun)
}
