package packagemanager

import (
	"context"
	"fmt"
	"strings"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

type FlatpakPackageManager struct {
	CommandManager cm.CommandManager
}

func (fpm *FlatpakPackageManager) Name() string {
	return manifest.SectionFlatpak
}

func (fpm *FlatpakPackageManager) Versioned() bool {
	return false
}

func (fpm *FlatpakPackageManager) ListPackages(ctx context.Context) (InstalledState, error) {
	output, err := fpm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "flatpak",
		Args:    []string{"list", "--app", "--columns=application"},
	})
	if err != nil {
		return InstalledState{}, fmt.Errorf("failed to list installed Flatpak packages: %w", err)
	}

	var names []string
	for _, line := range strings.Split(output.STDOUT, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return NewPresenceState(names), nil
}

func (fpm *FlatpakPackageManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	return probe(ctx, fpm.CommandManager, cm.CommandConfig{
		Command: "flatpak",
		Args:    []string{"info", name},
	})
}

func (fpm *FlatpakPackageManager) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	return "", false, ErrVersionUnsupported
}

func (fpm *FlatpakPackageManager) AddPackage(ctx context.Context, spec manifest.PackageSpec, dryRun bool) (cm.CommandResult, error) {
	return run(ctx, fpm.CommandManager, cm.CommandConfig{
		Command: "flatpak",
		Args:    append([]string{"install", "-y", spec.Ident()}, spec.Flags()...),
	}, dryRun)
}
