package packagemanager

import (
	"context"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

// SystemUpdater refreshes the platform package index.
type SystemUpdater struct {
	CommandManager cm.CommandManager
}

func (su *SystemUpdater) Name() string {
	return manifest.SectionSystem
}

func (su *SystemUpdater) Update(ctx context.Context, dryRun bool) (cm.CommandResult, error) {
	return run(ctx, su.CommandManager, cm.CommandConfig{
		Command: "apt-get",
		Sudo:    true,
		Args:    []string{"update"},
	}, dryRun)
}
