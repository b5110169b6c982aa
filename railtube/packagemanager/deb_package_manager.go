package packagemanager

import (
	"context"
	"net/url"
	"path"

	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/filemanager"
	"github.com/steelcutops/railtube/railtube/manifest"
)

const defaultDebName = "package.deb"

// Downloader saves a remote file to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dst string) error
}

// DebPackageManager installs archives by URL. There is no pre-check: dpkg
// decides whether anything changes.
type DebPackageManager struct {
	CommandManager cm.CommandManager
	Downloader     Downloader
}

func (dpm *DebPackageManager) Name() string {
	return manifest.SectionDeb
}

// FileName is the local name an archive is saved under.
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultDebName
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return defaultDebName
	}
	return name
}

// Install downloads rawURL into dir, installs it and repairs missing
// dependencies. Under dryRun nothing is downloaded or executed.
func (dpm *DebPackageManager) Install(ctx context.Context, rawURL string, dir *filemanager.ScratchDir, dryRun bool) ([]cm.CommandResult, error) {
	dst := dir.Join(FileName(rawURL))
	if !dryRun {
		if err := dpm.Downloader.Download(ctx, rawURL, dst); err != nil {
			return nil, err
		}
	}

	steps := []cm.CommandConfig{
		{Command: "dpkg", Sudo: true, Args: []string{"-i", dst}},
		{Command: "apt-get", Sudo: true, Env: []string{"DEBIAN_FRONTEND=noninteractive"}, Args: []string{"--fix-broken", "install", "-y"}},
	}
	var results []cm.CommandResult
	for _, step := range steps {
		result, err := run(ctx, dpm.CommandManager, step, dryRun)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
