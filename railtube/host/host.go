// Package host assembles the command runner, fetcher and backend adapters
// for the machine railtube runs on.
package host

import (
	"io"
	"os"
	"time"

	"github.com/steelcutops/railtube/logger"
	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/export"
	"github.com/steelcutops/railtube/railtube/fetch"
	pm "github.com/steelcutops/railtube/railtube/packagemanager"
	"github.com/steelcutops/railtube/railtube/prompt"
	"github.com/steelcutops/railtube/railtube/reconciler"
	"github.com/steelcutops/railtube/railtube/scriptrunner"
)

type Host struct {
	CommandManager cm.CommandManager
	Fetcher        *fetch.Fetcher
	Prompter       prompt.Prompter
	Out            io.Writer
	Log            logger.Logger

	System  *pm.SystemUpdater
	Apt     *pm.AptPackageManager
	Snap    *pm.SnapPackageManager
	Flatpak *pm.FlatpakPackageManager
	Cargo   *pm.CargoPackageManager
	Deb     *pm.DebPackageManager

	SudoPassword string
	// NoSudo overrides root detection when set.
	NoSudo      *bool
	HTTPTimeout time.Duration
}

// NewHost builds a Host for the local machine. Options are applied before
// any defaults, so an injected CommandManager or Fetcher is kept.
func NewHost(options ...HostOption) *Host {
	h := &Host{}
	for _, option := range options {
		option(h)
	}

	if h.Log == nil {
		h.Log = logger.Discard()
	}
	if h.Out == nil {
		h.Out = os.Stdout
	}
	if h.Prompter == nil {
		h.Prompter = prompt.NewTerminalPrompter(os.Stdin, h.Out)
	}
	if h.Fetcher == nil {
		h.Fetcher = fetch.New(h.HTTPTimeout)
	}
	if h.CommandManager == nil {
		unix := cm.NewUnixCommandManager(h.Log)
		unix.SudoPassword = h.SudoPassword
		if h.NoSudo != nil {
			unix.NoSudo = *h.NoSudo
		}
		h.CommandManager = unix
	}

	configureDebianHost(h)
	return h
}

func configureDebianHost(h *Host) {
	h.System = &pm.SystemUpdater{CommandManager: h.CommandManager}
	h.Apt = &pm.AptPackageManager{CommandManager: h.CommandManager}
	h.Snap = &pm.SnapPackageManager{CommandManager: h.CommandManager}
	h.Flatpak = &pm.FlatpakPackageManager{CommandManager: h.CommandManager}
	h.Cargo = &pm.CargoPackageManager{CommandManager: h.CommandManager}
	h.Deb = &pm.DebPackageManager{CommandManager: h.CommandManager, Downloader: h.Fetcher}
}

// Backends returns the list-style adapters in section order.
func (h *Host) Backends() []pm.PackageManager {
	return []pm.PackageManager{h.Apt, h.Snap, h.Flatpak, h.Cargo}
}

func (h *Host) Reconciler() *reconciler.Reconciler {
	return &reconciler.Reconciler{
		System:   h.System,
		Packages: h.Backends(),
		Deb:      h.Deb,
		Prompter: h.Prompter,
		Out:      h.Out,
		Log:      h.Log.With("command", "apply"),
	}
}

func (h *Host) Exporter() *export.Exporter {
	return &export.Exporter{Backends: h.Backends(), Out: h.Out, Log: h.Log.With("command", "export")}
}

func (h *Host) ScriptRunner() *scriptrunner.Runner {
	return &scriptrunner.Runner{
		CommandManager: h.CommandManager,
		Prompter:       h.Prompter,
		Out:            h.Out,
		Log:            h.Log.With("command", "run"),
	}
}
