package host

import (
	"io"
	"time"

	"github.com/steelcutops/railtube/logger"
	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/fetch"
	"github.com/steelcutops/railtube/railtube/prompt"
)

type HostOption func(*Host)

// WithSudoPassword returns a HostOption that sets the sudo password for a Host.
func WithSudoPassword(password string) HostOption {
	return func(host *Host) {
		host.SudoPassword = password
	}
}

// WithNoSudo runs privileged commands without sudo.
func WithNoSudo(noSudo bool) HostOption {
	return func(host *Host) {
		host.NoSudo = &noSudo
	}
}

func WithLogger(log logger.Logger) HostOption {
	return func(host *Host) {
		host.Log = log
	}
}

func WithCommandManager(commands cm.CommandManager) HostOption {
	return func(host *Host) {
		host.CommandManager = commands
	}
}

func WithFetcher(f *fetch.Fetcher) HostOption {
	return func(host *Host) {
		host.Fetcher = f
	}
}

// WithHTTPTimeout bounds every manifest and archive download.
func WithHTTPTimeout(timeout time.Duration) HostOption {
	return func(host *Host) {
		host.HTTPTimeout = timeout
	}
}

func WithPrompter(p prompt.Prompter) HostOption {
	return func(host *Host) {
		host.Prompter = p
	}
}

func WithOutput(w io.Writer) HostOption {
	return func(host *Host) {
		host.Out = w
	}
}
