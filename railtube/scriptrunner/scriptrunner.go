// Package scriptrunner executes the named commands of a manifest's
// [scripts] section.
package scriptrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/steelcutops/railtube/logger"
	cm "github.com/steelcutops/railtube/railtube/commandmanager"
	"github.com/steelcutops/railtube/railtube/manifest"
	"github.com/steelcutops/railtube/railtube/prompt"
)

// ErrNoScripts is returned when the manifest has no [scripts] section.
var ErrNoScripts = errors.New("no [scripts] section found")

type UnknownScriptError struct {
	Name string
}

func (e *UnknownScriptError) Error() string {
	return fmt.Sprintf("script '%s' not found in [scripts] section", e.Name)
}

// Runner runs scripts through sh. Prompter is consulted only for manifests
// loaded from the network, whatever the run's confirmation settings.
type Runner struct {
	CommandManager cm.CommandManager
	Prompter       prompt.Prompter
	Out            io.Writer
	Log            logger.Logger
}

// Run executes the script called name. remote marks a manifest fetched over
// HTTP(S); a declined confirmation returns nil without running anything.
func (r *Runner) Run(ctx context.Context, m *manifest.Manifest, name string, remote bool) error {
	if m.Scripts == nil {
		return ErrNoScripts
	}
	command, ok := m.Scripts.Commands[name]
	if !ok {
		return &UnknownScriptError{Name: name}
	}

	fmt.Fprintf(r.Out, "Running script '%s': %s\n", name, command)
	if remote {
		fmt.Fprintln(r.Out, "WARNING: Executing script from a remote source. It will run arbitrary commands on this machine.")
		ok, err := r.Prompter.Confirm("Do you want to proceed?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(r.Out, "Script execution aborted by user.")
			r.log().Info("Script execution declined", "script", name)
			return nil
		}
	}

	r.log().Info("Running script", "script", name, "remote", remote)
	result, err := r.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "sh",
		Args:    []string{"-c", command},
	})
	if out := strings.TrimRight(result.STDOUT, "\n"); out != "" {
		fmt.Fprintln(r.Out, out)
	}
	if out := strings.TrimRight(result.STDERR, "\n"); out != "" {
		fmt.Fprintln(r.Out, out)
	}
	if err != nil {
		return fmt.Errorf("script '%s': %w", name, err)
	}
	return nil
}

func (r *Runner) log() logger.Logger {
	if r.Log == nil {
		return logger.Discard()
	}
	return r.Log
}
