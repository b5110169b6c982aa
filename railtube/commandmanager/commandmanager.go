package commandmanager

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CommandConfig describes one external invocation.
type CommandConfig struct {
	Command string
	Args    []string
	Sudo    bool
	Env     []string
	Dir     string
}

// String renders the command line the way it is shown to the user.
func (c CommandConfig) String() string {
	parts := append([]string{c.Command}, c.Args...)
	if c.Sudo {
		parts = append([]string{"sudo"}, parts...)
	}
	return strings.Join(parts, " ")
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// CommandManager runs external tools. Implementations must be safe for
// concurrent use by parallel install batches.
type CommandManager interface {
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)
}

// CommandError is returned when a tool could not be spawned or exited
// nonzero. ExitCode is -1 when the process never started.
type CommandError struct {
	Command  string
	ExitCode int
	STDOUT   string
	STDERR   string
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "command failed: %s", e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.STDERR); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
