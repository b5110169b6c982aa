package commandmanager

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/steelcutops/railtube/logger"
)

type UnixCommandManager struct {
	// SudoPassword is fed to `sudo -S` on stdin when set.
	SudoPassword string
	// NoSudo runs privileged commands directly, e.g. when already root.
	NoSudo bool
	Log    logger.Logger
}

func NewUnixCommandManager(log logger.Logger) *UnixCommandManager {
	if log == nil {
		log = logger.Discard()
	}
	return &UnixCommandManager{Log: log, NoSudo: os.Geteuid() == 0}
}

func (u *UnixCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()

	name, args := config.Command, config.Args
	if config.Sudo && !u.NoSudo {
		if u.SudoPassword != "" {
			args = append([]string{"-S", name}, args...)
		} else {
			args = append([]string{name}, args...)
		}
		name = "sudo"
	}
	cmdline := strings.Join(append([]string{name}, args...), " ")
	u.Log.Info("Executing: " + cmdline)

	cmd := exec.CommandContext(ctx, name, args...)
	if config.Sudo && !u.NoSudo && u.SudoPassword != "" {
		cmd.Stdin = strings.NewReader(u.SudoPassword + "\n")
	}
	if len(config.Env) > 0 {
		cmd.Env = append(os.Environ(), config.Env...)
	}
	cmd.Dir = config.Dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Command:   cmdline,
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}

	if result.STDOUT != "" {
		u.Log.Debug("Stdout:\n" + result.STDOUT)
	}
	if result.STDERR != "" {
		u.Log.Debug("Stderr:\n" + result.STDERR)
	}

	if strings.Contains(result.STDERR, "incorrect password") {
		err = errors.New("sudo: incorrect password provided")
	}

	if err != nil {
		u.Log.Error("Command failed", "command", cmdline, "exit_code", result.ExitCode, "error", err)
		return result, &CommandError{
			Command:  cmdline,
			ExitCode: result.ExitCode,
			STDOUT:   result.STDOUT,
			STDERR:   result.STDERR,
			Err:      err,
		}
	}
	return result, nil
}

func getExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
