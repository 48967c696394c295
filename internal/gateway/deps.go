package gateway

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandExecutor abstracts privileged command execution. Run reports the
// combined output, the process exit code (-1 when the command never started)
// and any launch error. Commands are always argument arrays; nothing here is
// ever handed to a shell.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args []string) (output string, exitCode int, err error)
}

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, name string, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return output.String(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output.String(), exitErr.ExitCode(), nil
	}
	return output.String(), -1, err
}

func ensureExecutor(executor CommandExecutor) CommandExecutor {
	if executor != nil {
		return executor
	}
	return processExecutor{}
}
