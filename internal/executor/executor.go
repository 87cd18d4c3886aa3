package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"fileset/internal/console"
)

// ErrToolNotFound is returned when a required external tool is not on PATH.
var ErrToolNotFound = errors.New("required tool not found")

// Executor runs external tools (patchelf, cc) with context cancellation.
// Children are isolated in their own process group so cancellation kills
// anything they spawned too.
type Executor struct {
	Context context.Context
	Stdout  io.Writer
	Stderr  io.Writer
}

// New returns an Executor bound to ctx with stdio inherited.
func New(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// LookPath resolves a tool name, wrapping failures in ErrToolNotFound.
func LookPath(tool string) (string, error) {
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, tool, err)
	}
	return path, nil
}

// Run executes the given command.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Stdout == nil {
		cmd.Stdout = e.stdout()
	}
	if cmd.Stderr == nil {
		cmd.Stderr = e.stderr()
	}

	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}

	finalCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
	finalCmd.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	console.Debugf("++ Exec [%s]$ %s\n", finalCmd.Dir, strings.Join(finalCmd.Args, " "))
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	pgid := finalCmd.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	if waitErr := finalCmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		return fmt.Errorf("%s: %w", strings.Join(finalCmd.Args, " "), waitErr)
	}
	return nil
}

// Output runs cmd and returns its trimmed stdout. Stderr is captured into
// the returned error.
func (e *Executor) Output(cmd *exec.Cmd) (string, error) {
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := e.Run(cmd); err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func (e *Executor) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *Executor) stderr() io.Writer {
	if e.Stderr != nil {
		return e.Stderr
	}
	return os.Stderr
}
