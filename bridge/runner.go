package bridge

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// Process is one live worker. Stdin carries requests, Stdout carries
// responses and events.
type Process interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Kill() error
	Wait() error
}

// Runner spawns worker processes. Tests substitute a pipe-backed
// implementation; production re-executes the current binary in worker
// mode.
type Runner interface {
	Start(ctx context.Context) (Process, error)
}

// ExecRunner starts the worker as a child process.
type ExecRunner struct {
	Path string
	Args []string
}

// SelfRunner re-executes the running binary with the given arguments.
// The worker keeps the host's stderr so its diagnostics stay visible.
func SelfRunner(args ...string) (*ExecRunner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &ExecRunner{Path: exe, Args: args}, nil
}

func (r *ExecRunner) Start(ctx context.Context) (Process, error) {
	cmd := exec.CommandContext(ctx, r.Path, r.Args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	p.stdin.Close()
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
