package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Command describes the shell to start.
type Command struct {
	Shell string
	Dir   string
	Env   []string
	Cols  uint16
	Rows  uint16
}

// Process is a running shell attached to a terminal. Read returns output
// until the shell is gone; Write feeds it keystrokes.
type Process interface {
	io.ReadWriter
	Resize(cols, rows uint16) error
	// Wait blocks until the shell exits and returns its exit code.
	Wait() (int, error)
	Kill() error
}

type Spawner interface {
	Spawn(cmd Command) (Process, error)
}

// PTYSpawner starts shells on a pseudo-terminal.
type PTYSpawner struct{}

func (PTYSpawner) Spawn(c Command) (Process, error) {
	cmd := exec.Command(c.Shell)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: c.Rows, Cols: c.Cols})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Shell, err)
	}
	return &ptyProcess{cmd: cmd, pty: ptmx}, nil
}

type ptyProcess struct {
	cmd *exec.Cmd
	pty *os.File
}

func (p *ptyProcess) Read(b []byte) (int, error)  { return p.pty.Read(b) }
func (p *ptyProcess) Write(b []byte) (int, error) { return p.pty.Write(b) }

func (p *ptyProcess) Resize(cols, rows uint16) error {
	return pty.Setsize(p.pty, &pty.Winsize{Rows: rows, Cols: cols})
}

func (p *ptyProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.pty.Close()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *ptyProcess) Kill() error {
	p.pty.Close()
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
