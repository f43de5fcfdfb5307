package terminal

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// ptyProc runs a shell behind a pseudo-terminal
type ptyProc struct {
	cmd  *exec.Cmd
	ptmx *os.File

	waitOnce sync.Once
	waitErr  error
}

// startShell spawns an interactive shell with a PTY at the given geometry,
// inheriting the service's environment and home directory.
func startShell(shell string, cols, rows uint16) (Proc, error) {
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-color")
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}

	return &ptyProc{cmd: cmd, ptmx: ptmx}, nil
}

func (p *ptyProc) Read(b []byte) (int, error)  { return p.ptmx.Read(b) }
func (p *ptyProc) Write(b []byte) (int, error) { return p.ptmx.Write(b) }

func (p *ptyProc) Resize(cols, rows uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Terminate kills the process immediately. No grace period: the shell has
// nothing to flush that the operator cares about after an explicit close.
func (p *ptyProc) Terminate() error {
	err := p.cmd.Process.Kill()
	p.ptmx.Close()
	return err
}

// Wait blocks until the process exits and releases the PTY. Safe to call
// from multiple goroutines.
func (p *ptyProc) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.ptmx.Close()
	})
	return p.waitErr
}
