package term

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"
)

// Session owns one interactive shell subprocess bound to a pseudo-terminal.
// Exactly one session exists per terminal connection and is never shared.
type Session struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	closed bool
}

// Start spawns the shell under a new PTY sized to cols x rows. When shell
// is empty, $SHELL is used, falling back to /bin/bash.
func Start(shell string, cols, rows uint16) (*Session, error) {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", shell, err)
	}

	log.Info().Str("module", "term").Str("shell", shell).Int("pid", cmd.Process.Pid).Msg("terminal session started")
	return &Session{cmd: cmd, ptmx: ptmx}, nil
}

// Read reads the next chunk of shell output. It returns an error once the
// shell exits or the session is closed.
func (s *Session) Read(p []byte) (int, error) {
	return s.ptmx.Read(p)
}

// Write feeds input to the shell.
func (s *Session) Write(p []byte) (int, error) {
	return s.ptmx.Write(p)
}

// Resize changes the PTY dimensions.
func (s *Session) Resize(cols, rows uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Size reports the current PTY dimensions.
func (s *Session) Size() (cols, rows uint16, err error) {
	ws, err := pty.GetsizeFull(s.ptmx)
	if err != nil {
		return 0, 0, err
	}
	return ws.Cols, ws.Rows, nil
}

// Close terminates the shell and releases the PTY. The kill is best-effort
// and the exit is reaped so no shell outlives its connection. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.ptmx.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	go func() {
		_ = s.cmd.Wait()
		log.Info().Str("module", "term").Msg("terminal session reaped")
	}()
}
