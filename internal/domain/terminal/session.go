package terminal

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shell"
)

// ptyDrainTimeout bounds how long trailing PTY output is read after the
// shell exits; background jobs can hold the slave side open indefinitely.
const ptyDrainTimeout = 500 * time.Millisecond

// Session is one live shell owned by exactly one client
type Session struct {
	ID        int64
	Owner     id.ClientID
	Mode      Mode
	Profile   shell.Profile
	Cwd       string
	StartedAt time.Time

	cmd   *exec.Cmd
	ptmx  *os.File       // pty mode
	stdin io.WriteCloser // child mode

	mu     sync.Mutex
	cols   int
	rows   int
	killed bool

	exitOnce sync.Once
	done     chan struct{}
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.ID,
		Mode:      s.Mode,
		Profile:   s.Profile,
		Cols:      s.cols,
		Rows:      s.rows,
		Cwd:       s.Cwd,
		StartedAt: s.StartedAt,
	}
}

func (s *Session) write(data string) error {
	switch s.Mode {
	case ModePTY:
		_, err := io.WriteString(s.ptmx, data)
		return err
	default:
		_, err := io.WriteString(s.stdin, data)
		return err
	}
}

func (s *Session) resize(cols, rows int) error {
	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()

	return pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// terminate asks the process to exit and force kills it after grace
func (s *Session) terminate(grace time.Duration) {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	s.mu.Unlock()

	if s.Mode == ModeChild && s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd.Process == nil {
		return
	}

	if grace <= 0 {
		_ = s.cmd.Process.Kill()
		return
	}
	if err := s.cmd.Process.Signal(terminateSignal(s.Mode)); err != nil {
		_ = s.cmd.Process.Kill()
		return
	}
	time.AfterFunc(grace, func() {
		select {
		case <-s.done:
		default:
			_ = s.cmd.Process.Kill()
		}
	})
}

// outputWriter forwards process output as terminal:data events, holding back
// an incomplete trailing UTF-8 sequence until the next chunk
type outputWriter struct {
	mu      sync.Mutex
	pending []byte
	emit    func(string)
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := append(w.pending, p...)
	cut := completeUTF8(buf)
	w.pending = append(w.pending[:0:0], buf[cut:]...)
	if cut > 0 {
		w.emit(string(buf[:cut]))
	}
	return len(p), nil
}

func (w *outputWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(string(w.pending))
		w.pending = nil
	}
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence
func completeUTF8(b []byte) int {
	n := len(b)
	for i := 1; i <= utf8.UTFMax && i <= n; i++ {
		c := b[n-i]
		if c < utf8.RuneSelf {
			return n
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[n-i:]) {
				return n
			}
			return n - i
		}
	}
	return n
}
