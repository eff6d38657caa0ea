package terminal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"github.com/thecatthatflies/melius/internal/infrastructure/monitoring"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shell"
	"go.uber.org/zap"
)

// ErrClosed is returned by Create after Close
var ErrClosed = errors.New("terminal registry closed")

// nextSessionID is process-wide so ids are never reused
var nextSessionID atomic.Int64

// PTYStarter starts cmd attached to a new pseudo-terminal
type PTYStarter func(cmd *exec.Cmd, size *pty.Winsize) (*os.File, error)

// Registry owns every terminal session in the process
type Registry struct {
	detector *shell.Detector
	sink     types.EventSink
	cfg      Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	startPTY PTYStarter

	mu       sync.Mutex
	sessions map[int64]*Session
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Registry
type Option func(*Registry)

// WithPTYStarter replaces the pseudo-terminal launcher
func WithPTYStarter(start PTYStarter) Option {
	return func(r *Registry) { r.startPTY = start }
}

// WithMetrics attaches metrics
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(r *Registry) { r.metrics = metrics }
}

// NewRegistry creates a session registry. sink receives terminal:data and terminal:exit.
func NewRegistry(detector *shell.Detector, sink types.EventSink, cfg Config, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = types.DiscardSink
	}
	if cfg.DefaultCols == 0 {
		cfg.DefaultCols = DefaultConfig().DefaultCols
	}
	if cfg.DefaultRows == 0 {
		cfg.DefaultRows = DefaultConfig().DefaultRows
	}
	r := &Registry{
		detector: detector,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.Named("terminal"),
		startPTY: pty.StartWithSize,
		sessions: make(map[int64]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PTYSupported reports whether sessions try a pseudo-terminal first
func (r *Registry) PTYSupported() bool {
	return r.cfg.PTY && r.detector.GOOS() != "windows"
}

// ListProfiles returns the detected shells; force re-probes them
func (r *Registry) ListProfiles(ctx context.Context, force bool) (ProfilesResult, error) {
	profiles, err := r.detector.Profiles(ctx, force)
	if err != nil {
		return ProfilesResult{}, err
	}
	return ProfilesResult{Profiles: profiles, PTYSupported: r.PTYSupported()}, nil
}

// Create starts a session owned by client. Spawn failures do not return an
// error: they surface as terminal:data and terminal:exit events for the
// returned session id.
func (r *Registry) Create(ctx context.Context, client id.ClientID, req CreateRequest) (CreateResult, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return CreateResult{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return CreateResult{}, err
	}

	cwd := workingDirectory(req.Cwd)
	env := environment()
	cols, rows := r.cfg.dimensions(req.Cols, req.Rows)

	profiles, err := r.detector.Profiles(ctx, false)
	if err != nil {
		return CreateResult{}, fmt.Errorf("detect shells: %w", err)
	}
	profile, _ := shell.Resolve(profiles, req.ProfileID, req.ShellPath)

	sessionID := nextSessionID.Add(1)
	logger := r.logger.With(
		zap.Int64("session_id", sessionID),
		zap.String("client_id", client.String()),
		zap.String("shell", profile.Path),
	)

	if r.PTYSupported() {
		cmd := exec.Command(profile.Path, profile.Args...)
		cmd.Dir = cwd
		cmd.Env = env

		ptmx, err := r.startPTY(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
		if err == nil {
			s := r.newSession(sessionID, client, ModePTY, profile, cwd, cols, rows, cmd)
			s.ptmx = ptmx
			if !r.register(s) {
				s.terminate(0)
				_ = ptmx.Close()
				go func() { _ = cmd.Wait() }()
				return CreateResult{}, ErrClosed
			}
			r.wg.Add(1)
			go r.runPTY(s)

			logger.Info("terminal session started", zap.String("mode", string(ModePTY)))
			r.metrics.IncTerminalCreated(string(ModePTY))
			if err := r.abandonIfDone(ctx, client, sessionID); err != nil {
				return CreateResult{}, err
			}
			return CreateResult{SessionID: sessionID, Profile: profile, PTYSupported: true}, nil
		}

		logger.Warn("pty spawn failed, falling back to child process", zap.Error(err))
		r.publishData(client, sessionID, fmt.Sprintf("\r\nPTY unavailable: %s\r\n", err))
	}

	command, args := profile.Path, profile.Args
	interactive := false
	if r.detector.GOOS() != "windows" && r.detector.Exists(ctx, "script") {
		if wc, wa, ok := shell.InteractiveWrapper(r.detector.GOOS(), profile); ok {
			command, args, interactive = wc, wa, true
		}
	}
	result := CreateResult{SessionID: sessionID, Profile: profile, PTYSupported: false, InteractiveFallback: &interactive}

	cmd := exec.Command(command, args...)
	cmd.Dir = cwd
	cmd.Env = env
	cmd.WaitDelay = time.Second

	s := r.newSession(sessionID, client, ModeChild, profile, cwd, cols, rows, cmd)
	out := &outputWriter{emit: func(data string) { r.publishData(client, sessionID, data) }}
	cmd.Stdout = out
	cmd.Stderr = out

	stdin, err := cmd.StdinPipe()
	if err == nil {
		s.stdin = stdin
		err = cmd.Start()
	}
	if err != nil {
		logger.Warn("terminal spawn failed", zap.Error(err))
		r.metrics.IncTerminalSpawnErrors()
		r.publishData(client, sessionID, fmt.Sprintf("\r\n%s\r\n", err))
		r.publishExit(client, sessionID, 1, SpawnErrorSignal)
		return result, nil
	}

	if !r.register(s) {
		s.terminate(0)
		go func() { _ = cmd.Wait() }()
		return CreateResult{}, ErrClosed
	}
	r.wg.Add(1)
	go r.runChild(s, out)

	logger.Info("terminal session started", zap.String("mode", string(ModeChild)), zap.Bool("interactive_fallback", interactive))
	r.metrics.IncTerminalCreated(string(ModeChild))
	if err := r.abandonIfDone(ctx, client, sessionID); err != nil {
		return CreateResult{}, err
	}
	return result, nil
}

// abandonIfDone kills a just-registered session when the caller's context
// ended meanwhile. A client released during Create would otherwise keep it.
func (r *Registry) abandonIfDone(ctx context.Context, client id.ClientID, sessionID int64) error {
	err := ctx.Err()
	if err != nil && r.Kill(client, sessionID) {
		r.logger.Debug("terminal session abandoned", zap.Int64("session_id", sessionID), zap.Error(err))
	}
	return err
}

func (r *Registry) newSession(sessionID int64, client id.ClientID, mode Mode, profile shell.Profile, cwd string, cols, rows int, cmd *exec.Cmd) *Session {
	return &Session{
		ID:        sessionID,
		Owner:     client,
		Mode:      mode,
		Profile:   profile,
		Cwd:       cwd,
		StartedAt: time.Now(),
		cmd:       cmd,
		cols:      cols,
		rows:      rows,
		done:      make(chan struct{}),
	}
}

func (r *Registry) register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sessions[s.ID] = s
	r.metrics.SetTerminalSessions(len(r.sessions))
	return true
}

func (r *Registry) runPTY(s *Session) {
	defer r.wg.Done()

	out := &outputWriter{emit: func(data string) { r.publishData(s.Owner, s.ID, data) }}
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		buf := make([]byte, 4096)
		for {
			n, err := s.ptmx.Read(buf)
			if n > 0 {
				_, _ = out.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	_ = s.cmd.Wait()

	select {
	case <-drained:
	case <-time.After(ptyDrainTimeout):
	}
	_ = s.ptmx.Close()
	<-drained
	out.flush()

	code, signal := exitStatus(s.cmd.ProcessState)
	r.finish(s, code, signal)
}

func (r *Registry) runChild(s *Session, out *outputWriter) {
	defer r.wg.Done()

	_ = s.cmd.Wait()
	out.flush()

	code, signal := exitStatus(s.cmd.ProcessState)
	r.finish(s, code, signal)
}

// finish removes the session and emits terminal:exit exactly once
func (r *Registry) finish(s *Session, code int, signal string) {
	s.exitOnce.Do(func() {
		close(s.done)

		r.mu.Lock()
		if r.sessions[s.ID] == s {
			delete(r.sessions, s.ID)
		}
		r.metrics.SetTerminalSessions(len(r.sessions))
		r.mu.Unlock()

		r.logger.Info("terminal session exited",
			zap.Int64("session_id", s.ID),
			zap.Int("exit_code", code),
			zap.String("signal", signal),
		)
		r.publishExit(s.Owner, s.ID, code, signal)
	})
}

func (r *Registry) publishData(client id.ClientID, sessionID int64, data string) {
	r.sink.Publish(client, types.Event{
		Name:    types.EventTerminalData,
		Payload: types.TerminalData{SessionID: sessionID, Data: data},
	})
}

func (r *Registry) publishExit(client id.ClientID, sessionID int64, code int, signal string) {
	payload := types.TerminalExit{SessionID: sessionID, ExitCode: code}
	if signal != "" {
		payload.Signal = &signal
	}
	r.sink.Publish(client, types.Event{Name: types.EventTerminalExit, Payload: payload})
}

// owned returns the session only when client owns it
func (r *Registry) owned(client id.ClientID, sessionID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[sessionID]
	if s == nil || s.Owner != client {
		return nil
	}
	return s
}

// Write sends input to a session. Unknown or foreign sessions and empty data are ignored.
func (r *Registry) Write(client id.ClientID, sessionID int64, data string) {
	if data == "" {
		return
	}
	s := r.owned(client, sessionID)
	if s == nil {
		return
	}
	if err := s.write(data); err != nil {
		r.logger.Debug("terminal write dropped", zap.Int64("session_id", sessionID), zap.Error(err))
	}
}

// Resize changes a PTY session's size. Nil dimensions use the defaults.
// Child sessions and foreign sessions are ignored.
func (r *Registry) Resize(client id.ClientID, sessionID int64, cols, rows *int) {
	s := r.owned(client, sessionID)
	if s == nil || s.Mode != ModePTY {
		return
	}
	c, rw := r.cfg.dimensions(cols, rows)
	if err := s.resize(c, rw); err != nil {
		r.logger.Debug("terminal resize failed", zap.Int64("session_id", sessionID), zap.Error(err))
	}
}

// Kill terminates a session owned by client. It returns false when the
// session is unknown, foreign or already gone.
func (r *Registry) Kill(client id.ClientID, sessionID int64) bool {
	r.mu.Lock()
	s := r.sessions[sessionID]
	if s == nil || s.Owner != client {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, sessionID)
	r.metrics.SetTerminalSessions(len(r.sessions))
	r.mu.Unlock()

	s.terminate(r.cfg.KillGrace)
	r.logger.Debug("terminal session killed", zap.Int64("session_id", sessionID))
	return true
}

// ReleaseClient kills every session owned by client
func (r *Registry) ReleaseClient(client id.ClientID) {
	r.mu.Lock()
	var owned []*Session
	for sid, s := range r.sessions {
		if s.Owner == client {
			owned = append(owned, s)
			delete(r.sessions, sid)
		}
	}
	r.metrics.SetTerminalSessions(len(r.sessions))
	r.mu.Unlock()

	for _, s := range owned {
		s.terminate(r.cfg.KillGrace)
	}
}

// Sessions lists the live sessions owned by client, oldest first
func (r *Registry) Sessions(client id.ClientID) []SessionInfo {
	r.mu.Lock()
	var out []SessionInfo
	for _, s := range r.sessions {
		if s.Owner == client {
			out = append(out, s.info())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close kills every session and waits for their exit events
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[int64]*Session)
	r.metrics.SetTerminalSessions(0)
	r.mu.Unlock()

	for _, s := range all {
		s.terminate(0)
	}
	r.wg.Wait()
}
