package terminal

import (
	"time"

	"github.com/thecatthatflies/melius/internal/infrastructure/config"
	"github.com/thecatthatflies/melius/internal/shared/utils"
	"github.com/thecatthatflies/melius/internal/shell"
)

// Mode is the backing strategy of a session
type Mode string

const (
	ModePTY   Mode = "pty"
	ModeChild Mode = "child"
)

// Dimension bounds
const (
	MinCols = 20
	MaxCols = 500
	MinRows = 5
	MaxRows = 200
)

// SpawnErrorSignal marks a session that never started
const SpawnErrorSignal = "spawn_error"

// Config controls session creation
type Config struct {
	PTY         bool
	DefaultCols int
	DefaultRows int

	// KillGrace is how long a killed session may take to exit before it is force killed
	KillGrace time.Duration
}

// DefaultConfig returns the standard terminal settings
func DefaultConfig() Config {
	return Config{
		PTY:         true,
		DefaultCols: 120,
		DefaultRows: 35,
		KillGrace:   2 * time.Second,
	}
}

// ConfigFrom maps application configuration onto terminal settings
func ConfigFrom(cfg config.TerminalConfig) Config {
	c := DefaultConfig()
	c.PTY = cfg.PTY
	if cfg.DefaultCols > 0 {
		c.DefaultCols = ClampCols(cfg.DefaultCols)
	}
	if cfg.DefaultRows > 0 {
		c.DefaultRows = ClampRows(cfg.DefaultRows)
	}
	return c
}

// CreateRequest describes a new session. Nil dimensions use the defaults.
type CreateRequest struct {
	Cwd       string
	Cols      *int
	Rows      *int
	ProfileID string
	ShellPath string
}

// CreateResult is returned by Create
type CreateResult struct {
	SessionID           int64         `json:"sessionId"`
	Profile             shell.Profile `json:"profile"`
	PTYSupported        bool          `json:"ptySupported"`
	InteractiveFallback *bool         `json:"interactiveFallback,omitempty"`
}

// ProfilesResult is returned by ListProfiles
type ProfilesResult struct {
	Profiles     []shell.Profile `json:"profiles"`
	PTYSupported bool            `json:"ptySupported"`
}

// SessionInfo describes a live session
type SessionInfo struct {
	ID        int64         `json:"id"`
	Mode      Mode          `json:"mode"`
	Profile   shell.Profile `json:"profile"`
	Cols      int           `json:"cols"`
	Rows      int           `json:"rows"`
	Cwd       string        `json:"cwd"`
	StartedAt time.Time     `json:"startedAt"`
}

// ClampCols bounds a column count to [MinCols, MaxCols]
func ClampCols(cols int) int {
	return utils.Clamp(cols, MinCols, MaxCols)
}

// ClampRows bounds a row count to [MinRows, MaxRows]
func ClampRows(rows int) int {
	return utils.Clamp(rows, MinRows, MaxRows)
}

func (c Config) dimensions(cols, rows *int) (int, int) {
	outCols, outRows := c.DefaultCols, c.DefaultRows
	if cols != nil {
		outCols = ClampCols(*cols)
	}
	if rows != nil {
		outRows = ClampRows(*rows)
	}
	return outCols, outRows
}
