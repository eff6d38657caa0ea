package extension

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/thecatthatflies/melius/internal/infrastructure/config"
	"github.com/thecatthatflies/melius/internal/infrastructure/monitoring"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/paths"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned after Close
	ErrClosed = errors.New("extension runtime closed")

	// ErrCommandRequired is returned by Execute for an empty command id
	ErrCommandRequired = errors.New("A command id is required.")

	// ErrCommandNotFound is returned by Execute for an unregistered command id
	ErrCommandNotFound = errors.New("Command not found")

	// ErrCommandIDRequired is returned by Register for an empty command id
	ErrCommandIDRequired = errors.New("Command id is required.")
)

// Status of one extension record
type Status string

const (
	StatusLoaded Status = "loaded"
	StatusError  Status = "error"
)

// Record describes one discovered extension
type Record struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Main        string        `json:"main"`
	Path        string        `json:"path"`
	Status      Status        `json:"status"`
	Error       string        `json:"error"`
	Commands    []CommandInfo `json:"commands"`
}

// CommandEntry is one registered command in the client's table
type CommandEntry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ExtensionID string `json:"extensionId"`
}

// Snapshot is the serialized runtime of one client
type Snapshot struct {
	WorkspacePath string         `json:"workspacePath"`
	Extensions    []Record       `json:"extensions"`
	Commands      []CommandEntry `json:"commands"`
}

// ExecuteResult is returned by a successful command execution
type ExecuteResult struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result"`
}

// Config bounds script execution
type Config struct {
	ActivationTimeout time.Duration
	CommandTimeout    time.Duration
}

// DefaultConfig returns the runtime defaults
func DefaultConfig() Config {
	return Config{
		ActivationTimeout: 10 * time.Second,
		CommandTimeout:    30 * time.Second,
	}
}

// ConfigFrom maps the loaded configuration. Zero values keep the defaults.
func ConfigFrom(cfg config.ExtensionsConfig) Config {
	c := DefaultConfig()
	if cfg.ActivationTimeout > 0 {
		c.ActivationTimeout = cfg.ActivationTimeout
	}
	if cfg.CommandTimeout > 0 {
		c.CommandTimeout = cfg.CommandTimeout
	}
	return c
}

// Runtime owns the extension state of every client
type Runtime struct {
	loader  Loader
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	clients map[id.ClientID]*clientRuntime
	closed  bool
}

// NewRuntime creates a runtime that activates extensions through loader
func NewRuntime(loader Loader, cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		loader:  loader,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		clients: make(map[id.ClientID]*clientRuntime),
	}
}

// clientRuntime is the state of one client. loadMu serializes whole loads
// and teardowns; mu guards the tables and is never held across user code.
type clientRuntime struct {
	loadMu sync.Mutex

	mu            sync.Mutex
	workspacePath string
	extensions    []Record
	commands      map[string]*command
	order         []string
	disposables   []Disposable
}

type command struct {
	CommandEntry
	handler Handler
}

func newClientRuntime() *clientRuntime {
	return &clientRuntime{commands: make(map[string]*command)}
}

func (c *clientRuntime) setCommand(cmd *command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.commands[cmd.ID]; !exists {
		c.order = append(c.order, cmd.ID)
	}
	c.commands[cmd.ID] = cmd
}

// removeCommand deletes commandID whoever owns it now
func (c *clientRuntime) removeCommand(commandID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.commands[commandID]; !exists {
		return
	}
	delete(c.commands, commandID)
	for i, existing := range c.order {
		if existing == commandID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *clientRuntime) lookup(commandID string) (*command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd, ok := c.commands[commandID]
	return cmd, ok
}

func (c *clientRuntime) commandsOf(extensionID string) []CommandInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []CommandInfo
	for _, commandID := range c.order {
		if cmd := c.commands[commandID]; cmd.ExtensionID == extensionID {
			out = append(out, CommandInfo{ID: cmd.ID, Title: cmd.Title})
		}
	}
	return out
}

func (c *clientRuntime) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		WorkspacePath: c.workspacePath,
		Extensions:    make([]Record, len(c.extensions)),
		Commands:      make([]CommandEntry, 0, len(c.order)),
	}
	copy(snap.Extensions, c.extensions)
	for _, commandID := range c.order {
		snap.Commands = append(snap.Commands, c.commands[commandID].CommandEntry)
	}
	return snap
}

func emptySnapshot() Snapshot {
	return Snapshot{Extensions: []Record{}, Commands: []CommandEntry{}}
}

func (r *Runtime) client(client id.ClientID, create bool) (*clientRuntime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	cr, ok := r.clients[client]
	if !ok && create {
		cr = newClientRuntime()
		r.clients[client] = cr
	}
	return cr, nil
}

// Load disposes the client's runtime and rediscovers the extensions of
// workspacePath. An empty path only disposes. A missing extensions
// directory yields an empty snapshot; one broken extension never fails
// the whole load.
func (r *Runtime) Load(ctx context.Context, client id.ClientID, workspacePath string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	cr, err := r.client(client, true)
	if err != nil {
		return Snapshot{}, err
	}

	cr.loadMu.Lock()
	defer cr.loadMu.Unlock()

	r.dispose(cr)

	if workspacePath == "" {
		return cr.snapshot(), nil
	}

	cr.mu.Lock()
	cr.workspacePath = workspacePath
	cr.mu.Unlock()

	root := paths.ExtensionsRoot(workspacePath)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return cr.snapshot(), nil
		}
		return Snapshot{}, fmt.Errorf("read extensions directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record := r.loadOne(ctx, cr, workspacePath, filepath.Join(root, entry.Name()), entry.Name())

		cr.mu.Lock()
		cr.extensions = append(cr.extensions, record)
		cr.mu.Unlock()
	}

	if err := ctx.Err(); err != nil {
		r.abandon(client, cr)
		return Snapshot{}, err
	}

	snap := cr.snapshot()
	r.metrics.IncExtensionLoads()
	r.logger.Info("Extensions loaded",
		zap.String("client_id", client.String()),
		zap.String("workspace", workspacePath),
		zap.Int("extensions", len(snap.Extensions)),
		zap.Int("commands", len(snap.Commands)))
	return snap, nil
}

func (r *Runtime) loadOne(ctx context.Context, cr *clientRuntime, workspacePath, dir, dirName string) Record {
	data, err := os.ReadFile(filepath.Join(dir, paths.ManifestFile))
	var manifest rawManifest
	if err == nil {
		manifest, err = parseManifest(data)
	}
	if err != nil {
		r.metrics.IncExtensionFailures("manifest")
		r.logger.Warn("Invalid extension manifest", zap.String("path", dir), zap.Error(err))
		return Record{
			ID:       dirName,
			Name:     dirName,
			Version:  InvalidManifestVersion,
			Main:     paths.DefaultMain,
			Path:     dir,
			Status:   StatusError,
			Error:    "Invalid manifest: " + err.Error(),
			Commands: []CommandInfo{},
		}
	}

	rawID := manifest.text("id")
	if rawID == "" {
		rawID = dirName
	}
	extensionID := SanitizeID(rawID)
	if extensionID == "" {
		extensionID = dirName
	}

	record := Record{
		ID:      extensionID,
		Name:    manifest.text("name"),
		Version: manifest.text("version"),
		Main:    manifest.text("main"),
		Path:    dir,
		Status:  StatusLoaded,
	}
	if record.Name == "" {
		record.Name = FormatName(extensionID)
	}
	if record.Version == "" {
		record.Version = DefaultVersion
	}
	if record.Main == "" {
		record.Main = paths.DefaultMain
	}
	record.Description, _ = manifest["description"].(string)

	declared := manifest.commands()
	api := &extensionAPI{
		runtime:       cr,
		workspacePath: workspacePath,
		extensionPath: dir,
		extensionID:   extensionID,
		declared:      make(map[string]string, len(declared)),
		logger:        r.logger.Named("extension").With(zap.String("extension", extensionID)),
	}
	for _, cmd := range declared {
		api.declared[cmd.ID] = cmd.Title
	}

	activation, err := r.activate(ctx, api, LoadRequest{ExtensionID: extensionID, Dir: dir, Main: record.Main})

	cr.mu.Lock()
	if err == nil {
		if activation.Result != nil {
			cr.disposables = append(cr.disposables, activation.Result)
		}
		if activation.Deactivate != nil {
			cr.disposables = append(cr.disposables, activation.Deactivate)
		}
	}
	cr.disposables = append(cr.disposables, api.subscriptions()...)
	cr.mu.Unlock()

	if err != nil {
		record.Status = StatusError
		record.Error = "Activation failed: " + err.Error()
		r.metrics.IncExtensionFailures("activation")
		r.logger.Warn("Extension activation failed",
			zap.String("extension", extensionID), zap.Error(err))
	}

	record.Commands = cr.commandsOf(extensionID)
	if len(record.Commands) == 0 {
		record.Commands = declared
	}
	return record
}

func (r *Runtime) activate(ctx context.Context, api API, req LoadRequest) (activation Activation, err error) {
	if r.cfg.ActivationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ActivationTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	module, err := r.loader.Load(ctx, req)
	if err != nil {
		return Activation{}, err
	}
	return module.Activate(ctx, api)
}

// dispose releases every disposable in registration order, then clears the tables
func (r *Runtime) dispose(cr *clientRuntime) {
	cr.mu.Lock()
	disposables := cr.disposables
	cr.disposables = nil
	cr.mu.Unlock()

	for _, d := range disposables {
		if err := safeDispose(d); err != nil {
			r.metrics.IncExtensionDisposeErrors()
			r.logger.Warn("Extension dispose failed", zap.Error(err))
		}
	}

	cr.mu.Lock()
	cr.workspacePath = ""
	cr.extensions = nil
	cr.commands = make(map[string]*command)
	cr.order = nil
	cr.mu.Unlock()
}

func safeDispose(d Disposable) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return d.Dispose()
}

// Execute runs a registered command and returns its result
func (r *Runtime) Execute(ctx context.Context, client id.ClientID, commandID string, args []interface{}) (ExecuteResult, error) {
	if commandID == "" {
		return ExecuteResult{}, ErrCommandRequired
	}

	cr, err := r.client(client, false)
	if err != nil {
		return ExecuteResult{}, err
	}
	var cmd *command
	if cr != nil {
		cmd, _ = cr.lookup(commandID)
	}
	if cmd == nil {
		r.metrics.IncExtensionCommands("not_found")
		return ExecuteResult{}, fmt.Errorf("%w: %s", ErrCommandNotFound, commandID)
	}

	if r.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CommandTimeout)
		defer cancel()
	}
	if args == nil {
		args = []interface{}{}
	}

	result, err := cmd.handler(ctx, args)
	if err != nil {
		r.metrics.IncExtensionCommands("error")
		return ExecuteResult{}, err
	}
	r.metrics.IncExtensionCommands("ok")
	return ExecuteResult{OK: true, Result: result}, nil
}

// abandon disposes a runtime whose caller went away mid-load. The caller
// holds cr.loadMu.
func (r *Runtime) abandon(client id.ClientID, cr *clientRuntime) {
	r.mu.Lock()
	if r.clients[client] == cr {
		delete(r.clients, client)
	}
	r.mu.Unlock()
	r.dispose(cr)
}

// Snapshot returns the client's current runtime without reloading
func (r *Runtime) Snapshot(client id.ClientID) Snapshot {
	cr, err := r.client(client, false)
	if err != nil || cr == nil {
		return emptySnapshot()
	}
	return cr.snapshot()
}

// Release disposes and forgets the client's runtime
func (r *Runtime) Release(client id.ClientID) {
	r.mu.Lock()
	cr, ok := r.clients[client]
	delete(r.clients, client)
	r.mu.Unlock()

	if !ok {
		return
	}
	cr.loadMu.Lock()
	r.dispose(cr)
	cr.loadMu.Unlock()
}

// Close disposes every client runtime. Later loads fail with ErrClosed.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	clients := r.clients
	r.clients = make(map[id.ClientID]*clientRuntime)
	r.mu.Unlock()

	for _, cr := range clients {
		cr.loadMu.Lock()
		r.dispose(cr)
		cr.loadMu.Unlock()
	}
}

// extensionAPI is the capability object of one extension activation
type extensionAPI struct {
	runtime       *clientRuntime
	workspacePath string
	extensionPath string
	extensionID   string
	declared      map[string]string
	logger        *zap.Logger

	mu   sync.Mutex
	subs []Disposable
}

func (a *extensionAPI) WorkspacePath() string { return a.workspacePath }
func (a *extensionAPI) ExtensionPath() string { return a.extensionPath }
func (a *extensionAPI) ExtensionID() string   { return a.extensionID }

func (a *extensionAPI) Register(commandID string, handler Handler, title string) (Disposable, error) {
	commandID = strings.TrimSpace(commandID)
	if commandID == "" {
		return nil, ErrCommandIDRequired
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = a.declared[commandID]
	}
	if title == "" {
		title = commandID
	}
	if handler == nil {
		handler = func(context.Context, []interface{}) (interface{}, error) { return nil, nil }
	}

	a.runtime.setCommand(&command{
		CommandEntry: CommandEntry{ID: commandID, Title: title, ExtensionID: a.extensionID},
		handler:      handler,
	})

	return DisposeFunc(func() error {
		a.runtime.removeCommand(commandID)
		return nil
	}), nil
}

func (a *extensionAPI) RegisterCommand(commandID string, handler Handler, title string) (Disposable, error) {
	d, err := a.Register(commandID, handler, title)
	if err != nil {
		return nil, err
	}
	a.Subscribe(d)
	return d, nil
}

func (a *extensionAPI) Subscribe(d Disposable) {
	if d == nil {
		return
	}
	a.mu.Lock()
	a.subs = append(a.subs, d)
	a.mu.Unlock()
}

func (a *extensionAPI) Log(msg string, fields ...zap.Field) {
	a.logger.Info(msg, fields...)
}

func (a *extensionAPI) subscriptions() []Disposable {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Disposable(nil), a.subs...)
}
