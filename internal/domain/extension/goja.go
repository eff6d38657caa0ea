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

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/thecatthatflies/melius/internal/shared/paths"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// disposeTimeout bounds a single script-side dispose or deactivate call
	disposeTimeout = 5 * time.Second

	maxCallStackSize = 1024
)

var (
	// ErrModuleNotFound is returned when require cannot resolve a specifier
	ErrModuleNotFound = errors.New("module not found")

	// ErrUnsettled is returned when a script returns a promise that is
	// still pending once its job queue has drained
	ErrUnsettled = errors.New("promise did not settle")
)

// ScriptError is a JavaScript exception surfaced to Go
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string { return e.Message }

// GojaLoader loads CommonJS-style main.js modules into one goja VM per extension
type GojaLoader struct {
	logger *zap.Logger
}

// NewGojaLoader creates a script loader. Console output goes to logger.
func NewGojaLoader(logger *zap.Logger) *GojaLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GojaLoader{logger: logger}
}

// Load evaluates req.Main inside req.Dir and returns its exports as a Module
func (l *GojaLoader) Load(ctx context.Context, req LoadRequest) (Module, error) {
	main := req.Main
	if main == "" {
		main = paths.DefaultMain
	}

	m := &gojaModule{
		vm:     goja.New(),
		root:   paths.Normalize(req.Dir),
		logger: l.logger.With(zap.String("extension", req.ExtensionID)),
		cache:  make(map[string]goja.Value),
	}
	m.vm.SetMaxCallStackSize(maxCallStackSize)
	m.setupGlobals()

	entry := filepath.Join(m.root, main)
	if !paths.IsWithin(m.root, entry) {
		return nil, fmt.Errorf("main %q escapes the extension directory", main)
	}

	_, err := m.run(ctx, func() (goja.Value, error) {
		exports, err := m.require(entry)
		if err != nil {
			return nil, err
		}
		m.exports = exports
		return exports, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

type gojaModule struct {
	vm      *goja.Runtime
	mu      sync.Mutex
	root    string
	logger  *zap.Logger
	cache   map[string]goja.Value
	exports goja.Value
}

// run executes fn with exclusive access to the VM. The VM is interrupted
// when ctx is done.
func (m *gojaModule) run(ctx context.Context, fn func() (goja.Value, error)) (goja.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			m.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := fn()
	close(done)
	<-stopped
	m.vm.ClearInterrupt()

	return val, scriptError(err)
}

func (m *gojaModule) setupGlobals() {
	console := m.vm.NewObject()
	_ = console.Set("log", m.consoleFunc(zap.InfoLevel))
	_ = console.Set("info", m.consoleFunc(zap.InfoLevel))
	_ = console.Set("debug", m.consoleFunc(zap.DebugLevel))
	_ = console.Set("warn", m.consoleFunc(zap.WarnLevel))
	_ = console.Set("error", m.consoleFunc(zap.ErrorLevel))
	_ = m.vm.Set("console", console)

	_ = m.vm.Set("process", goja.Undefined())
}

func (m *gojaModule) consoleFunc(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if ce := m.logger.Check(level, joinArgs(call.Arguments)); ce != nil {
			ce.Write(zap.String("source", "console"))
		}
		return goja.Undefined()
	}
}

// require loads a module file, memoized by absolute path
func (m *gojaModule) require(file string) (goja.Value, error) {
	if cached, ok := m.cache[file]; ok {
		return cached, nil
	}

	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(file), ".json") {
		var data interface{}
		if err := sonic.Unmarshal(src, &data); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		val := m.vm.ToValue(data)
		m.cache[file] = val
		return val, nil
	}

	wrapped := "(function (exports, require, module, __filename, __dirname) {" + string(src) + "\n})"
	prog, err := goja.Compile(file, wrapped, false)
	if err != nil {
		return nil, err
	}
	fnVal, err := m.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("%s: module wrapper is not callable", filepath.Base(file))
	}

	module := m.vm.NewObject()
	exports := m.vm.NewObject()
	_ = module.Set("exports", exports)
	// Cycles observe the partially populated exports object.
	m.cache[file] = exports

	dir := filepath.Dir(file)
	if _, err := fn(exports, exports, m.vm.ToValue(m.requireFrom(dir)), module,
		m.vm.ToValue(file), m.vm.ToValue(dir)); err != nil {
		delete(m.cache, file)
		return nil, err
	}

	result := module.Get("exports")
	m.cache[file] = result
	return result, nil
}

// requireFrom returns the require function seen by modules in dir.
// Only relative specifiers inside the extension directory resolve.
func (m *gojaModule) requireFrom(dir string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		file, err := m.resolve(dir, spec)
		if err != nil {
			panic(m.vm.NewGoError(err))
		}
		val, err := m.require(file)
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex)
			}
			panic(m.vm.NewGoError(err))
		}
		return val
	}
}

func (m *gojaModule) resolve(dir, spec string) (string, error) {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return "", fmt.Errorf("%w: %q", ErrModuleNotFound, spec)
	}

	base := filepath.Join(dir, filepath.FromSlash(spec))
	if !paths.IsWithin(m.root, base) {
		return "", fmt.Errorf("%w: %q is outside the extension directory", ErrModuleNotFound, spec)
	}

	for _, candidate := range []string{base, base + ".js", base + ".json", filepath.Join(base, "index.js")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrModuleNotFound, spec)
}

// Activate calls exports.activate(context) and settles a returned promise
func (m *gojaModule) Activate(ctx context.Context, api API) (Activation, error) {
	var activation Activation

	_, err := m.run(ctx, func() (goja.Value, error) {
		exports := m.exportsObject()
		if exports == nil {
			return nil, nil
		}

		jsContext, subscriptions := m.contextObject(api)

		if activate, ok := goja.AssertFunction(exports.Get("activate")); ok {
			ret, err := activate(exports, jsContext)
			if err != nil {
				return nil, err
			}
			ret, err = m.settle(ret)
			if err != nil {
				return nil, err
			}
			if obj := asObject(ret); obj != nil {
				if _, ok := goja.AssertFunction(obj.Get("dispose")); ok {
					activation.Result = m.disposable(obj)
				}
			}
		}

		if deactivate, ok := goja.AssertFunction(exports.Get("deactivate")); ok {
			activation.Deactivate = m.callback(exports, deactivate)
		}

		// Entries pushed by script code, including registerCommand handles,
		// are subscribed in array order.
		for _, key := range subscriptions.Keys() {
			if d := m.toDisposable(subscriptions.Get(key)); d != nil {
				api.Subscribe(d)
			}
		}
		return nil, nil
	})
	if err != nil {
		return Activation{}, err
	}
	return activation, nil
}

func (m *gojaModule) exportsObject() *goja.Object {
	return asObject(m.exports)
}

// contextObject builds the script-facing capability object
func (m *gojaModule) contextObject(api API) (*goja.Object, *goja.Object) {
	vm := m.vm
	obj := vm.NewObject()
	subscriptions := vm.NewArray()

	_ = obj.Set("workspacePath", api.WorkspacePath())
	_ = obj.Set("extensionPath", api.ExtensionPath())
	_ = obj.Set("extensionId", api.ExtensionID())
	_ = obj.Set("subscriptions", subscriptions)

	_ = obj.Set("log", func(call goja.FunctionCall) goja.Value {
		api.Log(joinArgs(call.Arguments))
		return goja.Undefined()
	})

	_ = obj.Set("registerCommand", func(call goja.FunctionCall) goja.Value {
		commandID := ""
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			commandID = arg.String()
		}
		title := ""
		if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			title = arg.String()
		}

		handle, err := api.Register(commandID, m.handler(call.Argument(1)), title)
		if err != nil {
			panic(vm.NewGoError(err))
		}

		jsHandle := vm.NewObject()
		_ = jsHandle.Set("dispose", func(goja.FunctionCall) goja.Value {
			if err := handle.Dispose(); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		})

		push, _ := goja.AssertFunction(subscriptions.Get("push"))
		if push != nil {
			if _, err := push(subscriptions, jsHandle); err != nil {
				panic(err)
			}
		}
		return jsHandle
	})

	return obj, subscriptions
}

// handler wraps a script function as a command Handler. Non-functions
// become handlers returning nil.
func (m *gojaModule) handler(val goja.Value) Handler {
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return func(context.Context, []interface{}) (interface{}, error) { return nil, nil }
	}

	return func(ctx context.Context, args []interface{}) (interface{}, error) {
		var out interface{}
		_, err := m.run(ctx, func() (goja.Value, error) {
			jsArgs := make([]goja.Value, len(args))
			for i, arg := range args {
				jsArgs[i] = m.vm.ToValue(arg)
			}
			ret, err := fn(goja.Undefined(), jsArgs...)
			if err != nil {
				return nil, err
			}
			ret, err = m.settle(ret)
			if err != nil {
				return nil, err
			}
			if ret != nil && !goja.IsUndefined(ret) && !goja.IsNull(ret) {
				out = ret.Export()
			}
			return ret, nil
		})
		return out, err
	}
}

// settle unwraps a promise. Jobs queued by the call have already run when
// control returns to Go, so a pending promise will never settle.
func (m *gojaModule) settle(val goja.Value) (goja.Value, error) {
	if val == nil {
		return val, nil
	}
	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		return val, nil
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return promise.Result(), nil
	case goja.PromiseStateRejected:
		return nil, rejection(promise.Result())
	default:
		return nil, ErrUnsettled
	}
}

// toDisposable accepts a function or an object with a dispose method
func (m *gojaModule) toDisposable(val goja.Value) Disposable {
	if fn, ok := goja.AssertFunction(val); ok {
		return m.callback(goja.Undefined(), fn)
	}
	if obj := asObject(val); obj != nil {
		if _, ok := goja.AssertFunction(obj.Get("dispose")); ok {
			return m.disposable(obj)
		}
	}
	return nil
}

func (m *gojaModule) disposable(obj *goja.Object) Disposable {
	return DisposeFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()

		_, err := m.run(ctx, func() (goja.Value, error) {
			dispose, ok := goja.AssertFunction(obj.Get("dispose"))
			if !ok {
				return nil, nil
			}
			ret, err := dispose(obj)
			if err != nil {
				return nil, err
			}
			return m.settle(ret)
		})
		return err
	})
}

func (m *gojaModule) callback(this goja.Value, fn goja.Callable) Disposable {
	return DisposeFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()

		_, err := m.run(ctx, func() (goja.Value, error) {
			ret, err := fn(this)
			if err != nil {
				return nil, err
			}
			return m.settle(ret)
		})
		return err
	})
}

func asObject(val goja.Value) *goja.Object {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	obj, _ := val.(*goja.Object)
	return obj
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}

// rejection converts a rejected promise value to an error
func rejection(val goja.Value) error {
	if obj := asObject(val); obj != nil {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return &ScriptError{Message: msg.String(), Stack: stackOf(obj)}
		}
	}
	if val == nil {
		return &ScriptError{Message: "undefined"}
	}
	return &ScriptError{Message: val.String()}
}

func stackOf(obj *goja.Object) string {
	if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
		return stack.String()
	}
	return ""
}

// scriptError maps goja failures to plain Go errors carrying the script message
func scriptError(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("script interrupted: %w", cause)
		}
		return fmt.Errorf("script interrupted: %v", interrupted.Value())
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return rejection(ex.Value())
	}
	return err
}
