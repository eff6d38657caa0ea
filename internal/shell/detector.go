package shell

import (
	"context"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ExistsFunc reports whether an executable can be launched
type ExistsFunc func(ctx context.Context, candidate string) bool

// Option configures a Detector
type Option func(*Detector)

// WithGOOS overrides the target platform
func WithGOOS(goos string) Option {
	return func(d *Detector) { d.goos = goos }
}

// WithEnv overrides environment lookup
func WithEnv(getenv func(string) string) Option {
	return func(d *Detector) { d.getenv = getenv }
}

// WithExists overrides the executable probe
func WithExists(exists ExistsFunc) Option {
	return func(d *Detector) { d.exists = exists }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// Detector probes candidate shells and caches the result process-wide.
type Detector struct {
	goos   string
	getenv func(string) string
	exists ExistsFunc
	logger *zap.Logger

	group singleflight.Group

	mu     sync.RWMutex
	cached []Profile
}

// NewDetector creates a detector for the running platform
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		goos:   runtime.GOOS,
		getenv: os.Getenv,
		exists: ExecutableExists,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GOOS returns the platform profiles are detected for
func (d *Detector) GOOS() string {
	return d.goos
}

// Exists runs the configured executable probe
func (d *Detector) Exists(ctx context.Context, candidate string) bool {
	return d.exists(ctx, candidate)
}

// Profiles returns the detected shells. A cached non-empty result is reused
// unless force is set. Concurrent callers share one detection pass; forced
// callers never join a pass started without force. A caller whose ctx ends
// stops waiting without cancelling the pass for the others.
func (d *Detector) Profiles(ctx context.Context, force bool) ([]Profile, error) {
	key := "detect"
	if force {
		key = "detect:force"
	} else {
		d.mu.RLock()
		cached := d.cached
		d.mu.RUnlock()
		if len(cached) > 0 {
			return cached, nil
		}
	}

	detectCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key, func() (interface{}, error) {
		profiles, err := d.detect(detectCtx)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.cached = profiles
		d.mu.Unlock()
		return profiles, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Profile), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached profiles
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *Detector) detect(ctx context.Context) ([]Profile, error) {
	candidates := Candidates(d.goos, d.getenv)
	found := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		g.Go(func() error {
			found[i] = d.exists(gctx, candidate.Path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(candidates))
	for i, ok := range found {
		if ok {
			profiles = append(profiles, candidates[i])
		}
	}
	if len(profiles) == 0 {
		profiles = append(profiles, Fallback(d.goos, d.getenv))
	}

	profiles = Dedupe(profiles)
	d.logger.Debug("shell profiles detected", zap.Int("count", len(profiles)), zap.String("goos", d.goos))
	return profiles, nil
}
