package shell

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func existsIn(paths ...string) ExistsFunc {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(_ context.Context, candidate string) bool { return set[candidate] }
}

func TestCandidatesPOSIX(t *testing.T) {
	got := Candidates("linux", envOf(map[string]string{"SHELL": "/usr/bin/zsh"}))

	require.NotEmpty(t, got)
	assert.Equal(t, "default", got[0].ID)
	assert.Equal(t, "Default (zsh)", got[0].Label)
	assert.Equal(t, []string{"-l"}, got[0].Args)
	assert.Equal(t, "pwsh", got[len(got)-1].ID)

	withoutShell := Candidates("darwin", envOf(nil))
	assert.Equal(t, "zsh", withoutShell[0].ID)
}

func TestCandidatesWindows(t *testing.T) {
	got := Candidates("windows", envOf(map[string]string{"ComSpec": `C:\Windows\system32\cmd.exe`}))

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"pwsh", "powershell", "cmd", "bash"}, ids)
	assert.Equal(t, `C:\Windows\system32\cmd.exe`, got[2].Path)
}

func TestDedupe(t *testing.T) {
	a := Profile{ID: "sh", Path: "/bin/sh", Args: []string{}}
	b := Profile{ID: "sh", Path: "/bin/sh", Args: []string{"-l"}}

	assert.Equal(t, []Profile{a, b}, Dedupe([]Profile{a, b, a, b}))
}

func TestResolve(t *testing.T) {
	profiles := []Profile{
		{ID: "zsh", Path: "/bin/zsh"},
		{ID: "bash", Path: "/bin/bash"},
	}

	tests := []struct {
		name      string
		profileID string
		shellPath string
		want      string
	}{
		{"by id", "bash", "", "bash"},
		{"by path", "", "/bin/bash", "bash"},
		{"id wins over path", "zsh", "/bin/bash", "zsh"},
		{"unknown falls back to first", "fish", "/nope", "zsh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(profiles, tt.profileID, tt.shellPath)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}

	_, ok := Resolve(nil, "", "")
	assert.False(t, ok)
}

func TestDetectorFiltersAndFallsBack(t *testing.T) {
	d := NewDetector(
		WithGOOS("linux"),
		WithEnv(envOf(map[string]string{"SHELL": "/bin/bash"})),
		WithExists(existsIn("/bin/bash", "/bin/sh")),
	)

	profiles, err := d.Profiles(context.Background(), false)
	require.NoError(t, err)

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"default", "bash", "sh"}, ids)

	none := NewDetector(WithGOOS("linux"), WithEnv(envOf(nil)), WithExists(existsIn()))
	profiles, err = none.Profiles(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []Profile{{ID: "sh", Label: "System Shell", Path: "/bin/sh", Args: []string{}}}, profiles)

	win := NewDetector(WithGOOS("windows"), WithEnv(envOf(nil)), WithExists(existsIn()))
	profiles, err = win.Profiles(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "Command Prompt", profiles[0].Label)
	assert.Equal(t, "cmd.exe", profiles[0].Path)
}

func TestDetectorCachesUntilForced(t *testing.T) {
	var probes atomic.Int32
	d := NewDetector(
		WithGOOS("linux"),
		WithEnv(envOf(nil)),
		WithExists(func(_ context.Context, candidate string) bool {
			probes.Add(1)
			return candidate == "/bin/sh"
		}),
	)

	_, err := d.Profiles(context.Background(), false)
	require.NoError(t, err)
	first := probes.Load()

	_, err = d.Profiles(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, first, probes.Load(), "cached result reused")

	_, err = d.Profiles(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2*first, probes.Load(), "force re-probes")
}

func TestDetectorCoalescesConcurrentCallers(t *testing.T) {
	var probes atomic.Int32
	release := make(chan struct{})
	d := NewDetector(
		WithGOOS("linux"),
		WithEnv(envOf(nil)),
		WithExists(func(_ context.Context, candidate string) bool {
			probes.Add(1)
			<-release
			return candidate == "/bin/sh"
		}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profiles, err := d.Profiles(context.Background(), false)
			assert.NoError(t, err)
			assert.Len(t, profiles, 1)
		}()
	}

	// every caller is parked on the single in-flight detection
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(len(Candidates("linux", envOf(nil)))), probes.Load())
}

func TestDetectorCallerCancellationIsPrivate(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	d := NewDetector(
		WithGOOS("linux"),
		WithEnv(envOf(nil)),
		WithExists(func(_ context.Context, candidate string) bool {
			if candidate != "/bin/sh" {
				return false
			}
			entered <- struct{}{}
			<-release
			return true
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := d.Profiles(ctx, false)
		first <- err
	}()
	<-entered

	second := make(chan []Profile, 1)
	go func() {
		profiles, err := d.Profiles(context.Background(), false)
		assert.NoError(t, err)
		second <- profiles
	}()

	cancel()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case profiles := <-second:
		require.Len(t, profiles, 1)
		assert.Equal(t, "/bin/sh", profiles[0].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("other caller never got a result")
	}
}

func TestDetectorForceDoesNotJoinUnforcedPass(t *testing.T) {
	var passes atomic.Int32
	release := make(chan struct{})
	defer close(release)
	d := NewDetector(
		WithGOOS("linux"),
		WithEnv(envOf(nil)),
		WithExists(func(_ context.Context, candidate string) bool {
			if candidate != "/bin/sh" {
				return false
			}
			if passes.Add(1) == 1 {
				<-release
			}
			return true
		}),
	)

	go func() { _, _ = d.Profiles(context.Background(), false) }()
	require.Eventually(t, func() bool { return passes.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	forced := make(chan []Profile, 1)
	go func() {
		profiles, err := d.Profiles(context.Background(), true)
		assert.NoError(t, err)
		forced <- profiles
	}()

	select {
	case profiles := <-forced:
		require.Len(t, profiles, 1)
		assert.Equal(t, int32(2), passes.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("forced detection waited on the unforced pass")
	}
}

func TestExecutableExists(t *testing.T) {
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(file, []byte("#!/bin/sh\n"), 0o755))

	assert.True(t, ExecutableExists(ctx, file))
	assert.False(t, ExecutableExists(ctx, filepath.Join(t.TempDir(), "missing")))
	assert.False(t, ExecutableExists(ctx, t.TempDir()), "directories are not executables")
	assert.False(t, ExecutableExists(ctx, ""))
	assert.False(t, ExecutableExists(ctx, "definitely-not-a-real-binary-4f7a"))

	if runtime.GOOS != "windows" {
		assert.True(t, ExecutableExists(ctx, "sh"))
	}
}

func TestInteractiveWrapper(t *testing.T) {
	p := Profile{ID: "bash", Path: "/bin/bash", Args: []string{"-l"}}

	cmd, args, ok := InteractiveWrapper("darwin", p)
	require.True(t, ok)
	assert.Equal(t, "script", cmd)
	assert.Equal(t, []string{"-q", "/dev/null", "/bin/bash", "-l"}, args)

	cmd, args, ok = InteractiveWrapper("linux", p)
	require.True(t, ok)
	assert.Equal(t, "script", cmd)
	assert.Equal(t, []string{"-q", "-f", "-c", "'/bin/bash' '-l'", "/dev/null"}, args)

	_, _, ok = InteractiveWrapper("windows", p)
	assert.False(t, ok)

	_, _, ok = InteractiveWrapper("linux", Profile{})
	assert.False(t, ok)
}

func TestQuoteForShell(t *testing.T) {
	assert.Equal(t, "''", QuoteForShell(""))
	assert.Equal(t, "'plain'", QuoteForShell("plain"))
	assert.Equal(t, `'it'\''s'`, QuoteForShell("it's"))
}
