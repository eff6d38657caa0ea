package terminal

import (
	"os"
	"strings"
)

// environment returns the inherited environment with terminal defaults filled in
func environment() []string {
	env := os.Environ()
	if os.Getenv("TERM") == "" {
		env = setEnv(env, "TERM", "xterm-256color")
	}
	if os.Getenv("COLORTERM") == "" {
		env = setEnv(env, "COLORTERM", "truecolor")
	}
	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := env[:0:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}

// workingDirectory returns cwd when it is an existing directory, otherwise
// the process working directory
func workingDirectory(cwd string) string {
	if cwd != "" {
		if info, err := os.Stat(cwd); err == nil && info.IsDir() {
			return cwd
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
