package shell

import (
	"path/filepath"
	"strings"
)

// Profile describes a launchable shell. Profiles are immutable once detected.
type Profile struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Path  string   `json:"path"`
	Args  []string `json:"args"`
}

func (p Profile) key() string {
	return p.ID + "|" + p.Path + "|" + strings.Join(p.Args, " ")
}

// Candidates returns the shells worth probing on goos, in preference order.
func Candidates(goos string, getenv func(string) string) []Profile {
	if goos == "windows" {
		return []Profile{
			{ID: "pwsh", Label: "PowerShell 7", Path: "pwsh.exe", Args: []string{"-NoLogo"}},
			{ID: "powershell", Label: "Windows PowerShell", Path: "powershell.exe", Args: []string{"-NoLogo"}},
			{ID: "cmd", Label: "Command Prompt", Path: comSpec(getenv), Args: []string{}},
			{ID: "bash", Label: "Bash", Path: "bash.exe", Args: []string{"-l"}},
		}
	}

	var candidates []Profile
	if envShell := getenv("SHELL"); envShell != "" {
		candidates = append(candidates, Profile{
			ID:    "default",
			Label: "Default (" + filepath.Base(envShell) + ")",
			Path:  envShell,
			Args:  []string{"-l"},
		})
	}
	return append(candidates,
		Profile{ID: "zsh", Label: "zsh", Path: "/bin/zsh", Args: []string{"-l"}},
		Profile{ID: "bash", Label: "bash", Path: "/bin/bash", Args: []string{"-l"}},
		Profile{ID: "sh", Label: "sh", Path: "/bin/sh", Args: []string{}},
		Profile{ID: "fish", Label: "fish", Path: "/opt/homebrew/bin/fish", Args: []string{"-l"}},
		Profile{ID: "fish-usr", Label: "fish", Path: "/usr/local/bin/fish", Args: []string{"-l"}},
		Profile{ID: "pwsh", Label: "PowerShell", Path: "pwsh", Args: []string{"-NoLogo"}},
	)
}

// Fallback is used when no candidate resolves.
func Fallback(goos string, getenv func(string) string) Profile {
	if goos == "windows" {
		return Profile{ID: "cmd", Label: "Command Prompt", Path: comSpec(getenv), Args: []string{}}
	}
	path := getenv("SHELL")
	if path == "" {
		path = "/bin/sh"
	}
	return Profile{ID: "sh", Label: "System Shell", Path: path, Args: []string{}}
}

func comSpec(getenv func(string) string) string {
	if v := getenv("ComSpec"); v != "" {
		return v
	}
	return "cmd.exe"
}

// Dedupe drops profiles whose (id, path, args) repeat, keeping first occurrence.
func Dedupe(profiles []Profile) []Profile {
	seen := make(map[string]struct{}, len(profiles))
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		k := p.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Resolve picks the profile matching profileID, then shellPath, else the first.
// It returns false only when profiles is empty.
func Resolve(profiles []Profile, profileID, shellPath string) (Profile, bool) {
	if len(profiles) == 0 {
		return Profile{}, false
	}
	if profileID != "" {
		for _, p := range profiles {
			if p.ID == profileID {
				return p, true
			}
		}
	}
	if shellPath != "" {
		for _, p := range profiles {
			if p.Path == shellPath {
				return p, true
			}
		}
	}
	return profiles[0], true
}
