package shell

import "strings"

// QuoteForShell single-quotes value for a POSIX shell command line.
func QuoteForShell(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// InteractiveWrapper returns a script(1) invocation that runs p under a
// pseudo-tty, approximating an interactive terminal for plain child processes.
// ok is false on platforms without a known wrapper form.
func InteractiveWrapper(goos string, p Profile) (command string, args []string, ok bool) {
	if p.Path == "" {
		return "", nil, false
	}

	switch goos {
	case "darwin":
		args = append([]string{"-q", "/dev/null", p.Path}, p.Args...)
		return "script", args, true
	case "linux":
		parts := make([]string, 0, len(p.Args)+1)
		for _, part := range append([]string{p.Path}, p.Args...) {
			parts = append(parts, QuoteForShell(part))
		}
		return "script", []string{"-q", "-f", "-c", strings.Join(parts, " "), "/dev/null"}, true
	default:
		return "", nil, false
	}
}
