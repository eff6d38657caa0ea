//go:build windows

package terminal

import "os"

func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return 0, ""
	}
	return max(state.ExitCode(), 0), ""
}

func terminateSignal(Mode) os.Signal {
	return os.Kill
}
