//go:build !windows

package terminal

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// exitStatus maps a finished process onto the terminal:exit payload.
// Signal deaths report exit code 0 and the signal name.
func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return 0, ""
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 0, unix.SignalName(ws.Signal())
	}
	return max(state.ExitCode(), 0), ""
}

// terminateSignal is the polite shutdown signal for a session
func terminateSignal(mode Mode) os.Signal {
	if mode == ModePTY {
		return unix.SIGHUP
	}
	return unix.SIGTERM
}
