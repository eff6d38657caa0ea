// Package terminal exposes the terminal registry over the bridge.
//
// Sessions belong to the connection that created them; write, resize and
// kill from any other connection are no-ops. Output and exit travel as
// terminal:data and terminal:exit events, not as responses.
//
// Tools:
//   - terminal.listProfiles: detected shells and PTY availability
//   - terminal.create: start a session
//   - terminal.write: send input (fire-and-forget)
//   - terminal.resize: resize a PTY session (fire-and-forget)
//   - terminal.kill: terminate a session
//   - terminal.sessions: list this connection's live sessions
package terminal
