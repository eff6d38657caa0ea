// Package terminal multiplexes interactive shell sessions for UI clients.
//
// Each session is owned by exactly one client. Write, Resize and Kill from
// any other client are silent no-ops, so guessable session ids leak nothing.
//
// A session runs under a pseudo-terminal when one can be started, otherwise
// as a plain child process. On unix hosts the child is wrapped in script(1)
// when available to approximate a tty. Output is relayed verbatim as
// terminal:data events; exit is reported once as terminal:exit, including
// for sessions that were killed or failed to spawn.
package terminal
