// Package session manages the lifecycle of UI connections.
//
// Every bridge connection is opened here and receives a ClientID. Components
// that keep per-client state (watch states, terminal sessions, extension
// runtimes) register a release hook; closing a connection runs every hook
// in registration order so nothing outlives the client that created it.
//
// Example Usage:
//
//	sessions := session.NewManager(logger, metrics)
//	sessions.OnRelease("terminal", terminals.ReleaseClient)
//	conn, err := sessions.Open(ctx, r.RemoteAddr)
//	defer sessions.Close(conn.ID)
package session
