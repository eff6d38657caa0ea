// Package ws is the host bridge: one WebSocket per UI connection carrying
// request/response frames and host-to-UI events.
//
// Client frames:
//
//	{"id": "1", "op": "terminal.create", "params": {"cols": 80}}
//
// Responses echo the id:
//
//	{"id": "1", "ok": true, "result": {...}}
//	{"id": "1", "ok": false, "error": "..."}
//
// Frames without an id, and operations marked fire-and-forget, never get
// a response. Events are pushed as {"event": "terminal:data", "payload": {...}}.
package ws
