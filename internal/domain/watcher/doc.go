// Package watcher keeps each UI client informed about changes under its
// workspace root.
//
// A client has at most one watch state. A state starts in recursive mode when
// the backend can watch the whole tree with one handle and otherwise fans out
// one handle per directory. A failing recursive handle downgrades the state to
// manual fan-out for the rest of its life; only a new Watch call tries
// recursive again.
//
// Manual mode coalesces follow-up work with two single-slot timers:
//   - probe: changed paths are batched and, once the window elapses, any that
//     are now directories are folded into the watch set
//   - rebuild: watcher errors schedule a full rescan; re-arming replaces the
//     pending rescan
//
// Change events are published immediately, one per native event; consumers
// debounce their own work.
package watcher
