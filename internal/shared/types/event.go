package types

import "github.com/thecatthatflies/melius/internal/shared/id"

// Event names relayed from host to UI
const (
	EventWorkspaceChanged = "workspace:changed"
	EventTerminalData     = "terminal:data"
	EventTerminalExit     = "terminal:exit"
	EventBridgeHello      = "bridge:hello"
)

// Event is an asynchronous host-to-UI notification
type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// EventSink delivers events to exactly one UI connection.
// Publishing to a client that has gone away is a silent no-op.
type EventSink interface {
	Publish(client id.ClientID, event Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(client id.ClientID, event Event)

// Publish calls f
func (f EventSinkFunc) Publish(client id.ClientID, event Event) {
	f(client, event)
}

// DiscardSink drops every event
var DiscardSink EventSink = EventSinkFunc(func(id.ClientID, Event) {})

// WorkspaceChanged is the payload of workspace:changed
type WorkspaceChanged struct {
	Path string `json:"path"`
}

// TerminalData is the payload of terminal:data
type TerminalData struct {
	SessionID int64  `json:"sessionId"`
	Data      string `json:"data"`
}

// TerminalExit is the payload of terminal:exit. Signal is null unless the
// process was ended by a signal or failed to spawn.
type TerminalExit struct {
	SessionID int64   `json:"sessionId"`
	ExitCode  int     `json:"exitCode"`
	Signal    *string `json:"signal"`
}
