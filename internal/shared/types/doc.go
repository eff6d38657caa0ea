// Package types provides shared data structures for the host runtime.
//
// Core Types:
//   - Service, Tool, Parameter: bridge operation catalogue
//   - Context: per-request identity (the owning ClientID)
//   - Result: standard operation result
//   - Event, EventSink: asynchronous host-to-UI notifications
//
// Example Usage:
//
//	sink.Publish(clientID, types.Event{
//	    Name:    types.EventTerminalData,
//	    Payload: types.TerminalData{SessionID: 3, Data: "$ "},
//	})
package types
