// Package realtime carries session events over websocket connections.
package realtime

import (
	"encoding/json"

	"github.com/gogotex/gogotex/backend/collab/internal/session"
)

// Inbound frame types.
const (
	TypeJoinDocument   = "join-document"
	TypeContentChange  = "content-change"
	TypeCompileRequest = "compile-request"
	TypeLeaveDocument  = "leave-document"
	TypeTestEvent      = "test-event"
)

// TypeTestResponse answers a test-event.
const TypeTestResponse = "test-response"

// Frame is the envelope of every message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type joinRequest struct {
	DocumentID string `json:"documentId"`
	Password   string `json:"password,omitempty"`
	Ticket     string `json:"ticket,omitempty"`
}

type changeRequest struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Operation  string `json:"operation,omitempty"`
}

type documentRequest struct {
	DocumentID string `json:"documentId"`
}

type outFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// encode maps a session event onto the wire payload clients expect.
func encode(ev session.Event) outFrame {
	data := map[string]any{}
	switch ev.Type {
	case session.EventDocumentContent:
		data["documentId"] = ev.DocumentID
		data["content"] = ev.Content
		data["title"] = ev.Title
	case session.EventContentChange:
		data["documentId"] = ev.DocumentID
		data["content"] = ev.Content
		data["userId"] = ev.From
		if ev.Operation != "" {
			data["operation"] = ev.Operation
		}
	case session.EventUserJoined, session.EventUserLeft:
		data["userId"] = ev.From
	}
	for k, v := range ev.Payload {
		data[k] = v
	}
	return outFrame{Type: ev.Type, Data: data}
}

func errorEvent(msg string) session.Event {
	return session.Event{Type: session.EventError, Payload: map[string]any{"message": msg}}
}
