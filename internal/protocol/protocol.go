// Package protocol defines the named-event frames exchanged over the
// websocket namespaces. Every inbound frame is decoded exactly once, at the
// transport boundary, into one of the concrete Inbound types below; the
// handlers behind the gateway switch over those types instead of event names.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"collaborative-ide/internal/room"

	"github.com/go-playground/validator/v10"
)

// Namespaces served by the gateway.
const (
	NamespaceSync     = "sync"
	NamespaceWatch    = "fs-watch"
	NamespaceTerminal = "terminal"
)

// Event names.
const (
	EventJoinRoom   = "join-room"
	EventLeaveRoom  = "leave-room"
	EventSyncStep1  = "sync-step-1"
	EventSyncStep2  = "sync-step-2"
	EventUpdate     = "update"
	EventAwareness  = "awareness"
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"

	EventWatchProject   = "watch-project"
	EventUnwatchProject = "unwatch-project"
	EventFileAdded      = "file-added"
	EventFileChanged    = "file-changed"
	EventFileDeleted    = "file-deleted"

	EventCreateTerminal = "create-terminal"
	EventInput          = "input"
	EventResize         = "resize"
	EventOutput         = "output"
	EventReady          = "ready"
	EventExit           = "exit"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrInvalidFrame = errors.New("invalid frame")
)

// Envelope is the wire form of every frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client frame.
type Inbound interface {
	inbound()
}

// Scoped is implemented by inbound frames that name a project. A session may
// only address the project it was admitted to.
type Scoped interface {
	Project() string
}

type JoinRoom struct {
	ProjectID string `json:"projectId" validate:"required"`
	FileID    string `json:"fileId" validate:"required"`
}

type LeaveRoom struct {
	ProjectID string `json:"projectId" validate:"required"`
	FileID    string `json:"fileId" validate:"required"`
}

// DocumentFrame carries an opaque payload addressed to a document room.
// Data is never decoded by the server.
type DocumentFrame struct {
	ProjectID string          `json:"projectId" validate:"required"`
	FileID    string          `json:"fileId" validate:"required"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Room is the document room the frame is addressed to.
func (f DocumentFrame) Room() room.Key {
	return room.DocumentKey(f.ProjectID, f.FileID)
}

// SyncStep1 carries the sender's state vector.
type SyncStep1 struct{ DocumentFrame }

// SyncStep2 carries the diff computed against a peer's state vector.
type SyncStep2 struct{ DocumentFrame }

// Update carries an incremental local edit.
type Update struct{ DocumentFrame }

// Awareness carries ephemeral cursor/selection state.
type Awareness struct{ DocumentFrame }

type WatchProject struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type UnwatchProject struct {
	ProjectID string `json:"projectId" validate:"required"`
}

type CreateTerminal struct {
	ProjectID string `json:"projectId" validate:"required"`
}

// Input is raw keyboard input for a terminal.
type Input struct {
	Data string
}

type Resize struct {
	Cols uint16 `json:"cols" validate:"min=1"`
	Rows uint16 `json:"rows" validate:"min=1"`
}

func (m JoinRoom) Project() string       { return m.ProjectID }
func (m LeaveRoom) Project() string      { return m.ProjectID }
func (f DocumentFrame) Project() string  { return f.ProjectID }
func (m WatchProject) Project() string   { return m.ProjectID }
func (m UnwatchProject) Project() string { return m.ProjectID }
func (m CreateTerminal) Project() string { return m.ProjectID }

func (JoinRoom) inbound()       {}
func (LeaveRoom) inbound()      {}
func (SyncStep1) inbound()      {}
func (SyncStep2) inbound()      {}
func (Update) inbound()         {}
func (Awareness) inbound()      {}
func (WatchProject) inbound()   {}
func (UnwatchProject) inbound() {}
func (CreateTerminal) inbound() {}
func (Input) inbound()          {}
func (Resize) inbound()         {}

var validate = validator.New()

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("%w: missing data", ErrInvalidFrame)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return v, nil
}

// DecodeSync decodes a frame of the sync namespace.
func DecodeSync(env Envelope) (Inbound, error) {
	switch env.Event {
	case EventJoinRoom:
		return decode[JoinRoom](env.Data)
	case EventLeaveRoom:
		return decode[LeaveRoom](env.Data)
	case EventSyncStep1, EventSyncStep2, EventUpdate, EventAwareness:
		frame, err := decode[DocumentFrame](env.Data)
		if err != nil {
			return nil, err
		}
		switch env.Event {
		case EventSyncStep1:
			return SyncStep1{frame}, nil
		case EventSyncStep2:
			return SyncStep2{frame}, nil
		case EventUpdate:
			return Update{frame}, nil
		}
		return Awareness{frame}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// DecodeWatch decodes a frame of the fs-watch namespace.
func DecodeWatch(env Envelope) (Inbound, error) {
	switch env.Event {
	case EventWatchProject:
		return decode[WatchProject](env.Data)
	case EventUnwatchProject:
		return decode[UnwatchProject](env.Data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// DecodeTerminal decodes a frame of the terminal namespace.
func DecodeTerminal(env Envelope) (Inbound, error) {
	switch env.Event {
	case EventCreateTerminal:
		return decode[CreateTerminal](env.Data)
	case EventResize:
		return decode[Resize](env.Data)
	case EventInput:
		var s string
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return Input{Data: s}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}
