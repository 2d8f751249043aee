package protocol

import (
	"encoding/json"

	"collaborative-ide/internal/room"
)

// Outbound is a frame the server sends to a client.
type Outbound interface {
	Event() string
	Payload() any
}

// Relayed is a document frame forwarded verbatim from one peer to the others.
type Relayed struct {
	Kind   string
	UserID room.SessionID
	Data   json.RawMessage
}

type relayedPayload struct {
	UserID room.SessionID  `json:"userId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (m Relayed) Event() string { return m.Kind }
func (m Relayed) Payload() any  { return relayedPayload{UserID: m.UserID, Data: m.Data} }

// Presence announces a peer joining or leaving a document room.
type Presence struct {
	Kind      string
	UserID    room.SessionID
	Timestamp int64
}

type presencePayload struct {
	UserID    room.SessionID `json:"userId"`
	Timestamp int64          `json:"timestamp"`
}

func (m Presence) Event() string { return m.Kind }
func (m Presence) Payload() any  { return presencePayload{UserID: m.UserID, Timestamp: m.Timestamp} }

// FileEvent reports a change inside a watched project.
type FileEvent struct {
	Kind      string
	Path      string
	ProjectID string
}

type fileEventPayload struct {
	Path      string `json:"path"`
	ProjectID string `json:"projectId"`
}

func (m FileEvent) Event() string { return m.Kind }
func (m FileEvent) Payload() any  { return fileEventPayload{Path: m.Path, ProjectID: m.ProjectID} }

// Output is terminal output.
type Output struct {
	Data string
}

func (m Output) Event() string { return EventOutput }
func (m Output) Payload() any  { return m.Data }

type Ready struct{}

func (Ready) Event() string { return EventReady }
func (Ready) Payload() any  { return nil }

type Exit struct {
	Code int
}

func (m Exit) Event() string { return EventExit }
func (m Exit) Payload() any  { return m.Code }

// Encode renders msg as an Envelope.
func Encode(msg Outbound) ([]byte, error) {
	env := Envelope{Event: msg.Event()}
	if p := msg.Payload(); p != nil {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}
