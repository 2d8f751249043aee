// Package collab relays CRDT document sync traffic between the sessions
// editing the same document.
//
// The relay never looks inside payloads. It only decides who receives a
// frame: every other member of the document's room, in the order the sender
// produced them. Convergence is the clients' business.
package collab

import (
	"time"

	"collaborative-ide/internal/gateway"
	"collaborative-ide/internal/metrics"
	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"

	"github.com/rs/zerolog"
)

// Fanout delivers a frame to the members of a room.
type Fanout interface {
	Broadcast(reg *room.Registry, key room.Key, msg protocol.Outbound, exclude room.SessionID)
}

type Relay struct {
	rooms *room.Registry
	out   Fanout
	log   zerolog.Logger
	now   func() time.Time
}

func NewRelay(rooms *room.Registry, out Fanout, log zerolog.Logger) *Relay {
	return &Relay{
		rooms: rooms,
		out:   out,
		log:   log.With().Str("component", "collab").Logger(),
		now:   time.Now,
	}
}

func (r *Relay) Name() string { return protocol.NamespaceSync }

func (r *Relay) Decode(env protocol.Envelope) (protocol.Inbound, error) {
	return protocol.DecodeSync(env)
}

func (r *Relay) Handle(p gateway.Peer, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.JoinRoom:
		r.join(p.ID(), room.DocumentKey(m.ProjectID, m.FileID))
	case protocol.LeaveRoom:
		r.leave(p.ID(), room.DocumentKey(m.ProjectID, m.FileID))
	case protocol.SyncStep1:
		r.forward(p.ID(), protocol.EventSyncStep1, m.DocumentFrame)
	case protocol.SyncStep2:
		r.forward(p.ID(), protocol.EventSyncStep2, m.DocumentFrame)
	case protocol.Update:
		r.forward(p.ID(), protocol.EventUpdate, m.DocumentFrame)
	case protocol.Awareness:
		r.forward(p.ID(), protocol.EventAwareness, m.DocumentFrame)
	default:
		r.log.Debug().Type("message", msg).Msg("unhandled message")
	}
}

// Disconnect announces the departure to the session's room, then drops it.
func (r *Relay) Disconnect(p gateway.Peer) {
	key, ok := r.rooms.RoomOf(p.ID())
	if !ok {
		return
	}
	r.announce(protocol.EventUserLeft, key, p.ID())
	r.rooms.LeaveAll(p.ID())
	metrics.RoomTransitions.WithLabelValues(protocol.NamespaceSync, "disconnect").Inc()
}

func (r *Relay) join(id room.SessionID, key room.Key) {
	joined, previous := r.rooms.Join(key, id)
	if previous != "" {
		// Already out of previous; peers there still need to hear about it.
		r.announce(protocol.EventUserLeft, previous, id)
		metrics.RoomTransitions.WithLabelValues(protocol.NamespaceSync, "leave").Inc()
	}
	if !joined {
		return
	}
	r.log.Debug().Str("session", string(id)).Str("room", string(key)).Msg("joined room")
	r.announce(protocol.EventUserJoined, key, id)
	metrics.RoomTransitions.WithLabelValues(protocol.NamespaceSync, "join").Inc()
}

func (r *Relay) leave(id room.SessionID, key room.Key) {
	if cur, ok := r.rooms.RoomOf(id); !ok || cur != key {
		return
	}
	r.announce(protocol.EventUserLeft, key, id)
	r.rooms.Leave(key, id)
	r.log.Debug().Str("session", string(id)).Str("room", string(key)).Msg("left room")
	metrics.RoomTransitions.WithLabelValues(protocol.NamespaceSync, "leave").Inc()
}

// forward relays a document frame to the room it names. Membership of the
// sender is not required.
func (r *Relay) forward(from room.SessionID, event string, f protocol.DocumentFrame) {
	r.out.Broadcast(r.rooms, f.Room(), protocol.Relayed{
		Kind:   event,
		UserID: from,
		Data:   f.Data,
	}, from)
	metrics.FramesRelayed.WithLabelValues(event).Inc()
}

func (r *Relay) announce(event string, key room.Key, id room.SessionID) {
	r.out.Broadcast(r.rooms, key, protocol.Presence{
		Kind:      event,
		UserID:    id,
		Timestamp: r.now().UnixMilli(),
	}, id)
}
