// Package watch streams file changes of a project's workspace directory to
// every session watching that project.
package watch

import (
	"sync"

	"collaborative-ide/internal/gateway"
	"collaborative-ide/internal/metrics"
	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"
	"collaborative-ide/internal/workspace"

	"github.com/rs/zerolog"
)

// Event is a settled change to one file. Path is relative to the project
// directory and always uses forward slashes.
type Event struct {
	Kind string
	Path string
}

// Observer reports changes under one directory until closed. The Events
// channel is closed once the observer has stopped.
type Observer interface {
	Events() <-chan Event
	Close() error
}

type ObserverFactory func(dir string) (Observer, error)

// Fanout delivers a frame to the members of a room.
type Fanout interface {
	Broadcast(reg *room.Registry, key room.Key, msg protocol.Outbound, exclude room.SessionID)
}

type Relay struct {
	root        string
	rooms       *room.Registry
	out         Fanout
	newObserver ObserverFactory
	log         zerolog.Logger

	mu        sync.Mutex
	observers map[string]Observer
}

func NewRelay(root string, rooms *room.Registry, out Fanout, factory ObserverFactory, log zerolog.Logger) *Relay {
	return &Relay{
		root:        root,
		rooms:       rooms,
		out:         out,
		newObserver: factory,
		log:         log.With().Str("component", "watch").Logger(),
		observers:   make(map[string]Observer),
	}
}

func (r *Relay) Name() string { return protocol.NamespaceWatch }

func (r *Relay) Decode(env protocol.Envelope) (protocol.Inbound, error) {
	return protocol.DecodeWatch(env)
}

func (r *Relay) Handle(p gateway.Peer, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.WatchProject:
		r.ensureObserver(m.ProjectID)
		if joined, _ := r.rooms.Join(room.ProjectKey(m.ProjectID), p.ID()); joined {
			metrics.RoomTransitions.WithLabelValues(protocol.NamespaceWatch, "join").Inc()
		}
	case protocol.UnwatchProject:
		if r.rooms.Leave(room.ProjectKey(m.ProjectID), p.ID()) {
			metrics.RoomTransitions.WithLabelValues(protocol.NamespaceWatch, "leave").Inc()
		}
	default:
		r.log.Debug().Type("message", msg).Msg("unhandled message")
	}
}

func (r *Relay) Disconnect(p gateway.Peer) {
	if _, ok := r.rooms.LeaveAll(p.ID()); ok {
		metrics.RoomTransitions.WithLabelValues(protocol.NamespaceWatch, "disconnect").Inc()
	}
}

// Watching reports whether projectID has a running observer.
func (r *Relay) Watching(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.observers[projectID]
	return ok
}

// Close stops every observer.
func (r *Relay) Close() {
	r.mu.Lock()
	observers := r.observers
	r.observers = make(map[string]Observer)
	r.mu.Unlock()

	for projectID, obs := range observers {
		if err := obs.Close(); err != nil {
			r.log.Warn().Err(err).Str("project", projectID).Msg("close observer")
		}
		metrics.Watchers.Dec()
	}
}

// ensureObserver starts the project's observer unless one is running.
// Failures are not remembered; the next watch request tries again.
func (r *Relay) ensureObserver(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.observers[projectID]; ok {
		return
	}

	log := r.log.With().Str("project", projectID).Logger()
	dir, err := workspace.Ensure(r.root, projectID)
	if err != nil {
		log.Error().Err(err).Msg("prepare project directory")
		return
	}
	obs, err := r.newObserver(dir)
	if err != nil {
		log.Error().Err(err).Msg("start file observer")
		return
	}

	r.observers[projectID] = obs
	metrics.Watchers.Inc()
	log.Info().Str("dir", dir).Msg("watching project")
	go r.pump(projectID, obs)
}

func (r *Relay) pump(projectID string, obs Observer) {
	key := room.ProjectKey(projectID)
	for ev := range obs.Events() {
		r.out.Broadcast(r.rooms, key, protocol.FileEvent{
			Kind:      ev.Kind,
			Path:      ev.Path,
			ProjectID: projectID,
		}, "")
		metrics.FileEvents.WithLabelValues(ev.Kind).Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observers[projectID] == obs {
		delete(r.observers, projectID)
		metrics.Watchers.Dec()
		r.log.Info().Str("project", projectID).Msg("file observer stopped")
	}
}
