package room

import (
	"sync"
)

// SessionID identifies one live connection. Assigned by the gateway.
type SessionID string

// Key identifies a room: a document (project + file) or a whole project.
type Key string

// DocumentKey is the room for one shared document.
func DocumentKey(projectID, fileID string) Key {
	return Key(projectID + ":" + fileID)
}

// ProjectKey is the room for a project's file change stream.
func ProjectKey(projectID string) Key {
	return Key(projectID)
}

// Registry tracks which sessions are in which room. A session belongs to at
// most one room per registry; the gateway keeps one registry per namespace.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[Key]map[SessionID]struct{}
	current map[SessionID]Key
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[Key]map[SessionID]struct{}),
		current: make(map[SessionID]Key),
	}
}

// Join adds id to key. joined is false when id was already a member.
// If id was in another room, that membership is dropped and its key is
// returned as previous.
func (r *Registry) Join(key Key, id SessionID) (joined bool, previous Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.current[id]; ok {
		if cur == key {
			return false, ""
		}
		r.remove(cur, id)
		previous = cur
	}

	members, ok := r.rooms[key]
	if !ok {
		members = make(map[SessionID]struct{})
		r.rooms[key] = members
	}
	members[id] = struct{}{}
	r.current[id] = key
	return true, previous
}

// Leave removes id from key. Reports whether a membership was removed.
func (r *Registry) Leave(key Key, id SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.current[id]; !ok || cur != key {
		return false
	}
	r.remove(key, id)
	return true
}

// LeaveAll drops whatever membership id holds. Safe for unknown sessions.
func (r *Registry) LeaveAll(id SessionID) (Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.current[id]
	if !ok {
		return "", false
	}
	r.remove(cur, id)
	return cur, true
}

// remove expects r.mu held for writing.
func (r *Registry) remove(key Key, id SessionID) {
	delete(r.current, id)
	members, ok := r.rooms[key]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, key)
	}
}

// Members returns a snapshot of key's members without exclude.
func (r *Registry) Members(key Key, exclude SessionID) []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[key]
	out := make([]SessionID, 0, len(members))
	for id := range members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) RoomOf(id SessionID) (Key, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.current[id]
	return key, ok
}

// Size is the member count of key.
func (r *Registry) Size(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}

// Len is the number of non-empty rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
