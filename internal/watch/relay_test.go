package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	to  room.SessionID
	msg protocol.Outbound
}

type recorder struct {
	mu  sync.Mutex
	got []delivery
}

func (f *recorder) Broadcast(reg *room.Registry, key room.Key, msg protocol.Outbound, exclude room.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range reg.Members(key, exclude) {
		f.got = append(f.got, delivery{to: id, msg: msg})
	}
}

func (f *recorder) deliveries() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.got...)
}

type fakeObserver struct {
	events chan Event
	once   sync.Once
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{events: make(chan Event, 8)}
}

func (o *fakeObserver) Events() <-chan Event { return o.events }

func (o *fakeObserver) Close() error {
	o.once.Do(func() { close(o.events) })
	return nil
}

type fakePeer struct {
	id room.SessionID
}

func (p fakePeer) ID() room.SessionID         { return p.id }
func (p fakePeer) UserID() string             { return "user" }
func (p fakePeer) ProjectID() string          { return "proj1" }
func (p fakePeer) Send(msg protocol.Outbound) {}

type fixture struct {
	relay   *Relay
	rooms   *room.Registry
	rec     *recorder
	created atomic.Int32
	fail    atomic.Bool

	mu        sync.Mutex
	observers map[string]*fakeObserver
}

func setup(t *testing.T) *fixture {
	f := &fixture{
		rooms:     room.NewRegistry(),
		rec:       &recorder{},
		observers: make(map[string]*fakeObserver),
	}
	factory := func(dir string) (Observer, error) {
		if f.fail.Load() {
			return nil, errors.New("no inotify instances left")
		}
		f.created.Add(1)
		obs := newFakeObserver()
		f.mu.Lock()
		f.observers[filepath.Base(dir)] = obs
		f.mu.Unlock()
		return obs, nil
	}
	f.relay = NewRelay(t.TempDir(), f.rooms, f.rec, factory, zerolog.Nop())
	t.Cleanup(f.relay.Close)
	return f
}

func (f *fixture) observer(t *testing.T, projectID string) *fakeObserver {
	f.mu.Lock()
	defer f.mu.Unlock()
	obs, ok := f.observers[projectID]
	require.True(t, ok, "no observer for %s", projectID)
	return obs
}

func watch(r *Relay, id room.SessionID, projectID string) {
	r.Handle(fakePeer{id: id}, protocol.WatchProject{ProjectID: projectID})
}

// Both watchers of proj1 receive the change, the proj2 watcher does not.
func TestWatch_BroadcastsToProjectRoom(t *testing.T) {
	f := setup(t)
	watch(f.relay, "A", "proj1")
	watch(f.relay, "B", "proj1")
	watch(f.relay, "C", "proj2")

	f.observer(t, "proj1").events <- Event{Kind: protocol.EventFileChanged, Path: "src/a.ts"}

	require.Eventually(t, func() bool { return len(f.rec.deliveries()) == 2 }, time.Second, 5*time.Millisecond)
	want := protocol.FileEvent{Kind: protocol.EventFileChanged, Path: "src/a.ts", ProjectID: "proj1"}
	var to []room.SessionID
	for _, d := range f.rec.deliveries() {
		assert.Equal(t, want, d.msg)
		to = append(to, d.to)
	}
	assert.ElementsMatch(t, []room.SessionID{"A", "B"}, to)
}

// A session watches one project at a time; a second watch moves it.
func TestWatch_SingleProjectPerSession(t *testing.T) {
	f := setup(t)
	watch(f.relay, "A", "proj1")
	watch(f.relay, "A", "proj2")

	key, ok := f.rooms.RoomOf("A")
	require.True(t, ok)
	assert.Equal(t, room.ProjectKey("proj2"), key)
	assert.Zero(t, f.rooms.Size(room.ProjectKey("proj1")))

	f.observer(t, "proj1").events <- Event{Kind: protocol.EventFileAdded, Path: "old.txt"}
	f.observer(t, "proj2").events <- Event{Kind: protocol.EventFileAdded, Path: "new.txt"}

	require.Eventually(t, func() bool { return len(f.rec.deliveries()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	got := f.rec.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, room.SessionID("A"), got[0].to)
	assert.Equal(t, "new.txt", got[0].msg.(protocol.FileEvent).Path)
}

func TestWatch_OneObserverPerProject(t *testing.T) {
	f := setup(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			watch(f.relay, room.SessionID(rune('a'+i)), "proj1")
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.created.Load())
	assert.Equal(t, 20, f.rooms.Size(room.ProjectKey("proj1")))
	assert.True(t, f.relay.Watching("proj1"))
}

func TestWatch_ObserverFailureRetried(t *testing.T) {
	f := setup(t)
	f.fail.Store(true)

	watch(f.relay, "A", "proj1")
	assert.False(t, f.relay.Watching("proj1"))
	assert.Equal(t, 1, f.rooms.Size(room.ProjectKey("proj1")))

	f.fail.Store(false)
	watch(f.relay, "B", "proj1")
	assert.True(t, f.relay.Watching("proj1"))
	assert.EqualValues(t, 1, f.created.Load())
}

func TestWatch_InvalidProjectID(t *testing.T) {
	f := setup(t)
	watch(f.relay, "A", "..")
	assert.False(t, f.relay.Watching(".."))
	assert.Zero(t, f.created.Load())
}

func TestUnwatch_And_Disconnect(t *testing.T) {
	f := setup(t)
	watch(f.relay, "A", "proj1")
	watch(f.relay, "B", "proj1")

	f.relay.Handle(fakePeer{id: "A"}, protocol.UnwatchProject{ProjectID: "proj1"})
	f.relay.Disconnect(fakePeer{id: "B"})
	f.relay.Disconnect(fakePeer{id: "never-joined"})

	assert.Zero(t, f.rooms.Size(room.ProjectKey("proj1")))

	f.observer(t, "proj1").events <- Event{Kind: protocol.EventFileAdded, Path: "x"}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.rec.deliveries())
}

func TestWatch_ObserverStopsThenRestarts(t *testing.T) {
	f := setup(t)
	watch(f.relay, "A", "proj1")
	require.NoError(t, f.observer(t, "proj1").Close())

	require.Eventually(t, func() bool { return !f.relay.Watching("proj1") }, time.Second, 5*time.Millisecond)

	watch(f.relay, "A", "proj1")
	assert.True(t, f.relay.Watching("proj1"))
	assert.EqualValues(t, 2, f.created.Load())
}

func TestClose_StopsObservers(t *testing.T) {
	f := setup(t)
	watch(f.relay, "A", "proj1")
	watch(f.relay, "A", "proj2")

	f.relay.Close()

	assert.False(t, f.relay.Watching("proj1"))
	assert.False(t, f.relay.Watching("proj2"))
	_, open := <-f.observer(t, "proj1").events
	assert.False(t, open)
}
