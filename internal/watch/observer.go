package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"collaborative-ide/internal/protocol"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultStability is how long a file must stay quiet before its change is reported.
const DefaultStability = 200 * time.Millisecond

type pending struct {
	kind  string
	timer *time.Timer
}

// fsObserver watches a directory tree with fsnotify. Creates and writes are
// held back until the file has been quiet for the stability window, so a
// burst of writes becomes one event.
type fsObserver struct {
	w         *fsnotify.Watcher
	root      string
	stability time.Duration
	log       zerolog.Logger
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	stopped bool
	pending map[string]*pending
	dirs    map[string]struct{}
}

// NewFSObserverFactory builds recursive fsnotify observers.
func NewFSObserverFactory(stability time.Duration, log zerolog.Logger) ObserverFactory {
	return func(dir string) (Observer, error) {
		return newFSObserver(dir, stability, log)
	}
}

func newFSObserver(dir string, stability time.Duration, log zerolog.Logger) (*fsObserver, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	o := &fsObserver{
		w:         w,
		root:      filepath.Clean(dir),
		stability: stability,
		log:       log.With().Str("dir", dir).Logger(),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		pending:   make(map[string]*pending),
		dirs:      make(map[string]struct{}),
	}
	if err := o.addTree(o.root); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	go o.run()
	return o, nil
}

func (o *fsObserver) Events() <-chan Event { return o.events }

func (o *fsObserver) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.done)
		err = o.w.Close()
	})
	return err
}

func (o *fsObserver) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != o.root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := o.w.Add(path); err != nil {
			return err
		}
		o.mu.Lock()
		o.dirs[path] = struct{}{}
		o.mu.Unlock()
		return nil
	})
}

func (o *fsObserver) run() {
	defer o.stop()
	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-o.w.Events:
			if !ok {
				return
			}
			o.handle(ev)
		case err, ok := <-o.w.Errors:
			if !ok {
				return
			}
			o.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// stop cancels pending events and closes the channel. Timers that already
// fired see stopped and send nothing.
func (o *fsObserver) stop() {
	o.mu.Lock()
	o.stopped = true
	for _, p := range o.pending {
		p.timer.Stop()
	}
	o.pending = nil
	o.mu.Unlock()
	close(o.events)
}

func (o *fsObserver) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(o.root, ev.Name)
	if err != nil || rel == "." || ignored(rel) {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := o.addTree(ev.Name); err != nil {
				o.log.Warn().Err(err).Str("path", rel).Msg("watch new directory")
			}
			return
		}
		o.mu.Lock()
		delete(o.dirs, ev.Name)
		o.mu.Unlock()
		o.schedule(rel, protocol.EventFileAdded)
	case ev.Has(fsnotify.Write):
		o.schedule(rel, protocol.EventFileChanged)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if o.isDir(ev.Name) {
			return
		}
		o.cancel(rel)
		o.send(Event{Kind: protocol.EventFileDeleted, Path: rel})
	}
}

// isDir reports whether path was ever watched as a directory. Removed
// directories are reported once by their parent and once by themselves, so
// entries stay until a file takes the name over.
func (o *fsObserver) isDir(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.dirs[path]
	return ok
}

// schedule (re)starts the stability timer for rel. An add followed by writes
// is still reported as an add.
func (o *fsObserver) schedule(rel, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	if p, ok := o.pending[rel]; ok {
		if p.kind != protocol.EventFileAdded {
			p.kind = kind
		}
		p.timer.Reset(o.stability)
		return
	}
	p := &pending{kind: kind}
	p.timer = time.AfterFunc(o.stability, func() { o.flush(rel) })
	o.pending[rel] = p
}

func (o *fsObserver) cancel(rel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pending[rel]; ok {
		p.timer.Stop()
		delete(o.pending, rel)
	}
}

func (o *fsObserver) flush(rel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[rel]
	if !ok || o.stopped {
		return
	}
	delete(o.pending, rel)
	o.emitLocked(Event{Kind: p.kind, Path: rel})
}

func (o *fsObserver) send(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.emitLocked(ev)
}

func (o *fsObserver) emitLocked(ev Event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ignored reports whether any element of rel is a dotfile.
func ignored(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if hidden(part) {
			return true
		}
	}
	return false
}
