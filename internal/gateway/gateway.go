// Package gateway accepts websocket connections, assigns session ids and
// routes decoded frames to the namespace they were opened on.
//
// Each connection gets one goroutine reading frames and one writing them.
// Frames from a connection are handled in the order they arrive, and every
// broadcast they trigger is queued to each recipient before the next frame
// is read, so a sender's stream reaches every peer in order.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"collaborative-ide/internal/metrics"
	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Namespace handles the frames of one logical channel (sync, fs-watch, terminal).
type Namespace interface {
	Name() string
	Decode(env protocol.Envelope) (protocol.Inbound, error)
	Handle(p Peer, msg protocol.Inbound)
	// Disconnect runs while the session is still registered, so broadcasts
	// made from it can still name the departing peer.
	Disconnect(p Peer)
}

type Options struct {
	SendQueue      int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	// AllowedOrigins restricts browser origins. Empty allows any.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		SendQueue:      256,
		MaxMessageSize: 1 << 20,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// Identity is what the HTTP layer established about the caller before upgrade.
type Identity struct {
	UserID    string
	ProjectID string
}

type Gateway struct {
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu         sync.RWMutex
	namespaces map[string]Namespace
	sessions   map[room.SessionID]*Session
}

func New(opts Options, log zerolog.Logger) *Gateway {
	g := &Gateway{
		opts:       opts,
		log:        log.With().Str("component", "gateway").Logger(),
		namespaces: make(map[string]Namespace),
		sessions:   make(map[room.SessionID]*Session),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (g *Gateway) Register(ns Namespace) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.namespaces[ns.Name()] = ns
}

// Handler serves the named namespace. Identity comes from the gin context
// ("user_id") and the projectId query parameter, which must already have
// passed the access check. Frames naming any other project are ignored.
func (g *Gateway) Handler(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		g.mu.RLock()
		ns, ok := g.namespaces[name]
		g.mu.RUnlock()
		if !ok {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		g.Serve(c.Writer, c.Request, ns, Identity{
			UserID:    c.GetString("user_id"),
			ProjectID: c.Query("projectId"),
		})
	}
}

// Serve upgrades the request and blocks until the connection is gone.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, ns Namespace, id Identity) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	sid := room.SessionID(uuid.NewString())
	s := &Session{
		id:        sid,
		namespace: ns.Name(),
		userID:    id.UserID,
		projectID: id.ProjectID,
		conn:      conn,
		send:      make(chan []byte, g.opts.SendQueue),
		log: g.log.With().
			Str("namespace", ns.Name()).
			Str("session", string(sid)).
			Logger(),
	}

	g.mu.Lock()
	g.sessions[sid] = s
	g.mu.Unlock()
	metrics.SessionsActive.WithLabelValues(ns.Name()).Inc()
	s.log.Info().Str("user", id.UserID).Msg("client connected")

	go s.writePump(g.opts)
	g.readPump(s, ns)
}

func (g *Gateway) readPump(s *Session, ns Namespace) {
	defer g.disconnect(s, ns)

	s.conn.SetReadLimit(g.opts.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			// Not a frame at all: treat like a broken transport.
			metrics.FramesInvalid.WithLabelValues(ns.Name()).Inc()
			s.log.Debug().Err(err).Msg("malformed frame, dropping connection")
			return
		}

		msg, err := ns.Decode(env)
		if err != nil {
			metrics.FramesInvalid.WithLabelValues(ns.Name()).Inc()
			s.log.Debug().Err(err).Str("event", env.Event).Msg("ignoring frame")
			continue
		}
		if scoped, ok := msg.(protocol.Scoped); ok && scoped.Project() != s.projectID {
			metrics.FramesRejected.WithLabelValues(ns.Name()).Inc()
			s.log.Warn().
				Str("event", env.Event).
				Str("project", scoped.Project()).
				Msg("frame addresses another project, ignoring")
			continue
		}
		metrics.FramesReceived.WithLabelValues(ns.Name(), env.Event).Inc()
		ns.Handle(s, msg)
	}
}

func (g *Gateway) disconnect(s *Session, ns Namespace) {
	ns.Disconnect(s)

	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()
	s.close()

	metrics.SessionsActive.WithLabelValues(ns.Name()).Dec()
	s.log.Info().Msg("client disconnected")
}

// Send queues msg for one session. Unknown or closed sessions are ignored.
func (g *Gateway) Send(id room.SessionID, msg protocol.Outbound) {
	g.mu.RLock()
	s := g.sessions[id]
	g.mu.RUnlock()
	if s == nil {
		return
	}
	s.Send(msg)
}

// Broadcast queues msg for every member of key except exclude. The frame is
// encoded once. Delivery is fire-and-forget.
func (g *Gateway) Broadcast(reg *room.Registry, key room.Key, msg protocol.Outbound, exclude room.SessionID) {
	targets := reg.Members(key, exclude)
	if len(targets) == 0 {
		return
	}

	frame, err := protocol.Encode(msg)
	if err != nil {
		g.log.Error().Err(err).Str("event", msg.Event()).Msg("encode frame")
		return
	}
	metrics.FanoutTargets.Observe(float64(len(targets)))

	g.mu.RLock()
	sessions := make([]*Session, 0, len(targets))
	for _, id := range targets {
		if s, ok := g.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	g.mu.RUnlock()

	for _, s := range sessions {
		s.push(frame)
	}
}

// Revoke closes the sessions userID holds on projectID, or every session on
// projectID when userID is empty. It returns how many were closed.
func (g *Gateway) Revoke(projectID, userID string) int {
	g.mu.RLock()
	var targets []*Session
	for _, s := range g.sessions {
		if s.projectID == projectID && (userID == "" || s.userID == userID) {
			targets = append(targets, s)
		}
	}
	g.mu.RUnlock()

	for _, s := range targets {
		s.log.Info().Msg("access revoked, closing session")
		s.close()
	}
	return len(targets)
}

// SessionCount is the number of live sessions across all namespaces.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Shutdown closes every session and waits for their cleanup to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.RLock()
	for _, s := range g.sessions {
		s.close()
	}
	g.mu.RUnlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for g.SessionCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
