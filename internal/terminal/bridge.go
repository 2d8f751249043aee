// Package terminal gives each session of the terminal namespace its own shell
// running in the project's workspace directory.
package terminal

import (
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"collaborative-ide/internal/gateway"
	"collaborative-ide/internal/metrics"
	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"
	"collaborative-ide/internal/workspace"

	"github.com/rs/zerolog"
)

const (
	defaultCols = 80
	defaultRows = 30
	fallback    = "/bin/sh"
)

// DefaultShells lists the shells tried in order. An empty entry stands for $SHELL.
var DefaultShells = []string{"/bin/bash", "/bin/sh", "", "/bin/zsh", "/usr/bin/bash", "/usr/bin/sh"}

type terminal struct {
	proc Process
	peer gateway.Peer
}

type Bridge struct {
	root    string
	spawner Spawner
	shells  []string
	exists  func(path string) bool
	log     zerolog.Logger

	mu    sync.Mutex
	terms map[room.SessionID]*terminal
}

func NewBridge(root string, spawner Spawner, log zerolog.Logger) *Bridge {
	return &Bridge{
		root:    root,
		spawner: spawner,
		shells:  DefaultShells,
		exists:  executable,
		log:     log.With().Str("component", "terminal").Logger(),
		terms:   make(map[room.SessionID]*terminal),
	}
}

func (b *Bridge) Name() string { return protocol.NamespaceTerminal }

func (b *Bridge) Decode(env protocol.Envelope) (protocol.Inbound, error) {
	return protocol.DecodeTerminal(env)
}

func (b *Bridge) Handle(p gateway.Peer, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.CreateTerminal:
		b.create(p, m.ProjectID)
	case protocol.Input:
		if t := b.lookup(p.ID()); t != nil {
			if _, err := t.proc.Write([]byte(m.Data)); err != nil {
				b.log.Debug().Err(err).Str("session", string(p.ID())).Msg("write input")
			}
		}
	case protocol.Resize:
		if t := b.lookup(p.ID()); t != nil {
			if err := t.proc.Resize(m.Cols, m.Rows); err != nil {
				b.log.Debug().Err(err).Str("session", string(p.ID())).Msg("resize")
			}
		}
	default:
		b.log.Debug().Type("message", msg).Msg("unhandled message")
	}
}

func (b *Bridge) Disconnect(p gateway.Peer) {
	b.kill(p.ID())
}

// Close kills every running shell.
func (b *Bridge) Close() {
	b.mu.Lock()
	terms := b.terms
	b.terms = make(map[room.SessionID]*terminal)
	b.mu.Unlock()

	for id, t := range terms {
		if err := t.proc.Kill(); err != nil {
			b.log.Warn().Err(err).Str("session", string(id)).Msg("kill shell")
		}
		metrics.Terminals.Dec()
	}
}

// Running is the number of live shells.
func (b *Bridge) Running() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.terms)
}

func (b *Bridge) create(p gateway.Peer, projectID string) {
	b.kill(p.ID())
	log := b.log.With().Str("session", string(p.ID())).Str("project", projectID).Logger()

	dir, err := workspace.Ensure(b.root, projectID)
	if err != nil {
		log.Error().Err(err).Msg("prepare project directory")
		b.fail(p, "Could not open project directory")
		return
	}

	shell := b.pickShell()
	if shell == "" {
		log.Error().Msg("no shell found")
		b.fail(p, "No shell found on system")
		return
	}

	cmd := Command{Shell: shell, Dir: dir, Env: cleanEnv(shell), Cols: defaultCols, Rows: defaultRows}
	proc, err := b.spawner.Spawn(cmd)
	if err != nil && shell != fallback {
		log.Warn().Err(err).Str("shell", shell).Msg("spawn failed, trying fallback")
		cmd.Shell, cmd.Env = fallback, cleanEnv(fallback)
		proc, err = b.spawner.Spawn(cmd)
	}
	if err != nil {
		log.Error().Err(err).Msg("spawn shell")
		b.fail(p, "Could not start terminal")
		return
	}

	t := &terminal{proc: proc, peer: p}
	b.mu.Lock()
	b.terms[p.ID()] = t
	b.mu.Unlock()
	metrics.Terminals.Inc()
	log.Info().Str("shell", cmd.Shell).Str("dir", dir).Msg("terminal started")

	p.Send(protocol.Ready{})
	go b.pump(t)
}

// pump streams output until the shell exits. Exit is reported only if the
// terminal was not replaced or killed in the meantime.
func (b *Bridge) pump(t *terminal) {
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := t.proc.Read(buf)
		if n > 0 {
			var out []byte
			out, carry = splitUTF8(append(carry, buf[:n]...))
			if len(out) > 0 {
				t.peer.Send(protocol.Output{Data: string(out)})
			}
		}
		if err != nil {
			break
		}
	}
	if len(carry) > 0 {
		t.peer.Send(protocol.Output{Data: string(carry)})
	}

	code, err := t.proc.Wait()
	if err != nil {
		b.log.Debug().Err(err).Str("session", string(t.peer.ID())).Msg("wait shell")
	}

	b.mu.Lock()
	current := b.terms[t.peer.ID()] == t
	if current {
		delete(b.terms, t.peer.ID())
	}
	b.mu.Unlock()
	if !current {
		return
	}
	metrics.Terminals.Dec()
	b.log.Info().Str("session", string(t.peer.ID())).Int("code", code).Msg("terminal exited")
	t.peer.Send(protocol.Exit{Code: code})
}

func (b *Bridge) lookup(id room.SessionID) *terminal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terms[id]
}

func (b *Bridge) kill(id room.SessionID) {
	b.mu.Lock()
	t, ok := b.terms[id]
	delete(b.terms, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	if err := t.proc.Kill(); err != nil {
		b.log.Warn().Err(err).Str("session", string(id)).Msg("kill shell")
	}
	metrics.Terminals.Dec()
}

func (b *Bridge) fail(p gateway.Peer, text string) {
	p.Send(protocol.Output{Data: fmt.Sprintf("\r\n\x1b[31mError: %s\x1b[0m\r\n", text)})
	p.Send(protocol.Ready{})
}

func (b *Bridge) pickShell() string {
	for _, s := range b.shells {
		if s == "" {
			s = os.Getenv("SHELL")
		}
		if s != "" && b.exists(s) {
			return s
		}
	}
	return ""
}

func executable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}

func cleanEnv(shell string) []string {
	home, _ := os.UserHomeDir()
	return []string{
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		"HOME=" + home,
		"USER=" + envOr("USER", "user"),
		"SHELL=" + shell,
		"PATH=" + envOr("PATH", "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"),
		"LANG=" + envOr("LANG", "en_US.UTF-8"),
		"LC_ALL=" + envOr("LC_ALL", "en_US.UTF-8"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitUTF8 holds back a trailing partial rune so output frames are valid text.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], append([]byte(nil), b[i:]...)
	}
	return b, nil
}
