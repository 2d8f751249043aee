package terminal

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"collaborative-ide/internal/protocol"
	"collaborative-ide/internal/room"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	out    *io.PipeReader
	outW   *io.PipeWriter
	code   int
	exited chan struct{}
	once   sync.Once

	mu     sync.Mutex
	input  []string
	size   [2]uint16
	killed bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{out: r, outW: w, exited: make(chan struct{})}
}

func (p *fakeProcess) Read(b []byte) (int, error) { return p.out.Read(b) }

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = append(p.input, string(b))
	return len(b), nil
}

func (p *fakeProcess) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = [2]uint16{cols, rows}
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(-1)
	return nil
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.code = code
		p.outW.Close()
		close(p.exited)
	})
}

type fakeSpawner struct {
	mu    sync.Mutex
	cmds  []Command
	procs []*fakeProcess
	fail  map[string]bool
}

func (s *fakeSpawner) Spawn(c Command) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, c)
	if s.fail[c.Shell] {
		return nil, errors.New("exec format error")
	}
	p := newFakeProcess()
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[len(s.procs)-1]
}

type inbox struct {
	id room.SessionID

	mu  sync.Mutex
	got []protocol.Outbound
}

func (p *inbox) ID() room.SessionID { return p.id }
func (p *inbox) UserID() string     { return "user" }
func (p *inbox) ProjectID() string  { return "proj1" }

func (p *inbox) Send(msg protocol.Outbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, msg)
}

func (p *inbox) messages() []protocol.Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Outbound(nil), p.got...)
}

func setupBridge(t *testing.T, shells ...string) (*Bridge, *fakeSpawner) {
	sp := &fakeSpawner{fail: map[string]bool{}}
	b := NewBridge(t.TempDir(), sp, zerolog.Nop())
	b.shells = shells
	b.exists = func(path string) bool { return strings.HasPrefix(path, "/bin/") }
	t.Cleanup(b.Close)
	return b, sp
}

func TestCreate_SpawnsShellInProjectDir(t *testing.T) {
	b, sp := setupBridge(t, "/opt/missing", "/bin/bash")
	p := &inbox{id: "s1"}

	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})

	require.Len(t, sp.cmds, 1)
	cmd := sp.cmds[0]
	assert.Equal(t, "/bin/bash", cmd.Shell)
	assert.Equal(t, uint16(80), cmd.Cols)
	assert.Equal(t, uint16(30), cmd.Rows)
	assert.Contains(t, cmd.Env, "TERM=xterm-256color")
	assert.Contains(t, cmd.Env, "SHELL=/bin/bash")
	info, err := os.Stat(cmd.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, []protocol.Outbound{protocol.Ready{}}, p.messages())
	assert.Equal(t, 1, b.Running())
}

func TestOutputInputResizeExit(t *testing.T) {
	b, sp := setupBridge(t, "/bin/sh")
	p := &inbox{id: "s1"}
	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})
	proc := sp.last()

	b.Handle(p, protocol.Input{Data: "ls\r"})
	b.Handle(p, protocol.Resize{Cols: 120, Rows: 40})
	proc.mu.Lock()
	assert.Equal(t, []string{"ls\r"}, proc.input)
	assert.Equal(t, [2]uint16{120, 40}, proc.size)
	proc.mu.Unlock()

	_, err := proc.outW.Write([]byte("main.go\r\n"))
	require.NoError(t, err)
	proc.exit(3)

	require.Eventually(t, func() bool { return len(p.messages()) == 3 }, time.Second, 5*time.Millisecond)
	msgs := p.messages()
	assert.Equal(t, protocol.Output{Data: "main.go\r\n"}, msgs[1])
	assert.Equal(t, protocol.Exit{Code: 3}, msgs[2])
	assert.Zero(t, b.Running())

	// Input after exit is ignored.
	b.Handle(p, protocol.Input{Data: "x"})
}

func TestCreate_NoShell(t *testing.T) {
	b, sp := setupBridge(t, "/opt/none")
	p := &inbox{id: "s1"}

	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})

	assert.Empty(t, sp.cmds)
	msgs := p.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].(protocol.Output).Data, "No shell found")
	assert.Equal(t, protocol.Ready{}, msgs[1])
}

func TestCreate_FallsBackToSh(t *testing.T) {
	b, sp := setupBridge(t, "/bin/zsh")
	sp.fail["/bin/zsh"] = true
	p := &inbox{id: "s1"}

	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})

	require.Len(t, sp.cmds, 2)
	assert.Equal(t, fallback, sp.cmds[1].Shell)
	assert.Equal(t, []protocol.Outbound{protocol.Ready{}}, p.messages())
}

func TestCreate_SpawnFailure(t *testing.T) {
	b, sp := setupBridge(t, "/bin/sh")
	sp.fail["/bin/sh"] = true
	p := &inbox{id: "s1"}

	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})

	msgs := p.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].(protocol.Output).Data, "Could not start terminal")
	assert.Zero(t, b.Running())
}

func TestCreate_ReplacesPrevious(t *testing.T) {
	b, sp := setupBridge(t, "/bin/sh")
	p := &inbox{id: "s1"}

	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})
	first := sp.last()
	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})

	first.mu.Lock()
	assert.True(t, first.killed)
	first.mu.Unlock()
	assert.Equal(t, 1, b.Running())

	// The replaced shell's exit is not reported.
	time.Sleep(20 * time.Millisecond)
	for _, m := range p.messages() {
		assert.NotEqual(t, protocol.EventExit, m.Event())
	}
}

func TestDisconnect_KillsShell(t *testing.T) {
	b, sp := setupBridge(t, "/bin/sh")
	p := &inbox{id: "s1"}
	b.Handle(p, protocol.CreateTerminal{ProjectID: "proj1"})

	b.Disconnect(p)
	b.Disconnect(&inbox{id: "other"})

	proc := sp.last()
	proc.mu.Lock()
	assert.True(t, proc.killed)
	proc.mu.Unlock()
	assert.Zero(t, b.Running())
}

func TestSplitUTF8(t *testing.T) {
	euro := []byte("€") // 3 bytes
	out, rest := splitUTF8(append([]byte("ab"), euro[:2]...))
	assert.Equal(t, "ab", string(out))
	assert.Equal(t, euro[:2], rest)

	out, rest = splitUTF8(append(rest, euro[2]))
	assert.Equal(t, "€", string(out))
	assert.Empty(t, rest)

	out, rest = splitUTF8([]byte("plain"))
	assert.Equal(t, "plain", string(out))
	assert.Empty(t, rest)
}

func TestPTYSpawner(t *testing.T) {
	if !executable("/bin/sh") {
		t.Skip("no /bin/sh")
	}
	proc, err := PTYSpawner{}.Spawn(Command{
		Shell: "/bin/sh",
		Dir:   t.TempDir(),
		Env:   cleanEnv("/bin/sh"),
		Cols:  80,
		Rows:  30,
	})
	require.NoError(t, err)
	require.NoError(t, proc.Resize(100, 40))

	_, err = proc.Write([]byte("echo marker-$((20+22)); exit 7\n"))
	require.NoError(t, err)

	var out strings.Builder
	buf := make([]byte, 1024)
	for {
		n, err := proc.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, code)
	assert.Contains(t, out.String(), "marker-42")
}
