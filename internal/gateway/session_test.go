package gateway

import (
	"testing"

	"collaborative-ide/internal/protocol"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(queue int) *Session {
	return &Session{
		id:        "s1",
		namespace: protocol.NamespaceSync,
		send:      make(chan []byte, queue),
		log:       zerolog.Nop(),
	}
}

func TestPush_FullQueueClosesSession(t *testing.T) {
	s := newTestSession(1)

	s.push([]byte("a"))
	assert.False(t, s.closed)

	s.push([]byte("b"))
	assert.True(t, s.closed)

	// Pushing to a closed session must not panic.
	s.push([]byte("c"))

	frame, ok := <-s.send
	require.True(t, ok)
	assert.Equal(t, "a", string(frame))
	_, ok = <-s.send
	assert.False(t, ok)
}

func TestSend_EncodesFrame(t *testing.T) {
	s := newTestSession(4)
	s.Send(protocol.Exit{Code: 3})

	frame := <-s.send
	assert.JSONEq(t, `{"event":"exit","data":3}`, string(frame))
}

func TestClose_Idempotent(t *testing.T) {
	s := newTestSession(1)
	s.close()
	s.close()
	assert.True(t, s.closed)
}

func TestCheckOrigin(t *testing.T) {
	g := New(Options{AllowedOrigins: []string{"http://localhost:5173"}}, zerolog.Nop())

	req := func(origin string) bool {
		r := httptestRequest(origin)
		return g.checkOrigin(r)
	}
	assert.True(t, req("http://localhost:5173"))
	assert.True(t, req(""))
	assert.False(t, req("http://evil.example"))

	open := New(DefaultOptions(), zerolog.Nop())
	assert.True(t, open.checkOrigin(httptestRequest("http://anything.example")))
}
