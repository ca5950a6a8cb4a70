package backend

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkprince558/burrow/internal/session"
)

func TestTokenRoundTrip(t *testing.T) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}
	token, err := EncodeToken(desc)
	require.NoError(t, err)

	got, err := DecodeToken("  "+token+"\n", webrtc.SDPTypeOffer)
	require.NoError(t, err)
	assert.Equal(t, desc, got)
}

func TestDecodeTokenRejects(t *testing.T) {
	answer, err := EncodeToken(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"})
	require.NoError(t, err)
	noSDP, err := EncodeToken(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "OFFER_ABC!!"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"wrong half", answer},
		{"no sdp", noSDP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToken(tt.token, webrtc.SDPTypeOffer)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestICEServers(t *testing.T) {
	servers, err := ICEServers([]string{DefaultSTUNServer, "turn:turn.example.com:3478?transport=tcp"}, "user", "pass")
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, []string{DefaultSTUNServer}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
	assert.Equal(t, "user", servers[1].Username)
	assert.Equal(t, "pass", servers[1].Credential)

	_, err = ICEServers([]string{"http://example.com"}, "", "")
	assert.Error(t, err)

	_, err = ICEServers([]string{"turn:turn.example.com"}, "", "")
	assert.Error(t, err)

	servers, err = ICEServers(nil, "", "")
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestNegotiation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	host := New(Options{})
	defer host.Close()
	joiner := New(Options{})
	defer joiner.Close()

	offer, err := host.CreateOffer(ctx, session.Endpoints{PeerAddress: "127.0.0.1:1"})
	require.NoError(t, err)
	desc, err := DecodeToken(offer, webrtc.SDPTypeOffer)
	require.NoError(t, err)
	assert.Contains(t, desc.SDP, "a=ice-ufrag")

	answer, err := joiner.AcceptOffer(ctx, offer, session.Endpoints{LocalPort: "0"})
	require.NoError(t, err)
	_, err = DecodeToken(answer, webrtc.SDPTypeAnswer)
	require.NoError(t, err)

	require.NoError(t, host.AcceptAnswer(ctx, answer))
	assert.ErrorIs(t, host.AcceptAnswer(ctx, answer), ErrNoPendingOffer)
}

func TestAcceptAnswerWithoutOffer(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	answer, err := EncodeToken(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"})
	require.NoError(t, err)
	assert.ErrorIs(t, b.AcceptAnswer(context.Background(), answer), ErrNoPendingOffer)
}

func TestAcceptAnswerRejectsOffer(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	offer, err := b.CreateOffer(context.Background(), session.Endpoints{})
	require.NoError(t, err)
	assert.ErrorIs(t, b.AcceptAnswer(context.Background(), offer), ErrMalformedToken)
}

func TestAcceptOfferMalformed(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	_, err := b.AcceptOffer(context.Background(), "OFFER_ABC", session.Endpoints{})
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestClosedBackend(t *testing.T) {
	b := New(Options{})
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.CreateOffer(context.Background(), session.Endpoints{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribeCancel(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	var got []session.Event
	cancel := b.Subscribe(func(ev session.Event) { got = append(got, ev) })
	b.emit(session.LogEvent("one"))
	cancel()
	cancel()
	b.emit(session.LogEvent("two"))

	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Message)
}

type fakeChannel struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, b := range c.sent {
		out = append(out, b...)
	}
	return string(out)
}

func TestJoinerProxyFanOut(t *testing.T) {
	ch := &fakeChannel{}
	p, err := listenJoiner("0", ch)
	require.NoError(t, err)
	defer p.Close()
	go p.serve()

	a, err := net.Dial("tcp", p.Addr())
	require.NoError(t, err)
	defer a.Close()
	b, err := net.Dial("tcp", p.Addr())
	require.NoError(t, err)
	defer b.Close()

	require.Eventually(t, func() bool { return p.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	p.deliver([]byte("hello"))
	for _, c := range []net.Conn{a, b} {
		buf := make([]byte, 5)
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err := io.ReadFull(c, buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))
	}

	_, err = a.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return ch.joined() == "ping" }, 2*time.Second, 10*time.Millisecond)

	stopped := false
	p.mu.Lock()
	p.stop = func() { stopped = true }
	p.mu.Unlock()

	require.NoError(t, p.Close())
	assert.True(t, stopped)
	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = a.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestHostProxy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	p, err := dialHost(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer p.Close()

	server := <-accepted
	defer server.Close()

	ch := &fakeChannel{}
	done := make(chan struct{})
	go func() {
		p.pump(ch)
		close(done)
	}()

	_, err = server.Write([]byte("pong"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return ch.joined() == "pong" }, 2*time.Second, 10*time.Millisecond)

	p.deliver([]byte("hi"))
	buf := make([]byte, 2)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))

	server.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after the server closed")
	}
}

func TestDialHostRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = dialHost(context.Background(), addr, time.Second)
	assert.Error(t, err)
}
