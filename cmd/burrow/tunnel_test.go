package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkprince558/burrow/internal/config"
	"github.com/darkprince558/burrow/internal/session"
	"github.com/darkprince558/burrow/internal/ui"
)

type scriptedGateway struct {
	mu       sync.Mutex
	answered string
}

func (g *scriptedGateway) CreateOffer(context.Context, session.Endpoints) (string, error) {
	return "OFFER_ABC", nil
}

func (g *scriptedGateway) AcceptOffer(_ context.Context, offer string, _ session.Endpoints) (string, error) {
	return "ANSWER_FOR_" + offer, nil
}

func (g *scriptedGateway) AcceptAnswer(_ context.Context, answer string) error {
	g.mu.Lock()
	g.answered = answer
	g.mu.Unlock()
	return nil
}

func (g *scriptedGateway) Subscribe(func(session.Event)) func() { return func() {} }

// syncBuffer is written by the observer and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHeadlessHost(t *testing.T) {
	gw := &scriptedGateway{}
	s := session.New(gw, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- runHeadless(ctx, s, ui.RoleHost, tunnelFlags{}, time.Second,
			strings.NewReader("ANSWER_XYZ\n"), &stdout, &stderr)
	}()

	require.Eventually(t, func() bool { return s.Status() == session.StatusConnected }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "OFFER_ABC\n", stdout.String())
	assert.Contains(t, stderr.String(), "Paste the answer token")
	assert.Contains(t, stderr.String(), "Tunnel established!")
	gw.mu.Lock()
	assert.Equal(t, "ANSWER_XYZ", gw.answered)
	gw.mu.Unlock()
}

func TestHeadlessJoinWithFiles(t *testing.T) {
	dir := t.TempDir()
	offerPath := filepath.Join(dir, "offer.txt")
	answerPath := filepath.Join(dir, "answer.txt")
	require.NoError(t, os.WriteFile(offerPath, []byte("OFFER_ABC\n"), 0o600))

	s := session.New(&scriptedGateway{}, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- runHeadless(ctx, s, ui.RoleJoiner,
			tunnelFlags{tokenIn: offerPath, tokenOut: answerPath}, time.Second,
			strings.NewReader(""), &stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(answerPath)
		return err == nil && strings.TrimSpace(string(data)) == "ANSWER_FOR_OFFER_ABC"
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, session.StatusWaitingForHost, s.Status())
	assert.Contains(t, stdout.String(), "ANSWER_FOR_OFFER_ABC")
	assert.Contains(t, stderr.String(), "Token imported from "+offerPath)
}

func TestHeadlessEmptyOffer(t *testing.T) {
	s := session.New(&scriptedGateway{}, nil)
	defer s.Close()

	var stdout, stderr syncBuffer
	err := runHeadless(context.Background(), s, ui.RoleJoiner, tunnelFlags{}, time.Second,
		strings.NewReader("\n"), &stdout, &stderr)
	assert.ErrorIs(t, err, session.ErrEmptyToken)
	assert.Contains(t, stderr.String(), "No offer provided")
}

func TestEndpointsFromFlags(t *testing.T) {
	c := &config.Config{PeerAddress: "localhost:25565", LocalPort: "25565"}

	ep := endpoints(c, tunnelFlags{})
	assert.Equal(t, session.Endpoints{PeerAddress: "localhost:25565", LocalPort: "25565"}, ep)

	ep = endpoints(c, tunnelFlags{peer: "10.0.0.5:8080", port: "4000"})
	assert.Equal(t, "10.0.0.5:8080", ep.PeerAddress)
	assert.Equal(t, "4000", ep.LocalPort)
}

func TestDoctorReportsBadServers(t *testing.T) {
	c := &config.Config{
		ICEServers:  []string{"http://not-a-stun-server"},
		PeerAddress: "127.0.0.1:1",
		LocalPort:   "0",
	}
	var out bytes.Buffer
	failed := runDoctor(context.Background(), c, 200*time.Millisecond, &out)

	assert.Equal(t, 2, failed)
	assert.Contains(t, out.String(), "FAIL  ice_servers")
	assert.Contains(t, out.String(), "WARN  local server 127.0.0.1:1")
	assert.Contains(t, out.String(), "OK    local port 0 is free")
}
