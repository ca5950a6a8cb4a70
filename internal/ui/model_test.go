package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkprince558/burrow/internal/notify"
	"github.com/darkprince558/burrow/internal/session"
)

type stubGateway struct {
	mu       sync.Mutex
	subs     int
	offerErr error
}

func (g *stubGateway) CreateOffer(context.Context, session.Endpoints) (string, error) {
	if g.offerErr != nil {
		return "", g.offerErr
	}
	return "OFFER_ABC", nil
}

func (g *stubGateway) AcceptOffer(context.Context, string, session.Endpoints) (string, error) {
	return "ANSWER_XYZ", nil
}

func (g *stubGateway) AcceptAnswer(context.Context, string) error { return nil }

func (g *stubGateway) Subscribe(func(session.Event)) func() {
	g.mu.Lock()
	g.subs++
	g.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.subs--
			g.mu.Unlock()
		})
	}
}

func (g *stubGateway) subscribers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subs
}

type memClipboard struct{ text string }

func (c *memClipboard) WriteToken(_ context.Context, _ session.TokenKind, token string) (string, error) {
	c.text = token
	return "clipboard", nil
}

func (c *memClipboard) ReadToken(context.Context) (string, string, error) {
	if c.text == "" {
		return "", "", session.ErrCancelled
	}
	return c.text, "clipboard", nil
}

func newTestModel(t *testing.T, role Role, gw session.Gateway, clip *memClipboard) Model {
	t.Helper()
	notes := notify.NewCenter(notify.WithDefaultTTL(time.Hour))
	t.Cleanup(notes.Close)
	s := session.New(gw, notes, session.WithLabel("brave-otter"))
	t.Cleanup(s.Close)
	if clip == nil {
		clip = &memClipboard{}
	}
	m := NewModel(role, s, Options{Clipboard: clip})
	m.Init()
	return m
}

// step feeds msg to the model and, if it produced a command, runs that
// command once and feeds its result back.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd != nil {
		if out := cmd(); out != nil {
			next, _ = m.Update(out)
			m = next.(Model)
		}
	}
	return m
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func logMessages(m Model) []string {
	var out []string
	for _, e := range m.Snapshot.Log {
		out = append(out, e.Message)
	}
	return out
}

func TestInitSubscribesAndQuitUnsubscribes(t *testing.T) {
	gw := &stubGateway{}
	m := newTestModel(t, RoleHost, gw, nil)
	assert.Equal(t, 1, gw.subscribers())

	next, cmd := m.Update(key(tea.KeyCtrlC))
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.Exit)
	assert.Equal(t, 0, gw.subscribers())
}

func TestHostFlow(t *testing.T) {
	m := newTestModel(t, RoleHost, &stubGateway{}, nil)

	m = step(t, m, key(tea.KeyCtrlG))
	assert.Equal(t, session.StatusWaitingForAnswer, m.Snapshot.Status)
	assert.Equal(t, "OFFER_ABC", m.Snapshot.OfferToken)
	assert.Contains(t, m.View(), "WAITING-FOR-ANSWER")
	assert.Contains(t, m.View(), "OFFER_ABC")

	m = typeText(m, "ANSWER_XYZ")
	m = step(t, m, key(tea.KeyEnter))
	assert.Equal(t, session.StatusConnected, m.Snapshot.Status)
	assert.Contains(t, logMessages(m), "Tunnel established!")
	assert.Empty(t, m.Input.Value())
	assert.NoError(t, m.Err)
}

func TestJoinerFlow(t *testing.T) {
	m := newTestModel(t, RoleJoiner, &stubGateway{}, nil)

	_, cmd := m.Update(key(tea.KeyCtrlG))
	assert.Nil(t, cmd, "joiners cannot generate offers")

	m = typeText(m, "OFFER_ABC")
	m = step(t, m, key(tea.KeyEnter))
	assert.Equal(t, session.StatusWaitingForHost, m.Snapshot.Status)
	assert.Equal(t, "ANSWER_XYZ", m.Snapshot.AnswerToken)
	assert.Contains(t, m.View(), "answer token")
}

func TestEmptyOfferStaysLocal(t *testing.T) {
	m := newTestModel(t, RoleJoiner, &stubGateway{}, nil)
	m = step(t, m, key(tea.KeyEnter))
	assert.Equal(t, session.StatusDisconnected, m.Snapshot.Status)
	assert.Equal(t, []string{"No offer provided"}, logMessages(m))
	assert.ErrorIs(t, m.Err, session.ErrEmptyToken)
}

func TestClipboardCopyAndPaste(t *testing.T) {
	clip := &memClipboard{}
	host := newTestModel(t, RoleHost, &stubGateway{}, clip)
	host = step(t, host, key(tea.KeyCtrlG))
	host = step(t, host, key(tea.KeyCtrlY))
	assert.Equal(t, "OFFER_ABC", clip.text)
	assert.Contains(t, logMessages(host), "Token exported to clipboard")
	require.Len(t, host.Notes, 1)

	joiner := newTestModel(t, RoleJoiner, &stubGateway{}, clip)
	joiner = step(t, joiner, key(tea.KeyCtrlV))
	assert.Equal(t, "OFFER_ABC", joiner.Input.Value())
	assert.Equal(t, session.StatusDisconnected, joiner.Snapshot.Status, "pasting never applies the token")
}

func TestImportCancelled(t *testing.T) {
	m := newTestModel(t, RoleJoiner, &stubGateway{}, nil)

	m = step(t, m, key(tea.KeyCtrlO))
	assert.Equal(t, ModeImportPath, m.Mode)

	m = step(t, m, key(tea.KeyEsc))
	assert.Equal(t, ModeToken, m.Mode)
	assert.Equal(t, []string{"No file selected"}, logMessages(m))
	assert.Empty(t, m.Notes)
}

func TestExportAndImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offer.txt")

	host := newTestModel(t, RoleHost, &stubGateway{}, nil)
	host = step(t, host, key(tea.KeyCtrlG))
	host = step(t, host, key(tea.KeyCtrlS))
	require.Equal(t, ModeExportPath, host.Mode)
	assert.Equal(t, "burrow-offer-brave-otter.txt", host.Input.Value())

	host.Input.SetValue(path)
	host = step(t, host, key(tea.KeyEnter))
	assert.Equal(t, ModeToken, host.Mode)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OFFER_ABC\n", string(data))

	joiner := newTestModel(t, RoleJoiner, &stubGateway{}, nil)
	joiner = step(t, joiner, key(tea.KeyCtrlO))
	joiner.Input.SetValue(path)
	joiner = step(t, joiner, key(tea.KeyEnter))
	assert.Equal(t, "OFFER_ABC", joiner.Input.Value())
	assert.Contains(t, logMessages(joiner), "Token imported from "+path)
}

func TestEndpointEditing(t *testing.T) {
	m := newTestModel(t, RoleJoiner, &stubGateway{}, nil)
	m = step(t, m, key(tea.KeyCtrlE))
	require.Equal(t, ModeEndpoint, m.Mode)
	assert.Equal(t, session.DefaultLocalPort, m.Input.Value())

	m.Input.SetValue("30000")
	m = step(t, m, key(tea.KeyEnter))
	assert.Equal(t, "30000", m.Snapshot.LocalPort)

	m = typeText(m, "OFFER_ABC")
	m = step(t, m, key(tea.KeyEnter))
	m = step(t, m, key(tea.KeyCtrlE))
	assert.ErrorIs(t, m.Err, session.ErrNotEditable)
	assert.Equal(t, ModeToken, m.Mode)
}

func TestFailureShowsNotificationAndDismiss(t *testing.T) {
	m := newTestModel(t, RoleHost, &stubGateway{offerErr: errors.New("ICE gathering timeout")}, nil)

	m = step(t, m, key(tea.KeyCtrlG))
	assert.Equal(t, session.StatusError, m.Snapshot.Status)
	require.Len(t, m.Notes, 1)
	assert.Equal(t, notify.SeverityDestructive, m.Notes[0].Severity)
	assert.Contains(t, m.View(), "ICE gathering timeout")

	m = step(t, m, key(tea.KeyCtrlX))
	assert.Empty(t, m.Notes)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 3))
	assert.Equal(t, "…", Truncate("abcdef", 1))
	assert.Equal(t, "", Truncate("abcdef", 0))
}

func TestStatusBadge(t *testing.T) {
	assert.Contains(t, StatusBadge(session.StatusConnected), "CONNECTED")
	assert.Contains(t, StatusBadge(session.StatusError), "ERROR")
}
