package exchange

import (
	"context"
	"errors"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/darkprince558/burrow/internal/session"
)

// ErrNoClipboard is returned on systems without a clipboard utility.
var ErrNoClipboard = errors.New("clipboard not available on this system")

var (
	clipboardWrite = clipboard.WriteAll
	clipboardRead  = clipboard.ReadAll
	clipboardOK    = func() bool { return !clipboard.Unsupported }
)

// Clipboard carries a token through the system clipboard.
type Clipboard struct{}

func (Clipboard) WriteToken(ctx context.Context, kind session.TokenKind, token string) (string, error) {
	if !clipboardOK() {
		return "", ErrNoClipboard
	}
	if err := clipboardWrite(token); err != nil {
		return "", err
	}
	return "clipboard", nil
}

// ReadToken treats an empty clipboard as the user having nothing to paste.
func (Clipboard) ReadToken(ctx context.Context) (string, string, error) {
	if !clipboardOK() {
		return "", "", ErrNoClipboard
	}
	text, err := clipboardRead()
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", "", session.ErrCancelled
	}
	return text, "clipboard", nil
}
