package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/darkprince558/burrow/internal/notify"
)

// TokenKind names which half of the handshake a token is.
type TokenKind string

const (
	KindOffer  TokenKind = "offer"
	KindAnswer TokenKind = "answer"
)

// Sink is a user-chosen destination for a token, such as a file or the
// clipboard. It returns a description of where the token went, or
// ErrCancelled when the user picked nothing.
type Sink interface {
	WriteToken(ctx context.Context, kind TokenKind, token string) (where string, err error)
}

// Source is a user-chosen origin for a token. It returns ErrCancelled when
// the user picked nothing.
type Source interface {
	ReadToken(ctx context.Context) (text, where string, err error)
}

// ExportToken writes token to sink. It never changes handshake state and
// records exactly one log line per call, plus one notification unless the
// user cancelled.
func (s *Session) ExportToken(ctx context.Context, token string, kind TokenKind, sink Sink) error {
	if token == "" {
		err := &IoError{Op: "export " + string(kind), Err: fmt.Errorf("no %s token to export", kind)}
		s.recordIO(fmt.Sprintf("Error exporting: %v", err.Err), "Export failed", err)
		return err
	}

	where, err := sink.WriteToken(ctx, kind, token)
	switch {
	case errors.Is(err, ErrCancelled):
		s.recordIO("Export cancelled", "", nil)
		return nil
	case err != nil:
		ioErr := &IoError{Op: "export " + string(kind), Err: err}
		s.recordIO(fmt.Sprintf("Error exporting: %v", err), "Export failed", ioErr)
		return ioErr
	}

	s.recordIO(fmt.Sprintf("Token exported to %s", where), "Token exported", nil,
		fmt.Sprintf("The %s token was saved to %s", kind, where))
	return nil
}

// ImportToken reads a token from src and hands it back to the caller. The
// token is never applied to the session; the caller decides whether to
// accept it. A cancelled selection returns an empty string and no error.
func (s *Session) ImportToken(ctx context.Context, src Source) (string, error) {
	text, where, err := src.ReadToken(ctx)
	switch {
	case errors.Is(err, ErrCancelled):
		s.recordIO("No file selected", "", nil)
		return "", nil
	case err != nil:
		ioErr := &IoError{Op: "import", Err: err}
		s.recordIO(fmt.Sprintf("Error importing: %v", err), "Import failed", ioErr)
		return "", ioErr
	}

	token := strings.TrimSpace(text)
	s.recordIO(fmt.Sprintf("Token imported from %s", where), "Token imported", nil,
		fmt.Sprintf("Read %d characters from %s", len(token), where))
	return token, nil
}

// recordIO appends the log line for an export/import and pushes the
// matching notification. An empty title means no notification.
func (s *Session) recordIO(line, title string, ioErr *IoError, desc ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(line)
	if title == "" {
		return
	}

	n := notify.Notification{Title: title, Severity: notify.SeverityDefault}
	if ioErr != nil {
		n.Severity = notify.SeverityDestructive
		n.Description = ioErr.Err.Error()
		logrus.WithError(ioErr.Err).WithField("session", s.label).Warn(ioErr.Op + " failed")
	} else if len(desc) > 0 {
		n.Description = desc[0]
	}
	s.notes.Push(n)
}
