package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/darkprince558/burrow/internal/notify"
	"github.com/darkprince558/burrow/internal/session"
)

// StatusBadge renders the handshake status as a colored pill.
func StatusBadge(st session.Status) string {
	color := ColorSubtext
	switch st {
	case session.StatusConnected:
		color = ColorSuccess
	case session.StatusError:
		color = ColorError
	case session.StatusConnecting, session.StatusWaitingForAnswer, session.StatusWaitingForHost:
		color = ColorWarning
	}
	return badgeBase.Background(color).Render(strings.ToUpper(st.String()))
}

// Truncate shortens s to width cells, marking the cut with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

// ViewToken renders the token this side has to hand over, if any.
func ViewToken(token string, kind session.TokenKind, width int) string {
	if token == "" {
		return HelpStyle.Render("No token yet")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("Share this %s token (%d chars):", kind, len(token)),
		TokenStyle.Render(Truncate(token, width)),
	)
}

// ViewLog formats transcript lines for the log viewport.
func ViewLog(entries []session.LogEntry) string {
	if len(entries) == 0 {
		return HelpStyle.Render("Nothing logged yet")
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		line := e.Message
		if strings.HasPrefix(line, "Error") {
			line = ErrorStyle.Render(line)
		}
		lines[i] = LogTimeStyle.Render(e.Time.Format("15:04:05")) + " " + line
	}
	return strings.Join(lines, "\n")
}

// ViewNotifications renders the queue newest first.
func ViewNotifications(items []notify.Notification, width int) string {
	if len(items) == 0 {
		return ""
	}
	out := make([]string, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		n := items[i]
		style := ToastStyle
		if n.Severity == notify.SeverityDestructive {
			style = DestructiveToastStyle
		}
		body := lipgloss.NewStyle().Bold(true).Render(n.Title)
		if n.Description != "" {
			body += "\n" + Truncate(n.Description, width)
		}
		out = append(out, style.Render(body))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}
