package session

import "context"

// Endpoints carries the user's tunnel configuration into the backend. The
// host side forwards tunnel traffic to PeerAddress, the joiner side listens
// on LocalPort.
type Endpoints struct {
	PeerAddress string
	LocalPort   string
}

// EventKind tells log lines and status changes apart.
type EventKind int

const (
	EventLog EventKind = iota
	EventStatus
)

// Event is pushed by the backend at any time, independent of handshake calls.
type Event struct {
	Kind    EventKind
	Message string
	Status  Status
}

func LogEvent(msg string) Event { return Event{Kind: EventLog, Message: msg} }

func StatusEvent(s Status) Event { return Event{Kind: EventStatus, Status: s} }

// Gateway is the signaling/transport backend. Tokens are opaque to the
// session; only the gateway knows how to read them.
type Gateway interface {
	CreateOffer(ctx context.Context, ep Endpoints) (offer string, err error)
	AcceptOffer(ctx context.Context, offer string, ep Endpoints) (answer string, err error)
	AcceptAnswer(ctx context.Context, answer string) error

	// Subscribe registers fn for pushed events. The returned func removes it
	// and is safe to call more than once.
	Subscribe(fn func(Event)) (cancel func())
}
