package session

// Status is the handshake state of a Session.
type Status string

const (
	StatusDisconnected     Status = "disconnected"
	StatusConnecting       Status = "connecting"
	StatusWaitingForAnswer Status = "waiting-for-answer"
	StatusWaitingForHost   Status = "waiting-for-host"
	StatusConnected        Status = "connected"
	StatusError            Status = "error"
)

var allStatuses = []Status{
	StatusDisconnected,
	StatusConnecting,
	StatusWaitingForAnswer,
	StatusWaitingForHost,
	StatusConnected,
	StatusError,
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}
