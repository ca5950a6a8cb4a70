package session

import "time"

// DefaultLogCapacity bounds the transcript of one handshake attempt.
const DefaultLogCapacity = 1000

// LogEntry is one line of the session transcript.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Transcript is the append-only log of the current handshake attempt.
// When it holds max entries the oldest one is evicted first. It is not safe
// for concurrent use on its own; Session guards it.
type Transcript struct {
	entries []LogEntry
	max     int
	now     func() time.Time
}

func NewTranscript(max int) *Transcript {
	if max <= 0 {
		max = DefaultLogCapacity
	}
	return &Transcript{max: max, now: time.Now}
}

func (l *Transcript) Append(msg string) LogEntry {
	e := LogEntry{Time: l.now(), Message: msg}
	if len(l.entries) >= l.max {
		// Reslicing keeps append amortized O(1); the backing array is
		// compacted whenever append has to grow it.
		l.entries = l.entries[len(l.entries)-l.max+1:]
	}
	l.entries = append(l.entries, e)
	return e
}

func (l *Transcript) Clear() {
	l.entries = nil
}

func (l *Transcript) Len() int { return len(l.entries) }

// Entries returns a copy in append order.
func (l *Transcript) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
