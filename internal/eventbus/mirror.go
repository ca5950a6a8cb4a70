package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/darkprince558/burrow/internal/session"
)

const queueSize = 256

// Publisher is satisfied by *Client.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Message is the JSON payload published for every session change.
type Message struct {
	Label   string    `json:"label"`
	Kind    string    `json:"kind"`
	Message string    `json:"message,omitempty"`
	Status  string    `json:"status,omitempty"`
	Time    time.Time `json:"time"`
}

func encode(label string, c session.Change, now time.Time) ([]byte, error) {
	m := Message{Label: label, Time: now}
	switch c.Kind {
	case session.EventLog:
		m.Kind = "log"
		m.Message = c.Entry.Message
		if !c.Entry.Time.IsZero() {
			m.Time = c.Entry.Time
		}
	case session.EventStatus:
		m.Kind = "status"
		m.Status = c.Status.String()
	}
	return json.Marshal(m)
}

// Mirror forwards session changes to <topic>/<label>. Handle never blocks:
// it is called with the session lock held, so a slow broker only costs
// dropped messages.
type Mirror struct {
	pub   Publisher
	topic string
	label string

	mu     sync.Mutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

func NewMirror(pub Publisher, topic, label string) *Mirror {
	m := &Mirror{
		pub:   pub,
		topic: topic + "/" + label,
		label: label,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mirror) Topic() string { return m.topic }

// Handle is a session observer.
func (m *Mirror) Handle(c session.Change) {
	payload, err := encode(m.label, c, time.Now())
	if err != nil {
		logrus.WithError(err).Debug("Could not encode session change")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- payload:
	default:
		logrus.WithField("topic", m.topic).Debug("Event mirror queue full, dropping change")
	}
}

func (m *Mirror) run() {
	defer close(m.done)
	for payload := range m.queue {
		if err := m.pub.Publish(m.topic, payload); err != nil {
			logrus.WithError(err).WithField("topic", m.topic).Warn("Event mirror publish failed")
		}
	}
}

// Close flushes queued changes and stops the mirror.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	<-m.done
}
