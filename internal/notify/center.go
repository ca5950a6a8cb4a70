package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a notification stays queued when the caller does not set one.
const DefaultTTL = 5 * time.Second

// Severity controls how a notification is presented.
type Severity string

const (
	SeverityDefault     Severity = "default"
	SeverityDestructive Severity = "destructive"
)

// Notification is a short-lived, dismissible alert.
type Notification struct {
	ID          string
	Title       string
	Description string
	Severity    Severity
	TTL         time.Duration
	CreatedAt   time.Time
}

// Center owns the notification queue. Every pushed notification gets its own
// expiry timer, which is stopped when the notification is removed by hand.
type Center struct {
	mu     sync.Mutex
	items  []Notification
	timers map[string]*time.Timer
	ttl    time.Duration
	newID  func() string
	now    func() time.Time
}

type Option func(*Center)

// WithDefaultTTL overrides DefaultTTL for notifications pushed without a TTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Center) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIDGenerator replaces the UUID generator, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(c *Center) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func NewCenter(opts ...Option) *Center {
	c := &Center{
		timers: make(map[string]*time.Timer),
		ttl:    DefaultTTL,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push queues n and schedules its removal. Any ID set by the caller is
// replaced. It returns the assigned ID.
func (c *Center) Push(n Notification) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	n.ID = c.newID()
	if n.TTL <= 0 {
		n.TTL = c.ttl
	}
	if n.Severity == "" {
		n.Severity = SeverityDefault
	}
	n.CreatedAt = c.now()
	c.items = append(c.items, n)

	id := n.ID
	c.timers[id] = time.AfterFunc(n.TTL, func() { c.expire(id) })
	return id
}

// Remove dismisses the notification with the given ID. Unknown or already
// removed IDs are ignored.
func (c *Center) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.removeLocked(id)
}

func (c *Center) expire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

func (c *Center) removeLocked(id string) {
	delete(c.timers, id)
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// List returns the queued notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops all pending timers and empties the queue.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.items = nil
}
