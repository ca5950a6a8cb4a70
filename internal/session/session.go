package session

import (
	"context"
	"strings"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/sirupsen/logrus"

	"github.com/darkprince558/burrow/internal/notify"
)

const (
	DefaultPeerAddress = "localhost:25565"
	DefaultLocalPort   = "25565"
)

// Change is handed to observers for every appended log line and every
// status change, in the order they happen.
type Change struct {
	Kind   EventKind
	Entry  LogEntry
	Status Status
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Label       string
	Status      Status
	OfferToken  string
	AnswerToken string
	PeerAddress string
	LocalPort   string
	Log         []LogEntry
	Busy        bool
}

// Outgoing returns the token this party must hand to the other side next.
// At most one of the two token fields is set at a time.
func (s Snapshot) Outgoing() (string, TokenKind) {
	if s.AnswerToken != "" {
		return s.AnswerToken, KindAnswer
	}
	if s.OfferToken != "" {
		return s.OfferToken, KindOffer
	}
	return "", ""
}

// Session orchestrates one side of the offer/answer handshake. Status,
// tokens, endpoints and the event log are all guarded by mu; the
// notification center is only written to while mu is held and never calls
// back into the session.
type Session struct {
	gateway Gateway
	notes   *notify.Center

	mu          sync.Mutex
	label       string
	log         *Transcript
	status      Status
	offerToken  string
	answerToken string
	endpoints   Endpoints
	inFlight    bool
	generation  uint64
	closed      bool

	subID       uint64
	unsubscribe func()

	observers    map[int]func(Change)
	nextObserver int

	logCap int
	now    func() time.Time
}

type Option func(*Session)

func WithLogCapacity(n int) Option {
	return func(s *Session) { s.logCap = n }
}

// WithLabel overrides the generated petname label.
func WithLabel(label string) Option {
	return func(s *Session) {
		if label != "" {
			s.label = label
		}
	}
}

func WithEndpoints(ep Endpoints) Option {
	return func(s *Session) {
		if ep.PeerAddress != "" {
			s.endpoints.PeerAddress = ep.PeerAddress
		}
		if ep.LocalPort != "" {
			s.endpoints.LocalPort = ep.LocalPort
		}
	}
}

// WithClock sets the time source used to stamp log entries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a disconnected session. A nil center gets a private one.
func New(gw Gateway, notes *notify.Center, opts ...Option) *Session {
	if notes == nil {
		notes = notify.NewCenter()
	}
	s := &Session{
		gateway: gw,
		notes:   notes,
		label:   petname.Generate(2, "-"),
		status:  StatusDisconnected,
		endpoints: Endpoints{
			PeerAddress: DefaultPeerAddress,
			LocalPort:   DefaultLocalPort,
		},
		observers: make(map[int]func(Change)),
		logCap:    DefaultLogCapacity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = NewTranscript(s.logCap)
	s.log.now = s.now
	return s
}

func (s *Session) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Notifications() *notify.Center { return s.notes }

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Label:       s.label,
		Status:      s.status,
		OfferToken:  s.offerToken,
		AnswerToken: s.answerToken,
		PeerAddress: s.endpoints.PeerAddress,
		LocalPort:   s.endpoints.LocalPort,
		Log:         s.log.Entries(),
		Busy:        s.inFlight,
	}
}

func (s *Session) SetPeerAddress(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDisconnected {
		return ErrNotEditable
	}
	s.endpoints.PeerAddress = addr
	return nil
}

func (s *Session) SetLocalPort(port string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDisconnected {
		return ErrNotEditable
	}
	s.endpoints.LocalPort = port
	return nil
}

// Observe registers fn for every log line and status change. fn runs with
// the session lock held and must not call back into the session.
func (s *Session) Observe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// GenerateOffer starts the host side of a handshake.
func (s *Session) GenerateOffer(ctx context.Context) error {
	gen, ep, err := s.begin(true)
	if err != nil {
		return err
	}

	offer, callErr := s.gateway.CreateOffer(ctx, ep)

	return s.finish(gen, func() error {
		if callErr != nil {
			return s.failLocked("create offer", "Could not generate offer", callErr)
		}
		s.offerToken = offer
		s.answerToken = ""
		s.setStatusLocked(StatusWaitingForAnswer)
		s.appendLocked("Offer token generated successfully")
		return nil
	})
}

// AcceptOffer starts the joiner side of a handshake with the host's offer.
func (s *Session) AcceptOffer(ctx context.Context, offer string) error {
	if err := s.rejectEmpty(offer, "No offer provided"); err != nil {
		return err
	}
	gen, ep, err := s.begin(true)
	if err != nil {
		return err
	}

	answer, callErr := s.gateway.AcceptOffer(ctx, offer, ep)

	return s.finish(gen, func() error {
		if callErr != nil {
			return s.failLocked("accept offer", "Could not accept offer", callErr)
		}
		s.answerToken = answer
		s.offerToken = ""
		s.setStatusLocked(StatusWaitingForHost)
		s.appendLocked("Answer generated - share this with host")
		return nil
	})
}

// AcceptAnswer completes the host side with the joiner's answer. It is meant
// for the waiting-for-answer state but does not enforce it.
func (s *Session) AcceptAnswer(ctx context.Context, answer string) error {
	if err := s.rejectEmpty(answer, "No answer provided"); err != nil {
		return err
	}
	gen, _, err := s.begin(false)
	if err != nil {
		return err
	}

	callErr := s.gateway.AcceptAnswer(ctx, answer)

	return s.finish(gen, func() error {
		if callErr != nil {
			return s.failLocked("accept answer", "Could not accept answer", callErr)
		}
		s.setStatusLocked(StatusConnected)
		s.appendLocked("Tunnel established!")
		return nil
	})
}

func (s *Session) rejectEmpty(token, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.inFlight {
		return ErrSessionBusy
	}
	if strings.TrimSpace(token) == "" {
		s.appendLocked(msg)
		return ErrEmptyToken
	}
	return nil
}

// begin claims the single in-flight slot. A restarting attempt clears the
// transcript and moves to connecting before the backend is called.
func (s *Session) begin(restart bool) (uint64, Endpoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, Endpoints{}, ErrClosed
	}
	if s.inFlight {
		return 0, Endpoints{}, ErrSessionBusy
	}
	s.inFlight = true
	if restart {
		s.log.Clear()
		s.setStatusLocked(StatusConnecting)
	}
	return s.generation, s.endpoints, nil
}

// finish applies a backend result unless the attempt was retired while the
// call was outstanding.
func (s *Session) finish(gen uint64, apply func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		logrus.WithFields(logrus.Fields{
			"session":    s.label,
			"generation": gen,
		}).Debug("Discarding result of detached handshake call")
		return ErrStale
	}
	s.inFlight = false
	return apply()
}

func (s *Session) failLocked(op, title string, err error) error {
	berr := &BackendError{Op: op, Err: err}
	s.setStatusLocked(StatusError)
	s.appendLocked("Error: " + berr.Message())
	s.notes.Push(notify.Notification{
		Title:       title,
		Description: berr.Message(),
		Severity:    notify.SeverityDestructive,
	})
	logrus.WithError(err).WithField("session", s.label).Warnf("%s failed", op)
	return berr
}

func (s *Session) appendLocked(msg string) {
	e := s.log.Append(msg)
	s.emitLocked(Change{Kind: EventLog, Entry: e})
}

func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	s.emitLocked(Change{Kind: EventStatus, Status: st})
}

func (s *Session) emitLocked(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}

// Subscribe starts relaying the gateway's pushed events into the session.
// Calling it while already subscribed does nothing.
func (s *Session) Subscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.unsubscribe != nil {
		return
	}
	s.subID++
	id := s.subID
	s.unsubscribe = s.gateway.Subscribe(func(ev Event) { s.relay(id, ev) })
}

// Unsubscribe stops the relay and retires any in-flight handshake call so
// its result is not applied after the view is gone. It is idempotent.
func (s *Session) Unsubscribe() {
	s.mu.Lock()
	cancel := s.unsubscribe
	s.unsubscribe = nil
	if cancel != nil {
		s.retireLocked()
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// retireLocked detaches any outstanding handshake call. An attempt that was
// still connecting goes back to disconnected so the endpoints can be edited.
func (s *Session) retireLocked() {
	s.generation++
	if !s.inFlight {
		return
	}
	s.inFlight = false
	if s.status == StatusConnecting {
		s.setStatusLocked(StatusDisconnected)
		s.appendLocked("Handshake abandoned")
	}
}

func (s *Session) relay(id uint64, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe == nil || id != s.subID {
		return
	}
	switch ev.Kind {
	case EventLog:
		s.appendLocked(ev.Message)
	case EventStatus:
		if !ev.Status.Valid() {
			logrus.WithField("status", ev.Status).Warn("Ignoring unknown status from backend")
			return
		}
		// The transport is authoritative once a connection exists: a pushed
		// status overwrites ours without checking the transition table, and
		// may move the session backwards relative to its tokens.
		s.setStatusLocked(ev.Status)
	}
}

// Close unsubscribes, retires any in-flight call and rejects further
// handshake calls. The gateway itself is owned by the caller.
func (s *Session) Close() {
	s.Unsubscribe()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.retireLocked()
}
