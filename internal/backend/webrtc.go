// Package backend carries the tunnel over a WebRTC data channel. It
// implements session.Gateway: tokens are base64-encoded session
// descriptions, and once the channel opens the host side dials its local
// server while the joiner side accepts local clients.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"

	"github.com/darkprince558/burrow/internal/session"
)

const (
	DefaultICETimeout  = 30 * time.Second
	DefaultDialTimeout = 10 * time.Second

	channelLabel = "tunnel"
)

var (
	ErrNoPendingOffer = errors.New("no offer is waiting for an answer")
	ErrClosed         = errors.New("backend closed")
)

// Options configures a WebRTC backend. Zero values fall back to defaults.
type Options struct {
	ICEServers  []webrtc.ICEServer
	ICETimeout  time.Duration
	DialTimeout time.Duration

	// OnListen is called with the joiner's proxy port once it is accepting
	// clients. The returned stop func runs when the proxy closes.
	OnListen func(port int) (stop func(), err error)
}

// WebRTC owns at most one peer connection and one proxy at a time. Starting
// a new handshake tears the previous one down.
type WebRTC struct {
	opts Options
	api  *webrtc.API

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	proxy   io.Closer
	pending bool
	closed  bool

	subMu   sync.Mutex
	subs    map[int]func(session.Event)
	nextSub int
}

var _ session.Gateway = (*WebRTC)(nil)

func New(opts Options) *WebRTC {
	if opts.ICETimeout <= 0 {
		opts.ICETimeout = DefaultICETimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebRTC{
		opts:   opts,
		api:    webrtc.NewAPI(),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]func(session.Event)),
	}
}

func (w *WebRTC) Subscribe(fn func(session.Event)) func() {
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.subMu.Lock()
			delete(w.subs, id)
			w.subMu.Unlock()
		})
	}
}

func (w *WebRTC) emit(events ...session.Event) {
	w.subMu.Lock()
	fns := make([]func(session.Event), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// emitFor drops events from a peer connection that has been replaced.
func (w *WebRTC) emitFor(pc *webrtc.PeerConnection, events ...session.Event) {
	if !w.current(pc) {
		return
	}
	w.emit(events...)
}

func (w *WebRTC) current(pc *webrtc.PeerConnection) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed && w.pc == pc
}

// CreateOffer starts the host side. The returned token is only valid for
// this backend until the next CreateOffer or AcceptOffer.
func (w *WebRTC) CreateOffer(ctx context.Context, ep session.Endpoints) (token string, err error) {
	var pc *webrtc.PeerConnection
	defer func() {
		if err != nil && pc != nil {
			w.drop(pc)
		}
	}()
	defer err2.Handle(&err)

	pc = try.To1(w.newPeer())
	try.To(w.replace(pc))

	dc := try.To1(pc.CreateDataChannel(channelLabel, nil))
	dc.OnOpen(func() {
		w.emitFor(pc,
			session.StatusEvent(session.StatusConnected),
			session.LogEvent("P2P Tunnel Established!"))
		go w.runHost(pc, dc, ep.PeerAddress)
	})
	dc.OnClose(func() {
		w.emitFor(pc,
			session.StatusEvent(session.StatusDisconnected),
			session.LogEvent("DataChannel closed"))
	})

	offer := try.To1(pc.CreateOffer(nil))
	gathered := webrtc.GatheringCompletePromise(pc)
	try.To(pc.SetLocalDescription(offer))
	try.To(w.waitGathering(ctx, gathered))

	token = try.To1(EncodeToken(*pc.LocalDescription()))

	w.mu.Lock()
	w.pending = w.pc == pc
	w.mu.Unlock()

	logrus.WithField("ice_servers", len(w.opts.ICEServers)).Debug("Offer created")
	return token, nil
}

// AcceptOffer starts the joiner side from the host's offer token.
func (w *WebRTC) AcceptOffer(ctx context.Context, offerToken string, ep session.Endpoints) (token string, err error) {
	offer, err := DecodeToken(offerToken, webrtc.SDPTypeOffer)
	if err != nil {
		return "", err
	}

	var pc *webrtc.PeerConnection
	defer func() {
		if err != nil && pc != nil {
			w.drop(pc)
		}
	}()
	defer err2.Handle(&err)

	pc = try.To1(w.newPeer())
	try.To(w.replace(pc))

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			logrus.WithField("label", dc.Label()).Debug("Ignoring unknown data channel")
			return
		}
		dc.OnOpen(func() {
			w.emitFor(pc,
				session.StatusEvent(session.StatusConnected),
				session.LogEvent("P2P Tunnel Established!"))
			w.runJoiner(pc, dc, ep.LocalPort)
		})
		dc.OnClose(func() {
			w.emitFor(pc,
				session.StatusEvent(session.StatusDisconnected),
				session.LogEvent("Connection closed"))
		})
	})

	try.To(pc.SetRemoteDescription(offer))
	answer := try.To1(pc.CreateAnswer(nil))
	gathered := webrtc.GatheringCompletePromise(pc)
	try.To(pc.SetLocalDescription(answer))
	try.To(w.waitGathering(ctx, gathered))

	return try.To1(EncodeToken(*pc.LocalDescription())), nil
}

// AcceptAnswer completes the host side. It needs the offer created by the
// most recent CreateOffer on this backend.
func (w *WebRTC) AcceptAnswer(ctx context.Context, answerToken string) error {
	answer, err := DecodeToken(answerToken, webrtc.SDPTypeAnswer)
	if err != nil {
		return err
	}

	w.mu.Lock()
	pc, pending := w.pc, w.pending
	w.pending = false
	w.mu.Unlock()

	if pc == nil || !pending {
		return ErrNoPendingOffer
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		w.mu.Lock()
		if w.pc == pc {
			w.pending = true
		}
		w.mu.Unlock()
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (w *WebRTC) newPeer() (*webrtc.PeerConnection, error) {
	pc, err := w.api.NewPeerConnection(webrtc.Configuration{ICEServers: w.opts.ICEServers})
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logrus.WithField("state", state.String()).Debug("Peer connection state changed")
		switch state {
		case webrtc.PeerConnectionStateDisconnected:
			w.emitFor(pc,
				session.StatusEvent(session.StatusDisconnected),
				session.LogEvent("Peer disconnected"))
		case webrtc.PeerConnectionStateFailed:
			w.emitFor(pc,
				session.StatusEvent(session.StatusError),
				session.LogEvent("Connection failed"))
		}
	})
	return pc, nil
}

// replace installs pc as the live connection and closes whatever was there.
func (w *WebRTC) replace(pc *webrtc.PeerConnection) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		pc.Close()
		return ErrClosed
	}
	oldPC, oldProxy := w.pc, w.proxy
	w.pc, w.proxy, w.pending = pc, nil, false
	w.mu.Unlock()

	closeQuietly(oldProxy)
	if oldPC != nil {
		closeQuietly(oldPC)
	}
	return nil
}

// drop closes pc and forgets it if it is still the live connection.
func (w *WebRTC) drop(pc *webrtc.PeerConnection) {
	w.mu.Lock()
	var proxy io.Closer
	if w.pc == pc {
		proxy = w.proxy
		w.pc, w.proxy, w.pending = nil, nil, false
	}
	w.mu.Unlock()

	closeQuietly(proxy)
	closeQuietly(pc)
}

// attach records the proxy of pc, or reports false when pc is stale.
func (w *WebRTC) attach(pc *webrtc.PeerConnection, proxy io.Closer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pc != pc {
		return false
	}
	old := w.proxy
	w.proxy = proxy
	closeQuietly(old)
	return true
}

func (w *WebRTC) waitGathering(ctx context.Context, gathered <-chan struct{}) error {
	timer := time.NewTimer(w.opts.ICETimeout)
	defer timer.Stop()

	select {
	case <-gathered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("ICE gathering timeout: failed to gather candidates after %v", w.opts.ICETimeout)
	}
}

func (w *WebRTC) runHost(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, addr string) {
	proxy, err := dialHost(w.ctx, addr, w.opts.DialTimeout)
	if err != nil {
		w.emitFor(pc,
			session.StatusEvent(session.StatusError),
			session.LogEvent(fmt.Sprintf("Error connecting to local server %s: %v", addr, err)))
		return
	}
	if !w.attach(pc, proxy) {
		proxy.Close()
		return
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { proxy.deliver(msg.Data) })
	w.emitFor(pc, session.LogEvent(fmt.Sprintf("Forwarding tunnel to %s", addr)))

	proxy.pump(dc)
	w.emitFor(pc, session.LogEvent("Local server closed the connection"))
}

func (w *WebRTC) runJoiner(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, port string) {
	proxy, err := listenJoiner(port, dc)
	if err != nil {
		w.emitFor(pc,
			session.StatusEvent(session.StatusError),
			session.LogEvent(fmt.Sprintf("Error: %v", err)))
		return
	}
	if !w.attach(pc, proxy) {
		proxy.Close()
		return
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { proxy.deliver(msg.Data) })

	if w.opts.OnListen != nil {
		stop, err := w.opts.OnListen(proxy.Port())
		if err != nil {
			logrus.WithError(err).Warn("Could not advertise tunnel port")
		} else {
			proxy.mu.Lock()
			proxy.stop = stop
			proxy.mu.Unlock()
		}
	}

	w.emitFor(pc, session.LogEvent(fmt.Sprintf("Listening on port %d for local clients", proxy.Port())))
	go proxy.serve()
}

// Close tears down the peer connection, the proxy and any local clients.
func (w *WebRTC) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	pc, proxy := w.pc, w.proxy
	w.pc, w.proxy, w.pending = nil, nil, false
	w.mu.Unlock()

	w.cancel()
	closeQuietly(proxy)
	if pc != nil {
		return pc.Close()
	}
	return nil
}

func closeQuietly(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logrus.WithError(err).Debug("Close failed")
	}
}
