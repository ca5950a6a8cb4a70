package main

import (
	"github.com/sirupsen/logrus"

	"github.com/darkprince558/burrow/internal/backend"
	"github.com/darkprince558/burrow/internal/config"
	"github.com/darkprince558/burrow/internal/discovery"
	"github.com/darkprince558/burrow/internal/eventbus"
	"github.com/darkprince558/burrow/internal/notify"
	"github.com/darkprince558/burrow/internal/session"
	"github.com/darkprince558/burrow/internal/ui"
)

// app wires one session to its backend and optional side channels.
type app struct {
	gateway *backend.WebRTC
	notes   *notify.Center
	session *session.Session

	bus      *eventbus.Client
	mirror   *eventbus.Mirror
	unmirror func()
}

func newApp(cfg *config.Config, role ui.Role, ep session.Endpoints) (*app, error) {
	servers, err := backend.ICEServers(cfg.ICEServers, cfg.TURN.Username, cfg.TURN.Credential)
	if err != nil {
		return nil, err
	}

	a := &app{}
	opts := backend.Options{
		ICEServers:  servers,
		ICETimeout:  cfg.Timeouts.ICE,
		DialTimeout: cfg.Timeouts.TCPConnect,
	}
	if role == ui.RoleJoiner && cfg.Discovery.Advertise {
		opts.OnListen = func(port int) (func(), error) {
			return discovery.Advertise(port, a.session.Label())
		}
	}

	a.gateway = backend.New(opts)
	a.notes = notify.NewCenter(notify.WithDefaultTTL(cfg.Notify.TTL))
	a.session = session.New(a.gateway, a.notes,
		session.WithLogCapacity(cfg.Log.MaxEntries),
		session.WithEndpoints(ep),
	)

	if cfg.Events.Broker != "" {
		a.startMirror(cfg.Events)
	}
	return a, nil
}

// startMirror is best effort: a missing broker never blocks the tunnel.
func (a *app) startMirror(ev config.Events) {
	label := a.session.Label()
	client, err := eventbus.Connect(ev.Broker, "burrow-"+label)
	if err != nil {
		logrus.WithError(err).WithField("broker", ev.Broker).Warn("Event mirror disabled")
		return
	}
	a.bus = client
	a.mirror = eventbus.NewMirror(client, ev.Topic, label)
	a.unmirror = a.session.Observe(a.mirror.Handle)
	logrus.WithField("topic", a.mirror.Topic()).Info("Mirroring session events")
}

func (a *app) Close() {
	if a.unmirror != nil {
		a.unmirror()
	}
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.bus != nil {
		a.bus.Disconnect()
	}
	a.session.Close()
	a.notes.Close()
	if err := a.gateway.Close(); err != nil {
		logrus.WithError(err).Debug("Backend close failed")
	}
}
