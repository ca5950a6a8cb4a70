package backend

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const readBufferSize = 4096

// channel is the half of a data channel the proxies need.
type channel interface {
	Send(data []byte) error
}

// hostProxy bridges the tunnel to the one local server the host shares.
type hostProxy struct {
	conn net.Conn
	once sync.Once
}

func dialHost(ctx context.Context, addr string, timeout time.Duration) (*hostProxy, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &hostProxy{conn: conn}, nil
}

// pump copies server bytes into the tunnel until either side closes.
func (p *hostProxy) pump(ch channel) {
	defer p.Close()
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			return
		}
		if err := ch.Send(buf[:n]); err != nil {
			logrus.WithError(err).Debug("Tunnel send failed")
			return
		}
	}
}

func (p *hostProxy) deliver(data []byte) {
	if _, err := p.conn.Write(data); err != nil {
		logrus.WithError(err).Debug("Write to local server failed")
	}
}

func (p *hostProxy) Close() error {
	var err error
	p.once.Do(func() { err = p.conn.Close() })
	return err
}

// joinerProxy accepts local clients on the joiner's machine. Every client
// sees every byte coming out of the tunnel and everything clients write goes
// into it.
type joinerProxy struct {
	ln net.Listener
	ch channel

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	closed  bool
	stop    func()
}

func listenJoiner(port string, ch channel) (*joinerProxy, error) {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %s: %w", port, err)
	}
	return &joinerProxy{
		ln:      ln,
		ch:      ch,
		clients: make(map[net.Conn]struct{}),
	}, nil
}

func (p *joinerProxy) Port() int {
	return p.ln.Addr().(*net.TCPAddr).Port
}

func (p *joinerProxy) Addr() string {
	return net.JoinHostPort("localhost", strconv.Itoa(p.Port()))
}

func (p *joinerProxy) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		if !p.add(conn) {
			conn.Close()
			return
		}
		go p.handle(conn)
	}
}

func (p *joinerProxy) add(conn net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.clients[conn] = struct{}{}
	return true
}

func (p *joinerProxy) handle(conn net.Conn) {
	defer func() {
		conn.Close()
		p.mu.Lock()
		delete(p.clients, conn)
		p.mu.Unlock()
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if err := p.ch.Send(buf[:n]); err != nil {
			logrus.WithError(err).Debug("Tunnel send failed")
			return
		}
	}
}

func (p *joinerProxy) deliver(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.clients {
		if _, err := conn.Write(data); err != nil {
			logrus.WithError(err).WithField("client", conn.RemoteAddr()).Debug("Write to local client failed")
		}
	}
}

func (p *joinerProxy) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *joinerProxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stop := p.stop
	for conn := range p.clients {
		conn.Close()
	}
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	return p.ln.Close()
}
