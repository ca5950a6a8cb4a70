package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pion/ice/v2"
	"github.com/pion/stun"
)

// ProbeResult is what a STUN server reported back for one binding request.
type ProbeResult struct {
	Server string
	Mapped string
	RTT    time.Duration
}

// Probe sends one STUN binding request to the server behind rawURL and
// returns the public address it saw. TURN URLs are probed the same way since
// TURN servers answer plain binding requests too.
func Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	res := ProbeResult{Server: rawURL}

	u, err := ice.ParseURL(rawURL)
	if err != nil {
		return res, fmt.Errorf("invalid server url: %w", err)
	}
	network := "udp4"
	if u.Proto == ice.ProtoTypeTCP {
		network = "tcp4"
	}
	addr := net.JoinHostPort(u.Host, strconv.Itoa(u.Port))

	c, err := stun.Dial(network, addr)
	if err != nil {
		return res, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Close()

	type outcome struct {
		mapped string
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		var out outcome
		doErr := c.Do(stun.MustBuild(stun.TransactionID, stun.BindingRequest), func(ev stun.Event) {
			if ev.Error != nil {
				out.err = ev.Error
				return
			}
			var xor stun.XORMappedAddress
			if err := xor.GetFrom(ev.Message); err != nil {
				out.err = fmt.Errorf("no mapped address in response: %w", err)
				return
			}
			out.mapped = xor.String()
		})
		if out.err == nil && doErr != nil {
			out.err = doErr
		}
		done <- out
	}()

	select {
	case <-ctx.Done():
		return res, ctx.Err()
	case out := <-done:
		res.RTT = time.Since(start)
		if out.err != nil {
			if errors.Is(out.err, stun.ErrTransactionTimeOut) {
				return res, fmt.Errorf("%s did not answer", addr)
			}
			return res, out.err
		}
		res.Mapped = out.mapped
		return res, nil
	}
}
