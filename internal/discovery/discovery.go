// Package discovery announces a joiner's local tunnel port over mDNS so
// other machines on the same LAN can find it without knowing the joiner's IP.
package discovery

import (
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type for burrow tunnels.
const ServiceType = "_burrow._tcp"

const domain = "local."

// Tunnel is one advertised joiner proxy.
type Tunnel struct {
	Instance string
	Label    string
	Host     string
	Port     int
}

func (t Tunnel) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func instanceName(label string) string {
	return "burrow-" + label
}

func txtRecords(label string) []string {
	return []string{"label=" + label, "v=1"}
}

// parseEntry turns a resolved service into a Tunnel. Entries without an
// address or label are skipped.
func parseEntry(e *zeroconf.ServiceEntry) (Tunnel, bool) {
	if e == nil {
		return Tunnel{}, false
	}
	t := Tunnel{Instance: e.Instance, Port: e.Port}
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "label="); ok {
			t.Label = v
		}
	}
	if t.Label == "" {
		return Tunnel{}, false
	}
	switch {
	case len(e.AddrIPv4) > 0:
		t.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		t.Host = e.AddrIPv6[0].String()
	default:
		return Tunnel{}, false
	}
	return t, true
}
