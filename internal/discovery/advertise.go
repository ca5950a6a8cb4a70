package discovery

import (
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

// Advertise announces a tunnel listening on port under the session label.
// The returned func stops the announcement.
func Advertise(port int, label string) (func(), error) {
	server, err := zeroconf.Register(
		instanceName(label),
		ServiceType,
		domain,
		port,
		txtRecords(label),
		nil, // all interfaces
	)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"port": port, "label": label}).Info("Advertising tunnel over mDNS")
	return server.Shutdown, nil
}
