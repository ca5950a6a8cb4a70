// Package eventbus mirrors a session's transcript and status changes to an
// MQTT broker, for dashboards or a second screen watching the tunnel.
package eventbus

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	disconnectWait = 250
)

// Client is a thin publisher over a paho connection.
type Client struct {
	client mqtt.Client
}

// Connect opens a connection to broker, e.g. tcp://localhost:1883.
func Connect(broker, clientID string) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logrus.WithError(err).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	return &Client{client: client}, nil
}

// Publish sends payload to topic and waits for the broker to take it.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish failed: %w", token.Error())
	}
	return nil
}

func (c *Client) Disconnect() {
	if c.client != nil {
		c.client.Disconnect(disconnectWait)
	}
}
