// Package mqttclient wraps the paho client with the few operations
// the testbed probes and the ingestion bridge actually need.
package mqttclient

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Options struct {
	BrokerURL string
	ClientID  string
}

type Client struct {
	raw mqtt.Client
}

// New connects to the MQTT broker, retrying until it comes up. Probes
// on the testbed boxes routinely start before the broker does.
func New(opts Options) (*Client, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	o.SetAutoReconnect(true)
	c := mqtt.NewClient(o)

	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.BrokerURL, token.Error())
	}
	return &Client{raw: c}, nil
}

// Publish sends a payload at qos 0; status batches are refreshed
// periodically, a lost one is superseded by the next.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.raw.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Subscribe(topic string, handler mqtt.MessageHandler) error {
	token := c.raw.Subscribe(topic, 0, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Close() {
	c.raw.Disconnect(250)
}
