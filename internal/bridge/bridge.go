// Package bridge forwards status batches published on MQTT into the
// sidecar protocol. Testbed probes that speak MQTT but not websockets
// publish a JSON array of records on testbed/status/<category>; the
// bridge turns each one into an info envelope.
package bridge

import (
	"encoding/json"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/r2lab/sidecar/internal/mqttclient"
)

// TopicPrefix is where probes publish; the suffix names the category.
const TopicPrefix = "testbed/status/"

// Forwarder is the sidecar-facing side of the bridge; pkg/sidecar's
// Conn implements it.
type Forwarder interface {
	Info(category string, records []map[string]any) error
}

type Bridge struct {
	mqtt    *mqttclient.Client
	sidecar Forwarder
}

func New(m *mqttclient.Client, forwarder Forwarder) *Bridge {
	return &Bridge{mqtt: m, sidecar: forwarder}
}

// Start subscribes to the status topic tree. Messages flow until the
// MQTT client is closed.
func (b *Bridge) Start() error {
	topic := TopicPrefix + "#"
	if err := b.mqtt.Subscribe(topic, b.handle); err != nil {
		return err
	}
	log.Printf("[Bridge] forwarding %s to sidecar", topic)
	return nil
}

// handle maps one MQTT message to one info envelope. Malformed topics
// and payloads are logged and dropped; the subscription stays up.
func (b *Bridge) handle(_ mqtt.Client, msg mqtt.Message) {
	name := strings.TrimPrefix(msg.Topic(), TopicPrefix)
	if name == "" || strings.Contains(name, "/") {
		log.Printf("[Bridge] ignoring message on unexpected topic %s", msg.Topic())
		return
	}
	var batch []map[string]any
	if err := json.Unmarshal(msg.Payload(), &batch); err != nil {
		log.Printf("[Bridge] ignoring payload on %s that is not a record list: %v",
			msg.Topic(), err)
		return
	}
	if err := b.sidecar.Info(name, batch); err != nil {
		log.Printf("[Bridge] could not forward %d records for %s: %v",
			len(batch), name, err)
	}
}
