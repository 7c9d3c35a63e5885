// Package sidecar is the client side of the sidecar protocol: dial
// the server, push info batches or request snapshots, and read the
// broadcasts that come back.
package sidecar

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the production sidecar endpoint.
	DefaultURL = "wss://r2lab-sidecar.inria.fr:443/"
	// DevelURL is the local devel-mode endpoint.
	DevelURL = "ws://localhost:10000/"

	dialTimeout = 10 * time.Second
)

// Envelope mirrors the server wire format. Incremental is set on
// server-originated keyed deltas; clients never set it themselves.
type Envelope struct {
	Category    string          `json:"category"`
	Action      string          `json:"action"`
	Message     json.RawMessage `json:"message"`
	Incremental bool            `json:"incremental,omitempty"`
}

// Records decodes an info message into its record batch.
func (env *Envelope) Records() ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(env.Message, &records); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", env.Category, err)
	}
	return records, nil
}

// Conn is a client connection to a sidecar server. It is safe for one
// writer and one reader; concurrent writers need their own exclusion.
type Conn struct {
	ws *websocket.Conn
}

// Dial connects to a sidecar server at a ws:// or wss:// url.
func Dial(url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial sidecar at %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Info sends a batch of records updating one category.
func (c *Conn) Info(category string, records []map[string]any) error {
	message, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal %s batch: %w", category, err)
	}
	return c.send(Envelope{Category: category, Action: "info", Message: message})
}

// Request asks the server to broadcast the full current contents of a
// category. The answer arrives as a regular broadcast, to every
// connected client.
func (c *Conn) Request(category string) error {
	return c.send(Envelope{
		Category: category,
		Action:   "request",
		Message:  json.RawMessage("null"),
	})
}

func (c *Conn) send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	return nil
}

// Read blocks until the next broadcast envelope arrives.
func (c *Conn) Read() (*Envelope, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func (c *Conn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
