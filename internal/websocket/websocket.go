// Package websocket adapts gorilla/websocket connections into the
// duplex text-message channels the broker consumes. The broker never
// touches sockets; this package never touches category state.
package websocket

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/r2lab/sidecar/internal/broker"
)

const (
	writeWait = 10 * time.Second

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// full snapshots can get big, but not unboundedly so
	maxMessageSize = 4 * 1024 * 1024

	sendBuffer = 256
)

// Handler receives connection lifecycle events and raw inbound
// messages. The broker implements it.
type Handler interface {
	OnConnect(c broker.Client)
	OnMessage(c broker.Client, data []byte)
	OnDisconnect(c broker.Client)
}

// Server accepts websocket connections and hands them to the handler.
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader
}

func NewServer(handler Handler) *Server {
	return &Server{
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeWS upgrades one HTTP request into a sidecar client connection.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		host: host,
	}
	s.handler.OnConnect(client)

	go client.writePump()
	go client.readPump(s.handler)
}

// ListenAndServe binds the listening address and serves websocket
// upgrades on every path, with TLS when cert and key files are given.
// It only returns on a bind or serve failure, the one error that is
// fatal to the process.
func (s *Server) ListenAndServe(addr, certFile, keyFile string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.ServeWS)
	log.Printf("[WebSocket] listening on %s", addr)
	if certFile != "" {
		return http.ListenAndServeTLS(addr, certFile, keyFile, mux)
	}
	return http.ListenAndServe(addr, mux)
}

// Client is one accepted connection. Outbound envelopes go through a
// buffered channel drained by writePump, so a broadcast never blocks
// on a slow consumer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	host string
}

// Host returns the remote host address, captured at accept time so it
// stays available after the connection closes.
func (c *Client) Host() string { return c.host }

// Send enqueues a serialized envelope without blocking. A client that
// cannot drain its buffer gets an error instead of stalling the
// fan-out; the broker treats that like any vanished client.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for client %s", c.host)
	}
}

// readPump forwards inbound messages to the handler and guarantees
// OnDisconnect fires exactly once, whatever way the connection dies.
func (c *Client) readPump(handler Handler) {
	defer func() {
		handler.OnDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] read error from %s: %v", c.host, err)
			}
			return
		}
		handler.OnMessage(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
