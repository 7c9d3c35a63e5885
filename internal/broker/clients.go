package broker

import (
	"fmt"
	"sort"
	"strings"
)

// Client is one connected observer as the broker sees it: somewhere to
// push serialized envelopes, plus the remote host it came from.
type Client interface {
	Host() string
	Send(data []byte) error
}

// ClientRegistry tracks the currently connected clients. The per-host
// grouping is not operational, it just makes the diagnostic dumps
// meaningful. Mutation happens only on the broker coordinator
// goroutine.
type ClientRegistry struct {
	clients map[Client]struct{}
	byHost  map[string]map[Client]struct{}
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: map[Client]struct{}{},
		byHost:  map[string]map[Client]struct{}{},
	}
}

func (reg *ClientRegistry) Register(c Client) {
	reg.clients[c] = struct{}{}
	host := c.Host()
	set, ok := reg.byHost[host]
	if !ok {
		set = map[Client]struct{}{}
		reg.byHost[host] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a client from both structures and reports whether
// it was actually registered; false means a double-unregister or a
// registry bug and deserves a log line from the caller. The last
// client of a host takes the host entry with it.
func (reg *ClientRegistry) Unregister(c Client) bool {
	if _, ok := reg.clients[c]; !ok {
		return false
	}
	delete(reg.clients, c)
	host := c.Host()
	if set, ok := reg.byHost[host]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(reg.byHost, host)
		}
	}
	return true
}

// Snapshot returns a point-in-time copy of the active set, so that a
// fan-out can iterate while a closing connection mutates the registry.
func (reg *ClientRegistry) Snapshot() []Client {
	clients := make([]Client, 0, len(reg.clients))
	for c := range reg.clients {
		clients = append(clients, c)
	}
	return clients
}

func (reg *ClientRegistry) Count() int { return len(reg.clients) }

func (reg *ClientRegistry) HostCount() int { return len(reg.byHost) }

// Hosts renders the per-host accounting as "host [n]" pairs for the
// diagnostic dump.
func (reg *ClientRegistry) Hosts() string {
	parts := make([]string, 0, len(reg.byHost))
	for host, set := range reg.byHost {
		parts = append(parts, fmt.Sprintf("%s [%d]", host, len(set)))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
