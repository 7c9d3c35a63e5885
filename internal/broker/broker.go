// Package broker is the sidecar coordinator: it validates inbound
// envelopes, reconciles category state, and fans broadcasts out to
// every connected observer.
package broker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/r2lab/sidecar/internal/category"
)

// Debug enables payload dumps in the broker log.
var Debug bool

type eventKind int

const (
	eventConnect eventKind = iota
	eventDisconnect
	eventMessage
)

type event struct {
	kind   eventKind
	client Client
	data   []byte
}

// Broker owns the category registry and the client registry. All
// mutation of either happens on the Run goroutine; the transport-side
// On* methods only feed it through one event queue, which is what lets
// the categories and registries go lock-free, and what keeps a
// client's registration ordered before its first message.
type Broker struct {
	categories *category.Registry
	clients    *ClientRegistry

	events chan event

	// EchoTransientRequests controls whether a request on a transient
	// category is re-broadcast to observers after the snapshot answer.
	// Keyed-category requests are always echoed, which is how activity
	// monitors see that somebody asked.
	EchoTransientRequests bool
}

func New(categories *category.Registry) *Broker {
	return &Broker{
		categories:            categories,
		clients:               NewClientRegistry(),
		events:                make(chan event, 256),
		EchoTransientRequests: true,
	}
}

// OnConnect, OnMessage and OnDisconnect are the surface the transport
// adapter drives. They hand work to the coordinator goroutine.
func (b *Broker) OnConnect(c Client) { b.events <- event{kind: eventConnect, client: c} }

func (b *Broker) OnMessage(c Client, data []byte) {
	b.events <- event{kind: eventMessage, client: c, data: data}
}

func (b *Broker) OnDisconnect(c Client) { b.events <- event{kind: eventDisconnect, client: c} }

// Run processes connects, disconnects and inbound envelopes until the
// context is done, dumping a diagnostic status line every period when
// one is given.
func (b *Broker) Run(ctx context.Context, period time.Duration) {
	var tick <-chan time.Time
	if period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}
	b.dump("mainloop")
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.events:
			switch e.kind {
			case eventConnect:
				b.addClient(e.client)
			case eventDisconnect:
				b.removeClient(e.client)
			case eventMessage:
				b.handleMessage(e.client, e.data)
			}
		case <-tick:
			b.dump("cyclic status")
		}
	}
}

func (b *Broker) addClient(c Client) {
	b.clients.Register(c)
	b.dump("registered new client from " + c.Host())
}

func (b *Broker) removeClient(c Client) {
	if !b.clients.Unregister(c) {
		log.Printf("[Broker] failed to unregister unknown client from %s", c.Host())
		return
	}
	b.dump("unregistered client from " + c.Host())
}

// dump logs the devel-oriented one-liner with category sizes and
// client accounting.
func (b *Broker) dump(message string) {
	log.Printf("[Broker] %s %s | %d clients from %d hosts: %s",
		b.categories.Summary(), message,
		b.clients.Count(), b.clients.HostCount(), b.clients.Hosts())
}

// handleMessage is the per-envelope state machine. Nothing in here may
// abort the coordinator: every failure path logs, drops the offending
// unit and returns.
func (b *Broker) handleMessage(c Client, data []byte) {
	env, err := parseEnvelope(data)
	if err != nil {
		log.Printf("[Broker] ignoring non-json message from %s: %v", c.Host(), err)
		return
	}
	switch env.Action {
	case ActionRequest:
		if !b.checkEnvelope(env, false) {
			return
		}
		b.handleRequest(env)
	case ActionInfo:
		if !b.checkEnvelope(env, true) {
			return
		}
		b.handleInfo(env)
	default:
		log.Printf("[Broker] ignoring envelope with unknown action %q from %s",
			env.Action, c.Host())
	}
}

// checkEnvelope validates an already-parsed envelope: known category,
// message key present, and for info a list-shaped message.
func (b *Broker) checkEnvelope(env *Envelope, wantList bool) bool {
	if _, ok := b.categories.Lookup(env.Category); !ok {
		log.Printf("[Broker] ignoring envelope with unknown category %q", env.Category)
		return false
	}
	if !env.hasMessage() {
		log.Printf("[Broker] ignoring %s envelope without a message field", env.Action)
		return false
	}
	if wantList && !env.isList() {
		log.Printf("[Broker] ignoring info envelope on %s: message is not a list",
			env.Category)
		return false
	}
	return true
}

// handleRequest answers publicly: the full snapshot goes to all
// clients, not just the requester, so every observer converges on the
// same view. The original request follows, verbatim, for secondary
// observers that watch activity rather than state.
func (b *Broker) handleRequest(env *Envelope) {
	cat, _ := b.categories.Lookup(env.Category)
	b.broadcastSnapshot(cat)
	if cat.Keyed() || b.EchoTransientRequests {
		b.broadcast(env)
	}
}

// handleInfo reconciles the batch and broadcasts only the news. An
// update that changes nothing produces no traffic at all.
func (b *Broker) handleInfo(env *Envelope) {
	cat, _ := b.categories.Lookup(env.Category)
	batch, err := env.records()
	if err != nil {
		log.Printf("[Broker] ignoring info envelope on %s: %v", env.Category, err)
		return
	}
	news := cat.Apply(batch)
	// an empty keyed delta is not news; an empty transient replace
	// still is, because the snapshot just changed to empty
	if cat.Keyed() && len(news) == 0 {
		return
	}
	message, err := json.Marshal(news)
	if err != nil {
		log.Printf("[Broker] cannot serialize news for %s: %v", env.Category, err)
		return
	}
	b.broadcast(&Envelope{
		Category: env.Category,
		Action:   ActionInfo,
		Message:  message,
		// transient news is a full snapshot, keyed news is a delta
		Incremental: cat.Keyed(),
	})
}

// broadcastSnapshot sends the full current contents of a category as
// a freshly built info envelope.
func (b *Broker) broadcastSnapshot(cat *category.Category) {
	message, err := json.Marshal(cat.Contents())
	if err != nil {
		log.Printf("[Broker] cannot serialize %s snapshot: %v", cat.Name(), err)
		return
	}
	b.broadcast(&Envelope{Category: cat.Name(), Action: ActionInfo, Message: message})
}

// broadcast serializes the envelope once and pushes it at every client
// in a registry snapshot. A failed send means that client is on its
// way out; its read pump will unregister it, and the remaining clients
// still get their copy.
func (b *Broker) broadcast(env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Broker] cannot serialize envelope: %v", err)
		return
	}
	if Debug {
		log.Printf("[Broker] broadcast %s x %s: %s", env.Category, env.Action, data)
	}
	for _, c := range b.clients.Snapshot() {
		if err := c.Send(data); err != nil {
			log.Printf("[Broker] client %s has vanished - ignoring: %v", c.Host(), err)
		}
	}
}
