// Package demux implements the response-topic demultiplexer described in
// the design notes: a small table mapping a subscribed MQTT response topic
// to whichever request/response task currently awaits a reply on it. The
// transport's single inbound callback looks up the topic here and forwards
// the payload, rather than every task installing its own callback.
package demux

import "sync"

// Awaiter receives a delivered inbound payload for the topic it registered.
type Awaiter interface {
	Deliver(payload []byte)
}

// Demux guards its table with a mutex, so registration and dispatch may
// come from different goroutines: the cooperative runtime is otherwise
// single-threaded, but the inbound MQTT callback can run on a different
// goroutine than the main loop (the underlying client may use one
// internally).
type Demux struct {
	mu        sync.Mutex
	awaiters  map[string]Awaiter
}

// New returns an empty Demux.
func New() *Demux {
	return &Demux{awaiters: make(map[string]Awaiter)}
}

// Register installs awaiter for topic, overwriting any previous
// registration. The spec's "at most one awaiter" invariant is enforced by
// the orchestrator (it never enqueues a second validate/terminate task
// while one is pending), not by this table.
func (d *Demux) Register(topic string, awaiter Awaiter) {
	d.mu.Lock()
	d.awaiters[topic] = awaiter
	d.mu.Unlock()
}

// Unregister removes topic's awaiter, if any.
func (d *Demux) Unregister(topic string) {
	d.mu.Lock()
	delete(d.awaiters, topic)
	d.mu.Unlock()
}

// Dispatch looks up topic and forwards payload to its awaiter, if
// registered. Intended as the MQTT client's OnMessage callback.
func (d *Demux) Dispatch(topic string, payload []byte) {
	d.mu.Lock()
	awaiter, ok := d.awaiters[topic]
	d.mu.Unlock()
	if ok {
		awaiter.Deliver(payload)
	}
}
