//go:build !tinygo

package main

import (
	"strings"

	"openenterprise/scootctl/internal/codec"
)

// loopbackBroker is a standalone MQTT fake for cmd/simhost: instead of
// connecting to a real broker, it recognizes the reservation validate and
// termination request topics and synthesizes the backend's response a few
// Loop() calls later, so the full orchestrator round trip exercises without
// any external dependency.
type loopbackBroker struct {
	connected        bool
	subscribed       map[string]bool
	onMessage        func(topic string, payload []byte)
	pending          []pendingDelivery
	published        []publishedMsg
	validateReqTopic string
	updateFmt        string
}

type pendingDelivery struct {
	ticksLeft int
	topic     string
	payload   []byte
}

type publishedMsg struct {
	topic   string
	payload []byte
}

// newLoopbackBroker constructs a broker that recognizes a validate request
// topic (exact match) and treats any other published topic ending in
// "/termination" as a termination request.
func newLoopbackBroker(validateReqTopic, updateTopicFmt string) *loopbackBroker {
	return &loopbackBroker{
		subscribed:       make(map[string]bool),
		validateReqTopic: validateReqTopic,
		updateFmt:        updateTopicFmt,
	}
}

func (b *loopbackBroker) Connect(clientID, user, pass string) error {
	b.connected = true
	return nil
}

func (b *loopbackBroker) Subscribe(topic string) error {
	b.subscribed[topic] = true
	return nil
}

func (b *loopbackBroker) Unsubscribe(topic string) error {
	delete(b.subscribed, topic)
	return nil
}

func (b *loopbackBroker) Publish(topic string, payload []byte) error {
	b.published = append(b.published, publishedMsg{topic, payload})

	switch {
	case topic == b.validateReqTopic:
		trip, err := codec.DecodeTrip(payload)
		if err != nil {
			return nil
		}
		respTopic := formatUpdateTopic(b.updateFmt, trip.ID)
		b.pending = append(b.pending, pendingDelivery{ticksLeft: 2, topic: respTopic, payload: []byte{1}})

	case strings.HasSuffix(topic, "/termination"):
		parts := strings.Split(topic, "/")
		if len(parts) >= 2 {
			tripID := parts[len(parts)-2]
			respTopic := formatUpdateTopic(b.updateFmt, tripID)
			b.pending = append(b.pending, pendingDelivery{ticksLeft: 2, topic: respTopic, payload: []byte{byte(codec.TripStatusComplete)}})
		}
	}
	return nil
}

func (b *loopbackBroker) Loop() error {
	remaining := b.pending[:0]
	for _, p := range b.pending {
		p.ticksLeft--
		if p.ticksLeft <= 0 {
			if b.subscribed[p.topic] && b.onMessage != nil {
				b.onMessage(p.topic, p.payload)
			}
			continue
		}
		remaining = append(remaining, p)
	}
	b.pending = remaining
	return nil
}

func (b *loopbackBroker) Connected() bool { return b.connected }

func (b *loopbackBroker) OnMessage(f func(string, []byte)) { b.onMessage = f }

func (b *loopbackBroker) Disconnect() error {
	b.connected = false
	return nil
}

func formatUpdateTopic(tmplFmt, tripID string) string {
	return strings.Replace(tmplFmt, "%s", tripID, 1)
}
