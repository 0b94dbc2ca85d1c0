package transport

import (
	"bytes"
	"errors"
	"testing"
)

type fakeConn struct {
	written   bytes.Buffer
	toRead    []byte
	readPos   int
	connected bool
	stayOpen  bool // when set, draining toRead does not close the conn
}

func newFakeConn(response string) *fakeConn {
	return &fakeConn{toRead: []byte(response), connected: true}
}

func (c *fakeConn) Write(p []byte) (int, error) { return c.written.Write(p) }

func (c *fakeConn) Read(p []byte) (int, error) {
	if c.readPos >= len(c.toRead) {
		if !c.stayOpen {
			c.connected = false
		}
		return 0, nil
	}
	n := copy(p, c.toRead[c.readPos:])
	c.readPos += n
	if c.readPos >= len(c.toRead) && !c.stayOpen {
		c.connected = false
	}
	return n, nil
}

func (c *fakeConn) Close() error      { c.connected = false; return nil }
func (c *fakeConn) Connected() bool   { return c.connected }

type fakeDialer struct {
	conn    *fakeConn
	failErr error
}

func (d *fakeDialer) Dial(addr string) (Conn, error) {
	if d.failErr != nil {
		return nil, d.failErr
	}
	return d.conn, nil
}

func newClock() func() int64 {
	t := int64(0)
	return func() int64 { return t }
}

func tickingClock(start int64) (*int64, func() int64) {
	t := start
	return &t, func() int64 { return t }
}

func TestHTTPStartGetFailsWhenNotIdle(t *testing.T) {
	d := &fakeDialer{conn: newFakeConn("HTTP/1.1 200 OK\r\n\r\nbody")}
	h := NewHTTP(d, newClock())
	if !h.StartGet("http://example.com/a", 1000) {
		t.Fatal("expected first StartGet to succeed")
	}
	if h.StartGet("http://example.com/b", 1000) {
		t.Error("expected second StartGet to fail while not idle")
	}
}

func TestHTTPStartGetFailsOnDialError(t *testing.T) {
	d := &fakeDialer{failErr: errors.New("connect refused")}
	h := NewHTTP(d, newClock())
	if h.StartGet("http://example.com/", 1000) {
		t.Error("expected StartGet to fail on dial error")
	}
	if h.State() != Idle {
		t.Errorf("State() = %v, want Idle after failed dial", h.State())
	}
}

func TestHTTPStepCompletesWhenConnectionCloses(t *testing.T) {
	d := &fakeDialer{conn: newFakeConn("HTTP/1.1 200 OK\r\n\r\nhello")}
	tick, now := tickingClock(0)
	h := NewHTTP(d, now)
	h.StartGet("http://example.com/", 5000)

	for i := 0; i < 5 && h.State() == Reading; i++ {
		*tick += 10
		h.Step()
	}
	if h.State() != Done {
		t.Fatalf("State() = %v, want Done", h.State())
	}
	if string(h.Result()) != "HTTP/1.1 200 OK\r\n\r\nhello" {
		t.Errorf("Result() = %q", h.Result())
	}
}

func TestHTTPStepTimesOutOnInactivity(t *testing.T) {
	conn := &fakeConn{connected: true, stayOpen: true} // never produces data, never closes
	d := &fakeDialer{conn: conn}
	tick, now := tickingClock(0)
	h := NewHTTP(d, now)
	h.StartGet("http://example.com/", 100)

	*tick += 50
	h.Step()
	if h.State() != Reading {
		t.Fatalf("State() = %v, want Reading before timeout", h.State())
	}

	*tick += 200
	h.Step()
	if h.State() != Done {
		t.Fatalf("State() = %v, want Done after inactivity timeout", h.State())
	}
}

func TestHTTPResetRestoresIdle(t *testing.T) {
	d := &fakeDialer{conn: newFakeConn("HTTP/1.1 200 OK\r\n\r\n")}
	h := NewHTTP(d, newClock())
	h.StartGet("http://example.com/", 1000)
	h.Reset()
	if h.State() != Idle {
		t.Fatalf("State() = %v, want Idle after Reset", h.State())
	}
	if !h.StartGet("http://example.com/", 1000) {
		t.Error("expected StartGet to succeed again after Reset")
	}
}

// fakeMQTT is a minimal MQTT fake for Socket tests.
type fakeMQTT struct {
	connected       bool
	connectCalls    int
	loopCalls       int
	disconnectCalls int
	published       [][2]string
}

func (m *fakeMQTT) Connect(clientID, user, pass string) error {
	m.connectCalls++
	m.connected = true
	return nil
}
func (m *fakeMQTT) Subscribe(topic string) error   { return nil }
func (m *fakeMQTT) Unsubscribe(topic string) error { return nil }
func (m *fakeMQTT) Publish(topic string, payload []byte) error {
	m.published = append(m.published, [2]string{topic, string(payload)})
	return nil
}
func (m *fakeMQTT) Loop() error                    { m.loopCalls++; return nil }
func (m *fakeMQTT) Connected() bool                { return m.connected }
func (m *fakeMQTT) OnMessage(func(string, []byte)) {}
func (m *fakeMQTT) Disconnect() error {
	m.disconnectCalls++
	m.connected = false
	return nil
}

func TestSocketHTTPStartDisconnectsMQTTFirst(t *testing.T) {
	mq := &fakeMQTT{}
	d := &fakeDialer{conn: newFakeConn("HTTP/1.1 200 OK\r\n\r\nok")}
	h := NewHTTP(d, newClock())
	s := NewSocket(mq, h)

	if err := s.MQTTConnect("c1", "u", "p"); err != nil {
		t.Fatalf("MQTTConnect: %v", err)
	}
	if s.Owner() != OwnerMQTT {
		t.Fatalf("Owner() = %v, want OwnerMQTT", s.Owner())
	}

	if !s.HTTPStartGet("http://example.com/", 1000) {
		t.Fatal("expected HTTPStartGet to succeed")
	}
	if s.Owner() != OwnerHTTP {
		t.Fatalf("Owner() = %v, want OwnerHTTP after starting HTTP", s.Owner())
	}
	if mq.disconnectCalls != 1 {
		t.Fatalf("disconnectCalls = %d, want 1", mq.disconnectCalls)
	}
	if mq.connected {
		t.Fatal("expected MQTT to be disconnected once HTTP owns the socket")
	}
}

func TestSocketMQTTLoopIsNoopWhileHTTPOwnsSocket(t *testing.T) {
	mq := &fakeMQTT{}
	d := &fakeDialer{conn: newFakeConn("HTTP/1.1 200 OK\r\n\r\nok")}
	h := NewHTTP(d, newClock())
	s := NewSocket(mq, h)
	s.MQTTConnect("c1", "u", "p")
	s.HTTPStartGet("http://example.com/", 1000)

	loopCallsBefore := mq.loopCalls
	s.MQTTLoop()
	if mq.loopCalls != loopCallsBefore {
		t.Error("expected MQTTLoop to be a no-op while HTTP owns the socket")
	}
}

func TestSocketReturnsToNoneAfterHTTPCompletes(t *testing.T) {
	mq := &fakeMQTT{}
	d := &fakeDialer{conn: newFakeConn("HTTP/1.1 200 OK\r\n\r\nok")}
	tick, now := tickingClock(0)
	h := NewHTTP(d, now)
	s := NewSocket(mq, h)
	s.HTTPStartGet("http://example.com/", 1000)

	for i := 0; i < 5 && s.HTTPClient().State() == Reading; i++ {
		*tick += 10
		s.HTTPStep()
	}
	if s.Owner() != OwnerNone {
		t.Errorf("Owner() = %v, want OwnerNone once HTTP completes", s.Owner())
	}
}
