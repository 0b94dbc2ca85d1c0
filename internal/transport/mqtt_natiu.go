//go:build tinygo

package transport

import (
	"errors"
	"io"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	natiuTCPBufSize  = 2030
	natiuMQTTBufSize = 512
)

// NatiuMQTT implements the MQTT interface over natiu-mqtt, framed on top of
// a soypat/lneto TCP connection. It is the tinygo-build counterpart to a
// fake MQTT used in tests: one request-response cycle at a time, polled
// from the cooperative loop rather than blocked on.
type NatiuMQTT struct {
	conn       tcp.Conn
	client     *mqtt.Client
	brokerAddr netip.AddrPort
	dialFn     func(*tcp.Conn, netip.AddrPort, time.Duration) error

	rxBuf   [natiuTCPBufSize]byte
	txBuf   [natiuTCPBufSize]byte
	userBuf [natiuMQTTBufSize]byte

	onMessage func(topic string, payload []byte)
	connected bool
}

// NewNatiuMQTT constructs a client dialing brokerAddr. dialFn performs the
// actual TCP handshake (retrying stack dial); it is injected so the
// network stack bring-up in cmd/controller stays the only place that knows
// about the lneto/xnet stack.
func NewNatiuMQTT(brokerAddr netip.AddrPort, dialFn func(*tcp.Conn, netip.AddrPort, time.Duration) error) *NatiuMQTT {
	return &NatiuMQTT{brokerAddr: brokerAddr, dialFn: dialFn}
}

// Connect implements MQTT.
func (m *NatiuMQTT) Connect(clientID, user, pass string) error {
	if err := m.conn.Configure(tcp.ConnConfig{
		RxBuf:             m.rxBuf[:],
		TxBuf:             m.txBuf[:],
		TxPacketQueueSize: 3,
	}); err != nil {
		return err
	}
	if err := m.dialFn(&m.conn, m.brokerAddr, 10*time.Second); err != nil {
		return err
	}

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: m.userBuf[:]},
		OnPub:   m.onPub,
	}
	m.client = mqtt.NewClient(cfg)

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(clientID))
	if user != "" {
		varconn.UsernameFlag = true
		varconn.Username = []byte(user)
	}
	if pass != "" {
		varconn.PasswordFlag = true
		varconn.Password = []byte(pass)
	}

	m.conn.SetDeadline(time.Now().Add(10 * time.Second))
	if err := m.client.StartConnect(&m.conn, &varconn); err != nil {
		return err
	}
	for i := 0; i < 50 && !m.client.IsConnected(); i++ {
		time.Sleep(100 * time.Millisecond)
		if err := m.client.HandleNext(); err != nil {
			return err
		}
	}
	if !m.client.IsConnected() {
		return errors.New("transport: mqtt connect timeout")
	}
	m.connected = true
	return nil
}

// Subscribe implements MQTT.
func (m *NatiuMQTT) Subscribe(topic string) error {
	sub := mqtt.VariablesSubscribe{
		TopicFilters: []mqtt.SubscribeRequest{{TopicFilter: []byte(topic), QoS: mqtt.QoS0}},
	}
	return m.client.StartSubscribe(sub)
}

// Unsubscribe implements MQTT.
func (m *NatiuMQTT) Unsubscribe(topic string) error {
	return m.client.StartUnsubscribe(mqtt.VariablesUnsubscribe{
		TopicFilters: [][]byte{[]byte(topic)},
	})
}

// Publish implements MQTT.
func (m *NatiuMQTT) Publish(topic string, payload []byte) error {
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return err
	}
	pubVar := mqtt.VariablesPublish{TopicName: []byte(topic)}
	return m.client.PublishPayload(flags, pubVar, payload)
}

// Loop implements MQTT: it pumps whatever packets the underlying
// connection currently has buffered and reports a dropped connection as an
// error.
func (m *NatiuMQTT) Loop() error {
	if m.client == nil {
		return errors.New("transport: mqtt not connected")
	}
	err := m.client.HandleNext()
	if err != nil || !m.client.IsConnected() {
		m.connected = false
	}
	return err
}

// Connected implements MQTT.
func (m *NatiuMQTT) Connected() bool { return m.connected }

// Disconnect implements MQTT: it closes the underlying TCP connection so
// the shared socket can be dialed for HTTP. Safe to call when already
// disconnected.
func (m *NatiuMQTT) Disconnect() error {
	m.connected = false
	if m.client == nil {
		return nil
	}
	return m.conn.Close()
}

// OnMessage implements MQTT.
func (m *NatiuMQTT) OnMessage(f func(topic string, payload []byte)) { m.onMessage = f }

func (m *NatiuMQTT) onPub(_ mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
	n, err := r.Read(m.userBuf[:])
	if err != nil && err != io.EOF {
		return err
	}
	if m.onMessage != nil {
		m.onMessage(string(varPub.TopicName), m.userBuf[:n])
	}
	return nil
}
