//go:build tinygo

package telemetry

import (
	"errors"
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

const (
	maxRetries = 2
)

var (
	tcpRxBuf [512]byte
	tcpTxBuf [2560]byte
	bodyBuf  [2048]byte
	respBuf  [256]byte
)

// Sender runs the periodic flush loop over the shared network stack,
// dialing its own short-lived TCP connection to the collector (separate
// from the MQTT/HTTP socket the Transport Client owns, since this is an
// observability side-channel rather than part of the rental protocol).
type Sender struct {
	stack     *xnet.StackAsync
	collector netip.AddrPort
	running   bool
}

// NewSender constructs a Sender bound to stack and collector.
func NewSender(stack *xnet.StackAsync, collector netip.AddrPort) *Sender {
	return &Sender{stack: stack, collector: collector}
}

// Run blocks, flushing queued telemetry every FlushInterval, until ctx-like
// cancellation is signaled by calling Stop. Intended to run in its own
// goroutine, started once at boot.
func (s *Sender) Run() {
	s.running = true
	for s.running {
		time.Sleep(FlushInterval)
		if IsPaused() {
			continue
		}
		s.flushOnce()
	}
}

// Stop ends the Run loop after its current sleep completes.
func (s *Sender) Stop() { s.running = false }

func (s *Sender) flushOnce() {
	var logs [logQueueSize]LogEntry
	n := drainLogs(logs[:])
	if n > 0 {
		body := encodeLogsJSON(bodyBuf[:0], logs[:n])
		if err := s.postJSON("/v1/logs", body); err != nil {
			recordSendError()
		} else {
			recordSent(n, 0)
		}
	}

	var metrics [metricQueueSize]MetricPoint
	m := drainMetrics(metrics[:])
	if m > 0 {
		body := encodeMetricsJSON(bodyBuf[:0], metrics[:m])
		if err := s.postJSON("/v1/metrics", body); err != nil {
			recordSendError()
		} else {
			recordSent(0, m)
		}
	}
}

func (s *Sender) postJSON(path string, body []byte) error {
	if s.stack == nil {
		return errors.New("telemetry: no stack")
	}

	var conn tcp.Conn
	if err := conn.Configure(tcp.ConnConfig{RxBuf: tcpRxBuf[:], TxBuf: tcpTxBuf[:], TxPacketQueueSize: 3}); err != nil {
		return err
	}

	rstack := s.stack.StackRetrying(5 * time.Millisecond)
	lport := uint16(s.stack.Prand32()>>17) + 1024

	if err := rstack.DoDialTCP(&conn, lport, s.collector, HTTPTimeout, maxRetries); err != nil {
		conn.Abort()
		return err
	}
	time.Sleep(50 * time.Millisecond)
	if !conn.State().IsSynchronized() {
		conn.Abort()
		return errors.New("telemetry: connection not established")
	}

	conn.SetDeadline(time.Now().Add(HTTPTimeout))
	conn.Write([]byte("POST "))
	conn.Write([]byte(path))
	conn.Write([]byte(" HTTP/1.1\r\nHost: "))
	conn.Write([]byte(s.collector.Addr().String()))
	conn.Write([]byte("\r\nContent-Type: application/json\r\nContent-Length: "))
	writeHTTPInt(&conn, len(body))
	conn.Write([]byte("\r\nConnection: close\r\n\r\n"))
	conn.Flush()
	time.Sleep(50 * time.Millisecond)

	written := 0
	for written < len(body) {
		chunk := len(body) - written
		if chunk > 1024 {
			chunk = 1024
		}
		wn, err := conn.Write(body[written : written+chunk])
		if err != nil {
			conn.Abort()
			return errors.New("telemetry: body write failed")
		}
		written += wn
		conn.Flush()
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	respLen, _ := conn.Read(respBuf[:])
	conn.Close()
	for i := 0; i < 10 && !conn.State().IsClosed(); i++ {
		time.Sleep(100 * time.Millisecond)
	}
	conn.Abort()
	s.stack.DiscardResolveHardwareAddress6(s.collector.Addr())

	if respLen >= 12 && respBuf[9] == '2' {
		return nil
	}
	return errors.New("telemetry: http error")
}

// HTTPTimeout bounds a single flush POST.
const HTTPTimeout = 10 * time.Second

func writeHTTPInt(conn *tcp.Conn, n int) {
	if n == 0 {
		conn.Write([]byte{'0'})
		return
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	conn.Write(buf[i:])
}

// encodeLogsJSON hand-rolls a minimal JSON array, avoiding encoding/json's
// reflection on this build (TinyGo's reflect support is limited and the
// heap budget here is tight).
func encodeLogsJSON(buf []byte, entries []LogEntry) []byte {
	buf = append(buf, '[')
	for i, e := range entries {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"timestamp_ms":`...)
		buf = appendInt(buf, e.Timestamp)
		buf = append(buf, `,"severity":`...)
		buf = appendInt(buf, int64(e.Severity))
		buf = append(buf, `,"body":"`...)
		buf = appendJSONEscaped(buf, string(e.Body[:e.BodyLen]))
		buf = append(buf, `"}`...)
	}
	buf = append(buf, ']')
	return buf
}

func encodeMetricsJSON(buf []byte, points []MetricPoint) []byte {
	buf = append(buf, '[')
	for i, p := range points {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"timestamp_ms":`...)
		buf = appendInt(buf, p.Timestamp)
		buf = append(buf, `,"name":"`...)
		buf = appendJSONEscaped(buf, string(p.Name[:p.NameLen]))
		buf = append(buf, `","value":`...)
		buf = appendInt(buf, p.Value)
		buf = append(buf, `,"is_gauge":`...)
		if p.IsGauge {
			buf = append(buf, "true"...)
		} else {
			buf = append(buf, "false"...)
		}
		buf = append(buf, '}')
	}
	buf = append(buf, ']')
	return buf
}

func appendInt(buf []byte, n int64) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	if n < 0 {
		buf = append(buf, '-')
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return append(buf, digits[i:]...)
}

func appendJSONEscaped(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			buf = append(buf, '\\', c)
		default:
			buf = append(buf, c)
		}
	}
	return buf
}
