//go:build !tinygo

package main

import (
	"fmt"

	"openenterprise/scootctl/internal/transport"
)

// loopbackDialer answers every Dial with a loopbackConn that returns a
// canned geolocation response, so the HTTP-backed geolocation lookup task
// exercises end to end without a real HTTP endpoint.
type loopbackDialer struct {
	lat, lon float32
}

func (d *loopbackDialer) Dial(addr string) (transport.Conn, error) {
	return &loopbackConn{dialer: d, connected: true}, nil
}

type loopbackConn struct {
	dialer    *loopbackDialer
	connected bool
	written   bool
	served    bool
}

func (c *loopbackConn) Write(p []byte) (int, error) {
	c.written = true
	return len(p), nil
}

func (c *loopbackConn) Read(p []byte) (int, error) {
	if !c.written || c.served {
		return 0, nil
	}
	c.served = true
	body := fmt.Sprintf(`{"lat":%f,"lon":%f}`, c.dialer.lat, c.dialer.lon)
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
	return copy(p, resp), nil
}

func (c *loopbackConn) Close() error    { c.connected = false; return nil }
func (c *loopbackConn) Connected() bool { return c.connected }
