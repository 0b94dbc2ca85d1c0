//go:build tinygo

package transport

import (
	"net/netip"
	"time"

	"github.com/soypat/lneto/tcp"
)

// LnetoDialer implements Dialer over a soypat/lneto TCP stack, sharing the
// dial function the MQTT client uses so both interfaces go through the
// same retrying-connect logic.
type LnetoDialer struct {
	DialFn  func(*tcp.Conn, netip.AddrPort, time.Duration) error
	Resolve func(addr string) (netip.AddrPort, error)
	Timeout time.Duration
}

// Dial implements Dialer.
func (d *LnetoDialer) Dial(addr string) (Conn, error) {
	ap, err := d.Resolve(addr)
	if err != nil {
		return nil, err
	}
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	conn := &lnetoConn{}
	if err := conn.tcp.Configure(tcp.ConnConfig{
		RxBuf:             conn.rxBuf[:],
		TxBuf:             conn.txBuf[:],
		TxPacketQueueSize: 3,
	}); err != nil {
		return nil, err
	}
	if err := d.DialFn(&conn.tcp, ap, timeout); err != nil {
		return nil, err
	}
	return conn, nil
}

const lnetoConnBufSize = 2030

// lnetoConn adapts a lneto tcp.Conn to the Conn interface HTTP expects.
type lnetoConn struct {
	tcp   tcp.Conn
	rxBuf [lnetoConnBufSize]byte
	txBuf [lnetoConnBufSize]byte
}

func (c *lnetoConn) Write(p []byte) (int, error) { return c.tcp.Write(p) }
func (c *lnetoConn) Read(p []byte) (int, error)  { return c.tcp.Read(p) }
func (c *lnetoConn) Close() error                { return c.tcp.Close() }
func (c *lnetoConn) Connected() bool             { return !c.tcp.State().IsClosed() }
