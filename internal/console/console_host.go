//go:build !tinygo

package console

import (
	"log/slog"
	"net"
)

// Serve accepts connections on ln and services each one with Handle, one at
// a time, until ln is closed. The host simulation harness has no hardware
// to reboot and no real TCP/IP stack to share, so it gets a plain
// net.Listener instead of console_tinygo.go's lneto/xnet accept loop.
func (srv *Server) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if srv.Locked() {
			conn.Close()
			continue
		}
		srv.Handle(conn)
		conn.Close()
		if srv.Log != nil {
			srv.Log.Info("console:session-ended", slog.String("remote", conn.RemoteAddr().String()))
		}
	}
}
