//go:build tinygo

package console

import (
	"log/slog"
	"time"

	"github.com/soypat/lneto/tcp"
	"github.com/soypat/lneto/x/xnet"
)

// Port is the Telnet-style debug console's listen port, matching the
// teacher's own console.go.
const Port = uint16(23)

const connBufSize = 1024

// Serve runs the console's accept loop on stack until the program exits.
// Grounded on console.go's consoleServer: abort-then-listen on each pass,
// honoring Server.Locked()'s backoff between failed-auth attempts.
func (srv *Server) Serve(stack *xnet.StackAsync) {
	var conn tcp.Conn
	var rxBuf, txBuf [connBufSize]byte
	if err := conn.Configure(tcp.ConnConfig{RxBuf: rxBuf[:], TxBuf: txBuf[:], TxPacketQueueSize: 3}); err != nil {
		if srv.Log != nil {
			srv.Log.Error("console:configure-failed", slog.String("err", err.Error()))
		}
		return
	}

	for {
		conn.Abort()
		time.Sleep(100 * time.Millisecond)

		if srv.Locked() {
			time.Sleep(time.Second)
			continue
		}

		if err := stack.ListenTCP(&conn, Port); err != nil {
			time.Sleep(3 * time.Second)
			continue
		}

		for i := 0; conn.State().IsPreestablished() && i < 6000; i++ {
			time.Sleep(10 * time.Millisecond)
		}
		if !conn.State().IsSynchronized() {
			continue
		}

		srv.Handle(&tcpReadWriter{conn: &conn})

		conn.Close()
		for i := 0; i < 30 && !conn.State().IsClosed(); i++ {
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// tcpReadWriter adapts a lneto tcp.Conn's Write+Flush pair to io.ReadWriter
// so Server.Handle can stay build-tag-free.
type tcpReadWriter struct{ conn *tcp.Conn }

func (t *tcpReadWriter) Read(p []byte) (int, error) { return t.conn.Read(p) }

func (t *tcpReadWriter) Write(p []byte) (int, error) {
	n, err := t.conn.Write(p)
	t.conn.Flush()
	return n, err
}
