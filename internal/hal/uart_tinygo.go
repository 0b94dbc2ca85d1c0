//go:build tinygo

package hal

import "machine"

// lineBuf accumulates UART bytes into newline-delimited lines without
// blocking: ReadLine only returns once a full line has arrived, draining
// whatever the UART has buffered on each call.
type lineBuf struct {
	uart *machine.UART
	buf  [256]byte
	n    int
}

func (l *lineBuf) fill() {
	for l.uart.Buffered() > 0 && l.n < len(l.buf) {
		b, err := l.uart.ReadByte()
		if err != nil {
			return
		}
		l.buf[l.n] = b
		l.n++
	}
}

func (l *lineBuf) nextLine() (string, bool) {
	l.fill()
	for i := 0; i < l.n; i++ {
		if l.buf[i] == '\n' {
			line := string(l.buf[:i])
			if i > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			remaining := l.n - (i + 1)
			copy(l.buf[:remaining], l.buf[i+1:l.n])
			l.n = remaining
			return line, true
		}
	}
	return "", false
}

// UARTModem drives the cellular modem's AT-command interface over a UART.
type UARTModem struct {
	lineBuf
}

// NewUARTModem wires a modem on uart.
func NewUARTModem(uart *machine.UART) *UARTModem {
	return &UARTModem{lineBuf{uart: uart}}
}

// WriteCommand sends cmd terminated with CRLF, as AT modems expect.
func (m *UARTModem) WriteCommand(cmd string) error {
	_, err := m.uart.Write([]byte(cmd + "\r\n"))
	return err
}

// ReadLine returns the next whole line the modem has sent, if any.
func (m *UARTModem) ReadLine() (string, bool) {
	return m.nextLine()
}

// UARTQRScanner reads decoded barcode payloads from a scanner module
// wired as a UART keyboard-wedge-style device: one line per scan.
type UARTQRScanner struct {
	lineBuf
}

// NewUARTQRScanner wires a scanner on uart.
func NewUARTQRScanner(uart *machine.UART) *UARTQRScanner {
	return &UARTQRScanner{lineBuf{uart: uart}}
}

// ReadCode returns the next decoded payload, if one has arrived.
func (s *UARTQRScanner) ReadCode() (string, bool) {
	return s.nextLine()
}
