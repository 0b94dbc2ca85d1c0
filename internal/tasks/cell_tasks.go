package tasks

import (
	"strconv"
	"strings"

	"openenterprise/scootctl/internal/cellinfo"
	"openenterprise/scootctl/internal/scheduler"
	"openenterprise/scootctl/internal/transport"
)

// LineReader is the non-blocking modem UART surface: WriteCommand sends an
// AT command once, ReadLine drains whatever whole lines are currently
// buffered (ok=false means nothing new yet).
type LineReader interface {
	WriteCommand(cmd string) error
	ReadLine() (line string, ok bool)
}

// CellTowerQueryTask sends the serving-cell-info command, then drains the
// modem line by line until a CPSI line, an ERROR, or timeoutMs elapses.
type CellTowerQueryTask struct {
	scheduler.BaseTask
	uart      LineReader
	out       *cellinfo.Info
	timeoutMS int64
	nowMS     func() int64
	sent      bool
	ok        bool
}

// NewCellTowerQueryTask constructs a query task writing the result into
// out on success. timeoutMS should be 2000-5000 per spec §4.7.
func NewCellTowerQueryTask(uart LineReader, out *cellinfo.Info, timeoutMS int64, nowMS func() int64) *CellTowerQueryTask {
	return &CellTowerQueryTask{BaseTask: scheduler.NewBaseTask(nowMS), uart: uart, out: out, timeoutMS: timeoutMS, nowMS: nowMS}
}

// Succeeded reports whether the last completed run produced a valid Info.
func (t *CellTowerQueryTask) Succeeded() bool { return t.ok }

func (t *CellTowerQueryTask) Execute() {
	t.MarkStarted()

	if !t.sent {
		t.uart.WriteCommand("AT+CPSI?")
		t.sent = true
		return
	}

	line, gotLine := t.uart.ReadLine()
	if gotLine {
		if strings.Contains(line, "+CPSI:") {
			info, err := cellinfo.ParseCPSILine(line)
			if err == nil {
				*t.out = info
				t.ok = true
			}
			t.MarkCompleted()
			return
		}
		if strings.Contains(line, "ERROR") {
			t.MarkCompleted()
			return
		}
	}

	if t.ElapsedMS(t.nowMS()) > t.timeoutMS {
		t.MarkCompleted()
	}
}

// GeolocationLookupTask posts the cell-query result to the geolocation
// endpoint and extracts lat/lon from the JSON response body via a naive
// key/value scan, per spec §4.7.
type GeolocationLookupTask struct {
	scheduler.BaseTask
	socket    *transport.Socket
	in        *cellinfo.Info
	latOut    *float32
	lonOut    *float32
	geoAPIURL string
	token     string
	timeoutMS int64
	started   bool
	ok        bool
}

// NewGeolocationLookupTask constructs a lookup task. On completion, in's
// IsOutdated flag is set so the cell-query -> geo-lookup pair re-issues.
func NewGeolocationLookupTask(socket *transport.Socket, in *cellinfo.Info, latOut, lonOut *float32, geoAPIURL, token string, timeoutMS int64, nowMS func() int64) *GeolocationLookupTask {
	return &GeolocationLookupTask{
		BaseTask: scheduler.NewBaseTask(nowMS), socket: socket, in: in,
		latOut: latOut, lonOut: lonOut, geoAPIURL: geoAPIURL, token: token, timeoutMS: timeoutMS,
	}
}

// Succeeded reports whether the last completed run parsed lat/lon.
func (t *GeolocationLookupTask) Succeeded() bool { return t.ok }

func (t *GeolocationLookupTask) Execute() {
	t.MarkStarted()

	if !t.started {
		if t.socket.HTTPClient().State() != transport.Idle {
			return // wait for the socket to free up
		}
		body := t.in.BuildLocationAPIBody(t.token)
		if !t.socket.HTTPStartPostJSON(t.geoAPIURL, body, t.timeoutMS) {
			return
		}
		t.started = true
		return
	}

	t.socket.HTTPStep()
	state := t.socket.HTTPClient().State()
	if state != transport.Done && state != transport.Error {
		return
	}

	if state == transport.Done {
		resp := t.socket.HTTPClient().Result()
		bodyStart := indexOfHeaderEnd(resp)
		body := resp[bodyStart:]
		if lat, ok := scanJSONNumber(body, "lat"); ok {
			*t.latOut = lat
		}
		if lon, ok := scanJSONNumber(body, "lon"); ok {
			*t.lonOut = lon
		}
		t.ok = true
	}

	t.in.IsOutdated = true
	t.socket.HTTPClient().Reset()
	t.MarkCompleted()
}

// indexOfHeaderEnd returns the offset just past the blank line separating
// HTTP headers from the body, or 0 if none is found (treat the whole thing
// as body).
func indexOfHeaderEnd(resp []byte) int {
	const sep = "\r\n\r\n"
	for i := 0; i+len(sep) <= len(resp); i++ {
		if string(resp[i:i+len(sep)]) == sep {
			return i + len(sep)
		}
	}
	return 0
}

// scanJSONNumber locates `"key"` in body, then the following numeric
// literal (a naive scan, not a JSON parser, per spec §4.7).
func scanJSONNumber(body []byte, key string) (float32, bool) {
	needle := `"` + key + `"`
	idx := strings.Index(string(body), needle)
	if idx < 0 {
		return 0, false
	}
	rest := string(body[idx+len(needle):])

	i := 0
	for i < len(rest) && (rest[i] == ':' || rest[i] == ' ' || rest[i] == '"') {
		i++
	}
	start := i
	for i < len(rest) && isNumberByte(rest[i]) {
		i++
	}
	if i == start {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest[start:i], 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

func isNumberByte(b byte) bool {
	return b == '-' || b == '+' || b == '.' || (b >= '0' && b <= '9')
}
