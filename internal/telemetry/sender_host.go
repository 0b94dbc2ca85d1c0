//go:build !tinygo

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HTTPTimeout bounds a single flush POST.
const HTTPTimeout = 10 * time.Second

// Sender runs the periodic flush loop against a real collector endpoint,
// for the host-buildable simulation harness. The TinyGo build instead uses
// a hand-rolled lneto/tcp client (see sender_tinygo.go); this path exists
// because the simulation harness links against net/http directly rather
// than reimplementing a TCP client atop a real OS socket.
type Sender struct {
	collectorURL string
	client       *http.Client
	log          zerolog.Logger

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewSender constructs a Sender that POSTs batches to collectorURL
// ("http://host:port"); log receives diagnostics for failed flushes.
func NewSender(collectorURL string, log zerolog.Logger) *Sender {
	return &Sender{
		collectorURL: collectorURL,
		client:       &http.Client{Timeout: HTTPTimeout},
		log:          log,
	}
}

// Start launches the background flush loop. Calling Start twice without an
// intervening Stop is a programmer error.
func (s *Sender) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error {
		return s.loop(gctx)
	})
}

// Stop cancels the flush loop and waits for it to exit.
func (s *Sender) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	return s.group.Wait()
}

func (s *Sender) loop(ctx context.Context) error {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if IsPaused() {
				continue
			}
			s.flushOnce()
		}
	}
}

// Flush ships whatever is currently queued, bypassing the ticker; used by
// tests and by a graceful-shutdown path.
func (s *Sender) Flush() {
	s.flushOnce()
}

func (s *Sender) flushOnce() {
	var logs [logQueueSize]LogEntry
	n := drainLogs(logs[:])
	if n > 0 {
		if err := s.postJSON("/v1/logs", encodeLogsJSON(logs[:n])); err != nil {
			recordSendError()
			s.log.Debug().Err(err).Msg("telemetry: logs flush failed")
		} else {
			recordSent(n, 0)
		}
	}

	var metrics [metricQueueSize]MetricPoint
	m := drainMetrics(metrics[:])
	if m > 0 {
		if err := s.postJSON("/v1/metrics", encodeMetricsJSON(metrics[:m])); err != nil {
			recordSendError()
			s.log.Debug().Err(err).Msg("telemetry: metrics flush failed")
		} else {
			recordSent(0, m)
		}
	}
}

func (s *Sender) postJSON(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.collectorURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telemetry: collector returned %s", resp.Status)
	}
	return nil
}

type jsonLogEntry struct {
	TimestampMS int64  `json:"timestamp_ms"`
	Severity    uint8  `json:"severity"`
	Body        string `json:"body"`
}

func encodeLogsJSON(entries []LogEntry) []byte {
	out := make([]jsonLogEntry, len(entries))
	for i, e := range entries {
		out[i] = jsonLogEntry{TimestampMS: e.Timestamp, Severity: e.Severity, Body: string(e.Body[:e.BodyLen])}
	}
	b, _ := json.Marshal(out)
	return b
}

type jsonMetricPoint struct {
	TimestampMS int64  `json:"timestamp_ms"`
	Name        string `json:"name"`
	Value       int64  `json:"value"`
	IsGauge     bool   `json:"is_gauge"`
}

func encodeMetricsJSON(points []MetricPoint) []byte {
	out := make([]jsonMetricPoint, len(points))
	for i, p := range points {
		out[i] = jsonMetricPoint{TimestampMS: p.Timestamp, Name: string(p.Name[:p.NameLen]), Value: p.Value, IsGauge: p.IsGauge}
	}
	b, _ := json.Marshal(out)
	return b
}
