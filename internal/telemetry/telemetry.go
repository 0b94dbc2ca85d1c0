// Package telemetry provides OpenTelemetry-shaped logging and metrics for
// the controller with a zero-heap, bounded-queue design: every log and
// metric point lives in a fixed-size circular buffer until a periodic
// flush ships it to a collector, so a stalled network never grows memory.
package telemetry

import (
	"sync"
	"time"
)

// FlushInterval is how often queued telemetry is shipped to the collector.
const FlushInterval = 30 * time.Second

// Log severity levels (OTLP standard).
const (
	SeverityDebug = 5
	SeverityInfo  = 9
	SeverityWarn  = 13
	SeverityError = 17
)

// LogEntry is one queued log record.
type LogEntry struct {
	Timestamp int64
	Severity  uint8
	BodyLen   uint8
	Body      [128]byte
}

// MetricPoint is one queued metric sample.
type MetricPoint struct {
	Timestamp int64
	Value     int64
	NameLen   uint8
	Name      [32]byte
	IsGauge   bool
}

const (
	logQueueSize    = 16
	metricQueueSize = 16
)

var (
	mu          sync.Mutex
	enabled     bool
	paused      bool
	logQueue    [logQueueSize]LogEntry
	logHead     int
	logCount    int
	metricQueue [metricQueueSize]MetricPoint
	metricHead  int
	metricCount int

	sentLogs    int
	sentMetrics int
	sendErrors  int
)

// Enable turns on queuing; Disable is the default state until something
// calls Enable (normally the link-bringup step, once the collector address
// is known).
func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

// Disable stops queuing new entries; already-queued entries remain until
// flushed or overwritten.
func Disable() {
	mu.Lock()
	enabled = false
	mu.Unlock()
}

// Pause suspends sending without discarding queued entries, for use around
// operations that must not contend for the link (a validate/terminate
// round-trip, for instance).
func Pause() {
	mu.Lock()
	paused = true
	mu.Unlock()
}

// Resume lifts a Pause.
func Resume() {
	mu.Lock()
	paused = false
	mu.Unlock()
}

// IsPaused reports whether sending is currently paused.
func IsPaused() bool {
	mu.Lock()
	defer mu.Unlock()
	return paused
}

// Log queues a log entry at the given severity. Entries queued while
// disabled are dropped; a full queue overwrites its oldest entry.
func Log(severity uint8, msg string) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}

	idx := (logHead + logCount) % len(logQueue)
	if logCount >= len(logQueue) {
		logHead = (logHead + 1) % len(logQueue)
	} else {
		logCount++
	}

	e := &logQueue[idx]
	e.Timestamp = time.Now().UnixMilli()
	e.Severity = severity
	n := len(msg)
	if n > len(e.Body) {
		n = len(e.Body)
	}
	e.BodyLen = uint8(n)
	copy(e.Body[:], msg[:n])
}

func LogDebug(msg string) { Log(SeverityDebug, msg) }
func LogInfo(msg string)  { Log(SeverityInfo, msg) }
func LogWarn(msg string)  { Log(SeverityWarn, msg) }
func LogError(msg string) { Log(SeverityError, msg) }

// RecordGauge queues a point-in-time gauge metric sample.
func RecordGauge(name string, value int64) { recordMetric(name, value, true) }

// RecordCounter queues a monotonic counter sample.
func RecordCounter(name string, value int64) { recordMetric(name, value, false) }

func recordMetric(name string, value int64, isGauge bool) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}

	idx := (metricHead + metricCount) % len(metricQueue)
	if metricCount >= len(metricQueue) {
		metricHead = (metricHead + 1) % len(metricQueue)
	} else {
		metricCount++
	}

	p := &metricQueue[idx]
	p.Timestamp = time.Now().UnixMilli()
	p.Value = value
	p.IsGauge = isGauge
	n := len(name)
	if n > len(p.Name) {
		n = len(p.Name)
	}
	p.NameLen = uint8(n)
	copy(p.Name[:], name[:n])
}

// drainLogs removes and returns up to len(out) queued log entries, oldest
// first, clearing the queue. Used by the collector-specific sender.
func drainLogs(out []LogEntry) int {
	mu.Lock()
	defer mu.Unlock()
	n := logCount
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = logQueue[(logHead+i)%len(logQueue)]
	}
	logHead = 0
	logCount = 0
	return n
}

// drainMetrics is the MetricPoint analogue of drainLogs.
func drainMetrics(out []MetricPoint) int {
	mu.Lock()
	defer mu.Unlock()
	n := metricCount
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = metricQueue[(metricHead+i)%len(metricQueue)]
	}
	metricHead = 0
	metricCount = 0
	return n
}

func recordSent(logs, metrics int) {
	mu.Lock()
	sentLogs += logs
	sentMetrics += metrics
	mu.Unlock()
}

func recordSendError() {
	mu.Lock()
	sendErrors++
	mu.Unlock()
}

// Status reports current queue depths and cumulative counters, for the
// debug console and the simulation harness's metrics endpoint.
func Status() (isEnabled, isPaused bool, queuedLogs, queuedMetrics, sentLogsCount, sentMetricsCount, errs int) {
	mu.Lock()
	defer mu.Unlock()
	return enabled, paused, logCount, metricCount, sentLogs, sentMetrics, sendErrors
}
