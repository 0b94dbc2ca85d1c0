// Package tasks is the catalog of concrete scheduler tasks: MQTT publish,
// MQTT keep-alive, HTTP pump, cell-tower query, geolocation lookup, and the
// two reservation request/response tasks.
package tasks

import (
	"log/slog"

	"openenterprise/scootctl/internal/scheduler"
	"openenterprise/scootctl/internal/transport"
)

// MqttPublishTask is a one-shot publish. It is not mandatory; queue
// pressure may drop it, which is acceptable since telemetry/alerts are
// re-derived and re-sent on the next cadence.
type MqttPublishTask struct {
	scheduler.BaseTask
	socket  *transport.Socket
	topic   string
	payload []byte
	log     *slog.Logger
}

// NewMqttPublishTask constructs a publish task. payload is copied so the
// caller's buffer may be reused immediately.
func NewMqttPublishTask(socket *transport.Socket, topic string, payload []byte, nowMS func() int64, log *slog.Logger) *MqttPublishTask {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return &MqttPublishTask{
		BaseTask: scheduler.NewBaseTask(nowMS),
		socket:   socket,
		topic:    topic,
		payload:  cp,
		log:      log,
	}
}

func (t *MqttPublishTask) Execute() {
	t.MarkStarted()
	var err error
	if t.socket.MQTTConnected() {
		err = t.socket.MQTT().Publish(t.topic, t.payload)
	} else {
		err = transport.ErrNotIdle
	}
	if err != nil && t.log != nil {
		t.log.Warn("mqtt_publish:failed", slog.String("topic", t.topic), slog.String("err", err.Error()))
	} else if t.log != nil {
		t.log.Debug("mqtt_publish:ok", slog.String("topic", t.topic), slog.Int("bytes", len(t.payload)))
	}
	t.MarkCompleted()
}

// MqttKeepAliveTask is filler-priority, one-shot: it pumps inbound traffic
// and re-attempts connect at most once per the configured backoff, per
// spec §4.5.
type MqttKeepAliveTask struct {
	scheduler.BaseTask
	socket       *transport.Socket
	clientID     string
	user         string
	pass         string
	backoffMS    int64
	lastAttempt  *int64
	nowMS        func() int64
}

// NewMqttKeepAliveTask constructs a keep-alive task. lastAttempt is a
// pointer to shared state (owned by the orchestrator) so reconnect backoff
// persists across the many keep-alive tasks enqueued over the vehicle's
// lifetime.
func NewMqttKeepAliveTask(socket *transport.Socket, clientID, user, pass string, backoffMS int64, lastAttempt *int64, nowMS func() int64) *MqttKeepAliveTask {
	return &MqttKeepAliveTask{
		BaseTask:    scheduler.NewBaseTask(nowMS),
		socket:      socket,
		clientID:    clientID,
		user:        user,
		pass:        pass,
		backoffMS:   backoffMS,
		lastAttempt: lastAttempt,
		nowMS:       nowMS,
	}
}

func (t *MqttKeepAliveTask) Execute() {
	t.MarkStarted()
	if t.socket.Owner() == transport.OwnerHTTP {
		// Socket is busy with HTTP this tick; nothing to do.
		t.MarkCompleted()
		return
	}

	if t.socket.MQTTConnected() {
		t.socket.MQTTLoop()
		t.MarkCompleted()
		return
	}

	now := t.nowMS()
	if now-*t.lastAttempt >= t.backoffMS {
		*t.lastAttempt = now
		t.socket.MQTTConnect(t.clientID, t.user, t.pass)
	}
	t.MarkCompleted()
}

// HttpPumpTask is a one-shot tick of the HTTP state machine.
type HttpPumpTask struct {
	scheduler.BaseTask
	socket *transport.Socket
}

func NewHttpPumpTask(socket *transport.Socket, nowMS func() int64) *HttpPumpTask {
	return &HttpPumpTask{BaseTask: scheduler.NewBaseTask(nowMS), socket: socket}
}

func (t *HttpPumpTask) Execute() {
	t.MarkStarted()
	t.socket.HTTPStep()
	t.MarkCompleted()
}
