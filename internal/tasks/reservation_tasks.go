package tasks

import (
	"sync"

	"openenterprise/scootctl/internal/codec"
	"openenterprise/scootctl/internal/demux"
	"openenterprise/scootctl/internal/scheduler"
	"openenterprise/scootctl/internal/transport"
	"openenterprise/scootctl/internal/ui"
)

// ValidateReservationTask drives a full request/response round trip over
// MQTT for a scanned reservation: subscribe, publish the Trip, wait on the
// demultiplexed response, then unsubscribe. It is mandatory: the scheduler
// must not evict it mid-flight, since a dropped validate leaves the rider
// stuck on PleaseWait.
type ValidateReservationTask struct {
	scheduler.BaseTask
	socket      *transport.Socket
	demux       *demux.Demux
	respTopic   string
	reqTopic    string
	trip        codec.Trip
	nowMS       func() int64
	timeoutMS   int64
	phase       valPhase

	mu       sync.Mutex
	response []byte
	gotResp  bool

	TripIDOut    *string
	UsageOut     *codec.UsageState
	PageOut      *ui.Page
}

type valPhase int

const (
	valSubscribing valPhase = iota
	valPublishing
	valWaiting
	valDone
)

// NewValidateReservationTask constructs a validate task. timeoutMS is the
// overall round-trip budget (default 15s per spec §4.6).
func NewValidateReservationTask(socket *transport.Socket, dx *demux.Demux, reqTopic, respTopic string, trip codec.Trip, timeoutMS int64, nowMS func() int64, tripIDOut *string, usageOut *codec.UsageState, pageOut *ui.Page) *ValidateReservationTask {
	return &ValidateReservationTask{
		BaseTask:  scheduler.NewBaseTask(nowMS),
		socket:    socket,
		demux:     dx,
		respTopic: respTopic,
		reqTopic:  reqTopic,
		trip:      trip,
		nowMS:     nowMS,
		timeoutMS: timeoutMS,
		TripIDOut: tripIDOut,
		UsageOut:  usageOut,
		PageOut:   pageOut,
	}
}

func (t *ValidateReservationTask) IsMandatory() bool { return true }

// Deliver implements demux.Awaiter; the MQTT client's inbound callback
// forwards the response payload here off the scheduler's own tick.
func (t *ValidateReservationTask) Deliver(payload []byte) {
	t.mu.Lock()
	t.response = append([]byte(nil), payload...)
	t.gotResp = true
	t.mu.Unlock()
}

func (t *ValidateReservationTask) Execute() {
	t.MarkStarted()

	if t.ElapsedMS(t.nowMS()) > t.timeoutMS && t.phase != valDone {
		t.fail()
		return
	}

	switch t.phase {
	case valSubscribing:
		if !t.socket.MQTTConnected() {
			return // wait for keep-alive to (re)connect
		}
		if err := t.socket.MQTT().Subscribe(t.respTopic); err != nil {
			return
		}
		t.demux.Register(t.respTopic, t)
		t.phase = valPublishing

	case valPublishing:
		if !t.socket.MQTTConnected() {
			return
		}
		if err := t.socket.MQTT().Publish(t.reqTopic, codec.EncodeTrip(t.trip)); err != nil {
			return
		}
		t.phase = valWaiting

	case valWaiting:
		t.socket.MQTTLoop()
		t.mu.Lock()
		payload, got := t.response, t.gotResp
		t.mu.Unlock()
		if !got {
			return
		}
		resp, err := codec.DecodeTripValidationResponse(payload, nil)
		t.cleanup()
		if err == nil && resp.IsValid {
			*t.TripIDOut = t.trip.ID
			*t.UsageOut = codec.UsageReserved
			*t.PageOut = ui.Welcome
		} else {
			*t.PageOut = ui.GenericAlert
		}
		t.phase = valDone
		t.MarkCompleted()
	}
}

func (t *ValidateReservationTask) fail() {
	t.cleanup()
	*t.PageOut = ui.GenericAlert
	t.phase = valDone
	t.MarkCompleted()
}

func (t *ValidateReservationTask) cleanup() {
	t.demux.Unregister(t.respTopic)
	if t.socket.MQTTConnected() {
		t.socket.MQTT().Unsubscribe(t.respTopic)
	}
}

// TerminateReservationTask mirrors ValidateReservationTask for the
// end-of-rental round trip. Mandatory for the same reason: a dropped
// terminate leaves billing hanging.
type TerminateReservationTask struct {
	scheduler.BaseTask
	socket    *transport.Socket
	demux     *demux.Demux
	reqTopic  string
	respTopic string
	payload   codec.TripTerminationPayload
	nowMS     func() int64
	timeoutMS int64
	phase     valPhase

	mu       sync.Mutex
	response []byte
	gotResp  bool

	TripIDOut *string
	UsageOut  *codec.UsageState
	PageOut   *ui.Page
}

func NewTerminateReservationTask(socket *transport.Socket, dx *demux.Demux, reqTopic, respTopic string, payload codec.TripTerminationPayload, timeoutMS int64, nowMS func() int64, tripIDOut *string, usageOut *codec.UsageState, pageOut *ui.Page) *TerminateReservationTask {
	return &TerminateReservationTask{
		BaseTask:  scheduler.NewBaseTask(nowMS),
		socket:    socket,
		demux:     dx,
		reqTopic:  reqTopic,
		respTopic: respTopic,
		payload:   payload,
		nowMS:     nowMS,
		timeoutMS: timeoutMS,
		TripIDOut: tripIDOut,
		UsageOut:  usageOut,
		PageOut:   pageOut,
	}
}

func (t *TerminateReservationTask) IsMandatory() bool { return true }

func (t *TerminateReservationTask) Deliver(payload []byte) {
	t.mu.Lock()
	t.response = append([]byte(nil), payload...)
	t.gotResp = true
	t.mu.Unlock()
}

func (t *TerminateReservationTask) Execute() {
	t.MarkStarted()

	if t.ElapsedMS(t.nowMS()) > t.timeoutMS && t.phase != valDone {
		t.cleanup()
		*t.PageOut = ui.TripConclusionFailed
		t.phase = valDone
		t.MarkCompleted()
		return
	}

	switch t.phase {
	case valSubscribing:
		if !t.socket.MQTTConnected() {
			return
		}
		if err := t.socket.MQTT().Subscribe(t.respTopic); err != nil {
			return
		}
		t.demux.Register(t.respTopic, t)
		t.phase = valPublishing

	case valPublishing:
		if !t.socket.MQTTConnected() {
			return
		}
		if err := t.socket.MQTT().Publish(t.reqTopic, codec.EncodeTripTermination(t.payload)); err != nil {
			return
		}
		t.phase = valWaiting

	case valWaiting:
		t.socket.MQTTLoop()
		t.mu.Lock()
		payload, got := t.response, t.gotResp
		t.mu.Unlock()
		if !got {
			return
		}
		status, err := codec.DecodeTripStatusUpdate(payload)
		t.cleanup()
		if err == nil && status == codec.TripStatusComplete {
			*t.PageOut = ui.TripConclusion
			*t.TripIDOut = ""
			*t.UsageOut = codec.UsageIdle
		} else {
			*t.PageOut = ui.TripConclusionFailed
		}
		t.phase = valDone
		t.MarkCompleted()
	}
}

func (t *TerminateReservationTask) cleanup() {
	t.demux.Unregister(t.respTopic)
	if t.socket.MQTTConnected() {
		t.socket.MQTT().Unsubscribe(t.respTopic)
	}
}
