// Package rental implements the Rental Orchestrator: the state machine that
// turns a scanned QR code into a validated reservation, watches the helmet
// switch to flip between Reserved and InUse, and drives termination back to
// Idle. It owns the response-topic demultiplexer, produces alerts, and
// emits telemetry on a fixed cadence.
package rental

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"openenterprise/scootctl/internal/codec"
	"openenterprise/scootctl/internal/demux"
	"openenterprise/scootctl/internal/scheduler"
	"openenterprise/scootctl/internal/tasks"
	"openenterprise/scootctl/internal/transport"
	"openenterprise/scootctl/internal/ui"
)

// State is the rental lifecycle state, per spec §4.9.
type State uint8

const (
	Idle State = iota
	Validating
	Reserved
	InUse
	Terminating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Reserved:
		return "reserved"
	case InUse:
		return "in_use"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

const (
	toppleAlertMinIntervalMS = 1000
	lowBatteryThreshold      = 49
	telemetryCadenceMS       = 5000
	maintenanceCadenceMS     = 200
	helmetDebounceMS         = 50
	validateTimeoutMS        = 15000
	terminateTimeoutMS       = 15000
)

// GeofencePredicate reports whether (lat, lng) lies outside the allowed
// operating area. Left pluggable per spec §4.9; a nil predicate disables
// boundary-cross alerts.
type GeofencePredicate func(lat, lng float32) (outside bool)

// Sensors is the live sensor snapshot the orchestrator reads each tick. It
// never owns acquisition; a caller (the cooperative loop) refreshes it
// before calling Tick.
type Sensors struct {
	SpeedKMH       float32
	BatteryPercent int
	Longitude      float32
	Latitude       float32
	LastGPSLong    float32
	LastGPSLat     float32
	LastGPSContact int64
	Posture        PostureUpright
	Crashed        bool
	HelmetConnected bool
}

// PostureUpright is the minimal posture signal the orchestrator needs: it
// does not depend on the posture package's dwell-time details, only on
// whether the confirmed state is Upright.
type PostureUpright bool

// Publisher enqueues a task at a priority. Backed by *scheduler.Scheduler in
// production; a fake in tests.
type Publisher interface {
	Enqueue(t scheduler.Task, p scheduler.Priority) bool
	EnqueueIfSpace(t scheduler.Task, p scheduler.Priority) bool
}

// Config bundles the orchestrator's static dependencies.
type Config struct {
	Socket                *transport.Socket
	Scheduler             Publisher
	Demux                 *demux.Demux
	UI                    *ui.Driver
	BikeID                string
	TelemetryTopic        string // /telemetry/{bike_id}
	AlertTopic            string // alerts/{bike_id}
	ValidateReqTopic      string // /reservation/{bike_id}/validate
	UpdateTopicFmt        string // /reservation/%s/update, formatted with a trip id; serves both validate and terminate responses per spec §6
	TerminateReqTopicFmt  string // /reservation/%s/%s/termination, formatted with (bike_id, trip_id)
	MQTTClientID          string
	MQTTUser              string
	MQTTPass              string
	ReconnectMS           int64
	NowMS                 func() int64
	Geofence              GeofencePredicate
	Log                   *slog.Logger
}

// Orchestrator is the C9 Rental Orchestrator.
type Orchestrator struct {
	cfg Config

	state      State
	tripID     string
	usageState codec.UsageState

	helmetCandidate   bool
	helmetConfirmed   bool
	helmetStableSince int64
	helmetHaveSample  bool

	toppleInFlight  bool
	lastToppleMS    int64
	lowBatteryLatch bool

	lastTelemetryMS   int64
	lastMaintenanceMS int64
	lastReconnectMS   int64

	pendingValidate  *pendingValidate
	pendingTerminate *pendingTerminate
}

// NewOrchestrator builds an Orchestrator starting in Idle with the display
// on QrScan (set by ui.NewDriver).
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		usageState:   codec.UsageIdle,
		lastToppleMS: -toppleAlertMinIntervalMS, // so the first topple episode alerts immediately
	}
}

// State reports the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// TripID reports the active trip id, or "" if none.
func (o *Orchestrator) TripID() string { return o.tripID }

// UsageState reports the usage state carried on outbound telemetry.
func (o *Orchestrator) UsageState() codec.UsageState { return o.usageState }

// OnQRScanned handles a QR-decode result. parseErr non-nil means decode
// failed; per spec §4.9 this keeps the orchestrator in Idle with
// IncorrectQrScan displayed rather than entering Validating. trip's
// CurrentLat/CurrentLng must already carry the vehicle's position (the
// caller fills these after decoding the QR, from its latest geolocation
// fix),
// per spec §3.
//
// The response-subscribe topic is built from trip.ID, not the bike ID:
// per spec §6 the bike subscribes for its reservation update on
// "/reservation/{trip_id}/update", and the trip id is only known once the
// QR has been decoded (see spec §9's open question on this point).
func (o *Orchestrator) OnQRScanned(trip codec.Trip, parseErr error, now int64) {
	if o.state != Idle {
		return
	}
	if parseErr != nil {
		o.cfg.UI.SetPage(ui.IncorrectQrScan, now)
		return
	}

	respTopic := fmt.Sprintf(o.cfg.UpdateTopicFmt, trip.ID)

	var tripIDOut string
	var usageOut codec.UsageState
	var pageOut ui.Page
	task := tasks.NewValidateReservationTask(
		o.cfg.Socket, o.cfg.Demux, o.cfg.ValidateReqTopic, respTopic, trip,
		validateTimeoutMS, o.cfg.NowMS, &tripIDOut, &usageOut, &pageOut,
	)
	o.cfg.Scheduler.Enqueue(task, scheduler.Critical)
	o.pendingValidate = &pendingValidate{task: task, tripIDOut: &tripIDOut, usageOut: &usageOut, pageOut: &pageOut}

	o.state = Validating
	o.cfg.UI.SetPage(ui.PleaseWait, now)
}

// pendingValidate tracks an in-flight ValidateReservationTask whose outputs
// the orchestrator must observe once it completes.
type pendingValidate struct {
	task      *tasks.ValidateReservationTask
	tripIDOut *string
	usageOut  *codec.UsageState
	pageOut   *ui.Page
}

type pendingTerminate struct {
	task      *tasks.TerminateReservationTask
	tripIDOut *string
	usageOut  *codec.UsageState
	pageOut   *ui.Page
}

// Tick advances the orchestrator by one cooperative-loop step: observes any
// pending reservation task outcome, applies the helmet debounce and its
// resulting transition, generates alerts, and enqueues telemetry and
// maintenance tasks on their cadences.
func (o *Orchestrator) Tick(s Sensors, now int64) {
	o.observePendingValidate(now)
	o.observePendingTerminate(now)
	o.applyHelmet(s.HelmetConnected, now)
	o.generateAlerts(s, now)

	if now-o.lastTelemetryMS >= telemetryCadenceMS {
		o.lastTelemetryMS = now
		o.emitTelemetry(s, now)
	}

	if now-o.lastMaintenanceMS >= maintenanceCadenceMS {
		o.lastMaintenanceMS = now
		o.runMaintenance(now)
	}

	o.cfg.UI.SetFields(ui.Fields{SpeedKMH: s.SpeedKMH, BatteryPercent: s.BatteryPercent})
	o.cfg.UI.Tick(now)
}

func (o *Orchestrator) observePendingValidate(now int64) {
	if o.pendingValidate == nil {
		return
	}
	pv := o.pendingValidate
	if !pv.task.IsCompleted() {
		return
	}
	o.pendingValidate = nil

	if *pv.usageOut == codec.UsageReserved {
		o.tripID = *pv.tripIDOut
		o.usageState = codec.UsageReserved
		o.state = Reserved
	} else {
		o.tripID = ""
		o.state = Idle
	}
	o.cfg.UI.SetPage(*pv.pageOut, now)
}

func (o *Orchestrator) observePendingTerminate(now int64) {
	if o.pendingTerminate == nil {
		return
	}
	pt := o.pendingTerminate
	if !pt.task.IsCompleted() {
		return
	}
	o.pendingTerminate = nil
	o.tripID = *pt.tripIDOut
	o.state = Idle
	o.cfg.UI.SetPage(*pt.pageOut, now)
}

// applyHelmet debounces the raw helmet-connected signal and drives the
// Reserved<->InUse / InUse->Terminating transitions on a confirmed edge.
func (o *Orchestrator) applyHelmet(connected bool, now int64) {
	if !o.helmetHaveSample || connected != o.helmetCandidate {
		o.helmetCandidate = connected
		o.helmetStableSince = now
		o.helmetHaveSample = true
	}
	if now-o.helmetStableSince < helmetDebounceMS {
		return
	}
	if o.helmetConfirmed == o.helmetCandidate {
		return
	}
	edgeToDisconnected := o.helmetConfirmed && !o.helmetCandidate
	edgeToConnected := !o.helmetConfirmed && o.helmetCandidate
	o.helmetConfirmed = o.helmetCandidate

	switch {
	case o.state == Reserved && edgeToDisconnected && o.tripID != "":
		o.usageState = codec.UsageInUse
		o.state = InUse
		o.cfg.UI.SetPage(ui.Welcome, now)

	case o.state == InUse && edgeToConnected && o.tripID != "":
		o.enqueueTerminate(now)
	}
}

func (o *Orchestrator) enqueueTerminate(now int64) {
	payload := codec.TripTerminationPayload{}
	var tripIDOut string
	var usageOut codec.UsageState
	var pageOut ui.Page
	tripIDOut = o.tripID

	reqTopic := fmt.Sprintf(o.cfg.TerminateReqTopicFmt, o.cfg.BikeID, o.tripID)
	respTopic := fmt.Sprintf(o.cfg.UpdateTopicFmt, o.tripID)
	task := tasks.NewTerminateReservationTask(
		o.cfg.Socket, o.cfg.Demux, reqTopic, respTopic, payload,
		terminateTimeoutMS, o.cfg.NowMS, &tripIDOut, &usageOut, &pageOut,
	)
	o.cfg.Scheduler.Enqueue(task, scheduler.Critical)
	o.pendingTerminate = &pendingTerminate{task: task, tripIDOut: &tripIDOut, usageOut: &usageOut, pageOut: &pageOut}

	o.usageState = codec.UsageIdle // optimistic, per spec §4.9
	o.state = Terminating
}

// generateAlerts implements spec §4.9's topple/low-battery/boundary-cross
// throttling rules.
func (o *Orchestrator) generateAlerts(s Sensors, now int64) {
	if !bool(s.Posture) {
		if !o.toppleInFlight && now-o.lastToppleMS >= toppleAlertMinIntervalMS {
			o.enqueueAlert(codec.AlertTopple, "vehicle not upright", s, now)
			o.toppleInFlight = true
			o.lastToppleMS = now
		}
	} else {
		o.toppleInFlight = false
	}

	if s.BatteryPercent <= lowBatteryThreshold {
		if !o.lowBatteryLatch {
			o.enqueueAlert(codec.AlertLowBattery, "battery low", s, now)
			o.cfg.UI.SetPage(ui.LowBatteryAlert, now)
			o.lowBatteryLatch = true
		}
	} else {
		o.lowBatteryLatch = false
	}

	if o.cfg.Geofence != nil && o.cfg.Geofence(s.Latitude, s.Longitude) {
		o.enqueueAlert(codec.AlertBoundaryCross, "outside geofence", s, now)
		o.cfg.UI.SetPage(ui.BoundaryCrossAlert, now)
	}

	if s.Crashed {
		o.enqueueAlert(codec.AlertCrash, "crash detected", s, now)
	}
}

func (o *Orchestrator) enqueueAlert(t codec.AlertType, content string, s Sensors, now int64) {
	alert := codec.Alert{
		ID:        uuid.NewString(),
		BikeID:    o.cfg.BikeID,
		Content:   content,
		Type:      t,
		Longitude: s.Longitude,
		Latitude:  s.Latitude,
		Time:      now,
	}
	payload := codec.EncodeAlert(alert)
	task := tasks.NewMqttPublishTask(o.cfg.Socket, o.cfg.AlertTopic, payload, o.cfg.NowMS, o.cfg.Log)
	o.cfg.Scheduler.Enqueue(task, scheduler.Critical)
}

func (o *Orchestrator) emitTelemetry(s Sensors, now int64) {
	t := codec.Telemetry{
		ID:                 uuid.NewString(),
		BikeID:             o.cfg.BikeID,
		Battery:            int32(s.BatteryPercent),
		Longitude:          s.Longitude,
		Latitude:           s.Latitude,
		Time:               now,
		LastGPSLong:        s.LastGPSLong,
		LastGPSLat:         s.LastGPSLat,
		LastGPSContactTime: s.LastGPSContact,
		BatteryIsLow:       s.BatteryPercent <= lowBatteryThreshold,
		IsToppled:          !bool(s.Posture),
		IsCrashed:          s.Crashed,
		IsOutOfBound:       o.cfg.Geofence != nil && o.cfg.Geofence(s.Latitude, s.Longitude),
		UsageState:         o.usageState,
	}
	payload := codec.EncodeTelemetry(t)
	task := tasks.NewMqttPublishTask(o.cfg.Socket, o.cfg.TelemetryTopic, payload, o.cfg.NowMS, o.cfg.Log)
	o.cfg.Scheduler.Enqueue(task, scheduler.Normal)
}

func (o *Orchestrator) runMaintenance(now int64) {
	keepAlive := tasks.NewMqttKeepAliveTask(
		o.cfg.Socket, o.cfg.MQTTClientID, o.cfg.MQTTUser, o.cfg.MQTTPass,
		o.cfg.ReconnectMS, &o.lastReconnectMS, o.cfg.NowMS,
	)
	o.cfg.Scheduler.EnqueueIfSpace(keepAlive, scheduler.Low)

	pump := tasks.NewHttpPumpTask(o.cfg.Socket, o.cfg.NowMS)
	o.cfg.Scheduler.EnqueueIfSpace(pump, scheduler.Low)
}
