// Package ui models the display as a thin page selector plus live fields;
// pixel rendering is an external concern this package never touches.
package ui

import "time"

// Page is a display screen.
type Page uint8

const (
	QrScan Page = iota
	Welcome
	LowBatteryAlert
	BoundaryCrossAlert
	PleaseWait
	IncorrectQrScan
	GenericAlert
	TripConclusion
	TripConclusionFailed
)

func (p Page) String() string {
	switch p {
	case QrScan:
		return "qr_scan"
	case Welcome:
		return "welcome"
	case LowBatteryAlert:
		return "low_battery_alert"
	case BoundaryCrossAlert:
		return "boundary_cross_alert"
	case PleaseWait:
		return "please_wait"
	case IncorrectQrScan:
		return "incorrect_qr_scan"
	case GenericAlert:
		return "generic_alert"
	case TripConclusion:
		return "trip_conclusion"
	case TripConclusionFailed:
		return "trip_conclusion_failed"
	default:
		return "unknown"
	}
}

// isAlertClass reports whether p should auto-revert to Welcome after
// AutoRevertDelay.
func (p Page) isAlertClass() bool {
	switch p {
	case LowBatteryAlert, BoundaryCrossAlert, IncorrectQrScan, GenericAlert, TripConclusion, TripConclusionFailed:
		return true
	default:
		return false
	}
}

// AutoRevertDelay is how long an alert-class page stays up before the
// driver reverts to Welcome, per spec §4.10.
const AutoRevertDelay = 4 * time.Second

// Fields are the live values the UI shows alongside the current page.
type Fields struct {
	SpeedKMH       float32
	BatteryPercent int
}

// Sink is the interface the core drives; a concrete display driver (out of
// scope here) implements it.
type Sink interface {
	Render(page Page, fields Fields)
}

// Driver owns the current page and edge-triggers redraws: Render is called
// on the sink only when ToBeUpdated is set, and alert-class pages
// auto-revert to Welcome after AutoRevertDelay.
type Driver struct {
	sink Sink

	page        Page
	fields      Fields
	toBeUpdated bool
	pageSetAtMS int64
}

// NewDriver returns a Driver targeting sink, initially on QrScan.
func NewDriver(sink Sink) *Driver {
	return &Driver{sink: sink, page: QrScan, toBeUpdated: true}
}

// SetPage changes the current page and marks it for redraw. nowMS stamps
// the auto-revert timer for alert-class pages.
func (d *Driver) SetPage(p Page, nowMS int64) {
	if d.page == p {
		return
	}
	d.page = p
	d.toBeUpdated = true
	d.pageSetAtMS = nowMS
}

// SetFields updates the live fields and marks a redraw.
func (d *Driver) SetFields(f Fields) {
	if d.fields == f {
		return
	}
	d.fields = f
	d.toBeUpdated = true
}

// Page returns the current page.
func (d *Driver) Page() Page { return d.page }

// Tick auto-reverts an alert-class page to Welcome once AutoRevertDelay has
// elapsed, then redraws the sink if a change is pending. Call once per
// cooperative loop iteration.
func (d *Driver) Tick(nowMS int64) {
	if d.page.isAlertClass() && nowMS-d.pageSetAtMS >= AutoRevertDelay.Milliseconds() {
		d.SetPage(Welcome, nowMS)
	}
	if !d.toBeUpdated {
		return
	}
	d.sink.Render(d.page, d.fields)
	d.toBeUpdated = false
}
