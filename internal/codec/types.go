// Package codec implements the little-endian, length-prefixed wire format
// shared by the controller and the backend: Telemetry and Alert records
// published over MQTT, the Trip record and its JSON QR-code encoding, and
// the small fixed-size reservation lifecycle payloads.
package codec

// UsageState is the vehicle's current rental usage state, carried in every
// Telemetry record.
type UsageState uint8

const (
	UsageIdle UsageState = iota
	UsageReserved
	UsageInUse
)

func (u UsageState) String() string {
	switch u {
	case UsageIdle:
		return "idle"
	case UsageReserved:
		return "reserved"
	case UsageInUse:
		return "in_use"
	default:
		return "unknown"
	}
}

// AlertType classifies an Alert record.
type AlertType uint8

const (
	AlertCrash AlertType = iota
	AlertLowBattery
	AlertBoundaryCross
	AlertTopple
)

func (a AlertType) String() string {
	switch a {
	case AlertCrash:
		return "crash"
	case AlertLowBattery:
		return "low_battery"
	case AlertBoundaryCross:
		return "boundary_cross"
	case AlertTopple:
		return "topple"
	default:
		return "unknown"
	}
}

// Telemetry is emitted periodically (typically every 5s) while the vehicle
// is powered. Field order here is the wire order from spec §6.
type Telemetry struct {
	ID                 string
	BikeID             string
	Battery            int32
	Longitude          float32
	Latitude           float32
	Time               int64
	LastGPSLong        float32
	LastGPSLat         float32
	LastGPSContactTime int64
	BatteryIsLow       bool
	IsToppled          bool
	IsCrashed          bool
	IsOutOfBound       bool
	UsageState         UsageState
}

// Alert reports a single notable event (crash, low battery, boundary
// crossing, or a confirmed non-upright posture).
type Alert struct {
	ID       string
	BikeID   string
	Content  string
	Type     AlertType
	Longitude float32
	Latitude  float32
	Time      int64
}

// Trip is issued by the backend as QR-encoded JSON, then round-tripped back
// to the backend (with the vehicle's current position filled in) during
// reservation validation.
type Trip struct {
	ID                string
	CustomerID        string
	BikeID            string
	ReservationExpiry int64
	TripSecret        string
	CurrentLng        float32
	CurrentLat        float32
}

// TripTerminationPayload is sent to the backend when a rental ends.
type TripTerminationPayload struct {
	EndLng float32
	EndLat float32
}

// TripValidationResponse is the backend's answer to a reservation-validate
// request: a single byte, nonzero meaning valid.
type TripValidationResponse struct {
	IsValid bool
}

// TripStatusUpdate is the backend's answer to a termination request.
type TripStatusUpdate uint8

const (
	TripStatusPending    TripStatusUpdate = 0
	TripStatusInProgress TripStatusUpdate = 1
	TripStatusComplete   TripStatusUpdate = 2
)

// MaxReservationExpiry bounds Trip.ReservationExpiry per spec §4.2.
const MaxReservationExpiry = 9_999_999_999_999
