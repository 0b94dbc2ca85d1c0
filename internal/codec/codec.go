package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidStatus is returned by DecodeTripStatusUpdate for byte values
// outside {0,1,2}.
var ErrInvalidStatus = errors.New("codec: invalid trip status byte")

// ErrTruncated is returned when a decode reads past the end of the buffer.
var ErrTruncated = errors.New("codec: buffer truncated")

// maxStringLen is the largest length a u8 length prefix can express.
const maxStringLen = 255

// appendString appends a u8-length-prefixed string, silently truncating to
// maxStringLen bytes per spec §4.2 (truncation, not an error).
func appendString(buf []byte, s string) []byte {
	if len(s) > maxStringLen {
		s = s[:maxStringLen]
	}
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf
}

func appendFloat32(buf []byte, v float32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	return append(buf, tmp[:]...)
}

func appendInt32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 1 {
		return "", nil, ErrTruncated
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return "", nil, ErrTruncated
	}
	return string(buf[:n]), buf[n:], nil
}

func readFloat32(buf []byte) (float32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrTruncated
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(buf[:4]))
	return v, buf[4:], nil
}

func readInt32(buf []byte) (int32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrTruncated
	}
	v := int32(binary.LittleEndian.Uint32(buf[:4]))
	return v, buf[4:], nil
}

func readInt64(buf []byte) (int64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, ErrTruncated
	}
	v := int64(binary.LittleEndian.Uint64(buf[:8]))
	return v, buf[8:], nil
}

func readByte(buf []byte) (byte, []byte, error) {
	if len(buf) < 1 {
		return 0, nil, ErrTruncated
	}
	return buf[0], buf[1:], nil
}

// EncodeTelemetry serializes t in the field order fixed by spec §6.
func EncodeTelemetry(t Telemetry) []byte {
	buf := make([]byte, 0, 64)
	buf = appendString(buf, t.ID)
	buf = appendString(buf, t.BikeID)
	buf = appendInt32(buf, t.Battery)
	buf = appendFloat32(buf, t.Longitude)
	buf = appendFloat32(buf, t.Latitude)
	buf = appendInt64(buf, t.Time)
	buf = appendFloat32(buf, t.LastGPSLong)
	buf = appendFloat32(buf, t.LastGPSLat)
	buf = appendInt64(buf, t.LastGPSContactTime)
	buf = appendBool(buf, t.BatteryIsLow)
	buf = appendBool(buf, t.IsToppled)
	buf = appendBool(buf, t.IsCrashed)
	buf = appendBool(buf, t.IsOutOfBound)
	buf = append(buf, byte(t.UsageState))
	return buf
}

// DecodeTelemetry is the symmetric decode of EncodeTelemetry. The wire
// format never requires decoding on the controller itself (the backend
// decodes what the controller publishes), but it is provided for the
// roundtrip property test and the simulation harness.
func DecodeTelemetry(buf []byte) (Telemetry, error) {
	var t Telemetry
	var err error

	if t.ID, buf, err = readString(buf); err != nil {
		return Telemetry{}, err
	}
	if t.BikeID, buf, err = readString(buf); err != nil {
		return Telemetry{}, err
	}
	if t.Battery, buf, err = readInt32(buf); err != nil {
		return Telemetry{}, err
	}
	if t.Longitude, buf, err = readFloat32(buf); err != nil {
		return Telemetry{}, err
	}
	if t.Latitude, buf, err = readFloat32(buf); err != nil {
		return Telemetry{}, err
	}
	if t.Time, buf, err = readInt64(buf); err != nil {
		return Telemetry{}, err
	}
	if t.LastGPSLong, buf, err = readFloat32(buf); err != nil {
		return Telemetry{}, err
	}
	if t.LastGPSLat, buf, err = readFloat32(buf); err != nil {
		return Telemetry{}, err
	}
	if t.LastGPSContactTime, buf, err = readInt64(buf); err != nil {
		return Telemetry{}, err
	}
	var b byte
	if b, buf, err = readByte(buf); err != nil {
		return Telemetry{}, err
	}
	t.BatteryIsLow = b != 0
	if b, buf, err = readByte(buf); err != nil {
		return Telemetry{}, err
	}
	t.IsToppled = b != 0
	if b, buf, err = readByte(buf); err != nil {
		return Telemetry{}, err
	}
	t.IsCrashed = b != 0
	if b, buf, err = readByte(buf); err != nil {
		return Telemetry{}, err
	}
	t.IsOutOfBound = b != 0
	if b, _, err = readByte(buf); err != nil {
		return Telemetry{}, err
	}
	t.UsageState = UsageState(b)

	return t, nil
}

// EncodeAlert serializes a in the field order fixed by spec §6.
func EncodeAlert(a Alert) []byte {
	buf := make([]byte, 0, 48)
	buf = appendString(buf, a.ID)
	buf = appendString(buf, a.BikeID)
	buf = appendString(buf, a.Content)
	buf = append(buf, byte(a.Type))
	buf = appendFloat32(buf, a.Longitude)
	buf = appendFloat32(buf, a.Latitude)
	buf = appendInt64(buf, a.Time)
	return buf
}

// EncodeTrip serializes t for the outbound validation request body.
func EncodeTrip(t Trip) []byte {
	buf := make([]byte, 0, 64)
	buf = appendString(buf, t.ID)
	buf = appendString(buf, t.CustomerID)
	buf = appendString(buf, t.BikeID)
	buf = appendInt64(buf, t.ReservationExpiry)
	buf = appendString(buf, t.TripSecret)
	buf = appendFloat32(buf, t.CurrentLng)
	buf = appendFloat32(buf, t.CurrentLat)
	return buf
}

// DecodeTrip is the symmetric decode of EncodeTrip, used by the backend
// simulator in tests.
func DecodeTrip(buf []byte) (Trip, error) {
	var t Trip
	var err error
	if t.ID, buf, err = readString(buf); err != nil {
		return Trip{}, err
	}
	if t.CustomerID, buf, err = readString(buf); err != nil {
		return Trip{}, err
	}
	if t.BikeID, buf, err = readString(buf); err != nil {
		return Trip{}, err
	}
	if t.ReservationExpiry, buf, err = readInt64(buf); err != nil {
		return Trip{}, err
	}
	if t.TripSecret, buf, err = readString(buf); err != nil {
		return Trip{}, err
	}
	if t.CurrentLng, buf, err = readFloat32(buf); err != nil {
		return Trip{}, err
	}
	if t.CurrentLat, _, err = readFloat32(buf); err != nil {
		return Trip{}, err
	}
	return t, nil
}

// EncodeTripTermination serializes a TripTerminationPayload.
func EncodeTripTermination(p TripTerminationPayload) []byte {
	buf := make([]byte, 0, 8)
	buf = appendFloat32(buf, p.EndLng)
	buf = appendFloat32(buf, p.EndLat)
	return buf
}

// DecodeTripTermination is the symmetric decode, used by the backend
// simulator in tests.
func DecodeTripTermination(buf []byte) (TripTerminationPayload, error) {
	var p TripTerminationPayload
	var err error
	if p.EndLng, buf, err = readFloat32(buf); err != nil {
		return TripTerminationPayload{}, err
	}
	if p.EndLat, _, err = readFloat32(buf); err != nil {
		return TripTerminationPayload{}, err
	}
	return p, nil
}

// DecodeTripValidationResponse reads exactly one byte; any nonzero value is
// treated as valid. logWarn, if non-nil, is called for values outside
// {0,1} so a caller can surface a warning without this package depending on
// a logger.
func DecodeTripValidationResponse(buf []byte, logWarn func(string)) (TripValidationResponse, error) {
	b, _, err := readByte(buf)
	if err != nil {
		return TripValidationResponse{}, err
	}
	if b != 0 && b != 1 && logWarn != nil {
		logWarn(fmt.Sprintf("validation response byte %d outside {0,1}, treating as valid", b))
	}
	return TripValidationResponse{IsValid: b != 0}, nil
}

// DecodeTripStatusUpdate accepts {0,1,2} and rejects anything else.
func DecodeTripStatusUpdate(buf []byte) (TripStatusUpdate, error) {
	b, _, err := readByte(buf)
	if err != nil {
		return 0, err
	}
	if b > 2 {
		return 0, ErrInvalidStatus
	}
	return TripStatusUpdate(b), nil
}
