package codec

import (
	"encoding/json"
	"fmt"
)

// ErrInvalidTripJSON is wrapped by every QR-payload validation failure.
var ErrInvalidTripJSON = fmt.Errorf("codec: invalid trip json")

// requiredTripKeys lists the keys spec §4.2 requires to be present.
var requiredTripKeys = []string{"id", "bike_id", "customer_id", "reservation_expiry", "trip_secret"}

// DecodeTripQR parses a Trip QR payload. It enforces, per spec §4.2:
//   - all five required keys are present and non-null,
//   - id/bike_id/customer_id/trip_secret are strings,
//   - reservation_expiry is a 64-bit integer in [0, 9_999_999_999_999].
func DecodeTripQR(data []byte) (Trip, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Trip{}, fmt.Errorf("%w: %v", ErrInvalidTripJSON, err)
	}

	for _, key := range requiredTripKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			return Trip{}, fmt.Errorf("%w: missing key %q", ErrInvalidTripJSON, key)
		}
	}

	id, err := stringField(raw, "id")
	if err != nil {
		return Trip{}, err
	}
	bikeID, err := stringField(raw, "bike_id")
	if err != nil {
		return Trip{}, err
	}
	customerID, err := stringField(raw, "customer_id")
	if err != nil {
		return Trip{}, err
	}
	tripSecret, err := stringField(raw, "trip_secret")
	if err != nil {
		return Trip{}, err
	}
	expiry, err := int64Field(raw, "reservation_expiry")
	if err != nil {
		return Trip{}, err
	}
	if expiry < 0 || expiry > MaxReservationExpiry {
		return Trip{}, fmt.Errorf("%w: reservation_expiry %d out of range", ErrInvalidTripJSON, expiry)
	}

	return Trip{
		ID:                id,
		CustomerID:        customerID,
		BikeID:            bikeID,
		ReservationExpiry: expiry,
		TripSecret:        tripSecret,
	}, nil
}

func stringField(raw map[string]interface{}, key string) (string, error) {
	s, ok := raw[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a string", ErrInvalidTripJSON, key)
	}
	return s, nil
}

func int64Field(raw map[string]interface{}, key string) (int64, error) {
	v, ok := raw[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidTripJSON, key)
	}
	// encoding/json decodes numbers as float64 by default; a float64 exactly
	// representing an integer up to 2^53 round-trips safely, which
	// comfortably covers the spec's 9_999_999_999_999 bound.
	if v != float64(int64(v)) {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidTripJSON, key)
	}
	return int64(v), nil
}
