package codec

import (
	"strings"
	"testing"
	"testing/quick"
)

func TestTelemetryRoundtrip(t *testing.T) {
	want := Telemetry{
		ID:                 "t-1",
		BikeID:             "bike-42",
		Battery:            77,
		Longitude:          105.8342,
		Latitude:           21.0278,
		Time:               1_700_000_000_123,
		LastGPSLong:        105.8340,
		LastGPSLat:         21.0280,
		LastGPSContactTime: 1_699_999_999_000,
		BatteryIsLow:       false,
		IsToppled:          true,
		IsCrashed:          false,
		IsOutOfBound:       true,
		UsageState:         UsageInUse,
	}

	buf := EncodeTelemetry(want)
	got, err := DecodeTelemetry(buf)
	if err != nil {
		t.Fatalf("DecodeTelemetry: %v", err)
	}
	if got != want {
		t.Errorf("roundtrip mismatch:\n got  %+v\n want %+v", got, want)
	}

	wantLen := 1 + len(want.ID) + 1 + len(want.BikeID) + 4 + 4 + 4 + 8 + 4 + 4 + 8 + 1 + 1 + 1 + 1 + 1
	if len(buf) != wantLen {
		t.Errorf("encoded length = %d, want %d", len(buf), wantLen)
	}
}

func TestTelemetryRoundtripProperty(t *testing.T) {
	f := func(id, bikeID string, battery int32, lng, lat float32, tm int64,
		lastLng, lastLat float32, lastTime int64,
		low, toppled, crashed, oob bool, usage uint8) bool {

		if len(id) > 255 {
			id = id[:255]
		}
		if len(bikeID) > 255 {
			bikeID = bikeID[:255]
		}
		want := Telemetry{
			ID: id, BikeID: bikeID, Battery: battery,
			Longitude: lng, Latitude: lat, Time: tm,
			LastGPSLong: lastLng, LastGPSLat: lastLat, LastGPSContactTime: lastTime,
			BatteryIsLow: low, IsToppled: toppled, IsCrashed: crashed, IsOutOfBound: oob,
			UsageState: UsageState(usage),
		}
		got, err := DecodeTelemetry(EncodeTelemetry(want))
		if err != nil {
			return false
		}
		return got == want
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

func TestEncodeTelemetryTruncatesOverlongStrings(t *testing.T) {
	longID := strings.Repeat("x", 300)
	tm := Telemetry{ID: longID, BikeID: "b"}
	buf := EncodeTelemetry(tm)
	got, err := DecodeTelemetry(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.ID) != 255 {
		t.Errorf("decoded ID length = %d, want 255 (truncated)", len(got.ID))
	}
}

func TestAlertEncode(t *testing.T) {
	a := Alert{
		ID: "a1", BikeID: "bike-1", Content: "topple detected",
		Type: AlertTopple, Longitude: 1.5, Latitude: -2.5, Time: 123456,
	}
	buf := EncodeAlert(a)
	wantLen := 1 + len(a.ID) + 1 + len(a.BikeID) + 1 + len(a.Content) + 1 + 4 + 4 + 8
	if len(buf) != wantLen {
		t.Errorf("len(EncodeAlert) = %d, want %d", len(buf), wantLen)
	}
	if buf[0] != byte(len(a.ID)) {
		t.Errorf("first byte = %d, want id length %d", buf[0], len(a.ID))
	}
}

func TestTripRoundtrip(t *testing.T) {
	want := Trip{
		ID: "trip-1", CustomerID: "cust-1", BikeID: "bike-1",
		ReservationExpiry: 9999, TripSecret: "shh", CurrentLng: 1.1, CurrentLat: 2.2,
	}
	got, err := DecodeTrip(EncodeTrip(want))
	if err != nil {
		t.Fatalf("DecodeTrip: %v", err)
	}
	if got != want {
		t.Errorf("roundtrip mismatch: got %+v want %+v", got, want)
	}
}

func TestTripTerminationRoundtrip(t *testing.T) {
	want := TripTerminationPayload{EndLng: 10.5, EndLat: -3.25}
	got, err := DecodeTripTermination(EncodeTripTermination(want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Errorf("roundtrip mismatch: got %+v want %+v", got, want)
	}
}

func TestDecodeTripValidationResponse(t *testing.T) {
	tests := []struct {
		name      string
		b         byte
		wantValid bool
		wantWarn  bool
	}{
		{"zero is invalid", 0x00, false, false},
		{"one is valid", 0x01, true, false},
		{"any nonzero is valid", 0x7F, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var warned bool
			resp, err := DecodeTripValidationResponse([]byte{tc.b}, func(string) { warned = true })
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.IsValid != tc.wantValid {
				t.Errorf("IsValid = %v, want %v", resp.IsValid, tc.wantValid)
			}
			if warned != tc.wantWarn {
				t.Errorf("warned = %v, want %v", warned, tc.wantWarn)
			}
		})
	}
}

func TestDecodeTripStatusUpdate(t *testing.T) {
	for b := byte(0); b <= 2; b++ {
		got, err := DecodeTripStatusUpdate([]byte{b})
		if err != nil {
			t.Fatalf("status %d: unexpected error %v", b, err)
		}
		if got != TripStatusUpdate(b) {
			t.Errorf("status %d decoded as %d", b, got)
		}
	}
	if _, err := DecodeTripStatusUpdate([]byte{3}); err != ErrInvalidStatus {
		t.Errorf("status 3: err = %v, want ErrInvalidStatus", err)
	}
	if _, err := DecodeTripStatusUpdate([]byte{255}); err != ErrInvalidStatus {
		t.Errorf("status 255: err = %v, want ErrInvalidStatus", err)
	}
}

func TestDecodeTruncatedBuffers(t *testing.T) {
	if _, err := DecodeTelemetry(nil); err != ErrTruncated {
		t.Errorf("empty telemetry: err = %v, want ErrTruncated", err)
	}
	if _, err := DecodeTripValidationResponse(nil, nil); err != ErrTruncated {
		t.Errorf("empty validation response: err = %v, want ErrTruncated", err)
	}
}
