package codec

import (
	"errors"
	"testing"
)

func TestDecodeTripQR_HappyPath(t *testing.T) {
	input := `{"id":"T1","bike_id":"BIK_1","customer_id":"C1","reservation_expiry":9999,"trip_secret":"s"}`
	got, err := DecodeTripQR([]byte(input))
	if err != nil {
		t.Fatalf("DecodeTripQR: %v", err)
	}
	want := Trip{ID: "T1", BikeID: "BIK_1", CustomerID: "C1", ReservationExpiry: 9999, TripSecret: "s"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeTripQR_MissingKey(t *testing.T) {
	input := `{"id":"T1","bike_id":"BIK_1","customer_id":"C1","trip_secret":"s"}`
	_, err := DecodeTripQR([]byte(input))
	if !errors.Is(err, ErrInvalidTripJSON) {
		t.Fatalf("err = %v, want ErrInvalidTripJSON", err)
	}
}

func TestDecodeTripQR_NullValue(t *testing.T) {
	input := `{"id":"T1","bike_id":"BIK_1","customer_id":"C1","reservation_expiry":null,"trip_secret":"s"}`
	_, err := DecodeTripQR([]byte(input))
	if !errors.Is(err, ErrInvalidTripJSON) {
		t.Fatalf("err = %v, want ErrInvalidTripJSON", err)
	}
}

func TestDecodeTripQR_WrongType(t *testing.T) {
	input := `{"id":123,"bike_id":"BIK_1","customer_id":"C1","reservation_expiry":9999,"trip_secret":"s"}`
	_, err := DecodeTripQR([]byte(input))
	if !errors.Is(err, ErrInvalidTripJSON) {
		t.Fatalf("err = %v, want ErrInvalidTripJSON", err)
	}
}

func TestDecodeTripQR_ExpiryOutOfRange(t *testing.T) {
	tests := []string{
		`{"id":"T1","bike_id":"B","customer_id":"C1","reservation_expiry":-1,"trip_secret":"s"}`,
		`{"id":"T1","bike_id":"B","customer_id":"C1","reservation_expiry":10000000000000,"trip_secret":"s"}`,
	}
	for _, input := range tests {
		if _, err := DecodeTripQR([]byte(input)); !errors.Is(err, ErrInvalidTripJSON) {
			t.Errorf("input %q: err = %v, want ErrInvalidTripJSON", input, err)
		}
	}
}

func TestDecodeTripQR_ExpiryBoundary(t *testing.T) {
	input := `{"id":"T1","bike_id":"B","customer_id":"C1","reservation_expiry":9999999999999,"trip_secret":"s"}`
	got, err := DecodeTripQR([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error at boundary: %v", err)
	}
	if got.ReservationExpiry != MaxReservationExpiry {
		t.Errorf("ReservationExpiry = %d, want %d", got.ReservationExpiry, MaxReservationExpiry)
	}
}

func TestDecodeTripQR_MalformedJSON(t *testing.T) {
	if _, err := DecodeTripQR([]byte("not json")); !errors.Is(err, ErrInvalidTripJSON) {
		t.Fatalf("err = %v, want ErrInvalidTripJSON", err)
	}
}
