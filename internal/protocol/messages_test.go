package protocol

import (
	"errors"
	"testing"
)

func TestDecodeOfferResponse(t *testing.T) {
	m, err := Decode([]byte(`{"type":"offer_response","trip_id":"t1","decision":"accepted"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, ok := m.(OfferResponse)
	if !ok {
		t.Fatalf("expected OfferResponse, got %T", m)
	}
	if resp.TripID != "t1" || resp.Decision != DecisionAccepted {
		t.Fatalf("unexpected decode: %+v", resp)
	}
}

func TestDecodeRejectsBadDecision(t *testing.T) {
	_, err := Decode([]byte(`{"type":"offer_response","trip_id":"t1","decision":"maybe"}`))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeMissingRequiredField(t *testing.T) {
	_, err := Decode([]byte(`{"type":"create_trip","pickup":{"lat":1,"lon":2}}`))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{`)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
