// Package protocol defines the message-oriented wire surface spoken over
// each party's websocket. Inbound frames carry a "type" tag and are decoded
// into concrete structs at the connection boundary, so handlers can switch
// exhaustively instead of probing dynamic maps.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/trip-dispatch/internal/models"
)

var (
	ErrValidation  = errors.New("invalid message")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound message types.
const (
	TypeCreateTrip      = "create_trip"
	TypeConfirmDriver   = "confirm_driver"
	TypeCancelTrip      = "cancel_trip"
	TypeSubscribeDriver = "subscribe_driver"
	TypeLocation        = "location"
	TypeOfferResponse   = "offer_response"
	TypeStatusUpdate    = "status_update"
)

type CreateTrip struct {
	PickupLabel      string                   `json:"pickup_label"`
	Pickup           models.Coord             `json:"pickup"`
	DestinationLabel string                   `json:"destination_label"`
	Destination      models.Coord             `json:"destination"`
	Category         models.VehicleCategory   `json:"vehicle_category"`
	Categories       []models.VehicleCategory `json:"acceptable_categories,omitempty"`
	LoadDescription  string                   `json:"load_description,omitempty"`
	Surge            bool                     `json:"surge,omitempty"`
}

type ConfirmDriver struct {
	TripID   string `json:"trip_id"`
	DriverID string `json:"driver_id"`
}

type CancelTrip struct {
	TripID string `json:"trip_id"`
}

type SubscribeDriver struct {
	DriverID string `json:"driver_id"`
}

type Location struct {
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

type OfferResponse struct {
	TripID   string   `json:"trip_id"`
	Decision Decision `json:"decision"`
}

type StatusUpdate struct {
	TripID string            `json:"trip_id"`
	Status models.TripStatus `json:"status"`
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its concrete message struct.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch env.Type {
	case TypeCreateTrip:
		var m CreateTrip
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.Category == "" {
			return nil, fmt.Errorf("%w: vehicle_category is required", ErrValidation)
		}
		return m, nil
	case TypeConfirmDriver:
		var m ConfirmDriver
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.TripID == "" || m.DriverID == "" {
			return nil, fmt.Errorf("%w: trip_id and driver_id are required", ErrValidation)
		}
		return m, nil
	case TypeCancelTrip:
		var m CancelTrip
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.TripID == "" {
			return nil, fmt.Errorf("%w: trip_id is required", ErrValidation)
		}
		return m, nil
	case TypeSubscribeDriver:
		var m SubscribeDriver
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.DriverID == "" {
			return nil, fmt.Errorf("%w: driver_id is required", ErrValidation)
		}
		return m, nil
	case TypeLocation:
		var m Location
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.DriverID == "" {
			return nil, fmt.Errorf("%w: driver_id is required", ErrValidation)
		}
		return m, nil
	case TypeOfferResponse:
		var m OfferResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.TripID == "" {
			return nil, fmt.Errorf("%w: trip_id is required", ErrValidation)
		}
		if m.Decision != DecisionAccepted && m.Decision != DecisionRejected {
			return nil, fmt.Errorf("%w: decision must be accepted or rejected", ErrValidation)
		}
		return m, nil
	case TypeStatusUpdate:
		var m StatusUpdate
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if m.TripID == "" || m.Status == "" {
			return nil, fmt.Errorf("%w: trip_id and status are required", ErrValidation)
		}
		return m, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Outbound messages. Each constructor stamps the type tag so callers
// cannot forget it.

type TripCreated struct {
	Type       string             `json:"type"`
	Trip       models.Trip        `json:"trip"`
	Candidates []models.Candidate `json:"candidates"`
}

func NewTripCreated(t models.Trip, cands []models.Candidate) TripCreated {
	return TripCreated{Type: "trip_created", Trip: t, Candidates: cands}
}

type AwaitingResponse struct {
	Type      string    `json:"type"`
	TripID    string    `json:"trip_id"`
	DriverID  string    `json:"driver_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAwaitingResponse(tripID, driverID string, expires time.Time) AwaitingResponse {
	return AwaitingResponse{Type: "awaiting_response", TripID: tripID, DriverID: driverID, ExpiresAt: expires}
}

type TripOffer struct {
	Type      string          `json:"type"`
	Trip      models.Trip     `json:"trip"`
	RiderID   string          `json:"rider_id"`
	Payment   *models.Payment `json:"payment,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func NewTripOffer(t models.Trip, payment *models.Payment, expires time.Time) TripOffer {
	return TripOffer{Type: "trip_offer", Trip: t, RiderID: t.RiderID, Payment: payment, ExpiresAt: expires}
}

type DriverAccepted struct {
	Type    string          `json:"type"`
	Trip    models.Trip     `json:"trip"`
	Driver  models.Driver   `json:"driver"`
	Payment *models.Payment `json:"payment,omitempty"`
}

func NewDriverAccepted(t models.Trip, d models.Driver, payment *models.Payment) DriverAccepted {
	return DriverAccepted{Type: "driver_accepted", Trip: t, Driver: d, Payment: payment}
}

type DeclineReason string

const (
	DeclinedByDriver DeclineReason = "rejected"
	DeclinedTimeout  DeclineReason = "timed_out"
)

type DriverDeclined struct {
	Type       string             `json:"type"`
	TripID     string             `json:"trip_id"`
	DriverID   string             `json:"driver_id"`
	Reason     DeclineReason      `json:"reason"`
	Candidates []models.Candidate `json:"candidates"`
}

func NewDriverDeclined(tripID, driverID string, reason DeclineReason, cands []models.Candidate) DriverDeclined {
	return DriverDeclined{Type: "driver_declined", TripID: tripID, DriverID: driverID, Reason: reason, Candidates: cands}
}

type TripStatusMsg struct {
	Type   string            `json:"type"`
	TripID string            `json:"trip_id"`
	Status models.TripStatus `json:"status"`
}

func NewTripStatus(tripID string, status models.TripStatus) TripStatusMsg {
	return TripStatusMsg{Type: "trip_status", TripID: tripID, Status: status}
}

type TripCancelled struct {
	Type    string `json:"type"`
	TripID  string `json:"trip_id"`
	RiderID string `json:"rider_id"`
}

func NewTripCancelled(tripID, riderID string) TripCancelled {
	return TripCancelled{Type: "trip_cancelled", TripID: tripID, RiderID: riderID}
}

type PaymentReminder struct {
	Type     string               `json:"type"`
	TripID   string               `json:"trip_id"`
	Method   models.PaymentMethod `json:"payment_method"`
	Amount   float64              `json:"amount"`
	Currency string               `json:"currency,omitempty"`
}

func NewPaymentReminder(tripID string, p models.Payment) PaymentReminder {
	return PaymentReminder{Type: "payment_reminder", TripID: tripID, Method: p.Method, Amount: p.Amount, Currency: p.Currency}
}

type DriverLocation struct {
	Type     string  `json:"type"`
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

func NewDriverLocation(driverID string, lat, lon float64) DriverLocation {
	return DriverLocation{Type: "driver_location", DriverID: driverID, Lat: lat, Lon: lon}
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: "error", Code: code, Message: message}
}
