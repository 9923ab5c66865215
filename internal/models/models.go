package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Identity is what the identity provider hands back after a successful
// connection handshake. The engine trusts it for the lifetime of the
// connection.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type VehicleCategory string

const (
	VehicleMotorbike   VehicleCategory = "motorbike"
	VehicleBakkie      VehicleCategory = "bakkie"
	VehicleTruck1Ton   VehicleCategory = "1_ton_truck"
	VehicleTruck1_5Ton VehicleCategory = "1.5_ton_truck"
	VehicleTruck2Ton   VehicleCategory = "2_ton_truck"
	VehicleTruck4Ton   VehicleCategory = "4_ton_truck"
	VehicleTruck8Ton   VehicleCategory = "8_ton_truck"
)

type Driver struct {
	ID        string          `json:"id"`
	Loc       Coord           `json:"loc"`
	Category  VehicleCategory `json:"vehicle_category"`
	Rating    float64         `json:"rating"` // 0..5
	Available bool            `json:"available"`
	Updated   time.Time       `json:"updated"`
}

// Candidate is a driver eligible for a trip, with the great-circle
// distance from the pickup point.
type Candidate struct {
	Driver     Driver  `json:"driver"`
	DistanceKm float64 `json:"distance_km"`
}

type TripStatus string

const (
	StatusPending         TripStatus = "pending"
	StatusAccepted        TripStatus = "accepted"
	StatusArrivedAtPickup TripStatus = "arrived_at_pickup"
	StatusPickedUp        TripStatus = "picked_up"
	StatusInProgress      TripStatus = "in_progress"
	StatusCompleted       TripStatus = "completed"
	StatusCancelled       TripStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s TripStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Trip struct {
	ID               string          `json:"id"`
	RiderID          string          `json:"rider_id"`
	DriverID         string          `json:"driver_id,omitempty"` // empty until assignment
	PickupLabel      string          `json:"pickup_label"`
	Pickup           Coord           `json:"pickup"`
	DestinationLabel string          `json:"destination_label"`
	Destination      Coord           `json:"destination"`
	Category         VehicleCategory `json:"vehicle_category"`
	LoadDescription  string          `json:"load_description,omitempty"`
	Status           TripStatus      `json:"status"`
	DistanceKm       float64         `json:"distance_km"`
	DurationMin      float64         `json:"estimated_duration_min"`
	Fare             float64         `json:"fare"`
	Paid             bool            `json:"is_paid"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type PaymentMethod string

const (
	PayCash         PaymentMethod = "cash"
	PayCard         PaymentMethod = "card"
	PayMobileMoney  PaymentMethod = "mobile_money"
	PayBankTransfer PaymentMethod = "bank_transfer"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

var supportedCurrencies = map[string]struct{}{
	"USD": {}, "NGN": {}, "KES": {}, "ZAR": {}, "GHS": {},
}

// SupportedCurrency reports whether payments may be denominated in code.
func SupportedCurrency(code string) bool {
	_, ok := supportedCurrencies[code]
	return ok
}

// Payment is the read-only view of the payment collaborator's record for
// a trip. Reference holds the processor-side id (e.g. a PaymentIntent)
// when the method is card.
type Payment struct {
	TripID    string        `json:"trip_id"`
	Method    PaymentMethod `json:"payment_method"`
	Status    PaymentStatus `json:"status"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Reference string        `json:"reference,omitempty"`
}

// LocationReport is one periodic position report from a connected driver,
// as published on the ingest topic.
type LocationReport struct {
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	ReportedAt time.Time `json:"reported_at"`
}

// RouteEstimate is the route provider's answer for a pickup/destination
// pair, computed once at trip creation.
type RouteEstimate struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
}
