// Package dispatch implements the trip dispatch state machine: trip
// creation, driver offers with response deadlines, and accept/reject/
// timeout resolution.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/trip-dispatch/internal/fare"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/protocol"
	"github.com/example/trip-dispatch/internal/route"
	"github.com/example/trip-dispatch/internal/storage"
)

var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrDriverNotFound    = errors.New("driver not found")
	ErrNotTripRider      = errors.New("caller is not the trip's rider")
	ErrNotPending        = errors.New("trip is not pending")
	ErrDriverUnavailable = errors.New("driver is not available")
	// ErrDriverBusy guards the driver-side double-booking window: one
	// outstanding offer per driver at a time.
	ErrDriverBusy = errors.New("driver already holds an outstanding offer")
	// ErrStaleOffer marks a response that no longer matches the
	// outstanding offer; callers log it and no-op.
	ErrStaleOffer       = errors.New("stale offer response")
	ErrPaymentRequired  = errors.New("card payment not confirmed")
	ErrPaymentLookup    = errors.New("payment lookup failed")
	ErrRouteUnavailable = errors.New("route calculation failed")
	ErrNotCancelable    = errors.New("trip already terminal")
)

const (
	DefaultOfferTTL     = 30 * time.Second
	DefaultRouteTimeout = 5 * time.Second
)

// Directory is the driver-directory slice the engine needs.
type Directory interface {
	Get(ctx context.Context, id string) (models.Driver, bool, error)
	SetAvailable(ctx context.Context, id string, available bool) error
}

// Candidates finds ranked drivers for a pickup point.
type Candidates interface {
	Find(ctx context.Context, pickup models.Coord, categories []models.VehicleCategory, exclude ...string) ([]models.Candidate, error)
}

// Notifier is the delivery surface: targeted sends to a party and group
// broadcasts, both best-effort.
type Notifier interface {
	Send(partyID string, v any)
	Broadcast(group string, v any)
}

// offer is the ephemeral (trip, driver, deadline) tuple. It lives only in
// the engine's in-memory table and dies on response or timeout.
type offer struct {
	tripID    string
	driverID  string
	timer     *time.Timer
	expiresAt time.Time
}

type Engine struct {
	Store     storage.TripStore
	Routes    route.Provider
	Fare      *fare.Estimator
	Finder    Candidates
	Directory Directory
	Payments  payments.Gateway
	Notifier  Notifier
	Logger    *slog.Logger

	OfferTTL     time.Duration
	RouteTimeout time.Duration

	mu       sync.Mutex
	offers   map[string]*offer // keyed by trip id
	byDriver map[string]string // driver id -> trip id holding their offer
}

func NewEngine(store storage.TripStore, routes route.Provider, est *fare.Estimator, finder Candidates, dir Directory, gateway payments.Gateway, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Store:        store,
		Routes:       routes,
		Fare:         est,
		Finder:       finder,
		Directory:    dir,
		Payments:     gateway,
		Notifier:     notifier,
		Logger:       logger,
		OfferTTL:     DefaultOfferTTL,
		RouteTimeout: DefaultRouteTimeout,
		offers:       make(map[string]*offer),
		byDriver:     make(map[string]string),
	}
}

// CreateTrip quotes the route, computes the fare, persists the trip in
// pending and returns it with the ranked candidate list. A route-provider
// failure aborts the whole operation: nothing is persisted.
func (e *Engine) CreateTrip(ctx context.Context, riderID string, req protocol.CreateTrip) (models.Trip, []models.Candidate, error) {
	rctx, cancel := context.WithTimeout(ctx, e.routeTimeout())
	defer cancel()
	est, err := e.Routes.GetRoute(rctx, req.Pickup, req.Destination)
	if err != nil {
		return models.Trip{}, nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}

	now := time.Now()
	trip := models.Trip{
		ID:               newID(),
		RiderID:          riderID,
		PickupLabel:      req.PickupLabel,
		Pickup:           req.Pickup,
		DestinationLabel: req.DestinationLabel,
		Destination:      req.Destination,
		Category:         req.Category,
		LoadDescription:  req.LoadDescription,
		Status:           models.StatusPending,
		DistanceKm:       est.DistanceKm,
		DurationMin:      est.DurationMin,
		Fare:             e.Fare.Estimate(req.Category, est.DistanceKm, est.DurationMin, req.Surge),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.Store.SaveTrip(ctx, &trip); err != nil {
		return models.Trip{}, nil, fmt.Errorf("persist trip: %w", err)
	}
	observability.TripsCreatedTotal.Inc()

	cands, err := e.candidatesFor(ctx, trip, req.Categories)
	if err != nil {
		// trip exists; an empty list just means the rider has nobody to pick yet
		e.Logger.Warn("candidate lookup failed", "trip", trip.ID, "error", err)
		cands = nil
	}
	return trip, cands, nil
}

// OfferToDriver proposes a pending trip to one driver and arms the
// response deadline. A new offer for the same trip replaces any prior
// outstanding one.
func (e *Engine) OfferToDriver(ctx context.Context, riderID, tripID, driverID string) error {
	trip, ok, err := e.Store.GetTrip(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load trip: %w", err)
	}
	if !ok {
		return ErrTripNotFound
	}
	if trip.RiderID != riderID {
		return ErrNotTripRider
	}
	if trip.Status != models.StatusPending {
		return ErrNotPending
	}
	driver, ok, err := e.Directory.Get(ctx, driverID)
	if err != nil {
		return fmt.Errorf("load driver: %w", err)
	}
	if !ok {
		return ErrDriverNotFound
	}
	if !driver.Available {
		return ErrDriverUnavailable
	}
	payment, err := e.checkPaymentGate(ctx, tripID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if heldTrip, busy := e.byDriver[driverID]; busy && heldTrip != tripID {
		e.mu.Unlock()
		return ErrDriverBusy
	}
	if prior, ok := e.offers[tripID]; ok {
		// a new offer implicitly cancels the prior pending wait
		prior.timer.Stop()
		delete(e.byDriver, prior.driverID)
		delete(e.offers, tripID)
	}
	expires := time.Now().Add(e.offerTTL())
	off := &offer{tripID: tripID, driverID: driverID, expiresAt: expires}
	off.timer = time.AfterFunc(e.offerTTL(), func() { e.expireOffer(tripID, driverID) })
	e.offers[tripID] = off
	e.byDriver[driverID] = tripID
	e.mu.Unlock()

	observability.OffersSentTotal.Inc()
	e.Notifier.Send(driverID, protocol.NewTripOffer(trip, payment, expires))
	e.Notifier.Send(riderID, protocol.NewAwaitingResponse(tripID, driverID, expires))
	e.Logger.Info("offer sent", "trip", tripID, "driver", driverID, "expires_at", expires)
	return nil
}

// ResolveOffer applies a driver's accept/reject decision. Only the driver
// currently holding the outstanding offer for the trip is honored; anyone
// else gets ErrStaleOffer and nothing changes.
func (e *Engine) ResolveOffer(ctx context.Context, driverID, tripID string, decision protocol.Decision) error {
	if !e.consumeOffer(tripID, driverID) {
		e.Logger.Info("ignoring stale offer response", "trip", tripID, "driver", driverID, "decision", decision)
		return ErrStaleOffer
	}
	if decision == protocol.DecisionAccepted {
		return e.acceptOffer(ctx, tripID, driverID)
	}
	observability.OffersRejectedTotal.Inc()
	e.declineOffer(ctx, tripID, driverID, protocol.DeclinedByDriver)
	return nil
}

// Cancel is the rider's cancellation. It atomically invalidates any
// outstanding offer, so a later deadline fire is a no-op, and frees the
// driver if one was already committed.
func (e *Engine) Cancel(ctx context.Context, riderID, tripID string) error {
	trip, ok, err := e.Store.GetTrip(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load trip: %w", err)
	}
	if !ok {
		return ErrTripNotFound
	}
	if trip.RiderID != riderID {
		return ErrNotTripRider
	}
	cancelled, err := e.Store.CancelTrip(ctx, tripID)
	if errors.Is(err, storage.ErrPreconditionFailed) {
		return ErrNotCancelable
	}
	if err != nil {
		return fmt.Errorf("cancel trip: %w", err)
	}

	e.mu.Lock()
	var offeredDriver string
	if off, ok := e.offers[tripID]; ok {
		off.timer.Stop()
		offeredDriver = off.driverID
		delete(e.byDriver, off.driverID)
		delete(e.offers, tripID)
	}
	e.mu.Unlock()

	observability.TripsCancelledTotal.Inc()
	if offeredDriver != "" {
		e.Notifier.Send(offeredDriver, protocol.NewTripCancelled(tripID, riderID))
	}
	if cancelled.DriverID != "" {
		if err := e.Directory.SetAvailable(ctx, cancelled.DriverID, true); err != nil {
			e.Logger.Error("free driver failed", "driver", cancelled.DriverID, "error", err)
		}
		e.Notifier.Send(cancelled.DriverID, protocol.NewTripCancelled(tripID, riderID))
	}
	e.Notifier.Send(riderID, protocol.NewTripStatus(tripID, models.StatusCancelled))
	e.Logger.Info("trip cancelled", "trip", tripID, "rider", riderID)
	return nil
}

// OutstandingOffer reports the driver currently holding the offer for a
// trip, if any.
func (e *Engine) OutstandingOffer(tripID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	off, ok := e.offers[tripID]
	if !ok {
		return "", false
	}
	return off.driverID, true
}

// consumeOffer atomically removes the outstanding offer iff it is held by
// driverID. The offer table is the arbiter between a response and the
// deadline timer: whichever consumes first wins, the other no-ops.
func (e *Engine) consumeOffer(tripID, driverID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	off, ok := e.offers[tripID]
	if !ok || off.driverID != driverID {
		return false
	}
	off.timer.Stop()
	delete(e.byDriver, off.driverID)
	delete(e.offers, tripID)
	return true
}

func (e *Engine) acceptOffer(ctx context.Context, tripID, driverID string) error {
	// the gate may have changed since the offer went out
	payment, err := e.checkPaymentGate(ctx, tripID)
	if err != nil {
		if trip, ok, _ := e.Store.GetTrip(ctx, tripID); ok {
			e.Notifier.Send(trip.RiderID, protocol.NewError("payment_required", "card payment must be confirmed before the driver can accept"))
		}
		return err
	}
	trip, err := e.Store.AssignDriver(ctx, tripID, driverID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrTripNotFound
	}
	if errors.Is(err, storage.ErrPreconditionFailed) {
		// lost to a cancel or an earlier assignment
		e.Logger.Info("assignment lost race", "trip", tripID, "driver", driverID)
		return ErrStaleOffer
	}
	if err != nil {
		return fmt.Errorf("assign driver: %w", err)
	}
	if err := e.Directory.SetAvailable(ctx, driverID, false); err != nil {
		e.Logger.Error("mark driver busy failed", "driver", driverID, "error", err)
	}
	observability.OffersAcceptedTotal.Inc()

	driver, _, derr := e.Directory.Get(ctx, driverID)
	if derr != nil {
		e.Logger.Error("driver lookup after accept failed", "driver", driverID, "error", derr)
	}
	e.Notifier.Send(trip.RiderID, protocol.NewDriverAccepted(trip, driver, payment))
	e.Notifier.Send(driverID, protocol.NewTripStatus(tripID, models.StatusAccepted))
	e.Logger.Info("trip accepted", "trip", tripID, "driver", driverID)
	return nil
}

// declineOffer handles both an explicit rejection and a deadline expiry:
// the trip stays pending, unassigned, and the rider gets a refreshed
// candidate list. A timed-out driver is excluded from the refresh.
func (e *Engine) declineOffer(ctx context.Context, tripID, driverID string, reason protocol.DeclineReason) {
	trip, ok, err := e.Store.GetTrip(ctx, tripID)
	if err != nil || !ok {
		e.Logger.Error("trip lookup after decline failed", "trip", tripID, "error", err)
		return
	}
	if trip.Status != models.StatusPending {
		// trip moved on (e.g. cancelled) while the offer was out
		return
	}
	var exclude []string
	if reason == protocol.DeclinedTimeout {
		exclude = append(exclude, driverID)
	}
	cands, err := e.candidatesFor(ctx, trip, nil, exclude...)
	if err != nil {
		e.Logger.Warn("candidate refresh failed", "trip", tripID, "error", err)
		cands = nil
	}
	e.Notifier.Send(trip.RiderID, protocol.NewDriverDeclined(tripID, driverID, reason, cands))
	e.Logger.Info("offer declined", "trip", tripID, "driver", driverID, "reason", reason)
}

// expireOffer fires on the deadline timer. If the response already
// consumed the offer this is a no-op, so exactly one of {response,
// timeout} ever takes effect.
func (e *Engine) expireOffer(tripID, driverID string) {
	if !e.consumeOffer(tripID, driverID) {
		return
	}
	observability.OffersExpiredTotal.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), e.routeTimeout())
	defer cancel()
	e.declineOffer(ctx, tripID, driverID, protocol.DeclinedTimeout)
}

func (e *Engine) candidatesFor(ctx context.Context, trip models.Trip, categories []models.VehicleCategory, exclude ...string) ([]models.Candidate, error) {
	if len(categories) == 0 {
		categories = []models.VehicleCategory{trip.Category}
	}
	return e.Finder.Find(ctx, trip.Pickup, categories, exclude...)
}

// checkPaymentGate enforces the card gate: a card payment must show
// success before a driver can be offered or committed. Other methods
// (and trips without a payment record yet) pass.
func (e *Engine) checkPaymentGate(ctx context.Context, tripID string) (*models.Payment, error) {
	p, ok, err := e.Payments.GetPaymentForTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentLookup, err)
	}
	if !ok {
		return nil, nil
	}
	if p.Method == models.PayCard && p.Status != models.PaymentSuccess {
		return nil, ErrPaymentRequired
	}
	return &p, nil
}

func (e *Engine) offerTTL() time.Duration {
	if e.OfferTTL <= 0 {
		return DefaultOfferTTL
	}
	return e.OfferTTL
}

func (e *Engine) routeTimeout() time.Duration {
	if e.RouteTimeout <= 0 {
		return DefaultRouteTimeout
	}
	return e.RouteTimeout
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
