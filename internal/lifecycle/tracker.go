// Package lifecycle drives post-acceptance trip progression and the
// payment checks tied to it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/protocol"
	"github.com/example/trip-dispatch/internal/storage"
)

var (
	ErrTripNotFound      = errors.New("trip not found")
	ErrNotAssignedDriver = errors.New("caller is not the assigned driver")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict means another update moved the trip first; the caller
	// should re-read and retry if still relevant.
	ErrConflict = errors.New("trip status changed concurrently")
)

// next legal forward step per status
var forward = map[models.TripStatus]models.TripStatus{
	models.StatusAccepted:        models.StatusArrivedAtPickup,
	models.StatusArrivedAtPickup: models.StatusPickedUp,
	models.StatusPickedUp:        models.StatusInProgress,
	models.StatusInProgress:      models.StatusCompleted,
}

type Directory interface {
	SetAvailable(ctx context.Context, id string, available bool) error
}

type Notifier interface {
	Send(partyID string, v any)
}

// Tracker applies status progression for assigned trips, broadcasts every
// transition to both parties, reminds about outstanding cash at pickup
// and settles held card payments at the end of the trip.
type Tracker struct {
	Store     storage.TripStore
	Directory Directory
	Payments  payments.Gateway
	Settler   payments.Settler
	Notifier  Notifier
	Logger    *slog.Logger
}

func NewTracker(store storage.TripStore, dir Directory, gateway payments.Gateway, settler payments.Settler, notifier Notifier, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if settler == nil {
		settler = payments.NopSettler{}
	}
	return &Tracker{Store: store, Directory: dir, Payments: gateway, Settler: settler, Notifier: notifier, Logger: logger}
}

// UpdateStatus moves the trip to next. Only the assigned driver may call
// it. Cancellation is allowed from any non-terminal state; everything
// else must follow the accepted → arrived_at_pickup → picked_up →
// in_progress → completed chain one step at a time.
func (t *Tracker) UpdateStatus(ctx context.Context, caller models.Identity, tripID string, next models.TripStatus) error {
	trip, ok, err := t.Store.GetTrip(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load trip: %w", err)
	}
	if !ok {
		return ErrTripNotFound
	}
	if caller.Role != models.RoleDriver || caller.ID == "" || caller.ID != trip.DriverID {
		return ErrNotAssignedDriver
	}

	if next == models.StatusCancelled {
		return t.cancel(ctx, trip)
	}
	if forward[trip.Status] != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, trip.Status, next)
	}
	updated, err := t.Store.TransitionStatus(ctx, tripID, trip.Status, next)
	if errors.Is(err, storage.ErrPreconditionFailed) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("transition: %w", err)
	}

	t.broadcast(updated, protocol.NewTripStatus(tripID, next))
	t.Logger.Info("trip status", "trip", tripID, "status", next)

	switch next {
	case models.StatusArrivedAtPickup:
		t.remindUnpaidCash(ctx, updated)
	case models.StatusCompleted:
		t.settle(ctx, updated)
	}
	return nil
}

func (t *Tracker) cancel(ctx context.Context, trip models.Trip) error {
	updated, err := t.Store.CancelTrip(ctx, trip.ID)
	if errors.Is(err, storage.ErrPreconditionFailed) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	t.freeDriver(ctx, updated.DriverID)
	if p, ok, perr := t.Payments.GetPaymentForTrip(ctx, trip.ID); perr == nil && ok && p.Method == models.PayCard && p.Reference != "" {
		if err := t.Settler.Release(ctx, p.Reference); err != nil {
			t.Logger.Error("release hold failed", "trip", trip.ID, "error", err)
		}
	}
	t.broadcast(updated, protocol.NewTripStatus(trip.ID, models.StatusCancelled))
	t.Logger.Info("trip cancelled by driver", "trip", trip.ID)
	return nil
}

// remindUnpaidCash broadcasts a payment reminder when the driver arrives
// and a cash payment is still outstanding. The trip is not blocked; the
// reminder is in addition to the status event.
func (t *Tracker) remindUnpaidCash(ctx context.Context, trip models.Trip) {
	p, ok, err := t.Payments.GetPaymentForTrip(ctx, trip.ID)
	if err != nil {
		t.Logger.Warn("payment lookup at pickup failed", "trip", trip.ID, "error", err)
		return
	}
	if !ok || p.Method != models.PayCash || p.Status != models.PaymentPending {
		return
	}
	t.broadcast(trip, protocol.NewPaymentReminder(trip.ID, p))
	t.Logger.Info("cash payment reminder", "trip", trip.ID, "amount", p.Amount)
}

func (t *Tracker) settle(ctx context.Context, trip models.Trip) {
	t.freeDriver(ctx, trip.DriverID)
	p, ok, err := t.Payments.GetPaymentForTrip(ctx, trip.ID)
	if err != nil || !ok {
		if err != nil {
			t.Logger.Warn("payment lookup at completion failed", "trip", trip.ID, "error", err)
		}
		return
	}
	if p.Method == models.PayCard && p.Reference != "" {
		if err := t.Settler.Capture(ctx, p.Reference); err != nil {
			t.Logger.Error("capture failed", "trip", trip.ID, "error", err)
			return
		}
		p.Status = models.PaymentSuccess
	}
	if p.Status == models.PaymentSuccess {
		if err := t.Store.SetPaid(ctx, trip.ID, true); err != nil {
			t.Logger.Error("mark paid failed", "trip", trip.ID, "error", err)
		}
	}
}

func (t *Tracker) freeDriver(ctx context.Context, driverID string) {
	if driverID == "" {
		return
	}
	if err := t.Directory.SetAvailable(ctx, driverID, true); err != nil {
		t.Logger.Error("free driver failed", "driver", driverID, "error", err)
	}
}

func (t *Tracker) broadcast(trip models.Trip, v any) {
	t.Notifier.Send(trip.RiderID, v)
	if trip.DriverID != "" {
		t.Notifier.Send(trip.DriverID, v)
	}
}
