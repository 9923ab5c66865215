package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
)

func pendingTrip(id string) *models.Trip {
	return &models.Trip{ID: id, RiderID: "r1", Status: models.StatusPending}
}

func TestAssignDriverExactlyOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.SaveTrip(ctx, pendingTrip("t1")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, d := range []string{"d1", "d2"} {
		wg.Add(1)
		go func(i int, driver string) {
			defer wg.Done()
			_, errs[i] = s.AssignDriver(ctx, "t1", driver)
		}(i, d)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrPreconditionFailed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	got, _, _ := s.GetTrip(ctx, "t1")
	if got.Status != models.StatusAccepted || got.DriverID == "" {
		t.Fatalf("trip left inconsistent: %+v", got)
	}
}

func TestAssignDriverNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.AssignDriver(context.Background(), "missing", "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionStatusRequiresExactFrom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SaveTrip(ctx, pendingTrip("t1"))
	if _, err := s.TransitionStatus(ctx, "t1", models.StatusAccepted, models.StatusPickedUp); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if _, err := s.AssignDriver(ctx, "t1", "d1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.TransitionStatus(ctx, "t1", models.StatusAccepted, models.StatusArrivedAtPickup)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusArrivedAtPickup {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestCancelTripTerminalIsNoOp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SaveTrip(ctx, pendingTrip("t1"))
	if _, err := s.CancelTrip(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CancelTrip(ctx, "t1"); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure on second cancel, got %v", err)
	}
}

func TestSetPaid(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SaveTrip(ctx, pendingTrip("t1"))
	if err := s.SetPaid(ctx, "t1", true); err != nil {
		t.Fatal(err)
	}
	got, _, _ := s.GetTrip(ctx, "t1")
	if !got.Paid {
		t.Fatal("expected paid flag set")
	}
	if err := s.SetPaid(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
