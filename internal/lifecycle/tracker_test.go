package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/protocol"
	"github.com/example/trip-dispatch/internal/storage"
)

type recorder struct {
	mu   sync.Mutex
	sent map[string][]any
}

func newRecorder() *recorder { return &recorder{sent: make(map[string][]any)} }

func (r *recorder) Send(partyID string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[partyID] = append(r.sent[partyID], v)
}

func (r *recorder) reminders(partyID string) []protocol.PaymentReminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.PaymentReminder
	for _, m := range r.sent[partyID] {
		if p, ok := m.(protocol.PaymentReminder); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) statuses(partyID string) []models.TripStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TripStatus
	for _, m := range r.sent[partyID] {
		if s, ok := m.(protocol.TripStatusMsg); ok {
			out = append(out, s.Status)
		}
	}
	return out
}

type fakeSettler struct {
	captured []string
	released []string
	fail     error
}

func (f *fakeSettler) Capture(_ context.Context, ref string) error {
	if f.fail != nil {
		return f.fail
	}
	f.captured = append(f.captured, ref)
	return nil
}

func (f *fakeSettler) Release(_ context.Context, ref string) error {
	f.released = append(f.released, ref)
	return nil
}

type fixture struct {
	tracker *Tracker
	store   *storage.MemoryStore
	dir     *geo.MemoryDirectory
	gateway *payments.MemoryGateway
	rec     *recorder
	settler *fakeSettler
	driver  models.Identity
}

func newFixture(t *testing.T, status models.TripStatus) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	dir := geo.NewMemoryDirectory()
	gateway := payments.NewMemoryGateway()
	rec := newRecorder()
	settler := &fakeSettler{}
	ctx := context.Background()
	_ = dir.Upsert(ctx, models.Driver{ID: "d1", Available: false})
	_ = store.SaveTrip(ctx, &models.Trip{ID: "t1", RiderID: "r1", DriverID: "d1", Status: status, Fare: 720})
	return &fixture{
		tracker: NewTracker(store, dir, gateway, settler, rec, nil),
		store:   store,
		dir:     dir,
		gateway: gateway,
		rec:     rec,
		settler: settler,
		driver:  models.Identity{ID: "d1", Role: models.RoleDriver},
	}
}

func TestProgressionBroadcastsBothParties(t *testing.T) {
	f := newFixture(t, models.StatusAccepted)
	ctx := context.Background()
	for _, next := range []models.TripStatus{
		models.StatusArrivedAtPickup, models.StatusPickedUp, models.StatusInProgress, models.StatusCompleted,
	} {
		if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", next); err != nil {
			t.Fatalf("%s: %v", next, err)
		}
	}
	want := []models.TripStatus{models.StatusArrivedAtPickup, models.StatusPickedUp, models.StatusInProgress, models.StatusCompleted}
	for _, party := range []string{"r1", "d1"} {
		got := f.rec.statuses(party)
		if len(got) != len(want) {
			t.Fatalf("%s saw %v", party, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s transition order: %v", party, got)
			}
		}
	}
	d, _, _ := f.dir.Get(ctx, "d1")
	if !d.Available {
		t.Fatal("driver not freed after completion")
	}
}

func TestOnlyAssignedDriverMayUpdate(t *testing.T) {
	f := newFixture(t, models.StatusAccepted)
	ctx := context.Background()
	other := models.Identity{ID: "d2", Role: models.RoleDriver}
	if err := f.tracker.UpdateStatus(ctx, other, "t1", models.StatusArrivedAtPickup); !errors.Is(err, ErrNotAssignedDriver) {
		t.Fatalf("expected ErrNotAssignedDriver, got %v", err)
	}
	rider := models.Identity{ID: "r1", Role: models.RoleRider}
	if err := f.tracker.UpdateStatus(ctx, rider, "t1", models.StatusArrivedAtPickup); !errors.Is(err, ErrNotAssignedDriver) {
		t.Fatalf("expected ErrNotAssignedDriver for rider, got %v", err)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	f := newFixture(t, models.StatusAccepted)
	ctx := context.Background()
	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := f.tracker.UpdateStatus(ctx, f.driver, "missing", models.StatusInProgress); !errors.Is(err, ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

func TestCashPendingArrivalBroadcastsReminder(t *testing.T) {
	f := newFixture(t, models.StatusAccepted)
	ctx := context.Background()
	f.gateway.Put(models.Payment{TripID: "t1", Method: models.PayCash, Status: models.PaymentPending, Amount: 720, Currency: "ZAR"})

	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusArrivedAtPickup); err != nil {
		t.Fatal(err)
	}
	for _, party := range []string{"r1", "d1"} {
		rems := f.rec.reminders(party)
		if len(rems) != 1 || rems[0].Amount != 720 {
			t.Fatalf("%s reminders: %+v", party, rems)
		}
	}
	// reminder-only: progression is not blocked
	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusPickedUp); err != nil {
		t.Fatal(err)
	}
}

func TestPaidCashArrivalNoReminder(t *testing.T) {
	f := newFixture(t, models.StatusAccepted)
	ctx := context.Background()
	f.gateway.Put(models.Payment{TripID: "t1", Method: models.PayCash, Status: models.PaymentSuccess, Amount: 720})
	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusArrivedAtPickup); err != nil {
		t.Fatal(err)
	}
	if rems := f.rec.reminders("r1"); len(rems) != 0 {
		t.Fatalf("unexpected reminder: %+v", rems)
	}
}

func TestCompletionCapturesHeldCard(t *testing.T) {
	f := newFixture(t, models.StatusInProgress)
	ctx := context.Background()
	f.gateway.Put(models.Payment{TripID: "t1", Method: models.PayCard, Status: models.PaymentSuccess, Reference: "pi_123"})

	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if len(f.settler.captured) != 1 || f.settler.captured[0] != "pi_123" {
		t.Fatalf("capture not invoked: %+v", f.settler.captured)
	}
	trip, _, _ := f.store.GetTrip(ctx, "t1")
	if !trip.Paid {
		t.Fatal("trip not marked paid after capture")
	}
}

func TestDriverCancelReleasesHoldAndFreesDriver(t *testing.T) {
	f := newFixture(t, models.StatusArrivedAtPickup)
	ctx := context.Background()
	f.gateway.Put(models.Payment{TripID: "t1", Method: models.PayCard, Status: models.PaymentSuccess, Reference: "pi_9"})

	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if len(f.settler.released) != 1 || f.settler.released[0] != "pi_9" {
		t.Fatalf("hold not released: %+v", f.settler.released)
	}
	d, _, _ := f.dir.Get(ctx, "d1")
	if !d.Available {
		t.Fatal("driver not freed on cancel")
	}
	trip, _, _ := f.store.GetTrip(ctx, "t1")
	if trip.Status != models.StatusCancelled {
		t.Fatalf("unexpected status %s", trip.Status)
	}
	// terminal: further updates conflict
	if err := f.tracker.UpdateStatus(ctx, f.driver, "t1", models.StatusCancelled); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
