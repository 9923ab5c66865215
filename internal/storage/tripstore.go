package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/trip-dispatch/internal/models"
)

var (
	ErrNotFound = errors.New("trip not found")
	// ErrPreconditionFailed signals a lost conditional update: the trip was
	// no longer in the state the caller expected. The loser of an
	// accept/timeout/cancel race sees this and must no-op.
	ErrPreconditionFailed = errors.New("trip state precondition failed")
)

// TripStore defines persistence operations for trips. The conditional
// methods are the per-trip mutual exclusion the dispatch engine relies on.
type TripStore interface {
	SaveTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id string) (models.Trip, bool, error)
	// AssignDriver commits the assignment iff the trip is still pending and
	// unassigned. Exactly one concurrent caller can win.
	AssignDriver(ctx context.Context, tripID, driverID string) (models.Trip, error)
	// TransitionStatus moves the trip from exactly `from` to `to`.
	TransitionStatus(ctx context.Context, tripID string, from, to models.TripStatus) (models.Trip, error)
	// CancelTrip cancels iff the trip is not already terminal.
	CancelTrip(ctx context.Context, tripID string) (models.Trip, error)
	SetPaid(ctx context.Context, tripID string, paid bool) error
}

type MemoryStore struct {
	mu    sync.Mutex
	trips map[string]models.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[string]models.Trip)}
}

func (m *MemoryStore) SaveTrip(_ context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTrip(_ context.Context, id string) (models.Trip, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	return t, ok, nil
}

func (m *MemoryStore) AssignDriver(_ context.Context, tripID, driverID string) (models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return models.Trip{}, ErrNotFound
	}
	if t.Status != models.StatusPending || t.DriverID != "" {
		return models.Trip{}, ErrPreconditionFailed
	}
	t.DriverID = driverID
	t.Status = models.StatusAccepted
	t.UpdatedAt = time.Now()
	m.trips[tripID] = t
	return t, nil
}

func (m *MemoryStore) TransitionStatus(_ context.Context, tripID string, from, to models.TripStatus) (models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return models.Trip{}, ErrNotFound
	}
	if t.Status != from {
		return models.Trip{}, ErrPreconditionFailed
	}
	t.Status = to
	t.UpdatedAt = time.Now()
	m.trips[tripID] = t
	return t, nil
}

func (m *MemoryStore) CancelTrip(_ context.Context, tripID string) (models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return models.Trip{}, ErrNotFound
	}
	if t.Status.Terminal() {
		return models.Trip{}, ErrPreconditionFailed
	}
	t.Status = models.StatusCancelled
	t.UpdatedAt = time.Now()
	m.trips[tripID] = t
	return t, nil
}

func (m *MemoryStore) SetPaid(_ context.Context, tripID string, paid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrNotFound
	}
	t.Paid = paid
	t.UpdatedAt = time.Now()
	m.trips[tripID] = t
	return nil
}
