package payments

import (
	"context"
	"sync"

	"github.com/example/trip-dispatch/internal/models"
)

// Gateway is the read path the dispatch engine uses to gate offers and
// acceptances on payment state.
type Gateway interface {
	// GetPaymentForTrip returns the payment record for the trip, or
	// ok=false when no payment has been initiated.
	GetPaymentForTrip(ctx context.Context, tripID string) (models.Payment, bool, error)
}

// Settler finalizes held card payments when a trip terminates.
type Settler interface {
	Capture(ctx context.Context, reference string) error
	Release(ctx context.Context, reference string) error
}

// MemoryGateway keeps payment records in memory. It backs local runs and
// tests; production wires the processor-backed gateway around it.
type MemoryGateway struct {
	mu      sync.RWMutex
	byTrip  map[string]models.Payment
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{byTrip: make(map[string]models.Payment)}
}

func (m *MemoryGateway) Put(p models.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTrip[p.TripID] = p
}

func (m *MemoryGateway) GetPaymentForTrip(_ context.Context, tripID string) (models.Payment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byTrip[tripID]
	return p, ok, nil
}

// NopSettler is used when no card processor is configured.
type NopSettler struct{}

func (NopSettler) Capture(context.Context, string) error { return nil }
func (NopSettler) Release(context.Context, string) error { return nil }
