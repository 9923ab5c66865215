package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/trip-dispatch/internal/models"
)

// Directory is the driver-directory surface the dispatch engine, the
// location tracker and the nearest-driver finder need. Implementations
// must be safe for concurrent use.
type Directory interface {
	Get(ctx context.Context, id string) (models.Driver, bool, error)
	Upsert(ctx context.Context, d models.Driver) error
	UpdateLocation(ctx context.Context, id string, c models.Coord) error
	SetAvailable(ctx context.Context, id string, available bool) error
	// Available lists drivers currently accepting offers.
	Available(ctx context.Context) ([]models.Driver, error)
}

// MemoryDirectory keeps drivers in process memory. Listing preserves
// registration order so equal-distance candidates rank deterministically.
type MemoryDirectory struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
	order   []string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{drivers: make(map[string]models.Driver)}
}

func (m *MemoryDirectory) Get(_ context.Context, id string) (models.Driver, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	return d, ok, nil
}

func (m *MemoryDirectory) Upsert(_ context.Context, d models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drivers[d.ID]; !ok {
		m.order = append(m.order, d.ID)
	}
	d.Updated = time.Now()
	m.drivers[d.ID] = d
	return nil
}

func (m *MemoryDirectory) UpdateLocation(_ context.Context, id string, c models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrUnknownDriver
	}
	d.Loc = c
	d.Updated = time.Now()
	m.drivers[id] = d
	return nil
}

func (m *MemoryDirectory) SetAvailable(_ context.Context, id string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrUnknownDriver
	}
	d.Available = available
	d.Updated = time.Now()
	m.drivers[id] = d
	return nil
}

func (m *MemoryDirectory) Available(_ context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, id := range m.order {
		if d := m.drivers[id]; d.Available {
			out = append(out, d)
		}
	}
	return out, nil
}

// Haversine distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// DistanceKm is Haversine between two coordinates in kilometers.
func DistanceKm(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon) / 1000.0
}
