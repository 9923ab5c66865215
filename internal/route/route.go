package route

import (
	"context"

	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/models"
)

// Provider is the external distance/ETA collaborator. Implementations
// must honor the context deadline; the engine never retries.
type Provider interface {
	GetRoute(ctx context.Context, pickup, dest models.Coord) (models.RouteEstimate, error)
}

// StraightLine estimates along the great circle at a fixed average speed.
// It is the fallback when no routing backend is configured, and the
// deterministic provider used in tests.
type StraightLine struct {
	SpeedKmh float64
}

func (s StraightLine) GetRoute(_ context.Context, pickup, dest models.Coord) (models.RouteEstimate, error) {
	speed := s.SpeedKmh
	if speed <= 0 {
		speed = 36 // conservative urban average
	}
	dist := geo.DistanceKm(pickup, dest)
	return models.RouteEstimate{
		DistanceKm:  dist,
		DurationMin: dist / speed * 60,
	}, nil
}
