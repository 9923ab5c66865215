package finder

import (
	"context"
	"sort"

	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/models"
)

const (
	DefaultRadiusKm = 50.0
	DefaultLimit    = 20
)

// Source lists drivers currently accepting offers.
type Source interface {
	Available(ctx context.Context) ([]models.Driver, error)
}

// Distance computes kilometers between two coordinates. Injected so tests
// can pin exact values.
type Distance func(a, b models.Coord) float64

// Service ranks available drivers by distance from a pickup point.
type Service struct {
	Source   Source
	Distance Distance
	RadiusKm float64
	Limit    int
}

func New(src Source) *Service {
	return &Service{Source: src, Distance: geo.DistanceKm, RadiusKm: DefaultRadiusKm, Limit: DefaultLimit}
}

// Find returns candidates within the radius, sorted ascending by distance
// and truncated to the limit. Drivers whose category is not in the
// requested set, unavailable drivers and excluded ids are filtered out.
// Zero candidates within the radius yields an empty list; there is no
// fallback to farther drivers.
func (s *Service) Find(ctx context.Context, pickup models.Coord, categories []models.VehicleCategory, exclude ...string) ([]models.Candidate, error) {
	drivers, err := s.Source.Available(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[models.VehicleCategory]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	radius := s.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	out := make([]models.Candidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.Available || skip[d.ID] {
			continue
		}
		if len(wanted) > 0 && !wanted[d.Category] {
			continue
		}
		dist := s.Distance(pickup, d.Loc)
		if dist > radius {
			continue
		}
		out = append(out, models.Candidate{Driver: d, DistanceKm: dist})
	}
	// stable: equal distances keep source order
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
