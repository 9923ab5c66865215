package route

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/trip-dispatch/internal/models"
)

// GoogleRoutes resolves routes through the Google Maps Directions API.
type GoogleRoutes struct {
	client *maps.Client
}

func NewGoogleRoutes(apiKey string) (*GoogleRoutes, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &GoogleRoutes{client: c}, nil
}

func (g *GoogleRoutes) GetRoute(ctx context.Context, pickup, dest models.Coord) (models.RouteEstimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", pickup.Lat, pickup.Lon),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lon),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return models.RouteEstimate{}, fmt.Errorf("maps api: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return models.RouteEstimate{}, fmt.Errorf("no route found")
	}
	leg := routes[0].Legs[0]
	return models.RouteEstimate{
		DistanceKm:  float64(leg.Distance.Meters) / 1000.0,
		DurationMin: leg.Duration.Minutes(),
	}, nil
}
