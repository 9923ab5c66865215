package geo

import (
	"context"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKmSandtonPretoria(t *testing.T) {
	// Sandton to Pretoria is roughly 45km as the crow flies.
	d := DistanceKm(models.Coord{Lat: -26.1067, Lon: 28.0568}, models.Coord{Lat: -25.7479, Lon: 28.2293})
	if d < 40 || d > 50 {
		t.Fatalf("expected ~45km, got %f", d)
	}
}

func TestMemoryDirectoryAvailableKeepsOrder(t *testing.T) {
	m := NewMemoryDirectory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := m.Upsert(ctx, models.Driver{ID: id, Available: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetAvailable(ctx, "b", false); err != nil {
		t.Fatal(err)
	}
	got, err := m.Available(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected listing: %+v", got)
	}
}

func TestMemoryDirectoryUpdateLocationUnknown(t *testing.T) {
	m := NewMemoryDirectory()
	if err := m.UpdateLocation(context.Background(), "ghost", models.Coord{}); err != ErrUnknownDriver {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}
