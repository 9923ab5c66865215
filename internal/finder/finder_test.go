package finder

import (
	"context"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
)

type fakeSource struct{ drivers []models.Driver }

func (f *fakeSource) Available(ctx context.Context) ([]models.Driver, error) {
	return f.drivers, nil
}

// distance keyed off the driver longitude so tests can pin exact values
func lonDistance(a, b models.Coord) float64 { return b.Lon }

func driver(id string, lon float64, cat models.VehicleCategory) models.Driver {
	return models.Driver{ID: id, Loc: models.Coord{Lon: lon}, Category: cat, Available: true}
}

func TestFindSortsAscendingWithinRadius(t *testing.T) {
	src := &fakeSource{drivers: []models.Driver{
		driver("far", 60, models.VehicleBakkie), // outside 50km radius
		driver("b", 12, models.VehicleBakkie),
		driver("a", 3, models.VehicleBakkie),
	}}
	s := New(src)
	s.Distance = lonDistance
	got, err := s.Find(context.Background(), models.Coord{}, []models.VehicleCategory{models.VehicleBakkie})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Driver.ID != "a" || got[1].Driver.ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
	for _, c := range got {
		if c.DistanceKm > DefaultRadiusKm {
			t.Fatalf("candidate beyond radius: %+v", c)
		}
	}
}

func TestFindFiltersCategoryAndAvailability(t *testing.T) {
	offline := driver("off", 1, models.VehicleBakkie)
	offline.Available = false
	src := &fakeSource{drivers: []models.Driver{
		offline,
		driver("moto", 2, models.VehicleMotorbike),
		driver("ok", 5, models.VehicleBakkie),
	}}
	s := New(src)
	s.Distance = lonDistance
	got, err := s.Find(context.Background(), models.Coord{}, []models.VehicleCategory{models.VehicleBakkie})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Driver.ID != "ok" {
		t.Fatalf("expected only 'ok', got %+v", got)
	}
}

func TestFindStableTieBreak(t *testing.T) {
	src := &fakeSource{drivers: []models.Driver{
		driver("first", 10, models.VehicleBakkie),
		driver("second", 10, models.VehicleBakkie),
	}}
	s := New(src)
	s.Distance = lonDistance
	got, err := s.Find(context.Background(), models.Coord{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Driver.ID != "first" || got[1].Driver.ID != "second" {
		t.Fatalf("tie-break not stable: %+v", got)
	}
}

func TestFindTruncatesToLimit(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 30; i++ {
		src.drivers = append(src.drivers, driver(string(rune('a'+i)), float64(i), models.VehicleBakkie))
	}
	s := New(src)
	s.Distance = lonDistance
	got, err := s.Find(context.Background(), models.Coord{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultLimit {
		t.Fatalf("expected %d candidates, got %d", DefaultLimit, len(got))
	}
}

func TestFindExcludes(t *testing.T) {
	src := &fakeSource{drivers: []models.Driver{
		driver("timed-out", 1, models.VehicleBakkie),
		driver("next", 2, models.VehicleBakkie),
	}}
	s := New(src)
	s.Distance = lonDistance
	got, err := s.Find(context.Background(), models.Coord{}, nil, "timed-out")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Driver.ID != "next" {
		t.Fatalf("exclusion failed: %+v", got)
	}
}

func TestFindEmptyWhenNoneInRadius(t *testing.T) {
	src := &fakeSource{drivers: []models.Driver{driver("far", 500, models.VehicleBakkie)}}
	s := New(src)
	s.Distance = lonDistance
	got, err := s.Find(context.Background(), models.Coord{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}
