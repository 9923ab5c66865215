package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/trip-dispatch/internal/models"
)

type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failH    int // number of times to fail HSet before succeeding
	geoCalls int
	hCalls   int
	lastGeo  *redis.GeoLocation
	lastHash map[string]interface{}
}

func (f *fakeUpdater) GeoAdd(_ context.Context, _ string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.lastGeo = loc
	return nil
}

func (f *fakeUpdater) HSet(_ context.Context, _ string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	f.lastHash = values
	return nil
}

func TestApplyReportSucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 1, failH: 1}
	rep := models.LocationReport{DriverID: "d1", Lat: -26.1, Lon: 28.05, ReportedAt: time.Now()}
	start := time.Now()
	if err := applyReportWithRetry(context.Background(), f, "drivers_geo", rep, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.geoCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got geo=%d h=%d", f.geoCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.lastGeo == nil || f.lastGeo.Name != "d1" || f.lastGeo.Latitude != -26.1 {
		t.Fatalf("geo entry not written: %+v", f.lastGeo)
	}
	if _, ok := f.lastHash["updated"]; !ok {
		t.Fatalf("updated stamp missing: %+v", f.lastHash)
	}
}

func TestApplyReportFailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	rep := models.LocationReport{DriverID: "d1", Lat: 1, Lon: 2}
	if err := applyReportWithRetry(context.Background(), f, "drivers_geo", rep, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
