package fare

import (
	"math"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
)

func TestEstimateBakkie(t *testing.T) {
	e := NewEstimator(0)
	// 80 + 55*10 + 45*2 = 720
	got := e.Estimate(models.VehicleBakkie, 55.0, 45.0, false)
	if got != 720.0 {
		t.Fatalf("expected 720.0, got %f", got)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := NewEstimator(0)
	a := e.Estimate(models.VehicleTruck2Ton, 12.3, 18.7, false)
	b := e.Estimate(models.VehicleTruck2Ton, 12.3, 18.7, false)
	if a != b {
		t.Fatalf("estimate not deterministic: %f vs %f", a, b)
	}
}

func TestEstimateSurgeMultiplies(t *testing.T) {
	e := NewEstimator(1.5)
	plain := e.Estimate(models.VehicleBakkie, 10, 20, false)
	surged := e.Estimate(models.VehicleBakkie, 10, 20, true)
	if math.Abs(surged-plain*1.5) > 0.01 {
		t.Fatalf("surge mismatch: plain=%f surged=%f", plain, surged)
	}
}

func TestEstimateUnknownCategoryUsesFallback(t *testing.T) {
	e := NewEstimator(0)
	got := e.Estimate(models.VehicleCategory("hovercraft"), 55.0, 45.0, false)
	want := e.Estimate(models.VehicleBakkie, 55.0, 45.0, false)
	if got != want {
		t.Fatalf("fallback mismatch: got %f want %f", got, want)
	}
}

func TestEstimateRoundsToCents(t *testing.T) {
	e := NewEstimator(0)
	got := e.Estimate(models.VehicleMotorbike, 1.111, 1.111, false)
	if got != math.Round(got*100)/100 {
		t.Fatalf("result not rounded: %v", got)
	}
}
