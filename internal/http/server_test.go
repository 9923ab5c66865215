package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/trip-dispatch/internal/config"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/lifecycle"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/protocol"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		KeepaliveInterval: time.Second,
		OfferTimeout:      time.Second,
		SearchRadiusKm:    50,
		CandidateLimit:    20,
		SurgeMultiplier:   1.5,
	}
	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}
}

func TestPaymentRecordEndpoint(t *testing.T) {
	s := testServer(t)

	body := `{"trip_id":"t1","payment_method":"cash","status":"pending","amount":720,"currency":"ZAR"}`
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("POST", "/internal/payments", strings.NewReader(body)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	p, ok, err := s.Payments.GetPaymentForTrip(context.Background(), "t1")
	if err != nil || !ok {
		t.Fatalf("payment not recorded: ok=%v err=%v", ok, err)
	}
	if p.Method != models.PayCash || p.Amount != 720 {
		t.Fatalf("unexpected payment: %+v", p)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("POST", "/internal/payments", strings.NewReader(`{"amount":1}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	body = `{"trip_id":"t2","payment_method":"card","currency":"EUR"}`
	s.ServeHTTP(rec, httptest.NewRequest("POST", "/internal/payments", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported currency, got %d", rec.Code)
	}
}

func TestRiderWSRejectsBadToken(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/ws/rider?token=nope", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDriverTokenOnRiderEndpointForbidden(t *testing.T) {
	s := testServer(t)
	s.Identity = staticIdentity{models.Identity{ID: "d1", Role: models.RoleDriver}}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/ws/rider?token=any", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

type staticIdentity struct{ id models.Identity }

func (s staticIdentity) Authenticate(string) (models.Identity, error) { return s.id, nil }

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/driver?token=abc", nil)
	if got := bearerToken(r); got != "abc" {
		t.Fatalf("query token not picked up: %q", got)
	}
	r = httptest.NewRequest("GET", "/ws/driver", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	if got := bearerToken(r); got != "xyz" {
		t.Fatalf("header token not picked up: %q", got)
	}
}

func TestErrorCodes(t *testing.T) {
	cases := map[string]struct {
		err  error
		code string
	}{
		"stale maps internal":  {dispatch.ErrStaleOffer, "internal_error"},
		"not pending":          {dispatch.ErrNotPending, "trip_not_pending"},
		"payment gate":         {dispatch.ErrPaymentRequired, "payment_required"},
		"wrong driver":         {lifecycle.ErrNotAssignedDriver, "forbidden"},
		"bad transition":       {lifecycle.ErrInvalidTransition, "invalid_transition"},
		"validation":           {protocol.ErrValidation, "validation_error"},
		"unknown message type": {protocol.ErrUnknownType, "unknown_type"},
	}
	for name, tc := range cases {
		if got := errorCode(tc.err); got != tc.code {
			t.Errorf("%s: got %q, want %q", name, got, tc.code)
		}
	}
}
