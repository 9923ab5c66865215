package location

import (
	"context"
	"errors"
	"testing"

	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/protocol"
	"github.com/example/trip-dispatch/internal/ws"
)

type fakeStore struct {
	fail bool
	last map[string]models.Coord
}

func (f *fakeStore) UpdateLocation(_ context.Context, id string, c models.Coord) error {
	if f.fail {
		return errors.New("store down")
	}
	if f.last == nil {
		f.last = make(map[string]models.Coord)
	}
	f.last[id] = c
	return nil
}

type fakePublisher struct{ reports []models.LocationReport }

func (f *fakePublisher) PublishLocation(r models.LocationReport) error {
	f.reports = append(f.reports, r)
	return nil
}

type fakeBroadcaster struct{ byGroup map[string][]any }

func (f *fakeBroadcaster) Broadcast(group string, v any) {
	if f.byGroup == nil {
		f.byGroup = make(map[string][]any)
	}
	f.byGroup[group] = append(f.byGroup[group], v)
}

var asDriver = models.Identity{ID: "d1", Role: models.RoleDriver}

func TestReportPersistsPublishesAndBroadcasts(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	bc := &fakeBroadcaster{}
	tr := NewTracker(store, pub, bc, nil)

	if err := tr.Report(context.Background(), asDriver, "d1", -26.1, 28.05); err != nil {
		t.Fatal(err)
	}
	if got := store.last["d1"]; got.Lat != -26.1 || got.Lon != 28.05 {
		t.Fatalf("coordinates not persisted: %+v", got)
	}
	if len(pub.reports) != 1 || pub.reports[0].DriverID != "d1" {
		t.Fatalf("report not published: %+v", pub.reports)
	}
	msgs := bc.byGroup[ws.DriverGroup("d1")]
	if len(msgs) != 1 {
		t.Fatalf("broadcast missing: %+v", bc.byGroup)
	}
	if loc := msgs[0].(protocol.DriverLocation); loc.DriverID != "d1" || loc.Lat != -26.1 {
		t.Fatalf("unexpected broadcast: %+v", loc)
	}
}

func TestReportRejectsIdentityMismatch(t *testing.T) {
	store := &fakeStore{}
	tr := NewTracker(store, nil, &fakeBroadcaster{}, nil)
	if err := tr.Report(context.Background(), asDriver, "someone-else", 1, 2); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
	rider := models.Identity{ID: "d1", Role: models.RoleRider}
	if err := tr.Report(context.Background(), rider, "d1", 1, 2); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch for rider, got %v", err)
	}
	if len(store.last) != 0 {
		t.Fatal("rejected report was persisted")
	}
}

func TestReportDropsUpdateOnPersistFailure(t *testing.T) {
	bc := &fakeBroadcaster{}
	tr := NewTracker(&fakeStore{fail: true}, nil, bc, nil)
	if err := tr.Report(context.Background(), asDriver, "d1", 1, 2); err != nil {
		t.Fatalf("persist failure must be swallowed, got %v", err)
	}
	if len(bc.byGroup) != 0 {
		t.Fatal("dropped update was still broadcast")
	}
}
