package location

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
	"github.com/example/trip-dispatch/internal/protocol"
	"github.com/example/trip-dispatch/internal/ws"
)

// ErrIdentityMismatch means a connection claimed to report for a driver
// it is not authenticated as. Callers must drop the message or close the
// connection; the report is never trusted.
var ErrIdentityMismatch = errors.New("location report identity mismatch")

type Store interface {
	UpdateLocation(ctx context.Context, id string, c models.Coord) error
}

type Publisher interface {
	PublishLocation(r models.LocationReport) error
}

type Broadcaster interface {
	Broadcast(group string, v any)
}

// Tracker receives periodic position reports from connected drivers,
// persists the latest coordinates and republishes them to subscribed
// riders. Broadcast is fire-and-forget.
type Tracker struct {
	Store     Store
	Publisher Publisher // optional ingest pipeline
	Registry  Broadcaster
	Logger    *slog.Logger
}

func NewTracker(store Store, pub Publisher, reg Broadcaster, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{Store: store, Publisher: pub, Registry: reg, Logger: logger}
}

// Report validates that the caller is the driver it claims to be, persists
// the coordinates and broadcasts them to the driver's group. A persistence
// failure is logged and the update dropped: the last good location stays
// authoritative and nothing is broadcast.
func (t *Tracker) Report(ctx context.Context, caller models.Identity, driverID string, lat, lon float64) error {
	if caller.Role != models.RoleDriver || caller.ID != driverID {
		return ErrIdentityMismatch
	}
	if err := t.Store.UpdateLocation(ctx, driverID, models.Coord{Lat: lat, Lon: lon}); err != nil {
		t.Logger.Error("location persist failed, dropping update", "driver", driverID, "error", err)
		return nil
	}
	observability.LocationUpdatesTotal.Inc()
	if t.Publisher != nil {
		if err := t.Publisher.PublishLocation(models.LocationReport{DriverID: driverID, Lat: lat, Lon: lon, ReportedAt: time.Now()}); err != nil {
			t.Logger.Warn("location publish failed", "driver", driverID, "error", err)
		}
	}
	t.Registry.Broadcast(ws.DriverGroup(driverID), protocol.NewDriverLocation(driverID, lat, lon))
	return nil
}
