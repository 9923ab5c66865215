package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/identity"
	"github.com/example/trip-dispatch/internal/lifecycle"
	"github.com/example/trip-dispatch/internal/location"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/observability"
	"github.com/example/trip-dispatch/internal/protocol"
	"github.com/example/trip-dispatch/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleRiderWS(w http.ResponseWriter, r *http.Request) {
	s.handleWS(w, r, models.RoleRider)
}

func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	s.handleWS(w, r, models.RoleDriver)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, role models.Role) {
	party, err := s.Identity.Authenticate(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if party.Role != role {
		http.Error(w, "wrong endpoint for role", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade already wrote the response
	}

	if role == models.RoleDriver {
		s.registerDriver(r, party.ID)
	}

	session := ws.NewSession(party, conn)
	s.Registry.Register(session)
	observability.ConnectionsLive.Inc()
	s.logger.Info("ws connected", "party", party.ID, "role", party.Role)

	go session.WritePump(s.cfg.KeepaliveInterval)
	s.readPump(r.Context(), conn, session)

	s.Registry.Unregister(session)
	session.Close()
	observability.ConnectionsLive.Dec()
	if role == models.RoleDriver {
		if err := s.Directory.SetAvailable(context.Background(), party.ID, false); err != nil {
			s.logger.Warn("mark driver offline failed", "driver", party.ID, "error", err)
		}
	}
	s.logger.Info("ws disconnected", "party", party.ID, "role", party.Role)
}

// registerDriver puts a freshly connected driver into the directory as
// available. The vehicle category rides along on the handshake URL; a
// reconnecting driver without one keeps the stored profile.
func (s *Server) registerDriver(r *http.Request, driverID string) {
	category := r.URL.Query().Get("vehicle_category")
	if category != "" {
		err := s.Directory.Upsert(r.Context(), models.Driver{
			ID:        driverID,
			Category:  models.VehicleCategory(category),
			Available: true,
			Updated:   time.Now(),
		})
		if err != nil {
			s.logger.Warn("driver upsert failed", "driver", driverID, "error", err)
		}
		return
	}
	if err := s.Directory.SetAvailable(r.Context(), driverID, true); err != nil {
		s.logger.Warn("mark driver available failed", "driver", driverID, "error", err)
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, session *ws.Session) {
	wait := 2 * s.cfg.KeepaliveInterval
	conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wait))
		if closing := s.handleMessage(ctx, session, data); closing {
			return
		}
	}
}

// handleMessage routes one decoded frame. It returns true when the
// connection must be torn down, which only happens on an identity
// mismatch in a location report.
func (s *Server) handleMessage(ctx context.Context, session *ws.Session, data []byte) bool {
	party := session.Party

	msg, err := protocol.Decode(data)
	if err != nil {
		s.sendError(party.ID, err)
		return false
	}

	switch m := msg.(type) {
	case protocol.CreateTrip:
		if !s.requireRole(party, models.RoleRider) {
			return false
		}
		trip, cands, err := s.Engine.CreateTrip(ctx, party.ID, m)
		if err != nil {
			s.sendError(party.ID, err)
			return false
		}
		s.Registry.Send(party.ID, protocol.NewTripCreated(trip, cands))

	case protocol.ConfirmDriver:
		if !s.requireRole(party, models.RoleRider) {
			return false
		}
		if err := s.Engine.OfferToDriver(ctx, party.ID, m.TripID, m.DriverID); err != nil {
			s.sendError(party.ID, err)
		}

	case protocol.CancelTrip:
		if party.Role == models.RoleDriver {
			if err := s.Lifecycle.UpdateStatus(ctx, party, m.TripID, models.StatusCancelled); err != nil {
				s.sendError(party.ID, err)
			}
			return false
		}
		if err := s.Engine.Cancel(ctx, party.ID, m.TripID); err != nil {
			s.sendError(party.ID, err)
		}

	case protocol.SubscribeDriver:
		if !s.requireRole(party, models.RoleRider) {
			return false
		}
		s.Registry.Join(ws.DriverGroup(m.DriverID), session)

	case protocol.Location:
		err := s.Locations.Report(ctx, party, m.DriverID, m.Lat, m.Lon)
		if errors.Is(err, location.ErrIdentityMismatch) {
			s.sendError(party.ID, err)
			s.logger.Warn("location identity mismatch, closing", "party", party.ID, "claimed", m.DriverID)
			return true
		}
		if err != nil {
			s.sendError(party.ID, err)
		}

	case protocol.OfferResponse:
		if !s.requireRole(party, models.RoleDriver) {
			return false
		}
		err := s.Engine.ResolveOffer(ctx, party.ID, m.TripID, m.Decision)
		if errors.Is(err, dispatch.ErrStaleOffer) {
			// the offer already went to a timeout or cancellation;
			// nothing useful to tell the driver
			s.logger.Info("stale offer response dropped", "driver", party.ID, "trip", m.TripID)
			return false
		}
		if err != nil {
			s.sendError(party.ID, err)
		}

	case protocol.StatusUpdate:
		if !s.requireRole(party, models.RoleDriver) {
			return false
		}
		if err := s.Lifecycle.UpdateStatus(ctx, party, m.TripID, m.Status); err != nil {
			s.sendError(party.ID, err)
		}
	}
	return false
}

func (s *Server) requireRole(party models.Identity, role models.Role) bool {
	if party.Role == role {
		return true
	}
	s.Registry.Send(party.ID, protocol.NewError("forbidden", "message not allowed for role "+string(party.Role)))
	return false
}

func (s *Server) sendError(partyID string, err error) {
	s.Registry.Send(partyID, protocol.NewError(errorCode(err), err.Error()))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, protocol.ErrValidation):
		return "validation_error"
	case errors.Is(err, protocol.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, identity.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, dispatch.ErrTripNotFound), errors.Is(err, lifecycle.ErrTripNotFound):
		return "trip_not_found"
	case errors.Is(err, dispatch.ErrDriverNotFound):
		return "driver_not_found"
	case errors.Is(err, dispatch.ErrNotTripRider), errors.Is(err, lifecycle.ErrNotAssignedDriver), errors.Is(err, location.ErrIdentityMismatch):
		return "forbidden"
	case errors.Is(err, dispatch.ErrNotPending):
		return "trip_not_pending"
	case errors.Is(err, dispatch.ErrDriverUnavailable):
		return "driver_unavailable"
	case errors.Is(err, dispatch.ErrDriverBusy):
		return "driver_busy"
	case errors.Is(err, dispatch.ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, dispatch.ErrRouteUnavailable):
		return "route_unavailable"
	case errors.Is(err, dispatch.ErrNotCancelable), errors.Is(err, lifecycle.ErrConflict):
		return "conflict"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal_error"
	}
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
