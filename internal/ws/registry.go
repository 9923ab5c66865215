// Package ws holds the connection registry: the process-wide map from
// parties (riders, drivers) to their live websocket sessions and the
// logical groups used for targeted and broadcast delivery.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/example/trip-dispatch/internal/models"
)

func DriverGroup(id string) string { return "driver_" + id }
func RiderGroup(id string) string  { return "rider_" + id }

// Registry maps party ids and group names to live sessions. Delivery is
// best-effort: sending to a party with no session is a no-op, and a
// session that cannot keep up is torn down rather than blocking the
// sender.
type Registry struct {
	mu       sync.RWMutex
	parties  map[string]map[*Session]struct{}
	groups   map[string]map[*Session]struct{}
	memberOf map[*Session]map[string]struct{}
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		parties:  make(map[string]map[*Session]struct{}),
		groups:   make(map[string]map[*Session]struct{}),
		memberOf: make(map[*Session]map[string]struct{}),
		logger:   logger,
	}
}

// Register adds the session under its party id and its own role group.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := s.Party.ID
	if r.parties[id] == nil {
		r.parties[id] = make(map[*Session]struct{})
	}
	r.parties[id][s] = struct{}{}
	r.memberOf[s] = make(map[string]struct{})
	switch s.Party.Role {
	case models.RoleDriver:
		r.joinLocked(DriverGroup(id), s)
	case models.RoleRider:
		r.joinLocked(RiderGroup(id), s)
	}
}

// Unregister removes the session from the party map and every group it
// joined. Unregistering an unknown session is a no-op.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.parties[s.Party.ID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.parties, s.Party.ID)
		}
	}
	for g := range r.memberOf[s] {
		r.leaveLocked(g, s)
	}
	delete(r.memberOf, s)
}

func (r *Registry) Join(group string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(group, s)
}

func (r *Registry) Leave(group string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(group, s)
	if m, ok := r.memberOf[s]; ok {
		delete(m, group)
	}
}

func (r *Registry) joinLocked(group string, s *Session) {
	if r.groups[group] == nil {
		r.groups[group] = make(map[*Session]struct{})
	}
	r.groups[group][s] = struct{}{}
	if r.memberOf[s] == nil {
		r.memberOf[s] = make(map[string]struct{})
	}
	r.memberOf[s][group] = struct{}{}
}

func (r *Registry) leaveLocked(group string, s *Session) {
	if set, ok := r.groups[group]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.groups, group)
		}
	}
}

// Send delivers a message to every session of one party.
func (r *Registry) Send(partyID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("ws marshal failed", "error", err)
		return
	}
	r.mu.RLock()
	targets := sessionsOf(r.parties[partyID])
	r.mu.RUnlock()
	r.deliver(targets, data)
}

// Broadcast delivers a message to every member of a group.
func (r *Registry) Broadcast(group string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("ws marshal failed", "error", err)
		return
	}
	r.mu.RLock()
	targets := sessionsOf(r.groups[group])
	r.mu.RUnlock()
	r.deliver(targets, data)
}

func (r *Registry) deliver(targets []*Session, data []byte) {
	for _, s := range targets {
		if !s.enqueue(data) {
			// slow consumer: drop the session instead of blocking dispatch
			r.logger.Warn("dropping slow session", "party", s.Party.ID)
			r.Unregister(s)
			s.Close()
		}
	}
}

func sessionsOf(set map[*Session]struct{}) []*Session {
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
