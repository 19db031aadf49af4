package intake

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/vehicle"
)

// ErrServiceClosed is returned once the service has shut down.
var ErrServiceClosed = errors.New("intake service closed")

// Service 管理所有问题录入会话，会话之间互不共享状态。
type Service struct {
	deps     Deps
	vehicles vehicle.Store

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewService creates the session registry. vehicles may be nil, in which
// case any non-empty vehicle model is accepted.
func NewService(deps Deps, vehicles vehicle.Store) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		deps:     deps,
		vehicles: vehicles,
		sessions: make(map[string]*Session),
	}
}

// CreateSession opens an intake form for a vehicle, given by catalog id or
// display name.
func (s *Service) CreateSession(ctx context.Context, vehicleRef string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := s.resolveVehicle(vehicleRef)
	if err != nil {
		return nil, err
	}

	session := NewSession(uuid.NewString(), model, s.deps)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		session.Close()
		return nil, ErrServiceClosed
	}
	s.sessions[session.ID()] = session
	log.Printf("[intake] session created session=%s vehicle=%s", session.ID(), model)
	return session, nil
}

func (s *Service) resolveVehicle(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrUnknownVehicle
	}
	if s.vehicles == nil {
		return ref, nil
	}
	v, ok := s.vehicles.FindByID(ref)
	if !ok {
		return "", ErrUnknownVehicle
	}
	return v.Name, nil
}

// Get returns a live session.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CloseSession tears down one session.
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	return nil
}

// SweepIdle closes sessions that nobody is watching and that have seen no
// activity for ttl. It returns how many sessions were closed.
func (s *Service) SweepIdle(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	s.mu.RLock()
	var stale []string
	for id, session := range s.sessions {
		lastActive, watched := session.idleSince()
		if !watched && now.Sub(lastActive) > ttl {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, id := range stale {
		if err := s.CloseSession(id); err == nil {
			log.Printf("[intake] expired idle session=%s", id)
			closed++
		}
	}
	return closed
}

// RunIdleSweeper calls SweepIdle periodically until ctx ends.
func (s *Service) RunIdleSweeper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(sweepInterval(ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(s.deps.Now(), ttl)
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}

// Close tears down every session.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
