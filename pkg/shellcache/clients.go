package shellcache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is an open page controlled (or not yet controlled) by a worker.
type Client struct {
	ID uuid.UUID

	// Controller is the version of the worker controlling the client, or
	// empty when no worker controls it.
	Controller string

	OpenedAt time.Time
}

// ClientSet tracks open clients and the worker version controlling each.
type ClientSet struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

// NewClientSet creates an empty client set.
func NewClientSet() *ClientSet {
	return &ClientSet{clients: make(map[uuid.UUID]*Client)}
}

// Open registers a client controlled by controller and returns its ID.
func (s *ClientSet) Open(controller string) uuid.UUID {
	c := &Client{
		ID:         uuid.New(),
		Controller: controller,
		OpenedAt:   time.Now(),
	}

	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
	return c.ID
}

// Close forgets a client and reports whether it was open.
func (s *ClientSet) Close(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return false
	}
	delete(s.clients, id)
	return true
}

// Controller returns the controlling version of an open client.
func (s *ClientSet) Controller(id uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return "", false
	}
	return c.Controller, true
}

// Claim makes version the controller of every open client and returns the
// number of clients whose controller changed.
func (s *ClientSet) Claim(version string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, c := range s.clients {
		if c.Controller != version {
			c.Controller = version
			changed++
		}
	}
	return changed
}

// ControlledByOther counts open clients controlled by a version other than
// version. Uncontrolled clients are not counted.
func (s *ClientSet) ControlledByOther(version string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.clients {
		if c.Controller != "" && c.Controller != version {
			n++
		}
	}
	return n
}

// Len returns the number of open clients.
func (s *ClientSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
