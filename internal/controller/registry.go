package controller

import (
	"fmt"
	"net"
	"sort"
	"sync"
)

// Registry holds the coordinators of every managed controller.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Coordinator
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Coordinator{}}
}

func (r *Registry) Register(c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.ID()]; exists {
		return fmt.Errorf("controller %q already registered", c.ID())
	}
	r.byID[c.ID()] = c
	return nil
}

// Unregister removes a controller and stops its pending reverts.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, exists := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()
	if exists {
		c.Close()
	}
}

func (r *Registry) Get(id string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// ByHost finds the controller configured with the given address. A port
// suffix on either side is ignored.
func (r *Registry) ByHost(host string) (*Coordinator, bool) {
	host = stripPort(host)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if stripPort(c.Device().Host) == host {
			return c, true
		}
	}
	return nil, false
}

func stripPort(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// All returns the coordinators ordered by id.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
