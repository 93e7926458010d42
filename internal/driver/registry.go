package driver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Driver
	order []string
}

func NewRegistry(drivers ...Driver) (*Registry, error) {
	r := &Registry{
		byID:  map[string]Driver{},
		order: []string{},
	}
	for _, d := range drivers {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(d Driver) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	if d == nil {
		return errors.New("driver is nil")
	}
	id := strings.TrimSpace(d.ID())
	if id == "" {
		return errors.New("driver id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("driver %q already registered", id)
	}
	r.byID[id] = d
	r.order = append(r.order, id)
	return nil
}

func (r *Registry) Get(id string) (Driver, bool) {
	if r == nil {
		return nil, false
	}
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[key]
	return d, ok
}

// List returns drivers in registration order.
func (r *Registry) List() []Driver {
	if r == nil {
		return []Driver{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Driver, 0, len(r.order))
	for _, id := range r.order {
		if d := r.byID[id]; d != nil {
			out = append(out, d)
		}
	}
	return out
}
