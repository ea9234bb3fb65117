package service

import (
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/drblury/nodeflow/internal/runtime/errors"
)

// Catalog holds the services hosted by a node, indexed for dispatch. It is
// safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	services map[string]*Service
	actions  map[string]ActionCallback
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		services: make(map[string]*Service),
		actions:  make(map[string]ActionCallback),
	}
}

// Add freezes a copy of svc into the catalog. A service name is unique per
// node whatever its version.
func (c *Catalog) Add(svc *Service) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if svc.Name() == "" {
		return errspkg.ErrServiceNameRequired
	}
	frozen := svc.Clone()
	name := frozen.Name()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, exists := c.services[name]; exists {
		return fmt.Errorf("%w: %s (already hosted as %s)", errspkg.ErrDuplicateService, frozen.FullName(), existing.FullName())
	}
	c.services[name] = frozen
	for name, cb := range frozen.actions {
		c.actions[frozen.FullActionName(name)] = cb
	}
	return nil
}

// Action finds an action by its fully qualified name, e.g. "v2.users.get".
func (c *Catalog) Action(fullName string) (ActionCallback, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cb, ok := c.actions[fullName]
	return cb, ok
}

// Events returns the callbacks subscribed to event. With groups, only
// services whose name is one of the groups are included.
func (c *Catalog) Events(event string, groups []string) []EventCallback {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []EventCallback
	for _, name := range c.sortedNames() {
		svc := c.services[name]
		if len(groups) > 0 && !contains(groups, svc.Name()) {
			continue
		}
		if cb, ok := svc.FindEvent(event); ok {
			out = append(out, cb)
		}
	}
	return out
}

// Schemas describes every hosted service for INFO packets.
func (c *Catalog) Schemas() []Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Schema, 0, len(c.services))
	for _, name := range c.sortedNames() {
		out = append(out, c.services[name].Schema())
	}
	return out
}

// Names lists the full names of hosted services in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := c.sortedNames()
	for i, name := range names {
		names[i] = c.services[name].FullName()
	}
	return names
}

// Len reports how many services are hosted.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.services)
}

func (c *Catalog) sortedNames() []string {
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
