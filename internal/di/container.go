// internal/di/container.go
package di

import (
	"fmt"
	"sort"
	"sync"
)

// Well-known service names.
const (
	Store       = "store"
	VerseStore  = "verse_store"
	Sessions    = "sessions"
	Submissions = "submissions"
	Export      = "export"
	Verses      = "verses"
	Gate        = "gate"
	Tokens      = "tokens"
	Reviews     = "reviews"
	Metrics     = "metrics"
	Stats       = "stats"
)

// Container holds the application's long-lived services by name.
type Container struct {
	services map[string]interface{}
	order    []string
	mutex    sync.RWMutex
}

var (
	globalContainer *Container
	once            sync.Once
)

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{services: make(map[string]interface{})}
}

// GetContainer returns the process-wide container.
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register stores service under name, replacing any earlier registration.
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.services[name] = service
}

// Get returns the service registered under name, or nil.
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.services[name]
}

// Has reports whether name is registered.
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	_, exists := c.services[name]
	return exists
}

// Remove drops a registration.
func (c *Container) Remove(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.services[name]; !exists {
		return
	}
	delete(c.services, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear empties the container.
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services = make(map[string]interface{})
	c.order = nil
}

// GetNames lists registered names alphabetically.
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close calls Close on every registered service that has one, newest
// registration first, and returns the first error.
func (c *Container) Close() error {
	c.mutex.RLock()
	order := append([]string(nil), c.order...)
	services := make(map[string]interface{}, len(c.services))
	for k, v := range c.services {
		services[k] = v
	}
	c.mutex.RUnlock()

	var first error
	for i := len(order) - 1; i >= 0; i-- {
		var err error
		switch s := services[order[i]].(type) {
		case interface{ Close() error }:
			err = s.Close()
		case interface{ Close() }:
			s.Close()
		}
		if err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", order[i], err)
		}
	}
	return first
}

// Resolve fetches name as a T.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	service := c.Get(name)
	if service == nil {
		return zero, fmt.Errorf("service %q is not registered", name)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service %q is %T, not %T", name, service, zero)
	}
	return typed, nil
}

// MustResolve is Resolve for wiring code that cannot continue without the
// service.
func MustResolve[T any](c *Container, name string) T {
	typed, err := Resolve[T](c, name)
	if err != nil {
		panic(err)
	}
	return typed
}
