package compute

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBackend is returned by Open for a name nobody registered.
var ErrUnknownBackend = errors.New("compute: unknown backend")

// Factory creates a Runtime.
type Factory func() (Runtime, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. Backends call it from
// init; registering a name twice replaces the earlier factory.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("compute: Register requires a name and a factory")
	}
	registryMu.Lock()
	registry[name] = f
	registryMu.Unlock()
}

// Open creates a runtime from the backend registered under name.
func Open(name string) (Runtime, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownBackend, name, Backends())
	}
	return f()
}

// Backends returns the sorted names of all registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
