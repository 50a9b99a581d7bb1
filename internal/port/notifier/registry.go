package notifier

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Notifier from provider-specific settings.
type Factory func(config map[string]string) (Notifier, error)

// registry holds the self-registered providers. Adapters add themselves from
// init, so the map is effectively read-only once the program is up.
var registry = struct {
	sync.RWMutex
	providers map[string]Factory
}{providers: make(map[string]Factory)}

// Register adds a provider factory under its name. Called from adapter init
// functions; registering a name twice is a programming error and panics.
func Register(name string, factory Factory) {
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.providers[name]; dup {
		panic(fmt.Sprintf("notifier: %q registered twice", name))
	}
	registry.providers[name] = factory
}

// New builds the named provider with its settings.
func New(name string, config map[string]string) (Notifier, error) {
	registry.RLock()
	factory, ok := registry.providers[name]
	registry.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notifier: unknown provider %q", name)
	}
	return factory(config)
}

// Available lists the registered provider names in stable order.
func Available() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
