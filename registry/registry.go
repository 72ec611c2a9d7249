// Package registry maps peripheral keys to tester factories so the
// orchestrator never depends on concrete tester types.
package registry

import (
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	"github.com/soccentric/hwverify/tester"
)

// ErrNotFound is returned by Create for an unregistered key.
var ErrNotFound = errors.New("peripheral not registered")

// Factory produces a fresh tester, which captures availability and the
// peripheral info snapshot at construction.
type Factory func() tester.PeripheralTester

// Registry is an explicit, injectable factory table. Keys are
// case-sensitive and unique; duplicate registration overwrites.
type Registry struct {
	log       *slog.Logger
	factories map[string]Factory
}

func New(log *slog.Logger) *Registry {
	return &Registry{
		log:       log,
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under key. Registering an existing key
// replaces the previous factory; the overwrite is logged so a wiring
// mistake is at least visible.
func (r *Registry) Register(key string, factory Factory) {
	if _, exists := r.factories[key]; exists {
		r.log.Warn("overwriting registered peripheral", "key", key)
	}
	r.factories[key] = factory
}

// Create constructs a fresh tester for key.
func (r *Registry) Create(key string) (tester.PeripheralTester, error) {
	factory, ok := r.factories[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "peripheral %q", key)
	}
	return factory(), nil
}

// Keys returns the registered keys in sorted order so that batch runs
// visit peripherals deterministically.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int {
	return len(r.factories)
}
