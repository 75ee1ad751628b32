package billing

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Config carries adapter construction settings. Credential keys are defined
// by each adapter package; Sandbox selects the platform's testing store and
// must be decided before Connect.
type Config struct {
	Sandbox     bool
	Credentials map[string]string
	Logger      *zap.Logger
}

// Credential returns the named credential or "" when unset.
func (c Config) Credential(key string) string {
	return c.Credentials[key]
}

// Factory builds an adapter for one platform from its configuration.
type Factory func(cfg Config) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Platform]Factory)
)

// Register makes an adapter factory available under the given platform name.
// Adapter packages call it from init, database/sql driver style. Registering
// the same platform twice panics: two factories for one store is a wiring
// bug, not a runtime condition.
func Register(platform Platform, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("billing: Register with nil factory")
	}
	if _, dup := registry[platform]; dup {
		panic(fmt.Sprintf("billing: Register called twice for platform %q", platform))
	}
	registry[platform] = factory
}

// Open builds the registered adapter for platform. The caller still owns the
// Connect/Disconnect lifecycle.
func Open(platform Platform, cfg Config) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[platform]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return factory(cfg)
}

// Platforms lists the registered platforms in stable order.
func Platforms() []Platform {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Platform, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
