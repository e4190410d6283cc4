package rhi

import (
	"fmt"
	"sort"

	"github.com/gogpu/gpucontext"
)

// BackendFactory creates an instance of a registered backend.
type BackendFactory func(cfg Config) (Instance, error)

// backends holds registered backend factories. The platform backend is
// preferred when a configuration leaves the backend unset.
var backends = gpucontext.NewRegistry[BackendFactory](
	gpucontext.WithPriority(PlatformBackend().String(), BackendNameVulkan, BackendNameDX12, BackendNameMetal),
)

// RegisterBackend registers a backend factory. Backend packages call it
// from init; import github.com/gogpu/rhi/backend/all to register the
// backends of the running platform. A later registration replaces an
// earlier one.
func RegisterBackend(b Backend, factory BackendFactory) {
	backends.Register(b.String(), func() BackendFactory { return factory })
}

// UnregisterBackend removes a backend from the registry.
// This is useful for testing.
func UnregisterBackend(b Backend) {
	backends.Unregister(b.String())
}

// IsBackendRegistered reports whether a backend is registered.
func IsBackendRegistered(b Backend) bool {
	return backends.Has(b.String())
}

// AvailableBackends returns the registered backends in a stable order.
func AvailableBackends() []Backend {
	names := backends.Available()
	out := make([]Backend, 0, len(names))
	for _, name := range names {
		if b, err := ParseBackend(name); err == nil && b != BackendUndefined {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CreateInstance creates an instance of the configured backend. When the
// configuration leaves the backend unset, the platform backend is used,
// falling back to the best registered one.
func CreateInstance(cfg Config) (Instance, error) {
	cfg = cfg.Normalize()

	b, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	name := b.String()
	if b == BackendUndefined {
		name = PlatformBackend().String()
		if !backends.Has(name) {
			name = backends.BestName()
		}
		if name == "" {
			return nil, fmt.Errorf("%w: none registered (import github.com/gogpu/rhi/backend/all)", ErrBackendNotRegistered)
		}
		Logger().Debug("rhi: backend selected by platform", "backend", name)
	}

	factory := backends.Get(name)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotRegistered, name)
	}

	inst, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s instance: %w", name, err)
	}
	Logger().Info("rhi: instance created", "backend", name, "execution", cfg.Execution)
	return inst, nil
}

// MustCreateInstance is like CreateInstance but panics on error.
func MustCreateInstance(cfg Config) Instance {
	inst, err := CreateInstance(cfg)
	if err != nil {
		panic(err)
	}
	return inst
}
