package rhi

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Execution layer names for Config.Execution.
const (
	// ExecutionNative drives the hal backend matching the RHI backend.
	ExecutionNative = "native"
	// ExecutionNoop drives the hal noop backend. Commands are validated
	// and translated but nothing reaches a GPU.
	ExecutionNoop = "noop"
)

// Config controls instance creation. The backend is fixed once an
// instance exists.
type Config struct {
	// Backend is the backend name ("dx12", "metal", "vulkan").
	// Empty selects PlatformBackend().
	Backend string `toml:"backend"`

	// Execution selects the hal layer that executes translated commands:
	// ExecutionNative (default) or ExecutionNoop.
	Execution string `toml:"execution"`

	// Validation enables precondition assertions on hot paths
	// (bind element patching, barrier translation, raytracing builds).
	Validation bool `toml:"validation"`

	// Label prefixes debug labels of objects created without one.
	Label string `toml:"label"`

	// FencePollInterval is how often Fence.Wait polls queue completion.
	FencePollInterval Duration `toml:"fence_poll_interval"`

	// SamplerCacheSize bounds the per-shard sampler de-duplication cache.
	SamplerCacheSize int `toml:"sampler_cache_size"`

	Heaps   HeapConfig  `toml:"heaps"`
	Queries QueryConfig `toml:"queries"`
}

// HeapConfig sizes the per-device descriptor arenas.
type HeapConfig struct {
	Resource     uint32 `toml:"resource"`
	Sampler      uint32 `toml:"sampler"`
	RenderTarget uint32 `toml:"render_target"`
	DepthStencil uint32 `toml:"depth_stencil"`
}

// QueryConfig bounds query heaps.
type QueryConfig struct {
	MaxPerHeap uint32 `toml:"max_per_heap"`
}

// Duration is a time.Duration that reads from TOML strings like "250us".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Execution:         ExecutionNative,
		FencePollInterval: Duration{100 * time.Microsecond},
		SamplerCacheSize:  64,
		Heaps: HeapConfig{
			Resource:     1 << 16,
			Sampler:      2048,
			RenderTarget: 1024,
			DepthStencil: 256,
		},
		Queries: QueryConfig{
			MaxPerHeap: 4096,
		},
	}
}

// ParseConfig decodes a TOML document on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// LoadConfig reads and decodes a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

// Encode returns the configuration as a TOML document.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// BackendKind resolves the configured backend name.
func (c Config) BackendKind() (Backend, error) {
	b, err := ParseBackend(c.Backend)
	if err != nil {
		return BackendUndefined, err
	}
	if b == BackendUndefined {
		b = PlatformBackend()
	}
	return b, nil
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Execution == "" {
		c.Execution = d.Execution
	}
	if c.FencePollInterval.Duration <= 0 {
		c.FencePollInterval = d.FencePollInterval
	}
	if c.SamplerCacheSize <= 0 {
		c.SamplerCacheSize = d.SamplerCacheSize
	}
	if c.Heaps.Resource == 0 {
		c.Heaps.Resource = d.Heaps.Resource
	}
	if c.Heaps.Sampler == 0 {
		c.Heaps.Sampler = d.Heaps.Sampler
	}
	if c.Heaps.RenderTarget == 0 {
		c.Heaps.RenderTarget = d.Heaps.RenderTarget
	}
	if c.Heaps.DepthStencil == 0 {
		c.Heaps.DepthStencil = d.Heaps.DepthStencil
	}
	if c.Queries.MaxPerHeap == 0 {
		c.Queries.MaxPerHeap = d.Queries.MaxPerHeap
	}
	return c
}

// Normalize returns c with zero fields replaced by their defaults.
// Backends call it before using a Config passed to CreateInstance.
func (c Config) Normalize() Config { return c.withDefaults() }
