// Package config implements the configuration layer (C8): JSON-tagged
// structs describing the cache hierarchy, the access driver's .text range
// and ARM identification, and the collaborator transport, loaded from a
// file or overridden from the environment, following the same
// Default*Config/LoadConfig/SaveConfig/Validate shape already used by this
// codebase's timing-latency configuration layer.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/byuccl/qemu/cache"
)

// ErrInvalidConfig is returned by Validate when a loaded Config fails a
// sanity check (cache dimensions that cache.New would reject, or a .text
// range whose end precedes its start), surfaced early so a CLI run fails
// before opening the trace or listener.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// CacheConfig mirrors cache.Config with JSON tags; it is translated to
// cache.Config by ToCacheConfig.
type CacheConfig struct {
	Size          uint32 `json:"size"`
	Associativity uint32 `json:"associativity"`
	BlockSize     uint32 `json:"block_size"`
	Replace       string `json:"replace"`  // "round_robin" | "random"
	Allocate      string `json:"allocate"` // "write_allocate" | "no_write_allocate"
}

// ToCacheConfig converts c to a cache.Config, resolving its string-named
// enums. An empty or unrecognized replace name becomes cache.RoundRobin and
// an empty or unrecognized allocate name becomes cache.WriteAllocate;
// neither this function nor cache.New rejects an unknown policy name.
func (c CacheConfig) ToCacheConfig() cache.Config {
	cc := cache.Config{
		Size:          c.Size,
		Associativity: c.Associativity,
		BlockSize:     c.BlockSize,
	}
	switch c.Replace {
	case "random":
		cc.Replace = cache.Random
	default:
		cc.Replace = cache.RoundRobin
	}
	switch c.Allocate {
	case "no_write_allocate":
		cc.Allocate = cache.NoWriteAllocate
	default:
		cc.Allocate = cache.WriteAllocate
	}
	return cc
}

func fromCacheConfig(cc cache.Config) CacheConfig {
	c := CacheConfig{Size: cc.Size, Associativity: cc.Associativity, BlockSize: cc.BlockSize}
	if cc.Replace == cache.Random {
		c.Replace = "random"
	} else {
		c.Replace = "round_robin"
	}
	if cc.Allocate == cache.NoWriteAllocate {
		c.Allocate = "no_write_allocate"
	} else {
		c.Allocate = "write_allocate"
	}
	return c
}

// Config is the full set of parameters a run command needs to construct
// the cache hierarchy, the access driver, and the collaborator listener.
type Config struct {
	ICache CacheConfig `json:"icache"`
	DCache CacheConfig `json:"dcache"`
	L2Cache CacheConfig `json:"l2cache"`

	TextStart uint32 `json:"text_start"`
	TextEnd   uint32 `json:"text_end"`
	ArmTarget bool   `json:"arm_target"`

	ListenAddr    string `json:"listen_addr"`
	TracePath     string `json:"trace_path"`
	RegistersPath string `json:"registers_path"`
}

// DefaultConfig returns the Cortex-A9 / Zynq-7000 defaults named in the
// component design, with an empty trace/registers path and the
// conventional local listen address.
func DefaultConfig() *Config {
	return &Config{
		ICache:    fromCacheConfig(cache.DefaultIConfig),
		DCache:    fromCacheConfig(cache.DefaultDConfig),
		L2Cache:   fromCacheConfig(cache.DefaultL2Config),
		TextStart: 0,
		TextEnd:   0,
		ArmTarget: true,
		ListenAddr: "127.0.0.1:9900",
	}
}

// LoadConfig reads and parses a JSON config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON to path.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate checks that the cache dimensions are self-consistent before a
// caller constructs the hierarchy, so a misconfigured run fails with an
// error naming the offending cache instead of a bare ErrNotPowerOfTwo from
// deep in cache.New.
func (c *Config) Validate() error {
	check := func(name string, cc CacheConfig) error {
		k := cc.ToCacheConfig()
		if err := k.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
		return nil
	}
	if err := check("icache", c.ICache); err != nil {
		return err
	}
	if err := check("dcache", c.DCache); err != nil {
		return err
	}
	if err := check("l2cache", c.L2Cache); err != nil {
		return err
	}
	if c.TextEnd < c.TextStart {
		return fmt.Errorf("%w: text_end precedes text_start", ErrInvalidConfig)
	}
	return nil
}

// LoadDotenvDefaults loads KEY=VALUE pairs from the .env file at path into
// the process environment, for local developer runs where passing
// --trace/--listen on every invocation is tedious. A missing .env file is
// not an error. The values reach a Config only through EnvOverrides, which
// fills empty fields only.
func LoadDotenvDefaults(path string) {
	_ = godotenv.Load(path)
}

// EnvOverrides applies QEMU_CACHESIM_LISTEN / QEMU_CACHESIM_TRACE /
// QEMU_CACHESIM_REGISTERS from the environment (as populated directly, or
// via LoadDotenvDefaults) onto cfg, for fields that are still empty. A
// field that already holds a value, including the default listen address
// of DefaultConfig, is left unchanged.
func (c *Config) EnvOverrides() {
	if v := os.Getenv("QEMU_CACHESIM_LISTEN"); v != "" && c.ListenAddr == "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("QEMU_CACHESIM_TRACE"); v != "" && c.TracePath == "" {
		c.TracePath = v
	}
	if v := os.Getenv("QEMU_CACHESIM_REGISTERS"); v != "" && c.RegistersPath == "" {
		c.RegistersPath = v
	}
}
