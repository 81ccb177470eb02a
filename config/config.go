// Package config loads the simulator's tunable parameters: backing
// memory size, TLB capacity, monitoring port, and trace path. Values
// come from built-in defaults, optionally overridden by a .env file via
// github.com/joho/godotenv, in turn overridden by cobra/pflag flags in
// cmd/pagetables — "environment defaults, flags win".
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every parameter the CLI needs to wire up a simulation.
type Config struct {
	// MemorySize is the number of bytes of simulated physical memory the
	// allocator manages; must not exceed the allocator's 2 GiB circuit
	// breaker (spec §4.A).
	MemorySize uint64

	// TLBCapacity is the fixed number of entries the TLB holds.
	TLBCapacity int

	// MonitorPort is the TCP port the monitoring server listens on; zero
	// picks a random free port.
	MonitorPort int

	// TracePath is the path to a trace file for `pagetables run`; empty
	// means generate a synthetic trace instead.
	TracePath string
}

// Default returns the built-in defaults applied before any .env file or
// flag override.
func Default() Config {
	return Config{
		MemorySize:  64 * 1024 * 1024,
		TLBCapacity: 64,
		MonitorPort: 0,
		TracePath:   "",
	}
}

// Environment variable names read from a .env file.
const (
	envMemorySize  = "PAGETABLES_MEMORY_SIZE"
	envTLBCapacity = "PAGETABLES_TLB_CAPACITY"
	envMonitorPort = "PAGETABLES_MONITOR_PORT"
	envTracePath   = "PAGETABLES_TRACE_PATH"
)

// LoadEnv layers values read from the .env file at path over cfg. A
// missing file is not an error — every .env field is optional developer
// convenience, never a hard requirement (this mirrors how the teacher's
// own CLI treats its flag defaults: present-if-convenient, not
// mandatory).
func LoadEnv(cfg Config, path string) Config {
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		return cfg
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return cfg
	}

	if v, ok := vars[envMemorySize]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MemorySize = n
		}
	}

	if v, ok := vars[envTLBCapacity]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TLBCapacity = n
		}
	}

	if v, ok := vars[envMonitorPort]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MonitorPort = n
		}
	}

	if v, ok := vars[envTracePath]; ok {
		cfg.TracePath = v
	}

	return cfg
}
