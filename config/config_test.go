package config_test

import (
	"os"
	"testing"

	"github.com/leidenuniv/pagetables/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvMissingFileKeepsDefaults(t *testing.T) {
	cfg := config.LoadEnv(config.Default(), "no_such_file.env")

	assert.Equal(t, config.Default(), cfg)
}

func TestLoadEnvOverridesFields(t *testing.T) {
	path := "test.env"
	content := "PAGETABLES_MEMORY_SIZE=1048576\nPAGETABLES_TLB_CAPACITY=16\nPAGETABLES_TRACE_PATH=trace.txt\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	defer os.Remove(path)

	cfg := config.LoadEnv(config.Default(), path)

	assert.EqualValues(t, 1048576, cfg.MemorySize)
	assert.Equal(t, 16, cfg.TLBCapacity)
	assert.Equal(t, "trace.txt", cfg.TracePath)
	assert.Equal(t, config.Default().MonitorPort, cfg.MonitorPort)
}
