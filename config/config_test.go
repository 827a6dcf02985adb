package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvstore/storagedb"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.BindAddr)
	assert.Equal(t, 6380, cfg.Port)
	assert.Equal(t, "none", cfg.AuthMode)
	assert.Equal(t, 16, cfg.DatabaseCount)
	assert.Equal(t, storagedb.EvictionNoEviction, cfg.EvictionPolicy)
	assert.Nil(t, cfg.DisabledCommands)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"-port", "7000",
		"-auth-mode", "password",
		"-auth-password", "hunter2",
		"-eviction-policy", "allkeys-lru",
		"-disabled-commands", "flushall, config",
	})
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "password", cfg.AuthMode)
	assert.Equal(t, "hunter2", cfg.AuthPassword)
	assert.Equal(t, storagedb.EvictionAllKeysLRU, cfg.EvictionPolicy)
	assert.Equal(t, []string{"FLUSHALL", "CONFIG"}, cfg.DisabledCommands)
}

func TestLoadUnknownEvictionPolicyFallsBackToNoEviction(t *testing.T) {
	cfg, err := Load([]string{"-eviction-policy", "bogus"})
	require.NoError(t, err)
	assert.Equal(t, storagedb.EvictionNoEviction, cfg.EvictionPolicy)
}
