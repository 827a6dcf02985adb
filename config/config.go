// Package config provides centralized configuration management for the
// server: flag parsing with environment-variable fallback, the same
// two-tier precedence (flags override env, env overrides a documented
// default) the original EntityDB config package used for its CLI surface
// — minus the database-backed configuration-entity tier, since this build
// has no control-plane database to source it from.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"kvstore/storagedb"
)

// Config holds every server-wide setting from spec.md §6: network
// bindings, auth, protocol limits, storage/eviction, and snapshotting.
type Config struct {
	// Network
	// =======

	// BindAddr is the address the RESP listener binds to.
	// Environment: KVSTORE_BIND_ADDR
	BindAddr string

	// Port is the RESP listener's TCP port.
	// Environment: KVSTORE_PORT
	Port int

	// Workers is the number of fiber-scheduled worker goroutines, one
	// netio ring and one fiber scheduler each.
	// Environment: KVSTORE_WORKERS
	Workers int

	// Auth
	// ====

	// AuthMode selects the HELLO/AUTH negotiation: "none" or "password".
	// Environment: KVSTORE_AUTH_MODE
	AuthMode string

	// AuthPassword is the plaintext credential checked by AUTH/HELLO
	// AUTH when AuthMode is "password"; the server bcrypt-hashes it at
	// startup into command.Limits.AuthPasswordHash.
	// Environment: KVSTORE_AUTH_PASSWORD (plaintext; hashed at startup)
	AuthPassword string

	// Protocol limits
	// ===============

	// MaxCommandArgs bounds how many arguments a single command accepts
	// before the connection is dropped as protocol-abusive (spec.md §7).
	// Environment: KVSTORE_MAX_COMMAND_ARGS
	MaxCommandArgs int

	// MaxKeyLength bounds key size in bytes.
	// Environment: KVSTORE_MAX_KEY_LENGTH
	MaxKeyLength int

	// MaxInlineCommandLength bounds an inline (non-RESP-array) command
	// line's length before it's rejected as a protocol error.
	// Environment: KVSTORE_MAX_INLINE_LENGTH
	MaxInlineCommandLength int

	// DisabledCommands lists command names rejected with "unknown command"
	// regardless of support, per spec.md §6 "disabled commands".
	// Environment: KVSTORE_DISABLED_COMMANDS (comma-separated, case-insensitive)
	DisabledCommands []string

	// Storage
	// =======

	DatabaseCount  int
	HardLimitBytes int64
	EvictionPolicy storagedb.EvictionPolicy
	EvictionSample int

	// Snapshot
	// ========

	// SnapshotPath is the directory snapshot files are written to.
	// Environment: KVSTORE_SNAPSHOT_PATH
	SnapshotPath string

	// SnapshotInterval triggers a background BGSAVE on this cadence; zero
	// disables automatic snapshotting (SAVE/BGSAVE remain available on
	// demand).
	// Environment: KVSTORE_SNAPSHOT_INTERVAL (seconds)
	SnapshotInterval time.Duration

	// SnapshotChangeThreshold triggers a BGSAVE once this many keys have
	// changed since the last successful run, mirroring the classic
	// "save after N changes" rule.
	// Environment: KVSTORE_SNAPSHOT_CHANGE_THRESHOLD
	SnapshotChangeThreshold int

	// Logging
	// =======

	LogLevel string

	// Application metadata
	// ====================

	AppName    string
	AppVersion string
}

// Load parses command-line flags, falling back to environment variables,
// falling back to documented defaults — the same precedence order the
// teacher's flag-plus-env Load used, with the database-entity tier
// dropped.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("kvstore", flag.ContinueOnError)

	cfg := &Config{}

	fs.StringVar(&cfg.BindAddr, "bind", getEnv("KVSTORE_BIND_ADDR", "0.0.0.0"), "RESP listener bind address")
	fs.IntVar(&cfg.Port, "port", getEnvInt("KVSTORE_PORT", 6380), "RESP listener port")
	fs.IntVar(&cfg.Workers, "workers", getEnvInt("KVSTORE_WORKERS", 0), "worker count (0 = GOMAXPROCS)")

	fs.StringVar(&cfg.AuthMode, "auth-mode", getEnv("KVSTORE_AUTH_MODE", "none"), `"none" or "password"`)
	fs.StringVar(&cfg.AuthPassword, "auth-password", getEnv("KVSTORE_AUTH_PASSWORD", ""), "password required when auth-mode=password")

	fs.IntVar(&cfg.MaxCommandArgs, "max-command-args", getEnvInt("KVSTORE_MAX_COMMAND_ARGS", 1024), "max arguments per command")
	fs.IntVar(&cfg.MaxKeyLength, "max-key-length", getEnvInt("KVSTORE_MAX_KEY_LENGTH", 512*1024), "max key length in bytes")
	fs.IntVar(&cfg.MaxInlineCommandLength, "max-inline-length", getEnvInt("KVSTORE_MAX_INLINE_LENGTH", 64*1024), "max inline command length in bytes")
	disabled := fs.String("disabled-commands", getEnv("KVSTORE_DISABLED_COMMANDS", ""), "comma-separated disabled command names")

	fs.IntVar(&cfg.DatabaseCount, "databases", getEnvInt("KVSTORE_DATABASES", 16), "number of logical databases")
	fs.Int64Var(&cfg.HardLimitBytes, "max-memory", getEnvInt64("KVSTORE_MAX_MEMORY", 0), "approximate byte limit before eviction triggers (0 = unlimited)")
	evictionPolicy := fs.String("eviction-policy", getEnv("KVSTORE_EVICTION_POLICY", "noeviction"), "noeviction|allkeys-lru|allkeys-lfu|allkeys-random|volatile-lru|volatile-lfu|volatile-random|volatile-ttl")
	fs.IntVar(&cfg.EvictionSample, "eviction-sample-size", getEnvInt("KVSTORE_EVICTION_SAMPLE_SIZE", 16), "candidates sampled per eviction")

	fs.StringVar(&cfg.SnapshotPath, "snapshot-path", getEnv("KVSTORE_SNAPSHOT_PATH", "./var"), "directory snapshot files are written to")
	fs.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", getEnvDuration("KVSTORE_SNAPSHOT_INTERVAL", 0), "automatic snapshot cadence (0 = disabled)")
	fs.IntVar(&cfg.SnapshotChangeThreshold, "snapshot-change-threshold", getEnvInt("KVSTORE_SNAPSHOT_CHANGE_THRESHOLD", 0), "auto-snapshot after this many changed keys (0 = disabled)")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("KVSTORE_LOG_LEVEL", "info"), "trace|debug|info|warn|error")
	fs.StringVar(&cfg.AppName, "app-name", getEnv("KVSTORE_APP_NAME", "kvstore"), "application name used in logs")
	fs.StringVar(&cfg.AppVersion, "app-version", getEnv("KVSTORE_APP_VERSION", "0.1.0"), "application version string")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.DisabledCommands = splitCSV(*disabled)
	cfg.EvictionPolicy = parseEvictionPolicy(*evictionPolicy)

	return cfg, nil
}

func parseEvictionPolicy(s string) storagedb.EvictionPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allkeys-lru":
		return storagedb.EvictionAllKeysLRU
	case "allkeys-lfu":
		return storagedb.EvictionAllKeysLFU
	case "allkeys-random":
		return storagedb.EvictionAllKeysRandom
	case "volatile-lru":
		return storagedb.EvictionVolatileLRU
	case "volatile-lfu":
		return storagedb.EvictionVolatileLFU
	case "volatile-random":
		return storagedb.EvictionVolatileRandom
	case "volatile-ttl":
		return storagedb.EvictionVolatileTTL
	default:
		return storagedb.EvictionNoEviction
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}
