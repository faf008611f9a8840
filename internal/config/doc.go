// Package config provides configuration management for the weft daemon.
//
// Configuration is loaded from environment variables using the env package.
// Defaults favor single-node development: in-memory event and storage
// backends, no Redis required. Setting either backend to "redis" makes the
// Redis section mandatory.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if cfg.NeedsRedis() {
//	    // dial cfg.Redis.Addr before wiring adapters
//	}
package config
