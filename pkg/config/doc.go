// Package config provides the YAML service configuration for CloudTrim.
//
// # Overview
//
// The config package loads, validates, and hot-reloads the service
// configuration consumed by the CLI: execution engine tuning, the SQLite
// audit store, telemetry, OPA guardrails, and the resource gateway with its
// circuit breaker.
//
// # Usage Example
//
//	cfg, err := config.Load("/etc/cloudtrim/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := stores.NewSQLiteStore(cfg.StoreConfig())
//	...
//
// Fields absent from the file keep their defaults, so a minimal file is
// valid:
//
//	environment: production
//	store:
//	  path: /var/lib/cloudtrim/cloudtrim.db
//	telemetry:
//	  log_format: json
//
// # Hot Reload
//
// A Watcher reloads the file on change and hands the parsed configuration to
// a callback. A file that fails to parse or validate is skipped and the
// previous configuration stays in effect:
//
//	watcher := config.NewWatcher(logger)
//	err = watcher.Watch(ctx, path, func(cfg *config.Config) {
//	    // apply hot-reloadable knobs
//	})
//
// # Validation
//
// Struct-level constraints use go-playground/validator tags; cross-field
// rules (backoff cap versus base interval, breaker timeout when enabled) are
// checked in Validate.
package config
