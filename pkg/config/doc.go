// Package config provides configuration management for apilog.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention APILOG_SECTION_FIELD:
//
//   - APILOG_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - APILOG_RETENTION_RETENTION_DAYS overrides retention.retention_days
//   - APILOG_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Defaults()
//  2. YAML file
//  3. Environment variables (optionally loaded from a .env file by the CLI)
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and hands every
// successfully validated reload to a callback. The run command uses it to
// apply retention policy changes without a restart.
package config
