// Package config provides 12-factor configuration management for the
// kernel control-plane daemon.
//
// Configuration is loaded from environment variables with sensible
// defaults. CLI flags can override environment variables for development
// flexibility.
//
// Configuration Sections:
//   - Server: introspection HTTP server settings (port, host)
//   - Sched: scheduler tuning (time slice override)
//   - IPC: channel flow-control defaults
//   - Logging: log level and output format
//
// Environment Variables:
//   - PORT, HOST
//   - SCHED_TIME_SLICE_MS
//   - IPC_QUEUE_LIMIT
//   - LOG_LEVEL, LOG_DEV
package config
