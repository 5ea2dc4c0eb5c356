// Package config handles configuration loading, parsing, and validation
// from defaults, an optional YAML file, a dotenv file and SCRY_-prefixed
// environment variables. It provides type-safe access to the settings of the
// server, the remote database, the local cache and the sync engine.
package config
