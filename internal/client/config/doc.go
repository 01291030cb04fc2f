// Package config loads runtime configuration for the bizledger CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file given with --config.
//  3. The --server and --timeout flags of the CLI, which override both.
//
// # JSON schema
//
// call_timeout uses timex.Duration, so it can be a string like "10s" or
// integer nanoseconds:
//
//	{
//	  "server_base_url": "http://127.0.0.1:8080",
//	  "call_timeout": "10s"
//	}
package config
