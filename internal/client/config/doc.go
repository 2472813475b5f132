// Package config loads runtime configuration for the API client.
//
// Sources, in increasing precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// JSON durations accept either strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://staging.example.com",
//	  "request_timeout": "30s",
//	  "health_attempts": 10
//	}
package config
