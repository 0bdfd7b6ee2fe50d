// Package config loads runtime configuration for the storyline CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c / -config, or $STORYLINE_CONFIG.
//  3. Secrets from the environment (STORYLINE_ACCESS_TOKEN, STORYLINE_ANON_KEY,
//     STORYLINE_JWT_SECRET, STORYLINE_PG_DSN).
//  4. Command-line flags, which override everything above.
//
// Supported flags
//
//	-t string   timeline id
//	-b string   base dataset file
//	-s string   seed overrides file
//	-d string   local SQLite database file
//	-m string   mode: view or edit
//	-r string   remote driver: none, rest or postgres
//	-u string   remote REST endpoint
//	-p int      poll interval (seconds)
//	-l string   log file (empty logs to stderr)
//
// # JSON schema
//
// Durations use timex.Duration, so "600ms" and integer nanoseconds both work.
// Keys missing from the file keep their defaults.
//
//	{
//	  "timeline_id": "history",
//	  "base_path": "data/base.json",
//	  "remote_driver": "rest",
//	  "remote_url": "https://example.supabase.co",
//	  "poll_interval": "5s",
//	  "push_debounce": "600ms"
//	}
package config
