// Package config handles configuration loading for scout-desk.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML when the file name ends
// in .toml) with environment variable expansion, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from SCOUT_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/scout/desk.yaml (~/.config/scout/desk.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SCOUT_JWT_SECRET}"
//	  token: "${SCOUT_TOKEN}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	upstream:
//	  timeout: "90s"
//	conversation:
//	  switch_window: "150ms"
//	directory:
//	  refresh_window: "100ms"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:7420"
//	database:
//	  path: "~/.local/share/scout/desk.db"
//	upstream:
//	  base_url: "https://research.example.com"
//	  records_url: ""          # defaults to base_url
//	search:
//	  page_size_ceiling: 50    # may be lowered, never raised
//	conversation:
//	  scope: "all"
//	  stale_response: "persist" # or "drop"
//	records:
//	  enabled: false
//	logging:
//	  level: "info"
//	  format: "text"           # or "json"
package config
