// Package config loads, validates, and normalizes rewind configuration.
//
// Configuration is read from a TOML file (default
// ~/.config/rewind/config.toml, with a project-local rewind.toml fallback)
// and merged over repository defaults. All duration-like values are stored
// as integers in their natural unit and exposed as time.Duration through
// accessor methods so the capture and replay packages never re-derive units.
package config
