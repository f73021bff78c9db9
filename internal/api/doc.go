// Package api defines transport-friendly session views and converters
// for the CLI and HTTP presentation layer. It translates stored session
// rows and classified activity into DTOs that renderers can display
// without coupling to storage types.
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with
// milliseconds; durations are additionally pre-formatted for humans.
// Device info and user properties pass through as json.RawMessage to
// avoid double-encoding.
package api
