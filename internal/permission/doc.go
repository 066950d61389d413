// Package permission declares the capabilities the OBS plugin asks the host
// to register, and an in-memory registry for hosts that have none.
//
// Descriptors are opaque to reconciliation. They are loaded from an embedded
// YAML file and handed to the host unchanged when the server starts.
//
// # Identifiers
//
// Every descriptor id is a slash-separated path under the plugin identifier:
//
//	com.omuapps/plugin-obssync/obs/scene/read
//
// Registry.Match selects descriptors with doublestar patterns, so
// "com.omuapps/plugin-obssync/obs/**" selects every OBS capability.
//
// # Levels
//
//   - low: read-only access
//   - medium: changes the current OBS session
//   - high: changes persistent OBS configuration
package permission
