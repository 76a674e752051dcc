// Package component defines the lifecycle contract shared by the server,
// the registry client and telemetry, and a Registry that starts them in
// order and stops them in reverse.
package component
