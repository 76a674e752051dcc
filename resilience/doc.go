// Package resilience provides retry with exponential backoff. The registry
// client uses it to fail a lookup over to another agent when the first one
// it picked cannot be reached.
package resilience
