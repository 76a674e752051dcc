// Package errors provides the structured error type shared by the registry
// client, the HTTP server and the application wiring.
//
// Every failure that crosses a package boundary is an *AppError carrying a
// machine-readable code, an HTTP status and a retryable flag. Registry
// specific codes (REGISTRY_UNAVAILABLE, UNKNOWN_STRATEGY, REGISTRATION_FAILED,
// DEREGISTRATION_FAILED) sit next to the generic ones so callers can branch
// with HasCode instead of matching strings.
package errors
