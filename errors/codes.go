package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Connection/Availability errors
const (
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to a registry agent.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates an agent call exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRegistryUnavailable indicates that no configured registry agent
	// answered its liveness probe. It is fatal at startup and never retried.
	ErrCodeRegistryUnavailable ErrorCode = "REGISTRY_UNAVAILABLE"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeUnknownStrategy indicates a selection strategy outside the supported set.
	ErrCodeUnknownStrategy ErrorCode = "UNKNOWN_STRATEGY"
)

// Registration errors
const (
	// ErrCodeRegistrationFailed indicates the agent rejected or failed a registration.
	ErrCodeRegistrationFailed ErrorCode = "REGISTRATION_FAILED"
	// ErrCodeDeregistrationFailed indicates a single agent failed to deregister a service.
	ErrCodeDeregistrationFailed ErrorCode = "DEREGISTRATION_FAILED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService indicates an error from an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable:   true,
	ErrCodeConnectionFailed:     true,
	ErrCodeTimeout:              true,
	ErrCodeExternalService:      true,
	ErrCodeRegistrationFailed:   true,
	ErrCodeDeregistrationFailed: true,
	ErrCodeRegistryUnavailable:  false,
	ErrCodeInternal:             false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
