package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors (fatal at startup)
const (
	// ErrCodeMissingAddress indicates registration is enabled without an address.
	ErrCodeMissingAddress ErrorCode = "MISSING_ADDRESS"
	// ErrCodeInvalidConfig indicates a configuration value is out of range or malformed.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Registry errors
const (
	// ErrCodeRegistryUnreachable indicates the registry could not be contacted.
	ErrCodeRegistryUnreachable ErrorCode = "REGISTRY_UNREACHABLE"
	// ErrCodeBadResponse indicates the registry answered with a non-2xx status.
	ErrCodeBadResponse ErrorCode = "BAD_RESPONSE"
	// ErrCodeNotFound indicates no registered or healthy instance exists.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Generic errors
const (
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeRegistryUnreachable: true,
	ErrCodeTimeout:             true,
	ErrCodeBadResponse:         false,
	ErrCodeNotFound:            false,
	ErrCodeMissingAddress:      false,
	ErrCodeInternal:            false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
// BAD_RESPONSE depends on the status code and is decided by BadResponse.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
