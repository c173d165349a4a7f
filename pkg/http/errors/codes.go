package errors

// Error codes for standardized error responses.
const (
	// Authentication errors
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeInvalidToken = "invalid_token"
	ErrCodeTokenExpired = "token_expired"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Resource errors
	ErrCodeNotFound = "not_found"
	ErrCodeConflict = "conflict"

	// Match errors
	ErrCodeMatchCreationFailed = "match_creation_failed"
	ErrCodeInvalidMatchID      = "invalid_match_id"
	ErrCodeMatchNotScheduled   = "match_not_scheduled"
	ErrCodeNotHost             = "not_host"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
