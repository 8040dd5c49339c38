// errors.go — Error code vocabulary shared by MCP client callers.
// Self-describing snake_case strings so failures surfaced through
// AttemptRecord.Error or orchestrator blocker messages stay greppable.
package mcp

const (
	// Input errors — caller can fix arguments and retry immediately
	ErrInvalidJSON    = "invalid_json"
	ErrMissingParam   = "missing_param"
	ErrInvalidParam   = "invalid_param"
	ErrUnknownMode    = "unknown_mode"
	ErrPathNotAllowed = "path_not_allowed"

	// State errors — caller must change state before retrying
	ErrNotInitialized  = "not_initialized"
	ErrNoData          = "no_data"
	ErrElementNotFound = "element_not_found"
	ErrRateLimited     = "rate_limited"
	ErrCursorExpired   = "cursor_expired"

	// Communication errors — retry with backoff
	ErrExtTimeout = "extension_timeout"
	ErrExtError   = "extension_error"

	// Internal errors — do not retry
	ErrInternal      = "internal_error"
	ErrMarshalFailed = "marshal_failed"
)
