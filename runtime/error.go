package runtime

import "errors"

// CollaboratorError wraps a collaborator failure with metadata.
// Plugins use it to report what went wrong on the remote side:
// - HTTP status of the failed call (status_code)
// - Retry hints (retryable, retry_after)
// - Error categorization (type: transient, permanent, auth)
type CollaboratorError struct {
	Err      error          // The underlying error
	Metadata map[string]any // Status, retry hints, provider details
}

// Error implements the error interface
func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "collaborator failed"
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError creates a new collaborator error with the given underlying error
func NewCollaboratorError(err error) *CollaboratorError {
	return &CollaboratorError{
		Err:      err,
		Metadata: make(map[string]any),
	}
}

// WithMetadata adds metadata to the error
func (e *CollaboratorError) WithMetadata(key string, value any) *CollaboratorError {
	e.Metadata[key] = value
	return e
}

// WithStatus records the HTTP status returned by the remote service
func (e *CollaboratorError) WithStatus(code int) *CollaboratorError {
	e.Metadata["status_code"] = code
	return e
}

// WithRetryHint adds retry hint metadata
func (e *CollaboratorError) WithRetryHint(retryable bool, retryAfter string) *CollaboratorError {
	e.Metadata["retryable"] = retryable
	if retryAfter != "" {
		e.Metadata["retry_after"] = retryAfter
	}
	return e
}

// WithType sets the error type (e.g., "transient", "permanent", "auth")
func (e *CollaboratorError) WithType(errorType string) *CollaboratorError {
	e.Metadata["type"] = errorType
	return e
}

// IsRetryable checks if the error is marked as retryable
func (e *CollaboratorError) IsRetryable() bool {
	retryable, _ := e.Metadata["retryable"].(bool)
	return retryable
}

// StatusCode returns the recorded HTTP status, or 0
func (e *CollaboratorError) StatusCode() int {
	code, _ := e.Metadata["status_code"].(int)
	return code
}

// GetType returns the error type if set
func (e *CollaboratorError) GetType() string {
	errorType, _ := e.Metadata["type"].(string)
	return errorType
}

func asCollaboratorError(err error) *CollaboratorError {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
