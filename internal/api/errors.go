package api

import (
	"errors"
	"fmt"
)

// Codes carried in ErrorResponse.Code. The server derives them from the
// failure kind; clients switch on them.
const (
	CodeInvalidArgument   = "invalid_argument"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeResourceExhausted = "resource_exhausted"
	CodeNoImageProduced   = "no_image_produced"
	CodeProviderError     = "provider_error"
	CodeFetchFailed       = "fetch_failed"
	CodeConsistencyFault  = "consistency_fault"
	CodeInternal          = "internal"
)

// APIError is a non-2xx reply decoded by Client. Status is the HTTP status,
// Code the string code above and ErrorCode the numeric detail.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("reimagine server returned HTTP %d", e.Status)
	default:
		return "reimagine server error"
	}
}

// ServerFault reports a failure on the server side rather than in the
// request or at the provider.
func (e *APIError) ServerFault() bool {
	return e != nil && e.Status >= 500 && e.Code != CodeProviderError && e.Code != CodeFetchFailed
}

// CodeOf returns the code of the first APIError in err's chain, or "".
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
