package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidFilename = 1004
	ErrCodeInvalidFileType = 1005
	ErrCodeMissingRequired = 1009
	ErrCodeInvalidNS       = 1010

	// Domain state (2xxx)
	ErrCodeImageNotFound = 2001
	ErrCodeBlobNotFound  = 2002
	ErrCodeImageExists   = 2101
	ErrCodeConflict      = 2102

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal         = 4001
	ErrCodeStoreFailure     = 4002
	ErrCodeConsistencyFault = 4003

	// Upstream provider (5xxx)
	ErrCodeProviderError   = 5001
	ErrCodeNoImageProduced = 5002
	ErrCodeFetchFailed     = 5003
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeImageNotFound
	case 409:
		return ErrCodeConflict
	case 422:
		return ErrCodeNoImageProduced
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 502:
		return ErrCodeProviderError
	default:
		return 0
	}
}
