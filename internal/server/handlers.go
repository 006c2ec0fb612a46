package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reimagine/internal/api"
	"reimagine/internal/gallery"
)

const (
	defaultJSONMaxBody = 1 << 20 // 1 MiB
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500 && status != http.StatusBadGateway:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status == http.StatusBadGateway:
		s.log().Warn("provider failure", fields...)
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: numericCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, api.CodeInvalidArgument, code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, api.CodeNotFound, code, err)
}

func conflictCode(err error, code int) error {
	return makeAPIError(http.StatusConflict, api.CodeConflict, code, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, api.CodeInternal, ErrCodeInternal, err)
}

// galleryError maps a gallery failure onto the HTTP error contract. Provider
// messages are kept verbatim; 5xx responses other than 502 hide theirs.
func galleryError(err error) error {
	if err == nil {
		return nil
	}
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}

	message := err
	var gerr *gallery.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		message = errors.New(gerr.Message)
	}

	switch gallery.KindOf(err) {
	case gallery.KindBadRequest:
		return badRequestCode(message, ErrCodeInvalidArgument)
	case gallery.KindNotFound:
		return notFoundCode(message, ErrCodeImageNotFound)
	case gallery.KindConflict:
		return conflictCode(message, ErrCodeImageExists)
	case gallery.KindNoImageProduced:
		return makeAPIError(http.StatusUnprocessableEntity, api.CodeNoImageProduced, ErrCodeNoImageProduced, message)
	case gallery.KindProviderError:
		return makeAPIError(http.StatusBadGateway, api.CodeProviderError, ErrCodeProviderError, message)
	case gallery.KindFetchFailed:
		return makeAPIError(http.StatusBadGateway, api.CodeFetchFailed, ErrCodeFetchFailed, message)
	case gallery.KindConsistencyFault:
		return makeAPIError(http.StatusInternalServerError, api.CodeConsistencyFault, ErrCodeConsistencyFault, err)
	default:
		return internalError(err)
	}
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return api.CodeInvalidArgument
	case http.StatusNotFound:
		return api.CodeNotFound
	case http.StatusConflict:
		return api.CodeConflict
	case http.StatusUnprocessableEntity:
		return api.CodeNoImageProduced
	case http.StatusTooManyRequests:
		return api.CodeResourceExhausted
	case http.StatusInternalServerError:
		return api.CodeInternal
	case http.StatusBadGateway:
		return api.CodeProviderError
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(defaultJSONMaxBody))
	return json.NewDecoder(r.Body).Decode(dst)
}

func classifyDecodeJSONError(err error) error {
	if err == nil {
		return nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	}

	return badRequestCode(err, ErrCodeInvalidJSON)
}

func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return false
	}
	return true
}

// writeServiceError accepts either apiError values or gallery errors.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	err = galleryError(err)
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func queryBool(r *http.Request, key string) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
	}
	return parsed, nil
}

// queryDuration accepts Go durations or a bare number of seconds.
func queryDuration(r *http.Request, key string, def time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return def, nil
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed >= 0 {
		return parsed, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, badRequestCode(fmt.Errorf("invalid %s", key), ErrCodeInvalidQuery)
}
