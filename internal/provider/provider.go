// Package provider adapts external image-generation vendors to one request and
// result contract.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps how much of a vendor response is read into memory.
const maxResponseBytes = 64 << 20

// Request is the input handed to every provider.
type Request struct {
	Image    []byte
	MimeType string
	Prompt   string
}

// Provider performs exactly one generation call per Generate invocation.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) Result
}

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	ResultFailure ResultKind = iota
	ResultImageBytes
	ResultRemoteURL
)

// Result is the normalized provider output: raw bytes, a URL still to be
// fetched, or a failure.
type Result struct {
	Kind    ResultKind
	Bytes   []byte
	URL     string
	Failure *Failure
}

// FailureKind classifies a provider-side failure.
type FailureKind string

const (
	FailureProviderError   FailureKind = "provider_error"
	FailureNoImageProduced FailureKind = "no_image_produced"
	FailureFetchError      FailureKind = "fetch_failed"
)

// Failure carries the vendor message verbatim.
type Failure struct {
	Kind       FailureKind
	Message    string
	StatusCode int
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Message == "" {
		return string(f.Kind)
	}
	return f.Message
}

// ImageBytes wraps decoded image bytes.
func ImageBytes(data []byte) Result {
	return Result{Kind: ResultImageBytes, Bytes: data}
}

// RemoteURL wraps a URL that must be downloaded to obtain the image.
func RemoteURL(u string) Result {
	return Result{Kind: ResultRemoteURL, URL: u}
}

// Failed builds a failure result.
func Failed(kind FailureKind, format string, args ...any) Result {
	return Result{Kind: ResultFailure, Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// NoImage reports a successful call that carried no image.
func NoImage() Result {
	return Failed(FailureNoImageProduced, "No image generated")
}

func failedStatus(status int, message string) Result {
	return Result{Kind: ResultFailure, Failure: &Failure{Kind: FailureProviderError, Message: message, StatusCode: status}}
}

// send performs one request and returns the body of a 2xx response. Any other
// outcome becomes a provider failure carrying the vendor's own message.
func send(client *http.Client, req *http.Request) ([]byte, *Result) {
	resp, err := client.Do(req)
	if err != nil {
		r := Failed(FailureProviderError, "%s", err.Error())
		return nil, &r
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		r := Failed(FailureProviderError, "read response: %s", err.Error())
		return nil, &r
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r := failedStatus(resp.StatusCode, vendorErrorMessage(resp.Status, body))
		return nil, &r
	}
	return body, nil
}

// vendorErrorMessage extracts {"error": {"message": ...}} or {"error": "..."}
// or {"detail": "..."}, falling back to the raw body.
func vendorErrorMessage(status string, body []byte) string {
	var envelope struct {
		Error  json.RawMessage `json:"error"`
		Detail string          `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if err := json.Unmarshal(envelope.Error, &flat); err == nil && flat != "" {
				return flat
			}
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "provider error: " + status
}

func newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
