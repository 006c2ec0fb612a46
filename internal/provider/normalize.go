package provider

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
)

// ResultFromString interprets a vendor output string: a data:image URI is
// decoded in place and an http(s) URL is returned for fetching.
func ResultFromString(raw string) Result {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return NoImage()
	case strings.HasPrefix(value, "data:"):
		return decodeDataURI(value)
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		return RemoteURL(value)
	default:
		return Failed(FailureProviderError, "unrecognized provider output")
	}
}

func decodeDataURI(value string) Result {
	header, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok {
		return Failed(FailureProviderError, "malformed data URI")
	}
	mediaType, params, _ := strings.Cut(header, ";")
	if !strings.HasPrefix(strings.ToLower(mediaType), "image/") {
		return Failed(FailureProviderError, "data URI is not an image: %s", mediaType)
	}
	if !strings.Contains(params, "base64") {
		return Failed(FailureProviderError, "data URI is not base64 encoded")
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return Failed(FailureProviderError, "decode data URI: %s", err.Error())
	}
	if len(data) == 0 {
		return NoImage()
	}
	return ImageBytes(data)
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// Resolve turns a Result into image bytes. A RemoteURL is fetched exactly once.
// Every failure is returned as a *Failure.
func Resolve(ctx context.Context, client *http.Client, result Result) ([]byte, error) {
	switch result.Kind {
	case ResultImageBytes:
		if len(result.Bytes) == 0 {
			return nil, NoImage().Failure
		}
		return result.Bytes, nil
	case ResultRemoteURL:
		return fetch(ctx, client, result.URL)
	default:
		if result.Failure != nil {
			return nil, result.Failure
		}
		return nil, NoImage().Failure
	}
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Failure{Kind: FailureFetchError, Message: err.Error()}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Failure{Kind: FailureFetchError, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Failure{Kind: FailureFetchError, Message: "fetch generated image: " + resp.Status, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Failure{Kind: FailureFetchError, Message: err.Error()}
	}
	if len(data) == 0 {
		return nil, &Failure{Kind: FailureFetchError, Message: "fetch generated image: empty body"}
	}
	return data, nil
}
