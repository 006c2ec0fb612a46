package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"reimagine/internal/models"
)

const (
	defaultHTTPTimeout = 5 * time.Minute
	httpTimeoutEnvKey  = "REIMAGINE_HTTP_TIMEOUT"
)

// Client is a simple HTTP client for the reimagine API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new API client. Generation is synchronous, so the
// default timeout is long.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Health returns the server status and configured provider.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

// Upload sends an original image as multipart form data.
func (c *Client) Upload(ctx context.Context, filename, comment string, content io.Reader) (models.Image, error) {
	var resp models.Image

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.WriteField("comment", comment); err != nil {
		return resp, err
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images", &body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) ListImages(ctx context.Context) ([]models.Image, error) {
	var resp []models.Image
	err := c.do(ctx, http.MethodGet, "/v1/images", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetImage(ctx context.Context, filename string) (models.Image, error) {
	var resp models.Image
	err := c.do(ctx, http.MethodGet, "/v1/images/"+url.PathEscape(filename), nil, nil, &resp)
	return resp, err
}

func (c *Client) EditComment(ctx context.Context, filename, comment string) (models.Image, error) {
	var resp models.Image
	req := CommentUpdateRequest{Comment: &comment}
	err := c.do(ctx, http.MethodPatch, "/v1/images/"+url.PathEscape(filename), nil, req, &resp)
	return resp, err
}

func (c *Client) DeleteImage(ctx context.Context, filename string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/images/"+url.PathEscape(filename), nil, nil, &resp)
	return resp, err
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (models.Image, error) {
	var resp models.Image
	err := c.do(ctx, http.MethodPost, "/v1/generate", nil, req, &resp)
	return resp, err
}

func (c *Client) Reset(ctx context.Context) (ResetResponse, error) {
	var resp ResetResponse
	err := c.do(ctx, http.MethodPost, "/v1/reset", nil, nil, &resp)
	return resp, err
}

// Sweep runs the orphan sweep. Nothing is deleted unless apply is set.
func (c *Client) Sweep(ctx context.Context, apply bool, minAge time.Duration) (SweepResponse, error) {
	var resp SweepResponse
	query := url.Values{}
	if apply {
		query.Set("apply", "true")
	}
	if minAge > 0 {
		query.Set("min_age", minAge.String())
	}
	err := c.do(ctx, http.MethodPost, "/v1/admin/sweep", query, nil, &resp)
	return resp, err
}

// FetchBlob streams one blob to w.
func (c *Client) FetchBlob(ctx context.Context, namespace models.Namespace, filename string, w io.Writer) (int64, error) {
	endpoint := c.baseURL + "/v1/blobs/" + url.PathEscape(string(namespace)) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
