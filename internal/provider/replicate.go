package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	defaultReplicateBaseURL = "https://api.replicate.com"
	defaultReplicateModel   = "black-forest-labs/flux-kontext-pro"
	replicateImageInput     = "input_image"
)

// Replicate creates a prediction and waits for it synchronously.
type Replicate struct {
	client  *http.Client
	baseURL string
	model   string
	token   string
}

// NewReplicate returns a Replicate adapter. model is "<owner>/<name>".
func NewReplicate(client *http.Client, baseURL, model, token string) *Replicate {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultReplicateBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultReplicateModel
	}
	return &Replicate{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, token: token}
}

func (r *Replicate) Name() string { return NameReplicate }

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

// Generate posts one prediction with Prefer: wait and normalizes its output.
func (r *Replicate) Generate(ctx context.Context, req Request) Result {
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	payload := map[string]any{
		"input": map[string]any{
			"prompt":            req.Prompt,
			replicateImageInput: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
		},
	}

	httpReq, err := newJSONRequest(ctx, r.baseURL+"/v1/models/"+r.model+"/predictions", payload)
	if err != nil {
		return Failed(FailureProviderError, "%s", err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.token)
	httpReq.Header.Set("Prefer", "wait")

	body, failure := send(r.client, httpReq)
	if failure != nil {
		return *failure
	}

	var prediction replicatePrediction
	if err := json.Unmarshal(body, &prediction); err != nil {
		return Failed(FailureProviderError, "decode replicate response: %s", err.Error())
	}

	switch prediction.Status {
	case "failed", "canceled":
		return Failed(FailureProviderError, "%s", predictionError(prediction))
	case "succeeded", "":
	default:
		return Failed(FailureProviderError, "prediction %s did not finish: %s", prediction.ID, prediction.Status)
	}
	return outputResult(prediction.Output)
}

// outputResult accepts a string, an array of strings (first non-empty wins),
// or null.
func outputResult(raw json.RawMessage) Result {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return NoImage()
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return ResultFromString(single)
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, item := range many {
			if strings.TrimSpace(item) != "" {
				return ResultFromString(item)
			}
		}
		return NoImage()
	}

	return Failed(FailureProviderError, "unrecognized replicate output")
}

func predictionError(p replicatePrediction) string {
	switch v := p.Error.(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return "prediction " + p.Status
}
