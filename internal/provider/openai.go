package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-image-1"

	// ModeEdit sends the source image along with the prompt.
	ModeEdit = "edit"
	// ModeGenerate sends the prompt only.
	ModeGenerate = "generate"
)

// OpenAI calls the images edit or generation endpoint.
type OpenAI struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
	mode    string
}

// NewOpenAI returns an OpenAI adapter. Unknown modes fall back to edit.
func NewOpenAI(client *http.Client, baseURL, model, apiKey, mode string) *OpenAI {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}
	if mode != ModeGenerate {
		mode = ModeEdit
	}
	return &OpenAI{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, apiKey: apiKey, mode: mode}
}

func (o *OpenAI) Name() string { return NameOpenAI }

type openAIImagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// Generate performs one edit or generation request.
func (o *OpenAI) Generate(ctx context.Context, req Request) Result {
	var (
		httpReq *http.Request
		err     error
	)
	if o.mode == ModeGenerate {
		httpReq, err = newJSONRequest(ctx, o.baseURL+"/v1/images/generations", map[string]any{
			"model":  o.model,
			"prompt": req.Prompt,
			"n":      1,
		})
	} else {
		httpReq, err = o.editRequest(ctx, req)
	}
	if err != nil {
		return Failed(FailureProviderError, "%s", err.Error())
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	body, failure := send(o.client, httpReq)
	if failure != nil {
		return *failure
	}

	var resp openAIImagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Failed(FailureProviderError, "decode openai response: %s", err.Error())
	}
	if len(resp.Data) == 0 {
		return NoImage()
	}
	first := resp.Data[0]
	switch {
	case first.B64JSON != "":
		data, err := decodeBase64(first.B64JSON)
		if err != nil {
			return Failed(FailureProviderError, "decode openai image: %s", err.Error())
		}
		return ImageBytes(data)
	case first.URL != "":
		return ResultFromString(first.URL)
	default:
		return NoImage()
	}
}

func (o *OpenAI) editRequest(ctx context.Context, req Request) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range [][2]string{{"model", o.model}, {"prompt", req.Prompt}, {"n", "1"}} {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, err
		}
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="image`+extensionForMime(mimeType)+`"`)
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/images/edits", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return httpReq, nil
}

func extensionForMime(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
