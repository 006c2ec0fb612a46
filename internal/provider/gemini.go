package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.5-flash-image-preview"
)

// Gemini calls the generateContent endpoint with the image as an inline part.
type Gemini struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
}

// NewGemini returns a Gemini adapter. Empty baseURL and model use defaults.
func NewGemini(client *http.Client, baseURL, model, apiKey string) *Gemini {
	if client == nil {
		client = &http.Client{}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGeminiBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	return &Gemini{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, apiKey: apiKey}
}

func (g *Gemini) Name() string { return NameGemini }

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponsePart struct {
	Text       string `json:"text"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiResponsePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate sends the prompt and source image and returns the first inline image part.
func (g *Gemini) Generate(ctx context.Context, req Request) Result {
	var payload geminiRequest
	payload.Contents = []geminiContent{{Parts: []geminiPart{
		{Text: req.Prompt},
		{InlineData: &geminiInlineData{MimeType: req.MimeType, Data: base64.StdEncoding.EncodeToString(req.Image)}},
	}}}
	payload.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	endpoint := g.baseURL + "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	httpReq, err := newJSONRequest(ctx, endpoint, payload)
	if err != nil {
		return Failed(FailureProviderError, "%s", err.Error())
	}
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	body, failure := send(g.client, httpReq)
	if failure != nil {
		return *failure
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Failed(FailureProviderError, "decode gemini response: %s", err.Error())
	}
	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Failed(FailureProviderError, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}

	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := decodeBase64(part.InlineData.Data)
			if err != nil {
				return Failed(FailureProviderError, "decode gemini image: %s", err.Error())
			}
			return ImageBytes(data)
		}
	}
	return NoImage()
}
