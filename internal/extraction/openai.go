package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIURL is the base URL of the OpenAI REST API
	DefaultOpenAIURL = "https://api.openai.com/v1"
	// DefaultOpenAIModel is a vision-capable chat model
	DefaultOpenAIModel = "gpt-4o"
)

// OpenAI implements the Extractor interface using the chat completions API
type OpenAI struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// OpenAIOption configures an OpenAI extractor
type OpenAIOption func(*OpenAI)

// WithBaseURL points the extractor at another OpenAI-compatible endpoint
func WithBaseURL(baseURL string) OpenAIOption {
	return func(o *OpenAI) {
		if baseURL != "" {
			o.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithModel sets the model name
func WithModel(model string) OpenAIOption {
	return func(o *OpenAI) {
		if model != "" {
			o.model = model
		}
	}
}

// WithMaxTokens sets the output length budget
func WithMaxTokens(maxTokens int) OpenAIOption {
	return func(o *OpenAI) {
		if maxTokens > 0 {
			o.maxTokens = maxTokens
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(o *OpenAI) {
		if client != nil {
			o.client = client
		}
	}
}

// NewOpenAI creates a new OpenAI extractor. The call itself is bounded by the
// context passed to Extract, so the HTTP client has no timeout of its own.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	o := &OpenAI{
		baseURL:   DefaultOpenAIURL,
		apiKey:    apiKey,
		model:     DefaultOpenAIModel,
		maxTokens: DefaultMaxTokens,
		client:    &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (o *OpenAI) newChatRequest(payload string) chatRequest {
	return chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: invoicePrompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL(payload), Detail: "high"}},
				},
			},
		},
		MaxTokens: o.maxTokens,
	}
}

// Extract encodes the image and sends it with the configured credential
func (o *OpenAI) Extract(ctx context.Context, img *Image) (*Extraction, error) {
	start := time.Now()
	payload := EncodeImage(img.Data)
	slog.Info("Image encoded", "filename", img.Filename, "bytes", len(img.Data), "duration", time.Since(start))

	return o.ExtractPayload(ctx, o.apiKey, payload)
}

// ExtractPayload issues one chat completion request for a base64 image
// payload. The credential is forwarded as a bearer token without validation.
// The first choice's content is returned exactly as the model wrote it.
func (o *OpenAI) ExtractPayload(ctx context.Context, credential, payload string) (*Extraction, error) {
	jsonData, err := json.Marshal(o.newChatRequest(payload))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := o.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: "openai", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, &TransportError{Provider: "openai", Cause: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("OpenAI API error", "status", resp.StatusCode, "body", string(body), "duration", duration)
		return nil, &ProviderError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, malformed("openai", resp.StatusCode, string(body), "decoding response: %v", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, malformed("openai", resp.StatusCode, string(body), "no choices in response")
	}
	content := chatResp.Choices[0].Message.Content
	if content == nil {
		return nil, malformed("openai", resp.StatusCode, string(body), "first choice has no content")
	}

	ex := &Extraction{
		Text:     *content,
		Model:    chatResp.Model,
		Duration: duration,
	}
	if chatResp.Usage != nil {
		ex.Usage = *chatResp.Usage
	}
	logExtraction("openai", ex)

	return ex, nil
}

// Close closes the OpenAI extractor (no-op for HTTP client)
func (o *OpenAI) Close() error {
	return nil
}
