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
	// DefaultOllamaURL is where a local Ollama listens by default
	DefaultOllamaURL = "http://localhost:11434"
	// DefaultOllamaModel is a vision model that handles document images
	DefaultOllamaModel = "llava"
)

// Ollama implements the Extractor interface using a local Ollama server
type Ollama struct {
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOllama creates a new Ollama extractor.
// Vision models that read invoices reasonably well:
//   - llava:1.6
//   - qwen2-vl:7b (good OCR capabilities)
//   - llama3.2-vision
func NewOllama(baseURL string, modelName string, maxTokens int) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if modelName == "" {
		modelName = DefaultOllamaModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Ollama{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     modelName,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaChatResponse struct {
	Model           string         `json:"model"`
	Message         *ollamaMessage `json:"message"`
	Done            bool           `json:"done"`
	PromptEvalCount int            `json:"prompt_eval_count"`
	EvalCount       int            `json:"eval_count"`
}

// Extract sends the invoice image to Ollama's chat API
func (o *Ollama) Extract(ctx context.Context, img *Image) (*Extraction, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: invoicePrompt,
				Images:  []string{EncodeImage(img.Data)},
			},
		},
		Options: ollamaOptions{NumPredict: o.maxTokens},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: "ollama", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, &TransportError{Provider: "ollama", Cause: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama API error", "status", resp.StatusCode, "body", string(body))
		return nil, &ProviderError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, malformed("ollama", resp.StatusCode, string(body), "decoding response: %v", err)
	}
	if chatResp.Message == nil {
		return nil, malformed("ollama", resp.StatusCode, string(body), "no message in response")
	}

	model := chatResp.Model
	if model == "" {
		model = o.model
	}
	ex := &Extraction{
		Text:  chatResp.Message.Content,
		Model: model,
		Usage: Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
		Duration: duration,
	}
	logExtraction("ollama", ex)

	return ex, nil
}

// Close closes the Ollama extractor (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
