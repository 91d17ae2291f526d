package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is the Gemini model used when none is configured
const DefaultGeminiModel = "gemini-2.5-pro"

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
}

// NewGemini creates a new Gemini extractor
func NewGemini(apiKey string, modelName string, maxTokens int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &Gemini{
		client:    client,
		model:     model,
		modelName: modelName,
	}, nil
}

// Extract sends the invoice image to Gemini
func (g *Gemini) Extract(ctx context.Context, img *Image) (*Extraction, error) {
	// genai.ImageData expects the format suffix ("jpeg"), not the MIME type
	format := strings.TrimPrefix(img.ContentType, "image/")
	parts := []genai.Part{
		genai.ImageData(format, img.Data),
		genai.Text(invoicePrompt),
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, parts...)
	duration := time.Since(start)
	if err != nil {
		return nil, geminiError(err)
	}

	text, err := geminiText(resp)
	if err != nil {
		return nil, err
	}

	ex := &Extraction{
		Text:     text,
		Model:    g.modelName,
		Duration: duration,
	}
	logExtraction("gemini", ex)

	return ex, nil
}

// geminiError classifies a failed GenerateContent call. API errors carry a
// status and message; anything else never got an answer.
func geminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message, Cause: err}
	}
	return &TransportError{Provider: "gemini", Cause: err}
}

// geminiText joins the text parts of the first candidate
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", malformed("gemini", http.StatusOK, "", "no candidates in response")
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 {
		return "", malformed("gemini", http.StatusOK, "", "first candidate has no content")
	}

	var text strings.Builder
	for _, part := range content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
